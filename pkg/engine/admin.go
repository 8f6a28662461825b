package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/gate"
	"github.com/fvkry/custody/pkg/models"
)

// Pause halts all lock and add operations. Only the administrator may pause,
// and pausing an already-paused system is an error.
func (e *Engine) Pause(ctx context.Context, caller common.Address) error {
	if !e.gate.IsAdministrator(caller) {
		return gate.ErrNotAdministrator
	}
	if err := e.gate.Pause(); err != nil {
		return err
	}
	e.publish(ctx, models.Event{Type: models.EventPaused, Owner: caller, Timestamp: e.Now()})
	return nil
}

// Unpause resumes operation. Unpausing a running system is an error.
func (e *Engine) Unpause(ctx context.Context, caller common.Address) error {
	if !e.gate.IsAdministrator(caller) {
		return gate.ErrNotAdministrator
	}
	if err := e.gate.Unpause(); err != nil {
		return err
	}
	e.publish(ctx, models.Event{Type: models.EventUnpaused, Owner: caller, Timestamp: e.Now()})
	return nil
}

// BlacklistToken denies future locking and adding of token. Double-add is an
// error.
func (e *Engine) BlacklistToken(ctx context.Context, caller common.Address, token common.Address) error {
	if !e.gate.IsAdministrator(caller) {
		return gate.ErrNotAdministrator
	}
	if token == models.NativeToken {
		return ErrZeroTokenAddress
	}
	if err := e.gate.Blacklist(token); err != nil {
		return err
	}
	e.publish(ctx, models.Event{Type: models.EventTokenBlacklisted, Owner: caller, Token: token, Timestamp: e.Now()})
	return nil
}

// UnblacklistToken removes token from the deny-list. Removing an absent
// token is an error.
func (e *Engine) UnblacklistToken(ctx context.Context, caller common.Address, token common.Address) error {
	if !e.gate.IsAdministrator(caller) {
		return gate.ErrNotAdministrator
	}
	if err := e.gate.Unblacklist(token); err != nil {
		return err
	}
	e.publish(ctx, models.Event{Type: models.EventTokenUnblacklisted, Owner: caller, Token: token, Timestamp: e.Now()})
	return nil
}
