package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Validation and state-precondition errors. Every failure aborts the whole
// operation with no state change; nothing is retried internally.
var (
	// ErrPaused is returned when a gated operation runs against a paused
	// system.
	ErrPaused = errors.New("contract is paused")

	// ErrNonPositiveAmount is returned for amounts that are zero or
	// negative.
	ErrNonPositiveAmount = errors.New("amount must be a value greater than 0")

	// ErrNonPositiveLockPeriod is returned for lock periods that are zero
	// or negative.
	ErrNonPositiveLockPeriod = errors.New("lock period must be greater than 0")

	// ErrNonPositiveExtension is returned for extension periods that are
	// zero or negative.
	ErrNonPositiveExtension = errors.New("extension period must be greater than 0")

	// ErrZeroTokenAddress is returned when a token lock names the zero
	// address, which is reserved for the native sentinel.
	ErrZeroTokenAddress = errors.New("token address cannot be the zero address")

	// ErrTokenBlacklisted is returned when locking or adding a
	// deny-listed token.
	ErrTokenBlacklisted = errors.New("token is blacklisted")

	// ErrNotMatured is returned when withdrawing before the lock period
	// has expired and without the goal-reached assertion.
	ErrNotMatured = errors.New("the lock period has not yet expired and the goal has not been reached")

	// ErrLockNotExpired is returned by extend and delete before the lock
	// period has expired.
	ErrLockNotExpired = errors.New("the lock period has not yet expired")

	// ErrLockExpired is returned when adding to a lock whose period has
	// already elapsed; a matured lock should be withdrawn, not topped up.
	ErrLockExpired = errors.New("the lock period has already expired")

	// ErrAlreadyWithdrawn is returned when a fully-withdrawn sub-vault is
	// used as a withdrawal source or a value destination.
	ErrAlreadyWithdrawn = errors.New("sub-vault has already been fully withdrawn")

	// ErrNotFullyWithdrawn is returned when deleting a sub-vault that
	// still holds value.
	ErrNotFullyWithdrawn = errors.New("sub-vault has not been fully withdrawn")

	// ErrDestinationMatured is returned when transferring into a lock
	// whose period has already elapsed.
	ErrDestinationMatured = errors.New("destination lock has already matured")

	// ErrInsufficientBalance is the sentinel matched by
	// InsufficientBalanceError.
	ErrInsufficientBalance = errors.New("not enough to withdraw")

	// ErrTokenMismatch is the sentinel matched by TokenMismatchError.
	ErrTokenMismatch = errors.New("token mismatch between transfer endpoints")
)

// InsufficientBalanceError reports a requested amount exceeding the held
// balance, carrying the token identity for diagnostics.
type InsufficientBalanceError struct {
	Token     common.Address
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("not enough to withdraw: token %s, requested %s, available %s",
		e.Token, e.Requested, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// TokenMismatchError reports an inter-vault transfer between sub-vaults
// holding different assets.
type TokenMismatchError struct {
	SourceToken      common.Address
	DestinationToken common.Address
}

func (e *TokenMismatchError) Error() string {
	return fmt.Sprintf("token mismatch between transfer endpoints: source %s, destination %s",
		e.SourceToken, e.DestinationToken)
}

func (e *TokenMismatchError) Unwrap() error {
	return ErrTokenMismatch
}
