package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/events"
	"github.com/fvkry/custody/pkg/gate"
	"github.com/fvkry/custody/pkg/ledger"
	"github.com/fvkry/custody/pkg/models"
	"github.com/fvkry/custody/pkg/storage"
	"github.com/fvkry/custody/pkg/transport"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine is the vault state machine. It validates requests against the
// ledger and the access gate, settles ledger state, and only then invokes the
// asset transport, so a re-entrant transport call can never observe
// half-applied state.
//
// Every state-mutating operation on an owner runs under that owner's mutex:
// validation, mutation and the external transfer form one critical section.
type Engine struct {
	ledger    *ledger.Store
	gate      gate.AdminGate
	transport transport.AssetTransport
	records   storage.RecordStore
	publisher events.Publisher
	logger    *slog.Logger

	// Now is the single clock read per operation. Overridable in tests.
	Now func() time.Time

	ownerLocks sync.Map // common.Address -> *sync.Mutex
}

// New creates an engine over the given collaborators.
func New(l *ledger.Store, g gate.AdminGate, t transport.AssetTransport, r storage.RecordStore, p events.Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		ledger:    l,
		gate:      g,
		transport: t,
		records:   r,
		publisher: p,
		logger:    logger,
		Now:       time.Now,
	}
}

// Ledger exposes the underlying store for read-only projections.
func (e *Engine) Ledger() *ledger.Store {
	return e.ledger
}

// lockOwner serializes all mutating operations for one owner. Returns the
// unlock func.
func (e *Engine) lockOwner(owner common.Address) func() {
	v, _ := e.ownerLocks.LoadOrStore(owner, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Lock creates a new sub-vault holding amount of the given asset under
// (owner, vaultID), gated until now + lockPeriod. For tokens the value is
// pulled from the owner's pre-authorized allowance; if the pull fails no
// state change is retained.
func (e *Engine) Lock(ctx context.Context, owner common.Address, vaultID uint64, lockPeriod time.Duration, title string, asset models.Asset, amount decimal.Decimal) (*models.SubVault, error) {
	if e.gate.IsPaused() {
		return nil, ErrPaused
	}
	if vaultID == 0 {
		return nil, ledger.ErrInvalidVaultID
	}
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if lockPeriod <= 0 {
		return nil, ErrNonPositiveLockPeriod
	}
	if !asset.Native {
		if asset.Token == models.NativeToken {
			return nil, ErrZeroTokenAddress
		}
		if e.gate.IsBlacklisted(asset.Token) {
			return nil, ErrTokenBlacklisted
		}
	}

	unlock := e.lockOwner(owner)
	defer unlock()

	count, err := e.ledger.Count(owner, vaultID)
	if err != nil {
		return nil, err
	}
	if count >= e.ledger.MaxSubVaults() {
		return nil, ledger.ErrVaultFull
	}

	// Value comes in before the sub-vault exists; a failed pull leaves the
	// ledger untouched.
	if err := e.transport.PullIn(ctx, asset.Token, owner, amount); err != nil {
		return nil, fmt.Errorf("asset transport pull failed: %w", err)
	}

	now := e.Now()
	sv := models.SubVault{
		Token:       asset.Token,
		IsNative:    asset.Native,
		Amount:      amount,
		Title:       title,
		LockEndTime: now.Add(lockPeriod),
	}
	assetID, err := e.ledger.Append(owner, vaultID, sv)
	if err != nil {
		// Cap and vault id were validated under the owner mutex, so
		// this is unreachable; return the pulled value regardless.
		if pushErr := e.transport.PushOut(ctx, asset.Token, owner, amount); pushErr != nil {
			e.logger.Error("failed to return pulled value after append failure",
				"owner", owner, "token", asset.Token, "error", pushErr)
		}
		return nil, err
	}
	sv.AssetID = assetID

	e.appendRecord(ctx, &models.TransactionRecord{
		Owner:       owner,
		VaultID:     vaultID,
		AssetID:     assetID,
		Op:          models.OpLock,
		Token:       sv.Token,
		Amount:      amount,
		Title:       title,
		LockEndTime: sv.LockEndTime,
		Timestamp:   now,
	})
	e.publish(ctx, models.Event{
		Type:        models.EventAssetLocked,
		Owner:       owner,
		Token:       sv.Token,
		Amount:      amount,
		Title:       title,
		VaultID:     vaultID,
		AssetID:     assetID,
		LockEndTime: sv.LockEndTime,
		Timestamp:   now,
	})
	return &sv, nil
}

// AddToLocked pulls additionalAmount into an existing, not-yet-matured lock.
// Adding after expiry is rejected: a matured lock should be withdrawn or
// explicitly extended, not topped up.
func (e *Engine) AddToLocked(ctx context.Context, owner common.Address, vaultID uint64, assetID int, additionalAmount decimal.Decimal) (*models.SubVault, error) {
	if e.gate.IsPaused() {
		return nil, ErrPaused
	}
	if !additionalAmount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	unlock := e.lockOwner(owner)
	defer unlock()

	sv, err := e.ledger.Get(owner, vaultID, assetID)
	if err != nil {
		return nil, err
	}
	if !sv.IsNative && e.gate.IsBlacklisted(sv.Token) {
		return nil, ErrTokenBlacklisted
	}
	if sv.Withdrawn {
		return nil, ErrAlreadyWithdrawn
	}
	now := e.Now()
	if sv.Matured(now) {
		return nil, ErrLockExpired
	}

	if err := e.transport.PullIn(ctx, sv.Token, owner, additionalAmount); err != nil {
		return nil, fmt.Errorf("asset transport pull failed: %w", err)
	}

	err = e.ledger.Update(owner, vaultID, assetID, func(cur *models.SubVault) error {
		cur.Amount = cur.Amount.Add(additionalAmount)
		return nil
	})
	if err != nil {
		if pushErr := e.transport.PushOut(ctx, sv.Token, owner, additionalAmount); pushErr != nil {
			e.logger.Error("failed to return pulled value after update failure",
				"owner", owner, "token", sv.Token, "error", pushErr)
		}
		return nil, err
	}
	sv.Amount = sv.Amount.Add(additionalAmount)

	e.appendRecord(ctx, &models.TransactionRecord{
		Owner:       owner,
		VaultID:     vaultID,
		AssetID:     assetID,
		Op:          models.OpAdd,
		Token:       sv.Token,
		Amount:      additionalAmount,
		Title:       sv.Title,
		LockEndTime: sv.LockEndTime,
		Timestamp:   now,
	})
	e.publish(ctx, models.Event{
		Type:      models.EventAssetAdded,
		Owner:     owner,
		Token:     sv.Token,
		Amount:    additionalAmount,
		Title:     sv.Title,
		VaultID:   vaultID,
		AssetID:   assetID,
		Timestamp: now,
	})
	return &sv, nil
}

// Withdraw releases amount from a sub-vault to its owner. Release requires
// either lock maturity or the caller-asserted goalReached flag; the engine
// trusts that flag and does not verify any goal itself. A partial withdrawal
// leaves the sub-vault active; withdrawing the full balance marks it
// withdrawn.
func (e *Engine) Withdraw(ctx context.Context, owner common.Address, vaultID uint64, assetID int, amount decimal.Decimal, goalReached bool) (*models.SubVault, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}

	unlock := e.lockOwner(owner)
	defer unlock()

	sv, err := e.ledger.Get(owner, vaultID, assetID)
	if err != nil {
		return nil, err
	}
	if sv.Withdrawn {
		return nil, ErrAlreadyWithdrawn
	}
	now := e.Now()
	if !sv.Matured(now) && !goalReached {
		return nil, ErrNotMatured
	}
	if amount.GreaterThan(sv.Amount) {
		return nil, &InsufficientBalanceError{Token: sv.Token, Requested: amount, Available: sv.Amount}
	}

	// Settle ledger state before the external call; a re-entrant transport
	// cannot pass the balance check twice.
	fullyWithdrawn := amount.Equal(sv.Amount)
	err = e.ledger.Update(owner, vaultID, assetID, func(cur *models.SubVault) error {
		cur.Amount = cur.Amount.Sub(amount)
		cur.Withdrawn = fullyWithdrawn
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.transport.PushOut(ctx, sv.Token, owner, amount); err != nil {
		// The whole operation aborts: put the ledger back the way it
		// was. Still inside the owner's critical section, so no other
		// operation observes the intermediate state.
		revertErr := e.ledger.Update(owner, vaultID, assetID, func(cur *models.SubVault) error {
			cur.Amount = cur.Amount.Add(amount)
			cur.Withdrawn = false
			return nil
		})
		if revertErr != nil {
			e.logger.Error("failed to revert withdrawal after transport failure",
				"owner", owner, "vault_id", vaultID, "asset_id", assetID, "error", revertErr)
		}
		return nil, fmt.Errorf("asset transport push failed: %w", err)
	}

	sv.Amount = sv.Amount.Sub(amount)
	sv.Withdrawn = fullyWithdrawn

	e.appendRecord(ctx, &models.TransactionRecord{
		Owner:       owner,
		VaultID:     vaultID,
		AssetID:     assetID,
		Op:          models.OpWithdraw,
		Token:       sv.Token,
		Amount:      amount,
		Title:       sv.Title,
		LockEndTime: sv.LockEndTime,
		Timestamp:   now,
	})
	e.publish(ctx, models.Event{
		Type:      models.EventAssetWithdrawn,
		Owner:     owner,
		Token:     sv.Token,
		Amount:    amount,
		Title:     sv.Title,
		VaultID:   vaultID,
		AssetID:   assetID,
		Timestamp: now,
	})
	return &sv, nil
}

// Extend re-arms a matured lock for another extensionPeriod from now.
// Extension before expiry is rejected so maturity cannot be deferred while
// the lock is still active.
func (e *Engine) Extend(ctx context.Context, owner common.Address, vaultID uint64, assetID int, extensionPeriod time.Duration) (*models.SubVault, error) {
	if extensionPeriod <= 0 {
		return nil, ErrNonPositiveExtension
	}

	unlock := e.lockOwner(owner)
	defer unlock()

	sv, err := e.ledger.Get(owner, vaultID, assetID)
	if err != nil {
		return nil, err
	}
	now := e.Now()
	if !sv.Matured(now) {
		return nil, ErrLockNotExpired
	}

	newEnd := now.Add(extensionPeriod)
	err = e.ledger.Update(owner, vaultID, assetID, func(cur *models.SubVault) error {
		cur.LockEndTime = newEnd
		return nil
	})
	if err != nil {
		return nil, err
	}
	sv.LockEndTime = newEnd

	e.publish(ctx, models.Event{
		Type:        models.EventLockPeriodExtended,
		Owner:       owner,
		Token:       sv.Token,
		Amount:      sv.Amount,
		Title:       sv.Title,
		VaultID:     vaultID,
		AssetID:     assetID,
		LockEndTime: newEnd,
		Timestamp:   now,
	})
	return &sv, nil
}

// Rename overwrites the sub-vault's display title.
func (e *Engine) Rename(ctx context.Context, owner common.Address, vaultID uint64, assetID int, newTitle string) (*models.SubVault, error) {
	unlock := e.lockOwner(owner)
	defer unlock()

	err := e.ledger.Update(owner, vaultID, assetID, func(cur *models.SubVault) error {
		cur.Title = newTitle
		return nil
	})
	if err != nil {
		return nil, err
	}
	sv, err := e.ledger.Get(owner, vaultID, assetID)
	if err != nil {
		return nil, err
	}

	e.publish(ctx, models.Event{
		Type:      models.EventRenameVault,
		Owner:     owner,
		Token:     sv.Token,
		Title:     newTitle,
		VaultID:   vaultID,
		AssetID:   assetID,
		Timestamp: e.Now(),
	})
	return &sv, nil
}

// Delete removes a fully-withdrawn, matured sub-vault from the vault's
// sequence. Deletion compacts by swap-with-last, so surviving sub-vaults may
// change asset id; callers must re-query indices afterwards.
func (e *Engine) Delete(ctx context.Context, owner common.Address, vaultID uint64, assetID int) error {
	unlock := e.lockOwner(owner)
	defer unlock()

	sv, err := e.ledger.Get(owner, vaultID, assetID)
	if err != nil {
		return err
	}
	if !sv.Withdrawn {
		return ErrNotFullyWithdrawn
	}
	now := e.Now()
	if !sv.Matured(now) {
		return ErrLockNotExpired
	}

	if _, err := e.ledger.Remove(owner, vaultID, assetID); err != nil {
		return err
	}

	e.publish(ctx, models.Event{
		Type:      models.EventVaultDeleted,
		Owner:     owner,
		Token:     sv.Token,
		Title:     sv.Title,
		VaultID:   vaultID,
		AssetID:   assetID,
		Timestamp: now,
	})
	return nil
}

// TransferBetween moves amount from one sub-vault to another of the same
// asset without value leaving custody. The destination must not have matured
// yet; the source's expiry is deliberately not checked, so a matured lock may
// feed a still-active one.
func (e *Engine) TransferBetween(ctx context.Context, owner common.Address, amount decimal.Decimal, fromVaultID uint64, fromAssetID int, toVaultID uint64, toAssetID int) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}

	unlock := e.lockOwner(owner)
	defer unlock()

	src, err := e.ledger.Get(owner, fromVaultID, fromAssetID)
	if err != nil {
		return err
	}
	dst, err := e.ledger.Get(owner, toVaultID, toAssetID)
	if err != nil {
		return err
	}
	if src.Token != dst.Token || src.IsNative != dst.IsNative {
		return &TokenMismatchError{SourceToken: src.Token, DestinationToken: dst.Token}
	}
	if dst.Withdrawn {
		return ErrAlreadyWithdrawn
	}
	now := e.Now()
	if dst.Matured(now) {
		return ErrDestinationMatured
	}
	if amount.GreaterThan(src.Amount) {
		return &InsufficientBalanceError{Token: src.Token, Requested: amount, Available: src.Amount}
	}

	err = e.ledger.Update(owner, fromVaultID, fromAssetID, func(cur *models.SubVault) error {
		cur.Amount = cur.Amount.Sub(amount)
		return nil
	})
	if err != nil {
		return err
	}
	err = e.ledger.Update(owner, toVaultID, toAssetID, func(cur *models.SubVault) error {
		cur.Amount = cur.Amount.Add(amount)
		return nil
	})
	if err != nil {
		// Both slots were validated above; restore the source if the
		// destination write still failed.
		revertErr := e.ledger.Update(owner, fromVaultID, fromAssetID, func(cur *models.SubVault) error {
			cur.Amount = cur.Amount.Add(amount)
			return nil
		})
		if revertErr != nil {
			e.logger.Error("failed to revert transfer after destination failure",
				"owner", owner, "from_vault_id", fromVaultID, "error", revertErr)
		}
		return err
	}

	e.appendRecord(ctx, &models.TransactionRecord{
		Owner:       owner,
		VaultID:     fromVaultID,
		AssetID:     fromAssetID,
		Op:          models.OpTransferOut,
		Token:       src.Token,
		Amount:      amount,
		Title:       src.Title,
		LockEndTime: src.LockEndTime,
		Timestamp:   now,
	})
	e.appendRecord(ctx, &models.TransactionRecord{
		Owner:       owner,
		VaultID:     toVaultID,
		AssetID:     toAssetID,
		Op:          models.OpTransferIn,
		Token:       dst.Token,
		Amount:      amount,
		Title:       dst.Title,
		LockEndTime: dst.LockEndTime,
		Timestamp:   now,
	})
	e.publish(ctx, models.Event{
		Type:      models.EventTransferAsset,
		Owner:     owner,
		Token:     src.Token,
		Amount:    amount,
		Title:     src.Title,
		VaultID:   fromVaultID,
		AssetID:   fromAssetID,
		ToVaultID: toVaultID,
		ToAssetID: toAssetID,
		Timestamp: now,
	})
	return nil
}

// appendRecord persists a transaction log entry. Log durability failures do
// not unwind already-settled ledger state; they are surfaced in the logs.
func (e *Engine) appendRecord(ctx context.Context, rec *models.TransactionRecord) {
	rec.ID = uuid.New()
	if err := e.records.AppendRecord(ctx, rec); err != nil {
		e.logger.Error("failed to append transaction record",
			"owner", rec.Owner, "vault_id", rec.VaultID, "op", rec.Op, "error", err)
	}
}

// publish emits a domain event. Publish failures are logged, not propagated;
// the state transition has already committed.
func (e *Engine) publish(ctx context.Context, ev models.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.Error("failed to publish event", "type", ev.Type, "owner", ev.Owner, "error", err)
	}
}
