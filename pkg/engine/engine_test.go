package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/engine"
	"github.com/fvkry/custody/pkg/gate"
	"github.com/fvkry/custody/pkg/ledger"
	"github.com/fvkry/custody/pkg/models"
	"github.com/fvkry/custody/pkg/storage"
	"github.com/fvkry/custody/pkg/transport/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	adminAddr = common.HexToAddress("0x00000000000000000000000000000000000000AD")
	ownerAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// capturePublisher collects emitted events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) last() (models.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return models.Event{}, false
	}
	return p.events[len(p.events)-1], true
}

type fixture struct {
	engine    *engine.Engine
	transport *mocks.AssetTransport
	gate      *gate.Gate
	records   *storage.MemoryRecordStore
	publisher *capturePublisher
	now       time.Time
}

func newFixture(t *testing.T, maxSubVaults int) *fixture {
	t.Helper()

	f := &fixture{
		transport: new(mocks.AssetTransport),
		gate:      gate.New(adminAddr),
		records:   storage.NewMemoryRecordStore(),
		publisher: &capturePublisher{},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = engine.New(ledger.NewStore(maxSubVaults), f.gate, f.transport, f.records, f.publisher, logger)
	f.engine.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) allowTransfers() {
	f.transport.On("PullIn", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.transport.On("PushOut", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

const year = 365 * 24 * time.Hour

func TestLock(t *testing.T) {
	amount := decimal.NewFromInt(1)

	t.Run("Native Success", func(t *testing.T) {
		f := newFixture(t, 0)
		f.transport.On("PullIn", mock.Anything, models.NativeToken, ownerAddr, amount).Return(nil)

		sv, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "My ETH Lock", models.NativeAsset(), amount)

		require.NoError(t, err)
		assert.Equal(t, 0, sv.AssetID)
		assert.True(t, sv.IsNative)
		assert.True(t, sv.Amount.Equal(amount))
		assert.False(t, sv.Withdrawn)
		assert.Equal(t, f.now.Add(year), sv.LockEndTime)

		ev, ok := f.publisher.last()
		require.True(t, ok)
		assert.Equal(t, models.EventAssetLocked, ev.Type)
		assert.Equal(t, models.NativeToken, ev.Token)
		assert.Equal(t, "My ETH Lock", ev.Title)

		recs, err := f.records.ListByVault(context.Background(), ownerAddr, 1)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, models.OpLock, recs[0].Op)
		f.transport.AssertExpectations(t)
	})

	t.Run("Token Success", func(t *testing.T) {
		f := newFixture(t, 0)
		f.transport.On("PullIn", mock.Anything, tokenAddr, ownerAddr, amount).Return(nil)

		sv, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "My Token Lock", models.TokenAsset(tokenAddr), amount)

		require.NoError(t, err)
		assert.False(t, sv.IsNative)
		assert.Equal(t, tokenAddr, sv.Token)
		f.transport.AssertExpectations(t)
	})

	t.Run("Zero Amount", func(t *testing.T) {
		f := newFixture(t, 0)

		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.NativeAsset(), decimal.Zero)

		assert.ErrorIs(t, err, engine.ErrNonPositiveAmount)
		f.transport.AssertNotCalled(t, "PullIn", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Zero Vault ID", func(t *testing.T) {
		f := newFixture(t, 0)

		_, err := f.engine.Lock(context.Background(), ownerAddr, 0, year, "x", models.NativeAsset(), decimal.NewFromInt(1))

		assert.ErrorIs(t, err, ledger.ErrInvalidVaultID)
	})

	t.Run("Non-Positive Lock Period", func(t *testing.T) {
		f := newFixture(t, 0)

		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, 0, "x", models.NativeAsset(), decimal.NewFromInt(1))

		assert.ErrorIs(t, err, engine.ErrNonPositiveLockPeriod)
	})

	t.Run("Vault Full", func(t *testing.T) {
		f := newFixture(t, 2)
		f.allowTransfers()

		for i := 0; i < 2; i++ {
			_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.NativeAsset(), amount)
			require.NoError(t, err)
		}
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.NativeAsset(), amount)

		assert.ErrorIs(t, err, ledger.ErrVaultFull)
	})

	t.Run("Paused", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, f.gate.Pause())

		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.NativeAsset(), amount)

		assert.ErrorIs(t, err, engine.ErrPaused)
	})

	t.Run("Blacklisted Token", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, f.gate.Blacklist(tokenAddr))

		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.TokenAsset(tokenAddr), amount)

		assert.ErrorIs(t, err, engine.ErrTokenBlacklisted)
	})

	t.Run("Zero Token Address", func(t *testing.T) {
		f := newFixture(t, 0)

		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.TokenAsset(common.Address{}), amount)

		assert.ErrorIs(t, err, engine.ErrZeroTokenAddress)
	})

	t.Run("Pull Failure Leaves No State", func(t *testing.T) {
		f := newFixture(t, 0)
		f.transport.On("PullIn", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("allowance exceeded"))

		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.TokenAsset(tokenAddr), amount)

		require.Error(t, err)
		locks, err := f.engine.Ledger().List(ownerAddr, 1)
		require.NoError(t, err)
		assert.Empty(t, locks)
	})
}

func TestAddToLocked(t *testing.T) {
	lockAmount := decimal.NewFromInt(100)
	addAmount := decimal.NewFromInt(50)

	t.Run("Before Expiry", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "My Token Lock", models.TokenAsset(tokenAddr), lockAmount)
		require.NoError(t, err)

		sv, err := f.engine.AddToLocked(context.Background(), ownerAddr, 1, 0, addAmount)

		require.NoError(t, err)
		assert.True(t, sv.Amount.Equal(decimal.NewFromInt(150)))

		ev, ok := f.publisher.last()
		require.True(t, ok)
		assert.Equal(t, models.EventAssetAdded, ev.Type)
	})

	t.Run("After Expiry", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.TokenAsset(tokenAddr), lockAmount)
		require.NoError(t, err)

		f.advance(year + time.Second)
		_, err = f.engine.AddToLocked(context.Background(), ownerAddr, 1, 0, addAmount)

		assert.ErrorIs(t, err, engine.ErrLockExpired)
	})

	t.Run("Unknown Asset ID", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.TokenAsset(tokenAddr), lockAmount)
		require.NoError(t, err)

		_, err = f.engine.AddToLocked(context.Background(), ownerAddr, 1, 5, addAmount)

		assert.ErrorIs(t, err, ledger.ErrInvalidAssetID)
	})

	t.Run("Blacklisted After Lock", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.TokenAsset(tokenAddr), lockAmount)
		require.NoError(t, err)
		require.NoError(t, f.gate.Blacklist(tokenAddr))

		_, err = f.engine.AddToLocked(context.Background(), ownerAddr, 1, 0, addAmount)

		assert.ErrorIs(t, err, engine.ErrTokenBlacklisted)
	})
}

func TestWithdraw(t *testing.T) {
	lockAmount := decimal.NewFromInt(1)

	lockOne := func(t *testing.T, f *fixture) {
		t.Helper()
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "My ETH Lock", models.NativeAsset(), lockAmount)
		require.NoError(t, err)
	}

	t.Run("Before Maturity Without Goal", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		lockOne(t, f)

		_, err := f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, lockAmount, false)

		assert.ErrorIs(t, err, engine.ErrNotMatured)
	})

	t.Run("After Maturity", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		lockOne(t, f)

		f.advance(year + time.Second)
		sv, err := f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, lockAmount, false)

		require.NoError(t, err)
		assert.True(t, sv.Amount.IsZero())
		assert.True(t, sv.Withdrawn)

		ev, ok := f.publisher.last()
		require.True(t, ok)
		assert.Equal(t, models.EventAssetWithdrawn, ev.Type)
	})

	t.Run("Goal Reached Early Release", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		lockOne(t, f)

		sv, err := f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, lockAmount, true)

		require.NoError(t, err)
		assert.True(t, sv.Withdrawn)
	})

	t.Run("Partial", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		lockOne(t, f)
		f.advance(year + time.Second)

		half := decimal.NewFromFloat(0.5)
		sv, err := f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, half, false)

		require.NoError(t, err)
		assert.True(t, sv.Amount.Equal(half))
		assert.False(t, sv.Withdrawn)

		// The remainder is still withdrawable.
		sv, err = f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, half, false)
		require.NoError(t, err)
		assert.True(t, sv.Withdrawn)
	})

	t.Run("Exceeds Balance", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		lockOne(t, f)
		f.advance(year + time.Second)

		_, err := f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, decimal.NewFromInt(2), false)

		assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
		var insufficientErr *engine.InsufficientBalanceError
		require.ErrorAs(t, err, &insufficientErr)
		assert.Equal(t, models.NativeToken, insufficientErr.Token)
	})

	t.Run("Already Withdrawn", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		lockOne(t, f)
		f.advance(year + time.Second)

		_, err := f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, lockAmount, false)
		require.NoError(t, err)

		_, err = f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, lockAmount, false)
		assert.ErrorIs(t, err, engine.ErrAlreadyWithdrawn)
	})

	t.Run("Push Failure Reverts State", func(t *testing.T) {
		f := newFixture(t, 0)
		f.transport.On("PullIn", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.transport.On("PushOut", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("transfer failed"))
		lockOne(t, f)
		f.advance(year + time.Second)

		_, err := f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, lockAmount, false)

		require.Error(t, err)
		sv, err := f.engine.Ledger().Get(ownerAddr, 1, 0)
		require.NoError(t, err)
		assert.True(t, sv.Amount.Equal(lockAmount))
		assert.False(t, sv.Withdrawn)
	})
}

func TestExtend(t *testing.T) {
	const initial = 30 * 24 * time.Hour
	const extension = 60 * 24 * time.Hour

	t.Run("After Expiry", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, initial, "Test Lock", models.NativeAsset(), decimal.NewFromInt(1))
		require.NoError(t, err)

		f.advance(initial + time.Second)
		sv, err := f.engine.Extend(context.Background(), ownerAddr, 1, 0, extension)

		require.NoError(t, err)
		assert.Equal(t, f.now.Add(extension), sv.LockEndTime)

		ev, ok := f.publisher.last()
		require.True(t, ok)
		assert.Equal(t, models.EventLockPeriodExtended, ev.Type)
		assert.Equal(t, sv.LockEndTime, ev.LockEndTime)
	})

	t.Run("Before Expiry", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, initial, "Test Lock", models.NativeAsset(), decimal.NewFromInt(1))
		require.NoError(t, err)

		_, err = f.engine.Extend(context.Background(), ownerAddr, 1, 0, extension)

		assert.ErrorIs(t, err, engine.ErrLockNotExpired)
	})

	t.Run("Non-Positive Extension", func(t *testing.T) {
		f := newFixture(t, 0)

		_, err := f.engine.Extend(context.Background(), ownerAddr, 1, 0, 0)

		assert.ErrorIs(t, err, engine.ErrNonPositiveExtension)
	})
}

func TestRename(t *testing.T) {
	f := newFixture(t, 0)
	f.allowTransfers()
	_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "Old Title", models.NativeAsset(), decimal.NewFromInt(1))
	require.NoError(t, err)

	sv, err := f.engine.Rename(context.Background(), ownerAddr, 1, 0, "New Title")

	require.NoError(t, err)
	assert.Equal(t, "New Title", sv.Title)

	ev, ok := f.publisher.last()
	require.True(t, ok)
	assert.Equal(t, models.EventRenameVault, ev.Type)
	assert.Equal(t, "New Title", ev.Title)
}

func TestDelete(t *testing.T) {
	amount := decimal.NewFromInt(1)

	t.Run("Requires Full Withdrawal", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.NativeAsset(), amount)
		require.NoError(t, err)
		f.advance(year + time.Second)

		err = f.engine.Delete(context.Background(), ownerAddr, 1, 0)

		assert.ErrorIs(t, err, engine.ErrNotFullyWithdrawn)
	})

	t.Run("Requires Maturity", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.NativeAsset(), amount)
		require.NoError(t, err)

		// Early release via goal, then attempt deletion before expiry.
		_, err = f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, amount, true)
		require.NoError(t, err)

		err = f.engine.Delete(context.Background(), ownerAddr, 1, 0)
		assert.ErrorIs(t, err, engine.ErrLockNotExpired)
	})

	t.Run("Swap With Last Compaction", func(t *testing.T) {
		f := newFixture(t, 0)
		f.allowTransfers()
		for _, title := range []string{"first", "second", "third"} {
			_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, title, models.NativeAsset(), amount)
			require.NoError(t, err)
		}
		f.advance(year + time.Second)

		_, err := f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, amount, false)
		require.NoError(t, err)
		require.NoError(t, f.engine.Delete(context.Background(), ownerAddr, 1, 0))

		locks, err := f.engine.Ledger().List(ownerAddr, 1)
		require.NoError(t, err)
		require.Len(t, locks, 2)
		// The former tail moved into the vacated slot and took its index.
		assert.Equal(t, "third", locks[0].Title)
		assert.Equal(t, 0, locks[0].AssetID)
		assert.Equal(t, "second", locks[1].Title)

		ev, ok := f.publisher.last()
		require.True(t, ok)
		assert.Equal(t, models.EventVaultDeleted, ev.Type)
	})
}

func TestTransferBetween(t *testing.T) {
	hundred := decimal.NewFromInt(100)

	// Lock 100 native in vault 1 (long period) and vault 2 (short period).
	setup := func(t *testing.T) *fixture {
		t.Helper()
		f := newFixture(t, 0)
		f.allowTransfers()
		_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "long", models.NativeAsset(), hundred)
		require.NoError(t, err)
		_, err = f.engine.Lock(context.Background(), ownerAddr, 2, 30*24*time.Hour, "short", models.NativeAsset(), hundred)
		require.NoError(t, err)
		return f
	}

	t.Run("Matured Source Into Active Destination", func(t *testing.T) {
		f := setup(t)
		f.advance(31 * 24 * time.Hour) // vault 2 matured, vault 1 still locked

		totalBefore := f.engine.Ledger().TotalBalance(models.NativeToken)
		err := f.engine.TransferBetween(context.Background(), ownerAddr, hundred, 2, 0, 1, 0)
		require.NoError(t, err)

		dst, err := f.engine.Ledger().Get(ownerAddr, 1, 0)
		require.NoError(t, err)
		src, err := f.engine.Ledger().Get(ownerAddr, 2, 0)
		require.NoError(t, err)
		assert.True(t, dst.Amount.Equal(decimal.NewFromInt(200)))
		assert.True(t, src.Amount.IsZero())
		assert.False(t, src.Withdrawn, "transfer-out to zero is not a withdrawal")

		// Value never left custody.
		assert.True(t, f.engine.Ledger().TotalBalance(models.NativeToken).Equal(totalBefore))

		ev, ok := f.publisher.last()
		require.True(t, ok)
		assert.Equal(t, models.EventTransferAsset, ev.Type)
		assert.Equal(t, uint64(2), ev.VaultID)
		assert.Equal(t, uint64(1), ev.ToVaultID)
	})

	t.Run("Destination Matured", func(t *testing.T) {
		f := setup(t)
		f.advance(year + time.Second) // both matured

		err := f.engine.TransferBetween(context.Background(), ownerAddr, hundred, 2, 0, 1, 0)

		assert.ErrorIs(t, err, engine.ErrDestinationMatured)
	})

	t.Run("Token Mismatch", func(t *testing.T) {
		f := setup(t)
		_, err := f.engine.Lock(context.Background(), ownerAddr, 3, year, "tokens", models.TokenAsset(tokenAddr), hundred)
		require.NoError(t, err)

		err = f.engine.TransferBetween(context.Background(), ownerAddr, hundred, 3, 0, 1, 0)

		assert.ErrorIs(t, err, engine.ErrTokenMismatch)
		var mismatchErr *engine.TokenMismatchError
		require.ErrorAs(t, err, &mismatchErr)
		assert.Equal(t, tokenAddr, mismatchErr.SourceToken)
		assert.Equal(t, models.NativeToken, mismatchErr.DestinationToken)
	})

	t.Run("Exceeds Source Balance", func(t *testing.T) {
		f := setup(t)
		f.advance(31 * 24 * time.Hour)

		err := f.engine.TransferBetween(context.Background(), ownerAddr, decimal.NewFromInt(101), 2, 0, 1, 0)

		assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
	})

	t.Run("Withdrawn Destination", func(t *testing.T) {
		f := setup(t)
		// Empty vault 1 early via goal-reached, then try to refill it by transfer.
		_, err := f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, hundred, true)
		require.NoError(t, err)

		err = f.engine.TransferBetween(context.Background(), ownerAddr, hundred, 2, 0, 1, 0)

		assert.ErrorIs(t, err, engine.ErrAlreadyWithdrawn)
	})

	t.Run("Invalid Source", func(t *testing.T) {
		f := setup(t)

		err := f.engine.TransferBetween(context.Background(), ownerAddr, hundred, 9, 0, 1, 0)

		assert.ErrorIs(t, err, ledger.ErrInvalidAssetID)
	})
}

// TestYearLockScenario walks the canonical flow: lock 1 native unit for a
// year, fail to withdraw early, succeed after maturity.
func TestYearLockScenario(t *testing.T) {
	f := newFixture(t, 0)
	f.allowTransfers()
	one := decimal.NewFromInt(1)

	_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "My ETH Lock", models.NativeAsset(), one)
	require.NoError(t, err)

	_, err = f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, one, false)
	require.ErrorIs(t, err, engine.ErrNotMatured)

	f.advance(year + time.Second)

	sv, err := f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, one, false)
	require.NoError(t, err)
	assert.True(t, sv.Withdrawn)
}

// TestConcurrentWithdrawals checks that two racing withdrawals can never both
// pass the balance check against a stale amount.
func TestConcurrentWithdrawals(t *testing.T) {
	f := newFixture(t, 0)
	f.allowTransfers()
	amount := decimal.NewFromInt(100)

	_, err := f.engine.Lock(context.Background(), ownerAddr, 1, year, "x", models.NativeAsset(), amount)
	require.NoError(t, err)
	f.advance(year + time.Second)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Withdraw(context.Background(), ownerAddr, 1, 0, amount, false)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one withdrawal may win")

	sv, err := f.engine.Ledger().Get(ownerAddr, 1, 0)
	require.NoError(t, err)
	assert.True(t, sv.Amount.IsZero())
	assert.True(t, sv.Withdrawn)
}
