package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/ledger"
	"github.com/fvkry/custody/pkg/models"
	"github.com/fvkry/custody/pkg/query"
	"github.com/fvkry/custody/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x1111111111111111111111111111111111111111")
	other = common.HexToAddress("0x2222222222222222222222222222222222222222")
	usdc  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newFacade(t *testing.T) *query.Facade {
	t.Helper()
	return query.NewFacade(ledger.NewStore(0), storage.NewMemoryRecordStore())
}

func TestSubVaults(t *testing.T) {
	f := newFacade(t)

	_, err := f.Ledger.Append(owner, 1, models.SubVault{
		Token:       models.NativeToken,
		IsNative:    true,
		Amount:      decimal.NewFromInt(100),
		Title:       "savings",
		LockEndTime: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	t.Run("Lists Owner Vault", func(t *testing.T) {
		subVaults, err := f.SubVaults(owner, 1)
		require.NoError(t, err)
		require.Len(t, subVaults, 1)
		assert.Equal(t, "savings", subVaults[0].Title)
	})

	t.Run("Empty Vault Lists Empty", func(t *testing.T) {
		subVaults, err := f.SubVaults(owner, 2)
		require.NoError(t, err)
		assert.Empty(t, subVaults)
	})

	t.Run("Other Owner Sees Nothing", func(t *testing.T) {
		subVaults, err := f.SubVaults(other, 1)
		require.NoError(t, err)
		assert.Empty(t, subVaults)
	})

	t.Run("Vault Zero Invalid", func(t *testing.T) {
		_, err := f.SubVaults(owner, 0)
		assert.ErrorIs(t, err, ledger.ErrInvalidVaultID)
	})
}

func TestTransactionRecords(t *testing.T) {
	ctx := context.Background()
	f := newFacade(t)

	err := f.Records.AppendRecord(ctx, &models.TransactionRecord{
		Owner:     owner,
		VaultID:   1,
		Op:        models.OpLock,
		Token:     models.NativeToken,
		Amount:    decimal.NewFromInt(100),
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	t.Run("Lists Vault Log", func(t *testing.T) {
		records, err := f.TransactionRecords(ctx, owner, 1)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, models.OpLock, records[0].Op)
	})

	t.Run("Scoped To Owner", func(t *testing.T) {
		records, err := f.TransactionRecords(ctx, other, 1)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Vault Zero Invalid", func(t *testing.T) {
		_, err := f.TransactionRecords(ctx, owner, 0)
		assert.ErrorIs(t, err, ledger.ErrInvalidVaultID)
	})
}

func TestCustodyBalance(t *testing.T) {
	f := newFacade(t)

	_, err := f.Ledger.Append(owner, 1, models.SubVault{
		Token: models.NativeToken, IsNative: true, Amount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	_, err = f.Ledger.Append(other, 3, models.SubVault{
		Token: models.NativeToken, IsNative: true, Amount: decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	_, err = f.Ledger.Append(owner, 1, models.SubVault{
		Token: usdc, Amount: decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	assert.True(t, f.CustodyBalance(models.NativeToken).Equal(decimal.NewFromInt(140)))
	assert.True(t, f.CustodyBalance(usdc).Equal(decimal.NewFromInt(500)))
}
