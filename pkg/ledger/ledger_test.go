package ledger_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/ledger"
	"github.com/fvkry/custody/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newSubVault(title string, amount int64) models.SubVault {
	return models.SubVault{
		Token:       models.NativeToken,
		IsNative:    true,
		Amount:      decimal.NewFromInt(amount),
		Title:       title,
		LockEndTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAppend(t *testing.T) {
	t.Run("Assigns Sequential Asset IDs", func(t *testing.T) {
		s := ledger.NewStore(0)

		first, err := s.Append(owner, 1, newSubVault("a", 1))
		require.NoError(t, err)
		second, err := s.Append(owner, 1, newSubVault("b", 2))
		require.NoError(t, err)

		assert.Equal(t, 0, first)
		assert.Equal(t, 1, second)
	})

	t.Run("Vault ID Zero Rejected", func(t *testing.T) {
		s := ledger.NewStore(0)

		_, err := s.Append(owner, 0, newSubVault("a", 1))

		assert.ErrorIs(t, err, ledger.ErrInvalidVaultID)
	})

	t.Run("Cap Enforced", func(t *testing.T) {
		s := ledger.NewStore(2)

		_, err := s.Append(owner, 1, newSubVault("a", 1))
		require.NoError(t, err)
		_, err = s.Append(owner, 1, newSubVault("b", 1))
		require.NoError(t, err)
		_, err = s.Append(owner, 1, newSubVault("c", 1))

		assert.ErrorIs(t, err, ledger.ErrVaultFull)
	})
}

func TestGetUpdate(t *testing.T) {
	t.Run("Out Of Range", func(t *testing.T) {
		s := ledger.NewStore(0)
		_, err := s.Append(owner, 1, newSubVault("a", 1))
		require.NoError(t, err)

		_, err = s.Get(owner, 1, 1)
		assert.ErrorIs(t, err, ledger.ErrInvalidAssetID)

		_, err = s.Get(owner, 1, -1)
		assert.ErrorIs(t, err, ledger.ErrInvalidAssetID)
	})

	t.Run("Update Applies In Place", func(t *testing.T) {
		s := ledger.NewStore(0)
		_, err := s.Append(owner, 1, newSubVault("a", 10))
		require.NoError(t, err)

		err = s.Update(owner, 1, 0, func(sv *models.SubVault) error {
			sv.Amount = sv.Amount.Sub(decimal.NewFromInt(4))
			return nil
		})
		require.NoError(t, err)

		sv, err := s.Get(owner, 1, 0)
		require.NoError(t, err)
		assert.True(t, sv.Amount.Equal(decimal.NewFromInt(6)))
	})

	t.Run("Update Error Leaves State", func(t *testing.T) {
		s := ledger.NewStore(0)
		_, err := s.Append(owner, 1, newSubVault("a", 10))
		require.NoError(t, err)

		wantErr := assert.AnError
		err = s.Update(owner, 1, 0, func(sv *models.SubVault) error {
			sv.Amount = decimal.Zero
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)

		sv, err := s.Get(owner, 1, 0)
		require.NoError(t, err)
		assert.True(t, sv.Amount.Equal(decimal.NewFromInt(10)))
	})
}

func TestRemove(t *testing.T) {
	t.Run("Swap With Last", func(t *testing.T) {
		s := ledger.NewStore(0)
		for _, title := range []string{"a", "b", "c"} {
			_, err := s.Append(owner, 1, newSubVault(title, 1))
			require.NoError(t, err)
		}

		removed, err := s.Remove(owner, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, "a", removed.Title)

		list, err := s.List(owner, 1)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "c", list[0].Title)
		assert.Equal(t, 0, list[0].AssetID)
		assert.Equal(t, "b", list[1].Title)
		assert.Equal(t, 1, list[1].AssetID)
	})

	t.Run("Remove Tail", func(t *testing.T) {
		s := ledger.NewStore(0)
		for _, title := range []string{"a", "b"} {
			_, err := s.Append(owner, 1, newSubVault(title, 1))
			require.NoError(t, err)
		}

		removed, err := s.Remove(owner, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, "b", removed.Title)

		list, err := s.List(owner, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "a", list[0].Title)
	})

	t.Run("Slot Reuse After Removal", func(t *testing.T) {
		s := ledger.NewStore(2)
		_, err := s.Append(owner, 1, newSubVault("a", 1))
		require.NoError(t, err)
		_, err = s.Append(owner, 1, newSubVault("b", 1))
		require.NoError(t, err)

		_, err = s.Remove(owner, 1, 0)
		require.NoError(t, err)

		id, err := s.Append(owner, 1, newSubVault("c", 1))
		require.NoError(t, err)
		assert.Equal(t, 1, id)
	})
}

func TestTotalBalance(t *testing.T) {
	s := ledger.NewStore(0)
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")

	native := newSubVault("native", 5)
	_, err := s.Append(owner, 1, native)
	require.NoError(t, err)
	_, err = s.Append(other, 7, newSubVault("native-2", 10))
	require.NoError(t, err)

	tokenSV := newSubVault("tokens", 42)
	tokenSV.Token = token
	tokenSV.IsNative = false
	_, err = s.Append(owner, 2, tokenSV)
	require.NoError(t, err)

	assert.True(t, s.TotalBalance(models.NativeToken).Equal(decimal.NewFromInt(15)))
	assert.True(t, s.TotalBalance(token).Equal(decimal.NewFromInt(42)))
}

func TestListEmptyVault(t *testing.T) {
	s := ledger.NewStore(0)

	list, err := s.List(owner, 1)

	require.NoError(t, err)
	assert.Empty(t, list)
}
