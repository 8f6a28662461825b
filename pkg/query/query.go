package query

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/ledger"
	"github.com/fvkry/custody/pkg/models"
	"github.com/fvkry/custody/pkg/storage"
	"github.com/shopspring/decimal"
)

// Facade exposes read-only projections over the ledger and the transaction
// log. It never mutates state.
type Facade struct {
	Ledger  *ledger.Store
	Records storage.RecordStore
}

// NewFacade creates a Facade over the given stores.
func NewFacade(l *ledger.Store, r storage.RecordStore) *Facade {
	return &Facade{Ledger: l, Records: r}
}

// SubVaults lists the live sub-vaults of (owner, vaultID).
func (f *Facade) SubVaults(owner common.Address, vaultID uint64) ([]models.SubVault, error) {
	return f.Ledger.List(owner, vaultID)
}

// TransactionRecords lists the transaction log of (owner, vaultID) in append
// order.
func (f *Facade) TransactionRecords(ctx context.Context, owner common.Address, vaultID uint64) ([]models.TransactionRecord, error) {
	if vaultID == 0 {
		return nil, ledger.ErrInvalidVaultID
	}
	return f.Records.ListByVault(ctx, owner, vaultID)
}

// CustodyBalance sums the held amount of the given token (native for the
// sentinel address) across all owners and vaults.
func (f *Facade) CustodyBalance(token common.Address) decimal.Decimal {
	return f.Ledger.TotalBalance(token)
}
