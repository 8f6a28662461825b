package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/models"
)

// RecordStore is the durable home of the append-only transaction log. Entries
// are never mutated or deleted.
type RecordStore interface {
	// AppendRecord persists one log entry.
	AppendRecord(ctx context.Context, rec *models.TransactionRecord) error

	// ListByVault retrieves every record for (owner, vaultID) in append
	// order.
	ListByVault(ctx context.Context, owner common.Address, vaultID uint64) ([]models.TransactionRecord, error)

	// ListAll retrieves the whole log. Used by the reconciliation job to
	// rebuild lock state off-ledger; bounded by the log size, not by any
	// vault cap, so keep it off hot paths.
	ListAll(ctx context.Context) ([]models.TransactionRecord, error)
}
