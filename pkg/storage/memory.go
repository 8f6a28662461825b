package storage

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/models"
)

// MemoryRecordStore is an in-process RecordStore for tests and single-node
// deployments without a DynamoDB backend.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records []models.TransactionRecord
}

// NewMemoryRecordStore creates an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

// Make sure we conform to the interface
var _ RecordStore = (*MemoryRecordStore)(nil)

// AppendRecord appends a copy of rec to the log.
func (s *MemoryRecordStore) AppendRecord(_ context.Context, rec *models.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

// ListByVault returns the records for (owner, vaultID) in append order.
func (s *MemoryRecordStore) ListByVault(_ context.Context, owner common.Address, vaultID uint64) ([]models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.TransactionRecord
	for _, rec := range s.records {
		if rec.Owner == owner && rec.VaultID == vaultID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListAll returns the whole log in append order.
func (s *MemoryRecordStore) ListAll(_ context.Context) ([]models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TransactionRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}
