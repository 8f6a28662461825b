package ledger

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/models"
	"github.com/shopspring/decimal"
)

// DefaultMaxSubVaults is the per-vault sub-vault cap used when no explicit
// limit is configured.
const DefaultMaxSubVaults = 50

// ErrInvalidVaultID is returned for vault id 0, which is reserved as the
// "no vault" sentinel and never a valid target.
var ErrInvalidVaultID = errors.New("invalid vault number")

// ErrInvalidAssetID is returned when an asset id does not index an existing
// sub-vault in the target vault.
var ErrInvalidAssetID = errors.New("invalid asset id")

// ErrVaultFull is returned when appending would exceed the sub-vault cap.
var ErrVaultFull = errors.New("vault is full")

// Store holds every owner's vaults and their sub-vault sequences. It is pure
// state: no side effects, no validation beyond id resolution and the cap.
//
// The internal mutex only guards map and slice structure. Operation-level
// atomicity (validate, mutate, external call as one unit) is the engine's
// responsibility via its per-owner serialization.
type Store struct {
	mu           sync.RWMutex
	maxSubVaults int
	vaults       map[common.Address]map[uint64][]models.SubVault
}

// NewStore creates an empty store. A non-positive maxSubVaults selects
// DefaultMaxSubVaults.
func NewStore(maxSubVaults int) *Store {
	if maxSubVaults <= 0 {
		maxSubVaults = DefaultMaxSubVaults
	}
	return &Store{
		maxSubVaults: maxSubVaults,
		vaults:       make(map[common.Address]map[uint64][]models.SubVault),
	}
}

// MaxSubVaults returns the per-vault cap.
func (s *Store) MaxSubVaults() int {
	return s.maxSubVaults
}

// Append adds a sub-vault to the end of the vault's sequence and returns its
// asset id. The sub-vault's AssetID field is overwritten with the assigned
// index.
func (s *Store) Append(owner common.Address, vaultID uint64, sv models.SubVault) (int, error) {
	if vaultID == 0 {
		return 0, ErrInvalidVaultID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byVault, ok := s.vaults[owner]
	if !ok {
		byVault = make(map[uint64][]models.SubVault)
		s.vaults[owner] = byVault
	}

	seq := byVault[vaultID]
	if len(seq) >= s.maxSubVaults {
		return 0, ErrVaultFull
	}

	sv.AssetID = len(seq)
	byVault[vaultID] = append(seq, sv)
	return sv.AssetID, nil
}

// Get returns a copy of the sub-vault at (owner, vaultID, assetID).
func (s *Store) Get(owner common.Address, vaultID uint64, assetID int) (models.SubVault, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq, err := s.sequence(owner, vaultID)
	if err != nil {
		return models.SubVault{}, err
	}
	if assetID < 0 || assetID >= len(seq) {
		return models.SubVault{}, ErrInvalidAssetID
	}
	return seq[assetID], nil
}

// Update applies fn to the sub-vault at (owner, vaultID, assetID) in place.
// If fn returns an error the sub-vault is left unchanged.
func (s *Store) Update(owner common.Address, vaultID uint64, assetID int, fn func(*models.SubVault) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.sequence(owner, vaultID)
	if err != nil {
		return err
	}
	if assetID < 0 || assetID >= len(seq) {
		return ErrInvalidAssetID
	}

	updated := seq[assetID]
	if err := fn(&updated); err != nil {
		return err
	}
	seq[assetID] = updated
	return nil
}

// Remove deletes the sub-vault at (owner, vaultID, assetID) by swapping the
// last entry into its slot and popping the tail. The surviving sub-vault that
// moved (if any) has its AssetID rewritten to the vacated slot, so callers
// must re-query indices after a deletion. Returns the removed sub-vault.
func (s *Store) Remove(owner common.Address, vaultID uint64, assetID int) (models.SubVault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.sequence(owner, vaultID)
	if err != nil {
		return models.SubVault{}, err
	}
	if assetID < 0 || assetID >= len(seq) {
		return models.SubVault{}, ErrInvalidAssetID
	}

	removed := seq[assetID]
	last := len(seq) - 1
	if assetID != last {
		seq[assetID] = seq[last]
		seq[assetID].AssetID = assetID
	}
	s.vaults[owner][vaultID] = seq[:last]
	return removed, nil
}

// List returns a copy of the vault's sub-vault sequence. A vault that has
// never been written to lists as empty rather than erroring.
func (s *Store) List(owner common.Address, vaultID uint64) ([]models.SubVault, error) {
	if vaultID == 0 {
		return nil, ErrInvalidVaultID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.vaults[owner][vaultID]
	out := make([]models.SubVault, len(seq))
	copy(out, seq)
	return out, nil
}

// Count returns the number of live sub-vaults in the vault.
func (s *Store) Count(owner common.Address, vaultID uint64) (int, error) {
	if vaultID == 0 {
		return 0, ErrInvalidVaultID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vaults[owner][vaultID]), nil
}

// TotalBalance sums the held amount of the given token (or native value for
// the sentinel address) across every owner and vault.
func (s *Store) TotalBalance(token common.Address) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, byVault := range s.vaults {
		for _, seq := range byVault {
			for i := range seq {
				if seq[i].Token == token {
					total = total.Add(seq[i].Amount)
				}
			}
		}
	}
	return total
}

// sequence resolves the sub-vault slice for (owner, vaultID). Callers must
// hold the mutex.
func (s *Store) sequence(owner common.Address, vaultID uint64) ([]models.SubVault, error) {
	if vaultID == 0 {
		return nil, ErrInvalidVaultID
	}
	byVault, ok := s.vaults[owner]
	if !ok {
		return nil, ErrInvalidAssetID
	}
	seq, ok := byVault[vaultID]
	if !ok || len(seq) == 0 {
		return nil, ErrInvalidAssetID
	}
	return seq, nil
}
