package reconcile

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/models"
	"github.com/shopspring/decimal"
)

// lockKey identifies one sub-vault slot across the transaction log.
type lockKey struct {
	owner   common.Address
	vaultID uint64
	assetID int
}

type lockState struct {
	token       common.Address
	title       string
	amount      decimal.Decimal
	lockEndTime time.Time
}

// MaturedLocks replays the transaction log and returns a LockMatured event
// for every slot whose lock period has elapsed while value is still held.
//
// The projection is best-effort: extensions and deletions leave no log
// entries, so a recently extended or compacted slot can produce a stale
// notice. Consumers treat these as nudges, not state.
func MaturedLocks(records []models.TransactionRecord, now time.Time) []models.Event {
	sorted := make([]models.TransactionRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	locks := make(map[lockKey]*lockState)
	for _, rec := range sorted {
		key := lockKey{owner: rec.Owner, vaultID: rec.VaultID, assetID: rec.AssetID}
		state, ok := locks[key]
		if !ok {
			state = &lockState{amount: decimal.Zero}
			locks[key] = state
		}

		switch rec.Op {
		case models.OpLock:
			state.token = rec.Token
			state.title = rec.Title
			state.amount = rec.Amount
			state.lockEndTime = rec.LockEndTime
		case models.OpAdd, models.OpTransferIn:
			state.amount = state.amount.Add(rec.Amount)
		case models.OpWithdraw, models.OpTransferOut:
			state.amount = state.amount.Sub(rec.Amount)
		}
	}

	var matured []models.Event
	for key, state := range locks {
		if state.amount.IsPositive() && !now.Before(state.lockEndTime) {
			matured = append(matured, models.Event{
				Type:        models.EventLockMatured,
				Owner:       key.owner,
				Token:       state.token,
				Amount:      state.amount,
				Title:       state.title,
				VaultID:     key.vaultID,
				AssetID:     key.assetID,
				LockEndTime: state.lockEndTime,
				Timestamp:   now,
			})
		}
	}

	sort.Slice(matured, func(i, j int) bool {
		if matured[i].Owner != matured[j].Owner {
			return matured[i].Owner.Hex() < matured[j].Owner.Hex()
		}
		if matured[i].VaultID != matured[j].VaultID {
			return matured[i].VaultID < matured[j].VaultID
		}
		return matured[i].AssetID < matured[j].AssetID
	})
	return matured
}
