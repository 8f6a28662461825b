package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NativeToken is the sentinel token address representing the chain's base
// currency. A sub-vault holding native value stores this in place of a real
// token contract address.
var NativeToken = common.Address{}

// Asset identifies what a sub-vault holds: either the native currency or a
// fungible token contract.
type Asset struct {
	Token  common.Address
	Native bool
}

// NativeAsset returns the asset identity of the base currency.
func NativeAsset() Asset {
	return Asset{Token: NativeToken, Native: true}
}

// TokenAsset returns the asset identity of a fungible token contract.
func TokenAsset(token common.Address) Asset {
	return Asset{Token: token, Native: false}
}

// SubVault is one time-gated balance entry ("lock") inside a vault.
// AssetID is its index in the vault's sequence; it is stable until a deletion
// compacts the sequence, after which trailing indices may shift.
type SubVault struct {
	AssetID     int             `json:"asset_id"`
	Token       common.Address  `json:"token"`
	IsNative    bool            `json:"is_native"`
	Amount      decimal.Decimal `json:"amount"`
	Title       string          `json:"title"`
	LockEndTime time.Time       `json:"lock_end_time"`
	Withdrawn   bool            `json:"withdrawn"`
}

// Matured reports whether the lock period has elapsed at the given instant.
func (sv *SubVault) Matured(now time.Time) bool {
	return !now.Before(sv.LockEndTime)
}

// RecordOp classifies a transaction record entry.
type RecordOp string

const (
	OpLock        RecordOp = "LOCK"
	OpAdd         RecordOp = "ADD"
	OpWithdraw    RecordOp = "WITHDRAW"
	OpTransferOut RecordOp = "TRANSFER_OUT"
	OpTransferIn  RecordOp = "TRANSFER_IN"
)

// TransactionRecord is an append-only log entry scoped to (owner, vault).
// Records are written on every value-moving operation and never mutated.
type TransactionRecord struct {
	ID          uuid.UUID       `json:"id"`
	Owner       common.Address  `json:"owner"`
	VaultID     uint64          `json:"vault_id"`
	AssetID     int             `json:"asset_id"`
	Op          RecordOp        `json:"op"`
	Token       common.Address  `json:"token"`
	Amount      decimal.Decimal `json:"amount"`
	Title       string          `json:"title"`
	LockEndTime time.Time       `json:"lock_end_time"`
	Timestamp   time.Time       `json:"timestamp"`
}

// EventType names a domain event emitted on a successful operation.
type EventType string

const (
	EventAssetLocked        EventType = "AssetLocked"
	EventAssetAdded         EventType = "AssetAdded"
	EventAssetWithdrawn     EventType = "AssetWithdrawn"
	EventLockPeriodExtended EventType = "LockPeriodExtended"
	EventRenameVault        EventType = "RenameVault"
	EventVaultDeleted       EventType = "VaultDeleted"
	EventTransferAsset      EventType = "TransferAsset"
	EventLockMatured        EventType = "LockMatured"
	EventPaused             EventType = "Paused"
	EventUnpaused           EventType = "Unpaused"
	EventTokenBlacklisted   EventType = "TokenBlacklisted"
	EventTokenUnblacklisted EventType = "TokenUnblacklisted"
)

// Event is a domain event. Fields beyond Type, Owner and Timestamp are
// populated per event type with enough identity to reconstruct the state
// transition off-ledger.
type Event struct {
	Type        EventType       `json:"type"`
	Owner       common.Address  `json:"owner"`
	Token       common.Address  `json:"token"`
	Amount      decimal.Decimal `json:"amount"`
	Title       string          `json:"title,omitempty"`
	VaultID     uint64          `json:"vault_id,omitempty"`
	AssetID     int             `json:"asset_id"`
	ToVaultID   uint64          `json:"to_vault_id,omitempty"`
	ToAssetID   int             `json:"to_asset_id,omitempty"`
	LockEndTime time.Time       `json:"lock_end_time,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}
