// Package api defines the request and response shapes of the HTTP surface.
// Addresses and amounts travel as strings; mapping converts them to and from
// domain types.
package api

// LockRequest creates a new sub-vault. An empty Token locks native value.
type LockRequest struct {
	LockPeriodSeconds int64  `json:"lock_period_seconds"`
	Title             string `json:"title"`
	Token             string `json:"token,omitempty"`
	Amount            string `json:"amount"`
}

// AddRequest tops up an existing lock before it matures.
type AddRequest struct {
	Amount string `json:"amount"`
}

// WithdrawRequest releases value from a lock. GoalReached is the
// caller-asserted early-release condition.
type WithdrawRequest struct {
	Amount      string `json:"amount"`
	GoalReached bool   `json:"goal_reached"`
}

// ExtendRequest re-arms a matured lock.
type ExtendRequest struct {
	ExtensionSeconds int64 `json:"extension_seconds"`
}

// RenameRequest overwrites a lock's display title.
type RenameRequest struct {
	Title string `json:"title"`
}

// TransferRequest moves value between two sub-vaults of the same asset.
type TransferRequest struct {
	Amount      string `json:"amount"`
	FromVaultID uint64 `json:"from_vault_id"`
	FromAssetID int    `json:"from_asset_id"`
	ToVaultID   uint64 `json:"to_vault_id"`
	ToAssetID   int    `json:"to_asset_id"`
}

// SubVault is the API view of one lock.
type SubVault struct {
	AssetID     int    `json:"asset_id"`
	Token       string `json:"token"`
	IsNative    bool   `json:"is_native"`
	Amount      string `json:"amount"`
	Title       string `json:"title"`
	LockEndTime int64  `json:"lock_end_time"`
	Withdrawn   bool   `json:"withdrawn"`
}

// TransactionRecord is the API view of one log entry.
type TransactionRecord struct {
	ID        string `json:"id"`
	VaultID   uint64 `json:"vault_id"`
	AssetID   int    `json:"asset_id"`
	Op        string `json:"op"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	Title     string `json:"title"`
	Timestamp int64  `json:"timestamp"`
}

// Balance reports aggregate custody of one asset.
type Balance struct {
	Token   string `json:"token"`
	Native  bool   `json:"native"`
	Balance string `json:"balance"`
}
