package mapping

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/api"
	"github.com/fvkry/custody/pkg/models"
	"github.com/shopspring/decimal"
)

// ErrInvalidAddress is returned when a request carries a malformed hex
// address.
var ErrInvalidAddress = errors.New("invalid hex address")

// CallerHeader carries the authenticated caller's address. Authentication
// itself happens upstream; the service trusts this header.
const CallerHeader = "X-Caller-Address"

// CallerFromRequest extracts the caller's address from the request headers.
func CallerFromRequest(r *http.Request) (common.Address, error) {
	return ParseAddress(r.Header.Get(CallerHeader))
}

// ParseAddress converts a 0x-prefixed hex string to an address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ParseAsset interprets a request token field: empty means native value,
// anything else must be a hex token address.
func ParseAsset(token string) (models.Asset, error) {
	if token == "" {
		return models.NativeAsset(), nil
	}
	addr, err := ParseAddress(token)
	if err != nil {
		return models.Asset{}, err
	}
	return models.TokenAsset(addr), nil
}

// ParseAmount converts a request amount string to a decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}

// ToApiSubVault maps a domain sub-vault to its API view.
func ToApiSubVault(sv *models.SubVault) *api.SubVault {
	return &api.SubVault{
		AssetID:     sv.AssetID,
		Token:       sv.Token.Hex(),
		IsNative:    sv.IsNative,
		Amount:      sv.Amount.String(),
		Title:       sv.Title,
		LockEndTime: sv.LockEndTime.Unix(),
		Withdrawn:   sv.Withdrawn,
	}
}

// ToApiTransactionRecord maps a domain log entry to its API view.
func ToApiTransactionRecord(rec *models.TransactionRecord) *api.TransactionRecord {
	return &api.TransactionRecord{
		ID:        rec.ID.String(),
		VaultID:   rec.VaultID,
		AssetID:   rec.AssetID,
		Op:        string(rec.Op),
		Token:     rec.Token.Hex(),
		Amount:    rec.Amount.String(),
		Title:     rec.Title,
		Timestamp: rec.Timestamp.Unix(),
	}
}
