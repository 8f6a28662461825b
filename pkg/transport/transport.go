package transport

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// AssetTransport moves native or token value between external accounts and
// the ledger's custody. It is the only component that touches external
// balances; the engine settles its own state before calling out.
type AssetTransport interface {
	// PullIn moves amount of token (native for the sentinel address) from
	// the external account into custody. For tokens this is an
	// allowance-backed pull; the caller must have pre-authorized at least
	// amount.
	PullIn(ctx context.Context, token common.Address, from common.Address, amount decimal.Decimal) error

	// PushOut moves amount of token (native for the sentinel address) from
	// custody to the external account.
	PushOut(ctx context.Context, token common.Address, to common.Address, amount decimal.Decimal) error
}
