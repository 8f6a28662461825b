package mocks

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// AssetTransport is a testify mock of transport.AssetTransport.
type AssetTransport struct {
	mock.Mock
}

func (m *AssetTransport) PullIn(ctx context.Context, token common.Address, from common.Address, amount decimal.Decimal) error {
	args := m.Called(ctx, token, from, amount)
	return args.Error(0)
}

func (m *AssetTransport) PushOut(ctx context.Context, token common.Address, to common.Address, amount decimal.Decimal) error {
	args := m.Called(ctx, token, to, amount)
	return args.Error(0)
}
