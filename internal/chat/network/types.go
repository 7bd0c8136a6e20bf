package network

import (
	"context"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	LedgerClient interface {
		CurrentChainID(ctx context.Context) (uint64, error)
		SwitchChain(ctx context.Context, chainID uint64) error
		RegisterChain(params model.ChainParams) error
	}
	Metrics interface {
		ObserveTransition(prev, next model.NetworkStatus)
	}
)
