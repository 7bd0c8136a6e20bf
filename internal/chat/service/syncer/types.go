package syncer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	LedgerClient interface {
		TotalCount(ctx context.Context) (uint64, error)
		FetchRange(ctx context.Context, start, count uint64) ([]model.Message, error)
		OnMessagePosted(ctx context.Context, fn func(model.Message)) (event.Subscription, error)
	}
	NetworkGuard interface {
		Connected() bool
	}
	Metrics interface {
		ObservePoll(err error, fetched int, started time.Time)
		ObserveSweep(err error, settled, evicted int)
		ObserveEvent(applied bool)
		ObserveSubscribe(err error)
	}
)
