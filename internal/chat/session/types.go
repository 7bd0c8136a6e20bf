package session

import (
	"context"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/network"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/service/sender"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/store"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	LedgerClient interface {
		TotalCount(ctx context.Context) (uint64, error)
		FetchRange(ctx context.Context, start, count uint64) ([]model.Message, error)
		CooldownRemaining(ctx context.Context, address string) (uint64, error)
	}
	NetworkGuard interface {
		Check(ctx context.Context) model.NetworkStatus
		Status() model.NetworkStatus
		Connected() bool
		Expected() model.ChainParams
		Switch(ctx context.Context) error
		Subscribe(fn network.Listener) func()
		Monitor(ctx context.Context, interval time.Duration) error
	}
	Sender interface {
		Send(ctx context.Context, content string) (sender.Result, error)
		Busy() bool
		Close()
	}
	Syncer interface {
		Start(ctx context.Context)
		Stop()
		Pause()
		Reset()
		Refresh()
		HandleTransition(prev, next model.NetworkStatus)
		SweepNow(ctx context.Context) (store.SweepResult, error)
	}
	ActivityLogger interface {
		Log(address string, activity model.ActivityType, metadata map[string]any)
	}
)
