package transport

import (
	"context"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/network"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/service/sender"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/session"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/store"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Chat interface {
		Snapshot() session.View
		Send(ctx context.Context, content string) (sender.Result, error)
		LoadMore(ctx context.Context) error
		SwitchNetwork(ctx context.Context) error
		CheckCooldown(ctx context.Context, address string) uint64
		CheckPending(ctx context.Context) (store.SweepResult, error)
	}
	Names interface {
		ResolveAll(ctx context.Context, addresses []string) map[string]string
	}
	StatusSource interface {
		Status() model.NetworkStatus
		Subscribe(fn network.Listener) func()
	}
)
