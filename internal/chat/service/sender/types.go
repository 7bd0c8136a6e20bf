package sender

import (
	"context"
	"math/big"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	LedgerClient interface {
		SignerAddress() (string, error)
		TotalCount(ctx context.Context) (uint64, error)
		FetchRange(ctx context.Context, start, count uint64) ([]model.Message, error)
		Balance(ctx context.Context, address string) (*big.Int, error)
		CooldownRemaining(ctx context.Context, address string) (uint64, error)
		Submit(ctx context.Context, content string) (model.PendingTx, error)
		AwaitConfirmation(ctx context.Context, tx model.PendingTx, minConfirmations uint64) (*model.Receipt, error)
	}
	NetworkGuard interface {
		Status() model.NetworkStatus
	}
	ActivityLogger interface {
		Log(address string, activity model.ActivityType, metadata map[string]any)
	}
	Metrics interface {
		ObserveSend(err error, started time.Time)
		ObserveConfirmation(err error, started time.Time)
		ObserveLateSettlement(result string)
	}
)
