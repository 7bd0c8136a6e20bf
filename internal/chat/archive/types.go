package archive

import (
	"context"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Repository interface {
		InsertMessages(ctx context.Context, contract string, msgs []model.Message) error
		NextContiguousMessageID(ctx context.Context, contract string) (uint64, error)
	}
	LedgerReader interface {
		TotalCount(ctx context.Context) (uint64, error)
		FetchRange(ctx context.Context, start, count uint64) ([]model.Message, error)
	}
	Metrics interface {
		ObserveFlush(err error, messages int, started time.Time)
		ObserveDropped(messages int)
		ObserveBackfill(err error, messages int)
	}
)
