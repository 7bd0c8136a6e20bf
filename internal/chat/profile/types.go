package profile

import (
	"context"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	UsernameSource interface {
		Username(ctx context.Context, address string) (string, error)
	}
	ActivityPoster interface {
		PostActivity(ctx context.Context, address string, activity model.ActivityType, metadata map[string]any) error
	}
)
