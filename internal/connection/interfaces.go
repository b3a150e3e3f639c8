package connection

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"social_feed/internal/graph"
)

// Store persists JSON values by key.
type Store interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

type Graph interface {
	ExchangeToken(ctx context.Context, appID, appSecret, shortToken string) (*graph.Token, error)
	Accounts(ctx context.Context, userID, userToken string) ([]graph.Account, error)
	LinkedAccount(ctx context.Context, pageID, pageToken string) (string, error)
}
