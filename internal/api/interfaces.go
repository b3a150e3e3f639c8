package api

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"social_feed/internal/connection"
	"social_feed/internal/domain"
)

type Connections interface {
	Settings(ctx context.Context) (domain.AppCredentials, error)
	SaveSettings(ctx context.Context, partial map[string]any) (domain.AppCredentials, error)
	Connect(ctx context.Context, req connection.ConnectRequest) (*domain.Connection, error)
	ConnectedPage(ctx context.Context) (domain.ConnectedPage, error)
	Status(ctx context.Context) (domain.ConnectionStatus, error)
}

type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

type ItemReader interface {
	List(ctx context.Context, tag string, limit, offset int) ([]domain.Item, error)
	Get(ctx context.Context, externalID string) (*domain.Item, error)
}

type Remover interface {
	Remove(ctx context.Context, source domain.Source, externalID string) (*domain.Item, error)
}
