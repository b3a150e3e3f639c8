package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"social_feed/internal/blob"
	"social_feed/internal/domain"
	"social_feed/internal/graph"
)

type ItemStore interface {
	ExternalIDs(ctx context.Context) ([]string, error)
	Create(ctx context.Context, item *domain.Item) (bool, error)
	Delete(ctx context.Context, externalID string) (*domain.Item, error)
}

type TagStore interface {
	LinkToItem(ctx context.Context, source domain.Source, itemID int64, labels []string) error
}

type SyncStateStore interface {
	RecordCreated(ctx context.Context, sourceID, externalID string) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, action domain.Action, source domain.Source, item *domain.Item) error
	Close() error
}

type Connections interface {
	Connection(ctx context.Context) (*domain.Connection, error)
	RefreshPageToken(ctx context.Context, conn *domain.Connection) (string, error)
	ResolveLinkedAccount(ctx context.Context, conn *domain.Connection, pageToken string) (string, error)
}

type Graph interface {
	FeedURL(pageID, pageToken string) string
	MediaURL(accountID, pageToken string) string
	FetchPosts(ctx context.Context, rawURL string) (*graph.Page[graph.Post], error)
	FetchMedia(ctx context.Context, rawURL string) (*graph.Page[graph.Media], error)
}

type ImageEnricher interface {
	Enrich(ctx context.Context, sourceURL, name string) (*domain.FeaturedImage, error)
}

type BlobDeleter interface {
	Delete(ctx context.Context, file *blob.File) error
}
