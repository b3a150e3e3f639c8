package service

import (
	"context"
	"fmt"
	"log/slog"

	"social_feed/internal/blob"
	"social_feed/internal/domain"
	"social_feed/internal/featured"
)

// Remover deletes stored records together with their featured image.
type Remover struct {
	posts     ItemStore
	media     ItemStore
	blobs     BlobDeleter
	publisher Publisher
	folder    string
	logger    *slog.Logger
}

// NewRemover creates a Remover. publisher may be nil.
func NewRemover(posts, media ItemStore, blobs BlobDeleter, publisher Publisher, folder string, logger *slog.Logger) *Remover {
	return &Remover{
		posts:     posts,
		media:     media,
		blobs:     blobs,
		publisher: publisher,
		folder:    folder,
		logger:    logger.With("component", "remover"),
	}
}

// Remove deletes a record. Failing to delete its image is logged and ignored.
func (r *Remover) Remove(ctx context.Context, source domain.Source, externalID string) (*domain.Item, error) {
	var store ItemStore
	switch source {
	case domain.SourceFacebook:
		store = r.posts
	case domain.SourceInstagram:
		store = r.media
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}

	item, err := store.Delete(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("delete %s item %s: %w", source, externalID, err)
	}

	file := &blob.File{Path: r.folder, Name: externalID, Ext: featured.Ext}
	if err := r.blobs.Delete(ctx, file); err != nil {
		r.logger.Warn("featured image not deleted",
			"source", source,
			"external_id", externalID,
			"error", err,
		)
	}

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, domain.ActionDelete, source, item); err != nil {
			r.logger.Warn("publish failed", "external_id", externalID, "error", err)
		}
	}

	r.logger.Info("item removed", "source", source, "external_id", externalID)
	return item, nil
}
