package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"social_feed/internal/config"
	"social_feed/internal/domain"
	"social_feed/internal/graph"
)

type SyncService struct {
	graph       Graph
	connections Connections
	images      ImageEnricher
	posts       ItemStore
	media       ItemStore
	tags        TagStore
	syncState   SyncStateStore
	txManager   TransactionManager
	publisher   Publisher
	logger      *slog.Logger
	config      config.SyncConfig

	running atomic.Bool
}

// NewSyncService wires the sync engine. publisher may be nil.
func NewSyncService(
	graph Graph,
	connections Connections,
	images ImageEnricher,
	posts ItemStore,
	media ItemStore,
	tags TagStore,
	syncState SyncStateStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		graph:       graph,
		connections: connections,
		images:      images,
		posts:       posts,
		media:       media,
		tags:        tags,
		syncState:   syncState,
		txManager:   txManager,
		publisher:   publisher,
		logger:      logger.With("component", "sync"),
		config:      cfg,
	}
}

// pass is one paginated walk over a source, newest first.
type pass struct {
	source   domain.Source
	store    ItemStore
	firstURL string
	fetch    func(ctx context.Context, rawURL string) ([]candidate, string, error)
}

// Sync runs the primary pass over page posts and, unless the connection is
// primary-only, the secondary pass over linked account media.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, domain.ErrSyncInProgress
	}
	defer s.running.Store(false)

	startTime := time.Now()
	stats := &domain.SyncStats{RunID: uuid.NewString()}
	logger := s.logger.With("run_id", stats.RunID)

	conn, err := s.connections.Connection(ctx)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if !conn.Renewable() {
		return nil, domain.ErrNotConnected
	}

	pageToken, err := s.connections.RefreshPageToken(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("refresh page token: %w", err)
	}

	logger.Info("starting sync",
		"page_id", conn.PageID,
		"secondary_source", conn.SyncSecondarySource,
		"max_items", s.config.MaxItemsPerPass,
		"max_pages", s.config.MaxPagesPerPass,
	)

	if err := s.runPass(ctx, logger, stats, s.postsPass(conn, pageToken)); err != nil {
		return stats, err
	}

	if conn.SyncSecondarySource {
		accountID, err := s.connections.ResolveLinkedAccount(ctx, conn, pageToken)
		switch {
		case err != nil:
			logger.Warn("skipping media pass", "error", err)
			stats.Passes = append(stats.Passes, domain.PassStats{Source: domain.SourceInstagram, StoppedAt: domain.StopSkipped})
		case accountID == "":
			logger.Info("skipping media pass: page has no linked business account")
			stats.Passes = append(stats.Passes, domain.PassStats{Source: domain.SourceInstagram, StoppedAt: domain.StopSkipped})
		default:
			if err := s.runPass(ctx, logger, stats, s.mediaPass(conn, accountID, pageToken)); err != nil {
				return stats, err
			}
		}
	}

	stats.Duration = time.Since(startTime)

	logger.Info("sync completed",
		"fetched", stats.Fetched,
		"passes", len(stats.Passes),
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SyncService) postsPass(conn *domain.Connection, pageToken string) pass {
	return pass{
		source:   domain.SourceFacebook,
		store:    s.posts,
		firstURL: s.graph.FeedURL(conn.PageID, pageToken),
		fetch: func(ctx context.Context, rawURL string) ([]candidate, string, error) {
			page, err := s.graph.FetchPosts(ctx, rawURL)
			if err != nil {
				return nil, "", err
			}
			out := make([]candidate, 0, len(page.Data))
			for _, p := range page.Data {
				out = append(out, fromPost(p, conn.PageName))
			}
			return out, page.NextURL(), nil
		},
	}
}

func (s *SyncService) mediaPass(conn *domain.Connection, accountID, pageToken string) pass {
	return pass{
		source:   domain.SourceInstagram,
		store:    s.media,
		firstURL: s.graph.MediaURL(accountID, pageToken),
		fetch: func(ctx context.Context, rawURL string) ([]candidate, string, error) {
			page, err := s.graph.FetchMedia(ctx, rawURL)
			if err != nil {
				return nil, "", err
			}
			out := make([]candidate, 0, len(page.Data))
			for _, m := range page.Data {
				out = append(out, fromMedia(m, conn.PageName))
			}
			return out, page.NextURL(), nil
		},
	}
}

// runPass walks p until it meets a known record, runs out of pages, hits a
// ceiling or the upstream fails. Only repository errors and cancellation are
// returned; they abort the whole run.
func (s *SyncService) runPass(ctx context.Context, logger *slog.Logger, run *domain.SyncStats, p pass) error {
	startTime := time.Now()
	logger = logger.With("source", p.source)
	stats := domain.PassStats{Source: p.source}

	defer func() {
		stats.Duration = time.Since(startTime)
		run.Passes = append(run.Passes, stats)
		run.Fetched += stats.Fetched

		logger.Info("pass completed",
			"fetched", stats.Fetched,
			"skipped", stats.Skipped,
			"pages", stats.Pages,
			"enrichment_errors", stats.EnrichmentErrors,
			"published", stats.Published,
			"stopped_at", stats.StoppedAt,
			"duration", stats.Duration,
		)
	}()

	ids, err := p.store.ExternalIDs(ctx)
	if err != nil {
		return fmt.Errorf("load known %s ids: %w", p.source, err)
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	next := p.firstURL

pages:
	for {
		if next == "" {
			stats.StoppedAt = domain.StopExhausted
			break
		}
		if s.config.MaxPagesPerPass > 0 && stats.Pages >= s.config.MaxPagesPerPass {
			stats.StoppedAt = domain.StopCeiling
			break
		}

		candidates, cursor, err := p.fetch(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("fetch %s page: %w", p.source, ctx.Err())
			}
			if tokenRejected(err) {
				logger.Error("pass ended, page token rejected; reconnect the page", "page", stats.Pages+1, "error", err)
			} else {
				logger.Warn("pass ended by upstream error", "page", stats.Pages+1, "error", err)
			}
			stats.StoppedAt = domain.StopAPIError
			break
		}
		stats.Pages++
		next = cursor

		logger.Debug("fetched page", "page", stats.Pages, "items", len(candidates))

		for i := range candidates {
			if err := ctx.Err(); err != nil {
				return err
			}

			c := &candidates[i]
			if _, ok := known[c.item.ExternalID]; ok {
				stats.StoppedAt = domain.StopDuplicate
				break pages
			}
			if c.item.Body == "" {
				stats.Skipped++
				continue
			}

			created, err := s.ingest(ctx, logger, p, c, &stats)
			if err != nil {
				return err
			}
			known[c.item.ExternalID] = struct{}{}
			if created {
				stats.Fetched++
			}

			if s.config.MaxItemsPerPass > 0 && stats.Fetched >= s.config.MaxItemsPerPass {
				stats.StoppedAt = domain.StopCeiling
				break pages
			}
		}
	}

	return nil
}

// ingest enriches and stores one candidate. It reports whether a new record
// was written; a record inserted concurrently by another run is not.
func (s *SyncService) ingest(ctx context.Context, logger *slog.Logger, p pass, c *candidate, stats *domain.PassStats) (bool, error) {
	item := c.item

	if c.imageURL != "" {
		img, err := s.images.Enrich(ctx, c.imageURL, item.ExternalID)
		if err != nil {
			stats.EnrichmentErrors++
			logger.Warn("featured image not stored",
				"external_id", item.ExternalID,
				"error", err,
			)
		} else {
			item.FeaturedURL = img.URL
			item.ImageSize = fmt.Sprintf("%dx%d", img.Width, img.Height)
		}
	}

	var created bool
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := p.store.Create(txCtx, &item)
		if err != nil {
			return fmt.Errorf("create item: %w", err)
		}
		if !ok {
			return nil
		}
		created = true

		if tags := splitTags(item.Tags); len(tags) > 0 {
			if err := s.tags.LinkToItem(txCtx, p.source, item.ID, tags); err != nil {
				return fmt.Errorf("link tags: %w", err)
			}
		}

		if err := s.syncState.RecordCreated(txCtx, string(p.source), item.ExternalID); err != nil {
			return fmt.Errorf("update sync state: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("save %s item %s: %w", p.source, item.ExternalID, err)
	}

	if !created {
		logger.Debug("item already stored", "external_id", item.ExternalID)
		return false, nil
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, domain.ActionCreate, p.source, &item); err != nil {
			logger.Warn("publish failed", "external_id", item.ExternalID, "error", err)
		} else {
			stats.Published++
		}
	}

	return true, nil
}

// tokenRejected reports whether the provider refused the access token.
func tokenRejected(err error) bool {
	var apiErr *graph.APIError
	return errors.As(err, &apiErr) && apiErr.IsTokenError()
}
