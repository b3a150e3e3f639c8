package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"social_feed/internal/api"
	"social_feed/internal/blob"
	"social_feed/internal/config"
	"social_feed/internal/connection"
	"social_feed/internal/featured"
	"social_feed/internal/graph"
	"social_feed/internal/publisher"
	"social_feed/internal/scheduler"
	"social_feed/internal/server"
	"social_feed/internal/service"
	"social_feed/internal/storage/keyring"
	"social_feed/internal/storage/postgres"
	"social_feed/migrations"
)

type app struct {
	cfg       *config.Config
	db        *sqlx.DB
	publisher service.Publisher
	sync      *service.SyncService
	server    *server.Server
	logger    *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := connectDB(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	if _, err := migrate(a.db, a.logger); err != nil {
		return err
	}

	var tokens connection.Store
	switch a.cfg.TokenStore.Type {
	case "keyring":
		store, err := keyring.New("")
		if err != nil {
			return err
		}
		tokens = store
	case "postgres":
		tokens = postgres.NewPluginStore(a.db)
	default:
		return fmt.Errorf("unknown token store type: %s", a.cfg.TokenStore.Type)
	}

	blobs, err := blob.NewFromConfig(ctx, a.cfg.Blob)
	if err != nil {
		return fmt.Errorf("create blob store: %w", err)
	}

	images, err := featured.New(featured.Config{
		MaxDimension: a.cfg.Image.MaxDimension,
		Quality:      a.cfg.Image.Quality,
		Folder:       a.cfg.Image.Folder,
		FetchTimeout: a.cfg.Image.FetchTimeout,
		MaxBytes:     a.cfg.Image.MaxBytes,
		PublicURL:    a.cfg.Server.PublicURL,
	}, blobs, a.logger)
	if err != nil {
		return fmt.Errorf("create image pipeline: %w", err)
	}

	if a.cfg.RabbitMQ.Enabled() {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        a.cfg.RabbitMQ.URL,
			Exchange:   a.cfg.RabbitMQ.Exchange,
			RoutingKey: a.cfg.RabbitMQ.RoutingKey,
			QueueName:  a.cfg.RabbitMQ.QueueName,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		a.publisher = rabbitMQ
	}

	graphClient := graph.New(graph.Config{
		BaseURL: a.cfg.Graph.BaseURL,
		Timeout: a.cfg.Graph.Timeout,
	}, a.logger)
	connections := connection.NewManager(tokens, graphClient, a.logger)

	postStore := postgres.NewPostStore(a.db)
	mediaStore := postgres.NewMediaStore(a.db)

	a.sync = service.NewSyncService(
		graphClient,
		connections,
		images,
		postStore,
		mediaStore,
		postgres.NewTagStore(a.db),
		postgres.NewSyncStateStore(a.db),
		postgres.NewTransactionManager(a.db),
		a.publisher,
		a.logger,
		a.cfg.Sync,
	)

	remover := service.NewRemover(postStore, mediaStore, blobs, a.publisher, a.cfg.Image.Folder, a.logger)

	srvCfg := server.Config{
		RequestTimeout: a.cfg.Server.RequestTimeout,
		SyncTimeout:    a.cfg.Sync.Timeout,
	}
	if a.cfg.Blob.Type == "filesystem" {
		srvCfg.UploadsRoot = a.cfg.Blob.Root
	}

	facade := api.New(connections, a.sync, postStore, mediaStore, remover, a.logger)
	a.server = server.New(facade, srvCfg, a.logger)

	return nil
}

// Serve runs the HTTP server and, when enabled, the periodic sync until ctx
// is cancelled.
func (a *app) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		errCh <- a.server.ListenAndServe(ctx, a.cfg.Server.ListenAddr)
	}()

	running := 1
	if a.cfg.Sync.Enabled {
		running++
		sched := scheduler.NewScheduler(a.sync, a.cfg.Sync.Interval, a.cfg.Sync.Timeout, a.logger)
		a.logger.Info("starting scheduled sync",
			"interval", a.cfg.Sync.Interval,
			"max_items", a.cfg.Sync.MaxItemsPerPass,
			"max_pages", a.cfg.Sync.MaxPagesPerPass,
		)
		go func() {
			errCh <- sched.Start(ctx)
		}()
	}

	var firstErr error
	for i := 0; i < running; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	return firstErr
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close publisher", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

func connectDB(cfg *config.Config, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database")
	return db, nil
}

func migrate(db *sqlx.DB, logger *slog.Logger) (uint, error) {
	if err := migrations.Up(db.DB); err != nil {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	version, _, err := migrations.Version(db.DB)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("database schema up to date", "version", version)
	return version, nil
}
