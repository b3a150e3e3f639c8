package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"social_feed/internal/api"
)

type Config struct {
	// UploadsRoot is served under /uploads/ when set.
	UploadsRoot    string
	RequestTimeout time.Duration
	SyncTimeout    time.Duration
}

type Server struct {
	api    *api.API
	mux    *http.ServeMux
	cfg    Config
	logger *slog.Logger
}

func New(a *api.API, cfg Config, logger *slog.Logger) *Server {
	s := &Server{
		api:    a,
		mux:    http.NewServeMux(),
		cfg:    cfg,
		logger: logger.With("component", "http"),
	}
	s.routes()
	return s
}

// Handler returns the routed handler wrapped in the request-id middleware.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", addr)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
