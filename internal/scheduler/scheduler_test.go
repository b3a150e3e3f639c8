package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social_feed/internal/domain"
)

type countingSyncer struct {
	mu        sync.Mutex
	calls     int
	deadlines []bool
	err       error
}

func (c *countingSyncer) Sync(ctx context.Context) (*domain.SyncStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	_, ok := ctx.Deadline()
	c.deadlines = append(c.deadlines, ok)
	if c.err != nil {
		return nil, c.err
	}
	return &domain.SyncStats{RunID: "run"}, nil
}

func (c *countingSyncer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStart_RunsImmediatelyAndOnTick(t *testing.T) {
	syncer := &countingSyncer{}
	s := NewScheduler(syncer, 20*time.Millisecond, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return syncer.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	assert.True(t, errors.Is(<-done, context.Canceled))

	syncer.mu.Lock()
	defer syncer.mu.Unlock()
	for _, hasDeadline := range syncer.deadlines {
		assert.True(t, hasDeadline)
	}
}

func TestStart_KeepsRunningAfterErrors(t *testing.T) {
	syncer := &countingSyncer{err: domain.ErrNotConnected}
	s := NewScheduler(syncer, 10*time.Millisecond, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	require.Eventually(t, func() bool { return syncer.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
}
