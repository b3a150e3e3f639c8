//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"social_feed/internal/domain"
	"social_feed/migrations"
	"social_feed/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	s.Require().NoError(migrations.Up(db.DB))
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM item_tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM facebook_posts")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM instagram_media")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sync_state")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM plugin_store")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func newPost(externalID string, created time.Time) *domain.Item {
	return &domain.Item{
		ExternalID: externalID,
		Title:      "Title " + externalID,
		Body:       "Body " + externalID,
		Tags:       ":news",
		Author:     "My Page",
		ImageSize:  "0x0",
		Permalink:  "https://facebook.com/" + externalID,
		Created:    created,
	}
}

func (s *PostgresIntegrationSuite) TestMigrations_Version() {
	version, dirty, err := migrations.Version(s.db.DB)
	s.NoError(err)
	s.False(dirty)
	s.Equal(uint(3), version)
}

func (s *PostgresIntegrationSuite) TestItemStore_Create() {
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	item := newPost("42_1", now)
	item.Updated = utils.Ptr(now.Add(time.Minute))

	created, err := store.Create(s.ctx, item)
	s.NoError(err)
	s.True(created)
	s.Greater(item.ID, int64(0))
	s.False(item.CreatedAt.IsZero())

	got, err := store.Get(s.ctx, "42_1")
	s.NoError(err)
	s.Equal("Title 42_1", got.Title)
	s.Equal(":news", got.Tags)
	s.Require().NotNil(got.Updated)
	s.WithinDuration(now.Add(time.Minute), *got.Updated, time.Millisecond)
}

func (s *PostgresIntegrationSuite) TestItemStore_Create_DuplicateIsNotCreated() {
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	created, err := store.Create(s.ctx, newPost("42_1", now))
	s.NoError(err)
	s.True(created)

	again := newPost("42_1", now)
	again.Title = "Changed"
	created, err = store.Create(s.ctx, again)
	s.NoError(err)
	s.False(created)

	got, err := store.Get(s.ctx, "42_1")
	s.NoError(err)
	s.Equal("Title 42_1", got.Title)
}

func (s *PostgresIntegrationSuite) TestItemStore_TablesAreSeparate() {
	posts := NewPostStore(s.db)
	media := NewMediaStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	_, err := posts.Create(s.ctx, newPost("shared", now))
	s.NoError(err)

	created, err := media.Create(s.ctx, newPost("shared", now))
	s.NoError(err)
	s.True(created)

	_, err = media.Get(s.ctx, "missing")
	s.True(errors.Is(err, domain.ErrNotFound))
}

func (s *PostgresIntegrationSuite) TestItemStore_ExternalIDs_NewestFirst() {
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Create(s.ctx, newPost(id, now))
		s.NoError(err)
	}

	ids, err := store.ExternalIDs(s.ctx)
	s.NoError(err)
	s.Equal([]string{"c", "b", "a"}, ids)
}

func (s *PostgresIntegrationSuite) TestItemStore_ListAndDelete() {
	store := NewPostStore(s.db)
	tags := NewTagStore(s.db)
	base := time.Now().Truncate(time.Microsecond)

	for i, id := range []string{"old", "mid", "new"} {
		item := newPost(id, base.Add(time.Duration(i)*time.Hour))
		_, err := store.Create(s.ctx, item)
		s.NoError(err)
		if id != "mid" {
			s.NoError(tags.LinkToItem(s.ctx, domain.SourceFacebook, item.ID, []string{":sunny"}))
		}
	}

	page, err := store.List(s.ctx, "", 2, 0)
	s.NoError(err)
	s.Require().Len(page, 2)
	s.Equal("new", page[0].ExternalID)
	s.Equal("mid", page[1].ExternalID)

	tagged, err := store.List(s.ctx, ":sunny", 10, 0)
	s.NoError(err)
	s.Len(tagged, 2)

	deleted, err := store.Delete(s.ctx, "new")
	s.NoError(err)
	s.Equal("new", deleted.ExternalID)

	tagged, err = store.List(s.ctx, ":sunny", 10, 0)
	s.NoError(err)
	s.Len(tagged, 1)

	_, err = store.Delete(s.ctx, "new")
	s.True(errors.Is(err, domain.ErrNotFound))
}

func (s *PostgresIntegrationSuite) TestTagStore_UpsertBatch() {
	store := NewTagStore(s.db)

	ids, err := store.UpsertBatch(s.ctx, []string{":a", ":b", ":a", " "})
	s.NoError(err)
	s.Len(ids, 2)

	again, err := store.UpsertBatch(s.ctx, []string{":b"})
	s.NoError(err)
	s.Equal(ids[1], again[0])

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM tags")
	s.NoError(err)
	s.Equal(2, count)
}

func (s *PostgresIntegrationSuite) TestTagStore_LinkToItem_ReplacesOld() {
	store := NewTagStore(s.db)

	s.NoError(store.LinkToItem(s.ctx, domain.SourceInstagram, 7, []string{":a", ":b"}))
	s.NoError(store.LinkToItem(s.ctx, domain.SourceInstagram, 7, []string{":c"}))

	query := `
		SELECT t.label FROM tags t
		INNER JOIN item_tags it ON it.tag_id = t.id
		WHERE it.source = $1 AND it.item_id = $2`

	var labels []string
	s.NoError(s.db.SelectContext(s.ctx, &labels, query, "instagram", 7))
	s.Equal([]string{":c"}, labels)

	labels = nil
	s.NoError(s.db.SelectContext(s.ctx, &labels, query, "facebook", 7))
	s.Empty(labels)
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_GetNew() {
	store := NewSyncStateStore(s.db)

	state, err := store.Get(s.ctx, "facebook")
	s.NoError(err)
	s.Equal("facebook", state.SourceID)
	s.True(state.LastSyncedAt.IsZero())
	s.Equal(int64(0), state.TotalSynced)
}

func (s *PostgresIntegrationSuite) TestSyncStateStore_UpdateAndRecord() {
	store := NewSyncStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	err := store.Update(s.ctx, &domain.SyncState{
		SourceID:       "facebook",
		LastSyncedAt:   now,
		LastExternalID: "42_1",
		TotalSynced:    10,
	})
	s.NoError(err)

	s.NoError(store.RecordCreated(s.ctx, "facebook", "42_2"))
	s.NoError(store.RecordCreated(s.ctx, "instagram", "m1"))

	fb, err := store.Get(s.ctx, "facebook")
	s.NoError(err)
	s.Equal("42_2", fb.LastExternalID)
	s.Equal(int64(11), fb.TotalSynced)

	ig, err := store.Get(s.ctx, "instagram")
	s.NoError(err)
	s.Equal(int64(1), ig.TotalSynced)
}

func (s *PostgresIntegrationSuite) TestPluginStore_GetSet() {
	store := NewPluginStore(s.db)

	var settings map[string]string
	found, err := store.Get(s.ctx, "settings", &settings)
	s.NoError(err)
	s.False(found)

	s.NoError(store.Set(s.ctx, "settings", map[string]string{"appId": "1"}))
	s.NoError(store.Set(s.ctx, "settings", map[string]string{"appId": "2"}))

	found, err = store.Get(s.ctx, "settings", &settings)
	s.NoError(err)
	s.True(found)
	s.Equal("2", settings["appId"])
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	posts := NewPostStore(s.db)
	syncState := NewSyncStateStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := posts.Create(ctx, newPost("tx", now)); err != nil {
			return err
		}
		return syncState.RecordCreated(ctx, "facebook", "tx")
	})
	s.NoError(err)

	_, err = posts.Get(s.ctx, "tx")
	s.NoError(err)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	posts := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	_, err := posts.Create(s.ctx, newPost("pre-existing", now))
	s.NoError(err)

	err = tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := posts.Create(ctx, newPost("rolled-back", now)); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	_, err = posts.Get(s.ctx, "rolled-back")
	s.True(errors.Is(err, domain.ErrNotFound))

	_, err = posts.Get(s.ctx, "pre-existing")
	s.NoError(err)
}
