package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"social_feed/internal/domain"
)

const itemColumns = `id, external_id, title, body, tags, author, featured_url,
	image_size, permalink, media_type, created, updated, created_at`

// ItemStore persists the records of one source. Facebook posts and
// Instagram media live in separate tables with the same shape.
type ItemStore struct {
	db     *sqlx.DB
	table  string
	source domain.Source
}

func NewPostStore(db *sqlx.DB) *ItemStore {
	return &ItemStore{db: db, table: "facebook_posts", source: domain.SourceFacebook}
}

func NewMediaStore(db *sqlx.DB) *ItemStore {
	return &ItemStore{db: db, table: "instagram_media", source: domain.SourceInstagram}
}

// ExternalIDs returns every stored external id, newest first.
func (s *ItemStore) ExternalIDs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT external_id FROM %s ORDER BY created_at DESC, id DESC`, s.table)

	ids := []string{}
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids, query); err != nil {
		return nil, err
	}
	return ids, nil
}

// Create inserts item unless a record with the same external id exists.
// It reports whether a row was written and sets item.ID and item.CreatedAt.
func (s *ItemStore) Create(ctx context.Context, item *domain.Item) (bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			external_id, title, body, tags, author, featured_url,
			image_size, permalink, media_type, created, updated
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id, created_at`, s.table)

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		item.ExternalID,
		item.Title,
		item.Body,
		item.Tags,
		item.Author,
		item.FeaturedURL,
		item.ImageSize,
		item.Permalink,
		item.MediaType,
		item.Created,
		item.Updated,
	).Scan(&item.ID, &item.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *ItemStore) Get(ctx context.Context, externalID string) (*domain.Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE external_id = $1`, itemColumns, s.table)

	var item domain.Item
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &item, query, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns a page of records, newest first. A non-empty tag restricts
// the result to records linked to that tag.
func (s *ItemStore) List(ctx context.Context, tag string, limit, offset int) ([]domain.Item, error) {
	items := []domain.Item{}

	if tag == "" {
		query := fmt.Sprintf(`
			SELECT %s FROM %s
			ORDER BY created DESC, id DESC
			LIMIT $1 OFFSET $2`, itemColumns, s.table)
		err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &items, query, limit, offset)
		return items, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s i
		WHERE i.id IN (
			SELECT it.item_id FROM item_tags it
			INNER JOIN tags t ON t.id = it.tag_id
			WHERE it.source = $1 AND t.label = $2
		)
		ORDER BY created DESC, id DESC
		LIMIT $3 OFFSET $4`, itemColumns, s.table)
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &items, query, string(s.source), tag, limit, offset)
	return items, err
}

// Delete removes a record and its tag links. It returns the deleted record.
func (s *ItemStore) Delete(ctx context.Context, externalID string) (*domain.Item, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE external_id = $1 RETURNING %s`, s.table, itemColumns)

	exec := GetExecutor(ctx, s.db)

	var item domain.Item
	err := sqlx.GetContext(ctx, exec, &item, query, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	_, err = exec.ExecContext(ctx,
		"DELETE FROM item_tags WHERE source = $1 AND item_id = $2",
		string(s.source), item.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("unlink tags: %w", err)
	}
	return &item, nil
}
