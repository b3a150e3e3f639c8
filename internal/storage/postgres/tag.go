package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"social_feed/internal/domain"
)

type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

// UpsertBatch makes sure every label exists and returns their ids in input order.
func (s *TagStore) UpsertBatch(ctx context.Context, labels []string) ([]int64, error) {
	labels = uniqueLabels(labels)
	if len(labels) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO tags (label) VALUES ")
	valueArgs := make([]any, 0, len(labels))

	for i, label := range labels {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(")")
		valueArgs = append(valueArgs, label)
	}
	sb.WriteString(" ON CONFLICT (label) DO UPDATE SET label = EXCLUDED.label RETURNING id, label")

	var rows []struct {
		ID    int64  `db:"id"`
		Label string `db:"label"`
	}
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, sb.String(), valueArgs...); err != nil {
		return nil, err
	}

	byLabel := make(map[string]int64, len(rows))
	for _, r := range rows {
		byLabel[r.Label] = r.ID
	}

	ids := make([]int64, 0, len(labels))
	for _, label := range labels {
		ids = append(ids, byLabel[label])
	}
	return ids, nil
}

// LinkToItem replaces the tag links of one record.
func (s *TagStore) LinkToItem(ctx context.Context, source domain.Source, itemID int64, labels []string) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"DELETE FROM item_tags WHERE source = $1 AND item_id = $2",
		string(source), itemID,
	)
	if err != nil {
		return err
	}

	tagIDs, err := s.UpsertBatch(ctx, labels)
	if err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO item_tags (source, item_id, tag_id) VALUES ")
	valueArgs := make([]any, 0, len(tagIDs)+2)
	valueArgs = append(valueArgs, string(source), itemID)

	for i, tagID := range tagIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($1, $2, $")
		sb.WriteString(strconv.Itoa(i + 3))
		sb.WriteString(")")
		valueArgs = append(valueArgs, tagID)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	_, err = exec.ExecContext(ctx, sb.String(), valueArgs...)
	return err
}

func uniqueLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
