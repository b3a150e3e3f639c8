package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PluginStore is a JSON key/value store for settings and connection state.
type PluginStore struct {
	db *sqlx.DB
}

func NewPluginStore(db *sqlx.DB) *PluginStore {
	return &PluginStore{db: db}
}

// Get decodes the value stored under key into dst. It reports false when
// the key is absent.
func (s *PluginStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	var raw []byte
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &raw,
		"SELECT value FROM plugin_store WHERE key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *PluginStore) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	query := `
		INSERT INTO plugin_store (key, value, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, query, key, string(data))
	return err
}
