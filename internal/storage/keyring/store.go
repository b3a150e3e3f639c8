package keyring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	defaultService = "social_feed"
	keyPrefix      = "plugin_"
)

// Store keeps settings and connection state in the system keychain.
type Store struct {
	service string
}

// New checks that a keychain is reachable and returns a store scoped to service.
func New(service string) (*Store, error) {
	if service == "" {
		service = defaultService
	}

	probe := keyPrefix + "availability"
	if err := keyring.Set(service, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(service, probe)

	return &Store{service: service}, nil
}

// Get decodes the value stored under key into dst. It reports false when
// the key is absent.
func (s *Store) Get(_ context.Context, key string, dst any) (bool, error) {
	data, err := keyring.Get(s.service, keyPrefix+key)
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s from keyring: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := keyring.Set(s.service, keyPrefix+key, string(data)); err != nil {
		return fmt.Errorf("write %s to keyring: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	err := keyring.Delete(s.service, keyPrefix+key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete %s from keyring: %w", key, err)
	}
	return nil
}
