package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected   = errors.New("not connected")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNotFound       = errors.New("not found")
)

// AuthError is returned when exchanging or renewing credentials fails.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// EnrichmentError is returned when a featured image cannot be fetched,
// transcoded or stored. It never aborts ingestion of the item.
type EnrichmentError struct {
	URL string
	Err error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich image %s: %v", e.URL, e.Err)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}
