package domain

import "time"

// StopReason records why a pass ended.
type StopReason string

const (
	StopDuplicate StopReason = "duplicate"
	StopExhausted StopReason = "exhausted"
	StopCeiling   StopReason = "ceiling"
	StopAPIError  StopReason = "api_error"
	StopSkipped   StopReason = "skipped"
)

// PassStats holds statistics about one pass over a source.
type PassStats struct {
	Source           Source        `json:"source"`
	Fetched          int           `json:"fetched"`
	Skipped          int           `json:"skipped"`
	Pages            int           `json:"pages"`
	EnrichmentErrors int           `json:"enrichmentErrors"`
	Published        int           `json:"published"`
	StoppedAt        StopReason    `json:"stoppedAt"`
	Duration         time.Duration `json:"duration"`
}

// SyncStats holds statistics about a sync operation.
type SyncStats struct {
	RunID    string
	Fetched  int
	Passes   []PassStats
	Duration time.Duration
}

// Action is the kind of change announced for a record.
type Action string

const (
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)
