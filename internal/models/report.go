package models

import "time"

type RunType string

const (
	RunManual RunType = "manual"
	RunAuto   RunType = "auto"
)

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// ItemError records one item that was counted as skipped because processing failed
type ItemError struct {
	ExternalID string    `json:"external_id,omitempty"`
	Index      int       `json:"index"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// SyncRunReport is produced once per orchestrator invocation and never changed afterwards
type SyncRunReport struct {
	RunID      string        `json:"run_id"`
	Type       RunType       `json:"type"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	TotalItems int           `json:"total_items"`
	Added      int           `json:"added"`
	Updated    int           `json:"updated"`
	Removed    int           `json:"removed"`
	Skipped    int           `json:"skipped"`
	Error      string        `json:"error,omitempty"`
	Errors     []ItemError   `json:"errors,omitempty"`
}
