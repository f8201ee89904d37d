package models

import "time"

// StoredEntity is the durable representation of a property keyed by its external id
type StoredEntity struct {
	ID           string           `json:"id"`
	ExternalID   string           `json:"external_id"`
	LastModified string           `json:"last_modified"`
	Record       NormalizedRecord `json:"record"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Action is the outcome of reconciling one record against the store
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
)

// EntityEvent is published to the broker after a successful insert or update
type EntityEvent struct {
	EventID     string    `json:"event_id"`
	Action      Action    `json:"action"`
	EntityID    string    `json:"entity_id"`
	ExternalID  string    `json:"external_id"`
	LastUpdated string    `json:"last_updated"`
	ImageCount  int       `json:"image_count"`
	Timestamp   time.Time `json:"timestamp"`
}
