package models

import "time"

type ImageStatus string

const (
	ImagePending ImageStatus = "pending"
	ImageFailed  ImageStatus = "failed"
)

// ImageQueueItem is one queued image download. Successful items leave the queue;
// failed items stay visible until an explicit retry or clear.
type ImageQueueItem struct {
	EntityID   string      `json:"entity_id"`
	ImageName  string      `json:"image_name"`
	ImageURL   string      `json:"image_url"`
	Attempts   int         `json:"attempts"`
	Status     ImageStatus `json:"status"`
	AddedAt    time.Time   `json:"added_at"`
	LastError  string      `json:"last_error,omitempty"`
	LastReason string      `json:"last_reason,omitempty"`
}

// ImagesQueuedEvent wakes image workers after new items were enqueued
type ImagesQueuedEvent struct {
	EventID   string    `json:"event_id"`
	EntityID  string    `json:"entity_id"`
	Added     int       `json:"added"`
	Timestamp time.Time `json:"timestamp"`
}
