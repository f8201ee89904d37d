package service

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport wraps feed fetch failures: transport errors, timeouts and non-200 responses
	ErrTransport = errors.New("feed transport error")
	// ErrFeedUnparseable is returned when the feed body is not a well-formed document
	ErrFeedUnparseable = errors.New("feed document could not be parsed")
	// ErrFeedEmpty is returned when the document parses but holds no items
	ErrFeedEmpty = errors.New("feed document contains no items")
	// ErrNoFeedURL is returned when a run has no feed to fetch
	ErrNoFeedURL = errors.New("no feed url configured")
)

// ImageReason classifies why an image job failed
type ImageReason string

const (
	ReasonInvalidURL    ImageReason = "invalid_url"
	ReasonOversized     ImageReason = "oversized"
	ReasonHTTPStatus    ImageReason = "http_status"
	ReasonEmptyBody     ImageReason = "empty_body"
	ReasonInvalidImage  ImageReason = "invalid_image"
	ReasonStorageFailed ImageReason = "storage_failed"
	ReasonTransport     ImageReason = "transport"
)

// ImageError is one failed image job attempt
type ImageError struct {
	Reason ImageReason
	URL    string
	Err    error
}

func (e *ImageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("image %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("image %s: %s: %v", e.URL, e.Reason, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }
