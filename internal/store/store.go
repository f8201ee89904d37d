// Package store is the key-value state shared by the orchestrator, the lock and the
// image queue. Values are opaque bytes; callers own the encoding.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is missing or expired
	ErrNotFound = errors.New("key not found")
	// ErrNoChange returned from an UpdateFunc leaves the key untouched
	ErrNoChange = errors.New("no change")
	// ErrConflict is returned when Update keeps losing races to other writers
	ErrConflict = errors.New("concurrent update conflict")
)

// UpdateFunc receives the current value (nil when missing) and returns the new one.
// It may run more than once and must not call the store.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is a key-value store with per-key expiry and capped lists.
// A ttl of zero means the key never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes the value only when the key does not exist
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	// CompareAndDelete removes the key only while it still holds expected
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)
	// Update replaces the value at key with fn's result atomically with respect to
	// every other writer of key, in this process or any other. Keys written this way
	// never expire.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// PushCapped prepends value to the list at key and trims it to the newest limit entries
	PushCapped(ctx context.Context, key string, value []byte, limit int) error
	// Range returns up to n list entries, newest first. n <= 0 returns all of them.
	Range(ctx context.Context, key string, n int) ([][]byte, error)
}
