// Package lock implements the cooperative single-flight lock around sync runs. Any
// process may inspect the holder's age and clear an abandoned lock; the hard expiry set
// on the key is a second safety net.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-feed-sync/internal/models"
	"github.com/Guizzs26/go-feed-sync/internal/store"
	"github.com/google/uuid"
)

var (
	// ErrLockHeld is returned when another run holds the lock
	ErrLockHeld = errors.New("sync lock is held by another run")
	// ErrLockNotHeld is returned when releasing a lock that expired or was cleared
	ErrLockNotHeld = errors.New("sync lock not held")
)

// Info describes the current lock holder
type Info struct {
	Token      string         `json:"token"`
	RunType    models.RunType `json:"run_type"`
	AcquiredAt time.Time      `json:"acquired_at"`
}

// Age is how long the holder has had the lock
func (i Info) Age(now time.Time) time.Duration {
	return now.Sub(i.AcquiredAt)
}

// Lock is a held lock. Release it exactly once.
type Lock struct {
	Info
	locker *Locker
	raw    []byte
}

// Locker guards one key in the store
type Locker struct {
	store  store.Store
	key    string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Locker)

// WithClock overrides the time source used for acquired_at and age checks
func WithClock(now func() time.Time) Option {
	return func(l *Locker) { l.now = now }
}

func NewLocker(s store.Store, key string, ttl time.Duration, logger *slog.Logger, opts ...Option) *Locker {
	l := &Locker{
		store:  s,
		key:    key,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire takes the lock for a run, failing with ErrLockHeld when it is taken
func (l *Locker) Acquire(ctx context.Context, runType models.RunType) (*Lock, error) {
	info := Info{
		Token:      uuid.NewString(),
		RunType:    runType,
		AcquiredAt: l.now().UTC(),
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode lock: %w", err)
	}

	ok, err := l.store.SetNX(ctx, l.key, raw, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	l.logger.Debug("Acquired sync lock", "key", l.key, "run_type", runType, "token", info.Token)
	return &Lock{Info: info, locker: l, raw: raw}, nil
}

// Inspect returns the current holder, or nil when the lock is free
func (l *Locker) Inspect(ctx context.Context) (*Info, error) {
	info, _, err := l.read(ctx)
	return info, err
}

// ClearIfStale removes the lock when its holder is older than staleAfter. A lock that
// changed hands between the read and the delete is left alone.
func (l *Locker) ClearIfStale(ctx context.Context, staleAfter time.Duration) (bool, error) {
	info, raw, err := l.read(ctx)
	if err != nil || info == nil {
		return false, err
	}
	age := info.Age(l.now())
	if age <= staleAfter {
		return false, nil
	}

	cleared, err := l.store.CompareAndDelete(ctx, l.key, raw)
	if err != nil {
		return false, fmt.Errorf("clear stale lock: %w", err)
	}
	if cleared {
		l.logger.Warn("Cleared stale sync lock",
			"key", l.key,
			"holder_run_type", info.RunType,
			"age", age.Round(time.Second),
		)
	}
	return cleared, nil
}

// ForceClear removes the lock whoever holds it
func (l *Locker) ForceClear(ctx context.Context) error {
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("force clear lock: %w", err)
	}
	l.logger.Warn("Sync lock force-cleared", "key", l.key)
	return nil
}

// Release frees the lock if this holder still owns it
func (lock *Lock) Release(ctx context.Context) error {
	ok, err := lock.locker.store.CompareAndDelete(ctx, lock.locker.key, lock.raw)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if !ok {
		return ErrLockNotHeld
	}
	lock.locker.logger.Debug("Released sync lock", "key", lock.locker.key, "token", lock.Token)
	return nil
}

func (l *Locker) read(ctx context.Context) (*Info, []byte, error) {
	raw, err := l.store.Get(ctx, l.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read lock: %w", err)
	}

	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		// an unreadable value has no age; treat it as abandoned
		return &Info{}, raw, nil
	}
	return &info, raw, nil
}
