package storage

import (
	"context"
	"errors"
	"time"

	"statusrelay/internal/cachet"
)

var (
	ErrClosed = errors.New("storage closed")
	// ErrInsecurePermissions is returned when the state file can be written by anyone.
	ErrInsecurePermissions = errors.New("storage: state file is world-writable")
)

// Config configures storage.
//
// Driver values:
//   - "file" (default): JSON state file at Path
//   - "sqlite": SQLite database file at Path
//   - "redis": Redis server at URL, keys under KeyPrefix
type Config struct {
	Driver      string
	Path        string
	URL         string
	KeyPrefix   string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the snapshot of last-seen components plus a single watermark.
//
// Get and Set satisfy cachet.Snapshot.
type Store interface {
	Contains(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (cachet.Component, bool, error)
	Set(ctx context.Context, id string, c cachet.Component) error

	// Watermark returns ok=false when no run has stored one yet.
	Watermark(ctx context.Context) (t time.Time, ok bool, err error)
	SetWatermark(ctx context.Context, t time.Time) error

	// Flush makes all prior writes durable.
	Flush(ctx context.Context) error
	Close() error
}

var _ cachet.Snapshot = Store(nil)
