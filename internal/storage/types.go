package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups when no record matches.
// It is an expected condition, not a failure; callers must check for it.
var ErrNotFound = errors.New("record not found")

// ErrConstraint is returned by Insert when a uniqueness constraint
// (typically the primary key) is violated.
var ErrConstraint = errors.New("constraint violated")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}
