// Package store defines the TTL key-value contract backing whiteboard
// and screen-share state. The production implementation is Redis; an
// in-memory implementation with the same contract serves single-process
// deployments and tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// ListPrepend pushes value at the head of the list at key, so the
	// newest entry is always first.
	ListPrepend(ctx context.Context, key, value string) error
	// ListRange returns entries [start, stop] inclusive; 0,-1 is the
	// whole list. A missing key yields an empty slice, not an error.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// ListSet replaces the entry at index in place.
	ListSet(ctx context.Context, key string, index int64, value string) error
	// ListDelete removes entries equal to value.
	ListDelete(ctx context.Context, key, value string) error

	Expire(ctx context.Context, key string, ttl time.Duration) error
}
