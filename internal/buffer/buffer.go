// Package buffer implements the ordered, bounded, optionally persistent
// queue of formatted log entries described in spec §4.3: a multi-producer,
// single-consumer queue keyed by internal/keygen.Key, with two
// interchangeable backends behind a single capability interface so the
// dispatcher depends on neither concrete backend (spec §9 design note).
package buffer

import (
	"context"

	"github.com/ausimian/loki-logger-handler/internal/keygen"
	"github.com/ausimian/loki-logger-handler/internal/logentry"
)

// Item pairs a buffered Entry with the key it was assigned on insert.
type Item struct {
	Key   keygen.Key
	Entry logentry.Entry
}

// DropObserver is notified whenever entries are silently evicted by the
// overflow policy (spec §4.3: "an observer hook MAY emit a metric").
type DropObserver func(count int)

// Buffer is the capability both backends implement.
type Buffer interface {
	// Store assigns en a fresh key, applies the overflow policy, and
	// inserts it. Non-blocking from the caller's perspective and never
	// fails visibly (spec §4.3).
	Store(ctx context.Context, e logentry.Entry)

	// FetchBatch returns up to limit entries in ascending key order. Pure
	// read; does not delete.
	FetchBatch(ctx context.Context, limit int) ([]Item, error)

	// DeleteUpTo deletes every entry whose key is <= key.
	DeleteUpTo(ctx context.Context, key keygen.Key) error

	// Count returns the current number of buffered entries.
	Count(ctx context.Context) (int, error)

	// Stop releases backend resources. Stop is idempotent.
	Stop() error
}

// Config carries the parameters shared by both backends.
type Config struct {
	// MaxSize is the overflow threshold (spec §6 max_buffer_size).
	MaxSize int

	// OnDrop, if non-nil, is called after every overflow eviction.
	OnDrop DropObserver

	// OnStoreError, if non-nil, is called when the backend's internal
	// writer fails to persist an entry (disk backend only; the memory
	// backend cannot fail this way). Per spec §7's propagation policy,
	// store errors are never returned to the producer — this is the
	// "separate sink" observers may wire up instead.
	OnStoreError func(error)

	// OnStore, if non-nil, is called once for every entry successfully
	// inserted (spec §7 "emit a counter on every buffer insert").
	OnStore func()
}

// EvictCount implements the overflow policy of spec §4.3: when count is at
// or above max, evict max(floor(max/10), 1) of the oldest entries before
// inserting the new one. Backend-agnostic so both implementations apply
// the identical rule.
func EvictCount(count, max int) int {
	if max <= 0 || count < max {
		return 0
	}
	n := max / 10
	if n < 1 {
		n = 1
	}
	return n
}
