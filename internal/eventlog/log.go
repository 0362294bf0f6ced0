// Package eventlog is the durable, ordered, append-only stream abstraction
// the four pipeline workers communicate through (spec §4.1). It is
// satisfied by a Redis Streams-backed implementation for production and an
// in-process implementation for tests and local development; both honor
// the same at-least-once, consumer-group, PEL-backed contract.
package eventlog

import (
	"context"
	"time"
)

// Entry is one delivered (entry_id, payload) pair.
type Entry struct {
	ID      string
	Payload []byte
}

// Log is the event-log contract every worker depends on.
type Log interface {
	// Publish appends payload to stream and returns its entry ID.
	// If the stream exceeds its configured max length, oldest entries are
	// dropped approximately (exact trimming is not required).
	Publish(ctx context.Context, stream string, payload []byte) (string, error)

	// EnsureGroup idempotently creates group on stream, starting at "0" so
	// the group observes the whole backlog rather than only new entries.
	EnsureGroup(ctx context.Context, stream, group string) error

	// ReadGroup blocks up to block for entries not yet delivered to group,
	// returning up to count of them. Each entry enters that group's PEL,
	// owned by consumer, until Ack'd.
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Entry, error)

	// Ack removes id from group's PEL on stream.
	Ack(ctx context.Context, stream, group, id string) error

	// StreamLength reports the current entry count, for observability.
	StreamLength(ctx context.Context, stream string) (int64, error)

	// PendingCount reports the current PEL size for group on stream.
	PendingCount(ctx context.Context, stream, group string) (int64, error)

	// ReclaimStale steals PEL entries idle longer than minIdle from any
	// consumer in group and reassigns them to consumer, returning the
	// reclaimed entries for reprocessing.
	ReclaimStale(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]Entry, error)

	// Close releases underlying resources.
	Close() error
}
