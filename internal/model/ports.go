package model

import "context"

// ── Storage & Transport Port Interfaces ──
// These interfaces decouple business logic from concrete implementations
// (Redis Streams, an in-memory log, SQLite, a real feed decoder).

// Decoder translates one external feed frame into a Tick. The second return
// value is false when the frame should be silently skipped (malformed input,
// per spec §4.2 — counted and dropped, never retried).
type Decoder interface {
	Decode(frame []byte) (Tick, bool)
}

// CandleStore persists finalized candles. Writes are idempotent on
// (instrument_key, candle_timestamp): a duplicate insert from at-least-once
// redelivery must return cleanly.
type CandleStore interface {
	InsertCandle(ctx context.Context, c Candle) error
	Close() error
}

// SignalStore persists emitted signals. Signals carry no natural uniqueness
// key, so duplicate inserts on replay are expected and are not an error.
type SignalStore interface {
	InsertSignal(ctx context.Context, s Signal) error
	Close() error
}
