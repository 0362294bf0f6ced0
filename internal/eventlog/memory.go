package eventlog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memEntry struct {
	id      int64
	payload []byte
}

type pelEntry struct {
	entry    memEntry
	consumer string
	deliveredAt time.Time
}

type memStream struct {
	entries []memEntry
	nextID  int64
	maxLen  int

	// per-group state
	cursors map[string]int64           // group -> last delivered entry id
	pel     map[string]map[int64]*pelEntry // group -> id -> pending entry
}

// Memory is an in-process Log used by worker unit tests and as a
// zero-dependency local-dev backend. It mirrors ringbuf.go's bounded-buffer
// idiom, extended with per-group cursors and a PEL so it satisfies the same
// at-least-once contract as the Redis-backed implementation.
type Memory struct {
	mu      sync.Mutex
	streams map[string]*memStream
	maxLen  int
}

// NewMemory creates an in-process Log. maxLen bounds each stream's backlog
// (0 means unbounded); it is the equivalent of the Redis implementation's
// approximate MAXLEN.
func NewMemory(maxLen int) *Memory {
	return &Memory{
		streams: make(map[string]*memStream),
		maxLen:  maxLen,
	}
}

func (m *Memory) stream(name string) *memStream {
	s, ok := m.streams[name]
	if !ok {
		s = &memStream{
			cursors: make(map[string]int64),
			pel:     make(map[string]map[int64]*pelEntry),
			maxLen:  m.maxLen,
		}
		m.streams[name] = s
	}
	return s
}

func (m *Memory) Publish(_ context.Context, stream string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stream(stream)
	s.nextID++
	id := s.nextID
	s.entries = append(s.entries, memEntry{id: id, payload: payload})

	if s.maxLen > 0 && len(s.entries) > s.maxLen {
		drop := len(s.entries) - s.maxLen
		s.entries = s.entries[drop:]
	}

	return fmt.Sprintf("%d", id), nil
}

func (m *Memory) EnsureGroup(_ context.Context, stream, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stream(stream)
	if _, exists := s.cursors[group]; !exists {
		s.cursors[group] = 0
		s.pel[group] = make(map[int64]*pelEntry)
	}
	return nil
}

func (m *Memory) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	deadline := time.Now().Add(block)
	for {
		m.mu.Lock()
		s := m.stream(stream)
		cursor, ok := s.cursors[group]
		if !ok {
			m.mu.Unlock()
			return nil, fmt.Errorf("eventlog: group %q not established on %q", group, stream)
		}

		var out []Entry
		for _, e := range s.entries {
			if e.id <= cursor {
				continue
			}
			if int64(len(out)) >= count {
				break
			}
			s.pel[group][e.id] = &pelEntry{entry: e, consumer: consumer, deliveredAt: time.Now()}
			out = append(out, Entry{ID: fmt.Sprintf("%d", e.id), Payload: e.payload})
			s.cursors[group] = e.id
		}
		m.mu.Unlock()

		if len(out) > 0 || block <= 0 || time.Now().After(deadline) {
			return out, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *Memory) Ack(_ context.Context, stream, group, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stream(stream)
	pel, ok := s.pel[group]
	if !ok {
		return fmt.Errorf("eventlog: group %q not established on %q", group, stream)
	}
	var numericID int64
	fmt.Sscanf(id, "%d", &numericID)
	delete(pel, numericID)
	return nil
}

func (m *Memory) StreamLength(_ context.Context, stream string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.stream(stream).entries)), nil
}

func (m *Memory) PendingCount(_ context.Context, stream, group string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stream(stream)
	return int64(len(s.pel[group])), nil
}

func (m *Memory) ReclaimStale(_ context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stream(stream)
	pel, ok := s.pel[group]
	if !ok {
		return nil, nil
	}

	var out []Entry
	now := time.Now()
	for id, pe := range pel {
		if int64(len(out)) >= count {
			break
		}
		if now.Sub(pe.deliveredAt) < minIdle {
			continue
		}
		pe.consumer = consumer
		pe.deliveredAt = now
		out = append(out, Entry{ID: fmt.Sprintf("%d", id), Payload: pe.entry.payload})
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
