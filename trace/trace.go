// Package trace persists the ordered per-turn records a session emits. The
// in-memory recorder serves tests and ephemeral chat servers; the JSONL
// writer appends one structured line per record for durable, append-only
// logging. Order across concurrent sessions is not guaranteed, only
// append-atomicity per line.
package trace

import (
	"sync"

	"github.com/relmkit/rlm/core"
)

// Sink receives records as a session produces them. Implementations must be
// safe for concurrent append from independent sessions.
type Sink interface {
	Append(rec core.Record) error
}

// Memory is a volatile Sink storing records in a process-local map keyed by
// session ID. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Returned slices are copies to prevent external
// mutation of internal state.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]core.Record
}

// NewMemory constructs an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]core.Record)}
}

// Append implements Sink.
func (m *Memory) Append(rec core.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SessionID] = append(m.records[rec.SessionID], rec)
	return nil
}

// Records returns a copy of the record slice for a session.
func (m *Memory) Records(sessionID string) []core.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.records[sessionID]
	out := make([]core.Record, len(recs))
	copy(out, recs)
	return out
}

// Sessions returns the IDs of all sessions with at least one record.
func (m *Memory) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.records))
	for id := range m.records {
		out = append(out, id)
	}
	return out
}

// Multi fans records out to several sinks, stopping at the first error.
type Multi []Sink

// Append implements Sink.
func (m Multi) Append(rec core.Record) error {
	for _, s := range m {
		if err := s.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

// Discard is a Sink that drops every record.
type Discard struct{}

// Append implements Sink.
func (Discard) Append(core.Record) error { return nil }
