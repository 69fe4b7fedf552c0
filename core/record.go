package core

import (
	"encoding/json"
	"time"
)

// Record is the immutable trace entry for one turn of a session. After
// emission it should be treated as read-only. It captures:
//
//   - Correlation (SessionID, ID, Iteration)
//   - The prompt sent and the raw output received
//   - The parsed directive kind and payload
//   - Captured execution output / error text when code ran
//   - High precision UTC timestamp
//
// Each record serializes independently as a single line of JSON so traces can
// be appended to newline-delimited log sinks without framing.
type Record struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	Iteration  int           `json:"iteration"`
	Timestamp  time.Time     `json:"timestamp"`
	Prompt     string        `json:"prompt"`
	RawOutput  string        `json:"raw_output"`
	Directive  DirectiveKind `json:"directive"`
	Payload    string        `json:"payload,omitempty"`
	ExecOutput string        `json:"exec_output,omitempty"`
	ErrorText  string        `json:"error,omitempty"`
}

// NewRecord creates a record bound to a session and iteration with a fresh ID
// and UTC timestamp.
func NewRecord(sessionID string, iteration int) Record {
	return Record{
		ID:        NewID(),
		SessionID: sessionID,
		Iteration: iteration,
		Timestamp: time.Now().UTC(),
	}
}

// MarshalLine renders the record as one newline-terminated JSON line.
func (r Record) MarshalLine() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
