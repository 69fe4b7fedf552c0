package trace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/relmkit/rlm/core"
)

// JSONLWriter appends records to a writer as newline-delimited JSON, one
// record per line. A mutex guarantees per-line append atomicity when multiple
// sessions share the sink.
type JSONLWriter struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer // nil when the writer is not owned
}

// NewJSONLWriter wraps an existing writer. The caller retains ownership of w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{w: w}
}

// NewJSONLFile creates (or appends to) a timestamped trace file inside dir,
// creating dir if needed. Close releases the file.
func NewJSONLFile(dir string) (*JSONLWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	name := fmt.Sprintf("rlm-%s.jsonl", time.Now().UTC().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &JSONLWriter{w: f, c: f}, nil
}

// Append implements Sink.
func (j *JSONLWriter) Append(rec core.Record) error {
	line, err := rec.MarshalLine()
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.w.Write(line)
	return err
}

// Close releases the underlying file when this writer owns one.
func (j *JSONLWriter) Close() error {
	if j.c == nil {
		return nil
	}
	return j.c.Close()
}
