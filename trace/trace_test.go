package trace

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relmkit/rlm/core"
)

func TestMemoryRecorder(t *testing.T) {
	m := NewMemory()
	r1 := core.NewRecord("a", 0)
	r2 := core.NewRecord("a", 1)
	r3 := core.NewRecord("b", 0)
	require.NoError(t, m.Append(r1))
	require.NoError(t, m.Append(r2))
	require.NoError(t, m.Append(r3))

	recs := m.Records("a")
	require.Len(t, recs, 2)
	assert.Equal(t, r1.ID, recs[0].ID)
	assert.Equal(t, r2.ID, recs[1].ID)

	// Returned slice is a copy.
	recs[0].SessionID = "mutated"
	assert.Equal(t, "a", m.Records("a")[0].SessionID)

	assert.ElementsMatch(t, []string{"a", "b"}, m.Sessions())
}

func TestMemoryConcurrentAppend(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = m.Append(core.NewRecord("shared", j))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, m.Records("shared"), 400)
}

func TestJSONLWriterOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf)

	rec := core.NewRecord("s", 0)
	rec.RawOutput = "FINAL(x)\nwith newline"
	require.NoError(t, w.Append(rec))
	require.NoError(t, w.Append(core.NewRecord("s", 1)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	var decoded core.Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &decoded))
	assert.Equal(t, "FINAL(x)\nwith newline", decoded.RawOutput)
}

func TestJSONLFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	w, err := NewJSONLFile(dir)
	require.NoError(t, err)
	require.NoError(t, w.Append(core.NewRecord("s", 0)))
	require.NoError(t, w.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "rlm-*.jsonl"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestMultiFanOut(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	sink := Multi{a, b, Discard{}}
	require.NoError(t, sink.Append(core.NewRecord("s", 0)))
	assert.Len(t, a.Records("s"), 1)
	assert.Len(t, b.Records("s"), 1)
}
