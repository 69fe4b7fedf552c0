package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectiveKindString(t *testing.T) {
	tests := []struct {
		kind DirectiveKind
		want string
	}{
		{DirectivePlainText, "plain_text"},
		{DirectiveCode, "code"},
		{DirectiveFinalAnswer, "final_answer"},
		{DirectiveFinalVariable, "final_variable"},
		{DirectiveKind(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestDirectiveTerminal(t *testing.T) {
	assert.True(t, FinalAnswer("42").Terminal())
	assert.True(t, FinalVariable("x").Terminal())
	assert.False(t, Code(`x = 1`).Terminal())
	assert.False(t, PlainText("thinking...").Terminal())
}

func TestRecordMarshalLine(t *testing.T) {
	rec := NewRecord("sess-1", 3)
	rec.Prompt = "question"
	rec.RawOutput = "FINAL(42)"
	rec.Directive = DirectiveFinalAnswer
	rec.Payload = "42"

	line, err := rec.MarshalLine()
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(line), "\n"))
	assert.Equal(t, 1, strings.Count(string(line), "\n"))

	var decoded Record
	require.NoError(t, json.Unmarshal(line, &decoded))
	assert.Equal(t, rec.ID, decoded.ID)
	assert.Equal(t, "sess-1", decoded.SessionID)
	assert.Equal(t, 3, decoded.Iteration)
	assert.Equal(t, DirectiveFinalAnswer, decoded.Directive)
}

func TestRecoverable(t *testing.T) {
	assert.True(t, Recoverable(ErrParseAmbiguous))
	assert.True(t, Recoverable(ErrUnbalancedDirective))
	assert.True(t, Recoverable(ErrUnboundFinalVariable))
	assert.True(t, Recoverable(ErrExecution))
	assert.True(t, Recoverable(ProviderError("openai", errors.New("429"))))
	assert.False(t, Recoverable(ErrSandboxSetup))
	assert.False(t, Recoverable(errors.New("unrelated")))
}

func TestCallLimiter(t *testing.T) {
	cl := NewCallLimiter(2)
	require.NoError(t, cl.Increment())
	require.NoError(t, cl.Increment())
	assert.Error(t, cl.Increment())
	assert.Equal(t, 3, cl.Count())

	unlimited := NewCallLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Increment())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}
