package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relmkit/rlm/core"
)

func TestParseFinalNestedParentheses(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "nested parenthetical in answer",
			raw:  "FINAL(About RLMs (Recursive Language Models) generally)",
			want: "About RLMs (Recursive Language Models) generally",
		},
		{
			name: "deeply nested",
			raw:  "FINAL(a (b (c (d))) e)",
			want: "a (b (c (d))) e",
		},
		{
			name: "surrounding prose",
			raw:  "Here is my answer.\nFINAL(42 (forty-two))\nDone.",
			want: "42 (forty-two)",
		},
		{
			name: "empty answer",
			raw:  "FINAL()",
			want: "",
		},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := p.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, core.DirectiveFinalAnswer, d.Kind)
			assert.Equal(t, tt.want, d.Payload)
		})
	}
}

func TestParseUnbalancedDirective(t *testing.T) {
	p := New()
	tests := []string{
		"FINAL(the answer is (unclosed",
		"FINAL(((never closes))",
		"FINAL_VAR(result",
	}
	for _, raw := range tests {
		d, err := p.Parse(raw)
		require.ErrorIs(t, err, core.ErrUnbalancedDirective)
		// Degrades to plain text instead of a truncated partial match.
		assert.Equal(t, core.DirectivePlainText, d.Kind)
		assert.Equal(t, raw, d.Payload)
	}
}

func TestParseFinalVar(t *testing.T) {
	p := New()
	d, err := p.Parse("FINAL_VAR( answer )")
	require.NoError(t, err)
	assert.Equal(t, core.DirectiveFinalVariable, d.Kind)
	assert.Equal(t, "answer", d.Payload)
}

func TestParseFinalVarPrecedesFinal(t *testing.T) {
	p := New()
	d, err := p.Parse("FINAL_VAR(x) and later FINAL(y)")
	require.NoError(t, err)
	assert.Equal(t, core.DirectiveFinalVariable, d.Kind)
	assert.Equal(t, "x", d.Payload)
}

func TestParseCodeClassification(t *testing.T) {
	looksLikeAssignment := func(source string) bool {
		return strings.Contains(source, "=")
	}
	p := New(func(o *Options) { o.CodeCheck = looksLikeAssignment })

	d, err := p.Parse(`x = 1`)
	require.NoError(t, err)
	assert.Equal(t, core.DirectiveCode, d.Kind)
	assert.Equal(t, `x = 1`, d.Payload)

	d, err = p.Parse("just thinking out loud")
	require.NoError(t, err)
	assert.Equal(t, core.DirectivePlainText, d.Kind)
}

func TestParseFencedCode(t *testing.T) {
	p := New(func(o *Options) { o.CodeCheck = func(string) bool { return true } })
	d, err := p.Parse("```\nx = len(context)\n```")
	require.NoError(t, err)
	assert.Equal(t, core.DirectiveCode, d.Kind)
	assert.Equal(t, "x = len(context)\n", d.Payload)
}

func TestParseNoCodeCheckDefaultsToPlainText(t *testing.T) {
	p := New()
	d, err := p.Parse("x = 1")
	require.NoError(t, err)
	assert.Equal(t, core.DirectivePlainText, d.Kind)
}

func TestParseIdempotent(t *testing.T) {
	p := New(func(o *Options) { o.CodeCheck = func(string) bool { return false } })
	inputs := []string{
		"FINAL(nested (answer) here)",
		"FINAL(broken (",
		"plain prose",
		"FINAL_VAR(v)",
	}
	for _, raw := range inputs {
		d1, err1 := p.Parse(raw)
		d2, err2 := p.Parse(raw)
		assert.Equal(t, d1, d2)
		assert.Equal(t, err1, err2)
	}
}
