package parser

import (
	"strings"

	"github.com/relmkit/rlm/core"
)

// Literal prefixes of the terminal directives. These are part of the wire
// contract with the model and must match exactly, case-sensitively.
const (
	finalPrefix    = "FINAL("
	finalVarPrefix = "FINAL_VAR("
)

// Options configures a Parser.
type Options struct {
	// CodeCheck reports whether text parses as executable sandbox
	// statements. When nil, nothing is classified as code.
	CodeCheck func(source string) bool
}

// Parser derives exactly one directive from each turn of raw model output.
// Parsing is a pure function of its input: re-parsing the same output yields
// the identical classification and argument text.
type Parser struct {
	opts Options
}

// New creates a Parser with optional overrides.
func New(optFns ...func(o *Options)) *Parser {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Parser{opts: opts}
}

// Parse classifies raw model output. Malformed terminal directives degrade to
// PlainText and return core.ErrUnbalancedDirective so the caller can feed a
// corrective hint back to the model instead of failing the session.
func (p *Parser) Parse(raw string) (core.Directive, error) {
	if name, start, ok := findDirective(raw); ok {
		arg, ok := scanBalanced(raw, start)
		if !ok {
			return core.PlainText(raw), core.ErrUnbalancedDirective
		}
		if name == "FINAL_VAR" {
			return core.FinalVariable(strings.TrimSpace(arg)), nil
		}
		return core.FinalAnswer(arg), nil
	}

	code := Unfence(raw)
	if p.opts.CodeCheck != nil && strings.TrimSpace(code) != "" && p.opts.CodeCheck(code) {
		return core.Code(code), nil
	}
	return core.PlainText(raw), nil
}

// findDirective locates the first occurrence of either terminal prefix and
// returns the directive name plus the index just past its opening
// parenthesis.
func findDirective(raw string) (name string, argStart int, ok bool) {
	fi := strings.Index(raw, finalPrefix)
	fvi := strings.Index(raw, finalVarPrefix)

	// FINAL( never matches inside FINAL_VAR( so the two indexes are
	// independent; pick whichever comes first.
	switch {
	case fvi >= 0 && (fi < 0 || fvi < fi):
		return "FINAL_VAR", fvi + len(finalVarPrefix), true
	case fi >= 0:
		return "FINAL", fi + len(finalPrefix), true
	default:
		return "", 0, false
	}
}

// scanBalanced walks raw from argStart tracking parenthesis depth (starting
// at 1 for the already-consumed opening parenthesis) and returns the argument
// ending where depth returns to zero. ok is false when the input ends before
// the directive closes.
func scanBalanced(raw string, argStart int) (arg string, ok bool) {
	depth := 1
	for i := argStart; i < len(raw); i++ {
		switch raw[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return raw[argStart:i], true
			}
		}
	}
	return "", false
}

// Unfence strips a surrounding Markdown code fence from text, returning the
// fenced body when the whole trimmed text is a single fenced block. Models
// habitually wrap code turns in fences; classification should see the code
// itself.
func Unfence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return text
	}
	rest := trimmed[3:]
	// Drop an optional language tag on the opening fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		first := strings.TrimSpace(rest[:nl])
		if !strings.ContainsAny(first, " \t") {
			rest = rest[nl+1:]
		}
	}
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return text
	}
	return rest[:end]
}
