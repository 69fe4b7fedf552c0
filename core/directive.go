package core

// DirectiveKind enumerates the closed set of outcomes derived from one turn
// of raw model output. The orchestration loop switches exhaustively over this
// enum; adding a kind requires updating every switch.
type DirectiveKind int

const (
	// DirectivePlainText is prose with no recognized structure. Also the
	// degraded classification for malformed terminal directives.
	DirectivePlainText DirectiveKind = iota
	// DirectiveCode is an executable sandbox fragment.
	DirectiveCode
	// DirectiveFinalAnswer is a terminal FINAL(...) answer.
	DirectiveFinalAnswer
	// DirectiveFinalVariable is a terminal FINAL_VAR(...) reference to be
	// resolved against the live namespace.
	DirectiveFinalVariable
)

// String returns the wire name of the directive kind used in trace records.
func (k DirectiveKind) String() string {
	switch k {
	case DirectivePlainText:
		return "plain_text"
	case DirectiveCode:
		return "code"
	case DirectiveFinalAnswer:
		return "final_answer"
	case DirectiveFinalVariable:
		return "final_variable"
	default:
		return "unknown"
	}
}

// Directive is the tagged variant produced by the output parser. Exactly one
// is derived per turn. Payload holds the answer text, the variable name, the
// code source or the plain text depending on Kind.
type Directive struct {
	Kind    DirectiveKind `json:"kind"`
	Payload string        `json:"payload"`
}

// FinalAnswer constructs a terminal answer directive.
func FinalAnswer(text string) Directive {
	return Directive{Kind: DirectiveFinalAnswer, Payload: text}
}

// FinalVariable constructs a terminal variable-reference directive.
func FinalVariable(name string) Directive {
	return Directive{Kind: DirectiveFinalVariable, Payload: name}
}

// Code constructs an executable-code directive.
func Code(source string) Directive {
	return Directive{Kind: DirectiveCode, Payload: source}
}

// PlainText constructs a prose directive.
func PlainText(text string) Directive {
	return Directive{Kind: DirectivePlainText, Payload: text}
}

// Terminal reports whether the directive ends the session on its own.
func (d Directive) Terminal() bool {
	return d.Kind == DirectiveFinalAnswer || d.Kind == DirectiveFinalVariable
}
