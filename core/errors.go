package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine's error taxonomy. Recoverable kinds are
// absorbed into the transcript and shown to the model so it can self-correct;
// only provider escalation and sandbox setup failures abort a session.
var (
	// ErrParseAmbiguous indicates no directive could be recognized in the
	// model output. Recoverable.
	ErrParseAmbiguous = errors.New("no directive recognized in model output")

	// ErrUnbalancedDirective indicates a FINAL/FINAL_VAR opening delimiter
	// that never closed. Recoverable.
	ErrUnbalancedDirective = errors.New("unbalanced parentheses in directive")

	// ErrUnboundFinalVariable indicates FINAL_VAR referenced a name absent
	// from the namespace. Recoverable.
	ErrUnboundFinalVariable = errors.New("final variable not bound in namespace")

	// ErrExecution indicates a runtime fault inside sandboxed code.
	// Recoverable; surfaced as the turn's output text.
	ErrExecution = errors.New("sandbox execution error")

	// ErrProvider indicates a transport, rate-limit or auth failure from a
	// model backend. Recoverable with one retry; fatal on escalation or when
	// the very first call of a session fails.
	ErrProvider = errors.New("model provider error")

	// ErrBudgetExhausted indicates the iteration cap was reached without a
	// terminal directive. Terminal but not exceptional: the session still
	// returns a best-effort partial result.
	ErrBudgetExhausted = errors.New("iteration budget exhausted")

	// ErrSandboxSetup indicates the execution environment could not be
	// constructed. Fatal; aborts the session immediately.
	ErrSandboxSetup = errors.New("sandbox setup failure")

	// ErrRestrictedOperation indicates sandboxed code attempted a
	// filesystem, network or process operation. Always rejected uniformly.
	ErrRestrictedOperation = errors.New("operation not permitted in sandbox")
)

// ProviderError wraps a backend failure with the provider name so the
// dispatcher and loop can report which backend misbehaved.
func ProviderError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProvider, provider, err)
}

// Recoverable reports whether the error is absorbed into the transcript
// rather than aborting the session.
func Recoverable(err error) bool {
	switch {
	case errors.Is(err, ErrSandboxSetup):
		return false
	case errors.Is(err, ErrParseAmbiguous),
		errors.Is(err, ErrUnbalancedDirective),
		errors.Is(err, ErrUnboundFinalVariable),
		errors.Is(err, ErrExecution),
		errors.Is(err, ErrProvider),
		errors.Is(err, ErrBudgetExhausted):
		return true
	default:
		return false
	}
}
