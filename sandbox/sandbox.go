package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/relmkit/rlm/core"
	"github.com/relmkit/rlm/logging"
)

// restrictedNames are operations that would grant filesystem, network or
// process access. They are rejected uniformly wherever they appear: as a
// binding target, as a bare reference or as a call.
var restrictedNames = map[string]bool{
	"open": true, "read_file": true, "write_file": true, "delete_file": true,
	"import": true, "exec": true, "eval": true, "compile": true,
	"spawn": true, "system": true, "subprocess": true, "os": true,
	"http": true, "fetch": true, "request": true, "socket": true, "connect": true,
}

func restrictedError(name string) error {
	return fmt.Errorf("%w: %q", core.ErrRestrictedOperation, name)
}

// SubCallFunc performs a nested model completion on behalf of sandboxed code.
// It blocks until the completion returns; its error is observable inside the
// sandbox as a catchable error value.
type SubCallFunc func(ctx context.Context, prompt string) (string, error)

// Options configures a Sandbox.
type Options struct {
	// SubCall handles llm(...) invocations. When nil the sandbox still
	// constructs, but llm calls fail with a catchable error.
	SubCall SubCallFunc

	// StepBudget caps interpreter steps per Execute call as a backstop
	// against runaway loops in generated code. 0 disables the cap.
	StepBudget int

	// Logger receives debug-level execution traces. Defaults to NoOp.
	Logger logging.Logger
}

// namespace holds the session's variable bindings.
type namespace struct {
	vars map[string]Value
}

func (ns *namespace) bind(name string, v Value)      { ns.vars[name] = v }
func (ns *namespace) lookup(name string) (Value, bool) { v, ok := ns.vars[name]; return v, ok }

func (ns *namespace) names() []string {
	out := make([]string, 0, len(ns.vars))
	for k := range ns.vars {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sandbox executes model-generated code fragments against a persistent
// namespace seeded with the original context text. It is owned by exactly one
// session and is not safe for concurrent use; the session's strictly
// sequential loop is the intended caller.
type Sandbox struct {
	opts        Options
	contextText string
	ns          *namespace
	caps        map[string]*builtin
}

// New constructs a sandbox whose namespace contains the reserved context
// binding. Construction failure is the fatal SandboxSetupFailure path: the
// caller must abort the session rather than retry.
func New(contextText string, optFns ...func(o *Options)) (*Sandbox, error) {
	opts := Options{
		StepBudget: 1_000_000,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Sandbox{
		opts:        opts,
		contextText: contextText,
		caps:        newCapabilityTable(),
	}
	for name := range s.caps {
		if restrictedNames[name] {
			return nil, fmt.Errorf("%w: capability table exposes restricted name %q", core.ErrSandboxSetup, name)
		}
	}
	s.Reset()
	return s, nil
}

// Reset discards all model-created bindings and reseeds the namespace with
// only the original context. Used between turns when the session is
// configured non-persistent.
func (s *Sandbox) Reset() {
	s.ns = &namespace{vars: map[string]Value{core.ContextVariable: Str(s.contextText)}}
}

// Execute runs one code fragment, returning the captured output. A runtime
// fault is returned as a non-nil error alongside any output produced before
// the fault; the caller is expected to fold it into the transcript rather
// than abort.
func (s *Sandbox) Execute(ctx context.Context, source string) (string, error) {
	stmts, err := parseSource(source)
	if err != nil {
		return "", fmt.Errorf("%w: syntax error: %v", core.ErrExecution, err)
	}
	in := &interp{sb: s, ctx: ctx}
	execErr := in.execStmts(stmts)
	out := in.out.String()
	if execErr != nil {
		s.opts.Logger.Debug("sandbox execution failed", "error", execErr)
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		return out, fmt.Errorf("%w: %w", core.ErrExecution, execErr)
	}
	return out, nil
}

// Parses reports whether source parses as executable statements. The output
// parser uses this to distinguish code turns from prose.
func (s *Sandbox) Parses(source string) bool {
	_, err := parseSource(source)
	return err == nil
}

// Lookup resolves a variable by name, used to materialize FINAL_VAR answers.
func (s *Sandbox) Lookup(name string) (Value, bool) {
	return s.ns.lookup(name)
}

// Names returns the sorted list of currently bound variable names.
func (s *Sandbox) Names() []string {
	return s.ns.names()
}

// Summary renders one line per binding (name, type, size) for inclusion in
// the model prompt, context variable first. Values are never inlined; the
// model reads them through code.
func (s *Sandbox) Summary() string {
	var sb strings.Builder
	describe := func(name string) {
		v, _ := s.ns.lookup(name)
		if n := v.Size(); n >= 0 {
			unit := "items"
			if v.Kind == KindString {
				unit = "chars"
			}
			fmt.Fprintf(&sb, "- %s: %s (%d %s)\n", name, v.Kind, n, unit)
			return
		}
		fmt.Fprintf(&sb, "- %s: %s = %s\n", name, v.Kind, v.Repr())
	}
	describe(core.ContextVariable)
	for _, name := range s.ns.names() {
		if name == core.ContextVariable {
			continue
		}
		describe(name)
	}
	return sb.String()
}
