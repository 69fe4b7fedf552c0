package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relmkit/rlm/core"
	"github.com/relmkit/rlm/dispatch"
	"github.com/relmkit/rlm/logging"
	"github.com/relmkit/rlm/model"
	"github.com/relmkit/rlm/parser"
	"github.com/relmkit/rlm/sandbox"
	"github.com/relmkit/rlm/trace"
)

// State describes where a session is in its lifecycle. Completed and Aborted
// are terminal.
type State int

const (
	StateRunning State = iota
	StateAwaitingModel
	StateExecuting
	StateCompleted
	StateAborted
)

// String returns a human readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Options configures an Engine.
type Options struct {
	// MaxIterations is the hard cap on model turns per session. Sub-calls
	// issued by sandboxed code do not count against it.
	MaxIterations int

	// Persistent keeps sandbox variables across turns. When false the
	// namespace is reset after every executed fragment and only the context
	// binding survives.
	Persistent bool

	// QueryPrefix is prepended to the user query. It never replaces the
	// system instructions.
	QueryPrefix string

	// SubModel handles llm(...) sub-calls. Defaults to the session backend.
	SubModel model.Model

	// SubCallBudget caps sub-calls across the whole session when positive.
	// Zero means unlimited.
	SubCallBudget int

	// StepBudget caps interpreter steps per executed fragment. Zero uses the
	// sandbox default.
	StepBudget int

	// RetryDelay is the backoff before retrying a failed top-level
	// completion.
	RetryDelay time.Duration

	// Sink receives one trace record per turn. Defaults to Discard.
	Sink trace.Sink

	// Logger receives structured progress events. Defaults to NoOp.
	Logger logging.Logger
}

// Engine runs sessions against a fixed backend. It is stateless across Run
// calls; each call creates a fresh session with its own sandbox.
type Engine struct {
	backend model.Model
	opts    Options
}

// New creates an Engine driving the given backend.
func New(backend model.Model, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxIterations: 30,
		Persistent:    true,
		RetryDelay:    2 * time.Second,
		Sink:          trace.Discard{},
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{backend: backend, opts: opts}
}

// Result is the outcome of one session.
type Result struct {
	// Answer is the final answer text, or the best-effort partial output
	// when the session aborted on budget exhaustion.
	Answer string

	// State is StateCompleted or StateAborted.
	State State

	// Cause is non-nil when State is StateAborted and classifies the abort
	// (core.ErrBudgetExhausted, core.ErrProvider or a context error).
	Cause error

	// SessionID correlates the result with its trace records.
	SessionID string

	// Iterations is the number of model turns consumed.
	Iterations int

	// Records is the ordered per-turn trace of the session.
	Records []core.Record
}

// session carries the mutable state of one Run call.
type session struct {
	eng        *Engine
	id         string
	sb         *sandbox.Sandbox
	parser     *parser.Parser
	transcript []model.Message
	records    []core.Record
	state      State
}

// Run executes one session over the given context text and query. A non-nil
// error means the session aborted on a fatal condition (sandbox setup,
// provider escalation or cancellation); budget exhaustion is a defined
// outcome reported through Result.Cause with a nil error.
func (e *Engine) Run(ctx context.Context, contextText, query string) (*Result, error) {
	s := &session{eng: e, id: core.NewID(), state: StateRunning}

	subBackend := e.opts.SubModel
	if subBackend == nil {
		subBackend = e.backend
	}
	var limiter *core.CallLimiter
	if e.opts.SubCallBudget > 0 {
		limiter = core.NewCallLimiter(e.opts.SubCallBudget)
	}
	dispatcher := dispatch.New(subBackend, func(o *dispatch.Options) {
		o.Budget = limiter
		o.RetryDelay = e.opts.RetryDelay
		o.Logger = e.opts.Logger
	})

	sb, err := sandbox.New(contextText, func(o *sandbox.Options) {
		o.SubCall = dispatcher.SubCall()
		o.Logger = e.opts.Logger
		if e.opts.StepBudget > 0 {
			o.StepBudget = e.opts.StepBudget
		}
	})
	if err != nil {
		return nil, err
	}
	s.sb = sb
	s.parser = parser.New(func(o *parser.Options) { o.CodeCheck = sb.Parses })

	first := query
	if e.opts.QueryPrefix != "" {
		first = e.opts.QueryPrefix + "\n\n" + query
	}
	first += "\n\n" + contextPreview(contextText)
	s.transcript = []model.Message{{Role: "user", Text: first}}

	e.opts.Logger.Info("session started", "sessionID", s.id, "maxIterations", e.opts.MaxIterations)
	return s.run(ctx)
}

func (s *session) run(ctx context.Context) (*Result, error) {
	opts := s.eng.opts
	turnPrompt := s.transcript[0].Text

	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return s.abort(iter, err), err
		}

		s.state = StateAwaitingModel
		raw, err := s.complete(ctx, iter)
		if err != nil {
			rec := s.newRecord(iter, turnPrompt)
			rec.ErrorText = err.Error()
			s.emit(rec)
			return s.abort(iter+1, err), err
		}

		rec := s.newRecord(iter, turnPrompt)
		rec.RawOutput = raw
		s.transcript = append(s.transcript, model.Message{Role: "assistant", Text: raw})

		d, perr := s.parser.Parse(raw)
		rec.Directive = d.Kind
		rec.Payload = d.Payload
		opts.Logger.Debug("turn parsed", "sessionID", s.id, "iteration", iter, "directive", d.Kind.String())

		switch d.Kind {
		case core.DirectiveFinalAnswer:
			s.emit(rec)
			return s.finish(iter+1, d.Payload), nil

		case core.DirectiveFinalVariable:
			if v, ok := s.sb.Lookup(d.Payload); ok {
				s.emit(rec)
				return s.finish(iter+1, v.Text()), nil
			}
			rec.ErrorText = fmt.Sprintf("%v: %s", core.ErrUnboundFinalVariable, d.Payload)
			s.emit(rec)
			turnPrompt = hintUnboundVariable(d.Payload)

		case core.DirectiveCode:
			s.state = StateExecuting
			out, execErr := s.sb.Execute(ctx, d.Payload)
			if ctx.Err() != nil {
				rec.ExecOutput = out
				rec.ErrorText = ctx.Err().Error()
				s.emit(rec)
				return s.abort(iter+1, ctx.Err()), ctx.Err()
			}
			rec.ExecOutput = out
			var errText string
			if execErr != nil {
				errText = execErr.Error()
				rec.ErrorText = errText
			}
			s.emit(rec)
			turnPrompt = renderExecutionResult(out, errText)
			if !opts.Persistent {
				s.sb.Reset()
			}

		default:
			if errors.Is(perr, core.ErrUnbalancedDirective) {
				rec.ErrorText = core.ErrUnbalancedDirective.Error()
				turnPrompt = hintUnbalanced
			} else {
				rec.ErrorText = core.ErrParseAmbiguous.Error()
				turnPrompt = hintNoDirective
			}
			s.emit(rec)
		}

		s.transcript = append(s.transcript, model.Message{Role: "user", Text: turnPrompt})
	}

	res := s.abort(opts.MaxIterations, core.ErrBudgetExhausted)
	res.Answer = s.bestEffortAnswer()
	if res.Answer == "" {
		res.Answer = "No final answer was produced within the iteration budget."
	}
	opts.Logger.Warn("iteration budget exhausted", "sessionID", s.id, "iterations", opts.MaxIterations)
	return res, nil
}

// complete performs one top-level model completion. The very first call of a
// session fails fast; later failures get a single retry with backoff before
// escalating.
func (s *session) complete(ctx context.Context, iter int) (string, error) {
	req := s.buildRequest()
	info := s.eng.backend.Info()

	resp, err := s.eng.backend.Complete(ctx, req)
	if err == nil {
		return resp.Text, nil
	}
	if iter == 0 {
		return "", core.ProviderError(info.Provider, err)
	}

	s.eng.opts.Logger.Warn("completion failed, retrying once",
		"sessionID", s.id, "iteration", iter, "provider", info.Provider, "error", err)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.eng.opts.RetryDelay):
	}
	resp, err = s.eng.backend.Complete(ctx, req)
	if err != nil {
		return "", core.ProviderError(info.Provider, err)
	}
	return resp.Text, nil
}

// buildRequest renders the transcript plus a live variable summary. The
// summary is appended to the last user message at request time only, so the
// stored transcript never goes stale.
func (s *session) buildRequest() model.Request {
	msgs := make([]model.Message, len(s.transcript))
	copy(msgs, s.transcript)
	last := len(msgs) - 1
	msgs[last].Text += "\n\n" + renderVariables(s.sb.Summary())
	return model.Request{Instructions: systemPrompt, Messages: msgs}
}

func (s *session) newRecord(iter int, prompt string) core.Record {
	rec := core.NewRecord(s.id, iter)
	rec.Prompt = prompt
	return rec
}

func (s *session) emit(rec core.Record) {
	s.records = append(s.records, rec)
	if err := s.eng.opts.Sink.Append(rec); err != nil {
		s.eng.opts.Logger.Warn("trace append failed", "sessionID", s.id, "error", err)
	}
}

func (s *session) finish(iterations int, answer string) *Result {
	s.state = StateCompleted
	s.eng.opts.Logger.Info("session completed", "sessionID", s.id, "iterations", iterations)
	return &Result{
		Answer:     answer,
		State:      StateCompleted,
		SessionID:  s.id,
		Iterations: iterations,
		Records:    s.records,
	}
}

func (s *session) abort(iterations int, cause error) *Result {
	s.state = StateAborted
	return &Result{
		State:      StateAborted,
		Cause:      cause,
		SessionID:  s.id,
		Iterations: iterations,
		Records:    s.records,
	}
}

// bestEffortAnswer salvages the most recent non-empty execution output when
// the budget runs out before a terminal directive.
func (s *session) bestEffortAnswer() string {
	for i := len(s.records) - 1; i >= 0; i-- {
		if out := s.records[i].ExecOutput; out != "" {
			return out
		}
	}
	return ""
}
