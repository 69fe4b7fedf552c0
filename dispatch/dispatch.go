// Package dispatch resolves sub-queries issued by sandboxed code into nested
// model completions. A sub-call blocks the executing fragment until its
// result returns; provider failures surface as catchable errors inside the
// sandbox rather than being swallowed. Recursion depth is deliberately not
// capped here: the orchestration loop's iteration budget is the backstop, and
// an optional shared call budget can tighten that without changing the
// default policy.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/relmkit/rlm/core"
	"github.com/relmkit/rlm/logging"
	"github.com/relmkit/rlm/model"
)

// SubQuery is one nested completion request created by executing code. It is
// consumed synchronously and never outlives the Execute call that created it.
type SubQuery struct {
	// Prompt is the fully rendered prompt text; code inlines any variable
	// content it wants the sub-model to see before calling.
	Prompt string
	// Model optionally overrides the dispatcher's default backend for this
	// query only.
	Model model.Model
}

// Options configures a Dispatcher.
type Options struct {
	// Instructions is the system prompt for sub-calls. Sub-calls are plain
	// completions, not nested sessions, so this stays short.
	Instructions string

	// RetryDelay is the backoff before the single retry after a provider
	// failure.
	RetryDelay time.Duration

	// Budget, when non-nil, is decremented per sub-call. Exhaustion surfaces
	// as a catchable error in the calling fragment.
	Budget *core.CallLimiter

	// Logger receives per-call debug traces. Defaults to NoOp.
	Logger logging.Logger
}

// Dispatcher performs nested model completions on behalf of the sandbox.
type Dispatcher struct {
	backend model.Model
	opts    Options
}

// New creates a Dispatcher with the given default backend.
func New(backend model.Model, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Instructions: "You are a helpful assistant answering a focused sub-question. Answer directly and concisely.",
		RetryDelay:   2 * time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{backend: backend, opts: opts}
}

// Dispatch resolves one sub-query, retrying once with backoff on provider
// failure. The returned error is already classified as a provider error so
// callers can distinguish it from sandbox faults.
func (d *Dispatcher) Dispatch(ctx context.Context, q SubQuery) (string, error) {
	backend := q.Model
	if backend == nil {
		backend = d.backend
	}
	if backend == nil {
		return "", fmt.Errorf("no sub-call backend configured")
	}

	if d.opts.Budget != nil {
		if err := d.opts.Budget.Increment(); err != nil {
			return "", fmt.Errorf("sub-call budget: %w", err)
		}
	}

	req := model.Request{
		Instructions: d.opts.Instructions,
		Messages:     []model.Message{{Role: "user", Text: q.Prompt}},
	}

	info := backend.Info()
	start := time.Now()
	resp, err := backend.Complete(ctx, req)
	if err != nil {
		d.opts.Logger.Warn("sub-call failed, retrying once",
			"provider", info.Provider, "model", info.Name, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d.opts.RetryDelay):
		}
		resp, err = backend.Complete(ctx, req)
		if err != nil {
			return "", core.ProviderError(info.Provider, err)
		}
	}
	d.opts.Logger.Debug("sub-call completed",
		"provider", info.Provider, "model", info.Name, "duration", time.Since(start))
	return resp.Text, nil
}

// SubCall adapts the dispatcher to the sandbox's sub-call hook.
func (d *Dispatcher) SubCall() func(ctx context.Context, prompt string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		return d.Dispatch(ctx, SubQuery{Prompt: prompt})
	}
}
