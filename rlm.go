// Package rlm provides a high-level façade over the session engine: point it
// at a model backend, hand it a large context text plus a query, and it runs
// the code-driven exploration loop until the model commits to an answer. Most
// applications interact with this package by:
//  1. Creating an RLM via New() (picking a backend or supplying a model.Model)
//  2. Calling Answer() with the context text and the question
//  3. Inspecting the Result (answer, state, per-turn trace records)
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. Defaults are safe for local development: thirty
// iterations, a persistent sandbox namespace and no trace persistence unless
// a log directory is configured.
package rlm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/relmkit/rlm/engine"
	"github.com/relmkit/rlm/logging"
	"github.com/relmkit/rlm/model"
	"github.com/relmkit/rlm/model/anthropic"
	"github.com/relmkit/rlm/model/openai"
	"github.com/relmkit/rlm/trace"
)

// Result is the outcome of one answered query.
type Result = engine.Result

// Session lifecycle states re-exported for callers inspecting results.
const (
	StateCompleted = engine.StateCompleted
	StateAborted   = engine.StateAborted
)

// Backend selects a built-in model backend.
type Backend string

const (
	// BackendOpenAI uses the OpenAI Chat Completions API.
	BackendOpenAI Backend = "openai"
	// BackendAnthropic uses the Anthropic Messages API.
	BackendAnthropic Backend = "anthropic"
	// BackendLocal targets an OpenAI-compatible local server such as Ollama
	// or vLLM via BaseURL.
	BackendLocal Backend = "local"
)

// DefaultQueryPrefix keeps the model grounded in the provided context. It is
// prepended to every query unless overridden; it never replaces the system
// instructions.
const DefaultQueryPrefix = "Answer strictly from the provided context. " +
	"If the context does not contain the answer, say so explicitly."

// Options configures an RLM instance.
type Options struct {
	// Model is an explicit backend instance. When set, Backend/ModelName/
	// APIKey/BaseURL are ignored.
	Model model.Model

	// Backend picks a built-in backend when Model is nil.
	Backend Backend

	// ModelName is the provider-side model identifier, e.g. "gpt-5-mini" or
	// "claude-sonnet-4-5". Empty uses the adapter's default.
	ModelName string

	// APIKey overrides the environment credential for built-in backends.
	APIKey string

	// BaseURL is the server address for BackendLocal.
	BaseURL string

	// SubModel handles llm(...) sub-calls. Defaults to the main model.
	SubModel model.Model

	// MaxIterations caps model turns per query.
	MaxIterations int

	// Persistent keeps sandbox variables across turns.
	Persistent bool

	// QueryPrefix is prepended to every query. Defaults to
	// DefaultQueryPrefix; set to the empty string to disable.
	QueryPrefix string

	// SubCallBudget caps llm(...) sub-calls per query. Zero means unlimited.
	SubCallBudget int

	// LogDir, when non-empty, appends one JSONL trace file per RLM instance
	// under this directory.
	LogDir string

	// Sink receives trace records in addition to any LogDir file.
	Sink trace.Sink

	// Verbose installs a text logger on stderr at debug level when no Logger
	// is supplied.
	Verbose bool

	// Logger (defaults to NoOp logger if nil, or a debug text logger when
	// Verbose is set).
	Logger logging.Logger
}

// RLM answers queries about large texts by letting a model explore them
// through sandboxed code. Safe for concurrent Answer calls; each call runs an
// isolated session.
type RLM struct {
	opts   Options
	engine *engine.Engine
	file   *trace.JSONLWriter
}

// New creates an RLM instance with optional overrides.
func New(optFns ...func(o *Options)) (*RLM, error) {
	opts := Options{
		Backend:       BackendOpenAI,
		MaxIterations: 30,
		Persistent:    true,
		QueryPrefix:   DefaultQueryPrefix,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		if opts.Verbose {
			opts.Logger = logging.NewTextLogger(os.Stderr, slog.LevelDebug)
		} else {
			opts.Logger = logging.NoOpLogger{}
		}
	}

	backend := opts.Model
	if backend == nil {
		var err error
		backend, err = buildBackend(opts)
		if err != nil {
			return nil, err
		}
	}

	var file *trace.JSONLWriter
	sink := opts.Sink
	if opts.LogDir != "" {
		var err error
		file, err = trace.NewJSONLFile(opts.LogDir)
		if err != nil {
			return nil, err
		}
		if sink != nil {
			sink = trace.Multi{sink, file}
		} else {
			sink = file
		}
	}
	if sink == nil {
		sink = trace.Discard{}
	}

	eng := engine.New(backend, func(o *engine.Options) {
		o.MaxIterations = opts.MaxIterations
		o.Persistent = opts.Persistent
		o.QueryPrefix = opts.QueryPrefix
		o.SubModel = opts.SubModel
		o.SubCallBudget = opts.SubCallBudget
		o.Sink = sink
		o.Logger = opts.Logger
	})

	return &RLM{opts: opts, engine: eng, file: file}, nil
}

func buildBackend(opts Options) (model.Model, error) {
	switch opts.Backend {
	case BackendOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if opts.ModelName != "" {
				o.Model = opts.ModelName
			}
			o.APIKey = opts.APIKey
		}), nil
	case BackendAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if opts.ModelName != "" {
				o.Model = opts.ModelName
			}
			o.APIKey = opts.APIKey
		}), nil
	case BackendLocal:
		if opts.BaseURL == "" {
			return nil, fmt.Errorf("backend %q requires BaseURL", opts.Backend)
		}
		return openai.NewModel(func(o *openai.Options) {
			if opts.ModelName != "" {
				o.Model = opts.ModelName
			}
			o.APIKey = opts.APIKey
			o.BaseURL = opts.BaseURL
			o.Provider = "local"
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}

// Answer runs one session over contextText and returns the model's answer to
// query. See engine.Engine.Run for the error contract; budget exhaustion is
// reported through Result.Cause, not the error.
func (r *RLM) Answer(ctx context.Context, contextText, query string) (*Result, error) {
	return r.engine.Run(ctx, contextText, query)
}

// Close releases the trace file when LogDir was configured.
func (r *RLM) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
