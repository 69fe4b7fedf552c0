package model

import (
	"context"
	"fmt"
	"sync"
)

// Message is one entry of a conversation transcript in provider-neutral form.
type Message struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// Request captures the normalized model input produced by the engine.
// Instructions carry the system prompt separately so adapters can map it to
// each provider's convention without re-parsing the transcript.
type Request struct {
	Instructions string    `json:"instructions"`
	Messages     []Message `json:"messages"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a completed (non-streaming) model turn.
type Response struct {
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "local", etc.
}

// Model is the minimal interface required to drive generation. Complete
// blocks until the provider returns; the engine's loop is strictly
// sequential, so no streaming surface is exposed.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples. It
// replays scripted responses in order and records every request it receives.
// Safe for concurrent use.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	scripted  []scriptedResponse
	pos       int
	requests  []Request
	fallbackF func(Request) (Response, error)
}

type scriptedResponse struct {
	text string
	err  error
}

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: provider}}
}

// Enqueue appends a canned completion returned by the next Complete call.
func (m *MockModel) Enqueue(text string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, scriptedResponse{text: text})
	return m
}

// EnqueueError appends a failure returned by the next Complete call.
func (m *MockModel) EnqueueError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, scriptedResponse{err: err})
	return m
}

// SetFallback installs a handler used once the script is exhausted.
func (m *MockModel) SetFallback(fn func(Request) (Response, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbackF = fn
}

// Requests returns a copy of all requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns the number of Complete calls received.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Complete implements Model by replaying the script.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.pos < len(m.scripted) {
		s := m.scripted[m.pos]
		m.pos++
		if s.err != nil {
			return Response{}, s.err
		}
		return Response{Text: s.text, FinishReason: "stop"}, nil
	}
	if m.fallbackF != nil {
		return m.fallbackF(req)
	}
	return Response{}, fmt.Errorf("mock model %q: script exhausted after %d calls", m.info.Name, len(m.requests))
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
