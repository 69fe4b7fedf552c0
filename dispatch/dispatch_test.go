package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relmkit/rlm/core"
	"github.com/relmkit/rlm/model"
)

func newFastDispatcher(backend model.Model, optFns ...func(o *Options)) *Dispatcher {
	fns := append([]func(o *Options){func(o *Options) { o.RetryDelay = time.Millisecond }}, optFns...)
	return New(backend, fns...)
}

func TestDispatchSuccess(t *testing.T) {
	backend := model.NewMockModel("sub", "mock")
	backend.Enqueue("the answer")

	d := newFastDispatcher(backend)
	result, err := d.Dispatch(context.Background(), SubQuery{Prompt: "question"})
	require.NoError(t, err)
	assert.Equal(t, "the answer", result)

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "question", reqs[0].Messages[0].Text)
	assert.NotEmpty(t, reqs[0].Instructions)
}

func TestDispatchRetriesOnce(t *testing.T) {
	backend := model.NewMockModel("sub", "mock")
	backend.EnqueueError(errors.New("429 too many requests"))
	backend.Enqueue("recovered")

	d := newFastDispatcher(backend)
	result, err := d.Dispatch(context.Background(), SubQuery{Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, 2, backend.CallCount())
}

func TestDispatchEscalatesAfterSecondFailure(t *testing.T) {
	backend := model.NewMockModel("sub", "mock")
	backend.EnqueueError(errors.New("down"))
	backend.EnqueueError(errors.New("still down"))

	d := newFastDispatcher(backend)
	_, err := d.Dispatch(context.Background(), SubQuery{Prompt: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Equal(t, 2, backend.CallCount())
}

func TestDispatchModelOverride(t *testing.T) {
	def := model.NewMockModel("default", "mock")
	override := model.NewMockModel("cheap", "mock")
	override.Enqueue("from override")

	d := newFastDispatcher(def)
	result, err := d.Dispatch(context.Background(), SubQuery{Prompt: "q", Model: override})
	require.NoError(t, err)
	assert.Equal(t, "from override", result)
	assert.Equal(t, 0, def.CallCount())
}

func TestDispatchBudget(t *testing.T) {
	backend := model.NewMockModel("sub", "mock")
	backend.Enqueue("one").Enqueue("two")

	budget := core.NewCallLimiter(1)
	d := newFastDispatcher(backend, func(o *Options) { o.Budget = budget })

	_, err := d.Dispatch(context.Background(), SubQuery{Prompt: "a"})
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), SubQuery{Prompt: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sub-call budget")
	assert.Equal(t, 1, backend.CallCount())
}

func TestDispatchCancelledDuringBackoff(t *testing.T) {
	backend := model.NewMockModel("sub", "mock")
	backend.EnqueueError(errors.New("down"))

	d := New(backend, func(o *Options) { o.RetryDelay = time.Minute })
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := d.Dispatch(ctx, SubQuery{Prompt: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubCallAdapter(t *testing.T) {
	backend := model.NewMockModel("sub", "mock")
	backend.Enqueue("adapted")

	fn := newFastDispatcher(backend).SubCall()
	result, err := fn(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "adapted", result)
}
