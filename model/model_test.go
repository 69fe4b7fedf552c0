package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModelScript(t *testing.T) {
	m := NewMockModel("test", "mock")
	m.Enqueue("first").Enqueue("second").EnqueueError(errors.New("boom"))

	resp, err := m.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Text: "q"}}})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)

	resp, err = m.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Text)

	_, err = m.Complete(context.Background(), Request{})
	assert.EqualError(t, err, "boom")

	// Script exhausted with no fallback.
	_, err = m.Complete(context.Background(), Request{})
	assert.ErrorContains(t, err, "script exhausted")

	assert.Equal(t, 4, m.CallCount())
}

func TestMockModelFallback(t *testing.T) {
	m := NewMockModel("test", "mock")
	m.SetFallback(func(req Request) (Response, error) {
		return Response{Text: "echo: " + req.Messages[len(req.Messages)-1].Text}, nil
	})

	resp, err := m.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Text: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Text)
}

func TestMockModelRecordsRequests(t *testing.T) {
	m := NewMockModel("test", "mock")
	m.Enqueue("ok")
	req := Request{Instructions: "sys", Messages: []Message{{Role: "user", Text: "q"}}}
	_, err := m.Complete(context.Background(), req)
	require.NoError(t, err)

	got := m.Requests()
	require.Len(t, got, 1)
	assert.Equal(t, "sys", got[0].Instructions)
}

func TestMockModelHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMockModel("test", "mock")
	m.Enqueue("never")
	_, err := m.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.CallCount())
}
