package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relmkit/rlm/core"
	"github.com/relmkit/rlm/model"
	"github.com/relmkit/rlm/trace"
)

func fastRetry(o *Options) { o.RetryDelay = time.Millisecond }

func TestFinalAnswerFirstTurn(t *testing.T) {
	backend := model.NewMockModel("m", "mock").Enqueue("FINAL(the answer is 42)")
	eng := New(backend, fastRetry)

	res, err := eng.Run(context.Background(), "irrelevant", "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, "the answer is 42", res.Answer)
	assert.Equal(t, 1, res.Iterations)
	require.Len(t, res.Records, 1)
	assert.Equal(t, core.DirectiveFinalAnswer, res.Records[0].Directive)
}

func TestCodeTurnThenFinalVar(t *testing.T) {
	backend := model.NewMockModel("m", "mock").
		Enqueue("x = len(context)\nx").
		Enqueue("FINAL_VAR(x)")
	eng := New(backend, fastRetry)

	res, err := eng.Run(context.Background(), "hello world", "how long is the text?")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, "11", res.Answer)
	assert.Equal(t, 2, res.Iterations)

	// The second request carries the first fragment's echoed output and the
	// live variable summary.
	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Contains(t, last.Text, "Output:")
	assert.Contains(t, last.Text, "11")
	assert.Contains(t, last.Text, "Sandbox variables:")
	assert.Contains(t, last.Text, "x")
}

func TestSystemInstructionsAndPreview(t *testing.T) {
	backend := model.NewMockModel("m", "mock").Enqueue("FINAL(ok)")
	eng := New(backend, fastRetry, func(o *Options) {
		o.QueryPrefix = "Answer using only the provided context."
	})

	ctxText := strings.Repeat("a", 2000)
	_, err := eng.Run(context.Background(), ctxText, "the question")
	require.NoError(t, err)

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, "FINAL(")
	assert.Contains(t, reqs[0].Instructions, "llm(")

	first := reqs[0].Messages[0].Text
	assert.True(t, strings.HasPrefix(first, "Answer using only the provided context."))
	assert.Contains(t, first, "the question")
	assert.Contains(t, first, "2000 characters")
	assert.NotContains(t, first, strings.Repeat("a", 1000), "context must not be inlined wholesale")
}

func TestBudgetExhaustedAfterExactTurns(t *testing.T) {
	backend := model.NewMockModel("m", "mock")
	backend.SetFallback(func(model.Request) (model.Response, error) {
		return model.Response{Text: "Let me think about this some more.", FinishReason: "stop"}, nil
	})
	eng := New(backend, fastRetry, func(o *Options) { o.MaxIterations = 3 })

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, StateAborted, res.State)
	assert.ErrorIs(t, res.Cause, core.ErrBudgetExhausted)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, backend.CallCount())
	assert.NotEmpty(t, res.Answer, "abort still reports an explicit outcome")
}

func TestBudgetAbortKeepsPartialOutput(t *testing.T) {
	backend := model.NewMockModel("m", "mock").Enqueue(`print("partial finding")`)
	backend.SetFallback(func(model.Request) (model.Response, error) {
		return model.Response{Text: "still working on it", FinishReason: "stop"}, nil
	})
	eng := New(backend, fastRetry, func(o *Options) { o.MaxIterations = 2 })

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, StateAborted, res.State)
	assert.Contains(t, res.Answer, "partial finding")
}

func TestUnboundFinalVarFeedsHint(t *testing.T) {
	backend := model.NewMockModel("m", "mock").
		Enqueue("FINAL_VAR(answer)").
		Enqueue("FINAL(recovered)")
	eng := New(backend, fastRetry)

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Answer)

	reqs := backend.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Contains(t, last.Text, `"answer"`)
	assert.Contains(t, last.Text, "vars()")
}

func TestUnbalancedDirectiveFeedsHint(t *testing.T) {
	backend := model.NewMockModel("m", "mock").
		Enqueue("FINAL(this never closes").
		Enqueue("FINAL(closed)")
	eng := New(backend, fastRetry)

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, "closed", res.Answer)

	reqs := backend.Requests()
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Contains(t, last.Text, "unbalanced")
	require.Len(t, res.Records, 2)
	assert.Equal(t, core.DirectivePlainText, res.Records[0].Directive)
}

func TestPersistenceAcrossTurns(t *testing.T) {
	backend := model.NewMockModel("m", "mock").
		Enqueue("x = 7").
		Enqueue("FINAL_VAR(x)")
	eng := New(backend, fastRetry)

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, "7", res.Answer)
}

func TestNonPersistentResetsBetweenTurns(t *testing.T) {
	backend := model.NewMockModel("m", "mock").
		Enqueue("x = 7").
		Enqueue("FINAL_VAR(x)").
		Enqueue("FINAL(gone)")
	eng := New(backend, fastRetry, func(o *Options) { o.Persistent = false })

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, "gone", res.Answer)
	assert.Equal(t, 3, res.Iterations)
}

func TestExecutionErrorShownToModel(t *testing.T) {
	backend := model.NewMockModel("m", "mock").
		Enqueue(`x = context[0] + 1`).
		Enqueue("FINAL(done)")
	eng := New(backend, fastRetry)

	res, err := eng.Run(context.Background(), "abc", "q")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)

	reqs := backend.Requests()
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Contains(t, last.Text, "Error:")
	require.Len(t, res.Records, 2)
	assert.NotEmpty(t, res.Records[0].ErrorText)
}

func TestFirstCallProviderFailureIsFatal(t *testing.T) {
	backend := model.NewMockModel("m", "mock").EnqueueError(errors.New("connection refused"))
	eng := New(backend, fastRetry)

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 1, backend.CallCount(), "first call fails fast without retry")
}

func TestLaterFailureRetriesOnce(t *testing.T) {
	backend := model.NewMockModel("m", "mock").
		Enqueue("x = 1").
		EnqueueError(errors.New("rate limited")).
		Enqueue("FINAL(ok)")
	eng := New(backend, fastRetry)

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Answer)
	assert.Equal(t, 3, backend.CallCount())
}

func TestRepeatedFailureEscalates(t *testing.T) {
	backend := model.NewMockModel("m", "mock").
		Enqueue("x = 1").
		EnqueueError(errors.New("rate limited")).
		EnqueueError(errors.New("rate limited"))
	eng := New(backend, fastRetry)

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Equal(t, StateAborted, res.State)
	assert.ErrorIs(t, res.Cause, core.ErrProvider)
}

func TestSubCallRoutedToSubModel(t *testing.T) {
	sub := model.NewMockModel("small", "mock").Enqueue("4")
	backend := model.NewMockModel("big", "mock").
		Enqueue(`answer = llm("What is 2+2?")`).
		Enqueue("FINAL_VAR(answer)")
	eng := New(backend, fastRetry, func(o *Options) { o.SubModel = sub })

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, "4", res.Answer)

	subReqs := sub.Requests()
	require.Len(t, subReqs, 1)
	assert.Equal(t, "What is 2+2?", subReqs[0].Messages[0].Text)
	assert.Equal(t, 2, backend.CallCount(), "sub-calls never consume loop iterations")
}

func TestSubCallBudgetSurfacesInSandbox(t *testing.T) {
	sub := model.NewMockModel("small", "mock").Enqueue("one").Enqueue("never")
	backend := model.NewMockModel("big", "mock").
		Enqueue("a = llm(\"first\")\nb = llm(\"second\")").
		Enqueue("FINAL(done)")
	eng := New(backend, fastRetry, func(o *Options) {
		o.SubModel = sub
		o.SubCallBudget = 1
	})

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	require.Len(t, res.Records, 2)
	assert.Contains(t, res.Records[0].ErrorText, "sub-call budget")
	assert.Equal(t, 1, sub.CallCount())
}

func TestCancellationBeforeFirstTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := model.NewMockModel("m", "mock").Enqueue("FINAL(never)")
	eng := New(backend, fastRetry)

	res, err := eng.Run(ctx, "ctx", "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAborted, res.State)
	assert.Equal(t, 0, backend.CallCount())
}

func TestTraceRecords(t *testing.T) {
	mem := trace.NewMemory()
	backend := model.NewMockModel("m", "mock").
		Enqueue("x = 1 + 1\nx").
		Enqueue("FINAL(two)")
	eng := New(backend, fastRetry, func(o *Options) { o.Sink = mem })

	res, err := eng.Run(context.Background(), "ctx", "q")
	require.NoError(t, err)

	recs := mem.Records(res.SessionID)
	require.Len(t, recs, 2)
	assert.Equal(t, core.DirectiveCode, recs[0].Directive)
	assert.Equal(t, "2\n", recs[0].ExecOutput)
	assert.Equal(t, core.DirectiveFinalAnswer, recs[1].Directive)
	assert.Equal(t, "two", recs[1].Payload)
	assert.Equal(t, 0, recs[0].Iteration)
	assert.Equal(t, 1, recs[1].Iteration)
}

func TestFencedCodeTurn(t *testing.T) {
	backend := model.NewMockModel("m", "mock").
		Enqueue("```\nx = upper(context)\n```").
		Enqueue("FINAL_VAR(x)")
	eng := New(backend, fastRetry)

	res, err := eng.Run(context.Background(), "abc", "q")
	require.NoError(t, err)
	assert.Equal(t, "ABC", res.Answer)
}
