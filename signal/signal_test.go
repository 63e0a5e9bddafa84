package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose_NoInputs(t *testing.T) {
	ctx, cancel := Compose(nil, nil)
	defer cancel()
	assert.Nil(t, ctx)
}

func TestCompose_SingleInput(t *testing.T) {
	parent, abort := WithAbort(context.Background())
	ctx, cancel := Compose(nil, parent)
	defer cancel()

	require.NotNil(t, ctx)
	abort()
	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), ErrAborted)
}

func TestCompose_FirstCauseWins(t *testing.T) {
	a, abortA := WithAbort(context.Background())
	b, abortB := WithAbort(context.Background())
	timeout, cancelTimeout := WithTimeout(context.Background(), time.Hour)
	defer cancelTimeout()

	ctx, cancel := Compose(a, b, timeout)
	defer cancel()

	abortB()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("composed context not cancelled")
	}
	abortA()

	assert.ErrorIs(t, context.Cause(ctx), ErrAborted)
	assert.True(t, IsAborted(context.Cause(ctx)))
	assert.False(t, IsTimeout(context.Cause(ctx)))
}

func TestCompose_TimeoutCause(t *testing.T) {
	timeout, cancelTimeout := WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelTimeout()

	ctx, cancel := Compose(context.Background(), timeout)
	defer cancel()

	<-ctx.Done()
	cause := context.Cause(ctx)
	assert.ErrorIs(t, cause, ErrTimeout)
	assert.True(t, IsTimeout(cause))
	assert.False(t, IsAborted(cause))
}

func TestCompose_AlreadyDoneInput(t *testing.T) {
	done, abort := WithAbort(context.Background())
	abort()

	ctx, cancel := Compose(context.Background(), done)
	defer cancel()

	require.Error(t, ctx.Err())
	assert.ErrorIs(t, Reason(ctx), ErrAborted)
}

func TestCompose_CancelReleasesInputs(t *testing.T) {
	a, abortA := WithAbort(context.Background())
	defer abortA()

	ctx, cancel := Compose(context.Background(), a)
	cancel()

	require.Error(t, ctx.Err())
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
	assert.NoError(t, a.Err())
}

func TestWithTimeout_NonPositive(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok)
}

func TestClassification(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsAborted(context.Canceled))
	assert.False(t, IsAborted(nil))
	assert.False(t, IsAborted(errors.New("boom")))
	assert.Nil(t, Reason(context.Background()))
}
