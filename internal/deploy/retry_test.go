package deploy

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	step := &fakeStep{name: "resolve-image"}
	step.run = func(context.Context, *State) error {
		if step.calls < 3 {
			return errors.New("dial tcp 203.0.113.1:443: connect: connection refused")
		}
		return nil
	}

	err := Retry(step, 3, time.Millisecond).Run(context.Background(), &State{})
	require.NoError(t, err)
	assert.Equal(t, 3, step.calls)
}

func TestRetryAbortsOnPermanentError(t *testing.T) {
	step := &fakeStep{name: "resolve-image", run: func(context.Context, *State) error {
		return errors.New("pull access denied for ghcr.io/acme/order-bot")
	}}

	err := Retry(step, 3, time.Millisecond).Run(context.Background(), &State{})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "max retries")
	assert.Equal(t, 1, step.calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	step := &fakeStep{name: "resolve-image", run: func(context.Context, *State) error {
		return errors.New("read tcp: connection reset by peer")
	}}

	err := Retry(step, 2, time.Millisecond).Run(context.Background(), &State{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "max retries exceeded after 2 attempts")
	assert.ErrorContains(t, err, "connection reset by peer")
	assert.Equal(t, 2, step.calls)
}

func TestRetryStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	step := &fakeStep{name: "resolve-image", run: func(context.Context, *State) error {
		cancel()
		return errors.New("connection refused")
	}}

	err := Retry(step, 3, 50*time.Millisecond).Run(ctx, &State{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, step.calls)
}

func TestRetryKeepsNameAndPlan(t *testing.T) {
	inner := &fakeStep{name: "resolve-image", plan: `pull image "ghcr.io/acme/order-bot:v3"`}
	wrapped := Retry(inner, 2, 0)

	assert.Equal(t, inner.name, wrapped.Name())
	assert.Equal(t, inner.plan, wrapped.Plan(&State{}))
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"skip outcome", skipStep("nothing to do"), false},
		{"warn outcome", warnStep(errors.New("registration failed")), false},
		{"net timeout", &net.DNSError{Err: "lookup timed out", IsTimeout: true}, true},
		{"connection refused", errors.New("dial tcp 10.0.0.1:8080: connect: connection refused"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"no such host", errors.New("dial tcp: lookup registry.invalid: no such host"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"permanent", errors.New("pull access denied"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isRetryable(tc.err))
		})
	}
}
