package deploy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/exp/rand"

	"github.com/botdock/botdock/pkg/logger"
)

// Retry wraps a step so transient failures are attempted again with a
// growing, jittered delay. Non-retryable errors abort immediately.
func Retry(step Step, attempts int, delay time.Duration) Step {
	return &retryStep{Step: step, attempts: attempts, delay: delay}
}

type retryStep struct {
	Step
	attempts int
	delay    time.Duration
}

func (s *retryStep) Run(ctx context.Context, st *State) error {
	var lastErr error

	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			retryDelay := s.delay * time.Duration(attempt)
			var jitter time.Duration
			if half := int64(retryDelay / 2); half > 0 {
				jitter = time.Duration(rand.Int63n(half))
			}

			logger.Warn("Retrying step",
				"step", s.Name(),
				"attempt", attempt+1,
				"delay", (retryDelay + jitter).Round(time.Millisecond).String(),
				"error", lastErr)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay + jitter):
			}
		}

		lastErr = s.Step.Run(ctx, st)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("max retries exceeded after %d attempts: %w", s.attempts, lastErr)
}

// isRetryable reports whether an error is worth another attempt. Context
// cancellation and the skip/warn outcomes never are.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var skip *skipError
	var warn *warnError
	if errors.As(err, &skip) || errors.As(err, &warn) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection reset by peer",
		"broken pipe",
		"connection refused",
		"no such host",
		"i/o timeout",
		"unexpected eof",
		"connection timed out",
		"network is unreachable",
		"temporarily unavailable",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
