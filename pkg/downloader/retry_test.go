package downloader

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/RBozydar/go-gdelt/pkg/security"
)

func TestRetryWithBackoff_Success(t *testing.T) {
	ctx := context.Background()

	callCount := 0
	err := retryWithBackoff(ctx, 3, func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	ctx := context.Background()

	callCount := 0
	err := retryWithBackoff(ctx, 3, func() error {
		callCount++
		if callCount < 3 {
			return &APIError{StatusCode: http.StatusInternalServerError, Message: "transient"}
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_Exhaustion(t *testing.T) {
	ctx := context.Background()

	callCount := 0
	testErr := &APIError{StatusCode: http.StatusInternalServerError, Message: "persistent"}
	err := retryWithBackoff(ctx, 3, func() error {
		callCount++
		return testErr
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}

	// The underlying API error stays reachable through the wrapper.
	apiErr, ok := IsAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("wrapped APIError not reachable: %v", err)
	}
}

func TestRetryWithBackoff_ClientErrorNotRetried(t *testing.T) {
	ctx := context.Background()

	callCount := 0
	testErr := &APIError{StatusCode: http.StatusNotFound, Message: "missing"}
	err := retryWithBackoff(ctx, 3, func() error {
		callCount++
		return testErr
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call (4xx never retried), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("client errors must not be reported as exhausted retries")
	}
}

func TestRetryWithBackoff_SecurityViolationNotRetried(t *testing.T) {
	ctx := context.Background()

	callCount := 0
	err := retryWithBackoff(ctx, 3, func() error {
		callCount++
		// A real violation from an untrusted host.
		_, verr := security.ValidateURL("https://evil.example.com/file.zip")
		return verr
	})

	if err == nil {
		t.Fatal("expected violation to surface")
	}
	if !security.IsViolation(err) {
		t.Errorf("error = %v, want violation", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call (violations never retried), got %d", callCount)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	err := retryWithBackoff(ctx, 3, func() error {
		callCount++
		if callCount == 1 {
			cancel()
		}
		return &APIError{StatusCode: http.StatusInternalServerError, Message: "fail"}
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("expected ErrContextCancelled, got %v", err)
	}
	if callCount >= 3 {
		t.Errorf("expected fewer than 3 calls after cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing-sensitive test in short mode")
	}

	ctx := context.Background()

	var timestamps []time.Time
	_ = retryWithBackoff(ctx, 3, func() error {
		timestamps = append(timestamps, time.Now())
		return &APIError{StatusCode: http.StatusInternalServerError, Message: "fail"}
	})

	if len(timestamps) != 3 {
		t.Fatalf("expected 3 timestamps, got %d", len(timestamps))
	}

	firstDelay := timestamps[1].Sub(timestamps[0])
	secondDelay := timestamps[2].Sub(timestamps[1])

	// Server-error config: ~1s then ~2s, each with ±20% jitter.
	if firstDelay < 500*time.Millisecond || firstDelay > 2*time.Second {
		t.Errorf("first retry delay %v outside expected range", firstDelay)
	}
	if secondDelay < 1*time.Second || secondDelay > 4*time.Second {
		t.Errorf("second retry delay %v outside expected range", secondDelay)
	}
}

func TestRetryWithBackoff_HonorsRetryAfterHint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing-sensitive test in short mode")
	}

	ctx := context.Background()

	var timestamps []time.Time
	_ = retryWithBackoff(ctx, 2, func() error {
		timestamps = append(timestamps, time.Now())
		return &APIError{
			StatusCode: http.StatusTooManyRequests,
			Message:    "slow down",
			RetryAfter: 1 * time.Second,
		}
	})

	if len(timestamps) != 2 {
		t.Fatalf("expected 2 timestamps, got %d", len(timestamps))
	}

	// The 1s hint overrides the 5s rate-limit default, jitter ±20%.
	delay := timestamps[1].Sub(timestamps[0])
	if delay < 700*time.Millisecond || delay > 1500*time.Millisecond {
		t.Errorf("delay %v does not honor the Retry-After hint", delay)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{http.StatusTooManyRequests, ErrorClassRateLimit},
		{http.StatusNotFound, ErrorClassClient},
		{http.StatusBadRequest, ErrorClassClient},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusBadGateway, ErrorClassServer},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
