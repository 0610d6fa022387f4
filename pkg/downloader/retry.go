package downloader

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RBozydar/go-gdelt/pkg/security"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// retryConfigForErrorClass returns the backoff shape for an error class.
// Rate-limit responses back off longer than plain server errors.
func retryConfigForErrorClass(class ErrorClass, maxAttempts int) RetryConfig {
	cfg := RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}

	switch class {
	case ErrorClassServer:
		cfg.MaxBackoff = 10 * time.Second
	case ErrorClassRateLimit:
		cfg.InitialBackoff = 5 * time.Second
		cfg.MaxBackoff = 60 * time.Second
	case ErrorClassNetwork:
		cfg.InitialBackoff = 2 * time.Second
	}

	return cfg
}

// retryWithBackoff executes fn with exponential backoff and ±20% jitter.
// Security violations and client errors are never retried; a Retry-After
// hint from a rate-limited response overrides the computed backoff.
func retryWithBackoff(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	var backoff time.Duration

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Download succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if security.IsViolation(err) {
			return err
		}

		class := classifyError(err)
		if !shouldRetry(class) {
			return lastErr
		}

		if attempt >= maxAttempts {
			break
		}

		config := retryConfigForErrorClass(class, maxAttempts)
		if backoff == 0 {
			backoff = config.InitialBackoff
		}

		wait := backoff
		if apiErr, ok := IsAPIError(err); ok && apiErr.RetryAfter > 0 {
			wait = apiErr.RetryAfter
		}

		// ±20% jitter to avoid synchronized retries.
		jitter := time.Duration(float64(wait) * (0.8 + rand.Float64()*0.4))

		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(jitter.Seconds())

		log.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying download after backoff")

		select {
		case <-ctx.Done():
			log.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	class := classifyError(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	log.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
