package downloader

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// FetchOutcome is one result from a bulk stream: either a decompressed
// payload or the error that exhausted its retries. Bulk iteration never
// halts on an individual failure.
type FetchOutcome struct {
	URL  string
	Data []byte
	Err  error

	// StatusCode and RetryAfter are populated when Err wraps an APIError.
	StatusCode int
	RetryAfter time.Duration
}

// Stream downloads urls with at most maxConcurrent in flight and yields
// outcomes in completion order.
//
// The admission gate is a weighted semaphore. Each worker holds its slot
// while its payload is in memory and releases it only after the consumer
// has received the outcome from the unbuffered channel, so at most
// maxConcurrent decoded payloads exist at any instant regardless of
// len(urls). Cancelling ctx abandons pending and in-flight work; a task
// that did not complete writes no cache entry.
func (d *Downloader) Stream(ctx context.Context, urls []string, maxConcurrent int) <-chan FetchOutcome {
	if maxConcurrent < 1 {
		maxConcurrent = d.config.MaxConcurrent
	}

	// Unbuffered: the send is the hand-off that permits the next admit.
	out := make(chan FetchOutcome)
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	go func() {
		defer close(out)

		var wg sync.WaitGroup
		for _, url := range urls {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context cancelled: stop admitting new tasks.
				break
			}

			wg.Add(1)
			go func(url string) {
				defer wg.Done()

				outcome := d.fetchOutcome(ctx, url)

				select {
				case out <- outcome:
					// Consumer took the payload; drop our reference and
					// free the slot for the next admission.
					sem.Release(1)
				case <-ctx.Done():
					sem.Release(1)
				}
			}(url)
		}

		wg.Wait()
	}()

	return out
}

// fetchOutcome runs the single-file pipeline and packages the result.
func (d *Downloader) fetchOutcome(ctx context.Context, url string) FetchOutcome {
	data, err := d.DownloadAndExtract(ctx, url)
	if err != nil {
		outcome := FetchOutcome{URL: url, Err: err}
		if apiErr, ok := IsAPIError(err); ok {
			outcome.StatusCode = apiErr.StatusCode
			outcome.RetryAfter = apiErr.RetryAfter
		}
		d.logger.Warn().
			Str("url", url).
			Err(err).
			Msg("Bulk file failed; stream continues")
		return outcome
	}
	return FetchOutcome{URL: url, Data: data}
}
