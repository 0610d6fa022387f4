// Package dedup suppresses duplicate records in a stream. It keeps the
// first record observed for each key and drops the rest, where the key
// is chosen by a Strategy of increasing specificity. The stream never
// has to be materialized: records are emitted as soon as they are seen,
// which matters for bulk downloads spanning months of files.
package dedup

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var dedupRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gdelt_dedup_records_total",
	Help: "Records seen by the deduplicator by outcome",
}, []string{"outcome"}) // "kept", "dropped"

// Deduplicate streams in to the returned channel, dropping every record
// whose key under s was already seen. First-seen order is preserved.
// The returned channel closes when in closes or ctx is cancelled.
func Deduplicate(ctx context.Context, in <-chan Record, s Strategy) <-chan Record {
	out := make(chan Record)

	go func() {
		defer close(out)

		logger := log.With().Str("component", "dedup").Str("strategy", s.String()).Logger()
		seen := make(map[string]struct{})
		var kept, dropped int64

		for {
			select {
			case <-ctx.Done():
				logger.Debug().Int64("kept", kept).Int64("dropped", dropped).Msg("Deduplication cancelled")
				return
			case r, ok := <-in:
				if !ok {
					logger.Debug().Int64("kept", kept).Int64("dropped", dropped).Msg("Deduplication complete")
					return
				}

				key := KeyFor(r, s)
				if _, dup := seen[key]; dup {
					dropped++
					dedupRecordsTotal.WithLabelValues("dropped").Inc()
					continue
				}
				seen[key] = struct{}{}

				select {
				case out <- r:
					kept++
					dedupRecordsTotal.WithLabelValues("kept").Inc()
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
