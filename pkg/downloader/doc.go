// Package downloader retrieves GDELT bulk files over HTTPS.
//
// It enumerates the deterministic, fixed-cadence file URLs for a date
// range, streams their decompressed contents with bounded concurrency,
// and consults the on-disk cache before any network call. Every URL, cache
// path, and decompressed payload passes through pkg/security first.
//
// The streaming path holds at most maxConcurrent decoded payloads in
// memory at once: a completed payload is handed to the consumer over an
// unbuffered channel and its admission slot is released only after that
// hand-off, so peak memory is bounded by the window size rather than the
// total URL count.
package downloader
