// Package source unifies the bulk file path with the secondary
// query-engine path behind one record-stream interface. The bulk path is
// always preferred; the secondary source serves queries the bulk path
// structurally cannot (per-record-id filtering) and, when enabled, acts
// as a transparent fallback on bulk rate limits and API errors.
package source

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RBozydar/go-gdelt/pkg/downloader"
	"github.com/RBozydar/go-gdelt/pkg/quota"
	"github.com/RBozydar/go-gdelt/pkg/security"
)

// Record is a raw GDELT record: column name to string value, column
// names lowercase. Records stay as plain maps through this layer; typed
// conversion is the caller's concern.
type Record = map[string]string

// Parser turns one decompressed bulk file into records. The URL is
// provided so the parser can stamp provenance or pick a column schema
// by file type.
type Parser func(url string, data []byte) ([]Record, error)

// RecordQuery describes one logical fetch.
type RecordQuery struct {
	Start    time.Time
	End      time.Time
	FileType downloader.FileType

	// RecordID restricts the fetch to a single event by its global id.
	// Bulk files cannot be filtered this way, so a non-empty RecordID
	// requires a configured secondary source.
	RecordID string

	// Columns restricts records to a column subset. Empty means all.
	Columns []string
}

// QueryResult is what the secondary source returns for one query,
// including the cost it was billed so the budget tracker can record it.
type QueryResult struct {
	Records     []Record
	BilledBytes int64
}

// SecondarySource is the query-engine path. Implementations are billed
// by bytes processed; EstimateCost feeds the pre-flight budget check.
type SecondarySource interface {
	Query(ctx context.Context, q RecordQuery) (*QueryResult, error)
	EstimateCost(ctx context.Context, q RecordQuery) (int64, error)
}

// SourceDescriptor identifies a data path and the query shapes it
// supports.
type SourceDescriptor struct {
	Name             string
	SupportsRecordID bool
}

// RecordResult is one element of the fetch stream: a record, or the
// error that ended the stream.
type RecordResult struct {
	Record Record
	Err    error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSecondary configures the query-engine source and its budget
// tracker. A nil tracker disables budget enforcement.
func WithSecondary(s SecondarySource, tracker *quota.Tracker) Option {
	return func(o *Orchestrator) {
		o.secondary = s
		o.quota = tracker
	}
}

// WithFallback enables transparent fallback to the secondary source on
// bulk rate limits and API errors.
func WithFallback(enabled bool) Option {
	return func(o *Orchestrator) {
		o.fallbackEnabled = enabled
	}
}

// WithMaxConcurrent overrides the bulk streaming concurrency.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		o.maxConcurrent = n
	}
}

// Orchestrator routes fetches between the bulk downloader and the
// secondary source.
type Orchestrator struct {
	bulk            *downloader.Downloader
	parser          Parser
	secondary       SecondarySource
	quota           *quota.Tracker
	fallbackEnabled bool
	maxConcurrent   int
	logger          zerolog.Logger
}

// New creates an orchestrator over the bulk downloader. The parser is
// applied to every decompressed bulk file.
func New(bulk *downloader.Downloader, parser Parser, opts ...Option) (*Orchestrator, error) {
	if bulk == nil {
		return nil, &ConfigError{Operation: "new", Detail: "bulk downloader is required"}
	}
	if parser == nil {
		return nil, &ConfigError{Operation: "new", Detail: "parser is required"}
	}

	o := &Orchestrator{
		bulk:          bulk,
		parser:        parser,
		maxConcurrent: downloader.DefaultConfig().MaxConcurrent,
		logger:        log.With().Str("component", "source").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.maxConcurrent <= 0 {
		return nil, &ConfigError{Operation: "new", Detail: "max concurrent must be positive"}
	}
	return o, nil
}

// Descriptors lists the configured data paths.
func (o *Orchestrator) Descriptors() []SourceDescriptor {
	ds := []SourceDescriptor{{Name: "bulk", SupportsRecordID: false}}
	if o.secondary != nil {
		ds = append(ds, SourceDescriptor{Name: "secondary", SupportsRecordID: true})
	}
	return ds
}

// Fetch streams records matching the query. Configuration errors are
// returned synchronously, before any network activity; everything else
// arrives on the stream. The stream ends with an error result on abort
// and simply closes on success.
func (o *Orchestrator) Fetch(ctx context.Context, q RecordQuery, policy ErrorPolicy) (<-chan RecordResult, error) {
	logger := o.logger.With().Str("fetch_id", uuid.New().String()).Logger()

	if q.RecordID != "" {
		if o.secondary == nil {
			return nil, &ConfigError{
				Operation: "fetch",
				Detail:    "record-id filtering requires a query-engine source, and none is configured",
			}
		}
		out := make(chan RecordResult)
		go func() {
			defer close(out)
			o.querySecondary(ctx, logger, q, out)
		}()
		return out, nil
	}

	urls, err := downloader.FilesForDateRange(q.Start, q.End, q.FileType)
	if err != nil {
		return nil, err
	}

	out := make(chan RecordResult)
	go o.streamBulk(ctx, logger, q, policy, urls, out)
	return out, nil
}

// streamBulk consumes the bounded bulk stream, applying the error
// policy per file and falling back to the secondary source when the
// decision table says to.
func (o *Orchestrator) streamBulk(ctx context.Context, logger zerolog.Logger, q RecordQuery, policy ErrorPolicy, urls []string, out chan<- RecordResult) {
	defer close(out)

	bulkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := o.bulk.Stream(bulkCtx, urls, o.maxConcurrent)
	for outcome := range outcomes {
		if outcome.Err != nil {
			sig := classifySignal(outcome.Err)
			action := Decide(sig, o.fallbackEnabled, o.secondary != nil, policy)

			switch action {
			case ActionFallback:
				fallbacksTotal.WithLabelValues(string(sig)).Inc()
				logger.Info().
					Str("url", outcome.URL).
					Str("signal", string(sig)).
					Msg("Bulk source failed, retrying request via secondary source")
				cancel()
				o.querySecondary(ctx, logger, q, out)
				return
			case ActionAbort:
				fetchFailuresTotal.WithLabelValues(string(ActionAbort)).Inc()
				o.emit(ctx, out, RecordResult{Err: outcome.Err})
				return
			case ActionWarnContinue:
				fetchFailuresTotal.WithLabelValues(string(ActionWarnContinue)).Inc()
				logger.Warn().
					Str("url", outcome.URL).
					Int("status_code", outcome.StatusCode).
					Err(outcome.Err).
					Msg("Skipping failed bulk file")
				continue
			case ActionSkipContinue:
				fetchFailuresTotal.WithLabelValues(string(ActionSkipContinue)).Inc()
				continue
			}
		}

		records, err := o.parser(outcome.URL, outcome.Data)
		if err != nil {
			action := Decide(SignalParseError, o.fallbackEnabled, o.secondary != nil, policy)
			fetchFailuresTotal.WithLabelValues(string(action)).Inc()
			switch action {
			case ActionAbort:
				o.emit(ctx, out, RecordResult{Err: err})
				return
			case ActionWarnContinue:
				logger.Warn().Str("url", outcome.URL).Err(err).Msg("Skipping unparsable bulk file")
			}
			continue
		}

		for _, r := range records {
			fetchRecordsTotal.WithLabelValues("bulk").Inc()
			if !o.emit(ctx, out, RecordResult{Record: project(r, q.Columns)}) {
				return
			}
		}
	}
}

// querySecondary runs the whole logical request against the secondary
// source under budget control and emits its records.
func (o *Orchestrator) querySecondary(ctx context.Context, logger zerolog.Logger, q RecordQuery, out chan<- RecordResult) {
	if o.quota != nil {
		estimated, err := o.secondary.EstimateCost(ctx, q)
		if err != nil {
			o.emit(ctx, out, RecordResult{Err: err})
			return
		}
		if err := o.quota.Reserve(ctx, estimated); err != nil {
			o.emit(ctx, out, RecordResult{Err: err})
			return
		}
	}

	result, err := o.secondary.Query(ctx, q)
	if err != nil {
		o.emit(ctx, out, RecordResult{Err: err})
		return
	}

	if o.quota != nil {
		if err := o.quota.Commit(ctx, result.BilledBytes); err != nil {
			// The records were already paid for, so they are still
			// delivered; the budget error ends the stream afterwards.
			logger.Warn().Err(err).Msg("Query budget exhausted by completed query")
			for _, r := range result.Records {
				fetchRecordsTotal.WithLabelValues("secondary").Inc()
				if !o.emit(ctx, out, RecordResult{Record: project(r, q.Columns)}) {
					return
				}
			}
			o.emit(ctx, out, RecordResult{Err: err})
			return
		}
	}

	for _, r := range result.Records {
		fetchRecordsTotal.WithLabelValues("secondary").Inc()
		if !o.emit(ctx, out, RecordResult{Record: project(r, q.Columns)}) {
			return
		}
	}
}

// emit sends a result unless the caller has gone away.
func (o *Orchestrator) emit(ctx context.Context, out chan<- RecordResult, r RecordResult) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// classifySignal maps a bulk failure to its decision-table signal.
// Failures reaching this point have already exhausted retries.
func classifySignal(err error) Signal {
	if security.IsViolation(err) {
		return SignalSecurity
	}
	if _, ok := downloader.IsAPIError(err); ok {
		if downloader.IsRateLimit(err) {
			return SignalRateLimit
		}
		return SignalAPIError
	}
	return SignalTransientExhausted
}

// project restricts a record to the requested columns. The record stays
// a plain map; missing columns are simply absent.
func project(r Record, columns []string) Record {
	if len(columns) == 0 {
		return r
	}
	projected := make(Record, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			projected[c] = v
		}
	}
	return projected
}
