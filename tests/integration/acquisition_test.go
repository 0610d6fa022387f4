package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/RBozydar/go-gdelt/internal/testutil"
	"github.com/RBozydar/go-gdelt/pkg/cache"
	"github.com/RBozydar/go-gdelt/pkg/dedup"
	"github.com/RBozydar/go-gdelt/pkg/downloader"
	"github.com/RBozydar/go-gdelt/pkg/quota"
	"github.com/RBozydar/go-gdelt/pkg/source"
)

// tsvParser turns url<TAB>day lines into records.
func tsvParser(file string, data []byte) ([]source.Record, error) {
	var records []source.Record
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		r := source.Record{"sourceurl": fields[0], "file": file}
		if len(fields) > 1 {
			r["day"] = fields[1]
		}
		records = append(records, r)
	}
	return records, nil
}

func setupStack(t *testing.T, mock *testutil.MockGDELT, opts ...source.Option) *source.Orchestrator {
	t.Helper()

	fileCache, err := cache.New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}

	bulk, err := downloader.New(fileCache, downloader.Config{
		MaxRetries:     1,
		RequestTimeout: 10 * time.Second,
		MaxConcurrent:  4,
	})
	if err != nil {
		t.Fatalf("downloader.New failed: %v", err)
	}
	bulk.SetHTTPClient(mock.Client())

	o, err := source.New(bulk, tsvParser, opts...)
	if err != nil {
		t.Fatalf("source.New failed: %v", err)
	}
	return o
}

func drainRecords(t *testing.T, out <-chan source.RecordResult) []source.Record {
	t.Helper()
	var records []source.Record
	timeout := time.After(10 * time.Second)
	for {
		select {
		case r, ok := <-out:
			if !ok {
				return records
			}
			if r.Err != nil {
				t.Fatalf("stream error: %v", r.Err)
			}
			records = append(records, r.Record)
		case <-timeout:
			t.Fatal("timed out draining stream")
		}
	}
}

func quarterHourQuery() source.RecordQuery {
	return source.RecordQuery{
		Start:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC),
		FileType: downloader.FileTypeEvents,
	}
}

func TestEndToEnd_FetchAndDeduplicate(t *testing.T) {
	mock := testutil.NewMockGDELT()
	defer mock.Close()

	// The same article shows up in both quarter-hour files; dedup by URL
	// should collapse it to one record.
	mock.SetResponse("/gdeltv2/20260101000000.export.CSV.zip",
		testutil.NewZipResponse("a.csv", []byte(
			"https://example.com/shared\t20260101\n"+
				"https://example.com/only-first\t20260101\n")))
	mock.SetResponse("/gdeltv2/20260101001500.export.CSV.zip",
		testutil.NewZipResponse("b.csv", []byte(
			"https://example.com/shared\t20260101\n"+
				"https://example.com/only-second\t20260101\n")))

	o := setupStack(t, mock)
	ctx := context.Background()

	out, err := o.Fetch(ctx, quarterHourQuery(), source.PolicyRaise)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	in := make(chan dedup.Record)
	go func() {
		defer close(in)
		for r := range out {
			if r.Err != nil {
				t.Errorf("stream error: %v", r.Err)
				return
			}
			in <- r.Record
		}
	}()

	seen := map[string]bool{}
	count := 0
	for r := range dedup.Deduplicate(ctx, in, dedup.URLOnly) {
		seen[r["sourceurl"]] = true
		count++
	}

	if count != 3 {
		t.Errorf("got %d deduplicated records, want 3", count)
	}
	for _, url := range []string{
		"https://example.com/shared",
		"https://example.com/only-first",
		"https://example.com/only-second",
	} {
		if !seen[url] {
			t.Errorf("missing record for %s", url)
		}
	}
}

func TestEndToEnd_SecondFetchServedFromCache(t *testing.T) {
	mock := testutil.NewMockGDELT()
	defer mock.Close()
	mock.SetResponse("/gdeltv2/20260101000000.export.CSV.zip",
		testutil.NewZipResponse("a.csv", []byte("https://example.com/a\t20260101\n")))
	mock.SetResponse("/gdeltv2/20260101001500.export.CSV.zip",
		testutil.NewZipResponse("b.csv", []byte("https://example.com/b\t20260101\n")))

	o := setupStack(t, mock)
	ctx := context.Background()

	out, err := o.Fetch(ctx, quarterHourQuery(), source.PolicyRaise)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	first := drainRecords(t, out)

	requestsAfterFirst := mock.GetRequestCount()
	if requestsAfterFirst == 0 {
		t.Fatal("first fetch made no network requests")
	}

	out, err = o.Fetch(ctx, quarterHourQuery(), source.PolicyRaise)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	second := drainRecords(t, out)

	if len(first) != len(second) {
		t.Errorf("cached fetch returned %d records, first returned %d", len(second), len(first))
	}
	if mock.GetRequestCount() != requestsAfterFirst {
		t.Errorf("cached fetch made %d extra requests, want 0",
			mock.GetRequestCount()-requestsAfterFirst)
	}
}

type stubSecondary struct {
	records []source.Record
	billed  int64
	queries int
}

func (s *stubSecondary) Query(_ context.Context, _ source.RecordQuery) (*source.QueryResult, error) {
	s.queries++
	return &source.QueryResult{Records: s.records, BilledBytes: s.billed}, nil
}

func (s *stubSecondary) EstimateCost(_ context.Context, _ source.RecordQuery) (int64, error) {
	return s.billed, nil
}

func TestEndToEnd_RateLimitedBulkFallsBack(t *testing.T) {
	mock := testutil.NewMockGDELT()
	defer mock.Close()
	mock.SetResponse("/gdeltv2/20260101000000.export.CSV.zip", testutil.NewRateLimitResponse(30))
	mock.SetResponse("/gdeltv2/20260101001500.export.CSV.zip", testutil.NewRateLimitResponse(30))

	secondary := &stubSecondary{
		records: []source.Record{
			{"sourceurl": "https://example.com/a", "day": "20260101"},
			{"sourceurl": "https://example.com/b", "day": "20260101"},
		},
		billed: 200,
	}
	tracker, err := quota.NewTracker(1_000_000, nil)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	o := setupStack(t, mock,
		source.WithSecondary(secondary, tracker),
		source.WithFallback(true),
	)

	out, err := o.Fetch(context.Background(), quarterHourQuery(), source.PolicyRaise)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	records := drainRecords(t, out)

	if len(records) != 2 {
		t.Errorf("got %d records, want 2 via the secondary source", len(records))
	}
	if secondary.queries != 1 {
		t.Errorf("secondary queried %d times, want 1", secondary.queries)
	}

	used, err := tracker.Used(context.Background())
	if err != nil {
		t.Fatalf("Used failed: %v", err)
	}
	if used != 200 {
		t.Errorf("budget used = %d, want 200", used)
	}
}
