package downloader

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RBozydar/go-gdelt/pkg/cache"
	"github.com/RBozydar/go-gdelt/pkg/security"
)

// Config holds the downloader configuration.
type Config struct {
	// MaxRetries is the maximum number of attempts per file, including
	// the first.
	MaxRetries int

	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration

	// MaxConcurrent is the default sliding-window size for Stream.
	MaxConcurrent int
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		RequestTimeout: 60 * time.Second,
		MaxConcurrent:  10,
	}
}

// Downloader retrieves, validates, and decompresses GDELT bulk files.
type Downloader struct {
	httpClient *http.Client
	cache      *cache.FileCache
	config     Config
	logger     zerolog.Logger
}

// New creates a Downloader backed by the given cache.
func New(fileCache *cache.FileCache, cfg Config) (*Downloader, error) {
	if fileCache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}

	return &Downloader{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		cache:  fileCache,
		config: cfg,
		logger: log.With().Str("component", "downloader").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (d *Downloader) SetHTTPClient(client *http.Client) {
	d.httpClient = client
}

// DownloadAndExtract fetches a single bulk file and returns its
// decompressed payload. The cache is consulted first; on a miss the URL is
// validated, fetched with retry, decompression-checked, and cached with
// the historical exemption derived from the file's embedded date.
//
// Unlike Stream, this path raises on failure: callers who need exactly one
// file get the error rather than a silent skip.
func (d *Downloader) DownloadAndExtract(ctx context.Context, url string) ([]byte, error) {
	if data, ok := d.cache.Get(url); ok {
		return data, nil
	}

	if _, err := security.ValidateURL(url); err != nil {
		downloadErrorsTotal.WithLabelValues("security").Inc()
		return nil, err
	}

	start := time.Now()
	defer func() {
		downloadDuration.Observe(time.Since(start).Seconds())
	}()

	var payload []byte
	err := retryWithBackoff(ctx, d.config.MaxRetries, func() error {
		compressed, err := d.fetchOnce(ctx, url)
		if err != nil {
			downloadErrorsTotal.WithLabelValues(string(classifyError(err))).Inc()
			return err
		}

		if isArchive(url) {
			payload, err = extractZip(url, compressed)
			if err != nil {
				if !security.IsViolation(err) {
					downloadErrorsTotal.WithLabelValues("decode").Inc()
				}
				return err
			}
			return nil
		}

		payload = compressed
		return nil
	})
	if err != nil {
		downloadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	downloadsTotal.WithLabelValues("ok").Inc()
	downloadBytesTotal.Add(float64(len(payload)))

	opts := []cache.SetOption{}
	if date, ok := DataDateFromURL(url); ok {
		opts = append(opts, cache.WithDataDate(date))
	}
	if err := d.cache.Set(url, payload, opts...); err != nil {
		d.logger.Warn().Err(err).Str("url", url).Msg("Failed to cache payload")
	}

	d.logger.Debug().
		Str("url", url).
		Int("bytes", len(payload)).
		Dur("duration", time.Since(start)).
		Msg("Downloaded bulk file")

	return payload, nil
}

// MasterFileList fetches the master file listing. The listing changes
// every publication cycle, so the caller must pass an explicit TTL; there
// is no built-in key classification.
func (d *Downloader) MasterFileList(ctx context.Context, ttl time.Duration) ([]byte, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("master file list requires an explicit positive TTL (got %v)", ttl)
	}

	if data, ok := d.cache.Get(MasterFileListURL); ok {
		return data, nil
	}

	if _, err := security.ValidateURL(MasterFileListURL); err != nil {
		return nil, err
	}

	var data []byte
	err := retryWithBackoff(ctx, d.config.MaxRetries, func() error {
		var ferr error
		data, ferr = d.fetchOnce(ctx, MasterFileListURL)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	if err := d.cache.Set(MasterFileListURL, data, cache.WithTTL(ttl)); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to cache master file list")
	}

	return data, nil
}

// LastUpdate fetches the pointer to the most recent publication. It is
// never cached.
func (d *Downloader) LastUpdate(ctx context.Context) ([]byte, error) {
	if _, err := security.ValidateURL(LastUpdateURL); err != nil {
		return nil, err
	}

	var data []byte
	err := retryWithBackoff(ctx, d.config.MaxRetries, func() error {
		var ferr error
		data, ferr = d.fetchOnce(ctx, LastUpdateURL)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// fetchOnce performs one HTTP GET and returns the raw body. Non-200
// statuses become *APIError carrying any Retry-After hint.
func (d *Downloader) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
			RetryAfter: parseRetryAfter(resp.Header),
		}
	}

	// Cap the read: a compressed body past the decompression limit can
	// never pass the safety check anyway.
	body, err := io.ReadAll(io.LimitReader(resp.Body, security.MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	if len(body) > security.MaxDecompressedSize {
		return nil, security.CheckDecompressionSafety(int64(len(body)), int64(len(body)))
	}

	return body, nil
}

// extractZip unpacks a single-file GDELT archive, enforcing the declared
// and actual decompressed sizes against the security limits.
func extractZip(url string, compressed []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(compressed), int64(len(compressed)))
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", url, err)
	}

	if len(zr.File) == 0 {
		return nil, fmt.Errorf("archive %s contains no files", url)
	}

	// GDELT archives hold exactly one payload file.
	f := zr.File[0]

	declared := int64(f.UncompressedSize64)
	if err := security.CheckDecompressionSafety(int64(len(compressed)), declared); err != nil {
		return nil, err
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, declared+1))
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", f.Name, err)
	}
	if int64(len(data)) > declared {
		return nil, fmt.Errorf("archive entry %s exceeds its declared size %d", f.Name, declared)
	}

	// Re-check with the actual size in case the header lied.
	if err := security.CheckDecompressionSafety(int64(len(compressed)), int64(len(data))); err != nil {
		return nil, err
	}

	return data, nil
}

// isArchive reports whether the URL names a compressed bulk file rather
// than a plain-text listing.
func isArchive(url string) bool {
	lower := strings.ToLower(url)
	return strings.HasSuffix(lower, ".zip")
}

// parseRetryAfter reads an integer-seconds Retry-After header.
func parseRetryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
