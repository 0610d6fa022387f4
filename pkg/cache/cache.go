package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RBozydar/go-gdelt/pkg/security"
)

const sidecarSuffix = ".meta.json"

// FileCache is an on-disk cache keyed by sanitized URL-like strings.
//
// Writes from concurrent processes sharing one cache directory are not
// coordinated; concurrent same-key writes are racy by design.
type FileCache struct {
	dir        string
	defaultTTL time.Duration
	logger     zerolog.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

// SetOption customizes a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	dataDate *time.Time
	ttl      *time.Duration
}

// WithDataDate associates the data date of the payload with the entry.
// Dates older than HistoricalAge at write time make the entry permanent.
func WithDataDate(t time.Time) SetOption {
	return func(o *setOptions) { o.dataDate = &t }
}

// WithTTL overrides the cache default TTL for this entry. Used for
// listing-type keys such as the master file list, whose TTL the caller
// must choose explicitly.
func WithTTL(d time.Duration) SetOption {
	return func(o *setOptions) { o.ttl = &d }
}

// New creates a FileCache rooted at dir, creating the directory if needed.
func New(dir string, defaultTTL time.Duration) (*FileCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if defaultTTL <= 0 {
		return nil, fmt.Errorf("default TTL must be positive (got %v)", defaultTTL)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	return &FileCache{
		dir:        dir,
		defaultTTL: defaultTTL,
		logger:     log.With().Str("component", "cache").Logger(),
		now:        time.Now,
	}, nil
}

// sanitizeKey maps an arbitrary key (usually a URL) onto a flat file name.
// The result still goes through security.SafeCachePath before use.
func sanitizeKey(key string) string {
	key = strings.TrimPrefix(key, "https://")

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}

// paths derives the payload and sidecar paths for a key. Every derivation
// is containment-checked, so a malicious key cannot escape the cache root.
func (c *FileCache) paths(key string) (payload, sidecar string, err error) {
	name := sanitizeKey(key)
	payload, err = security.SafeCachePath(c.dir, name)
	if err != nil {
		return "", "", err
	}
	return payload, payload + sidecarSuffix, nil
}

// Get returns the cached payload for key, or ok=false on any miss. A
// missing payload, a missing or unparsable sidecar, and an expired entry
// all degrade to a miss, never an error.
func (c *FileCache) Get(key string) ([]byte, bool) {
	payloadPath, sidecarPath, err := c.paths(key)
	if err != nil {
		CacheMisses.WithLabelValues("corrupt").Inc()
		return nil, false
	}

	meta, reason := c.readSidecar(sidecarPath)
	if meta == nil {
		CacheMisses.WithLabelValues(reason).Inc()
		return nil, false
	}

	data, err := os.ReadFile(payloadPath)
	if err != nil {
		CacheMisses.WithLabelValues("absent").Inc()
		return nil, false
	}

	CacheHits.Inc()
	c.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("Cache hit")
	return data, true
}

// IsValid reports whether key has an unexpired entry, without reading the
// payload contents.
func (c *FileCache) IsValid(key string) bool {
	payloadPath, sidecarPath, err := c.paths(key)
	if err != nil {
		return false
	}

	meta, _ := c.readSidecar(sidecarPath)
	if meta == nil {
		return false
	}

	_, err = os.Stat(payloadPath)
	return err == nil
}

// readSidecar loads and validates a sidecar. It returns nil plus a miss
// reason when the entry should be treated as absent.
func (c *FileCache) readSidecar(sidecarPath string) (*Metadata, string) {
	raw, err := os.ReadFile(sidecarPath)
	if err != nil {
		return nil, "absent"
	}

	meta, err := parseMetadata(raw)
	if err != nil {
		c.logger.Debug().Str("sidecar", sidecarPath).Err(err).Msg("Corrupt sidecar treated as miss")
		return nil, "corrupt"
	}

	if meta.Expired(c.now()) {
		return nil, "expired"
	}

	return meta, ""
}

// Set writes the payload and its metadata sidecar. The payload lands
// before the sidecar so a crash between the two leaves a miss, not a
// phantom hit.
func (c *FileCache) Set(key string, data []byte, opts ...SetOption) error {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	payloadPath, sidecarPath, err := c.paths(key)
	if err != nil {
		return err
	}

	ttl := c.defaultTTL
	if o.ttl != nil {
		ttl = *o.ttl
	}

	now := c.now()
	meta := newMetadata(now, ttl, o.dataDate)

	if err := writeAtomic(payloadPath, data); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("write cache payload: %w", err)
	}

	raw, err := marshalMetadata(meta)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache sidecar: %w", err)
	}

	if err := writeAtomic(sidecarPath, raw); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("write cache sidecar: %w", err)
	}

	CacheSize.Add(float64(len(data)))
	c.logger.Debug().
		Str("key", key).
		Int("bytes", len(data)).
		Str("expires_at", meta.ExpiresAt).
		Msg("Cached payload")

	return nil
}

// Clear removes entries from the cache. With a nil cutoff every entry is
// removed; otherwise only entries created before the cutoff. It returns
// the number of entries deleted.
func (c *FileCache) Clear(before *time.Time) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		CacheErrors.WithLabelValues("clear").Inc()
		return 0, fmt.Errorf("read cache directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), sidecarSuffix) ||
			strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}

		payloadPath := filepath.Join(c.dir, entry.Name())
		sidecarPath := payloadPath + sidecarSuffix

		if before != nil {
			raw, err := os.ReadFile(sidecarPath)
			if err == nil {
				if meta, err := parseMetadata(raw); err == nil && !meta.CreatedAt.Before(*before) {
					continue
				}
			}
			// Orphan payloads and corrupt sidecars are always fair game.
		}

		if err := os.Remove(payloadPath); err != nil {
			CacheErrors.WithLabelValues("clear").Inc()
			return removed, fmt.Errorf("remove cache payload: %w", err)
		}
		_ = os.Remove(sidecarPath)
		removed++
	}

	if size, err := c.Size(); err == nil {
		CacheSize.Set(float64(size))
	}

	c.logger.Info().Int("removed", removed).Msg("Cache cleared")
	return removed, nil
}

// Size returns the sum of payload file sizes currently on disk. Sidecars
// are excluded.
func (c *FileCache) Size() (int64, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		CacheErrors.WithLabelValues("size").Inc()
		return 0, fmt.Errorf("read cache directory: %w", err)
	}

	var total int64
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), sidecarSuffix) ||
			strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}

	return total, nil
}

// writeAtomic writes data via a temp file and rename in the same directory.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
