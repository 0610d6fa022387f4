// Package cache provides the TTL-aware on-disk cache for downloaded GDELT
// bulk files. Each entry is a payload file plus a JSON metadata sidecar;
// entries whose data date is older than the historical threshold never
// expire, since published GDELT files are immutable once that old.
package cache

import (
	"encoding/json"
	"errors"
	"time"
)

// errInvalidSidecar marks a sidecar that decoded but is missing fields.
var errInvalidSidecar = errors.New("invalid cache sidecar")

// NeverExpires is the sidecar expires_at marker for historical entries.
const NeverExpires = "never"

// HistoricalAge is how old a file's data date must be at write time for
// the entry to be exempted from TTL expiry.
const HistoricalAge = 30 * 24 * time.Hour

// Metadata is the sidecar written next to every cached payload.
type Metadata struct {
	// CreatedAt is when the entry was written.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is an RFC3339 timestamp, or NeverExpires for entries
	// whose data date was already historical at write time.
	ExpiresAt string `json:"expires_at"`
}

// Expired reports whether the entry is stale at the given instant.
// Unparsable expiry timestamps count as expired.
func (m *Metadata) Expired(now time.Time) bool {
	if m.ExpiresAt == NeverExpires {
		return false
	}
	expires, err := time.Parse(time.RFC3339, m.ExpiresAt)
	if err != nil {
		return true
	}
	return now.After(expires)
}

// newMetadata builds the sidecar for a write happening at now. A non-nil
// dataDate more than HistoricalAge in the past marks the entry permanent;
// otherwise it expires after ttl.
func newMetadata(now time.Time, ttl time.Duration, dataDate *time.Time) Metadata {
	m := Metadata{CreatedAt: now}
	if dataDate != nil && now.Sub(*dataDate) > HistoricalAge {
		m.ExpiresAt = NeverExpires
		return m
	}
	m.ExpiresAt = now.Add(ttl).Format(time.RFC3339)
	return m
}

// marshalMetadata encodes a sidecar for writing.
func marshalMetadata(m Metadata) ([]byte, error) {
	return json.Marshal(m)
}

// parseMetadata decodes a sidecar. Callers treat any error as a cache miss.
func parseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.CreatedAt.IsZero() || m.ExpiresAt == "" {
		return nil, errInvalidSidecar
	}
	return &m, nil
}
