// Package security validates URLs, cache paths, and decompression sizes
// before any network or filesystem side effect happens.
//
// Every check in this package is fatal on failure: a *ViolationError is
// never retried and always propagated to the caller.
package security

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for security checks.
var (
	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gdelt_security_violations_total",
		Help: "Total security violations by check",
	}, []string{"check"})
)

// Decompression limits for bulk archive extraction.
const (
	// MaxDecompressedSize is the largest payload a single archive may
	// expand to. GDELT 15-minute files are well under this.
	MaxDecompressedSize = 500 * 1024 * 1024

	// MaxCompressionRatio is the largest decompressed/compressed ratio
	// accepted before a file is treated as a zip bomb.
	MaxCompressionRatio = 100
)

// allowedHosts is the fixed allowlist of GDELT download hosts.
var allowedHosts = map[string]bool{
	"data.gdeltproject.org": true,
	"api.gdeltproject.org":  true,
}

// ViolationError is returned when a security check fails.
type ViolationError struct {
	Check  string
	Detail string
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	return fmt.Sprintf("security violation (%s): %s", e.Check, e.Detail)
}

// IsViolation reports whether err is (or wraps) a *ViolationError.
func IsViolation(err error) bool {
	var v *ViolationError
	return errors.As(err, &v)
}

func violation(check, format string, args ...any) error {
	violationsTotal.WithLabelValues(check).Inc()
	return &ViolationError{Check: check, Detail: fmt.Sprintf(format, args...)}
}

// ValidateURL checks that raw is an HTTPS URL pointing at one of the known
// GDELT hosts, with no embedded credentials. It returns the URL unchanged
// on success.
func ValidateURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", violation("url", "unparsable URL %q: %v", raw, err)
	}

	if u.Scheme != "https" {
		return "", violation("url", "scheme %q is not https in %q", u.Scheme, raw)
	}

	if u.User != nil {
		return "", violation("url", "embedded credentials in %q", raw)
	}

	host := u.Hostname()
	if host == "" {
		return "", violation("url", "empty hostname in %q", raw)
	}

	if !allowedHosts[host] {
		return "", violation("url", "host %q is not an allowed GDELT host", host)
	}

	return raw, nil
}

// SafeCachePath joins name onto root and verifies the result stays inside
// root. Names carrying NUL bytes or backslashes are rejected outright;
// anything that resolves outside the cache root (".." segments, absolute
// names, symlinked roots) fails with a *ViolationError.
func SafeCachePath(root, name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", violation("path", "NUL byte in cache key name")
	}

	if strings.Contains(name, `\`) {
		return "", violation("path", "backslash in cache key name %q", name)
	}

	if strings.Contains(name, "..") {
		return "", violation("path", "parent reference in cache key name %q", name)
	}

	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", violation("path", "absolute cache key name %q", name)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", violation("path", "resolve cache root %q: %v", root, err)
	}

	// Resolve symlinks on the root when it already exists so a link cannot
	// shift the containment check.
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}

	candidate, err := filepath.Abs(filepath.Join(absRoot, name))
	if err != nil {
		return "", violation("path", "resolve cache path %q: %v", name, err)
	}

	rel, err := filepath.Rel(absRoot, candidate)
	if err != nil {
		return "", violation("path", "cache path %q not relative to root: %v", name, err)
	}

	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", violation("path", "cache key %q escapes cache root", name)
	}

	return candidate, nil
}

// CheckDecompressionSafety validates compressed/decompressed sizes before
// an extracted payload is handed out. The boundary values (exactly
// MaxDecompressedSize, exactly MaxCompressionRatio) pass.
func CheckDecompressionSafety(compressed, decompressed int64) error {
	if compressed <= 0 {
		return violation("decompression", "compressed size %d is not positive", compressed)
	}

	if decompressed < 0 {
		return violation("decompression", "decompressed size %d is negative", decompressed)
	}

	if decompressed > MaxDecompressedSize {
		return violation("decompression", "decompressed size %d exceeds limit %d",
			decompressed, int64(MaxDecompressedSize))
	}

	ratio := float64(decompressed) / float64(compressed)
	if ratio > MaxCompressionRatio {
		return violation("decompression", "compression ratio %.1f exceeds limit %d (compressed %d, decompressed %d)",
			ratio, MaxCompressionRatio, compressed, decompressed)
	}

	return nil
}
