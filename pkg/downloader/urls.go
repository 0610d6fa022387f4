package downloader

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// FileType selects which of the three GDELT 2.0 file streams to download.
type FileType string

const (
	// FileTypeEvents is the event table stream ("export").
	FileTypeEvents FileType = "export"

	// FileTypeMentions is the mentions table stream.
	FileTypeMentions FileType = "mentions"

	// FileTypeGKG is the Global Knowledge Graph stream.
	FileTypeGKG FileType = "gkg"
)

// GDELT publication endpoints.
const (
	baseURLV2 = "https://data.gdeltproject.org/gdeltv2/"
	baseURLV1 = "https://data.gdeltproject.org/events/"

	// MasterFileListURL indexes every file GDELT has published. It changes
	// every 15 minutes, so callers cache it under an explicit short TTL.
	MasterFileListURL = baseURLV2 + "masterfilelist.txt"

	// MasterFileListTranslationURL is the translation-stream counterpart.
	MasterFileListTranslationURL = baseURLV2 + "masterfilelist-translation.txt"

	// LastUpdateURL names the most recent 15-minute publication.
	LastUpdateURL = baseURLV2 + "lastupdate.txt"
)

// cadenceV2 is the GDELT 2.0 publication interval.
const cadenceV2 = 15 * time.Minute

// suffixes per file type. GKG files use a lowercase "csv" extension on the
// live dataset; the other two use uppercase.
var v2Suffixes = map[FileType]string{
	FileTypeEvents:   "export.CSV.zip",
	FileTypeMentions: "mentions.CSV.zip",
	FileTypeGKG:      "gkg.csv.zip",
}

// URLOption adjusts URL enumeration.
type URLOption func(*urlOptions)

type urlOptions struct {
	translation bool
	v1          bool
}

// WithTranslation selects the machine-translated stream variant.
func WithTranslation() URLOption {
	return func(o *urlOptions) { o.translation = true }
}

// WithV1 selects the legacy GDELT 1.0 daily event files. Only
// FileTypeEvents exists in 1.0.
func WithV1() URLOption {
	return func(o *urlOptions) { o.v1 = true }
}

// FilesForDateRange returns the ordered list of bulk file URLs covering
// [start, end] for the given file type. Timestamps are interpreted in UTC
// and aligned down to the publication cadence; the range is inclusive.
func FilesForDateRange(start, end time.Time, ft FileType, opts ...URLOption) ([]string, error) {
	var o urlOptions
	for _, opt := range opts {
		opt(&o)
	}

	if end.Before(start) {
		return nil, fmt.Errorf("end %v precedes start %v", end, start)
	}

	if o.v1 {
		if ft != FileTypeEvents {
			return nil, fmt.Errorf("file type %q is not published in GDELT 1.0", ft)
		}
		return v1EventURLs(start, end), nil
	}

	suffix, ok := v2Suffixes[ft]
	if !ok {
		return nil, fmt.Errorf("unknown file type %q", ft)
	}
	if o.translation {
		suffix = "translation." + suffix
	}

	start = start.UTC().Truncate(cadenceV2)
	end = end.UTC()

	var urls []string
	for t := start; !t.After(end); t = t.Add(cadenceV2) {
		urls = append(urls, fmt.Sprintf("%s%s.%s", baseURLV2, t.Format("20060102150405"), suffix))
	}
	return urls, nil
}

// v1EventURLs enumerates the daily GDELT 1.0 event files.
func v1EventURLs(start, end time.Time) []string {
	start = start.UTC().Truncate(24 * time.Hour)
	end = end.UTC()

	var urls []string
	for t := start; !t.After(end); t = t.Add(24 * time.Hour) {
		urls = append(urls, fmt.Sprintf("%s%s.export.CSV.zip", baseURLV1, t.Format("20060102")))
	}
	return urls
}

// DataDateFromURL extracts the publication timestamp embedded in a bulk
// file name. Used to decide the cache's historical exemption.
func DataDateFromURL(url string) (time.Time, bool) {
	name := path.Base(url)
	digits := name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		digits = name[:i]
	}

	switch len(digits) {
	case 14:
		t, err := time.ParseInLocation("20060102150405", digits, time.UTC)
		return t, err == nil
	case 8:
		t, err := time.ParseInLocation("20060102", digits, time.UTC)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}
