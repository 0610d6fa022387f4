package main

import (
	"strconv"
	"strings"

	"github.com/RBozydar/go-gdelt/pkg/source"
)

// exportColumns maps the GDELT v2 export columns this tool surfaces to
// their zero-based position in the tab-delimited row. The full format
// has 61 columns; the rest are dropped rather than carried as noise.
var exportColumns = map[string]int{
	"globaleventid":      0,
	"day":                1,
	"actor1code":         5,
	"actor1name":         6,
	"actor2code":         15,
	"actor2name":         16,
	"eventcode":          26,
	"eventrootcode":      28,
	"goldsteinscale":     30,
	"nummentions":        31,
	"avgtone":            34,
	"actiongeo_fullname": 51,
	"actiongeo_lat":      56,
	"actiongeo_long":     57,
	"sourceurl":          60,
}

// parseExport turns a decompressed export file into records. Rows with
// fewer columns than expected contribute what they have; missing
// columns stay absent from the record.
func parseExport(url string, data []byte) ([]source.Record, error) {
	var records []source.Record
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")

		r := make(source.Record, len(exportColumns)+1)
		for name, idx := range exportColumns {
			if idx < len(fields) {
				r[name] = fields[idx]
			}
		}
		r["file"] = url
		records = append(records, r)
	}
	return records, nil
}

// parseEventID validates a record-id argument.
func parseEventID(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", err
	}
	return s, nil
}
