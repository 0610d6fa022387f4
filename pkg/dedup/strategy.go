package dedup

import "strings"

// Record is a raw GDELT record as produced by a parser: column name to
// string value, column names lowercase. The alias keeps plain maps from
// any producer usable without conversion.
type Record = map[string]string

// Strategy selects which fields make up a record's deduplication key.
// Each strategy strictly extends the previous one, so a more aggressive
// strategy can only merge more records, never fewer.
type Strategy int

const (
	// URLOnly keys on the source URL alone.
	URLOnly Strategy = iota
	// URLDate adds the event day.
	URLDate
	// URLDateLocation adds the action location name.
	URLDateLocation
	// URLDateLocationActors adds both actor codes.
	URLDateLocationActors
	// Aggressive adds the event root code on top of everything else.
	Aggressive
)

// String returns the strategy name for logging and metrics.
func (s Strategy) String() string {
	switch s {
	case URLOnly:
		return "url_only"
	case URLDate:
		return "url_date"
	case URLDateLocation:
		return "url_date_location"
	case URLDateLocationActors:
		return "url_date_location_actors"
	case Aggressive:
		return "aggressive"
	default:
		return "unknown"
	}
}

// keyFields lists the record columns per strategy, in chain order. A
// strategy's fields are always a prefix extension of the previous
// strategy's fields.
var keyFields = map[Strategy][]string{
	URLOnly:               {"sourceurl"},
	URLDate:               {"sourceurl", "day"},
	URLDateLocation:       {"sourceurl", "day", "actiongeo_fullname"},
	URLDateLocationActors: {"sourceurl", "day", "actiongeo_fullname", "actor1code", "actor2code"},
	Aggressive:            {"sourceurl", "day", "actiongeo_fullname", "actor1code", "actor2code", "eventrootcode"},
}

// keySeparator joins key fields. The unit separator cannot occur in
// GDELT column values, so distinct tuples never collide.
const keySeparator = "\x1f"

// KeyFor computes the deduplication key for a record under a strategy.
// Missing fields contribute an empty string rather than an error, since
// bulk files routinely carry records with absent optional columns.
func KeyFor(r Record, s Strategy) string {
	fields, ok := keyFields[s]
	if !ok {
		fields = keyFields[URLOnly]
	}

	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = r[f]
	}
	return strings.Join(parts, keySeparator)
}
