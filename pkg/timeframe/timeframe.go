// Package timeframe defines the chart timeframe labels the bot understands
// and the business rules attached to them: the parent hierarchy used for
// higher-timeframe context and the freshness window after which a stored
// analysis is considered stale.
package timeframe

import "time"

// Supported timeframe labels, smallest first.
const (
	M15 = "M15"
	H1  = "H1"
	H4  = "H4"
	D1  = "D1"
	W1  = "W1"
)

// All lists the supported labels in ascending granularity order.
var All = []string{M15, H1, H4, D1, W1}

var parents = map[string]string{
	M15: H1,
	H1:  H4,
	H4:  D1,
	D1:  W1,
}

// freshness is how long a stored analysis for a timeframe stays usable as
// context for other analyses.
var freshness = map[string]time.Duration{
	M15: 30 * time.Minute,
	H1:  2 * time.Hour,
	H4:  8 * time.Hour,
	D1:  48 * time.Hour,
	W1:  14 * 24 * time.Hour,
}

// Valid reports whether label is a supported timeframe.
func Valid(label string) bool {
	_, ok := freshness[label]
	return ok
}

// Parent returns the next-higher timeframe, or "" for the top of the
// hierarchy (and for unknown labels).
func Parent(label string) string {
	return parents[label]
}

// Fresh reports whether an analysis created at createdAt is still within the
// freshness window for its timeframe. Unknown labels are never fresh.
func Fresh(label string, createdAt, now time.Time) bool {
	window, ok := freshness[label]
	if !ok {
		return false
	}
	return now.Sub(createdAt) <= window
}
