package taste

import (
	"math"
	"sort"
	"time"
)

// Vector is a user's music-taste profile as supplied by the profile pipeline.
//
// Invariants:
// - GenreWeights values are non-negative, normalized to [0,1].
// - Absent data degrades to a zero contribution downstream, never an error.
type Vector struct {
	// GenreWeights maps genre tag -> normalized listen frequency.
	// Keys need not match between two users; absent keys mean weight 0.
	GenreWeights map[string]float64 `json:"genre_weights"`

	// TopArtists is a set of artist ids (order irrelevant, values unique).
	TopArtists []string `json:"top_artists"`

	// RecentActivity holds the user's most recent relevant actions
	// (e.g., plays), newest not necessarily first. Only the 5 most
	// recent matter for scoring.
	RecentActivity []time.Time `json:"recent_activity"`
}

// recencyWindow is how many of the newest activity timestamps count.
const recencyWindow = 5

// CosineSimilarity compares two weighted genre vectors over the union of
// their keys, treating missing keys as 0. Result is in [0,1].
// A zero-magnitude vector yields 0 rather than propagating a divide-by-zero.
func CosineSimilarity(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for k, av := range a {
		magA += av * av
		if bv, ok := b[k]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		magB += bv * bv
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(magA) * math.Sqrt(magB)))
}

// JaccardSimilarity is intersection-over-union of two artist sets,
// in [0,1]. Either set empty yields 0.
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}

	var inter int
	union := len(seen)
	counted := make(map[string]struct{}, len(b))
	for _, id := range b {
		if _, dup := counted[id]; dup {
			continue
		}
		counted[id] = struct{}{}
		if _, ok := seen[id]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// RecencyBoost scores recent activity with an exponential half-life decay,
// evaluated over at most the 5 most recent timestamps.
//
// The raw decayed sum is capped at rawCap and rescaled so rawCap maps to
// ceiling. The default rawCap of 4 is a tunable, not a derived constant.
// Returns 0 for an empty sequence.
func RecencyBoost(timestamps []time.Time, now time.Time, halfLifeDays, rawCap, ceiling float64) float64 {
	if len(timestamps) == 0 || halfLifeDays <= 0 || rawCap <= 0 {
		return 0
	}

	ts := timestamps
	if len(ts) > recencyWindow {
		sorted := make([]time.Time, len(ts))
		copy(sorted, ts)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })
		ts = sorted[:recencyWindow]
	}

	lambda := math.Ln2 / halfLifeDays

	var raw float64
	for _, t := range ts {
		ageDays := now.Sub(t).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		raw += math.Exp(-lambda * ageDays)
	}

	if raw > rawCap {
		raw = rawCap
	}
	return raw / rawCap * ceiling
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
