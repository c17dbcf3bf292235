package affinity

import (
	"sort"
	"time"

	"musicmatch-platform/internal/taste"
)

// Weights holds every tunable of the affinity formula so the algorithm can
// be re-weighted from config without touching the scoring code.
type Weights struct {
	// CosineWeight scales genre-vector cosine similarity.
	CosineWeight float64
	// JaccardWeight scales shared-artist Jaccard similarity.
	JaccardWeight float64

	// RecencyCeiling caps the activity bonus; RecencyRawCap is the raw
	// decayed sum that maps onto the ceiling. The raw cap of 4 is a
	// tunable carried over from production score comparability, not a
	// derived constant.
	RecencyCeiling      float64
	RecencyRawCap       float64
	RecencyHalfLifeDays float64

	// DistanceBuckets award points by proximity; the first bucket whose
	// MaxKm is >= the distance wins (upper bounds inclusive).
	DistanceBuckets []DistanceBucket

	// Display caps for the explainability lists.
	SharedGenreCap  int
	SharedArtistCap int
}

type DistanceBucket struct {
	MaxKm  float64
	Points float64
}

// DefaultWeights returns the production scoring weights.
func DefaultWeights() Weights {
	return Weights{
		CosineWeight:        24,
		JaccardWeight:       8,
		RecencyCeiling:      8,
		RecencyRawCap:       4,
		RecencyHalfLifeDays: 14,
		DistanceBuckets: []DistanceBucket{
			{MaxKm: 2, Points: 12},
			{MaxKm: 10, Points: 10},
			{MaxKm: 25, Points: 8},
			{MaxKm: 50, Points: 6},
			{MaxKm: 100, Points: 3},
			{MaxKm: 300, Points: 1},
		},
		SharedGenreCap:  5,
		SharedArtistCap: 8,
	}
}

// Breakdown itemizes the contributions behind a total, for UI
// explainability and for tests.
type Breakdown struct {
	Base         float64 `json:"base"`
	Taste        float64 `json:"taste"`
	Distance     float64 `json:"distance"`
	TasteCosine  float64 `json:"taste_cosine"`
	TasteJaccard float64 `json:"taste_jaccard"`
	RecencyBoost float64 `json:"recency_boost"`
}

// Result is the pure output of one score call. Never cached by this
// package; the caller decides caching policy.
type Result struct {
	Total     float64   `json:"total"`
	Breakdown Breakdown `json:"breakdown"`

	SharedGenres  []string `json:"shared_genres"`
	SharedArtists []string `json:"shared_artists"`
}

// Scorer combines a caller-supplied base score, taste similarity and
// geographic proximity into one ranking number.
//
// Pure and stateless: safe to call from any number of goroutines, intended
// for tight ranking loops over many candidates.
type Scorer struct {
	weights Weights

	// now is injectable for deterministic recency tests.
	now func() time.Time
}

func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w, now: time.Now}
}

// Score ranks `other` against `me`.
//
// Absent vectors or an absent distance contribute zero rather than failing;
// partial profile data is the normal case for new users. The taste,
// distance and shared-* outputs are symmetric under swapping me/other;
// only the caller-supplied base may be asymmetric.
func (s *Scorer) Score(base float64, distanceKm *float64, me, other *taste.Vector) Result {
	if base < 0 {
		base = 0
	}

	res := Result{
		SharedGenres:  []string{},
		SharedArtists: []string{},
	}
	res.Breakdown.Base = base

	if me != nil && other != nil {
		now := s.now().UTC()

		cos := taste.CosineSimilarity(me.GenreWeights, other.GenreWeights)
		jac := taste.JaccardSimilarity(me.TopArtists, other.TopArtists)

		boost := 0.5 * (taste.RecencyBoost(other.RecentActivity, now, s.weights.RecencyHalfLifeDays, s.weights.RecencyRawCap, s.weights.RecencyCeiling) +
			taste.RecencyBoost(me.RecentActivity, now, s.weights.RecencyHalfLifeDays, s.weights.RecencyRawCap, s.weights.RecencyCeiling))
		if boost > s.weights.RecencyCeiling {
			boost = s.weights.RecencyCeiling
		}

		res.Breakdown.TasteCosine = cos
		res.Breakdown.TasteJaccard = jac
		res.Breakdown.RecencyBoost = boost
		res.Breakdown.Taste = cos*s.weights.CosineWeight + jac*s.weights.JaccardWeight + boost

		res.SharedGenres = sharedGenres(me.GenreWeights, other.GenreWeights, s.weights.SharedGenreCap)
		res.SharedArtists = sharedArtists(me.TopArtists, other.TopArtists, s.weights.SharedArtistCap)
	}

	if distanceKm != nil {
		res.Breakdown.Distance = s.distancePoints(*distanceKm)
	}

	res.Total = res.Breakdown.Base + res.Breakdown.Taste + res.Breakdown.Distance
	return res
}

func (s *Scorer) distancePoints(km float64) float64 {
	for _, b := range s.weights.DistanceBuckets {
		if km <= b.MaxKm {
			return b.Points
		}
	}
	return 0
}

// sharedGenres returns genres carried with positive weight by both users,
// sorted lexicographically so the output is deterministic and symmetric.
func sharedGenres(a, b map[string]float64, limit int) []string {
	out := []string{}
	for g, wa := range a {
		if wa <= 0 {
			continue
		}
		if wb, ok := b[g]; ok && wb > 0 {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sharedArtists(a, b []string, limit int) []string {
	out := []string{}
	inB := make(map[string]struct{}, len(b))
	for _, id := range b {
		inB[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := inB[id]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
