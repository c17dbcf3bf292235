package affinity

import (
	"math"
	"reflect"
	"testing"
	"time"

	"musicmatch-platform/internal/taste"
)

func fixedScorer() *Scorer {
	s := NewScorer(DefaultWeights())
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func ptr(f float64) *float64 { return &f }

func TestScore_ZeroDegradation(t *testing.T) {
	s := fixedScorer()
	vec := taste.Vector{GenreWeights: map[string]float64{"chasidic": 0.8}}

	res := s.Score(5, nil, nil, &vec)
	if res.Total != 5 {
		t.Fatalf("expected total 5, got %v", res.Total)
	}
	if res.Breakdown.Taste != 0 || res.Breakdown.Distance != 0 {
		t.Fatalf("expected zero taste/distance, got %+v", res.Breakdown)
	}
	if len(res.SharedGenres) != 0 || len(res.SharedArtists) != 0 {
		t.Fatalf("expected empty shared lists, got %+v", res)
	}
}

func TestScore_NegativeBaseFlooredAtZero(t *testing.T) {
	s := fixedScorer()
	res := s.Score(-3, nil, nil, nil)
	if res.Total != 0 || res.Breakdown.Base != 0 {
		t.Fatalf("expected floored base, got %+v", res)
	}
}

func TestScore_DistanceBucketBoundaries(t *testing.T) {
	s := fixedScorer()
	tests := []struct {
		km   float64
		want float64
	}{
		{2, 12},
		{2.01, 10},
		{10, 10},
		{25, 8},
		{50, 6},
		{100, 3},
		{300, 1},
		{301, 0},
	}
	for _, tc := range tests {
		res := s.Score(0, ptr(tc.km), nil, nil)
		if res.Breakdown.Distance != tc.want {
			t.Fatalf("distance %v km: expected %v points, got %v", tc.km, tc.want, res.Breakdown.Distance)
		}
	}
}

func TestScore_PerfectMatchScenario(t *testing.T) {
	s := fixedScorer()
	me := taste.Vector{
		GenreWeights: map[string]float64{"chasidic": 0.8},
		TopArtists:   []string{"X"},
	}
	other := taste.Vector{
		GenreWeights: map[string]float64{"chasidic": 0.8},
		TopArtists:   []string{"X"},
	}

	res := s.Score(10, ptr(1), &me, &other)

	// taste = 1.0*24 + 1.0*8 + 0, distance = 12, total = 54.
	if math.Abs(res.Breakdown.Taste-32) > 1e-9 {
		t.Fatalf("expected taste 32, got %v", res.Breakdown.Taste)
	}
	if res.Breakdown.Distance != 12 {
		t.Fatalf("expected distance 12, got %v", res.Breakdown.Distance)
	}
	if math.Abs(res.Total-54) > 1e-9 {
		t.Fatalf("expected total 54, got %v", res.Total)
	}
	if !reflect.DeepEqual(res.SharedGenres, []string{"chasidic"}) {
		t.Fatalf("expected shared genre chasidic, got %v", res.SharedGenres)
	}
	if !reflect.DeepEqual(res.SharedArtists, []string{"X"}) {
		t.Fatalf("expected shared artist X, got %v", res.SharedArtists)
	}
}

func TestScore_SymmetricUnderSwap(t *testing.T) {
	s := fixedScorer()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	me := taste.Vector{
		GenreWeights:   map[string]float64{"chasidic": 0.8, "mizrahi": 0.3},
		TopArtists:     []string{"X", "Y"},
		RecentActivity: []time.Time{now.Add(-24 * time.Hour)},
	}
	other := taste.Vector{
		GenreWeights:   map[string]float64{"chasidic": 0.5, "jazz": 0.4},
		TopArtists:     []string{"X", "Z"},
		RecentActivity: []time.Time{now.Add(-72 * time.Hour), now.Add(-10 * 24 * time.Hour)},
	}

	ab := s.Score(7, ptr(18), &me, &other)
	ba := s.Score(3, ptr(18), &other, &me)

	if math.Abs(ab.Breakdown.Taste-ba.Breakdown.Taste) > 1e-9 {
		t.Fatalf("taste not symmetric: %v vs %v", ab.Breakdown.Taste, ba.Breakdown.Taste)
	}
	if ab.Breakdown.Distance != ba.Breakdown.Distance {
		t.Fatalf("distance not symmetric")
	}
	if !reflect.DeepEqual(ab.SharedGenres, ba.SharedGenres) {
		t.Fatalf("shared genres not symmetric: %v vs %v", ab.SharedGenres, ba.SharedGenres)
	}
	if !reflect.DeepEqual(ab.SharedArtists, ba.SharedArtists) {
		t.Fatalf("shared artists not symmetric: %v vs %v", ab.SharedArtists, ba.SharedArtists)
	}
}

func TestScore_SharedListCaps(t *testing.T) {
	s := fixedScorer()
	genres := map[string]float64{}
	var artists []string
	for _, g := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		genres[g] = 0.5
		artists = append(artists, "artist-"+g)
	}
	me := taste.Vector{GenreWeights: genres, TopArtists: artists}
	other := taste.Vector{GenreWeights: genres, TopArtists: artists}

	res := s.Score(0, nil, &me, &other)
	if len(res.SharedGenres) != 5 {
		t.Fatalf("expected 5 shared genres, got %d", len(res.SharedGenres))
	}
	if len(res.SharedArtists) != 8 {
		t.Fatalf("expected 8 shared artists, got %d", len(res.SharedArtists))
	}
}

func TestScore_RecencyContributionCapped(t *testing.T) {
	s := fixedScorer()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	plays := []time.Time{now, now, now, now, now}
	me := taste.Vector{GenreWeights: map[string]float64{"x": 1}, RecentActivity: plays}
	other := taste.Vector{GenreWeights: map[string]float64{"x": 1}, RecentActivity: plays}

	res := s.Score(0, nil, &me, &other)
	if res.Breakdown.RecencyBoost > 8 {
		t.Fatalf("recency contribution exceeded cap: %v", res.Breakdown.RecencyBoost)
	}
}
