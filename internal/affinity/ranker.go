package affinity

import (
	"context"
	"errors"
	"sort"

	"musicmatch-platform/internal/geo"
	"musicmatch-platform/internal/presence"
	"musicmatch-platform/internal/taste"
)

// Ranker scores a batch of candidates against one viewer and orders them.
//
// Collaborators are injected as interfaces so the ranking logic stays pure
// and testable in isolation; no ambient DB or cache connections here.
type Ranker struct {
	scorer   *Scorer
	taste    taste.Source
	presence presence.Source
}

func NewRanker(scorer *Scorer, tasteSrc taste.Source, presenceSrc presence.Source) *Ranker {
	return &Ranker{scorer: scorer, taste: tasteSrc, presence: presenceSrc}
}

// Candidate is one user to rank. BaseScore is computed upstream
// (e.g., profile completeness, premium boosts) and passed through.
type Candidate struct {
	UserID    string  `json:"user_id"`
	BaseScore float64 `json:"base_score"`
}

// RankedCandidate pairs a candidate with its affinity result.
type RankedCandidate struct {
	UserID string `json:"user_id"`
	Result Result `json:"result"`
}

var ErrInvalidRankRequest = errors.New("affinity: viewer_id and candidates required")

// Rank resolves taste vectors and coordinates for the viewer and every
// candidate, scores each candidate, and returns them sorted descending by
// total (ties broken by user id for determinism).
//
// Missing taste or presence data for a user degrades that signal to a zero
// contribution; collaborator I/O errors surface as-is.
func (r *Ranker) Rank(ctx context.Context, viewerID string, candidates []Candidate) ([]RankedCandidate, error) {
	if viewerID == "" || len(candidates) == 0 {
		return nil, ErrInvalidRankRequest
	}

	// Resolve the viewer once, reuse across the whole batch.
	meVec, err := r.vectorFor(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	meLoc, err := r.snapshotFor(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	out := make([]RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.UserID == "" || c.UserID == viewerID {
			continue
		}

		otherVec, err := r.vectorFor(ctx, c.UserID)
		if err != nil {
			return nil, err
		}

		var distance *float64
		if meLoc != nil {
			otherLoc, err := r.snapshotFor(ctx, c.UserID)
			if err != nil {
				return nil, err
			}
			if otherLoc != nil {
				d := geo.DistanceKm(meLoc.Coord, otherLoc.Coord)
				distance = &d
			}
		}

		out = append(out, RankedCandidate{
			UserID: c.UserID,
			Result: r.scorer.Score(c.BaseScore, distance, meVec, otherVec),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Result.Total != out[j].Result.Total {
			return out[i].Result.Total > out[j].Result.Total
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *Ranker) vectorFor(ctx context.Context, userID string) (*taste.Vector, error) {
	if r.taste == nil {
		return nil, nil
	}
	v, ok, err := r.taste.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r *Ranker) snapshotFor(ctx context.Context, userID string) (*presence.Snapshot, error) {
	if r.presence == nil {
		return nil, nil
	}
	s, ok, err := r.presence.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &s, nil
}
