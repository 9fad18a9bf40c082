// Package scoring turns reviewer weights and stance revisions into deltas.
//
// A delta is the signed change between an opinion's original and revised
// stance, multiplied by the weight a reviewer assigned to it. Totals are
// frozen the first time they are cached.
package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"deltadebate/internal/errs"
	"deltadebate/models"
)

// DefaultReviewerScore is reported for a reviewer who has not scored an
// opinion yet.
const DefaultReviewerScore = 50

const (
	minScore = 0
	maxScore = 100
)

// OpinionReader reads original and revised opinions.
type OpinionReader interface {
	// OpinionByID returns nil, nil when no opinion has the id.
	OpinionByID(ctx context.Context, id string) (*models.Opinion, error)
	// FindOpinion returns nil, nil when author has no opinion in debate.
	FindOpinion(ctx context.Context, debate, author string) (*models.Opinion, error)
	// FindRevisedOpinion returns nil, nil when author never revised.
	FindRevisedOpinion(ctx context.Context, debate, author string) (*models.RevisedOpinion, error)
}

// Store persists reviews and cached totals.
type Store interface {
	// UpsertReview writes r keyed on (reviewer, debate, opinion) and reports
	// whether a new review was created.
	UpsertReview(ctx context.Context, r models.Review) (models.Review, bool, error)
	// FindReview returns nil, nil when absent.
	FindReview(ctx context.Context, reviewer, debate, opinion string) (*models.Review, error)
	// ReviewsForOpinion returns the reviews of an opinion, highest score first.
	ReviewsForOpinion(ctx context.Context, opinion string) ([]models.Review, error)
	// FindScore returns nil, nil when no total is cached.
	FindScore(ctx context.Context, debate, opinion string) (*models.ScoreRecord, error)
	// FindScoreByOpinion returns nil, nil when no total is cached.
	FindScoreByOpinion(ctx context.Context, opinion string) (*models.ScoreRecord, error)
	// InsertScoreIfAbsent stores rec unless a record for (debate, opinion)
	// exists and returns whichever record is stored afterwards.
	InsertScoreIfAbsent(ctx context.Context, rec models.ScoreRecord) (models.ScoreRecord, error)
}

// Scorer aggregates reviews into opinion deltas.
type Scorer struct {
	store    Store
	opinions OpinionReader
	logger   zerolog.Logger
}

// NewScorer creates a Scorer.
func NewScorer(store Store, opinions OpinionReader, logger zerolog.Logger) *Scorer {
	return &Scorer{
		store:    store,
		opinions: opinions,
		logger:   logger.With().Str("service", "scoring").Logger(),
	}
}

// SubmitReview creates or overwrites the reviewer's score for an opinion.
func (s *Scorer) SubmitReview(ctx context.Context, reviewer, debateID, opinionID string, score float64) (models.Review, bool, error) {
	if math.IsNaN(score) || score < minScore || score > maxScore {
		return models.Review{}, false, errs.InvalidInput("score %v must be between %d and %d", score, minScore, maxScore)
	}
	review, created, err := s.store.UpsertReview(ctx, models.Review{
		Reviewer: reviewer,
		Debate:   debateID,
		Opinion:  opinionID,
		Score:    score,
	})
	if err != nil {
		return models.Review{}, false, fmt.Errorf("failed to store review: %w", err)
	}
	return review, created, nil
}

// ScoreByReviewer returns the reviewer's score for an opinion or
// DefaultReviewerScore if they have not reviewed it.
func (s *Scorer) ScoreByReviewer(ctx context.Context, reviewer, debateID, opinionID string) (float64, error) {
	review, err := s.store.FindReview(ctx, reviewer, debateID, opinionID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up review: %w", err)
	}
	if review == nil {
		return DefaultReviewerScore, nil
	}
	return review.Score, nil
}

// DeltaForOpinion returns the cached total of an opinion, or 0.
func (s *Scorer) DeltaForOpinion(ctx context.Context, debateID, opinionID string) (float64, error) {
	rec, err := s.store.FindScore(ctx, debateID, opinionID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up score: %w", err)
	}
	if rec == nil {
		return 0, nil
	}
	return rec.TotalScore, nil
}

// ComputeWeightedDeltas multiplies each opinion's stance shift by the
// matching weight and sums the results per opinion id. An opinion that was
// never revised contributes zero.
func (s *Scorer) ComputeWeightedDeltas(ctx context.Context, ids []string, weights []float64) (map[string]float64, error) {
	if len(ids) != len(weights) {
		return nil, errs.InvalidInput("The number of ids given (%d) doesn't match the number of scores given (%d)", len(ids), len(weights))
	}

	shifts := make(map[string]float64, len(ids))
	totals := make(map[string]float64, len(ids))
	for i, id := range ids {
		shift, ok := shifts[id]
		if !ok {
			var err error
			shift, err = s.shift(ctx, id)
			if err != nil {
				return nil, err
			}
			shifts[id] = shift
		}
		totals[id] += shift * weights[i]
	}
	return totals, nil
}

// shift returns revised minus original stance for an opinion.
func (s *Scorer) shift(ctx context.Context, opinionID string) (float64, error) {
	op, err := s.opinions.OpinionByID(ctx, opinionID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up opinion %s: %w", opinionID, err)
	}
	if op == nil {
		return 0, errs.NotFound("No opinion with the id %s exists", opinionID)
	}
	rev, err := s.opinions.FindRevisedOpinion(ctx, op.Debate, op.Author)
	if err != nil {
		return 0, fmt.Errorf("failed to look up revised opinion for %s: %w", opinionID, err)
	}
	if rev == nil {
		return 0, nil
	}
	return rev.LikertScale - op.LikertScale, nil
}

// CacheTotal stores score as the frozen total of an opinion unless one is
// already stored. It returns the stored total.
func (s *Scorer) CacheTotal(ctx context.Context, debateID, opinionID string, score float64) (float64, error) {
	rec, err := s.store.InsertScoreIfAbsent(ctx, models.ScoreRecord{
		Debate:     debateID,
		Opinion:    opinionID,
		TotalScore: score,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to cache total: %w", err)
	}
	return rec.TotalScore, nil
}

// AggregateUserDelta sums the cached totals of the given opinions.
func (s *Scorer) AggregateUserDelta(ctx context.Context, opinionIDs []string) (float64, error) {
	var total float64
	for _, id := range opinionIDs {
		rec, err := s.store.FindScoreByOpinion(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to look up score for %s: %w", id, err)
		}
		if rec != nil {
			total += rec.TotalScore
		}
	}
	return total, nil
}

// ReviewWeights flattens the reviews of the given opinions into parallel id
// and score slices, each opinion's reviews highest score first. The result
// feeds ComputeWeightedDeltas.
func (s *Scorer) ReviewWeights(ctx context.Context, opinionIDs []string) ([]string, []float64, error) {
	var ids []string
	var weights []float64
	for _, id := range opinionIDs {
		reviews, err := s.store.ReviewsForOpinion(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list reviews for %s: %w", id, err)
		}
		for _, r := range reviews {
			ids = append(ids, r.Opinion)
			weights = append(weights, r.Score)
		}
	}
	return ids, weights, nil
}

// LikertShift returns the absolute stance change of author in a debate.
// A missing original or revised opinion counts as no change.
func (s *Scorer) LikertShift(ctx context.Context, debateID, author string) (float64, error) {
	original, err := s.opinions.FindOpinion(ctx, debateID, author)
	if err != nil {
		return 0, fmt.Errorf("failed to look up opinion: %w", err)
	}
	if original == nil {
		return 0, nil
	}
	rev, err := s.opinions.FindRevisedOpinion(ctx, debateID, author)
	if err != nil {
		return 0, fmt.Errorf("failed to look up revised opinion: %w", err)
	}
	if rev == nil {
		return 0, nil
	}
	return math.Abs(original.LikertScale - rev.LikertScale), nil
}

// FinalizeDebate computes the weighted delta of every reviewed opinion in
// opinionIDs and caches it. Opinions without reviews are left uncached. The
// returned map holds the stored totals.
func (s *Scorer) FinalizeDebate(ctx context.Context, debateID string, opinionIDs []string) (map[string]float64, error) {
	ids, weights, err := s.ReviewWeights(ctx, opinionIDs)
	if err != nil {
		return nil, err
	}
	computed, err := s.ComputeWeightedDeltas(ctx, ids, weights)
	if err != nil {
		return nil, err
	}

	stored := make(map[string]float64, len(computed))
	for _, id := range opinionIDs {
		score, ok := computed[id]
		if !ok {
			continue
		}
		total, err := s.CacheTotal(ctx, debateID, id, score)
		if err != nil {
			return nil, err
		}
		stored[id] = total
	}
	s.logger.Info().Str("debate", debateID).Int("opinions", len(stored)).Msg("debate scores finalized")
	return stored, nil
}
