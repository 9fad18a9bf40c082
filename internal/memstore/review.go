package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"deltadebate/models"
)

// ReviewStore holds reviews and cached score totals.
type ReviewStore struct {
	mu      sync.Mutex
	reviews map[[3]string]models.Review
	scores  map[[2]string]models.ScoreRecord
	now     func() time.Time
}

// NewReviewStore creates an empty ReviewStore.
func NewReviewStore() *ReviewStore {
	return &ReviewStore{
		reviews: map[[3]string]models.Review{},
		scores:  map[[2]string]models.ScoreRecord{},
		now:     time.Now,
	}
}

func (s *ReviewStore) UpsertReview(_ context.Context, r models.Review) (models.Review, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [3]string{r.Reviewer, r.Debate, r.Opinion}
	r.UpdatedAt = s.now()
	existing, ok := s.reviews[key]
	if ok {
		r.ID = existing.ID
	} else {
		r.ID = primitive.NewObjectID()
	}
	s.reviews[key] = r
	return r, !ok, nil
}

func (s *ReviewStore) FindReview(_ context.Context, reviewer, debateID, opinion string) (*models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[[3]string{reviewer, debateID, opinion}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *ReviewStore) ReviewsForOpinion(_ context.Context, opinion string) ([]models.Review, error) {
	s.mu.Lock()
	out := []models.Review{}
	for _, r := range s.reviews {
		if r.Opinion == opinion {
			out = append(out, r)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Reviewer < out[j].Reviewer
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *ReviewStore) FindScore(_ context.Context, debateID, opinion string) (*models.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.scores[[2]string{debateID, opinion}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *ReviewStore) FindScoreByOpinion(_ context.Context, opinion string) (*models.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range s.scores {
		if key[1] == opinion {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (s *ReviewStore) InsertScoreIfAbsent(_ context.Context, rec models.ScoreRecord) (models.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{rec.Debate, rec.Opinion}
	if existing, ok := s.scores[key]; ok {
		return existing, nil
	}
	rec.ID = primitive.NewObjectID()
	rec.CreatedAt = s.now()
	s.scores[key] = rec
	return rec, nil
}
