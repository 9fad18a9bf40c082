package memstore

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"deltadebate/models"
)

// MatchStore holds dissent match records keyed by (debate, reviewer).
type MatchStore struct {
	mu      sync.Mutex
	matches map[[2]string]models.DifferentOpinionMatch
}

// NewMatchStore creates an empty MatchStore.
func NewMatchStore() *MatchStore {
	return &MatchStore{matches: map[[2]string]models.DifferentOpinionMatch{}}
}

func cloneMatch(m models.DifferentOpinionMatch) *models.DifferentOpinionMatch {
	m.MatchedOpinions = append([]string{}, m.MatchedOpinions...)
	return &m
}

func (s *MatchStore) Find(_ context.Context, debateID, reviewer string) (*models.DifferentOpinionMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[[2]string{debateID, reviewer}]
	if !ok {
		return nil, nil
	}
	return cloneMatch(m), nil
}

func (s *MatchStore) AddOpinions(_ context.Context, debateID, reviewer string, ids []string) (*models.DifferentOpinionMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{debateID, reviewer}
	m, ok := s.matches[key]
	if !ok {
		m = models.DifferentOpinionMatch{
			ID:              primitive.NewObjectID(),
			Reviewer:        reviewer,
			Debate:          debateID,
			MatchedOpinions: []string{},
		}
	}
	for _, id := range ids {
		if !m.Contains(id) {
			m.MatchedOpinions = append(m.MatchedOpinions, id)
		}
	}
	s.matches[key] = m
	return cloneMatch(m), nil
}

func (s *MatchStore) RemoveOpinion(_ context.Context, debateID, reviewer, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{debateID, reviewer}
	m, ok := s.matches[key]
	if !ok {
		return false, nil
	}
	kept := make([]string, 0, len(m.MatchedOpinions))
	removed := false
	for _, existing := range m.MatchedOpinions {
		if existing == id {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	m.MatchedOpinions = kept
	s.matches[key] = m
	return removed, nil
}

func (s *MatchStore) PullOpinion(_ context.Context, debateID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, m := range s.matches {
		if key[0] != debateID || !m.Contains(id) {
			continue
		}
		kept := make([]string, 0, len(m.MatchedOpinions))
		for _, existing := range m.MatchedOpinions {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		m.MatchedOpinions = kept
		s.matches[key] = m
	}
	return nil
}

func (s *MatchStore) DeleteForReviewer(_ context.Context, debateID, reviewer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, [2]string{debateID, reviewer})
	return nil
}

func (s *MatchStore) DeleteForDebates(_ context.Context, debates []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(debates))
	for _, d := range debates {
		drop[d] = struct{}{}
	}
	for key := range s.matches {
		if _, ok := drop[key[0]]; ok {
			delete(s.matches, key)
		}
	}
	return nil
}
