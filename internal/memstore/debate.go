package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"deltadebate/internal/errs"
	"deltadebate/models"
)

// DebateStore holds debates with their original and revised opinions.
type DebateStore struct {
	mu       sync.RWMutex
	debates  map[string]models.Debate
	opinions map[string]models.Opinion
	revised  map[string]models.RevisedOpinion
	now      func() time.Time
}

// NewDebateStore creates an empty DebateStore.
func NewDebateStore() *DebateStore {
	return &DebateStore{
		debates:  map[string]models.Debate{},
		opinions: map[string]models.Opinion{},
		revised:  map[string]models.RevisedOpinion{},
		now:      time.Now,
	}
}

func cloneDebate(d models.Debate) models.Debate {
	d.Participants = append([]string(nil), d.Participants...)
	return d
}

func (s *DebateStore) CreateDebate(_ context.Context, d models.Debate) (models.Debate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.debates {
		if existing.Prompt == d.Prompt {
			return models.Debate{}, errs.Conflict("%s already used in a debate!", d.Prompt)
		}
	}
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	if d.Participants == nil {
		d.Participants = []string{}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	s.debates[d.ID.Hex()] = cloneDebate(d)
	return cloneDebate(d), nil
}

func (s *DebateStore) FindDebate(_ context.Context, id string) (*models.Debate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.debates[id]
	if !ok {
		return nil, nil
	}
	out := cloneDebate(d)
	return &out, nil
}

func (s *DebateStore) FindDebateByPrompt(_ context.Context, prompt string) (*models.Debate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.debates {
		if d.Prompt == prompt {
			out := cloneDebate(d)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *DebateStore) DeleteDebate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.debates, id)
	return nil
}

func (s *DebateStore) AddParticipant(_ context.Context, debateID, user string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debates[debateID]
	if !ok {
		return false, errs.NotFound("debate %s not found", debateID)
	}
	if d.HasParticipant(user) {
		return false, nil
	}
	d.Participants = append(d.Participants, user)
	s.debates[debateID] = d
	return true, nil
}

func (s *DebateStore) RemoveParticipant(_ context.Context, debateID, user string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debates[debateID]
	if !ok {
		return false, errs.NotFound("debate %s not found", debateID)
	}
	kept := make([]string, 0, len(d.Participants))
	removed := false
	for _, p := range d.Participants {
		if p == user {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	d.Participants = kept
	s.debates[debateID] = d
	return removed, nil
}

func sortOpinions(ops []models.Opinion) {
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID.Hex() < ops[j].ID.Hex() })
}

func (s *DebateStore) findOpinionLocked(debateID, author string) (models.Opinion, bool) {
	for _, op := range s.opinions {
		if op.Debate == debateID && op.Author == author {
			return op, true
		}
	}
	return models.Opinion{}, false
}

func (s *DebateStore) FindOpinion(_ context.Context, debateID, author string) (*models.Opinion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.findOpinionLocked(debateID, author)
	if !ok {
		return nil, nil
	}
	return &op, nil
}

func (s *DebateStore) OpinionByID(_ context.Context, id string) (*models.Opinion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.opinions[id]
	if !ok {
		return nil, nil
	}
	return &op, nil
}

func (s *DebateStore) ListOpinions(_ context.Context, debateID string) ([]models.Opinion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Opinion{}
	for _, op := range s.opinions {
		if op.Debate == debateID {
			out = append(out, op)
		}
	}
	sortOpinions(out)
	return out, nil
}

func (s *DebateStore) OpinionsByAuthor(_ context.Context, author string) ([]models.Opinion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Opinion{}
	for _, op := range s.opinions {
		if op.Author == author {
			out = append(out, op)
		}
	}
	sortOpinions(out)
	return out, nil
}

// UpsertOpinion stores op under (debate, author), keeping the id of an
// existing opinion. created reports whether a new opinion was inserted.
func (s *DebateStore) UpsertOpinion(_ context.Context, op models.Opinion) (models.Opinion, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op.UpdatedAt = s.now()
	if existing, ok := s.findOpinionLocked(op.Debate, op.Author); ok {
		op.ID = existing.ID
		s.opinions[op.ID.Hex()] = op
		return op, false, nil
	}
	op.ID = primitive.NewObjectID()
	s.opinions[op.ID.Hex()] = op
	return op, true, nil
}

func (s *DebateStore) DeleteOpinion(_ context.Context, debateID, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op, ok := s.findOpinionLocked(debateID, author); ok {
		delete(s.opinions, op.ID.Hex())
	}
	return nil
}

func (s *DebateStore) DeleteOpinionsForDebate(_ context.Context, debateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, op := range s.opinions {
		if op.Debate == debateID {
			delete(s.opinions, id)
		}
	}
	return nil
}

func (s *DebateStore) FindRevisedOpinion(_ context.Context, debateID, author string) (*models.RevisedOpinion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, op := range s.revised {
		if op.Debate == debateID && op.Author == author {
			out := op
			return &out, nil
		}
	}
	return nil, nil
}

func (s *DebateStore) UpsertRevisedOpinion(_ context.Context, op models.RevisedOpinion) (models.RevisedOpinion, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op.UpdatedAt = s.now()
	for id, existing := range s.revised {
		if existing.Debate == op.Debate && existing.Author == op.Author {
			op.ID = existing.ID
			s.revised[id] = op
			return op, false, nil
		}
	}
	op.ID = primitive.NewObjectID()
	s.revised[op.ID.Hex()] = op
	return op, true, nil
}

func (s *DebateStore) DeleteRevisedOpinion(_ context.Context, debateID, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, op := range s.revised {
		if op.Debate == debateID && op.Author == author {
			delete(s.revised, id)
		}
	}
	return nil
}

func (s *DebateStore) DeleteRevisedOpinionsForDebate(_ context.Context, debateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, op := range s.revised {
		if op.Debate == debateID {
			delete(s.revised, id)
		}
	}
	return nil
}
