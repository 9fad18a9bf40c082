// Package matching builds the per reviewer samples of dissenting opinions.
package matching

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"deltadebate/internal/debate"
	"deltadebate/internal/errs"
	"deltadebate/models"
)

// OpinionReader reads the original opinions of a debate.
type OpinionReader interface {
	// FindOpinion returns nil, nil when author has no opinion in debate.
	FindOpinion(ctx context.Context, debate, author string) (*models.Opinion, error)
	ListOpinions(ctx context.Context, debate string) ([]models.Opinion, error)
}

// Store persists one match record per (reviewer, debate).
type Store interface {
	// Find returns nil, nil when no record exists.
	Find(ctx context.Context, debate, reviewer string) (*models.DifferentOpinionMatch, error)
	// AddOpinions creates the record if needed and adds ids that are not yet
	// members, keeping insertion order. It returns the stored record.
	AddOpinions(ctx context.Context, debate, reviewer string, ids []string) (*models.DifferentOpinionMatch, error)
	// RemoveOpinion removes id from the record and reports whether it was a
	// member.
	RemoveOpinion(ctx context.Context, debate, reviewer, id string) (bool, error)
	// PullOpinion removes id from every record of debate.
	PullOpinion(ctx context.Context, debate, id string) error
	DeleteForReviewer(ctx context.Context, debate, reviewer string) error
	DeleteForDebates(ctx context.Context, debates []string) error
}

// Matcher pairs reviewers with opinions whose stance differs from theirs.
type Matcher struct {
	store    Store
	opinions OpinionReader
	locker   debate.Locker
	logger   zerolog.Logger
}

// NewMatcher creates a Matcher. A nil locker falls back to a process local
// one.
func NewMatcher(store Store, opinions OpinionReader, locker debate.Locker, logger zerolog.Logger) *Matcher {
	if locker == nil {
		locker = debate.NewMemoryLocker()
	}
	return &Matcher{
		store:    store,
		opinions: opinions,
		locker:   locker,
		logger:   logger.With().Str("service", "matching").Logger(),
	}
}

func lockKey(debateID, reviewer string) string {
	return "match:" + debateID + ":" + reviewer
}

// MatchReviewerToDissent returns the reviewer's match record, computing it
// on first use. An existing record is returned as is, even if opinions were
// submitted after it was computed.
func (m *Matcher) MatchReviewerToDissent(ctx context.Context, debateID, reviewer string) (*models.DifferentOpinionMatch, error) {
	unlock, err := m.locker.Lock(ctx, lockKey(debateID, reviewer))
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := m.store.Find(ctx, debateID, reviewer)
	if err != nil {
		return nil, fmt.Errorf("failed to look up match: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	own, err := m.opinions.FindOpinion(ctx, debateID, reviewer)
	if err != nil {
		return nil, fmt.Errorf("failed to look up reviewer opinion: %w", err)
	}
	if own == nil {
		return nil, errs.NotAllowed("User didn't submit an opinion, so they can't review opinions")
	}

	all, err := m.opinions.ListOpinions(ctx, debateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list opinions: %w", err)
	}

	ids := Dissenting(*own, all)
	match, err := m.store.AddOpinions(ctx, debateID, reviewer, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to store match: %w", err)
	}
	m.logger.Debug().Str("debate", debateID).Str("reviewer", reviewer).Int("matched", len(match.MatchedOpinions)).Msg("match computed")
	return match, nil
}

// Dissenting returns the ids of opinions in all whose stance differs from
// own, in order and without duplicates. own itself is never included.
func Dissenting(own models.Opinion, all []models.Opinion) []string {
	seen := make(map[string]struct{}, len(all))
	ids := make([]string, 0, len(all))
	for _, op := range all {
		if op.ID == own.ID || op.Author == own.Author {
			continue
		}
		if op.LikertScale == own.LikertScale {
			continue
		}
		id := op.ID.Hex()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// RemoveMatch drops opinionID from the reviewer's match record.
func (m *Matcher) RemoveMatch(ctx context.Context, debateID, reviewer, opinionID string) error {
	unlock, err := m.locker.Lock(ctx, lockKey(debateID, reviewer))
	if err != nil {
		return err
	}
	defer unlock()

	existing, err := m.store.Find(ctx, debateID, reviewer)
	if err != nil {
		return fmt.Errorf("failed to look up match: %w", err)
	}
	if existing == nil {
		return errs.NotFound("%s has no opinions matched in debate %s", reviewer, debateID)
	}
	removed, err := m.store.RemoveOpinion(ctx, debateID, reviewer, opinionID)
	if err != nil {
		return fmt.Errorf("failed to remove matched opinion: %w", err)
	}
	if !removed {
		return errs.NotFound("opinion %s is not matched to %s", opinionID, reviewer)
	}
	return nil
}

// ForgetParticipant drops reviewer's own match record and removes their
// opinion from every other reviewer's sample.
func (m *Matcher) ForgetParticipant(ctx context.Context, debateID, reviewer, opinionID string) error {
	unlock, err := m.locker.Lock(ctx, lockKey(debateID, reviewer))
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.store.DeleteForReviewer(ctx, debateID, reviewer); err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	if opinionID == "" {
		return nil
	}
	if err := m.store.PullOpinion(ctx, debateID, opinionID); err != nil {
		return fmt.Errorf("failed to unmatch opinion: %w", err)
	}
	m.logger.Debug().Str("debate", debateID).Str("reviewer", reviewer).Msg("participant unmatched")
	return nil
}

// PurgeForDebates deletes every match record of the given debates.
func (m *Matcher) PurgeForDebates(ctx context.Context, debates []string) error {
	if len(debates) == 0 {
		return nil
	}
	if err := m.store.DeleteForDebates(ctx, debates); err != nil {
		return fmt.Errorf("failed to purge matches: %w", err)
	}
	m.logger.Debug().Strs("debates", debates).Msg("matches purged")
	return nil
}
