package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"deltadebate/internal/errs"
	"deltadebate/internal/matching"
	"deltadebate/internal/pairing"
	"deltadebate/internal/phase"
	"deltadebate/internal/scoring"
	"deltadebate/models"
)

// DebateStore is the opinion and debate storage used by the workflow.
// Lookups return nil, nil when the record does not exist.
type DebateStore interface {
	CreateDebate(ctx context.Context, d models.Debate) (models.Debate, error)
	FindDebate(ctx context.Context, id string) (*models.Debate, error)
	FindDebateByPrompt(ctx context.Context, prompt string) (*models.Debate, error)
	DeleteDebate(ctx context.Context, id string) error
	AddParticipant(ctx context.Context, debate, user string) (bool, error)
	RemoveParticipant(ctx context.Context, debate, user string) (bool, error)

	FindOpinion(ctx context.Context, debate, author string) (*models.Opinion, error)
	OpinionByID(ctx context.Context, id string) (*models.Opinion, error)
	ListOpinions(ctx context.Context, debate string) ([]models.Opinion, error)
	OpinionsByAuthor(ctx context.Context, author string) ([]models.Opinion, error)
	UpsertOpinion(ctx context.Context, op models.Opinion) (models.Opinion, bool, error)
	DeleteOpinion(ctx context.Context, debate, author string) error
	DeleteOpinionsForDebate(ctx context.Context, debate string) error

	FindRevisedOpinion(ctx context.Context, debate, author string) (*models.RevisedOpinion, error)
	UpsertRevisedOpinion(ctx context.Context, op models.RevisedOpinion) (models.RevisedOpinion, bool, error)
	DeleteRevisedOpinion(ctx context.Context, debate, author string) error
	DeleteRevisedOpinionsForDebate(ctx context.Context, debate string) error
}

// DebatePhase is a phase record joined with its debate.
type DebatePhase struct {
	Key      string     `json:"key"`
	Prompt   string     `json:"prompt"`
	Category string     `json:"category"`
	CurPhase int        `json:"curPhase"`
	Phase    string     `json:"phase"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// ArchivedDebate is a finished or running debate with every opinion.
type ArchivedDebate struct {
	DebatePhase
	Opinions []models.Opinion `json:"opinions"`
}

// DebateService runs the debate workflow. Every operation that reads phase
// state sweeps first and purges the match records of debates that left the
// review phase.
type DebateService struct {
	store   DebateStore
	phases  *phase.Scheduler
	matcher *matching.Matcher
	scorer  *scoring.Scorer
	solver  *pairing.Solver
	logger  zerolog.Logger
}

// NewDebateService wires the workflow.
func NewDebateService(store DebateStore, phases *phase.Scheduler, matcher *matching.Matcher, scorer *scoring.Scorer, solver *pairing.Solver, logger zerolog.Logger) *DebateService {
	return &DebateService{
		store:   store,
		phases:  phases,
		matcher: matcher,
		scorer:  scorer,
		solver:  solver,
		logger:  logger.With().Str("service", "debate").Logger(),
	}
}

// Phases returns the scheduler driving the workflow.
func (s *DebateService) Phases() *phase.Scheduler { return s.phases }

// sync sweeps the scheduler and forwards review complete keys to the matcher.
func (s *DebateService) sync(ctx context.Context) error {
	done, err := s.phases.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep phases: %w", err)
	}
	return s.matcher.PurgeForDebates(ctx, done)
}

func validLikert(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return errs.InvalidInput("likert scale %v must be between 0 and 100", v)
	}
	return nil
}

func (s *DebateService) requireActive(ctx context.Context, debateID string) (*models.PhaseRecord, error) {
	rec, err := s.phases.ActiveByKey(ctx, debateID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errs.NotFound("%s doesn't have an active phase!", debateID)
	}
	return rec, nil
}

func (s *DebateService) requireDebate(ctx context.Context, debateID string) (*models.Debate, error) {
	d, err := s.store.FindDebate(ctx, debateID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up debate: %w", err)
	}
	if d == nil {
		return nil, errs.NotFound("debate %s not found", debateID)
	}
	return d, nil
}

// SuggestPrompt creates a debate for prompt and queues it for scheduling.
func (s *DebateService) SuggestPrompt(ctx context.Context, prompt, category string) (models.Debate, *models.PhaseRecord, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return models.Debate{}, nil, errs.InvalidInput("prompt must not be empty")
	}
	if err := s.sync(ctx); err != nil {
		return models.Debate{}, nil, err
	}

	existing, err := s.store.FindDebateByPrompt(ctx, prompt)
	if err != nil {
		return models.Debate{}, nil, fmt.Errorf("failed to look up prompt: %w", err)
	}
	if existing != nil {
		return models.Debate{}, nil, errs.Conflict("%s already used in a debate!", prompt)
	}

	d, err := s.store.CreateDebate(ctx, models.Debate{Prompt: prompt, Category: category})
	if err != nil {
		return models.Debate{}, nil, err
	}
	rec, err := s.phases.Initialize(ctx, d.ID.Hex())
	if err != nil {
		if delErr := s.store.DeleteDebate(ctx, d.ID.Hex()); delErr != nil {
			s.logger.Error().Err(delErr).Str("debate", d.ID.Hex()).Msg("failed to roll back debate")
		}
		return models.Debate{}, nil, err
	}
	s.logger.Info().Str("debate", d.ID.Hex()).Str("category", category).Msg("prompt suggested")
	return d, rec, nil
}

// SubmitOpinion creates or overwrites user's opinion on an active debate.
// created is true when user became a participant.
func (s *DebateService) SubmitOpinion(ctx context.Context, user, debateID, content string, likert float64) (op models.Opinion, created bool, err error) {
	if err := validLikert(likert); err != nil {
		return models.Opinion{}, false, err
	}
	if err := s.sync(ctx); err != nil {
		return models.Opinion{}, false, err
	}
	if _, err := s.requireActive(ctx, debateID); err != nil {
		return models.Opinion{}, false, err
	}
	if _, err := s.requireDebate(ctx, debateID); err != nil {
		return models.Opinion{}, false, err
	}

	op, created, err = s.store.UpsertOpinion(ctx, models.Opinion{
		Content:     content,
		Author:      user,
		LikertScale: likert,
		Debate:      debateID,
	})
	if err != nil {
		return models.Opinion{}, false, fmt.Errorf("failed to store opinion: %w", err)
	}
	if _, err := s.store.AddParticipant(ctx, debateID, user); err != nil {
		return models.Opinion{}, false, fmt.Errorf("failed to add participant: %w", err)
	}
	return op, created, nil
}

// SubmitRevisedOpinion creates or overwrites user's revised opinion. The
// user must already have an original opinion in the debate.
func (s *DebateService) SubmitRevisedOpinion(ctx context.Context, user, debateID, content string, likert float64) (models.RevisedOpinion, bool, error) {
	if err := validLikert(likert); err != nil {
		return models.RevisedOpinion{}, false, err
	}
	if err := s.sync(ctx); err != nil {
		return models.RevisedOpinion{}, false, err
	}
	if _, err := s.requireActive(ctx, debateID); err != nil {
		return models.RevisedOpinion{}, false, err
	}
	original, err := s.store.FindOpinion(ctx, debateID, user)
	if err != nil {
		return models.RevisedOpinion{}, false, fmt.Errorf("failed to look up opinion: %w", err)
	}
	if original == nil {
		return models.RevisedOpinion{}, false, errs.NotAllowed("submit an opinion before revising it")
	}

	rev, created, err := s.store.UpsertRevisedOpinion(ctx, models.RevisedOpinion{
		Content:     content,
		Author:      user,
		LikertScale: likert,
		Debate:      debateID,
	})
	if err != nil {
		return models.RevisedOpinion{}, false, fmt.Errorf("failed to store revised opinion: %w", err)
	}
	return rev, created, nil
}

// MyOpinion returns user's opinion in a debate, or nil.
func (s *DebateService) MyOpinion(ctx context.Context, debateID, user string) (*models.Opinion, error) {
	return s.store.FindOpinion(ctx, debateID, user)
}

// MyRevisedOpinion returns user's revised opinion in a debate, or nil.
func (s *DebateService) MyRevisedOpinion(ctx context.Context, debateID, user string) (*models.RevisedOpinion, error) {
	return s.store.FindRevisedOpinion(ctx, debateID, user)
}

// DeleteMyOpinion removes user's participation, both of their opinions and
// every match record that refers to them.
func (s *DebateService) DeleteMyOpinion(ctx context.Context, debateID, user string) error {
	if err := s.sync(ctx); err != nil {
		return err
	}
	removed, err := s.store.RemoveParticipant(ctx, debateID, user)
	if err != nil {
		return err
	}
	if !removed {
		return errs.NotFound("User was not a participant of given debate")
	}

	var opinionID string
	op, err := s.store.FindOpinion(ctx, debateID, user)
	if err != nil {
		return fmt.Errorf("failed to look up opinion: %w", err)
	}
	if op != nil {
		opinionID = op.ID.Hex()
	}
	if err := s.store.DeleteOpinion(ctx, debateID, user); err != nil {
		return fmt.Errorf("failed to delete opinion: %w", err)
	}
	if err := s.store.DeleteRevisedOpinion(ctx, debateID, user); err != nil {
		return fmt.Errorf("failed to delete revised opinion: %w", err)
	}
	if err := s.matcher.ForgetParticipant(ctx, debateID, user, opinionID); err != nil {
		return err
	}
	s.logger.Info().Str("debate", debateID).Str("user", user).Msg("opinion deleted")
	return nil
}

// MatchOpinions returns the reviewer's dissent sample for an active debate.
func (s *DebateService) MatchOpinions(ctx context.Context, debateID, reviewer string) (*models.DifferentOpinionMatch, error) {
	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	if _, err := s.requireActive(ctx, debateID); err != nil {
		return nil, err
	}
	return s.matcher.MatchReviewerToDissent(ctx, debateID, reviewer)
}

// RemoveMatchedOpinion drops one opinion from the reviewer's sample.
func (s *DebateService) RemoveMatchedOpinion(ctx context.Context, debateID, reviewer, opinionID string) error {
	if err := s.sync(ctx); err != nil {
		return err
	}
	return s.matcher.RemoveMatch(ctx, debateID, reviewer, opinionID)
}

// MatchedOpinionContents resolves the reviewer's sample to opinion text.
// Opinions deleted since matching are skipped.
func (s *DebateService) MatchedOpinionContents(ctx context.Context, debateID, reviewer string) ([]models.OpinionContent, error) {
	match, err := s.MatchOpinions(ctx, debateID, reviewer)
	if err != nil {
		return nil, err
	}
	contents := make([]models.OpinionContent, 0, len(match.MatchedOpinions))
	for _, id := range match.MatchedOpinions {
		op, err := s.store.OpinionByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to look up opinion %s: %w", id, err)
		}
		if op == nil {
			continue
		}
		contents = append(contents, models.OpinionContent{OpinionID: id, Content: op.Content})
	}
	return contents, nil
}

// DeleteDebate removes a debate with its phase, opinions and matches.
func (s *DebateService) DeleteDebate(ctx context.Context, debateID string) error {
	if err := s.sync(ctx); err != nil {
		return err
	}
	if err := s.phases.Delete(ctx, debateID); err != nil {
		return err
	}
	if err := s.store.DeleteOpinionsForDebate(ctx, debateID); err != nil {
		return fmt.Errorf("failed to delete opinions: %w", err)
	}
	if err := s.store.DeleteRevisedOpinionsForDebate(ctx, debateID); err != nil {
		return fmt.Errorf("failed to delete revised opinions: %w", err)
	}
	if err := s.matcher.PurgeForDebates(ctx, []string{debateID}); err != nil {
		return err
	}
	if err := s.store.DeleteDebate(ctx, debateID); err != nil {
		return fmt.Errorf("failed to delete debate: %w", err)
	}
	s.logger.Info().Str("debate", debateID).Msg("debate deleted")
	return nil
}

func (s *DebateService) view(ctx context.Context, rec models.PhaseRecord) (DebatePhase, error) {
	v := DebatePhase{Key: rec.Key, CurPhase: rec.CurPhase, Phase: rec.PhaseLabel(), Deadline: rec.Deadline}
	d, err := s.store.FindDebate(ctx, rec.Key)
	if err != nil {
		return DebatePhase{}, fmt.Errorf("failed to look up debate %s: %w", rec.Key, err)
	}
	if d != nil {
		v.Prompt = d.Prompt
		v.Category = d.Category
	}
	return v, nil
}

func (s *DebateService) views(ctx context.Context, recs []models.PhaseRecord) ([]DebatePhase, error) {
	out := make([]DebatePhase, 0, len(recs))
	for _, rec := range recs {
		v, err := s.view(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ActiveDebates lists every active debate.
func (s *DebateService) ActiveDebates(ctx context.Context) ([]DebatePhase, error) {
	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	recs, err := s.phases.Active(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, recs)
}

// History lists archived debates, most recently finished first.
func (s *DebateService) History(ctx context.Context) ([]DebatePhase, error) {
	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	recs, err := s.phases.History(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, recs)
}

// ActiveDebate returns one active debate.
func (s *DebateService) ActiveDebate(ctx context.Context, debateID string) (*DebatePhase, error) {
	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	rec, err := s.requireActive(ctx, debateID)
	if err != nil {
		return nil, err
	}
	v, err := s.view(ctx, *rec)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ArchivedDebate returns a debate that is active or archived together with
// all of its opinions.
func (s *DebateService) ArchivedDebate(ctx context.Context, debateID string) (*ArchivedDebate, error) {
	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	rec, err := s.phases.ArchivedByKey(ctx, debateID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errs.NotFound("%s doesn't have an archived phase!", debateID)
	}
	v, err := s.view(ctx, *rec)
	if err != nil {
		return nil, err
	}
	ops, err := s.store.ListOpinions(ctx, debateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list opinions: %w", err)
	}
	return &ArchivedDebate{DebatePhase: v, Opinions: ops}, nil
}

// EditDeadline moves the deadline of an active debate.
func (s *DebateService) EditDeadline(ctx context.Context, debateID string, deadline time.Time) error {
	if err := s.sync(ctx); err != nil {
		return err
	}
	return s.phases.EditDeadline(ctx, debateID, deadline)
}

// SubmitReview records reviewer's weight for an opinion of the debate.
// Reviewers cannot score their own opinion.
func (s *DebateService) SubmitReview(ctx context.Context, reviewer, debateID, opinionID string, score float64) (models.Review, bool, error) {
	if err := s.sync(ctx); err != nil {
		return models.Review{}, false, err
	}
	op, err := s.store.OpinionByID(ctx, opinionID)
	if err != nil {
		return models.Review{}, false, fmt.Errorf("failed to look up opinion: %w", err)
	}
	if op == nil || op.Debate != debateID {
		return models.Review{}, false, errs.NotFound("No opinion with the id %s exists", opinionID)
	}
	if op.Author == reviewer {
		return models.Review{}, false, errs.NotAllowed("You cannot review your own opinion!")
	}
	return s.scorer.SubmitReview(ctx, reviewer, debateID, opinionID, score)
}

// ReviewerScore returns reviewer's score for an opinion, or the default.
func (s *DebateService) ReviewerScore(ctx context.Context, reviewer, debateID, opinionID string) (float64, error) {
	return s.scorer.ScoreByReviewer(ctx, reviewer, debateID, opinionID)
}

// FinalizeDebateScores freezes the delta of every reviewed opinion once the
// debate is past its review phase.
func (s *DebateService) FinalizeDebateScores(ctx context.Context, debateID string) (map[string]float64, error) {
	if err := s.sync(ctx); err != nil {
		return nil, err
	}
	rec, err := s.phases.ArchivedByKey(ctx, debateID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errs.NotFound("%s doesn't have an active or archived phase!", debateID)
	}
	if rec.CurPhase <= 2 {
		return nil, errs.InvalidState("reviews for %s are still open", debateID)
	}

	ops, err := s.store.ListOpinions(ctx, debateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list opinions: %w", err)
	}
	ids := make([]string, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.ID.Hex())
	}
	return s.scorer.FinalizeDebate(ctx, debateID, ids)
}

// OpinionDelta returns the frozen delta of one opinion, or 0.
func (s *DebateService) OpinionDelta(ctx context.Context, debateID, opinionID string) (float64, error) {
	return s.scorer.DeltaForOpinion(ctx, debateID, opinionID)
}

// UserDelta sums the frozen deltas of every opinion user wrote.
func (s *DebateService) UserDelta(ctx context.Context, user string) (float64, error) {
	ops, err := s.store.OpinionsByAuthor(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("failed to list opinions: %w", err)
	}
	ids := make([]string, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.ID.Hex())
	}
	return s.scorer.AggregateUserDelta(ctx, ids)
}

// LikertShift returns how far user moved between original and revised
// opinion.
func (s *DebateService) LikertShift(ctx context.Context, debateID, user string) (float64, error) {
	return s.scorer.LikertShift(ctx, debateID, user)
}

// BalancedAssignment assigns each participant of an active debate k
// opinions to review, favouring opinions far from their own stance. The
// result maps each reviewer to opinion ids. ok is false when no assignment
// with exactly k reviews per reviewer and per opinion exists.
func (s *DebateService) BalancedAssignment(ctx context.Context, debateID string, k int) (assignment map[string][]string, ok bool, err error) {
	if err := s.sync(ctx); err != nil {
		return nil, false, err
	}
	if _, err := s.requireActive(ctx, debateID); err != nil {
		return nil, false, err
	}
	ops, err := s.store.ListOpinions(ctx, debateID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list opinions: %w", err)
	}

	w := make([][]float64, len(ops))
	for i := range ops {
		w[i] = make([]float64, len(ops))
		for j := range ops {
			if i != j {
				w[i][j] = math.Abs(ops[i].LikertScale - ops[j].LikertScale)
			}
		}
	}

	matrix, ok, err := s.solver.Solve(ctx, w, k)
	if err != nil || !ok {
		return nil, ok, err
	}
	assignment = make(map[string][]string, len(ops))
	for i, row := range matrix {
		reviewer := ops[i].Author
		assignment[reviewer] = []string{}
		for j, v := range row {
			if v == 1 {
				assignment[reviewer] = append(assignment[reviewer], ops[j].ID.Hex())
			}
		}
	}
	return assignment, true, nil
}
