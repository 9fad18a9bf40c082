// Package phase schedules debates through their deadline bound phases.
//
// Nothing advances on a timer. Every read entry point runs a sweep that
// compares stored deadlines against the clock, so the scheduler works in
// any process model: request handlers, a cron job or a test.
package phase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"deltadebate/internal/debate"
	"deltadebate/internal/errs"
	"deltadebate/models"
)

const partitionsLock = "phase:partitions"

// Scheduler owns the pending, active and archived partitions.
type Scheduler struct {
	store     Store
	locker    debate.Locker
	publisher debate.Publisher
	now       func() time.Time
	logger    zerolog.Logger

	mu  sync.RWMutex
	cfg Config
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLocker replaces the default process local locker.
func WithLocker(l debate.Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithPublisher sets where phase events go.
func WithPublisher(p debate.Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// NewScheduler creates a scheduler with its own configuration.
func NewScheduler(store Store, cfg Config, logger zerolog.Logger, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		store:     store,
		locker:    debate.NewMemoryLocker(),
		publisher: debate.NopPublisher{},
		now:       time.Now,
		logger:    logger.With().Str("service", "phase").Logger(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the current configuration.
func (s *Scheduler) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Reconfigure replaces the whole configuration.
func (s *Scheduler) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// SetMaxPhase changes the terminal phase.
func (s *Scheduler) SetMaxPhase(n int) error {
	if n <= 0 {
		return errs.InvalidInput("%d must be an integer greater than 0", n)
	}
	s.mu.Lock()
	s.cfg.MaxPhase = n
	s.mu.Unlock()
	return nil
}

// SetNumPromptsPerDay changes the phase 1 intake cap.
func (s *Scheduler) SetNumPromptsPerDay(n int) error {
	if n <= 0 {
		return errs.InvalidInput("%d must be an integer greater than 0", n)
	}
	s.mu.Lock()
	s.cfg.NumPromptsPerDay = n
	s.mu.Unlock()
	return nil
}

// SetDeadlineExtensionHours changes how long each phase lasts.
func (s *Scheduler) SetDeadlineExtensionHours(hours float64) error {
	d, err := HoursToDuration(hours)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg.DeadlineExtension = d
	s.mu.Unlock()
	return nil
}

// Initialize queues key as a pending record and runs intake.
// Archived keys are not checked, so an archived key can be queued again.
func (s *Scheduler) Initialize(ctx context.Context, key string) (*models.PhaseRecord, error) {
	unlock, err := s.locker.Lock(ctx, partitionsLock)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.sweepLocked(ctx); err != nil {
		return nil, err
	}

	for _, p := range []models.Partition{models.PartitionActive, models.PartitionPending} {
		existing, err := s.store.Find(ctx, p, key)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s phase: %w", p, err)
		}
		if existing != nil {
			return nil, errs.Conflict("%s already has an active or stored phase!", key)
		}
	}

	now := s.now()
	rec := models.PhaseRecord{Key: key, CurPhase: 0, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Put(ctx, models.PartitionPending, rec); err != nil {
		return nil, fmt.Errorf("failed to store pending phase: %w", err)
	}
	s.logger.Info().Str("key", key).Msg("phase queued")

	active, err := s.store.List(ctx, models.PartitionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active phases: %w", err)
	}
	if err := s.intakeLocked(ctx, now, s.Config(), active); err != nil {
		return nil, err
	}

	if promoted, err := s.store.Find(ctx, models.PartitionActive, key); err != nil {
		return nil, err
	} else if promoted != nil {
		return promoted, nil
	}
	return &rec, nil
}

// Sweep advances expired records, archives finished ones and refills
// phase 1. It returns every key that is past the review phase.
func (s *Scheduler) Sweep(ctx context.Context) ([]string, error) {
	unlock, err := s.locker.Lock(ctx, partitionsLock)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.sweepLocked(ctx)
}

func (s *Scheduler) sweepLocked(ctx context.Context) ([]string, error) {
	cfg := s.Config()
	now := s.now()

	active, err := s.store.List(ctx, models.PartitionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active phases: %w", err)
	}

	res := Sweep(now, cfg, active)

	// Archive first so an interrupted sweep leaves the record active and the
	// next sweep archives it again.
	for _, rec := range res.Archived {
		if err := s.store.Put(ctx, models.PartitionArchived, rec); err != nil {
			return nil, fmt.Errorf("failed to archive phase %s: %w", rec.Key, err)
		}
		if err := s.store.Remove(ctx, models.PartitionActive, rec.Key); err != nil {
			return nil, fmt.Errorf("failed to remove active phase %s: %w", rec.Key, err)
		}
	}
	for _, rec := range res.Updated {
		if err := s.store.Put(ctx, models.PartitionActive, rec); err != nil {
			return nil, fmt.Errorf("failed to update phase %s: %w", rec.Key, err)
		}
	}

	for _, tr := range res.Advanced {
		s.logger.Info().Str("key", tr.Key).Int("from", tr.FromPhase).Int("to", tr.ToPhase).Msg("phase advanced")
		s.publish(ctx, debate.NewPhaseEvent(debate.EventAdvanced, tr.Key, tr.FromPhase, tr.ToPhase, tr.Deadline, now))
		if tr.FromPhase <= 2 && tr.ToPhase > 2 {
			s.publish(ctx, debate.NewPhaseEvent(debate.EventReviewCompleted, tr.Key, tr.FromPhase, tr.ToPhase, tr.Deadline, now))
		}
	}
	for _, rec := range res.Archived {
		s.logger.Info().Str("key", rec.Key).Int("phase", rec.CurPhase).Msg("phase archived")
		s.publish(ctx, debate.NewPhaseEvent(debate.EventArchived, rec.Key, rec.CurPhase, rec.CurPhase, nil, now))
	}

	if err := s.intakeLocked(ctx, now, cfg, res.Remaining); err != nil {
		return nil, err
	}
	return res.ReviewDone, nil
}

func (s *Scheduler) intakeLocked(ctx context.Context, now time.Time, cfg Config, active []models.PhaseRecord) error {
	pending, err := s.store.List(ctx, models.PartitionPending)
	if err != nil {
		return fmt.Errorf("failed to list pending phases: %w", err)
	}

	activeKeys := make(map[string]struct{}, len(active))
	for _, rec := range active {
		activeKeys[rec.Key] = struct{}{}
	}
	for _, rec := range pending {
		if _, ok := activeKeys[rec.Key]; ok {
			if err := s.store.Remove(ctx, models.PartitionPending, rec.Key); err != nil {
				return fmt.Errorf("failed to drop stale pending phase %s: %w", rec.Key, err)
			}
		}
	}

	for _, rec := range Intake(now, cfg, active, pending) {
		if err := s.store.Put(ctx, models.PartitionActive, rec); err != nil {
			return fmt.Errorf("failed to activate phase %s: %w", rec.Key, err)
		}
		if err := s.store.Remove(ctx, models.PartitionPending, rec.Key); err != nil {
			return fmt.Errorf("failed to remove pending phase %s: %w", rec.Key, err)
		}
		s.logger.Info().Str("key", rec.Key).Time("deadline", *rec.Deadline).Msg("phase started")
		s.publish(ctx, debate.NewPhaseEvent(debate.EventPromoted, rec.Key, 0, 1, rec.Deadline, now))
	}
	return nil
}

// Active returns every active record after a sweep.
func (s *Scheduler) Active(ctx context.Context) ([]models.PhaseRecord, error) {
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}
	return s.store.List(ctx, models.PartitionActive)
}

// History returns archived records, most recently updated first.
func (s *Scheduler) History(ctx context.Context) ([]models.PhaseRecord, error) {
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}
	return s.store.List(ctx, models.PartitionArchived)
}

// Pending returns queued records in intake order.
func (s *Scheduler) Pending(ctx context.Context) ([]models.PhaseRecord, error) {
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}
	return s.store.List(ctx, models.PartitionPending)
}

// ActiveByKey returns the active record for key, or nil if key is not active.
func (s *Scheduler) ActiveByKey(ctx context.Context, key string) (*models.PhaseRecord, error) {
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}
	return s.store.Find(ctx, models.PartitionActive, key)
}

// ArchivedByKey returns the record for key if it is active or archived,
// preferring the active one, or nil if neither holds it.
func (s *Scheduler) ArchivedByKey(ctx context.Context, key string) (*models.PhaseRecord, error) {
	if _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}
	rec, err := s.store.Find(ctx, models.PartitionActive, key)
	if err != nil || rec != nil {
		return rec, err
	}
	return s.store.Find(ctx, models.PartitionArchived, key)
}

// EditDeadline overwrites the deadline of an active record. The phase is
// left unchanged.
func (s *Scheduler) EditDeadline(ctx context.Context, key string, deadline time.Time) error {
	now := s.now()
	if !deadline.After(now) {
		return errs.InvalidState("The date given (%s) is already expired!", deadline.Format(time.RFC3339))
	}

	unlock, err := s.locker.Lock(ctx, partitionsLock)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := s.store.Find(ctx, models.PartitionActive, key)
	if err != nil {
		return fmt.Errorf("failed to look up active phase: %w", err)
	}
	if rec == nil {
		return errs.NotFound("%s doesn't have an active phase!", key)
	}

	rec.Deadline = &deadline
	rec.UpdatedAt = now
	if err := s.store.Put(ctx, models.PartitionActive, *rec); err != nil {
		return fmt.Errorf("failed to update deadline: %w", err)
	}
	s.publish(ctx, debate.NewPhaseEvent(debate.EventDeadlineEdited, key, rec.CurPhase, rec.CurPhase, &deadline, now))
	return nil
}

// Delete removes key from every partition.
func (s *Scheduler) Delete(ctx context.Context, key string) error {
	unlock, err := s.locker.Lock(ctx, partitionsLock)
	if err != nil {
		return err
	}
	defer unlock()

	for _, p := range []models.Partition{models.PartitionPending, models.PartitionActive, models.PartitionArchived} {
		if err := s.store.Remove(ctx, p, key); err != nil {
			return fmt.Errorf("failed to delete %s phase: %w", p, err)
		}
	}
	s.logger.Info().Str("key", key).Msg("phase deleted")
	return nil
}

func (s *Scheduler) publish(ctx context.Context, event debate.PhaseEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("key", event.Key).Str("type", string(event.Type)).Msg("failed to publish phase event")
	}
}
