package phase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltadebate/internal/debate"
	"deltadebate/internal/errs"
	"deltadebate/internal/memstore"
	"deltadebate/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []debate.PhaseEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev debate.PhaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []debate.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]debate.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *memstore.PhaseStore, *fakeClock, *recordingPublisher) {
	t.Helper()
	store := memstore.NewPhaseStore()
	clock := &fakeClock{now: t0}
	pub := &recordingPublisher{}
	s, err := NewScheduler(store, cfg, zerolog.Nop(), WithClock(clock.Now), WithPublisher(pub))
	require.NoError(t, err)
	return s, store, clock, pub
}

func phaseOneCount(t *testing.T, s *Scheduler) int {
	t.Helper()
	active, err := s.Active(context.Background())
	require.NoError(t, err)
	n := 0
	for _, rec := range active {
		if rec.CurPhase == 1 {
			n++
		}
	}
	return n
}

func TestInitializeStartsImmediatelyWhenCapacityAllows(t *testing.T) {
	s, _, _, pub := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	rec, err := s.Initialize(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CurPhase)
	require.NotNil(t, rec.Deadline)
	assert.True(t, rec.Deadline.Equal(t0.Add(24*time.Hour)))
	assert.Equal(t, []debate.EventType{debate.EventPromoted}, pub.types())
}

func TestInitializeTwiceConflicts(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	_, err := s.Initialize(ctx, "k")
	require.NoError(t, err)

	_, err = s.Initialize(ctx, "k")
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.ErrorIs(t, err, errs.ErrNotAllowed)

	_, err = s.Initialize(ctx, "other")
	assert.NoError(t, err)
}

func TestInitializeConflictsWhilePending(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumPromptsPerDay = 1
	s, _, _, _ := newTestScheduler(t, cfg)
	ctx := context.Background()

	_, err := s.Initialize(ctx, "d1")
	require.NoError(t, err)
	rec, err := s.Initialize(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.CurPhase)

	_, err = s.Initialize(ctx, "d2")
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestIntakeScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumPromptsPerDay = 1
	s, _, clock, _ := newTestScheduler(t, cfg)
	ctx := context.Background()

	_, err := s.Initialize(ctx, "D1")
	require.NoError(t, err)
	_, err = s.Initialize(ctx, "D2")
	require.NoError(t, err)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "D2", pending[0].Key)

	clock.Advance(24*time.Hour + time.Second)

	d1, err := s.ActiveByKey(ctx, "D1")
	require.NoError(t, err)
	require.NotNil(t, d1)
	assert.Equal(t, 2, d1.CurPhase)

	d2, err := s.ActiveByKey(ctx, "D2")
	require.NoError(t, err)
	require.NotNil(t, d2)
	assert.Equal(t, 1, d2.CurPhase)
	assert.True(t, d2.Deadline.Equal(clock.Now().Add(24*time.Hour)))

	pending, err = s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIntakeCapHoldsAcrossOperations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumPromptsPerDay = 2
	s, _, clock, _ := newTestScheduler(t, cfg)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		_, err := s.Initialize(ctx, key)
		require.NoError(t, err)
		assert.LessOrEqual(t, phaseOneCount(t, s), cfg.NumPromptsPerDay)
	}
	for i := 0; i < 12; i++ {
		clock.Advance(13 * time.Hour)
		assert.LessOrEqual(t, phaseOneCount(t, s), cfg.NumPromptsPerDay)
	}

	history, err := s.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 7)
}

func TestSweepReportsReviewDoneAndArchives(t *testing.T) {
	s, _, clock, pub := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	_, err := s.Initialize(ctx, "d1")
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	done, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, done)

	clock.Advance(24 * time.Hour)
	done, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, done)
	assert.Contains(t, pub.types(), debate.EventReviewCompleted)

	clock.Advance(24 * time.Hour)
	done, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, done)

	active, err := s.ActiveByKey(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, active)

	archived, err := s.ArchivedByKey(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, archived)
	assert.Equal(t, 4, archived.CurPhase)
	assert.Contains(t, pub.types(), debate.EventArchived)

	// Archived records never come back.
	clock.Advance(240 * time.Hour)
	all, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestArchivedByKeyPrefersActive(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	_, err := s.Initialize(ctx, "d1")
	require.NoError(t, err)

	rec, err := s.ArchivedByKey(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.CurPhase)

	rec, err = s.ArchivedByKey(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestArchivedKeyCanBeInitializedAgain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPhase = 2
	s, store, clock, _ := newTestScheduler(t, cfg)
	ctx := context.Background()

	_, err := s.Initialize(ctx, "d1")
	require.NoError(t, err)
	clock.Advance(25 * time.Hour)
	_, err = s.Sweep(ctx)
	require.NoError(t, err)

	archived, err := store.Find(ctx, models.PartitionArchived, "d1")
	require.NoError(t, err)
	require.NotNil(t, archived)

	// Only pending and active partitions are checked for duplicates.
	rec, err := s.Initialize(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CurPhase)
}

func TestHistorySortedByMostRecentUpdate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPhase = 2
	cfg.NumPromptsPerDay = 1
	s, _, clock, _ := newTestScheduler(t, cfg)
	ctx := context.Background()

	_, err := s.Initialize(ctx, "first")
	require.NoError(t, err)
	_, err = s.Initialize(ctx, "second")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		clock.Advance(25 * time.Hour)
		_, err = s.Sweep(ctx)
		require.NoError(t, err)
	}

	history, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].Key)
	assert.Equal(t, "first", history[1].Key)
}

func TestEditDeadline(t *testing.T) {
	s, _, clock, _ := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	_, err := s.Initialize(ctx, "d1")
	require.NoError(t, err)

	err = s.EditDeadline(ctx, "d1", clock.Now().Add(-time.Minute))
	assert.ErrorIs(t, err, errs.ErrInvalidState)

	err = s.EditDeadline(ctx, "d1", clock.Now())
	assert.ErrorIs(t, err, errs.ErrInvalidState, "the new deadline must be strictly in the future")

	want := clock.Now().Add(2 * time.Hour)
	require.NoError(t, s.EditDeadline(ctx, "d1", want))
	rec, err := s.ActiveByKey(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, rec.Deadline.Equal(want))
	assert.Equal(t, 1, rec.CurPhase)

	err = s.EditDeadline(ctx, "missing", want)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteRemovesFromEveryPartition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumPromptsPerDay = 1
	s, store, _, _ := newTestScheduler(t, cfg)
	ctx := context.Background()

	_, err := s.Initialize(ctx, "a")
	require.NoError(t, err)
	_, err = s.Initialize(ctx, "b")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "b"))
	require.NoError(t, s.Delete(ctx, "b"))
	require.NoError(t, s.Delete(ctx, "a"))

	for _, p := range []models.Partition{models.PartitionPending, models.PartitionActive, models.PartitionArchived} {
		recs, err := store.List(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, recs, "partition %s", p)
	}
}

func TestKeyNeverInTwoPartitions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumPromptsPerDay = 1
	s, store, clock, _ := newTestScheduler(t, cfg)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, err := s.Initialize(ctx, key)
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(20 * time.Hour)
		_, err := s.Sweep(ctx)
		require.NoError(t, err)

		seen := map[string]models.Partition{}
		for _, p := range []models.Partition{models.PartitionPending, models.PartitionActive, models.PartitionArchived} {
			recs, err := store.List(ctx, p)
			require.NoError(t, err)
			for _, rec := range recs {
				prev, dup := seen[rec.Key]
				assert.False(t, dup, "%s in %s and %s", rec.Key, prev, p)
				seen[rec.Key] = p
			}
		}
		assert.Len(t, seen, 3)
	}
}

func TestInterruptedPromotionConverges(t *testing.T) {
	s, store, _, _ := newTestScheduler(t, DefaultConfig())
	ctx := context.Background()

	// Simulate a crash between writing the active record and removing the
	// pending one.
	deadline := t0.Add(time.Hour)
	rec := models.PhaseRecord{Key: "x", CurPhase: 1, Deadline: &deadline, CreatedAt: t0}
	require.NoError(t, store.Put(ctx, models.PartitionActive, rec))
	require.NoError(t, store.Put(ctx, models.PartitionPending, models.PhaseRecord{Key: "x", CreatedAt: t0}))

	_, err := s.Sweep(ctx)
	require.NoError(t, err)

	pending, err := store.List(ctx, models.PartitionPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
	active, err := store.Find(ctx, models.PartitionActive, "x")
	require.NoError(t, err)
	assert.True(t, active.Deadline.Equal(deadline), "deadline is not reset")
}

func TestConfigSetters(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, DefaultConfig())

	assert.ErrorIs(t, s.SetMaxPhase(0), errs.ErrInvalidInput)
	assert.ErrorIs(t, s.SetNumPromptsPerDay(-3), errs.ErrInvalidInput)
	assert.ErrorIs(t, s.SetDeadlineExtensionHours(0), errs.ErrInvalidInput)
	assert.ErrorIs(t, s.SetDeadlineExtensionHours(-1.5), errs.ErrInvalidInput)

	require.NoError(t, s.SetMaxPhase(6))
	require.NoError(t, s.SetNumPromptsPerDay(3))
	require.NoError(t, s.SetDeadlineExtensionHours(0.25))

	cfg := s.Config()
	assert.Equal(t, 6, cfg.MaxPhase)
	assert.Equal(t, 3, cfg.NumPromptsPerDay)
	assert.Equal(t, 15*time.Minute, cfg.DeadlineExtension)

	assert.ErrorIs(t, s.Reconfigure(Config{}), errs.ErrInvalidInput)
	assert.Equal(t, cfg, s.Config())
}

func TestSchedulersAreIndependentlyConfigured(t *testing.T) {
	a, _, _, _ := newTestScheduler(t, DefaultConfig())
	b, _, _, _ := newTestScheduler(t, DefaultConfig())

	require.NoError(t, a.SetNumPromptsPerDay(9))
	assert.Equal(t, 9, a.Config().NumPromptsPerDay)
	assert.Equal(t, 2, b.Config().NumPromptsPerDay)
}

func TestNewSchedulerRejectsInvalidConfig(t *testing.T) {
	_, err := NewScheduler(memstore.NewPhaseStore(), Config{MaxPhase: 4}, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestHugeExtensionRejected(t *testing.T) {
	ctx := context.Background()
	s, _, clock, _ := newTestScheduler(t, DefaultConfig())

	assert.ErrorIs(t, s.SetDeadlineExtensionHours(1e7), errs.ErrInvalidInput)
	assert.ErrorIs(t, s.SetDeadlineExtensionHours(MaxExtensionHours), errs.ErrInvalidInput)
	assert.Equal(t, 24*time.Hour, s.Config().DeadlineExtension)

	rec, err := s.Initialize(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, rec.Deadline)
	assert.True(t, rec.Deadline.After(clock.Now()))

	for i := 0; i < 3; i++ {
		_, err := s.Sweep(ctx)
		require.NoError(t, err)
	}
	history, err := s.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}
