package debate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHub struct {
	mu     sync.Mutex
	events []PhaseEvent
}

func (h *recordingHub) BroadcastPhaseEvent(event PhaseEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func TestStreamRoundTrip(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	hub := &recordingHub{}

	consumer := NewStreamConsumer(rdb, "", hub, zerolog.Nop())
	require.NoError(t, consumer.Start(ctx))
	require.NoError(t, consumer.Start(ctx), "creating the group twice is tolerated")

	publisher := NewStreamPublisher(rdb, "")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := NewPhaseEvent(EventAdvanced, "d1", 1, 2, &now, now)
	require.NoError(t, publisher.Publish(ctx, ev))

	n, err := consumer.ReadOnce(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, hub.events, 1)
	got := hub.events[0]
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, EventAdvanced, got.Type)
	assert.Equal(t, "d1", got.Key)
	assert.Equal(t, 2, got.ToPhase)
	assert.True(t, now.Equal(*got.Deadline))

	n, err = consumer.ReadOnce(ctx, -1)
	require.NoError(t, err)
	assert.Zero(t, n, "acked messages are not redelivered")
}

func TestMarshalEventRoundTrip(t *testing.T) {
	ev := NewPhaseEvent(EventArchived, "k", 3, 4, nil, time.Unix(100, 0))
	s, err := MarshalEvent(ev)
	require.NoError(t, err)
	back, err := UnmarshalEvent(s)
	require.NoError(t, err)
	assert.Equal(t, ev, back)

	_, err = UnmarshalEvent("{not json")
	assert.Error(t, err)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, PhaseEvent) error { return f.err }

type countingPublisher struct{ n int }

func (c *countingPublisher) Publish(context.Context, PhaseEvent) error {
	c.n++
	return nil
}

func TestPublishersFanOut(t *testing.T) {
	boom := errors.New("boom")
	counter := &countingPublisher{}
	ps := Publishers{counter, nil, failingPublisher{err: boom}, NopPublisher{}}

	err := ps.Publish(context.Background(), PhaseEvent{Key: "k"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, counter.n)
}
