package debate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType names a phase lifecycle transition.
type EventType string

const (
	EventPromoted        EventType = "phase.promoted"
	EventAdvanced        EventType = "phase.advanced"
	EventArchived        EventType = "phase.archived"
	EventDeadlineEdited  EventType = "phase.deadline_edited"
	EventReviewCompleted EventType = "phase.review_completed"
)

// PhaseEvent is published whenever the scheduler moves a key.
type PhaseEvent struct {
	ID        string     `json:"id"`
	Type      EventType  `json:"type"`
	Key       string     `json:"key"`
	FromPhase int        `json:"fromPhase"`
	ToPhase   int        `json:"toPhase"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// NewPhaseEvent creates an event stamped at now.
func NewPhaseEvent(eventType EventType, key string, from, to int, deadline *time.Time, now time.Time) PhaseEvent {
	return PhaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Key:       key,
		FromPhase: from,
		ToPhase:   to,
		Deadline:  deadline,
		Timestamp: now.Unix(),
	}
}

// MarshalEvent marshals an event to the JSON string stored in the stream.
func MarshalEvent(event PhaseEvent) (string, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalEvent parses a stream payload.
func UnmarshalEvent(data string) (PhaseEvent, error) {
	var event PhaseEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return PhaseEvent{}, err
	}
	return event, nil
}

// Publisher delivers phase events somewhere.
type Publisher interface {
	Publish(ctx context.Context, event PhaseEvent) error
}

// Publishers fans an event out to every member and joins their errors.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, event PhaseEvent) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, PhaseEvent) error { return nil }
