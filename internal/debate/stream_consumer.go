package debate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultStreamKey is the Redis Stream carrying phase events.
const DefaultStreamKey = "phases:events"

// PhaseHub receives events read back from the stream.
type PhaseHub interface {
	BroadcastPhaseEvent(event PhaseEvent)
}

// StreamPublisher appends phase events to a Redis Stream.
type StreamPublisher struct {
	rdb       *redis.Client
	streamKey string
	maxLen    int64
}

// NewStreamPublisher creates a publisher writing to streamKey.
func NewStreamPublisher(rdb *redis.Client, streamKey string) *StreamPublisher {
	if streamKey == "" {
		streamKey = DefaultStreamKey
	}
	return &StreamPublisher{rdb: rdb, streamKey: streamKey, maxLen: 10000}
}

// Publish adds the event to the stream, trimming history approximately.
func (p *StreamPublisher) Publish(ctx context.Context, event PhaseEvent) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("Redis client not available")
	}

	data, err := MarshalEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamKey,
		Values: map[string]interface{}{"data": data},
		MaxLen: p.maxLen,
		Approx: true,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// StreamConsumer reads phase events with a per-instance consumer group so
// that every server instance sees every event.
type StreamConsumer struct {
	rdb          *redis.Client
	streamKey    string
	groupName    string
	consumerName string
	hub          PhaseHub
	logger       zerolog.Logger
}

// NewStreamConsumer creates a consumer forwarding to hub.
func NewStreamConsumer(rdb *redis.Client, streamKey string, hub PhaseHub, logger zerolog.Logger) *StreamConsumer {
	if streamKey == "" {
		streamKey = DefaultStreamKey
	}
	hostname, _ := os.Hostname()
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	return &StreamConsumer{
		rdb:          rdb,
		streamKey:    streamKey,
		groupName:    fmt.Sprintf("%s:group:%s", streamKey, instanceID),
		consumerName: fmt.Sprintf("consumer-%s", instanceID),
		hub:          hub,
		logger:       logger.With().Str("component", "stream_consumer").Logger(),
	}
}

// Start creates the consumer group, starting at new messages only.
func (sc *StreamConsumer) Start(ctx context.Context) error {
	if sc == nil || sc.rdb == nil {
		return fmt.Errorf("Redis client not available")
	}
	err := sc.rdb.XGroupCreateMkStream(ctx, sc.streamKey, sc.groupName, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Run consumes until ctx is cancelled.
func (sc *StreamConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := sc.ReadOnce(ctx, time.Second); err != nil {
			if ctx.Err() != nil {
				return
			}
			sc.logger.Warn().Err(err).Msg("stream read failed")
			time.Sleep(time.Second)
			continue
		}
		sc.reclaimPending(ctx)
	}
}

// ReadOnce reads one batch, forwards it and acknowledges each message.
// It returns the number of events forwarded.
func (sc *StreamConsumer) ReadOnce(ctx context.Context, block time.Duration) (int, error) {
	streams, err := sc.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    sc.groupName,
		Consumer: sc.consumerName,
		Streams:  []string{sc.streamKey, ">"},
		Count:    100,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	forwarded := 0
	for _, stream := range streams {
		for _, message := range stream.Messages {
			if err := sc.processMessage(message); err != nil {
				sc.logger.Warn().Err(err).Str("messageId", message.ID).Msg("dropping malformed event")
			} else {
				forwarded++
			}
			if err := sc.rdb.XAck(ctx, sc.streamKey, sc.groupName, message.ID).Err(); err != nil {
				sc.logger.Warn().Err(err).Str("messageId", message.ID).Msg("ack failed")
			}
		}
	}
	return forwarded, nil
}

func (sc *StreamConsumer) processMessage(message redis.XMessage) error {
	data, ok := message.Values["data"].(string)
	if !ok {
		return fmt.Errorf("invalid message format: missing data field")
	}
	event, err := UnmarshalEvent(data)
	if err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	sc.hub.BroadcastPhaseEvent(event)
	return nil
}

// reclaimPending picks up messages this consumer read but never acked.
func (sc *StreamConsumer) reclaimPending(ctx context.Context) {
	pending, err := sc.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: sc.streamKey,
		Group:  sc.groupName,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		return
	}

	for _, p := range pending {
		if p.Idle <= 30*time.Second {
			continue
		}
		claimed, err := sc.rdb.XClaim(ctx, &redis.XClaimArgs{
			Stream:   sc.streamKey,
			Group:    sc.groupName,
			Consumer: sc.consumerName,
			MinIdle:  30 * time.Second,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			continue
		}
		for _, msg := range claimed {
			_ = sc.processMessage(msg)
			sc.rdb.XAck(ctx, sc.streamKey, sc.groupName, msg.ID)
		}
	}
}
