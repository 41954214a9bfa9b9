// Package bus is the per-workspace event fabric: topic pub/sub over
// Redis. All fan-out flows through the broker, including events consumed
// on the instance that produced them, so delivery reasoning is uniform
// across one instance or many.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventKind enumerates everything that travels on workspace topics.
type EventKind string

const (
	EventTransformationStarted   EventKind = "transformation.started"
	EventTransformationProgress  EventKind = "transformation.progress"
	EventTransformationCompleted EventKind = "transformation.completed"
	EventTransformationFailed    EventKind = "transformation.failed"
	EventPresenceJoin            EventKind = "presence.join"
	EventPresenceLeave           EventKind = "presence.leave"
	EventPresenceSummary         EventKind = "presence.summary"
	EventWorkspaceMessage        EventKind = "workspace.message"
)

// Terminal reports whether the event announces a terminal transformation
// state; the hub must never drop these under backpressure.
func (k EventKind) Terminal() bool {
	return k == EventTransformationCompleted || k == EventTransformationFailed
}

// Envelope is the wire format on every topic. Delivery is at-least-once;
// consumers tolerate duplicates and use EmittedAt for per-origin ordering.
type Envelope struct {
	Topic            string         `json:"topic"`
	Kind             EventKind      `json:"kind"`
	Payload          map[string]any `json:"payload"`
	OriginInstanceID string         `json:"origin_instance_id"`
	EmittedAt        time.Time      `json:"emitted_at"`
}

// WorkspaceTopic is the firehose for one workspace.
func WorkspaceTopic(workspaceID uuid.UUID) string {
	return "ws." + workspaceID.String()
}

// UserTopic addresses one user's sessions within a workspace.
func UserTopic(workspaceID, userID uuid.UUID) string {
	return "ws." + workspaceID.String() + ".user." + userID.String()
}

// InstanceTopic is the control plane for one instance (presence
// reconciliation summaries).
func InstanceTopic(instanceID string) string {
	return "instance." + instanceID
}

// Publisher is the narrow interface components use to emit events.
type Publisher interface {
	Publish(ctx context.Context, topic string, kind EventKind, payload map[string]any) error
}

const publishRetries = 3

// Bus publishes and subscribes over a shared Redis connection.
type Bus struct {
	rdb        *redis.Client
	instanceID string
	logger     *zap.Logger
}

func New(rdb *redis.Client, instanceID string, logger *zap.Logger) *Bus {
	return &Bus{rdb: rdb, instanceID: instanceID, logger: logger}
}

func (b *Bus) InstanceID() string { return b.instanceID }

// Publish emits an envelope on the topic, retrying transient broker
// failures a bounded number of times.
func (b *Bus) Publish(ctx context.Context, topic string, kind EventKind, payload map[string]any) error {
	env := Envelope{
		Topic:            topic,
		Kind:             kind,
		Payload:          payload,
		OriginInstanceID: b.instanceID,
		EmittedAt:        time.Now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if lastErr = b.rdb.Publish(ctx, topic, data).Err(); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return fmt.Errorf("publish to %s: %w", topic, lastErr)
}

// Subscription is a live pattern subscription delivering decoded envelopes.
type Subscription struct {
	pubsub *redis.PubSub
	C      <-chan Envelope
}

func (s *Subscription) Close() error { return s.pubsub.Close() }

// SubscribePattern subscribes to a glob pattern ("ws.*", "instance.x").
// Undecodable payloads are logged and skipped, never fatal.
func (b *Bus) SubscribePattern(ctx context.Context, pattern string) *Subscription {
	pubsub := b.rdb.PSubscribe(ctx, pattern)
	out := make(chan Envelope, 256)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("dropping undecodable envelope",
					zap.String("pattern", pattern), zap.Error(err))
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Subscription{pubsub: pubsub, C: out}
}
