// Package presence tracks which users are connected per workspace. Each
// instance owns its local view; instances reconcile through periodic
// summaries, so cross-instance queries are approximate with bounded
// staleness.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/bus"
)

const (
	summaryInterval = 15 * time.Second
	summaryTTL      = 3 * summaryInterval
)

type Tracker struct {
	mu sync.Mutex
	// local maps workspace → user → open connection count. A user with
	// two tabs joins once and leaves when the last closes.
	local map[uuid.UUID]map[uuid.UUID]int

	rdb        *redis.Client
	publisher  bus.Publisher
	instanceID string
	logger     *zap.Logger
}

func NewTracker(rdb *redis.Client, publisher bus.Publisher, instanceID string, logger *zap.Logger) *Tracker {
	return &Tracker{
		local:      make(map[uuid.UUID]map[uuid.UUID]int),
		rdb:        rdb,
		publisher:  publisher,
		instanceID: instanceID,
		logger:     logger,
	}
}

func instanceKey(workspaceID uuid.UUID, instanceID string) string {
	return "presence:ws:" + workspaceID.String() + ":instance:" + instanceID
}

// Join records a connection and broadcasts presence.join on the first
// connection of the user.
func (t *Tracker) Join(ctx context.Context, workspaceID, userID uuid.UUID) {
	t.mu.Lock()
	users, ok := t.local[workspaceID]
	if !ok {
		users = make(map[uuid.UUID]int)
		t.local[workspaceID] = users
	}
	users[userID]++
	first := users[userID] == 1
	t.mu.Unlock()

	if !first {
		return
	}

	if err := t.rdb.SAdd(ctx, instanceKey(workspaceID, t.instanceID), userID.String()).Err(); err != nil {
		t.logger.Warn("presence sadd failed", zap.Error(err))
	}
	t.rdb.Expire(ctx, instanceKey(workspaceID, t.instanceID), summaryTTL)

	t.publishEvent(ctx, workspaceID, userID, bus.EventPresenceJoin)
}

// Leave records a disconnection and broadcasts presence.leave when the
// user's last connection closes.
func (t *Tracker) Leave(ctx context.Context, workspaceID, userID uuid.UUID) {
	t.mu.Lock()
	users := t.local[workspaceID]
	last := false
	if users != nil {
		users[userID]--
		if users[userID] <= 0 {
			delete(users, userID)
			last = true
		}
		if len(users) == 0 {
			delete(t.local, workspaceID)
		}
	}
	t.mu.Unlock()

	if !last {
		return
	}

	if err := t.rdb.SRem(ctx, instanceKey(workspaceID, t.instanceID), userID.String()).Err(); err != nil {
		t.logger.Warn("presence srem failed", zap.Error(err))
	}

	t.publishEvent(ctx, workspaceID, userID, bus.EventPresenceLeave)
}

// Snapshot returns the approximate set of present users: the local view
// unioned with every instance's last summary.
func (t *Tracker) Snapshot(ctx context.Context, workspaceID uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})

	t.mu.Lock()
	for userID := range t.local[workspaceID] {
		seen[userID] = struct{}{}
	}
	t.mu.Unlock()

	pattern := "presence:ws:" + workspaceID.String() + ":instance:*"
	iter := t.rdb.Scan(ctx, 0, pattern, 64).Iterator()
	for iter.Next(ctx) {
		members, err := t.rdb.SMembers(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		for _, m := range members {
			if id, err := uuid.Parse(m); err == nil {
				seen[id] = struct{}{}
			}
		}
	}
	if err := iter.Err(); err != nil {
		t.logger.Warn("presence scan failed", zap.Error(err))
	}

	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// Run refreshes this instance's summaries until ctx is cancelled. The
// TTL on the summary keys reaps instances that die without cleanup.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.publishSummaries(ctx)
		}
	}
}

func (t *Tracker) publishSummaries(ctx context.Context) {
	t.mu.Lock()
	snapshot := make(map[uuid.UUID][]string, len(t.local))
	for workspaceID, users := range t.local {
		ids := make([]string, 0, len(users))
		for userID := range users {
			ids = append(ids, userID.String())
		}
		snapshot[workspaceID] = ids
	}
	t.mu.Unlock()

	for workspaceID, ids := range snapshot {
		key := instanceKey(workspaceID, t.instanceID)
		pipe := t.rdb.Pipeline()
		pipe.Del(ctx, key)
		if len(ids) > 0 {
			members := make([]any, len(ids))
			for i, id := range ids {
				members[i] = id
			}
			pipe.SAdd(ctx, key, members...)
			pipe.Expire(ctx, key, summaryTTL)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			t.logger.Warn("presence summary refresh failed", zap.Error(err))
		}

		err := t.publisher.Publish(ctx, bus.InstanceTopic(t.instanceID), bus.EventPresenceSummary, map[string]any{
			"workspace_id": workspaceID.String(),
			"user_ids":     ids,
		})
		if err != nil {
			t.logger.Warn("presence summary publish failed", zap.Error(err))
		}
	}
}

func (t *Tracker) publishEvent(ctx context.Context, workspaceID, userID uuid.UUID, kind bus.EventKind) {
	action := "join"
	if kind == bus.EventPresenceLeave {
		action = "leave"
	}
	err := t.publisher.Publish(ctx, bus.WorkspaceTopic(workspaceID), kind, map[string]any{
		"workspace_id": workspaceID.String(),
		"user_id":      userID.String(),
		"action":       action,
	})
	if err != nil {
		t.logger.Warn("presence event publish failed",
			zap.String("event", string(kind)), zap.Error(err))
	}
}
