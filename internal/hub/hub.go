// Package hub manages connected realtime sessions: it accepts
// authenticated websocket connections, routes bus envelopes to the
// sessions authorized for them, and tracks presence.
package hub

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/bus"
	"github.com/pagemorph/pagemorph/internal/models"
	"github.com/pagemorph/pagemorph/internal/presence"
)

type Options struct {
	HeartbeatInterval time.Duration
	SendQueueDepth    int
}

type Hub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*ClientSession
	// byWorkspace indexes sessions for envelope routing.
	byWorkspace map[uuid.UUID]map[uuid.UUID]*ClientSession

	bus     *bus.Bus
	tracker *presence.Tracker
	opts    Options
	logger  *zap.Logger
}

func New(b *bus.Bus, tracker *presence.Tracker, opts Options, logger *zap.Logger) *Hub {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	return &Hub{
		sessions:    make(map[uuid.UUID]*ClientSession),
		byWorkspace: make(map[uuid.UUID]map[uuid.UUID]*ClientSession),
		bus:         b,
		tracker:     tracker,
		opts:        opts,
		logger:      logger,
	}
}

// Run subscribes to the workspace topic space and dispatches until ctx
// is cancelled. All fan-out flows through the broker, local producers
// included, so single-instance and multi-instance delivery behave the
// same way.
func (h *Hub) Run(ctx context.Context) {
	sub := h.bus.SubscribePattern(ctx, "ws.*")
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case env, ok := <-sub.C:
			if !ok {
				h.closeAll()
				return
			}
			h.dispatch(env)
		}
	}
}

// dispatch fans one envelope out to every authorized session. Sessions
// whose subject workspace differs from the topic workspace never match:
// routing is keyed by the session's own workspace id, so a topic for
// another workspace simply selects none of them.
func (h *Hub) dispatch(env bus.Envelope) {
	workspaceID, userID, ok := parseTopic(env.Topic)
	if !ok {
		return
	}

	frame := Frame{
		Type:      frameType(env.Kind),
		Data:      env.Payload,
		Timestamp: env.EmittedAt,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.byWorkspace[workspaceID] {
		if userID != uuid.Nil && s.subject.UserID != userID {
			continue
		}
		if s.subject.WorkspaceID != workspaceID {
			// Index and subject disagree; treat as a programming error
			// and fail closed.
			h.logger.Error("session workspace mismatch in dispatch",
				zap.String("session_id", s.id.String()))
			continue
		}
		s.out.push(frame)
	}
}

// Register adds an accepted session and announces presence.
func (h *Hub) Register(ctx context.Context, s *ClientSession) {
	h.mu.Lock()
	h.sessions[s.id] = s
	byWs, ok := h.byWorkspace[s.subject.WorkspaceID]
	if !ok {
		byWs = make(map[uuid.UUID]*ClientSession)
		h.byWorkspace[s.subject.WorkspaceID] = byWs
	}
	byWs[s.id] = s
	h.mu.Unlock()

	h.tracker.Join(ctx, s.subject.WorkspaceID, s.subject.UserID)
	h.logger.Info("realtime session connected",
		zap.String("session_id", s.id.String()),
		zap.String("user_id", s.subject.UserID.String()),
		zap.String("workspace_id", s.subject.WorkspaceID.String()),
	)
}

// Unregister removes a session; queued undelivered frames are discarded.
func (h *Hub) Unregister(ctx context.Context, s *ClientSession) {
	h.mu.Lock()
	_, present := h.sessions[s.id]
	delete(h.sessions, s.id)
	if byWs, ok := h.byWorkspace[s.subject.WorkspaceID]; ok {
		delete(byWs, s.id)
		if len(byWs) == 0 {
			delete(h.byWorkspace, s.subject.WorkspaceID)
		}
	}
	h.mu.Unlock()

	if !present {
		return
	}

	s.out.close()
	h.tracker.Leave(ctx, s.subject.WorkspaceID, s.subject.UserID)
	if dropped := s.out.droppedCount(); dropped > 0 {
		h.logger.Warn("session closed with backpressure drops",
			zap.String("session_id", s.id.String()),
			zap.Int("dropped_frames", dropped),
		)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	sessions := make([]*ClientSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Presence answers a snapshot request for the session's workspace.
func (h *Hub) Presence(ctx context.Context, subject models.Subject) []uuid.UUID {
	return h.tracker.Snapshot(ctx, subject.WorkspaceID)
}

// PublishWorkspaceMessage relays a client broadcast through the broker.
func (h *Hub) PublishWorkspaceMessage(ctx context.Context, subject models.Subject, content string) error {
	return h.bus.Publish(ctx, bus.WorkspaceTopic(subject.WorkspaceID), bus.EventWorkspaceMessage, map[string]any{
		"workspace_id": subject.WorkspaceID.String(),
		"user_id":      subject.UserID.String(),
		"content":      content,
	})
}

// parseTopic splits "ws.{workspace}" and "ws.{workspace}.user.{user}".
func parseTopic(topic string) (workspaceID, userID uuid.UUID, ok bool) {
	parts := strings.Split(topic, ".")
	if len(parts) < 2 || parts[0] != "ws" {
		return uuid.Nil, uuid.Nil, false
	}
	workspaceID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	if len(parts) == 2 {
		return workspaceID, uuid.Nil, true
	}
	if len(parts) == 4 && parts[2] == "user" {
		userID, err := uuid.Parse(parts[3])
		if err != nil {
			return uuid.Nil, uuid.Nil, false
		}
		return workspaceID, userID, true
	}
	return uuid.Nil, uuid.Nil, false
}

// frameType maps envelope kinds onto the wire vocabulary of the
// realtime channel.
func frameType(kind bus.EventKind) string {
	switch kind {
	case bus.EventTransformationStarted:
		return "transformation_started"
	case bus.EventTransformationProgress:
		return "transformation_progress"
	case bus.EventTransformationCompleted:
		return "transformation_completed"
	case bus.EventTransformationFailed:
		return "transformation_failed"
	case bus.EventPresenceJoin, bus.EventPresenceLeave:
		return "presence_update"
	case bus.EventPresenceSummary:
		return "workspace_presence"
	case bus.EventWorkspaceMessage:
		return "workspace_message"
	default:
		return string(kind)
	}
}
