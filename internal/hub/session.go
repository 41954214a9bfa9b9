package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/models"
)

// Close codes of the realtime channel.
const (
	CloseNormal       = websocket.CloseNormalClosure
	ClosePolicy       = websocket.ClosePolicyViolation
	CloseTokenExpired = 4401
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 16 * 1024
)

// ClientSession is one connected realtime client. Reads and writes run
// as two goroutines joined by the session context: either pump failing
// cancels the other.
type ClientSession struct {
	id      uuid.UUID
	subject models.Subject
	conn    *websocket.Conn
	out     *sendQueue

	hub    *Hub
	logger *zap.Logger

	cancel     context.CancelFunc
	lastPongMu chan time.Time
}

func NewClientSession(subject models.Subject, conn *websocket.Conn, h *Hub, logger *zap.Logger) *ClientSession {
	s := &ClientSession{
		id:         uuid.New(),
		subject:    subject,
		conn:       conn,
		out:        newSendQueue(h.opts.SendQueueDepth),
		hub:        h,
		logger:     logger,
		lastPongMu: make(chan time.Time, 1),
	}
	s.lastPongMu <- time.Now()
	return s
}

func (s *ClientSession) ID() uuid.UUID           { return s.id }
func (s *ClientSession) Subject() models.Subject { return s.subject }

// Send enqueues a frame for this session directly (handshake acks and
// request replies that never travel the bus).
func (s *ClientSession) Send(frameTypeName string, data map[string]any) {
	s.out.push(Frame{Type: frameTypeName, Data: data, Timestamp: time.Now().UTC()})
}

// Run drives the session until the connection drops, the heartbeat
// times out, or ctx is cancelled. It blocks; the caller owns the
// connection's goroutine.
func (s *ClientSession) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	s.hub.Register(ctx, s)
	defer s.hub.Unregister(context.WithoutCancel(ctx), s)

	s.Send("connection_established", map[string]any{
		"session_id":   s.id.String(),
		"workspace_id": s.subject.WorkspaceID.String(),
	})

	go s.writePump(ctx)
	s.readPump(ctx)
}

// Close terminates the session from outside (hub shutdown).
func (s *ClientSession) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.conn.Close()
}

func (s *ClientSession) touchPong() {
	select {
	case <-s.lastPongMu:
	default:
	}
	s.lastPongMu <- time.Now()
}

func (s *ClientSession) lastPong() time.Time {
	select {
	case t := <-s.lastPongMu:
		s.lastPongMu <- t
		return t
	default:
		return time.Time{}
	}
}

// readPump consumes client frames: ping, presence snapshot requests, and
// workspace broadcasts. Unknown frame types get an error frame rather
// than a disconnect.
func (s *ClientSession) readPump(ctx context.Context) {
	defer s.cancel()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetPongHandler(func(string) error {
		s.touchPong()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.Send("error", map[string]any{"message": "malformed frame"})
			continue
		}

		switch frame.Type {
		case "ping":
			s.touchPong()
			s.Send("pong", nil)
		case "get_workspace_presence":
			users := s.hub.Presence(ctx, s.subject)
			ids := make([]string, 0, len(users))
			for _, u := range users {
				ids = append(ids, u.String())
			}
			s.Send("workspace_presence", map[string]any{
				"workspace_id": s.subject.WorkspaceID.String(),
				"user_ids":     ids,
			})
		case "workspace_message":
			content, _ := frame.Data["content"].(string)
			if content == "" {
				s.Send("error", map[string]any{"message": "workspace_message requires content"})
				continue
			}
			if err := s.hub.PublishWorkspaceMessage(ctx, s.subject, content); err != nil {
				s.Send("error", map[string]any{"message": "broadcast failed"})
			}
		default:
			s.Send("error", map[string]any{"message": "unknown frame type"})
		}
	}
}

// writePump drains the send queue and runs the heartbeat. A session that
// misses two heartbeat intervals without a ping is closed.
func (s *ClientSession) writePump(ctx context.Context) {
	heartbeat := s.hub.opts.HeartbeatInterval
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(CloseNormal, "shutting down"))
			return

		case <-ticker.C:
			if time.Since(s.lastPong()) > 2*heartbeat {
				s.logger.Debug("heartbeat timeout",
					zap.String("session_id", s.id.String()))
				s.cancel()
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}

		case <-s.out.wait():
			for {
				frame, ok := s.out.pop()
				if !ok {
					break
				}
				s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteJSON(frame); err != nil {
					s.cancel()
					return
				}
			}
		}
	}
}
