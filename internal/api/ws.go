package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/auth"
	"github.com/pagemorph/pagemorph/internal/hub"
	"github.com/pagemorph/pagemorph/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers cannot set Authorization headers on websockets; the token
	// rides the query string instead, so origin checking is delegated to
	// the deployment's proxy layer.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSHandler accepts realtime sessions on /ws?token=…&workspace_id=….
type WSHandler struct {
	hub         *hub.Hub
	jwtSecret   string
	revocations middleware.RevocationChecker
	logger      *zap.Logger
}

func NewWSHandler(h *hub.Hub, jwtSecret string, revocations middleware.RevocationChecker, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: h, jwtSecret: jwtSecret, revocations: revocations, logger: logger}
}

// Serve upgrades the connection, then authenticates. Close codes carry
// the rejection reason: 1008 policy violation, 4401 token expired.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		return
	}

	token := c.Query("token")
	if token == "" {
		closeWith(conn, hub.ClosePolicy, "missing token")
		return
	}

	claims, err := auth.ParseAccessToken(token, h.jwtSecret)
	if err != nil {
		code := hub.ClosePolicy
		if strings.Contains(err.Error(), "expired") {
			code = hub.CloseTokenExpired
		}
		closeWith(conn, code, "unauthorized")
		return
	}

	revoked, err := h.revocations.IsSessionRevoked(c.Request.Context(), claims.SessionID)
	if err != nil || revoked {
		closeWith(conn, hub.ClosePolicy, "unauthorized")
		return
	}

	subject := claims.Subject()

	// The handshake's target workspace must agree with the credential.
	if wsParam := c.Query("workspace_id"); wsParam != "" {
		wsID, err := uuid.Parse(wsParam)
		if err != nil || wsID != subject.WorkspaceID {
			closeWith(conn, hub.ClosePolicy, "workspace mismatch")
			return
		}
	}

	session := hub.NewClientSession(subject, conn, h.hub, h.logger)
	session.Run(c.Request.Context())
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(5 * time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
