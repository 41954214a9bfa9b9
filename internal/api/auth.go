package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/middleware"
	"github.com/pagemorph/pagemorph/internal/repository"
	"github.com/pagemorph/pagemorph/internal/service"
)

// AuthHandler serves the public auth endpoints plus logout and /auth/me.
type AuthHandler struct {
	auth       *service.AuthService
	users      repository.UserRepository
	workspaces repository.WorkspaceRepository
	logger     *zap.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	users repository.UserRepository,
	workspaces repository.WorkspaceRepository,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:       authService,
		users:      users,
		workspaces: workspaces,
		logger:     logger,
	}
}

type registerRequest struct {
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=10"`
	WorkspaceName string `json:"workspace_name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, req.WorkspaceName)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, _, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Logout handles POST /api/auth/logout; it revokes the whole rotation chain.
func (h *AuthHandler) Logout(c *gin.Context) {
	subject := middleware.GetSubject(c)
	if err := h.auth.Logout(c.Request.Context(), subject); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	subject := middleware.GetSubject(c)

	user, err := h.users.GetByID(c.Request.Context(), subject, subject.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	workspace, err := h.workspaces.GetByID(c.Request.Context(), subject.WorkspaceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "workspace": workspace})
}
