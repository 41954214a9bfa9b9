package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/middleware"
	"github.com/pagemorph/pagemorph/internal/models"
	"github.com/pagemorph/pagemorph/internal/service"
)

type PresetHandler struct {
	presets *service.PresetService
	logger  *zap.Logger
}

func NewPresetHandler(presets *service.PresetService, logger *zap.Logger) *PresetHandler {
	return &PresetHandler{presets: presets, logger: logger}
}

type createPresetRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	Kind        string         `json:"kind" binding:"required"`
	Parameters  map[string]any `json:"parameters" binding:"required"`
	IsShared    bool           `json:"is_shared"`
}

type updatePresetRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	IsShared    *bool          `json:"is_shared"`
}

// List handles GET /api/transformation-presets.
func (h *PresetHandler) List(c *gin.Context) {
	subject := middleware.GetSubject(c)

	presets, err := h.presets.List(c.Request.Context(), subject)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"presets": presets, "count": len(presets)})
}

// Create handles POST /api/transformation-presets.
func (h *PresetHandler) Create(c *gin.Context) {
	subject := middleware.GetSubject(c)

	var req createPresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preset, err := h.presets.Create(c.Request.Context(), subject, service.PresetCreateInput{
		Name:        req.Name,
		Description: req.Description,
		Kind:        models.TransformationKind(req.Kind),
		Parameters:  req.Parameters,
		IsShared:    req.IsShared,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"preset": preset})
}

// Update handles PATCH /api/transformation-presets/:id (owner only).
func (h *PresetHandler) Update(c *gin.Context) {
	subject := middleware.GetSubject(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, errs.New(errs.NotFound, "preset not found"))
		return
	}

	var req updatePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preset, err := h.presets.Update(c.Request.Context(), subject, id, service.PresetUpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Parameters:  req.Parameters,
		IsShared:    req.IsShared,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"preset": preset})
}

// Delete handles DELETE /api/transformation-presets/:id (owner only).
func (h *PresetHandler) Delete(c *gin.Context) {
	subject := middleware.GetSubject(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, errs.New(errs.NotFound, "preset not found"))
		return
	}

	if err := h.presets.Delete(c.Request.Context(), subject, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
