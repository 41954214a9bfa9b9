package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/middleware"
	"github.com/pagemorph/pagemorph/internal/models"
	"github.com/pagemorph/pagemorph/internal/repository"
	"github.com/pagemorph/pagemorph/internal/service"
)

type TransformationHandler struct {
	transformations *service.TransformationService
	logger          *zap.Logger
}

func NewTransformationHandler(transformations *service.TransformationService, logger *zap.Logger) *TransformationHandler {
	return &TransformationHandler{transformations: transformations, logger: logger}
}

type createTransformationRequest struct {
	DocumentID *uuid.UUID     `json:"document_id"`
	Kind       string         `json:"kind" binding:"required"`
	Parameters map[string]any `json:"parameters"`
	PresetID   *uuid.UUID     `json:"preset_id"`
}

// Create handles POST /api/transformations.
func (h *TransformationHandler) Create(c *gin.Context) {
	subject := middleware.GetSubject(c)

	var req createTransformationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.transformations.Create(c.Request.Context(), subject, service.CreateTransformationInput{
		DocumentID: req.DocumentID,
		Kind:       models.TransformationKind(req.Kind),
		Parameters: req.Parameters,
		PresetID:   req.PresetID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transformation": t})
}

// List handles GET /api/transformations with optional status/kind
// filters and limit/offset pagination.
func (h *TransformationHandler) List(c *gin.Context) {
	subject := middleware.GetSubject(c)

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	items, total, err := h.transformations.List(c.Request.Context(), subject, repository.TransformationFilter{
		Status: models.TransformationStatus(c.Query("status")),
		Kind:   models.TransformationKind(c.Query("kind")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transformations": items, "count": total})
}

// Get handles GET /api/transformations/:id.
func (h *TransformationHandler) Get(c *gin.Context) {
	subject := middleware.GetSubject(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, errs.New(errs.NotFound, "transformation not found"))
		return
	}

	t, err := h.transformations.Get(c.Request.Context(), subject, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transformation": t})
}

// Status handles GET /api/transformations/:id/status — the lightweight
// reconciliation endpoint clients poll after a realtime gap.
func (h *TransformationHandler) Status(c *gin.Context) {
	subject := middleware.GetSubject(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, errs.New(errs.NotFound, "transformation not found"))
		return
	}

	t, err := h.transformations.Get(c.Request.Context(), subject, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       t.ID,
		"status":   t.Status,
		"attempts": t.Attempts,
	})
}

// ListByDocument handles GET /api/documents/:id/transformations.
func (h *TransformationHandler) ListByDocument(c *gin.Context) {
	subject := middleware.GetSubject(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, errs.New(errs.NotFound, "document not found"))
		return
	}

	items, err := h.transformations.ListByDocument(c.Request.Context(), subject, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transformations": items, "count": len(items)})
}

// Cancel handles POST /api/transformations/:id/cancel. 202: cancellation
// is cooperative and lands within a bounded delay.
func (h *TransformationHandler) Cancel(c *gin.Context) {
	subject := middleware.GetSubject(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, errs.New(errs.NotFound, "transformation not found"))
		return
	}

	if err := h.transformations.Cancel(c.Request.Context(), subject, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusAccepted)
}
