package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/middleware"
	"github.com/pagemorph/pagemorph/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
	logger    *zap.Logger
}

func NewDocumentHandler(documents *service.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, logger: logger}
}

// Upload handles POST /api/documents/upload (multipart).
func (h *DocumentHandler) Upload(c *gin.Context) {
	subject := middleware.GetSubject(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, h.logger, errs.New(errs.InvalidInput, "file field is required"))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondError(c, h.logger, errs.Wrap(errs.InvalidInput, "unreadable upload", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, h.logger, errs.Wrap(errs.InvalidInput, "unreadable upload", err))
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.documents.Upload(c.Request.Context(), subject, service.UploadInput{
		Title:       c.PostForm("title"),
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"document": doc})
}

// List handles GET /api/documents.
func (h *DocumentHandler) List(c *gin.Context) {
	subject := middleware.GetSubject(c)

	docs, err := h.documents.List(c.Request.Context(), subject)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

// Get handles GET /api/documents/:id.
func (h *DocumentHandler) Get(c *gin.Context) {
	subject := middleware.GetSubject(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, errs.New(errs.NotFound, "document not found"))
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), subject, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"document": doc})
}

// Delete handles DELETE /api/documents/:id (soft delete).
func (h *DocumentHandler) Delete(c *gin.Context) {
	subject := middleware.GetSubject(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, errs.New(errs.NotFound, "document not found"))
		return
	}

	if err := h.documents.Delete(c.Request.Context(), subject, id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
