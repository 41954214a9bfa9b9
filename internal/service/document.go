package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/blob"
	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/extract"
	"github.com/pagemorph/pagemorph/internal/models"
	"github.com/pagemorph/pagemorph/internal/repository"
)

const maxUploadBytes = 10 << 20

// DocumentService runs the upload pipeline: blob write, metadata row,
// content extraction.
type DocumentService struct {
	documents repository.DocumentRepository
	blobs     blob.Store
	extractor extract.ContentExtractor
	logger    *zap.Logger
}

func NewDocumentService(
	documents repository.DocumentRepository,
	blobs blob.Store,
	extractor extract.ContentExtractor,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		documents: documents,
		blobs:     blobs,
		extractor: extractor,
		logger:    logger,
	}
}

type UploadInput struct {
	Title       string
	Filename    string
	ContentType string
	Data        []byte
}

// Upload stores the bytes, persists the document, and extracts text
// inline. Extraction failure leaves a failed document rather than
// failing the upload: the bytes are safe and re-extraction is possible.
func (s *DocumentService) Upload(ctx context.Context, subject models.Subject, input UploadInput) (*models.Document, error) {
	if len(input.Data) == 0 {
		return nil, errs.New(errs.InvalidInput, "file is empty")
	}
	if len(input.Data) > maxUploadBytes {
		return nil, errs.New(errs.InvalidInput, "file too large")
	}
	if input.Title == "" {
		input.Title = input.Filename
	}

	ref, hash, err := s.blobs.Put(ctx, input.Data, input.ContentType)
	if err != nil {
		return nil, errs.Wrap(errs.Transient, "store file", err)
	}

	doc := &models.Document{
		ID:               uuid.New(),
		WorkspaceID:      subject.WorkspaceID,
		UserID:           subject.UserID,
		Title:            input.Title,
		OriginalFilename: input.Filename,
		ContentType:      input.ContentType,
		BlobRef:          ref,
		ContentHash:      hash,
		Status:           models.DocumentPending,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	text, err := s.extractor.Extract(ctx, input.Data, input.ContentType)
	if err != nil {
		s.logger.Warn("content extraction failed",
			zap.String("document_id", doc.ID.String()),
			zap.String("content_type", input.ContentType),
			zap.Error(err),
		)
		doc.Status = models.DocumentFailed
		if uerr := s.documents.UpdateExtraction(ctx, doc.ID, models.DocumentFailed, ""); uerr != nil {
			return nil, uerr
		}
		return doc, nil
	}

	doc.Status = models.DocumentReady
	doc.ExtractedText = text
	if err := s.documents.UpdateExtraction(ctx, doc.ID, models.DocumentReady, text); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, subject models.Subject, id uuid.UUID) (*models.Document, error) {
	return s.documents.Get(ctx, subject, id)
}

func (s *DocumentService) List(ctx context.Context, subject models.Subject) ([]models.Document, error) {
	return s.documents.List(ctx, subject)
}

func (s *DocumentService) Delete(ctx context.Context, subject models.Subject, id uuid.UUID) error {
	return s.documents.SoftDelete(ctx, subject, id)
}
