package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/blob"
	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/extract"
	"github.com/pagemorph/pagemorph/internal/models"
)

func newDocumentFixture() (*DocumentService, *fakeDocuments, models.Subject) {
	docs := newFakeDocuments()
	svc := NewDocumentService(docs, blob.NewMemoryStore(), extract.NewPlainTextExtractor(), zap.NewNop())
	subject := models.Subject{UserID: uuid.New(), WorkspaceID: uuid.New()}
	return svc, docs, subject
}

func TestUploadPlainText(t *testing.T) {
	ctx := context.Background()
	svc, _, subject := newDocumentFixture()

	doc, err := svc.Upload(ctx, subject, UploadInput{
		Title:       "Q3 notes",
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("quarterly results were strong"),
	})
	require.NoError(t, err)

	assert.Equal(t, models.DocumentReady, doc.Status)
	assert.Equal(t, subject.WorkspaceID, doc.WorkspaceID)
	assert.NotEmpty(t, doc.BlobRef)
	assert.Len(t, doc.ContentHash, 64)

	got, err := svc.Get(ctx, subject, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "quarterly results were strong", got.ExtractedText)
}

func TestUploadUnsupportedTypeFailsExtraction(t *testing.T) {
	ctx := context.Background()
	svc, _, subject := newDocumentFixture()

	doc, err := svc.Upload(ctx, subject, UploadInput{
		Filename:    "scan.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4 ..."),
	})
	require.NoError(t, err, "upload survives; extraction marks the document failed")
	assert.Equal(t, models.DocumentFailed, doc.Status)
	assert.Equal(t, "scan.pdf", doc.Title, "title defaults to filename")
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	ctx := context.Background()
	svc, _, subject := newDocumentFixture()

	_, err := svc.Upload(ctx, subject, UploadInput{
		Filename:    "empty.txt",
		ContentType: "text/plain",
	})
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
}

func TestDocumentSoftDeleteHidesFromReads(t *testing.T) {
	ctx := context.Background()
	svc, _, subject := newDocumentFixture()

	doc, err := svc.Upload(ctx, subject, UploadInput{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("body"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, subject, doc.ID))

	_, err = svc.Get(ctx, subject, doc.ID)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	list, err := svc.List(ctx, subject)
	require.NoError(t, err)
	assert.Empty(t, list)

	err = svc.Delete(ctx, subject, doc.ID)
	assert.Equal(t, errs.NotFound, errs.KindOf(err), "double delete reads as absent")
}

func TestDocumentWorkspaceIsolation(t *testing.T) {
	ctx := context.Background()
	svc, _, subject := newDocumentFixture()

	doc, err := svc.Upload(ctx, subject, UploadInput{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("body"),
	})
	require.NoError(t, err)

	foreign := models.Subject{UserID: uuid.New(), WorkspaceID: uuid.New()}
	_, err = svc.Get(ctx, foreign, doc.ID)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))

	err = svc.Delete(ctx, foreign, doc.ID)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}
