package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
)

type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

const documentColumns = `id, workspace_id, user_id, title, original_filename, content_type,
	blob_ref, content_hash, status, extracted_text, created_at, updated_at, deleted_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID,
		&d.WorkspaceID,
		&d.UserID,
		&d.Title,
		&d.OriginalFilename,
		&d.ContentType,
		&d.BlobRef,
		&d.ContentHash,
		&d.Status,
		&d.ExtractedText,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DocumentStore) Create(ctx context.Context, doc *models.Document) error {
	return scoped(ctx, s.pool, doc.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			INSERT INTO documents (` + documentColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now(), NULL)
			RETURNING created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			doc.ID,
			doc.WorkspaceID,
			doc.UserID,
			doc.Title,
			doc.OriginalFilename,
			doc.ContentType,
			doc.BlobRef,
			doc.ContentHash,
			doc.Status,
			doc.ExtractedText,
		).Scan(&doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return nil
	})
}

func (s *DocumentStore) Get(ctx context.Context, subject models.Subject, id uuid.UUID) (*models.Document, error) {
	var doc *models.Document
	err := scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			SELECT ` + documentColumns + `
			FROM documents
			WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL`

		var err error
		doc, err = scanDocument(tx.QueryRow(ctx, query, id, subject.WorkspaceID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "document not found")
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *DocumentStore) List(ctx context.Context, subject models.Subject) ([]models.Document, error) {
	docs := make([]models.Document, 0)
	err := scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			SELECT ` + documentColumns + `
			FROM documents
			WHERE workspace_id = $1 AND deleted_at IS NULL
			ORDER BY created_at DESC`

		rows, err := tx.Query(ctx, query, subject.WorkspaceID)
		if err != nil {
			return fmt.Errorf("list documents: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			d, err := scanDocument(rows)
			if err != nil {
				return fmt.Errorf("scan document: %w", err)
			}
			docs = append(docs, *d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *DocumentStore) SoftDelete(ctx context.Context, subject models.Subject, id uuid.UUID) error {
	return scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			UPDATE documents
			SET deleted_at = now(), updated_at = now()
			WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL`

		tag, err := tx.Exec(ctx, query, id, subject.WorkspaceID)
		if err != nil {
			return fmt.Errorf("soft delete document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errs.New(errs.NotFound, "document not found")
		}
		return nil
	})
}

// UpdateExtraction is called from the upload pipeline, not a request
// handler; the row was created moments earlier by the same workspace.
func (s *DocumentStore) UpdateExtraction(ctx context.Context, id uuid.UUID, status models.DocumentStatus, text string) error {
	query := `
		UPDATE documents
		SET status = $2, extracted_text = $3, updated_at = now()
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, id, status, text); err != nil {
		return fmt.Errorf("update document extraction: %w", err)
	}
	return nil
}
