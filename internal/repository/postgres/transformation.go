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
	"github.com/pagemorph/pagemorph/internal/repository"
)

type TransformationStore struct {
	pool *pgxpool.Pool
}

func NewTransformationStore(pool *pgxpool.Pool) *TransformationStore {
	return &TransformationStore{pool: pool}
}

const transformationColumns = `id, workspace_id, user_id, document_id, kind, parameters, status,
	result, error_reason, provider_used, tokens_used, attempts, created_at, updated_at, completed_at`

func scanTransformation(row pgx.Row) (*models.Transformation, error) {
	var t models.Transformation
	err := row.Scan(
		&t.ID,
		&t.WorkspaceID,
		&t.UserID,
		&t.DocumentID,
		&t.Kind,
		&t.Parameters,
		&t.Status,
		&t.Result,
		&t.ErrorReason,
		&t.ProviderUsed,
		&t.TokensUsed,
		&t.Attempts,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TransformationStore) Create(ctx context.Context, t *models.Transformation) error {
	return scoped(ctx, s.pool, t.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			INSERT INTO transformations (` + transformationColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, '', '', '', 0, 0, now(), now(), NULL)
			RETURNING created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			t.ID,
			t.WorkspaceID,
			t.UserID,
			t.DocumentID,
			t.Kind,
			t.Parameters,
			t.Status,
		).Scan(&t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert transformation: %w", err)
		}
		return nil
	})
}

func (s *TransformationStore) Get(ctx context.Context, subject models.Subject, id uuid.UUID) (*models.Transformation, error) {
	var t *models.Transformation
	err := scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			SELECT ` + transformationColumns + `
			FROM transformations
			WHERE id = $1 AND workspace_id = $2`

		var err error
		t, err = scanTransformation(tx.QueryRow(ctx, query, id, subject.WorkspaceID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "transformation not found")
		}
		return nil, fmt.Errorf("get transformation: %w", err)
	}
	return t, nil
}

func (s *TransformationStore) List(ctx context.Context, subject models.Subject, filter repository.TransformationFilter) ([]models.Transformation, int, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	out := make([]models.Transformation, 0)
	var total int
	err := scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			SELECT ` + transformationColumns + `, count(*) OVER ()
			FROM transformations
			WHERE workspace_id = $1
			  AND ($2 = '' OR status = $2)
			  AND ($3 = '' OR kind = $3)
			ORDER BY created_at DESC
			LIMIT $4 OFFSET $5`

		rows, err := tx.Query(ctx, query,
			subject.WorkspaceID, string(filter.Status), string(filter.Kind), limit, filter.Offset)
		if err != nil {
			return fmt.Errorf("list transformations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t models.Transformation
			if err := rows.Scan(
				&t.ID,
				&t.WorkspaceID,
				&t.UserID,
				&t.DocumentID,
				&t.Kind,
				&t.Parameters,
				&t.Status,
				&t.Result,
				&t.ErrorReason,
				&t.ProviderUsed,
				&t.TokensUsed,
				&t.Attempts,
				&t.CreatedAt,
				&t.UpdatedAt,
				&t.CompletedAt,
				&total,
			); err != nil {
				return fmt.Errorf("scan transformation: %w", err)
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *TransformationStore) ListByDocument(ctx context.Context, subject models.Subject, documentID uuid.UUID) ([]models.Transformation, error) {
	out := make([]models.Transformation, 0)
	err := scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			SELECT ` + transformationColumns + `
			FROM transformations
			WHERE workspace_id = $1 AND document_id = $2
			ORDER BY created_at DESC`

		rows, err := tx.Query(ctx, query, subject.WorkspaceID, documentID)
		if err != nil {
			return fmt.Errorf("list transformations by document: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTransformation(rows)
			if err != nil {
				return fmt.Errorf("scan transformation: %w", err)
			}
			out = append(out, *t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetForWork loads a transformation without workspace scoping. Worker
// path only; never reachable from a request handler.
func (s *TransformationStore) GetForWork(ctx context.Context, id uuid.UUID) (*models.Transformation, error) {
	query := `SELECT ` + transformationColumns + ` FROM transformations WHERE id = $1`
	t, err := scanTransformation(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "transformation not found")
		}
		return nil, fmt.Errorf("get transformation for work: %w", err)
	}
	return t, nil
}

// MarkRunning is the pending/running→running compare-and-set. A false
// return means the row is terminal or missing; redelivered tasks stop here.
func (s *TransformationStore) MarkRunning(ctx context.Context, id uuid.UUID, attempts int) (bool, error) {
	query := `
		UPDATE transformations
		SET status = $2, attempts = $3, updated_at = now()
		WHERE id = $1 AND status IN ($4, $2)`

	tag, err := s.pool.Exec(ctx, query, id, models.StatusRunning, attempts, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark transformation running: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *TransformationStore) Complete(ctx context.Context, id uuid.UUID, result, provider string, tokensUsed int) error {
	query := `
		UPDATE transformations
		SET status = $2, result = $3, provider_used = $4, tokens_used = $5,
		    updated_at = now(), completed_at = now()
		WHERE id = $1 AND status = $6`

	tag, err := s.pool.Exec(ctx, query, id, models.StatusCompleted, result, provider, tokensUsed, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("complete transformation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.Conflict, "transformation not running")
	}
	return nil
}

func (s *TransformationStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE transformations
		SET status = $2, error_reason = $3, updated_at = now(), completed_at = now()
		WHERE id = $1 AND status NOT IN ($4, $5, $2)`

	if _, err := s.pool.Exec(ctx, query, id, models.StatusFailed, reason,
		models.StatusCompleted, models.StatusCancelled); err != nil {
		return fmt.Errorf("fail transformation: %w", err)
	}
	return nil
}

func (s *TransformationStore) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE transformations
		SET status = $2, error_reason = 'cancelled', updated_at = now(), completed_at = now()
		WHERE id = $1 AND status NOT IN ($3, $4, $2)`

	if _, err := s.pool.Exec(ctx, query, id, models.StatusCancelled,
		models.StatusCompleted, models.StatusFailed); err != nil {
		return fmt.Errorf("cancel transformation: %w", err)
	}
	return nil
}
