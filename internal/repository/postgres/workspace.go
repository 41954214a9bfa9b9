package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagemorph/pagemorph/internal/models"
)

type WorkspaceStore struct {
	pool *pgxpool.Pool
}

func NewWorkspaceStore(pool *pgxpool.Pool) *WorkspaceStore {
	return &WorkspaceStore{pool: pool}
}

func (s *WorkspaceStore) Create(ctx context.Context, name, plan string) (*models.Workspace, error) {
	query := `
		INSERT INTO workspaces (id, name, plan, is_active, created_at)
		VALUES (uuid_generate_v4(), $1, $2, true, now())
		RETURNING id, name, plan, is_active, created_at`

	var w models.Workspace
	err := s.pool.QueryRow(ctx, query, name, plan).Scan(
		&w.ID,
		&w.Name,
		&w.Plan,
		&w.IsActive,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert workspace: %w", err)
	}
	return &w, nil
}

func (s *WorkspaceStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	query := `
		SELECT id, name, plan, is_active, created_at
		FROM workspaces
		WHERE id = $1`

	var w models.Workspace
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&w.ID,
		&w.Name,
		&w.Plan,
		&w.IsActive,
		&w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return &w, nil
}
