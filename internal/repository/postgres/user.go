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

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) Create(ctx context.Context, workspaceID uuid.UUID, email, passwordHash string, role models.Role) (*models.User, error) {
	query := `
		INSERT INTO users (id, workspace_id, email, password_hash, role, is_active, created_at)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, true, now())
		RETURNING id, workspace_id, email, password_hash, role, is_active, created_at`

	var u models.User
	err := s.pool.QueryRow(ctx, query, workspaceID, email, passwordHash, role).Scan(
		&u.ID,
		&u.WorkspaceID,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.Wrap(errs.Conflict, "email already registered", err)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

// GetByEmail is a global lookup used by login. Returns nil, nil when the
// email is unknown so the handler can answer with one generic message for
// both unknown-email and wrong-password.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, workspace_id, email, password_hash, role, is_active, created_at
		FROM users
		WHERE email = $1`

	var u models.User
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&u.ID,
		&u.WorkspaceID,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, subject models.Subject, userID uuid.UUID) (*models.User, error) {
	var u models.User
	err := scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			SELECT id, workspace_id, email, password_hash, role, is_active, created_at
			FROM users
			WHERE id = $1 AND workspace_id = $2`

		return tx.QueryRow(ctx, query, userID, subject.WorkspaceID).Scan(
			&u.ID,
			&u.WorkspaceID,
			&u.Email,
			&u.PasswordHash,
			&u.Role,
			&u.IsActive,
			&u.CreatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}
