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

type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

const sessionColumns = `id, user_id, workspace_id, refresh_token_hash, issued_at, expires_at, revoked, parent_session_id`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.WorkspaceID,
		&s.RefreshTokenHash,
		&s.IssuedAt,
		&s.ExpiresAt,
		&s.Revoked,
		&s.ParentSessionID,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.WorkspaceID,
		session.RefreshTokenHash,
		session.IssuedAt,
		session.ExpiresAt,
		session.Revoked,
		session.ParentSessionID,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	sess, err := scanSession(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "session not found")
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetByRefreshHash returns the session regardless of revocation or expiry;
// the rotation protocol needs revoked rows to detect replays.
func (s *SessionStore) GetByRefreshHash(ctx context.Context, hash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = $1`
	sess, err := scanSession(s.pool.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "session not found")
		}
		return nil, fmt.Errorf("get session by hash: %w", err)
	}
	return sess, nil
}

// Rotate revokes the presented session and inserts its successor in one
// transaction. The revoked=false guard makes concurrent rotations of the
// same session lose with conflict instead of forking the chain.
func (s *SessionStore) Rotate(ctx context.Context, presentedID uuid.UUID, next *models.Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE sessions SET revoked = true WHERE id = $1 AND revoked = false`, presentedID)
	if err != nil {
		return fmt.Errorf("revoke presented session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.Conflict, "session already rotated")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		next.ID,
		next.UserID,
		next.WorkspaceID,
		next.RefreshTokenHash,
		next.IssuedAt,
		next.ExpiresAt,
		next.Revoked,
		next.ParentSessionID,
	)
	if err != nil {
		return fmt.Errorf("insert rotated session: %w", err)
	}

	return tx.Commit(ctx)
}

// RevokeChain revokes every session in the rotation chain containing
// sessionID: it ascends to the root, then revokes the root and all of its
// descendants.
func (s *SessionStore) RevokeChain(ctx context.Context, sessionID uuid.UUID) error {
	query := `
		WITH RECURSIVE up AS (
			SELECT id, parent_session_id FROM sessions WHERE id = $1
			UNION ALL
			SELECT p.id, p.parent_session_id
			FROM sessions p
			JOIN up ON up.parent_session_id = p.id
		), root AS (
			SELECT id FROM up WHERE parent_session_id IS NULL
		), down AS (
			SELECT id FROM sessions WHERE id IN (SELECT id FROM root)
			UNION ALL
			SELECT c.id
			FROM sessions c
			JOIN down d ON c.parent_session_id = d.id
		)
		UPDATE sessions SET revoked = true WHERE id IN (SELECT id FROM down)`

	if _, err := s.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("revoke session chain: %w", err)
	}
	return nil
}

func (s *SessionStore) IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx, `SELECT revoked FROM sessions WHERE id = $1`, sessionID).Scan(&revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Unknown session id means the credential cannot be honored.
			return true, nil
		}
		return false, fmt.Errorf("check session revocation: %w", err)
	}
	return revoked, nil
}
