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

type PresetStore struct {
	pool *pgxpool.Pool
}

func NewPresetStore(pool *pgxpool.Pool) *PresetStore {
	return &PresetStore{pool: pool}
}

const presetColumns = `id, workspace_id, user_id, name, description, kind, parameters,
	is_shared, usage_count, created_at, updated_at`

func scanPreset(row pgx.Row) (*models.Preset, error) {
	var p models.Preset
	err := row.Scan(
		&p.ID,
		&p.WorkspaceID,
		&p.UserID,
		&p.Name,
		&p.Description,
		&p.Kind,
		&p.Parameters,
		&p.IsShared,
		&p.UsageCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PresetStore) Create(ctx context.Context, p *models.Preset) error {
	return scoped(ctx, s.pool, p.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			INSERT INTO presets (` + presetColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, now(), now())
			RETURNING created_at, updated_at`

		err := tx.QueryRow(ctx, query,
			p.ID,
			p.WorkspaceID,
			p.UserID,
			p.Name,
			p.Description,
			p.Kind,
			p.Parameters,
			p.IsShared,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert preset: %w", err)
		}
		return nil
	})
}

// Get enforces the accessibility rule: readable iff shared or owned.
// Rows in other workspaces and unshared rows of other users both come
// back as not_found.
func (s *PresetStore) Get(ctx context.Context, subject models.Subject, id uuid.UUID) (*models.Preset, error) {
	var p *models.Preset
	err := scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			SELECT ` + presetColumns + `
			FROM presets
			WHERE id = $1 AND workspace_id = $2 AND (is_shared OR user_id = $3)`

		var err error
		p, err = scanPreset(tx.QueryRow(ctx, query, id, subject.WorkspaceID, subject.UserID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.New(errs.NotFound, "preset not found")
		}
		return nil, fmt.Errorf("get preset: %w", err)
	}
	return p, nil
}

func (s *PresetStore) ListAccessible(ctx context.Context, subject models.Subject) ([]models.Preset, error) {
	presets := make([]models.Preset, 0)
	err := scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		query := `
			SELECT ` + presetColumns + `
			FROM presets
			WHERE workspace_id = $1 AND (is_shared OR user_id = $2)
			ORDER BY created_at DESC`

		rows, err := tx.Query(ctx, query, subject.WorkspaceID, subject.UserID)
		if err != nil {
			return fmt.Errorf("list presets: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPreset(rows)
			if err != nil {
				return fmt.Errorf("scan preset: %w", err)
			}
			presets = append(presets, *p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return presets, nil
}

// Update is owner-only. A same-workspace non-owner gets forbidden; a
// caller from another workspace never learns the preset exists.
func (s *PresetStore) Update(ctx context.Context, subject models.Subject, p *models.Preset) error {
	return scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		var ownerID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT user_id FROM presets WHERE id = $1 AND workspace_id = $2`,
			p.ID, subject.WorkspaceID,
		).Scan(&ownerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.New(errs.NotFound, "preset not found")
			}
			return fmt.Errorf("load preset owner: %w", err)
		}
		if ownerID != subject.UserID {
			return errs.New(errs.Forbidden, "only the preset owner may update it")
		}

		query := `
			UPDATE presets
			SET name = $3, description = $4, parameters = $5, is_shared = $6, updated_at = now()
			WHERE id = $1 AND workspace_id = $2
			RETURNING ` + presetColumns

		updated, err := scanPreset(tx.QueryRow(ctx, query,
			p.ID, subject.WorkspaceID, p.Name, p.Description, p.Parameters, p.IsShared))
		if err != nil {
			return fmt.Errorf("update preset: %w", err)
		}
		*p = *updated
		return nil
	})
}

func (s *PresetStore) Delete(ctx context.Context, subject models.Subject, id uuid.UUID) error {
	return scoped(ctx, s.pool, subject.WorkspaceID, func(tx pgx.Tx) error {
		var ownerID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT user_id FROM presets WHERE id = $1 AND workspace_id = $2`,
			id, subject.WorkspaceID,
		).Scan(&ownerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.New(errs.NotFound, "preset not found")
			}
			return fmt.Errorf("load preset owner: %w", err)
		}
		if ownerID != subject.UserID {
			return errs.New(errs.Forbidden, "only the preset owner may delete it")
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM presets WHERE id = $1 AND workspace_id = $2`,
			id, subject.WorkspaceID); err != nil {
			return fmt.Errorf("delete preset: %w", err)
		}
		return nil
	})
}

// IncrementUsage is called once per successful enqueue, never on retry.
func (s *PresetStore) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE presets SET usage_count = usage_count + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("increment preset usage: %w", err)
	}
	return nil
}
