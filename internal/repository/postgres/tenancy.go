package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// scoped runs fn inside a transaction whose connection carries the
// caller's workspace id in the app.workspace_id GUC. The row-level
// policies in the schema enforce workspace filtering even if a query in
// fn forgets its explicit WHERE workspace_id clause; the explicit filter
// remains the primary, testable layer.
func scoped(ctx context.Context, pool *pgxpool.Pool, workspaceID uuid.UUID, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT set_config('app.workspace_id', $1, true)`, workspaceID.String()); err != nil {
		return fmt.Errorf("set tenancy variable: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
