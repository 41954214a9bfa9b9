// Package queue implements the durable transformation job queue: rows in
// Postgres claimed under a lease, with a Redis wake channel so idle
// workers pick up new work without tight polling.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
)

// WakeChannel is the Redis pub/sub channel carrying enqueue signals.
const WakeChannel = "queue.wake"

// backoffExpCap bounds the exponent so the delay stays finite no matter
// how many attempts accumulate.
const backoffExpCap = 8

type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
}

type Queue struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	opts   Options
	logger *zap.Logger
}

func New(pool *pgxpool.Pool, rdb *redis.Client, opts Options, logger *zap.Logger) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	return &Queue{pool: pool, rdb: rdb, opts: opts, logger: logger}
}

func (q *Queue) Enqueue(ctx context.Context, task *models.QueuedTask) error {
	query := `
		INSERT INTO queued_tasks (id, workspace_id, attempts, not_before, claim_owner, claim_expires_at, cancel_requested, payload)
		VALUES ($1, $2, 0, $3, NULL, NULL, false, $4)`

	if _, err := q.pool.Exec(ctx, query, task.ID, task.WorkspaceID, task.NotBefore, task.Payload); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	// Wake signal is best-effort: a worker will find the row on its next
	// poll even if the publish is lost.
	if err := q.rdb.Publish(ctx, WakeChannel, task.ID.String()).Err(); err != nil {
		q.logger.Warn("queue wake publish failed", zap.Error(err))
	}
	return nil
}

// Claim leases the next eligible task: unclaimed or lease-expired, and
// due. The cancel flag does not affect eligibility. Eligibility order is not_before
// ascending, ties broken by id. SKIP LOCKED keeps concurrent workers off
// each other's rows.
func (q *Queue) Claim(ctx context.Context, workerID string, lease time.Duration) (*models.QueuedTask, error) {
	query := `
		UPDATE queued_tasks
		SET claim_owner = $1, claim_expires_at = now() + make_interval(secs => $2), attempts = attempts + 1
		WHERE id = (
			SELECT id FROM queued_tasks
			WHERE (claim_owner IS NULL OR claim_expires_at < now())
			  AND not_before <= now()
			ORDER BY not_before, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, workspace_id, attempts, not_before, claim_owner, claim_expires_at, cancel_requested, payload`

	var t models.QueuedTask
	err := q.pool.QueryRow(ctx, query, workerID, lease.Seconds()).Scan(
		&t.ID,
		&t.WorkspaceID,
		&t.Attempts,
		&t.NotBefore,
		&t.ClaimOwner,
		&t.ClaimExpiresAt,
		&t.CancelRequested,
		&t.Payload,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return &t, nil
}

func (q *Queue) Ack(ctx context.Context, taskID uuid.UUID, workerID string) error {
	tag, err := q.pool.Exec(ctx,
		`DELETE FROM queued_tasks WHERE id = $1 AND claim_owner = $2`, taskID, workerID)
	if err != nil {
		return fmt.Errorf("ack task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.Conflict, "claim no longer held")
	}
	return nil
}

// Nack releases the claim and schedules the retry with exponential
// backoff. Once attempts have reached the maximum it reports exhausted
// and leaves the row claimed so the caller can write the terminal failure
// and Ack.
func (q *Queue) Nack(ctx context.Context, taskID uuid.UUID, workerID string, reason string) (bool, error) {
	var attempts int
	err := q.pool.QueryRow(ctx,
		`SELECT attempts FROM queued_tasks WHERE id = $1 AND claim_owner = $2`,
		taskID, workerID).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, errs.New(errs.Conflict, "claim no longer held")
		}
		return false, fmt.Errorf("load task attempts: %w", err)
	}

	if attempts >= q.opts.MaxAttempts {
		return true, nil
	}

	delay := q.NextDelay(attempts)
	tag, err := q.pool.Exec(ctx, `
		UPDATE queued_tasks
		SET not_before = now() + make_interval(secs => $3), claim_owner = NULL, claim_expires_at = NULL
		WHERE id = $1 AND claim_owner = $2`,
		taskID, workerID, delay.Seconds())
	if err != nil {
		return false, fmt.Errorf("nack task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, errs.New(errs.Conflict, "claim no longer held")
	}

	q.logger.Info("task scheduled for retry",
		zap.String("task_id", taskID.String()),
		zap.Int("attempts", attempts),
		zap.Duration("delay", delay),
		zap.String("reason", reason),
	)
	return false, nil
}

// NextDelay computes base · 2^min(attempts, cap).
func (q *Queue) NextDelay(attempts int) time.Duration {
	exp := math.Min(float64(attempts), backoffExpCap)
	return time.Duration(float64(q.opts.BackoffBase) * math.Pow(2, exp))
}

// Cancel removes an unclaimed task outright; a claimed one gets the
// cooperative flag, which the executor polls between provider attempts.
// The removed return tells the caller whether the task was dequeued here
// (so it can write the terminal state itself) or left to the claim holder.
func (q *Queue) Cancel(ctx context.Context, taskID uuid.UUID) (removed bool, err error) {
	tag, err := q.pool.Exec(ctx, `
		DELETE FROM queued_tasks
		WHERE id = $1 AND (claim_owner IS NULL OR claim_expires_at < now())`, taskID)
	if err != nil {
		return false, fmt.Errorf("cancel task: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := q.pool.Exec(ctx,
		`UPDATE queued_tasks SET cancel_requested = true WHERE id = $1`, taskID); err != nil {
		return false, fmt.Errorf("flag task cancellation: %w", err)
	}
	return false, nil
}

func (q *Queue) CancelRequested(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var flagged bool
	err := q.pool.QueryRow(ctx,
		`SELECT cancel_requested FROM queued_tasks WHERE id = $1`, taskID).Scan(&flagged)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check task cancellation: %w", err)
	}
	return flagged, nil
}

// Wake returns a channel that receives an element when enqueue signals
// arrive; signals that arrive while an element is still pending are
// dropped. The subscription runs until ctx is cancelled.
func (q *Queue) Wake(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	sub := q.rdb.Subscribe(ctx, WakeChannel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				close(out)
				return
			case _, ok := <-ch:
				if !ok {
					close(out)
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
