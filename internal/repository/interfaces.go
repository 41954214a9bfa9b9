package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pagemorph/pagemorph/internal/models"
)

// Every scoped method takes the caller's Subject and filters by
// subject.WorkspaceID. A row that exists but belongs to another workspace
// is reported as not_found; existence never leaks across the boundary.
//
// Methods without a Subject are not workspace-scoped. Their callers are
// the auth flow (registration, login, refresh, /auth/me), the upload
// pipeline, preset usage counting and the executor's worker path.

type WorkspaceRepository interface {
	Create(ctx context.Context, name, plan string) (*models.Workspace, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
}

type UserRepository interface {
	Create(ctx context.Context, workspaceID uuid.UUID, email, passwordHash string, role models.Role) (*models.User, error)
	// GetByEmail is global (email is globally unique); used by login and
	// by registration's duplicate-email check.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, subject models.Subject, userID uuid.UUID) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash string) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// GetByRefreshHash is the rotation lookup; revoked and expired rows
	// are still returned so replay detection can inspect them.
	GetByRefreshHash(ctx context.Context, hash string) (*models.Session, error)
	// Rotate atomically revokes the presented session and inserts its
	// successor. Fails with conflict if the presented session was revoked
	// concurrently.
	Rotate(ctx context.Context, presentedID uuid.UUID, next *models.Session) error
	// RevokeChain revokes every session in the rotation chain containing
	// the given session, root and all descendants.
	RevokeChain(ctx context.Context, sessionID uuid.UUID) error
	IsRevoked(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, subject models.Subject, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, subject models.Subject) ([]models.Document, error)
	SoftDelete(ctx context.Context, subject models.Subject, id uuid.UUID) error
	// UpdateExtraction is written by the upload pipeline after the
	// extractor runs; status moves to ready or failed.
	UpdateExtraction(ctx context.Context, id uuid.UUID, status models.DocumentStatus, text string) error
}

// TransformationFilter narrows List results. Zero values mean "any".
type TransformationFilter struct {
	Status models.TransformationStatus
	Kind   models.TransformationKind
	Limit  int
	Offset int
}

type TransformationRepository interface {
	Create(ctx context.Context, t *models.Transformation) error
	Get(ctx context.Context, subject models.Subject, id uuid.UUID) (*models.Transformation, error)
	List(ctx context.Context, subject models.Subject, filter TransformationFilter) ([]models.Transformation, int, error)
	ListByDocument(ctx context.Context, subject models.Subject, documentID uuid.UUID) ([]models.Transformation, error)

	// Worker-path writes below; no Subject because the executor is the
	// claim holder, not a request handler. Transitions are compare-and-set
	// so they stay monotonic under redelivery.

	// GetForWork loads a transformation regardless of workspace.
	GetForWork(ctx context.Context, id uuid.UUID) (*models.Transformation, error)
	// MarkRunning moves a pending or running row to running; returns false
	// when the row is terminal or missing (idempotency guard for
	// redelivered tasks).
	MarkRunning(ctx context.Context, id uuid.UUID, attempts int) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, result, provider string, tokensUsed int) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

type PresetRepository interface {
	Create(ctx context.Context, p *models.Preset) error
	// Get enforces accessibility: owner or is_shared within the workspace.
	Get(ctx context.Context, subject models.Subject, id uuid.UUID) (*models.Preset, error)
	ListAccessible(ctx context.Context, subject models.Subject) ([]models.Preset, error)
	// Update and Delete are owner-only; a non-owner in the same workspace
	// gets forbidden, a caller from another workspace not_found.
	Update(ctx context.Context, subject models.Subject, p *models.Preset) error
	Delete(ctx context.Context, subject models.Subject, id uuid.UUID) error
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}

// TaskQueue is the durable at-least-once job queue of §TaskQueue.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *models.QueuedTask) error
	// Claim leases the next eligible task for the worker. Returns nil when
	// nothing is eligible.
	Claim(ctx context.Context, workerID string, lease time.Duration) (*models.QueuedTask, error)
	Ack(ctx context.Context, taskID uuid.UUID, workerID string) error
	// Nack schedules a retry with exponential backoff, or reports
	// exhausted=true once attempts have reached the configured maximum
	// (the caller writes the terminal failure, then Acks).
	Nack(ctx context.Context, taskID uuid.UUID, workerID string, reason string) (exhausted bool, err error)
	// Cancel deletes an unclaimed task or flags a claimed one for
	// cooperative cancellation; removed reports which happened.
	Cancel(ctx context.Context, taskID uuid.UUID) (removed bool, err error)
	CancelRequested(ctx context.Context, taskID uuid.UUID) (bool, error)
}
