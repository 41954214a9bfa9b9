package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace is the tenant boundary. Every scoped entity carries its id;
// workspaces are never deleted, only deactivated.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Role of a user within their workspace.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// User is a principal. A user acts only within their home workspace;
// multi-workspace membership is not supported.
type User struct {
	ID           uuid.UUID `json:"id"`
	WorkspaceID  uuid.UUID `json:"workspace_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session binds a refresh credential to a user. Rotation links sessions
// through ParentSessionID; at most one non-revoked session exists per chain.
type Session struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	WorkspaceID      uuid.UUID  `json:"workspace_id"`
	RefreshTokenHash string     `json:"-"`
	IssuedAt         time.Time  `json:"issued_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	Revoked          bool       `json:"revoked"`
	ParentSessionID  *uuid.UUID `json:"parent_session_id,omitempty"`
}

// DocumentStatus tracks the upload/extraction pipeline.
type DocumentStatus string

const (
	DocumentPending DocumentStatus = "pending"
	DocumentReady   DocumentStatus = "ready"
	DocumentFailed  DocumentStatus = "failed"
)

// Document is uploaded source-artifact metadata. The bytes live in the
// blob store; BlobRef is an opaque handle, ContentHash the sha-256 of the
// original upload.
type Document struct {
	ID               uuid.UUID      `json:"id"`
	WorkspaceID      uuid.UUID      `json:"workspace_id"`
	UserID           uuid.UUID      `json:"user_id"`
	Title            string         `json:"title"`
	OriginalFilename string         `json:"original_filename"`
	ContentType      string         `json:"content_type"`
	BlobRef          string         `json:"blob_ref"`
	ContentHash      string         `json:"content_hash"`
	Status           DocumentStatus `json:"status"`
	ExtractedText    string         `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        *time.Time     `json:"deleted_at,omitempty"`
}

// TransformationKind is the requested output format.
type TransformationKind string

const (
	KindBlogPost      TransformationKind = "blog_post"
	KindSocialMedia   TransformationKind = "social_media"
	KindEmailSequence TransformationKind = "email_sequence"
	KindNewsletter    TransformationKind = "newsletter"
	KindSummary       TransformationKind = "summary"
	KindCustom        TransformationKind = "custom"
)

// Kinds lists every valid transformation kind.
func Kinds() []TransformationKind {
	return []TransformationKind{
		KindBlogPost, KindSocialMedia, KindEmailSequence,
		KindNewsletter, KindSummary, KindCustom,
	}
}

// TransformationStatus lifecycle: pending → running → (completed|failed|cancelled).
// Transitions are monotonic; only the claim holder writes the non-initial ones.
type TransformationStatus string

const (
	StatusPending   TransformationStatus = "pending"
	StatusRunning   TransformationStatus = "running"
	StatusCompleted TransformationStatus = "completed"
	StatusFailed    TransformationStatus = "failed"
	StatusCancelled TransformationStatus = "cancelled"
)

// Terminal reports whether s is a terminal status.
func (s TransformationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Transformation is one AI conversion job.
type Transformation struct {
	ID           uuid.UUID            `json:"id"`
	WorkspaceID  uuid.UUID            `json:"workspace_id"`
	UserID       uuid.UUID            `json:"user_id"`
	DocumentID   *uuid.UUID           `json:"document_id,omitempty"`
	Kind         TransformationKind   `json:"kind"`
	Parameters   map[string]any       `json:"parameters"`
	Status       TransformationStatus `json:"status"`
	Result       string               `json:"result,omitempty"`
	ErrorReason  string               `json:"error_reason,omitempty"`
	ProviderUsed string               `json:"provider_used,omitempty"`
	TokensUsed   int                  `json:"tokens_used,omitempty"`
	Attempts     int                  `json:"attempts"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
}

// Preset is a reusable transformation-parameter template. Only the owner
// may update or delete; workspace members can read it iff IsShared or
// they own it.
type Preset struct {
	ID          uuid.UUID          `json:"id"`
	WorkspaceID uuid.UUID          `json:"workspace_id"`
	UserID      uuid.UUID          `json:"user_id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Kind        TransformationKind `json:"kind"`
	Parameters  map[string]any     `json:"parameters"`
	IsShared    bool               `json:"is_shared"`
	UsageCount  int                `json:"usage_count"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// QueuedTask is the durable enqueue record for a transformation. ID equals
// the transformation id; the row is removed on terminal state.
type QueuedTask struct {
	ID              uuid.UUID  `json:"id"`
	WorkspaceID     uuid.UUID  `json:"workspace_id"`
	Attempts        int        `json:"attempts"`
	NotBefore       time.Time  `json:"not_before"`
	ClaimOwner      string     `json:"claim_owner,omitempty"`
	ClaimExpiresAt  *time.Time `json:"claim_expires_at,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	Payload         []byte     `json:"payload"`
}

// Subject identifies the authenticated caller of an operation. Every
// repository and service call takes one; all persistence is filtered by
// Subject.WorkspaceID.
type Subject struct {
	UserID      uuid.UUID `json:"user_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Role        Role      `json:"role"`
	SessionID   uuid.UUID `json:"session_id"`
}
