package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pagemorph/pagemorph/internal/bus"
	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
	"github.com/pagemorph/pagemorph/internal/repository"
)

// In-memory fakes mirroring the repository contracts, including the
// workspace-scoping rule: rows from another workspace read as not_found.

type fakeWorkspaces struct {
	byID map[uuid.UUID]*models.Workspace
}

func newFakeWorkspaces() *fakeWorkspaces {
	return &fakeWorkspaces{byID: make(map[uuid.UUID]*models.Workspace)}
}

func (f *fakeWorkspaces) Create(_ context.Context, name, plan string) (*models.Workspace, error) {
	w := &models.Workspace{ID: uuid.New(), Name: name, Plan: plan, IsActive: true, CreatedAt: time.Now()}
	f.byID[w.ID] = w
	return w, nil
}

func (f *fakeWorkspaces) GetByID(_ context.Context, id uuid.UUID) (*models.Workspace, error) {
	return f.byID[id], nil
}

type fakeUsers struct {
	byID map[uuid.UUID]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUsers) Create(_ context.Context, workspaceID uuid.UUID, email, passwordHash string, role models.Role) (*models.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return nil, errs.New(errs.Conflict, "email already registered")
		}
	}
	u := &models.User{
		ID: uuid.New(), WorkspaceID: workspaceID, Email: email,
		PasswordHash: passwordHash, Role: role, IsActive: true, CreatedAt: time.Now(),
	}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetByID(_ context.Context, subject models.Subject, userID uuid.UUID) (*models.User, error) {
	u, ok := f.byID[userID]
	if !ok || u.WorkspaceID != subject.WorkspaceID {
		return nil, errs.New(errs.NotFound, "user not found")
	}
	return u, nil
}

func (f *fakeUsers) UpdatePasswordHash(_ context.Context, userID uuid.UUID, hash string) error {
	if u, ok := f.byID[userID]; ok {
		u.PasswordHash = hash
	}
	return nil
}

type fakeSessions struct {
	byID map[uuid.UUID]*models.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: make(map[uuid.UUID]*models.Session)}
}

func (f *fakeSessions) Create(_ context.Context, s *models.Session) error {
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "session not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) GetByRefreshHash(_ context.Context, hash string) (*models.Session, error) {
	for _, s := range f.byID {
		if s.RefreshTokenHash == hash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, errs.New(errs.NotFound, "session not found")
}

func (f *fakeSessions) Rotate(_ context.Context, presentedID uuid.UUID, next *models.Session) error {
	presented, ok := f.byID[presentedID]
	if !ok || presented.Revoked {
		return errs.New(errs.Conflict, "session already rotated")
	}
	presented.Revoked = true
	cp := *next
	f.byID[next.ID] = &cp
	return nil
}

func (f *fakeSessions) RevokeChain(_ context.Context, sessionID uuid.UUID) error {
	root, ok := f.byID[sessionID]
	if !ok {
		return nil
	}
	for root.ParentSessionID != nil {
		parent, ok := f.byID[*root.ParentSessionID]
		if !ok {
			break
		}
		root = parent
	}
	revoke := map[uuid.UUID]bool{root.ID: true}
	for changed := true; changed; {
		changed = false
		for _, s := range f.byID {
			if s.ParentSessionID != nil && revoke[*s.ParentSessionID] && !revoke[s.ID] {
				revoke[s.ID] = true
				changed = true
			}
		}
	}
	for id := range revoke {
		f.byID[id].Revoked = true
	}
	return nil
}

func (f *fakeSessions) IsRevoked(_ context.Context, sessionID uuid.UUID) (bool, error) {
	s, ok := f.byID[sessionID]
	if !ok {
		return true, nil
	}
	return s.Revoked, nil
}

type fakeDocuments struct {
	byID map[uuid.UUID]*models.Document
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{byID: make(map[uuid.UUID]*models.Document)}
}

func (f *fakeDocuments) Create(_ context.Context, doc *models.Document) error {
	cp := *doc
	f.byID[doc.ID] = &cp
	return nil
}

func (f *fakeDocuments) Get(_ context.Context, subject models.Subject, id uuid.UUID) (*models.Document, error) {
	d, ok := f.byID[id]
	if !ok || d.WorkspaceID != subject.WorkspaceID || d.DeletedAt != nil {
		return nil, errs.New(errs.NotFound, "document not found")
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocuments) List(_ context.Context, subject models.Subject) ([]models.Document, error) {
	out := make([]models.Document, 0)
	for _, d := range f.byID {
		if d.WorkspaceID == subject.WorkspaceID && d.DeletedAt == nil {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDocuments) SoftDelete(_ context.Context, subject models.Subject, id uuid.UUID) error {
	d, ok := f.byID[id]
	if !ok || d.WorkspaceID != subject.WorkspaceID || d.DeletedAt != nil {
		return errs.New(errs.NotFound, "document not found")
	}
	now := time.Now()
	d.DeletedAt = &now
	return nil
}

func (f *fakeDocuments) UpdateExtraction(_ context.Context, id uuid.UUID, status models.DocumentStatus, text string) error {
	if d, ok := f.byID[id]; ok {
		d.Status = status
		d.ExtractedText = text
	}
	return nil
}

type fakeTransformations struct {
	byID map[uuid.UUID]*models.Transformation
}

func newFakeTransformations() *fakeTransformations {
	return &fakeTransformations{byID: make(map[uuid.UUID]*models.Transformation)}
}

func (f *fakeTransformations) Create(_ context.Context, t *models.Transformation) error {
	cp := *t
	f.byID[t.ID] = &cp
	return nil
}

func (f *fakeTransformations) Get(_ context.Context, subject models.Subject, id uuid.UUID) (*models.Transformation, error) {
	t, ok := f.byID[id]
	if !ok || t.WorkspaceID != subject.WorkspaceID {
		return nil, errs.New(errs.NotFound, "transformation not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTransformations) List(_ context.Context, subject models.Subject, _ repository.TransformationFilter) ([]models.Transformation, int, error) {
	out := make([]models.Transformation, 0)
	for _, t := range f.byID {
		if t.WorkspaceID == subject.WorkspaceID {
			out = append(out, *t)
		}
	}
	return out, len(out), nil
}

func (f *fakeTransformations) ListByDocument(_ context.Context, subject models.Subject, documentID uuid.UUID) ([]models.Transformation, error) {
	out := make([]models.Transformation, 0)
	for _, t := range f.byID {
		if t.WorkspaceID == subject.WorkspaceID && t.DocumentID != nil && *t.DocumentID == documentID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTransformations) GetForWork(_ context.Context, id uuid.UUID) (*models.Transformation, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "transformation not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTransformations) MarkRunning(_ context.Context, id uuid.UUID, attempts int) (bool, error) {
	t, ok := f.byID[id]
	if !ok || (t.Status != models.StatusPending && t.Status != models.StatusRunning) {
		return false, nil
	}
	t.Status = models.StatusRunning
	t.Attempts = attempts
	return true, nil
}

func (f *fakeTransformations) Complete(_ context.Context, id uuid.UUID, result, provider string, tokensUsed int) error {
	t, ok := f.byID[id]
	if !ok || t.Status != models.StatusRunning {
		return errs.New(errs.Conflict, "transformation not running")
	}
	t.Status = models.StatusCompleted
	t.Result = result
	t.ProviderUsed = provider
	t.TokensUsed = tokensUsed
	return nil
}

func (f *fakeTransformations) Fail(_ context.Context, id uuid.UUID, reason string) error {
	t, ok := f.byID[id]
	if !ok || t.Status.Terminal() {
		return nil
	}
	t.Status = models.StatusFailed
	t.ErrorReason = reason
	return nil
}

func (f *fakeTransformations) Cancel(_ context.Context, id uuid.UUID) error {
	t, ok := f.byID[id]
	if !ok || t.Status.Terminal() {
		return nil
	}
	t.Status = models.StatusCancelled
	t.ErrorReason = "cancelled"
	return nil
}

type fakePresets struct {
	byID map[uuid.UUID]*models.Preset
}

func newFakePresets() *fakePresets {
	return &fakePresets{byID: make(map[uuid.UUID]*models.Preset)}
}

func (f *fakePresets) Create(_ context.Context, p *models.Preset) error {
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}

func (f *fakePresets) Get(_ context.Context, subject models.Subject, id uuid.UUID) (*models.Preset, error) {
	p, ok := f.byID[id]
	if !ok || p.WorkspaceID != subject.WorkspaceID || (!p.IsShared && p.UserID != subject.UserID) {
		return nil, errs.New(errs.NotFound, "preset not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakePresets) ListAccessible(_ context.Context, subject models.Subject) ([]models.Preset, error) {
	out := make([]models.Preset, 0)
	for _, p := range f.byID {
		if p.WorkspaceID == subject.WorkspaceID && (p.IsShared || p.UserID == subject.UserID) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePresets) Update(_ context.Context, subject models.Subject, p *models.Preset) error {
	existing, ok := f.byID[p.ID]
	if !ok || existing.WorkspaceID != subject.WorkspaceID {
		return errs.New(errs.NotFound, "preset not found")
	}
	if existing.UserID != subject.UserID {
		return errs.New(errs.Forbidden, "only the preset owner may update it")
	}
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}

func (f *fakePresets) Delete(_ context.Context, subject models.Subject, id uuid.UUID) error {
	existing, ok := f.byID[id]
	if !ok || existing.WorkspaceID != subject.WorkspaceID {
		return errs.New(errs.NotFound, "preset not found")
	}
	if existing.UserID != subject.UserID {
		return errs.New(errs.Forbidden, "only the preset owner may delete it")
	}
	delete(f.byID, id)
	return nil
}

func (f *fakePresets) IncrementUsage(_ context.Context, id uuid.UUID) error {
	if p, ok := f.byID[id]; ok {
		p.UsageCount++
	}
	return nil
}

type fakeQueue struct {
	enqueued []*models.QueuedTask
	// cancelRemoved controls Cancel's "was it still unclaimed" answer.
	cancelRemoved bool
	flagged       map[uuid.UUID]bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{cancelRemoved: true, flagged: make(map[uuid.UUID]bool)}
}

func (f *fakeQueue) Enqueue(_ context.Context, task *models.QueuedTask) error {
	f.enqueued = append(f.enqueued, task)
	return nil
}

func (f *fakeQueue) Claim(context.Context, string, time.Duration) (*models.QueuedTask, error) {
	return nil, nil
}

func (f *fakeQueue) Ack(context.Context, uuid.UUID, string) error { return nil }

func (f *fakeQueue) Nack(context.Context, uuid.UUID, string, string) (bool, error) {
	return false, nil
}

func (f *fakeQueue) Cancel(_ context.Context, taskID uuid.UUID) (bool, error) {
	if !f.cancelRemoved {
		f.flagged[taskID] = true
	}
	return f.cancelRemoved, nil
}

func (f *fakeQueue) CancelRequested(_ context.Context, taskID uuid.UUID) (bool, error) {
	return f.flagged[taskID], nil
}

type publishedEvent struct {
	topic   string
	kind    bus.EventKind
	payload map[string]any
}

type fakePublisher struct {
	events []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, topic string, kind bus.EventKind, payload map[string]any) error {
	f.events = append(f.events, publishedEvent{topic: topic, kind: kind, payload: payload})
	return nil
}
