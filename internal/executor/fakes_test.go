package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagemorph/pagemorph/internal/bus"
	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
	"github.com/pagemorph/pagemorph/internal/provider"
	"github.com/pagemorph/pagemorph/internal/repository"
)

// memQueue implements repository.TaskQueue with the same claim/backoff
// semantics as the Postgres-backed queue, minus durability.
type memQueue struct {
	mu          sync.Mutex
	tasks       map[uuid.UUID]*models.QueuedTask
	maxAttempts int
	backoffBase time.Duration
}

func newMemQueue(maxAttempts int) *memQueue {
	return &memQueue{
		tasks:       make(map[uuid.UUID]*models.QueuedTask),
		maxAttempts: maxAttempts,
		backoffBase: time.Millisecond,
	}
}

func (q *memQueue) Enqueue(_ context.Context, task *models.QueuedTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *task
	q.tasks[task.ID] = &cp
	return nil
}

func (q *memQueue) Claim(_ context.Context, workerID string, lease time.Duration) (*models.QueuedTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var best *models.QueuedTask
	for _, t := range q.tasks {
		expired := t.ClaimExpiresAt != nil && t.ClaimExpiresAt.Before(now)
		if (t.ClaimOwner == "" || expired) && !t.NotBefore.After(now) {
			if best == nil || t.NotBefore.Before(best.NotBefore) {
				best = t
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	best.ClaimOwner = workerID
	exp := now.Add(lease)
	best.ClaimExpiresAt = &exp
	best.Attempts++
	cp := *best
	return &cp, nil
}

func (q *memQueue) Ack(_ context.Context, taskID uuid.UUID, workerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok || t.ClaimOwner != workerID {
		return errs.New(errs.Conflict, "claim no longer held")
	}
	delete(q.tasks, taskID)
	return nil
}

func (q *memQueue) Nack(_ context.Context, taskID uuid.UUID, workerID string, _ string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok || t.ClaimOwner != workerID {
		return false, errs.New(errs.Conflict, "claim no longer held")
	}
	if t.Attempts >= q.maxAttempts {
		return true, nil
	}
	t.NotBefore = time.Now().Add(q.backoffBase << t.Attempts)
	t.ClaimOwner = ""
	t.ClaimExpiresAt = nil
	return false, nil
}

func (q *memQueue) Cancel(_ context.Context, taskID uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	if !ok {
		return false, nil
	}
	if t.ClaimOwner == "" {
		delete(q.tasks, taskID)
		return true, nil
	}
	t.CancelRequested = true
	return false, nil
}

func (q *memQueue) CancelRequested(_ context.Context, taskID uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.tasks[taskID]
	return ok && t.CancelRequested, nil
}

func (q *memQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type memRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Transformation
}

func newMemRepo() *memRepo {
	return &memRepo{byID: make(map[uuid.UUID]*models.Transformation)}
}

func (r *memRepo) Create(_ context.Context, t *models.Transformation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.byID[t.ID] = &cp
	return nil
}

func (r *memRepo) Get(_ context.Context, subject models.Subject, id uuid.UUID) (*models.Transformation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.WorkspaceID != subject.WorkspaceID {
		return nil, errs.New(errs.NotFound, "transformation not found")
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) List(context.Context, models.Subject, repository.TransformationFilter) ([]models.Transformation, int, error) {
	return nil, 0, nil
}

func (r *memRepo) ListByDocument(context.Context, models.Subject, uuid.UUID) ([]models.Transformation, error) {
	return nil, nil
}

func (r *memRepo) GetForWork(_ context.Context, id uuid.UUID) (*models.Transformation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "transformation not found")
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) MarkRunning(_ context.Context, id uuid.UUID, attempts int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || (t.Status != models.StatusPending && t.Status != models.StatusRunning) {
		return false, nil
	}
	t.Status = models.StatusRunning
	t.Attempts = attempts
	return true, nil
}

func (r *memRepo) Complete(_ context.Context, id uuid.UUID, result, providerName string, tokensUsed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.Status != models.StatusRunning {
		return errs.New(errs.Conflict, "transformation not running")
	}
	t.Status = models.StatusCompleted
	t.Result = result
	t.ProviderUsed = providerName
	t.TokensUsed = tokensUsed
	return nil
}

func (r *memRepo) Fail(_ context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.Status.Terminal() {
		return nil
	}
	t.Status = models.StatusFailed
	t.ErrorReason = reason
	return nil
}

func (r *memRepo) Cancel(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok || t.Status.Terminal() {
		return nil
	}
	t.Status = models.StatusCancelled
	t.ErrorReason = "cancelled"
	return nil
}

func (r *memRepo) get(id uuid.UUID) *models.Transformation {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.byID[id]
	return &cp
}

type memDocs struct {
	byID map[uuid.UUID]*models.Document
}

func newMemDocs() *memDocs {
	return &memDocs{byID: make(map[uuid.UUID]*models.Document)}
}

func (d *memDocs) Create(_ context.Context, doc *models.Document) error {
	cp := *doc
	d.byID[doc.ID] = &cp
	return nil
}

func (d *memDocs) Get(_ context.Context, subject models.Subject, id uuid.UUID) (*models.Document, error) {
	doc, ok := d.byID[id]
	if !ok || doc.WorkspaceID != subject.WorkspaceID {
		return nil, errs.New(errs.NotFound, "document not found")
	}
	cp := *doc
	return &cp, nil
}

func (d *memDocs) List(context.Context, models.Subject) ([]models.Document, error) { return nil, nil }

func (d *memDocs) SoftDelete(context.Context, models.Subject, uuid.UUID) error { return nil }

func (d *memDocs) UpdateExtraction(context.Context, uuid.UUID, models.DocumentStatus, string) error {
	return nil
}

type recordedEvent struct {
	topic   string
	kind    bus.EventKind
	payload map[string]any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, kind bus.EventKind, payload map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{topic: topic, kind: kind, payload: payload})
	return nil
}

func (p *recordingPublisher) kinds() []bus.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bus.EventKind, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.kind)
	}
	return out
}

// scriptedProvider returns its scripted errors in order, then succeeds.
type scriptedProvider struct {
	name    string
	script  []error
	calls   int
	content string
}

func (p *scriptedProvider) Name() string                            { return p.name }
func (p *scriptedProvider) Supports(models.TransformationKind) bool { return true }

func (p *scriptedProvider) Invoke(_ context.Context, _ provider.Request) (*provider.Response, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.script) && p.script[idx] != nil {
		return nil, p.script[idx]
	}
	content := p.content
	if content == "" {
		content = "generated by " + p.name
	}
	return &provider.Response{Content: content, Model: p.name + "-1", TokensIn: 10, TokensOut: 20}, nil
}
