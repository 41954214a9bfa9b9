// Package executor runs the transformation worker pool: claim a task,
// call providers in failover order, write the terminal state, publish
// lifecycle events.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/bus"
	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
	"github.com/pagemorph/pagemorph/internal/provider"
	"github.com/pagemorph/pagemorph/internal/repository"
)

// TaskPayload is the serialized job input carried by a QueuedTask.
type TaskPayload struct {
	TransformationID uuid.UUID                 `json:"transformation_id"`
	Kind             models.TransformationKind `json:"kind"`
	Parameters       map[string]any            `json:"parameters"`
	DocumentID       *uuid.UUID                `json:"document_id,omitempty"`
}

const resultPreviewRunes = 500

type Options struct {
	Concurrency     int
	ClaimLease      time.Duration
	PollInterval    time.Duration
	ProviderTimeout time.Duration
}

type Executor struct {
	queue     repository.TaskQueue
	repo      repository.TransformationRepository
	documents repository.DocumentRepository
	registry  *provider.Registry
	publisher bus.Publisher
	wake      <-chan struct{}
	opts      Options
	logger    *zap.Logger

	wg sync.WaitGroup
}

func New(
	queue repository.TaskQueue,
	repo repository.TransformationRepository,
	documents repository.DocumentRepository,
	registry *provider.Registry,
	publisher bus.Publisher,
	wake <-chan struct{},
	opts Options,
	logger *zap.Logger,
) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 2 * time.Minute
	}
	return &Executor{
		queue:     queue,
		repo:      repo,
		documents: documents,
		registry:  registry,
		publisher: publisher,
		wake:      wake,
		opts:      opts,
		logger:    logger,
	}
}

// Start launches the worker pool. Workers stop when ctx is cancelled;
// Wait blocks until they have drained.
func (e *Executor) Start(ctx context.Context) {
	for i := 0; i < e.opts.Concurrency; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.NewString()[:8])
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.workerLoop(ctx, workerID)
		}()
	}
	e.logger.Info("executor started", zap.Int("concurrency", e.opts.Concurrency))
}

func (e *Executor) Wait() { e.wg.Wait() }

func (e *Executor) workerLoop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		task, err := e.queue.Claim(ctx, workerID, e.opts.ClaimLease)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("claim failed", zap.String("worker", workerID), zap.Error(err))
		}
		if task != nil {
			e.process(ctx, workerID, task)
			continue
		}

		// Nothing eligible: wait for a wake signal or the next poll tick.
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-ticker.C:
		}
	}
}

func (e *Executor) process(ctx context.Context, workerID string, task *models.QueuedTask) {
	log := e.logger.With(
		zap.String("worker", workerID),
		zap.String("transformation_id", task.ID.String()),
	)

	var payload TaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		log.Error("undecodable task payload, failing job", zap.Error(err))
		e.finishFailed(ctx, workerID, task, nil, "invalid job payload")
		return
	}

	t, err := e.repo.GetForWork(ctx, task.ID)
	if err != nil {
		if errs.IsKind(err, errs.NotFound) {
			// Row gone; nothing to do but drop the task.
			_ = e.queue.Ack(ctx, task.ID, workerID)
			return
		}
		log.Error("load transformation failed", zap.Error(err))
		e.retryOrFail(ctx, workerID, task, t, "load transformation")
		return
	}

	// Idempotency guard: a redelivered task whose job already reached a
	// terminal state is absorbed without side effects.
	if t.Status.Terminal() {
		_ = e.queue.Ack(ctx, task.ID, workerID)
		return
	}

	if cancelled, _ := e.queue.CancelRequested(ctx, task.ID); cancelled {
		e.finishCancelled(ctx, workerID, task, t)
		return
	}

	ok, err := e.repo.MarkRunning(ctx, t.ID, task.Attempts)
	if err != nil {
		log.Error("mark running failed", zap.Error(err))
		e.retryOrFail(ctx, workerID, task, t, "mark running")
		return
	}
	if !ok {
		_ = e.queue.Ack(ctx, task.ID, workerID)
		return
	}

	// First delivery announces the start; retries skip the duplicate.
	if task.Attempts == 1 {
		e.publish(ctx, t, bus.EventTransformationStarted, map[string]any{
			"id":           t.ID.String(),
			"kind":         string(t.Kind),
			"workspace_id": t.WorkspaceID.String(),
		})
	}

	sourceText, err := e.loadSourceText(ctx, t, payload)
	if err != nil {
		log.Error("load document failed", zap.Error(err))
		e.retryOrFail(ctx, workerID, task, t, "load document")
		return
	}

	req := provider.Request{
		Kind:       t.Kind,
		Parameters: payload.Parameters,
		SourceText: sourceText,
	}

	candidates := e.registry.Candidates(t.Kind)
	if len(candidates) == 0 {
		log.Warn("no provider available")
		e.retryOrFail(ctx, workerID, task, t, "no provider available")
		return
	}

	for attempt, p := range candidates {
		// Cooperative cancellation is polled at least once per provider
		// attempt; a flagged task aborts before the next invoke.
		if cancelled, _ := e.queue.CancelRequested(ctx, task.ID); cancelled {
			e.finishCancelled(ctx, workerID, task, t)
			return
		}

		e.publish(ctx, t, bus.EventTransformationProgress, map[string]any{
			"id":           t.ID.String(),
			"workspace_id": t.WorkspaceID.String(),
			"attempt":      task.Attempts,
			"provider":     p.Name(),
			"step":         attempt + 1,
			"of":           len(candidates),
		})

		invokeCtx, cancel := context.WithTimeout(ctx, e.opts.ProviderTimeout)
		resp, err := p.Invoke(invokeCtx, req)
		cancel()

		if err == nil {
			e.registry.RecordSuccess(p.Name(), resp)
			e.finishCompleted(ctx, workerID, task, t, p.Name(), resp)
			return
		}

		e.registry.RecordFailure(p.Name())
		kind := errs.KindOf(err)
		log.Warn("provider attempt failed",
			zap.String("provider", p.Name()),
			zap.String("error_kind", string(kind)),
			zap.Error(err),
		)

		// Deterministic failures will not improve with another provider
		// or another retry.
		if kind != errs.Transient {
			e.finishFailed(ctx, workerID, task, t, "provider rejected request")
			return
		}
	}

	e.retryOrFail(ctx, workerID, task, t, "all providers errored")
}

func (e *Executor) loadSourceText(ctx context.Context, t *models.Transformation, payload TaskPayload) (string, error) {
	docID := payload.DocumentID
	if docID == nil {
		docID = t.DocumentID
	}
	if docID == nil {
		return "", nil
	}
	// The executor reads on behalf of the job's creator; the scoped
	// repository path stays the only document read path.
	subject := models.Subject{UserID: t.UserID, WorkspaceID: t.WorkspaceID}
	doc, err := e.documents.Get(ctx, subject, *docID)
	if err != nil {
		return "", err
	}
	return doc.ExtractedText, nil
}

func (e *Executor) finishCompleted(ctx context.Context, workerID string, task *models.QueuedTask, t *models.Transformation, providerName string, resp *provider.Response) {
	if err := e.repo.Complete(ctx, t.ID, resp.Content, providerName, resp.TotalTokens()); err != nil {
		// A concurrent cancel can beat the completion write; the job is
		// terminal either way, so the task is done.
		e.logger.Warn("complete write lost", zap.String("transformation_id", t.ID.String()), zap.Error(err))
		_ = e.queue.Ack(ctx, task.ID, workerID)
		return
	}
	_ = e.queue.Ack(ctx, task.ID, workerID)

	e.publish(ctx, t, bus.EventTransformationCompleted, map[string]any{
		"id":             t.ID.String(),
		"kind":           string(t.Kind),
		"workspace_id":   t.WorkspaceID.String(),
		"provider_used":  providerName,
		"tokens_used":    resp.TotalTokens(),
		"result_preview": preview(resp.Content),
	})
}

func (e *Executor) finishCancelled(ctx context.Context, workerID string, task *models.QueuedTask, t *models.Transformation) {
	if err := e.repo.Cancel(ctx, t.ID); err != nil {
		e.logger.Error("cancel write failed", zap.Error(err))
	}
	_ = e.queue.Ack(ctx, task.ID, workerID)

	e.publish(ctx, t, bus.EventTransformationFailed, map[string]any{
		"id":           t.ID.String(),
		"kind":         string(t.Kind),
		"workspace_id": t.WorkspaceID.String(),
		"reason":       "cancelled",
	})
}

func (e *Executor) finishFailed(ctx context.Context, workerID string, task *models.QueuedTask, t *models.Transformation, reason string) {
	// task.ID doubles as the transformation id, so the terminal write
	// does not depend on the row having loaded.
	if err := e.repo.Fail(ctx, task.ID, reason); err != nil {
		e.logger.Error("fail write failed", zap.Error(err))
	}
	_ = e.queue.Ack(ctx, task.ID, workerID)

	payload := map[string]any{
		"id":           task.ID.String(),
		"workspace_id": task.WorkspaceID.String(),
		"reason":       reason,
	}
	if t != nil {
		payload["kind"] = string(t.Kind)
	}
	if err := e.publisher.Publish(ctx, bus.WorkspaceTopic(task.WorkspaceID), bus.EventTransformationFailed, payload); err != nil {
		e.logger.Warn("event publish failed",
			zap.String("event", string(bus.EventTransformationFailed)),
			zap.String("transformation_id", task.ID.String()),
			zap.Error(err),
		)
	}
}

// retryOrFail nacks for backoff, or writes the terminal failure once the
// retry budget is spent.
func (e *Executor) retryOrFail(ctx context.Context, workerID string, task *models.QueuedTask, t *models.Transformation, reason string) {
	exhausted, err := e.queue.Nack(ctx, task.ID, workerID, reason)
	if err != nil {
		e.logger.Error("nack failed", zap.String("transformation_id", task.ID.String()), zap.Error(err))
		return
	}
	if exhausted {
		e.finishFailed(ctx, workerID, task, t, "provider_exhausted")
	}
}

func (e *Executor) publish(ctx context.Context, t *models.Transformation, kind bus.EventKind, payload map[string]any) {
	if err := e.publisher.Publish(ctx, bus.WorkspaceTopic(t.WorkspaceID), kind, payload); err != nil {
		e.logger.Warn("event publish failed",
			zap.String("event", string(kind)),
			zap.String("transformation_id", t.ID.String()),
			zap.Error(err),
		)
	}
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= resultPreviewRunes {
		return s
	}
	return string(runes[:resultPreviewRunes]) + "…"
}
