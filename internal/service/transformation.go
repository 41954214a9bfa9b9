package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/bus"
	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/executor"
	"github.com/pagemorph/pagemorph/internal/models"
	"github.com/pagemorph/pagemorph/internal/repository"
)

// TransformationService is the HTTP-facing orchestration:
// validate → persist → enqueue → notify.
type TransformationService struct {
	transformations repository.TransformationRepository
	documents       repository.DocumentRepository
	presets         repository.PresetRepository
	resolver        *PresetResolver
	queue           repository.TaskQueue
	publisher       bus.Publisher
	logger          *zap.Logger
}

func NewTransformationService(
	transformations repository.TransformationRepository,
	documents repository.DocumentRepository,
	presets repository.PresetRepository,
	resolver *PresetResolver,
	queue repository.TaskQueue,
	publisher bus.Publisher,
	logger *zap.Logger,
) *TransformationService {
	return &TransformationService{
		transformations: transformations,
		documents:       documents,
		presets:         presets,
		resolver:        resolver,
		queue:           queue,
		publisher:       publisher,
		logger:          logger,
	}
}

type CreateTransformationInput struct {
	DocumentID *uuid.UUID
	Kind       models.TransformationKind
	Parameters map[string]any
	PresetID   *uuid.UUID
}

func (s *TransformationService) Create(ctx context.Context, subject models.Subject, input CreateTransformationInput) (*models.Transformation, error) {
	if input.DocumentID != nil {
		// Ownership check; a foreign document id 404s here.
		if _, err := s.documents.Get(ctx, subject, *input.DocumentID); err != nil {
			return nil, err
		}
	}

	params, err := s.resolver.Resolve(ctx, subject, input.PresetID, input.Kind, input.Parameters)
	if err != nil {
		return nil, err
	}
	if err := ValidateParameters(input.Kind, params); err != nil {
		return nil, err
	}

	t := &models.Transformation{
		ID:          uuid.New(),
		WorkspaceID: subject.WorkspaceID,
		UserID:      subject.UserID,
		DocumentID:  input.DocumentID,
		Kind:        input.Kind,
		Parameters:  params,
		Status:      models.StatusPending,
	}
	if err := s.transformations.Create(ctx, t); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(executor.TaskPayload{
		TransformationID: t.ID,
		Kind:             t.Kind,
		Parameters:       params,
		DocumentID:       input.DocumentID,
	})
	if err != nil {
		return nil, errs.Wrap(errs.Fatal, "encode task payload", err)
	}

	task := &models.QueuedTask{
		ID:          t.ID,
		WorkspaceID: subject.WorkspaceID,
		NotBefore:   time.Now().UTC(),
		Payload:     payload,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		// The row stays pending but unqueued; surface the failure rather
		// than pretend the job will run.
		return nil, err
	}

	// Usage counts once per successful enqueue, never per retry.
	if input.PresetID != nil {
		if err := s.presets.IncrementUsage(ctx, *input.PresetID); err != nil {
			s.logger.Warn("preset usage increment failed",
				zap.String("preset_id", input.PresetID.String()), zap.Error(err))
		}
	}

	if err := s.publisher.Publish(ctx, bus.WorkspaceTopic(subject.WorkspaceID), bus.EventTransformationStarted, map[string]any{
		"id":           t.ID.String(),
		"kind":         string(t.Kind),
		"workspace_id": subject.WorkspaceID.String(),
	}); err != nil {
		s.logger.Warn("started event publish failed",
			zap.String("transformation_id", t.ID.String()), zap.Error(err))
	}

	return t, nil
}

func (s *TransformationService) Get(ctx context.Context, subject models.Subject, id uuid.UUID) (*models.Transformation, error) {
	return s.transformations.Get(ctx, subject, id)
}

func (s *TransformationService) List(ctx context.Context, subject models.Subject, filter repository.TransformationFilter) ([]models.Transformation, int, error) {
	return s.transformations.List(ctx, subject, filter)
}

func (s *TransformationService) ListByDocument(ctx context.Context, subject models.Subject, documentID uuid.UUID) ([]models.Transformation, error) {
	return s.transformations.ListByDocument(ctx, subject, documentID)
}

// Cancel requests cooperative cancellation. An unclaimed task is
// cancelled immediately here; a claimed one is flagged and the claim
// holder finishes the job as cancelled between provider attempts.
func (s *TransformationService) Cancel(ctx context.Context, subject models.Subject, id uuid.UUID) error {
	t, err := s.transformations.Get(ctx, subject, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return errs.New(errs.Conflict, "transformation already finished")
	}

	removed, err := s.queue.Cancel(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	if err := s.transformations.Cancel(ctx, id); err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, bus.WorkspaceTopic(subject.WorkspaceID), bus.EventTransformationFailed, map[string]any{
		"id":           id.String(),
		"kind":         string(t.Kind),
		"workspace_id": subject.WorkspaceID.String(),
		"reason":       "cancelled",
	}); err != nil {
		s.logger.Warn("cancelled event publish failed",
			zap.String("transformation_id", id.String()), zap.Error(err))
	}
	return nil
}
