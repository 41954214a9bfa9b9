package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
	"github.com/pagemorph/pagemorph/internal/repository"
)

// MergeParameters merges preset-stored parameters with request
// overrides. The merge is shallow: override keys win wholesale, nested
// maps are replaced, not merged. Empty overrides yield the preset
// parameters unchanged.
func MergeParameters(preset, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(preset)+len(overrides))
	for k, v := range preset {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// PresetResolver yields the effective parameter map for a request.
type PresetResolver struct {
	presets repository.PresetRepository
}

func NewPresetResolver(presets repository.PresetRepository) *PresetResolver {
	return &PresetResolver{presets: presets}
}

// Resolve loads the preset (if any), enforcing accessibility, and merges
// the request parameters over it. It also checks that the preset's kind
// matches the requested kind. Usage counting happens at enqueue time,
// not here.
func (r *PresetResolver) Resolve(ctx context.Context, subject models.Subject, presetID *uuid.UUID, kind models.TransformationKind, requestParams map[string]any) (map[string]any, error) {
	if requestParams == nil {
		requestParams = map[string]any{}
	}
	if presetID == nil {
		return requestParams, nil
	}

	preset, err := r.presets.Get(ctx, subject, *presetID)
	if err != nil {
		return nil, err
	}
	if preset.Kind != kind {
		return nil, errs.New(errs.InvalidInput, "preset kind does not match transformation kind")
	}
	return MergeParameters(preset.Parameters, requestParams), nil
}

// PresetService is the CRUD surface behind the preset endpoints.
type PresetService struct {
	presets repository.PresetRepository
	logger  *zap.Logger
}

func NewPresetService(presets repository.PresetRepository, logger *zap.Logger) *PresetService {
	return &PresetService{presets: presets, logger: logger}
}

type PresetCreateInput struct {
	Name        string
	Description string
	Kind        models.TransformationKind
	Parameters  map[string]any
	IsShared    bool
}

func (s *PresetService) Create(ctx context.Context, subject models.Subject, input PresetCreateInput) (*models.Preset, error) {
	if input.Name == "" {
		return nil, errs.New(errs.InvalidInput, "name is required")
	}
	if err := ValidateParameters(input.Kind, input.Parameters); err != nil {
		return nil, err
	}

	preset := &models.Preset{
		ID:          uuid.New(),
		WorkspaceID: subject.WorkspaceID,
		UserID:      subject.UserID,
		Name:        input.Name,
		Description: input.Description,
		Kind:        input.Kind,
		Parameters:  input.Parameters,
		IsShared:    input.IsShared,
	}
	if err := s.presets.Create(ctx, preset); err != nil {
		return nil, err
	}
	return preset, nil
}

type PresetUpdateInput struct {
	Name        *string
	Description *string
	Parameters  map[string]any
	IsShared    *bool
}

func (s *PresetService) Update(ctx context.Context, subject models.Subject, id uuid.UUID, input PresetUpdateInput) (*models.Preset, error) {
	preset, err := s.presets.Get(ctx, subject, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if *input.Name == "" {
			return nil, errs.New(errs.InvalidInput, "name must not be empty")
		}
		preset.Name = *input.Name
	}
	if input.Description != nil {
		preset.Description = *input.Description
	}
	if input.Parameters != nil {
		if err := ValidateParameters(preset.Kind, input.Parameters); err != nil {
			return nil, err
		}
		preset.Parameters = input.Parameters
	}
	if input.IsShared != nil {
		preset.IsShared = *input.IsShared
	}

	if err := s.presets.Update(ctx, subject, preset); err != nil {
		return nil, err
	}
	return preset, nil
}

func (s *PresetService) Delete(ctx context.Context, subject models.Subject, id uuid.UUID) error {
	return s.presets.Delete(ctx, subject, id)
}

func (s *PresetService) List(ctx context.Context, subject models.Subject) ([]models.Preset, error) {
	return s.presets.ListAccessible(ctx, subject)
}
