package service

import (
	"context"
	"fmt"

	"portal/internal/metrics"
	"portal/internal/model"
	"portal/internal/policy"
	"portal/internal/repository"

	"github.com/rs/zerolog"
)

// PhaseService reads and toggles the global workflow phase.
type PhaseService interface {
	// Current returns the phase in force. A store that was never written
	// reports PhaseOne.
	Current(ctx context.Context) (policy.Phase, error)
	// Set switches the phase. Only superusers may call it.
	Set(ctx context.Context, actor policy.Actor, phase policy.Phase) (*model.PhaseState, error)
}

type phaseService struct {
	repo    repository.PhaseRepository
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewPhaseService(repo repository.PhaseRepository, m *metrics.Metrics, logger zerolog.Logger) PhaseService {
	return &phaseService{
		repo:    repo,
		metrics: m,
		logger:  logger.With().Str("service", "PhaseService").Logger(),
	}
}

func (s *phaseService) Current(ctx context.Context) (policy.Phase, error) {
	state, err := s.repo.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read phase: %w", err)
	}
	if state == nil || state.IsPhaseOne {
		return policy.PhaseOne, nil
	}
	return policy.PhaseTwo, nil
}

func (s *phaseService) Set(ctx context.Context, actor policy.Actor, phase policy.Phase) (*model.PhaseState, error) {
	if actor.Role != policy.RoleSuperuser {
		return nil, fmt.Errorf("%w: only superusers may change the phase", ErrForbidden)
	}
	if phase != policy.PhaseOne && phase != policy.PhaseTwo {
		return nil, invalid("phase", "unknown phase %v", phase)
	}
	state, err := s.repo.Set(ctx, phase == policy.PhaseOne)
	if err != nil {
		return nil, fmt.Errorf("failed to set phase: %w", err)
	}
	s.metrics.SetPhaseOne(state.IsPhaseOne)
	s.logger.Info().
		Str("actor_id", actor.UserID).
		Str("phase", phase.String()).
		Msg("Phase changed")
	return state, nil
}
