package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"portal/internal/model"
)

// PhaseRepository reads and writes the singleton workflow switch.
type PhaseRepository interface {
	// Get returns nil when no phase has ever been set.
	Get(ctx context.Context) (*model.PhaseState, error)
	Set(ctx context.Context, isPhaseOne bool) (*model.PhaseState, error)
}

type phaseRepository struct {
	db *sql.DB
}

func NewPhaseRepository(db *sql.DB) PhaseRepository {
	return &phaseRepository{db: db}
}

func (r *phaseRepository) Get(ctx context.Context) (*model.PhaseState, error) {
	var s model.PhaseState
	err := r.db.QueryRowContext(ctx, `SELECT is_phase_one, updated_at FROM phase_state WHERE id = 1`).
		Scan(&s.IsPhaseOne, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read phase: %w", err)
	}
	return &s, nil
}

// Set upserts the only row of phase_state; the table's CHECK (id = 1) keeps
// it a singleton.
func (r *phaseRepository) Set(ctx context.Context, isPhaseOne bool) (*model.PhaseState, error) {
	query := `
		INSERT INTO phase_state (id, is_phase_one, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET is_phase_one = EXCLUDED.is_phase_one, updated_at = EXCLUDED.updated_at
		RETURNING is_phase_one, updated_at
	`
	var s model.PhaseState
	if err := r.db.QueryRowContext(ctx, query, isPhaseOne).Scan(&s.IsPhaseOne, &s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to set phase: %w", err)
	}
	return &s, nil
}
