package service

import (
	"context"
	"testing"

	"portal/internal/model"
	"portal/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	phase, err := h.phases.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, policy.PhaseOne, phase, "unset phase defaults to one")

	alice := h.addUser(t, "alice", model.UserTypeNormal, "north", "", model.GiB)
	_, err = h.phases.Set(ctx, alice, policy.PhaseTwo)
	assert.ErrorIs(t, err, ErrForbidden)

	state, err := h.phases.Set(ctx, h.admin, policy.PhaseTwo)
	require.NoError(t, err)
	assert.False(t, state.IsPhaseOne)

	phase, err = h.phases.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, policy.PhaseTwo, phase)

	var verr *ValidationError
	_, err = h.phases.Set(ctx, h.admin, policy.Phase(7))
	assert.ErrorAs(t, err, &verr)
}
