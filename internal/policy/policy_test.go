package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	normal  = Actor{UserID: "u-normal", Role: RoleNormal}
	manager = Actor{UserID: "u-manager", Role: RoleFieldManager, Field: "coding"}
	admin   = Actor{UserID: "u-admin", Role: RoleSuperuser}

	normalOwnCoding  = Target{OwnerID: "u-normal", Field: "coding"}
	managerOwnCoding = Target{OwnerID: "u-manager", Field: "coding"}
	otherCoding      = Target{OwnerID: "u-other", Field: "coding"}
	otherDesign      = Target{OwnerID: "u-other", Field: "design"}
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name   string
		actor  Actor
		op     Operation
		target Target
		phase  Phase
		allow  bool
	}{
		// superuser
		{"superuser cannot upload", admin, OpUpload, Target{OwnerID: "u-admin", Field: "coding"}, PhaseOne, false},
		{"superuser views others phase one", admin, OpView, otherCoding, PhaseOne, true},
		{"superuser deletes others phase two", admin, OpDelete, otherDesign, PhaseTwo, true},
		{"superuser downloads any", admin, OpDownload, normalOwnCoding, PhaseTwo, true},
		{"superuser reviews field", admin, OpReviewField, Target{Field: "coding"}, PhaseOne, true},

		// normal
		{"normal uploads phase one", normal, OpUpload, normalOwnCoding, PhaseOne, true},
		{"normal cannot upload phase two", normal, OpUpload, normalOwnCoding, PhaseTwo, false},
		{"normal cannot upload for someone else", normal, OpUpload, otherCoding, PhaseOne, false},
		{"normal views own phase one", normal, OpView, normalOwnCoding, PhaseOne, true},
		{"normal views own phase two", normal, OpView, normalOwnCoding, PhaseTwo, true},
		{"normal never views others", normal, OpView, otherCoding, PhaseTwo, false},
		{"normal deletes own phase one", normal, OpDelete, normalOwnCoding, PhaseOne, true},
		{"normal cannot delete own phase two", normal, OpDelete, normalOwnCoding, PhaseTwo, false},
		{"normal never deletes others", normal, OpDelete, otherCoding, PhaseOne, false},
		{"normal downloads own", normal, OpDownload, normalOwnCoding, PhaseTwo, true},
		{"normal cannot download others", normal, OpDownload, otherCoding, PhaseOne, false},
		{"normal cannot review", normal, OpReviewField, Target{Field: "coding"}, PhaseTwo, false},

		// field manager, phase one
		{"manager uploads own field phase one", manager, OpUpload, managerOwnCoding, PhaseOne, true},
		{"manager cannot upload other field", manager, OpUpload, Target{OwnerID: "u-manager", Field: "design"}, PhaseOne, false},
		{"manager views own phase one", manager, OpView, managerOwnCoding, PhaseOne, true},
		{"manager cannot view in-field others phase one", manager, OpView, otherCoding, PhaseOne, false},
		{"manager deletes own phase one", manager, OpDelete, managerOwnCoding, PhaseOne, true},
		{"manager cannot delete others phase one", manager, OpDelete, otherCoding, PhaseOne, false},
		{"manager cannot review phase one", manager, OpReviewField, Target{Field: "coding"}, PhaseOne, false},

		// field manager, phase two
		{"manager cannot upload phase two", manager, OpUpload, managerOwnCoding, PhaseTwo, false},
		{"manager still views own phase two", manager, OpView, managerOwnCoding, PhaseTwo, true},
		{"manager views in-field others phase two", manager, OpView, otherCoding, PhaseTwo, true},
		{"manager downloads in-field others phase two", manager, OpDownload, otherCoding, PhaseTwo, true},
		{"manager cannot view other field", manager, OpView, otherDesign, PhaseTwo, false},
		{"manager cannot delete own phase two", manager, OpDelete, managerOwnCoding, PhaseTwo, false},
		{"manager deletes in-field others phase two", manager, OpDelete, otherCoding, PhaseTwo, true},
		{"manager cannot delete other field", manager, OpDelete, otherDesign, PhaseTwo, false},
		{"manager reviews own field phase two", manager, OpReviewField, Target{Field: "coding"}, PhaseTwo, true},
		{"manager cannot review other field", manager, OpReviewField, Target{Field: "design"}, PhaseTwo, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.actor, tt.op, tt.target, tt.phase)
			if tt.allow {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrDenied)
			}
		})
	}
}

func TestAuthorize_DownloadNeverExceedsView(t *testing.T) {
	actors := []Actor{normal, manager, admin}
	targets := []Target{normalOwnCoding, managerOwnCoding, otherCoding, otherDesign}
	for _, a := range actors {
		for _, tg := range targets {
			for _, ph := range []Phase{PhaseOne, PhaseTwo} {
				viewErr := Authorize(a, OpView, tg, ph)
				dlErr := Authorize(a, OpDownload, tg, ph)
				assert.Equal(t, viewErr == nil, dlErr == nil, "actor=%s target=%+v phase=%s", a.Role, tg, ph)
			}
		}
	}
}

func TestAuthorize_UnknownRoleOrPhase(t *testing.T) {
	err := Authorize(Actor{UserID: "x"}, OpView, Target{OwnerID: "x"}, PhaseOne)
	require.ErrorIs(t, err, ErrDenied)

	err = Authorize(admin, OpView, otherCoding, Phase(0))
	require.ErrorIs(t, err, ErrDenied)
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("two")
	require.NoError(t, err)
	assert.Equal(t, PhaseTwo, p)

	p, err = ParsePhase("1")
	require.NoError(t, err)
	assert.Equal(t, PhaseOne, p)

	_, err = ParsePhase("three")
	assert.Error(t, err)
}
