// Package policy decides who may upload, view, delete or download which
// submission, given the actor's role, the global workflow phase and the
// ownership/field of the target file. It holds no state and performs no I/O.
package policy

import (
	"errors"
	"fmt"
)

// ErrDenied is returned by Authorize when the operation is not permitted.
var ErrDenied = errors.New("operation not permitted")

// Role is the closed set of actor roles.
type Role int

const (
	RoleNormal Role = iota + 1
	RoleFieldManager
	RoleSuperuser
)

func (r Role) String() string {
	switch r {
	case RoleNormal:
		return "normal"
	case RoleFieldManager:
		return "field_manager"
	case RoleSuperuser:
		return "superuser"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Phase is the global workflow state.
type Phase int

const (
	// PhaseOne is the submission window.
	PhaseOne Phase = iota + 1
	// PhaseTwo freezes submissions and opens field review.
	PhaseTwo
)

func (p Phase) String() string {
	switch p {
	case PhaseOne:
		return "one"
	case PhaseTwo:
		return "two"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ParsePhase accepts "one"/"two" (and "1"/"2").
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "one", "1":
		return PhaseOne, nil
	case "two", "2":
		return PhaseTwo, nil
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// Operation is an action an actor attempts on a submission.
type Operation int

const (
	OpUpload Operation = iota + 1
	OpView
	OpDownload
	OpDelete
	// OpReviewField lists every submission of a field.
	OpReviewField
)

func (o Operation) String() string {
	switch o {
	case OpUpload:
		return "upload"
	case OpView:
		return "view"
	case OpDownload:
		return "download"
	case OpDelete:
		return "delete"
	case OpReviewField:
		return "review_field"
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// Actor is the authenticated caller. Field is only set for field managers.
type Actor struct {
	UserID   string
	Username string
	Role     Role
	Field    string
}

// Target describes the submission an operation applies to. For OpUpload,
// OwnerID is the uploader and Field the field being submitted to. For
// OpReviewField only Field is used.
type Target struct {
	OwnerID string
	Field   string
}

func (a Actor) owns(t Target) bool {
	return a.UserID != "" && a.UserID == t.OwnerID
}

func (a Actor) reviews(t Target) bool {
	return a.Field != "" && a.Field == t.Field
}

// Authorize returns nil when actor may perform op on target in the given
// phase, and an error wrapping ErrDenied otherwise.
func Authorize(actor Actor, op Operation, target Target, phase Phase) error {
	if phase != PhaseOne && phase != PhaseTwo {
		return fmt.Errorf("%w: unknown phase %v", ErrDenied, phase)
	}
	// Download is a read and never differs from view.
	if op == OpDownload {
		op = OpView
	}

	var ok bool
	switch actor.Role {
	case RoleSuperuser:
		ok = op != OpUpload
	case RoleNormal:
		ok = authorizeNormal(actor, op, target, phase)
	case RoleFieldManager:
		ok = authorizeFieldManager(actor, op, target, phase)
	default:
		return fmt.Errorf("%w: unknown role %v", ErrDenied, actor.Role)
	}
	if !ok {
		return fmt.Errorf("%w: %s may not %s in phase %s", ErrDenied, actor.Role, op, phase)
	}
	return nil
}

func authorizeNormal(actor Actor, op Operation, target Target, phase Phase) bool {
	switch op {
	case OpUpload:
		return phase == PhaseOne && actor.owns(target)
	case OpView:
		return actor.owns(target)
	case OpDelete:
		return phase == PhaseOne && actor.owns(target)
	case OpReviewField:
		return false
	}
	return false
}

func authorizeFieldManager(actor Actor, op Operation, target Target, phase Phase) bool {
	switch op {
	case OpUpload:
		return phase == PhaseOne && actor.owns(target) && actor.reviews(target)
	case OpView:
		if actor.owns(target) {
			return true
		}
		return phase == PhaseTwo && actor.reviews(target)
	case OpDelete:
		if actor.owns(target) {
			return phase == PhaseOne
		}
		return phase == PhaseTwo && actor.reviews(target)
	case OpReviewField:
		return phase == PhaseTwo && actor.reviews(target)
	}
	return false
}
