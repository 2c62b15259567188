package model

import (
	"math"
	"time"

	"portal/internal/policy"
)

// UserType is the profile classification of a non-superuser account.
type UserType string

const (
	UserTypeNormal       UserType = "normal"
	UserTypeFieldManager UserType = "field_manager"
)

// DefaultAllowedStorage is the quota given to a profile when none is set (50 GiB).
const DefaultAllowedStorage int64 = 50 * GiB

// GiB is one gibibyte in bytes.
const GiB int64 = 1024 * 1024 * 1024

// MaxAllowedStorageGB is the largest allowance in GiB whose byte count fits
// in an int64.
const MaxAllowedStorageGB int64 = math.MaxInt64 / GiB

// User represents an account in the system
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsSuperuser  bool      `db:"is_superuser" json:"is_superuser"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Profile holds the per-user role, classification and storage allowance.
// Field is set if and only if UserType is UserTypeFieldManager.
type Profile struct {
	UserID         string    `db:"user_id" json:"user_id"`
	UserType       UserType  `db:"user_type" json:"user_type"`
	Region         string    `db:"region" json:"region"`
	Field          *string   `db:"field" json:"field,omitempty"`
	AllowedStorage int64     `db:"allowed_storage" json:"allowed_storage"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// UserWithProfile joins a user with its profile. Profile is nil for
// superusers created without one.
type UserWithProfile struct {
	User
	Profile *Profile
}

// Actor maps the account to the role used by the access policy.
func (u *UserWithProfile) Actor() policy.Actor {
	a := policy.Actor{UserID: u.ID, Username: u.Username, Role: policy.RoleNormal}
	switch {
	case u.IsSuperuser:
		a.Role = policy.RoleSuperuser
	case u.Profile != nil && u.Profile.UserType == UserTypeFieldManager:
		a.Role = policy.RoleFieldManager
		if u.Profile.Field != nil {
			a.Field = *u.Profile.Field
		}
	}
	return a
}

// UserStorage is a row of the admin overview: an account, its profile and
// the bytes currently consumed by its files.
type UserStorage struct {
	UserWithProfile
	UsedStorage int64
	Files       []UploadedFile
}
