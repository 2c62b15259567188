package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a mutation targets a row that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateField is returned when a user already holds a file for the field.
	ErrDuplicateField = errors.New("duplicate_field")
	// ErrQuotaExceeded is returned when an insert would push a user over their allowance.
	ErrQuotaExceeded = errors.New("quota_exceeded")
	// ErrUsernameTaken is returned when creating a user whose username exists.
	ErrUsernameTaken = errors.New("username_taken")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
