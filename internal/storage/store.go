// Package storage wraps the object store that holds submission bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the subset of object storage the portal relies on.
type ObjectStore interface {
	// Put stores r under key and returns the size the store reports for it.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (int64, error)
	// Stat returns the stored size of key.
	Stat(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

const keyPrefix = "uploads"

// NewKey returns a fresh object key for a submission of userID to field.
// Keys are grouped by owner so ownership can be checked from the key alone.
// ext is the original file extension and is kept only when it looks sane.
func NewKey(userID, field, ext string) string {
	d := time.Now().UTC()
	ext = strings.ToLower(ext)
	if !validExt.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("%s/%s/%s/%04d%02d%02d-%s%s", keyPrefix, userID, field, d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

var validExt = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// KeyBelongsTo reports whether key was issued by NewKey for userID and field.
func KeyBelongsTo(key, userID, field string) bool {
	prefix := fmt.Sprintf("%s/%s/%s/", keyPrefix, userID, field)
	rest, ok := strings.CutPrefix(key, prefix)
	return ok && rest != "" && !strings.Contains(rest, "/") && !strings.Contains(rest, "..")
}
