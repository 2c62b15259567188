package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"portal/internal/metrics"
	"portal/internal/model"
	"portal/internal/policy"
	"portal/internal/repository"
	"portal/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxTitleLength     = 255
	defaultContentType = "application/octet-stream"
	defaultExtension   = ".bin"
)

// FileService implements the submission lifecycle: upload, listing, review,
// download and deletion, each gated by the access policy.
type FileService interface {
	ListOwn(ctx context.Context, actor policy.Actor) (*OwnFiles, error)
	// Upload streams in.Body to the store and records it. Bytes that reached
	// the store are removed again when the record is rejected.
	Upload(ctx context.Context, actor policy.Actor, in UploadInput) (*model.UploadedFile, error)
	// InitiateUpload runs every upload check against the declared size and
	// returns a presigned PUT URL for a fresh key.
	InitiateUpload(ctx context.Context, actor policy.Actor, in InitiateUploadInput) (*UploadTicket, error)
	// CompleteUpload records an object uploaded through a ticket, using the
	// size reported by the store.
	CompleteUpload(ctx context.Context, actor policy.Actor, in CompleteUploadInput) (*model.UploadedFile, error)
	Get(ctx context.Context, actor policy.Actor, fileID string) (*model.UploadedFile, error)
	// Delete removes the record. A store failure does not abort it and is
	// reported as a warning.
	Delete(ctx context.Context, actor policy.Actor, fileID string) (*DeleteResult, error)
	DownloadURL(ctx context.Context, actor policy.Actor, fileID string) (string, *model.UploadedFile, error)
	OpenContent(ctx context.Context, actor policy.Actor, fileID string) (*FileContent, error)
	// ReviewField lists every submission to field. Field managers may leave
	// field empty to mean their own.
	ReviewField(ctx context.Context, actor policy.Actor, field, region string) ([]model.ReviewFile, error)
}

type UploadInput struct {
	Field       string
	Title       string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type InitiateUploadInput struct {
	Field    string
	Title    string
	Filename string
	Size     int64
}

type CompleteUploadInput struct {
	Field       string
	Title       string
	StorageKey  string
	ContentType string
}

type UploadTicket struct {
	StorageKey string
	UploadURL  string
	ExpiresAt  time.Time
}

// OwnFiles is the caller's submissions together with their quota usage.
type OwnFiles struct {
	Files          []model.UploadedFile
	UsedStorage    int64
	AllowedStorage int64
	PercentageUsed float64
}

type DeleteResult struct {
	Warnings []string
}

// FileContent is an open download. The caller must close Body.
type FileContent struct {
	File        *model.UploadedFile
	Filename    string
	ContentType string
	Body        io.ReadCloser
}

type fileService struct {
	files          repository.FileRepository
	users          repository.UserRepository
	phases         PhaseService
	store          storage.ObjectStore
	events         EventSink
	janitor        *janitor
	presignExpiry  time.Duration
	maxUploadBytes int64
	metrics        *metrics.Metrics
	fileLogger     zerolog.Logger
}

// NewFileService creates a new FileService. maxUploadBytes <= 0 disables
// the per-file size cap; the quota still applies.
func NewFileService(
	files repository.FileRepository,
	users repository.UserRepository,
	phases PhaseService,
	store storage.ObjectStore,
	cleanup CleanupQueue,
	events EventSink,
	presignExpiry time.Duration,
	maxUploadBytes int64,
	m *metrics.Metrics,
	logger zerolog.Logger,
) FileService {
	l := logger.With().Str("service", "FileService").Logger()
	return &fileService{
		files:          files,
		users:          users,
		phases:         phases,
		store:          store,
		events:         events,
		janitor:        &janitor{store: store, cleanup: cleanup, logger: l},
		presignExpiry:  presignExpiry,
		maxUploadBytes: maxUploadBytes,
		metrics:        m,
		fileLogger:     l,
	}
}

func (s *fileService) ListOwn(ctx context.Context, actor policy.Actor) (*OwnFiles, error) {
	files, err := s.files.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	used, err := s.files.UsedStorage(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute used storage: %w", err)
	}
	user, err := s.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	var allowed int64
	if user != nil && user.Profile != nil {
		allowed = user.Profile.AllowedStorage
	}
	return &OwnFiles{
		Files:          files,
		UsedStorage:    used,
		AllowedStorage: allowed,
		PercentageUsed: PercentageUsed(used, allowed),
	}, nil
}

func (s *fileService) Upload(ctx context.Context, actor policy.Actor, in UploadInput) (*model.UploadedFile, error) {
	if in.Body == nil {
		return nil, invalid("file", "no file was submitted")
	}
	if err := s.admit(ctx, actor, in.Field, in.Title, in.Size); err != nil {
		s.metrics.ObserveUpload(uploadResult(err), 0)
		return nil, err
	}

	contentType := in.ContentType
	if contentType == "" || contentType == defaultContentType {
		contentType = guessContentType(in.Filename)
	}
	key := storage.NewKey(actor.UserID, in.Field, path.Ext(in.Filename))
	size, err := s.store.Put(ctx, key, in.Body, in.Size, contentType)
	if err != nil {
		s.fileLogger.Error().Err(err).Str("storage_key", key).Msg("Failed to store upload")
		s.janitor.discard(ctx, key)
		s.metrics.ObserveUpload(metrics.ResultStoreError, 0)
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	f := &model.UploadedFile{
		UserID:      actor.UserID,
		Field:       in.Field,
		Title:       in.Title,
		Size:        size,
		StorageKey:  key,
		ContentType: contentType,
	}
	return s.commit(ctx, actor, f)
}

func (s *fileService) InitiateUpload(ctx context.Context, actor policy.Actor, in InitiateUploadInput) (*UploadTicket, error) {
	if err := s.admit(ctx, actor, in.Field, in.Title, in.Size); err != nil {
		s.metrics.ObserveUpload(uploadResult(err), 0)
		return nil, err
	}
	key := storage.NewKey(actor.UserID, in.Field, path.Ext(in.Filename))
	url, err := s.store.PresignPut(ctx, key, s.presignExpiry)
	if err != nil {
		s.fileLogger.Error().Err(err).Str("storage_key", key).Msg("Failed to presign upload")
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return &UploadTicket{
		StorageKey: key,
		UploadURL:  url,
		ExpiresAt:  time.Now().UTC().Add(s.presignExpiry),
	}, nil
}

func (s *fileService) CompleteUpload(ctx context.Context, actor policy.Actor, in CompleteUploadInput) (*model.UploadedFile, error) {
	if !storage.KeyBelongsTo(in.StorageKey, actor.UserID, in.Field) {
		return nil, invalid("storage_key", "key was not issued for this user and field")
	}
	inUse, err := s.keyInUse(ctx, actor.UserID, in.StorageKey)
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, ErrDuplicateField
	}

	size, err := s.store.Stat(ctx, in.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, invalid("storage_key", "no object has been uploaded under this key")
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	if err := s.admit(ctx, actor, in.Field, in.Title, size); err != nil {
		s.metrics.ObserveUpload(uploadResult(err), 0)
		if isRejection(err) {
			s.janitor.discard(ctx, in.StorageKey)
		}
		return nil, err
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = guessContentType(in.StorageKey)
	}
	f := &model.UploadedFile{
		UserID:      actor.UserID,
		Field:       in.Field,
		Title:       in.Title,
		Size:        size,
		StorageKey:  in.StorageKey,
		ContentType: contentType,
	}
	return s.commit(ctx, actor, f)
}

// admit runs the checks shared by every upload path, in the order the
// errors are reported: input, policy, duplicate field, quota.
func (s *fileService) admit(ctx context.Context, actor policy.Actor, field, title string, size int64) error {
	if err := validateUploadInput(field, title); err != nil {
		return err
	}
	if size <= 0 {
		return invalid("file", "the submitted file is empty")
	}
	if s.maxUploadBytes > 0 && size > s.maxUploadBytes {
		return invalid("file", "file exceeds the maximum upload size of %d bytes", s.maxUploadBytes)
	}

	phase, err := s.phases.Current(ctx)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.OpUpload, policy.Target{OwnerID: actor.UserID, Field: field}, phase); err != nil {
		return err
	}

	user, err := s.users.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || user.Profile == nil {
		return fmt.Errorf("%w: account has no storage profile", ErrForbidden)
	}

	exists, err := s.files.ExistsForField(ctx, actor.UserID, field)
	if err != nil {
		return fmt.Errorf("failed to check existing submission: %w", err)
	}
	if exists {
		return ErrDuplicateField
	}

	used, err := s.files.UsedStorage(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("failed to compute used storage: %w", err)
	}
	if WouldExceed(used, size, user.Profile.AllowedStorage) {
		return ErrQuotaExceeded
	}
	return nil
}

// commit inserts the record under the quota lock. On failure the stored
// bytes are discarded unless another record already points at them.
func (s *fileService) commit(ctx context.Context, actor policy.Actor, f *model.UploadedFile) (*model.UploadedFile, error) {
	if err := s.files.CreateWithinQuota(ctx, f); err != nil {
		if inUse, kerr := s.keyInUse(ctx, f.UserID, f.StorageKey); kerr != nil || !inUse {
			s.janitor.discard(ctx, f.StorageKey)
		}
		s.metrics.ObserveUpload(uploadResult(err), 0)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: account has no storage profile", ErrForbidden)
		}
		if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrDuplicateField) {
			return nil, err
		}
		s.fileLogger.Error().Err(err).Str("storage_key", f.StorageKey).Msg("Failed to record upload")
		return nil, fmt.Errorf("failed to record upload: %w", err)
	}

	s.metrics.ObserveUpload(metrics.ResultOK, f.Size)
	s.fileLogger.Info().
		Str("file_id", f.ID).
		Str("user_id", f.UserID).
		Str("field", f.Field).
		Int64("size", f.Size).
		Msg("File uploaded")
	s.events.Emit(ctx, model.FileEvent{
		Type:    model.EventFileUploaded,
		FileID:  f.ID,
		UserID:  f.UserID,
		Field:   f.Field,
		Size:    f.Size,
		ActorID: actor.UserID,
	})
	return f, nil
}

func (s *fileService) keyInUse(ctx context.Context, userID, key string) (bool, error) {
	files, err := s.files.ListByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to list files: %w", err)
	}
	for _, f := range files {
		if f.StorageKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *fileService) Get(ctx context.Context, actor policy.Actor, fileID string) (*model.UploadedFile, error) {
	return s.authorizedFile(ctx, actor, policy.OpView, fileID)
}

// authorizedFile loads fileID and checks op against it. A missing file is
// ErrNotFound whatever the caller's role.
func (s *fileService) authorizedFile(ctx context.Context, actor policy.Actor, op policy.Operation, fileID string) (*model.UploadedFile, error) {
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, ErrNotFound
	}
	f, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	if f == nil {
		return nil, ErrNotFound
	}
	phase, err := s.phases.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, op, policy.Target{OwnerID: f.UserID, Field: f.Field}, phase); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *fileService) Delete(ctx context.Context, actor policy.Actor, fileID string) (*DeleteResult, error) {
	f, err := s.authorizedFile(ctx, actor, policy.OpDelete, fileID)
	if err != nil {
		s.metrics.ObserveDelete(uploadResult(err))
		return nil, err
	}

	result := &DeleteResult{Warnings: []string{}}
	if w := s.janitor.remove(ctx, *f, "file_deleted"); w != "" {
		result.Warnings = append(result.Warnings, w)
	}

	if err := s.files.Delete(ctx, f.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.ObserveDelete(metrics.ResultNotFound)
			return nil, ErrNotFound
		}
		s.metrics.ObserveDelete(metrics.ResultError)
		s.fileLogger.Error().Err(err).Str("file_id", f.ID).Msg("Failed to delete file record")
		return nil, fmt.Errorf("failed to delete file: %w", err)
	}

	if len(result.Warnings) > 0 {
		s.metrics.ObserveDelete(metrics.ResultWarning)
	} else {
		s.metrics.ObserveDelete(metrics.ResultOK)
	}
	s.fileLogger.Info().
		Str("file_id", f.ID).
		Str("owner_id", f.UserID).
		Str("actor_id", actor.UserID).
		Int("warnings", len(result.Warnings)).
		Msg("File deleted")
	s.events.Emit(ctx, model.FileEvent{
		Type:    model.EventFileDeleted,
		FileID:  f.ID,
		UserID:  f.UserID,
		Field:   f.Field,
		Size:    f.Size,
		ActorID: actor.UserID,
	})
	return result, nil
}

func (s *fileService) DownloadURL(ctx context.Context, actor policy.Actor, fileID string) (string, *model.UploadedFile, error) {
	f, err := s.authorizedFile(ctx, actor, policy.OpDownload, fileID)
	if err != nil {
		return "", nil, err
	}
	url, err := s.store.PresignGet(ctx, f.StorageKey, s.presignExpiry)
	if err != nil {
		s.fileLogger.Error().Err(err).Str("file_id", f.ID).Msg("Failed to presign download")
		return "", nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return url, f, nil
}

func (s *fileService) OpenContent(ctx context.Context, actor policy.Actor, fileID string) (*FileContent, error) {
	f, err := s.authorizedFile(ctx, actor, policy.OpDownload, fileID)
	if err != nil {
		return nil, err
	}

	username := "unknown"
	owner, err := s.users.GetUserByID(ctx, f.UserID)
	if err != nil {
		s.fileLogger.Warn().Err(err).Str("user_id", f.UserID).Msg("Could not load owner for download filename")
	} else if owner != nil {
		username = owner.Username
	}

	body, err := s.store.Get(ctx, f.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.fileLogger.Error().Str("file_id", f.ID).Str("storage_key", f.StorageKey).Msg("Object missing for existing record")
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = guessContentType(f.StorageKey)
	}
	return &FileContent{
		File:        f,
		Filename:    DownloadFilename(username, f),
		ContentType: contentType,
		Body:        body,
	}, nil
}

func (s *fileService) ReviewField(ctx context.Context, actor policy.Actor, field, region string) ([]model.ReviewFile, error) {
	if field == "" && actor.Role == policy.RoleFieldManager {
		field = actor.Field
	}
	if !model.IsField(field) {
		return nil, invalid("field", "unknown field %q", field)
	}
	if region != "" && !model.IsRegion(region) {
		return nil, invalid("region", "unknown region %q", region)
	}

	phase, err := s.phases.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.OpReviewField, policy.Target{Field: field}, phase); err != nil {
		return nil, err
	}

	files, err := s.files.ListByField(ctx, field, region)
	if err != nil {
		return nil, fmt.Errorf("failed to list field files: %w", err)
	}
	return files, nil
}

// DownloadFilename is <username>-<title or "untitled">-<id><ext>, where
// spaces in the title become underscores and ext comes from the original
// upload, or ".bin" when it had none.
func DownloadFilename(username string, f *model.UploadedFile) string {
	title := strings.ReplaceAll(f.Title, " ", "_")
	if title == "" {
		title = "untitled"
	}
	ext := path.Ext(f.StorageKey)
	if ext == "" {
		ext = defaultExtension
	}
	return fmt.Sprintf("%s-%s-%s%s", username, title, f.ID, ext)
}

func guessContentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}

func validateUploadInput(field, title string) error {
	if field == "" {
		return invalid("field", "field is required")
	}
	if !model.IsField(field) {
		return invalid("field", "unknown field %q", field)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return invalid("title", "title must be at most %d characters", maxTitleLength)
	}
	return nil
}

// isRejection reports whether err is a domain refusal rather than an
// infrastructure failure.
func isRejection(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrDuplicateField) ||
		errors.Is(err, ErrQuotaExceeded)
}

func uploadResult(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.As(err, &verr):
		return metrics.ResultInvalid
	case errors.Is(err, ErrForbidden):
		return metrics.ResultForbidden
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrDuplicateField):
		return metrics.ResultDuplicateField
	case errors.Is(err, ErrQuotaExceeded):
		return metrics.ResultQuotaExceeded
	case errors.Is(err, ErrStore):
		return metrics.ResultStoreError
	}
	return metrics.ResultError
}
