package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"portal/internal/auth"
	"portal/internal/metrics"
	"portal/internal/model"
	"portal/internal/policy"
	"portal/internal/repository"
	"portal/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxUsernameLength = 150

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// UserService holds the superuser-only account administration.
type UserService interface {
	CreateUser(ctx context.Context, actor policy.Actor, in CreateUserInput) (*model.UserWithProfile, error)
	// CreateSuperuser creates a superuser without a profile. It is not
	// reachable over HTTP.
	CreateSuperuser(ctx context.Context, username, password string) (*model.UserWithProfile, error)
	ListUsers(ctx context.Context, actor policy.Actor) ([]model.UserStorage, error)
	UpdateAllowedStorage(ctx context.Context, actor policy.Actor, userID string, allowedGB int64) (*model.UserWithProfile, error)
	// DeleteUser removes every file of the user, then the user. Store
	// failures are reported as warnings and do not stop the deletion.
	DeleteUser(ctx context.Context, actor policy.Actor, userID string) (*DeleteResult, error)
}

type CreateUserInput struct {
	Username string
	Password string
	UserType model.UserType
	Region   string
	Field    string
	// AllowedStorageGB is the allowance in GiB; nil selects the default.
	AllowedStorageGB *int64
}

type userService struct {
	users          repository.UserRepository
	files          repository.FileRepository
	events         EventSink
	janitor        *janitor
	defaultAllowed int64
	bcryptCost     int
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

func NewUserService(
	users repository.UserRepository,
	files repository.FileRepository,
	store storage.ObjectStore,
	cleanup CleanupQueue,
	events EventSink,
	defaultAllowed int64,
	bcryptCost int,
	m *metrics.Metrics,
	logger zerolog.Logger,
) UserService {
	l := logger.With().Str("service", "UserService").Logger()
	if defaultAllowed <= 0 {
		defaultAllowed = model.DefaultAllowedStorage
	}
	return &userService{
		users:          users,
		files:          files,
		events:         events,
		janitor:        &janitor{store: store, cleanup: cleanup, logger: l},
		defaultAllowed: defaultAllowed,
		bcryptCost:     bcryptCost,
		metrics:        m,
		logger:         l,
	}
}

// allowedStorageBytes converts an allowance in GiB to bytes.
func allowedStorageBytes(gb int64) (int64, error) {
	if gb < 0 {
		return 0, invalid("allowed_storage_gb", "must not be negative")
	}
	if gb > model.MaxAllowedStorageGB {
		return 0, invalid("allowed_storage_gb", "must be at most %d", model.MaxAllowedStorageGB)
	}
	return gb * model.GiB, nil
}

func requireSuperuser(actor policy.Actor) error {
	if actor.Role != policy.RoleSuperuser {
		return fmt.Errorf("%w: superuser required", ErrForbidden)
	}
	return nil
}

func (s *userService) CreateUser(ctx context.Context, actor policy.Actor, in CreateUserInput) (*model.UserWithProfile, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	if err := validateCredentials(in.Username, in.Password); err != nil {
		return nil, err
	}

	profile := &model.Profile{UserType: in.UserType, Region: in.Region, AllowedStorage: s.defaultAllowed}
	switch in.UserType {
	case model.UserTypeNormal:
		if in.Field != "" {
			return nil, invalid("field", "only field managers have a field")
		}
	case model.UserTypeFieldManager:
		if in.Field == "" {
			return nil, invalid("field", "field managers require a field")
		}
		if !model.IsField(in.Field) {
			return nil, invalid("field", "unknown field %q", in.Field)
		}
		field := in.Field
		profile.Field = &field
	default:
		return nil, invalid("user_type", "unknown user type %q", in.UserType)
	}
	if !model.IsRegion(in.Region) {
		return nil, invalid("region", "unknown region %q", in.Region)
	}
	if in.AllowedStorageGB != nil {
		allowed, err := allowedStorageBytes(*in.AllowedStorageGB)
		if err != nil {
			return nil, err
		}
		profile.AllowedStorage = allowed
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	u := &model.User{Username: in.Username, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, u, profile); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info().
		Str("user_id", u.ID).
		Str("user_type", string(profile.UserType)).
		Str("actor_id", actor.UserID).
		Msg("User created")
	return &model.UserWithProfile{User: *u, Profile: profile}, nil
}

func (s *userService) CreateSuperuser(ctx context.Context, username, password string) (*model.UserWithProfile, error) {
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	u := &model.User{Username: username, PasswordHash: hash, IsSuperuser: true}
	if err := s.users.CreateUser(ctx, u, nil); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create superuser: %w", err)
	}
	s.logger.Info().Str("user_id", u.ID).Msg("Superuser created")
	return &model.UserWithProfile{User: *u}, nil
}

func (s *userService) ListUsers(ctx context.Context, actor policy.Actor) ([]model.UserStorage, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	users, err := s.users.ListUsers(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	out := make([]model.UserStorage, 0, len(users))
	for _, u := range users {
		files, err := s.files.ListByUser(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list files of user %s: %w", u.ID, err)
		}
		var used int64
		for _, f := range files {
			used += f.Size
		}
		out = append(out, model.UserStorage{UserWithProfile: u, UsedStorage: used, Files: files})
	}
	return out, nil
}

func (s *userService) UpdateAllowedStorage(ctx context.Context, actor policy.Actor, userID string, allowedGB int64) (*model.UserWithProfile, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	allowed, err := allowedStorageBytes(allowedGB)
	if err != nil {
		return nil, err
	}
	target, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target.Profile == nil {
		return nil, invalid("user", "account has no storage profile")
	}

	if err := s.users.UpdateAllowedStorage(ctx, target.ID, allowed); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update allowed storage: %w", err)
	}
	target.Profile.AllowedStorage = allowed

	s.logger.Info().
		Str("user_id", target.ID).
		Int64("allowed_storage", allowed).
		Str("actor_id", actor.UserID).
		Msg("Allowed storage updated")
	return target, nil
}

func (s *userService) DeleteUser(ctx context.Context, actor policy.Actor, userID string) (*DeleteResult, error) {
	if err := requireSuperuser(actor); err != nil {
		return nil, err
	}
	target, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.UserID {
		return nil, fmt.Errorf("%w: cannot delete your own account", ErrProtectedUser)
	}
	if target.IsSuperuser {
		return nil, fmt.Errorf("%w: superuser accounts cannot be deleted", ErrProtectedUser)
	}

	files, err := s.files.ListByUser(ctx, target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files of user %s: %w", target.ID, err)
	}
	result := &DeleteResult{Warnings: []string{}}
	s.removeObjects(ctx, files, result)

	removed, err := s.users.DeleteUser(ctx, target.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}

	// Records committed after the listing above went with the user; their
	// bytes still need removing.
	listed := make(map[string]struct{}, len(files))
	for _, f := range files {
		listed[f.ID] = struct{}{}
	}
	var late []model.UploadedFile
	for _, f := range removed {
		if _, ok := listed[f.ID]; !ok {
			late = append(late, f)
		}
	}
	s.removeObjects(ctx, late, result)
	files = append(files, late...)

	s.logger.Info().
		Str("user_id", target.ID).
		Int("files", len(files)).
		Int("warnings", len(result.Warnings)).
		Str("actor_id", actor.UserID).
		Msg("User deleted")
	s.events.Emit(ctx, model.FileEvent{
		Type:    model.EventUserDeleted,
		UserID:  target.ID,
		ActorID: actor.UserID,
	})
	return result, nil
}

func (s *userService) removeObjects(ctx context.Context, files []model.UploadedFile, result *DeleteResult) {
	for _, f := range files {
		if w := s.janitor.remove(ctx, f, "user_deleted"); w != "" {
			result.Warnings = append(result.Warnings, w)
			s.metrics.ObserveDelete(metrics.ResultWarning)
		} else {
			s.metrics.ObserveDelete(metrics.ResultOK)
		}
	}
}

func (s *userService) loadUser(ctx context.Context, userID string) (*model.UserWithProfile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrNotFound
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func validateCredentials(username, password string) error {
	if username == "" {
		return invalid("username", "username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength || !usernamePattern.MatchString(username) {
		return invalid("username", "use at most %d letters, digits and @/./+/-/_ characters", maxUsernameLength)
	}
	if password == "" {
		return invalid("password", "password is required")
	}
	if len(password) > 72 {
		return invalid("password", "password must be at most 72 bytes")
	}
	return nil
}
