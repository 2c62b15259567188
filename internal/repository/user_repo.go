package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"portal/internal/dbx"
	"portal/internal/model"
)

type UserRepository interface {
	// CreateUser inserts the user and, when p is non-nil, its profile in one
	// transaction.
	CreateUser(ctx context.Context, u *model.User, p *model.Profile) error
	GetUserByID(ctx context.Context, id string) (*model.UserWithProfile, error)
	GetUserByUsername(ctx context.Context, username string) (*model.UserWithProfile, error)
	ListUsers(ctx context.Context, includeSuperusers bool) ([]model.UserWithProfile, error)
	UpdateAllowedStorage(ctx context.Context, userID string, allowed int64) error
	// DeleteUser removes the user's file records, profile and account in one
	// transaction and returns the file records it removed. Object bytes are
	// the caller's concern.
	DeleteUser(ctx context.Context, userID string) ([]model.UploadedFile, error)
}

type userRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) CreateUser(ctx context.Context, u *model.User, p *model.Profile) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `INSERT INTO users (username, password_hash, is_superuser)
		          VALUES ($1, $2, $3) RETURNING id, created_at`
		err := tx.QueryRowContext(ctx, query, u.Username, u.PasswordHash, u.IsSuperuser).Scan(&u.ID, &u.CreatedAt)
		if err != nil {
			if isUniqueViolation(err, "") {
				return ErrUsernameTaken
			}
			return fmt.Errorf("inserting user %s: %w", u.Username, err)
		}
		if p == nil {
			return nil
		}

		p.UserID = u.ID
		query = `INSERT INTO profiles (user_id, user_type, region, field, allowed_storage)
		         VALUES ($1, $2, $3, $4, $5) RETURNING updated_at`
		if err := tx.QueryRowContext(ctx, query, p.UserID, p.UserType, p.Region, p.Field, p.AllowedStorage).Scan(&p.UpdatedAt); err != nil {
			return fmt.Errorf("inserting profile for user %s: %w", u.ID, err)
		}
		return nil
	})
}

const userWithProfileSelect = `
	SELECT u.id, u.username, u.password_hash, u.is_superuser, u.created_at,
	       p.user_type, p.region, p.field, p.allowed_storage, p.updated_at
	FROM users u
	LEFT JOIN profiles p ON p.user_id = u.id
`

func scanUserWithProfile(row interface{ Scan(...any) error }) (*model.UserWithProfile, error) {
	var (
		u         model.UserWithProfile
		userType  sql.NullString
		region    sql.NullString
		field     sql.NullString
		allowed   sql.NullInt64
		updatedAt sql.NullTime
	)
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.IsSuperuser,
		&u.CreatedAt,
		&userType,
		&region,
		&field,
		&allowed,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if userType.Valid {
		p := &model.Profile{
			UserID:         u.ID,
			UserType:       model.UserType(userType.String),
			Region:         region.String,
			AllowedStorage: allowed.Int64,
			UpdatedAt:      updatedAt.Time,
		}
		if field.Valid {
			f := field.String
			p.Field = &f
		}
		u.Profile = p
	}
	return &u, nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.UserWithProfile, error) {
	u, err := scanUserWithProfile(r.db.QueryRowContext(ctx, userWithProfileSelect+` WHERE u.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (r *userRepo) GetUserByUsername(ctx context.Context, username string) (*model.UserWithProfile, error) {
	u, err := scanUserWithProfile(r.db.QueryRowContext(ctx, userWithProfileSelect+` WHERE u.username = $1`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (r *userRepo) ListUsers(ctx context.Context, includeSuperusers bool) ([]model.UserWithProfile, error) {
	query := userWithProfileSelect + ` WHERE ($1 OR NOT u.is_superuser) ORDER BY u.username ASC`
	rows, err := r.db.QueryContext(ctx, query, includeSuperusers)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []model.UserWithProfile{}
	for rows.Next() {
		u, err := scanUserWithProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return users, nil
}

func (r *userRepo) UpdateAllowedStorage(ctx context.Context, userID string, allowed int64) error {
	query := `UPDATE profiles SET allowed_storage = $1, updated_at = NOW() WHERE user_id = $2`
	res, err := r.db.ExecContext(ctx, query, allowed, userID)
	if err != nil {
		return fmt.Errorf("updating allowed storage for user %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) DeleteUser(ctx context.Context, userID string) ([]model.UploadedFile, error) {
	var removed []model.UploadedFile
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx, `DELETE FROM uploaded_files WHERE user_id = $1 RETURNING id, storage_key`, userID)
		if err != nil {
			return fmt.Errorf("deleting files of user %s: %w", userID, err)
		}
		defer rows.Close()
		for rows.Next() {
			f := model.UploadedFile{UserID: userID}
			if err := rows.Scan(&f.ID, &f.StorageKey); err != nil {
				return fmt.Errorf("scan deleted file: %w", err)
			}
			removed = append(removed, f)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("deleting files of user %s: %w", userID, err)
		}
		rows.Close()

		if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("deleting profile of user %s: %w", userID, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("deleting user %s: %w", userID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
