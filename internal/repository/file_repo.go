package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"portal/internal/dbx"
	"portal/internal/model"
)

// FileRepository persists uploaded file records and answers the storage
// accounting and uniqueness queries.
type FileRepository interface {
	ListByUser(ctx context.Context, userID string) ([]model.UploadedFile, error)
	// ListByField returns every submission to field, optionally restricted to
	// owners in region, joined with owner details.
	ListByField(ctx context.Context, field, region string) ([]model.ReviewFile, error)
	GetByID(ctx context.Context, fileID string) (*model.UploadedFile, error)
	ExistsForField(ctx context.Context, userID, field string) (bool, error)
	UsedStorage(ctx context.Context, userID string) (int64, error)
	// CreateWithinQuota inserts f if the owner's used storage plus f.Size stays
	// within their allowance. The owner's profile row is locked for the
	// duration, so concurrent uploads by the same user are serialized.
	CreateWithinQuota(ctx context.Context, f *model.UploadedFile) error
	Delete(ctx context.Context, fileID string) error
}

type fileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) FileRepository {
	return &fileRepository{db: db}
}

const fileColumns = `id, user_id, field, title, size, storage_key, content_type, uploaded_at`

func scanFile(row interface{ Scan(...any) error }, f *model.UploadedFile) error {
	return row.Scan(
		&f.ID,
		&f.UserID,
		&f.Field,
		&f.Title,
		&f.Size,
		&f.StorageKey,
		&f.ContentType,
		&f.UploadedAt,
	)
}

func (r *fileRepository) ListByUser(ctx context.Context, userID string) ([]model.UploadedFile, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM uploaded_files
		WHERE user_id = $1
		ORDER BY uploaded_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files by user: %w", err)
	}
	defer rows.Close()

	files := []model.UploadedFile{}
	for rows.Next() {
		var f model.UploadedFile
		if err := scanFile(rows, &f); err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return files, nil
}

func (r *fileRepository) ListByField(ctx context.Context, field, region string) ([]model.ReviewFile, error) {
	query := `
		SELECT f.id, f.user_id, f.field, f.title, f.size, f.storage_key, f.content_type, f.uploaded_at,
		       u.username, COALESCE(p.region, '')
		FROM uploaded_files f
		JOIN users u ON u.id = f.user_id
		LEFT JOIN profiles p ON p.user_id = f.user_id
		WHERE f.field = $1
		  AND ($2 = '' OR p.region = $2)
		ORDER BY f.uploaded_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, field, region)
	if err != nil {
		return nil, fmt.Errorf("failed to query files by field: %w", err)
	}
	defer rows.Close()

	files := []model.ReviewFile{}
	for rows.Next() {
		var f model.ReviewFile
		if err := rows.Scan(
			&f.ID,
			&f.UserID,
			&f.Field,
			&f.Title,
			&f.Size,
			&f.StorageKey,
			&f.ContentType,
			&f.UploadedAt,
			&f.Username,
			&f.Region,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return files, nil
}

func (r *fileRepository) GetByID(ctx context.Context, fileID string) (*model.UploadedFile, error) {
	query := `SELECT ` + fileColumns + ` FROM uploaded_files WHERE id = $1`
	var f model.UploadedFile
	if err := scanFile(r.db.QueryRowContext(ctx, query, fileID), &f); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan file row: %w", err)
	}
	return &f, nil
}

func (r *fileRepository) ExistsForField(ctx context.Context, userID, field string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM uploaded_files WHERE user_id = $1 AND field = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, field).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking file for user %s field %s: %w", userID, field, err)
	}
	return exists, nil
}

func (r *fileRepository) UsedStorage(ctx context.Context, userID string) (int64, error) {
	return usedStorage(ctx, r.db, userID)
}

func usedStorage(ctx context.Context, db dbx.DBTX, userID string) (int64, error) {
	query := `SELECT COALESCE(SUM(size), 0) FROM uploaded_files WHERE user_id = $1`
	var used int64
	if err := db.QueryRowContext(ctx, query, userID).Scan(&used); err != nil {
		return 0, fmt.Errorf("summing storage for user %s: %w", userID, err)
	}
	return used, nil
}

func (r *fileRepository) CreateWithinQuota(ctx context.Context, f *model.UploadedFile) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var allowed int64
		const lockQ = `SELECT allowed_storage FROM profiles WHERE user_id = $1 FOR UPDATE`
		if err := tx.QueryRowContext(ctx, lockQ, f.UserID).Scan(&allowed); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("profile for user %s: %w", f.UserID, ErrNotFound)
			}
			return fmt.Errorf("locking profile for user %s: %w", f.UserID, err)
		}

		used, err := usedStorage(ctx, tx, f.UserID)
		if err != nil {
			return err
		}
		if used+f.Size > allowed {
			return ErrQuotaExceeded
		}

		const insertQ = `
			INSERT INTO uploaded_files (user_id, field, title, size, storage_key, content_type)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, uploaded_at
		`
		err = tx.QueryRowContext(ctx, insertQ, f.UserID, f.Field, f.Title, f.Size, f.StorageKey, f.ContentType).
			Scan(&f.ID, &f.UploadedAt)
		if err != nil {
			if isUniqueViolation(err, "uploaded_files_user_field_key") {
				return ErrDuplicateField
			}
			return fmt.Errorf("inserting file for user %s: %w", f.UserID, err)
		}
		return nil
	})
}

func (r *fileRepository) Delete(ctx context.Context, fileID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM uploaded_files WHERE id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
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
