package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal/internal/model"
)

func newFileRepoWithMock(t *testing.T) (FileRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewFileRepository(db), mock, db
}

func newFile() *model.UploadedFile {
	return &model.UploadedFile{
		UserID:      "u1",
		Field:       "coding",
		Title:       "demo",
		Size:        50000000,
		StorageKey:  "uploads/u1/coding/k",
		ContentType: "application/zip",
	}
}

func expectQuotaReads(mock sqlmock.Sqlmock, allowed, used int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT allowed_storage FROM profiles WHERE user_id = \$1 FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"allowed_storage"}).AddRow(allowed))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(size\), 0\) FROM uploaded_files WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(used))
}

func TestCreateWithinQuota_Success(t *testing.T) {
	repo, mock, db := newFileRepoWithMock(t)
	defer db.Close()

	uploadedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	expectQuotaReads(mock, 1073741824, 1000000000)
	mock.ExpectQuery(`(?s)INSERT INTO uploaded_files .*RETURNING id, uploaded_at`).
		WithArgs("u1", "coding", "demo", int64(50000000), "uploads/u1/coding/k", "application/zip").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uploaded_at"}).AddRow("f1", uploadedAt))
	mock.ExpectCommit()

	f := newFile()
	require.NoError(t, repo.CreateWithinQuota(context.Background(), f))
	assert.Equal(t, "f1", f.ID)
	assert.Equal(t, uploadedAt, f.UploadedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithinQuota_Exceeded(t *testing.T) {
	repo, mock, db := newFileRepoWithMock(t)
	defer db.Close()

	expectQuotaReads(mock, 1073741824, 1000000000)
	mock.ExpectRollback()

	f := newFile()
	f.Size = 200000000
	err := repo.CreateWithinQuota(context.Background(), f)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithinQuota_ExactlyAtAllowance(t *testing.T) {
	repo, mock, db := newFileRepoWithMock(t)
	defer db.Close()

	expectQuotaReads(mock, 100, 60)
	mock.ExpectQuery(`INSERT INTO uploaded_files`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uploaded_at"}).AddRow("f2", time.Now()))
	mock.ExpectCommit()

	f := newFile()
	f.Size = 40
	require.NoError(t, repo.CreateWithinQuota(context.Background(), f))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithinQuota_DuplicateField(t *testing.T) {
	repo, mock, db := newFileRepoWithMock(t)
	defer db.Close()

	expectQuotaReads(mock, 1073741824, 0)
	mock.ExpectQuery(`INSERT INTO uploaded_files`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uploaded_files_user_field_key"})
	mock.ExpectRollback()

	err := repo.CreateWithinQuota(context.Background(), newFile())
	require.ErrorIs(t, err, ErrDuplicateField)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithinQuota_MissingProfile(t *testing.T) {
	repo, mock, db := newFileRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT allowed_storage FROM profiles`).
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.CreateWithinQuota(context.Background(), newFile())
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsedStorage(t *testing.T) {
	repo, mock, db := newFileRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(size\), 0\)`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))

	used, err := repo.UsedStorage(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestExistsForField(t *testing.T) {
	repo, mock, db := newFileRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("u1", "coding").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.ExistsForField(context.Background(), "u1", "coding")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newFileRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM uploaded_files WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	f, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestListByField(t *testing.T) {
	repo, mock, db := newFileRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM uploaded_files f.*WHERE f.field = \$1`).
		WithArgs("coding", "north").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "field", "title", "size", "storage_key", "content_type", "uploaded_at", "username", "region",
		}).AddRow("f1", "u2", "coding", "t", int64(10), "k", "text/plain", now, "bob", "north"))

	files, err := repo.ListByField(context.Background(), "coding", "north")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "bob", files[0].Username)
	assert.Equal(t, "north", files[0].Region)
	assert.Equal(t, int64(10), files[0].Size)
}

func TestDelete(t *testing.T) {
	repo, mock, db := newFileRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM uploaded_files WHERE id = \$1`).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM uploaded_files WHERE id = \$1`).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM uploaded_files WHERE id = \$1`).
		WithArgs("f2").
		WillReturnError(errors.New("db down"))

	require.NoError(t, repo.Delete(context.Background(), "f1"))
	require.ErrorIs(t, repo.Delete(context.Background(), "f1"), ErrNotFound)
	err := repo.Delete(context.Background(), "f2")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
