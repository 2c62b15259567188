package config

import (
	"testing"

	"portal/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_CONNECTION_STRING", "postgres://u:p@localhost:5432/portal")
	t.Setenv("S3_BUCKET", "uploads")
	t.Setenv("S3_ACCESS_KEY", "key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 50*model.GiB, cfg.DefaultAllowedStorage())
	assert.Equal(t, int64(2048)*1024*1024, cfg.MaxUploadBytes())
}

func TestLoad_AllowedStorageBounds(t *testing.T) {
	setRequired(t)

	t.Setenv("DEFAULT_ALLOWED_STORAGE_GB", "8589934591")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, model.MaxAllowedStorageGB*model.GiB, cfg.DefaultAllowedStorage())
	assert.Positive(t, cfg.DefaultAllowedStorage())

	for _, v := range []string{"8589934592", "17179869184", "-1"} {
		t.Setenv("DEFAULT_ALLOWED_STORAGE_GB", v)
		_, err := Load()
		assert.Error(t, err, v)
	}
}

func TestLoad_MaxUploadBounds(t *testing.T) {
	setRequired(t)

	t.Setenv("MAX_UPLOAD_MB", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("MAX_UPLOAD_MB", "8796093022208")
	_, err = Load()
	assert.Error(t, err)
}
