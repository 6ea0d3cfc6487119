package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFs(t *testing.T, fs afero.Fs) {
	t.Helper()
	prev := AppFs
	AppFs = fs
	t.Cleanup(func() { AppFs = prev })
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		withFs(t, afero.NewMemMapFs())
		t.Setenv("DATABASE_URL", "")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "contentql.yaml", cfg.ProjectPath)
		assert.Equal(t, "postgres", cfg.Driver)
		assert.Equal(t, "read-committed", cfg.Isolation)
		assert.Equal(t, 10, cfg.MaxOpenConns)
		assert.False(t, cfg.Debug)
	})

	t.Run("config file in working directory", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, filepath.Join(wd, ".contentql.yaml"), []byte("driver: pgx\nrole: editor\nmax_open_conns: 3\n"), 0o644))
		withFs(t, fs)
		t.Setenv("DATABASE_URL", "")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "pgx", cfg.Driver)
		assert.Equal(t, "editor", cfg.Role)
		assert.Equal(t, 3, cfg.MaxOpenConns)
	})

	t.Run("environment overrides", func(t *testing.T) {
		withFs(t, afero.NewMemMapFs())
		t.Setenv("CONTENTQL_ISOLATION", "serializable")
		t.Setenv("CONTENTQL_DEBUG", "true")
		t.Setenv("DATABASE_URL", "postgres://localhost/blog")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "serializable", cfg.Isolation)
		assert.True(t, cfg.Debug)
		assert.Equal(t, "postgres://localhost/blog", cfg.DatabaseURL)
	})
}
