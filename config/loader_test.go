package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit path", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), minimalYAML)

		cfg, err := NewLoader(path).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "quaduser", cfg.Credentials.Username)
	})

	t.Run("explicit path missing", func(t *testing.T) {
		_, err := NewLoader(filepath.Join(t.TempDir(), "config.yaml")).Load(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("cached config survives a broken reload", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), minimalYAML)
		loader := NewLoader(path)

		first, err := loader.Load(ctx)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte(":\n  - ["), 0o600))

		second, err := loader.Load(ctx)
		require.NoError(t, err, "falls back to the cached config")
		assert.Equal(t, first, second)
	})

	t.Run("no cache means the error surfaces", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), ":\n  - [")

		_, err := NewLoader(path).Load(ctx)
		require.Error(t, err)
	})
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := writeConfig(t, dir, minimalYAML)
	loader := NewLoader(path)

	changed, err := loader.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"\nskip_hosted: false\n"), 0o600))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}
