package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "request.yaml")
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(watched, []byte("a"), 0o644))

	var calls atomic.Int32
	w, err := NewWatcher(func() error {
		calls.Add(1)
		return nil
	}, watched)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })

	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(watched, []byte{byte('b' + i)}, 0o644))
	}

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, 5*time.Second, 50*time.Millisecond)
	time.Sleep(2 * Debounce)
	assert.Equal(t, int32(2), calls.Load())
}
