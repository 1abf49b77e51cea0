package deployer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediation-router/internal/common/logging"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	d := newTestDeployer()
	_, err := d.LoadDir(dir)
	require.NoError(t, err)

	reloads := make(chan *LoadResult, 8)
	w := NewWatcher(d, dir, 20*time.Millisecond, logging.NewNopLogger(), OnReload(func(r *LoadResult, err error) {
		if err != nil {
			return
		}
		select {
		case reloads <- r:
		default:
		}
	}))
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Close() })

	writeFile(t, dir, "orders.yaml", "name: orders\ncontext: /orders\nresources:\n  - methods: [GET]\n")
	assert.Eventually(t, func() bool {
		_, ok := d.Table().Get("orders")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "orders.yaml")))
	assert.Eventually(t, func() bool {
		return d.Table().Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.NotEmpty(t, reloads)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	d := newTestDeployer()

	reloads := make(chan struct{}, 8)
	w := NewWatcher(d, dir, 10*time.Millisecond, logging.NewNopLogger(), OnReload(func(*LoadResult, error) {
		select {
		case reloads <- struct{}{}:
		default:
		}
	}))
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Close() })

	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, ".hidden.yaml", "ignored")

	select {
	case <-reloads:
		t.Fatal("unexpected reload")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := NewWatcher(newTestDeployer(), filepath.Join(t.TempDir(), "missing"), 0, logging.NewNopLogger())
	assert.Error(t, w.Start())
	assert.NoError(t, w.Close())
}
