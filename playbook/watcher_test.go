package playbook

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary(dir, nil)
	require.NoError(t, lib.Discover())
	assert.Empty(t, lib.List())

	watcher := NewWatcher(lib, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: Deploy\nsteps:\n  - title: ship\n"), 0o644))

	select {
	case <-watcher.Reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed after file write")
	}

	_, ok := lib.Get("deploy")
	assert.True(t, ok)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
