package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectly/outreach-be/internal/worker/domain"
	"github.com/connectly/outreach-be/shared/logger"
)

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{}, logger.NewDefault())

	assert.Equal(t, defaultAcquireTimeout, m.cfg.AcquireTimeout)
	assert.Equal(t, defaultCloseTimeout, m.cfg.CloseTimeout)
	assert.Equal(t, defaultProbeTimeout, m.cfg.ProbeTimeout)
}

func TestRelease_Idempotent(t *testing.T) {
	m := NewManager(Config{}, logger.NewDefault())

	dir, err := os.MkdirTemp(t.TempDir(), "session-")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile"), []byte("x"), 0o600))

	cancelled := 0
	sess := &Session{
		userDataDir:   dir,
		createdAt:     time.Now(),
		browserCancel: func() { cancelled++ },
		allocCancel:   func() { cancelled++ },
	}

	m.Release(sess)
	m.Release(sess)
	m.Release(sess)

	// Teardown ran exactly once and removed the scratch dir
	assert.Equal(t, 2, cancelled)
	assert.NoDirExists(t, dir)
}

func TestRelease_BoundedWhenBrowserCancelHangs(t *testing.T) {
	m := NewManager(Config{CloseTimeout: 100 * time.Millisecond}, logger.NewDefault())

	dir, err := os.MkdirTemp(t.TempDir(), "session-")
	require.NoError(t, err)

	// A cancel that waits for a browser exit that never comes, as happens
	// when the process failed to start.
	hang := make(chan struct{})
	allocCancelled := make(chan struct{})
	sess := &Session{
		userDataDir:   dir,
		createdAt:     time.Now(),
		browserCancel: func() { <-hang },
		allocCancel: func() {
			close(allocCancelled)
			close(hang)
		},
	}

	done := make(chan struct{})
	go func() {
		m.Release(sess)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Release did not return within the close timeout")
	}

	select {
	case <-allocCancelled:
	default:
		t.Fatal("allocator cancel must run even when the browser cancel hangs")
	}
	assert.NoDirExists(t, dir)
}

func TestAcquire_StartFailureReportsCause(t *testing.T) {
	m := NewManager(Config{
		Headless:       true,
		ExecPath:       filepath.Join(t.TempDir(), "no-such-browser"),
		UserDataDir:    t.TempDir(),
		AcquireTimeout: 30 * time.Second,
		CloseTimeout:   200 * time.Millisecond,
	}, logger.NewDefault())

	start := time.Now()
	sess, err := m.Acquire(context.Background())

	require.Error(t, err)
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, domain.ErrSessionInit)
	assert.NotContains(t, err.Error(), "timed out", "a start failure is not a timeout")
	assert.Less(t, time.Since(start), 10*time.Second, "failed acquire must not wedge on teardown")
}

func TestRelease_NilSession(t *testing.T) {
	m := NewManager(Config{}, logger.NewDefault())

	assert.NotPanics(t, func() { m.Release(nil) })
}

func TestCheckHealth_ClosedContext(t *testing.T) {
	m := NewManager(Config{}, logger.NewDefault())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := m.CheckHealth(context.Background(), &Session{pageCtx: ctx})

	assert.False(t, h.OK())
	assert.False(t, h.BrowserHealthy)
	assert.Contains(t, h.Reason, "browser context closed")
}

func TestCheckHealth_NilSession(t *testing.T) {
	m := NewManager(Config{}, logger.NewDefault())

	h := m.CheckHealth(context.Background(), nil)

	assert.False(t, h.OK())
	assert.Equal(t, "no session", h.Reason)
}
