package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/connectly/outreach-be/internal/worker/domain"
)

// Default timeouts for session lifecycle operations
const (
	defaultAcquireTimeout = 90 * time.Second
	defaultCloseTimeout   = 5 * time.Second
	defaultProbeTimeout   = 5 * time.Second
)

// Config holds browser session configuration
type Config struct {
	Headless       bool
	ExecPath       string // browser binary, empty for chromedp's default lookup
	ProxyURL       string
	UserDataDir    string // base directory for per-session scratch dirs
	CookiesFile    string // optional JSON file with session cookies
	UserAgent      string
	AcquireTimeout time.Duration
	CloseTimeout   time.Duration
	ProbeTimeout   time.Duration
}

// Session is one isolated automation session: a headless browser process,
// a page, and a scratch profile directory. Owned by exactly one job at a
// time and torn down unconditionally when that job settles.
type Session struct {
	pageCtx       context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	userDataDir   string
	createdAt     time.Time
	released      atomic.Bool
}

// Page returns the chromedp page context for running actions
func (s *Session) Page() context.Context {
	return s.pageCtx
}

// CreatedAt returns when the session was acquired
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// UserDataDir returns the session's scratch profile directory
func (s *Session) UserDataDir() string {
	return s.userDataDir
}

// Health is the result of a fast non-mutating session probe
type Health struct {
	BrowserHealthy bool
	PageHealthy    bool
	Reason         string
}

// OK reports whether the session is usable
func (h Health) OK() bool {
	return h.BrowserHealthy && h.PageHealthy
}

// Manager acquires and releases browser sessions
type Manager struct {
	cfg    Config
	logger *slog.Logger
}

// NewManager creates a session manager, filling in default timeouts
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	return &Manager{cfg: cfg, logger: logger}
}

// Acquire starts a fresh browser process with an isolated profile directory.
// The acquisition as a whole is bounded by the configured timeout; on any
// failure nothing is leaked - the process is cancelled and the scratch
// directory removed before the error is returned.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	dir, err := os.MkdirTemp(m.cfg.UserDataDir, "session-")
	if err != nil {
		return nil, fmt.Errorf("%w: create scratch dir: %v", domain.ErrSessionInit, err)
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserDataDir(dir),
	)
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	if m.cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(m.cfg.ProxyURL))
	}
	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	sess := &Session{
		pageCtx:       browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		userDataDir:   dir,
		createdAt:     time.Now(),
	}

	// Starting the browser is the expensive part; bound it by both the
	// caller's context and the acquire timeout.
	startCtx, startCancel := context.WithTimeout(browserCtx, m.cfg.AcquireTimeout)
	defer startCancel()

	startErr := make(chan error, 1)
	go func() {
		startErr <- chromedp.Run(startCtx, network.Enable())
	}()

	select {
	case err = <-startErr:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		// Release cancels browserCtx and with it startCtx, so the timeout
		// verdict has to be taken before teardown.
		timedOut := errors.Is(startCtx.Err(), context.DeadlineExceeded)
		m.Release(sess)
		if timedOut {
			return nil, fmt.Errorf("%w: timed out after %s", domain.ErrSessionInit, m.cfg.AcquireTimeout)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionInit, err)
	}

	if m.cfg.CookiesFile != "" {
		if err := m.injectCookies(browserCtx); err != nil {
			m.logger.Warn("Failed to inject session cookies, continuing unauthenticated",
				slog.Any("error", err),
			)
		}
	}

	m.logger.Debug("Browser session acquired",
		slog.String("user_data_dir", dir),
		slog.Duration("elapsed", time.Since(sess.createdAt)),
	)

	return sess, nil
}

// CheckHealth is a fast non-mutating probe run immediately after acquisition.
// A session that fails either flag must be released without attempting the
// action.
func (m *Manager) CheckHealth(ctx context.Context, sess *Session) Health {
	if sess == nil {
		return Health{Reason: "no session"}
	}
	if err := sess.pageCtx.Err(); err != nil {
		return Health{Reason: "browser context closed: " + err.Error()}
	}

	probeCtx, cancel := context.WithTimeout(sess.pageCtx, m.cfg.ProbeTimeout)
	defer cancel()

	var readyState string
	if err := chromedp.Run(probeCtx, chromedp.Evaluate("document.readyState", &readyState)); err != nil {
		return Health{BrowserHealthy: true, Reason: "page probe failed: " + err.Error()}
	}

	return Health{BrowserHealthy: true, PageHealthy: true}
}

// Release tears the session down. Idempotent, best-effort, never returns an
// error: graceful close is bounded by the close timeout, after which the
// browser process is force-terminated. The scratch directory is always
// removed. Teardown failures are logged, never propagated - they must not
// mask the job's actual outcome.
func (m *Manager) Release(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.released.CompareAndSwap(false, true) {
		return
	}

	// Both the graceful close and the browser context cancel wait for the
	// browser process to exit, which never happens when startup failed.
	// Everything that can wait runs behind the close timeout; the allocator
	// cancel below is a plain context cancel and kills the process, which
	// also unblocks a close still stuck in the goroutine.
	closed := make(chan struct{})
	go func() {
		if sess.pageCtx != nil && sess.pageCtx.Err() == nil {
			if err := chromedp.Cancel(sess.pageCtx); err != nil {
				m.logger.Warn("Browser graceful close failed", slog.Any("error", err))
			}
		}
		if sess.browserCancel != nil {
			sess.browserCancel()
		}
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(m.cfg.CloseTimeout):
		m.logger.Warn("Browser graceful close timed out, force-terminating",
			slog.Duration("timeout", m.cfg.CloseTimeout),
		)
	}

	if sess.allocCancel != nil {
		sess.allocCancel()
	}

	if sess.userDataDir != "" {
		if err := os.RemoveAll(sess.userDataDir); err != nil {
			m.logger.Warn("Failed to remove session scratch dir",
				slog.String("dir", sess.userDataDir),
				slog.Any("error", err),
			)
		}
	}

	m.logger.Debug("Browser session released",
		slog.Duration("lifetime", time.Since(sess.createdAt)),
	)
}

// storedCookie is the on-disk cookie format, matching what a browser
// extension export produces
type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
	SameSite string  `json:"sameSite"`
	Expires  float64 `json:"expirationDate"`
}

// injectCookies loads session cookies from the configured file and sets them
// in the browser before any navigation
func (m *Manager) injectCookies(browserCtx context.Context) error {
	data, err := os.ReadFile(m.cfg.CookiesFile)
	if err != nil {
		return fmt.Errorf("read cookies file: %w", err)
	}

	var cookies []storedCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("parse cookies file: %w", err)
	}
	if len(cookies) == 0 {
		return nil
	}

	err = chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(strings.TrimPrefix(c.Domain, ".")).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)

			if c.Expires > 0 {
				expiresTime := time.Unix(int64(c.Expires), 0)
				if expiresTime.After(time.Now()) {
					ts := cdp.TimeSinceEpoch(expiresTime)
					param = param.WithExpires(&ts)
				}
			}

			switch strings.ToLower(c.SameSite) {
			case "strict":
				param = param.WithSameSite(network.CookieSameSiteStrict)
			case "lax":
				param = param.WithSameSite(network.CookieSameSiteLax)
			case "none":
				param = param.WithSameSite(network.CookieSameSiteNone)
			}

			if err := param.Do(ctx); err != nil {
				m.logger.Warn("Failed to set cookie",
					slog.String("name", c.Name),
					slog.Any("error", err),
				)
			}
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("inject cookies: %w", err)
	}

	m.logger.Debug("Session cookies injected", slog.Int("count", len(cookies)))
	return nil
}
