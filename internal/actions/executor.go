package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/connectly/outreach-be/internal/worker/domain"
)

// Default per-step timeouts inside an action
const (
	defaultNavTimeout  = 60 * time.Second
	defaultStepTimeout = 15 * time.Second
)

// Result is the outcome of a successfully executed action
type Result struct {
	Message string
}

// Executor performs one job type's target-site interaction against an open
// browser page. page is the chromedp browser context for the session.
// Implementations must raise classifiable errors - wrap the domain sentinels
// rather than returning generic failures.
type Executor interface {
	Execute(ctx context.Context, page context.Context, job *domain.Job) (*Result, error)
}

// Config holds shared executor tuning
type Config struct {
	NavTimeout  time.Duration
	StepTimeout time.Duration
}

// Registry maps job types to their executors
type Registry struct {
	executors map[string]Executor
}

// NewRegistry builds a registry with the default executors registered:
// invite, message, profile_view.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}

	r := &Registry{executors: make(map[string]Executor)}
	r.Register(domain.JobTypeInvite, &InviteExecutor{cfg: cfg, logger: logger})
	r.Register(domain.JobTypeMessage, &MessageExecutor{cfg: cfg, logger: logger})
	r.Register(domain.JobTypeProfileView, &ProfileViewExecutor{cfg: cfg, logger: logger})
	return r
}

// Register adds an executor for a job type
func (r *Registry) Register(jobType string, executor Executor) {
	r.executors[jobType] = executor
}

// Get returns the executor for a job type
func (r *Registry) Get(jobType string) (Executor, error) {
	executor, ok := r.executors[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobType, jobType)
	}
	return executor, nil
}

// Target-site selectors shared by the executors. Login wall detection is
// common to every action.
const (
	selLoginWall = `form.login__form, input[name="session_key"], .authwall`
)

// navigate loads the target URL, waits for the document, and fails early on
// a login wall. Every executor starts here.
func navigate(page context.Context, targetURL string, navTimeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(page, navTimeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrNavigationFailed, targetURL, err)
	}

	var loginWall bool
	err = chromedp.Run(navCtx,
		chromedp.Evaluate(fmt.Sprintf("!!document.querySelector(%q)", selLoginWall), &loginWall),
	)
	if err != nil {
		return fmt.Errorf("probe login wall: %w", err)
	}
	if loginWall {
		return fmt.Errorf("%w: login wall at %s", domain.ErrAuthenticationFailed, targetURL)
	}

	return nil
}

// elementExists evaluates whether a selector matches anything on the page
func elementExists(page context.Context, selector string, timeout time.Duration) (bool, error) {
	evalCtx, cancel := context.WithTimeout(page, timeout)
	defer cancel()

	var exists bool
	err := chromedp.Run(evalCtx,
		chromedp.Evaluate(fmt.Sprintf("!!document.querySelector(%q)", selector), &exists),
	)
	return exists, err
}
