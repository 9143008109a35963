package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectly/outreach-be/internal/actions"
	"github.com/connectly/outreach-be/internal/browser"
	"github.com/connectly/outreach-be/internal/worker/domain"
)

type fakeSessions struct {
	mu         sync.Mutex
	acquireErr error
	health     browser.Health
	acquires   int
	releases   int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{health: browser.Health{BrowserHealthy: true, PageHealthy: true}}
}

func (f *fakeSessions) Acquire(_ context.Context) (*browser.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquires++
	return &browser.Session{}, nil
}

func (f *fakeSessions) CheckHealth(_ context.Context, _ *browser.Session) browser.Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

func (f *fakeSessions) Release(_ *browser.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
}

func (f *fakeSessions) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

type scriptedExecutor struct {
	mu     sync.Mutex
	calls  int
	result *actions.Result
	err    error
	block  bool
	delay  time.Duration
}

func (s *scriptedExecutor) Execute(ctx context.Context, _ context.Context, _ *domain.Job) (*actions.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.result, s.err
}

func (s *scriptedExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeRegistry struct {
	exec actions.Executor
	err  error
}

func (f *fakeRegistry) Get(_ string) (actions.Executor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.exec, nil
}

type fakeReporter struct {
	mu           sync.Mutex
	starts       []string
	outcomes     []Outcome
	onCompletion func()
}

func (f *fakeReporter) ReportStart(_ context.Context, job *domain.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, job.ID)
}

func (f *fakeReporter) ReportCompletion(_ context.Context, _ *domain.Job, outcome Outcome) {
	f.mu.Lock()
	fn := f.onCompletion
	f.outcomes = append(f.outcomes, outcome)
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *fakeReporter) lastOutcome(t *testing.T) Outcome {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.outcomes)
	return f.outcomes[len(f.outcomes)-1]
}

func newTestProcessor(sessions *fakeSessions, exec actions.Executor, reporter *fakeReporter, store *fakeStore, cfg ProcessorConfig) *Processor {
	return NewProcessor(sessions, &fakeRegistry{exec: exec}, reporter, store, cfg, testLogger())
}

func TestProcessorSuccess(t *testing.T) {
	sessions := newFakeSessions()
	exec := &scriptedExecutor{result: &actions.Result{Message: "Invitation sent"}}
	reporter := &fakeReporter{}
	p := newTestProcessor(sessions, exec, reporter, newFakeStore(), ProcessorConfig{})

	job := &domain.Job{ID: "job-1", Type: domain.JobTypeInvite}
	err := p.Process(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, reporter.starts)
	outcome := reporter.lastOutcome(t)
	assert.Equal(t, domain.JobStatusCompleted, outcome.Status)
	assert.False(t, outcome.WillRetry)
	assert.Equal(t, "Invitation sent", outcome.Message)
	assert.Equal(t, 1, exec.callCount())
	assert.Equal(t, 1, sessions.releaseCount())
}

func TestProcessorRetryablePropagates(t *testing.T) {
	sessions := newFakeSessions()
	exec := &scriptedExecutor{err: domain.ErrConnectionLost}
	reporter := &fakeReporter{}
	p := newTestProcessor(sessions, exec, reporter, newFakeStore(), ProcessorConfig{MaxAttempts: 3})

	job := &domain.Job{ID: "job-2", Type: domain.JobTypeMessage, AttemptsMade: 0}
	err := p.Process(context.Background(), job)

	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	outcome := reporter.lastOutcome(t)
	assert.Equal(t, domain.JobStatusRetry, outcome.Status)
	assert.True(t, outcome.WillRetry)
	assert.Equal(t, 1, sessions.releaseCount())
}

func TestProcessorExhaustedAttemptsFailsTerminally(t *testing.T) {
	sessions := newFakeSessions()
	exec := &scriptedExecutor{err: domain.ErrConnectionLost}
	reporter := &fakeReporter{}
	p := newTestProcessor(sessions, exec, reporter, newFakeStore(), ProcessorConfig{MaxAttempts: 3})

	job := &domain.Job{ID: "job-3", Type: domain.JobTypeMessage, AttemptsMade: 2}
	err := p.Process(context.Background(), job)

	require.NoError(t, err)
	outcome := reporter.lastOutcome(t)
	assert.Equal(t, domain.JobStatusFailed, outcome.Status)
	assert.False(t, outcome.WillRetry)
}

func TestProcessorAuthFailureIsTerminal(t *testing.T) {
	sessions := newFakeSessions()
	exec := &scriptedExecutor{err: domain.ErrAuthenticationFailed}
	reporter := &fakeReporter{}
	p := newTestProcessor(sessions, exec, reporter, newFakeStore(), ProcessorConfig{})

	job := &domain.Job{ID: "job-4", Type: domain.JobTypeInvite, AttemptsMade: 0}
	err := p.Process(context.Background(), job)

	require.NoError(t, err)
	outcome := reporter.lastOutcome(t)
	assert.Equal(t, domain.JobStatusFailed, outcome.Status)
	assert.Contains(t, outcome.Message, "session cookies")
}

func TestProcessorUnhealthySessionSkipsExecutor(t *testing.T) {
	sessions := newFakeSessions()
	sessions.health = browser.Health{BrowserHealthy: true, PageHealthy: false, Reason: "page context closed"}
	exec := &scriptedExecutor{result: &actions.Result{Message: "never"}}
	reporter := &fakeReporter{}
	p := newTestProcessor(sessions, exec, reporter, newFakeStore(), ProcessorConfig{MaxAttempts: 3})

	job := &domain.Job{ID: "job-5", Type: domain.JobTypeInvite}
	err := p.Process(context.Background(), job)

	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Zero(t, exec.callCount())
	assert.Equal(t, 1, sessions.releaseCount())
}

func TestProcessorAcquireFailure(t *testing.T) {
	sessions := newFakeSessions()
	sessions.acquireErr = domain.ErrSessionInit
	exec := &scriptedExecutor{}
	reporter := &fakeReporter{}
	p := newTestProcessor(sessions, exec, reporter, newFakeStore(), ProcessorConfig{MaxAttempts: 3})

	job := &domain.Job{ID: "job-6", Type: domain.JobTypeInvite}
	err := p.Process(context.Background(), job)

	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Zero(t, exec.callCount())
	assert.Zero(t, sessions.releaseCount())
}

func TestProcessorUnknownJobType(t *testing.T) {
	sessions := newFakeSessions()
	reporter := &fakeReporter{}
	p := NewProcessor(sessions, &fakeRegistry{err: domain.ErrUnknownJobType}, reporter, newFakeStore(), ProcessorConfig{}, testLogger())

	job := &domain.Job{ID: "job-7", Type: "unsupported"}
	err := p.Process(context.Background(), job)

	require.NoError(t, err)
	outcome := reporter.lastOutcome(t)
	assert.Equal(t, domain.JobStatusFailed, outcome.Status)
	assert.Zero(t, sessions.releaseCount())
}

func TestProcessorJobTimeout(t *testing.T) {
	sessions := newFakeSessions()
	exec := &scriptedExecutor{block: true}
	reporter := &fakeReporter{}
	p := newTestProcessor(sessions, exec, reporter, newFakeStore(), ProcessorConfig{
		JobTimeout:  50 * time.Millisecond,
		MaxAttempts: 3,
	})

	job := &domain.Job{ID: "job-8", Type: domain.JobTypeProfileView}
	err := p.Process(context.Background(), job)

	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, sessions.releaseCount())
}

func TestProcessorHeartbeatStopsBeforeCompletion(t *testing.T) {
	sessions := newFakeSessions()
	exec := &scriptedExecutor{result: &actions.Result{Message: "done"}, delay: 30 * time.Millisecond}
	store := newFakeStore()

	var before, after int
	reporter := &fakeReporter{}
	reporter.onCompletion = func() {
		before = store.heartbeatCount()
		time.Sleep(40 * time.Millisecond)
		after = store.heartbeatCount()
	}

	p := newTestProcessor(sessions, exec, reporter, store, ProcessorConfig{
		HeartbeatInterval: 5 * time.Millisecond,
	})

	job := &domain.Job{ID: "job-9", Type: domain.JobTypeInvite}
	require.NoError(t, p.Process(context.Background(), job))

	assert.Greater(t, before, 0, "heartbeat should have ticked during the action")
	assert.Equal(t, before, after, "heartbeat must stop before completion is reported")
}
