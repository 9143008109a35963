package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectly/outreach-be/internal/worker/domain"
	"github.com/connectly/outreach-be/shared/logger"
)

func TestNewRegistry_Defaults(t *testing.T) {
	r := NewRegistry(Config{}, logger.NewDefault())

	for _, jobType := range []string{domain.JobTypeInvite, domain.JobTypeMessage, domain.JobTypeProfileView} {
		executor, err := r.Get(jobType)
		require.NoError(t, err, jobType)
		assert.NotNil(t, executor, jobType)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry(Config{}, logger.NewDefault())

	executor, err := r.Get("endorse")

	assert.Nil(t, executor)
	assert.ErrorIs(t, err, domain.ErrUnknownJobType)
	assert.Contains(t, err.Error(), "endorse")
}

type stubExecutor struct{}

func (s *stubExecutor) Execute(ctx context.Context, page context.Context, job *domain.Job) (*Result, error) {
	return &Result{Message: "stubbed"}, nil
}

func TestRegistry_RegisterOverride(t *testing.T) {
	r := NewRegistry(Config{}, logger.NewDefault())
	stub := &stubExecutor{}

	r.Register(domain.JobTypeInvite, stub)

	got, err := r.Get(domain.JobTypeInvite)
	require.NoError(t, err)
	assert.Same(t, stub, got)
}
