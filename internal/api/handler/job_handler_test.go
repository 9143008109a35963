package handler

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connectly/outreach-be/internal/api/dto"
	"github.com/connectly/outreach-be/internal/api/model"
	"github.com/connectly/outreach-be/internal/worker/domain"
)

func TestValidateJobRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       dto.CreateJobRequest
		errString string
	}{
		{
			name: "valid invite",
			req:  dto.CreateJobRequest{Type: "invite", TargetURL: "https://www.linkedin.com/in/a", Priority: 5},
		},
		{
			name: "valid message",
			req:  dto.CreateJobRequest{Type: "message", TargetURL: "https://www.linkedin.com/in/a", Message: "hi"},
		},
		{
			name: "valid profile view with delay",
			req:  dto.CreateJobRequest{Type: "profile_view", TargetURL: "https://www.linkedin.com/in/a", DelayMs: 60000},
		},
		{
			name:      "unknown type",
			req:       dto.CreateJobRequest{Type: "endorse", TargetURL: "https://x"},
			errString: "type must be one of",
		},
		{
			name: "priority zero means unset",
			req:  dto.CreateJobRequest{Type: "invite", TargetURL: "https://x"},
		},
		{
			name:      "priority too high",
			req:       dto.CreateJobRequest{Type: "invite", TargetURL: "https://x", Priority: 11},
			errString: "priority must be between 0 and 10",
		},
		{
			name:      "priority negative",
			req:       dto.CreateJobRequest{Type: "invite", TargetURL: "https://x", Priority: -1},
			errString: "priority must be between 0 and 10",
		},
		{
			name:      "negative delay",
			req:       dto.CreateJobRequest{Type: "invite", TargetURL: "https://x", DelayMs: -1},
			errString: "delay_ms must not be negative",
		},
		{
			name:      "message job without message",
			req:       dto.CreateJobRequest{Type: "message", TargetURL: "https://x"},
			errString: "message is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validateJobRequest(&tt.req)
			if tt.errString == "" {
				assert.Empty(t, got)
			} else {
				assert.Contains(t, got, tt.errString)
			}
		})
	}
}

func TestBuildJob(t *testing.T) {
	req := dto.CreateJobRequest{
		Type:        "invite",
		TargetURL:   "https://www.linkedin.com/in/someone",
		Note:        "hello",
		DelayMs:     1500,
		CallbackURL: "https://caller.example/cb",
	}

	msg, record, err := buildJob(&req, "run-1")
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, msg.ID, record.JobID)
	assert.Equal(t, defaultPriority, msg.Priority, "zero priority falls back to the default")
	assert.Equal(t, "run-1", msg.WorkflowRunID)
	assert.Equal(t, domain.JobStatusPending, record.Status)
	assert.True(t, record.WorkflowRunID.Valid)
	assert.Equal(t, "run-1", record.WorkflowRunID.String)

	// The stored job_data must round-trip into the queue message
	var stored domain.Job
	require.NoError(t, json.Unmarshal(record.JobData, &stored))
	assert.Equal(t, msg.ID, stored.ID)
	assert.Equal(t, "hello", stored.Note)
	assert.Equal(t, 1500, stored.DelayMs)
	assert.Equal(t, "https://caller.example/cb", stored.CallbackURL)
}

func TestBuildJobStandalone(t *testing.T) {
	req := dto.CreateJobRequest{Type: "profile_view", TargetURL: "https://x/in/b", Priority: 9}

	msg, record, err := buildJob(&req, "")
	require.NoError(t, err)
	assert.Equal(t, 9, msg.Priority)
	assert.Empty(t, msg.WorkflowRunID)
	assert.False(t, record.WorkflowRunID.Valid)
}

func TestJobToDTO(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	completed := created.Add(90 * time.Second)

	job := &model.Job{
		JobID:         "job-1",
		WorkflowRunID: sql.NullString{String: "run-1", Valid: true},
		JobType:       "invite",
		JobData:       []byte(`{"target_url":"https://www.linkedin.com/in/a"}`),
		Status:        domain.JobStatusCompleted,
		Attempts:      2,
		StalledCount:  1,
		CreatedAt:     created,
		CompletedAt:   sql.NullTime{Time: completed, Valid: true},
		Result:        []byte(`{"success":true,"message":"Invitation sent"}`),
	}

	out := jobToDTO(job)
	assert.Equal(t, "job-1", out.JobID)
	assert.Equal(t, "run-1", out.WorkflowRunID)
	assert.Equal(t, "https://www.linkedin.com/in/a", out.TargetURL)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 1, out.StalledCount)
	assert.Equal(t, created.Format(time.RFC3339), out.CreatedAt)
	assert.Equal(t, completed.Format(time.RFC3339), out.CompletedAt)
	assert.Empty(t, out.StartedAt)
	assert.Empty(t, out.ErrorMessage)

	result, ok := out.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["success"])
}
