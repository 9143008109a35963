package domain

// Job record status values
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusRetry      = "retry"
)

// Workflow run status values
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Job type values
const (
	JobTypeInvite      = "invite"
	JobTypeMessage     = "message"
	JobTypeProfileView = "profile_view"
)

// KnownJobType reports whether t is one of the supported automation job types
func KnownJobType(t string) bool {
	switch t {
	case JobTypeInvite, JobTypeMessage, JobTypeProfileView:
		return true
	}
	return false
}
