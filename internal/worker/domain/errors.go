package domain

import "errors"

var (
	// ErrAuthenticationFailed is raised when the automation session hits a
	// login wall or the stored session credential is rejected
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrBrowserCrash is raised when the browser process terminated unexpectedly
	ErrBrowserCrash = errors.New("browser crashed")

	// ErrFrameDetached is raised when the page execution context was
	// destroyed mid-operation
	ErrFrameDetached = errors.New("frame detached")

	// ErrConnectionLost is raised when the transport to the automation
	// session dropped
	ErrConnectionLost = errors.New("connection to browser lost")

	// ErrNavigationFailed is raised when the target page failed to load or
	// redirected somewhere unexpected
	ErrNavigationFailed = errors.New("navigation failed")

	// ErrActionNotApplicable is raised when the requested action cannot apply
	// to the target (already connected, messaging unavailable). Terminal on
	// the first attempt - retrying cannot change the target's state.
	ErrActionNotApplicable = errors.New("action not applicable to target")

	// ErrSessionUnhealthy is raised when the post-acquisition health probe
	// reports the session unusable before any action was attempted
	ErrSessionUnhealthy = errors.New("browser session unhealthy")

	// ErrSessionInit is raised when a browser session could not be acquired
	ErrSessionInit = errors.New("browser session initialization failed")

	// ErrUnknownJobType is raised when no executor is registered for a job type
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrMissingJobID marks a queue message with no job id
	ErrMissingJobID = errors.New("message missing job id")

	// ErrMissingTargetURL marks a queue message with no target URL
	ErrMissingTargetURL = errors.New("message missing target url")
)

// RetryableError wraps a failure whose classified category allows another
// attempt. The supervisor requeues the job when it sees one.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err so the queue's retry mechanism observes it
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries the retryable marker
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
