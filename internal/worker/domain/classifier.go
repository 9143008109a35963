package domain

import (
	"context"
	"errors"
	"strings"
)

// ErrorType tags a failure with its taxonomy category
type ErrorType string

const (
	ErrorAuthenticationFailed ErrorType = "authentication_failed"
	ErrorBrowserCrash         ErrorType = "browser_crash"
	ErrorFrameDetached        ErrorType = "frame_detached"
	ErrorConnectionLost       ErrorType = "connection_lost"
	ErrorNavigationFailed     ErrorType = "navigation_failed"
	ErrorUnknown              ErrorType = "unknown"
)

// ErrorCategory carries the retry/recoverability policy for a classified failure
type ErrorCategory struct {
	Type        ErrorType
	Retryable   bool
	Recoverable bool
	Description string
}

// Classify maps any failure to a category. Total: unrecognized errors fall
// through to a generic retryable category. Authentication failures and
// not-applicable actions are non-retryable - a stale credential or an
// already-connected target never changes on retry.
func Classify(err error) ErrorCategory {
	switch {
	case err == nil:
		return ErrorCategory{Type: ErrorUnknown, Retryable: true, Recoverable: true, Description: "no error"}

	case errors.Is(err, ErrAuthenticationFailed):
		return ErrorCategory{
			Type:        ErrorAuthenticationFailed,
			Description: "session credential rejected or login wall detected",
		}

	case errors.Is(err, ErrActionNotApplicable):
		return ErrorCategory{
			Type:        ErrorUnknown,
			Description: "action not applicable to target",
		}

	case errors.Is(err, ErrBrowserCrash):
		return ErrorCategory{
			Type: ErrorBrowserCrash, Retryable: true, Recoverable: true,
			Description: "browser process terminated unexpectedly",
		}

	case errors.Is(err, ErrFrameDetached):
		return ErrorCategory{
			Type: ErrorFrameDetached, Retryable: true, Recoverable: true,
			Description: "page execution context destroyed mid-operation",
		}

	case errors.Is(err, ErrConnectionLost):
		return ErrorCategory{
			Type: ErrorConnectionLost, Retryable: true, Recoverable: true,
			Description: "transport to the browser session dropped",
		}

	case errors.Is(err, ErrNavigationFailed), errors.Is(err, context.DeadlineExceeded):
		return ErrorCategory{
			Type: ErrorNavigationFailed, Retryable: true, Recoverable: true,
			Description: "target page failed to load or operation timed out",
		}
	}

	return classifyByMessage(strings.ToLower(err.Error()))
}

// classifyByMessage pattern-matches errors raised outside our own sentinel
// set - chromedp and cdp surface most failures as plain error strings.
func classifyByMessage(msg string) ErrorCategory {
	switch {
	case containsAny(msg, "login", "sign in", "signin", "auth", "session_key", "credential"):
		return ErrorCategory{
			Type:        ErrorAuthenticationFailed,
			Description: "session credential rejected or login wall detected",
		}

	case containsAny(msg, "browser has been closed", "chrome process", "target crashed", "process exited", "exec allocator"):
		return ErrorCategory{
			Type: ErrorBrowserCrash, Retryable: true, Recoverable: true,
			Description: "browser process terminated unexpectedly",
		}

	case containsAny(msg, "execution context", "frame detached", "cannot find context", "node with given id"):
		return ErrorCategory{
			Type: ErrorFrameDetached, Retryable: true, Recoverable: true,
			Description: "page execution context destroyed mid-operation",
		}

	case containsAny(msg, "websocket", "connection closed", "connection reset", "broken pipe", "unexpected eof"):
		return ErrorCategory{
			Type: ErrorConnectionLost, Retryable: true, Recoverable: true,
			Description: "transport to the browser session dropped",
		}

	case containsAny(msg, "net::err", "navigate", "navigation", "redirect", "timeout", "deadline exceeded", "page load"):
		return ErrorCategory{
			Type: ErrorNavigationFailed, Retryable: true, Recoverable: true,
			Description: "target page failed to load or operation timed out",
		}
	}

	return ErrorCategory{
		Type: ErrorUnknown, Retryable: true, Recoverable: true,
		Description: "unrecognized failure",
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FailureMessage builds the user-visible error message for a classified
// failure. Never a raw stack trace; authentication failures get an
// actionable hint about refreshing credentials.
func FailureMessage(cat ErrorCategory, err error) string {
	if cat.Type == ErrorAuthenticationFailed {
		return "Authentication failed - the stored session credential was rejected. Refresh the account's session cookies and retry the job."
	}
	return cat.Description + ": " + err.Error()
}
