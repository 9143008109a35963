package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantRetryable bool
	}{
		{
			name:          "auth sentinel",
			err:           fmt.Errorf("invite failed: %w", ErrAuthenticationFailed),
			wantType:      ErrorAuthenticationFailed,
			wantRetryable: false,
		},
		{
			name:          "login wall message",
			err:           errors.New("redirected to sign in page"),
			wantType:      ErrorAuthenticationFailed,
			wantRetryable: false,
		},
		{
			name:          "browser crash sentinel",
			err:           fmt.Errorf("run action: %w", ErrBrowserCrash),
			wantType:      ErrorBrowserCrash,
			wantRetryable: true,
		},
		{
			name:          "chromedp closed browser",
			err:           errors.New("browser has been closed"),
			wantType:      ErrorBrowserCrash,
			wantRetryable: true,
		},
		{
			name:          "frame detached message",
			err:           errors.New("execution context destroyed"),
			wantType:      ErrorFrameDetached,
			wantRetryable: true,
		},
		{
			name:          "websocket drop",
			err:           errors.New("websocket: close 1006 (abnormal closure)"),
			wantType:      ErrorConnectionLost,
			wantRetryable: true,
		},
		{
			name:          "navigation failure",
			err:           errors.New("page load error net::ERR_NAME_NOT_RESOLVED"),
			wantType:      ErrorNavigationFailed,
			wantRetryable: true,
		},
		{
			name:          "job timeout via context deadline",
			err:           fmt.Errorf("execute: %w", context.DeadlineExceeded),
			wantType:      ErrorNavigationFailed,
			wantRetryable: true,
		},
		{
			name:          "already connected is terminal",
			err:           fmt.Errorf("invite: %w", ErrActionNotApplicable),
			wantType:      ErrorUnknown,
			wantRetryable: false,
		},
		{
			name:          "unrecognized error defaults to retryable unknown",
			err:           errors.New("something odd happened"),
			wantType:      ErrorUnknown,
			wantRetryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := Classify(tt.err)

			assert.Equal(t, tt.wantType, cat.Type)
			assert.Equal(t, tt.wantRetryable, cat.Retryable)
			assert.NotEmpty(t, cat.Description)
		})
	}
}

func TestClassify_Total(t *testing.T) {
	// Every input, including nil, must map to some category
	cat := Classify(nil)
	assert.Equal(t, ErrorUnknown, cat.Type)

	cat = Classify(errors.New(""))
	assert.Equal(t, ErrorUnknown, cat.Type)
	assert.True(t, cat.Retryable)
}

func TestFailureMessage(t *testing.T) {
	authCat := Classify(ErrAuthenticationFailed)
	msg := FailureMessage(authCat, ErrAuthenticationFailed)
	assert.Contains(t, msg, "Refresh the account's session cookies")

	navErr := errors.New("net::ERR_CONNECTION_REFUSED")
	navCat := Classify(navErr)
	msg = FailureMessage(navCat, navErr)
	assert.Contains(t, msg, navCat.Description)
	assert.Contains(t, msg, navErr.Error())
}

func TestRetryableError(t *testing.T) {
	base := errors.New("transient")
	wrapped := NewRetryableError(base)

	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsRetryable(fmt.Errorf("outer: %w", wrapped)))
	assert.False(t, IsRetryable(base))
	assert.ErrorIs(t, wrapped, base)
}

func TestComputeRunStatus(t *testing.T) {
	tests := []struct {
		name     string
		counters RunCounters
		want     string
	}{
		{"nothing settled", RunCounters{Total: 3}, RunStatusRunning},
		{"partially settled", RunCounters{Total: 3, Completed: 1, Failed: 1}, RunStatusRunning},
		{"all completed", RunCounters{Total: 3, Completed: 3}, RunStatusCompleted},
		{"all settled with a failure", RunCounters{Total: 3, Completed: 2, Failed: 1}, RunStatusFailed},
		{"all failed", RunCounters{Total: 2, Failed: 2}, RunStatusFailed},
		{"empty run", RunCounters{}, RunStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeRunStatus(tt.counters))
		})
	}
}
