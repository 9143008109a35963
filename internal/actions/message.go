package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"

	"github.com/connectly/outreach-be/internal/worker/domain"
)

// Message flow selectors
const (
	selMessageButton  = `button[data-control-name="message"], a[href*="/messaging/"]`
	selComposerBox    = `div.msg-form__contenteditable, div[role="textbox"]`
	selSendMessageBtn = `button.msg-form__send-button, button[type="submit"]`
)

// MessageExecutor sends a direct message to the target profile. Only valid
// for existing connections - a missing message affordance is terminal.
type MessageExecutor struct {
	cfg    Config
	logger *slog.Logger
}

func (e *MessageExecutor) Execute(ctx context.Context, page context.Context, job *domain.Job) (*Result, error) {
	if err := navigate(page, job.TargetURL, e.cfg.NavTimeout); err != nil {
		return nil, err
	}

	canMessage, err := elementExists(page, selMessageButton, e.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("probe message button: %w", err)
	}
	if !canMessage {
		return nil, fmt.Errorf("%w: messaging unavailable for %s (not a connection?)", domain.ErrActionNotApplicable, job.TargetURL)
	}

	stepCtx, cancel := context.WithTimeout(page, e.cfg.StepTimeout)
	defer cancel()

	err = chromedp.Run(stepCtx,
		chromedp.Click(selMessageButton, chromedp.ByQuery),
		chromedp.WaitVisible(selComposerBox, chromedp.ByQuery),
		chromedp.SendKeys(selComposerBox, job.Message, chromedp.ByQuery),
		chromedp.Click(selSendMessageBtn, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	e.logger.Debug("Message sent",
		slog.String("job_id", job.ID),
		slog.String("target_url", job.TargetURL),
		slog.Int("message_len", len(job.Message)),
	)

	return &Result{Message: "message sent"}, nil
}
