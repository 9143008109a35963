package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"

	"github.com/connectly/outreach-be/internal/worker/domain"
)

// Invite flow selectors
const (
	selConnectButton   = `button[data-control-name="connect"], button[aria-label*="connect" i]`
	selPendingBadge    = `button[aria-label*="Pending" i], .invitation-pending`
	selAddNoteButton   = `button[aria-label="Add a note"]`
	selNoteTextarea    = `textarea[name="message"], #custom-message`
	selSendInvite      = `button[aria-label*="Send" i]`
	selInviteConfirmed = `.artdeco-toast-item--success, .invite-sent`
)

// InviteExecutor sends a connection invite to the target profile, with an
// optional note.
type InviteExecutor struct {
	cfg    Config
	logger *slog.Logger
}

func (e *InviteExecutor) Execute(ctx context.Context, page context.Context, job *domain.Job) (*Result, error) {
	if err := navigate(page, job.TargetURL, e.cfg.NavTimeout); err != nil {
		return nil, err
	}

	pending, err := elementExists(page, selPendingBadge, e.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("probe pending state: %w", err)
	}
	if pending {
		return nil, fmt.Errorf("%w: invite already pending for %s", domain.ErrActionNotApplicable, job.TargetURL)
	}

	connectable, err := elementExists(page, selConnectButton, e.cfg.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("probe connect button: %w", err)
	}
	if !connectable {
		return nil, fmt.Errorf("%w: no connect action available for %s (already connected?)", domain.ErrActionNotApplicable, job.TargetURL)
	}

	stepCtx, cancel := context.WithTimeout(page, e.cfg.StepTimeout)
	defer cancel()

	if err := chromedp.Run(stepCtx, chromedp.Click(selConnectButton, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("click connect: %w", err)
	}

	if job.Note != "" {
		if err := chromedp.Run(stepCtx,
			chromedp.Click(selAddNoteButton, chromedp.ByQuery),
			chromedp.WaitVisible(selNoteTextarea, chromedp.ByQuery),
			chromedp.SendKeys(selNoteTextarea, job.Note, chromedp.ByQuery),
		); err != nil {
			return nil, fmt.Errorf("add invite note: %w", err)
		}
	}

	if err := chromedp.Run(stepCtx, chromedp.Click(selSendInvite, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("send invite: %w", err)
	}

	e.logger.Debug("Invite sent",
		slog.String("job_id", job.ID),
		slog.String("target_url", job.TargetURL),
		slog.Bool("with_note", job.Note != ""),
	)

	return &Result{Message: "connection invite sent"}, nil
}
