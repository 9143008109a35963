package actions

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/connectly/outreach-be/internal/worker/domain"
)

// ProfileViewExecutor visits the target profile and dwells long enough for
// the view to register. Scrolling makes the visit look like a real read and
// triggers lazy-loaded sections.
type ProfileViewExecutor struct {
	cfg    Config
	logger *slog.Logger
}

func (e *ProfileViewExecutor) Execute(ctx context.Context, page context.Context, job *domain.Job) (*Result, error) {
	if err := navigate(page, job.TargetURL, e.cfg.NavTimeout); err != nil {
		return nil, err
	}

	stepCtx, cancel := context.WithTimeout(page, e.cfg.StepTimeout)
	defer cancel()

	err := chromedp.Run(stepCtx,
		chromedp.Evaluate(`window.scrollTo({top: document.body.scrollHeight / 2, behavior: "smooth"})`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`window.scrollTo({top: document.body.scrollHeight, behavior: "smooth"})`, nil),
		chromedp.Sleep(1*time.Second),
	)
	if err != nil {
		// The view already registered on navigation; scroll failures
		// degrade the dwell, not the outcome.
		e.logger.Debug("Profile scroll failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}

	e.logger.Debug("Profile viewed",
		slog.String("job_id", job.ID),
		slog.String("target_url", job.TargetURL),
	)

	return &Result{Message: "profile viewed"}, nil
}
