package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/jobharvest/internal/model"
	"github.com/amishk599/jobharvest/internal/report"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes the run report to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs the report via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs a summary, one line per site and one per qualifying posting.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(_ context.Context, r model.Report) error {
	n.logger.Info("run report", "summary", report.Summary(r))

	for _, rec := range r.Records {
		n.logger.Info("site result",
			"site", rec.SiteName,
			"status", rec.Status,
			"new", rec.New,
			"updated", rec.Updated,
			"vanished", rec.Vanished,
			"errors", rec.Errors,
		)
	}

	for _, cp := range r.Batch {
		f := cp.Posting.Fields
		args := []any{
			"site", cp.Posting.Site,
			"company", f.Company,
			"title", f.Title,
			"location", f.Location,
			"url", f.URL,
		}
		if f.PostedAt != nil {
			args = append(args, "posted_at", *f.PostedAt)
		}
		n.logger.Info(cp.Classification.String()+" posting", args...)
	}
	return nil
}
