package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobharvest/internal/model"
	"github.com/amishk599/jobharvest/internal/report"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier sends run reports to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
	pause      time.Duration // between messages, to stay under Slack's rate limit
}

// NewSlackNotifier returns a notifier that posts the report to Slack via webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
		pause:      500 * time.Millisecond,
	}
}

// Notify sends a summary message followed by one Block Kit message per
// qualifying posting. Returns an error only if ALL messages fail.
// Individual failures are logged.
func (s *SlackNotifier) Notify(ctx context.Context, r model.Report) error {
	messages := []slackPayload{buildSummaryPayload(r)}
	for _, cp := range r.Batch {
		messages = append(messages, buildPayload(cp))
	}

	failures := 0
	for i, msg := range messages {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.pause):
			}
		}

		if err := s.sendMessage(ctx, msg); err != nil {
			s.logger.Error("slack notification failed", "message", i, "error", err)
			failures++
		}
	}

	if failures == len(messages) {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	s.logger.Info("slack notifications complete", "sent", len(messages)-failures, "failed", failures)
	return nil
}

func (s *SlackNotifier) sendMessage(ctx context.Context, payload slackPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(ctx, body)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}

	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}

		status, _, err = s.post(ctx, body)
		if err != nil {
			return fmt.Errorf("post to slack (retry): %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", status)
		}
		return nil
	}

	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	if secs <= 0 {
		secs = 1
	}
	return resp.StatusCode, time.Duration(secs) * time.Second, nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style"`
}

// SendTestMessage sends a one-site report with a dummy posting to verify the
// integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	now := time.Now().UTC()
	posting := model.Posting{
		SourceID: "test:test-001",
		Site:     "test",
		NativeID: "test-001",
		Fields: model.Fields{
			Title:    "Test Notification: Integration Verified",
			Company:  "jobharvest",
			Location: "Everywhere",
			URL:      "https://example.org/jobs/test-001",
			PostedAt: &now,
		},
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	return n.Notify(ctx, model.Report{
		StartedAt:   now,
		CompletedAt: now,
		Records: []model.SiteRunRecord{{
			SiteName:       "test",
			Status:         model.RunCompleted,
			RunStartedAt:   now,
			RunCompletedAt: now,
			PagesFetched:   1,
			PostingsSeen:   1,
			New:            1,
		}},
		Batch: []model.ClassifiedPosting{{Posting: posting, Classification: model.New}},
	})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func buildSummaryPayload(r model.Report) slackPayload {
	var lines []string
	for _, rec := range r.Records {
		line := fmt.Sprintf("*%s* %s: %d new, %d updated, %d vanished",
			rec.SiteName, rec.Status, rec.New, rec.Updated, rec.Vanished)
		if rec.Errors > 0 {
			line += fmt.Sprintf(" (%d errors)", rec.Errors)
		}
		lines = append(lines, line)
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "jobharvest run report"},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: report.Summary(r)},
		},
	}
	if len(lines) > 0 {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: strings.Join(lines, "\n")},
		})
	}
	blocks = append(blocks, slackBlock{Type: "divider"})
	return slackPayload{Blocks: blocks}
}

func buildPayload(cp model.ClassifiedPosting) slackPayload {
	f := cp.Posting.Fields

	postedText := "Just detected"
	if f.PostedAt != nil {
		pst, err := time.LoadLocation("America/Los_Angeles")
		if err == nil {
			postedText = f.PostedAt.In(pst).Format(time.RFC1123)
		} else {
			postedText = f.PostedAt.Format(time.RFC1123)
		}
	}

	icon := "🆕"
	if cp.Classification == model.Updated {
		icon = "✏️"
	}
	company := capitalize(f.Company)
	if company == "" {
		company = cp.Posting.Site
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: icon + " " + company + ": " + f.Title},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Company:*\n" + company},
				{Type: "mrkdwn", Text: "*Location:*\n" + f.Location},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Posted:*\n" + postedText},
				{Type: "mrkdwn", Text: "*Source:*\n" + capitalize(cp.Posting.Site)},
			},
		},
	}

	if f.Compensation != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Compensation:* " + f.Compensation},
		})
	}

	blocks = append(blocks,
		slackBlock{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  slackText{Type: "plain_text", Text: "Apply Now"},
					URL:   f.URL,
					Style: "primary",
				},
			},
		},
		slackBlock{Type: "divider"},
	)

	return slackPayload{Blocks: blocks}
}
