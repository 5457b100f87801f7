package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/template"

	"github.com/amishk599/jobharvest/internal/model"
)

const (
	maxTechStack = 8
	numKeyPoints = 3
)

// Brief is the LLM's structured summary of one posting.
type Brief struct {
	RoleType  string
	Seniority string
	TechStack []string
	KeyPoints []string
}

// Summarizer turns postings into Briefs through an LLMProvider.
type Summarizer struct {
	provider LLMProvider
	tmpl     *template.Template
	logger   *slog.Logger
}

// NewSummarizer creates a summarizer. A nil tmpl uses PostingBriefTemplate.
func NewSummarizer(provider LLMProvider, tmpl *template.Template, logger *slog.Logger) *Summarizer {
	if tmpl == nil {
		tmpl = PostingBriefTemplate
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Summarizer{provider: provider, tmpl: tmpl, logger: logger}
}

// Summarize returns a brief of p, or nil when p has no description to work from.
func (s *Summarizer) Summarize(ctx context.Context, p model.Posting) (*Brief, error) {
	if p.Fields.Description == "" {
		return nil, nil
	}

	var prompt bytes.Buffer
	if err := s.tmpl.Execute(&prompt, p); err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	raw, err := s.provider.Complete(ctx, prompt.String())
	if err != nil {
		return nil, fmt.Errorf("llm complete: %w", err)
	}

	brief, err := parseBrief(raw)
	if err != nil {
		return nil, fmt.Errorf("parse brief: %w", err)
	}
	s.logger.Debug("posting summarized", "source_id", p.SourceID, "role_type", brief.RoleType)
	return brief, nil
}

// rawBrief is the JSON shape the provider returns (matches postingBriefSchema).
type rawBrief struct {
	RoleType  string   `json:"role_type"`
	Seniority string   `json:"seniority"`
	TechStack []string `json:"tech_stack"`
	KeyPoints []string `json:"key_points"`
}

func parseBrief(raw string) (*Brief, error) {
	var rb rawBrief
	if err := json.Unmarshal([]byte(raw), &rb); err != nil {
		return nil, fmt.Errorf("unmarshal brief JSON: %w", err)
	}

	b := &Brief{RoleType: rb.RoleType, Seniority: rb.Seniority}
	for _, t := range rb.TechStack {
		if t != "" && len(b.TechStack) < maxTechStack {
			b.TechStack = append(b.TechStack, t)
		}
	}
	for _, k := range rb.KeyPoints {
		if k != "" && len(b.KeyPoints) < numKeyPoints {
			b.KeyPoints = append(b.KeyPoints, k)
		}
	}
	return b, nil
}
