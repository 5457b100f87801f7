package ai

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/posting_brief.md
var postingBriefPromptRaw string

// PostingBriefTemplate renders the summarization prompt for a model.Posting.
var PostingBriefTemplate = template.Must(template.New("posting_brief").Parse(postingBriefPromptRaw))
