// Package ai produces short LLM-written briefs of postings for the document
// phase. It is optional and only used when documents.summarize is enabled.
package ai

import "context"

// LLMProvider sends a prompt to an LLM and returns the raw text response.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
