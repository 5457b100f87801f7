package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the OpenAI API root; any compatible endpoint works.
const DefaultBaseURL = "https://api.openai.com/v1"

const maxResponseBytes = 1 << 20

// postingBriefSchema is enforced server-side through structured outputs and
// mirrors rawBrief.
var postingBriefSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"role_type": map[string]any{
			"type": "string",
			"enum": []string{
				"backend", "frontend", "fullstack", "infra", "SRE", "devops", "platform",
				"AI/ML", "data", "security", "mobile", "management", "design", "other",
			},
		},
		"seniority": map[string]any{"type": "string"},
		"tech_stack": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"key_points": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string"},
			"minItems": numKeyPoints,
			"maxItems": numKeyPoints,
		},
	},
	"required": []string{"role_type", "seniority", "tech_stack", "key_points"},
}

// OpenAIOptions configures an OpenAIProvider.
type OpenAIOptions struct {
	BaseURL    string // defaults to DefaultBaseURL
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// OpenAIProvider calls the /chat/completions endpoint with a JSON schema
// response format.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	p := &OpenAIProvider{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: opts.HTTPClient,
	}
	if p.baseURL == "" {
		p.baseURL = DefaultBaseURL
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return p
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    int            `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaSpec `json:"json_schema"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *chatError   `json:"error,omitempty"`
}

// Complete sends prompt and returns the content of the first choice, a JSON
// document conforming to postingBriefSchema.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You summarize job postings into structured data. Never invent facts the posting does not state."},
			{Role: "user", Content: prompt},
		},
		MaxTokens: 1024,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaSpec{
				Name:   "posting_brief",
				Strict: true,
				Schema: postingBriefSchema,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", fmt.Errorf("parse llm response: %w", err)
	}
	switch {
	case cr.Error != nil:
		return "", fmt.Errorf("llm error (%s): %s", cr.Error.Type, cr.Error.Message)
	case len(cr.Choices) == 0:
		return "", fmt.Errorf("llm returned no choices")
	}
	return cr.Choices[0].Message.Content, nil
}
