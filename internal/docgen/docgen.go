// Package docgen writes one document per qualifying posting.
package docgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/amishk599/jobharvest/internal/ai"
	"github.com/amishk599/jobharvest/internal/model"
)

// DefaultTemplate renders a Markdown brief of the posting.
const DefaultTemplate = `# {{ .Fields.Title }}

- **Company:** {{ or .Fields.Company "unknown" }}
- **Location:** {{ or .Fields.Location "unknown" }}
{{- if .Fields.Compensation }}
- **Compensation:** {{ .Fields.Compensation }}
{{- end }}
{{- if .Fields.PostedAt }}
- **Posted:** {{ date .Fields.PostedAt }}
{{- end }}
- **Source:** {{ .Site }} ({{ .Classification }})
- **First seen:** {{ ago .FirstSeenAt }}
- **Link:** {{ .Fields.URL }}
{{- with .Brief }}

## Summary

- **Role:** {{ .RoleType }}{{ if .Seniority }} ({{ .Seniority }}){{ end }}
{{- if .TechStack }}
- **Stack:** {{ join .TechStack ", " }}
{{- end }}
{{ range .KeyPoints }}
- {{ . }}
{{- end }}
{{- end }}

## Description

{{ .Fields.Description }}
`

// document is the template's data: the posting, its classification and an
// optional brief.
type document struct {
	model.Posting
	Classification string
	Brief          *ai.Brief
}

// Summarizer produces the optional brief embedded in each document.
type Summarizer interface {
	Summarize(ctx context.Context, p model.Posting) (*ai.Brief, error)
}

// Generator renders postings into <outDir>/<site>/<native-id>.md.
type Generator struct {
	outDir     string
	tmpl       *template.Template
	summarizer Summarizer
	logger     *slog.Logger
}

var _ model.DocumentGenerator = (*Generator)(nil)

// New parses tmplText (DefaultTemplate when empty) and returns a generator
// writing below outDir.
func New(outDir, tmplText string) (*Generator, error) {
	if outDir == "" {
		return nil, fmt.Errorf("docgen: output directory is required")
	}
	if tmplText == "" {
		tmplText = DefaultTemplate
	}
	tmpl, err := template.New("posting").Funcs(template.FuncMap{
		"date": func(t *time.Time) string { return t.Format("2006-01-02") },
		"ago":  humanize.Time,
		"join": strings.Join,
	}).Parse(tmplText)
	if err != nil {
		return nil, fmt.Errorf("docgen: parse template: %w", err)
	}
	return &Generator{outDir: outDir, tmpl: tmpl, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, nil
}

// WithSummarizer embeds a brief from s in every document. A failed summary
// is logged and the document is written without it.
func (g *Generator) WithSummarizer(s Summarizer, logger *slog.Logger) *Generator {
	g.summarizer = s
	if logger != nil {
		g.logger = logger
	}
	return g
}

// NewFromFile reads the template from path. An empty path uses the default.
func NewFromFile(outDir, path string) (*Generator, error) {
	if path == "" {
		return New(outDir, "")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("docgen: read template: %w", err)
	}
	return New(outDir, string(data))
}

// Generate writes the document for cp and returns its path. Rewriting the
// same posting replaces the previous document.
func (g *Generator) Generate(ctx context.Context, cp model.ClassifiedPosting) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p := cp.Posting
	dir := filepath.Join(g.outDir, safeName(p.Site))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("docgen: create dir: %w", err)
	}

	doc := document{Posting: p, Classification: cp.Classification.String()}
	if g.summarizer != nil {
		brief, err := g.summarizer.Summarize(ctx, p)
		if err != nil {
			g.logger.Warn("summary failed, writing document without it", "source_id", p.SourceID, "error", err)
		}
		doc.Brief = brief
	}

	var buf strings.Builder
	if err := g.tmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("docgen: render %s: %w", p.SourceID, err)
	}

	path := filepath.Join(dir, safeName(p.NativeID)+".md")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o644); err != nil {
		return "", fmt.Errorf("docgen: write %s: %w", p.SourceID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("docgen: write %s: %w", p.SourceID, err)
	}
	return path, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeName keeps a path component inside its directory. Names that had to
// be rewritten get a short hash of the original so distinct ids such as
// "a/b" and "a_b" never share a file.
func safeName(s string) string {
	name := unsafeChars.ReplaceAllString(s, "_")
	name = strings.Trim(name, "._")
	if name == s {
		return name
	}
	if name == "" {
		name = "_"
	}
	sum := sha256.Sum256([]byte(s))
	return name + "-" + hex.EncodeToString(sum[:4])
}
