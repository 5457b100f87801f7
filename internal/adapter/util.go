package adapter

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/amishk599/jobharvest/internal/model"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// extractText converts an HTML or HTML-encoded string to plain text.
// It first unescapes HTML entities (handles Greenhouse's double-encoding;
// no-op on already-real HTML), strips all tags, then collapses whitespace.
func extractText(content string) string {
	unescaped := html.UnescapeString(content)
	plain := htmlTagRegex.ReplaceAllString(unescaped, " ")
	return strings.Join(strings.Fields(plain), " ")
}

// deriveID builds a stable native id for cards that carry none.
func deriveID(identifier string) string {
	sum := md5.Sum([]byte(identifier))
	return hex.EncodeToString(sum[:])[:12]
}

// parseFailure builds the empty, terminal page returned for unparseable bodies.
func parseFailure(kind string, err error) model.Page {
	return model.Page{ParseErr: fmt.Errorf("%s: %w: %v", kind, model.ErrParseFailure, err)}
}
