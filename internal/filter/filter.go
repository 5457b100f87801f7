package filter

import (
	"strings"

	"github.com/amishk599/jobharvest/internal/model"
)

// Criteria lists case-insensitive substrings. Empty include lists match all;
// empty exclude lists reject nothing.
type Criteria struct {
	TitleKeywords        []string
	TitleExcludeKeywords []string
	Locations            []string
	ExcludeLocations     []string
}

// TitleAndLocationFilter matches postings whose title contains any include
// keyword and none of the exclude keywords, and likewise for location.
type TitleAndLocationFilter struct {
	titleKeywords    []string
	titleExclude     []string
	locations        []string
	excludeLocations []string
}

var _ model.PostingFilter = (*TitleAndLocationFilter)(nil)

// NewTitleAndLocationFilter lowercases the criteria once up front.
func NewTitleAndLocationFilter(c Criteria) *TitleAndLocationFilter {
	return &TitleAndLocationFilter{
		titleKeywords:    lowerAll(c.TitleKeywords),
		titleExclude:     lowerAll(c.TitleExcludeKeywords),
		locations:        lowerAll(c.Locations),
		excludeLocations: lowerAll(c.ExcludeLocations),
	}
}

// Match reports whether p passes both the title and the location criteria.
func (f *TitleAndLocationFilter) Match(p model.Posting) bool {
	title := strings.ToLower(p.Fields.Title)
	location := strings.ToLower(p.Fields.Location)

	if len(f.titleKeywords) > 0 && !containsAny(title, f.titleKeywords) {
		return false
	}
	if containsAny(title, f.titleExclude) {
		return false
	}
	if len(f.locations) > 0 && !containsAny(location, f.locations) {
		return false
	}
	if containsAny(location, f.excludeLocations) {
		return false
	}
	return true
}

// Apply keeps the entries of batch that match f, preserving order.
func Apply(f model.PostingFilter, batch []model.ClassifiedPosting) []model.ClassifiedPosting {
	var out []model.ClassifiedPosting
	for _, cp := range batch {
		if f.Match(cp.Posting) {
			out = append(out, cp)
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
