package adapter

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/amishk599/jobharvest/internal/model"
)

// maxDescriptionLen is where card descriptions are cut off.
const maxDescriptionLen = 2000

// Selectors are CSS selector cascades for the html adapter. Within each list
// the first selector that yields a non-empty match wins. Empty lists fall
// back to the defaults.
type Selectors struct {
	Card       []string
	Title      []string
	Company    []string
	Location   []string
	Pagination []string
}

var defaultSelectors = Selectors{
	Card: []string{
		`div[class*="job"]`,
		`div[class*="listing"]`,
		`div[class*="card"]`,
		`div[class*="result"]`,
		`article`,
		`.job-item`,
		`.job-listing`,
		`.search-result`,
	},
	Title:      []string{"h1", "h2", "h3", ".title", ".job-title", `[class*="title"]`},
	Company:    []string{".company", ".company-name", `[class*="company"]`},
	Location:   []string{".location", `[class*="location"]`, ".address"},
	Pagination: []string{".pagination", ".pager", `[class*="page"]`, `a[href*="page"]`},
}

func (s Selectors) withDefaults() Selectors {
	if len(s.Card) == 0 {
		s.Card = defaultSelectors.Card
	}
	if len(s.Title) == 0 {
		s.Title = defaultSelectors.Title
	}
	if len(s.Company) == 0 {
		s.Company = defaultSelectors.Company
	}
	if len(s.Location) == 0 {
		s.Location = defaultSelectors.Location
	}
	if len(s.Pagination) == 0 {
		s.Pagination = defaultSelectors.Pagination
	}
	return s
}

var jobTitleKeywords = []string{
	"engineer", "scientist", "developer", "analyst", "manager", "director",
	"specialist", "consultant", "architect", "lead", "senior", "junior",
	"data", "machine learning", "ai", "artificial intelligence", "ml",
	"software", "backend", "frontend", "fullstack", "devops", "cloud",
}

var (
	locationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Z][a-z]+,\s*[A-Z]{2}\b`),
		regexp.MustCompile(`\bRemote\b`),
		regexp.MustCompile(`\b(?:New York|San Francisco|Los Angeles|Chicago|Boston|Seattle|Austin)\b`),
	}
	salaryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$[\d,]+\s*-\s*\$[\d,]+`),
		regexp.MustCompile(`(?i)[\d,]+\s*-\s*[\d,]+\s*USD`),
		regexp.MustCompile(`(?i)\$?[\d,]+k\s*-\s*\$?[\d,]+k`),
		regexp.MustCompile(`\$[\d,]+\+?`),
	}
)

// HTMLAdapter scrapes server-rendered search result pages. Cards are found
// with a selector cascade, and each field is extracted with its own cascade
// plus text heuristics when no selector matches.
type HTMLAdapter struct {
	baseURL   *url.URL
	template  string
	company   string
	selectors Selectors
}

// NewHTMLAdapter creates an adapter for a generic listing site. The search
// URL template must contain a {page} placeholder.
func NewHTMLAdapter(site Site) (*HTMLAdapter, error) {
	if !strings.Contains(site.SearchURLTemplate, "{page}") {
		return nil, errors.New("html: search_url_template must contain {page}")
	}
	base, err := url.Parse(site.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.New("html: base_url must be an absolute URL")
	}
	return &HTMLAdapter{
		baseURL:   base,
		template:  site.SearchURLTemplate,
		company:   site.Company,
		selectors: site.Selectors.withDefaults(),
	}, nil
}

func (a *HTMLAdapter) BuildRequest(page int) (model.RequestDescriptor, error) {
	if page < 1 {
		return model.RequestDescriptor{}, errors.New("html: page numbers start at 1")
	}
	return model.RequestDescriptor{
		Method: http.MethodGet,
		URL:    strings.ReplaceAll(a.template, "{page}", strconv.Itoa(page)),
	}, nil
}

func (a *HTMLAdapter) Parse(page int, body []byte) model.Page {
	if len(bytes.TrimSpace(body)) == 0 {
		return parseFailure("html", errors.New("empty body"))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return parseFailure("html", err)
	}
	if doc.Find("body").Children().Length() == 0 {
		return parseFailure("html", errors.New("document has no body content"))
	}

	var postings []model.RawPosting
	a.cards(doc).Each(func(_ int, card *goquery.Selection) {
		if raw, ok := a.parseCard(card); ok {
			postings = append(postings, raw)
		}
	})

	// A first page without a single card is a layout the cascade does not
	// understand, not an empty board.
	if page == 1 && len(postings) == 0 {
		return parseFailure("html", errors.New("no job cards found"))
	}

	return model.Page{Postings: postings, HasNext: a.hasNextPage(doc, page, len(postings))}
}

// cards returns the matches of the first card selector that finds anything,
// falling back to small leaf divs that mention a job keyword.
func (a *HTMLAdapter) cards(doc *goquery.Document) *goquery.Selection {
	for _, sel := range a.selectors.Card {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return doc.Find("div").FilterFunction(func(_ int, s *goquery.Selection) bool {
		if s.Find("div").Length() > 0 {
			return false
		}
		text := strings.ToLower(s.Text())
		return containsAny(text, "engineer", "scientist", "developer", "analyst", "manager") &&
			len(strings.Fields(text)) > 10 && len(text) < maxDescriptionLen
	})
}

func (a *HTMLAdapter) parseCard(card *goquery.Selection) (model.RawPosting, bool) {
	text := collapse(card.Text())
	if len(text) < 20 {
		return model.RawPosting{}, false
	}

	title := a.title(card)
	if title == "" {
		return model.RawPosting{}, false
	}

	company := firstText(card, a.selectors.Company)
	if company == "" {
		company = a.company
	}
	if company == "" {
		company = companyFromLines(card, title)
	}

	location := firstText(card, a.selectors.Location)
	if location == "" {
		location = matchFirst(locationPatterns, text)
	}

	link := a.link(card)
	id := cardID(card)
	switch {
	case id != "":
	case link != "":
		id = deriveID(link)
	default:
		id = deriveID(company + "_" + title)
	}

	description := truncateRunes(text, maxDescriptionLen)

	return model.RawPosting{
		NativeID:     id,
		Title:        title,
		Company:      company,
		Location:     location,
		URL:          link,
		Compensation: matchFirst(salaryPatterns, text),
		Description:  description,
		RawText:      text,
	}, true
}

func (a *HTMLAdapter) title(card *goquery.Selection) string {
	if t := firstText(card, a.selectors.Title); t != "" {
		return t
	}
	for _, sel := range []string{"strong, b", "a"} {
		var found string
		card.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := collapse(s.Text()); looksLikeJobTitle(t) {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	for i, line := range cardLines(card) {
		if i >= 5 {
			break
		}
		if looksLikeJobTitle(line) {
			return line
		}
	}
	return ""
}

// link returns the first absolute or root-relative href, resolved against
// the site's base URL.
func (a *HTMLAdapter) link(card *goquery.Selection) string {
	var link string
	card.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "http") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		link = a.baseURL.ResolveReference(ref).String()
		return false
	})
	return link
}

// hasNextPage looks for pagination controls mentioning "next" or the next
// page number. Pages without any pagination markup continue while they keep
// yielding postings; the max_pages ceiling bounds that.
func (a *HTMLAdapter) hasNextPage(doc *goquery.Document, page, found int) bool {
	next := strconv.Itoa(page + 1)
	sawPagination := false
	for _, sel := range a.selectors.Pagination {
		elems := doc.Find(sel)
		if elems.Length() == 0 {
			continue
		}
		sawPagination = true
		hit := false
		elems.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.ToLower(s.Text())
			if strings.Contains(text, "next") || strings.Contains(text, next) {
				hit = true
				return false
			}
			return true
		})
		if hit {
			return true
		}
	}
	return !sawPagination && found > 0
}

func cardID(card *goquery.Selection) string {
	for _, attr := range []string{"data-job-id", "data-id"} {
		if v, ok := card.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func companyFromLines(card *goquery.Selection, title string) string {
	lines := cardLines(card)
	for i := 1; i < len(lines) && i < 4; i++ {
		line := lines[i]
		if line == title || looksLikeJobTitle(line) || len(line) >= 50 {
			continue
		}
		if notCompanyRegex.MatchString(line) {
			continue
		}
		return line
	}
	return ""
}

// Salaries, bare numbers and state codes.
var notCompanyRegex = regexp.MustCompile(`^\$|^\d+|^[A-Z]{2,3}$`)

// cardLines returns the card's non-empty text lines. Block-level children
// are treated as line breaks.
func cardLines(card *goquery.Selection) []string {
	var lines []string
	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				for _, l := range strings.Split(c.Text(), "\n") {
					if l = collapse(l); l != "" {
						lines = append(lines, l)
					}
				}
				return
			}
			walk(c)
		})
	}
	walk(card)
	return lines
}

func firstText(card *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if t := collapse(card.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func looksLikeJobTitle(text string) bool {
	if len(text) < 5 || len(text) > 100 {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range jobTitleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func matchFirst(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// truncateRunes cuts s to at most n characters, marking the cut with "...".
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
