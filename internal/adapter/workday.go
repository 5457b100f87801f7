package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobharvest/internal/model"
)

const workdayPageSize = 20

// workdayListingResponse is the response from the Workday jobs listing endpoint.
type workdayListingResponse struct {
	Total       *int             `json:"total"`
	JobPostings []workdayListing `json:"jobPostings"`
}

type workdayListing struct {
	Title         string   `json:"title"`
	ExternalPath  string   `json:"externalPath"`
	LocationsText string   `json:"locationsText"`
	PostedOn      string   `json:"postedOn"`
	BulletFields  []string `json:"bulletFields"`
}

// workdayListingRequest is the POST body for the Workday jobs listing endpoint.
type workdayListingRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

// WorkdayAdapter pages through a Workday career site's listing endpoint.
// BaseURL is the CXS API root, e.g.
// https://acme.wd1.myworkdayjobs.com/wday/cxs/acme/External.
type WorkdayAdapter struct {
	baseURL     string
	publicURL   string
	companyName string
	now         func() time.Time
}

// NewWorkdayAdapter creates a new adapter for a Workday career site.
func NewWorkdayAdapter(site Site) (*WorkdayAdapter, error) {
	if site.BaseURL == "" {
		return nil, errors.New("workday: base_url is required")
	}
	base := strings.TrimRight(site.BaseURL, "/")
	return &WorkdayAdapter{
		baseURL:     base,
		publicURL:   workdayPublicURL(base),
		companyName: site.Company,
		now:         time.Now,
	}, nil
}

// workdayPublicURL maps the CXS API root to the candidate-facing site root:
// https://h/wday/cxs/tenant/Site -> https://h/Site.
func workdayPublicURL(apiBase string) string {
	u, err := url.Parse(apiBase)
	if err != nil {
		return apiBase
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) >= 4 && segments[0] == "wday" && segments[1] == "cxs" {
		u.Path = "/" + segments[len(segments)-1]
		return strings.TrimRight(u.String(), "/")
	}
	return apiBase
}

func (a *WorkdayAdapter) BuildRequest(page int) (model.RequestDescriptor, error) {
	if page < 1 {
		return model.RequestDescriptor{}, fmt.Errorf("workday %s: invalid page %d", a.companyName, page)
	}
	body, err := json.Marshal(workdayListingRequest{
		AppliedFacets: map[string]any{},
		Limit:         workdayPageSize,
		Offset:        (page - 1) * workdayPageSize,
	})
	if err != nil {
		return model.RequestDescriptor{}, fmt.Errorf("workday listing marshal for %s: %w", a.companyName, err)
	}
	return model.RequestDescriptor{
		Method: http.MethodPost,
		URL:    a.baseURL + "/jobs",
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
	}, nil
}

func (a *WorkdayAdapter) Parse(page int, body []byte) model.Page {
	var listResp workdayListingResponse
	if err := json.Unmarshal(body, &listResp); err != nil {
		return parseFailure("workday", err)
	}
	if listResp.Total == nil {
		return parseFailure("workday", errors.New(`missing "total"`))
	}

	postings := make([]model.RawPosting, 0, len(listResp.JobPostings))
	for _, l := range listResp.JobPostings {
		postings = append(postings, a.postingFromListing(l))
	}

	offset := (page - 1) * workdayPageSize
	hasNext := len(listResp.JobPostings) > 0 && offset+len(listResp.JobPostings) < *listResp.Total
	return model.Page{Postings: postings, HasNext: hasNext}
}

func (a *WorkdayAdapter) postingFromListing(l workdayListing) model.RawPosting {
	raw := model.RawPosting{
		NativeID: workdayReqID(l),
		Company:  a.companyName,
		Title:    l.Title,
		Location: l.LocationsText,
		RawText:  strings.Join(append([]string{l.Title, l.LocationsText}, l.BulletFields...), " "),
		PostedAt: parsePostedOn(l.PostedOn, a.now()),
	}
	if l.ExternalPath != "" {
		raw.URL = a.publicURL + "/" + strings.TrimLeft(l.ExternalPath, "/")
	}
	return raw
}

var workdayReqIDRegex = regexp.MustCompile(`_((?:JR|R|REQ)[-_]?\d+)(?:[-_]\d+)?$`)

// workdayReqID extracts the requisition id from the external path
// (".../Software-Engineer_JR328732"), falling back to the path itself.
func workdayReqID(l workdayListing) string {
	if m := workdayReqIDRegex.FindStringSubmatch(l.ExternalPath); m != nil {
		return m[1]
	}
	return strings.Trim(l.ExternalPath, "/")
}

var daysAgoRegex = regexp.MustCompile(`^Posted (\d+) Days? Ago$`)

// parsePostedOn converts a Workday relative date string to an approximate timestamp.
func parsePostedOn(postedOn string, now time.Time) *time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch postedOn {
	case "Posted Today":
		return &today
	case "Posted Yesterday":
		t := today.AddDate(0, 0, -1)
		return &t
	}

	if n, ok := parseDaysAgo(postedOn); ok {
		t := today.AddDate(0, 0, -n)
		return &t
	}

	// "Posted 30+ Days Ago" or unknown → nil
	return nil
}

func parseDaysAgo(s string) (int, bool) {
	matches := daysAgoRegex.FindStringSubmatch(s)
	if matches == nil {
		return 0, false
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
