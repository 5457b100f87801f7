package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/amishk599/jobharvest/internal/model"
)

const (
	leverBaseURL  = "https://api.lever.co/v0/postings"
	leverPageSize = 100
)

// leverCategories represents the categories object in a Lever job.
type leverCategories struct {
	Team         string   `json:"team"`
	Department   string   `json:"department"`
	Location     string   `json:"location"`
	Commitment   string   `json:"commitment"`
	AllLocations []string `json:"allLocations"`
}

type leverSalaryRange struct {
	Min      int64  `json:"min"`
	Max      int64  `json:"max"`
	Currency string `json:"currency"`
	Interval string `json:"interval"`
}

// leverJob represents a single job in the Lever API response.
type leverJob struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	Description      string            `json:"description"`
	DescriptionPlain string            `json:"descriptionPlain"`
	AdditionalPlain  string            `json:"additionalPlain"`
	Categories       leverCategories   `json:"categories"`
	CreatedAt        int64             `json:"createdAt"`
	WorkplaceType    string            `json:"workplaceType"`
	HostedURL        string            `json:"hostedUrl"`
	ApplyURL         string            `json:"applyUrl"`
	SalaryRange      *leverSalaryRange `json:"salaryRange"`
}

// LeverAdapter pages through the Lever public postings API with skip/limit.
type LeverAdapter struct {
	companySlug string
	companyName string
	apiBase     string
}

// NewLeverAdapter creates a new adapter for a Lever board.
func NewLeverAdapter(site Site) (*LeverAdapter, error) {
	if site.Token == "" {
		return nil, errors.New("lever: token (company slug) is required")
	}
	apiBase := site.APIBase
	if apiBase == "" {
		apiBase = leverBaseURL
	}
	return &LeverAdapter{
		companySlug: site.Token,
		companyName: site.Company,
		apiBase:     strings.TrimRight(apiBase, "/"),
	}, nil
}

func (a *LeverAdapter) BuildRequest(page int) (model.RequestDescriptor, error) {
	if page < 1 {
		return model.RequestDescriptor{}, fmt.Errorf("lever %s: invalid page %d", a.companySlug, page)
	}
	return model.RequestDescriptor{
		Method: http.MethodGet,
		URL: fmt.Sprintf("%s/%s?mode=json&skip=%d&limit=%d",
			a.apiBase, a.companySlug, (page-1)*leverPageSize, leverPageSize),
	}, nil
}

func (a *LeverAdapter) Parse(_ int, body []byte) model.Page {
	var leverJobs []leverJob
	if err := json.Unmarshal(body, &leverJobs); err != nil {
		return parseFailure("lever", err)
	}

	postings := make([]model.RawPosting, 0, len(leverJobs))
	for _, lj := range leverJobs {
		// Prefer allLocations if available, fall back to location.
		location := lj.Categories.Location
		if len(lj.Categories.AllLocations) > 0 {
			location = strings.Join(lj.Categories.AllLocations, ", ")
		}

		// createdAt is Unix milliseconds.
		var postedAt *time.Time
		if lj.CreatedAt > 0 {
			t := time.UnixMilli(lj.CreatedAt).UTC()
			postedAt = &t
		}

		description := lj.DescriptionPlain
		if description == "" {
			description = extractText(lj.Description)
		}

		postings = append(postings, model.RawPosting{
			NativeID:     lj.ID,
			Title:        lj.Text,
			Company:      a.companyName,
			Location:     location,
			URL:          lj.HostedURL,
			Compensation: formatLeverSalary(lj.SalaryRange),
			Description:  description,
			RawText:      strings.TrimSpace(description + " " + lj.AdditionalPlain),
			PostedAt:     postedAt,
		})
	}

	// A full page means there may be more.
	return model.Page{Postings: postings, HasNext: len(leverJobs) == leverPageSize}
}

func formatLeverSalary(r *leverSalaryRange) string {
	if r == nil || (r.Min == 0 && r.Max == 0) {
		return ""
	}
	s := fmt.Sprintf("%s %s - %s", r.Currency, humanize.Comma(r.Min), humanize.Comma(r.Max))
	if r.Interval != "" {
		s += " " + r.Interval
	}
	return strings.TrimSpace(s)
}
