package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/amishk599/jobharvest/internal/model"
)

const ashbyBaseURL = "https://api.ashbyhq.com/posting-api/job-board"

// ashbyJob represents a single job in the Ashby API response.
type ashbyJob struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	Location         string             `json:"location"`
	JobUrl           string             `json:"jobUrl"`
	PublishedAt      string             `json:"publishedAt"`
	IsListed         bool               `json:"isListed"`
	DescriptionPlain string             `json:"descriptionPlain"`
	DescriptionHTML  string             `json:"descriptionHtml"`
	Compensation     *ashbyCompensation `json:"compensation"`
}

type ashbyCompensation struct {
	Summary string `json:"compensationTierSummary"`
}

// ashbyResponse is the top-level Ashby job board API response.
type ashbyResponse struct {
	Jobs *[]ashbyJob `json:"jobs"`
}

// AshbyAdapter reads the Ashby public job board API in a single request.
type AshbyAdapter struct {
	boardToken  string
	companyName string
	apiBase     string
}

// NewAshbyAdapter creates a new adapter for an Ashby job board.
func NewAshbyAdapter(site Site) (*AshbyAdapter, error) {
	if site.Token == "" {
		return nil, errors.New("ashby: token (job board name) is required")
	}
	apiBase := site.APIBase
	if apiBase == "" {
		apiBase = ashbyBaseURL
	}
	return &AshbyAdapter{
		boardToken:  site.Token,
		companyName: site.Company,
		apiBase:     strings.TrimRight(apiBase, "/"),
	}, nil
}

func (a *AshbyAdapter) BuildRequest(page int) (model.RequestDescriptor, error) {
	if page != 1 {
		return model.RequestDescriptor{}, fmt.Errorf("ashby %s: single-page board has no page %d", a.boardToken, page)
	}
	return model.RequestDescriptor{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/%s?includeCompensation=true", a.apiBase, a.boardToken),
	}, nil
}

func (a *AshbyAdapter) Parse(_ int, body []byte) model.Page {
	var ashbyResp ashbyResponse
	if err := json.Unmarshal(body, &ashbyResp); err != nil {
		return parseFailure("ashby", err)
	}
	if ashbyResp.Jobs == nil {
		return parseFailure("ashby", errors.New(`missing "jobs" array`))
	}

	postings := make([]model.RawPosting, 0, len(*ashbyResp.Jobs))
	for _, aj := range *ashbyResp.Jobs {
		if !aj.IsListed {
			continue
		}

		id := aj.ID
		if id == "" && aj.JobUrl != "" {
			id = deriveID(aj.JobUrl)
		}
		description := aj.DescriptionPlain
		if description == "" {
			description = extractText(aj.DescriptionHTML)
		}

		raw := model.RawPosting{
			NativeID:    id,
			Title:       aj.Title,
			Company:     a.companyName,
			Location:    aj.Location,
			URL:         aj.JobUrl,
			Description: description,
			RawText:     description,
		}
		if aj.Compensation != nil {
			raw.Compensation = aj.Compensation.Summary
		}

		if aj.PublishedAt != "" {
			t, err := time.Parse(time.RFC3339, aj.PublishedAt)
			if err == nil {
				raw.PostedAt = &t
			}
		}

		postings = append(postings, raw)
	}

	return model.Page{Postings: postings}
}
