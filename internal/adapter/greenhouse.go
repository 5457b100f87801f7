package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/jobharvest/internal/model"
)

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// greenhouseJob represents a single job in the Greenhouse API response.
type greenhouseJob struct {
	ID          int64              `json:"id"`
	Title       string             `json:"title"`
	Location    greenhouseLocation `json:"location"`
	AbsoluteURL string             `json:"absolute_url"`
	UpdatedAt   string             `json:"updated_at"`
	Content     string             `json:"content"`
	CompanyName string             `json:"company_name"`
}

type greenhouseLocation struct {
	Name string `json:"name"`
}

// greenhouseResponse is the top-level Greenhouse jobs API response.
type greenhouseResponse struct {
	Jobs *[]greenhouseJob `json:"jobs"`
}

// GreenhouseAdapter reads the Greenhouse public boards API. The board is
// returned in a single response.
type GreenhouseAdapter struct {
	boardToken  string
	companyName string
	apiBase     string
}

// NewGreenhouseAdapter creates a new adapter for a Greenhouse board.
func NewGreenhouseAdapter(site Site) (*GreenhouseAdapter, error) {
	if site.Token == "" {
		return nil, errors.New("greenhouse: token (board token) is required")
	}
	apiBase := site.APIBase
	if apiBase == "" {
		apiBase = greenhouseBaseURL
	}
	return &GreenhouseAdapter{
		boardToken:  site.Token,
		companyName: site.Company,
		apiBase:     strings.TrimRight(apiBase, "/"),
	}, nil
}

func (a *GreenhouseAdapter) BuildRequest(page int) (model.RequestDescriptor, error) {
	if page != 1 {
		return model.RequestDescriptor{}, fmt.Errorf("greenhouse %s: single-page board has no page %d", a.boardToken, page)
	}
	return model.RequestDescriptor{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/%s/jobs?content=true", a.apiBase, a.boardToken),
	}, nil
}

func (a *GreenhouseAdapter) Parse(_ int, body []byte) model.Page {
	var ghResp greenhouseResponse
	if err := json.Unmarshal(body, &ghResp); err != nil {
		return parseFailure("greenhouse", err)
	}
	if ghResp.Jobs == nil {
		return parseFailure("greenhouse", errors.New(`missing "jobs" array`))
	}

	postings := make([]model.RawPosting, 0, len(*ghResp.Jobs))
	for _, gj := range *ghResp.Jobs {
		company := a.companyName
		if company == "" {
			company = gj.CompanyName
		}
		description := extractText(gj.Content)

		raw := model.RawPosting{
			Title:       gj.Title,
			Company:     company,
			Location:    gj.Location.Name,
			URL:         gj.AbsoluteURL,
			Description: description,
			RawText:     description,
		}
		if gj.ID != 0 {
			raw.NativeID = strconv.FormatInt(gj.ID, 10)
		}

		if gj.UpdatedAt != "" {
			t, err := time.Parse(time.RFC3339, gj.UpdatedAt)
			if err == nil {
				raw.PostedAt = &t
			}
		}

		postings = append(postings, raw)
	}

	return model.Page{Postings: postings}
}
