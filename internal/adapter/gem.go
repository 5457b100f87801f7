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

const gemBaseURL = "https://api.gem.com/job_board/v0"

type gemPost struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	AbsoluteURL    string `json:"absolute_url"`
	FirstPublished string `json:"first_published_at"`
	Content        string `json:"content"`
	ContentPlain   string `json:"content_plain"`
}

// GemAdapter reads a Gem job board, which returns every post as one bare
// JSON array.
type GemAdapter struct {
	boardToken  string
	companyName string
	apiBase     string
}

// NewGemAdapter creates an adapter for the Gem board named by site.Token.
func NewGemAdapter(site Site) (*GemAdapter, error) {
	if site.Token == "" {
		return nil, errors.New("gem: token (board token) is required")
	}
	apiBase := site.APIBase
	if apiBase == "" {
		apiBase = gemBaseURL
	}
	return &GemAdapter{
		boardToken:  site.Token,
		companyName: site.Company,
		apiBase:     strings.TrimRight(apiBase, "/"),
	}, nil
}

func (a *GemAdapter) BuildRequest(page int) (model.RequestDescriptor, error) {
	if page != 1 {
		return model.RequestDescriptor{}, fmt.Errorf("gem %s: single-page board has no page %d", a.boardToken, page)
	}
	return model.RequestDescriptor{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/%s/job_posts/", a.apiBase, a.boardToken),
	}, nil
}

func (a *GemAdapter) Parse(_ int, body []byte) model.Page {
	var posts []gemPost
	if err := json.Unmarshal(body, &posts); err != nil {
		return parseFailure("gem", err)
	}
	if posts == nil {
		return parseFailure("gem", errors.New("expected a JSON array of posts"))
	}

	postings := make([]model.RawPosting, 0, len(posts))
	for _, gp := range posts {
		id := gp.ID
		if id == "" && gp.AbsoluteURL != "" {
			id = deriveID(gp.AbsoluteURL)
		}
		desc := gp.ContentPlain
		if desc == "" {
			desc = extractText(gp.Content)
		}

		raw := model.RawPosting{
			NativeID:    id,
			Title:       gp.Title,
			Company:     a.companyName,
			Location:    gp.Location.Name,
			URL:         gp.AbsoluteURL,
			Description: desc,
			RawText:     desc,
		}
		if t, err := time.Parse(time.RFC3339, gp.FirstPublished); err == nil {
			raw.PostedAt = &t
		}
		postings = append(postings, raw)
	}

	return model.Page{Postings: postings}
}
