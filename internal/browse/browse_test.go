package browse

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/jobharvest/internal/filter"
	"github.com/amishk599/jobharvest/internal/model"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func stored(id, title string, lastSeen time.Time) model.Posting {
	return model.Posting{
		SourceID:    "board:" + id,
		Site:        "board",
		NativeID:    id,
		Fingerprint: strings.Repeat("ab", 32),
		Fields: model.Fields{
			Title:       title,
			Company:     "Acme",
			Location:    "Remote",
			URL:         "https://example.org/jobs/" + id,
			Description: "Build and run the ingestion pipeline.",
		},
		FirstSeenAt: lastSeen,
		LastSeenAt:  lastSeen,
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m tea.Model, msgs ...tea.Msg) tea.Model {
	t.Helper()
	for _, msg := range msgs {
		m, _ = m.Update(msg)
	}
	return m
}

func TestPicker_NavigateAndChoose(t *testing.T) {
	m := send(t, newPicker([]SiteEntry{{Name: "a"}, {Name: "b"}, {Name: "c"}}),
		key("j"), key("j"), key("j"), key("k"), key("enter"))

	assert.Equal(t, 1, m.(pickerModel).chosen)
}

func TestPicker_Quit(t *testing.T) {
	m := send(t, newPicker([]SiteEntry{{Name: "a"}}), key("q"))
	assert.Equal(t, quitPick, m.(pickerModel).chosen)
}

func TestPicker_ViewShowsCounts(t *testing.T) {
	view := newPicker([]SiteEntry{{Name: "ExampleBoard", Kind: "html", Postings: 1200}}).View()
	assert.Contains(t, view, "ExampleBoard (html) · 1,200 postings")
}

func TestBrowse_SortsAndFilters(t *testing.T) {
	postings := []model.Posting{
		stored("old", "Backend Engineer", t0.Add(-time.Hour)),
		stored("new", "Sales Manager", t0),
		stored("mid", "Platform Engineer", t0.Add(-time.Minute)),
	}
	f := filter.NewTitleAndLocationFilter(filter.Criteria{TitleKeywords: []string{"engineer"}})

	m := newBrowseModel("board", postings, f)

	ids := func(ps []model.Posting) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.NativeID)
		}
		return out
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids(m.all))
	assert.Equal(t, []string{"mid", "old"}, ids(m.matched))
	assert.Equal(t, "old", postings[0].NativeID, "the caller's slice is not reordered")
}

func TestBrowse_DetailAndBack(t *testing.T) {
	var opened string
	m := newBrowseModel("board", []model.Posting{
		stored("a1", "Engineer", t0),
		stored("a2", "Analyst", t0.Add(-time.Hour)),
	}, nil)
	m.open = func(url string) { opened = url }

	out := send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40}, key("down"), key("enter"))
	bm := out.(browseModel)
	require.Equal(t, viewDetail, bm.view)
	assert.Equal(t, "board:a2", bm.detail.SourceID)
	assert.Contains(t, bm.renderDetail(), "press r to read the description")

	out = send(t, out, key("r"))
	assert.Contains(t, out.(browseModel).renderDetail(), "Build and run the ingestion pipeline.")

	out = send(t, out, key("o"))
	assert.Equal(t, "https://example.org/jobs/a2", opened)

	out = send(t, out, key("esc"))
	assert.Equal(t, viewList, out.(browseModel).view)
	assert.False(t, out.(browseModel).wantQuit)
}

func TestBrowse_EmptyPaneIgnoresEnter(t *testing.T) {
	f := filter.NewTitleAndLocationFilter(filter.Criteria{TitleKeywords: []string{"nothing matches"}})
	m := newBrowseModel("board", []model.Posting{stored("a1", "Engineer", t0)}, f)

	out := send(t, m, tea.WindowSizeMsg{Width: 100, Height: 30}, key("tab"), key("enter"))
	assert.Equal(t, viewList, out.(browseModel).view)
	assert.Contains(t, out.View(), "(no postings)")
}

func TestBrowse_QuitSetsWantQuit(t *testing.T) {
	m := newBrowseModel("board", nil, nil)
	out := send(t, m, tea.WindowSizeMsg{Width: 80, Height: 24}, key("q"))
	assert.True(t, out.(browseModel).wantQuit)
}

func TestWordWrap(t *testing.T) {
	assert.Equal(t, "one two\nthree", wordWrap("one two three", 8))
	assert.Equal(t, "", wordWrap("   ", 10))
}
