package browse

import (
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/amishk599/jobharvest/internal/model"
)

// Lines per posting in the list view (title + subtitle + blank separator).
const itemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	activeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("39"))

	inactiveBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	activeHeaderStyle   = headerStyle.Foreground(lipgloss.Color("39"))
	inactiveHeaderStyle = headerStyle.Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(14)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	bodyTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

type pane int

const (
	paneAll pane = iota
	paneMatched
)

type browseModel struct {
	site     string
	all      []model.Posting
	matched  []model.Posting
	lists    [2]viewport.Model
	cursors  [2]int
	active   pane
	width    int
	height   int
	ready    bool
	view     viewState
	detail   model.Posting
	detailVP viewport.Model
	showBody bool
	wantQuit bool
	open     func(url string)
}

func newBrowseModel(site string, postings []model.Posting, filter model.PostingFilter) browseModel {
	all := append([]model.Posting(nil), postings...)
	sortByLastSeen(all)

	matched := all
	if filter != nil {
		matched = nil
		for _, p := range all {
			if filter.Match(p) {
				matched = append(matched, p)
			}
		}
	}
	return browseModel{site: site, all: all, matched: matched, open: openURL}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailVP.Width = m.width - 4
			m.detailVP.Height = m.height - 4
			m.detailVP.SetContent(m.renderDetail())
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m browseModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		return m, tea.Quit
	case "tab", "left", "right":
		m.active = 1 - m.active
		m.recalcContent()
		return m, nil
	case "up", "k":
		m.moveCursor(-1)
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		return m, nil
	case "enter":
		return m.openDetail(), nil
	}

	// pgup/pgdn/home/end scroll the active pane.
	var cmd tea.Cmd
	m.lists[m.active], cmd = m.lists[m.active].Update(msg)
	return m, cmd
}

func (m browseModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "o":
		if m.detail.Fields.URL != "" && m.open != nil {
			m.open(m.detail.Fields.URL)
		}
		return m, nil
	case "r":
		if m.detail.Fields.Description != "" {
			m.showBody = !m.showBody
			m.detailVP.SetContent(m.renderDetail())
			m.detailVP.SetYOffset(0)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailVP, cmd = m.detailVP.Update(msg)
	return m, cmd
}

func (m browseModel) postings(p pane) []model.Posting {
	if p == paneAll {
		return m.all
	}
	return m.matched
}

func (m *browseModel) moveCursor(delta int) {
	n := len(m.postings(m.active))
	m.cursors[m.active] = clamp(m.cursors[m.active]+delta, 0, max(n-1, 0))
	m.recalcContent()

	vp := &m.lists[m.active]
	top := m.cursors[m.active] * itemHeight
	bottom := top + itemHeight - 1
	if top < vp.YOffset {
		vp.SetYOffset(top)
	} else if bottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(bottom - vp.Height + 1)
	}
}

func (m browseModel) openDetail() browseModel {
	list := m.postings(m.active)
	if len(list) == 0 {
		return m
	}
	m.view = viewDetail
	m.detail = list[m.cursors[m.active]]
	m.showBody = false
	m.detailVP = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
	m.detailVP.SetContent(m.renderDetail())
	return m
}

func (m *browseModel) recalcLayout() {
	// 2 border chars per pane + 1 gap between panes.
	paneWidth := max((m.width-5)/2, 20)
	// Header + border top/bottom + status bar.
	paneHeight := max(m.height-4, 5)

	if !m.ready {
		m.lists[paneAll] = viewport.New(paneWidth, paneHeight)
		m.lists[paneMatched] = viewport.New(paneWidth, paneHeight)
		m.ready = true
	} else {
		for i := range m.lists {
			m.lists[i].Width = paneWidth
			m.lists[i].Height = paneHeight
		}
	}
	m.recalcContent()
}

func (m *browseModel) recalcContent() {
	for _, p := range []pane{paneAll, paneMatched} {
		m.lists[p].SetContent(renderPostings(m.postings(p), m.cursors[p], m.active == p))
	}
}

func (m browseModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browseModel) viewList() string {
	paneWidth := m.lists[paneAll].Width
	headers := [2]string{
		fmt.Sprintf(" %s · stored (%d)", m.site, len(m.all)),
		fmt.Sprintf(" Matching filters (%d)", len(m.matched)),
	}

	var row, panes []string
	for _, p := range []pane{paneAll, paneMatched} {
		header, border := inactiveHeaderStyle, inactiveBorderStyle
		if p == m.active {
			header, border = activeHeaderStyle, activeBorderStyle
		}
		if p == paneMatched {
			row = append(row, " ")
			panes = append(panes, " ")
		}
		row = append(row, lipgloss.NewStyle().Width(paneWidth+2).Render(header.Render(headers[p])))
		panes = append(panes, border.Width(paneWidth).Render(m.lists[p].View()))
	}

	status := fmt.Sprintf(" %d stored | %d matching    ←/→/Tab switch  ↑/↓ cursor  Enter detail  Esc back  q quit",
		len(m.all), len(m.matched))

	return lipgloss.JoinHorizontal(lipgloss.Top, row...) + "\n" +
		lipgloss.JoinHorizontal(lipgloss.Top, panes...) + "\n" +
		statusBarStyle.Width(m.width).Render(status)
}

func (m browseModel) viewDetail() string {
	status := " o open URL  esc/backspace back  ↑/↓ scroll  q quit"
	if m.detail.Fields.Description != "" {
		status = " o open URL  r description  esc/backspace back  ↑/↓ scroll  q quit"
	}
	return detailTitleStyle.Render("Posting") + "\n" +
		activeBorderStyle.Width(m.width-2).Render(m.detailVP.View()) + "\n" +
		statusBarStyle.Width(m.width).Render(status)
}

func (m browseModel) renderDetail() string {
	p := m.detail
	var b strings.Builder

	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	field("Title", p.Fields.Title)
	field("Company", p.Fields.Company)
	field("Location", p.Fields.Location)
	field("Compensation", p.Fields.Compensation)
	b.WriteByte('\n')
	field("Source ID", p.SourceID)
	if p.Fields.PostedAt != nil {
		field("Posted", p.Fields.PostedAt.Format("2006-01-02"))
	}
	field("First seen", humanize.Time(p.FirstSeenAt))
	field("Last seen", humanize.Time(p.LastSeenAt))
	field("Fingerprint", shortFingerprint(p.Fingerprint))
	b.WriteByte('\n')
	field("URL", p.Fields.URL)

	if p.Fields.Description == "" {
		return b.String()
	}

	wrap := max(m.width-8, 20)
	b.WriteByte('\n')
	if m.showBody {
		label := "── Description "
		b.WriteString(dividerStyle.Render(label+strings.Repeat("─", max(wrap-len(label), 3))) + "\n\n")
		b.WriteString(bodyTextStyle.Render(wordWrap(p.Fields.Description, wrap)) + "\n")
	} else {
		b.WriteString(hintStyle.Render("  press r to read the description") + "\n")
	}
	return b.String()
}

func renderPostings(postings []model.Posting, cursor int, active bool) string {
	if len(postings) == 0 {
		return "  (no postings)"
	}

	var b strings.Builder
	for i, p := range postings {
		tSt, sSt, prefix := titleStyle, subtitleStyle, "  "
		if active && i == cursor {
			tSt, sSt, prefix = selectedTitleStyle, selectedSubtitleStyle, "> "
		}

		b.WriteString(prefix + tSt.Render(p.Fields.Title) + "\n")

		location := p.Fields.Location
		if location == "" {
			location = "n/a"
		}
		sub := fmt.Sprintf("%s · %s · seen %s", p.Fields.Company, location, humanize.Time(p.LastSeenAt))
		b.WriteString(prefix + sSt.Render(sub) + "\n")

		if i < len(postings)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// sortByLastSeen orders most recently seen first, then by source id.
func sortByLastSeen(postings []model.Posting) {
	sort.SliceStable(postings, func(i, j int) bool {
		a, b := postings[i], postings[j]
		if !a.LastSeenAt.Equal(b.LastSeenAt) {
			return a.LastSeenAt.After(b.LastSeenAt)
		}
		return a.SourceID < b.SourceID
	})
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// Run launches the two-pane browser over a site's stored postings. The right
// pane holds the postings filter matches; a nil filter matches everything.
// It returns wantQuit=true if the user pressed q, false if they pressed esc
// to go back to the site picker.
func Run(site string, postings []model.Posting, filter model.PostingFilter) (bool, error) {
	result, err := tea.NewProgram(newBrowseModel(site, postings, filter), tea.WithAltScreen()).Run()
	if err != nil {
		return false, err
	}
	return result.(browseModel).wantQuit, nil
}
