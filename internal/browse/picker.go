package browse

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Padding(1, 0, 1, 2)

	pickerItemStyle = lipgloss.NewStyle().
			Padding(0, 0, 0, 4)

	pickerSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 0, 0, 2)

	pickerHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(1, 0, 0, 2)
)

// SiteEntry is one row of the site picker.
type SiteEntry struct {
	Name     string
	Kind     string
	Postings int
}

const (
	noChoice = -1
	quitPick = -2
)

type pickerModel struct {
	sites  []SiteEntry
	cursor int
	chosen int
}

func newPicker(sites []SiteEntry) pickerModel {
	return pickerModel{sites: sites, chosen: noChoice}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		m.chosen = quitPick
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.sites)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.sites) > 0 {
			m.chosen = m.cursor
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(pickerTitleStyle.Render("Browse postings · select a site"))
	b.WriteByte('\n')

	if len(m.sites) == 0 {
		b.WriteString(pickerItemStyle.Render("(no sites configured)") + "\n")
	}
	for i, s := range m.sites {
		label := fmt.Sprintf("%s (%s) · %s postings", s.Name, s.Kind, humanize.Comma(int64(s.Postings)))
		if i == m.cursor {
			b.WriteString(pickerSelectedStyle.Render("> "+label) + "\n")
		} else {
			b.WriteString(pickerItemStyle.Render(label) + "\n")
		}
	}

	b.WriteString(pickerHintStyle.Render("↑/↓/j/k navigate  enter select  q quit"))
	return b.String()
}

// PickSite shows an interactive site selector and returns the index of the
// chosen site, or -1 if the user quit.
func PickSite(sites []SiteEntry) (int, error) {
	result, err := tea.NewProgram(newPicker(sites)).Run()
	if err != nil {
		return -1, err
	}
	final := result.(pickerModel)
	if final.chosen < 0 {
		return -1, nil
	}
	return final.chosen, nil
}
