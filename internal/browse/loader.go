package browse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobharvest/internal/model"
)

// ErrCancelled is returned when the user interrupts loading.
var ErrCancelled = errors.New("cancelled")

type loadDoneMsg struct {
	postings []model.Posting
	err      error
}

type loaderModel struct {
	site     string
	load     func(ctx context.Context) ([]model.Posting, error)
	spinner  spinner.Model
	postings []model.Posting
	err      error
	done     bool
}

func newLoader(site string, load func(ctx context.Context) ([]model.Posting, error)) loaderModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	return loaderModel{site: site, load: load, spinner: s}
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(m.doLoad(), m.spinner.Tick)
}

func (m loaderModel) doLoad() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		postings, err := load(ctx)
		return loadDoneMsg{postings: postings, err: err}
	}
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadDoneMsg:
		m.postings = msg.postings
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.err = ErrCancelled
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loaderModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s Loading postings for %s...\n", m.spinner.View(), m.site)
}

// Load shows a spinner while load runs. It renders inline (no alt screen).
func Load(site string, load func(ctx context.Context) ([]model.Posting, error)) ([]model.Posting, error) {
	result, err := tea.NewProgram(newLoader(site, load)).Run()
	if err != nil {
		return nil, err
	}
	final := result.(loaderModel)
	return final.postings, final.err
}
