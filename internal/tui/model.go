// Package tui is the terminal monitor: a search box over the index plus a
// live view of processing jobs and notifications.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/campushub/docsearch/internal/notify"
	"github.com/campushub/docsearch/internal/pipeline"
	"github.com/campushub/docsearch/internal/search"
)

// SearchPort is the TUI-facing subset of the search orchestrator.
type SearchPort interface {
	Search(ctx context.Context, query string) (*search.CrossLanguageResults, error)
}

// TransitionMsg carries a job status change into the update loop.
type TransitionMsg pipeline.Transition

// NotificationMsg carries a delivered notification into the update loop.
type NotificationMsg notify.Notification

type jobState struct {
	documentID uuid.UUID
	status     pipeline.Status
	progress   int
	message    string
}

// Model is the Bubble Tea model for the monitor application.
type Model struct {
	service  SearchPort
	input    textinput.Model
	viewport viewport.Model
	bar      progress.Model

	results   []search.Result
	breakdown map[string]int
	jobs      map[uuid.UUID]jobState
	feed      []notify.Notification
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a new monitor model instance.
func New(service SearchPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	return Model{
		service: service,
		input:   ti,
		viewport: vp,
		bar:     bar,
		jobs:    make(map[uuid.UUID]jobState),
		status:  "Ready. Type to search.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and pipeline events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := len(m.jobs) + len(m.feed) + qh + 4
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width)
		m.viewport.Height = maxInt(3, vh-rh)
		m.bar.Width = maxInt(10, msg.Width/3)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil

	case TransitionMsg:
		tr := pipeline.Transition(msg)
		m.jobs[tr.DocumentID] = jobState{
			documentID: tr.DocumentID,
			status:     tr.To,
			progress:   tr.Progress,
			message:    tr.Message,
		}
		return m, nil

	case NotificationMsg:
		m.feed = append(m.feed, notify.Notification(msg))
		if len(m.feed) > 5 {
			m.feed = m.feed[len(m.feed)-5:]
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				res, err := m.service.Search(context.Background(), q)
				if err != nil {
					m.status = "Error: " + err.Error()
					m.results = nil
					m.breakdown = nil
				} else {
					m.status = fmt.Sprintf("Results for %q", q)
					m.results = res.Results
					m.breakdown = res.Breakdown
					m.cursor = 0
					m.lastQuery = q
				}
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the monitor layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document Search")
	results := resultBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)

	sections := []string{header, results, input, status}
	if jobs := m.renderJobs(); jobs != "" {
		sections = append(sections, jobs)
	}
	if feed := m.renderFeed(); feed != "" {
		sections = append(sections, feed)
	}
	return strings.Join(sections, "\n")
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  %s  score=%.3f", m.cursor+1, len(m.results), r.DocumentTitle, r.Similarity)
	if r.PageNumber > 0 {
		title += fmt.Sprintf("  p.%d", r.PageNumber)
	}
	if r.IsTranslated {
		title += "  " + translatedStyle.Render("[translated]")
	}
	body := r.Content
	if r.Highlight != "" {
		body = r.Highlight
	}
	out := title + "\n\n" + body
	if len(m.breakdown) > 0 {
		out += "\n\n" + dimStyle.Render(renderBreakdown(m.breakdown))
	}
	return out
}

func (m Model) renderJobs() string {
	if len(m.jobs) == 0 {
		return ""
	}
	ids := make([]uuid.UUID, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var b strings.Builder
	for _, id := range ids {
		j := m.jobs[id]
		bar := m.bar.ViewAs(float64(j.progress) / 100)
		fmt.Fprintf(&b, "%s %s %3d%% %s\n", shortID(j.documentID), bar, j.progress, j.message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderFeed() string {
	if len(m.feed) == 0 {
		return ""
	}
	var b strings.Builder
	for _, n := range m.feed {
		style := dimStyle
		switch n.Type {
		case notify.TypeError:
			style = errorStyle
		case notify.TypeComplete:
			style = okStyle
		}
		fmt.Fprintf(&b, "%s %s: %s\n", n.At.Format("15:04:05"), style.Render(n.Title), n.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderBreakdown(breakdown map[string]int) string {
	langs := make([]string, 0, len(breakdown))
	for lang := range breakdown {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	parts := make([]string, 0, len(langs))
	for _, lang := range langs {
		parts = append(parts, fmt.Sprintf("%s:%d", lang, breakdown[lang]))
	}
	return "by language  " + strings.Join(parts, "  ")
}

func shortID(id uuid.UUID) string {
	s := id.String()
	return s[:8]
}

var (
	resultBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	translatedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
