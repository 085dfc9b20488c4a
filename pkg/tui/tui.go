// Package tui draws the word cloud in a terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/japaniel/wordcloud/pkg/orchestrator"
	"github.com/japaniel/wordcloud/pkg/sizing"
)

// SnapshotMsg carries a freshly rendered snapshot.
type SnapshotMsg struct{ Records []sizing.Record }

// CycleMsg summarizes the cycle that produced the latest snapshot.
type CycleMsg struct {
	Transcript string
	Admitted   int
	Evicted    int
	Err        error
}

type model struct {
	records       []sizing.Record
	width, height int
	cycles        int
	lastText      string
	lastAdmitted  int
	lastEvicted   int
	lastErr       error
}

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	cloudStyle  = lipgloss.NewStyle().Padding(1, 2)
)

// NewModel returns the initial model, showing records until the first cycle.
func NewModel(records []sizing.Record) tea.Model {
	return model{records: records}
}

// NewProgram creates the full-screen program.
func NewProgram(records []sizing.Record) *tea.Program {
	return tea.NewProgram(NewModel(records), tea.WithAltScreen())
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case SnapshotMsg:
		m.records = msg.Records

	case CycleMsg:
		m.lastText = msg.Transcript
		m.lastErr = msg.Err
		if msg.Err == nil {
			m.cycles++
			m.lastAdmitted = msg.Admitted
			m.lastEvicted = msg.Evicted
		}
	}
	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("word cloud  (%d terms, %d cycles)", countTerms(m.records), m.cycles)))
	b.WriteString("\n")
	b.WriteString(cloudStyle.Render(renderCloud(m.records, m.width-4)))
	b.WriteString("\n")

	if m.lastErr != nil {
		b.WriteString(errStyle.Render("✗ " + m.lastErr.Error()))
		b.WriteString("\n")
	} else if m.lastText != "" {
		b.WriteString(statusStyle.Render(fmt.Sprintf("「%s」 +%d terms", m.lastText, m.lastAdmitted)))
		if m.lastEvicted > 0 {
			b.WriteString(statusStyle.Render(fmt.Sprintf(", %d evicted", m.lastEvicted)))
		}
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("q to quit"))
	return b.String()
}

func countTerms(records []sizing.Record) int {
	n := 0
	for _, r := range records {
		if r.Term != "" {
			n++
		}
	}
	return n
}

// renderCloud lays out terms in table order, wrapping rows at width.
// Font size maps onto three weights; color comes from the record.
func renderCloud(records []sizing.Record, width int) string {
	if width < 10 {
		width = 10
	}
	lo, hi := sizeRange(records)

	var lines []string
	var line strings.Builder
	lineWidth := 0
	for _, r := range records {
		if r.Term == "" {
			continue
		}
		word := termStyle(r, lo, hi).Render(r.Term)
		w := lipgloss.Width(r.Term)
		if lineWidth > 0 && lineWidth+1+w > width {
			lines = append(lines, line.String())
			line.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			line.WriteString(" ")
			lineWidth++
		}
		line.WriteString(word)
		lineWidth += w
	}
	if lineWidth > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

func sizeRange(records []sizing.Record) (lo, hi float64) {
	first := true
	for _, r := range records {
		if r.Term == "" {
			continue
		}
		if first || r.Size < lo {
			lo = r.Size
		}
		if first || r.Size > hi {
			hi = r.Size
		}
		first = false
	}
	return lo, hi
}

func termStyle(r sizing.Record, lo, hi float64) lipgloss.Style {
	style := lipgloss.NewStyle()
	if r.Color != "" {
		style = style.Foreground(lipgloss.Color(r.Color))
	}
	if hi <= lo {
		return style.Bold(true)
	}
	switch t := (r.Size - lo) / (hi - lo); {
	case t >= 2.0/3:
		return style.Bold(true).Underline(true)
	case t >= 1.0/3:
		return style.Bold(true)
	case t < 0.1:
		return style.Faint(true)
	default:
		return style
	}
}

// Bridge forwards orchestrator output to a running program. It implements
// both orchestrator.Renderer and orchestrator.Observer.
type Bridge struct {
	send func(tea.Msg)
}

func NewBridge(p *tea.Program) *Bridge {
	return &Bridge{send: p.Send}
}

func (b *Bridge) Render(ctx context.Context, records []sizing.Record) error {
	b.send(SnapshotMsg{Records: records})
	return nil
}

func (b *Bridge) OnCycle(ctx context.Context, report orchestrator.CycleReport) {
	b.send(CycleMsg{
		Transcript: report.Transcript,
		Admitted:   len(report.Admitted),
		Evicted:    len(report.Evicted),
		Err:        report.Err,
	})
}
