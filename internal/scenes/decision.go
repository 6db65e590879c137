package scenes

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

const (
	// SceneDecision is the CSV name of the investment entry scene.
	SceneDecision = "PGG_Game"

	decisionMaxDigits = 2
	decisionErrorTTL  = 2 * time.Second
)

type decisionErrorExpiredMsg struct{ token int64 }

// Decision asks how much of the endowment goes to the public pool.
type Decision struct {
	ctx     *Context
	token   int64
	input   textinput.Model
	errorAt time.Time
	failed  bool
}

func NewDecision() *Decision {
	return &Decision{}
}

func (s *Decision) Name() string { return SceneDecision }

func (s *Decision) Enter(ctx *Context) tea.Cmd {
	s.ctx = ctx
	s.token = nextToken()
	s.failed = false
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = decisionMaxDigits
	ti.TextStyle = lipgloss.NewStyle().Foreground(colorHighlight).Background(lipgloss.Color("#323232"))
	ti.Cursor.SetMode(cursor.CursorStatic)
	ti.Focus()
	s.input = ti
	return nil
}

// Buffer returns the digits typed so far.
func (s *Decision) Buffer() string {
	return s.input.Value()
}

// ErrorVisible reports whether the range error is on screen.
func (s *Decision) ErrorVisible() bool {
	return s.failed && s.ctx.Now().Sub(s.errorAt) < decisionErrorTTL
}

func (s *Decision) HandleKey(msg tea.KeyMsg) (Transition, tea.Cmd) {
	buffer := s.input.Value()
	switch msg.Type {
	case tea.KeyEnter:
		s.ctx.Session.Record("RETURN", "Confirm: "+buffer)
		if buffer == "" {
			return Stay, nil
		}
		endowment := s.ctx.Variant.Economy.Endowment
		value, err := strconv.Atoi(buffer)
		if err == nil {
			err = s.ctx.Session.SetInvestment(value, endowment)
		}
		if err != nil {
			s.ctx.logger().Info("investment rejected", zap.String("input", buffer), zap.Error(err))
			s.input.Reset()
			s.failed = true
			s.errorAt = s.ctx.Now()
			return Stay, s.ctx.after(decisionErrorTTL, decisionErrorExpiredMsg{token: s.token})
		}
		return Advance, nil
	case tea.KeyBackspace:
		s.ctx.Session.Record("BACKSPACE", "Delete char")
		if buffer != "" {
			s.input.SetValue(buffer[:len(buffer)-1])
		}
		return Stay, nil
	case tea.KeyRunes:
		if msg.Paste || msg.Alt {
			return Stay, nil
		}
		for _, r := range msg.Runes {
			if r < '0' || r > '9' || len(buffer) >= decisionMaxDigits {
				continue
			}
			s.ctx.Session.Record(string(r), "Type: "+string(r))
			buffer += string(r)
		}
		s.input.SetValue(buffer)
		return Stay, nil
	}
	return Stay, nil
}

func (s *Decision) Update(tea.Msg) (Transition, tea.Cmd) {
	// The expiry message only forces a redraw; visibility is measured from
	// the failure time.
	return Stay, nil
}

func (s *Decision) View(width, height int) string {
	deck := s.ctx.Variant.Copy
	prompt := bodyStyle.Bold(true).MarginBottom(1).Render(s.ctx.Text(deck.DecisionPrompt))

	node := func(label string, active bool) string {
		color := colorNPC
		if active {
			color = colorHighlight
		}
		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(color).
			Foreground(color).
			Padding(0, 2).
			Render(label)
	}
	link := lipgloss.NewStyle().Foreground(colorLine)
	top := lipgloss.JoinHorizontal(lipgloss.Center,
		node("Player A", false),
		link.Render(" ──────────── "),
		node("Player B", false),
	)
	edges := link.Render("╲" + strings.Repeat(" ", 16) + "╱")
	input := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(colorHighlight).
		Foreground(colorHighlight).
		Background(lipgloss.Color("#323232")).
		Width(8).
		Align(lipgloss.Center).
		Render(s.input.View())
	you := lipgloss.JoinVertical(lipgloss.Center, input, node("You (我)", true))
	diagram := lipgloss.JoinVertical(lipgloss.Center, top, edges, you)

	errLine := ""
	if s.ErrorVisible() {
		errLine = errorStyle.MarginTop(1).Render(s.ctx.Text(deck.DecisionError))
	}
	return place(width, height, stack(prompt, diagram, errLine))
}
