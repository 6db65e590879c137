package scenes

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	matchingMinStep = 500 * time.Millisecond
	matchingMaxStep = 1500 * time.Millisecond
	matchingHold    = time.Second
	matchingFrame   = 250 * time.Millisecond
)

type matchingRevealMsg struct{ token int64 }

type matchingFrameMsg struct{ token int64 }

type matchingDoneMsg struct{ token int64 }

// Matching plays the fake "connecting to players" log. It takes no input.
type Matching struct {
	ctx      *Context
	token    int64
	messages []string
	shown    int
	done     bool
	spin     spinner.Model
}

func NewMatching() *Matching {
	return &Matching{}
}

func (s *Matching) Name() string { return "Matching" }

func (s *Matching) Enter(ctx *Context) tea.Cmd {
	s.ctx = ctx
	s.token = nextToken()
	s.messages = ctx.Variant.Copy.Matching
	s.shown = 0
	s.done = false
	s.spin = spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(lipgloss.NewStyle().Foreground(colorConnect)))
	return tea.Batch(s.reveal(), ctx.after(matchingFrame, matchingFrameMsg{token: s.token}))
}

// reveal shows the next message and waits a random interval before the next.
func (s *Matching) reveal() tea.Cmd {
	if s.shown < len(s.messages) {
		s.shown++
	}
	if s.shown >= len(s.messages) {
		return s.ctx.after(s.ctx.uniform(matchingMinStep, matchingMaxStep)+matchingHold, matchingDoneMsg{token: s.token})
	}
	return s.ctx.after(s.ctx.uniform(matchingMinStep, matchingMaxStep), matchingRevealMsg{token: s.token})
}

func (s *Matching) HandleKey(tea.KeyMsg) (Transition, tea.Cmd) {
	return Stay, nil
}

func (s *Matching) Update(msg tea.Msg) (Transition, tea.Cmd) {
	switch msg := msg.(type) {
	case matchingRevealMsg:
		if msg.token != s.token {
			return Stay, nil
		}
		return Stay, s.reveal()
	case matchingFrameMsg:
		if msg.token != s.token || s.done {
			return Stay, nil
		}
		// Frames are driven by matchingFrameMsg, so the spinner's own tick is dropped.
		s.spin, _ = s.spin.Update(spinner.TickMsg{ID: s.spin.ID()})
		return Stay, s.ctx.after(matchingFrame, matchingFrameMsg{token: s.token})
	case matchingDoneMsg:
		if msg.token != s.token {
			return Stay, nil
		}
		s.done = true
		return Advance, nil
	}
	return Stay, nil
}

// Shown returns how many messages are visible.
func (s *Matching) Shown() int {
	return s.shown
}

func (s *Matching) View(width, height int) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(colorConnect).MarginBottom(1).
		Render(s.spin.View() + " " + s.ctx.Variant.Copy.MatchingTitle + s.dots())
	lines := make([]string, 0, s.shown)
	for _, m := range s.messages[:s.shown] {
		lines = append(lines, bodyStyle.Render(m))
	}
	log := lipgloss.NewStyle().Width(bodyWidth(width)).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	return place(width, height, lipgloss.JoinVertical(lipgloss.Left, title, log))
}

func (s *Matching) dots() string {
	n := int(s.ctx.Now().UnixMilli()/500) % 4
	return strings.Repeat(".", n)
}
