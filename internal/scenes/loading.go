package scenes

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const loadingStep = 50 * time.Millisecond

type loadingTickMsg struct{ token int64 }

// Loading fills a fake "analysing your performance" bar by a random amount
// every step until it passes 100.
type Loading struct {
	ctx     *Context
	token   int64
	percent float64
	bar     progress.Model
}

func NewLoading() *Loading {
	return &Loading{}
}

func (s *Loading) Name() string { return "Loading_Results" }

func (s *Loading) Enter(ctx *Context) tea.Cmd {
	s.ctx = ctx
	s.token = nextToken()
	s.percent = 0
	s.bar = progress.New(progress.WithSolidFill(string(colorBar)), progress.WithoutPercentage())
	return ctx.after(loadingStep, loadingTickMsg{token: s.token})
}

func (s *Loading) HandleKey(tea.KeyMsg) (Transition, tea.Cmd) {
	return Stay, nil
}

func (s *Loading) Update(msg tea.Msg) (Transition, tea.Cmd) {
	tick, ok := msg.(loadingTickMsg)
	if !ok || tick.token != s.token {
		return Stay, nil
	}
	s.percent += 0.1 + s.ctx.float()*1.4
	if s.percent > 100 {
		return Advance, nil
	}
	return Stay, s.ctx.after(loadingStep, loadingTickMsg{token: s.token})
}

// Percent is the current fill level in [0, 100+).
func (s *Loading) Percent() float64 {
	return s.percent
}

// Step returns the status line for the current fill level.
func (s *Loading) Step() string {
	steps := s.ctx.Variant.Copy.LoadingSteps
	if len(steps) == 0 {
		return ""
	}
	var idx int
	switch {
	case s.percent < 30:
		idx = 0
	case s.percent < 60:
		idx = 1
	case s.percent < 90:
		idx = 2
	default:
		idx = 3
	}
	if idx >= len(steps) {
		idx = len(steps) - 1
	}
	return steps[idx]
}

func (s *Loading) View(width, height int) string {
	s.bar.Width = bodyWidth(width) * 6 / 7
	ratio := s.percent / 100
	if ratio > 1 {
		ratio = 1
	}
	title := bodyStyle.Bold(true).MarginBottom(1).Render(s.ctx.Variant.Copy.LoadingTitle)
	step := lipgloss.NewStyle().Foreground(colorSubtle).MarginBottom(1).Render(s.Step())
	return place(width, height, stack(title, step, s.bar.ViewAs(ratio)))
}
