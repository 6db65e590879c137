package scenes

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Gate is the single key that ends a prompt scene and how it is recorded.
type Gate struct {
	Key   string
	Label string
	Note  string
}

// SpaceGate advances on the space bar.
func SpaceGate(note string) Gate {
	return Gate{Key: " ", Label: "SPACE", Note: note}
}

// Layout picks how a prompt card is framed.
type Layout int

const (
	LayoutPlain Layout = iota
	LayoutAccent
	LayoutFramed
	LayoutWarning
	LayoutAlert
)

// Card is the rendered content of a prompt scene.
type Card struct {
	Title  string
	Body   string
	Hint   string
	Layout Layout
	// Color is the accent bar, frame or body highlight depending on Layout.
	Color lipgloss.Color
	// Emphasis draws the body in the highlight color.
	Emphasis bool
	Gate     Gate
}

// Prompt shows a card and waits for its gate key.
type Prompt struct {
	name  string
	build func(ctx *Context) Card
	ctx   *Context
	card  Card
}

// NewPrompt creates a prompt scene. build runs on Enter so the card can use
// the subject's identity and assignment.
func NewPrompt(name string, build func(ctx *Context) Card) *Prompt {
	return &Prompt{name: name, build: build}
}

func (p *Prompt) Name() string { return p.name }

func (p *Prompt) Enter(ctx *Context) tea.Cmd {
	p.card = p.build(ctx)
	if p.card.Gate.Key == "" {
		p.card.Gate = SpaceGate("")
	}
	p.ctx = ctx
	return nil
}

func (p *Prompt) HandleKey(msg tea.KeyMsg) (Transition, tea.Cmd) {
	if msg.String() != p.card.Gate.Key {
		return Stay, nil
	}
	p.ctx.Session.Record(p.card.Gate.Label, p.card.Gate.Note)
	return Advance, nil
}

func (p *Prompt) Update(tea.Msg) (Transition, tea.Cmd) {
	return Stay, nil
}

// Card returns what the scene is showing.
func (p *Prompt) Card() Card {
	return p.card
}

func (p *Prompt) View(width, height int) string {
	return place(width, height, renderCard(p.card, width))
}

func renderCard(c Card, width int) string {
	w := bodyWidth(width)
	body := bodyStyle.Width(w)
	if c.Emphasis {
		body = body.Foreground(colorHighlight)
	}
	title := ""
	if c.Title != "" {
		title = titleStyle.MarginBottom(1).Render(c.Title)
	}
	hint := ""
	if c.Hint != "" {
		hint = hintStyle.Render(c.Hint)
	}

	switch c.Layout {
	case LayoutAccent:
		bar := lipgloss.NewStyle().
			Border(lipgloss.ThickBorder(), false, false, false, true).
			BorderForeground(c.Color).
			PaddingLeft(2)
		return stack(title, bar.Render(body.Render(c.Body)), hint)
	case LayoutFramed:
		frame := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(c.Color).
			Padding(1, 3)
		return stack(title, frame.Render(body.Render(c.Body)), hint)
	case LayoutWarning:
		warnTitle := ""
		if c.Title != "" {
			warnTitle = errorStyle.MarginBottom(1).Render(c.Title)
		}
		frame := lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(colorWarning).
			Background(lipgloss.Color("#1E0000")).
			Padding(1, 3)
		return stack(warnTitle, frame.Render(body.Render(c.Body)), hint)
	case LayoutAlert:
		badge := lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#141414")).
			Background(colorHighlight).
			Padding(1, 3).
			MarginBottom(1).
			Render("!")
		heading := ""
		if c.Title != "" {
			heading = bodyStyle.Bold(true).MarginBottom(1).Render(c.Title)
		}
		return stack(badge, heading, body.Render(c.Body), hint)
	default:
		return stack(title, body.Render(c.Body), hint)
	}
}
