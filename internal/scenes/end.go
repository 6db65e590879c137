package scenes

import (
	tea "github.com/charmbracelet/bubbletea"
)

// End thanks the participant; esc closes the program.
type End struct {
	ctx    *Context
	notice string
}

func NewEnd() *End {
	return &End{}
}

func (s *End) Name() string { return "End" }

func (s *End) Enter(ctx *Context) tea.Cmd {
	s.ctx = ctx
	return nil
}

// SetNotice adds an operator-facing line, e.g. when saving failed.
func (s *End) SetNotice(notice string) {
	s.notice = notice
}

func (s *End) HandleKey(msg tea.KeyMsg) (Transition, tea.Cmd) {
	if msg.Type == tea.KeyEscape {
		return Advance, nil
	}
	return Stay, nil
}

func (s *End) Update(tea.Msg) (Transition, tea.Cmd) {
	return Stay, nil
}

func (s *End) View(width, height int) string {
	body := bodyStyle.Bold(true).Width(bodyWidth(width)).Render(s.ctx.Variant.Copy.End)
	notice := ""
	if s.notice != "" {
		notice = errorStyle.MarginTop(2).Render(s.notice)
	}
	return place(width, height, stack(body, notice))
}
