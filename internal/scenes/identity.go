package scenes

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// SceneIdentity is the CSV name of the identity entry scene.
const SceneIdentity = "ID_Input"

// Identity collects the subject identifier. Only letters and digits are
// accepted; return confirms a non-empty buffer.
type Identity struct {
	ctx      *Context
	input    textinput.Model
	validate func(string) error
	rejected bool
}

// NewIdentity creates the identity scene. validate may be nil; when it
// rejects an id the buffer is kept and an error line is shown.
func NewIdentity(validate func(string) error) *Identity {
	return &Identity{validate: validate}
}

func (s *Identity) Name() string { return SceneIdentity }

func (s *Identity) Enter(ctx *Context) tea.Cmd {
	s.ctx = ctx
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = ""
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#1E90FF"))
	ti.Cursor.SetMode(cursor.CursorStatic)
	ti.Focus()
	s.input = ti
	return nil
}

// Value returns the current buffer.
func (s *Identity) Value() string {
	return s.input.Value()
}

func (s *Identity) HandleKey(msg tea.KeyMsg) (Transition, tea.Cmd) {
	text := s.input.Value()
	switch msg.Type {
	case tea.KeyEnter:
		s.ctx.Session.Record("RETURN", "Confirm: "+text)
		if text == "" {
			return Stay, nil
		}
		if s.validate != nil {
			if err := s.validate(text); err != nil {
				s.ctx.logger().Warn("identifier rejected", zap.String("id", text), zap.Error(err))
				s.rejected = true
				return Stay, nil
			}
		}
		if err := s.ctx.Session.SetSubject(text); err != nil {
			s.ctx.logger().Error("set subject", zap.Error(err))
			return Stay, nil
		}
		return Advance, nil
	case tea.KeyBackspace:
		s.ctx.Session.Record("BACKSPACE", "Delete char")
		s.rejected = false
		if r := []rune(text); len(r) > 0 {
			s.input.SetValue(string(r[:len(r)-1]))
		}
		return Stay, nil
	case tea.KeyRunes:
		if msg.Paste || msg.Alt {
			return Stay, nil
		}
		// A fast typist or a scanner can deliver several runes in one read.
		for _, r := range msg.Runes {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				continue
			}
			s.ctx.Session.Record(strings.ToLower(string(r)), "Type: "+string(r))
			s.rejected = false
			text += string(r)
		}
		s.input.SetValue(text)
		return Stay, nil
	}
	return Stay, nil
}

func (s *Identity) Update(tea.Msg) (Transition, tea.Cmd) {
	return Stay, nil
}

func (s *Identity) View(width, height int) string {
	deck := s.ctx.Variant.Copy
	prompt := bodyStyle.Bold(true).MarginBottom(1).Render(deck.IDPrompt)
	boxWidth := lipgloss.Width(s.input.Value()) + 4
	if boxWidth < 20 {
		boxWidth = 20
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#1E90FF")).
		Width(boxWidth).
		Padding(0, 1).
		Render(s.input.View())
	errLine := ""
	if s.rejected {
		errLine = errorStyle.MarginTop(1).Render(deck.IDError)
	}
	return place(width, height, stack(prompt, box, hintStyle.Render(deck.IDHint), errLine))
}
