package scenes

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/kingrea/ostracism-lab/internal/config"
	"github.com/kingrea/ostracism-lab/internal/external"
)

type launchMsg struct{ token int64 }

// ExternalDoneMsg reports the end of the external game.
type ExternalDoneMsg struct {
	token int64
	Err   error
}

// ExternalGame hands the terminal to the ball-tossing game and resumes when it
// exits. An optional notice is shown first.
type ExternalGame struct {
	ctx     *Context
	token   int64
	missing bool
	outcome error
}

func NewExternalGame() *ExternalGame {
	return &ExternalGame{}
}

func (s *ExternalGame) Name() string { return "Launch_Cyberball" }

func (s *ExternalGame) Enter(ctx *Context) tea.Cmd {
	s.ctx = ctx
	s.token = nextToken()
	s.missing = false
	s.outcome = nil
	if d := ctx.Variant.Game.NoticeDelay; d > 0 {
		return ctx.after(d, launchMsg{token: s.token})
	}
	return s.launch()
}

// Outcome is the error reported by the game, nil on a clean exit.
func (s *ExternalGame) Outcome() error {
	return s.outcome
}

// Missing reports whether the on-screen missing-executable prompt is up.
func (s *ExternalGame) Missing() bool {
	return s.missing
}

func (s *ExternalGame) launch() tea.Cmd {
	game := s.ctx.Variant.Game
	logger := s.ctx.logger()
	if game.MissingPrompt == config.PromptScreen {
		if err := external.CheckExecutable(game.Path); err != nil {
			logger.Error("external game missing", zap.String("path", game.Path))
			s.missing = true
			s.outcome = err
			return nil
		}
	}
	task := s.Task()
	token := s.token
	launch := s.ctx.Launch
	if launch == nil {
		launch = tea.Exec
	}
	logger.Info("handing terminal to external game", zap.String("path", game.Path))
	return launch(task, func(err error) tea.Msg {
		return ExternalDoneMsg{token: token, Err: err}
	})
}

// Task builds the external task for the current subject.
func (s *ExternalGame) Task() *external.Task {
	game := s.ctx.Variant.Game
	task := &external.Task{
		Path:       game.Path,
		Script:     game.Script,
		Grace:      game.StartupGrace,
		FieldDelay: game.FieldDelay,
		Request: external.Request{
			SubjectID: s.ctx.Session.SubjectID(),
			Condition: s.ctx.Variant.Condition.TaskCondition,
		},
		Injector: s.ctx.Injector,
		Logger:   s.ctx.Logger,
	}
	if game.MissingPrompt == config.PromptTerminal {
		deck := s.ctx.Variant.Copy
		task.TerminalPrompt = strings.TrimSpace(s.ctx.Text(deck.MissingGameTerminal) + "\n" + deck.MissingGameAck)
	}
	return task
}

func (s *ExternalGame) HandleKey(msg tea.KeyMsg) (Transition, tea.Cmd) {
	if s.missing && msg.Type == tea.KeyEnter {
		return Advance, nil
	}
	return Stay, nil
}

func (s *ExternalGame) Update(msg tea.Msg) (Transition, tea.Cmd) {
	switch msg := msg.(type) {
	case launchMsg:
		if msg.token != s.token {
			return Stay, nil
		}
		return Stay, s.launch()
	case ExternalDoneMsg:
		if msg.token != s.token {
			return Stay, nil
		}
		s.outcome = msg.Err
		if msg.Err != nil && !errors.Is(msg.Err, external.ErrExecutableMissing) {
			s.ctx.logger().Error("external game failed", zap.Error(msg.Err))
		}
		return Advance, nil
	}
	return Stay, nil
}

func (s *ExternalGame) View(width, height int) string {
	if s.missing {
		text := s.ctx.Text(s.ctx.Variant.Copy.MissingGame)
		panel := lipgloss.NewStyle().
			Foreground(colorText).
			Background(lipgloss.Color("#320000")).
			Width(bodyWidth(width)).
			Padding(1, 3).
			Render(text)
		return place(width, height, panel)
	}
	card := Card{
		Body:     s.ctx.Text(s.ctx.Variant.Copy.LaunchNotice),
		Hint:     s.ctx.Variant.Copy.LaunchNoticeHint,
		Emphasis: true,
	}
	return place(width, height, renderCard(card, width))
}
