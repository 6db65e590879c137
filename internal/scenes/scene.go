// internal/scenes/scene.go
//
// Defines the Scene interface every screen of the experiment implements and
// the Context they share. Scenes never talk to each other; the driver in
// internal/tui walks the flow and hands each one the same Context.

package scenes

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kingrea/ostracism-lab/internal/config"
	"github.com/kingrea/ostracism-lab/internal/external"
	"github.com/kingrea/ostracism-lab/internal/session"
)

// Transition tells the driver whether the active scene is finished.
type Transition int

const (
	Stay Transition = iota
	Advance
)

// Scene is one screen of the experiment.
type Scene interface {
	// Name is written to the detail CSV for every key recorded in the scene.
	Name() string

	// Enter is called once when the scene becomes active. The session clock
	// has already been restarted.
	Enter(ctx *Context) tea.Cmd

	// HandleKey receives every key press except ctrl+c.
	HandleKey(msg tea.KeyMsg) (Transition, tea.Cmd)

	// Update receives every other message (timers, external task results).
	Update(msg tea.Msg) (Transition, tea.Cmd)

	// View renders the scene for a terminal of the given size.
	View(width, height int) string
}

// Handoff is implemented by scenes that give the terminal to another program.
// The driver reacquires the presentation context after such a scene advances.
type Handoff interface {
	Scene
	Outcome() error
}

// Scheduler delivers msg after d.
type Scheduler func(d time.Duration, msg tea.Msg) tea.Cmd

// Launcher runs an external command with the terminal released.
type Launcher func(c tea.ExecCommand, fn tea.ExecCallback) tea.Cmd

// TickScheduler is the production scheduler.
func TickScheduler(d time.Duration, msg tea.Msg) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return msg })
}

// Context is shared by every scene of a run.
type Context struct {
	Session  *session.Session
	Variant  config.Variant
	Title    string
	Rand     *rand.Rand
	Schedule Scheduler
	Launch   Launcher
	Injector external.Injector
	Logger   *zap.Logger
}

// Text renders a copy template for the current subject.
func (c *Context) Text(tmpl string) string {
	return config.Render(tmpl, c.Variant.TextData(c.Session.SubjectID()))
}

// Now reads the session clock.
func (c *Context) Now() time.Time {
	return c.Session.Now()
}

// Reacquire returns a fresh context for the presentation that follows an
// external task, along with the command that retitles the window.
func (c *Context) Reacquire(title string) (*Context, tea.Cmd) {
	next := *c
	next.Title = title
	return &next, tea.SetWindowTitle(title)
}

func (c *Context) after(d time.Duration, msg tea.Msg) tea.Cmd {
	if c.Schedule == nil {
		return TickScheduler(d, msg)
	}
	return c.Schedule(d, msg)
}

func (c *Context) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// uniform returns a duration in [lo, hi).
func (c *Context) uniform(lo, hi time.Duration) time.Duration {
	return lo + time.Duration(c.float()*float64(hi-lo))
}

func (c *Context) float() float64 {
	if c.Rand == nil {
		return rand.Float64()
	}
	return c.Rand.Float64()
}

var tokens atomic.Int64

// nextToken tags timer messages so a timer outliving its scene is ignored.
func nextToken() int64 {
	return tokens.Add(1)
}
