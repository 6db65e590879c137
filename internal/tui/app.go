// internal/tui/app.go
//
// This is the terminal UI that runs one experiment session.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: the App holds the session and the position in the scene flow
// 2. Update: key presses go to the active scene, everything else too
// 3. View: the active scene renders itself full screen
//
// The App knows nothing about individual screens. It walks the flow built by
// the scenes package and only steps in at the few points where the run
// itself changes: after identity entry (condition assignment), after the
// external game (presentation is reacquired), after the decision (results
// are saved) and at the end.

package tui

import (
	"fmt"
	"math/rand/v2"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kingrea/ostracism-lab/internal/condition"
	"github.com/kingrea/ostracism-lab/internal/config"
	"github.com/kingrea/ostracism-lab/internal/external"
	"github.com/kingrea/ostracism-lab/internal/logbook"
	"github.com/kingrea/ostracism-lab/internal/results"
	"github.com/kingrea/ostracism-lab/internal/scenes"
	"github.com/kingrea/ostracism-lab/internal/session"
)

// appState represents what the driver is doing.
type appState int

const (
	stateScene  appState = iota // a scene owns input
	stateSaving                 // results are being written
	stateDone                   // program is quitting
)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithClock replaces the session clock.
func WithClock(now func() time.Time) AppOption {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// WithRand seeds the timing jitter of the animated scenes.
func WithRand(r *rand.Rand) AppOption {
	return func(a *App) {
		if r != nil {
			a.rand = r
		}
	}
}

// WithScheduler replaces tea.Tick for scene timers.
func WithScheduler(s scenes.Scheduler) AppOption {
	return func(a *App) {
		if s != nil {
			a.schedule = s
		}
	}
}

// WithLauncher replaces tea.Exec for the external game.
func WithLauncher(l scenes.Launcher) AppOption {
	return func(a *App) {
		if l != nil {
			a.launch = l
		}
	}
}

// WithInjector overrides the keystroke injector built from the config.
func WithInjector(inj external.Injector) AppOption {
	return func(a *App) {
		if inj != nil {
			a.injector = inj
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithLogbook sets the run journal.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

type savedMsg struct {
	report results.Report
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	state   appState
	config  *config.Config
	session *session.Session
	ctx     *scenes.Context
	flow    []scenes.Scene
	index   int

	now      func() time.Time
	rand     *rand.Rand
	schedule scenes.Scheduler
	launch   scenes.Launcher
	injector external.Injector
	logger   *zap.Logger
	logbook  *logbook.Logbook
	store    *results.Store

	report  results.Report
	saved   bool
	aborted bool

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// NewApp creates a new App for one session of the configured variant.
func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("tui: config is required")
	}
	app := &App{
		state:    stateScene,
		config:   cfg,
		now:      time.Now,
		schedule: scenes.TickScheduler,
		launch:   tea.Exec,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if app.injector == nil {
		inj, err := external.NewInjector(cfg.Variant.Game.Injector)
		if err != nil {
			return nil, err
		}
		app.injector = inj
	}
	if app.rand == nil {
		app.rand = rand.New(rand.NewPCG(uint64(app.now().UnixNano()), 0))
	}

	app.session = session.New(app.now)
	app.logger = app.logger.With(zap.String("run_id", app.session.RunID), zap.String("variant", cfg.VariantID))
	app.logbook = app.logbook.WithRun(app.session.RunID)
	app.store = &results.Store{
		SummaryPath:   cfg.SummaryPath(),
		SubjectColumn: cfg.Variant.Output.DetailSubjectColumn,
		Logger:        app.logger,
	}
	app.ctx = &scenes.Context{
		Session:  app.session,
		Variant:  cfg.Variant,
		Title:    cfg.Variant.Title,
		Rand:     app.rand,
		Schedule: app.schedule,
		Launch:   app.launch,
		Injector: app.injector,
		Logger:   app.logger,
	}
	app.flow = scenes.Flow(cfg.Variant, app.identityCheck())

	app.logger.Info("session opened", zap.String("data_dir", cfg.DataDir()))
	app.logInfo("Session opened · variant %s", cfg.VariantID)
	return app, nil
}

// identityCheck refuses ids the posture rule cannot bucket.
func (a *App) identityCheck() func(string) error {
	if a.config.Variant.Condition.PostureRule != config.PostureRuleParity {
		return nil
	}
	return func(id string) error {
		_, err := condition.Odd(id)
		return err
	}
}

// Session exposes the run state.
func (a *App) Session() *session.Session {
	return a.session
}

// Report returns the result of the save step.
func (a *App) Report() (results.Report, bool) {
	return a.report, a.saved
}

// Aborted reports whether the run was interrupted before the end.
func (a *App) Aborted() bool {
	return a.aborted
}

func (a *App) current() scenes.Scene {
	if a.index < 0 || a.index >= len(a.flow) {
		return nil
	}
	return a.flow[a.index]
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return tea.Batch(tea.SetWindowTitle(a.ctx.Title), a.enterCurrent())
}

func (a *App) enterCurrent() tea.Cmd {
	scene := a.current()
	if scene == nil {
		return nil
	}
	a.session.EnterScene(scene.Name())
	a.logger.Debug("scene entered", zap.String("scene", scene.Name()))
	return scene.Enter(a.ctx)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case savedMsg:
		return a, a.handleSaved(msg)

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return a, a.abort()
		}
		if a.state != stateScene {
			return a, nil
		}
		scene := a.current()
		if scene == nil {
			return a, nil
		}
		tr, cmd := scene.HandleKey(msg)
		return a, a.step(tr, cmd)
	}

	if a.state != stateScene {
		return a, nil
	}
	scene := a.current()
	if scene == nil {
		return a, nil
	}
	tr, cmd := scene.Update(msg)
	return a, a.step(tr, cmd)
}

func (a *App) step(tr scenes.Transition, cmd tea.Cmd) tea.Cmd {
	if tr != scenes.Advance {
		return cmd
	}
	return tea.Batch(cmd, a.advance())
}

// advance closes the active scene and enters the next one.
func (a *App) advance() tea.Cmd {
	var extra tea.Cmd
	switch scene := a.current().(type) {
	case *scenes.Identity:
		a.assign()
	case scenes.Handoff:
		extra = a.reacquire(scene.Outcome())
	case *scenes.Decision:
		a.state = stateSaving
		return a.save()
	case *scenes.End:
		a.state = stateDone
		a.logInfo("Session closed")
		return tea.Quit
	}
	a.index++
	if a.current() == nil {
		a.state = stateDone
		return tea.Batch(extra, tea.Quit)
	}
	return tea.Batch(extra, a.enterCurrent())
}

func (a *App) assign() {
	id := a.session.SubjectID()
	assignment, err := condition.Assign(id, a.config.Variant.Condition)
	if err != nil {
		// The identity scene refuses ids without digits under the parity
		// rule, so this only happens with a misconfigured rule.
		a.logger.Error("condition assignment failed, using neutral", zap.String("subject_id", id), zap.Error(err))
		a.logWarn("Subject %s could not be bucketed (%v); posture neutral", id, err)
		assignment = condition.Assignment{
			TaskCondition: a.config.Variant.Condition.TaskCondition,
			Posture:       condition.PostureNeutral,
			Necessity:     a.config.Variant.Condition.Necessity,
		}
		assignment.Label = condition.Label(a.config.Variant.Condition.LabelFormat, assignment)
	}
	a.session.Assign(assignment)
	a.logger = a.logger.With(zap.String("subject_id", id))
	a.ctx.Logger = a.logger
	a.store.Logger = a.logger
	a.logger.Info("condition assigned", zap.String("posture", assignment.Posture), zap.String("label", assignment.Label))
	a.logInfo("Subject %s assigned %s", id, assignment.Label)
}

func (a *App) reacquire(outcome error) tea.Cmd {
	if outcome != nil {
		a.logger.Warn("external game ended with error", zap.Error(outcome))
		a.logWarn("External game: %v", outcome)
	} else {
		a.logInfo("External game finished")
	}
	ctx, cmd := a.ctx.Reacquire(a.config.Variant.FeedbackTitle)
	a.ctx = ctx
	return cmd
}

func (a *App) save() tea.Cmd {
	investment, _ := a.session.Investment()
	assignment, _ := a.session.Assignment()
	subject := a.session.SubjectID()
	summary := results.Summary{
		SubjectID:      subject,
		ConditionGroup: assignment.Label,
		Timestamp:      a.session.Now(),
		Investment:     investment,
		Endowment:      a.config.Variant.Economy.Endowment,
	}
	records := a.session.Records()
	if a.config.Variant.Output.DetailSubjectColumn {
		records = a.session.RecordsForSubject()
	}
	detail := a.config.DetailPath(subject)
	store := a.store
	return func() tea.Msg {
		return savedMsg{report: store.Save(summary, records, detail)}
	}
}

func (a *App) handleSaved(msg savedMsg) tea.Cmd {
	a.report = msg.report
	a.saved = true
	if msg.report.SummaryErr != nil {
		a.logError("Summary not saved: %v", msg.report.SummaryErr)
	} else {
		a.logInfo("Summary appended to %s", msg.report.SummaryPath)
	}
	if msg.report.DetailErr != nil {
		a.logError("Detail log not saved: %v", msg.report.DetailErr)
	} else {
		a.logInfo("Detail log written to %s (%d rows)", msg.report.DetailPath, msg.report.Rows)
	}

	a.state = stateScene
	a.index++
	if end, ok := a.current().(*scenes.End); ok && msg.report.Err() != nil {
		end.SetNotice("数据保存失败，请联系主试 / save failed, see logs")
	}
	return a.enterCurrent()
}

// abort quits immediately. Nothing is saved.
func (a *App) abort() tea.Cmd {
	if a.state == stateDone {
		return tea.Quit
	}
	a.state = stateDone
	if a.saved {
		return tea.Quit
	}
	a.aborted = true
	name := ""
	if scene := a.current(); scene != nil {
		name = scene.Name()
	}
	unsaved := len(a.session.Records())
	a.logger.Warn("session aborted", zap.String("scene", name), zap.Int("unsaved_records", unsaved))
	a.logWarn("Aborted during %s · %d unsaved records", name, unsaved)
	return tea.Quit
}

// View renders the active scene.
func (a *App) View() string {
	scene := a.current()
	if scene == nil || a.state == stateDone {
		return ""
	}
	return scene.View(a.width, a.height)
}
