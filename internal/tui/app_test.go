package tui

import (
	"bytes"
	"encoding/csv"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/ostracism-lab/internal/config"
	"github.com/kingrea/ostracism-lab/internal/external"
	"github.com/kingrea/ostracism-lab/internal/logbook"
	"github.com/kingrea/ostracism-lab/internal/scenes"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time {
	c.t = c.t.Add(10 * time.Millisecond)
	return c.t
}

type testRun struct {
	app      *App
	dataDir  string
	journal  *logbook.Logbook
	launched []*external.Task
	quit     bool
}

func newTestRun(t *testing.T, variant string) *testRun {
	t.Helper()
	for _, key := range []string{"EXPERIMENT_GAME_PATH", "EXPERIMENT_GAME_SCRIPT", "EXPERIMENT_DATA_DIR", "EXPERIMENT_INJECTOR"} {
		t.Setenv(key, "")
	}
	dataDir := filepath.Join(t.TempDir(), "data")
	cfg, err := config.NewConfig(config.Options{Variant: variant, BaseDir: t.TempDir(), DataDir: dataDir})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if err := config.InitDataDir(cfg.DataDir()); err != nil {
		t.Fatalf("init data dir: %v", err)
	}
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	run := &testRun{dataDir: dataDir, journal: journal}
	clock := &testClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)}
	app, err := NewApp(cfg,
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewPCG(7, 7))),
		WithScheduler(func(_ time.Duration, msg tea.Msg) tea.Cmd {
			return func() tea.Msg { return msg }
		}),
		WithLauncher(func(c tea.ExecCommand, fn tea.ExecCallback) tea.Cmd {
			run.launched = append(run.launched, c.(*external.Task))
			return func() tea.Msg { return fn(nil) }
		}),
		WithInjector(external.NoneInjector{}),
		WithLogbook(journal),
	)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	run.app = app
	run.drain(t, app.Init())
	return run
}

// drain runs commands breadth first, feeding every message back into the app.
func (r *testRun) drain(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 20000 {
			t.Fatalf("commands never settled")
		}
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		msg := next()
		switch msg := msg.(type) {
		case nil:
			continue
		case tea.QuitMsg:
			r.quit = true
			return
		case tea.BatchMsg:
			queue = append(queue, msg...)
			continue
		}
		model, follow := r.app.Update(msg)
		app, ok := model.(*App)
		if !ok {
			t.Fatalf("unexpected model type: %T", model)
		}
		r.app = app
		queue = append(queue, follow)
	}
}

func (r *testRun) send(t *testing.T, msgs ...tea.KeyMsg) {
	t.Helper()
	for _, msg := range msgs {
		if r.quit {
			t.Fatalf("program already quit")
		}
		model, cmd := r.app.Update(msg)
		r.app = model.(*App)
		r.drain(t, cmd)
	}
}

func (r *testRun) scene() string {
	if s := r.app.current(); s != nil {
		return s.Name()
	}
	return ""
}

func typed(s string) []tea.KeyMsg {
	var keys []tea.KeyMsg
	for _, r := range s {
		keys = append(keys, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return keys
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	esc   = tea.KeyMsg{Type: tea.KeyEscape}
	ctrlC = tea.KeyMsg{Type: tea.KeyCtrlC}
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

func TestFullHighNecessityRun(t *testing.T) {
	run := newTestRun(t, "exc-ext-high")
	if run.scene() != scenes.SceneIdentity {
		t.Fatalf("first scene = %s", run.scene())
	}
	run.send(t, typed("1601")...)
	run.send(t, enter)
	if run.scene() != scenes.ScenePosture {
		t.Fatalf("expected posture scene, got %s", run.scene())
	}
	a, ok := run.app.Session().Assignment()
	if !ok || a.Label != "Cyber1_Ext_defensive_high" {
		t.Fatalf("assignment = %+v", a)
	}

	run.send(t, space) // posture
	run.send(t, space) // game instruction, matching plays out
	if run.scene() != scenes.SceneReady {
		t.Fatalf("expected ready scene after matching, got %s", run.scene())
	}
	run.send(t, space) // ready, game runs, loading plays out
	if len(run.launched) != 1 {
		t.Fatalf("external game launched %d times", len(run.launched))
	}
	if req := run.launched[0].Request; req.SubjectID != "1601" || req.Condition != "1" {
		t.Fatalf("unexpected login %+v", req)
	}
	if run.scene() != scenes.SceneFeedback {
		t.Fatalf("expected feedback scene, got %s", run.scene())
	}
	if run.app.ctx.Title != run.app.config.Variant.FeedbackTitle {
		t.Fatalf("context not reacquired, title %q", run.app.ctx.Title)
	}

	run.send(t, space, space, space) // feedback, call experimenter, pgg instruction
	if run.scene() != scenes.SceneNecessity {
		t.Fatalf("expected necessity scene, got %s", run.scene())
	}
	run.send(t, space)
	run.send(t, typed("12")...)
	run.send(t, enter)
	if run.scene() != scenes.SceneDecision {
		t.Fatalf("out of range value must keep the decision scene, got %s", run.scene())
	}
	run.send(t, typed("7")...)
	run.send(t, enter)
	if run.scene() != "End" {
		t.Fatalf("expected end scene, got %s", run.scene())
	}
	report, saved := run.app.Report()
	if !saved || report.Err() != nil {
		t.Fatalf("save report: %+v", report)
	}

	summary := readCSV(t, filepath.Join(run.dataDir, "experiment_data.csv"))
	if len(summary) != 2 {
		t.Fatalf("summary rows = %d", len(summary))
	}
	row := summary[1]
	if row[0] != "1601" || row[1] != "Cyber1_Ext_defensive_high" || row[3] != "7" || row[4] != "10" {
		t.Fatalf("summary row = %v", row)
	}

	detail := readCSV(t, filepath.Join(run.dataDir, "reaction_times_1601.csv"))
	if strings.Join(detail[0], ",") != "Subject_ID,Scene,Timestamp,Reaction_Time_ms,Key,Note" {
		t.Fatalf("detail header = %v", detail[0])
	}
	var scenesSeen []string
	for _, r := range detail[1:] {
		if r[0] != "1601" {
			t.Fatalf("subject column not backfilled: %v", r)
		}
		if len(scenesSeen) == 0 || scenesSeen[len(scenesSeen)-1] != r[1] {
			scenesSeen = append(scenesSeen, r[1])
		}
	}
	want := "ID_Input,Posture_Instruction,Cyberball_Instruction,Ready_To_Launch,Feedback_Read,Call_Experimenter,PGG_Instruction,Necessity_Manip,PGG_Game"
	if got := strings.Join(scenesSeen, ","); got != want {
		t.Fatalf("scene order = %s", got)
	}
	last := detail[len(detail)-1]
	if last[4] != "RETURN" || last[5] != "Confirm: 7" {
		t.Fatalf("last record = %v", last)
	}

	run.send(t, esc)
	if !run.quit || run.app.Aborted() {
		t.Fatalf("esc on the end scene should quit cleanly")
	}
	lines, _ := run.journal.Tail(20)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"Session opened", "assigned Cyber1_Ext_defensive_high", "External game finished", "Summary appended", "Session closed"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("journal missing %q:\n%s", want, joined)
		}
	}
}

func TestInclusionRunSkipsReadyAndNecessity(t *testing.T) {
	run := newTestRun(t, "inc-int-low")
	game := filepath.Join(t.TempDir(), "Cyberball-Play")
	if err := os.WriteFile(game, nil, 0o755); err != nil {
		t.Fatal(err)
	}
	run.app.ctx.Variant.Game.Path = game

	run.send(t, typed("1600")...)
	run.send(t, enter, space, space)
	if run.scene() != scenes.SceneFeedback {
		t.Fatalf("inclusion flow should reach feedback without a ready gate, got %s", run.scene())
	}
	run.send(t, space, space, space)
	if run.scene() != scenes.SceneDecision {
		t.Fatalf("expected decision without necessity scene, got %s", run.scene())
	}
	run.send(t, typed("0")...)
	run.send(t, enter)

	summary := readCSV(t, filepath.Join(run.dataDir, "experiment_data.csv"))
	if got := summary[1][1]; got != "Cyber2_neutral" {
		t.Fatalf("condition group = %s", got)
	}
	detail := readCSV(t, filepath.Join(run.dataDir, "key_logs_1600.csv"))
	if detail[0][0] != "Scene" {
		t.Fatalf("inclusion detail must not carry a subject column: %v", detail[0])
	}
}

func TestMissingGameScreenPromptSkips(t *testing.T) {
	run := newTestRun(t, "inc-int-low")
	run.app.ctx.Variant.Game.Path = filepath.Join(t.TempDir(), "missing.exe")
	run.send(t, typed("3")...)
	run.send(t, enter, space, space)
	if run.scene() != "Launch_Cyberball" {
		t.Fatalf("expected to wait on the missing-game prompt, got %s", run.scene())
	}
	if len(run.launched) != 0 {
		t.Fatalf("missing game must not launch")
	}
	run.send(t, enter)
	if run.scene() != scenes.SceneFeedback {
		t.Fatalf("enter should skip to feedback, got %s", run.scene())
	}
	lines, _ := run.journal.Tail(10)
	if !strings.Contains(strings.Join(lines, "\n"), "External game:") {
		t.Fatalf("missing game outcome should be journaled: %v", lines)
	}
}

func TestCtrlCAbortsWithoutSaving(t *testing.T) {
	run := newTestRun(t, "exc-ext-low")
	run.send(t, typed("5")...)
	run.send(t, enter, ctrlC)
	if !run.quit || !run.app.Aborted() {
		t.Fatalf("ctrl+c should quit and mark the run aborted")
	}
	if _, err := os.Stat(filepath.Join(run.dataDir, "experiment_data.csv")); !os.IsNotExist(err) {
		t.Fatalf("aborted run must not write the summary, stat err = %v", err)
	}
	lines, _ := run.journal.Tail(5)
	if !strings.Contains(strings.Join(lines, "\n"), "Aborted during Posture_Instruction · 2 unsaved records") {
		t.Fatalf("abort not journaled: %v", lines)
	}
}

func TestIdentityWithoutDigitsIsRefused(t *testing.T) {
	run := newTestRun(t, "exc-ext-high")
	run.send(t, typed("abc")...)
	run.send(t, enter)
	if run.scene() != scenes.SceneIdentity {
		t.Fatalf("id without digits must not advance, got %s", run.scene())
	}
	if run.app.Session().SubjectID() != "" {
		t.Fatalf("subject id should stay unset")
	}
}

func TestViewRendersActiveScene(t *testing.T) {
	run := newTestRun(t, "exc-ext-high")
	model, _ := run.app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	run.app = model.(*App)
	if !strings.Contains(run.app.View(), run.app.config.Variant.Copy.IDPrompt) {
		t.Fatalf("identity prompt missing from view")
	}
}
