package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"EXPERIMENT_GAME_PATH", "EXPERIMENT_GAME_SCRIPT", "EXPERIMENT_DATA_DIR", "EXPERIMENT_INJECTOR"} {
		t.Setenv(key, "")
	}
}

func TestVariantsListsPresetsWithoutBase(t *testing.T) {
	got := strings.Join(Variants(), ",")
	if got != "exc-ext-high,exc-ext-low,inc-int-low" {
		t.Fatalf("unexpected variants %q", got)
	}
}

func TestNewConfigLoadsEveryPreset(t *testing.T) {
	clearEnv(t)
	for _, id := range Variants() {
		cfg, err := NewConfig(Options{Variant: id, BaseDir: t.TempDir()})
		if err != nil {
			t.Fatalf("load %s: %v", id, err)
		}
		if cfg.Variant.ID != id {
			t.Fatalf("variant id = %q, want %q", cfg.Variant.ID, id)
		}
		if cfg.Variant.Economy.Endowment != 10 || cfg.Variant.Economy.Multiplier != 2 {
			t.Fatalf("%s: unexpected economy %+v", id, cfg.Variant.Economy)
		}
		if cfg.Variant.Game.StartupGrace != 3*time.Second {
			t.Fatalf("%s: startup grace = %s", id, cfg.Variant.Game.StartupGrace)
		}
	}
}

func TestPresetDifferences(t *testing.T) {
	clearEnv(t)
	high, err := NewConfig(Options{Variant: "exc-ext-high", BaseDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if !high.Variant.HasNecessity() || high.Variant.Economy.Threshold != 15 {
		t.Fatalf("high necessity variant missing threshold or copy")
	}
	if !high.Variant.Output.DetailSubjectColumn {
		t.Fatalf("high variant should carry the subject column")
	}
	if !strings.HasSuffix(high.DetailPath("1601"), "reaction_times_1601.csv") {
		t.Fatalf("unexpected detail path %s", high.DetailPath("1601"))
	}

	low, err := NewConfig(Options{Variant: "exc-ext-low", BaseDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if low.Variant.HasNecessity() {
		t.Fatalf("low variant must not have a necessity scene")
	}
	if strings.Contains(low.Variant.Copy.Posture["neutral"], "双手自然平放") {
		t.Fatalf("low variant should override the neutral posture copy")
	}
	if !strings.Contains(low.Variant.Copy.Posture["defensive"], "双臂紧紧交叉") {
		t.Fatalf("low variant should keep the shared defensive copy")
	}

	inc, err := NewConfig(Options{Variant: "inc-int-low", BaseDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if inc.Variant.Condition.TaskCondition != "2" {
		t.Fatalf("inclusion condition = %q", inc.Variant.Condition.TaskCondition)
	}
	if inc.Variant.Game.Script != "" || inc.Variant.Game.ConfirmLaunch {
		t.Fatalf("inclusion variant should launch without script or confirmation: %+v", inc.Variant.Game)
	}
	if inc.Variant.Game.MissingPrompt != PromptScreen || inc.Variant.Game.NoticeDelay != 1500*time.Millisecond {
		t.Fatalf("inclusion variant prompt/notice wrong: %+v", inc.Variant.Game)
	}
}

func TestNewConfigUnknownVariant(t *testing.T) {
	clearEnv(t)
	_, err := NewConfig(Options{Variant: "nope", BaseDir: t.TempDir()})
	if err == nil || !strings.Contains(err.Error(), "unknown variant") {
		t.Fatalf("expected unknown variant error, got %v", err)
	}
}

func TestOverrideFileAndEnvLayering(t *testing.T) {
	clearEnv(t)
	base := t.TempDir()
	override := strings.TrimSpace(`
id: renamed
game:
  path: /opt/cyberball/play
  startup_grace: 5s
economy:
  endowment: 20
output:
  dir: results
`)
	path := filepath.Join(base, "lab.yaml")
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EXPERIMENT_INJECTOR", "none")

	cfg, err := NewConfig(Options{Variant: "exc-ext-low", Path: path, BaseDir: base})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Variant.ID != "exc-ext-low" {
		t.Fatalf("lab file must not rename the variant, got %s", cfg.Variant.ID)
	}
	if cfg.Variant.Game.Path != "/opt/cyberball/play" || cfg.Variant.Game.StartupGrace != 5*time.Second {
		t.Fatalf("override not applied: %+v", cfg.Variant.Game)
	}
	if cfg.Variant.Game.Script != "Standard.cbs" {
		t.Fatalf("unset fields should keep the preset value, got %q", cfg.Variant.Game.Script)
	}
	if cfg.Variant.Game.Injector != InjectorNone {
		t.Fatalf("env injector not applied: %s", cfg.Variant.Game.Injector)
	}
	if cfg.DataDir() != filepath.Join(base, "results") {
		t.Fatalf("data dir = %s", cfg.DataDir())
	}

	flagDir := filepath.Join(base, "flag")
	cfg, err = NewConfig(Options{Variant: "exc-ext-low", Path: path, BaseDir: base, DataDir: flagDir})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir() != flagDir {
		t.Fatalf("flag data dir should win, got %s", cfg.DataDir())
	}
}

func TestValidationRejectsBadOverrides(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"endowment": "economy:\n  endowment: 150\n",
		"posture":   "condition:\n  posture_rule: random\n",
		"injector":  "game:\n  injector: xdotool\n",
		"pattern":   "output:\n  detail_pattern: keys.csv\n",
		"template":  "copy:\n  decision_prompt: \"{{.Tokens}}\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			base := t.TempDir()
			path := filepath.Join(base, "lab.yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := NewConfig(Options{Variant: "exc-ext-high", Path: path, BaseDir: base}); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestEnvGamePathOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXPERIMENT_GAME_PATH", "/tmp/game")
	cfg, err := NewConfig(Options{Variant: "exc-ext-high", BaseDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Variant.Game.Path != "/tmp/game" {
		t.Fatalf("env game path not applied: %s", cfg.Variant.Game.Path)
	}
}

func TestRenderCopy(t *testing.T) {
	clearEnv(t)
	cfg, err := NewConfig(Options{Variant: "exc-ext-high", BaseDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	data := cfg.Variant.TextData("1601")
	if got := Render(cfg.Variant.Copy.DecisionError, data); got != "请输入 0-10 的整数" {
		t.Fatalf("decision error rendered %q", got)
	}
	if got := Render(cfg.Variant.Copy.Necessity, data); !strings.Contains(got, "【15个代币】") {
		t.Fatalf("threshold not rendered: %q", got)
	}
	if got := Render(cfg.Variant.Copy.ReadyText, data); !strings.Contains(got, "ID (1601) 和条件 (1)") {
		t.Fatalf("ready text not rendered: %q", got)
	}
	if got := Render("{{.Broken", data); got != "{{.Broken" {
		t.Fatalf("broken template should fall back to raw text, got %q", got)
	}
}

func TestInitDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	if err := InitDataDir(dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	if info, err := os.Stat(filepath.Join(dir, LogsDirName)); err != nil || !info.IsDir() {
		t.Fatalf("logs dir missing: %v", err)
	}
}
