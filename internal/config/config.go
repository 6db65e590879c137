// internal/config/config.go
//
// This package handles experiment configuration.
// A run is described by one Variant: the condition constants, the external
// game settings, the economy of the investment task and every piece of copy
// the participant sees. Three variants ship inside the binary (presets/),
// a lab can layer a YAML file on top, and machine-specific paths can come
// from the environment.

package config

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultVariant is used when no --variant flag is given.
	DefaultVariant = "exc-ext-high"

	// LogsDirName is created inside the data directory.
	LogsDirName = "logs"

	basePreset = "base"
)

// Posture rules understood by the condition package.
const (
	PostureRuleParity    = "parity"
	PostureRuleDefensive = "defensive"
	PostureRuleNeutral   = "neutral"
)

// Injector kinds understood by the external package.
const (
	InjectorTmux = "tmux"
	InjectorNone = "none"
)

// Missing-executable acknowledgement styles.
const (
	PromptTerminal = "terminal"
	PromptScreen   = "screen"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// ConditionConfig describes how the condition label is derived.
type ConditionConfig struct {
	TaskCondition string `yaml:"task_condition"`
	PostureRule   string `yaml:"posture_rule"`
	Necessity     string `yaml:"necessity,omitempty"`
	LabelFormat   string `yaml:"label_format"`
}

// GameConfig points at the external ball-tossing game.
type GameConfig struct {
	Path          string        `yaml:"path"`
	Script        string        `yaml:"script"`
	StartupGrace  time.Duration `yaml:"startup_grace"`
	FieldDelay    time.Duration `yaml:"field_delay"`
	Injector      string        `yaml:"injector"`
	MissingPrompt string        `yaml:"missing_prompt"`
	ConfirmLaunch bool          `yaml:"confirm_launch"`
	NoticeDelay   time.Duration `yaml:"notice_delay,omitempty"`
}

// EconomyConfig holds the public-goods-game constants.
type EconomyConfig struct {
	Endowment  int `yaml:"endowment"`
	Multiplier int `yaml:"multiplier"`
	Threshold  int `yaml:"threshold,omitempty"`
}

// OutputConfig controls where the CSV files go.
type OutputConfig struct {
	Dir                 string `yaml:"dir"`
	SummaryFile         string `yaml:"summary_file"`
	DetailPattern       string `yaml:"detail_pattern"`
	DetailSubjectColumn bool   `yaml:"detail_subject_column"`
}

// Copy is every participant-facing text. Fields may be text/template strings
// rendered with TextData.
type Copy struct {
	IDPrompt string `yaml:"id_prompt"`
	IDHint   string `yaml:"id_hint"`
	IDError  string `yaml:"id_error"`

	PostureTitle string            `yaml:"posture_title"`
	PostureHint  string            `yaml:"posture_hint"`
	Posture      map[string]string `yaml:"posture"`

	GameInstruction string `yaml:"game_instruction"`
	GameHint        string `yaml:"game_hint"`

	MatchingTitle string   `yaml:"matching_title"`
	Matching      []string `yaml:"matching"`

	ReadyText string `yaml:"ready_text"`
	ReadyHint string `yaml:"ready_hint"`

	LaunchNotice        string `yaml:"launch_notice"`
	LaunchNoticeHint    string `yaml:"launch_notice_hint"`
	MissingGame         string `yaml:"missing_game"`
	MissingGameTerminal string `yaml:"missing_game_terminal"`
	MissingGameAck      string `yaml:"missing_game_ack"`

	LoadingTitle string   `yaml:"loading_title"`
	LoadingSteps []string `yaml:"loading_steps"`

	Feedback     string `yaml:"feedback"`
	FeedbackHint string `yaml:"feedback_hint"`

	CallTitle string `yaml:"call_title"`
	CallText  string `yaml:"call_text"`

	PGGInstruction string `yaml:"pgg_instruction"`
	PGGHint        string `yaml:"pgg_hint"`
	PGGNote        string `yaml:"pgg_note"`

	NecessityTitle string `yaml:"necessity_title,omitempty"`
	Necessity      string `yaml:"necessity,omitempty"`
	NecessityHint  string `yaml:"necessity_hint"`
	NecessityNote  string `yaml:"necessity_note,omitempty"`

	DecisionPrompt string `yaml:"decision_prompt"`
	DecisionError  string `yaml:"decision_error"`

	End string `yaml:"end"`
}

// Variant is one complete experiment configuration.
type Variant struct {
	ID            string          `yaml:"id"`
	Title         string          `yaml:"title"`
	FeedbackTitle string          `yaml:"feedback_title"`
	Condition     ConditionConfig `yaml:"condition"`
	Game          GameConfig      `yaml:"game"`
	Economy       EconomyConfig   `yaml:"economy"`
	Output        OutputConfig    `yaml:"output"`
	Copy          Copy            `yaml:"copy"`
}

// TextData is what copy templates can reference.
type TextData struct {
	Endowment  int
	Multiplier int
	Threshold  int
	SubjectID  string
	Condition  string
	GamePath   string
}

// envOverrides are read after the preset and lab file.
type envOverrides struct {
	GamePath   string `env:"EXPERIMENT_GAME_PATH"`
	GameScript string `env:"EXPERIMENT_GAME_SCRIPT"`
	DataDir    string `env:"EXPERIMENT_DATA_DIR"`
	Injector   string `env:"EXPERIMENT_INJECTOR"`
}

// Options selects and overrides a variant.
type Options struct {
	// Variant is a preset id; DefaultVariant when empty.
	Variant string
	// Path is an optional lab YAML file layered over the preset.
	Path string
	// DataDir overrides output.dir; applied after the environment.
	DataDir string
	// BaseDir resolves relative output directories; the working directory when empty.
	BaseDir string
}

// Config holds the runtime configuration for a run.
type Config struct {
	VariantID  string
	ConfigPath string
	BaseDir    string
	Variant    Variant
}

// Variants returns the ids of the built-in presets.
func Variants() []string {
	entries, err := fs.ReadDir(presetFS, "presets")
	if err != nil {
		return nil
	}
	var ids []string
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))
		if name == basePreset {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids
}

// NewConfig loads a preset, layers the lab file and environment on top, then
// normalizes and validates the result.
func NewConfig(opts Options) (*Config, error) {
	id := strings.ToLower(strings.TrimSpace(opts.Variant))
	if id == "" {
		id = DefaultVariant
	}
	base := opts.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: working directory: %w", err)
		}
		base = wd
	}

	variant, err := loadPreset(id)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		VariantID:  id,
		ConfigPath: strings.TrimSpace(opts.Path),
		BaseDir:    base,
		Variant:    variant,
	}
	if err := cfg.loadOverrideFile(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if dir := strings.TrimSpace(opts.DataDir); dir != "" {
		cfg.Variant.Output.Dir = dir
	}
	cfg.Variant.normalize(base)
	if err := cfg.Variant.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", id, err)
	}
	return cfg, nil
}

// InitDataDir creates the data directory and its logs folder.
func InitDataDir(dir string) error {
	for _, d := range []string{dir, filepath.Join(dir, LogsDirName)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("config: ensure %s: %w", d, err)
		}
	}
	return nil
}

// DataDir returns the directory that receives the CSV files.
func (c *Config) DataDir() string {
	return c.Variant.Output.Dir
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir(), LogsDirName)
}

// LogPath is the zap diagnostics file.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "experiment.log")
}

// JournalPath is the human-readable run journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "journal.log")
}

// SummaryPath returns the shared summary CSV.
func (c *Config) SummaryPath() string {
	return filepath.Join(c.DataDir(), c.Variant.Output.SummaryFile)
}

// DetailPath returns the per-subject keystroke CSV.
func (c *Config) DetailPath(subjectID string) string {
	name := strings.ReplaceAll(c.Variant.Output.DetailPattern, "{id}", filepath.Base(subjectID))
	return filepath.Join(c.DataDir(), name)
}

// TextData returns the template data for a subject.
func (v Variant) TextData(subjectID string) TextData {
	return TextData{
		Endowment:  v.Economy.Endowment,
		Multiplier: v.Economy.Multiplier,
		Threshold:  v.Economy.Threshold,
		SubjectID:  subjectID,
		Condition:  v.Condition.TaskCondition,
		GamePath:   v.Game.Path,
	}
}

// HasNecessity reports whether the necessity manipulation scene is part of the flow.
func (v Variant) HasNecessity() bool {
	return strings.TrimSpace(v.Copy.Necessity) != ""
}

// Render executes a copy template. Templates are checked during validation,
// so a failure here falls back to the raw text.
func Render(text string, data TextData) string {
	out, err := renderTemplate(text, data)
	if err != nil {
		return text
	}
	return out
}

func renderTemplate(text string, data TextData) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("copy").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func loadPreset(id string) (Variant, error) {
	var v Variant
	data, err := presetFS.ReadFile(path.Join("presets", basePreset+".yaml"))
	if err != nil {
		return v, fmt.Errorf("config: read base preset: %w", err)
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("config: parse base preset: %w", err)
	}
	data, err = presetFS.ReadFile(path.Join("presets", id+".yaml"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return v, fmt.Errorf("config: unknown variant %q (available: %s)", id, strings.Join(Variants(), ", "))
		}
		return v, fmt.Errorf("config: read preset %s: %w", id, err)
	}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("config: parse preset %s: %w", id, err)
	}
	return v, nil
}

func (c *Config) loadOverrideFile() error {
	if c.ConfigPath == "" {
		return nil
	}
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", c.ConfigPath, err)
	}
	id := c.Variant.ID
	if err := yaml.Unmarshal(data, &c.Variant); err != nil {
		return fmt.Errorf("config: parse %s: %w", c.ConfigPath, err)
	}
	// A lab file tunes a preset; it cannot rename it.
	c.Variant.ID = id
	return nil
}

func (c *Config) applyEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}
	if overrides.GamePath != "" {
		c.Variant.Game.Path = overrides.GamePath
	}
	if overrides.GameScript != "" {
		c.Variant.Game.Script = overrides.GameScript
	}
	if overrides.DataDir != "" {
		c.Variant.Output.Dir = overrides.DataDir
	}
	if overrides.Injector != "" {
		c.Variant.Game.Injector = overrides.Injector
	}
	return nil
}

func (v *Variant) normalize(base string) {
	v.ID = strings.TrimSpace(v.ID)
	v.Condition.TaskCondition = strings.TrimSpace(v.Condition.TaskCondition)
	v.Condition.PostureRule = normalizeWord(v.Condition.PostureRule)
	v.Condition.Necessity = normalizeWord(v.Condition.Necessity)
	v.Game.Path = strings.TrimSpace(v.Game.Path)
	v.Game.Script = strings.TrimSpace(v.Game.Script)
	v.Game.Injector = normalizeWord(v.Game.Injector)
	v.Game.MissingPrompt = normalizeWord(v.Game.MissingPrompt)
	if v.Game.Injector == "" {
		v.Game.Injector = InjectorTmux
	}
	if v.Game.MissingPrompt == "" {
		v.Game.MissingPrompt = PromptTerminal
	}
	v.Output.Dir = resolvePath(base, v.Output.Dir)
	if v.Output.Dir == "" {
		v.Output.Dir = filepath.Clean(base)
	}
	v.Output.SummaryFile = strings.TrimSpace(v.Output.SummaryFile)
	v.Output.DetailPattern = strings.TrimSpace(v.Output.DetailPattern)
	if v.FeedbackTitle == "" {
		v.FeedbackTitle = v.Title
	}
}

func (v Variant) validate() error {
	if v.ID == "" {
		return fmt.Errorf("id is required")
	}
	if v.Condition.TaskCondition == "" {
		return fmt.Errorf("condition.task_condition is required")
	}
	switch v.Condition.PostureRule {
	case PostureRuleParity, PostureRuleDefensive, PostureRuleNeutral:
	default:
		return fmt.Errorf("condition.posture_rule must be 'parity', 'defensive' or 'neutral'")
	}
	switch v.Condition.Necessity {
	case "", "low", "high":
	default:
		return fmt.Errorf("condition.necessity must be empty, 'low' or 'high'")
	}
	if strings.TrimSpace(v.Condition.LabelFormat) == "" {
		return fmt.Errorf("condition.label_format is required")
	}
	if v.Game.Path == "" {
		return fmt.Errorf("game.path is required")
	}
	switch v.Game.Injector {
	case InjectorTmux, InjectorNone:
	default:
		return fmt.Errorf("game.injector must be 'tmux' or 'none'")
	}
	switch v.Game.MissingPrompt {
	case PromptTerminal, PromptScreen:
	default:
		return fmt.Errorf("game.missing_prompt must be 'terminal' or 'screen'")
	}
	if v.Game.StartupGrace < 0 || v.Game.FieldDelay < 0 || v.Game.NoticeDelay < 0 {
		return fmt.Errorf("game delays must not be negative")
	}
	// The decision buffer holds at most two digits.
	if v.Economy.Endowment < 1 || v.Economy.Endowment > 99 {
		return fmt.Errorf("economy.endowment must be between 1 and 99")
	}
	if v.Economy.Multiplier < 1 {
		return fmt.Errorf("economy.multiplier must be >= 1")
	}
	if v.Economy.Threshold < 0 {
		return fmt.Errorf("economy.threshold must be >= 0")
	}
	if v.Output.SummaryFile == "" {
		return fmt.Errorf("output.summary_file is required")
	}
	if !strings.Contains(v.Output.DetailPattern, "{id}") {
		return fmt.Errorf("output.detail_pattern must contain {id}")
	}
	for _, posture := range []string{PostureRuleDefensive, PostureRuleNeutral} {
		if strings.TrimSpace(v.Copy.Posture[posture]) == "" {
			return fmt.Errorf("copy.posture.%s is required", posture)
		}
	}
	if strings.TrimSpace(v.Copy.Feedback) == "" {
		return fmt.Errorf("copy.feedback is required")
	}
	return v.Copy.checkTemplates(v.TextData("0"))
}

func (c Copy) checkTemplates(data TextData) error {
	fields := map[string]string{
		"ready_text":            c.ReadyText,
		"launch_notice":         c.LaunchNotice,
		"missing_game":          c.MissingGame,
		"missing_game_terminal": c.MissingGameTerminal,
		"pgg_instruction":       c.PGGInstruction,
		"necessity":             c.Necessity,
		"decision_prompt":       c.DecisionPrompt,
		"decision_error":        c.DecisionError,
		"feedback":              c.Feedback,
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := renderTemplate(fields[name], data); err != nil {
			return fmt.Errorf("copy.%s: %w", name, err)
		}
	}
	return nil
}

func normalizeWord(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
