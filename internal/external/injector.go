package external

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/kingrea/ostracism-lab/internal/config"
)

// KeyTab moves focus between the game's login fields.
const KeyTab = "Tab"

// ErrInjectorUnavailable reports a keystroke injector that cannot work in the
// current environment.
var ErrInjectorUnavailable = errors.New("external: keystroke injector unavailable")

// Injector types text and presses keys into whatever currently has input
// focus. Delivery is blind: nothing confirms the target received the keys.
type Injector interface {
	Name() string
	Type(text string) error
	Press(key string) error
}

// CommandRunner executes a helper binary and returns its combined output.
type CommandRunner func(name string, args ...string) ([]byte, error)

func defaultCommandRunner(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

var lookPath = exec.LookPath

// TmuxInjector sends keys into a tmux pane. The external task inherits the
// experiment's pane, so the keys land in the game's input.
type TmuxInjector struct {
	Target string
	run    CommandRunner
}

// NewTmuxInjector targets the given pane. An empty target means the pane in
// $TMUX_PANE. A nil runner shells out to tmux.
func NewTmuxInjector(target string, run CommandRunner) *TmuxInjector {
	if strings.TrimSpace(target) == "" {
		target = os.Getenv("TMUX_PANE")
	}
	if run == nil {
		run = defaultCommandRunner
	}
	return &TmuxInjector{Target: target, run: run}
}

func (t *TmuxInjector) Name() string { return config.InjectorTmux }

// Type sends text literally so ids like "Tab" are not read as key names.
func (t *TmuxInjector) Type(text string) error {
	return t.send("-l", text)
}

func (t *TmuxInjector) Press(key string) error {
	return t.send(key)
}

func (t *TmuxInjector) send(keys ...string) error {
	args := []string{"send-keys"}
	if t.Target != "" {
		args = append(args, "-t", t.Target)
	}
	args = append(args, keys...)
	out, err := t.run("tmux", args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("external: tmux send-keys: %w: %s", err, msg)
		}
		return fmt.Errorf("external: tmux send-keys: %w", err)
	}
	return nil
}

// NoneInjector drops every keystroke. The operator types the login by hand.
type NoneInjector struct{}

func (NoneInjector) Name() string       { return config.InjectorNone }
func (NoneInjector) Type(string) error  { return nil }
func (NoneInjector) Press(string) error { return nil }

// NewInjector builds the injector for a configured kind.
func NewInjector(kind string) (Injector, error) {
	switch kind {
	case config.InjectorTmux:
		return NewTmuxInjector("", nil), nil
	case config.InjectorNone:
		return NoneInjector{}, nil
	default:
		return nil, fmt.Errorf("external: unknown injector %q", kind)
	}
}

// CheckInjector verifies the injector can deliver keys from this process.
func CheckInjector(kind string) error {
	switch kind {
	case config.InjectorNone:
		return nil
	case config.InjectorTmux:
		if _, err := lookPath("tmux"); err != nil {
			return fmt.Errorf("%w: tmux not found on PATH", ErrInjectorUnavailable)
		}
		if os.Getenv("TMUX") == "" {
			return fmt.Errorf("%w: not running inside a tmux session", ErrInjectorUnavailable)
		}
		return nil
	default:
		return fmt.Errorf("external: unknown injector %q", kind)
	}
}

// CheckExecutable reports whether the game executable exists.
func CheckExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrExecutableMissing, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrExecutableMissing, path)
	}
	return nil
}
