// Package external launches the ball-tossing game and logs the participant in
// with injected keystrokes.
//
// Task satisfies tea.ExecCommand: the program releases the terminal before
// Run and takes it back once the game process exits. There is no protocol
// with the game. The login is typed blind after a fixed startup grace.
package external

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrExecutableMissing is returned when the game binary is not on disk.
var ErrExecutableMissing = errors.New("external: game executable missing")

// Sleeper blocks for a duration. Tests swap in a recorder.
type Sleeper func(time.Duration)

// Request carries the login the game expects.
type Request struct {
	SubjectID string
	Condition string
}

// Task is one launch of the external game.
type Task struct {
	Path       string
	Script     string
	Grace      time.Duration
	FieldDelay time.Duration
	Request    Request

	Injector Injector
	Sleep    Sleeper
	Logger   *zap.Logger

	// TerminalPrompt, when set, is printed before returning
	// ErrExecutableMissing and one line of operator input is awaited.
	TerminalPrompt string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (t *Task) SetStdin(r io.Reader)  { t.stdin = r }
func (t *Task) SetStdout(w io.Writer) { t.stdout = w }
func (t *Task) SetStderr(w io.Writer) { t.stderr = w }

// Args returns the arguments the game is started with: the script path when
// the script file exists next to the executable, otherwise nothing.
func (t *Task) Args() []string {
	if t.Script == "" {
		return nil
	}
	script := filepath.Join(filepath.Dir(t.Path), t.Script)
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return nil
	}
	return []string{script}
}

// Run starts the game, types the login and blocks until the game exits.
func (t *Task) Run() error {
	logger := t.logger()
	if err := CheckExecutable(t.Path); err != nil {
		if t.TerminalPrompt != "" {
			t.waitForOperator()
		}
		return err
	}

	args := t.Args()
	if t.Script != "" && len(args) == 0 {
		logger.Warn("script not found, launching without it", zap.String("script", t.Script))
	}
	cmd := exec.Command(t.Path, args...)
	cmd.Dir = filepath.Dir(t.Path)
	cmd.Stdin = t.stdin
	cmd.Stdout = t.stdout
	cmd.Stderr = t.stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("external: start %s: %w", t.Path, err)
	}
	logger.Info("game started", zap.String("path", t.Path), zap.Strings("args", args), zap.Int("pid", cmd.Process.Pid))

	if err := t.login(); err != nil {
		logger.Warn("keystroke injection failed", zap.Error(err))
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("external: wait for game: %w", err)
	}
	logger.Info("game exited")
	return nil
}

func (t *Task) login() error {
	injector := t.Injector
	if injector == nil {
		injector = NoneInjector{}
	}
	t.sleep(t.Grace)
	if err := injector.Type(t.Request.SubjectID); err != nil {
		return fmt.Errorf("type subject id: %w", err)
	}
	if err := injector.Press(KeyTab); err != nil {
		return fmt.Errorf("press tab: %w", err)
	}
	t.sleep(t.FieldDelay)
	if err := injector.Type(t.Request.Condition); err != nil {
		return fmt.Errorf("type condition: %w", err)
	}
	return nil
}

func (t *Task) waitForOperator() {
	out := t.stdout
	if out == nil {
		out = os.Stdout
	}
	in := t.stdin
	if in == nil {
		in = os.Stdin
	}
	fmt.Fprintln(out, t.TerminalPrompt)
	_, _ = bufio.NewReader(in).ReadString('\n')
}

func (t *Task) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if t.Sleep != nil {
		t.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (t *Task) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}
