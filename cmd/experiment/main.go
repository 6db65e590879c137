// cmd/experiment/main.go
//
// This is the entry point for the experiment runner.
// The lab machine runs `experiment --variant <id>` once per participant.
//
// Flow:
// 1. Load the variant (built-in preset, lab file, environment, flags)
// 2. Check the keystroke injector; without it the game login cannot be typed
// 3. Run the full-screen session
// 4. Report where the data went

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is the crash boundary: a panic anywhere outside the TUI is printed with
// its stack and the window stays open until the operator presses return.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			rule := strings.Repeat("=", 40)
			fmt.Fprintf(stderr, "\n%s\n【程序崩溃】 crashed: %v\n\n%s%s\n", rule, r, debug.Stack(), rule)
			waitForEnter(stdin, stderr, "按回车键关闭窗口... (press Enter to close)")
			code = 2
		}
	}()

	root := newRootCmd(stdin)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errSessionCrashed) {
			return 2
		}
		return 1
	}
	return 0
}

func waitForEnter(in io.Reader, out io.Writer, prompt string) {
	fmt.Fprintln(out, prompt)
	_, _ = bufio.NewReader(in).ReadString('\n')
}
