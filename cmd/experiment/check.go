package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/ostracism-lab/internal/config"
	"github.com/kingrea/ostracism-lab/internal/external"
)

type checkStatus string

const (
	statusOK   checkStatus = "OK"
	statusWarn checkStatus = "WARN"
	statusFail checkStatus = "FAIL"
)

type checkResult struct {
	Name   string
	Status checkStatus
	Detail string
}

var errChecksFailed = errors.New("one or more checks failed")

func newCheckCmd(rt *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the game executable, injector and data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := false
			for _, r := range runChecks(rt.cfg) {
				fmt.Fprintf(cmd.OutOrStdout(), "[%-4s] %-10s %s\n", r.Status, r.Name, r.Detail)
				if r.Status == statusFail {
					failed = true
				}
			}
			if failed {
				return errChecksFailed
			}
			return nil
		},
	}
}

// runChecks never starts the game; it only inspects the machine.
func runChecks(cfg *config.Config) []checkResult {
	game := cfg.Variant.Game
	results := []checkResult{{
		Name:   "variant",
		Status: statusOK,
		Detail: cfg.Variant.ID,
	}}

	if err := external.CheckExecutable(game.Path); err != nil {
		results = append(results, checkResult{"executable", statusFail, err.Error()})
	} else {
		results = append(results, checkResult{"executable", statusOK, game.Path})
	}

	if game.Script != "" {
		script := filepath.Join(filepath.Dir(game.Path), game.Script)
		if info, err := os.Stat(script); err != nil || info.IsDir() {
			// The game starts without a script argument in that case.
			results = append(results, checkResult{"script", statusWarn, "not found: " + script})
		} else {
			results = append(results, checkResult{"script", statusOK, script})
		}
	}

	if err := external.CheckInjector(game.Injector); err != nil {
		results = append(results, checkResult{"injector", statusFail, err.Error()})
	} else {
		results = append(results, checkResult{"injector", statusOK, game.Injector})
	}

	if err := probeWritable(cfg.DataDir()); err != nil {
		results = append(results, checkResult{"data dir", statusFail, err.Error()})
	} else {
		results = append(results, checkResult{"data dir", statusOK, cfg.DataDir()})
	}
	return results
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
