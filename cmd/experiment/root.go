package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/ostracism-lab/internal/config"
	"github.com/kingrea/ostracism-lab/internal/external"
	"github.com/kingrea/ostracism-lab/internal/logbook"
	"github.com/kingrea/ostracism-lab/internal/logging"
	"github.com/kingrea/ostracism-lab/internal/tui"
)

// cli carries what PersistentPreRunE prepared for a command.
type cli struct {
	stdin   io.Reader
	opts    config.Options
	verbose bool

	cfg     *config.Config
	logger  *logging.Logger
	journal *logbook.Logbook
}

var (
	// errFatalDependency has already been shown to the operator.
	errFatalDependency = errors.New("missing runtime dependency")
	// errSessionCrashed means the TUI recovered a panic and printed its stack.
	errSessionCrashed = errors.New("session crashed")
)

// startProgram runs the full-screen session. bubbletea recovers panics in the
// model and in commands itself, so a crash shows up as a nil model or as
// tea.ErrProgramKilled instead of reaching the recover in run.
var startProgram = func(m tea.Model) (tea.Model, error) {
	p := tea.NewProgram(m,
		tea.WithAltScreen(), // Use alternate screen buffer (like vim does)
		tea.WithFPS(30),
	)
	return p.Run()
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	rt := &cli{stdin: stdin}

	root := &cobra.Command{
		Use:   "experiment",
		Short: "Run one session of the exclusion / public goods experiment",
		Long: `Runs a participant through identity entry, the posture instruction, the
external ball-tossing game, the feedback report and the investment decision,
then appends the result to the shared data file.

Run without a subcommand to start a session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "variants" {
				return nil
			}
			return rt.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			rt.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runSession(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.opts.Variant, "variant", config.DefaultVariant, "experiment variant (see `experiment variants`)")
	flags.StringVar(&rt.opts.Path, "config", "", "lab YAML file layered over the variant")
	flags.StringVar(&rt.opts.DataDir, "data-dir", "", "directory for CSV files and logs (default: output.dir of the variant)")
	flags.BoolVarP(&rt.verbose, "verbose", "v", false, "debug-level diagnostics in logs/experiment.log")

	root.AddCommand(newVariantsCmd())
	root.AddCommand(newCheckCmd(rt))
	root.AddCommand(newJournalCmd(rt))
	return root
}

func (rt *cli) setup() error {
	cfg, err := config.NewConfig(rt.opts)
	if err != nil {
		return err
	}
	if err := config.InitDataDir(cfg.DataDir()); err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogsDir(), rt.verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		_ = logger.Close()
		return err
	}
	rt.cfg = cfg
	rt.logger = logger
	rt.journal = journal
	return nil
}

func (rt *cli) close() {
	if rt.logger != nil {
		_ = rt.logger.Close()
	}
}

func (rt *cli) runSession(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	game := rt.cfg.Variant.Game
	if err := external.CheckInjector(game.Injector); err != nil {
		rt.logger.Error("dependency check failed", zap.Error(err))
		fmt.Fprintf(cmd.ErrOrStderr(), "【严重错误】%v\n", err)
		fmt.Fprintln(cmd.ErrOrStderr(), "Start the experiment inside tmux, or set EXPERIMENT_INJECTOR=none and type the login by hand.")
		waitForEnter(rt.stdin, cmd.ErrOrStderr(), "按回车键退出... (press Enter to exit)")
		return errFatalDependency
	}
	if err := external.CheckExecutable(game.Path); err != nil {
		// Not fatal: the session shows the missing-game prompt when it gets there.
		rt.logger.Warn("game executable missing", zap.String("path", game.Path))
	}

	app, err := tui.NewApp(rt.cfg,
		tui.WithLogger(rt.logger.Logger),
		tui.WithLogbook(rt.journal),
	)
	if err != nil {
		return err
	}
	final, err := startProgram(app)
	if final == nil || errors.Is(err, tea.ErrProgramKilled) {
		rt.logger.Error("session crashed", zap.String("run_id", app.Session().RunID), zap.Error(err))
		rt.journal.Error("Session crashed during %s · %d unsaved records",
			app.Session().Scene(), len(app.Session().Records()))
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%s\n【程序崩溃】 the session crashed; see the trace above and %s\n",
			strings.Repeat("=", 40), rt.cfg.LogPath())
		waitForEnter(rt.stdin, cmd.ErrOrStderr(), "按回车键关闭窗口... (press Enter to close)")
		return errSessionCrashed
	}
	if err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}

	if app.Aborted() {
		fmt.Fprintln(out, "Session aborted; no data was saved.")
		return nil
	}
	if report, ok := app.Report(); ok {
		if report.SummaryErr != nil {
			fmt.Fprintf(out, "保存结果失败: %v\n", report.SummaryErr)
		} else {
			fmt.Fprintf(out, ">>> 汇总数据已保存: %s\n", report.SummaryPath)
		}
		if report.DetailErr != nil {
			fmt.Fprintf(out, "保存日志失败: %v\n", report.DetailErr)
		} else {
			fmt.Fprintf(out, ">>> 按键日志已保存: %s\n", report.DetailPath)
		}
	}
	return nil
}
