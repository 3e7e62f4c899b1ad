package cli

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/specialistvlad/cellgrid/internal/app"
	"github.com/specialistvlad/cellgrid/internal/config"
	"github.com/specialistvlad/cellgrid/internal/report"
	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// options holds the raw flag values shared by every command.
type options struct {
	configPath string
	logLevel   string
	logFormat  string
	allow      []string
	ignore     []string

	output          string
	timeout         time.Duration
	keepGoing       bool
	watch           bool
	publishURL      string
	healthcheckPort int
	trace           string

	cell string
}

// Execute runs the command line in args. Reports go to outW, logs to errW.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	cmd := NewRootCommand(outW, errW)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewRootCommand builds the cellgrid command tree.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	opts := &options{}
	defaults := config.Default()

	root := &cobra.Command{
		Use:   "cellgrid",
		Short: "Evaluate reactive notebooks declared in HCL",
		Long: `cellgrid loads notebooks of named cells, links every cell to the cells
it reads (across notebooks through imports) and evaluates them in dependency
order, re-running only what a change affects.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to a TOML configuration file.")
	pf.StringVar(&opts.logLevel, "log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&opts.logFormat, "log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	pf.StringSliceVar(&opts.allow, "allow", nil, "Extra names cells may read without defining them.")
	pf.StringArrayVar(&opts.ignore, "ignore", nil, "Drop cells whose name or module:name matches this glob. Repeatable.")

	root.AddCommand(newRunCommand(opts, outW, errW), newPlanCommand(opts, outW, errW))
	return root
}

func newRunCommand(opts *options, outW, errW io.Writer) *cobra.Command {
	defaults := config.Default()
	cmd := &cobra.Command{
		Use:   "run [PATH]",
		Short: "Evaluate every cell and print a report",
		Args:  pathArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			err = app.NewApp(outW, errW, cfg).Run(cmd.Context())
			if errors.Is(err, app.ErrCellsFailed) {
				return &ExitError{Code: 1, Message: err.Error()}
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", defaults.Output, "Report format. Options: 'text', 'json', 'yaml'.")
	f.DurationVar(&opts.timeout, "timeout", defaults.Timeout, "How long to wait for cells to settle. 0 waits forever.")
	f.BoolVar(&opts.keepGoing, "keep-going", false, "Exit successfully even when cells fail.")
	f.BoolVarP(&opts.watch, "watch", "w", false, "Re-run whenever a notebook file changes.")
	f.StringVar(&opts.publishURL, "publish-url", "", "socket.io server to stream cell transitions to.")
	f.IntVar(&opts.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	f.StringVar(&opts.trace, "trace", defaults.Tracing.Exporter, "Span exporter. Options: 'none', 'stdout', 'otlp'.")
	return cmd
}

func newPlanCommand(opts *options, outW, errW io.Writer) *cobra.Command {
	defaults := config.Default()
	cmd := &cobra.Command{
		Use:   "plan [PATH]",
		Short: "Print the evaluation order without running anything",
		Args:  pathArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			plan, err := app.NewApp(outW, errW, cfg).Plan(cmd.Context(), opts.cell)
			if err != nil {
				return err
			}
			return report.WritePlan(outW, report.Format(cfg.Output), plan)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.cell, "cell", "", "Only list the cells this cell (module:name or module#index) depends on.")
	f.StringVarP(&opts.output, "output", "o", defaults.Output, "Plan format. Options: 'text', 'json', 'yaml'.")
	return cmd
}

func pathArg(cmd *cobra.Command, args []string) error {
	if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
		return usageError(err)
	}
	return nil
}

// resolveConfig layers defaults, the config file and explicitly set flags,
// then validates the result.
func resolveConfig(cmd *cobra.Command, opts *options, args []string) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, usageError(err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	if flags.Changed("output") {
		cfg.Output = opts.output
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if flags.Changed("keep-going") {
		cfg.KeepGoing = opts.keepGoing
	}
	if flags.Changed("watch") {
		cfg.Watch = opts.watch
	}
	if flags.Changed("publish-url") {
		cfg.Publish.URL = opts.publishURL
	}
	if flags.Changed("healthcheck-port") {
		cfg.HealthcheckPort = opts.healthcheckPort
	}
	if flags.Changed("trace") {
		cfg.Tracing.Exporter = opts.trace
	}
	cfg.Roots = append(cfg.Roots, opts.allow...)
	cfg.Ignore = append(cfg.Ignore, opts.ignore...)
	if len(args) == 1 {
		cfg.Paths = []string{args[0]}
	}

	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}
	return &cfg, nil
}
