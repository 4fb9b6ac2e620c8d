package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	manager "github.com/DataDog/reload-manager"
	"github.com/DataDog/reload-manager/internal/config"
	"github.com/DataDog/reload-manager/internal/logging"
	"github.com/DataDog/reload-manager/internal/printer"
)

type runFlags struct {
	config         string
	cacheDir       string
	pollInterval   time.Duration
	maxBackoff     time.Duration
	statRetry      uint
	loadRetry      uint
	loadRetryDelay time.Duration
	logLevel       string
	logFormat      string
}

func newRunCommand(newPrinter func(*cobra.Command) *printer.Printer) *cobra.Command {
	var flags runFlags
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "run [artifact]",
		Short: "Run a unit until its capsule exits, reloading it on every rebuild",
		Long: `Run a unit until its capsule exits, reloading it on every rebuild.

The exit status is the one of the capsule: 0 on success, its failure code
otherwise. A host that cannot load, bind or reconcile a generation exits
with 2 after printing the error, so a capsule failing with code 2 is only
told apart by the error output.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(cmd)
			cfg, err := flags.resolve(cmd, args)
			if err != nil {
				return &ExitCodeError{
					Code: manager.FatalExitCode,
					Err: p.Error("Invalid configuration", err.Error(), []string{
						"Pass the artifact as argument or set artifact in the file given to --config",
					}),
				}
			}
			return run(cmd.Context(), p, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.config, "config", "c", "", "YAML or TOML configuration file")
	f.StringVar(&flags.cacheDir, "cache-dir", defaults.CacheDir, "directory receiving a copy of each loaded generation")
	f.DurationVar(&flags.pollInterval, "poll-interval", defaults.PollInterval, "delay between two polls of the artifact")
	f.DurationVar(&flags.maxBackoff, "max-backoff", defaults.MaxBackoff, "upper bound of the delay between stat retries")
	f.UintVar(&flags.statRetry, "stat-retry", defaults.StatRetry, "retries of a failed stat within a poll")
	f.UintVar(&flags.loadRetry, "load-retry", defaults.LoadRetry, "retries of a failed artifact read")
	f.DurationVar(&flags.loadRetryDelay, "load-retry-delay", defaults.LoadRetryDelay, "initial delay between two artifact reads")
	f.StringVar(&flags.logLevel, "log-level", defaults.LogLevel, "log level (trace, debug, info, warn, error)")
	f.StringVar(&flags.logFormat, "log-format", defaults.LogFormat, "log format (text or json)")
	return cmd
}

// resolve merges the configuration file, the positional artifact and the flags set on the command line, in
// increasing order of precedence.
func (flags *runFlags) resolve(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.Default()
	if flags.config != "" {
		loaded, err := config.Load(flags.config)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if len(args) == 1 {
		cfg.Artifact = args[0]
	}

	changed := cmd.Flags().Changed
	if changed("cache-dir") {
		cfg.CacheDir = flags.cacheDir
	}
	if changed("poll-interval") {
		cfg.PollInterval = flags.pollInterval
	}
	if changed("max-backoff") {
		cfg.MaxBackoff = flags.maxBackoff
	}
	if changed("stat-retry") {
		cfg.StatRetry = flags.statRetry
	}
	if changed("load-retry") {
		cfg.LoadRetry = flags.loadRetry
	}
	if changed("load-retry-delay") {
		cfg.LoadRetryDelay = flags.loadRetryDelay
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, p *printer.Printer, cfg config.Config) error {
	logger, err := logging.ConfigureStandard(cfg.LogLevel, cfg.LogFormat, p.ErrOut())
	if err != nil {
		return &ExitCodeError{Code: manager.FatalExitCode, Err: p.Error("Invalid logging configuration", err.Error(), nil)}
	}

	options := cfg.ManagerOptions(logger.WithField("session", uuid.NewString()))
	options.OnReload = func(generation uint64) {
		p.Success("generation %d running\n", generation)
	}

	var m manager.Manager
	p.Step("loading %s\n", cfg.Artifact)
	if err = m.InitWithOptions(options); err != nil {
		return &ExitCodeError{
			Code: manager.FatalExitCode,
			Err:  p.Error("Unit failed to load", err.Error(), loadSuggestions(err)),
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := m.Run(ctx)
	if err != nil {
		return &ExitCodeError{
			Code: code,
			Err:  p.Error("Unit aborted", err.Error(), loadSuggestions(err)),
		}
	}
	if code != 0 {
		p.Warning("unit exited with code %d after %d reloads\n", code, m.Reloads())
		return &ExitCodeError{Code: code}
	}
	p.Success("unit exited after %d reloads\n", m.Reloads())
	return nil
}

func loadSuggestions(err error) []string {
	switch {
	case errors.Is(err, manager.ErrSymbolNotFound), errors.Is(err, manager.ErrSymbolAmbiguous):
		return []string{"Run reload-host inspect on the artifact to list its entry points"}
	case errors.Is(err, manager.ErrSignatureMismatch), errors.Is(err, manager.ErrABIVersionMismatch):
		return []string{"Rebuild the unit against the same version of the abi package as the host"}
	case errors.Is(err, os.ErrNotExist):
		return []string{"Build the unit with go build -buildmode=plugin"}
	default:
		return nil
	}
}
