package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watch/internal/config"
	"github.com/JakeFAU/gazette-watch/internal/logging"
	"github.com/JakeFAU/gazette-watch/internal/orchestrator"
	"github.com/JakeFAU/gazette-watch/internal/telemetry"
)

const serviceName = "gazette-watch"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// cli carries state shared by the subcommands of one invocation.
type cli struct {
	cfgFile  string
	cfg      config.Config
	logger   *zap.Logger
	stderr   io.Writer
	exitCode int
	cleanup  []func()
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string) int {
	c := &cli{stderr: os.Stderr}
	root := c.newRootCmd()
	root.SetArgs(args)
	root.SetErr(c.stderr)

	err := root.Execute()
	c.close()
	if err != nil {
		fmt.Fprintln(c.stderr, "error:", err)
		if c.exitCode == 0 {
			return orchestrator.ExitFailed
		}
	}
	return c.exitCode
}

func (c *cli) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gazettewatch",
		Short: "Watches the Brazilian federal gazette for tracked file numbers.",
		Long: `gazettewatch fetches today's edition of the Diário Oficial da União,
looks for the administrative file numbers listed in a spreadsheet, records
every run in an append-only ledger and notifies when a number shows up.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (YAML); environment variables use the GAZETTE_ prefix")

	cmd.AddCommand(
		c.newRunCmd(),
		c.newServeCmd(),
		c.newLockCmd(),
		c.newMigrateCmd(),
	)
	return cmd
}

func (c *cli) init(ctx context.Context) error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	c.cfg = cfg
	c.logger = logger

	tp, err := telemetry.InitTracerProvider(ctx, serviceName, version)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		c.onClose(func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		})
	}
	return nil
}

// onClose registers a cleanup to run after the subcommand, in reverse order.
func (c *cli) onClose(fn func()) {
	c.cleanup = append(c.cleanup, fn)
}

func (c *cli) close() {
	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i]()
	}
	c.cleanup = nil
	if c.logger != nil {
		_ = c.logger.Sync() // stderr cannot be synced on a terminal
	}
}
