package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
	"github.com/JakeFAU/gazette-watch/internal/metrics"
	"github.com/JakeFAU/gazette-watch/internal/orchestrator"
)

const pushTimeout = 10 * time.Second

func (c *cli) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scans today's gazette once",
		Long: `Runs one scan of today's gazette. Exit status: 0 when nothing matched,
1 when matches were found, 2 when the run failed and 3 when a run already
happened today.`,
		Args: cobra.NoArgs,
		RunE: c.runScan,
	}
}

func (c *cli) runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	b, err := c.buildBackends(ctx)
	if err != nil {
		return err
	}
	if err := b.ensureSchema(ctx); err != nil {
		return err
	}
	guard, err := c.guard(b)
	if err != nil {
		return err
	}
	clock, err := c.clock()
	if err != nil {
		return err
	}
	archive, err := c.buildArchive(ctx)
	if err != nil {
		return err
	}
	notifier, err := c.buildNotifier(ctx)
	if err != nil {
		return err
	}
	sections, err := c.cfg.Crawl.SectionList()
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Sections: sections,
		Parallel: c.cfg.Crawl.Parallel,
	}, orchestrator.Dependencies{
		Guard:     guard,
		Watchlist: c.buildWatchlist(),
		Source:    c.buildSource(archive),
		Notifier:  notifier,
		Ledger:    b.ledger,
		Clock:     clock,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}

	outcome := orch.Run(ctx)
	c.exitCode = reportOutcome(outcome, c.stderr)
	c.pushMetrics(ctx)

	c.logger.Info("run finished",
		zap.String("outcome", outcome.Kind.String()),
		zap.Int("exit_code", c.exitCode),
		zap.String("run_id", outcome.RunID),
	)
	return nil
}

// reportOutcome writes ledger failures to w, where cron mails pick them up,
// and returns the process exit code.
func reportOutcome(outcome orchestrator.Outcome, w io.Writer) int {
	var pe *gazette.PersistenceError
	if errors.As(outcome.Err, &pe) {
		fmt.Fprintf(w, "ledger write failed: %v\n", outcome.Err)
	}
	return outcome.ExitCode()
}

// pushMetrics hands the run's counters to the Pushgateway when one is
// configured. Failures are logged and never change the exit code.
func (c *cli) pushMetrics(ctx context.Context) {
	mc := c.cfg.Metrics
	if mc.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	err := metrics.Push(ctx, metrics.PushConfig{
		URL:      mc.PushgatewayURL,
		Job:      mc.Job,
		Instance: mc.Instance,
	}, prometheus.DefaultGatherer)
	if err != nil {
		c.logger.Warn("metrics push failed", zap.Error(err))
		return
	}
	c.logger.Debug("metrics pushed", zap.String("url", mc.PushgatewayURL))
}
