// Package cmd provides the CLI commands for amanuensis.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanuensis/internal/config"
	"github.com/Aman-CERP/amanuensis/internal/daemon"
	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
	"github.com/Aman-CERP/amanuensis/internal/index"
	"github.com/Aman-CERP/amanuensis/internal/logging"
	"github.com/Aman-CERP/amanuensis/pkg/indexer"
	"github.com/Aman-CERP/amanuensis/pkg/version"
)

// globals holds the persistent flags and what PersistentPreRunE derives
// from them.
type globals struct {
	debug     bool
	dir       string
	indexName string
	local     bool

	cfg            *config.Config
	loggingCleanup func()
}

// backend is where writes go: the in-process coordinator or the daemon.
type backend interface {
	indexer.Dispatcher
	Stats(ctx context.Context, name string) (*index.IndexStats, error)
}

// NewRootCmd creates the root command for the amanuensis CLI.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "amanuensis",
		Short: "Batching index writer with an authoritative indexing daemon",
		Long: `amanuensis writes documents to full-text indexes.

Writes go through an index writer that either sends each operation on its
own or collects them into a batch that is applied as one unit. Batches are
applied by the single authoritative owner of the index: the daemon, or this
process when dispatch.mode is "local".`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("amanuensis version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to ~/.amanuensis/logs/")
	cmd.PersistentFlags().StringVar(&g.dir, "dir", ".", "Directory to load .amanuensis.yaml from")
	cmd.PersistentFlags().StringVarP(&g.indexName, "index", "i", "", "Target index (default: index.name from config)")
	cmd.PersistentFlags().BoolVar(&g.local, "local", false, "Apply batches in this process instead of the daemon")

	cmd.PersistentPreRunE = g.setup
	cmd.PersistentPostRunE = g.teardown

	cmd.AddCommand(newAddCmd(g))
	cmd.AddCommand(newDeleteCmd(g))
	cmd.AddCommand(newBatchCmd(g))
	cmd.AddCommand(newStatsCmd(g))
	cmd.AddCommand(newDaemonCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and starts debug logging if requested.
func (g *globals) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(g.dir)
	if err != nil {
		return err
	}
	if g.indexName != "" {
		cfg.Index.Name = g.indexName
	}
	if g.local {
		cfg.Dispatch.Mode = config.DispatchLocal
	}
	g.cfg = cfg

	if g.debug {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		g.loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Short()))
	}
	return nil
}

// teardown stops debug logging.
func (g *globals) teardown(_ *cobra.Command, _ []string) error {
	if g.loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
	return nil
}

// openBackend returns the configured backend and a function releasing it.
func (g *globals) openBackend() (backend, func(), error) {
	if g.cfg.Dispatch.Mode == config.DispatchLocal {
		coord, err := index.NewCoordinator(index.CoordinatorConfig{
			DataDir:    g.cfg.Index.DataDir,
			MaxIndexes: g.cfg.Daemon.MaxIndexes,
			Logger:     slog.Default(),
		})
		if err != nil {
			return nil, nil, err
		}
		return coord, func() {
			if err := coord.Close(); err != nil {
				slog.Warn("coordinator_close_failed", slog.String("error", err.Error()))
			}
		}, nil
	}

	return g.newClient(), func() {}, nil
}

// newClient builds the daemon client with the configured reconnect policy.
func (g *globals) newClient() *daemon.Client {
	initial, maxDelay := g.cfg.RetryDelays()
	retry := amerrors.RetryConfig{
		MaxRetries:   g.cfg.Dispatch.MaxRetries,
		InitialDelay: initial,
		MaxDelay:     maxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	}
	breaker := amerrors.NewCircuitBreaker("daemon",
		amerrors.WithMaxFailures(g.cfg.Dispatch.BreakerFailures),
		amerrors.WithResetTimeout(g.cfg.BreakerReset()))

	return daemon.NewClient(daemon.FromConfig(g.cfg),
		daemon.WithRetryConfig(retry),
		daemon.WithCircuitBreaker(breaker))
}

// newWriter creates an index writer for the target index on b.
func (g *globals) newWriter(b backend) (*indexer.IndexWriter, error) {
	return indexer.New(g.cfg.Index.Name,
		indexer.WithDispatcher(b),
		indexer.WithLogger(slog.Default()))
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, amerrors.FormatForCLI(err))
	}
	return err
}
