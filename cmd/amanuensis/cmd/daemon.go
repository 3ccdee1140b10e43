package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanuensis/internal/daemon"
	"github.com/Aman-CERP/amanuensis/internal/logging"
	"github.com/Aman-CERP/amanuensis/internal/output"
)

const stopTimeout = 5 * time.Second

func newDaemonCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the indexing daemon",
		Long: `The daemon is the single authoritative owner of every index under the
data directory. Writers send their batches to it over a unix socket and it
applies them one index at a time.

Commands:
  start   Start the daemon (runs in background by default)
  stop    Stop the running daemon
  status  Show daemon status

Examples:
  amanuensis daemon start      # Start daemon in background
  amanuensis daemon start -f   # Run in foreground (for debugging)
  amanuensis daemon status     # Check if daemon is running
  amanuensis daemon stop       # Stop the daemon`,
	}

	cmd.AddCommand(newDaemonStartCmd(g))
	cmd.AddCommand(newDaemonStopCmd(g))
	cmd.AddCommand(newDaemonStatusCmd(g))

	return cmd
}

func newDaemonStartCmd(g *globals) *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the indexing daemon",
		Long: `Start the indexing daemon in the background.

Use --foreground for debugging or to see logs in real-time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.runDaemonStart(cmd.Context(), cmd, foreground)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (don't daemonize)")
	return cmd
}

func newDaemonStopCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Stop the running indexing daemon.

Sends SIGTERM so open indexes are flushed and closed, then SIGKILL if the
daemon does not exit in time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd(g *globals) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.runDaemonStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func (g *globals) runDaemonStart(ctx context.Context, cmd *cobra.Command, foreground bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg := daemon.FromConfig(g.cfg)

	client := daemon.NewClient(cfg)
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	if foreground {
		return g.runDaemonForeground(ctx, out, cfg)
	}

	out.Status("", "Starting daemon in background...")

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	dir, err := filepath.Abs(g.dir)
	if err != nil {
		return fmt.Errorf("failed to resolve --dir: %w", err)
	}

	bgCmd := exec.Command(execPath, "daemon", "start", "--foreground", "--dir", dir)
	bgCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bgCmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and notice if it dies before it starts listening.
	done := make(chan error, 1)
	go func() { done <- bgCmd.Wait() }()

	for i := 0; i < 50; i++ {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w", err)
			}
			return errors.New("daemon process exited unexpectedly with code 0")
		default:
		}

		time.Sleep(100 * time.Millisecond)
		if client.IsRunning() {
			out.Successf("Daemon started (pid: %d)", bgCmd.Process.Pid)
			return nil
		}
	}

	return errors.New("daemon failed to start within timeout")
}

func (g *globals) runDaemonForeground(ctx context.Context, out *output.Writer, cfg daemon.Config) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = g.cfg.Logging.Level
	if g.debug {
		logCfg.Level = "debug"
	}
	logCfg.MaxSizeMB = g.cfg.Logging.MaxSizeMB
	logCfg.MaxFiles = g.cfg.Logging.MaxFiles
	logCfg.WriteToStderr = true

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	out.Status("", "Starting daemon in foreground...")
	out.Statusf("", "Socket: %s", cfg.SocketPath)
	out.Statusf("", "Data:   %s", cfg.DataDir)
	out.Statusf("", "Logs:   %s", logCfg.FilePath)
	out.Status("", "Press Ctrl+C to stop")
	out.Newline()

	d, err := daemon.NewDaemon(cfg, daemon.WithLogger(logger))
	if err != nil {
		logger.Error("daemon_create_failed", slog.String("error", err.Error()))
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (g *globals) runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	cfg := daemon.FromConfig(g.cfg)
	pidFile := daemon.NewPIDFile(cfg.PIDPath)

	pid, _ := pidFile.Read()
	err := pidFile.Terminate(stopTimeout)
	switch {
	case errors.Is(err, daemon.ErrNotRunning):
		out.Status("", "Daemon is not running")
		return nil
	case err == nil:
		out.Successf("Daemon stopped (was pid: %d)", pid)
		return nil
	}

	out.Warning("Daemon not responding, sending SIGKILL...")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	_ = pidFile.Remove()

	out.Success("Daemon killed")
	return nil
}

func (g *globals) runDaemonStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg := daemon.FromConfig(g.cfg)
	client := daemon.NewClient(cfg)

	if !client.IsRunning() {
		if jsonOutput {
			return out.JSON(daemon.StatusResult{Running: false})
		}
		out.Status("", "Daemon is not running")
		out.Status("", "Run 'amanuensis daemon start' to start it")
		return nil
	}

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if jsonOutput {
		return out.JSON(status)
	}

	out.Status("", "Daemon is running")
	out.KeyValues(
		output.Field{Key: "pid", Value: status.PID},
		output.Field{Key: "uptime", Value: status.Uptime},
		output.Field{Key: "data dir", Value: status.DataDir},
		output.Field{Key: "open indexes", Value: len(status.OpenIndexes)},
		output.Field{Key: "socket", Value: cfg.SocketPath},
	)
	return nil
}
