package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/amanuensis/internal/index"
	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// ErrAlreadyRunning is returned when another daemon owns the PID file.
var ErrAlreadyRunning = errors.New("daemon is already running")

// Option configures a Daemon.
type Option func(*Daemon)

// WithCoordinator makes the daemon apply batches through c instead of
// opening its own coordinator on Config.DataDir. The daemon does not
// close an injected coordinator.
func WithCoordinator(c *index.Coordinator) Option {
	return func(d *Daemon) {
		d.coordinator = c
		d.ownsCoordinator = false
	}
}

// WithLogger sets the logger handed to the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		if l != nil {
			d.logger = l
		}
	}
}

// Daemon is the authoritative indexing node: one process that owns the
// data directory and applies every batch sent to its socket.
type Daemon struct {
	config          Config
	logger          *slog.Logger
	pidFile         *PIDFile
	coordinator     *index.Coordinator
	ownsCoordinator bool
}

var _ RequestHandler = (*Daemon)(nil)

// NewDaemon creates a daemon. Nothing is opened until Start.
func NewDaemon(cfg Config, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}

	d := &Daemon{
		config:          cfg,
		logger:          slog.Default(),
		pidFile:         NewPIDFile(cfg.PIDPath),
		ownsCoordinator: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start runs the daemon until ctx is cancelled. It writes the PID file,
// opens the coordinator and serves the socket.
func (d *Daemon) Start(ctx context.Context) error {
	if d.pidFile.IsRunning() {
		return ErrAlreadyRunning
	}
	if err := d.config.EnsureDir(); err != nil {
		return err
	}

	if err := d.pidFile.Write(); err != nil {
		return err
	}
	defer func() {
		if err := d.pidFile.Remove(); err != nil {
			d.logger.Warn("pid_file_remove_failed", slog.String("error", err.Error()))
		}
	}()

	if d.coordinator == nil {
		coord, err := index.NewCoordinator(index.CoordinatorConfig{
			DataDir:    d.config.DataDir,
			MaxIndexes: d.config.MaxIndexes,
			Logger:     d.logger,
		})
		if err != nil {
			return err
		}
		d.coordinator = coord
	}
	if d.ownsCoordinator {
		defer func() {
			if err := d.coordinator.Close(); err != nil {
				d.logger.Warn("coordinator_close_failed", slog.String("error", err.Error()))
			}
		}()
	}

	srv, err := NewServer(d.config.SocketPath,
		WithConnTimeout(d.config.Timeout),
		WithGracePeriod(d.config.ShutdownGracePeriod))
	if err != nil {
		return err
	}
	srv.SetHandler(d)

	d.logger.Info("daemon_started",
		slog.String("socket", d.config.SocketPath),
		slog.String("data_dir", d.config.DataDir),
		slog.Int("max_indexes", d.config.MaxIndexes))

	err = srv.ListenAndServe(ctx)

	d.logger.Info("daemon_stopped")
	return err
}

// HandleDispatch applies a batch received over the socket.
func (d *Daemon) HandleDispatch(ctx context.Context, batch *ops.Batch) error {
	return d.coordinator.Dispatch(ctx, batch)
}

// HandleStats reports statistics for one index.
func (d *Daemon) HandleStats(ctx context.Context, indexName string) (*StatsResult, error) {
	return d.coordinator.Stats(ctx, indexName)
}

// GetStatus reports the daemon's handler state.
func (d *Daemon) GetStatus() StatusResult {
	status := StatusResult{DataDir: d.config.DataDir}
	if d.coordinator != nil {
		status.OpenIndexes = d.coordinator.OpenIndexes()
	}
	return status
}
