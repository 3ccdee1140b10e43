package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanuensis/internal/errors"
	"github.com/Aman-CERP/amanuensis/pkg/ops"
)

// testSocketPath returns a socket path short enough for Unix sockets.
func testSocketPath(t *testing.T) string {
	t.Helper()
	socketPath := filepath.Join(os.TempDir(), fmt.Sprintf("amanuensis-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { _ = os.Remove(socketPath) })
	return socketPath
}

// daemonTestConfig creates a configuration with unique paths.
func daemonTestConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		SocketPath:          testSocketPath(t),
		PIDPath:             filepath.Join(dir, "daemon.pid"),
		DataDir:             filepath.Join(dir, "data"),
		Timeout:             5 * time.Second,
		ShutdownGracePeriod: 2 * time.Second,
		MaxIndexes:          4,
	}
}

// fastRetry keeps reconnect tests quick.
func fastRetry() amerrors.RetryConfig {
	return amerrors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

// stubHandler records dispatched batches.
type stubHandler struct {
	mu       sync.Mutex
	batches  []*ops.Batch
	err      error
	stats    *StatsResult
	statsErr error
}

func (h *stubHandler) HandleDispatch(_ context.Context, batch *ops.Batch) error {
	if h.err != nil {
		return h.err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, batch)
	return nil
}

func (h *stubHandler) received() []*ops.Batch {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*ops.Batch(nil), h.batches...)
}

func (h *stubHandler) HandleStats(_ context.Context, name string) (*StatsResult, error) {
	if h.statsErr != nil {
		return nil, h.statsErr
	}
	if h.stats != nil {
		return h.stats, nil
	}
	return &StatsResult{Name: name}, nil
}

func (h *stubHandler) GetStatus() StatusResult {
	return StatusResult{DataDir: "/data", OpenIndexes: []string{"products"}}
}

// startServer runs a server with handler until the test ends.
func startServer(t *testing.T, handler RequestHandler) string {
	t.Helper()
	socketPath := testSocketPath(t)

	srv, err := NewServer(socketPath, WithGracePeriod(time.Second))
	require.NoError(t, err)
	if handler != nil {
		srv.SetHandler(handler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	waitForSocket(t, socketPath)
	return socketPath
}

func waitForSocket(t *testing.T, socketPath string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "socket never appeared")
}
