// Package shutdown coordinates orderly process teardown. Registered
// hooks run in reverse registration order so dependents stop before
// their dependencies.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/willardjansen/cubby-score-conversion/pkg/logging"
)

// Manager collects shutdown hooks and runs them when a termination
// signal arrives.
type Manager struct {
	hooks   []func(context.Context) error
	mu      sync.Mutex
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
	logger  *logging.Logger
}

// New creates a shutdown manager. timeout bounds the total time spent
// running hooks.
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	return &Manager{
		timeout: timeout,
		done:    make(chan struct{}),
		logger:  logger.WithField("component", "shutdown"),
	}
}

// Register adds a shutdown hook. Hooks run in reverse order (LIFO).
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Wait blocks until SIGTERM or SIGINT, then runs all registered hooks.
func (m *Manager) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	m.logger.Info("Received shutdown signal", map[string]interface{}{
		"signal": sig.String(),
	})

	m.once.Do(func() {
		close(m.done)
	})
	m.Shutdown()
}

// Done returns a channel that is closed once shutdown has started.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Shutdown runs the registered hooks in reverse order under the
// configured timeout.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.hooks) - 1; i >= 0; i-- {
		if err := m.hooks[i](ctx); err != nil {
			m.logger.Error("Shutdown hook failed", map[string]interface{}{
				"hook":  i,
				"error": err.Error(),
			})
		}
	}

	m.logger.Info("Graceful shutdown complete")
}

// StopHTTPServer wraps an http.Server-style Shutdown in a hook.
func StopHTTPServer(server interface{ Shutdown(context.Context) error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop %s server: %w", name, err)
		}
		return nil
	}
}

// CloseResource wraps an io.Closer in a hook.
func CloseResource(closer interface{ Close() error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		return nil
	}
}
