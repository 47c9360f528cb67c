// Package listener binds the protocol's TCP socket and spawns one
// independent session per accepted connection.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/nitrescov/filestored/internal/auth"
	"github.com/nitrescov/filestored/internal/metrics"
	"github.com/nitrescov/filestored/internal/session"
)

// Listener accepts connections on a bound TCP socket and hands each one
// to an independently running Session. Accept errors that are not
// fatal (transient per-connection failures) are logged and do not stop
// the accept loop; the listener keeps accepting new connections
// regardless of any individual session's outcome (spec.md section 7,
// policy statement).
type Listener struct {
	ln       net.Listener
	basePath string
	table    *auth.Table
	metrics  *metrics.Collector
	logger   *slog.Logger
	registry *Registry
}

// Config bundles a Listener's dependencies.
type Config struct {
	// Addr is the address to bind, e.g. ":5001".
	Addr string

	// BasePath is the root of the on-disk user tree.
	BasePath string

	// Auth is the credential table consulted at login.
	Auth *auth.Table

	// Metrics is an optional metrics sink; nil is a safe no-op.
	Metrics *metrics.Collector

	// Registry is an optional session registry shared with the admin
	// control plane (internal/admin). When nil, New creates a fresh
	// Registry, available through Listener.Registry.
	Registry *Registry
}

// New binds a TCP listener on cfg.Addr.
func New(cfg Config, logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Listener{
		ln:       ln,
		basePath: cfg.BasePath,
		table:    cfg.Auth,
		metrics:  cfg.Metrics,
		logger:   logger,
		registry: registry,
	}, nil
}

// Addr returns the bound address, useful when cfg.Addr used a random
// port (":0") for tests.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Registry returns the session registry backing this listener, for
// wiring into the admin control plane.
func (l *Listener) Registry() *Registry {
	return l.registry
}

// Close closes the underlying socket, unblocking any in-progress Run.
func (l *Listener) Close() error {
	if err := l.ln.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

// Run accepts connections until ctx is cancelled or the listener is
// closed, spawning one daemonized goroutine per accepted connection
// (spec.md section 5: one task per connection, no coordination across
// sessions, shutdown does not wait for them). Run returns nil when ctx
// is cancelled or the listener is closed; any other accept error is
// logged and the loop keeps accepting.
func (l *Listener) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn("accept failed", slog.String("error", err.Error()))
			continue
		}

		go l.serve(ctx, conn)
	}
}

// serve runs one session to completion. Panics inside a session are
// recovered so one misbehaving connection cannot take down the
// listener or any other session.
func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	l.registry.add(conn)
	defer l.registry.remove(conn)

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("session panicked",
				slog.String("peer", conn.RemoteAddr().String()),
				slog.Any("recovered", r),
			)
			conn.Close()
		}
	}()

	sess := session.New(conn, session.Config{
		BasePath: l.basePath,
		Auth:     l.table,
		Metrics:  l.metrics,
	}, l.logger)
	sess.Run(ctx)
}
