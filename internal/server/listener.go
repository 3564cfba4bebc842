package server

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// ConnectionHandler processes one accepted connection until it closes.
type ConnectionHandler func(ctx context.Context, conn *Connection)

// ConnTracker is notified as connections are accepted and closed, letting a
// caller maintain per-connection TCP_INFO metrics without this package
// depending on a particular metrics implementation.
type ConnTracker interface {
	Add(conn net.Conn, labels []string) error
	Remove(conn net.Conn)
}

// ListenerConfig configures a single TCP listener.
type ListenerConfig struct {
	Address        string
	IdleTimeout    time.Duration
	CommandTimeout time.Duration
	MaxConnections int
	Logger         *slog.Logger
	Handler        ConnectionHandler

	// Tracker, if set, is told about every accepted connection (labeled
	// with TrackerLabels) so it can report TCP_INFO gauges for it until
	// the connection closes.
	Tracker       ConnTracker
	TrackerLabels []string
}

// Listener accepts connections on one address and dispatches them to a
// ConnectionHandler, one goroutine per connection, subject to a connection
// limit.
type Listener struct {
	cfg     ListenerConfig
	limiter *ConnectionLimiter
	ln      net.Listener
}

// NewListener builds a Listener from cfg. It does not bind a socket until
// Start is called.
func NewListener(cfg ListenerConfig) *Listener {
	max := cfg.MaxConnections
	if max <= 0 {
		max = 1 << 20
	}
	return &Listener{cfg: cfg, limiter: NewConnectionLimiter(max)}
}

// Address returns the configured listen address.
func (l *Listener) Address() string { return l.cfg.Address }

// BoundAddr returns the actual address the listener is bound to, useful
// when Address used port 0. It returns nil before Start has bound a socket.
func (l *Listener) BoundAddr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Start binds the listener and accepts connections until ctx is cancelled
// or Close is called. It blocks until the accept loop stops.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return err
	}
	l.ln = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	logger := l.cfg.Logger
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return context.Canceled
			default:
				return err
			}
		}

		if !l.limiter.TryAcquire() {
			if logger != nil {
				logger.Warn("connection limit reached, rejecting", slog.String("remote", conn.RemoteAddr().String()))
			}
			_ = conn.Close()
			continue
		}

		c := newConnection(conn, l.cfg.CommandTimeout, l.cfg.IdleTimeout)
		if l.cfg.Tracker != nil {
			if err := l.cfg.Tracker.Add(conn, l.cfg.TrackerLabels); err != nil && logger != nil {
				logger.Debug("tcp stats tracking unavailable for connection", slog.String("remote", conn.RemoteAddr().String()), slog.Any("error", err))
			}
		}
		go func() {
			defer l.limiter.Release()
			defer c.Close()
			if l.cfg.Tracker != nil {
				defer l.cfg.Tracker.Remove(conn)
			}
			l.cfg.Handler(ctx, c)
		}()
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	if l.ln != nil {
		return l.ln.Close()
	}
	return nil
}

// Connections returns the number of currently active connections.
func (l *Listener) Connections() int64 { return l.limiter.Current() }
