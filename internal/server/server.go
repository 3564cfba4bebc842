package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/infodancer/campusmaild/internal/logging"
)

// Server coordinates one or more TCP listeners sharing a single connection
// handler, the shape the notify-control TCP server uses (one listener per
// configured bind address, all serving the same command dispatch).
type Server struct {
	addrs          []string
	idleTimeout    time.Duration
	commandTimeout time.Duration
	maxConnections int
	logger         *slog.Logger
	handler        ConnectionHandler

	listeners []*Listener
	mu        sync.Mutex

	tracker       ConnTracker
	trackerLabels []string
}

// Config holds the settings needed to construct a Server.
type Config struct {
	Addresses      []string
	IdleTimeout    time.Duration
	CommandTimeout time.Duration
	MaxConnections int
	Logger         *slog.Logger

	// Tracker, if set, is wired into every listener this Server starts.
	Tracker       ConnTracker
	TrackerLabels []string
}

// New creates a Server from cfg. SetHandler must be called before Run.
func New(cfg Config) (*Server, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("server: at least one listen address is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("info")
	}
	return &Server{
		addrs:          cfg.Addresses,
		idleTimeout:    cfg.IdleTimeout,
		commandTimeout: cfg.CommandTimeout,
		maxConnections: cfg.MaxConnections,
		logger:         logger,
		tracker:        cfg.Tracker,
		trackerLabels:  cfg.TrackerLabels,
	}, nil
}

// SetHandler sets the connection handler used by all listeners.
func (s *Server) SetHandler(handler ConnectionHandler) {
	s.handler = handler
}

// Run starts all configured listeners and blocks until ctx is cancelled. It
// then closes the listeners and returns the errors of any that failed, or
// ctx.Err() if none did. A failing listener does not make Run return early.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.handler == nil {
		s.mu.Unlock()
		return fmt.Errorf("server: no handler configured")
	}
	for _, addr := range s.addrs {
		l := NewListener(ListenerConfig{
			Address:        addr,
			IdleTimeout:    s.idleTimeout,
			CommandTimeout: s.commandTimeout,
			MaxConnections: s.maxConnections,
			Logger:         s.logger,
			Handler:        s.handler,
			Tracker:        s.tracker,
			TrackerLabels:  s.trackerLabels,
		})
		s.listeners = append(s.listeners, l)
	}
	listeners := s.listeners
	s.mu.Unlock()

	s.logger.Info("starting server", slog.Int("listener_count", len(listeners)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(listeners))
	for _, l := range listeners {
		wg.Add(1)
		go func(l *Listener) {
			defer wg.Done()
			if err := l.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("listener %s: %w", l.Address(), err)
			}
		}(l)
	}

	<-ctx.Done()
	s.logger.Info("server shutting down")
	s.Shutdown()
	wg.Wait()
	close(errCh)

	var result *multierror.Error
	for err := range errCh {
		result = multierror.Append(result, err)
		s.logger.Error("listener error", slog.String("error", err.Error()))
	}
	if result != nil {
		return result.ErrorOrNil()
	}
	return ctx.Err()
}

// Shutdown closes all listeners, causing their accept loops to return.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		_ = l.Close()
	}
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger { return s.logger }
