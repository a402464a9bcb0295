package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/costaparas/shell-script-api/internal/config"
	"github.com/costaparas/shell-script-api/internal/server"
)

var ErrNotInitialized = errors.New("service not initialized - call Initialize() first")

// Service is the root lifecycle owner for the raw-stream listener
type Service struct {
	cfg config.Config

	// Lifecycle state
	started         chan struct{}
	stopped         chan struct{}
	shutdown        chan struct{}
	shutdownStarted atomic.Bool

	server *server.Server

	logger *zap.Logger
}

// New creates a new Service with the given configuration
func New(cfg config.Config, baseLogger *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		started:  make(chan struct{}),
		stopped:  make(chan struct{}),
		shutdown: make(chan struct{}),
		logger:   baseLogger.Named("service"),
	}
}

// Initialize creates the server and binds its listener (idempotent)
func (s *Service) Initialize(ctx context.Context) error {
	if s.server != nil {
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := s.logger.Sugar()
	log.Infow("initializing server", "addr", s.cfg.Addr())

	h := server.NewHandler(s.cfg.Framing, s.logger)
	srv := server.NewServer(s.cfg, h, s.logger)
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	s.server = srv
	return nil
}

// Addr is the bound listener address
func (s *Service) Addr() string {
	if s.server == nil || s.server.Addr() == nil {
		return ""
	}
	return s.server.Addr().String()
}

// Run starts the service and blocks until shutdown
func (s *Service) Run(ctx context.Context) error {
	log := s.logger.Sugar()

	select {
	case <-s.started:
		log.Errorw("service already started")
		return nil
	default:
	}

	if s.server == nil {
		return ErrNotInitialized
	}

	log.Infow("starting service",
		"addr", s.Addr(),
		"framing", s.cfg.Framing.String(),
		"read_timeout", s.cfg.ReadTimeout,
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := s.server.Serve(egCtx); err != nil && !errors.Is(err, server.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-s.shutdown
		log.Infow("initiating graceful shutdown", "grace_period", s.cfg.ShutdownGracePeriod)

		graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownGracePeriod)
		defer cancel()
		if err := s.server.Shutdown(graceCtx); err != nil {
			log.Warnw("connections did not finish in time", "error", err)
		}
		return nil
	})

	// Monitor for context cancellation (handles external cancellation)
	eg.Go(func() error {
		select {
		case <-s.shutdown:
			return nil
		case <-egCtx.Done():
			log.Info("context canceled, forcing immediate shutdown")
			if s.shutdownStarted.CompareAndSwap(false, true) {
				close(s.shutdown)
			}
			if err := s.server.Close(); err != nil {
				log.Errorw("failed to close server", "error", err)
			}
			return egCtx.Err()
		}
	})

	eg.Go(func() error {
		return s.handleSignals(egCtx)
	})

	close(s.started)

	err := eg.Wait()

	s.stop()

	return err
}

// Shutdown initiates graceful shutdown of the service (non-blocking)
func (s *Service) Shutdown() {
	log := s.logger.Sugar()
	log.Info("shutdown requested")

	if !s.shutdownStarted.CompareAndSwap(false, true) {
		log.Debug("already shutting down")
		return
	}

	close(s.shutdown)
}

func (s *Service) stop() {
	log := s.logger.Sugar()
	log.Info("stopping service")

	select {
	case <-s.stopped:
		log.Debug("service already stopped")
	default:
		close(s.stopped)
	}
}

// IsStarted returns true if the service has been started
func (s *Service) IsStarted() bool {
	select {
	case <-s.started:
		return true
	default:
		return false
	}
}

// IsStopped returns true if the service has been stopped
func (s *Service) IsStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

// IsRunning returns true if the service is running (started but not stopped)
func (s *Service) IsRunning() bool {
	return s.IsStarted() && !s.IsStopped()
}

// handleSignals turns SIGTERM into a graceful shutdown
func (s *Service) handleSignals(ctx context.Context) error {
	log := s.logger.Sugar()
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case <-s.shutdown:
		return nil
	case <-ctx.Done():
		return nil
	case <-ch:
		log.Info("received SIGTERM, starting graceful shutdown")
		s.Shutdown()
		return nil
	}
}
