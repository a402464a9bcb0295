package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/costaparas/shell-script-api/internal/config"
)

var (
	ErrServerClosed   = errors.New("server closed")
	ErrNotListening   = errors.New("server is not listening")
	ErrAlreadyServing = errors.New("server is already listening")
)

const (
	// Unread request bytes make the kernel answer our close with a RST,
	// which can discard the response before the peer reads it.
	lingerTimeout = 500 * time.Millisecond
	lingerBytes   = 256 << 10
)

// Server accepts TCP connections and hands each one to the Handler on
// its own goroutine. One request is served per connection.
type Server struct {
	cfg     config.Config
	handler *Handler
	logger  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
}

func NewServer(cfg config.Config, handler *Handler, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger.Named("server"),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return ErrAlreadyServing
	}
	l, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until the server is shut down, then returns
// ErrServerClosed.
func (s *Server) Serve(ctx context.Context) error {
	log := s.logger.Sugar()
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return ErrNotListening
	}
	log.Infow("accepting connections", "addr", l.Addr().String(), "framing", s.cfg.Framing.String())

	var backoff time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				log.Warnw("accept error, retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0
		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	log := s.logger.Sugar().With("remote", conn.RemoteAddr().String())
	defer s.untrack(conn)
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debugw("failed to close connection", "error", err)
		}
	}()

	if s.cfg.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			log.Warnw("failed to set read deadline", "error", err)
		}
	}
	if err := s.handler.ServeStream(ctx, conn); err != nil {
		return
	}
	linger(conn)
}

func linger(conn net.Conn) {
	cw, ok := conn.(interface{ CloseWrite() error })
	if !ok {
		return
	}
	if err := cw.CloseWrite(); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(conn, lingerBytes))
}

// Shutdown stops accepting and waits for in-flight connections. When ctx
// ends first the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	log := s.logger.Sugar()
	if err := s.closeListener(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("all connections finished")
		return nil
	case <-ctx.Done():
		n := s.closeConns()
		log.Warnw("grace period ended, closing connections", "connections", n)
		<-done
		return ctx.Err()
	}
}

// Close stops accepting and closes every open connection immediately.
func (s *Server) Close() error {
	err := s.closeListener()
	s.closeConns()
	return err
}

func (s *Server) closeListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Swap(true) || s.listener == nil {
		return nil
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *Server) closeConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
	return len(s.conns)
}
