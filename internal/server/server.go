// Package server accepts TCP connections and runs one session per
// connection until shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/tinoosan/bankledger/internal/errs"
	"github.com/tinoosan/bankledger/internal/session"
	"github.com/tinoosan/bankledger/internal/wire"
)

// Config controls the listener and per-session limits.
type Config struct {
	Addr         string
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxSessions caps concurrent sessions; 0 means unlimited.
	MaxSessions int
}

// ErrServerUsed is returned when Serve is called on a Server that has
// already served.
var ErrServerUsed = errors.New("server: Serve called more than once")

// Server owns the accept loop. Create with New. A Server is single-use:
// Serve (or ListenAndServe) may run once.
type Server struct {
	cfg    Config
	ledger session.Ledger
	log    *slog.Logger

	mu     sync.Mutex
	active int
	addr   net.Addr
	ready  chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New constructs a Server. It does not listen until ListenAndServe or Serve.
func New(cfg Config, l session.Ledger, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, ledger: l, log: logger, ready: make(chan struct{})}
}

// ListenAndServe listens on cfg.Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Addr waits until the server is listening and returns its address, or nil
// if ctx ends first.
func (s *Server) Addr(ctx context.Context) net.Addr {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener, cancels every session and waits for them to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	first := false
	s.once.Do(func() { first = true })
	if !first {
		_ = ln.Close()
		return ErrServerUsed
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	s.log.Info("bank server listening", "addr", ln.Addr().String(), "max_sessions", s.cfg.MaxSessions)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = nextBackoff(backoff)
				s.log.Warn("accept error; retrying", "err", err, "backoff", backoff.String())
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
				}
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error("accept failed", "err", err)
			cancel()
			s.wg.Wait()
			return err
		}
		backoff = 0

		if !s.acquire() {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.reject(conn)
			}()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release()
			s.serveConn(ctx, conn)
		}()
	}

	s.log.Info("bank server stopping; waiting for sessions")
	cancel()
	s.wg.Wait()
	s.log.Info("bank server stopped")
	return nil
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

func (s *Server) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MaxSessions > 0 && s.active >= s.cfg.MaxSessions {
		return false
	}
	s.active++
	return true
}

func (s *Server) release() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

// Active returns the number of running sessions.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	sess := session.New(conn, s.ledger, session.Config{
		IdleTimeout:  s.cfg.IdleTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}, s.log)
	if err := sess.Serve(ctx); err != nil {
		s.log.Debug("session ended", "session_id", sess.ID(), "err", err)
	}
}

// reject answers a connection over the session cap and closes it.
func (s *Server) reject(conn net.Conn) {
	defer conn.Close()
	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	_ = wire.WriteFrame(conn, wire.Failure(errs.Code(errs.ErrTransport), "server busy"))
	s.log.Warn("connection rejected: session limit reached", "remote", conn.RemoteAddr().String())
}
