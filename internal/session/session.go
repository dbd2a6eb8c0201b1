// Package session runs the per-connection protocol state machine: it reads
// one request, dispatches it to the ledger under the session's bound login
// and writes exactly one response before reading the next.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/bankledger/internal/errs"
	"github.com/tinoosan/bankledger/internal/ledger"
	"github.com/tinoosan/bankledger/internal/metrics"
	"github.com/tinoosan/bankledger/internal/service/bank"
	"github.com/tinoosan/bankledger/internal/wire"
)

// Ledger is the operation surface a session dispatches to.
type Ledger interface {
	Register(ctx context.Context, login, password string) error
	Authenticate(ctx context.Context, login, password string) error
	CreateAccount(ctx context.Context, login, currency string) (ledger.Account, error)
	DeleteAccount(ctx context.Context, login, number string) error
	Balance(ctx context.Context, login, number string) (money.Amount, error)
	Accounts(ctx context.Context, login string) ([]ledger.Account, error)
	Deposit(ctx context.Context, login, number string, amount decimal.Decimal) (ledger.Transaction, error)
	Withdraw(ctx context.Context, login, number string, amount decimal.Decimal) (ledger.Transaction, error)
	Transfer(ctx context.Context, req bank.TransferRequest) (bank.Receipt, error)
	Transactions(ctx context.Context, login, number string) ([]ledger.Transaction, error)
}

// State of a session.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Config holds per-connection timeouts. Zero disables a deadline.
type Config struct {
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

// Session serves a single client connection. It is not safe for concurrent
// use; one goroutine drives it.
type Session struct {
	id     string
	conn   net.Conn
	codec  *wire.Codec
	ledger Ledger
	cfg    Config
	log    *slog.Logger

	state State
	login string
}

// New binds a session to conn.
func New(conn net.Conn, l Ledger, cfg Config, logger *slog.Logger) *Session {
	id := uuid.NewString()
	remote := ""
	if conn != nil && conn.RemoteAddr() != nil {
		remote = conn.RemoteAddr().String()
	}
	s := &Session{
		id:     id,
		conn:   conn,
		ledger: l,
		cfg:    cfg,
		log:    logger.With("session_id", id, "remote", remote),
		state:  Unauthenticated,
	}
	if conn != nil {
		s.codec = wire.NewCodec(conn)
	}
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Login returns the bound login, empty when unauthenticated.
func (s *Session) Login() string { return s.login }

// Serve runs the request/response loop until the client leaves, a
// transport or framing error occurs, or ctx is cancelled. A clean client
// close returns nil.
func (s *Session) Serve(ctx context.Context) (err error) {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()
	defer s.conn.Close()
	metrics.SessionOpened()
	defer metrics.SessionClosed()
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("session panic", "err", rec)
			s.state = Closed
			err = errs.Newf(errs.ErrTransport, "session aborted: %v", rec)
		}
	}()
	s.log.Debug("session opened")

	for s.state != Closed {
		if s.cfg.IdleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		req, rerr := s.codec.ReadRequest()
		if rerr != nil {
			s.state = Closed
			return s.readFailed(ctx, rerr)
		}

		start := time.Now()
		resp := s.Handle(ctx, req)
		metrics.ObserveRequest(opLabel(req.Op), resp.Code, time.Since(start))

		if werr := s.write(resp); werr != nil {
			s.state = Closed
			s.log.Warn("write response", "op", req.Op, "err", werr)
			return errs.Newf(errs.ErrTransport, "write response: %v", werr)
		}
	}
	s.log.Debug("session closed", "login", s.login)
	return nil
}

func (s *Session) readFailed(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, io.EOF), ctx.Err() != nil:
		s.log.Debug("session closed", "login", s.login)
		return nil
	case errors.Is(err, wire.ErrMalformed), errors.Is(err, wire.ErrFrameTooLarge):
		s.log.Warn("malformed frame", "err", err)
		_ = s.write(wire.Failure(errs.Code(errs.ErrInvalidInput), "malformed request"))
		return errs.Newf(errs.ErrInvalidInput, "malformed request: %v", err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		s.log.Info("session idle timeout", "login", s.login)
		return errs.New(errs.ErrTransport, "idle timeout")
	}
	s.log.Warn("read request", "err", err)
	return errs.Newf(errs.ErrTransport, "read request: %v", err)
}

func (s *Session) write(resp wire.Response) error {
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	return s.codec.Write(resp)
}

func opLabel(op wire.Op) string {
	if op.Known() {
		return string(op)
	}
	return "UNKNOWN"
}
