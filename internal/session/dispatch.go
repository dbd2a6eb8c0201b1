package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/govalues/decimal"

	"github.com/tinoosan/bankledger/internal/currency"
	"github.com/tinoosan/bankledger/internal/errs"
	"github.com/tinoosan/bankledger/internal/metrics"
	"github.com/tinoosan/bankledger/internal/service/bank"
	"github.com/tinoosan/bankledger/internal/wire"
)

// Handle applies one request to the session and returns its response. It
// never touches the network, so it can be driven directly. When the
// request ends the session (LOGOUT, malformed or unknown input) State
// reports Closed afterwards.
func (s *Session) Handle(ctx context.Context, req wire.Request) wire.Response {
	if s.state == Closed {
		return wire.Failure(errs.Code(errs.ErrTransport), "session is closed")
	}
	if !req.Op.Known() {
		s.state = Closed
		s.log.Warn("unknown operation", "op", req.Op)
		return wire.Failure(errs.Code(errs.ErrInvalidInput), fmt.Sprintf("unknown operation %q", req.Op))
	}
	if s.state == Unauthenticated && req.Op != wire.OpRegister && req.Op != wire.OpLogin {
		s.log.Debug("rejected before login", "op", req.Op)
		return s.fail(req.Op, errs.New(errs.ErrAuthRequired, "please log in first"))
	}

	resp, err := s.dispatch(ctx, req)
	if err != nil {
		return s.fail(req.Op, err)
	}
	resp.OK = true
	s.log.Debug("request handled", "op", req.Op, "login", s.login)
	return resp
}

func (s *Session) fail(op wire.Op, err error) wire.Response {
	if isMalformed(err) {
		s.state = Closed
	}
	s.log.Warn("request failed", "op", op, "login", s.login, "code", errs.Code(err), "err", err)
	return wire.Failure(errs.Code(err), errs.Message(err))
}

type malformed struct{ error }

func (m malformed) Unwrap() error { return m.error }

func isMalformed(err error) bool {
	var m malformed
	return errors.As(err, &m)
}

func decode(req wire.Request, v any) error {
	if err := req.Decode(v); err != nil {
		return malformed{errs.Newf(errs.ErrInvalidInput, "malformed %s payload", req.Op)}
	}
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := wire.ParseAmount(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, errs.Newf(errs.ErrInvalidAmount, "invalid amount %q", raw)
	}
	return d, nil
}

func (s *Session) dispatch(ctx context.Context, req wire.Request) (wire.Response, error) {
	switch req.Op {
	case wire.OpRegister:
		var p wire.Credentials
		if err := decode(req, &p); err != nil {
			return wire.Response{}, err
		}
		if err := s.ledger.Register(ctx, p.Login, p.Password); err != nil {
			return wire.Response{}, err
		}
		return wire.Success("registration successful"), nil

	case wire.OpLogin:
		var p wire.Credentials
		if err := decode(req, &p); err != nil {
			return wire.Response{}, err
		}
		if err := s.ledger.Authenticate(ctx, p.Login, p.Password); err != nil {
			return wire.Response{}, err
		}
		s.login = p.Login
		s.state = Authenticated
		s.log.Info("login", "login", p.Login)
		return wire.Success("login successful"), nil

	case wire.OpLogout:
		s.log.Info("logout", "login", s.login)
		s.login = ""
		s.state = Closed
		return wire.Success("logged out"), nil

	case wire.OpCreateAccount:
		var p wire.CreateAccount
		if err := decode(req, &p); err != nil {
			return wire.Response{}, err
		}
		acc, err := s.ledger.CreateAccount(ctx, s.login, p.Currency)
		if err != nil {
			return wire.Response{}, err
		}
		resp := wire.Success("account created: " + acc.Number)
		resp.Account = acc.Number
		resp.Currency = acc.Currency.Code()
		resp.Balance = currency.Format(acc.Balance.Decimal())
		return resp, nil

	case wire.OpDeleteAccount:
		var p wire.AccountRef
		if err := decode(req, &p); err != nil {
			return wire.Response{}, err
		}
		if err := s.ledger.DeleteAccount(ctx, s.login, p.Account); err != nil {
			return wire.Response{}, err
		}
		resp := wire.Success("account deleted")
		resp.Account = p.Account
		return resp, nil

	case wire.OpGetBalance:
		var p wire.AccountRef
		if err := decode(req, &p); err != nil {
			return wire.Response{}, err
		}
		bal, err := s.ledger.Balance(ctx, s.login, p.Account)
		if err != nil {
			return wire.Response{}, err
		}
		resp := wire.Success("balance retrieved")
		resp.Account = p.Account
		resp.Balance = currency.Format(bal.Decimal())
		resp.Currency = bal.Curr().Code()
		return resp, nil

	case wire.OpDeposit, wire.OpWithdraw:
		var p wire.Movement
		if err := decode(req, &p); err != nil {
			return wire.Response{}, err
		}
		amt, err := parseAmount(p.Amount)
		if err != nil {
			return wire.Response{}, err
		}
		move, verb := s.ledger.Deposit, "deposited"
		if req.Op == wire.OpWithdraw {
			move, verb = s.ledger.Withdraw, "withdrew"
		}
		tx, err := move(ctx, s.login, p.Account, amt)
		if err != nil {
			return wire.Response{}, err
		}
		resp := wire.Success(fmt.Sprintf("%s %s %s", verb, currency.Format(tx.Amount.Decimal()), tx.Currency.Code()))
		resp.Account = p.Account
		resp.Currency = tx.Currency.Code()
		return resp, nil

	case wire.OpTransfer:
		var p wire.Transfer
		if err := decode(req, &p); err != nil {
			return wire.Response{}, err
		}
		amt, err := parseAmount(p.Amount)
		if err != nil {
			return wire.Response{}, err
		}
		r, err := s.ledger.Transfer(ctx, bank.TransferRequest{
			Login: s.login, From: p.From, To: p.To, Amount: amt,
			FromCurrency: p.FromCurrency, ToCurrency: p.ToCurrency,
		})
		if err != nil {
			return wire.Response{}, err
		}
		metrics.ObserveTransfer(r.Converted)
		debited, credited := currency.Format(r.Debited.Decimal()), currency.Format(r.Credited.Decimal())
		msg := fmt.Sprintf("transferred %s %s", debited, r.Debited.Curr().Code())
		if r.Converted {
			msg += fmt.Sprintf(" (credited %s %s)", credited, r.Credited.Curr().Code())
		}
		resp := wire.Success(msg)
		resp.Account = p.From
		resp.Transfer = &wire.TransferResult{
			Debited: debited, FromCurrency: r.Debited.Curr().Code(),
			Credited: credited, ToCurrency: r.Credited.Curr().Code(),
			Converted: r.Converted,
		}
		return resp, nil

	case wire.OpGetAccounts:
		accs, err := s.ledger.Accounts(ctx, s.login)
		if err != nil {
			return wire.Response{}, err
		}
		resp := wire.Success(fmt.Sprintf("%d account(s)", len(accs)))
		resp.Accounts = make([]wire.Account, 0, len(accs))
		for _, a := range accs {
			resp.Accounts = append(resp.Accounts, wire.FromAccount(a))
		}
		return resp, nil

	case wire.OpGetTransactions:
		var p wire.AccountRef
		if err := decode(req, &p); err != nil {
			return wire.Response{}, err
		}
		txs, err := s.ledger.Transactions(ctx, s.login, p.Account)
		if err != nil {
			return wire.Response{}, err
		}
		resp := wire.Success(fmt.Sprintf("%d transaction(s)", len(txs)))
		resp.Account = p.Account
		resp.Transactions = make([]wire.Transaction, 0, len(txs))
		for _, t := range txs {
			resp.Transactions = append(resp.Transactions, wire.FromTransaction(t))
		}
		return resp, nil
	}
	return wire.Response{}, errs.Newf(errs.ErrInvalidInput, "unsupported operation %q", req.Op)
}
