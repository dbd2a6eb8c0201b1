// Package client is a typed stub for the bank protocol. Each call sends one
// request and waits for its response; the returned error reports transport
// problems only, protocol failures arrive as Response.OK == false.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinoosan/bankledger/internal/wire"
)

// Client is safe for concurrent use; calls are serialised.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	codec   *wire.Codec
	timeout time.Duration
}

// Dial connects to addr. timeout bounds the dial and every later round trip;
// zero means no deadline.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewClient(conn, timeout), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, codec: wire.NewCodec(conn), timeout: timeout}
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Do performs one raw round trip.
func (c *Client) Do(ctx context.Context, op wire.Op, payload any) (wire.Response, error) {
	req, err := wire.NewRequest(op, payload)
	if err != nil {
		return wire.Response{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Time{}
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := c.codec.Write(req); err != nil {
		return wire.Response{}, fmt.Errorf("send %s: %w", op, err)
	}
	resp, err := c.codec.ReadResponse()
	if err != nil {
		return wire.Response{}, fmt.Errorf("receive %s: %w", op, err)
	}
	return resp, nil
}

func (c *Client) Register(ctx context.Context, login, password string) (wire.Response, error) {
	return c.Do(ctx, wire.OpRegister, wire.Credentials{Login: login, Password: password})
}

func (c *Client) Login(ctx context.Context, login, password string) (wire.Response, error) {
	return c.Do(ctx, wire.OpLogin, wire.Credentials{Login: login, Password: password})
}

func (c *Client) CreateAccount(ctx context.Context, currency string) (wire.Response, error) {
	return c.Do(ctx, wire.OpCreateAccount, wire.CreateAccount{Currency: currency})
}

func (c *Client) DeleteAccount(ctx context.Context, account string) (wire.Response, error) {
	return c.Do(ctx, wire.OpDeleteAccount, wire.AccountRef{Account: account})
}

func (c *Client) Balance(ctx context.Context, account string) (wire.Response, error) {
	return c.Do(ctx, wire.OpGetBalance, wire.AccountRef{Account: account})
}

// Deposit and Withdraw take the amount as a decimal string, e.g. "10.50".
func (c *Client) Deposit(ctx context.Context, account, amount string) (wire.Response, error) {
	return c.Do(ctx, wire.OpDeposit, wire.Movement{Account: account, Amount: amount})
}

func (c *Client) Withdraw(ctx context.Context, account, amount string) (wire.Response, error) {
	return c.Do(ctx, wire.OpWithdraw, wire.Movement{Account: account, Amount: amount})
}

func (c *Client) Transfer(ctx context.Context, from, to, amount string) (wire.Response, error) {
	return c.Do(ctx, wire.OpTransfer, wire.Transfer{From: from, To: to, Amount: amount})
}

// TransferChecked also asserts both account currencies; the server rejects
// the transfer with currency_mismatch when they differ.
func (c *Client) TransferChecked(ctx context.Context, from, to, amount, fromCurrency, toCurrency string) (wire.Response, error) {
	return c.Do(ctx, wire.OpTransfer, wire.Transfer{
		From: from, To: to, Amount: amount, FromCurrency: fromCurrency, ToCurrency: toCurrency,
	})
}

func (c *Client) Accounts(ctx context.Context) (wire.Response, error) {
	return c.Do(ctx, wire.OpGetAccounts, nil)
}

func (c *Client) Transactions(ctx context.Context, account string) (wire.Response, error) {
	return c.Do(ctx, wire.OpGetTransactions, wire.AccountRef{Account: account})
}

// Logout ends the session; the server closes the connection after replying.
func (c *Client) Logout(ctx context.Context) (wire.Response, error) {
	return c.Do(ctx, wire.OpLogout, nil)
}
