// Package wire defines the request/response messages exchanged between the
// bank server and its clients, and the length-prefixed frame codec both ends
// use to carry them.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/govalues/decimal"

	"github.com/tinoosan/bankledger/internal/currency"
	"github.com/tinoosan/bankledger/internal/ledger"
)

// Op tags a request.
type Op string

const (
	OpRegister        Op = "REGISTER"
	OpLogin           Op = "LOGIN"
	OpCreateAccount   Op = "CREATE_ACCOUNT"
	OpDeleteAccount   Op = "DELETE_ACCOUNT"
	OpGetBalance      Op = "GET_BALANCE"
	OpDeposit         Op = "DEPOSIT"
	OpWithdraw        Op = "WITHDRAW"
	OpTransfer        Op = "TRANSFER"
	OpGetAccounts     Op = "GET_ACCOUNTS"
	OpGetTransactions Op = "GET_TRANSACTIONS"
	OpLogout          Op = "LOGOUT"
)

// Ops lists every known tag.
var Ops = []Op{
	OpRegister, OpLogin, OpCreateAccount, OpDeleteAccount, OpGetBalance,
	OpDeposit, OpWithdraw, OpTransfer, OpGetAccounts, OpGetTransactions, OpLogout,
}

// Known reports whether op is a defined tag.
func (op Op) Known() bool {
	for _, k := range Ops {
		if k == op {
			return true
		}
	}
	return false
}

// Credentials is the payload of REGISTER and LOGIN.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// CreateAccount is the payload of CREATE_ACCOUNT.
type CreateAccount struct {
	Currency string `json:"currency"`
}

// AccountRef is the payload of DELETE_ACCOUNT, GET_BALANCE and GET_TRANSACTIONS.
type AccountRef struct {
	Account string `json:"account"`
}

// Movement is the payload of DEPOSIT and WITHDRAW. Amount is a decimal string.
type Movement struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// Transfer is the payload of TRANSFER. The currency pair is optional; when
// present both must match the accounts.
type Transfer struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Amount       string `json:"amount"`
	FromCurrency string `json:"from_currency,omitempty"`
	ToCurrency   string `json:"to_currency,omitempty"`
}

// Request is one framed client message. Payload shape depends on Op.
type Request struct {
	Op      Op              `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewRequest builds a request, encoding payload when non-nil.
func NewRequest(op Op, payload any) (Request, error) {
	req := Request{Op: op}
	if payload == nil {
		return req, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s payload: %w", op, err)
	}
	req.Payload = b
	return req, nil
}

// Decode unmarshals the payload into v. An absent payload decodes as the
// zero value.
func (r Request) Decode(v any) error {
	if len(r.Payload) == 0 || string(r.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, r.Op, err)
	}
	return nil
}

// Account is the wire view of an account.
type Account struct {
	Number   string `json:"number"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

// Transaction is the wire view of a transaction.
type Transaction struct {
	ID          string `json:"id"`
	Account     string `json:"account"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
}

// TransferResult describes both legs of a completed transfer.
type TransferResult struct {
	Debited      string `json:"debited"`
	FromCurrency string `json:"from_currency"`
	Credited     string `json:"credited"`
	ToCurrency   string `json:"to_currency"`
	Converted    bool   `json:"converted"`
}

// Response answers exactly one request. OK=false is authoritative; Code
// then carries the machine-readable failure kind.
type Response struct {
	OK           bool            `json:"ok"`
	Code         string          `json:"code,omitempty"`
	Message      string          `json:"message"`
	Account      string          `json:"account,omitempty"`
	Balance      string          `json:"balance,omitempty"`
	Currency     string          `json:"currency,omitempty"`
	Accounts     []Account       `json:"accounts,omitempty"`
	Transactions []Transaction   `json:"transactions,omitempty"`
	Transfer     *TransferResult `json:"transfer,omitempty"`
}

// Success returns an OK response with msg.
func Success(msg string) Response { return Response{OK: true, Message: msg} }

// Failure returns a failed response.
func Failure(code, msg string) Response { return Response{OK: false, Code: code, Message: msg} }

// ParseAmount parses a client-supplied decimal string.
func ParseAmount(s string) (decimal.Decimal, error) {
	return decimal.Parse(s)
}

// FromAccount converts a ledger account.
func FromAccount(a ledger.Account) Account {
	return Account{
		Number:   a.Number,
		Currency: a.Currency.Code(),
		Balance:  currency.Format(a.Balance.Decimal()),
	}
}

// FromTransaction converts a ledger transaction.
func FromTransaction(t ledger.Transaction) Transaction {
	return Transaction{
		ID:          t.ID,
		Account:     t.AccountNumber,
		Type:        string(t.Kind),
		Amount:      currency.Format(t.Amount.Decimal()),
		Currency:    t.Currency.Code(),
		Timestamp:   t.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Description: t.Description,
	}
}
