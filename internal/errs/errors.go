package errs

import (
	"errors"
	"fmt"
)

// Sentinel kinds for cross-layer signaling. The text of each kind doubles as
// the machine-readable code sent to clients.
var (
	ErrInvalidInput       = errors.New("invalid_input")
	ErrAlreadyExists      = errors.New("already_exists")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAuthRequired       = errors.New("auth_required")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInsufficientFunds  = errors.New("insufficient_funds")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrCurrencyMismatch   = errors.New("currency_mismatch")
	// ErrUnsupportedCurrency is returned when a conversion involves a currency outside the rate table.
	ErrUnsupportedCurrency = errors.New("unsupported_currency")
	// ErrNonZeroBalance blocks deletion of an account that still holds funds.
	ErrNonZeroBalance = errors.New("non_zero_balance")
	ErrTransport      = errors.New("transport_failure")
	ErrPersistence    = errors.New("persistence_failure")
)

var kinds = []error{
	ErrInvalidInput, ErrAlreadyExists, ErrInvalidCredentials, ErrAuthRequired,
	ErrNotFound, ErrInvalidAmount, ErrInsufficientFunds, ErrInvalidCurrency,
	ErrCurrencyMismatch, ErrUnsupportedCurrency, ErrNonZeroBalance,
	ErrTransport, ErrPersistence,
}

// Error pairs a sentinel kind with a human readable message.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

// New returns an *Error of the given kind.
func New(kind error, msg string) error { return &Error{Kind: kind, Msg: msg} }

// Newf is New with fmt formatting.
func Newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Code maps err to its wire code. Unknown errors map to "internal".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal"
}

// Message returns the user-facing text of err. Errors that are not *Error
// are not leaked to clients.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return "internal error"
}
