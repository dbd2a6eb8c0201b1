package bank

import (
	"context"
	"fmt"

	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/bankledger/internal/currency"
	"github.com/tinoosan/bankledger/internal/errs"
	"github.com/tinoosan/bankledger/internal/ledger"
)

func positive(amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return errs.New(errs.ErrInvalidAmount, "amount must be positive")
	}
	return nil
}

// fits rejects amounts finer than the currency's minor unit. Trailing zeros
// do not count, so "1.500" fits USD.
func fits(amount decimal.Decimal, curr money.Currency) error {
	if amount.Trim(0).Scale() > curr.Scale() {
		return errs.Newf(errs.ErrInvalidAmount, "amount %s has more than %d decimal places for %s",
			amount, curr.Scale(), curr.Code())
	}
	return nil
}

func insufficient(number string, bal money.Amount) error {
	return errs.Newf(errs.ErrInsufficientFunds, "insufficient funds on %s: balance %s %s",
		number, currency.Format(bal.Decimal()), bal.Curr().Code())
}

func (l *Ledger) record(number string, kind ledger.Kind, amt money.Amount, desc string) ledger.Transaction {
	return ledger.Transaction{
		ID:            newTxID(),
		AccountNumber: number,
		Kind:          kind,
		Amount:        amt,
		Currency:      amt.Curr(),
		Timestamp:     l.now(),
		Description:   desc,
	}
}

// Deposit credits amount to an account owned by login.
func (l *Ledger) Deposit(ctx context.Context, login, number string, amount decimal.Decimal) (ledger.Transaction, error) {
	if err := positive(amount); err != nil {
		return ledger.Transaction{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.owned(login, number)
	if !ok {
		return ledger.Transaction{}, accountNotFound(number)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fits(amount, e.acc.Currency); err != nil {
		return ledger.Transaction{}, err
	}
	amt, err := money.NewAmountFromDecimal(e.acc.Currency, amount)
	if err != nil {
		return ledger.Transaction{}, errs.Newf(errs.ErrInvalidAmount, "invalid amount: %v", err)
	}
	bal, err := e.acc.Balance.Add(amt)
	if err != nil {
		return ledger.Transaction{}, errs.Newf(errs.ErrInvalidAmount, "invalid amount: %v", err)
	}
	tx := l.record(number, ledger.KindDeposit, amt, "Account deposit")
	l.commit(ctx, func() {
		e.acc.Balance = bal
		l.appendTx(login, tx)
	})
	l.log.Info("deposit", "login", login, "account", number, "amount", amt.Decimal().String())
	return tx, nil
}

// Withdraw debits amount from an account owned by login.
func (l *Ledger) Withdraw(ctx context.Context, login, number string, amount decimal.Decimal) (ledger.Transaction, error) {
	if err := positive(amount); err != nil {
		return ledger.Transaction{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.owned(login, number)
	if !ok {
		return ledger.Transaction{}, accountNotFound(number)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fits(amount, e.acc.Currency); err != nil {
		return ledger.Transaction{}, err
	}
	if e.acc.Balance.Decimal().Cmp(amount) < 0 {
		return ledger.Transaction{}, insufficient(number, e.acc.Balance)
	}
	amt, err := money.NewAmountFromDecimal(e.acc.Currency, amount)
	if err != nil {
		return ledger.Transaction{}, errs.Newf(errs.ErrInvalidAmount, "invalid amount: %v", err)
	}
	bal, err := e.acc.Balance.Sub(amt)
	if err != nil {
		return ledger.Transaction{}, errs.Newf(errs.ErrInvalidAmount, "invalid amount: %v", err)
	}
	tx := l.record(number, ledger.KindWithdraw, amt, "Withdrawal")
	l.commit(ctx, func() {
		e.acc.Balance = bal
		l.appendTx(login, tx)
	})
	l.log.Info("withdraw", "login", login, "account", number, "amount", amt.Decimal().String())
	return tx, nil
}

// TransferRequest describes a movement between two accounts. From must be
// owned by Login; To may belong to anyone. When both FromCurrency and
// ToCurrency are set they must equal the accounts' currency codes exactly.
type TransferRequest struct {
	Login        string
	From         string
	To           string
	Amount       decimal.Decimal
	FromCurrency string
	ToCurrency   string
}

func (r TransferRequest) checked() bool {
	return r.FromCurrency != "" || r.ToCurrency != ""
}

// Receipt reports both legs of a committed transfer.
type Receipt struct {
	Debited   money.Amount
	Credited  money.Amount
	Converted bool
	Out       ledger.Transaction
	In        ledger.Transaction
}

// Transfer moves Amount (in the source currency) from From to To, converting
// through the base currency when the accounts differ. Both legs commit
// together.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	src, ok := l.owned(req.Login, req.From)
	if !ok {
		return Receipt{}, errs.Newf(errs.ErrNotFound, "source account %s not found", req.From)
	}
	dst, ok := l.index[req.To]
	if !ok {
		return Receipt{}, errs.Newf(errs.ErrNotFound, "target account %s not found", req.To)
	}
	if src == dst {
		return Receipt{}, errs.New(errs.ErrInvalidInput, "cannot transfer to the same account")
	}
	if err := positive(req.Amount); err != nil {
		return Receipt{}, err
	}

	first, second := src, dst
	if second.acc.Number < first.acc.Number {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if err := fits(req.Amount, src.acc.Currency); err != nil {
		return Receipt{}, err
	}
	if src.acc.Balance.Decimal().Cmp(req.Amount) < 0 {
		return Receipt{}, insufficient(src.acc.Number, src.acc.Balance)
	}
	from, to := src.acc.Currency, dst.acc.Currency
	if req.checked() {
		if req.FromCurrency != from.Code() || req.ToCurrency != to.Code() {
			return Receipt{}, errs.Newf(errs.ErrCurrencyMismatch,
				"currency mismatch: source account is %s, target account is %s", from.Code(), to.Code())
		}
	}
	if !currency.IsSupported(from.Code()) || !currency.IsSupported(to.Code()) {
		return Receipt{}, errs.Newf(errs.ErrUnsupportedCurrency,
			"conversion between %s and %s is not supported", from.Code(), to.Code())
	}

	debit, err := money.NewAmountFromDecimal(from, req.Amount)
	if err != nil {
		return Receipt{}, errs.Newf(errs.ErrInvalidAmount, "invalid amount: %v", err)
	}
	credit, err := currency.ConvertAmount(debit, to)
	if err != nil {
		return Receipt{}, err
	}
	if credit.Decimal().Sign() <= 0 {
		return Receipt{}, errs.Newf(errs.ErrInvalidAmount, "amount %s %s converts to zero %s",
			req.Amount, from.Code(), to.Code())
	}
	srcBal, err := src.acc.Balance.Sub(debit)
	if err != nil {
		return Receipt{}, errs.Newf(errs.ErrInvalidAmount, "invalid amount: %v", err)
	}
	dstBal, err := dst.acc.Balance.Add(credit)
	if err != nil {
		return Receipt{}, errs.Newf(errs.ErrInvalidAmount, "invalid amount: %v", err)
	}

	converted := from != to
	outDesc, inDesc := "Transfer to "+dst.acc.Number, "Transfer from "+src.acc.Number
	if converted {
		note := fmt.Sprintf(" (conversion: %s %s -> %s %s)",
			currency.Format(debit.Decimal()), from.Code(), currency.Format(credit.Decimal()), to.Code())
		outDesc += note
		inDesc += note
	}
	r := Receipt{
		Debited:   debit,
		Credited:  credit,
		Converted: converted,
		Out:       l.record(src.acc.Number, ledger.KindTransferOut, debit, outDesc),
		In:        l.record(dst.acc.Number, ledger.KindTransferIn, credit, inDesc),
	}
	l.commit(ctx, func() {
		src.acc.Balance = srcBal
		dst.acc.Balance = dstBal
		l.appendTx(src.acc.Owner, r.Out)
		l.appendTx(dst.acc.Owner, r.In)
	})
	l.log.Info("transfer", "login", req.Login, "from", src.acc.Number, "to", dst.acc.Number,
		"debited", debit.Decimal().String(), "credited", credit.Decimal().String(), "converted", converted)
	return r, nil
}
