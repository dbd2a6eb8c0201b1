// Package currency holds the fixed exchange-rate table. Rates are expressed
// in RUB per unit of currency and never change at runtime.
package currency

import (
	"strings"

	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/bankledger/internal/errs"
)

// Base is the bridge currency every conversion goes through.
const Base = money.RUB

// Scale is the number of fractional digits kept on converted amounts.
const Scale = 2

var (
	supported = []money.Currency{money.RUB, money.USD, money.EUR}
	rates     = map[money.Currency]decimal.Decimal{
		money.RUB: decimal.MustNew(1, 0),
		money.USD: decimal.MustNew(100, 0),
		money.EUR: decimal.MustNew(110, 0),
	}
)

// Currencies returns the supported currencies in a stable order.
func Currencies() []money.Currency {
	out := make([]money.Currency, len(supported))
	copy(out, supported)
	return out
}

// Parse normalizes code (trim + upper case) and resolves it to a supported currency.
func Parse(code string) (money.Currency, error) {
	norm := strings.ToUpper(strings.TrimSpace(code))
	for _, c := range supported {
		if c.Code() == norm {
			return c, nil
		}
	}
	var none money.Currency
	return none, errs.Newf(errs.ErrInvalidCurrency, "invalid currency %q, allowed values: RUB, USD, EUR", code)
}

// IsSupported reports whether code names a currency in the table. The check
// is exact; callers normalize first when they accept user input.
func IsSupported(code string) bool {
	for _, c := range supported {
		if c.Code() == code {
			return true
		}
	}
	return false
}

// Rate returns the RUB value of one unit of c.
func Rate(c money.Currency) (decimal.Decimal, bool) {
	r, ok := rates[c]
	return r, ok
}

// Convert bridges amount from one currency to another through RUB:
// amount*rate(from)/rate(to), rounded to Scale digits.
func Convert(amount decimal.Decimal, from, to money.Currency) (decimal.Decimal, error) {
	rf, ok := rates[from]
	if !ok {
		return decimal.Decimal{}, errs.Newf(errs.ErrUnsupportedCurrency, "currency %s is not supported for conversion", from.Code())
	}
	rt, ok := rates[to]
	if !ok {
		return decimal.Decimal{}, errs.Newf(errs.ErrUnsupportedCurrency, "currency %s is not supported for conversion", to.Code())
	}
	if from == to {
		return amount, nil
	}
	inBase, err := amount.Mul(rf)
	if err != nil {
		return decimal.Decimal{}, err
	}
	out, err := inBase.Quo(rt)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return out.Round(Scale), nil
}

// ConvertAmount converts a money amount into the target currency.
func ConvertAmount(a money.Amount, to money.Currency) (money.Amount, error) {
	d, err := Convert(a.Decimal(), a.Curr(), to)
	if err != nil {
		return money.Amount{}, err
	}
	return money.NewAmountFromDecimal(to, d)
}

// Format renders d with exactly Scale fractional digits, e.g. "200.00".
func Format(d decimal.Decimal) string {
	return d.Round(Scale).Pad(Scale).String()
}
