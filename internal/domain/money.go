package domain

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatAmount renders an amount in the currency's display format
// (e.g. "$1,234.50"). Unknown currencies fall back to "1234.50 XYZ".
func FormatAmount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		if currency == "" {
			return amount.StringFixed(2)
		}
		return amount.StringFixed(2) + " " + currency
	}

	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}
