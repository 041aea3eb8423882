// Package currency implements conversion between the marketplace currencies
// through a common USD base. Conversion is deliberately fail-open: a missing
// rate degrades to parity instead of failing, so a stale or partial rate
// table never breaks aggregation.
package currency

import (
	"strconv"
	"strings"

	"github.com/julioberne/mercadosocial/internal/domain/model"
)

// RateTable maps a currency code to the quantity of that currency equal to
// 1 USD. Invariant: rates[USD] == 1.
type RateTable map[model.CurrencyCode]float64

// Fallback is the static table used before the first successful rate fetch
// and whenever the rate source is unavailable.
func Fallback() RateTable {
	return RateTable{
		model.USD: 1,
		model.COP: 4000,
		model.MXN: 18,
	}
}

// Clone returns an independent copy of the table.
func (t RateTable) Clone() RateTable {
	out := make(RateTable, len(t))
	for code, rate := range t {
		out[code] = rate
	}
	return out
}

// Convert converts amount from one currency to another via USD.
// Identity conversions return the amount untouched to avoid rounding noise.
// A missing or zero rate is treated as parity (factor 1).
func Convert(amount float64, from, to model.CurrencyCode, rates RateTable) float64 {
	if from == to {
		return amount
	}
	fromRate := rates[from]
	if fromRate == 0 {
		fromRate = 1
	}
	toRate := rates[to]
	if toRate == 0 {
		toRate = 1
	}
	return amount / fromRate * toRate
}

// ConvertMoney converts a Money value into the given display currency.
func ConvertMoney(m model.Money, to model.CurrencyCode, rates RateTable) float64 {
	return Convert(m.Amount, m.Currency, to, rates)
}

// Option carries display metadata for a currency selector.
type Option struct {
	Code   model.CurrencyCode `json:"code"`
	Symbol string             `json:"symbol"`
	Label  string             `json:"label"`
}

// Options lists the selectable currencies in presentation order.
func Options() []Option {
	return []Option{
		{Code: model.USD, Symbol: "$", Label: "Dólar (USD)"},
		{Code: model.COP, Symbol: "$", Label: "Peso Col (COP)"},
		{Code: model.MXN, Symbol: "$", Label: "Peso Mex (MXN)"},
	}
}

// FormatInput groups a raw digit string with thousand separators for live
// form feedback. Non-digits are stripped; input is capped at 15 digits.
func FormatInput(val string) string {
	var digits strings.Builder
	for _, r := range val {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	s := digits.String()
	if len(s) > 15 {
		s = s[:15]
	}
	if s == "" {
		return ""
	}
	var out strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out.WriteByte('.')
		}
		out.WriteRune(r)
	}
	return out.String()
}

// Unformat parses a grouped input string back into a number.
func Unformat(val string) float64 {
	if val == "" || val == "-" {
		return 0
	}
	clean := strings.ReplaceAll(val, ".", "")
	n, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return n
}
