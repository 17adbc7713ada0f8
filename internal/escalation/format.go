package escalation

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// The customer-facing notifications are German; amounts and dates follow
// de-DE conventions regardless of the server locale.
var german = message.NewPrinter(language.German)

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"CHF": "CHF",
}

// FormatAmount renders a monetary amount the way de-DE currency
// formatting does, e.g. "1.234,56 €". Unknown currencies fall back to
// their ISO code.
func FormatAmount(amount decimal.Decimal, currency string) string {
	value, _ := amount.Round(2).Float64()
	formatted := german.Sprint(number.Decimal(value,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = currency
	}
	return formatted + " " + symbol
}

// FormatDate renders a date in German day.month.year order.
func FormatDate(t time.Time) string {
	return t.Format("02.01.2006")
}
