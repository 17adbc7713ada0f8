package escalation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSubstituteBothPlaceholderForms(t *testing.T) {
	vars := Vars{
		"customer_name":  "Erika Mustermann",
		"invoice_number": "RE-2025-0042",
	}

	got := Substitute("Hallo {{ customer_name }}, Rechnung {{invoice_number}} ist offen.", vars)
	require.Equal(t, "Hallo Erika Mustermann, Rechnung RE-2025-0042 ist offen.", got)
}

func TestSubstituteLeavesUnknownPlaceholders(t *testing.T) {
	got := Substitute("Betrag: {{ total_open_amount }} / {{ unknown_field }}", Vars{
		"total_open_amount": "105,00 €",
	})
	require.Equal(t, "Betrag: 105,00 € / {{ unknown_field }}", got)
}

func TestTemplateRender(t *testing.T) {
	tpl := Template{
		Subject: "1. Mahnung: Rechnung {{ invoice_number }}",
		Body:    "Hallo {{ customer_name }},\nbitte zahlen Sie {{ total_open_amount }}.",
	}
	subject, body := tpl.Render(Vars{
		"invoice_number":    "RE-1",
		"customer_name":     "Max",
		"total_open_amount": "111,00 €",
	})
	require.Equal(t, "1. Mahnung: Rechnung RE-1", subject)
	require.Equal(t, "Hallo Max,\nbitte zahlen Sie 111,00 €.", body)
}

func TestHTMLBody(t *testing.T) {
	require.Equal(t, "a<br/>b<br/>c", HTMLBody("a\nb\nc"))
}

func TestFormatAmountGerman(t *testing.T) {
	require.Equal(t, "105,00 €", FormatAmount(decimal.NewFromInt(105), "EUR"))
	require.Equal(t, "1.234,56 €", FormatAmount(decimal.RequireFromString("1234.56"), "EUR"))
	require.Equal(t, "12,00 SEK", FormatAmount(decimal.NewFromInt(12), "SEK"))
}

func TestFormatDateGerman(t *testing.T) {
	require.Equal(t, "05.03.2025", FormatDate(time.Date(2025, time.March, 5, 10, 0, 0, 0, time.UTC)))
}
