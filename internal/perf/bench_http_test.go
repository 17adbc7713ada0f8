package perf

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mahnwerk/mahnwerk/internal/dunning"
	"github.com/mahnwerk/mahnwerk/internal/escalation"
)

// The per-invoice escalation work (stage resolution, surcharge math,
// template rendering) runs once per open invoice per sweep; with tens
// of thousands of invoices it has to stay well under a millisecond.
func TestEscalationCoreLatencyTargets(t *testing.T) {
	settings := dunning.DefaultSettings(1)
	stages := settings.Stages()
	amount := decimal.NewFromFloat(1234.56)
	tpl := dunning.DefaultTemplate(dunning.LevelWarning1)
	dueAt := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	const iterations = 5000
	samples := make([]time.Duration, 0, iterations)
	for i := 0; i < iterations; i++ {
		start := time.Now()

		completed := escalation.CompletedSet{string(dunning.LevelReminder): true}
		elapsed := escalation.ElapsedUnits(dueAt, dueAt.AddDate(0, 0, 8), escalation.ModeCalendar)
		stage, ok := escalation.NextStage(stages, completed, elapsed)
		if !ok {
			t.Fatal("expected a stage to fire")
		}
		surcharge := escalation.Accumulate(stages, completed, stage, amount)
		vars := escalation.Vars{
			"customer_name":     "Erika Mustermann",
			"invoice_number":    fmt.Sprintf("RE-2025-%04d", i),
			"original_amount":   escalation.FormatAmount(amount, "EUR"),
			"surcharge_amount":  escalation.FormatAmount(surcharge.Cumulative, "EUR"),
			"total_open_amount": escalation.FormatAmount(surcharge.TotalOpen(amount), "EUR"),
			"due_date":          escalation.FormatDate(dueAt),
		}
		subject, body := escalation.Template{Subject: tpl.Subject, Body: tpl.Content}.Render(vars)
		if subject == "" || body == "" {
			t.Fatal("rendered template must not be empty")
		}

		samples = append(samples, time.Since(start))
	}

	p95 := percentile95(samples)
	if p95 > time.Millisecond {
		t.Fatalf("per-invoice latency regression: p95=%s threshold=1ms", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
