// Package dunning escalates overdue invoices through the staged German
// dunning process: payment reminder, first and second Mahnung, final
// notice. Each stage after the reminder adds a surcharge computed from
// the original gross amount.
package dunning

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mahnwerk/mahnwerk/internal/escalation"
)

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "DRAFT"
	StatusSent      InvoiceStatus = "SENT"
	StatusOverdue   InvoiceStatus = "OVERDUE"
	StatusPaid      InvoiceStatus = "PAID"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// Level names one dunning stage.
type Level string

const (
	LevelReminder Level = "REMINDER"
	LevelWarning1 Level = "WARNING1"
	LevelWarning2 Level = "WARNING2"
	LevelFinal    Level = "FINAL"
)

// Levels lists the stages in escalation order.
var Levels = []Level{LevelReminder, LevelWarning1, LevelWarning2, LevelFinal}

// ValidLevel reports whether the given name is a known dunning level.
func ValidLevel(name string) bool {
	for _, l := range Levels {
		if string(l) == name {
			return true
		}
	}
	return false
}

// Invoice model. TotalGross is immutable after creation; surcharges are
// derived from the dunning log, never written back to the invoice.
type Invoice struct {
	ID             int64
	OrganizationID int64
	Number         string
	OrderNumber    string
	CustomerName   string
	CustomerEmail  string
	Currency       string
	TotalGross     decimal.Decimal
	Status         InvoiceStatus
	DueAt          time.Time
	Logs           []Log
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CompletedLevels derives the set of already-fired stages from the log.
// The log is the only record of dunning progress; there is no "current
// stage" column to drift out of sync.
func (inv Invoice) CompletedLevels() escalation.CompletedSet {
	set := make(escalation.CompletedSet, len(inv.Logs))
	for _, l := range inv.Logs {
		set[string(l.Level)] = true
	}
	return set
}

// Log is one append-only dunning record. At most one row exists per
// (invoice, level); the unique constraint on that pair is the sole
// idempotency mechanism of the engine.
type Log struct {
	ID             int64
	InvoiceID      int64
	Level          Level
	SurchargeAdded decimal.Decimal
	FiredAt        time.Time
}

// Settings is the per-organization dunning policy. Day fields are
// offsets from the previous stage, not absolute thresholds.
type Settings struct {
	OrganizationID    int64
	Enabled           bool
	ReminderDays      int
	Warning1Days      int
	Warning2Days      int
	FinalDays         int
	Warning1Surcharge decimal.Decimal
	Warning2Surcharge decimal.Decimal
	FinalSurcharge    decimal.Decimal
	UpdatedAt         time.Time
}

// Stages maps the policy onto the ordered stage list consumed by the
// escalation core.
func (s Settings) Stages() []escalation.Stage {
	return []escalation.Stage{
		{Name: string(LevelReminder), OffsetDays: s.ReminderDays},
		{Name: string(LevelWarning1), OffsetDays: s.Warning1Days, SurchargePercent: s.Warning1Surcharge},
		{Name: string(LevelWarning2), OffsetDays: s.Warning2Days, SurchargePercent: s.Warning2Surcharge},
		{Name: string(LevelFinal), OffsetDays: s.FinalDays, SurchargePercent: s.FinalSurcharge},
	}
}

// Template is the per-organization notification text for one level.
// Absent templates fall back to the built-in German defaults.
type Template struct {
	OrganizationID int64
	Level          Level
	Subject        string
	Content        string
	UpdatedAt      time.Time
}
