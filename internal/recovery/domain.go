// Package recovery escalates unpaid Vorkasse and Rechnung orders:
// two payment reminders counted in business days, then automatic
// cancellation against the upstream shop platform.
package recovery

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mahnwerk/mahnwerk/internal/escalation"
)

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusPaid      OrderStatus = "PAID"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Level names one recovery stage.
type Level string

const (
	LevelReminder1 Level = "REMINDER1"
	LevelReminder2 Level = "REMINDER2"
	LevelCancel    Level = "CANCEL"
)

// MethodKind distinguishes the two payment methods with their own
// policy rows.
type MethodKind string

const (
	KindVorkasse MethodKind = "VORKASSE"
	KindRechnung MethodKind = "RECHNUNG"
)

// MatchGateways maps an order's payment gateway names onto the policy
// kind governing it. Orders paid through anything else (card, PayPal)
// are not recovered here and report ok=false. Manually created orders
// often carry no gateway at all; those default to Vorkasse.
func MatchGateways(gateways []string) (MethodKind, bool) {
	joined := strings.ToLower(strings.Join(gateways, " "))
	switch {
	case strings.Contains(joined, "vorkasse"),
		strings.Contains(joined, "bank"),
		strings.Contains(joined, "transfer"):
		return KindVorkasse, true
	case strings.Contains(joined, "rechnung"),
		strings.Contains(joined, "invoice"):
		return KindRechnung, true
	case strings.TrimSpace(joined) == "":
		return KindVorkasse, true
	default:
		return "", false
	}
}

// Order model. PlacedAt is the upstream creation timestamp; the
// business-day clock runs from it.
type Order struct {
	ID              int64
	OrganizationID  int64
	ShopifyOrderID  int64
	Number          string
	CustomerName    string
	CustomerEmail   string
	Currency        string
	TotalGross      decimal.Decimal
	Status          OrderStatus
	PaymentGateways []string
	PlacedAt        time.Time
	Logs            []Log
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CompletedLevels derives the fired-stage set from the recovery log.
func (o Order) CompletedLevels() escalation.CompletedSet {
	set := make(escalation.CompletedSet, len(o.Logs))
	for _, l := range o.Logs {
		set[string(l.Level)] = true
	}
	return set
}

// Log is one append-only recovery record, unique per (order, level).
type Log struct {
	ID      int64
	OrderID int64
	Level   Level
	FiredAt time.Time
}

// Organization is the slim projection the sweep needs.
type Organization struct {
	ID   int64
	Name string
}

// Settings is the per-organization, per-method recovery policy. Unlike
// the dunning policy its day fields are absolute business-day
// thresholds, matching how merchants configure them ("cancel after 14
// days"), and are converted to offsets when building the stage list.
type Settings struct {
	OrganizationID      int64
	Kind                MethodKind
	Enabled             bool
	Reminder1Days       int
	Reminder2Days       int
	CancellationDays    int
	Reminder1Subject    string
	Reminder1Text       string
	Reminder2Subject    string
	Reminder2Text       string
	CancellationSubject string
	CancellationText    string
	UpdatedAt           time.Time
}

// Stages converts the absolute thresholds into the offset-based stage
// list the escalation core consumes. Misordered thresholds collapse to
// zero offsets rather than going negative.
func (s Settings) Stages() []escalation.Stage {
	offset2 := s.Reminder2Days - s.Reminder1Days
	if offset2 < 0 {
		offset2 = 0
	}
	offsetCancel := s.CancellationDays - s.Reminder2Days
	if offsetCancel < 0 {
		offsetCancel = 0
	}
	return []escalation.Stage{
		{Name: string(LevelReminder1), OffsetDays: s.Reminder1Days},
		{Name: string(LevelReminder2), OffsetDays: offset2},
		{Name: string(LevelCancel), OffsetDays: offsetCancel, IsTerminalAction: true},
	}
}
