package dunning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mahnwerk/mahnwerk/internal/escalation"
	"github.com/mahnwerk/mahnwerk/internal/mail"
)

// ErrStageAlreadyRecorded indicates a dunning log row already exists for
// the (invoice, level) pair, typically because an overlapping sweep got
// there first.
var ErrStageAlreadyRecorded = errors.New("dunning: stage already recorded")

// RepositoryPort defines data access for the dunning engine.
type RepositoryPort interface {
	ListEnabledSettings(ctx context.Context) ([]Settings, error)
	GetSettings(ctx context.Context, organizationID int64) (*Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
	ListOpenInvoices(ctx context.Context, organizationID int64) ([]Invoice, error)
	GetTemplate(ctx context.Context, organizationID int64, level Level) (*Template, error)
	SaveTemplate(ctx context.Context, tpl Template) error
	AppendLog(ctx context.Context, invoiceID int64, level Level, surcharge decimal.Decimal) error
	UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error
}

// Service runs the dunning sweep.
type Service struct {
	repo      RepositoryPort
	mailer    mail.Sender
	templates *TemplateCache
	logger    *slog.Logger
}

// NewService builds a Service instance. The template cache is optional.
func NewService(repo RepositoryPort, mailer mail.Sender, templates *TemplateCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, mailer: mailer, templates: templates, logger: logger}
}

// SweepResult describes one fired stage.
type SweepResult struct {
	Invoice string `json:"invoice"`
	Action  Level  `json:"action"`
	Status  string `json:"status"`
}

// SweepSummary aggregates one full dunning run.
type SweepSummary struct {
	RunID     string        `json:"runId"`
	Processed int           `json:"processed"`
	Fired     int           `json:"fired"`
	Errors    int           `json:"errors"`
	Results   []SweepResult `json:"results"`
}

// RunSweep performs one stateless pass over all enabled organizations.
// Per-invoice failures are logged and counted but never abort the batch;
// only a failure to load the policy list fails the run as a whole.
func (s *Service) RunSweep(ctx context.Context, asOf time.Time) (*SweepSummary, error) {
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))
	logger.Info("dunning sweep started")

	allSettings, err := s.repo.ListEnabledSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("dunning: load settings: %w", err)
	}

	summary := &SweepSummary{RunID: runID, Results: []SweepResult{}}
	for _, cfg := range allSettings {
		invoices, err := s.repo.ListOpenInvoices(ctx, cfg.OrganizationID)
		if err != nil {
			logger.Error("list open invoices",
				slog.Int64("organization_id", cfg.OrganizationID), slog.Any("error", err))
			summary.Errors++
			continue
		}
		for _, inv := range invoices {
			summary.Processed++
			result, err := s.processInvoice(ctx, cfg, inv, asOf)
			if err != nil {
				logger.Error("process invoice",
					slog.String("invoice", inv.Number),
					slog.Int64("invoice_id", inv.ID),
					slog.Any("error", err))
				summary.Errors++
				continue
			}
			if result != nil {
				summary.Fired++
				summary.Results = append(summary.Results, *result)
			}
		}
	}

	logger.Info("dunning sweep finished",
		slog.Int("processed", summary.Processed),
		slog.Int("fired", summary.Fired),
		slog.Int("errors", summary.Errors))
	return summary, nil
}

// processInvoice walks one invoice through clock, resolver, accumulator
// and executor. It returns (nil, nil) when no stage is due.
func (s *Service) processInvoice(ctx context.Context, cfg Settings, inv Invoice, asOf time.Time) (result *SweepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("dunning: invoice %d: panic: %v", inv.ID, r)
		}
	}()

	if inv.Status == StatusPaid || inv.Status == StatusCancelled {
		return nil, nil
	}
	// Not overdue yet. The clock works on absolute differences, so this
	// guard must stay in front of it.
	if asOf.Before(inv.DueAt) {
		return nil, nil
	}

	elapsed := escalation.ElapsedUnits(inv.DueAt, asOf, escalation.ModeCalendar)
	stages := cfg.Stages()
	completed := inv.CompletedLevels()

	stage, ok := escalation.NextStage(stages, completed, elapsed)
	if !ok {
		return nil, nil
	}
	level := Level(stage.Name)
	if inv.CustomerEmail == "" {
		return nil, fmt.Errorf("dunning: invoice %s: no customer email", inv.Number)
	}

	surcharge := escalation.Accumulate(stages, completed, stage, inv.TotalGross)
	tpl := s.lookupTemplate(ctx, cfg.OrganizationID, level)
	subject, body := tpl.Render(escalation.Vars{
		"customer_name":     inv.CustomerName,
		"invoice_number":    inv.Number,
		"order_number":      orderNumberOrDash(inv.OrderNumber),
		"original_amount":   escalation.FormatAmount(inv.TotalGross, inv.Currency),
		"surcharge_amount":  escalation.FormatAmount(surcharge.Cumulative, inv.Currency),
		"total_open_amount": escalation.FormatAmount(surcharge.TotalOpen(inv.TotalGross), inv.Currency),
		"due_date":          escalation.FormatDate(inv.DueAt),
	})

	err = s.mailer.Send(ctx, mail.Message{
		To:      inv.CustomerEmail,
		Subject: subject,
		HTML:    escalation.HTMLBody(body),
	})
	if err != nil {
		// No log row is written, so the same stage is retried on the
		// next sweep.
		return nil, fmt.Errorf("dunning: invoice %s: send %s: %w", inv.Number, level, err)
	}

	if err := s.repo.AppendLog(ctx, inv.ID, level, surcharge.Incremental); err != nil {
		if errors.Is(err, ErrStageAlreadyRecorded) {
			// An overlapping sweep recorded the stage between our
			// resolver pass and now. The customer may have received the
			// notification twice; the log stays consistent.
			s.logger.Warn("stage recorded concurrently",
				slog.String("invoice", inv.Number), slog.String("level", string(level)))
			return nil, nil
		}
		// Worst case: the notification went out but is not recorded,
		// risking a duplicate on the next sweep. Accepted, documented
		// risk; there is no two-phase commit against the mail relay.
		return nil, fmt.Errorf("dunning: invoice %s: record %s: %w", inv.Number, level, err)
	}

	if inv.Status != StatusOverdue {
		if err := s.repo.UpdateInvoiceStatus(ctx, inv.ID, StatusOverdue); err != nil {
			s.logger.Warn("update invoice status",
				slog.String("invoice", inv.Number), slog.Any("error", err))
		}
	}

	s.logger.Info("dunning stage fired",
		slog.String("invoice", inv.Number),
		slog.String("level", string(level)),
		slog.Int("days_overdue", elapsed))
	return &SweepResult{Invoice: inv.Number, Action: level, Status: "Sent"}, nil
}

func (s *Service) lookupTemplate(ctx context.Context, organizationID int64, level Level) escalation.Template {
	var (
		row *Template
		err error
	)
	if s.templates != nil {
		row, err = s.templates.Fetch(ctx, organizationID, level, s.repo.GetTemplate)
	} else {
		row, err = s.repo.GetTemplate(ctx, organizationID, level)
	}
	if err != nil {
		// Configuration lookup failures never fail the run; the built-in
		// default still goes out.
		s.logger.Warn("template lookup",
			slog.Int64("organization_id", organizationID),
			slog.String("level", string(level)), slog.Any("error", err))
	}
	if row == nil {
		return templateText(DefaultTemplate(level))
	}
	return templateText(*row)
}

func templateText(t Template) escalation.Template {
	return escalation.Template{Subject: t.Subject, Body: t.Content}
}

func orderNumberOrDash(n string) string {
	if n == "" {
		return "-"
	}
	return n
}
