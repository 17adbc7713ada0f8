package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mahnwerk/mahnwerk/internal/commerce"
	"github.com/mahnwerk/mahnwerk/internal/escalation"
	"github.com/mahnwerk/mahnwerk/internal/mail"
)

// ErrStageAlreadyRecorded indicates a recovery log row already exists
// for the (order, level) pair.
var ErrStageAlreadyRecorded = errors.New("recovery: stage already recorded")

// RepositoryPort defines data access for the recovery engine.
type RepositoryPort interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	GetSettings(ctx context.Context, organizationID int64, kind MethodKind) (*Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
	ListPendingOrders(ctx context.Context, organizationID int64) ([]Order, error)
	AppendLog(ctx context.Context, orderID int64, level Level) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error
}

// Service runs the payment-reminder sweep.
type Service struct {
	repo   RepositoryPort
	mailer mail.Sender
	shop   commerce.OrderCanceller
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, mailer mail.Sender, shop commerce.OrderCanceller, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, mailer: mailer, shop: shop, logger: logger}
}

// SweepSummary aggregates one full recovery run.
type SweepSummary struct {
	RunID         string `json:"runId"`
	Processed     int    `json:"processed"`
	RemindersSent int    `json:"remindersSent"`
	Cancellations int    `json:"cancellations"`
	Errors        int    `json:"errors"`
}

// RunSweep performs one stateless pass over all organizations' pending
// orders. Per-order failures are counted and logged, never fatal.
func (s *Service) RunSweep(ctx context.Context, asOf time.Time) (*SweepSummary, error) {
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))
	logger.Info("payment-reminder sweep started")

	orgs, err := s.repo.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("recovery: load organizations: %w", err)
	}

	summary := &SweepSummary{RunID: runID}
	for _, org := range orgs {
		settingsByKind, err := s.loadSettings(ctx, org.ID)
		if err != nil {
			logger.Error("load recovery settings", slog.Int64("organization_id", org.ID), slog.Any("error", err))
			summary.Errors++
			continue
		}
		orders, err := s.repo.ListPendingOrders(ctx, org.ID)
		if err != nil {
			logger.Error("list pending orders", slog.Int64("organization_id", org.ID), slog.Any("error", err))
			summary.Errors++
			continue
		}
		for _, order := range orders {
			summary.Processed++
			fired, cancelled, err := s.processOrder(ctx, org, settingsByKind, order, asOf)
			if err != nil {
				logger.Error("process order",
					slog.String("order", order.Number),
					slog.Int64("order_id", order.ID),
					slog.Any("error", err))
				summary.Errors++
				continue
			}
			if cancelled {
				summary.Cancellations++
			} else if fired {
				summary.RemindersSent++
			}
		}
	}

	logger.Info("payment-reminder sweep finished",
		slog.Int("processed", summary.Processed),
		slog.Int("reminders", summary.RemindersSent),
		slog.Int("cancellations", summary.Cancellations),
		slog.Int("errors", summary.Errors))
	return summary, nil
}

// loadSettings resolves both method policies for an organization,
// falling back to the built-in defaults when no row exists. A missing
// configuration never fails the run.
func (s *Service) loadSettings(ctx context.Context, organizationID int64) (map[MethodKind]Settings, error) {
	out := make(map[MethodKind]Settings, 2)
	for _, kind := range []MethodKind{KindVorkasse, KindRechnung} {
		row, err := s.repo.GetSettings(ctx, organizationID, kind)
		if err != nil {
			return nil, err
		}
		if row == nil {
			out[kind] = DefaultSettings(organizationID, kind)
		} else {
			out[kind] = *row
		}
	}
	return out, nil
}

// processOrder walks one order through the engine. The returned flags
// report whether a reminder was sent or the order was cancelled.
func (s *Service) processOrder(ctx context.Context, org Organization, settingsByKind map[MethodKind]Settings, order Order, asOf time.Time) (fired, cancelled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			fired, cancelled = false, false
			err = fmt.Errorf("recovery: order %d: panic: %v", order.ID, r)
		}
	}()

	if order.Status != StatusPending {
		return false, false, nil
	}
	kind, ok := MatchGateways(order.PaymentGateways)
	if !ok {
		return false, false, nil
	}
	cfg := settingsByKind[kind]
	if !cfg.Enabled {
		return false, false, nil
	}
	if asOf.Before(order.PlacedAt) {
		return false, false, nil
	}

	elapsed := escalation.ElapsedUnits(order.PlacedAt, asOf, escalation.ModeBusiness)
	stages := cfg.Stages()
	completed := order.CompletedLevels()

	stage, ok := escalation.NextStage(stages, completed, elapsed)
	if !ok {
		return false, false, nil
	}
	level := Level(stage.Name)
	if order.CustomerEmail == "" {
		s.logger.Info("order has no customer email, skipping",
			slog.String("order", order.Number), slog.Int64("order_id", order.ID))
		return false, false, nil
	}

	surcharge := escalation.Accumulate(stages, completed, stage, order.TotalGross)
	vars := escalation.Vars{
		"customer_name":     order.CustomerName,
		"order_number":      order.Number,
		"original_amount":   escalation.FormatAmount(order.TotalGross, order.Currency),
		"total_open_amount": escalation.FormatAmount(surcharge.TotalOpen(order.TotalGross), order.Currency),
	}

	if stage.IsTerminalAction {
		if err := s.cancelOrder(ctx, org, cfg, order, vars); err != nil {
			return false, false, err
		}
		return false, true, nil
	}

	msg := s.reminderMessage(cfg, order, level, vars)
	if err := s.mailer.Send(ctx, msg); err != nil {
		// No log row, so the same reminder is retried next sweep.
		return false, false, fmt.Errorf("recovery: order %s: send %s: %w", order.Number, level, err)
	}
	if err := s.repo.AppendLog(ctx, order.ID, level); err != nil {
		if errors.Is(err, ErrStageAlreadyRecorded) {
			s.logger.Warn("stage recorded concurrently",
				slog.String("order", order.Number), slog.String("level", string(level)))
			return false, false, nil
		}
		return false, false, fmt.Errorf("recovery: order %s: record %s: %w", order.Number, level, err)
	}

	s.logger.Info("payment reminder sent",
		slog.String("order", order.Number),
		slog.String("level", string(level)),
		slog.Int("business_days", elapsed))
	return true, false, nil
}

// cancelOrder performs the terminal stage: upstream cancellation first,
// then the status transition, then the customer notification and the
// log row. A failed upstream call leaves everything untouched so the
// next sweep retries; the upstream side treats repeated cancellation as
// idempotent.
func (s *Service) cancelOrder(ctx context.Context, org Organization, cfg Settings, order Order, vars escalation.Vars) error {
	if err := s.shop.CancelOrder(ctx, order.ShopifyOrderID); err != nil {
		return fmt.Errorf("recovery: order %s: cancel upstream: %w", order.Number, err)
	}
	if err := s.repo.UpdateOrderStatus(ctx, order.ID, StatusCancelled); err != nil {
		s.logger.Warn("update order status", slog.String("order", order.Number), slog.Any("error", err))
	}

	subject := escalation.Substitute(cfg.CancellationSubject, vars)
	body := escalation.Substitute(cfg.CancellationText, vars)
	html := "<p>Sehr geehrte Kundin, sehr geehrter Kunde,</p>" +
		"<p>" + escalation.HTMLBody(body) + "</p>" +
		"<p>Mit freundlichen Grüßen<br>" + org.Name + "</p>"
	if err := s.mailer.Send(ctx, mail.Message{To: order.CustomerEmail, Subject: subject, HTML: html}); err != nil {
		// The order is already cancelled upstream; the notification is
		// best effort. CANCELLED status excludes the order from future
		// sweeps either way.
		s.logger.Warn("send cancellation notification",
			slog.String("order", order.Number), slog.Any("error", err))
		return nil
	}
	if err := s.repo.AppendLog(ctx, order.ID, LevelCancel); err != nil && !errors.Is(err, ErrStageAlreadyRecorded) {
		s.logger.Warn("record cancellation",
			slog.String("order", order.Number), slog.Any("error", err))
	}

	s.logger.Info("order cancelled",
		slog.String("order", order.Number),
		slog.Int64("shopify_order_id", order.ShopifyOrderID))
	return nil
}

// reminderMessage renders the first or second reminder. The second one
// always carries the cancellation warning so customers are never
// cancelled unannounced.
func (s *Service) reminderMessage(cfg Settings, order Order, level Level, vars escalation.Vars) mail.Message {
	subject, text := cfg.Reminder1Subject, cfg.Reminder1Text
	if level == LevelReminder2 {
		subject, text = cfg.Reminder2Subject, cfg.Reminder2Text
	}
	subject = escalation.Substitute(subject, vars)
	body := escalation.Substitute(text, vars)
	html := "<p>" + escalation.HTMLBody(body) + "</p>"
	if level == LevelReminder2 {
		html += "<p><strong>" + cancellationWarning + "</strong></p>"
	}
	return mail.Message{To: order.CustomerEmail, Subject: subject, HTML: html}
}
