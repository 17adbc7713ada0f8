// Package e2e exercises the HTTP surface end to end: real router, real
// middleware, real handlers and services, with in-memory persistence
// and a stubbed mail relay and shop platform.
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/mahnwerk/mahnwerk/internal/app"
	"github.com/mahnwerk/mahnwerk/internal/dunning"
	"github.com/mahnwerk/mahnwerk/internal/mail"
	"github.com/mahnwerk/mahnwerk/internal/observability"
	"github.com/mahnwerk/mahnwerk/internal/recovery"
)

type capturingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *capturingMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *capturingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type stubShop struct {
	mu        sync.Mutex
	cancelled []int64
}

func (s *stubShop) CancelOrder(ctx context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, orderID)
	return nil
}

type dunningStore struct {
	mu       sync.Mutex
	settings dunning.Settings
	invoices map[int64]dunning.Invoice
	logs     map[int64][]dunning.Log
}

func (s *dunningStore) ListEnabledSettings(ctx context.Context) ([]dunning.Settings, error) {
	return []dunning.Settings{s.settings}, nil
}

func (s *dunningStore) GetSettings(ctx context.Context, organizationID int64) (*dunning.Settings, error) {
	copied := s.settings
	return &copied, nil
}

func (s *dunningStore) SaveSettings(ctx context.Context, settings dunning.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *dunningStore) ListOpenInvoices(ctx context.Context, organizationID int64) ([]dunning.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dunning.Invoice
	for _, inv := range s.invoices {
		if inv.Status == dunning.StatusSent || inv.Status == dunning.StatusOverdue {
			inv.Logs = append([]dunning.Log(nil), s.logs[inv.ID]...)
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *dunningStore) GetTemplate(ctx context.Context, organizationID int64, level dunning.Level) (*dunning.Template, error) {
	return nil, nil
}

func (s *dunningStore) SaveTemplate(ctx context.Context, tpl dunning.Template) error {
	return nil
}

func (s *dunningStore) AppendLog(ctx context.Context, invoiceID int64, level dunning.Level, surcharge decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs[invoiceID] {
		if l.Level == level {
			return dunning.ErrStageAlreadyRecorded
		}
	}
	s.logs[invoiceID] = append(s.logs[invoiceID], dunning.Log{InvoiceID: invoiceID, Level: level, SurchargeAdded: surcharge, FiredAt: time.Now()})
	return nil
}

func (s *dunningStore) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status dunning.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := s.invoices[invoiceID]
	inv.Status = status
	s.invoices[invoiceID] = inv
	return nil
}

type recoveryStore struct {
	mu     sync.Mutex
	orders map[int64]recovery.Order
	logs   map[int64][]recovery.Log
}

func (s *recoveryStore) ListOrganizations(ctx context.Context) ([]recovery.Organization, error) {
	return []recovery.Organization{{ID: 1, Name: "Musterladen GmbH"}}, nil
}

func (s *recoveryStore) GetSettings(ctx context.Context, organizationID int64, kind recovery.MethodKind) (*recovery.Settings, error) {
	return nil, nil // fall back to defaults
}

func (s *recoveryStore) SaveSettings(ctx context.Context, settings recovery.Settings) error {
	return nil
}

func (s *recoveryStore) ListPendingOrders(ctx context.Context, organizationID int64) ([]recovery.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recovery.Order
	for _, o := range s.orders {
		if o.Status == recovery.StatusPending {
			o.Logs = append([]recovery.Log(nil), s.logs[o.ID]...)
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *recoveryStore) AppendLog(ctx context.Context, orderID int64, level recovery.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs[orderID] {
		if l.Level == level {
			return recovery.ErrStageAlreadyRecorded
		}
	}
	s.logs[orderID] = append(s.logs[orderID], recovery.Log{OrderID: orderID, Level: level, FiredAt: time.Now()})
	return nil
}

func (s *recoveryStore) UpdateOrderStatus(ctx context.Context, orderID int64, status recovery.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[orderID]
	o.Status = status
	s.orders[orderID] = o
	return nil
}

func newTestServer(t *testing.T, mailer *capturingMailer, invoices *dunningStore, orders *recoveryStore) *httptest.Server {
	t.Helper()

	logger := app.NewLogger(nil)
	dunningService := dunning.NewService(invoices, mailer, nil, logger)
	dunningHandler := dunning.NewHandler(logger, dunningService, invoices, nil)

	recoveryService := recovery.NewService(orders, mailer, &stubShop{}, logger)
	recoveryHandler := recovery.NewHandler(logger, recoveryService, orders)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          &app.Config{AppRequestTimeout: 30 * time.Second},
		DunningHandler:  dunningHandler,
		RecoveryHandler: recoveryHandler,
		Metrics:         observability.NewMetrics(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestCronDunningEndToEnd(t *testing.T) {
	mailer := &capturingMailer{}
	store := &dunningStore{
		settings: dunning.DefaultSettings(1),
		invoices: map[int64]dunning.Invoice{
			1: {
				ID:             1,
				OrganizationID: 1,
				Number:         "RE-2025-0042",
				CustomerName:   "Erika Mustermann",
				CustomerEmail:  "erika@example.de",
				Currency:       "EUR",
				TotalGross:     decimal.NewFromInt(250),
				Status:         dunning.StatusSent,
				DueAt:          time.Now().AddDate(0, 0, -6),
			},
		},
		logs: map[int64][]dunning.Log{},
	}
	srv := newTestServer(t, mailer, store, &recoveryStore{orders: map[int64]recovery.Order{}, logs: map[int64][]recovery.Log{}})

	resp, err := http.Get(srv.URL + "/cron/dunning")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Success   bool            `json:"success"`
		RunID     string          `json:"runId"`
		Processed json.RawMessage `json:"processed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.NotEmpty(t, envelope.RunID)

	require.Equal(t, 1, mailer.count())
	require.Len(t, store.logs[1], 1)
	require.Equal(t, dunning.LevelReminder, store.logs[1][0].Level)
	require.Equal(t, dunning.StatusOverdue, store.invoices[1].Status)
}

func TestCronPaymentRemindersEndToEnd(t *testing.T) {
	mailer := &capturingMailer{}
	orders := &recoveryStore{
		orders: map[int64]recovery.Order{
			7: {
				ID:              7,
				OrganizationID:  1,
				ShopifyOrderID:  450789469,
				Number:          "#1042",
				CustomerName:    "Max Mustermann",
				CustomerEmail:   "max@example.de",
				Currency:        "EUR",
				TotalGross:      decimal.NewFromInt(80),
				Status:          recovery.StatusPending,
				PaymentGateways: []string{"Vorkasse"},
				PlacedAt:        time.Now().AddDate(0, 0, -8),
			},
		},
		logs: map[int64][]recovery.Log{},
	}
	srv := newTestServer(t, mailer, &dunningStore{settings: dunning.DefaultSettings(1), invoices: map[int64]dunning.Invoice{}, logs: map[int64][]dunning.Log{}}, orders)

	resp, err := http.Get(srv.URL + "/cron/payment-reminders")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope struct {
		Success bool                  `json:"success"`
		Summary recovery.SweepSummary `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.Equal(t, 1, envelope.Summary.Processed)
	require.Equal(t, 1, envelope.Summary.RemindersSent)
	require.Equal(t, 1, mailer.count())
	require.Len(t, orders.logs[7], 1)
	require.Equal(t, recovery.LevelReminder1, orders.logs[7][0].Level)
}

func TestHealthzAndMetrics(t *testing.T) {
	srv := newTestServer(t, &capturingMailer{},
		&dunningStore{settings: dunning.DefaultSettings(1), invoices: map[int64]dunning.Invoice{}, logs: map[int64][]dunning.Log{}},
		&recoveryStore{orders: map[int64]recovery.Order{}, logs: map[int64][]recovery.Log{}})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
