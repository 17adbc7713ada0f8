package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for order recovery.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOrganizations returns every organization, in stable order.
func (r *Repository) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("recovery: list organizations: %w", err)
	}
	defer rows.Close()

	var out []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, fmt.Errorf("recovery: scan organization: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetSettings returns one organization's policy for a payment method,
// or nil when none is configured.
func (r *Repository) GetSettings(ctx context.Context, organizationID int64, kind MethodKind) (*Settings, error) {
	const query = `
		SELECT organization_id, kind, enabled,
		       reminder1_days, reminder2_days, cancellation_days,
		       reminder1_subject, reminder1_text, reminder2_subject, reminder2_text,
		       cancellation_subject, cancellation_text, updated_at
		FROM recovery_settings
		WHERE organization_id = $1 AND kind = $2`

	var s Settings
	err := r.pool.QueryRow(ctx, query, organizationID, kind).Scan(&s.OrganizationID, &s.Kind,
		&s.Enabled, &s.Reminder1Days, &s.Reminder2Days, &s.CancellationDays,
		&s.Reminder1Subject, &s.Reminder1Text, &s.Reminder2Subject, &s.Reminder2Text,
		&s.CancellationSubject, &s.CancellationText, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recovery: get settings: %w", err)
	}
	return &s, nil
}

// SaveSettings upserts one organization's policy for a payment method.
func (r *Repository) SaveSettings(ctx context.Context, s Settings) error {
	const query = `
		INSERT INTO recovery_settings (
			organization_id, kind, enabled,
			reminder1_days, reminder2_days, cancellation_days,
			reminder1_subject, reminder1_text, reminder2_subject, reminder2_text,
			cancellation_subject, cancellation_text, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (organization_id, kind) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			reminder1_days = EXCLUDED.reminder1_days,
			reminder2_days = EXCLUDED.reminder2_days,
			cancellation_days = EXCLUDED.cancellation_days,
			reminder1_subject = EXCLUDED.reminder1_subject,
			reminder1_text = EXCLUDED.reminder1_text,
			reminder2_subject = EXCLUDED.reminder2_subject,
			reminder2_text = EXCLUDED.reminder2_text,
			cancellation_subject = EXCLUDED.cancellation_subject,
			cancellation_text = EXCLUDED.cancellation_text,
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, s.OrganizationID, s.Kind, s.Enabled,
		s.Reminder1Days, s.Reminder2Days, s.CancellationDays,
		s.Reminder1Subject, s.Reminder1Text, s.Reminder2Subject, s.Reminder2Text,
		s.CancellationSubject, s.CancellationText)
	if err != nil {
		return fmt.Errorf("recovery: save settings: %w", err)
	}
	return nil
}

// ListPendingOrders returns the organization's unpaid orders with their
// recovery logs preloaded.
func (r *Repository) ListPendingOrders(ctx context.Context, organizationID int64) ([]Order, error) {
	const query = `
		SELECT id, organization_id, shopify_order_id, number,
		       customer_name, COALESCE(customer_email, ''), currency, total_gross,
		       status, payment_gateways, placed_at, created_at, updated_at
		FROM orders
		WHERE organization_id = $1 AND status = 'PENDING'
		ORDER BY placed_at, id`

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("recovery: list pending orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	ids := make([]int64, 0, 16)
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrganizationID, &o.ShopifyOrderID, &o.Number,
			&o.CustomerName, &o.CustomerEmail, &o.Currency, &o.TotalGross,
			&o.Status, &o.PaymentGateways, &o.PlacedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("recovery: scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	logs, err := r.listLogs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Logs = logs[orders[i].ID]
	}
	return orders, nil
}

func (r *Repository) listLogs(ctx context.Context, orderIDs []int64) (map[int64][]Log, error) {
	const query = `
		SELECT id, order_id, level, fired_at
		FROM recovery_logs
		WHERE order_id = ANY($1)
		ORDER BY fired_at, id`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("recovery: list logs: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]Log)
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Level, &l.FiredAt); err != nil {
			return nil, fmt.Errorf("recovery: scan log: %w", err)
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

// AppendLog records one fired stage. The unique index on
// (order_id, level) is the idempotency barrier; duplicate inserts
// surface as ErrStageAlreadyRecorded.
func (r *Repository) AppendLog(ctx context.Context, orderID int64, level Level) error {
	const query = `
		INSERT INTO recovery_logs (order_id, level, fired_at)
		VALUES ($1, $2, $3)`

	_, err := r.pool.Exec(ctx, query, orderID, level, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrStageAlreadyRecorded
		}
		return fmt.Errorf("recovery: append log: %w", err)
	}
	return nil
}

// UpdateOrderStatus sets the order lifecycle status.
func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
		orderID, status); err != nil {
		return fmt.Errorf("recovery: update order status: %w", err)
	}
	return nil
}
