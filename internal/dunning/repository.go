package dunning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides PostgreSQL backed persistence for dunning.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListEnabledSettings returns every organization's policy with dunning
// switched on.
func (r *Repository) ListEnabledSettings(ctx context.Context) ([]Settings, error) {
	const query = `
		SELECT organization_id, enabled, reminder_days, warning1_days, warning2_days, final_days,
		       warning1_surcharge, warning2_surcharge, final_surcharge, updated_at
		FROM dunning_settings
		WHERE enabled = TRUE
		ORDER BY organization_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dunning: list settings: %w", err)
	}
	defer rows.Close()

	var out []Settings
	for rows.Next() {
		var s Settings
		if err := rows.Scan(&s.OrganizationID, &s.Enabled, &s.ReminderDays, &s.Warning1Days,
			&s.Warning2Days, &s.FinalDays, &s.Warning1Surcharge, &s.Warning2Surcharge,
			&s.FinalSurcharge, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("dunning: scan settings: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSettings returns one organization's policy, or nil when none is
// configured.
func (r *Repository) GetSettings(ctx context.Context, organizationID int64) (*Settings, error) {
	const query = `
		SELECT organization_id, enabled, reminder_days, warning1_days, warning2_days, final_days,
		       warning1_surcharge, warning2_surcharge, final_surcharge, updated_at
		FROM dunning_settings
		WHERE organization_id = $1`

	var s Settings
	err := r.pool.QueryRow(ctx, query, organizationID).Scan(&s.OrganizationID, &s.Enabled,
		&s.ReminderDays, &s.Warning1Days, &s.Warning2Days, &s.FinalDays,
		&s.Warning1Surcharge, &s.Warning2Surcharge, &s.FinalSurcharge, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dunning: get settings: %w", err)
	}
	return &s, nil
}

// SaveSettings upserts one organization's policy.
func (r *Repository) SaveSettings(ctx context.Context, s Settings) error {
	const query = `
		INSERT INTO dunning_settings (
			organization_id, enabled, reminder_days, warning1_days, warning2_days, final_days,
			warning1_surcharge, warning2_surcharge, final_surcharge, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (organization_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			reminder_days = EXCLUDED.reminder_days,
			warning1_days = EXCLUDED.warning1_days,
			warning2_days = EXCLUDED.warning2_days,
			final_days = EXCLUDED.final_days,
			warning1_surcharge = EXCLUDED.warning1_surcharge,
			warning2_surcharge = EXCLUDED.warning2_surcharge,
			final_surcharge = EXCLUDED.final_surcharge,
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, s.OrganizationID, s.Enabled, s.ReminderDays,
		s.Warning1Days, s.Warning2Days, s.FinalDays,
		s.Warning1Surcharge, s.Warning2Surcharge, s.FinalSurcharge)
	if err != nil {
		return fmt.Errorf("dunning: save settings: %w", err)
	}
	return nil
}

// ListOpenInvoices returns the organization's SENT/OVERDUE invoices with
// a positive amount, dunning logs preloaded.
func (r *Repository) ListOpenInvoices(ctx context.Context, organizationID int64) ([]Invoice, error) {
	const query = `
		SELECT id, organization_id, number, COALESCE(order_number, ''),
		       customer_name, COALESCE(customer_email, ''), currency, total_gross,
		       status, due_at, created_at, updated_at
		FROM invoices
		WHERE organization_id = $1
		  AND status IN ('SENT', 'OVERDUE')
		  AND total_gross > 0
		ORDER BY due_at, id`

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("dunning: list open invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	ids := make([]int64, 0, 16)
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.OrganizationID, &inv.Number, &inv.OrderNumber,
			&inv.CustomerName, &inv.CustomerEmail, &inv.Currency, &inv.TotalGross,
			&inv.Status, &inv.DueAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("dunning: scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	logs, err := r.listLogs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].Logs = logs[invoices[i].ID]
	}
	return invoices, nil
}

func (r *Repository) listLogs(ctx context.Context, invoiceIDs []int64) (map[int64][]Log, error) {
	const query = `
		SELECT id, invoice_id, level, surcharge_added, fired_at
		FROM dunning_logs
		WHERE invoice_id = ANY($1)
		ORDER BY fired_at, id`

	rows, err := r.pool.Query(ctx, query, invoiceIDs)
	if err != nil {
		return nil, fmt.Errorf("dunning: list logs: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]Log)
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Level, &l.SurchargeAdded, &l.FiredAt); err != nil {
			return nil, fmt.Errorf("dunning: scan log: %w", err)
		}
		out[l.InvoiceID] = append(out[l.InvoiceID], l)
	}
	return out, rows.Err()
}

// GetTemplate returns the organization's template for a level, or nil
// when it has none.
func (r *Repository) GetTemplate(ctx context.Context, organizationID int64, level Level) (*Template, error) {
	const query = `
		SELECT organization_id, level, subject, content, updated_at
		FROM dunning_templates
		WHERE organization_id = $1 AND level = $2`

	var t Template
	err := r.pool.QueryRow(ctx, query, organizationID, level).
		Scan(&t.OrganizationID, &t.Level, &t.Subject, &t.Content, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dunning: get template: %w", err)
	}
	return &t, nil
}

// SaveTemplate upserts one organization's template for a level.
func (r *Repository) SaveTemplate(ctx context.Context, t Template) error {
	const query = `
		INSERT INTO dunning_templates (organization_id, level, subject, content, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (organization_id, level) DO UPDATE SET
			subject = EXCLUDED.subject,
			content = EXCLUDED.content,
			updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, t.OrganizationID, t.Level, t.Subject, t.Content); err != nil {
		return fmt.Errorf("dunning: save template: %w", err)
	}
	return nil
}

// AppendLog records one fired stage. The unique index on
// (invoice_id, level) makes this the engine's idempotency barrier;
// duplicate inserts surface as ErrStageAlreadyRecorded.
func (r *Repository) AppendLog(ctx context.Context, invoiceID int64, level Level, surcharge decimal.Decimal) error {
	const query = `
		INSERT INTO dunning_logs (invoice_id, level, surcharge_added, fired_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.pool.Exec(ctx, query, invoiceID, level, surcharge, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrStageAlreadyRecorded
		}
		return fmt.Errorf("dunning: append log: %w", err)
	}
	return nil
}

// UpdateInvoiceStatus sets the invoice lifecycle status.
func (r *Repository) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`,
		invoiceID, status); err != nil {
		return fmt.Errorf("dunning: update invoice status: %w", err)
	}
	return nil
}
