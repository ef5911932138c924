package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/commercekit/dataport/internal/storage"
)

// OrderAdapter moves order records. Orders expose a single flat section and
// never create on import: an unknown order number is a record error, imports
// only adjust status and payment state.
type OrderAdapter struct {
	db     storage.DBTX
	policy ErrorPolicy
	log    *slog.Logger

	messages []string
}

// NewOrderAdapter wires the order adapter.
func NewOrderAdapter(db storage.DBTX, policy ErrorPolicy, log *slog.Logger) *OrderAdapter {
	return &OrderAdapter{db: db, policy: policy, log: log}
}

var orderColumns = []Column{
	{Name: "id", Expr: "o.id AS id"},
	{Name: "orderNumber", Expr: "o.order_number AS \"orderNumber\""},
	{Name: "customerId", Expr: "o.customer_id AS \"customerId\""},
	{Name: "invoiceAmount", Expr: "o.invoice_amount AS \"invoiceAmount\""},
	{Name: "status", Expr: "o.status AS status"},
	{Name: "paymentStatus", Expr: "o.payment_status AS \"paymentStatus\""},
}

// Sections returns the single logical group orders expose.
func (a *OrderAdapter) Sections() []string { return []string{DefaultSection} }

// ListColumns returns the order column set.
func (a *OrderAdapter) ListColumns(_ context.Context, section string) ([]Column, error) {
	if section != DefaultSection {
		return nil, fmt.Errorf("section %q: %w", section, ErrUnknownSection)
	}
	return append([]Column(nil), orderColumns...), nil
}

// ReadIDs pages order ids in stable ascending order.
func (a *OrderAdapter) ReadIDs(ctx context.Context, offset, limit int, filter Filter) ([]int64, error) {
	query := `SELECT id FROM orders`
	args := []any{}
	if filter.Shop > 0 {
		args = append(args, filter.Shop)
		query += fmt.Sprintf(" WHERE shop_id = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list order ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Read fetches full order records for the requested ids.
func (a *OrderAdapter) Read(ctx context.Context, ids []int64, columns []Column) (map[string][]Record, error) {
	if len(ids) == 0 {
		return map[string][]Record{DefaultSection: {}}, nil
	}
	if len(columns) == 0 {
		columns = orderColumns
	}

	query := `SELECT `
	for i, c := range columns {
		if i > 0 {
			query += ", "
		}
		query += c.Expr
	}
	query += ` FROM orders o WHERE o.id = ANY($1) ORDER BY o.id`

	rows, err := a.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read order row: %w", err)
		}
		rec := make(Record, len(columns))
		for i, c := range columns {
			if i < len(values) {
				rec[c.Name] = values[i]
			}
		}
		out = append(out, decodeEntities(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	return map[string][]Record{DefaultSection: out}, nil
}

// Write updates order status fields per record. Unknown orders are record
// errors; the batch continues unless the policy is strict.
func (a *OrderAdapter) Write(ctx context.Context, grouped map[string][]Record) error {
	for _, rec := range grouped[DefaultSection] {
		if err := a.writeOne(ctx, rec); err != nil {
			if a.policy == PolicyStrict {
				return err
			}
			a.messages = append(a.messages, err.Error())
			if a.log != nil {
				a.log.Warn("order record skipped", "error", err)
			}
		}
		clear(rec)
	}
	return nil
}

func (a *OrderAdapter) writeOne(ctx context.Context, rec Record) error {
	number := asString(rec["orderNumber"])
	id := asInt64(rec["id"])
	if id == 0 && number == "" {
		return fmt.Errorf("order record: field orderNumber is required")
	}

	query := `UPDATE orders SET
		status = COALESCE(NULLIF($2, ''), status),
		payment_status = COALESCE(NULLIF($3, ''), payment_status)`
	args := []any{id, asString(rec["status"]), asString(rec["paymentStatus"])}
	if id > 0 {
		query += ` WHERE id = $1`
	} else {
		query += ` WHERE order_number = $1`
		args[0] = number
	}

	tag, err := a.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("order %q: update: %w", number, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %q: not found", number)
	}
	return nil
}

// LogMessages returns the recoverable failures collected so far.
func (a *OrderAdapter) LogMessages() []string {
	return append([]string(nil), a.messages...)
}
