package adapter

import (
	"context"
	"fmt"

	"github.com/commercekit/dataport/internal/storage"
)

// PgIntrospector discovers table columns through information_schema.
type PgIntrospector struct {
	db storage.DBTX
}

// NewPgIntrospector creates an introspector over the given database handle.
func NewPgIntrospector(db storage.DBTX) *PgIntrospector {
	return &PgIntrospector{db: db}
}

// ListColumns returns the column names of a table in ordinal order. A table
// that does not exist yields an empty list, so adapters without attribute
// tables still work.
func (p *PgIntrospector) ListColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := p.db.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_name = $1 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("introspect %s: %w", table, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// PgShopConfig resolves shop defaults from the shops table. The payment
// fallback chain is the shop's own default, then its parent shop's, then
// the global default.
type PgShopConfig struct {
	db storage.DBTX

	// GlobalPaymentID is the last resort when no shop row provides one.
	GlobalPaymentID int64
}

// NewPgShopConfig creates a shop configuration lookup.
func NewPgShopConfig(db storage.DBTX, globalPaymentID int64) *PgShopConfig {
	return &PgShopConfig{db: db, GlobalPaymentID: globalPaymentID}
}

// DefaultPaymentID walks the fallback chain for the given shop.
func (s *PgShopConfig) DefaultPaymentID(ctx context.Context, shopID int64) (int64, error) {
	for shopID > 0 {
		var paymentID *int64
		var parentID *int64
		err := s.db.QueryRow(ctx,
			`SELECT default_payment_id, parent_id FROM shops WHERE id = $1`,
			shopID).Scan(&paymentID, &parentID)
		if err != nil {
			if isNoRows(err) {
				break
			}
			return 0, fmt.Errorf("shop %d payment default: %w", shopID, err)
		}
		if paymentID != nil && *paymentID > 0 {
			return *paymentID, nil
		}
		if parentID == nil {
			break
		}
		shopID = *parentID
	}
	return s.GlobalPaymentID, nil
}
