package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/commercekit/dataport/internal/storage"
)

// ShopConfig resolves shop-scoped defaults. DefaultPaymentID walks the
// fallback chain sub-shop default, parent-shop default, global default and
// always yields a usable payment id.
type ShopConfig interface {
	DefaultPaymentID(ctx context.Context, shopID int64) (int64, error)
}

// CustomerAdapter moves customer records, with their billing and shipping
// addresses and attribute columns, between the engine and Postgres.
type CustomerAdapter struct {
	db       storage.DBTX
	mapper   *ColumnMapper
	encoders *EncoderRegistry
	shops    ShopConfig
	policy   ErrorPolicy
	log      *slog.Logger

	messages []string
}

// NewCustomerAdapter wires the customer adapter. All collaborators are
// injected; the adapter holds no state beyond its column cache and the
// per-run message log.
func NewCustomerAdapter(db storage.DBTX, introspector SchemaIntrospector, encoders *EncoderRegistry, shops ShopConfig, policy ErrorPolicy, log *slog.Logger) *CustomerAdapter {
	return &CustomerAdapter{
		db:       db,
		mapper:   NewColumnMapper(introspector),
		encoders: encoders,
		shops:    shops,
		policy:   policy,
		log:      log,
	}
}

// Sections returns the logical record groups of the customer adapter.
func (a *CustomerAdapter) Sections() []string {
	return append([]string(nil), customerSections...)
}

// ListColumns returns the file-facing columns of one section.
func (a *CustomerAdapter) ListColumns(ctx context.Context, section string) ([]Column, error) {
	return a.mapper.Columns(ctx, section)
}

// ReadIDs pages customer ids in stable ascending order.
func (a *CustomerAdapter) ReadIDs(ctx context.Context, offset, limit int, filter Filter) ([]int64, error) {
	query := `SELECT id FROM customers`
	args := []any{}
	if filter.Shop > 0 {
		args = append(args, filter.Shop)
		query += fmt.Sprintf(" WHERE shop_id = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list customer ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan customer id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Read fetches full records for exactly the requested ids, decodes escaped
// text fields and groups everything under the default section.
func (a *CustomerAdapter) Read(ctx context.Context, ids []int64, columns []Column) (map[string][]Record, error) {
	if len(ids) == 0 {
		return map[string][]Record{DefaultSection: {}}, nil
	}
	if len(columns) == 0 {
		var err error
		columns, err = a.mapper.AllColumns(ctx)
		if err != nil {
			return nil, err
		}
	}

	query := `SELECT `
	for i, c := range columns {
		if i > 0 {
			query += ", "
		}
		query += c.Expr
	}
	query += ` FROM customers c
		LEFT JOIN customer_billing b ON b.customer_id = c.id
		LEFT JOIN customer_shipping s ON s.customer_id = c.id
		LEFT JOIN customer_attributes ca ON ca.customer_id = c.id
		LEFT JOIN customer_billing_attributes ba ON ba.customer_id = c.id
		LEFT JOIN customer_shipping_attributes sa ON sa.customer_id = c.id
		WHERE c.id = ANY($1) ORDER BY c.id`

	rows, err := a.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("read customers: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read customer row: %w", err)
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
		return nil, fmt.Errorf("read customers: %w", err)
	}
	return map[string][]Record{DefaultSection: out}, nil
}

// Write upserts a batch of customer records. Every record commits on its
// own; a failing record is logged and skipped unless the adapter runs under
// the strict policy.
func (a *CustomerAdapter) Write(ctx context.Context, grouped map[string][]Record) error {
	records := grouped[DefaultSection]
	for _, rec := range records {
		if err := a.writeOne(ctx, rec); err != nil {
			if a.policy == PolicyStrict {
				return err
			}
			a.logError(err)
		}
		// Records already written stay committed; release the working
		// set so a large batch does not accumulate.
		clear(rec)
	}
	return nil
}

// LogMessages returns the recoverable failures collected so far.
func (a *CustomerAdapter) LogMessages() []string {
	return append([]string(nil), a.messages...)
}

func (a *CustomerAdapter) logError(err error) {
	a.messages = append(a.messages, err.Error())
	if a.log != nil {
		a.log.Warn("customer record skipped", "error", err)
	}
}

// requiredOnCreate lists the fields a brand-new customer must carry. The
// password/encoder pairing is checked separately.
var requiredOnCreate = []string{
	"email",
	"customergroup",
	"billingFirstname",
	"billingLastname",
	"billingStreet",
	"billingZipcode",
	"billingCity",
}

func (a *CustomerAdapter) writeOne(ctx context.Context, rec Record) error {
	id, err := a.findCustomer(ctx, rec)
	if err != nil {
		return err
	}

	if err := a.preparePassword(rec); err != nil {
		return err
	}

	if id == 0 {
		return a.create(ctx, rec)
	}
	return a.update(ctx, id, rec)
}

// findCustomer locates an existing customer: first by explicit id, then by
// email plus account mode, scoped to the record's shop when one is given.
// More than one email match means the caller must disambiguate with an id.
func (a *CustomerAdapter) findCustomer(ctx context.Context, rec Record) (int64, error) {
	if id := asInt64(rec["id"]); id > 0 {
		var found int64
		err := a.db.QueryRow(ctx, `SELECT id FROM customers WHERE id = $1`, id).Scan(&found)
		if err == nil {
			return found, nil
		}
		if !isNoRows(err) {
			return 0, fmt.Errorf("find customer %d: %w", id, err)
		}
		// An explicit id that does not exist falls through to the
		// email lookup, matching create-with-preset-id imports.
	}

	email := asString(rec["email"])
	if email == "" {
		return 0, nil
	}

	query := `SELECT id FROM customers WHERE email = $1 AND account_mode = $2`
	args := []any{email, asInt64(rec["accountMode"])}
	if shop := asInt64(rec["shopId"]); shop > 0 {
		args = append(args, shop)
		query += fmt.Sprintf(" AND shop_id = $%d", len(args))
	}

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("find customer by email %q: %w", email, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("find customer by email %q: %w", email, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	switch len(ids) {
	case 0:
		return 0, nil
	case 1:
		return ids[0], nil
	default:
		return 0, fmt.Errorf("customer %q: %d customers match this email, provide an id to disambiguate", email, len(ids))
	}
}

// preparePassword encodes a cleartext password with the named encoder (or
// the registry default) and discards the cleartext.
func (a *CustomerAdapter) preparePassword(rec Record) error {
	plain := asString(rec["unhashedPassword"])
	if plain == "" {
		return nil
	}
	name := asString(rec["encoder"])
	if name == "" {
		name = a.encoders.DefaultName()
	}
	enc, err := a.encoders.Get(name)
	if err != nil {
		return fmt.Errorf("customer %q: %w", asString(rec["email"]), err)
	}
	hash, err := enc.Encode(plain)
	if err != nil {
		return fmt.Errorf("customer %q: %w", asString(rec["email"]), err)
	}
	rec["password"] = hash
	rec["encoder"] = name
	delete(rec, "unhashedPassword")
	return nil
}

func (a *CustomerAdapter) create(ctx context.Context, rec Record) error {
	email := asString(rec["email"])
	for _, field := range requiredOnCreate {
		if asString(rec[field]) == "" {
			return fmt.Errorf("customer %q: field %s is required", email, field)
		}
	}
	if asString(rec["password"]) == "" {
		return fmt.Errorf("customer %q: field password is required", email)
	}
	if asString(rec["encoder"]) == "" {
		rec["encoder"] = a.encoders.DefaultName()
	}

	paymentID := asInt64(rec["paymentId"])
	if paymentID == 0 {
		var err error
		paymentID, err = a.shops.DefaultPaymentID(ctx, asInt64(rec["shopId"]))
		if err != nil {
			return fmt.Errorf("customer %q: resolve default payment: %w", email, err)
		}
	}

	var id int64
	err := a.db.QueryRow(ctx, `
		INSERT INTO customers (email, password_hash, encoder, active, account_mode, customer_group, payment_id, shop_id, newsletter)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		email, asString(rec["password"]), asString(rec["encoder"]),
		asInt64(rec["active"]) != 0, asInt64(rec["accountMode"]),
		asString(rec["customergroup"]), paymentID, asInt64(rec["shopId"]),
		asInt64(rec["newsletter"]) != 0,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("customer %q: insert: %w", email, err)
	}

	if err := a.upsertBilling(ctx, id, rec); err != nil {
		return fmt.Errorf("customer %q: %w", email, err)
	}

	// A record without shipping name fields ships to the billing address.
	if asString(rec["shippingFirstname"]) == "" && asString(rec["shippingLastname"]) == "" {
		copyBillingToShipping(rec)
	}
	if err := a.upsertShipping(ctx, id, rec); err != nil {
		return fmt.Errorf("customer %q: %w", email, err)
	}
	return nil
}

func (a *CustomerAdapter) update(ctx context.Context, id int64, rec Record) error {
	email := asString(rec["email"])
	_, err := a.db.Exec(ctx, `
		UPDATE customers SET
			email = COALESCE(NULLIF($2, ''), email),
			password_hash = COALESCE(NULLIF($3, ''), password_hash),
			encoder = COALESCE(NULLIF($4, ''), encoder),
			customer_group = COALESCE(NULLIF($5, ''), customer_group)
		WHERE id = $1`,
		id, email, asString(rec["password"]), asString(rec["encoder"]),
		asString(rec["customergroup"]),
	)
	if err != nil {
		return fmt.Errorf("customer %q: update: %w", email, err)
	}

	if asString(rec["billingFirstname"]) != "" || asString(rec["billingLastname"]) != "" {
		if err := a.upsertBilling(ctx, id, rec); err != nil {
			return fmt.Errorf("customer %q: %w", email, err)
		}
	}
	if asString(rec["shippingFirstname"]) != "" || asString(rec["shippingLastname"]) != "" {
		if err := a.upsertShipping(ctx, id, rec); err != nil {
			return fmt.Errorf("customer %q: %w", email, err)
		}
	}
	return nil
}

func (a *CustomerAdapter) upsertBilling(ctx context.Context, customerID int64, rec Record) error {
	_, err := a.db.Exec(ctx, `
		INSERT INTO customer_billing (customer_id, company, salutation, first_name, last_name, street, zip_code, city, phone, country_id, vat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (customer_id) DO UPDATE SET
			company = EXCLUDED.company, salutation = EXCLUDED.salutation,
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			street = EXCLUDED.street, zip_code = EXCLUDED.zip_code,
			city = EXCLUDED.city, phone = EXCLUDED.phone,
			country_id = EXCLUDED.country_id, vat_id = EXCLUDED.vat_id`,
		customerID, asString(rec["billingCompany"]), asString(rec["billingSalutation"]),
		asString(rec["billingFirstname"]), asString(rec["billingLastname"]),
		asString(rec["billingStreet"]), asString(rec["billingZipcode"]),
		asString(rec["billingCity"]), asString(rec["billingPhone"]),
		asInt64(rec["billingCountryId"]), asString(rec["ustid"]),
	)
	if err != nil {
		return fmt.Errorf("upsert billing address: %w", err)
	}
	return nil
}

func (a *CustomerAdapter) upsertShipping(ctx context.Context, customerID int64, rec Record) error {
	_, err := a.db.Exec(ctx, `
		INSERT INTO customer_shipping (customer_id, company, salutation, first_name, last_name, street, zip_code, city, country_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (customer_id) DO UPDATE SET
			company = EXCLUDED.company, salutation = EXCLUDED.salutation,
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			street = EXCLUDED.street, zip_code = EXCLUDED.zip_code,
			city = EXCLUDED.city, country_id = EXCLUDED.country_id`,
		customerID, asString(rec["shippingCompany"]), asString(rec["shippingSalutation"]),
		asString(rec["shippingFirstname"]), asString(rec["shippingLastname"]),
		asString(rec["shippingStreet"]), asString(rec["shippingZipcode"]),
		asString(rec["shippingCity"]), asInt64(rec["shippingCountryId"]),
	)
	if err != nil {
		return fmt.Errorf("upsert shipping address: %w", err)
	}
	return nil
}

func copyBillingToShipping(rec Record) {
	pairs := [][2]string{
		{"shippingCompany", "billingCompany"},
		{"shippingSalutation", "billingSalutation"},
		{"shippingFirstname", "billingFirstname"},
		{"shippingLastname", "billingLastname"},
		{"shippingStreet", "billingStreet"},
		{"shippingZipcode", "billingZipcode"},
		{"shippingCity", "billingCity"},
		{"shippingCountryId", "billingCountryId"},
	}
	for _, p := range pairs {
		rec[p[0]] = rec[p[1]]
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// asString renders a record value for comparison and storage. Records read
// back from flat files carry every value as a string.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		if t {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// asInt64 reads a numeric record value, tolerating the string form flat
// files produce. Anything unparseable counts as zero.
func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}
