package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// SchemaIntrospector lists the column names of a table. The customer adapter
// uses it to discover attribute columns at runtime, so attribute tables can
// grow without code changes.
type SchemaIntrospector interface {
	ListColumns(ctx context.Context, table string) ([]string, error)
}

// attributeGroup describes one discoverable attribute table: where it lives,
// which file-facing prefix its columns get, and the foreign-key column that
// must never surface as a field.
type attributeGroup struct {
	table  string
	prefix string
	alias  string
	fk     string
}

// ColumnMapper derives the full file-facing column set of the customer
// adapter: a static base set per section plus the attribute columns
// discovered through the introspector. The result is built once and cached.
type ColumnMapper struct {
	introspector SchemaIntrospector

	once  sync.Once
	cache map[string][]Column
	err   error
}

// NewColumnMapper creates a mapper over the given schema introspector.
func NewColumnMapper(introspector SchemaIntrospector) *ColumnMapper {
	return &ColumnMapper{introspector: introspector}
}

var customerSections = []string{DefaultSection, "billing", "shipping"}

var baseCustomerColumns = map[string][]Column{
	DefaultSection: {
		{Name: "id", Expr: "c.id AS id"},
		{Name: "email", Expr: "c.email AS email"},
		{Name: "password", Expr: "c.password_hash AS password"},
		{Name: "encoder", Expr: "c.encoder AS encoder"},
		{Name: "active", Expr: "c.active AS active"},
		{Name: "accountMode", Expr: "c.account_mode AS \"accountMode\""},
		{Name: "customergroup", Expr: "c.customer_group AS customergroup"},
		{Name: "paymentId", Expr: "c.payment_id AS \"paymentId\""},
		{Name: "shopId", Expr: "c.shop_id AS \"shopId\""},
		{Name: "newsletter", Expr: "c.newsletter AS newsletter"},
	},
	"billing": {
		{Name: "billingCompany", Expr: "b.company AS \"billingCompany\""},
		{Name: "billingSalutation", Expr: "b.salutation AS \"billingSalutation\""},
		{Name: "billingFirstname", Expr: "b.first_name AS \"billingFirstname\""},
		{Name: "billingLastname", Expr: "b.last_name AS \"billingLastname\""},
		{Name: "billingStreet", Expr: "b.street AS \"billingStreet\""},
		{Name: "billingZipcode", Expr: "b.zip_code AS \"billingZipcode\""},
		{Name: "billingCity", Expr: "b.city AS \"billingCity\""},
		{Name: "billingPhone", Expr: "b.phone AS \"billingPhone\""},
		{Name: "billingCountryId", Expr: "b.country_id AS \"billingCountryId\""},
		{Name: "ustid", Expr: "b.vat_id AS ustid"},
	},
	"shipping": {
		{Name: "shippingCompany", Expr: "s.company AS \"shippingCompany\""},
		{Name: "shippingSalutation", Expr: "s.salutation AS \"shippingSalutation\""},
		{Name: "shippingFirstname", Expr: "s.first_name AS \"shippingFirstname\""},
		{Name: "shippingLastname", Expr: "s.last_name AS \"shippingLastname\""},
		{Name: "shippingStreet", Expr: "s.street AS \"shippingStreet\""},
		{Name: "shippingZipcode", Expr: "s.zip_code AS \"shippingZipcode\""},
		{Name: "shippingCity", Expr: "s.city AS \"shippingCity\""},
		{Name: "shippingCountryId", Expr: "s.country_id AS \"shippingCountryId\""},
	},
}

var customerAttributeGroups = map[string]attributeGroup{
	DefaultSection: {table: "customer_attributes", prefix: "attrCustomer", alias: "ca", fk: "customer_id"},
	"billing":      {table: "customer_billing_attributes", prefix: "attrBilling", alias: "ba", fk: "customer_id"},
	"shipping":     {table: "customer_shipping_attributes", prefix: "attrShipping", alias: "sa", fk: "customer_id"},
}

// Columns returns the file-facing columns of one section, base set first,
// attribute columns after, in discovery order.
func (m *ColumnMapper) Columns(ctx context.Context, section string) ([]Column, error) {
	m.once.Do(func() { m.build(ctx) })
	if m.err != nil {
		return nil, m.err
	}
	cols, ok := m.cache[section]
	if !ok {
		return nil, fmt.Errorf("section %q: %w", section, ErrUnknownSection)
	}
	return cols, nil
}

// AllColumns returns every section's columns flattened in section order.
func (m *ColumnMapper) AllColumns(ctx context.Context) ([]Column, error) {
	var out []Column
	for _, section := range customerSections {
		cols, err := m.Columns(ctx, section)
		if err != nil {
			return nil, err
		}
		out = append(out, cols...)
	}
	return out, nil
}

func (m *ColumnMapper) build(ctx context.Context) {
	cache := make(map[string][]Column, len(customerSections))
	for _, section := range customerSections {
		cols := append([]Column(nil), baseCustomerColumns[section]...)

		grp := customerAttributeGroups[section]
		names, err := m.introspector.ListColumns(ctx, grp.table)
		if err != nil {
			m.err = fmt.Errorf("discover %s columns: %w", grp.table, err)
			return
		}
		for _, name := range names {
			if name == grp.fk || name == "id" {
				continue
			}
			field := grp.prefix + upperFirst(snakeToCamel(name))
			cols = append(cols, Column{
				Name: field,
				Expr: fmt.Sprintf("%s.%s AS %q", grp.alias, name, field),
			})
		}
		cache[section] = cols
	}
	m.cache = cache
}

// snakeToCamel converts snake_case to camelCase. Already-camel input passes
// through unchanged.
func snakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(upperFirst(p))
	}
	return b.String()
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
