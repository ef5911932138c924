package adapter

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validCustomer(email string) Record {
	return Record{
		"email":            email,
		"unhashedPassword": "secret",
		"encoder":          "md5",
		"customergroup":    "EK",
		"billingFirstname": "Ada",
		"billingLastname":  "Lovelace",
		"billingStreet":    "Main St 1",
		"billingZipcode":   "12345",
		"billingCity":      "Berlin",
	}
}

// newCreateFake scripts the happy create path: no existing customer by
// email, inserts return id 1.
func newCreateFake() *fakeDB {
	return &fakeDB{
		onQuery: func(sql string, args []any) ([][]any, error) {
			return nil, nil
		},
		onRow: func(sql string, args []any) ([]any, error) {
			if strings.Contains(sql, "INSERT INTO customers") {
				return []any{int64(1)}, nil
			}
			return nil, nil
		},
	}
}

func TestWriteMissingRequiredField(t *testing.T) {
	db := newCreateFake()
	a := NewCustomerAdapter(db, newTestIntrospector(), NewEncoderRegistry(), fakeShops{paymentID: 4}, PolicyContinue, testLogger())

	bad := validCustomer("bad@example.com")
	bad["billingFirstname"] = ""
	good := validCustomer("good@example.com")

	err := a.Write(context.Background(), map[string][]Record{
		DefaultSection: {bad, good},
	})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	msgs := a.LogMessages()
	if len(msgs) != 1 {
		t.Fatalf("LogMessages() = %v, want one entry", msgs)
	}
	if !strings.Contains(msgs[0], "billingFirstname") {
		t.Errorf("message %q does not name the missing field", msgs[0])
	}

	// The failing record persisted nothing, the good one wrote billing and
	// shipping.
	if len(db.execs) != 2 {
		t.Errorf("execs = %d, want 2 (billing + shipping for the good record)", len(db.execs))
	}
}

func TestWriteMultipleEmailMatches(t *testing.T) {
	db := newCreateFake()
	db.onQuery = func(sql string, args []any) ([][]any, error) {
		return [][]any{{int64(1)}, {int64(2)}}, nil
	}
	a := NewCustomerAdapter(db, newTestIntrospector(), NewEncoderRegistry(), fakeShops{paymentID: 4}, PolicyContinue, testLogger())

	err := a.Write(context.Background(), map[string][]Record{
		DefaultSection: {validCustomer("dup@example.com")},
	})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	msgs := a.LogMessages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "disambiguate") {
		t.Errorf("LogMessages() = %v, want a disambiguation error", msgs)
	}
	if len(db.execs) != 0 {
		t.Errorf("execs = %d, want 0", len(db.execs))
	}
}

func TestWriteStrictPolicyAborts(t *testing.T) {
	db := newCreateFake()
	a := NewCustomerAdapter(db, newTestIntrospector(), NewEncoderRegistry(), fakeShops{paymentID: 4}, PolicyStrict, testLogger())

	bad := validCustomer("bad@example.com")
	bad["customergroup"] = ""

	err := a.Write(context.Background(), map[string][]Record{DefaultSection: {bad}})
	if err == nil || !strings.Contains(err.Error(), "customergroup") {
		t.Errorf("Write() error = %v, want customergroup failure", err)
	}
	if len(a.LogMessages()) != 0 {
		t.Errorf("strict policy logged instead of failing: %v", a.LogMessages())
	}
}

func TestWriteUpdatesExistingById(t *testing.T) {
	db := newCreateFake()
	db.onRow = func(sql string, args []any) ([]any, error) {
		if strings.Contains(sql, "WHERE id =") {
			return []any{int64(5)}, nil
		}
		return nil, nil
	}
	a := NewCustomerAdapter(db, newTestIntrospector(), NewEncoderRegistry(), fakeShops{paymentID: 4}, PolicyContinue, testLogger())

	rec := Record{"id": int64(5), "email": "known@example.com"}
	if err := a.Write(context.Background(), map[string][]Record{DefaultSection: {rec}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(a.LogMessages()) != 0 {
		t.Fatalf("LogMessages() = %v", a.LogMessages())
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], "UPDATE customers") {
		t.Errorf("execs = %v, want one customers update", db.execs)
	}
}

func TestPreparePassword(t *testing.T) {
	a := NewCustomerAdapter(nil, newTestIntrospector(), NewEncoderRegistry(), fakeShops{}, PolicyContinue, testLogger())

	rec := Record{"email": "x@y.com", "unhashedPassword": "secret", "encoder": "md5"}
	if err := a.preparePassword(rec); err != nil {
		t.Fatalf("preparePassword() error = %v", err)
	}
	if rec["password"] != "5ebe2294ecd0e0f08eab7690d2a6ee69" {
		t.Errorf("password = %v, want md5 hash", rec["password"])
	}
	if _, ok := rec["unhashedPassword"]; ok {
		t.Error("cleartext password was not discarded")
	}

	// No encoder named: the registry default applies.
	rec = Record{"email": "x@y.com", "unhashedPassword": "secret"}
	if err := a.preparePassword(rec); err != nil {
		t.Fatalf("preparePassword() error = %v", err)
	}
	if rec["encoder"] != "bcrypt" {
		t.Errorf("encoder = %v, want bcrypt", rec["encoder"])
	}
	if asString(rec["password"]) == "" || asString(rec["password"]) == "secret" {
		t.Errorf("password not encoded: %v", rec["password"])
	}

	rec = Record{"email": "x@y.com", "unhashedPassword": "secret", "encoder": "rot13"}
	if err := a.preparePassword(rec); err == nil {
		t.Error("preparePassword() accepted an unknown encoder")
	}
}

func TestShippingCopiedFromBilling(t *testing.T) {
	db := newCreateFake()
	var shippingArgs []any
	db.onExec = func(sql string, args []any) (pgconn.CommandTag, error) {
		if strings.Contains(sql, "customer_shipping") {
			shippingArgs = args
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	a := NewCustomerAdapter(db, newTestIntrospector(), NewEncoderRegistry(), fakeShops{paymentID: 4}, PolicyContinue, testLogger())

	rec := validCustomer("new@example.com")
	if err := a.Write(context.Background(), map[string][]Record{DefaultSection: {rec}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(a.LogMessages()) != 0 {
		t.Fatalf("LogMessages() = %v", a.LogMessages())
	}
	if shippingArgs == nil {
		t.Fatal("shipping address was not written")
	}
	// args: customer_id, company, salutation, first_name, last_name, ...
	if shippingArgs[3] != "Ada" || shippingArgs[4] != "Lovelace" {
		t.Errorf("shipping name = %v %v, want billing copy", shippingArgs[3], shippingArgs[4])
	}
}

func TestReadDecodesEntities(t *testing.T) {
	db := &fakeDB{
		onQuery: func(sql string, args []any) ([][]any, error) {
			return [][]any{{int64(1), "Tom &amp; Jerry GmbH"}}, nil
		},
	}
	a := NewCustomerAdapter(db, newTestIntrospector(), NewEncoderRegistry(), fakeShops{}, PolicyContinue, testLogger())

	cols := []Column{
		{Name: "id", Expr: "c.id AS id"},
		{Name: "billingCompany", Expr: "b.company AS \"billingCompany\""},
	}
	grouped, err := a.Read(context.Background(), []int64{1}, cols)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	recs := grouped[DefaultSection]
	if len(recs) != 1 {
		t.Fatalf("Read() returned %d records, want 1", len(recs))
	}
	if recs[0]["billingCompany"] != "Tom & Jerry GmbH" {
		t.Errorf("billingCompany = %v, want decoded entities", recs[0]["billingCompany"])
	}
}

func TestShopConfigPaymentFallback(t *testing.T) {
	payment7 := int64(7)
	parent1 := int64(1)
	db := &fakeDB{
		onRow: func(sql string, args []any) ([]any, error) {
			switch args[0].(int64) {
			case 3:
				return []any{nil, parent1}, nil
			case 1:
				return []any{payment7, nil}, nil
			default:
				return nil, nil
			}
		},
	}
	shops := NewPgShopConfig(db, 99)

	tests := []struct {
		name   string
		shopID int64
		want   int64
	}{
		{name: "walks to parent shop", shopID: 3, want: 7},
		{name: "direct default", shopID: 1, want: 7},
		{name: "unknown shop falls back to global", shopID: 42, want: 99},
		{name: "no shop falls back to global", shopID: 0, want: 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := shops.DefaultPaymentID(context.Background(), tt.shopID)
			if err != nil {
				t.Fatalf("DefaultPaymentID() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DefaultPaymentID(%d) = %d, want %d", tt.shopID, got, tt.want)
			}
		})
	}
}

func TestOrderWrite(t *testing.T) {
	db := &fakeDB{
		onExec: func(sql string, args []any) (pgconn.CommandTag, error) {
			if args[0] == "missing" {
				return pgconn.NewCommandTag("UPDATE 0"), nil
			}
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	a := NewOrderAdapter(db, PolicyContinue, testLogger())

	err := a.Write(context.Background(), map[string][]Record{DefaultSection: {
		{"orderNumber": "20001", "status": "shipped"},
		{"orderNumber": "missing", "status": "shipped"},
		{"status": "shipped"},
	}})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	msgs := a.LogMessages()
	if len(msgs) != 2 {
		t.Fatalf("LogMessages() = %v, want 2 entries", msgs)
	}
	if !strings.Contains(msgs[0], "not found") {
		t.Errorf("message %q, want not-found error", msgs[0])
	}
	if !strings.Contains(msgs[1], "orderNumber") {
		t.Errorf("message %q, want missing-field error", msgs[1])
	}
}
