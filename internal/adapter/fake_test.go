package adapter

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB scripts database responses per statement kind. Tests install the
// hooks they need; unset hooks fail loudly.
type fakeDB struct {
	onQuery func(sql string, args []any) ([][]any, error)
	onRow   func(sql string, args []any) ([]any, error)
	onExec  func(sql string, args []any) (pgconn.CommandTag, error)

	execs   []string
	queries []string
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if f.onExec == nil {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return f.onExec(sql, args)
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queries = append(f.queries, sql)
	if f.onQuery == nil {
		return nil, fmt.Errorf("unexpected query: %s", sql)
	}
	rows, err := f.onQuery(sql, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: rows}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if f.onRow == nil {
		return &fakeRow{err: fmt.Errorf("unexpected query row: %s", sql)}
	}
	vals, err := f.onRow(sql, args)
	return &fakeRow{vals: vals, err: err}
}

type fakeRow struct {
	vals []any
	err  error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.vals == nil {
		return pgx.ErrNoRows
	}
	return assign(r.vals, dest)
}

type fakeRows struct {
	rows [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(r.rows[r.pos-1], dest)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.pos-1], nil
}

func assign(vals []any, dest []any) error {
	if len(vals) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(vals), len(dest))
	}
	for i, v := range vals {
		switch d := dest[i].(type) {
		case *int64:
			d2, ok := v.(int64)
			if !ok {
				return fmt.Errorf("scan: value %d is %T, want int64", i, v)
			}
			*d = d2
		case **int64:
			if v == nil {
				*d = nil
				continue
			}
			d2, ok := v.(int64)
			if !ok {
				return fmt.Errorf("scan: value %d is %T, want int64", i, v)
			}
			*d = &d2
		case *string:
			d2, ok := v.(string)
			if !ok {
				return fmt.Errorf("scan: value %d is %T, want string", i, v)
			}
			*d = d2
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}

// fakeIntrospector serves canned column lists and counts lookups.
type fakeIntrospector struct {
	tables map[string][]string
	calls  map[string]int
}

func (f *fakeIntrospector) ListColumns(_ context.Context, table string) ([]string, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[table]++
	return f.tables[table], nil
}

// fakeShops returns one fixed default payment id.
type fakeShops struct{ paymentID int64 }

func (f fakeShops) DefaultPaymentID(context.Context, int64) (int64, error) {
	return f.paymentID, nil
}
