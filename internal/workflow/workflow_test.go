package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/profile"
	"github.com/commercekit/dataport/internal/session"
)

// memAdapter serves canned records and records writes in memory.
type memAdapter struct {
	records  map[int64]adapter.Record
	ids      []int64
	written  []adapter.Record
	messages []string

	// failOn marks email values whose writes fail as record errors.
	failOn map[string]bool
}

func (a *memAdapter) Sections() []string { return []string{adapter.DefaultSection} }

func (a *memAdapter) ListColumns(context.Context, string) ([]adapter.Column, error) {
	return nil, nil
}

func (a *memAdapter) ReadIDs(_ context.Context, offset, limit int, _ adapter.Filter) ([]int64, error) {
	if offset >= len(a.ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(a.ids) {
		end = len(a.ids)
	}
	return a.ids[offset:end], nil
}

func (a *memAdapter) Read(_ context.Context, ids []int64, _ []adapter.Column) (map[string][]adapter.Record, error) {
	var out []adapter.Record
	for _, id := range ids {
		if rec, ok := a.records[id]; ok {
			cp := make(adapter.Record, len(rec))
			for k, v := range rec {
				cp[k] = v
			}
			out = append(out, cp)
		}
	}
	return map[string][]adapter.Record{adapter.DefaultSection: out}, nil
}

func (a *memAdapter) Write(_ context.Context, grouped map[string][]adapter.Record) error {
	for _, rec := range grouped[adapter.DefaultSection] {
		email, _ := rec["email"].(string)
		if a.failOn[email] {
			a.messages = append(a.messages, fmt.Sprintf("customer %q: rejected", email))
			continue
		}
		a.written = append(a.written, rec)
	}
	return nil
}

func (a *memAdapter) LogMessages() []string { return a.messages }

// nopSaver satisfies SessionSaver for in-memory tests.
type nopSaver struct{}

func (nopSaver) Save(context.Context, *session.Session) error { return nil }

func flatCustomerProfile(t *testing.T) *profile.Profile {
	t.Helper()
	tree := profile.NewTree()
	steps := []struct {
		parent string
		node   *profile.Node
	}{
		{profile.RootID, &profile.Node{ID: "customers", Name: "customers", Kind: profile.KindNode}},
		{"customers", &profile.Node{ID: "customer", Name: "customer", Kind: profile.KindIteration, AdapterName: "mem"}},
		{"customer", &profile.Node{ID: "n-id", Name: "id", Kind: profile.KindLeaf, OrderIndex: 0, SourceField: "id"}},
		{"customer", &profile.Node{ID: "n-email", Name: "email", Kind: profile.KindLeaf, OrderIndex: 1, SourceField: "email"}},
	}
	for _, s := range steps {
		if _, err := tree.Append(s.parent, s.node); err != nil {
			t.Fatalf("append %s: %v", s.node.ID, err)
		}
	}
	return &profile.Profile{ID: 1, Name: "flat customers", Type: "customers", Tree: tree}
}

func newMemAdapter(n int) *memAdapter {
	a := &memAdapter{records: make(map[int64]adapter.Record), failOn: make(map[string]bool)}
	for i := 1; i <= n; i++ {
		id := int64(i)
		a.records[id] = adapter.Record{"id": id, "email": fmt.Sprintf("c%d@example.com", i)}
		a.ids = append(a.ids, id)
	}
	return a
}

func registryFor(a *memAdapter) *adapter.Registry {
	r := adapter.NewRegistry()
	r.Register("mem", func() adapter.DataAdapter { return a })
	return r
}

func runExport(t *testing.T, w *Workflow) Progress {
	t.Helper()
	var p Progress
	var err error
	for i := 0; i < 100; i++ {
		p, err = w.ExportStep(context.Background())
		if err != nil {
			t.Fatalf("ExportStep() error = %v", err)
		}
		if p.Position >= p.Total {
			return p
		}
	}
	t.Fatal("export did not finish")
	return p
}

func TestExportThreeCustomersToCSV(t *testing.T) {
	mem := newMemAdapter(3)
	path := filepath.Join(t.TempDir(), "customers.csv")
	sess := session.New(1, session.DirectionExport, "csv", "customers.csv")

	w, err := New(flatCustomerProfile(t), sess, Options{Limit: 10, FilePath: path}, registryFor(mem), nopSaver{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	p := runExport(t, w)
	if p.Total != 3 || p.Position != 3 {
		t.Errorf("progress = %+v, want 3/3", p)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 4 {
		t.Fatalf("file has %d lines, want header + 3 rows:\n%s", len(lines), raw)
	}
	if lines[0] != "id,email" {
		t.Errorf("header = %q, want id,email", lines[0])
	}
	if lines[1] != "1,c1@example.com" {
		t.Errorf("row 1 = %q", lines[1])
	}
}

func TestExportTwoHalfPagesEqualsOneFullPage(t *testing.T) {
	dir := t.TempDir()

	halfPath := filepath.Join(dir, "half.csv")
	mem := newMemAdapter(4)
	sess := session.New(1, session.DirectionExport, "csv", "half.csv")
	w, err := New(flatCustomerProfile(t), sess, Options{Limit: 2, FilePath: halfPath}, registryFor(mem), nopSaver{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	runExport(t, w)

	fullPath := filepath.Join(dir, "full.csv")
	mem = newMemAdapter(4)
	sess = session.New(1, session.DirectionExport, "csv", "full.csv")
	w, err = New(flatCustomerProfile(t), sess, Options{Limit: 4, FilePath: fullPath}, registryFor(mem), nopSaver{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	runExport(t, w)

	half, err := os.ReadFile(halfPath)
	if err != nil {
		t.Fatal(err)
	}
	full, err := os.ReadFile(fullPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(half) != string(full) {
		t.Errorf("paged output differs from single-page output:\n%s\nvs\n%s", half, full)
	}
}

func TestExportPreloadSnapshotStable(t *testing.T) {
	mem := newMemAdapter(4)
	path := filepath.Join(t.TempDir(), "customers.csv")
	sess := session.New(1, session.DirectionExport, "csv", "customers.csv")
	w, err := New(flatCustomerProfile(t), sess, Options{Limit: 2, FilePath: path}, registryFor(mem), nopSaver{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := w.ExportStep(context.Background()); err != nil {
		t.Fatalf("ExportStep() error = %v", err)
	}

	// New rows appearing mid-run must not shift the remaining pages.
	mem.ids = append([]int64{99}, mem.ids...)
	mem.records[99] = adapter.Record{"id": int64(99), "email": "new@example.com"}

	p := runExport(t, w)
	if p.Total != 4 {
		t.Errorf("total = %d, want the preloaded 4", p.Total)
	}
	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "new@example.com") {
		t.Error("mid-run insert leaked into the snapshot window")
	}
}

func TestExportPageRetryAfterCrashIsByteIdentical(t *testing.T) {
	mem := newMemAdapter(2)
	path := filepath.Join(t.TempDir(), "customers.csv")
	sess := session.New(1, session.DirectionExport, "csv", "customers.csv")

	w, err := New(flatCustomerProfile(t), sess, Options{Limit: 2, FilePath: path}, registryFor(mem), nopSaver{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := w.ExportStep(context.Background()); err != nil {
		t.Fatalf("ExportStep() error = %v", err)
	}
	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Crash between the file append and the session save: the persisted
	// state still points at the page start while the file already holds
	// the page.
	sess.Position = 0
	sess.FileSize = 0
	sess.State = session.StateActive

	w2, err := New(flatCustomerProfile(t), sess, Options{Limit: 2, FilePath: path}, registryFor(mem), nopSaver{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p, err := w2.ExportStep(context.Background())
	if err != nil {
		t.Fatalf("ExportStep() retry error = %v", err)
	}
	if p.Position != 2 {
		t.Errorf("position after retry = %d, want 2", p.Position)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Errorf("retried page output differs:\n%s\nvs\n%s", got, want)
	}
	if lines := strings.Split(strings.TrimSpace(string(got)), "\n"); len(lines) != 3 {
		t.Errorf("file has %d lines, want header + 2 rows:\n%s", len(lines), got)
	}
}

func TestImportTruncatedFileFailsInsteadOfSpinning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.csv")
	writeImportCSV(t, path, 10)

	mem := newMemAdapter(0)
	sess := session.New(1, session.DirectionImport, "csv", "customers.csv")
	w, err := New(flatCustomerProfile(t), sess, Options{Limit: 4, FilePath: path}, registryFor(mem), nopSaver{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p, err := w.PrepareImport(context.Background()); err != nil || p.Total != 10 {
		t.Fatalf("PrepareImport() = %+v, %v", p, err)
	}

	// The file shrinks after the count was taken.
	writeImportCSV(t, path, 3)

	p, err := w.ImportStep(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ended at record") {
		t.Fatalf("ImportStep() error = %v, want early end of file", err)
	}
	if p.Position != 3 {
		t.Errorf("position = %d, want the 3 remaining records committed", p.Position)
	}
	if len(mem.written) != 3 {
		t.Errorf("written = %d records, want 3", len(mem.written))
	}
}

func TestExportMaxRecordCountCapsPreload(t *testing.T) {
	mem := newMemAdapter(10)
	path := filepath.Join(t.TempDir(), "customers.csv")
	sess := session.New(1, session.DirectionExport, "csv", "customers.csv")
	w, err := New(flatCustomerProfile(t), sess, Options{Limit: 10, MaxRecordCount: 3, FilePath: path}, registryFor(mem), nopSaver{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p, err := w.PrepareExport(context.Background())
	if err != nil {
		t.Fatalf("PrepareExport() error = %v", err)
	}
	if p.Total != 3 {
		t.Errorf("total = %d, want capped 3", p.Total)
	}
}

func writeImportCSV(t *testing.T, path string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,email\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d,c%d@example.com\n", i, i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportResumesAfterCrash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.csv")
	writeImportCSV(t, path, 10)

	mem := newMemAdapter(0)
	mem.failOn["c7@example.com"] = true
	sess := session.New(1, session.DirectionImport, "csv", "customers.csv")

	w, err := New(flatCustomerProfile(t), sess, Options{Limit: 4, FilePath: path}, registryFor(mem), nopSaver{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p, err := w.ImportStep(context.Background())
	if err != nil {
		t.Fatalf("ImportStep() error = %v", err)
	}
	if p.Position != 4 || p.Total != 10 {
		t.Fatalf("progress after first page = %+v", p)
	}

	// Crash: a fresh workflow picks the persisted session back up.
	w2, err := New(flatCustomerProfile(t), sess, Options{Limit: 4, FilePath: path}, registryFor(mem), nopSaver{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for p.Position < p.Total {
		p, err = w2.ImportStep(context.Background())
		if err != nil {
			t.Fatalf("ImportStep() error = %v", err)
		}
	}

	if p.Position != 10 {
		t.Errorf("final position = %d, want 10", p.Position)
	}
	if len(mem.written) != 9 {
		t.Errorf("written = %d records, want 10 minus 1 record error", len(mem.written))
	}
	if len(sess.Messages) != 1 || !strings.Contains(sess.Messages[0], "c7@example.com") {
		t.Errorf("session messages = %v", sess.Messages)
	}
	if mem.written[0]["email"] != "c1@example.com" {
		t.Errorf("first written record = %v", mem.written[0])
	}
}

func TestNewRejectsBadCombinations(t *testing.T) {
	mem := newMemAdapter(0)

	tests := []struct {
		name      string
		direction string
		format    string
		limit     int
		mutate    func(*profile.Profile)
		wantErr   string
	}{
		{name: "unknown format", direction: session.DirectionExport, format: "yaml", limit: 10, wantErr: "format"},
		{name: "unknown direction", direction: "sideways", format: "csv", limit: 10, wantErr: "direction"},
		{name: "zero limit", direction: session.DirectionExport, format: "csv", limit: 0, wantErr: "limit"},
		{
			name: "flat import with nested groups", direction: session.DirectionImport, format: "csv", limit: 10,
			mutate: func(p *profile.Profile) {
				if _, err := p.Tree.Append("customer", &profile.Node{
					ID: "items", Name: "items", Kind: profile.KindIteration, AdapterName: "mem", OrderIndex: 9,
				}); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: "repeating",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prof := flatCustomerProfile(t)
			if tt.mutate != nil {
				tt.mutate(prof)
			}
			sess := session.New(prof.ID, tt.direction, tt.format, "f")
			_, err := New(prof, sess, Options{Limit: tt.limit, FilePath: "f"}, registryFor(mem), nopSaver{}, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestXMLImportWithNestedGroupsAllowed(t *testing.T) {
	prof := flatCustomerProfile(t)
	if _, err := prof.Tree.Append("customer", &profile.Node{
		ID: "items", Name: "items", Kind: profile.KindIteration, AdapterName: "mem", OrderIndex: 9,
	}); err != nil {
		t.Fatal(err)
	}
	mem := newMemAdapter(0)
	sess := session.New(prof.ID, session.DirectionImport, "xml", "customers.xml")
	path := filepath.Join(t.TempDir(), "customers.xml")
	if _, err := New(prof, sess, Options{Limit: 10, FilePath: path}, registryFor(mem), nopSaver{}, nil); err != nil {
		t.Errorf("New() error = %v, tree format should allow nested groups", err)
	}
}
