// Package adapter connects the engine to the relational store. Each entity
// family (customer, order, ...) gets one DataAdapter implementation that
// pages record ids, fetches full records and upserts batches back, while
// collecting recoverable per-record failures instead of aborting the run.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"html"
)

// Record is one flat record keyed by file-facing field names.
type Record map[string]any

// Filter is an opaque predicate passed through to storage when listing
// record ids. Zero value means no filtering.
type Filter struct {
	// Shop restricts records to one shop when > 0.
	Shop int64 `json:"shop,omitempty"`
	// Since restricts records to those changed at or after the given unix
	// timestamp when > 0.
	Since int64 `json:"since,omitempty"`
}

// ErrorPolicy decides how a failing record is reported.
type ErrorPolicy string

const (
	// PolicyContinue logs the record failure and keeps processing the batch.
	PolicyContinue ErrorPolicy = "continue"
	// PolicyStrict aborts the batch on the first record failure.
	PolicyStrict ErrorPolicy = "strict"
)

// ErrUnknownSection is returned when a section name is not part of an
// adapter's column universe.
var ErrUnknownSection = errors.New("unknown section")

// DefaultSection is the group key single-section adapters return from Read.
const DefaultSection = "default"

// DataAdapter reads and writes one entity family.
//
// ReadIDs is a pure pagination cursor over record identifiers. Read fetches
// full records for exactly the requested ids. Write upserts a batch; a
// record that fails validation is appended to the adapter's message log and
// the batch continues, unless the adapter was built with PolicyStrict.
type DataAdapter interface {
	Sections() []string
	ListColumns(ctx context.Context, section string) ([]Column, error)
	ReadIDs(ctx context.Context, offset, limit int, filter Filter) ([]int64, error)
	Read(ctx context.Context, ids []int64, columns []Column) (map[string][]Record, error)
	Write(ctx context.Context, grouped map[string][]Record) error
	LogMessages() []string
}

// Column binds a file-facing field name to the select expression that
// produces it.
type Column struct {
	Name string
	Expr string
}

// Registry resolves adapters by the name an iteration node carries. The set
// is closed at construction time.
type Registry struct {
	adapters map[string]func() DataAdapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]func() DataAdapter)}
}

// Register binds a name to an adapter constructor. Each workflow run gets a
// fresh instance so message logs never leak between runs.
func (r *Registry) Register(name string, build func() DataAdapter) {
	r.adapters[name] = build
}

// Get builds the adapter registered under the given name.
func (r *Registry) Get(name string) (DataAdapter, error) {
	build, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no data adapter registered for %q", name)
	}
	return build(), nil
}

// decodeEntities reverses HTML entity escaping on every string field of the
// record. Stored text may carry escaped entities from legacy imports.
func decodeEntities(rec Record) Record {
	for k, v := range rec {
		if s, ok := v.(string); ok {
			rec[k] = html.UnescapeString(s)
		}
	}
	return rec
}
