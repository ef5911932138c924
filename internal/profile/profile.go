// Package profile holds the user-editable mapping profiles that drive
// import and export runs: the mapping tree, its structural edit
// operations, and the per-profile conversion expressions.
//
// A profile binds one adapter family (customers, orders, ...) to one tree.
// The tree is persisted as a single JSON blob and rehydrated on each load;
// it has no identity outside its owning profile.
package profile

import "time"

// Profile is a named mapping configuration for one adapter family.
type Profile struct {
	ID          int64
	Name        string
	Type        string
	Tree        *Tree
	Expressions []Expression
	CreatedAt   time.Time
}

// Expression is a per-profile conversion rule for one variable. The export
// conversion rewrites the value on the way to the file, the import
// conversion on the way back to storage. Formulas use expr-lang syntax and
// see the whole record as their environment.
type Expression struct {
	ID               int64
	ProfileID        int64
	Variable         string
	ExportConversion string
	ImportConversion string
}
