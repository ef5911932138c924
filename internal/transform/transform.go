// Package transform converts record batches between the relational shape
// the adapters speak and the file shape the codecs speak. Stages run in
// declared order on export and in reverse order on import; each stage is
// idempotent and never fails on missing optional fields.
package transform

import (
	"fmt"

	"github.com/commercekit/dataport/internal/adapter"
)

// Error marks a malformed record structure, carrying the offending field.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform field %q: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transformer is one named stage of the chain.
type Transformer interface {
	Name() string
	// TransformForward rewrites a batch on its way from storage to file.
	TransformForward(batch []adapter.Record) ([]adapter.Record, error)
	// TransformBackward rewrites a batch on its way from file to storage.
	TransformBackward(batch []adapter.Record) ([]adapter.Record, error)
}

// HeaderComposer is implemented by stages that know the file's column
// universe (flat formats) or its envelope (tree formats).
type HeaderComposer interface {
	ComposeHeader() []string
}

// Chain applies its stages in declared order forward and mirrored order
// backward.
type Chain struct {
	stages []Transformer
}

// NewChain builds a chain over the given stages.
func NewChain(stages ...Transformer) *Chain {
	return &Chain{stages: stages}
}

// Forward runs the export direction: storage shape in, file shape out.
func (c *Chain) Forward(batch []adapter.Record) ([]adapter.Record, error) {
	var err error
	for _, s := range c.stages {
		batch, err = s.TransformForward(batch)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name(), err)
		}
	}
	return batch, nil
}

// Backward runs the import direction: file shape in, storage shape out.
func (c *Chain) Backward(batch []adapter.Record) ([]adapter.Record, error) {
	var err error
	for i := len(c.stages) - 1; i >= 0; i-- {
		s := c.stages[i]
		batch, err = s.TransformBackward(batch)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name(), err)
		}
	}
	return batch, nil
}

// Header returns the first stage-composed header, or nil when no stage
// composes one.
func (c *Chain) Header() []string {
	for _, s := range c.stages {
		if hc, ok := s.(HeaderComposer); ok {
			if h := hc.ComposeHeader(); h != nil {
				return h
			}
		}
	}
	return nil
}
