package transform

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/profile"
)

// compiledExpression holds one variable's compiled conversion programs. A
// direction without a formula stays nil and passes values through.
type compiledExpression struct {
	variable string
	export   *vm.Program
	imprt    *vm.Program
}

// ExpressionTransformer evaluates the profile's per-field conversion
// formulas. The whole record is the expression environment, so a formula
// can reference sibling fields.
type ExpressionTransformer struct {
	exprs []compiledExpression
}

// NewExpressionTransformer compiles the profile expressions. A formula that
// does not compile is user error and rejected up front.
func NewExpressionTransformer(exprs []profile.Expression) (*ExpressionTransformer, error) {
	t := &ExpressionTransformer{}
	for _, e := range exprs {
		ce := compiledExpression{variable: e.Variable}
		var err error
		if e.ExportConversion != "" {
			ce.export, err = expr.Compile(e.ExportConversion)
			if err != nil {
				return nil, fmt.Errorf("compile export conversion for %q: %w", e.Variable, err)
			}
		}
		if e.ImportConversion != "" {
			ce.imprt, err = expr.Compile(e.ImportConversion)
			if err != nil {
				return nil, fmt.Errorf("compile import conversion for %q: %w", e.Variable, err)
			}
		}
		t.exprs = append(t.exprs, ce)
	}
	return t, nil
}

// Name identifies the stage.
func (t *ExpressionTransformer) Name() string { return "expressions" }

// TransformForward applies the export-direction formulas.
func (t *ExpressionTransformer) TransformForward(batch []adapter.Record) ([]adapter.Record, error) {
	return t.apply(batch, func(ce compiledExpression) *vm.Program { return ce.export })
}

// TransformBackward applies the import-direction formulas.
func (t *ExpressionTransformer) TransformBackward(batch []adapter.Record) ([]adapter.Record, error) {
	return t.apply(batch, func(ce compiledExpression) *vm.Program { return ce.imprt })
}

func (t *ExpressionTransformer) apply(batch []adapter.Record, pick func(compiledExpression) *vm.Program) ([]adapter.Record, error) {
	if len(t.exprs) == 0 {
		return batch, nil
	}
	for _, rec := range batch {
		for _, ce := range t.exprs {
			prog := pick(ce)
			if prog == nil {
				continue
			}
			// A record without the variable is fine: formulas only
			// rewrite fields the record carries.
			if _, ok := rec[ce.variable]; !ok {
				continue
			}
			out, err := expr.Run(prog, map[string]any(rec))
			if err != nil {
				return nil, &Error{Field: ce.variable, Err: err}
			}
			rec[ce.variable] = out
		}
	}
	return batch, nil
}
