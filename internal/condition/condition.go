// Package condition parses and evaluates rule condition formulas like
//
//	[Status] = "Closed" AND [Amount] > 100000
//
// against a field map. Grammar: AND/OR over NOT over comparisons and the
// CONTAINS/ISBLANK/IF functions; field references are written [Name] and
// resolve by field id or display name. Evaluation is pure; all failure
// modes are parse-time ConditionErrors.
package condition

import (
	"fmt"

	"github.com/formeye/internal/fieldmap"
)

// ConditionError reports a malformed formula. It is rule-local: callers
// treat the rule as not-fired and keep evaluating sibling rules.
type ConditionError struct {
	Pos int
	Msg string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition error at position %d: %s", e.Pos, e.Msg)
}

func errAt(pos int, format string, args ...interface{}) *ConditionError {
	return &ConditionError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Expr is a compiled formula, reusable across evaluations.
type Expr interface {
	eval(m *fieldmap.Map) value
}

// Parse compiles a formula into a reusable Expr.
func Parse(formula string) (Expr, error) {
	toks, err := lex(formula)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, errAt(p.peek().pos, "unexpected token %q", p.peek().text)
	}
	return expr, nil
}

// Validate reports whether a formula is well-formed. An empty formula is
// valid and always fires.
func Validate(formula string) error {
	if formula == "" {
		return nil
	}
	_, err := Parse(formula)
	return err
}

// Evaluate parses and evaluates a formula against a field map. An empty
// formula evaluates to true.
func Evaluate(formula string, m *fieldmap.Map) (bool, error) {
	if formula == "" {
		return true, nil
	}
	expr, err := Parse(formula)
	if err != nil {
		return false, err
	}
	return expr.eval(m).truthy(), nil
}
