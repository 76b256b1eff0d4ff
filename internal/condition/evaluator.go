package condition

import (
	"strconv"
	"strings"

	"github.com/formeye/internal/fieldmap"
)

type valueKind int

const (
	kindBlank valueKind = iota
	kindBool
	kindString
)

// value is an intermediate evaluation result. Blank propagates the way
// SQL NULL does: any comparison against blank is false, only ISBLANK
// sees it as positive.
type value struct {
	kind valueKind
	b    bool
	s    string
}

func blankVal() value       { return value{kind: kindBlank} }
func boolVal(b bool) value  { return value{kind: kindBool, b: b} }
func strVal(s string) value { return value{kind: kindString, s: s} }

func (v value) truthy() bool {
	switch v.kind {
	case kindBool:
		return v.b
	case kindString:
		return v.s != ""
	default:
		return false
	}
}

func (v value) number() (float64, bool) {
	if v.kind != kindString {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
	return n, err == nil
}

type fieldExpr struct {
	ref string
}

func (e *fieldExpr) eval(m *fieldmap.Map) value {
	v, ok := m.Lookup(e.ref)
	if !ok || v.IsBlank() {
		return blankVal()
	}
	return strVal(v.String())
}

type literalExpr struct {
	val string
}

func (e *literalExpr) eval(m *fieldmap.Map) value {
	return strVal(e.val)
}

type binaryExpr struct {
	op          string // AND or OR
	left, right Expr
}

func (e *binaryExpr) eval(m *fieldmap.Map) value {
	// Short-circuits left to right.
	left := e.left.eval(m).truthy()
	if e.op == "AND" {
		if !left {
			return boolVal(false)
		}
		return boolVal(e.right.eval(m).truthy())
	}
	if left {
		return boolVal(true)
	}
	return boolVal(e.right.eval(m).truthy())
}

type notExpr struct {
	x Expr
}

func (e *notExpr) eval(m *fieldmap.Map) value {
	return boolVal(!e.x.eval(m).truthy())
}

type compareExpr struct {
	op          string
	left, right Expr
}

func (e *compareExpr) eval(m *fieldmap.Map) value {
	lv := e.left.eval(m)
	rv := e.right.eval(m)
	if lv.kind == kindBlank || rv.kind == kindBlank {
		return boolVal(false)
	}

	// Numeric when both sides parse as numbers, else case-sensitive
	// string comparison.
	if ln, ok := lv.number(); ok {
		if rn, ok := rv.number(); ok {
			return boolVal(compareFloats(e.op, ln, rn))
		}
	}
	return boolVal(compareStrings(e.op, lv.s, rv.s))
}

func compareFloats(op string, a, b float64) bool {
	switch op {
	case "=":
		return a == b
	case "<>":
		return a != b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	}
	return false
}

func compareStrings(op string, a, b string) bool {
	switch op {
	case "=":
		return a == b
	case "<>":
		return a != b
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	}
	return false
}

type containsExpr struct {
	field  fieldExpr
	substr string
}

func (e *containsExpr) eval(m *fieldmap.Map) value {
	v := e.field.eval(m)
	if v.kind == kindBlank {
		return boolVal(false)
	}
	return boolVal(strings.Contains(v.s, e.substr))
}

type isBlankExpr struct {
	field fieldExpr
}

func (e *isBlankExpr) eval(m *fieldmap.Map) value {
	return boolVal(e.field.eval(m).kind == kindBlank)
}

type ifExpr struct {
	cond, then, els Expr
}

func (e *ifExpr) eval(m *fieldmap.Map) value {
	if e.cond.eval(m).truthy() {
		return e.then.eval(m)
	}
	return e.els.eval(m)
}
