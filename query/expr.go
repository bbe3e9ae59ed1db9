package query

import (
	"strings"
)

// RawKey is the pseudo-key whose value is merged verbatim into the compiled document
const RawKey = "__raw__"

// Filter is the dotted-string front-end of the query compiler, e.g. Filter{"age__gte": 18}
type Filter map[string]any

// Update is the dotted-string front-end of the update compiler, e.g. Update{"inc__hits": 1}
type Update map[string]any

// Expr is a single typed filter constraint
type Expr struct {
	// Key is the originating dotted key (optional); it determines merge ordering when present
	Key string
	// Path holds logical field names; numeric segments index into arrays
	Path []string
	// Op is the trailing operator (OpEq for bare equality)
	Op Operator
	// Negate wraps the compiled constraint in $not
	Negate bool
	// Value is the (uncoerced) operand
	Value any
}

// Where builds a typed constraint from a '.' separated path
func Where(path string, op Operator, value any) Expr {
	return Expr{Path: strings.Split(path, "."), Op: op, Value: value}
}

// Not returns a negated copy of the constraint
func (e Expr) Not() Expr {
	e.Negate = true
	return e
}

// String returns the dotted-key form of the constraint
func (e Expr) String() string {
	if e.Key != "" {
		return e.Key
	}
	if e.Op == OpRaw {
		return RawKey
	}
	parts := append([]string{}, e.Path...)
	if e.Negate {
		parts = append(parts, negationToken)
	}
	if e.Op != OpEq {
		parts = append(parts, string(e.Op))
	}
	return strings.Join(parts, "__")
}

// UpdateExpr is a single typed update instruction
type UpdateExpr struct {
	// Key is the originating dotted key (optional); it determines merge ordering when present
	Key string
	// Op is the leading update operator
	Op UpdateOperator
	// Path holds logical field names; numeric segments and the positional token S index into arrays
	Path []string
	// Match is an optional trailing comparison operator wrapping the value, e.g. pull__votes__lt
	Match Operator
	// Value is the (uncoerced) operand
	Value any
}

// Set builds a typed update instruction from a '.' separated path
func Set(op UpdateOperator, path string, value any) UpdateExpr {
	return UpdateExpr{Op: op, Path: strings.Split(path, "."), Value: value}
}

// String returns the dotted-key form of the update instruction
func (u UpdateExpr) String() string {
	if u.Key != "" {
		return u.Key
	}
	if u.Op == UpdateRaw {
		return RawKey
	}
	var parts []string
	if u.Op != "" {
		parts = append(parts, string(u.Op))
	}
	parts = append(parts, u.Path...)
	if u.Match != OpEq {
		parts = append(parts, string(u.Match))
	}
	return strings.Join(parts, "__")
}
