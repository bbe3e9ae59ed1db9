package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/autom8ter/odm/errors"
	"gopkg.in/mgo.v2/bson"
)

// Compile compiles a dotted filter into a query document
func Compile(schema Schema, filter Filter) (bson.M, error) {
	exprs := make([]Expr, 0, len(filter))
	for key, value := range filter {
		expr := ParseKey(key)
		expr.Value = value
		exprs = append(exprs, expr)
	}
	return CompileExprs(schema, exprs...)
}

// CompileExprs compiles typed constraints into a query document. Constraints are merged in key
// order; constraints on the same storage key that cannot be merged are combined with $and.
func CompileExprs(schema Schema, exprs ...Expr) (bson.M, error) {
	sorted := append([]Expr{}, exprs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	var (
		result   = bson.M{}
		deferred = map[string][]any{}
		order    []string
	)
	for _, expr := range sorted {
		if expr.Op == OpRaw {
			if !IsMapping(expr.Value) {
				return nil, errors.New(errors.InvalidQuery, "%s must be a document", RawKey)
			}
			for _, e := range Elements(expr.Value) {
				result[e.Name] = e.Value
			}
			continue
		}
		key, value, err := compileExpr(schema, expr)
		if err != nil {
			return nil, err
		}
		if _, ok := deferred[key]; ok {
			deferred[key] = append(deferred[key], value)
			continue
		}
		existing, ok := result[key]
		switch {
		case !ok:
			result[key] = value
		case expr.Op != OpEq && IsMapping(existing) && IsMapping(value):
			result[key] = mergeOperators(existing, value)
		default:
			deferred[key] = []any{existing, value}
			order = append(order, key)
		}
	}
	if len(order) == 0 {
		return result, nil
	}
	var clauses []any
	if existing, ok := result["$and"]; ok {
		prior, ok := ToSlice(existing)
		if !ok {
			return nil, errors.New(errors.InvalidQuery, "$and must be a list")
		}
		clauses = append(clauses, prior...)
	}
	for _, key := range order {
		delete(result, key)
		for _, value := range deferred[key] {
			clauses = append(clauses, bson.M{key: value})
		}
	}
	result["$and"] = clauses
	return result, nil
}

func compileExpr(schema Schema, expr Expr) (string, any, error) {
	if !expr.Op.Valid() {
		return "", nil, errors.New(errors.InvalidQuery, "operator %q has not been implemented", expr.Op)
	}
	if len(expr.Path) == 0 {
		return "", nil, errors.New(errors.InvalidQuery, "constraint %q is missing a field", expr.String())
	}
	resolved, err := Resolve(schema, expr.Path, false)
	if err != nil {
		return "", nil, err
	}
	field := resolved.Field
	value := expr.Value
	switch {
	case expr.Op.singular():
		if field != nil {
			value, err = field.PrepareQueryValue(string(expr.Op), value)
			if err != nil {
				return "", nil, errors.Wrap(err, errors.InvalidQuery, "")
			}
		} else if expr.Op.IsString() {
			value = StringPattern(expr.Op, value)
		}
	case expr.Op.membership() && !IsMapping(value):
		if list, ok := ToSlice(value); ok {
			prepared := make([]any, len(list))
			for i, v := range list {
				prepared[i] = v
				if field != nil {
					prepared[i], err = field.PrepareQueryValue(string(expr.Op), v)
					if err != nil {
						return "", nil, errors.Wrap(err, errors.InvalidQuery, "")
					}
				}
			}
			value = prepared
		}
	}
	if expr.Op != OpEq {
		switch {
		case expr.Op.IsGeo():
			value, err = compileGeo(field, expr.Op, value)
			if err != nil {
				return "", nil, err
			}
		case expr.Op == OpMatch:
			value = bson.M{"$elemMatch": value}
		case expr.Op.IsString():
		case expr.Op.IsComparison():
			value = bson.M{fmt.Sprintf("$%s", expr.Op): value}
		default:
			return "", nil, errors.New(errors.InvalidQuery, "operator %q has not been implemented", expr.Op)
		}
	}
	if expr.Negate {
		value = bson.M{"$not": value}
	}
	return resolved.Key(), value, nil
}

// StringPattern builds the regular expression matching a string operator's literal operand.
// Operators with a leading 'i' are case insensitive. Non string operands are returned unchanged.
func StringPattern(op Operator, value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	var options string
	kind := string(op)
	if strings.HasPrefix(kind, "i") {
		options = "i"
		kind = strings.TrimPrefix(kind, "i")
	}
	pattern := regexp.QuoteMeta(s)
	switch Operator(kind) {
	case OpStartsWith:
		pattern = "^" + pattern
	case OpEndsWith:
		pattern = pattern + "$"
	case OpExact:
		pattern = "^" + pattern + "$"
	}
	return bson.RegEx{Pattern: pattern, Options: options}
}
