package query

import (
	"reflect"
	"sort"
	"strings"

	"github.com/autom8ter/odm/errors"
	"gopkg.in/mgo.v2/bson"
)

// CompileUpdate compiles a dotted update into an update document grouped by operator
func CompileUpdate(schema Schema, update Update) (bson.M, error) {
	exprs := make([]UpdateExpr, 0, len(update))
	for key, value := range update {
		expr := ParseUpdateKey(key)
		expr.Value = value
		exprs = append(exprs, expr)
	}
	return CompileUpdateExprs(schema, exprs...)
}

// CompileUpdateExprs compiles typed update instructions into an update document. Fragments are
// merged per operator bucket in key order; a later key replaces an earlier one.
func CompileUpdateExprs(schema Schema, exprs ...UpdateExpr) (bson.M, error) {
	sorted := append([]UpdateExpr{}, exprs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	result := bson.M{}
	for _, expr := range sorted {
		if expr.Op == UpdateRaw {
			if !IsMapping(expr.Value) {
				return nil, errors.New(errors.InvalidQuery, "%s must be a document", RawKey)
			}
			for _, e := range Elements(expr.Value) {
				result[e.Name] = e.Value
			}
			continue
		}
		bucket, fragment, err := compileUpdateExpr(schema, expr)
		if err != nil {
			return nil, err
		}
		existing, ok := result[bucket].(bson.M)
		if !ok {
			existing = bson.M{}
			if prior, exists := result[bucket]; exists && IsMapping(prior) {
				for _, e := range Elements(prior) {
					existing[e.Name] = e.Value
				}
			}
			result[bucket] = existing
		}
		for k, v := range fragment {
			existing[k] = v
		}
	}
	return result, nil
}

func compileUpdateExpr(schema Schema, expr UpdateExpr) (string, bson.M, error) {
	if expr.Op == "" {
		return "", nil, errors.New(errors.InvalidQuery, "updates must supply an operation eg: set__FIELD=value (%s)", expr.String())
	}
	if !expr.Op.Valid() {
		return "", nil, errors.New(errors.InvalidQuery, "update operator %q has not been implemented", expr.Op)
	}
	if len(expr.Path) == 0 {
		return "", nil, errors.New(errors.InvalidQuery, "update %q is missing a field", expr.String())
	}
	op := expr.Op.Canonical()
	value := expr.Value
	if expr.Op == UpdateDec {
		negated, err := negate(value)
		if err != nil {
			return "", nil, err
		}
		value = negated
	}
	resolved, err := Resolve(schema, expr.Path, true)
	if err != nil {
		return "", nil, err
	}
	if field := resolved.Field; field != nil {
		value, err = prepareUpdateValue(field, op, value)
		if err != nil {
			return "", nil, errors.Wrap(err, errors.InvalidQuery, "")
		}
	}
	if expr.Match != OpEq {
		value = bson.M{"$" + string(expr.Match): value}
	}
	path := resolved.Path
	var fragment bson.M
	switch {
	case strings.Contains(op, "pull") && len(path) > 1:
		if op == "pullAll" {
			return "", nil, errors.New(errors.InvalidQuery, "pullAll operations only support a single field depth (%s)", expr.String())
		}
		for i := len(path) - 1; i > 0; i-- {
			value = bson.M{path[i]: value}
		}
		fragment = bson.M{path[0]: value}
	case op == "addToSet" && IsSequence(value):
		list, _ := ToSlice(value)
		fragment = bson.M{resolved.Key(): bson.M{"$each": list}}
	default:
		fragment = bson.M{resolved.Key(): value}
	}
	return "$" + op, fragment, nil
}

func prepareUpdateValue(field Field, op string, value any) (any, error) {
	switch op {
	case "set", "push", "pull":
		if field.Required() || value != nil {
			return field.PrepareQueryValue(op, value)
		}
	case "pushAll", "pullAll":
		list, ok := ToSlice(value)
		if !ok {
			return value, nil
		}
		prepared := make([]any, len(list))
		for i, v := range list {
			p, err := field.PrepareQueryValue(op, v)
			if err != nil {
				return nil, err
			}
			prepared[i] = p
		}
		return prepared, nil
	case "addToSet":
		if list, ok := ToSlice(value); ok {
			prepared := make([]any, len(list))
			for i, v := range list {
				p, err := field.PrepareQueryValue(op, v)
				if err != nil {
					return nil, err
				}
				prepared[i] = p
			}
			return prepared, nil
		}
		if field.Required() || value != nil {
			return field.PrepareQueryValue(op, value)
		}
	}
	return value, nil
}

// negate flips the sign of a positive numeric value, preserving its type
func negate(value any) (any, error) {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return nil, errors.New(errors.InvalidQuery, "dec requires a numeric value")
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() > 0 {
			return reflect.ValueOf(-rv.Int()).Convert(rv.Type()).Interface(), nil
		}
		return value, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return -int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		if rv.Float() > 0 {
			return reflect.ValueOf(-rv.Float()).Convert(rv.Type()).Interface(), nil
		}
		return value, nil
	}
	return nil, errors.New(errors.InvalidQuery, "dec requires a numeric value, got %T", value)
}
