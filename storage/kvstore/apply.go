package kvstore

import (
	"sort"
	"strings"

	"github.com/autom8ter/odm/errors"
	"github.com/spf13/cast"
	"gopkg.in/mgo.v2/bson"
)

// Apply applies an update document to doc in place. The filter resolves the positional operator;
// $setOnInsert only applies when inserting. An update without operators replaces the document
// (keeping its _id).
func Apply(doc bson.M, update bson.M, filter bson.M, inserting bool) error {
	if !hasOperators(update) {
		id, hasID := doc["_id"]
		for k := range doc {
			delete(doc, k)
		}
		for k, v := range update {
			doc[k] = cloneValue(v)
		}
		if hasID {
			doc["_id"] = id
		}
		return nil
	}
	ops := make([]string, 0, len(update))
	for op := range update {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fields, ok := asDoc(update[op])
		if !ok {
			return errors.New(errors.Operation, "modifier %s needs a document", op)
		}
		paths := make([]string, 0, len(fields))
		for path := range fields {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			if path == "_id" && op != "$setOnInsert" && !inserting {
				return errors.New(errors.Operation, "Mod on _id not allowed")
			}
			resolved, err := resolvePositional(doc, path, filter)
			if err != nil {
				return err
			}
			if err := applyOperator(doc, op, resolved, fields[path], inserting); err != nil {
				return err
			}
		}
	}
	return nil
}

func hasOperators(update bson.M) bool {
	for k := range update {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

// resolvePositional replaces the positional '$' segment with the index of the first array element
// matched by the filter
func resolvePositional(doc bson.M, path string, filter bson.M) (string, error) {
	parts := splitPath(path)
	for i, part := range parts {
		if part != "$" {
			continue
		}
		arrayPath := strings.Join(parts[:i], ".")
		value, _ := get(doc, arrayPath)
		list, _ := asList(value)
		idx := -1
		for j, elem := range list {
			if elementMatches(elem, arrayPath, filter) {
				idx = j
				break
			}
		}
		if idx < 0 {
			return "", errors.New(errors.Operation, "The positional operator did not find the match needed from the query. Unexpanded update: %s", path)
		}
		parts[i] = cast.ToString(idx)
	}
	return strings.Join(parts, "."), nil
}

func elementMatches(elem any, arrayPath string, filter bson.M) bool {
	constrained := false
	for key, cond := range filter {
		var (
			matched bool
			err     error
		)
		switch {
		case key == arrayPath:
			constrained = true
			if c, ok := asDoc(cond); ok {
				if sub, ok := c["$elemMatch"]; ok {
					matched, err = matchOperator([]any{[]any{elem}}, "$elemMatch", sub, c)
					break
				}
			}
			matched, err = matchCondition([]any{elem}, cond)
		case strings.HasPrefix(key, arrayPath+"."):
			constrained = true
			matched, err = matchCondition(lookup(elem, splitPath(strings.TrimPrefix(key, arrayPath+"."))), cond)
		default:
			continue
		}
		if err != nil || !matched {
			return false
		}
	}
	return constrained
}

func applyOperator(doc bson.M, op, path string, operand any, inserting bool) error {
	current, exists := get(doc, path)
	switch op {
	case "$set":
		return set(doc, path, cloneValue(operand))
	case "$setOnInsert":
		if inserting {
			return set(doc, path, cloneValue(operand))
		}
		return nil
	case "$unset":
		unset(doc, path)
		return nil
	case "$inc":
		if !isNumber(operand) {
			return errors.New(errors.Operation, "Cannot increment with non-numeric argument: {%s: %v}", path, operand)
		}
		if !exists || current == nil {
			return set(doc, path, operand)
		}
		if !isNumber(current) {
			return errors.New(errors.Operation, "Cannot apply $inc to a value of non-numeric type (%s)", path)
		}
		if isIntegral(current) && isIntegral(operand) {
			return set(doc, path, int(cast.ToInt64(current)+cast.ToInt64(operand)))
		}
		return set(doc, path, cast.ToFloat64(current)+cast.ToFloat64(operand))
	case "$rename":
		target := cast.ToString(operand)
		if !exists {
			return nil
		}
		unset(doc, path)
		return set(doc, target, current)
	}
	if !exists && (op == "$pull" || op == "$pullAll" || op == "$pop") {
		return nil
	}
	var list []any
	if exists && current != nil {
		l, ok := asList(current)
		if !ok {
			return errors.New(errors.Operation, "Cannot apply %s to a non-array field (%s)", op, path)
		}
		list = append([]any{}, l...)
	}
	switch op {
	case "$push", "$pushAll", "$addToSet":
		items := []any{operand}
		if op == "$pushAll" {
			all, ok := asList(operand)
			if !ok {
				return errors.New(errors.Operation, "$pushAll requires an array")
			}
			items = all
		} else if each, ok := eachOperand(operand); ok {
			items = each
		}
		for _, item := range items {
			if op == "$addToSet" && containsValue(list, item) {
				continue
			}
			list = append(list, cloneValue(item))
		}
	case "$pull", "$pullAll":
		var kept []any
		for _, elem := range list {
			matched, err := pullMatches(op, elem, operand)
			if err != nil {
				return err
			}
			if !matched {
				kept = append(kept, elem)
			}
		}
		list = kept
		if list == nil {
			list = []any{}
		}
	case "$pop":
		if len(list) > 0 {
			if cast.ToInt(operand) < 0 {
				list = list[1:]
			} else {
				list = list[:len(list)-1]
			}
		}
	default:
		return errors.New(errors.Operation, "modifier %s is not supported by the embedded store", op)
	}
	if list == nil {
		list = []any{}
	}
	return set(doc, path, list)
}

func eachOperand(operand any) ([]any, bool) {
	doc, ok := asDoc(operand)
	if !ok {
		return nil, false
	}
	each, ok := doc["$each"]
	if !ok {
		return nil, false
	}
	return asList(each)
}

func containsValue(list []any, value any) bool {
	for _, elem := range list {
		if equal(elem, value) {
			return true
		}
	}
	return false
}

func pullMatches(op string, elem any, operand any) (bool, error) {
	if op == "$pullAll" {
		values, ok := asList(operand)
		if !ok {
			return false, errors.New(errors.Operation, "$pullAll requires an array argument")
		}
		return containsValue(values, elem), nil
	}
	if isOperatorDoc(operand) {
		return matchCondition([]any{elem}, operand)
	}
	if cond, ok := asDoc(operand); ok {
		if doc, isDoc := asDoc(elem); isDoc {
			return Match(doc, cond)
		}
		return false, nil
	}
	return equal(elem, operand), nil
}
