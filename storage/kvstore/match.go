package kvstore

import (
	"regexp"
	"strings"

	"github.com/autom8ter/odm/errors"
	"github.com/spf13/cast"
	"gopkg.in/mgo.v2/bson"
)

// Match reports whether the document satisfies the query document
func Match(doc bson.M, filter bson.M) (bool, error) {
	for key, cond := range filter {
		var (
			ok  bool
			err error
		)
		switch key {
		case "$and", "$or", "$nor":
			ok, err = matchLogical(doc, key, cond)
		default:
			if strings.HasPrefix(key, "$") {
				return false, errors.New(errors.Operation, "unsupported top level operator %s", key)
			}
			ok, err = matchCondition(lookup(doc, splitPath(key)), cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchLogical(doc bson.M, op string, cond any) (bool, error) {
	clauses, ok := asList(cond)
	if !ok {
		return false, errors.New(errors.Operation, "%s must be an array", op)
	}
	for _, clause := range clauses {
		sub, ok := asDoc(clause)
		if !ok {
			return false, errors.New(errors.Operation, "%s entries must be documents", op)
		}
		matched, err := Match(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !matched:
			return false, nil
		case op == "$or" && matched:
			return true, nil
		case op == "$nor" && matched:
			return false, nil
		}
	}
	return op != "$or", nil
}

func isOperatorDoc(v any) bool {
	doc, ok := asDoc(v)
	if !ok || len(doc) == 0 {
		return false
	}
	for k := range doc {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// expand returns the values plus the elements of any array values
func expand(values []any) []any {
	out := append([]any{}, values...)
	for _, v := range values {
		if list, ok := asList(v); ok {
			out = append(out, list...)
		}
	}
	return out
}

func matchCondition(values []any, cond any) (bool, error) {
	if isOperatorDoc(cond) {
		doc, _ := asDoc(cond)
		for op, operand := range doc {
			if op == "$options" {
				continue
			}
			ok, err := matchOperator(values, op, operand, doc)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return matchEquality(values, cond)
}

func matchEquality(values []any, cond any) (bool, error) {
	if re, ok := cond.(bson.RegEx); ok {
		return matchRegex(values, re)
	}
	if cond == nil && len(values) == 0 {
		return true, nil
	}
	for _, v := range expand(values) {
		if equal(v, cond) {
			return true, nil
		}
	}
	return false, nil
}

func matchRegex(values []any, re bson.RegEx) (bool, error) {
	pattern := re.Pattern
	if strings.Contains(re.Options, "i") {
		pattern = "(?i)" + pattern
	}
	exp, err := regexp.Compile(pattern)
	if err != nil {
		return false, errors.Wrap(err, errors.Operation, "invalid regular expression")
	}
	for _, v := range expand(values) {
		if s, ok := v.(string); ok && exp.MatchString(s) {
			return true, nil
		}
	}
	return false, nil
}

func matchOperator(values []any, op string, operand any, cond bson.M) (bool, error) {
	switch op {
	case "$eq":
		return matchEquality(values, operand)
	case "$ne":
		ok, err := matchEquality(values, operand)
		return !ok, err
	case "$gt", "$gte", "$lt", "$lte":
		for _, v := range expand(values) {
			c, comparable := compare(v, operand)
			if !comparable {
				continue
			}
			if (op == "$gt" && c > 0) || (op == "$gte" && c >= 0) || (op == "$lt" && c < 0) || (op == "$lte" && c <= 0) {
				return true, nil
			}
		}
		return false, nil
	case "$in", "$nin":
		list, ok := asList(operand)
		if !ok {
			return false, errors.New(errors.Operation, "%s needs an array", op)
		}
		found := false
		for _, candidate := range list {
			matched, err := matchEquality(values, candidate)
			if err != nil {
				return false, err
			}
			if matched {
				found = true
				break
			}
		}
		return found == (op == "$in"), nil
	case "$all":
		list, ok := asList(operand)
		if !ok {
			return false, errors.New(errors.Operation, "$all needs an array")
		}
		if len(list) == 0 {
			return false, nil
		}
		for _, candidate := range list {
			matched, err := matchEquality(values, candidate)
			if err != nil || !matched {
				return false, err
			}
		}
		return true, nil
	case "$size":
		for _, v := range values {
			if list, ok := asList(v); ok && len(list) == cast.ToInt(operand) {
				return true, nil
			}
		}
		return false, nil
	case "$exists":
		return (len(values) > 0) == cast.ToBool(operand), nil
	case "$mod":
		args, ok := asList(operand)
		if !ok || len(args) != 2 {
			return false, errors.New(errors.Operation, "malformed mod, needs to be an array of two numbers")
		}
		divisor, remainder := cast.ToInt64(args[0]), cast.ToInt64(args[1])
		if divisor == 0 {
			return false, errors.New(errors.Operation, "mod divisor may not be zero")
		}
		for _, v := range expand(values) {
			if isNumber(v) && cast.ToInt64(v)%divisor == remainder {
				return true, nil
			}
		}
		return false, nil
	case "$regex":
		re := bson.RegEx{Pattern: cast.ToString(operand), Options: cast.ToString(cond["$options"])}
		if r, ok := operand.(bson.RegEx); ok {
			re = r
		}
		return matchRegex(values, re)
	case "$not":
		var (
			ok  bool
			err error
		)
		if re, isRegex := operand.(bson.RegEx); isRegex {
			ok, err = matchRegex(values, re)
		} else if isOperatorDoc(operand) {
			ok, err = matchCondition(values, operand)
		} else {
			return false, errors.New(errors.Operation, "$not needs a regex or a document")
		}
		return !ok, err
	case "$elemMatch":
		sub, ok := asDoc(operand)
		if !ok {
			return false, errors.New(errors.Operation, "$elemMatch needs an Object")
		}
		for _, v := range values {
			list, ok := asList(v)
			if !ok {
				continue
			}
			for _, elem := range list {
				var matched bool
				var err error
				if isOperatorDoc(sub) {
					matched, err = matchCondition([]any{elem}, sub)
				} else if doc, isDoc := asDoc(elem); isDoc {
					matched, err = Match(doc, sub)
				}
				if err != nil {
					return false, err
				}
				if matched {
					return true, nil
				}
			}
		}
		return false, nil
	}
	return false, errors.New(errors.Operation, "operator %s is not supported by the embedded store", op)
}
