package query

import (
	"reflect"
	"sort"

	"gopkg.in/mgo.v2/bson"
)

// IsMapping reports whether v is a document (bson.M, bson.D or map[string]any)
func IsMapping(v any) bool {
	switch v.(type) {
	case bson.M, bson.D, map[string]any:
		return true
	}
	return false
}

// Elements returns the elements of a document; maps are returned in key order
func Elements(v any) []bson.DocElem {
	var m map[string]any
	switch v := v.(type) {
	case bson.D:
		return append([]bson.DocElem{}, v...)
	case bson.M:
		m = v
	case map[string]any:
		m = v
	default:
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	elems := make([]bson.DocElem, 0, len(keys))
	for _, k := range keys {
		elems = append(elems, bson.DocElem{Name: k, Value: m[k]})
	}
	return elems
}

func lookup(v any, key string) (any, bool) {
	for _, e := range Elements(v) {
		if e.Name == key {
			return e.Value, true
		}
	}
	return nil, false
}

// IsSequence reports whether v is a list value (strings and byte slices are not)
func IsSequence(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// ToSlice converts a list value of any element type to []any
func ToSlice(v any) ([]any, bool) {
	if !IsSequence(v) {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// mergeOperators merges the operators of next into prev (later wins). The result is ordered with
// $maxDistance last when present.
func mergeOperators(prev, next any) any {
	elems := Elements(prev)
	for _, n := range Elements(next) {
		replaced := false
		for i, e := range elems {
			if e.Name == n.Name {
				elems[i].Value = n.Value
				replaced = true
				break
			}
		}
		if !replaced {
			elems = append(elems, n)
		}
	}
	for i, e := range elems {
		if e.Name == "$maxDistance" {
			ordered := append(bson.D{}, elems[:i]...)
			ordered = append(ordered, elems[i+1:]...)
			return append(ordered, e)
		}
	}
	merged := bson.M{}
	for _, e := range elems {
		merged[e.Name] = e.Value
	}
	return merged
}
