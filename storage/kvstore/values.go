package kvstore

import (
	"bytes"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/autom8ter/odm/errors"
	"github.com/spf13/cast"
	"gopkg.in/mgo.v2/bson"
)

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

func index(part string) (int, bool) {
	i, err := strconv.Atoi(part)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func asDoc(v any) (bson.M, bool) {
	switch v := v.(type) {
	case bson.M:
		return v, true
	case map[string]any:
		return bson.M(v), true
	case bson.D:
		return v.Map(), true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case nil, string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// lookup returns every value reachable at the path. Arrays without an explicit index are
// traversed element-wise.
func lookup(v any, parts []string) []any {
	if len(parts) == 0 {
		return []any{v}
	}
	if doc, ok := asDoc(v); ok {
		child, ok := doc[parts[0]]
		if !ok {
			return nil
		}
		return lookup(child, parts[1:])
	}
	if list, ok := asList(v); ok {
		if i, ok := index(parts[0]); ok {
			if i >= len(list) {
				return nil
			}
			return lookup(list[i], parts[1:])
		}
		var out []any
		for _, elem := range list {
			if _, isDoc := asDoc(elem); isDoc {
				out = append(out, lookup(elem, parts)...)
			}
		}
		return out
	}
	return nil
}

// get returns the single value at the path
func get(doc bson.M, path string) (any, bool) {
	var cur any = doc
	for _, part := range splitPath(path) {
		if d, ok := asDoc(cur); ok {
			v, ok := d[part]
			if !ok {
				return nil, false
			}
			cur = v
			continue
		}
		if list, ok := asList(cur); ok {
			i, ok := index(part)
			if !ok || i >= len(list) {
				return nil, false
			}
			cur = list[i]
			continue
		}
		return nil, false
	}
	return cur, true
}

// set assigns the value at the path, creating intermediate documents
func set(doc bson.M, path string, value any) error {
	_, err := setIn(doc, splitPath(path), value, path)
	return err
}

func setIn(cur any, parts []string, value any, path string) (any, error) {
	if len(parts) == 0 {
		return value, nil
	}
	if cur == nil {
		cur = bson.M{}
	}
	if doc, ok := asDoc(cur); ok {
		child, err := setIn(doc[parts[0]], parts[1:], value, path)
		if err != nil {
			return nil, err
		}
		doc[parts[0]] = child
		return doc, nil
	}
	if list, ok := asList(cur); ok {
		i, ok := index(parts[0])
		if !ok {
			return nil, errors.New(errors.Operation, "cannot create field %q in element %v (%s)", parts[0], cur, path)
		}
		for len(list) <= i {
			list = append(list, nil)
		}
		child, err := setIn(list[i], parts[1:], value, path)
		if err != nil {
			return nil, err
		}
		list[i] = child
		return list, nil
	}
	return nil, errors.New(errors.Operation, "cannot create field %q in element %v (%s)", parts[0], cur, path)
}

// unset removes the value at the path. Array elements are nulled rather than removed.
func unset(doc bson.M, path string) {
	parts := splitPath(path)
	var parent any = doc
	if len(parts) > 1 {
		p, ok := get(doc, strings.Join(parts[:len(parts)-1], "."))
		if !ok {
			return
		}
		parent = p
	}
	last := parts[len(parts)-1]
	if d, ok := asDoc(parent); ok {
		delete(d, last)
		return
	}
	if list, ok := parent.([]any); ok {
		if i, ok := index(last); ok && i < len(list) {
			list[i] = nil
		}
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func isIntegral(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// typeOrder ranks values of different types the way documents sort
func typeOrder(v any) int {
	switch v := v.(type) {
	case nil:
		return 0
	case string:
		return 2
	case bson.M, map[string]any, bson.D:
		return 3
	case bson.ObjectId:
		return 5
	case bool:
		return 6
	case time.Time:
		return 7
	case bson.RegEx:
		return 8
	default:
		if isNumber(v) {
			return 1
		}
		if _, ok := asList(v); ok {
			return 4
		}
	}
	return 9
}

// compare orders two values; ok is false when the values are of different types
func compare(a, b any) (int, bool) {
	ta, tb := typeOrder(a), typeOrder(b)
	if ta != tb {
		return ta - tb, false
	}
	switch ta {
	case 0:
		return 0, true
	case 1:
		fa, fb := cast.ToFloat64(a), cast.ToFloat64(b)
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	case 2:
		return strings.Compare(a.(string), b.(string)), true
	case 5:
		return bytes.Compare([]byte(a.(bson.ObjectId)), []byte(b.(bson.ObjectId))), true
	case 6:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0, true
		case !ba:
			return -1, true
		}
		return 1, true
	case 7:
		ta, tb := normalizeTime(a.(time.Time)), normalizeTime(b.(time.Time))
		switch {
		case ta.Before(tb):
			return -1, true
		case ta.After(tb):
			return 1, true
		}
		return 0, true
	}
	if equal(a, b) {
		return 0, true
	}
	return strings.Compare(cast.ToString(normalize(a)), cast.ToString(normalize(b))), true
}

func normalizeTime(t time.Time) time.Time {
	return t.Truncate(time.Millisecond).UTC()
}

// normalize converts a value to a canonical form so that equal documents compare deeply equal
func normalize(v any) any {
	switch v := v.(type) {
	case time.Time:
		return normalizeTime(v)
	case bson.ObjectId, string, bool, nil, bson.RegEx:
		return v
	}
	if isNumber(v) {
		return cast.ToFloat64(v)
	}
	if doc, ok := asDoc(v); ok {
		out := map[string]any{}
		for k, val := range doc {
			out[k] = normalize(val)
		}
		return out
	}
	if list, ok := asList(v); ok {
		out := make([]any, len(list))
		for i, val := range list {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

func equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// plain converts bson documents to plain maps recursively
func plain(v any) any {
	if doc, ok := asDoc(v); ok {
		out := map[string]any{}
		for k, val := range doc {
			out[k] = plain(val)
		}
		return out
	}
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		for i, val := range list {
			out[i] = plain(val)
		}
		return out
	}
	return v
}

// clone deep copies a document
func clone(doc bson.M) bson.M {
	return cloneValue(doc).(bson.M)
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case bson.M:
		out := bson.M{}
		for k, val := range v {
			out[k] = cloneValue(val)
		}
		return out
	case map[string]any:
		out := bson.M{}
		for k, val := range v {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}

func sortDocs(docs []bson.M, order bson.D) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, field := range order {
			a, _ := get(docs[i], field.Name)
			b, _ := get(docs[j], field.Name)
			c, _ := compare(a, b)
			if c == 0 {
				continue
			}
			if cast.ToInt(field.Value) < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func project(doc bson.M, projection bson.M) bson.M {
	if len(projection) == 0 {
		return doc
	}
	include := false
	for _, v := range projection {
		if cast.ToInt(v) != 0 {
			include = true
		}
	}
	if !include {
		out := clone(doc)
		for k := range projection {
			unset(out, k)
		}
		return out
	}
	out := bson.M{}
	if v, ok := projection["_id"]; !ok || cast.ToInt(v) != 0 {
		if id, ok := doc["_id"]; ok {
			out["_id"] = id
		}
	}
	for k, v := range projection {
		if k == "_id" || cast.ToInt(v) == 0 {
			continue
		}
		if val, ok := get(doc, k); ok {
			_ = set(out, k, cloneValue(val))
		}
	}
	return out
}
