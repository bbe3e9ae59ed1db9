package odm

import (
	"strconv"
	"strings"

	"github.com/autom8ter/odm/query"
	"gopkg.in/mgo.v2/bson"
)

// Delta is the minimal update bringing the stored document in line with the in-memory one.
// Unsets always carry the value 1.
type Delta struct {
	Sets   bson.M
	Unsets bson.M
}

// Empty reports whether the delta changes nothing
func (d Delta) Empty() bool {
	return len(d.Sets) == 0 && len(d.Unsets) == 0
}

// Update returns the delta as an update document
func (d Delta) Update() bson.M {
	update := bson.M{}
	if len(d.Sets) > 0 {
		update["$set"] = d.Sets
	}
	if len(d.Unsets) > 0 {
		update["$unset"] = d.Unsets
	}
	return update
}

// Delta computes the changes to persist. A new document yields its full stored representation.
func (d *Document) Delta() (Delta, error) {
	if d.created {
		stored, err := d.ToStorage()
		if err != nil {
			return Delta{}, err
		}
		return Delta{Sets: stored, Unsets: bson.M{}}, nil
	}
	delta := Delta{Sets: bson.M{}, Unsets: bson.M{}}
	if err := d.collectDelta("", delta); err != nil {
		return Delta{}, err
	}
	return delta, nil
}

func (d *Document) collectDelta(prefix string, delta Delta) error {
	for _, path := range d.changes.Paths() {
		value, field := d.valueAt(path)
		if isEmpty(value) {
			delta.Unsets[prefix+path] = 1
			continue
		}
		var (
			stored any
			err    error
		)
		if field != nil {
			stored, err = field.ToStorage(value)
		} else {
			stored, err = serializeValue(value)
		}
		if err != nil {
			return err
		}
		delta.Sets[prefix+path] = stored
	}
	var err error
	d.walkEmbedded(func(path string, child *Document) {
		if err != nil || d.changes.Covers(path) {
			return
		}
		err = child.collectDelta(prefix+path+".", delta)
	})
	return err
}

// valueAt returns the value at a storage path and the field governing it
func (d *Document) valueAt(path string) (any, Field) {
	parts := strings.Split(path, ".")
	f, ok := d.schema.byDB[parts[0]]
	if !ok {
		if !d.schema.dynamic {
			return nil, nil
		}
		f = DynamicField(parts[0])
	}
	value := d.values[f.Name()]
	field := f
	for _, part := range parts[1:] {
		if field != nil {
			if k, ok := field.(*keyField); ok {
				field = k.Field
			}
		}
		switch v := value.(type) {
		case *Document:
			child, ok := v.schema.byDB[part]
			if !ok {
				return nil, nil
			}
			value, field = v.values[child.Name()], child
		case *List:
			i, err := strconv.Atoi(part)
			if err != nil {
				return nil, nil
			}
			value, field = v.Get(i), v.field.elem
		case *Dict:
			value, _ = v.Get(part)
			field = v.field.elem
		default:
			field = nil
			if query.IsMapping(value) {
				value = mappingValues(value)[part]
				continue
			}
			items, ok := query.ToSlice(value)
			i, err := strconv.Atoi(part)
			if !ok || err != nil || i < 0 || i >= len(items) {
				return nil, nil
			}
			value = items[i]
		}
	}
	return value, field
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case *List:
		return v.Len() == 0
	case *Dict:
		return v.Len() == 0
	}
	if query.IsMapping(value) {
		return len(query.Elements(value)) == 0
	}
	if items, ok := query.ToSlice(value); ok {
		return len(items) == 0
	}
	return false
}
