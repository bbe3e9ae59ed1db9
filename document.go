package odm

import (
	"sort"
	"strconv"
	"time"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/query"
	"github.com/autom8ter/odm/util"
	"github.com/spf13/cast"
	"gopkg.in/mgo.v2/bson"
)

// State is the persistence state of a document
type State int

const (
	// StateNew is a constructed document that has not been persisted
	StateNew State = iota
	// StateClean is a persisted document without unsaved changes
	StateClean
	// StateDirty is a persisted document with unsaved changes
	StateDirty
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateClean:
		return "clean"
	default:
		return "dirty"
	}
}

// Document is an instance of a schema. It records the storage paths that changed since it was
// loaded or last persisted.
type Document struct {
	schema  *Schema
	values  map[string]any
	changes *ChangeSet
	created bool
}

// New creates a document that has not been persisted. Values are keyed by logical field name;
// absent fields take their default.
func (s *Schema) New(values map[string]any) (*Document, error) {
	values = copyValues(values)
	d := &Document{
		schema:  s,
		values:  map[string]any{},
		changes: NewChangeSet(),
		created: true,
	}
	for _, f := range s.fields {
		if _, ok := values[f.Name()]; ok {
			continue
		}
		if f.PrimaryKey() {
			if v, ok := values[pkAlias]; ok {
				values[f.Name()] = v
				continue
			}
		}
		if def := f.Default(); def != nil {
			if err := d.Set(f.Name(), def); err != nil {
				return nil, err
			}
		}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == pkAlias {
			continue
		}
		if err := d.Set(k, values[k]); err != nil {
			return nil, err
		}
	}
	d.changes.Clear()
	return d, nil
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// Hydrate creates a clean document from its stored representation
func (s *Schema) Hydrate(raw bson.M) (*Document, error) {
	if cls := cast.ToString(raw[ClassKey]); cls != "" {
		if sub := s.subclass(cls); sub != nil {
			s = sub
		}
	}
	d := &Document{
		schema:  s,
		values:  map[string]any{},
		changes: NewChangeSet(),
	}
	for key, value := range raw {
		if key == ClassKey {
			continue
		}
		f, ok := s.byDB[key]
		if !ok {
			if !s.dynamic {
				continue
			}
			f = DynamicField(key)
		}
		stored, err := f.FromStorage(value)
		if err != nil {
			return nil, errors.Wrap(err, errors.Validation, "failed to load field %s of %s", f.Name(), s.name)
		}
		wrapped, err := wrap(f, stored, changeLink{tracker: d.changes, key: f.DBField()}, true)
		if err != nil {
			return nil, err
		}
		d.values[f.Name()] = wrapped
	}
	return d, nil
}

// wrap converts a value to its in-memory representation: lists and dicts become tracked containers
// bound to link, mappings of embedded fields become documents.
func wrap(field Field, value any, link changeLink, hydrated bool) (any, error) {
	if value == nil {
		return nil, nil
	}
	if k, ok := field.(*keyField); ok {
		field = k.Field
	}
	switch f := field.(type) {
	case *listField:
		var items []any
		switch v := value.(type) {
		case *List:
			items = v.items
		default:
			var ok bool
			if items, ok = query.ToSlice(value); !ok {
				return nil, errors.New(errors.Validation, "field %s only accepts lists, got %T", f.name, value)
			}
		}
		l := &List{field: f, link: link, items: make([]any, len(items))}
		for i, item := range items {
			w, err := wrap(f.elem, item, link.child(strconv.Itoa(i)), hydrated)
			if err != nil {
				return nil, err
			}
			l.items[i] = w
		}
		return l, nil
	case *dictField:
		var items map[string]any
		switch v := value.(type) {
		case *Dict:
			items = v.items
		default:
			if !query.IsMapping(value) {
				return nil, errors.New(errors.Validation, "field %s only accepts mappings, got %T", f.name, value)
			}
			items = mappingValues(value)
		}
		m := &Dict{field: f, link: link, items: make(map[string]any, len(items))}
		for k, item := range items {
			if err := validKey(k); err != nil {
				return nil, err
			}
			w, err := wrap(f.elem, item, link.child(k), hydrated)
			if err != nil {
				return nil, err
			}
			m.items[k] = w
		}
		return m, nil
	case *embeddedField:
		switch v := value.(type) {
		case *Document:
			if v.schema != f.schema && f.schema.subclass(v.schema.ClassName()) == nil {
				return nil, errors.New(errors.Validation, "field %s only accepts %s documents, got %s", f.name, f.schema.Name(), v.schema.Name())
			}
			return v, nil
		}
		if !query.IsMapping(value) {
			return nil, errors.New(errors.Validation, "field %s only accepts %s documents, got %T", f.name, f.schema.Name(), value)
		}
		if hydrated {
			return f.schema.Hydrate(bson.M(mappingValues(value)))
		}
		return f.schema.New(mappingValues(value))
	case *referenceField:
		switch v := value.(type) {
		case *Document:
			return v, nil
		}
		return f.ToStorage(value)
	case *dynamicField:
		return value, nil
	}
	if hydrated {
		return value, nil
	}
	return field.ToStorage(value)
}

// Schema returns the schema of the document
func (d *Document) Schema() *Schema { return d.schema }

// State returns the persistence state of the document
func (d *Document) State() State {
	switch {
	case d.created:
		return StateNew
	case len(d.ChangedPaths()) > 0:
		return StateDirty
	default:
		return StateClean
	}
}

func (d *Document) field(name string) (Field, error) {
	f, err := d.schema.lookup(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "")
	}
	return f, nil
}

// Get returns the value of the field with the logical name
func (d *Document) Get(name string) any {
	f, err := d.field(name)
	if err != nil {
		return nil
	}
	return d.values[f.Name()]
}

// Has reports whether the field has a value
func (d *Document) Has(name string) bool {
	return d.Get(name) != nil
}

// GetString returns the field's value as a string
func (d *Document) GetString(name string) string {
	return cast.ToString(d.Get(name))
}

// GetInt returns the field's value as an int
func (d *Document) GetInt(name string) int {
	return cast.ToInt(d.Get(name))
}

// GetFloat returns the field's value as a float64
func (d *Document) GetFloat(name string) float64 {
	return cast.ToFloat64(d.Get(name))
}

// GetBool returns the field's value as a bool
func (d *Document) GetBool(name string) bool {
	return cast.ToBool(d.Get(name))
}

// GetTime returns the field's value as a time
func (d *Document) GetTime(name string) time.Time {
	return cast.ToTime(d.Get(name))
}

// Set assigns the field and marks it dirty
func (d *Document) Set(name string, value any) error {
	f, err := d.field(name)
	if err != nil {
		return err
	}
	wrapped, err := wrap(f, value, changeLink{tracker: d.changes, key: f.DBField()}, false)
	if err != nil {
		return err
	}
	if wrapped == nil {
		delete(d.values, f.Name())
	} else {
		d.values[f.Name()] = wrapped
	}
	d.changes.Mark(f.DBField())
	return nil
}

// Unset removes the field's value and marks it dirty
func (d *Document) Unset(name string) error {
	f, err := d.field(name)
	if err != nil {
		return err
	}
	delete(d.values, f.Name())
	d.changes.Mark(f.DBField())
	return nil
}

// List returns the list held by a list field, creating an empty one when the field is unset
func (d *Document) List(name string) (*List, error) {
	f, err := d.field(name)
	if err != nil {
		return nil, err
	}
	lf, ok := f.(*listField)
	if !ok {
		return nil, errors.New(errors.Validation, "field %s is not a list", name)
	}
	if l, ok := d.values[f.Name()].(*List); ok {
		return l, nil
	}
	l := &List{field: lf, link: changeLink{tracker: d.changes, key: f.DBField()}}
	d.values[f.Name()] = l
	return l, nil
}

// Dict returns the dict held by a dict field, creating an empty one when the field is unset
func (d *Document) Dict(name string) (*Dict, error) {
	f, err := d.field(name)
	if err != nil {
		return nil, err
	}
	df, ok := f.(*dictField)
	if !ok {
		return nil, errors.New(errors.Validation, "field %s is not a dict", name)
	}
	if m, ok := d.values[f.Name()].(*Dict); ok {
		return m, nil
	}
	m := &Dict{field: df, link: changeLink{tracker: d.changes, key: f.DBField()}, items: map[string]any{}}
	d.values[f.Name()] = m
	return m, nil
}

// Embedded returns the document held by an embedded field (nil when unset)
func (d *Document) Embedded(name string) (*Document, error) {
	f, err := d.field(name)
	if err != nil {
		return nil, err
	}
	if _, ok := f.(*embeddedField); !ok {
		return nil, errors.New(errors.Validation, "field %s is not an embedded document", name)
	}
	doc, _ := d.values[f.Name()].(*Document)
	return doc, nil
}

// Ref returns the identifier held by a reference field, or the referenced document when one was assigned
func (d *Document) Ref(name string) any {
	return d.Get(name)
}

// ID returns the document identifier (nil until persisted or assigned)
func (d *Document) ID() any {
	if d.schema.idField == nil {
		return nil
	}
	return d.values[d.schema.idField.Name()]
}

// SetID assigns the identifier without marking it dirty
func (d *Document) SetID(id any) error {
	f := d.schema.idField
	if f == nil {
		return errors.New(errors.Validation, "%s documents have no identifier", d.schema.name)
	}
	v, err := f.ToStorage(id)
	if err != nil {
		return err
	}
	d.values[f.Name()] = v
	return nil
}

// ChangedPaths returns the dirty storage paths of the document, including the paths of reachable
// embedded documents that are not covered by one of its own paths
func (d *Document) ChangedPaths() []string {
	paths := d.changes.Paths()
	d.walkEmbedded(func(prefix string, child *Document) {
		if d.changes.Covers(prefix) {
			return
		}
		for _, p := range child.ChangedPaths() {
			paths = append(paths, prefix+"."+p)
		}
	})
	sort.Strings(paths)
	return paths
}

// walkEmbedded calls fn with the storage path of every embedded document directly reachable
// through the document's values, lists and dicts. Referenced documents belong to their own
// collection and are not walked.
func (d *Document) walkEmbedded(fn func(path string, child *Document)) {
	var walk func(path string, field Field, v any)
	walk = func(path string, field Field, v any) {
		switch t := v.(type) {
		case *Document:
			if isEmbedded(field) {
				fn(path, t)
			}
		case *List:
			for i, item := range t.items {
				walk(path+"."+strconv.Itoa(i), t.field.elem, item)
			}
		case *Dict:
			for _, k := range t.Keys() {
				walk(path+"."+k, t.field.elem, t.items[k])
			}
		}
	}
	for _, f := range d.fieldsWithValues() {
		walk(f.DBField(), f, d.values[f.Name()])
	}
}

// isEmbedded reports whether documents held under the field are owned by the holder
func isEmbedded(field Field) bool {
	if k, ok := field.(*keyField); ok {
		field = k.Field
	}
	_, ok := field.(*embeddedField)
	return ok
}

// ClearChanges forgets every recorded change of the document tree and marks it persisted
func (d *Document) ClearChanges() {
	d.created = false
	d.changes.Clear()
	for _, f := range d.fieldsWithValues() {
		rebind(f, d.values[f.Name()], changeLink{tracker: d.changes, key: f.DBField()})
	}
}

// rebind re-keys containers after their positions may have moved and clears embedded documents
func rebind(field Field, v any, link changeLink) {
	switch t := v.(type) {
	case *Document:
		if isEmbedded(field) {
			t.ClearChanges()
		}
	case *List:
		t.link = link
		for i, item := range t.items {
			rebind(t.field.elem, item, link.child(strconv.Itoa(i)))
		}
	case *Dict:
		t.link = link
		for k, item := range t.items {
			rebind(t.field.elem, item, link.child(k))
		}
	}
}

// fieldsWithValues returns the fields holding a value: schema fields first, then dynamic fields
func (d *Document) fieldsWithValues() []Field {
	var fields []Field
	seen := map[string]bool{}
	for _, f := range d.schema.fields {
		if _, ok := d.values[f.Name()]; ok {
			fields = append(fields, f)
			seen[f.Name()] = true
		}
	}
	var extra []string
	for name := range d.values {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		if f, err := d.schema.lookup(name); err == nil {
			fields = append(fields, f)
		}
	}
	return fields
}

// ToStorage returns the stored representation of the document
func (d *Document) ToStorage() (bson.M, error) {
	out := bson.M{}
	for _, f := range d.fieldsWithValues() {
		v, err := f.ToStorage(d.values[f.Name()])
		if err != nil {
			return nil, err
		}
		if v != nil {
			out[f.DBField()] = v
		}
	}
	if d.schema.Polymorphic() {
		out[ClassKey] = d.schema.ClassName()
	}
	return out, nil
}

// Map returns the document's values keyed by logical name in their stored representation
func (d *Document) Map() (map[string]any, error) {
	out := map[string]any{}
	for _, f := range d.fieldsWithValues() {
		v, err := f.ToStorage(d.values[f.Name()])
		if err != nil {
			return nil, err
		}
		if v != nil {
			out[f.Name()] = v
		}
	}
	return out, nil
}

// Decode decodes the document into out, matching json tags against logical field names
func (d *Document) Decode(out any) error {
	values, err := d.Map()
	if err != nil {
		return err
	}
	if id, ok := values["id"].(bson.ObjectId); ok {
		values["id"] = id.Hex()
	}
	return errors.Wrap(util.Decode(values, out), errors.Validation, "failed to decode %s document", d.schema.name)
}

// Validate checks required fields, embedded documents and the schema's json schema validator
func (d *Document) Validate() error {
	for _, f := range d.schema.fields {
		if d.values[f.Name()] == nil && f.Required() {
			return errors.New(errors.Validation, "field %s is required on %s", f.Name(), d.schema.name)
		}
	}
	var err error
	d.walkEmbedded(func(path string, child *Document) {
		if err == nil {
			err = errors.Wrap(child.Validate(), errors.Validation, "invalid embedded document %s", path)
		}
	})
	if err != nil {
		return err
	}
	stored, err := d.ToStorage()
	if err != nil {
		return err
	}
	return d.schema.validate(stored)
}
