package odm

import (
	"time"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/query"
	"github.com/spf13/cast"
	"gopkg.in/mgo.v2/bson"
)

// Field is a typed document field. It coerces query operands and converts values to and from
// their stored representation.
type Field interface {
	query.Field
	// Name is the logical name of the field
	Name() string
	Unique() bool
	// Sparse reports whether a unique index on the field skips documents missing it
	Sparse() bool
	PrimaryKey() bool
	// Default is the value assigned to new documents (nil for none)
	Default() any
	// Indexable reports whether array indexes may follow the field in a path
	Indexable() bool
	// ToStorage converts a value to its stored representation
	ToStorage(value any) (any, error)
	// FromStorage converts a stored value to its in-memory representation
	FromStorage(value any) (any, error)
}

// FieldOpt configures a field
type FieldOpt func(f *baseField)

// Required marks the field as required
func Required() FieldOpt {
	return func(f *baseField) {
		f.required = true
	}
}

// DBField sets the storage name of the field
func DBField(name string) FieldOpt {
	return func(f *baseField) {
		f.dbField = name
	}
}

// Default sets the value assigned to new documents. Functions of type func() any are called per document.
func Default(value any) FieldOpt {
	return func(f *baseField) {
		f.def = value
	}
}

// Unique adds a unique index on the field
func Unique() FieldOpt {
	return func(f *baseField) {
		f.unique = true
	}
}

// Sparse makes the field's unique index skip documents missing the field
func Sparse() FieldOpt {
	return func(f *baseField) {
		f.sparse = true
	}
}

// PrimaryKey makes the field the document identifier
func PrimaryKey() FieldOpt {
	return func(f *baseField) {
		f.primaryKey = true
		f.required = true
		f.dbField = "_id"
	}
}

// Choices restricts the field to the given values
func Choices(values ...any) FieldOpt {
	return func(f *baseField) {
		f.choices = values
	}
}

// OnDelete sets the rule applied to documents referencing a deleted document. Only reference
// fields (and lists of reference fields) honor it.
func OnDelete(rule DeleteRule) FieldOpt {
	return func(f *baseField) {
		f.deleteRule = rule
	}
}

type baseField struct {
	name       string
	dbField    string
	required   bool
	unique     bool
	sparse     bool
	primaryKey bool
	def        any
	choices    []any
	deleteRule DeleteRule
}

func newBase(name string, opts []FieldOpt) baseField {
	f := baseField{name: name}
	for _, o := range opts {
		o(&f)
	}
	return f
}

func (f *baseField) Name() string { return f.name }

func (f *baseField) DBField() string {
	if f.dbField != "" {
		return f.dbField
	}
	return f.name
}

func (f *baseField) Required() bool   { return f.required }
func (f *baseField) Unique() bool     { return f.unique }
func (f *baseField) Sparse() bool     { return f.sparse }
func (f *baseField) PrimaryKey() bool { return f.primaryKey }
func (f *baseField) Indexable() bool  { return false }

func (f *baseField) Default() any {
	if fn, ok := f.def.(func() any); ok {
		return fn()
	}
	return f.def
}

func (f *baseField) checkChoice(value any) error {
	if len(f.choices) == 0 || value == nil {
		return nil
	}
	for _, c := range f.choices {
		if c == value {
			return nil
		}
	}
	return errors.New(errors.Validation, "value %v is not a valid choice for field %s", value, f.name)
}

func (f *baseField) invalid(err error, value any) error {
	return errors.Wrap(err, errors.Validation, "invalid value %v for field %s", value, f.name)
}

type scalarField struct {
	baseField
	convert func(value any) (any, error)
}

func (f *scalarField) ToStorage(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	v, err := f.convert(value)
	if err != nil {
		return nil, f.invalid(err, value)
	}
	if err := f.checkChoice(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (f *scalarField) FromStorage(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return f.convert(value)
}

func (f *scalarField) PrepareQueryValue(op string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if _, ok := value.(bson.RegEx); ok {
		return value, nil
	}
	v, err := f.convert(value)
	if err != nil {
		return nil, f.invalid(err, value)
	}
	return v, nil
}

// StringField is a string field. String operators compile to regular expressions.
func StringField(name string, opts ...FieldOpt) Field {
	return &stringField{scalarField{baseField: newBase(name, opts), convert: func(value any) (any, error) {
		return cast.ToStringE(value)
	}}}
}

type stringField struct {
	scalarField
}

func (f *stringField) PrepareQueryValue(op string, value any) (any, error) {
	if s, ok := value.(string); ok && query.Operator(op).IsString() {
		return query.StringPattern(query.Operator(op), s), nil
	}
	return f.scalarField.PrepareQueryValue(op, value)
}

// IntField is an integer field
func IntField(name string, opts ...FieldOpt) Field {
	return &scalarField{baseField: newBase(name, opts), convert: func(value any) (any, error) {
		return cast.ToIntE(value)
	}}
}

// FloatField is a floating point field
func FloatField(name string, opts ...FieldOpt) Field {
	return &scalarField{baseField: newBase(name, opts), convert: func(value any) (any, error) {
		return cast.ToFloat64E(value)
	}}
}

// BoolField is a boolean field
func BoolField(name string, opts ...FieldOpt) Field {
	return &scalarField{baseField: newBase(name, opts), convert: func(value any) (any, error) {
		return cast.ToBoolE(value)
	}}
}

// DateTimeField is a timestamp field stored with millisecond precision
func DateTimeField(name string, opts ...FieldOpt) Field {
	return &scalarField{baseField: newBase(name, opts), convert: func(value any) (any, error) {
		t, err := cast.ToTimeE(value)
		if err != nil {
			return nil, err
		}
		return t.UTC().Truncate(time.Millisecond), nil
	}}
}

// ObjectIDField is an ObjectId field. Hex strings are converted.
func ObjectIDField(name string, opts ...FieldOpt) Field {
	return &scalarField{baseField: newBase(name, opts), convert: toObjectID}
}

func toObjectID(value any) (any, error) {
	switch v := value.(type) {
	case bson.ObjectId:
		if !v.Valid() {
			return nil, errors.New(errors.Validation, "invalid ObjectId")
		}
		return v, nil
	case string:
		if !bson.IsObjectIdHex(v) {
			return nil, errors.New(errors.Validation, "%q is not a valid ObjectId, it must be a 12-byte input or a 24-character hex string", v)
		}
		return bson.ObjectIdHex(v), nil
	case *Document:
		return toObjectID(v.ID())
	}
	return nil, errors.New(errors.Validation, "%v is not a valid ObjectId", value)
}

// ListField is a list of elements of the element field
func ListField(name string, elem Field, opts ...FieldOpt) Field {
	return &listField{baseField: newBase(name, opts), elem: elem}
}

type listField struct {
	baseField
	elem Field
}

func (f *listField) Indexable() bool { return true }

// Elem returns the element field
func (f *listField) Elem() Field { return f.elem }

func (f *listField) items(value any) ([]any, error) {
	switch v := value.(type) {
	case *List:
		return v.items, nil
	}
	items, ok := query.ToSlice(value)
	if !ok {
		return nil, errors.New(errors.Validation, "field %s only accepts lists, got %T", f.name, value)
	}
	return items, nil
}

func (f *listField) ToStorage(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	items, err := f.items(value)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := f.elem.ToStorage(item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *listField) FromStorage(value any) (any, error) {
	return value, nil
}

func (f *listField) PrepareQueryValue(op string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if query.IsSequence(value) || isContainer(value) {
		return f.ToStorage(value)
	}
	return f.elem.PrepareQueryValue(op, value)
}

// DictField is a mapping of string keys to elements of the element field. A nil element field
// accepts any value.
func DictField(name string, elem Field, opts ...FieldOpt) Field {
	if elem == nil {
		elem = DynamicField("")
	}
	return &dictField{baseField: newBase(name, opts), elem: elem}
}

type dictField struct {
	baseField
	elem Field
}

func (f *dictField) Indexable() bool { return true }

// Elem returns the element field
func (f *dictField) Elem() Field { return f.elem }

func (f *dictField) ToStorage(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	var entries map[string]any
	switch v := value.(type) {
	case *Dict:
		entries = v.items
	default:
		if !query.IsMapping(value) {
			return nil, errors.New(errors.Validation, "field %s only accepts mappings, got %T", f.name, value)
		}
		entries = map[string]any{}
		for _, e := range query.Elements(value) {
			entries[e.Name] = e.Value
		}
	}
	out := bson.M{}
	for k, item := range entries {
		v, err := f.elem.ToStorage(item)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (f *dictField) FromStorage(value any) (any, error) {
	return value, nil
}

func (f *dictField) PrepareQueryValue(op string, value any) (any, error) {
	if query.IsMapping(value) || isContainer(value) {
		return f.ToStorage(value)
	}
	return f.elem.PrepareQueryValue(op, value)
}

// EmbeddedField is a document of the embedded schema stored inline
func EmbeddedField(name string, schema *Schema, opts ...FieldOpt) Field {
	return &embeddedField{baseField: newBase(name, opts), schema: schema}
}

type embeddedField struct {
	baseField
	schema *Schema
}

// Schema returns the embedded schema
func (f *embeddedField) Schema() *Schema { return f.schema }

func (f *embeddedField) ToStorage(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Document:
		return v.ToStorage()
	}
	if !query.IsMapping(value) {
		return nil, errors.New(errors.Validation, "field %s only accepts %s documents, got %T", f.name, f.schema.Name(), value)
	}
	doc, err := f.schema.New(mappingValues(value))
	if err != nil {
		return nil, err
	}
	return doc.ToStorage()
}

func (f *embeddedField) FromStorage(value any) (any, error) {
	return value, nil
}

func (f *embeddedField) PrepareQueryValue(op string, value any) (any, error) {
	if doc, ok := value.(*Document); ok {
		return doc.ToStorage()
	}
	return value, nil
}

// ReferenceField references a document of the target schema by identifier. The target may be
// "self" or a schema registered later.
func ReferenceField(name string, target string, opts ...FieldOpt) Field {
	return &referenceField{baseField: newBase(name, opts), target: target}
}

type referenceField struct {
	baseField
	target string
}

// Target returns the name of the referenced schema
func (f *referenceField) Target() string { return f.target }

// DeleteRule returns the rule applied when a referenced document is deleted
func (f *referenceField) DeleteRule() DeleteRule { return f.deleteRule }

func referenceID(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Document:
		if v.ID() == nil {
			return nil, errors.New(errors.Validation, "you can only reference documents once they have been saved to the database")
		}
		return v.ID(), nil
	case string:
		if bson.IsObjectIdHex(v) {
			return bson.ObjectIdHex(v), nil
		}
	}
	return value, nil
}

func (f *referenceField) ToStorage(value any) (any, error) {
	id, err := referenceID(value)
	if err != nil {
		return nil, f.invalid(err, value)
	}
	return id, nil
}

func (f *referenceField) FromStorage(value any) (any, error) {
	return value, nil
}

func (f *referenceField) PrepareQueryValue(op string, value any) (any, error) {
	return f.ToStorage(value)
}

// GeoPointField is a legacy [x, y] coordinate pair backed by a 2d index
func GeoPointField(name string, opts ...FieldOpt) Field {
	return &geoPointField{baseField: newBase(name, opts)}
}

type geoPointField struct {
	baseField
}

func (f *geoPointField) GeoIndex() query.GeoIndex { return query.Geo2D }

func (f *geoPointField) ToStorage(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	coords, ok := query.ToSlice(value)
	if !ok || len(coords) != 2 {
		return nil, errors.New(errors.Validation, "field %s must be an [x, y] coordinate pair", f.name)
	}
	out := make([]any, 2)
	for i, c := range coords {
		v, err := cast.ToFloat64E(c)
		if err != nil {
			return nil, f.invalid(err, value)
		}
		out[i] = v
	}
	return out, nil
}

func (f *geoPointField) FromStorage(value any) (any, error) {
	return value, nil
}

func (f *geoPointField) PrepareQueryValue(op string, value any) (any, error) {
	if query.Operator(op).IsGeo() {
		return value, nil
	}
	return f.ToStorage(value)
}

// PointField is a GeoJSON Point backed by a 2dsphere index
func PointField(name string, opts ...FieldOpt) Field {
	return &geoJSONField{baseField: newBase(name, opts), kind: "Point"}
}

// LineStringField is a GeoJSON LineString backed by a 2dsphere index
func LineStringField(name string, opts ...FieldOpt) Field {
	return &geoJSONField{baseField: newBase(name, opts), kind: "LineString"}
}

// PolygonField is a GeoJSON Polygon backed by a 2dsphere index
func PolygonField(name string, opts ...FieldOpt) Field {
	return &geoJSONField{baseField: newBase(name, opts), kind: "Polygon"}
}

type geoJSONField struct {
	baseField
	kind string
}

func (f *geoJSONField) GeoIndex() query.GeoIndex { return query.GeoSphere }

func (f *geoJSONField) ToStorage(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if query.IsMapping(value) {
		values := mappingValues(value)
		if values["type"] != f.kind {
			return nil, errors.New(errors.Validation, "field %s must be a GeoJSON %s, got type %v", f.name, f.kind, values["type"])
		}
		if _, ok := values["coordinates"]; !ok {
			return nil, errors.New(errors.Validation, "field %s is missing coordinates", f.name)
		}
		return bson.M(values), nil
	}
	if !query.IsSequence(value) {
		return nil, errors.New(errors.Validation, "field %s must be a GeoJSON %s or its coordinates", f.name, f.kind)
	}
	return bson.M{"type": f.kind, "coordinates": value}, nil
}

func (f *geoJSONField) FromStorage(value any) (any, error) {
	return value, nil
}

func (f *geoJSONField) PrepareQueryValue(op string, value any) (any, error) {
	if query.Operator(op).IsGeo() {
		return value, nil
	}
	return f.ToStorage(value)
}

// DynamicField accepts any value. Dynamic schemas use it for undeclared fields.
func DynamicField(name string, opts ...FieldOpt) Field {
	return &dynamicField{baseField: newBase(name, opts)}
}

type dynamicField struct {
	baseField
}

func (f *dynamicField) Indexable() bool { return true }

func (f *dynamicField) ToStorage(value any) (any, error) {
	return serializeValue(value)
}

func (f *dynamicField) FromStorage(value any) (any, error) {
	return value, nil
}

func (f *dynamicField) PrepareQueryValue(op string, value any) (any, error) {
	if query.Operator(op).IsString() {
		return query.StringPattern(query.Operator(op), value), nil
	}
	if isContainer(value) {
		return serializeValue(value)
	}
	return value, nil
}

func isContainer(value any) bool {
	switch value.(type) {
	case *List, *Dict, *Document:
		return true
	}
	return false
}

// serializeValue converts a value of unknown field type to its stored representation
func serializeValue(value any) (any, error) {
	switch v := value.(type) {
	case *Document:
		return v.ToStorage()
	case *List:
		return serializeValue(v.items)
	case *Dict:
		return serializeValue(v.items)
	}
	if query.IsMapping(value) {
		out := bson.M{}
		for _, e := range query.Elements(value) {
			s, err := serializeValue(e.Value)
			if err != nil {
				return nil, err
			}
			out[e.Name] = s
		}
		return out, nil
	}
	if items, ok := query.ToSlice(value); ok {
		out := make([]any, len(items))
		for i, item := range items {
			s, err := serializeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		return out, nil
	}
	return value, nil
}

func mappingValues(value any) map[string]any {
	out := map[string]any{}
	for _, e := range query.Elements(value) {
		out[e.Name] = e.Value
	}
	return out
}
