package odm

import (
	"encoding/json"
	"strings"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/query"
	"github.com/autom8ter/odm/storage"
	"github.com/huandu/xstrings"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/mgo.v2/bson"
)

const (
	// ClassKey is the storage field holding the class chain of documents of polymorphic schemas
	ClassKey = "_cls"
	// IDKey is the storage field of the document identifier
	IDKey = "_id"
	pkAlias = "pk"
)

// Schema describes the fields of a document class and how it is stored
type Schema struct {
	name             string
	parent           *Schema
	children         []*Schema
	own              []Field
	fields           []Field
	byName           map[string]Field
	byDB             map[string]Field
	idField          Field
	collection       string
	embedded         bool
	allowInheritance bool
	dynamic          bool
	indexes          [][]string
	validator        *gojsonschema.Schema
	rawValidator     string
}

// SchemaOpt configures a Schema
type SchemaOpt func(s *Schema)

// WithFields adds fields to the schema
func WithFields(fields ...Field) SchemaOpt {
	return func(s *Schema) {
		s.own = append(s.own, fields...)
	}
}

// Embedded marks the schema as embedded only: it has no collection and no identifier
func Embedded() SchemaOpt {
	return func(s *Schema) {
		s.embedded = true
	}
}

// AllowInheritance allows other schemas to extend the schema
func AllowInheritance() SchemaOpt {
	return func(s *Schema) {
		s.allowInheritance = true
	}
}

// Extends makes the schema a subclass of parent. Subclasses share the parent's collection.
func Extends(parent *Schema) SchemaOpt {
	return func(s *Schema) {
		s.parent = parent
	}
}

// WithCollection overrides the collection name
func WithCollection(name string) SchemaOpt {
	return func(s *Schema) {
		s.collection = name
	}
}

// WithIndex adds a compound index. Keys are logical field paths prefixed with '+' (ascending,
// the default) or '-' (descending).
func WithIndex(keys ...string) SchemaOpt {
	return func(s *Schema) {
		s.indexes = append(s.indexes, keys)
	}
}

// Dynamic allows fields that are not declared on the schema
func Dynamic() SchemaOpt {
	return func(s *Schema) {
		s.dynamic = true
	}
}

// WithValidator validates documents against the json schema before they are persisted
func WithValidator(jsonSchema string) SchemaOpt {
	return func(s *Schema) {
		s.rawValidator = jsonSchema
	}
}

// NewSchema creates a schema
func NewSchema(name string, opts ...SchemaOpt) (*Schema, error) {
	if name == "" {
		return nil, errors.New(errors.Validation, "empty schema name")
	}
	s := &Schema{
		name:   name,
		byName: map[string]Field{},
		byDB:   map[string]Field{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.parent != nil {
		if !s.parent.allowInheritance && s.parent.parent == nil {
			return nil, errors.New(errors.Validation, "schema %s does not allow inheritance", s.parent.name)
		}
		s.embedded = s.parent.embedded
		s.dynamic = s.dynamic || s.parent.dynamic
		s.collection = s.parent.Collection()
		s.validator = s.parent.validator
		for _, f := range s.parent.fields {
			if err := s.addField(f); err != nil {
				return nil, err
			}
		}
	}
	if s.collection == "" && !s.embedded {
		s.collection = xstrings.ToSnakeCase(name)
	}
	for _, f := range s.own {
		if err := s.addField(f); err != nil {
			return nil, err
		}
	}
	if s.idField == nil && !s.embedded {
		id := ObjectIDField("id", DBField(IDKey))
		s.fields = append([]Field{id}, s.fields...)
		s.byName["id"] = id
		s.byDB[IDKey] = id
		s.idField = id
	}
	if s.rawValidator != "" {
		validator, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s.rawValidator))
		if err != nil {
			return nil, errors.Wrap(err, errors.Validation, "failed to load json schema for %s", name)
		}
		s.validator = validator
	}
	if s.parent != nil {
		s.parent.children = append(s.parent.children, s)
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error. It is intended for package level schema declarations.
func MustSchema(name string, opts ...SchemaOpt) *Schema {
	s, err := NewSchema(name, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) addField(f Field) error {
	if f.Name() == "" {
		return errors.New(errors.Validation, "schema %s: field without a name", s.name)
	}
	if f.Name() == pkAlias {
		return errors.New(errors.Validation, "schema %s: %q is a reserved field name", s.name, pkAlias)
	}
	if existing, ok := s.byName[f.Name()]; ok {
		// subclasses may redeclare inherited fields
		delete(s.byDB, existing.DBField())
		for i, field := range s.fields {
			if field.Name() == f.Name() {
				s.fields = append(s.fields[:i], s.fields[i+1:]...)
				break
			}
		}
	}
	if other, ok := s.byDB[f.DBField()]; ok {
		return errors.New(errors.Validation, "schema %s: fields %s and %s share the storage name %q", s.name, other.Name(), f.Name(), f.DBField())
	}
	if f.PrimaryKey() {
		if s.embedded {
			return errors.New(errors.Validation, "schema %s: embedded schemas have no primary key", s.name)
		}
		if s.idField != nil && s.idField.Name() != f.Name() {
			return errors.New(errors.Validation, "schema %s: only one primary key is allowed", s.name)
		}
		s.idField = f
	}
	s.fields = append(s.fields, f)
	s.byName[f.Name()] = f
	s.byDB[f.DBField()] = f
	return nil
}

// Name returns the schema name
func (s *Schema) Name() string { return s.name }

// ClassName returns the class chain of the schema, e.g. "Animal.Dog"
func (s *Schema) ClassName() string {
	if s.parent == nil {
		return s.name
	}
	return s.parent.ClassName() + "." + s.name
}

// Collection returns the name of the collection documents are stored in
func (s *Schema) Collection() string { return s.collection }

// IsEmbedded reports whether the schema is embedded only
func (s *Schema) IsEmbedded() bool { return s.embedded }

// Parent returns the schema the schema extends (if any)
func (s *Schema) Parent() *Schema { return s.parent }

// Polymorphic reports whether documents of the schema carry a class discriminator
func (s *Schema) Polymorphic() bool {
	return s.allowInheritance || s.parent != nil
}

// Fields returns the fields of the schema, inherited fields first
func (s *Schema) Fields() []Field {
	return append([]Field{}, s.fields...)
}

// Field returns the field with the logical name. "pk" is an alias of the identifier field.
func (s *Schema) Field(name string) (Field, bool) {
	if name == pkAlias && s.idField != nil {
		return s.idField, true
	}
	f, ok := s.byName[name]
	return f, ok
}

// IDField returns the identifier field. Embedded schemas have none.
func (s *Schema) IDField() Field { return s.idField }

// ClassNames returns the class names of the schema and all of its subclasses
func (s *Schema) ClassNames() []string {
	names := []string{s.ClassName()}
	for _, c := range s.children {
		names = append(names, c.ClassNames()...)
	}
	return names
}

func (s *Schema) subclass(className string) *Schema {
	if s.ClassName() == className {
		return s
	}
	for _, c := range s.children {
		if found := c.subclass(className); found != nil {
			return found
		}
	}
	return nil
}

func (s *Schema) lookup(name string) (Field, error) {
	if f, ok := s.Field(name); ok {
		return f, nil
	}
	for _, c := range s.children {
		if f, err := c.lookup(name); err == nil {
			return f, nil
		}
	}
	if s.dynamic {
		return DynamicField(name), nil
	}
	return nil, errors.New(errors.NotFound, "cannot resolve field %q on %s", name, s.name)
}

// keyField is the field of a mapping key: it behaves like the mapping's element field under the key's name
type keyField struct {
	Field
	key string
}

func (k *keyField) DBField() string { return k.key }
func (k *keyField) Name() string    { return k.key }

// LookupField resolves each logical name to its field. Embedded and list-of-embedded fields are
// followed into their schema; dict and dynamic fields accept any key.
func (s *Schema) LookupField(parts []string) ([]query.Field, error) {
	fields := make([]query.Field, 0, len(parts))
	var (
		schema = s
		elem   Field
	)
	for i, part := range parts {
		var f Field
		switch {
		case elem != nil:
			f = &keyField{Field: elem, key: part}
		case schema != nil:
			found, err := schema.lookup(part)
			if err != nil {
				return nil, err
			}
			f = found
		default:
			return nil, errors.New(errors.InvalidQuery, "cannot resolve field %q: %q is not a document", part, parts[i-1])
		}
		fields = append(fields, f)
		schema, elem = nil, nil
		target := f
		if k, ok := target.(*keyField); ok {
			target = k.Field
		}
		if l, ok := target.(*listField); ok {
			target = l.elem
		}
		switch t := target.(type) {
		case *embeddedField:
			schema = t.schema
		case *dictField:
			elem = t.elem
		case *dynamicField:
			elem = DynamicField("")
		case *referenceField:
			if i < len(parts)-1 {
				return nil, errors.New(errors.InvalidQuery, "cannot perform join in query on field %q", part)
			}
		}
	}
	return fields, nil
}

// IndexSpecs returns the indexes declared on the schema: compound indexes, unique fields and geo fields
func (s *Schema) IndexSpecs() ([]storage.IndexSpec, error) {
	var specs []storage.IndexSpec
	for _, keys := range s.indexes {
		var spec storage.IndexSpec
		for _, key := range keys {
			direction := 1
			switch {
			case strings.HasPrefix(key, "-"):
				direction = -1
				key = key[1:]
			case strings.HasPrefix(key, "+"):
				key = key[1:]
			}
			resolved, err := query.Resolve(s, strings.Split(key, "."), false)
			if err != nil {
				return nil, errors.Wrap(err, errors.Validation, "invalid index on %s", s.name)
			}
			spec.Keys = append(spec.Keys, bson.DocElem{Name: resolved.Key(), Value: direction})
		}
		spec.Name = storage.IndexName(spec.Keys)
		specs = append(specs, spec)
	}
	for _, f := range s.fields {
		if f.Unique() && !f.PrimaryKey() {
			keys := bson.D{{Name: f.DBField(), Value: 1}}
			specs = append(specs, storage.IndexSpec{Keys: keys, Unique: true, Sparse: f.Sparse(), Name: storage.IndexName(keys)})
		}
		if g, ok := f.(query.GeoField); ok {
			keys := bson.D{{Name: f.DBField(), Value: string(g.GeoIndex())}}
			specs = append(specs, storage.IndexSpec{Keys: keys, Name: storage.IndexName(keys)})
		}
	}
	return specs, nil
}

// validate checks the stored representation of a document against the json schema (if any)
func (s *Schema) validate(stored bson.M) error {
	if s.validator == nil {
		return nil
	}
	bits, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to encode %s document", s.name)
	}
	result, err := s.validator.Validate(gojsonschema.NewBytesLoader(bits))
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to validate %s document", s.name)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return errors.New(errors.Validation, "%s", strings.Join(errs, ","))
	}
	return nil
}
