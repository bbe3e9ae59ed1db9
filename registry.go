package odm

import (
	"sort"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/internal/safe"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"gopkg.in/mgo.v2/bson"
)

const selfReference = "self"

// Registry holds the schemas known to a DB. Reference fields resolve their target schema through it.
type Registry struct {
	schemas *safe.Map[*Schema]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{schemas: safe.NewMap[*Schema](nil)}
}

// Register adds the schemas to the registry. Embedded schemas of registered schemas are not
// registered implicitly.
func (r *Registry) Register(schemas ...*Schema) error {
	for _, s := range schemas {
		if existing, ok := r.schemas.Get(s.Name()); ok && existing != s {
			return errors.New(errors.Validation, "schema %s is already registered", s.Name())
		}
		for _, f := range s.own {
			if err := checkDeleteRule(s, f); err != nil {
				return err
			}
		}
		r.schemas.Set(s.Name(), s)
		r.schemas.Set(s.ClassName(), s)
	}
	return nil
}

func checkDeleteRule(s *Schema, f Field) error {
	switch t := f.(type) {
	case *referenceField:
		if t.deleteRule == Pull {
			return errors.New(errors.Validation, "%s.%s: the pull delete rule requires a list of references", s.Name(), f.Name())
		}
		if t.deleteRule != DoNothing && s.IsEmbedded() {
			return errors.New(errors.Validation, "%s.%s: delete rules are not supported on embedded schemas", s.Name(), f.Name())
		}
	case *listField:
		if _, ok := t.elem.(*referenceField); !ok && t.deleteRule != DoNothing {
			return errors.New(errors.Validation, "%s.%s: delete rules require a reference field", s.Name(), f.Name())
		}
	}
	return nil
}

// Get returns the schema registered under the name or class name
func (r *Registry) Get(name string) (*Schema, error) {
	s, ok := r.schemas.Get(name)
	if !ok {
		return nil, errors.New(errors.NotFound, "schema %s is not registered", name)
	}
	return s, nil
}

// Schemas returns the registered schemas sorted by class name
func (r *Registry) Schemas() []*Schema {
	var schemas []*Schema
	r.schemas.Range(func(_ string, s *Schema) bool {
		schemas = append(schemas, s)
		return true
	})
	schemas = lo.Uniq(schemas)
	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].ClassName() < schemas[j].ClassName()
	})
	return schemas
}

// classOf returns the schema of a stored document: the subclass named by its discriminator, or base
func (r *Registry) classOf(base *Schema, raw bson.M) *Schema {
	cls := cast.ToString(raw[ClassKey])
	if cls == "" || cls == base.ClassName() {
		return base
	}
	if s := base.subclass(cls); s != nil {
		return s
	}
	if s, err := r.Get(cls); err == nil {
		return s
	}
	return base
}

// target resolves the schema a reference field points at
func (r *Registry) target(owner *Schema, f *referenceField) (*Schema, error) {
	if f.target == selfReference || f.target == owner.Name() {
		return owner, nil
	}
	return r.Get(f.target)
}

// referrer is a reference field with a delete rule
type referrer struct {
	schema *Schema
	field  Field
	rule   DeleteRule
	list   bool
}

// referrers returns the reference fields pointing at documents of the schema that carry a delete rule
func (r *Registry) referrers(target *Schema) ([]referrer, error) {
	var out []referrer
	for _, s := range r.Schemas() {
		if s.IsEmbedded() {
			continue
		}
		for _, f := range s.own {
			var (
				ref  *referenceField
				rule DeleteRule
				list bool
			)
			switch t := f.(type) {
			case *referenceField:
				ref, rule = t, t.deleteRule
			case *listField:
				elem, ok := t.elem.(*referenceField)
				if !ok {
					continue
				}
				ref, rule, list = elem, t.deleteRule, true
				if rule == DoNothing {
					rule = elem.deleteRule
				}
			default:
				continue
			}
			if rule == DoNothing {
				continue
			}
			to, err := r.target(s, ref)
			if err != nil {
				return nil, err
			}
			if !lo.Contains(to.ClassNames(), target.ClassName()) {
				continue
			}
			out = append(out, referrer{schema: s, field: f, rule: rule, list: list})
		}
	}
	return out, nil
}
