package query

import (
	"strings"

	"github.com/autom8ter/odm/errors"
)

// PositionalToken is the dotted-form stand-in for the native positional operator '$'
const PositionalToken = "S"

// GeoIndex is the kind of geo index backing a field
type GeoIndex string

const (
	// GeoIndexNone means the field is not geo indexed; geo operators use GeoJSON semantics
	GeoIndexNone GeoIndex = ""
	// Geo2D is a legacy coordinate pair index
	Geo2D GeoIndex = "2d"
	// GeoSphere is a GeoJSON index
	GeoSphere GeoIndex = "2dsphere"
)

// Schema resolves logical field paths to field handles
type Schema interface {
	// LookupField resolves each logical name in parts to its field, returning one field per part
	LookupField(parts []string) ([]Field, error)
}

// Field is a resolved field handle
type Field interface {
	// DBField is the storage name of the field
	DBField() string
	// Required reports whether the field may not be absent
	Required() bool
	// PrepareQueryValue coerces a query/update operand for the given operator
	PrepareQueryValue(op string, value any) (any, error)
}

// GeoField is a field backed by a geo index
type GeoField interface {
	Field
	GeoIndex() GeoIndex
}

// IndexableField reports whether a numeric segment may follow the field
type IndexableField interface {
	Field
	Indexable() bool
}

// Resolved is a storage path plus the terminal field handle (nil without a schema)
type Resolved struct {
	Path  []string
	Field Field
}

// Key returns the '.' joined storage path
func (r Resolved) Key() string {
	return strings.Join(r.Path, ".")
}

// ParseKey parses a dotted filter key, e.g. "comments__0__votes__not__gt"
func ParseKey(key string) Expr {
	if key == RawKey {
		return Expr{Key: key, Op: OpRaw}
	}
	parts := strings.Split(key, "__")
	logical, positions := splitPositional(parts, false)
	expr := Expr{Key: key}
	if len(logical) > 1 {
		if op, ok := LookupOperator(logical[len(logical)-1]); ok {
			expr.Op = op
			logical = logical[:len(logical)-1]
		}
	}
	if len(logical) > 1 && logical[len(logical)-1] == negationToken {
		expr.Negate = true
		logical = logical[:len(logical)-1]
	}
	expr.Path = reinsert(logical, positions)
	return expr
}

// ParseUpdateKey parses a dotted update key, e.g. "pull__comments__votes__lt". The Op of the
// returned expression is empty when the key does not start with an update operator.
func ParseUpdateKey(key string) UpdateExpr {
	if key == RawKey {
		return UpdateExpr{Key: key, Op: UpdateRaw}
	}
	parts := strings.Split(key, "__")
	expr := UpdateExpr{Key: key}
	if op, ok := LookupUpdateOperator(parts[0]); ok {
		expr.Op = op
		parts = parts[1:]
	}
	if len(parts) > 1 {
		if op := Operator(parts[len(parts)-1]); op.IsComparison() {
			expr.Match = op
			parts = parts[:len(parts)-1]
		}
	}
	expr.Path = parts
	return expr
}

type positional struct {
	index   int
	token   string
	logical int
}

func isPositional(part string, update bool) bool {
	if update && (part == PositionalToken || part == "$") {
		return true
	}
	if part == "" {
		return false
	}
	for _, r := range part {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func splitPositional(parts []string, update bool) ([]string, []positional) {
	var (
		logical   []string
		positions []positional
	)
	for i, part := range parts {
		if isPositional(part, update) {
			positions = append(positions, positional{index: i, token: part, logical: len(logical)})
			continue
		}
		logical = append(logical, part)
	}
	return logical, positions
}

func reinsert(parts []string, positions []positional) []string {
	out := append([]string{}, parts...)
	for _, p := range positions {
		token := p.token
		if token == PositionalToken {
			token = "$"
		}
		if p.index >= len(out) {
			out = append(out, token)
			continue
		}
		out = append(out[:p.index], append([]string{token}, out[p.index:]...)...)
	}
	return out
}

// Resolve translates a logical path into a storage path. Numeric segments (and for updates the
// positional token) are set aside during schema resolution and reinserted at their original indexes.
// Without a schema, names pass through verbatim.
func Resolve(schema Schema, path []string, update bool) (Resolved, error) {
	logical, positions := splitPositional(path, update)
	if schema == nil || len(logical) == 0 {
		return Resolved{Path: reinsert(logical, positions)}, nil
	}
	fields, err := schema.LookupField(logical)
	if err != nil {
		return Resolved{}, errors.Wrap(err, errors.InvalidQuery, "")
	}
	if len(fields) != len(logical) {
		return Resolved{}, errors.New(errors.InvalidQuery, "cannot resolve field %q", strings.Join(logical, "__"))
	}
	storage := make([]string, len(fields))
	for i, f := range fields {
		storage[i] = f.DBField()
	}
	for _, p := range positions {
		if p.logical == 0 {
			return Resolved{}, errors.New(errors.InvalidQuery, "cannot use array index %q before a field name", p.token)
		}
		prev := fields[p.logical-1]
		if idx, ok := prev.(IndexableField); ok && !idx.Indexable() {
			return Resolved{}, errors.New(errors.InvalidQuery, "cannot perform array index %q on field %q", p.token, logical[p.logical-1])
		}
	}
	return Resolved{Path: reinsert(storage, positions), Field: fields[len(fields)-1]}, nil
}
