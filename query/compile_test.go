package query_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/query"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

type testField struct {
	name      string
	db        string
	required  bool
	indexable bool
	geo       query.GeoIndex
	isInt     bool
	children  map[string]*testField
}

func (f *testField) DBField() string {
	if f.db != "" {
		return f.db
	}
	return f.name
}

func (f *testField) Required() bool { return f.required }

func (f *testField) Indexable() bool { return f.indexable }

func (f *testField) GeoIndex() query.GeoIndex { return f.geo }

func (f *testField) PrepareQueryValue(op string, value any) (any, error) {
	if query.Operator(op).IsString() {
		return query.StringPattern(query.Operator(op), value), nil
	}
	if f.isInt && value != nil {
		return cast.ToIntE(value)
	}
	return value, nil
}

type testSchema map[string]*testField

func (s testSchema) LookupField(parts []string) ([]query.Field, error) {
	var (
		fields []query.Field
		scope  = map[string]*testField(s)
	)
	for _, part := range parts {
		f, ok := scope[part]
		if !ok {
			return nil, errors.New(errors.NotFound, "cannot resolve field %q", part)
		}
		fields = append(fields, f)
		scope = f.children
	}
	return fields, nil
}

var blog = testSchema{
	"title": {name: "title", db: "t"},
	"age":   {name: "age", isInt: true},
	"tags":  {name: "tags", indexable: true},
	"loc":   {name: "loc", geo: query.Geo2D},
	"point": {name: "point", geo: query.GeoSphere},
	"comments": {name: "comments", indexable: true, children: map[string]*testField{
		"body": {name: "body", db: "b"},
		"vote": {name: "vote", isInt: true},
	}},
}

func TestCompile(t *testing.T) {
	t.Run("bare equality", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{"age": 1})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"age": 1}, q)
	})
	t.Run("comparison", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{"age__gte": 18})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"age": bson.M{"$gte": 18}}, q)
	})
	t.Run("range merges into one document", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{"age__gt": 5, "age__lt": 10})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"age": bson.M{"$gt": 5, "$lt": 10}}, q)
	})
	t.Run("equality collision is combined with $and", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{"ref": "A", "ref__in": []string{"A", "B"}})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$and": []any{
			bson.M{"ref": "A"},
			bson.M{"ref": bson.M{"$in": []any{"A", "B"}}},
		}}, q)
	})
	t.Run("collision appends to an existing $and", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{
			query.RawKey: bson.M{"$and": []any{bson.M{"x": 1}}},
			"a":          1,
			"a__ne":      2,
		})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$and": []any{
			bson.M{"x": 1},
			bson.M{"a": 1},
			bson.M{"a": bson.M{"$ne": 2}},
		}}, q)
	})
	t.Run("negation", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{"age__not__gt": 5})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"age": bson.M{"$not": bson.M{"$gt": 5}}}, q)
	})
	t.Run("not operator", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{"name__not": bson.RegEx{Pattern: "^a"}})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"name": bson.M{"$not": bson.RegEx{Pattern: "^a"}}}, q)
	})
	t.Run("array index", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{"comments__0__votes__gt": 1})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"comments.0.votes": bson.M{"$gt": 1}}, q)
	})
	t.Run("string operators", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{
			"name__istartswith": "Jo.n",
			"city__contains":    "ton",
			"code__iexact":      "ab",
			"mail__endswith":    ".com",
		})
		require.NoError(t, err)
		assert.Equal(t, bson.M{
			"name": bson.RegEx{Pattern: `^Jo\.n`, Options: "i"},
			"city": bson.RegEx{Pattern: "ton"},
			"code": bson.RegEx{Pattern: "^ab$", Options: "i"},
			"mail": bson.RegEx{Pattern: `\.com$`},
		}, q)
	})
	t.Run("size exists mod", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{"tags__size": 2, "name__exists": true, "n__mod": []int{2, 0}})
		require.NoError(t, err)
		assert.Equal(t, bson.M{
			"tags": bson.M{"$size": 2},
			"name": bson.M{"$exists": true},
			"n":    bson.M{"$mod": []int{2, 0}},
		}, q)
	})
	t.Run("match", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{"comments__match": bson.M{"vote": bson.M{"$gt": 1}}})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"comments": bson.M{"$elemMatch": bson.M{"vote": bson.M{"$gt": 1}}}}, q)
	})
	t.Run("raw", func(t *testing.T) {
		q, err := query.Compile(nil, query.Filter{query.RawKey: bson.M{"$where": "this.a > 1"}, "b": 2})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$where": "this.a > 1", "b": 2}, q)
	})
	t.Run("raw must be a document", func(t *testing.T) {
		_, err := query.Compile(nil, query.Filter{query.RawKey: 1})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
	t.Run("unknown operator", func(t *testing.T) {
		_, err := query.CompileExprs(nil, query.Expr{Path: []string{"a"}, Op: "bogus", Value: 1})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
	t.Run("typed model matches dotted form", func(t *testing.T) {
		typed, err := query.CompileExprs(nil,
			query.Where("comments.0.votes", query.OpGt, 1),
			query.Where("age", query.OpLt, 3).Not(),
		)
		require.NoError(t, err)
		dotted, err := query.Compile(nil, query.Filter{"comments__0__votes__gt": 1, "age__not__lt": 3})
		require.NoError(t, err)
		assert.Equal(t, dotted, typed)
	})
	t.Run("deterministic", func(t *testing.T) {
		filter := query.Filter{"a": 1, "a__gt": 0, "b__in": []int{1, 2}, "b__nin": []int{3}}
		first, err := query.Compile(nil, filter)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			next, err := query.Compile(nil, filter)
			require.NoError(t, err)
			assert.Equal(t, first, next)
		}
	})
}

func TestCompileWithSchema(t *testing.T) {
	t.Run("db field translation", func(t *testing.T) {
		q, err := query.Compile(blog, query.Filter{"title": "hello", "comments__body__ne": "x"})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"t": "hello", "comments.b": bson.M{"$ne": "x"}}, q)
	})
	t.Run("coercion", func(t *testing.T) {
		q, err := query.Compile(blog, query.Filter{"age__gt": "5", "comments__vote__in": []string{"1", "2"}})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"age": bson.M{"$gt": 5}, "comments.vote": bson.M{"$in": []any{1, 2}}}, q)
	})
	t.Run("coercion failure", func(t *testing.T) {
		_, err := query.Compile(blog, query.Filter{"age": "abc"})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
	t.Run("string operator delegates to the field", func(t *testing.T) {
		q, err := query.Compile(blog, query.Filter{"title__icontains": "go"})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"t": bson.RegEx{Pattern: "go", Options: "i"}}, q)
	})
	t.Run("array index is reinserted", func(t *testing.T) {
		q, err := query.Compile(blog, query.Filter{"comments__1__body": "x"})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"comments.1.b": "x"}, q)
	})
	t.Run("array index into a non list", func(t *testing.T) {
		_, err := query.Compile(blog, query.Filter{"title__0": "x"})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
	t.Run("unknown field", func(t *testing.T) {
		_, err := query.Compile(blog, query.Filter{"missing": 1})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
}

func TestCompileGeo(t *testing.T) {
	t.Run("near with max distance is ordered", func(t *testing.T) {
		q, err := query.Compile(blog, query.Filter{"point__near": []float64{1, 2}, "point__max_distance": 10})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"point": bson.D{
			{Name: "$near", Value: bson.M{"$geometry": bson.M{"type": "Point", "coordinates": []any{1.0, 2.0}}}},
			{Name: "$maxDistance", Value: 10},
		}}, q)
	})
	t.Run("geometry inference", func(t *testing.T) {
		polygon := []any{[]any{[]any{0, 0}, []any{1, 1}, []any{0, 1}, []any{0, 0}}}
		q, err := query.Compile(nil, query.Filter{"area__geo_within": polygon})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"area": bson.M{"$geoWithin": bson.M{"$geometry": bson.M{"type": "Polygon", "coordinates": polygon}}}}, q)

		line := []any{[]any{0, 0}, []any{1, 1}}
		q, err = query.Compile(nil, query.Filter{"road__geo_intersects": line})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"road": bson.M{"$geoIntersects": bson.M{"$geometry": bson.M{"type": "LineString", "coordinates": line}}}}, q)
	})
	t.Run("geometry document", func(t *testing.T) {
		geometry := bson.M{"type": "Point", "coordinates": []any{1, 2}}
		q, err := query.Compile(nil, query.Filter{"p__geo_intersects": geometry})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"p": bson.M{"$geoIntersects": bson.M{"$geometry": geometry}}}, q)
	})
	t.Run("invalid geometry", func(t *testing.T) {
		_, err := query.Compile(nil, query.Filter{"p__geo_within": 3})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
		_, err = query.Compile(nil, query.Filter{"p__geo_within": bson.M{"x": 1}})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
	t.Run("legacy 2d index", func(t *testing.T) {
		box := []any{[]any{0, 0}, []any{5, 5}}
		q, err := query.Compile(blog, query.Filter{"loc__within_box": box})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"loc": bson.M{"$within": bson.M{"$box": box}}}, q)

		q, err = query.Compile(blog, query.Filter{"loc__near": []any{1, 2}})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"loc": bson.M{"$near": []any{1, 2}}}, q)
	})
	t.Run("geojson operator on a 2d index", func(t *testing.T) {
		_, err := query.Compile(blog, query.Filter{"loc__geo_within": []any{1, 2}})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
}

func TestParseKey(t *testing.T) {
	type testCase struct {
		key    string
		path   string
		op     query.Operator
		negate bool
	}
	for _, tc := range []testCase{
		{key: "age", path: "age"},
		{key: "age__gt", path: "age", op: query.OpGt},
		{key: "age__not__gt", path: "age", op: query.OpGt, negate: true},
		{key: "comments__0__votes__lte", path: "comments.0.votes", op: query.OpLte},
		{key: "size", path: "size"},
		{key: "in__in", path: "in", op: query.OpIn},
	} {
		t.Run(tc.key, func(t *testing.T) {
			expr := query.ParseKey(tc.key)
			assert.Equal(t, tc.path, strings.Join(expr.Path, "."))
			assert.Equal(t, tc.op, expr.Op)
			assert.Equal(t, tc.negate, expr.Negate)
			assert.Equal(t, tc.key, expr.String())
		})
	}
}

func ExampleCompile() {
	q, _ := query.Compile(nil, query.Filter{"age__gte": 18})
	fmt.Println(q)
	// Output: map[age:map[$gte:18]]
}
