package query_test

import (
	"testing"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

func TestCompileUpdate(t *testing.T) {
	t.Run("set and unset", func(t *testing.T) {
		u, err := query.CompileUpdate(nil, query.Update{"set__name": "x", "set__age": 3, "unset__tags": 1})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$set": bson.M{"name": "x", "age": 3}, "$unset": bson.M{"tags": 1}}, u)
	})
	t.Run("dec", func(t *testing.T) {
		u, err := query.CompileUpdate(nil, query.Update{"dec__hits": 1})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$inc": bson.M{"hits": -1}}, u)

		u, err = query.CompileUpdate(nil, query.Update{"dec__score": 2.5})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$inc": bson.M{"score": -2.5}}, u)

		_, err = query.CompileUpdate(nil, query.Update{"dec__hits": "x"})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
	t.Run("canonical operators", func(t *testing.T) {
		u, err := query.CompileUpdate(nil, query.Update{
			"push_all__a":      []int{1},
			"pull_all__b":      []int{2},
			"set_on_insert__c": 3,
			"pop__d":           1,
		})
		require.NoError(t, err)
		assert.Equal(t, bson.M{
			"$pushAll":     bson.M{"a": []int{1}},
			"$pullAll":     bson.M{"b": []int{2}},
			"$setOnInsert": bson.M{"c": 3},
			"$pop":         bson.M{"d": 1},
		}, u)
	})
	t.Run("nested pull", func(t *testing.T) {
		u, err := query.CompileUpdate(nil, query.Update{"pull__comments__user": "Esteban"})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$pull": bson.M{"comments": bson.M{"user": "Esteban"}}}, u)
	})
	t.Run("pull with match operator", func(t *testing.T) {
		u, err := query.CompileUpdate(nil, query.Update{"pull__comments__vote__lt": 1})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$pull": bson.M{"comments": bson.M{"vote": bson.M{"$lt": 1}}}}, u)
	})
	t.Run("nested pull all", func(t *testing.T) {
		_, err := query.CompileUpdate(nil, query.Update{"pull_all__a__b": []int{1}})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
	t.Run("add to set each", func(t *testing.T) {
		u, err := query.CompileUpdate(nil, query.Update{"add_to_set__tags": []string{"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$addToSet": bson.M{"tags": bson.M{"$each": []any{"a", "b"}}}}, u)

		u, err = query.CompileUpdate(nil, query.Update{"add_to_set__tags": "a"})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$addToSet": bson.M{"tags": "a"}}, u)
	})
	t.Run("positional", func(t *testing.T) {
		u, err := query.CompileUpdate(nil, query.Update{"set__comments__S__body": "x", "inc__comments__1__vote": 1})
		require.NoError(t, err)
		assert.Equal(t, bson.M{
			"$set": bson.M{"comments.$.body": "x"},
			"$inc": bson.M{"comments.1.vote": 1},
		}, u)
	})
	t.Run("missing operator", func(t *testing.T) {
		_, err := query.CompileUpdate(nil, query.Update{"name": "x"})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
	t.Run("raw", func(t *testing.T) {
		u, err := query.CompileUpdate(nil, query.Update{query.RawKey: bson.M{"$rename": bson.M{"a": "b"}}})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$rename": bson.M{"a": "b"}}, u)
	})
	t.Run("typed model", func(t *testing.T) {
		u, err := query.CompileUpdateExprs(nil,
			query.Set(query.UpdateSet, "a.b", 1),
			query.UpdateExpr{Op: query.UpdatePull, Path: []string{"votes"}, Match: query.OpGte, Value: 3},
		)
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$set": bson.M{"a.b": 1}, "$pull": bson.M{"votes": bson.M{"$gte": 3}}}, u)
	})
}

func TestCompileUpdateWithSchema(t *testing.T) {
	t.Run("db field and coercion", func(t *testing.T) {
		u, err := query.CompileUpdate(blog, query.Update{"set__title": "x", "set__age": "4"})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$set": bson.M{"t": "x", "age": 4}}, u)
	})
	t.Run("nested pull with db field", func(t *testing.T) {
		u, err := query.CompileUpdate(blog, query.Update{"pull__comments__body": "spam"})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$pull": bson.M{"comments": bson.M{"b": "spam"}}}, u)
	})
	t.Run("positional", func(t *testing.T) {
		u, err := query.CompileUpdate(blog, query.Update{"set__comments__S__body": "x"})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$set": bson.M{"comments.$.b": "x"}}, u)
	})
	t.Run("index into a non list", func(t *testing.T) {
		_, err := query.CompileUpdate(blog, query.Update{"set__comments__1__body__0": "x"})
		assert.True(t, errors.Is(err, errors.InvalidQuery))
	})
	t.Run("unset skips coercion", func(t *testing.T) {
		u, err := query.CompileUpdate(blog, query.Update{"unset__age": 1, "set__age": nil})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$unset": bson.M{"age": 1}, "$set": bson.M{"age": nil}}, u)
	})
}
