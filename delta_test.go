package odm_test

import (
	"testing"
	"time"

	"github.com/autom8ter/odm"
	"github.com/autom8ter/odm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

func TestDelta(t *testing.T) {
	t.Run("new document", func(t *testing.T) {
		created := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
		doc, err := testutil.BlogPostSchema.New(map[string]any{
			"title":    "hello",
			"tags":     []string{"go"},
			"comments": []map[string]any{{"body": "hi"}},
			"created":  created,
		})
		require.NoError(t, err)
		delta, err := doc.Delta()
		require.NoError(t, err)
		assert.Equal(t, bson.M{
			"_cls":     "BlogPost",
			"title":    "hello",
			"tags":     []any{"go"},
			"comments": []any{bson.M{"b": "hi", "votes": 0}},
			"created":  created,
		}, delta.Sets)
		assert.Empty(t, delta.Unsets)
	})
	t.Run("clean document", func(t *testing.T) {
		doc, _ := storedPost(t)
		delta, err := doc.Delta()
		require.NoError(t, err)
		assert.True(t, delta.Empty())
	})
	t.Run("sets and unsets", func(t *testing.T) {
		doc, _ := storedPost(t)
		require.NoError(t, doc.Set("title", "bye"))
		require.NoError(t, doc.Set("content", nil))
		tags, err := doc.List("tags")
		require.NoError(t, err)
		require.NoError(t, tags.Set(0, "golang"))
		comments, err := doc.List("comments")
		require.NoError(t, err)
		require.NoError(t, comments.Get(1).(*odm.Document).Set("votes", 5))
		meta, err := doc.Dict("meta")
		require.NoError(t, err)
		meta.Delete("lang")

		delta, err := doc.Delta()
		require.NoError(t, err)
		assert.Equal(t, bson.M{
			"title":            "bye",
			"tags.0":           "golang",
			"comments.1.votes": 5,
		}, delta.Sets)
		assert.Equal(t, bson.M{"content": 1, "meta.lang": 1}, delta.Unsets)
		assert.Equal(t, bson.M{
			"$set":   delta.Sets,
			"$unset": delta.Unsets,
		}, delta.Update())
	})
	t.Run("coarsest path wins", func(t *testing.T) {
		doc, _ := storedPost(t)
		comments, err := doc.List("comments")
		require.NoError(t, err)
		require.NoError(t, comments.Get(0).(*odm.Document).Set("body", "edited"))
		require.NoError(t, comments.Append(map[string]any{"body": "third"}))
		delta, err := doc.Delta()
		require.NoError(t, err)
		assert.Equal(t, bson.M{
			"comments": []any{
				bson.M{"b": "edited", "votes": 1},
				bson.M{"b": "second", "votes": 2},
				bson.M{"b": "third", "votes": 0},
			},
		}, delta.Sets)
		assert.Empty(t, delta.Unsets)
	})
	t.Run("emptied list is unset", func(t *testing.T) {
		doc, _ := storedPost(t)
		tags, err := doc.List("tags")
		require.NoError(t, err)
		tags.Clear()
		delta, err := doc.Delta()
		require.NoError(t, err)
		assert.Equal(t, bson.M{"tags": 1}, delta.Unsets)
	})
	t.Run("references serialize to identifiers", func(t *testing.T) {
		doc, _ := storedPost(t)
		author := testutil.NewUserDoc()
		id := bson.NewObjectId()
		require.NoError(t, author.SetID(id))
		require.NoError(t, doc.Set("author", author))
		delta, err := doc.Delta()
		require.NoError(t, err)
		assert.Equal(t, bson.M{"author": id}, delta.Sets)
	})
	t.Run("after clear", func(t *testing.T) {
		doc, _ := storedPost(t)
		require.NoError(t, doc.Set("title", "bye"))
		doc.ClearChanges()
		delta, err := doc.Delta()
		require.NoError(t, err)
		assert.True(t, delta.Empty())
	})
}

func TestDeltaReferences(t *testing.T) {
	t.Run("referenced document changes stay out of the delta", func(t *testing.T) {
		post, _ := storedPost(t)
		author, err := testutil.UserSchema.Hydrate(bson.M{"_id": bson.NewObjectId(), "name": "ann", "email": "ann@example.com"})
		require.NoError(t, err)
		require.NoError(t, post.Set("author", author))
		post.ClearChanges()

		require.NoError(t, author.Set("name", "renamed"))
		assert.Equal(t, []string{"name"}, author.ChangedPaths())
		assert.Empty(t, post.ChangedPaths())
		delta, err := post.Delta()
		require.NoError(t, err)
		assert.True(t, delta.Empty())
	})
	t.Run("references in lists are not walked", func(t *testing.T) {
		post, _ := storedPost(t)
		reader, err := testutil.UserSchema.Hydrate(bson.M{"_id": bson.NewObjectId(), "name": "bob", "email": "bob@example.com"})
		require.NoError(t, err)
		require.NoError(t, post.Set("readers", []any{reader}))
		post.ClearChanges()
		require.NoError(t, reader.Set("name", "robert"))
		assert.Empty(t, post.ChangedPaths())
	})
	t.Run("mutual references", func(t *testing.T) {
		a, err := testutil.TeamSchema.Hydrate(bson.M{"_id": bson.NewObjectId(), "name": "a"})
		require.NoError(t, err)
		b, err := testutil.TeamSchema.Hydrate(bson.M{"_id": bson.NewObjectId(), "name": "b"})
		require.NoError(t, err)
		require.NoError(t, a.Set("parent", b))
		require.NoError(t, b.Set("parent", a))
		a.ClearChanges()
		b.ClearChanges()
		assert.NoError(t, a.Validate())
		assert.NoError(t, b.Validate())

		require.NoError(t, a.Set("name", "a2"))
		require.NoError(t, b.Set("name", "b2"))
		for _, doc := range []*odm.Document{a, b} {
			assert.Equal(t, []string{"name"}, doc.ChangedPaths())
			delta, err := doc.Delta()
			require.NoError(t, err)
			assert.Equal(t, bson.M{"name": doc.GetString("name")}, delta.Sets)
			assert.Empty(t, delta.Unsets)
		}
		stored, err := a.ToStorage()
		require.NoError(t, err)
		assert.Equal(t, b.ID(), stored["parent"])
	})
}
