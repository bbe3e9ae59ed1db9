package odm_test

import (
	"testing"

	"github.com/autom8ter/odm"
	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

type userView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

func storedPost(t *testing.T) (*odm.Document, bson.ObjectId) {
	id := bson.NewObjectId()
	doc, err := testutil.BlogPostSchema.Hydrate(bson.M{
		"_id":   id,
		"_cls":  "BlogPost",
		"title": "hello",
		"tags":  []any{"go", "mongo"},
		"comments": []any{
			bson.M{"b": "first", "votes": 1},
			bson.M{"b": "second", "votes": 2},
		},
		"meta": bson.M{"lang": "en"},
	})
	require.NoError(t, err)
	return doc, id
}

func TestDocument(t *testing.T) {
	t.Run("new", func(t *testing.T) {
		doc := testutil.NewUserDoc()
		assert.Equal(t, odm.StateNew, doc.State())
		assert.Nil(t, doc.ID())
		assert.NotEmpty(t, doc.GetString("name"))
		assert.Empty(t, doc.ChangedPaths())
		assert.NoError(t, doc.Validate())
	})
	t.Run("unknown field", func(t *testing.T) {
		_, err := testutil.UserSchema.New(map[string]any{"nickname": "x"})
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("required", func(t *testing.T) {
		doc, err := testutil.UserSchema.New(map[string]any{"email": "a@b.com"})
		require.NoError(t, err)
		assert.True(t, errors.Is(doc.Validate(), errors.Validation))
	})
	t.Run("json schema validator", func(t *testing.T) {
		doc, err := testutil.UserSchema.New(map[string]any{"name": "ann", "email": "not an email"})
		require.NoError(t, err)
		assert.True(t, errors.Is(doc.Validate(), errors.Validation))
	})
	t.Run("hydrate", func(t *testing.T) {
		doc, id := storedPost(t)
		assert.Equal(t, odm.StateClean, doc.State())
		assert.Equal(t, id, doc.ID())
		assert.Equal(t, id, doc.Get("pk"))
		comments, err := doc.List("comments")
		require.NoError(t, err)
		require.Equal(t, 2, comments.Len())
		first := comments.Get(0).(*odm.Document)
		assert.Equal(t, "first", first.GetString("body"))
	})
	t.Run("hydrate subclass", func(t *testing.T) {
		doc, err := testutil.BlogPostSchema.Hydrate(bson.M{"_id": bson.NewObjectId(), "_cls": "BlogPost.VideoPost", "url": "http://x"})
		require.NoError(t, err)
		assert.Equal(t, testutil.VideoPostSchema, doc.Schema())
		assert.Equal(t, "http://x", doc.GetString("url"))
	})
	t.Run("set marks the field", func(t *testing.T) {
		doc, _ := storedPost(t)
		require.NoError(t, doc.Set("title", "bye"))
		require.NoError(t, doc.Set("title", "bye again"))
		assert.Equal(t, []string{"title"}, doc.ChangedPaths())
		assert.Equal(t, odm.StateDirty, doc.State())
	})
	t.Run("list element then whole list", func(t *testing.T) {
		doc, _ := storedPost(t)
		tags, err := doc.List("tags")
		require.NoError(t, err)
		require.NoError(t, tags.Set(1, "badger"))
		assert.Equal(t, []string{"tags.1"}, doc.ChangedPaths())
		require.NoError(t, tags.Append("zap"))
		assert.Equal(t, []string{"tags"}, doc.ChangedPaths())
		require.NoError(t, tags.Set(0, "ignored"))
		assert.Equal(t, []string{"tags"}, doc.ChangedPaths())
		assert.True(t, errors.Is(tags.Set(10, "x"), errors.Validation))
	})
	t.Run("embedded document in list", func(t *testing.T) {
		doc, _ := storedPost(t)
		comments, err := doc.List("comments")
		require.NoError(t, err)
		second := comments.Get(1).(*odm.Document)
		require.NoError(t, second.Set("votes", 3))
		assert.Equal(t, []string{"comments.1.votes"}, doc.ChangedPaths())
		_, err = comments.Pop()
		require.NoError(t, err)
		assert.Equal(t, []string{"comments"}, doc.ChangedPaths())
	})
	t.Run("dict", func(t *testing.T) {
		doc, _ := storedPost(t)
		meta, err := doc.Dict("meta")
		require.NoError(t, err)
		require.NoError(t, meta.Set("theme", "dark"))
		meta.Delete("lang")
		meta.Delete("missing")
		assert.Equal(t, []string{"meta.lang", "meta.theme"}, doc.ChangedPaths())
		assert.Equal(t, []string{"theme"}, meta.Keys())
		assert.True(t, errors.Is(meta.Set("a.b", 1), errors.Validation))
		meta.Clear()
		assert.Equal(t, []string{"meta"}, doc.ChangedPaths())
	})
	t.Run("clear changes rebinds containers", func(t *testing.T) {
		doc, _ := storedPost(t)
		tags, err := doc.List("tags")
		require.NoError(t, err)
		require.NoError(t, tags.Insert(0, "first"))
		doc.ClearChanges()
		assert.Equal(t, odm.StateClean, doc.State())
		comments, err := doc.List("comments")
		require.NoError(t, err)
		_, err = comments.Remove(0)
		require.NoError(t, err)
		doc.ClearChanges()
		nested, err := doc.List("comments")
		require.NoError(t, err)
		require.Equal(t, 1, nested.Len())
		require.NoError(t, nested.Get(0).(*odm.Document).Set("votes", 9))
		assert.Equal(t, []string{"comments.0.votes"}, doc.ChangedPaths())
	})
	t.Run("unset", func(t *testing.T) {
		doc, _ := storedPost(t)
		require.NoError(t, doc.Unset("title"))
		assert.False(t, doc.Has("title"))
		assert.Equal(t, []string{"title"}, doc.ChangedPaths())
	})
	t.Run("decode", func(t *testing.T) {
		doc := testutil.NewUserDoc()
		id := bson.NewObjectId()
		require.NoError(t, doc.SetID(id))
		var view userView
		require.NoError(t, doc.Decode(&view))
		assert.Equal(t, id.Hex(), view.ID)
		assert.Equal(t, doc.GetString("name"), view.Name)
		assert.Equal(t, doc.GetInt("age"), view.Age)
	})
}
