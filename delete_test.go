package odm_test

import (
	"context"
	"testing"

	"github.com/autom8ter/odm"
	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/query"
	"github.com/autom8ter/odm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTeam(t *testing.T, ctx context.Context, teams *odm.Collection, values map[string]any) *odm.Document {
	team, err := teams.New(values)
	require.NoError(t, err)
	require.NoError(t, teams.Save(ctx, team))
	return team
}

// bookmarkSchema protects blog posts from deletion while bookmarked
var bookmarkSchema = odm.MustSchema("Bookmark",
	odm.WithFields(
		odm.StringField("label"),
		odm.ReferenceField("post", "BlogPost", odm.OnDelete(odm.Deny)),
	),
)

func TestDeleteDeniedInCascade(t *testing.T) {
	schemas := []*odm.Schema{testutil.UserSchema, testutil.BlogPostSchema, testutil.VideoPostSchema, testutil.TeamSchema, bookmarkSchema}
	assert.Nil(t, testutil.TestDB(func(ctx context.Context, db *odm.DB) {
		users := collection(t, db, testutil.UserSchema)
		posts := collection(t, db, testutil.BlogPostSchema)
		teams := collection(t, db, testutil.TeamSchema)
		bookmarks := collection(t, db, bookmarkSchema)

		author := saveUser(t, ctx, db)
		reader := saveUser(t, ctx, db)
		post := testutil.NewBlogPostDoc(author)
		require.NoError(t, posts.Save(ctx, post))
		other := testutil.NewBlogPostDoc(reader)
		require.NoError(t, other.Set("readers", []any{author}))
		require.NoError(t, posts.Save(ctx, other))
		team := newTeam(t, ctx, teams, map[string]any{"name": "led", "lead": author})
		bookmark, err := bookmarks.New(map[string]any{"label": "later", "post": post})
		require.NoError(t, err)
		require.NoError(t, bookmarks.Save(ctx, bookmark))

		err = users.Delete(ctx, author)
		assert.True(t, errors.IsOperation(err))

		require.NoError(t, users.Reload(ctx, author))
		require.NoError(t, posts.Reload(ctx, post))
		require.NoError(t, teams.Reload(ctx, team))
		assert.Equal(t, author.ID(), team.Get("lead"))
		require.NoError(t, posts.Reload(ctx, other))
		readers, err := other.List("readers")
		require.NoError(t, err)
		assert.Equal(t, []any{author.ID()}, readers.Items())

		require.NoError(t, bookmarks.Delete(ctx, bookmark))
		require.NoError(t, users.Delete(ctx, author))
		count, err := posts.Find(query.Filter{"author": author.ID()}).Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	}, schemas...))
}

func TestDelete(t *testing.T) {
	assert.Equal(t, "cascade", odm.Cascade.String())
	assert.Equal(t, "do_nothing", odm.DoNothing.String())
	assert.Nil(t, testutil.TestDB(func(ctx context.Context, db *odm.DB) {
		users := collection(t, db, testutil.UserSchema)
		posts := collection(t, db, testutil.BlogPostSchema)
		teams := collection(t, db, testutil.TeamSchema)
		t.Run("cascade and pull", func(t *testing.T) {
			author := saveUser(t, ctx, db)
			reader := saveUser(t, ctx, db)
			other := saveUser(t, ctx, db)
			for i := 0; i < 3; i++ {
				require.NoError(t, posts.Save(ctx, testutil.NewBlogPostDoc(author)))
			}
			post := testutil.NewBlogPostDoc(other)
			require.NoError(t, post.Set("readers", []any{reader, author}))
			require.NoError(t, posts.Save(ctx, post))

			require.NoError(t, users.Delete(ctx, author))
			count, err := posts.Find(query.Filter{"author": author.ID()}).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, count)

			require.NoError(t, posts.Reload(ctx, post))
			readers, err := post.List("readers")
			require.NoError(t, err)
			assert.Equal(t, []any{reader.ID()}, readers.Items())

			_, err = users.Objects().Where("pk", query.OpEq, author.ID()).First(ctx)
			assert.True(t, errors.Is(err, errors.NotFound))
		})
		t.Run("deny", func(t *testing.T) {
			owner := saveUser(t, ctx, db)
			newTeam(t, ctx, teams, map[string]any{"name": "owned", "owner": owner})
			err := users.Delete(ctx, owner)
			assert.True(t, errors.IsOperation(err))
			count, err := users.Objects().Where("pk", query.OpEq, owner.ID()).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
		t.Run("nullify", func(t *testing.T) {
			lead := saveUser(t, ctx, db)
			team := newTeam(t, ctx, teams, map[string]any{"name": "led", "lead": lead})
			require.NoError(t, users.Delete(ctx, lead))
			require.NoError(t, teams.Reload(ctx, team))
			assert.False(t, team.Has("lead"))
			assert.Equal(t, "led", team.GetString("name"))
		})
		t.Run("self cascade", func(t *testing.T) {
			root := newTeam(t, ctx, teams, map[string]any{"name": "root"})
			child := newTeam(t, ctx, teams, map[string]any{"name": "child", "parent": root})
			newTeam(t, ctx, teams, map[string]any{"name": "grandchild", "parent": child})
			require.NoError(t, root.Set("parent", child))
			require.NoError(t, teams.Save(ctx, root))

			deleted, err := teams.Find(query.Filter{"name": "root"}).Delete(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, deleted)
			count, err := teams.Find(query.Filter{"name__in": []string{"root", "child", "grandchild"}}).Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, count)
		})
		t.Run("delete unsaved", func(t *testing.T) {
			err := users.Delete(ctx, testutil.NewUserDoc())
			assert.True(t, errors.IsOperation(err))
		})
	}))
}
