package odm_test

import (
	"context"
	"testing"

	"github.com/autom8ter/odm"
	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		_, err := odm.Open(context.Background(), odm.Config{})
		assert.True(t, errors.Is(err, errors.Validation))
	})
	assert.Nil(t, testutil.TestDB(func(ctx context.Context, db *odm.DB) {
		t.Run("collection by name", func(t *testing.T) {
			c, err := db.C("BlogPost.VideoPost")
			require.NoError(t, err)
			assert.Equal(t, "blog_post", c.Name())
			assert.Equal(t, testutil.VideoPostSchema, c.Schema())

			same, err := db.Collection(testutil.VideoPostSchema)
			require.NoError(t, err)
			assert.Same(t, c, same)

			_, err = db.C("Missing")
			assert.True(t, errors.Is(err, errors.NotFound))
		})
		t.Run("embedded schema", func(t *testing.T) {
			_, err := db.Collection(testutil.CommentSchema)
			assert.True(t, errors.Is(err, errors.Validation))
		})
		t.Run("ensure indexes", func(t *testing.T) {
			assert.NoError(t, db.EnsureIndexes(ctx))
			_, err := collection(t, db, testutil.BlogPostSchema).Objects().Hint("created_-1_title_1").All(ctx)
			assert.NoError(t, err)
		})
		t.Run("logger", func(t *testing.T) {
			assert.NotNil(t, db.Logger())
			assert.Len(t, db.Registry().Schemas(), len(testutil.AllSchemas))
		})
	}))
}
