package testutil

import (
	"context"
	"os"
	"time"

	"github.com/autom8ter/odm"
	"github.com/brianvoe/gofakeit/v6"

	_ "embed"
)

var (
	//go:embed testdata/user.json
	userSchema string

	// UserSchema is a user account validated by testdata/user.json
	UserSchema = odm.MustSchema("User",
		odm.WithFields(
			odm.StringField("name", odm.Required()),
			odm.StringField("email", odm.Required(), odm.Unique()),
			odm.IntField("age"),
			odm.StringField("language"),
			odm.DateTimeField("joined"),
			odm.DictField("annotations", odm.StringField("")),
		),
		odm.WithIndex("+language", "-age"),
		odm.WithValidator(userSchema),
	)
	// CommentSchema is a comment embedded in a blog post
	CommentSchema = odm.MustSchema("Comment",
		odm.Embedded(),
		odm.WithFields(
			odm.StringField("body", odm.Required(), odm.DBField("b")),
			odm.ReferenceField("author", "User"),
			odm.IntField("votes", odm.Default(0)),
		),
	)
	// BlogPostSchema is a blog post written by a user. Deleting the author deletes the post.
	BlogPostSchema = odm.MustSchema("BlogPost",
		odm.AllowInheritance(),
		odm.WithFields(
			odm.StringField("title", odm.Required()),
			odm.StringField("content"),
			odm.ReferenceField("author", "User", odm.OnDelete(odm.Cascade)),
			odm.ListField("tags", odm.StringField("")),
			odm.ListField("comments", odm.EmbeddedField("", CommentSchema)),
			odm.ListField("readers", odm.ReferenceField("", "User"), odm.OnDelete(odm.Pull)),
			odm.DictField("meta", nil),
			odm.GeoPointField("location"),
			odm.DateTimeField("created", odm.Default(func() any { return time.Now() })),
		),
		odm.WithIndex("-created", "+title"),
	)
	// VideoPostSchema is a blog post with a video, stored in the blog post collection
	VideoPostSchema = odm.MustSchema("VideoPost",
		odm.Extends(BlogPostSchema),
		odm.WithFields(
			odm.StringField("url", odm.Required()),
			odm.IntField("seconds"),
		),
	)
	// TeamSchema groups users. A team's owner may not be deleted; deleted members are unset.
	TeamSchema = odm.MustSchema("Team",
		odm.WithFields(
			odm.StringField("name", odm.Required()),
			odm.ReferenceField("owner", "User", odm.OnDelete(odm.Deny)),
			odm.ReferenceField("lead", "User", odm.OnDelete(odm.Nullify)),
			odm.ReferenceField("parent", "self", odm.OnDelete(odm.Cascade)),
		),
	)
	// AllSchemas are the fixture schemas
	AllSchemas = []*odm.Schema{UserSchema, BlogPostSchema, VideoPostSchema, TeamSchema}
)

// NewUserDoc returns an unsaved user with fake values
func NewUserDoc() *odm.Document {
	doc, err := UserSchema.New(map[string]any{
		"name":     gofakeit.Name(),
		"email":    gofakeit.Email(),
		"age":      gofakeit.IntRange(18, 100),
		"language": gofakeit.Language(),
		"joined":   gofakeit.DateRange(time.Now().Truncate(7200*time.Hour), time.Now()),
		"annotations": map[string]any{
			"color": gofakeit.Color(),
		},
	})
	if err != nil {
		panic(err)
	}
	return doc
}

// NewBlogPostDoc returns an unsaved blog post by the author with fake values
func NewBlogPostDoc(author *odm.Document) *odm.Document {
	doc, err := BlogPostSchema.New(map[string]any{
		"title":   gofakeit.Sentence(4),
		"content": gofakeit.LoremIpsumParagraph(1, 3, 10, " "),
		"author":  author,
		"tags":    []string{gofakeit.Word(), gofakeit.Word()},
		"comments": []map[string]any{
			{"body": gofakeit.Sentence(6), "votes": gofakeit.IntRange(0, 10)},
		},
		"location": []float64{gofakeit.Longitude(), gofakeit.Latitude()},
	})
	if err != nil {
		panic(err)
	}
	return doc
}

// TestDB opens a badger backed DB in a temporary directory with the schemas (default AllSchemas)
// registered and calls fn with it
func TestDB(fn func(ctx context.Context, db *odm.DB), schemas ...*odm.Schema) error {
	if len(schemas) == 0 {
		schemas = AllSchemas
	}
	dir, err := os.MkdirTemp("", "odm")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := odm.Open(ctx, odm.Config{
		Storage: odm.StorageConfig{
			Provider: "badger",
			Params: map[string]any{
				"storage_path": dir,
			},
		},
		LogLevel: "error",
	}, schemas...)
	if err != nil {
		return err
	}
	defer db.Close(ctx)
	if err := db.EnsureIndexes(ctx); err != nil {
		return err
	}
	fn(ctx, db)
	return nil
}

