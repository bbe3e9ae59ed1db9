package util_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mgo.v2/bson"
)

func TestUtil(t *testing.T) {
	t.Run("yaml / json conversions", func(t *testing.T) {
		in := []byte(`{"name":"post","tags":["a","b"]}`)
		yml, err := util.JSONToYAML(in)
		require.NoError(t, err)
		jsonData, err := util.YAMLToJSON(yml)
		require.NoError(t, err)
		assert.JSONEq(t, string(in), string(jsonData))
		same, err := util.YAMLToJSON(in)
		require.NoError(t, err)
		assert.Equal(t, in, same)
	})
	t.Run("json string", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, util.JSONString(map[string]int{"a": 1}))
	})
	t.Run("decode", func(t *testing.T) {
		type post struct {
			Title   string    `json:"title"`
			Hits    int       `json:"hits"`
			Created time.Time `json:"created"`
		}
		var p post
		require.NoError(t, util.Decode(map[string]any{
			"title":   "hello",
			"hits":    "3",
			"created": "2022-01-02T03:04:05Z",
		}, &p))
		assert.Equal(t, "hello", p.Title)
		assert.Equal(t, 3, p.Hits)
		assert.Equal(t, 2022, p.Created.Year())
	})
	t.Run("validate", func(t *testing.T) {
		type usr struct {
			Name string `validate:"required"`
		}
		var u = usr{}
		err := util.ValidateStruct(&u)
		assert.True(t, errors.Is(err, errors.Validation))
		u.Name = "a name"
		assert.Nil(t, util.ValidateStruct(&u))
	})
	t.Run("encode value (float)", func(t *testing.T) {
		assert.Equal(t, -1, bytes.Compare(util.EncodeIndexValue(1.0), util.EncodeIndexValue(2.0)))
		assert.Equal(t, -1, bytes.Compare(util.EncodeIndexValue(-3), util.EncodeIndexValue(2)))
	})
	t.Run("encode value (numbers compare across types)", func(t *testing.T) {
		assert.Equal(t, util.EncodeIndexValue(1), util.EncodeIndexValue(1.0))
	})
	t.Run("encode value (string)", func(t *testing.T) {
		assert.Equal(t, -1, bytes.Compare(util.EncodeIndexValue("hello"), util.EncodeIndexValue("hellz")))
	})
	t.Run("encode value (bool)", func(t *testing.T) {
		assert.Equal(t, -1, bytes.Compare(util.EncodeIndexValue(false), util.EncodeIndexValue(true)))
	})
	t.Run("encode value (object id)", func(t *testing.T) {
		id := bson.NewObjectId()
		assert.Equal(t, []byte(id.Hex()), util.EncodeIndexValue(id))
	})
	t.Run("remove element", func(t *testing.T) {
		assert.Equal(t, []int{1, 3}, util.RemoveElement(1, []int{1, 2, 3}))
	})
}
