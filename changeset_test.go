package odm_test

import (
	"testing"

	"github.com/autom8ter/odm"
	"github.com/stretchr/testify/assert"
)

func TestChangeSet(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		c := odm.NewChangeSet()
		c.Mark("a.b")
		c.Mark("a.b")
		assert.Equal(t, []string{"a.b"}, c.Paths())
	})
	t.Run("ancestor voids descendants", func(t *testing.T) {
		c := odm.NewChangeSet()
		c.Mark("a.b")
		c.Mark("a.c.d")
		c.Mark("ab")
		c.Mark("a")
		assert.Equal(t, []string{"a", "ab"}, c.Paths())
	})
	t.Run("descendant of a recorded path is a no-op", func(t *testing.T) {
		c := odm.NewChangeSet()
		c.Mark("a")
		c.Mark("a.b")
		assert.Equal(t, []string{"a"}, c.Paths())
		assert.True(t, c.Covers("a.b.c"))
		assert.False(t, c.Covers("ab"))
	})
	t.Run("clear", func(t *testing.T) {
		c := odm.NewChangeSet()
		c.Mark("a")
		assert.Equal(t, 1, c.Len())
		c.Clear()
		assert.Equal(t, 0, c.Len())
		assert.Empty(t, c.Paths())
	})
}
