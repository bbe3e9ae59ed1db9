package odm

import (
	"context"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/storage"
	"gopkg.in/mgo.v2/bson"
)

// Cursor iterates over the documents matched by a queryset. The query runs on the first call to Next.
type Cursor struct {
	coll      *Collection
	filter    bson.M
	opts      storage.FindOptions
	cursor    storage.Cursor
	current   *Document
	err       error
	exhausted bool
	// empty cursors match nothing and never query storage
	empty bool
}

// Next advances the cursor. It returns false when the matches are exhausted or loading failed;
// calling it again after exhaustion fails.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.exhausted {
		c.current = nil
		c.err = errors.New(errors.Operation, "cursor is exhausted")
		return false
	}
	if c.empty {
		c.exhausted = true
		return false
	}
	if c.cursor == nil {
		cursor, err := c.coll.store.Find(ctx, c.filter, c.opts)
		if err != nil {
			c.err = c.coll.wrapStorageError(ctx, err, "load")
			return false
		}
		c.cursor = cursor
	}
	if !c.cursor.Next(ctx) {
		c.exhausted = true
		c.current = nil
		if err := c.cursor.Err(); err != nil {
			c.err = c.coll.wrapStorageError(ctx, err, "load")
		}
		return false
	}
	doc, err := c.coll.hydrate(c.cursor.Current())
	if err != nil {
		c.err = err
		return false
	}
	c.current = doc
	return true
}

// Document returns the document at the cursor
func (c *Cursor) Document() *Document {
	return c.current
}

// Err returns the error that stopped the cursor (if any)
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying storage cursor
func (c *Cursor) Close(ctx context.Context) error {
	if c.cursor == nil {
		return nil
	}
	return c.cursor.Close(ctx)
}
