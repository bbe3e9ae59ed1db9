package odm

import (
	"context"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/query"
	"github.com/autom8ter/odm/storage"
	"github.com/autom8ter/odm/util"
	"gopkg.in/mgo.v2/bson"
)

// Collection persists documents of a schema
type Collection struct {
	db      *DB
	schema  *Schema
	store   storage.Collection
	concern storage.WriteConcern
}

// Schema returns the schema of the collection's documents
func (c *Collection) Schema() *Schema { return c.schema }

// Name returns the storage collection name
func (c *Collection) Name() string { return c.store.Name() }

// WithWriteConcern returns a copy of the collection writing with the concern
func (c *Collection) WithWriteConcern(concern storage.WriteConcern) *Collection {
	cpy := *c
	cpy.concern = concern
	return &cpy
}

// New creates a document of the collection's schema that has not been persisted
func (c *Collection) New(values map[string]any) (*Document, error) {
	return c.schema.New(values)
}

// Objects returns a queryset matching every document of the collection's schema
func (c *Collection) Objects() *QuerySet {
	return newQuerySet(c)
}

// Find returns a queryset matching the dotted filter
func (c *Collection) Find(filter query.Filter) *QuerySet {
	return c.Objects().Filter(filter)
}

func (c *Collection) tags(extra map[string]any) map[string]any {
	tags := map[string]any{"collection": c.store.Name(), "schema": c.schema.ClassName()}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

// wrapStorageError classifies a storage failure: unique index violations become NotUnique, anything
// else an Operation error
func (c *Collection) wrapStorageError(ctx context.Context, err error, action string) error {
	if err == nil {
		return nil
	}
	c.db.logger.Error(ctx, "storage operation failed", err, c.tags(map[string]any{"action": action}))
	if storage.IsDuplicateKey(err) {
		return errors.Wrap(err, errors.NotUnique, "Tried to save duplicate unique keys (%s)", reason(err))
	}
	return errors.Wrap(err, errors.Operation, "Could not %s document (%s)", action, reason(err))
}

func reason(err error) string {
	if msg := errors.Extract(err).Message(); msg != "" {
		return msg
	}
	return err.Error()
}

func (c *Collection) accepts(doc *Document) error {
	if doc.schema == c.schema || c.schema.subclass(doc.schema.ClassName()) != nil {
		return nil
	}
	return errors.New(errors.Validation, "collection %s does not accept %s documents", c.schema.Name(), doc.schema.Name())
}

func (c *Collection) hydrate(raw bson.M) (*Document, error) {
	return c.db.registry.classOf(c.schema, raw).Hydrate(raw)
}

// Save persists the document. New documents are inserted; persisted documents are updated with
// their delta. A document without changes is not written.
func (c *Collection) Save(ctx context.Context, doc *Document) error {
	if err := c.accepts(doc); err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	if doc.State() == StateNew {
		stored, err := doc.ToStorage()
		if err != nil {
			return err
		}
		c.db.logger.Debug(ctx, "inserting document", c.tags(map[string]any{"document": util.JSONString(stored)}))
		ids, err := c.store.Insert(ctx, []bson.M{stored}, c.concern)
		if err != nil {
			return c.wrapStorageError(ctx, err, "save")
		}
		if doc.ID() == nil && len(ids) > 0 {
			if err := doc.SetID(ids[0]); err != nil {
				return err
			}
		}
		doc.ClearChanges()
		return nil
	}
	if doc.ID() == nil {
		return errors.New(errors.Operation, "attempt to save a document without an identifier")
	}
	delta, err := doc.Delta()
	if err != nil {
		return err
	}
	delete(delta.Sets, IDKey)
	if delta.Empty() {
		doc.ClearChanges()
		return nil
	}
	update := delta.Update()
	c.db.logger.Debug(ctx, "saving document delta", c.tags(map[string]any{"update": util.JSONString(update)}))
	_, err = c.store.Update(ctx, bson.M{IDKey: doc.ID()}, update, storage.UpdateOptions{
		WriteConcern: c.concern,
		Upsert:       true,
	})
	if err != nil {
		return c.wrapStorageError(ctx, err, "save")
	}
	doc.ClearChanges()
	return nil
}

// Insert bulk inserts new documents
func (c *Collection) Insert(ctx context.Context, docs ...*Document) error {
	stored := make([]bson.M, len(docs))
	for i, doc := range docs {
		if err := c.accepts(doc); err != nil {
			return err
		}
		if doc.State() != StateNew || doc.ID() != nil {
			return errors.New(errors.Operation, "Some documents have ObjectIds, use doc.update() instead")
		}
		if err := doc.Validate(); err != nil {
			return err
		}
		s, err := doc.ToStorage()
		if err != nil {
			return err
		}
		stored[i] = s
	}
	if len(stored) == 0 {
		return nil
	}
	ids, err := c.store.Insert(ctx, stored, c.concern)
	if err != nil {
		return c.wrapStorageError(ctx, err, "save")
	}
	for i, doc := range docs {
		if i < len(ids) {
			if err := doc.SetID(ids[i]); err != nil {
				return err
			}
		}
		doc.ClearChanges()
	}
	c.db.logger.Debug(ctx, "inserted documents", c.tags(map[string]any{"count": len(docs)}))
	return nil
}

// Reload replaces the document's values with the stored ones, discarding unsaved changes
func (c *Collection) Reload(ctx context.Context, doc *Document) error {
	if doc.ID() == nil {
		return errors.New(errors.NotFound, "Document has not been saved.")
	}
	fresh, err := c.Objects().Where("pk", query.OpEq, doc.ID()).First(ctx)
	if err != nil {
		if errors.Is(err, errors.NotFound) {
			return errors.New(errors.NotFound, "Document has been deleted.")
		}
		return err
	}
	doc.schema = fresh.schema
	doc.values = fresh.values
	doc.changes = fresh.changes
	doc.ClearChanges()
	return nil
}

// UpdateDocument applies a dotted update to the stored document. The in-memory document is not reloaded.
func (c *Collection) UpdateDocument(ctx context.Context, doc *Document, update query.Update) (storage.UpdateResult, error) {
	if doc.State() == StateNew || doc.ID() == nil {
		return storage.UpdateResult{}, errors.New(errors.Operation, "attempt to update a document not yet saved")
	}
	return c.Objects().Where("pk", query.OpEq, doc.ID()).UpdateOne(ctx, update)
}

// Delete deletes the document, applying the delete rules of fields referencing it
func (c *Collection) Delete(ctx context.Context, doc *Document) error {
	if doc.ID() == nil {
		return errors.New(errors.Operation, "attempt to delete a document not yet saved")
	}
	_, err := c.Objects().Where("pk", query.OpEq, doc.ID()).Delete(ctx)
	return err
}

// Drop deletes every document and index of the collection
func (c *Collection) Drop(ctx context.Context) error {
	return c.wrapStorageError(ctx, c.store.Drop(ctx), "drop")
}

// EnsureIndexes creates the indexes declared on the schema
func (c *Collection) EnsureIndexes(ctx context.Context) error {
	specs, err := c.schema.IndexSpecs()
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if err := c.store.EnsureIndex(ctx, spec); err != nil {
			return c.wrapStorageError(ctx, err, "index")
		}
	}
	return nil
}
