package odm

import (
	"context"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/internal/safe"
	"github.com/autom8ter/odm/query"
	"github.com/autom8ter/odm/storage"
	"github.com/autom8ter/odm/util"
	"golang.org/x/sync/errgroup"
	// storage providers
	_ "github.com/autom8ter/odm/storage/kvstore"
	_ "github.com/autom8ter/odm/storage/mongo"
)

// DB maps documents of registered schemas onto a storage provider
type DB struct {
	registry    *Registry
	store       storage.Storage
	logger      Logger
	concern     storage.WriteConcern
	collections *safe.Map[*Collection]
}

// DBOpt configures a DB
type DBOpt func(d *DB)

// WithLogger sets the logger (default: discard)
func WithLogger(logger Logger) DBOpt {
	return func(d *DB) {
		d.logger = logger
	}
}

// WithWriteConcern sets the default write concern
func WithWriteConcern(concern storage.WriteConcern) DBOpt {
	return func(d *DB) {
		d.concern = concern
	}
}

// WithRegistry shares a schema registry between DBs
func WithRegistry(registry *Registry) DBOpt {
	return func(d *DB) {
		d.registry = registry
	}
}

// New creates a DB on top of an open storage provider
func New(store storage.Storage, opts ...DBOpt) *DB {
	d := &DB{
		store:       store,
		collections: safe.NewMap[*Collection](nil),
	}
	for _, o := range opts {
		o(d)
	}
	if d.registry == nil {
		d.registry = NewRegistry()
	}
	if d.logger == nil {
		d.logger = NopLogger()
	}
	return d
}

// Open opens the configured storage provider and registers the schemas
func Open(ctx context.Context, cfg Config, schemas ...*Schema) (*DB, error) {
	if err := util.ValidateStruct(cfg); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "invalid config")
	}
	logger, err := NewLogger(cfg.LogLevel, map[string]any{"provider": cfg.Storage.Provider})
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to create logger")
	}
	store, err := storage.Open(ctx, cfg.Storage.Provider, cfg.Storage.Params)
	if err != nil {
		return nil, errors.Wrap(err, errors.Operation, "failed to open storage provider %s", cfg.Storage.Provider)
	}
	d := New(store, WithLogger(logger), WithWriteConcern(cfg.WriteConcern))
	if err := d.Register(schemas...); err != nil {
		return nil, err
	}
	logger.Info(ctx, "opened database", map[string]any{"schemas": len(schemas)})
	return d, nil
}

// Register registers schemas with the DB's registry
func (d *DB) Register(schemas ...*Schema) error {
	return d.registry.Register(schemas...)
}

// Registry returns the DB's schema registry
func (d *DB) Registry() *Registry {
	return d.registry
}

// Logger returns the DB's logger
func (d *DB) Logger() Logger {
	return d.logger
}

// Collection returns the collection of documents of the schema, registering the schema if needed
func (d *DB) Collection(schema *Schema) (*Collection, error) {
	if schema.IsEmbedded() {
		return nil, errors.New(errors.Validation, "embedded schema %s has no collection", schema.Name())
	}
	if c, ok := d.collections.Get(schema.ClassName()); ok {
		return c, nil
	}
	if err := d.registry.Register(schema); err != nil {
		return nil, err
	}
	return d.collections.SetNX(schema.ClassName(), func() *Collection {
		return &Collection{
			db:      d,
			schema:  schema,
			store:   d.store.Collection(schema.Collection()),
			concern: d.concern,
		}
	}), nil
}

// C returns the collection of the registered schema with the name
func (d *DB) C(name string) (*Collection, error) {
	schema, err := d.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return d.Collection(schema)
}

// Dereference loads the document referenced by the field. It returns nil when the field is unset.
func (d *DB) Dereference(ctx context.Context, doc *Document, field string) (*Document, error) {
	f, err := doc.field(field)
	if err != nil {
		return nil, err
	}
	ref, ok := f.(*referenceField)
	if !ok {
		return nil, errors.New(errors.Validation, "field %s is not a reference", field)
	}
	switch v := doc.Get(field).(type) {
	case nil:
		return nil, nil
	case *Document:
		return v, nil
	}
	target, err := d.registry.target(doc.schema, ref)
	if err != nil {
		return nil, err
	}
	c, err := d.Collection(target)
	if err != nil {
		return nil, err
	}
	return c.Objects().Where("pk", query.OpEq, doc.Get(field)).First(ctx)
}

// EnsureIndexes creates the indexes of every registered schema. Collections are indexed
// concurrently; the schemas sharing a collection are indexed in order.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	byCollection := map[string][]*Schema{}
	for _, schema := range d.registry.Schemas() {
		if schema.IsEmbedded() {
			continue
		}
		byCollection[schema.Collection()] = append(byCollection[schema.Collection()], schema)
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, schemas := range byCollection {
		schemas := schemas
		g.Go(func() error {
			for _, schema := range schemas {
				c, err := d.Collection(schema)
				if err != nil {
					return err
				}
				if err := c.EnsureIndexes(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes the storage provider
func (d *DB) Close(ctx context.Context) error {
	return d.store.Close(ctx)
}
