// Package kvstore is an embedded document store over a key value database. It evaluates query
// documents and applies update documents in process.
package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/kv"
	_ "github.com/autom8ter/odm/kv/badger"
	"github.com/autom8ter/odm/kv/registry"
	"github.com/autom8ter/odm/storage"
	"github.com/autom8ter/odm/util"
	"github.com/nqd/flat"
	"gopkg.in/mgo.v2/bson"
)

func init() {
	storage.Register("badger", func(ctx context.Context, params map[string]any) (storage.Storage, error) {
		db, err := registry.Open("badger", params)
		if err != nil {
			return nil, err
		}
		return New(db), nil
	})
}

// Store is a document store over a key value database
type Store struct {
	db kv.DB
}

// New returns a document store over the key value database
func New(db kv.DB) *Store {
	return &Store{db: db}
}

// Collection returns the named collection
func (s *Store) Collection(name string) storage.Collection {
	return &collection{db: s.db, name: name}
}

// Close closes the underlying key value database
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

type indexMeta struct {
	Name   string `bson:"name"`
	Keys   bson.D `bson:"keys"`
	Unique bool   `bson:"unique"`
	Sparse bool   `bson:"sparse"`
}

type collection struct {
	db   kv.DB
	name string
}

func (c *collection) Name() string {
	return c.name
}

func (c *collection) docPrefix() []byte {
	return []byte(fmt.Sprintf("doc/%s/", c.name))
}

func (c *collection) metaPrefix() []byte {
	return []byte(fmt.Sprintf("meta/%s/index/", c.name))
}

func (c *collection) entryPrefix(index string) []byte {
	return []byte(fmt.Sprintf("idx/%s/%s/", c.name, index))
}

func idKey(id any) []byte {
	return append([]byte(fmt.Sprintf("%d:", typeOrder(id))), util.EncodeIndexValue(id)...)
}

func (c *collection) docKey(id any) []byte {
	return append(c.docPrefix(), idKey(id)...)
}

func duplicateKey(collection, index string, value any) error {
	return errors.New(errors.Operation, "E11000 duplicate key error collection: %s index: %s dup key: { : %v }", collection, index, value)
}

func (c *collection) scan(ctx context.Context, tx kv.Tx, fn func(doc bson.M) (bool, error)) error {
	iter, err := tx.NewIterator(kv.IterOpts{Prefix: c.docPrefix()})
	if err != nil {
		return err
	}
	defer iter.Close()
	for ; iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		value, err := iter.Item().Value()
		if err != nil {
			return err
		}
		doc := bson.M{}
		if err := bson.Unmarshal(value, &doc); err != nil {
			return errors.Wrap(err, errors.Internal, "failed to decode document in %s", c.name)
		}
		next, err := fn(doc)
		if err != nil {
			return err
		}
		if !next {
			return nil
		}
	}
	return nil
}

func (c *collection) indexes(tx kv.Tx) ([]indexMeta, error) {
	iter, err := tx.NewIterator(kv.IterOpts{Prefix: c.metaPrefix()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var indexes []indexMeta
	for ; iter.Valid(); iter.Next() {
		value, err := iter.Item().Value()
		if err != nil {
			return nil, err
		}
		var meta indexMeta
		if err := bson.Unmarshal(value, &meta); err != nil {
			return nil, errors.Wrap(err, errors.Internal, "failed to decode index in %s", c.name)
		}
		indexes = append(indexes, meta)
	}
	return indexes, nil
}

// entryKey returns the unique index entry of the document (nil for sparse indexes missing every key)
func (c *collection) entryKey(index indexMeta, doc bson.M) []byte {
	flattened, err := flat.Flatten(plain(doc).(map[string]any), nil)
	if err != nil {
		flattened = map[string]any{}
	}
	var (
		parts   [][]byte
		present bool
	)
	for _, key := range index.Keys {
		value, ok := flattened[key.Name]
		if !ok {
			value, ok = get(doc, key.Name)
		}
		present = present || ok
		parts = append(parts, util.EncodeIndexValue(value))
	}
	if index.Sparse && !present {
		return nil
	}
	return append(c.entryPrefix(index.Name), bytes.Join(parts, []byte{0})...)
}

func (c *collection) index(tx kv.Tx, indexes []indexMeta, doc bson.M) error {
	id := idKey(doc["_id"])
	for _, index := range indexes {
		if !index.Unique {
			continue
		}
		key := c.entryKey(index, doc)
		if key == nil {
			continue
		}
		existing, err := tx.Get(key)
		if err != nil {
			return err
		}
		if existing != nil && !bytes.Equal(existing, id) {
			var values []string
			for _, k := range index.Keys {
				v, _ := get(doc, k.Name)
				values = append(values, fmt.Sprint(v))
			}
			return duplicateKey(c.name, index.Name, strings.Join(values, ", "))
		}
		if err := tx.Set(key, id); err != nil {
			return err
		}
	}
	return nil
}

func (c *collection) unindex(tx kv.Tx, indexes []indexMeta, doc bson.M) error {
	for _, index := range indexes {
		if !index.Unique {
			continue
		}
		if key := c.entryKey(index, doc); key != nil {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *collection) put(tx kv.Tx, doc bson.M) error {
	bits, err := bson.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to encode document")
	}
	return tx.Set(c.docKey(doc["_id"]), bits)
}

func (c *collection) find(ctx context.Context, filter bson.M, opts storage.FindOptions) ([]bson.M, error) {
	var docs []bson.M
	err := c.db.Tx(false, func(tx kv.Tx) error {
		if opts.Hint != "" && opts.Hint != "_id_" {
			indexes, err := c.indexes(tx)
			if err != nil {
				return err
			}
			found := false
			for _, index := range indexes {
				found = found || index.Name == opts.Hint
			}
			if !found {
				return errors.New(errors.Operation, "hint provided does not correspond to an existing index: %s", opts.Hint)
			}
		}
		return c.scan(ctx, tx, func(doc bson.M) (bool, error) {
			matched, err := Match(doc, filter)
			if err != nil {
				return false, err
			}
			if matched {
				docs = append(docs, doc)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortDocs(docs, opts.Sort)
	if opts.Skip > 0 {
		if opts.Skip >= len(docs) {
			return nil, nil
		}
		docs = docs[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(docs) {
		docs = docs[:opts.Limit]
	}
	return docs, nil
}

func (c *collection) Find(ctx context.Context, filter bson.M, opts storage.FindOptions) (storage.Cursor, error) {
	docs, err := c.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	for i, doc := range docs {
		docs[i] = project(doc, opts.Projection)
	}
	return &cursor{docs: docs}, nil
}

func (c *collection) Count(ctx context.Context, filter bson.M, opts storage.FindOptions) (int, error) {
	docs, err := c.find(ctx, filter, opts)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (c *collection) Insert(ctx context.Context, docs []bson.M, concern storage.WriteConcern) ([]any, error) {
	ids := make([]any, len(docs))
	err := c.db.Tx(true, func(tx kv.Tx) error {
		indexes, err := c.indexes(tx)
		if err != nil {
			return err
		}
		for i, doc := range docs {
			doc = clone(doc)
			if doc["_id"] == nil {
				doc["_id"] = bson.NewObjectId()
			}
			existing, err := tx.Get(c.docKey(doc["_id"]))
			if err != nil {
				return err
			}
			if existing != nil {
				return duplicateKey(c.name, "_id_", doc["_id"])
			}
			if err := c.index(tx, indexes, doc); err != nil {
				return err
			}
			if err := c.put(tx, doc); err != nil {
				return err
			}
			ids[i] = doc["_id"]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *collection) Update(ctx context.Context, filter bson.M, update bson.M, opts storage.UpdateOptions) (storage.UpdateResult, error) {
	var result storage.UpdateResult
	err := c.db.Tx(true, func(tx kv.Tx) error {
		indexes, err := c.indexes(tx)
		if err != nil {
			return err
		}
		var matched []bson.M
		if err := c.scan(ctx, tx, func(doc bson.M) (bool, error) {
			ok, err := Match(doc, filter)
			if err != nil {
				return false, err
			}
			if ok {
				matched = append(matched, doc)
			}
			return !ok || opts.Multi, nil
		}); err != nil {
			return err
		}
		for _, doc := range matched {
			before := clone(doc)
			if err := Apply(doc, update, filter, false); err != nil {
				return err
			}
			if !equal(before["_id"], doc["_id"]) {
				return errors.New(errors.Operation, "Mod on _id not allowed")
			}
			if err := c.unindex(tx, indexes, before); err != nil {
				return err
			}
			if err := c.index(tx, indexes, doc); err != nil {
				return err
			}
			if err := c.put(tx, doc); err != nil {
				return err
			}
			result.Matched++
			if !equal(before, doc) {
				result.Modified++
			}
		}
		if len(matched) > 0 || !opts.Upsert {
			return nil
		}
		doc, err := upsertBase(filter)
		if err != nil {
			return err
		}
		if err := Apply(doc, update, filter, true); err != nil {
			return err
		}
		if doc["_id"] == nil {
			doc["_id"] = bson.NewObjectId()
		}
		existing, err := tx.Get(c.docKey(doc["_id"]))
		if err != nil {
			return err
		}
		if existing != nil {
			return duplicateKey(c.name, "_id_", doc["_id"])
		}
		if err := c.index(tx, indexes, doc); err != nil {
			return err
		}
		result.UpsertedID = doc["_id"]
		return c.put(tx, doc)
	})
	if err != nil {
		return storage.UpdateResult{}, err
	}
	if !opts.WriteConcern.Acknowledged() {
		return storage.UpdateResult{Acknowledged: false}, nil
	}
	result.Acknowledged = true
	return result, nil
}

// upsertBase seeds an upserted document from the equality constraints of the filter. Keys are
// applied in order so a constraint below another equality constraint fails deterministically.
func upsertBase(filter bson.M) (bson.M, error) {
	doc := bson.M{}
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cond := filter[key]
		if strings.HasPrefix(key, "$") {
			continue
		}
		if _, isRegex := cond.(bson.RegEx); isRegex {
			continue
		}
		if isOperatorDoc(cond) {
			ops, _ := asDoc(cond)
			eq, ok := ops["$eq"]
			if !ok {
				continue
			}
			cond = eq
		}
		if err := set(doc, key, cloneValue(cond)); err != nil {
			return nil, errors.Wrap(err, errors.Operation, "cannot seed upsert from %s", key)
		}
	}
	return doc, nil
}

func (c *collection) Delete(ctx context.Context, filter bson.M, concern storage.WriteConcern) (int, error) {
	var deleted int
	err := c.db.Tx(true, func(tx kv.Tx) error {
		indexes, err := c.indexes(tx)
		if err != nil {
			return err
		}
		var matched []bson.M
		if err := c.scan(ctx, tx, func(doc bson.M) (bool, error) {
			ok, err := Match(doc, filter)
			if ok {
				matched = append(matched, doc)
			}
			return true, err
		}); err != nil {
			return err
		}
		for _, doc := range matched {
			if err := c.unindex(tx, indexes, doc); err != nil {
				return err
			}
			if err := tx.Delete(c.docKey(doc["_id"])); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (c *collection) EnsureIndex(ctx context.Context, spec storage.IndexSpec) error {
	if len(spec.Keys) == 0 {
		return errors.New(errors.Validation, "index on %s has no keys", c.name)
	}
	meta := indexMeta{
		Name:   spec.Name,
		Keys:   spec.Keys,
		Unique: spec.Unique,
		Sparse: spec.Sparse,
	}
	if meta.Name == "" {
		meta.Name = storage.IndexName(spec.Keys)
	}
	key := append(c.metaPrefix(), []byte(meta.Name)...)
	return c.db.Tx(true, func(tx kv.Tx) error {
		existing, err := tx.Get(key)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		bits, err := bson.Marshal(meta)
		if err != nil {
			return err
		}
		if err := tx.Set(key, bits); err != nil {
			return err
		}
		if !meta.Unique {
			return nil
		}
		return c.scan(ctx, tx, func(doc bson.M) (bool, error) {
			return true, c.index(tx, []indexMeta{meta}, doc)
		})
	})
}

func (c *collection) Drop(ctx context.Context) error {
	return c.db.DropPrefix(c.docPrefix(), c.metaPrefix(), []byte(fmt.Sprintf("idx/%s/", c.name)))
}

type cursor struct {
	docs []bson.M
	pos  int
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Current() bson.M {
	if c.pos == 0 || c.pos > len(c.docs) {
		return nil
	}
	return c.docs[c.pos-1]
}

func (c *cursor) Err() error {
	return nil
}

func (c *cursor) Close(ctx context.Context) error {
	c.docs = nil
	return nil
}
