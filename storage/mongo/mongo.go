// Package mongo is a storage provider for a MongoDB server
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/storage"
	"github.com/spf13/cast"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

func init() {
	storage.Register("mongodb", func(ctx context.Context, params map[string]any) (storage.Storage, error) {
		return Open(cast.ToString(params["url"]), cast.ToString(params["database"]), cast.ToDuration(params["timeout"]))
	})
}

// Store is a MongoDB database
type Store struct {
	session  *mgo.Session
	database string
}

// Open dials the server and returns the named database. An empty database uses the one named in the url.
func Open(url, database string, timeout time.Duration) (*Store, error) {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	info, err := mgo.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "invalid mongodb url")
	}
	info.Timeout = timeout
	if database != "" {
		info.Database = database
	}
	session, err := mgo.DialWithInfo(info)
	if err != nil {
		return nil, errors.Wrap(err, errors.Operation, "failed to dial mongodb")
	}
	return &Store{session: session, database: info.Database}, nil
}

// Collection returns the named collection
func (s *Store) Collection(name string) storage.Collection {
	return &collection{store: s, name: name}
}

// Close closes the session
func (s *Store) Close(ctx context.Context) error {
	s.session.Close()
	return nil
}

type collection struct {
	store *Store
	name  string
}

func (c *collection) Name() string {
	return c.name
}

// with runs fn against a copy of the session configured for the read preference and write concern
func (c *collection) with(mode storage.ReadPreference, concern *storage.WriteConcern, fn func(coll *mgo.Collection) error) error {
	session := c.store.session.Copy()
	defer session.Close()
	if mode != "" {
		session.SetMode(readMode(mode), true)
	}
	if concern != nil {
		session.SetSafe(safe(*concern))
	}
	return fn(session.DB(c.store.database).C(c.name))
}

func readMode(pref storage.ReadPreference) mgo.Mode {
	switch pref {
	case storage.PrimaryPreferred:
		return mgo.PrimaryPreferred
	case storage.Secondary:
		return mgo.Secondary
	case storage.SecondaryPreferred:
		return mgo.SecondaryPreferred
	case storage.Nearest:
		return mgo.Nearest
	}
	return mgo.Primary
}

func safe(concern storage.WriteConcern) *mgo.Safe {
	if !concern.Acknowledged() {
		return nil
	}
	s := &mgo.Safe{
		W:        concern.W,
		J:        concern.J,
		FSync:    concern.FSync,
		WTimeout: int(concern.Timeout / time.Millisecond),
	}
	if concern.Majority {
		s.WMode = "majority"
	}
	return s
}

func sortFields(order bson.D) []string {
	var fields []string
	for _, f := range order {
		if cast.ToInt(f.Value) < 0 {
			fields = append(fields, "-"+f.Name)
			continue
		}
		fields = append(fields, f.Name)
	}
	return fields
}

// indexKey converts ordered key/direction pairs to mgo's key syntax ("-a", "$2d:loc")
func indexKey(keys bson.D) []string {
	var fields []string
	for _, k := range keys {
		switch v := k.Value.(type) {
		case string:
			fields = append(fields, fmt.Sprintf("$%s:%s", v, k.Name))
		default:
			if cast.ToInt(v) < 0 {
				fields = append(fields, "-"+k.Name)
			} else {
				fields = append(fields, k.Name)
			}
		}
	}
	return fields
}

func (c *collection) query(coll *mgo.Collection, filter bson.M, opts storage.FindOptions) (*mgo.Query, error) {
	q := coll.Find(filter)
	if len(opts.Projection) > 0 {
		q = q.Select(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		q = q.Sort(sortFields(opts.Sort)...)
	}
	if opts.Skip > 0 {
		q = q.Skip(opts.Skip)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.BatchSize > 0 {
		q = q.Batch(opts.BatchSize)
	}
	if opts.Hint != "" {
		indexes, err := coll.Indexes()
		if err != nil {
			return nil, err
		}
		found := false
		for _, index := range indexes {
			if index.Name == opts.Hint {
				q = q.Hint(index.Key...)
				found = true
			}
		}
		if !found {
			return nil, errors.New(errors.Operation, "hint provided does not correspond to an existing index: %s", opts.Hint)
		}
	}
	return q, nil
}

func (c *collection) Find(ctx context.Context, filter bson.M, opts storage.FindOptions) (storage.Cursor, error) {
	// the cursor outlives the call so it keeps its own session copy
	session := c.store.session.Copy()
	if opts.ReadPreference != "" {
		session.SetMode(readMode(opts.ReadPreference), true)
	}
	q, err := c.query(session.DB(c.store.database).C(c.name), filter, opts)
	if err != nil {
		session.Close()
		return nil, err
	}
	return &cursor{session: session, iter: q.Iter()}, nil
}

func (c *collection) Count(ctx context.Context, filter bson.M, opts storage.FindOptions) (int, error) {
	var count int
	err := c.with(opts.ReadPreference, nil, func(coll *mgo.Collection) error {
		q, err := c.query(coll, filter, opts)
		if err != nil {
			return err
		}
		count, err = q.Count()
		return err
	})
	return count, err
}

func (c *collection) Insert(ctx context.Context, docs []bson.M, concern storage.WriteConcern) ([]any, error) {
	ids := make([]any, len(docs))
	values := make([]any, len(docs))
	for i, doc := range docs {
		clone := bson.M{}
		for k, v := range doc {
			clone[k] = v
		}
		if clone["_id"] == nil {
			clone["_id"] = bson.NewObjectId()
		}
		ids[i] = clone["_id"]
		values[i] = clone
	}
	err := c.with("", &concern, func(coll *mgo.Collection) error {
		return coll.Insert(values...)
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *collection) Update(ctx context.Context, filter bson.M, update bson.M, opts storage.UpdateOptions) (storage.UpdateResult, error) {
	var result storage.UpdateResult
	err := c.with("", &opts.WriteConcern, func(coll *mgo.Collection) error {
		var (
			info *mgo.ChangeInfo
			err  error
		)
		switch {
		case opts.Upsert:
			info, err = coll.Upsert(filter, update)
		case opts.Multi:
			info, err = coll.UpdateAll(filter, update)
		default:
			err = coll.Update(filter, update)
			if err == mgo.ErrNotFound {
				return nil
			}
			info = &mgo.ChangeInfo{Matched: 1, Updated: 1}
		}
		if err != nil {
			return err
		}
		if info != nil {
			result.Matched = info.Matched
			result.Modified = info.Updated
			result.UpsertedID = info.UpsertedId
		}
		return nil
	})
	if err != nil {
		return storage.UpdateResult{}, err
	}
	result.Acknowledged = opts.WriteConcern.Acknowledged()
	if !result.Acknowledged {
		return storage.UpdateResult{}, nil
	}
	return result, nil
}

func (c *collection) Delete(ctx context.Context, filter bson.M, concern storage.WriteConcern) (int, error) {
	var deleted int
	err := c.with("", &concern, func(coll *mgo.Collection) error {
		info, err := coll.RemoveAll(filter)
		if err != nil {
			return err
		}
		if info != nil {
			deleted = info.Removed
		}
		return nil
	})
	return deleted, err
}

func (c *collection) EnsureIndex(ctx context.Context, spec storage.IndexSpec) error {
	return c.with("", nil, func(coll *mgo.Collection) error {
		return coll.EnsureIndex(mgo.Index{
			Key:        indexKey(spec.Keys),
			Unique:     spec.Unique,
			Sparse:     spec.Sparse,
			Name:       spec.Name,
			Background: spec.Background,
		})
	})
}

func (c *collection) Drop(ctx context.Context) error {
	return c.with("", nil, func(coll *mgo.Collection) error {
		err := coll.DropCollection()
		if err != nil && err.Error() == "ns not found" {
			return nil
		}
		return err
	})
}

type cursor struct {
	session *mgo.Session
	iter    *mgo.Iter
	current bson.M
}

func (c *cursor) Next(ctx context.Context) bool {
	doc := bson.M{}
	if !c.iter.Next(&doc) {
		c.current = nil
		return false
	}
	c.current = doc
	return true
}

func (c *cursor) Current() bson.M {
	return c.current
}

func (c *cursor) Err() error {
	return c.iter.Err()
}

func (c *cursor) Close(ctx context.Context) error {
	defer c.session.Close()
	return c.iter.Close()
}
