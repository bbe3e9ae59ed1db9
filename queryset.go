package odm

import (
	"context"
	"strings"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/query"
	"github.com/autom8ter/odm/storage"
	"github.com/autom8ter/odm/util"
	"gopkg.in/mgo.v2/bson"
)

// QuerySet is an immutable, lazily evaluated query over a collection. Chain methods return copies.
type QuerySet struct {
	coll           *Collection
	exprs          []query.Expr
	skip           int
	limit          int
	ordering       []string
	only           []string
	batchSize      int
	readPreference storage.ReadPreference
	readConcern    storage.ReadConcern
	hint           string
	concern        *storage.WriteConcern
	// empty is set by a slice selecting nothing
	empty bool
}

func newQuerySet(c *Collection) *QuerySet {
	q := &QuerySet{coll: c}
	if c.schema.Polymorphic() {
		q.exprs = append(q.exprs, query.Expr{
			Op:    query.OpRaw,
			Value: bson.M{ClassKey: bson.M{"$in": c.schema.ClassNames()}},
		})
	}
	return q
}

func (q *QuerySet) clone() *QuerySet {
	cpy := *q
	cpy.exprs = append([]query.Expr{}, q.exprs...)
	cpy.ordering = append([]string{}, q.ordering...)
	cpy.only = append([]string{}, q.only...)
	return &cpy
}

// Filter narrows the queryset with a dotted filter
func (q *QuerySet) Filter(filter query.Filter) *QuerySet {
	cpy := q.clone()
	for key, value := range filter {
		expr := query.ParseKey(key)
		expr.Value = value
		cpy.exprs = append(cpy.exprs, expr)
	}
	return cpy
}

// Where narrows the queryset with a typed constraint on a '.' separated logical path
func (q *QuerySet) Where(path string, op query.Operator, value any) *QuerySet {
	return q.WhereExpr(query.Where(path, op, value))
}

// WhereExpr narrows the queryset with typed constraints
func (q *QuerySet) WhereExpr(exprs ...query.Expr) *QuerySet {
	cpy := q.clone()
	cpy.exprs = append(cpy.exprs, exprs...)
	return cpy
}

// Skip skips the first n matches
func (q *QuerySet) Skip(n int) *QuerySet {
	cpy := q.clone()
	cpy.skip = n
	return cpy
}

// Limit returns at most n matches (0 for no limit)
func (q *QuerySet) Limit(n int) *QuerySet {
	cpy := q.clone()
	cpy.limit = n
	return cpy
}

// Slice returns the matches in [start, end)
func (q *QuerySet) Slice(start, end int) *QuerySet {
	cpy := q.clone()
	cpy.skip = start
	cpy.limit = end - start
	cpy.empty = cpy.limit <= 0
	return cpy
}

// OrderBy sorts by logical paths. A '-' prefix sorts descending, '+' (or none) ascending. Segments
// are separated by '__' or '.'.
func (q *QuerySet) OrderBy(keys ...string) *QuerySet {
	cpy := q.clone()
	cpy.ordering = keys
	return cpy
}

// Only restricts the loaded fields to the logical paths
func (q *QuerySet) Only(fields ...string) *QuerySet {
	cpy := q.clone()
	cpy.only = fields
	return cpy
}

// BatchSize sets the number of documents fetched per round trip
func (q *QuerySet) BatchSize(n int) *QuerySet {
	cpy := q.clone()
	cpy.batchSize = n
	return cpy
}

// ReadPreference sets the replica set members reads may be served from
func (q *QuerySet) ReadPreference(pref storage.ReadPreference) *QuerySet {
	cpy := q.clone()
	cpy.readPreference = pref
	return cpy
}

// ReadConcern sets the isolation level of reads
func (q *QuerySet) ReadConcern(concern storage.ReadConcern) *QuerySet {
	cpy := q.clone()
	cpy.readConcern = concern
	return cpy
}

// Hint forces the named index
func (q *QuerySet) Hint(index string) *QuerySet {
	cpy := q.clone()
	cpy.hint = index
	return cpy
}

// WriteConcern sets the write concern of updates and deletes
func (q *QuerySet) WriteConcern(concern storage.WriteConcern) *QuerySet {
	cpy := q.clone()
	cpy.concern = &concern
	return cpy
}

func (q *QuerySet) writeConcern() storage.WriteConcern {
	if q.concern != nil {
		return *q.concern
	}
	return q.coll.concern
}

func splitPath(key string) []string {
	if strings.Contains(key, "__") {
		return strings.Split(key, "__")
	}
	return strings.Split(key, ".")
}

// Query compiles the queryset's constraints into a query document
func (q *QuerySet) Query() (bson.M, error) {
	return query.CompileExprs(q.coll.schema, q.exprs...)
}

func (q *QuerySet) findOptions() (storage.FindOptions, error) {
	opts := storage.FindOptions{
		Skip:           q.skip,
		Limit:          q.limit,
		BatchSize:      q.batchSize,
		ReadPreference: q.readPreference,
		ReadConcern:    q.readConcern,
		Hint:           q.hint,
	}
	for _, key := range q.ordering {
		direction := 1
		switch {
		case strings.HasPrefix(key, "-"):
			direction = -1
			key = key[1:]
		case strings.HasPrefix(key, "+"):
			key = key[1:]
		}
		if key == "" {
			continue
		}
		resolved, err := query.Resolve(q.coll.schema, splitPath(key), false)
		if err != nil {
			return opts, err
		}
		opts.Sort = append(opts.Sort, bson.DocElem{Name: resolved.Key(), Value: direction})
	}
	if len(q.only) > 0 {
		opts.Projection = bson.M{}
		for _, key := range q.only {
			resolved, err := query.Resolve(q.coll.schema, splitPath(key), false)
			if err != nil {
				return opts, err
			}
			opts.Projection[resolved.Key()] = 1
		}
		if q.coll.schema.Polymorphic() {
			opts.Projection[ClassKey] = 1
		}
	}
	return opts, nil
}

// Cursor compiles the queryset and returns a cursor over its matches. Nothing is read until the
// first call to Next.
func (q *QuerySet) Cursor(ctx context.Context) (*Cursor, error) {
	filter, err := q.Query()
	if err != nil {
		return nil, err
	}
	opts, err := q.findOptions()
	if err != nil {
		return nil, err
	}
	q.coll.db.logger.Debug(ctx, "compiled query", q.coll.tags(map[string]any{"query": util.JSONString(filter)}))
	return &Cursor{coll: q.coll, filter: filter, opts: opts, empty: q.empty}, nil
}

// All returns every match
func (q *QuerySet) All(ctx context.Context) ([]*Document, error) {
	cursor, err := q.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var docs []*Document
	for cursor.Next(ctx) {
		docs = append(docs, cursor.Document())
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// First returns the first match or a NotFound error
func (q *QuerySet) First(ctx context.Context) (*Document, error) {
	docs, err := q.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New(errors.NotFound, "%s matching query does not exist", q.coll.schema.Name())
	}
	return docs[0], nil
}

// Count returns the number of matches. Skip and limit are ignored.
func (q *QuerySet) Count(ctx context.Context) (int, error) {
	filter, err := q.Query()
	if err != nil {
		return 0, err
	}
	opts, err := q.findOptions()
	if err != nil {
		return 0, err
	}
	opts.Skip, opts.Limit = 0, 0
	count, err := q.coll.store.Count(ctx, filter, opts)
	if err != nil {
		return 0, q.coll.wrapStorageError(ctx, err, "count")
	}
	return count, nil
}

// Update applies the dotted update to every match
func (q *QuerySet) Update(ctx context.Context, update query.Update) (storage.UpdateResult, error) {
	return q.update(ctx, update, storage.UpdateOptions{Multi: true})
}

// UpdateOne applies the dotted update to the first match
func (q *QuerySet) UpdateOne(ctx context.Context, update query.Update) (storage.UpdateResult, error) {
	return q.update(ctx, update, storage.UpdateOptions{})
}

// Upsert applies the dotted update to the first match, inserting a document built from the query
// when nothing matches
func (q *QuerySet) Upsert(ctx context.Context, update query.Update) (storage.UpdateResult, error) {
	return q.update(ctx, update, storage.UpdateOptions{Upsert: true})
}

func (q *QuerySet) update(ctx context.Context, update query.Update, opts storage.UpdateOptions) (storage.UpdateResult, error) {
	exprs := make([]query.UpdateExpr, 0, len(update))
	for key, value := range update {
		expr := query.ParseUpdateKey(key)
		expr.Value = value
		exprs = append(exprs, expr)
	}
	return q.UpdateExprs(ctx, opts, exprs...)
}

// UpdateExprs applies typed update instructions. The write concern of opts is replaced by the queryset's.
func (q *QuerySet) UpdateExprs(ctx context.Context, opts storage.UpdateOptions, exprs ...query.UpdateExpr) (storage.UpdateResult, error) {
	if len(exprs) == 0 {
		return storage.UpdateResult{}, errors.New(errors.Operation, "No update parameters, would remove data")
	}
	filter, err := q.Query()
	if err != nil {
		return storage.UpdateResult{}, err
	}
	update, err := query.CompileUpdateExprs(q.coll.schema, exprs...)
	if err != nil {
		return storage.UpdateResult{}, err
	}
	if len(update) == 0 {
		return storage.UpdateResult{}, errors.New(errors.Operation, "No update parameters, would remove data")
	}
	if opts.Upsert && q.coll.schema.Polymorphic() {
		setOnInsert, _ := update["$setOnInsert"].(bson.M)
		if setOnInsert == nil {
			setOnInsert = bson.M{}
		}
		setOnInsert[ClassKey] = q.coll.schema.ClassName()
		update["$setOnInsert"] = setOnInsert
	}
	opts.WriteConcern = q.writeConcern()
	q.coll.db.logger.Debug(ctx, "compiled update", q.coll.tags(map[string]any{
		"query":  util.JSONString(filter),
		"update": util.JSONString(update),
	}))
	result, err := q.coll.store.Update(ctx, filter, update, opts)
	if err != nil {
		return storage.UpdateResult{}, q.coll.wrapStorageError(ctx, err, "update")
	}
	return result, nil
}
