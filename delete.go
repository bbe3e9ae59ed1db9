package odm

import (
	"context"
	"fmt"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/query"
	"gopkg.in/mgo.v2/bson"
)

// DeleteRule is applied to documents referencing a document being deleted
type DeleteRule int

const (
	// DoNothing leaves dangling references
	DoNothing DeleteRule = iota
	// Nullify unsets the reference (or pulls it from a list of references)
	Nullify
	// Cascade deletes the referencing documents
	Cascade
	// Deny refuses to delete a referenced document
	Deny
	// Pull removes the reference from a list of references
	Pull
)

func (r DeleteRule) String() string {
	switch r {
	case Nullify:
		return "nullify"
	case Cascade:
		return "cascade"
	case Deny:
		return "deny"
	case Pull:
		return "pull"
	default:
		return "do_nothing"
	}
}

// Delete deletes every match, applying the delete rules of the fields referencing them. It returns
// the number of deleted matches. The whole cascade is collected and every Deny rule in it is
// checked before anything is written.
func (q *QuerySet) Delete(ctx context.Context) (int, error) {
	visited := map[string]any{}
	var plan []deletion
	if err := q.collect(ctx, visited, &plan); err != nil {
		return 0, err
	}
	if len(plan) == 0 {
		return 0, nil
	}
	for _, step := range plan {
		if err := step.deny(ctx, visited); err != nil {
			return 0, err
		}
	}
	var deleted int
	for i, step := range plan {
		count, err := step.apply(ctx)
		if err != nil {
			return 0, err
		}
		if i == 0 {
			deleted = count
		}
	}
	return deleted, nil
}

// deletion is one step of a cascade: the identifiers a queryset deletes and the fields referencing them
type deletion struct {
	q         *QuerySet
	ids       []any
	referrers []referrer
}

// collect appends the deletion of the matches not yet visited, followed by the deletions they cascade to
func (q *QuerySet) collect(ctx context.Context, visited map[string]any, plan *[]deletion) error {
	ids, err := q.ids(ctx, visited)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	referrers, err := q.coll.db.registry.referrers(q.coll.schema)
	if err != nil {
		return err
	}
	*plan = append(*plan, deletion{q: q, ids: ids, referrers: referrers})
	for _, ref := range referrers {
		if ref.rule != Cascade {
			continue
		}
		refs, err := q.referencing(ref, ids)
		if err != nil {
			return err
		}
		if err := refs.Where(pkAlias, query.OpNin, visitedIDs(visited)).collect(ctx, visited, plan); err != nil {
			return err
		}
	}
	return nil
}

func (q *QuerySet) referencing(ref referrer, ids []any) (*QuerySet, error) {
	c, err := q.coll.db.Collection(ref.schema)
	if err != nil {
		return nil, err
	}
	return c.Objects().Where(ref.field.Name(), query.OpIn, ids).WriteConcern(q.writeConcern()), nil
}

// deny fails when a document outside the cascade refers to the step's identifiers through a Deny rule
func (d deletion) deny(ctx context.Context, visited map[string]any) error {
	for _, ref := range d.referrers {
		if ref.rule != Deny {
			continue
		}
		refs, err := d.q.referencing(ref, d.ids)
		if err != nil {
			return err
		}
		count, err := refs.Where(pkAlias, query.OpNin, visitedIDs(visited)).Count(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			return errors.New(errors.Operation, "Could not delete document (%s.%s refers to it)", ref.schema.Name(), ref.field.Name())
		}
	}
	return nil
}

// apply nullifies or pulls the references to the step's identifiers and deletes them
func (d deletion) apply(ctx context.Context) (int, error) {
	for _, ref := range d.referrers {
		var update query.Update
		switch {
		case ref.rule == Nullify && ref.list, ref.rule == Pull:
			update = query.Update{"pull_all__" + ref.field.Name(): d.ids}
		case ref.rule == Nullify:
			update = query.Update{"unset__" + ref.field.Name(): 1}
		default:
			continue
		}
		refs, err := d.q.referencing(ref, d.ids)
		if err != nil {
			return 0, err
		}
		if _, err := refs.Update(ctx, update); err != nil {
			return 0, err
		}
	}
	coll := d.q.coll
	deleted, err := coll.store.Delete(ctx, bson.M{IDKey: bson.M{"$in": d.ids}}, d.q.writeConcern())
	if err != nil {
		return 0, coll.wrapStorageError(ctx, err, "delete")
	}
	coll.db.logger.Debug(ctx, "deleted documents", coll.tags(map[string]any{"count": deleted}))
	return deleted, nil
}

// ids returns the identifiers of the matches not yet visited and marks them visited
func (q *QuerySet) ids(ctx context.Context, visited map[string]any) ([]any, error) {
	cursor, err := q.Only(pkAlias).Cursor(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var ids []any
	for cursor.Next(ctx) {
		id := cursor.Document().ID()
		key := idKey(id)
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = id
		ids = append(ids, id)
	}
	return ids, cursor.Err()
}

func idKey(id any) string {
	if oid, ok := id.(bson.ObjectId); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}

func visitedIDs(visited map[string]any) []any {
	ids := make([]any, 0, len(visited))
	for _, id := range visited {
		ids = append(ids, id)
	}
	return ids
}
