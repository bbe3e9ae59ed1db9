package storage

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/autom8ter/odm/errors"
	"gopkg.in/mgo.v2/bson"
)

// ReadPreference selects the members of a replica set a read may be served from
type ReadPreference string

const (
	Primary            ReadPreference = "primary"
	PrimaryPreferred   ReadPreference = "primaryPreferred"
	Secondary          ReadPreference = "secondary"
	SecondaryPreferred ReadPreference = "secondaryPreferred"
	Nearest            ReadPreference = "nearest"
)

// ReadConcern is the isolation level of a read
type ReadConcern string

const (
	ReadConcernLocal        ReadConcern = "local"
	ReadConcernMajority     ReadConcern = "majority"
	ReadConcernLinearizable ReadConcern = "linearizable"
)

// WriteConcern is the acknowledgement requested for a write
type WriteConcern struct {
	// W is the number of members that must acknowledge the write. 0 means unacknowledged when
	// Unacknowledged is set.
	W        int           `json:"w" validate:"min=0"`
	Majority bool          `json:"majority"`
	J        bool          `json:"j"`
	FSync    bool          `json:"fsync"`
	Timeout  time.Duration `json:"timeout"`
	// Unacknowledged requests fire-and-forget writes (w: 0)
	Unacknowledged bool `json:"unacknowledged"`
}

// Acknowledged reports whether the write waits for an acknowledgement
func (w WriteConcern) Acknowledged() bool {
	return !w.Unacknowledged
}

// FindOptions configures a find
type FindOptions struct {
	Projection     bson.M
	Sort           bson.D
	Skip           int
	Limit          int
	BatchSize      int
	ReadPreference ReadPreference
	ReadConcern    ReadConcern
	Hint           string
}

// UpdateOptions configures an update
type UpdateOptions struct {
	WriteConcern WriteConcern
	Upsert       bool
	// Multi updates every matching document instead of the first
	Multi bool
}

// UpdateResult is the outcome of an update
type UpdateResult struct {
	Matched      int
	Modified     int
	UpsertedID   any
	Acknowledged bool
}

// IndexSpec describes an index. Keys are ordered field/direction pairs (1, -1, "2d", "2dsphere").
type IndexSpec struct {
	Keys       bson.D
	Unique     bool
	Sparse     bool
	Name       string
	Background bool
}

// Cursor iterates over the results of a find
type Cursor interface {
	// Next advances the cursor; it returns false when the cursor is exhausted or failed
	Next(ctx context.Context) bool
	// Current returns the document at the cursor
	Current() bson.M
	// Err returns the error that stopped the cursor (if any)
	Err() error
	Close(ctx context.Context) error
}

// Collection is a named set of documents in a store
type Collection interface {
	Name() string
	Find(ctx context.Context, filter bson.M, opts FindOptions) (Cursor, error)
	Count(ctx context.Context, filter bson.M, opts FindOptions) (int, error)
	// Insert inserts the documents, returning their identifiers
	Insert(ctx context.Context, docs []bson.M, concern WriteConcern) ([]any, error)
	Update(ctx context.Context, filter bson.M, update bson.M, opts UpdateOptions) (UpdateResult, error)
	// Delete deletes every matching document, returning the number of deleted documents
	Delete(ctx context.Context, filter bson.M, concern WriteConcern) (int, error)
	EnsureIndex(ctx context.Context, index IndexSpec) error
	Drop(ctx context.Context) error
}

// Storage is a document store
type Storage interface {
	Collection(name string) Collection
	Close(ctx context.Context) error
}

// Opener opens a Storage provider from its params
type Opener func(ctx context.Context, params map[string]any) (Storage, error)

var registeredOpeners = map[string]Opener{}

// Register registers a storage provider by name
func Register(name string, opener Opener) {
	registeredOpeners[name] = opener
}

// Open opens a registered storage provider
func Open(ctx context.Context, name string, params map[string]any) (Storage, error) {
	opener, ok := registeredOpeners[name]
	if !ok {
		return nil, errors.New(errors.NotFound, "storage provider %s is not registered", name)
	}
	return opener(ctx, params)
}

// Providers returns the names of the registered storage providers
func Providers() []string {
	var names []string
	for name := range registeredOpeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var duplicateKey = regexp.MustCompile(`E1100[01] duplicate key`)

// IsDuplicateKey reports whether a storage error is a unique index violation
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return duplicateKey.MatchString(err.Error())
}

// IndexName returns the conventional index name, e.g. "title_1_created_-1"
func IndexName(keys bson.D) string {
	var name string
	for i, k := range keys {
		if i > 0 {
			name += "_"
		}
		name += k.Name + "_" + bsonString(k.Value)
	}
	return name
}

func bsonString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		if v < 0 {
			return "-1"
		}
		return "1"
	}
	return "1"
}
