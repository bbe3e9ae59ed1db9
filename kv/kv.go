package kv

// DB is a transactional key value database
type DB interface {
	// Tx executes the function within a transaction; an error rolls the transaction back
	Tx(isUpdate bool, fn func(Tx) error) error
	// DropPrefix deletes every key starting with one of the prefixes
	DropPrefix(prefix ...[]byte) error
	// Close closes the database
	Close() error
}

// IterOpts configures a key value iterator
type IterOpts struct {
	Prefix  []byte `json:"prefix"`
	Seek    []byte `json:"seek"`
	Reverse bool   `json:"reverse"`
}

// Tx is a key value transaction
type Tx interface {
	// Get returns the value of the key or nil if it does not exist
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(opts IterOpts) (Iterator, error)
}

// Iterator iterates over key value pairs in key order
type Iterator interface {
	Seek(key []byte)
	Close()
	Valid() bool
	Item() Item
	Next()
}

// Item is a key value pair
type Item interface {
	Key() []byte
	Value() ([]byte, error)
}
