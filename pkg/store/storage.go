package store

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrTransactionRO = errors.New("transaction is read-only")
)

// Storage is the key-value backend of the document cache
type Storage interface {
	// Begin starts a new transaction
	Begin(writable bool) (Transaction, error)

	// DropTable deletes every key of table
	DropTable(table Table) error

	// Compact reclaims space held by deleted and expired entries
	Compact() error

	// Close closes the storage
	Close() error
}

// Transaction is a snapshot-isolated view of the storage
type Transaction interface {
	// Get retrieves a value by key
	Get(table Table, key []byte) ([]byte, error)

	// Set stores a key-value pair
	Set(table Table, key, value []byte) error

	// SetWithTTL stores a key-value pair that disappears after ttl.
	// A ttl of zero or less never expires.
	SetWithTTL(table Table, key, value []byte, ttl time.Duration) error

	// Delete removes a key
	Delete(table Table, key []byte) error

	// Scan iterates over the keys of table starting with prefix, in key
	// order. A nil prefix visits the whole table.
	Scan(table Table, prefix []byte) (Iterator, error)

	// Commit commits the transaction
	Commit() error

	// Rollback discards the transaction
	Rollback() error
}

// Iterator walks the result of a Scan
type Iterator interface {
	// Next advances to the next item
	Next() bool

	// Key returns the current key without the table prefix
	Key() []byte

	// Value returns the current value
	Value() ([]byte, error)

	// ExpiresAt returns when the current item expires, or the zero time
	ExpiresAt() time.Time

	// Close closes the iterator
	Close() error
}

// Table is a key namespace inside the storage
type Table byte

const (
	// Cached remote documents: url hash -> encoded entry
	TableDocuments Table = iota

	// Requested URL hash -> hash of the final document URL, for redirects
	TableAliases
)

// Tables lists every table, in prefix order
var Tables = []Table{TableDocuments, TableAliases}

func (t Table) String() string {
	switch t {
	case TableDocuments:
		return "documents"
	case TableAliases:
		return "aliases"
	default:
		return "unknown"
	}
}

// TablePrefix returns the byte prefix that namespaces a table's keys
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey adds a table prefix to a key
func PrefixKey(table Table, key []byte) []byte {
	result := make([]byte, 1+len(key))
	result[0] = byte(table)
	copy(result[1:], key)
	return result
}
