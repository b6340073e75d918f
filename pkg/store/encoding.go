package store

import (
	"time"
)

// KeySize is the size of a hashed cache key
const KeySize = 16

// Entry is a cached remote document
type Entry struct {
	// URL is the final document URL after redirects
	URL         string
	ContentType string
	ContextURL  string
	Profile     string
	Body        []byte
	StoredAt    time.Time
	// Expires is the zero time for entries without a freshness lifetime
	Expires time.Time
}

// Fresh reports whether the entry may be served at now
func (e *Entry) Fresh(now time.Time) bool {
	return e.Expires.IsZero() || now.Before(e.Expires)
}

// KeyEncoder derives fixed-size storage keys from URLs
type KeyEncoder interface {
	Hash128(s string) [KeySize]byte
}

// EntryEncoder handles encoding of cache entries into a compact binary format
type EntryEncoder interface {
	KeyEncoder
	EncodeEntry(entry *Entry) ([]byte, error)
}

// EntryDecoder handles decoding of cache entries from binary format
type EntryDecoder interface {
	DecodeEntry(data []byte) (*Entry, error)
}
