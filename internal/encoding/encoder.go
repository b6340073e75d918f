package encoding

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/xxh3"

	"github.com/aleksaelezovic/jsonld/pkg/store"
)

const (
	// entryVersion is the first byte of every encoded entry
	entryVersion byte = 1

	// Fixed header: version byte + stored-at and expires as unix nanos
	entryHeaderSize = 1 + 8 + 8

	// Upper bound for a single encoded field
	maxFieldSize = math.MaxInt32
)

// KeyEncoder hashes URLs into fixed-size keys
type KeyEncoder struct {
	// Hash function for strings (xxhash3 128-bit)
}

func NewKeyEncoder() *KeyEncoder {
	return &KeyEncoder{}
}

// Hash128 computes a 128-bit xxhash3 hash of the input string
func (e *KeyEncoder) Hash128(s string) [16]byte {
	hash := xxh3.Hash128([]byte(s))
	var result [16]byte
	binary.BigEndian.PutUint64(result[0:8], hash.Hi)
	binary.BigEndian.PutUint64(result[8:16], hash.Lo)
	return result
}

// EntryEncoder encodes cache entries. Layout: version, stored-at, expires,
// then URL, content type, context URL, profile and body, each prefixed
// with its uvarint length.
type EntryEncoder struct {
	KeyEncoder
}

func NewEntryEncoder() *EntryEncoder {
	return &EntryEncoder{}
}

// EncodeEntry serializes entry
func (e *EntryEncoder) EncodeEntry(entry *store.Entry) ([]byte, error) {
	if entry == nil {
		return nil, fmt.Errorf("nil entry")
	}
	fields := [][]byte{
		[]byte(entry.URL),
		[]byte(entry.ContentType),
		[]byte(entry.ContextURL),
		[]byte(entry.Profile),
		entry.Body,
	}

	size := entryHeaderSize
	for _, f := range fields {
		if len(f) > maxFieldSize {
			return nil, fmt.Errorf("field of %d bytes exceeds limit", len(f))
		}
		size += binary.MaxVarintLen64 + len(f)
	}

	buf := make([]byte, entryHeaderSize, size)
	buf[0] = entryVersion
	binary.BigEndian.PutUint64(buf[1:9], uint64(unixNanos(entry.StoredAt)))  // #nosec G115 - intentional bit-pattern conversion for binary encoding
	binary.BigEndian.PutUint64(buf[9:17], uint64(unixNanos(entry.Expires))) // #nosec G115 - intentional bit-pattern conversion for binary encoding

	for _, f := range fields {
		buf = binary.AppendUvarint(buf, uint64(len(f)))
		buf = append(buf, f...)
	}
	return buf, nil
}
