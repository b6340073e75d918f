package encoding

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/aleksaelezovic/jsonld/pkg/store"
)

// EntryDecoder handles decoding of cache entries
type EntryDecoder struct{}

// NewEntryDecoder creates a new entry decoder
func NewEntryDecoder() *EntryDecoder {
	return &EntryDecoder{}
}

// DecodeEntry decodes data produced by EntryEncoder.EncodeEntry
func (d *EntryDecoder) DecodeEntry(data []byte) (*store.Entry, error) {
	if len(data) < entryHeaderSize {
		return nil, fmt.Errorf("entry too short: %d bytes", len(data))
	}
	if data[0] != entryVersion {
		return nil, fmt.Errorf("unknown entry version: %d", data[0])
	}

	entry := &store.Entry{
		StoredAt: fromUnixNanos(int64(binary.BigEndian.Uint64(data[1:9]))),  // #nosec G115 - intentional bit-pattern conversion for binary decoding
		Expires:  fromUnixNanos(int64(binary.BigEndian.Uint64(data[9:17]))), // #nosec G115 - intentional bit-pattern conversion for binary decoding
	}

	rest := data[entryHeaderSize:]
	fields := make([][]byte, 5)
	for i := range fields {
		n, read := binary.Uvarint(rest)
		if read <= 0 {
			return nil, fmt.Errorf("corrupt length for field %d", i)
		}
		rest = rest[read:]
		if n > uint64(len(rest)) {
			return nil, fmt.Errorf("field %d truncated: want %d bytes, have %d", i, n, len(rest))
		}
		fields[i] = rest[:n]
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after entry", len(rest))
	}

	entry.URL = string(fields[0])
	entry.ContentType = string(fields[1])
	entry.ContextURL = string(fields[2])
	entry.Profile = string(fields[3])
	entry.Body = append([]byte{}, fields[4]...)
	return entry, nil
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
