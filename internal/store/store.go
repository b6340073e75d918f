package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/aleksaelezovic/jsonld/internal/encoding"
	"github.com/aleksaelezovic/jsonld/pkg/store"
)

// DocumentStore keeps remote documents keyed by the hash of their URL.
// A requested URL that redirected is stored as an alias of the final one.
type DocumentStore struct {
	storage store.Storage
	encoder store.EntryEncoder
	decoder store.EntryDecoder
	now     func() time.Time
}

// NewDocumentStore creates a document store over storage
func NewDocumentStore(storage store.Storage) *DocumentStore {
	return &DocumentStore{
		storage: storage,
		encoder: encoding.NewEntryEncoder(),
		decoder: encoding.NewEntryDecoder(),
		now:     time.Now,
	}
}

// Close closes the underlying storage
func (s *DocumentStore) Close() error {
	return s.storage.Close()
}

// Put stores entry under url. Entries with an expiry get a matching TTL.
func (s *DocumentStore) Put(url string, entry *store.Entry) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	if err := s.putInTxn(txn, url, entry); err != nil {
		return err
	}
	return txn.Commit()
}

func (s *DocumentStore) putInTxn(txn store.Transaction, url string, entry *store.Entry) error {
	value, err := s.encoder.EncodeEntry(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry for %s: %w", url, err)
	}

	var ttl time.Duration
	if !entry.Expires.IsZero() {
		ttl = entry.Expires.Sub(s.now())
		if ttl <= 0 {
			return nil
		}
	}

	finalURL := entry.URL
	if finalURL == "" {
		finalURL = url
	}
	finalKey := s.encoder.Hash128(finalURL)
	if err := txn.SetWithTTL(store.TableDocuments, finalKey[:], value, ttl); err != nil {
		return err
	}

	if finalURL != url {
		aliasKey := s.encoder.Hash128(url)
		if err := txn.SetWithTTL(store.TableAliases, aliasKey[:], finalKey[:], ttl); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the fresh entry for url, following a redirect alias. A
// missing or stale entry yields store.ErrNotFound.
func (s *DocumentStore) Get(url string) (*store.Entry, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	key := s.encoder.Hash128(url)
	docKey := key[:]
	if target, err := txn.Get(store.TableAliases, key[:]); err == nil {
		docKey = target
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	value, err := txn.Get(store.TableDocuments, docKey)
	if err != nil {
		return nil, err
	}
	entry, err := s.decoder.DecodeEntry(value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode entry for %s: %w", url, err)
	}
	if !entry.Fresh(s.now()) {
		return nil, store.ErrNotFound
	}
	return entry, nil
}

// Delete removes url and its alias
func (s *DocumentStore) Delete(url string) error {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	key := s.encoder.Hash128(url)
	if err := txn.Delete(store.TableAliases, key[:]); err != nil {
		return err
	}
	if err := txn.Delete(store.TableDocuments, key[:]); err != nil {
		return err
	}
	return txn.Commit()
}

// Entries returns every stored entry, stale ones included
func (s *DocumentStore) Entries() ([]*store.Entry, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	it, err := txn.Scan(store.TableDocuments, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var entries []*store.Entry
	for it.Next() {
		value, err := it.Value()
		if err != nil {
			return nil, err
		}
		entry, err := s.decoder.DecodeEntry(value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode entry %x: %w", it.Key(), err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Count returns the number of stored documents
func (s *DocumentStore) Count() (int, error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Purge removes every document that is no longer fresh, together with the
// redirect aliases pointing at it, and returns how many documents were
// dropped.
func (s *DocumentStore) Purge() (int, error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}

	now := s.now()
	stale := map[[store.KeySize]byte]bool{}
	for _, entry := range entries {
		if !entry.Fresh(now) {
			stale[s.encoder.Hash128(entry.URL)] = true
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	txn, err := s.storage.Begin(true)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()

	aliases, err := s.aliasesOf(txn, stale)
	if err != nil {
		return 0, err
	}
	for _, key := range aliases {
		if err := txn.Delete(store.TableAliases, key); err != nil {
			return 0, err
		}
	}
	for key := range stale {
		if err := txn.Delete(store.TableDocuments, key[:]); err != nil {
			return 0, err
		}
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}

	if err := s.storage.Compact(); err != nil {
		return 0, fmt.Errorf("failed to compact storage: %w", err)
	}
	return len(stale), nil
}

// aliasesOf returns the alias keys that redirect to one of targets
func (s *DocumentStore) aliasesOf(txn store.Transaction, targets map[[store.KeySize]byte]bool) ([][]byte, error) {
	it, err := txn.Scan(store.TableAliases, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var keys [][]byte
	for it.Next() {
		value, err := it.Value()
		if err != nil {
			return nil, err
		}
		var target [store.KeySize]byte
		if copy(target[:], value) == store.KeySize && targets[target] {
			keys = append(keys, it.Key())
		}
	}
	return keys, nil
}

// Clear drops every document and alias
func (s *DocumentStore) Clear() error {
	for _, table := range store.Tables {
		if err := s.storage.DropTable(table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}
