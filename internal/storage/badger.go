package storage

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/aleksaelezovic/jsonld/pkg/store"
)

// gcDiscardRatio is the share of stale data a value log file needs
// before Compact rewrites it
const gcDiscardRatio = 0.5

// Options configures a badger-backed storage
type Options struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	// Logger receives badger's own log output; nil silences it
	Logger *zap.Logger
}

// BadgerStorage implements store.Storage using BadgerDB
type BadgerStorage struct {
	db       *badger.DB
	inMemory bool
}

// Open opens (or creates) a badger database
func Open(opts Options) (*BadgerStorage, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, errors.New("badger storage needs a directory")
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts.Logger = nil
	if opts.Logger != nil {
		bopts.Logger = &badgerLogger{s: opts.Logger.Named("badger").Sugar()}
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerStorage{db: db, inMemory: opts.InMemory}, nil
}

// NewBadgerStorage opens a silent on-disk storage under path
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	return Open(Options{Dir: path})
}

// NewInMemoryStorage opens a storage that never touches disk
func NewInMemoryStorage() (*BadgerStorage, error) {
	return Open(Options{InMemory: true})
}

func (s *BadgerStorage) Begin(writable bool) (store.Transaction, error) {
	return &badgerTxn{txn: s.db.NewTransaction(writable), writable: writable}, nil
}

func (s *BadgerStorage) DropTable(table store.Table) error {
	return s.db.DropPrefix(store.TablePrefix(table))
}

// Compact runs value log garbage collection until badger finds nothing
// left to rewrite
func (s *BadgerStorage) Compact() error {
	if s.inMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		switch {
		case err == nil:
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
			return nil
		default:
			return err
		}
	}
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

type badgerTxn struct {
	txn      *badger.Txn
	writable bool
}

func (t *badgerTxn) Get(table store.Table, key []byte) ([]byte, error) {
	item, err := t.txn.Get(store.PrefixKey(table, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Set(table store.Table, key, value []byte) error {
	return t.SetWithTTL(table, key, value, 0)
}

func (t *badgerTxn) SetWithTTL(table store.Table, key, value []byte, ttl time.Duration) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	entry := badger.NewEntry(store.PrefixKey(table, key), value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return t.txn.SetEntry(entry)
}

func (t *badgerTxn) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return t.txn.Delete(store.PrefixKey(table, key))
}

func (t *badgerTxn) Scan(table store.Table, prefix []byte) (store.Iterator, error) {
	scanPrefix := store.PrefixKey(table, prefix)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = scanPrefix
	return &badgerIterator{
		it:     t.txn.NewIterator(opts),
		prefix: scanPrefix,
	}, nil
}

func (t *badgerTxn) Commit() error {
	return t.txn.Commit()
}

func (t *badgerTxn) Rollback() error {
	t.txn.Discard()
	return nil
}

type badgerIterator struct {
	it      *badger.Iterator
	prefix  []byte
	started bool
	valid   bool
}

func (i *badgerIterator) Next() bool {
	if i.started {
		i.it.Next()
	} else {
		i.it.Seek(i.prefix)
		i.started = true
	}
	i.valid = i.it.ValidForPrefix(i.prefix)
	return i.valid
}

func (i *badgerIterator) Key() []byte {
	if !i.valid {
		return nil
	}
	// drop the table byte
	return i.it.Item().KeyCopy(nil)[1:]
}

func (i *badgerIterator) Value() ([]byte, error) {
	if !i.valid {
		return nil, store.ErrNotFound
	}
	return i.it.Item().ValueCopy(nil)
}

func (i *badgerIterator) ExpiresAt() time.Time {
	if !i.valid {
		return time.Time{}
	}
	exp := i.it.Item().ExpiresAt()
	if exp == 0 {
		return time.Time{}
	}
	return time.Unix(int64(exp), 0) // #nosec G115 - badger stores unix seconds
}

func (i *badgerIterator) Close() error {
	i.it.Close()
	return nil
}

// badgerLogger routes badger's printf-style logging into zap. Badger is
// chatty at info level, so that goes to debug.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...any)   { l.s.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.s.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.s.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.s.Debugf(format, args...) }
