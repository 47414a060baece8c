package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerSink stores values in an embedded Badger database.
type BadgerSink struct {
	db *badger.DB
}

// NewBadgerSink opens a Badger database in dir, or in memory when inMemory
// is set (dir is then ignored).
func NewBadgerSink(dir string, inMemory bool) (*BadgerSink, error) {
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return &BadgerSink{db: db}, nil
}

// Store writes value under namespace:key with an optional TTL.
func (s *BadgerSink) Store(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(namespace, key); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(joinKey(namespace, key)), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Load reads a single value.
func (s *BadgerSink) Load(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(joinKey(namespace, key)))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Record is a stored key and value.
type Record struct {
	Key   string
	Value []byte
}

// Scan returns every live record in namespace whose key starts with prefix,
// in key order.
func (s *BadgerSink) Scan(ctx context.Context, namespace, prefix string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nsPrefix := joinKey(namespace, "")
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(nsPrefix + prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			records = append(records, Record{
				Key:   strings.TrimPrefix(string(item.Key()), nsPrefix),
				Value: value,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Ping reports whether the database is open.
func (s *BadgerSink) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

func (s *BadgerSink) Close() error {
	return s.db.Close()
}
