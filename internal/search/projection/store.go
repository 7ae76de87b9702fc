package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"overflow/pkg/platform/sentinel"
)

const (
	keyPrefix          = "question:"
	maxConflictRetries = 5
	// DefaultTombstoneTTL bounds how long a deleted id keeps rejecting late events.
	DefaultTombstoneTTL = 7 * 24 * time.Hour
)

// Store persists records in badger. Each update is a read-modify-write
// transaction retried on badger.ErrConflict, so concurrent workers touching
// the same id serialize through optimistic concurrency.
type Store struct {
	db           *badger.DB
	tombstoneTTL time.Duration
	logger       *slog.Logger
}

type Option func(*Store)

func WithTombstoneTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.tombstoneTTL = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens the projection database at path. An empty path keeps it in memory.
func Open(path string, opts ...Option) (*Store, error) {
	bopts := badger.DefaultOptions(path)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	} else {
		bopts.SyncWrites = true
		bopts.CompactL0OnClose = true
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open projection db: %w", err)
	}
	s := &Store{
		db:           db,
		tombstoneTTL: DefaultTombstoneTTL,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Info("projection store opened", "path", path, "in_memory", path == "")
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Update loads the record for id (zero value if absent), passes it to
// mutate and persists it when mutate reports a change. The resulting
// record is returned either way.
func (s *Store) Update(ctx context.Context, id string, mutate func(*Record) bool) (Record, error) {
	var out Record
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			rec, err := get(txn, id)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return err
			}
			rec.ID = id
			if !mutate(&rec) {
				out = rec
				return nil
			}
			if err := s.put(txn, rec); err != nil {
				return err
			}
			out = rec
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.logger.DebugContext(ctx, "projection update conflict, retrying",
			"question_id", id,
			"attempt", attempt+1,
		)
	}
	if err != nil {
		return Record{}, fmt.Errorf("update projection %s: %w", id, err)
	}
	return out, nil
}

// Get returns the record for id or sentinel.ErrNotFound.
func (s *Store) Get(_ context.Context, id string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = get(txn, id)
		return err
	})
	return rec, err
}

func get(txn *badger.Txn, id string) (Record, error) {
	var rec Record
	item, err := txn.Get(key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, sentinel.ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func (s *Store) put(txn *badger.Txn, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	entry := badger.NewEntry(key(rec.ID), data)
	if rec.Deleted {
		entry = entry.WithTTL(s.tombstoneTTL)
	}
	return txn.SetEntry(entry)
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}

// Each calls fn for every stored record, tombstones included.
func (s *Store) Each(ctx context.Context, fn func(Record) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}
