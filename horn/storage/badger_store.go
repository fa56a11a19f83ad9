package storage

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/wbrown/horn/horn"
	"github.com/wbrown/horn/horn/codec"
)

// key layout: 'f' 0x00 <relation> 0x00 <encoded tuple>
const factPrefix = 'f'

// BadgerStore implements Store using BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a fact store at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable BadgerDB logs

	// Fact tuples are small; keep them in the LSM tree.
	opts.ValueThreshold = 1 << 10
	opts.DetectConflicts = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func factKey(relation string, args []horn.Value) []byte {
	key := make([]byte, 0, 2+len(relation)+1+len(args)*9)
	key = append(key, factPrefix, 0)
	key = append(key, relation...)
	key = append(key, 0)
	key = append(key, codec.EncodeTuple(args)...)
	return key
}

func relationPrefix(relation string) []byte {
	key := make([]byte, 0, 3+len(relation))
	key = append(key, factPrefix, 0)
	key = append(key, relation...)
	key = append(key, 0)
	return key
}

// Assert adds facts to the store. Re-asserting an existing fact is a no-op.
func (s *BadgerStore) Assert(facts []horn.Fact) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, f := range facts {
			key := factKey(f.Relation, f.Args)
			if err := txn.Set(key, codec.EncodeTuple(f.Args)); err != nil {
				return fmt.Errorf("failed to write fact %s: %w", f.Relation, err)
			}
		}
		return nil
	})
}

// Retract removes facts from the store. Missing facts are ignored.
func (s *BadgerStore) Retract(facts []horn.Fact) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, f := range facts {
			key := factKey(f.Relation, f.Args)
			if err := txn.Delete(key); err != nil && err != badger.ErrKeyNotFound {
				return fmt.Errorf("failed to delete fact %s: %w", f.Relation, err)
			}
		}
		return nil
	})
}

// LoadRelation reads every persisted tuple of one relation, in key order.
func (s *BadgerStore) LoadRelation(relation string) (*horn.FactTable, error) {
	table := &horn.FactTable{Relation: relation}
	prefix := relationPrefix(relation)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				tuple, err := codec.DecodeTuple(val)
				if err != nil {
					return fmt.Errorf("corrupt fact in %s: %w", relation, err)
				}
				table.Tuples = append(table.Tuples, tuple)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// Relations lists every relation with at least one persisted fact.
func (s *BadgerStore) Relations() ([]string, error) {
	var names []string
	prefix := []byte{factPrefix, 0}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var last []byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			rest := key[len(prefix):]
			end := bytes.IndexByte(rest, 0)
			if end < 0 {
				continue
			}
			name := rest[:end]
			if bytes.Equal(name, last) {
				continue
			}
			last = append(last[:0], name...)
			names = append(names, string(name))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Close closes the store.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
