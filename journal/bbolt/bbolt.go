// Package bbolt provides a BBolt-backed journal repository.
package bbolt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/jmcleod/ironpki/journal"
	"go.etcd.io/bbolt"
)

var entriesBucket = []byte("journal")

// Store implements journal.Repository backed by a BBolt database. Entries
// are keyed by their big-endian sequence number so cursor order is Seq
// order.
type Store struct {
	db *bbolt.DB
}

var _ journal.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (s *Store) Append(e journal.Entry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(entriesBucket)
		if err != nil {
			return err
		}
		var lastSeq uint64
		if k, _ := b.Cursor().Last(); k != nil {
			lastSeq = binary.BigEndian.Uint64(k)
		}
		if e.Seq != lastSeq+1 {
			return journal.ErrSequence
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return b.Put(seqKey(e.Seq), data)
	})
}

func (s *Store) Last() (journal.Entry, bool, error) {
	var (
		e  journal.Entry
		ok bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		if b == nil {
			return nil
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &e)
	})
	return e, ok, err
}

func (s *Store) List() ([]journal.Entry, error) {
	var entries []journal.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var e journal.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}
