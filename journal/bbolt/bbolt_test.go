package bbolt

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmcleod/ironpki/journal"
	"go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewRepositoryFromFile(filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Fatalf("could not open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBBoltJournal(t *testing.T) {
	s := newTestStore(t)

	t.Run("EmptyLast", func(t *testing.T) {
		_, ok, err := s.Last()
		if err != nil {
			t.Fatalf("Last failed: %v", err)
		}
		if ok {
			t.Fatal("expected empty store")
		}
		entries, err := s.List()
		if err != nil || len(entries) != 0 {
			t.Fatalf("expected no entries, got %d (err=%v)", len(entries), err)
		}
	})

	t.Run("AppendInOrder", func(t *testing.T) {
		for seq := uint64(1); seq <= 3; seq++ {
			if err := s.Append(journal.Entry{ID: "e", Seq: seq, Operation: "issue"}); err != nil {
				t.Fatalf("Append seq %d failed: %v", seq, err)
			}
		}
		last, ok, err := s.Last()
		if err != nil || !ok {
			t.Fatalf("Last failed: ok=%v err=%v", ok, err)
		}
		if last.Seq != 3 {
			t.Errorf("expected last seq 3, got %d", last.Seq)
		}
	})

	t.Run("RejectsGapAndReplay", func(t *testing.T) {
		if err := s.Append(journal.Entry{Seq: 5}); !errors.Is(err, journal.ErrSequence) {
			t.Errorf("expected ErrSequence for gap, got %v", err)
		}
		if err := s.Append(journal.Entry{Seq: 3}); !errors.Is(err, journal.ErrSequence) {
			t.Errorf("expected ErrSequence for replay, got %v", err)
		}
	})

	t.Run("ListOrdersPastByteBoundary", func(t *testing.T) {
		for seq := uint64(4); seq <= 300; seq++ {
			if err := s.Append(journal.Entry{Seq: seq}); err != nil {
				t.Fatalf("Append seq %d failed: %v", seq, err)
			}
		}
		entries, err := s.List()
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(entries) != 300 {
			t.Fatalf("expected 300 entries, got %d", len(entries))
		}
		for i, e := range entries {
			if e.Seq != uint64(i+1) {
				t.Fatalf("entry %d has seq %d", i, e.Seq)
			}
		}
	})
}

func TestBBoltJournalPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	j := journal.New(NewRepository(db))
	first, err := j.Append(journal.Entry{Operation: "init-pki", Result: journal.ResultSuccess})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	db.Close()

	s, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	j = journal.New(s)
	second, err := j.Append(journal.Entry{Operation: "build-ca", Result: journal.ResultSuccess})
	if err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}
	if second.PrevHash != first.Hash() {
		t.Errorf("chain broken across reopen: prev=%s want=%s", second.PrevHash, first.Hash())
	}

	entries, err := j.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if res := journal.Verify(entries); !res.Valid {
		t.Errorf("expected valid chain, got %+v", res.Checks)
	}
}
