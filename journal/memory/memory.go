// Package memory provides a thread-safe in-memory journal.Repository.
package memory

import (
	"sync"

	"github.com/jmcleod/ironpki/journal"
)

// Repository is a thread-safe in-memory implementation of
// journal.Repository. Suitable for testing and short-lived processes.
type Repository struct {
	mu      sync.RWMutex
	entries []journal.Entry
}

var _ journal.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func cloneEntry(e journal.Entry) journal.Entry {
	e.Commands = append([]string(nil), e.Commands...)
	return e
}

func (r *Repository) Append(e journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Seq != uint64(len(r.entries))+1 {
		return journal.ErrSequence
	}
	r.entries = append(r.entries, cloneEntry(e))
	return nil
}

func (r *Repository) Last() (journal.Entry, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return journal.Entry{}, false, nil
	}
	return cloneEntry(r.entries[len(r.entries)-1]), true, nil
}

func (r *Repository) List() ([]journal.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]journal.Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = cloneEntry(e)
	}
	return out, nil
}
