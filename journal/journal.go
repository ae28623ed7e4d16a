// Package journal keeps a hash-chained, append-only record of PKI
// operations. Each entry links to its predecessor by hash so that an
// exported journal can be verified offline.
package journal

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/jmcleod/ironpki/internal/uuid"
	"github.com/jmcleod/ironpki/pki"
)

// GenesisHash is the PrevHash of the first entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Result values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// ErrSequence is returned by a Repository when an appended entry does not
// directly follow the current last entry.
var ErrSequence = errors.New("journal sequence mismatch")

// Entry is one recorded operation. Commands are redacted command lines.
type Entry struct {
	ID         string   `json:"id"`
	Seq        uint64   `json:"seq"`
	Operation  string   `json:"operation"`
	Name       string   `json:"name,omitempty"`
	Commands   []string `json:"commands,omitempty"`
	Result     string   `json:"result"`
	ErrorKind  string   `json:"error_kind,omitempty"`
	Error      string   `json:"error,omitempty"`
	CreatedAt  string   `json:"created_at"`
	DurationMS int64    `json:"duration_ms"`
	PrevHash   string   `json:"prev_hash"`
}

// Hash computes the chain link for e: SHA-256 over every field of e, each
// prefixed with its big-endian uint64 length. Commands contribute their
// count followed by each line.
func (e Entry) Hash() string {
	h := sha256.New()
	field := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	field(e.ID)
	field(strconv.FormatUint(e.Seq, 10))
	field(e.PrevHash)
	field(e.CreatedAt)
	field(e.Operation)
	field(e.Name)
	field(strconv.Itoa(len(e.Commands)))
	for _, c := range e.Commands {
		field(c)
	}
	field(e.Result)
	field(e.ErrorKind)
	field(e.Error)
	field(strconv.FormatInt(e.DurationMS, 10))
	return hex.EncodeToString(h.Sum(nil))
}

// Repository stores entries ordered by Seq.
type Repository interface {
	// Append stores e. It fails with ErrSequence unless e.Seq is exactly
	// one more than the last stored Seq (or 1 for an empty journal).
	Append(e Entry) error
	// Last returns the entry with the highest Seq; ok is false when empty.
	Last() (e Entry, ok bool, err error)
	// List returns all entries in Seq order.
	List() ([]Entry, error)
}

// Journal appends chained entries to a Repository.
type Journal struct {
	mu   sync.Mutex
	repo Repository
	now  func() time.Time
}

var _ pki.Recorder = (*Journal)(nil)

// New returns a Journal backed by repo.
func New(repo Repository) *Journal {
	return &Journal{repo: repo, now: time.Now}
}

// Append links e to the current last entry and stores it. ID, Seq,
// CreatedAt and PrevHash are assigned by the journal.
func (j *Journal) Append(e Entry) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	last, ok, err := j.repo.Last()
	if err != nil {
		return Entry{}, err
	}
	e.ID = uuid.New()
	e.CreatedAt = j.now().UTC().Format(time.RFC3339Nano)
	e.Seq = 1
	e.PrevHash = GenesisHash
	if ok {
		e.Seq = last.Seq + 1
		e.PrevHash = last.Hash()
	}
	if err := j.repo.Append(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Record implements pki.Recorder.
func (j *Journal) Record(_ context.Context, rec pki.Record) error {
	e := Entry{
		Operation:  string(rec.Operation),
		Name:       rec.Name,
		Commands:   rec.Commands,
		Result:     ResultSuccess,
		DurationMS: rec.Duration.Milliseconds(),
	}
	if rec.Err != nil {
		e.Result = ResultFailure
		e.ErrorKind = pki.ErrorKind(rec.Err)
		e.Error = rec.Err.Error()
	}
	_, err := j.Append(e)
	return err
}

// Entries returns every entry in order.
func (j *Journal) Entries() ([]Entry, error) {
	return j.repo.List()
}

// Export is the JSON document written by `journal list --json` and read by
// `journal verify`.
type Export struct {
	PKIDir  string  `json:"pki_dir,omitempty"`
	Entries []Entry `json:"entries"`
}
