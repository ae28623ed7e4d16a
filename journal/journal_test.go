package journal_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironpki/journal"
	"github.com/jmcleod/ironpki/journal/memory"
	"github.com/jmcleod/ironpki/pki"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func buildJournal(t *testing.T, n int) (*journal.Journal, []journal.Entry) {
	t.Helper()
	j := journal.New(memory.NewRepository())
	for i := 0; i < n; i++ {
		e := journal.Entry{
			Operation:  "issue",
			Name:       "host",
			Commands:   []string{"easyrsa --batch gen-req host nopass", "easyrsa --batch sign-req client host"},
			Result:     journal.ResultSuccess,
			DurationMS: 40,
		}
		if i%2 == 1 {
			e.Result = journal.ResultFailure
			e.ErrorKind = "bad_ca_password"
			e.Error = "wrong CA password"
		}
		_, err := j.Append(e)
		require.NoError(t, err)
	}
	entries, err := j.Entries()
	require.NoError(t, err)
	return j, entries
}

func checkStatus(t *testing.T, res journal.VerifyResult, name string) string {
	t.Helper()
	for _, c := range res.Checks {
		if c.Name == name {
			return c.Status
		}
	}
	t.Fatalf("no %s check in %+v", name, res.Checks)
	return ""
}

// ---------------------------------------------------------------------------
// Append
// ---------------------------------------------------------------------------

func TestAppendChainsEntries(t *testing.T) {
	_, entries := buildJournal(t, 3)
	require.Len(t, entries, 3)

	assert.Equal(t, journal.GenesisHash, entries[0].PrevHash)
	for i, e := range entries {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.NotEmpty(t, e.ID)
		_, err := time.Parse(time.RFC3339Nano, e.CreatedAt)
		assert.NoError(t, err)
		if i > 0 {
			assert.Equal(t, entries[i-1].Hash(), e.PrevHash)
		}
	}
}

func TestAppendConcurrent(t *testing.T) {
	j := journal.New(memory.NewRepository())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := j.Append(journal.Entry{Operation: "gen-crl", Result: journal.ResultSuccess})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := j.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
	assert.True(t, journal.Verify(entries).Valid)
}

func TestHashCoversRecordedFields(t *testing.T) {
	e := journal.Entry{ID: "a", Seq: 1, PrevHash: journal.GenesisHash, CreatedAt: "2026-01-01T00:00:00Z", Operation: "revoke", Name: "bob", Result: journal.ResultSuccess}
	base := e.Hash()

	for _, mutate := range []func(*journal.Entry){
		func(e *journal.Entry) { e.ID = "b" },
		func(e *journal.Entry) { e.Operation = "renew" },
		func(e *journal.Entry) { e.Name = "alice" },
		func(e *journal.Entry) { e.Result = journal.ResultFailure },
		func(e *journal.Entry) { e.CreatedAt = "2026-01-01T00:00:01Z" },
		func(e *journal.Entry) { e.Seq = 2 },
		func(e *journal.Entry) { e.Commands = []string{"easyrsa revoke bob"} },
		func(e *journal.Entry) { e.ErrorKind = "cert_not_found" },
		func(e *journal.Entry) { e.Error = "boom" },
		func(e *journal.Entry) { e.DurationMS = 9 },
	} {
		c := e
		mutate(&c)
		assert.NotEqual(t, base, c.Hash())
	}
}

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

func TestRecordFromPKI(t *testing.T) {
	j := journal.New(memory.NewRepository())

	require.NoError(t, j.Record(t.Context(), pki.Record{
		Operation: pki.OpIssue,
		Name:      "alice",
		Commands:  []string{`easyrsa --batch gen-req "alice" nopass`},
		Duration:  1500 * time.Millisecond,
	}))
	require.NoError(t, j.Record(t.Context(), pki.Record{
		Operation: pki.OpRevoke,
		Name:      "bob",
		Err:       pki.ErrCertNotFound,
	}))

	entries, err := j.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "issue", entries[0].Operation)
	assert.Equal(t, journal.ResultSuccess, entries[0].Result)
	assert.Equal(t, int64(1500), entries[0].DurationMS)
	assert.Len(t, entries[0].Commands, 1)

	assert.Equal(t, journal.ResultFailure, entries[1].Result)
	assert.Equal(t, "cert_not_found", entries[1].ErrorKind)
	assert.NotEmpty(t, entries[1].Error)
}

// ---------------------------------------------------------------------------
// Verify
// ---------------------------------------------------------------------------

func TestVerifyValidAndEmpty(t *testing.T) {
	res := journal.Verify(nil)
	assert.True(t, res.Valid)
	assert.Equal(t, journal.StatusPass, checkStatus(t, res, "empty_chain"))

	_, entries := buildJournal(t, 5)
	res = journal.Verify(entries)
	assert.True(t, res.Valid)
	assert.Equal(t, 5, res.EntryCount)
	for _, c := range res.Checks {
		assert.NotEqual(t, journal.StatusFail, c.Status, c.Name)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	cases := map[string]struct {
		mutate func([]journal.Entry) []journal.Entry
		check  string
	}{
		"genesis": {
			mutate: func(e []journal.Entry) []journal.Entry {
				e[0].PrevHash = "ffff"
				return e
			},
			check: "genesis_anchor",
		},
		"edited result": {
			mutate: func(e []journal.Entry) []journal.Entry {
				e[1].Result = journal.ResultSuccess
				return e
			},
			check: "chain_continuity",
		},
		"edited commands": {
			mutate: func(e []journal.Entry) []journal.Entry {
				e[0].Commands[0] = "forged"
				return e
			},
			check: "chain_continuity",
		},
		"edited error_kind": {
			mutate: func(e []journal.Entry) []journal.Entry {
				e[1].ErrorKind = "cert_not_found"
				return e
			},
			check: "chain_continuity",
		},
		"edited duration": {
			mutate: func(e []journal.Entry) []journal.Entry {
				e[2].DurationMS = 1
				return e
			},
			check: "chain_continuity",
		},
		"removed entry": {
			mutate: func(e []journal.Entry) []journal.Entry {
				return append(e[:1], e[2:]...)
			},
			check: "chain_continuity",
		},
		"reordered": {
			mutate: func(e []journal.Entry) []journal.Entry {
				e[1], e[2] = e[2], e[1]
				return e
			},
			check: "chain_continuity",
		},
		"renumbered": {
			mutate: func(e []journal.Entry) []journal.Entry {
				e[2].Seq = 7
				return e
			},
			check: "contiguous_sequence",
		},
		"duplicate id": {
			mutate: func(e []journal.Entry) []journal.Entry {
				e[3].ID = e[0].ID
				return e
			},
			check: "no_duplicate_ids",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, entries := buildJournal(t, 4)
			res := journal.Verify(tc.mutate(entries))
			assert.False(t, res.Valid)
			assert.Equal(t, journal.StatusFail, checkStatus(t, res, tc.check))
		})
	}
}

func TestVerifyTimestampsOnlyWarn(t *testing.T) {
	_, entries := buildJournal(t, 2)
	entries[1].CreatedAt = "2000-01-01T00:00:00Z"

	res := journal.Verify(entries)
	assert.True(t, res.Valid)
	assert.Equal(t, journal.StatusWarn, checkStatus(t, res, "monotonic_timestamps"))
}

type failingRepo struct{ journal.Repository }

func (failingRepo) Last() (journal.Entry, bool, error) {
	return journal.Entry{}, false, errors.New("disk gone")
}

func TestAppendPropagatesRepositoryErrors(t *testing.T) {
	j := journal.New(failingRepo{})
	_, err := j.Append(journal.Entry{Operation: "gen-crl"})
	assert.ErrorContains(t, err, "disk gone")
}

func TestHashSeparatesFields(t *testing.T) {
	a := journal.Entry{Operation: "issue", Name: "ab"}
	b := journal.Entry{Operation: "issuea", Name: "b"}
	assert.NotEqual(t, a.Hash(), b.Hash())

	c := journal.Entry{Commands: []string{"a b"}}
	d := journal.Entry{Commands: []string{"a", "b"}}
	assert.NotEqual(t, c.Hash(), d.Hash())
}
