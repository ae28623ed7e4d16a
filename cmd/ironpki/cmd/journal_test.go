package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironpki/journal"
	"github.com/jmcleod/ironpki/journal/memory"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// writeExport records n operations in a fresh journal and writes them as an
// export document, returning its path.
func writeExport(t *testing.T, n int, mutate func([]journal.Entry)) string {
	t.Helper()
	j := journal.New(memory.NewRepository())
	for i := 0; i < n; i++ {
		_, err := j.Append(journal.Entry{Operation: "issue", Name: "client-" + string(rune('a'+i)), Result: journal.ResultSuccess})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	entries, err := j.Entries()
	require.NoError(t, err)
	if mutate != nil {
		mutate(entries)
	}

	data, err := json.Marshal(journal.Export{PKIDir: "/srv/pki", Entries: entries})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "journal.json")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestReadExport_ValidChain(t *testing.T) {
	path := writeExport(t, 4, nil)

	entries, err := readExport(path)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	report := verifyReport{Source: path, VerifyResult: journal.Verify(entries)}
	var out bytes.Buffer
	printHumanResult(&out, report)

	assert.True(t, report.Valid)
	assert.Contains(t, out.String(), "[PASS] chain_continuity")
	assert.Contains(t, out.String(), "Result: VALID")
}

func TestReadExport_TamperedChain(t *testing.T) {
	path := writeExport(t, 3, func(entries []journal.Entry) {
		entries[1].Name = "mallory"
	})

	entries, err := readExport(path)
	require.NoError(t, err)

	report := verifyReport{Source: path, VerifyResult: journal.Verify(entries)}
	var out bytes.Buffer
	printHumanResult(&out, report)

	assert.False(t, report.Valid)
	assert.Contains(t, out.String(), "[FAIL] chain_continuity")
	assert.Contains(t, out.String(), "Result: INVALID (1 error(s), 0 warning(s))")
}

func TestReadExport_Errors(t *testing.T) {
	_, err := readExport(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "cannot read file")

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0600))
	_, err = readExport(path)
	assert.ErrorContains(t, err, "invalid JSON")
}

func TestVerifyReportJSONIsFlat(t *testing.T) {
	report := verifyReport{Source: "x.json", VerifyResult: journal.Verify(nil)}
	data, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "x.json", decoded["source"])
	assert.Equal(t, true, decoded["valid"])
	assert.Contains(t, decoded, "checks")
}

func TestPrintEntries(t *testing.T) {
	entries := []journal.Entry{
		{Seq: 1, CreatedAt: "2026-01-01T00:00:00Z", Operation: "build-ca", Result: journal.ResultSuccess, DurationMS: 1200},
		{Seq: 2, CreatedAt: "2026-01-01T00:01:00Z", Operation: "issue", Name: "alice", Result: journal.ResultFailure, ErrorKind: "cert_exists"},
	}
	var out bytes.Buffer
	printEntries(&out, entries)

	assert.Contains(t, out.String(), "build-ca")
	assert.Contains(t, out.String(), "failure (cert_exists)")
	assert.Contains(t, out.String(), "1200ms")
}
