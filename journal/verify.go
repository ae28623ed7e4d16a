package journal

import (
	"fmt"
	"time"
)

// Check status values.
const (
	StatusPass = "pass"
	StatusFail = "fail"
	StatusWarn = "warn"
)

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	EntryCount int     `json:"entry_count"`
	Valid      bool    `json:"valid"`
	Checks     []Check `json:"checks"`
}

// Check is one named verification step.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (r *VerifyResult) add(name, status, detail string) {
	if status == StatusFail {
		r.Valid = false
	}
	r.Checks = append(r.Checks, Check{Name: name, Status: status, Detail: detail})
}

// Verify checks the genesis anchor, hash chain continuity, sequence
// numbering, ID uniqueness and timestamp ordering of entries.
func Verify(entries []Entry) VerifyResult {
	result := VerifyResult{EntryCount: len(entries), Valid: true}

	if len(entries) == 0 {
		result.add("empty_chain", StatusPass, "no entries to verify")
		return result
	}

	// 1. Genesis anchor.
	if entries[0].PrevHash == GenesisHash {
		result.add("genesis_anchor", StatusPass, "")
	} else {
		result.add("genesis_anchor", StatusFail,
			fmt.Sprintf("first entry prev_hash=%s, expected genesis hash", entries[0].PrevHash))
	}

	// 2. Chain continuity.
	chainDetail := ""
	for i := 1; i < len(entries); i++ {
		if expected := entries[i-1].Hash(); entries[i].PrevHash != expected {
			chainDetail = fmt.Sprintf("entry %d (id=%s) has prev_hash=%s but expected %s",
				i, entries[i].ID, entries[i].PrevHash, expected)
			break
		}
	}
	if chainDetail == "" {
		result.add("chain_continuity", StatusPass, fmt.Sprintf("all %d entries link correctly", len(entries)))
	} else {
		result.add("chain_continuity", StatusFail, chainDetail)
	}

	// 3. Contiguous sequence numbers starting at 1.
	seqDetail := ""
	for i, e := range entries {
		if e.Seq != uint64(i+1) {
			seqDetail = fmt.Sprintf("entry %d has seq=%d, expected %d", i, e.Seq, i+1)
			break
		}
	}
	if seqDetail == "" {
		result.add("contiguous_sequence", StatusPass, "")
	} else {
		result.add("contiguous_sequence", StatusFail, seqDetail)
	}

	// 4. No duplicate IDs.
	seen := make(map[string]int, len(entries))
	dupDetail := ""
	for i, e := range entries {
		if prev, ok := seen[e.ID]; ok {
			dupDetail = fmt.Sprintf("entry %d and entry %d share id=%s", prev, i, e.ID)
			break
		}
		seen[e.ID] = i
	}
	if dupDetail == "" {
		result.add("no_duplicate_ids", StatusPass, "")
	} else {
		result.add("no_duplicate_ids", StatusFail, dupDetail)
	}

	// 5. Monotonic timestamps. Clock skew is possible, so this only warns.
	var prev time.Time
	tsDetail := ""
	for i, e := range entries {
		t, err := parseTimestamp(e.CreatedAt)
		if err != nil {
			tsDetail = fmt.Sprintf("entry %d has unparseable created_at=%q", i, e.CreatedAt)
			break
		}
		if !prev.IsZero() && t.Before(prev) {
			tsDetail = fmt.Sprintf("entry %d (created_at=%s) is earlier than entry %d", i, e.CreatedAt, i-1)
			break
		}
		prev = t
	}
	if tsDetail == "" {
		result.add("monotonic_timestamps", StatusPass, "")
	} else {
		result.add("monotonic_timestamps", StatusWarn, tsDetail)
	}

	return result
}

// parseTimestamp parses RFC3339Nano, falling back to RFC3339.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}
