package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironpki/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Operation journal tools",
	Long:  `Commands for listing and verifying the hash-chained operation journal.`,
}

// ---------------------------------------------------------------------------
// journal list
// ---------------------------------------------------------------------------

var listJSONOutput bool

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journal entries",
	Long: `Lists the entries of the journal configured with --journal. With --json the
output is an export document accepted by "journal verify".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		entries, err := readJournalDB()
		if err != nil {
			return err
		}
		if listJSONOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(journal.Export{PKIDir: cfg.PKI, Entries: entries})
		}
		printEntries(cmd.OutOrStdout(), entries)
		return nil
	},
}

func readJournalDB() ([]journal.Entry, error) {
	if cfg.Journal == "" {
		return nil, fmt.Errorf("no journal configured (use --journal or the journal config key)")
	}
	store, err := openJournal()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List()
}

func printEntries(w io.Writer, entries []journal.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tOPERATION\tNAME\tRESULT\tDURATION")
	for _, e := range entries {
		result := e.Result
		if e.ErrorKind != "" {
			result += " (" + e.ErrorKind + ")"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%dms\n", e.Seq, e.CreatedAt, e.Operation, e.Name, result, e.DurationMS)
	}
	tw.Flush()
}

// ---------------------------------------------------------------------------
// journal verify
// ---------------------------------------------------------------------------

var (
	verifyJSONOutput bool
	verifyDB         bool
)

// verifyReport is the JSON output of journal verify.
type verifyReport struct {
	Source string `json:"source"`
	journal.VerifyResult
}

var journalVerifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify the integrity of the journal hash chain",
	Long: `Reads an exported journal (from "journal list --json") or, with --db, the
configured journal database, and verifies the genesis anchor, hash chain
continuity, sequence numbering, ID uniqueness and timestamp ordering.

Exit status is 1 when the chain is invalid and 2 when it cannot be read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd, journalVerifyCmd)
	journalListCmd.Flags().BoolVar(&listJSONOutput, "json", false, "Output an export document as JSON")
	journalVerifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output results as JSON")
	journalVerifyCmd.Flags().BoolVar(&verifyDB, "db", false, "Verify the configured journal database")
}

func runVerify(cmd *cobra.Command, args []string) error {
	var (
		source  string
		entries []journal.Entry
		err     error
	)
	switch {
	case verifyDB && len(args) == 0:
		source = cfg.Journal
		entries, err = readJournalDB()
	case !verifyDB && len(args) == 1:
		source = args[0]
		entries, err = readExport(args[0])
	default:
		return fmt.Errorf("give either an export file or --db")
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		os.Exit(2)
	}

	report := verifyReport{Source: source, VerifyResult: journal.Verify(entries)}
	if verifyJSONOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			os.Exit(2)
		}
	} else {
		printHumanResult(cmd.OutOrStdout(), report)
	}

	if !report.Valid {
		os.Exit(1)
	}
	return nil
}

func readExport(path string) ([]journal.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file: %w", err)
	}
	var export journal.Export
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return export.Entries, nil
}

func printHumanResult(w io.Writer, r verifyReport) {
	fmt.Fprintf(w, "Journal verification: %s\n", r.Source)
	fmt.Fprintf(w, "Entries: %d\n\n", r.EntryCount)

	failures, warnings := 0, 0
	for _, c := range r.Checks {
		tag := "[PASS]"
		switch c.Status {
		case journal.StatusFail:
			tag = "[FAIL]"
			failures++
		case journal.StatusWarn:
			tag = "[WARN]"
			warnings++
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", tag, c.Name)
		}
	}

	fmt.Fprintln(w)
	if r.Valid {
		fmt.Fprintln(w, "Result: VALID")
	} else {
		fmt.Fprintf(w, "Result: INVALID (%d error(s), %d warning(s))\n", failures, warnings)
	}
}
