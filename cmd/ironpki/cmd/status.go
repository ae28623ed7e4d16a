package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironpki/pki"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the key-store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, done, err := openPKI()
		if err != nil {
			return err
		}
		defer done()

		st, err := p.Status()
		if err != nil {
			return err
		}
		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		printStatus(cmd.OutOrStdout(), st)
		return nil
	},
}

func printStatus(w io.Writer, st *pki.Status) {
	yn := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}
	fmt.Fprintf(w, "Key-store:     %s\n", st.PKIDir)
	fmt.Fprintf(w, "Initialised:   %s\n", yn(st.Initialized))
	fmt.Fprintf(w, "CA:            %s\n", yn(st.CA))
	if st.CA {
		fmt.Fprintf(w, "CA encrypted:  %s\n", yn(st.CAEncrypted))
	}
	fmt.Fprintf(w, "CRL:           %s\n", yn(st.CRL))
	fmt.Fprintf(w, "Shared secret: %s\n", yn(st.SharedSecret))
	fmt.Fprintf(w, "Issued:        %d\n", len(st.Issued))
	for _, name := range st.Issued {
		fmt.Fprintf(w, "  - %s\n", name)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
}
