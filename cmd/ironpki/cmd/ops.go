package cmd

import (
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/jmcleod/ironpki/pki"
)

var (
	initSoft bool

	commonName     string
	passwordFile   string
	caPasswordFile string
	revokeReason   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialise the key-store",
	Long: `Creates the key-store directory. By default an existing key-store is wiped;
--soft keeps issued material and only refreshes the layout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, done, err := openPKI()
		if err != nil {
			return err
		}
		defer done()
		out, err := p.InitPKI(cmd.Context(), !initSoft)
		return report(cmd, out, err)
	},
}

var buildCACmd = &cobra.Command{
	Use:   "build-ca",
	Short: "Build the certificate authority",
	Long: `Builds the CA certificate and key. The key is encrypted with the password
read from --password-file (or $IRONPKI_PASSWORD, or typed at the terminal
with --prompt); without one it is stored unencrypted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pw, err := resolveSecret(cmd.ErrOrStderr(), passwordFile, envPassword, "CA key password (empty for none)", true)
		if err != nil {
			return err
		}
		p, done, err := openPKI()
		if err != nil {
			return err
		}
		defer done()
		return withSecrets(func(password, _ string) error {
			out, err := p.BuildCA(cmd.Context(), pki.BuildCARequest{
				CommonName: commonName,
				Password:   password,
			})
			return report(cmd, out, err)
		}, pw, nil)
	},
}

var issueCmd = &cobra.Command{
	Use:       "issue client|server NAME",
	Short:     "Issue a client or server certificate",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(pki.CertClient), string(pki.CertServer)},
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := pki.CertType(args[0])
		if typ != pki.CertClient && typ != pki.CertServer {
			return fmt.Errorf("certificate type must be client or server, got %q", args[0])
		}
		pw, capw, err := loadPasswords(cmd)
		if err != nil {
			return err
		}
		p, done, err := openPKI()
		if err != nil {
			return err
		}
		defer done()
		return withSecrets(func(password, caPassword string) error {
			req := pki.IssueRequest{
				Name:       args[1],
				CommonName: commonName,
				Password:   password,
				CAPassword: caPassword,
			}
			var out string
			if typ == pki.CertServer {
				out, err = p.CreateServer(cmd.Context(), req)
			} else {
				out, err = p.CreateClient(cmd.Context(), req)
			}
			return report(cmd, out, err)
		}, pw, capw)
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke NAME",
	Short: "Revoke an issued certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		capw, err := resolveSecret(cmd.ErrOrStderr(), caPasswordFile, envCAPassword, caPasswordLabel, false)
		if err != nil {
			return err
		}
		p, done, err := openPKI()
		if err != nil {
			return err
		}
		defer done()
		return withSecrets(func(_, caPassword string) error {
			out, err := p.Revoke(cmd.Context(), pki.RevokeRequest{
				Name:       args[0],
				Reason:     pki.RevocationReason(revokeReason),
				CAPassword: caPassword,
			})
			return report(cmd, out, err)
		}, nil, capw)
	},
}

var renewCmd = &cobra.Command{
	Use:   "renew NAME",
	Short: "Renew an issued certificate and revoke the superseded one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pw, capw, err := loadPasswords(cmd)
		if err != nil {
			return err
		}
		p, done, err := openPKI()
		if err != nil {
			return err
		}
		defer done()
		return withSecrets(func(password, caPassword string) error {
			out, err := p.Renew(cmd.Context(), pki.RenewRequest{
				Name:       args[0],
				CommonName: commonName,
				Password:   password,
				CAPassword: caPassword,
			})
			return report(cmd, out, err)
		}, pw, capw)
	},
}

var genCRLCmd = &cobra.Command{
	Use:   "gen-crl",
	Short: "Regenerate the certificate revocation list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		capw, err := resolveSecret(cmd.ErrOrStderr(), caPasswordFile, envCAPassword, caPasswordLabel, false)
		if err != nil {
			return err
		}
		p, done, err := openPKI()
		if err != nil {
			return err
		}
		defer done()
		return withSecrets(func(_, caPassword string) error {
			out, err := p.GenCRL(cmd.Context(), caPassword)
			return report(cmd, out, err)
		}, nil, capw)
	},
}

const caPasswordLabel = "CA key password"

// loadPasswords resolves the new key password and the CA password.
func loadPasswords(cmd *cobra.Command) (pw, capw *memguard.Enclave, err error) {
	w := cmd.ErrOrStderr()
	if pw, err = resolveSecret(w, passwordFile, envPassword, "Key password (empty for none)", true); err != nil {
		return nil, nil, err
	}
	if capw, err = resolveSecret(w, caPasswordFile, envCAPassword, caPasswordLabel, false); err != nil {
		return nil, nil, err
	}
	return pw, capw, nil
}

func init() {
	rootCmd.AddCommand(initCmd, buildCACmd, issueCmd, revokeCmd, renewCmd, genCRLCmd)

	initCmd.Flags().BoolVar(&initSoft, "soft", false, "Keep existing key-store contents")

	for _, c := range []*cobra.Command{buildCACmd, issueCmd, renewCmd} {
		c.Flags().StringVar(&commonName, "cn", "", "Common name (defaults to the entity name)")
		c.Flags().StringVar(&passwordFile, "password-file", "", "File holding the new key's password ($"+envPassword+")")
	}
	for _, c := range []*cobra.Command{issueCmd, revokeCmd, renewCmd, genCRLCmd} {
		c.Flags().StringVar(&caPasswordFile, "ca-password-file", "", "File holding the CA key password ($"+envCAPassword+")")
	}
	revokeCmd.Flags().StringVar(&revokeReason, "reason", string(pki.ReasonUnspecified), "Revocation reason")
}
