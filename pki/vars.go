package pki

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// RenderVars renders cfg as the tool's settings file: one KEY="value" line
// per configuration field.
func RenderVars(cfg Config) []byte {
	fields := []struct {
		key, value string
	}{
		{"EASYRSA_PKI", cfg.PKIDir},
		{"EASYRSA_CA_EXPIRE", strconv.Itoa(cfg.CADays)},
		{"EASYRSA_CERT_EXPIRE", strconv.Itoa(cfg.CertDays)},
		{"EASYRSA_DIGEST", string(cfg.Digest)},
		{"EASYRSA_ALGO", string(cfg.Algorithm)},
		{"EASYRSA_KEY_SIZE", strconv.Itoa(cfg.KeySize)},
		{"EASYRSA_CURVE", cfg.Curve},
	}

	var b strings.Builder
	b.WriteString("# Generated by ironpki. Changes are overwritten.\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "%s=%s\n", f.key, shellQuote(f.value))
	}
	return []byte(b.String())
}

// The tool sources the settings file with sh, where a backslash inside
// double quotes only escapes \ " $ and `.
var shellReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"`", "\\`",
)

// shellQuote renders s as an sh double-quoted word.
func shellQuote(s string) string {
	return `"` + shellReplacer.Replace(s) + `"`
}

// writeVars materializes cfg at path, replacing any previous content.
func writeVars(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(path, RenderVars(cfg), 0o600); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}
