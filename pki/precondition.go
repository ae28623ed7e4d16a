package pki

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// encryptedMarker appears in both PKCS#8 ("BEGIN ENCRYPTED PRIVATE KEY")
// and legacy ("Proc-Type: 4,ENCRYPTED") encrypted PEM keys.
var encryptedMarker = []byte("ENCRYPTED")

// checkCAKey fails with ErrCANotFound if the CA key is absent and with
// ErrPrivateKeyEncrypted if it is passphrase-protected.
func checkCAKey(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrCANotFound
		}
		return fmt.Errorf("reading CA key: %w", err)
	}
	if bytes.Contains(data, encryptedMarker) {
		return ErrPrivateKeyEncrypted
	}
	return nil
}

// precondition runs the local CA key check for requests that need the CA
// and carry no CA password.
func (p *PKI) precondition(req Request) error {
	if !req.Op.needsCA() || req.CAPassword != "" {
		return nil
	}
	return checkCAKey(p.layout.CAKey())
}
