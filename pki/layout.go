package pki

import (
	"path/filepath"
)

// Layout names the files of an Easy-RSA 3 key-store. The tool owns the
// directory; these paths are read-only from this package's point of view.
type Layout struct {
	Root string
}

func (l Layout) CACert() string {
	return filepath.Join(l.Root, "ca.crt")
}

func (l Layout) CAKey() string {
	return filepath.Join(l.Root, "private", "ca.key")
}

func (l Layout) IssuedDir() string {
	return filepath.Join(l.Root, "issued")
}

// Cert returns the issued certificate path for name.
func (l Layout) Cert(name string) string {
	return filepath.Join(l.IssuedDir(), name+".crt")
}

// Key returns the private key path for name.
func (l Layout) Key(name string) string {
	return filepath.Join(l.Root, "private", name+".key")
}

// Req returns the certificate request path for name.
func (l Layout) Req(name string) string {
	return filepath.Join(l.Root, "reqs", name+".req")
}

func (l Layout) CRL() string {
	return filepath.Join(l.Root, "crl.pem")
}

func (l Layout) Index() string {
	return filepath.Join(l.Root, "index.txt")
}

// SharedSecret is where the init-time shared secret is written.
func (l Layout) SharedSecret() string {
	return filepath.Join(l.Root, "ta.key")
}
