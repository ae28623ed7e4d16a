package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmcleod/ironpki/pki"
)

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, &pki.Status{
		PKIDir:      "/srv/pki",
		Initialized: true,
		CA:          true,
		CAEncrypted: true,
		Issued:      []string{"alice", "vpn"},
	})

	s := out.String()
	assert.Contains(t, s, "Key-store:     /srv/pki\n")
	assert.Contains(t, s, "CA encrypted:  yes\n")
	assert.Contains(t, s, "CRL:           no\n")
	assert.Contains(t, s, "Issued:        2\n  - alice\n  - vpn\n")
}

func TestPrintStatusHidesEncryptionWithoutCA(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, &pki.Status{PKIDir: "/srv/pki", Issued: []string{}})

	assert.NotContains(t, out.String(), "CA encrypted")
	assert.Contains(t, out.String(), "Initialised:   no\n")
}
