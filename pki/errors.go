package pki

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCAExists is returned when build-ca is run against a key-store that
	// already holds a CA.
	ErrCAExists = errors.New("CA already exists")

	// ErrPKINotFound is returned when the key-store directory has not been
	// initialised.
	ErrPKINotFound = errors.New("PKI directory not found")

	// ErrCANotFound is returned when an operation needs the CA but the
	// key-store does not contain one.
	ErrCANotFound = errors.New("CA not found")

	// ErrCertExists is returned when a certificate is requested for a name
	// that is already taken.
	ErrCertExists = errors.New("certificate already exists")

	// ErrCertNotFound is returned when the named certificate does not exist.
	ErrCertNotFound = errors.New("certificate not found")

	// ErrBadCAPassword is returned when the supplied CA password does not
	// unlock the CA private key.
	ErrBadCAPassword = errors.New("bad CA password")

	// ErrPrivateKeyEncrypted is returned when the CA private key is
	// passphrase-protected and no CA password was supplied.
	ErrPrivateKeyEncrypted = errors.New("private key is encrypted")

	// ErrInvalidConfig is returned for configuration or request values
	// outside their allowed sets (digest, curve, revocation reason, names).
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCommandFailed is the catch-all for tool failures that no
	// classification rule recognised.
	ErrCommandFailed = errors.New("command failed")

	// ErrNoCRL is returned when no CRL has been generated yet.
	ErrNoCRL = errors.New("no CRL has been generated")
)

// CommandError describes a tool invocation that exited non-zero. Err holds
// the classified sentinel.
type CommandError struct {
	Command  string // redacted command line
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrCommandFailed) {
		return e.Err.Error()
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(e.Stdout); msg != "" {
		return msg
	}
	return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a stable snake_case code for err, suitable for metric
// labels, journal entries and API responses. It returns "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCAExists):
		return "ca_exists"
	case errors.Is(err, ErrPKINotFound):
		return "pki_not_found"
	case errors.Is(err, ErrCANotFound):
		return "ca_not_found"
	case errors.Is(err, ErrCertExists):
		return "cert_exists"
	case errors.Is(err, ErrCertNotFound):
		return "cert_not_found"
	case errors.Is(err, ErrBadCAPassword):
		return "bad_ca_password"
	case errors.Is(err, ErrPrivateKeyEncrypted):
		return "private_key_encrypted"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrNoCRL):
		return "no_crl"
	case errors.Is(err, ErrCommandFailed):
		return "command_failed"
	default:
		return "internal"
	}
}
