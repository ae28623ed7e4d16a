package cmd

import (
	"bytes"
	"crypto/subtle"
	"fmt"
	"io"
	"os"

	"github.com/awnumar/memguard"
	"golang.org/x/term"

	"github.com/jmcleod/ironpki/internal/util"
)

// Environment fallbacks for password files.
const (
	envPassword   = "IRONPKI_PASSWORD"
	envCAPassword = "IRONPKI_CA_PASSWORD"
)

// loadSecret reads a password from path, or from the environment variable
// env when path is empty, and seals it in an enclave. A nil enclave means no
// password was supplied. A single trailing newline is stripped.
func loadSecret(path, env string) (*memguard.Enclave, error) {
	var raw []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading password file: %w", err)
		}
		defer util.WipeBytes(data)
		raw = data
	} else if v, ok := os.LookupEnv(env); ok {
		raw = []byte(v)
	}

	raw = bytes.TrimSuffix(raw, []byte("\n"))
	raw = bytes.TrimSuffix(raw, []byte("\r"))
	if len(raw) == 0 {
		return nil, nil
	}
	// NewEnclave wipes raw.
	return memguard.NewEnclave(raw), nil
}

// withSecrets opens the enclaves for the duration of fn. Nil enclaves are
// passed to fn as empty strings.
func withSecrets(fn func(password, caPassword string) error, password, caPassword *memguard.Enclave) error {
	pw, err := openSecret(password)
	if err != nil {
		return err
	}
	defer destroy(pw)
	capw, err := openSecret(caPassword)
	if err != nil {
		return err
	}
	defer destroy(capw)

	return fn(bufString(pw), bufString(capw))
}

func openSecret(e *memguard.Enclave) (*memguard.LockedBuffer, error) {
	if e == nil {
		return nil, nil
	}
	buf, err := e.Open()
	if err != nil {
		return nil, fmt.Errorf("opening password enclave: %w", err)
	}
	return buf, nil
}

func bufString(b *memguard.LockedBuffer) string {
	if b == nil {
		return ""
	}
	return string(b.Bytes())
}

func destroy(b *memguard.LockedBuffer) {
	if b != nil {
		b.Destroy()
	}
}

// Terminal hooks, replaced in tests.
var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword    = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

// promptSecret asks for a password on the terminal. With confirm the entry
// must be typed twice. An empty entry means no password.
func promptSecret(w io.Writer, label string, confirm bool) (*memguard.Enclave, error) {
	if !stdinIsTerminal() {
		return nil, fmt.Errorf("--prompt requires an interactive terminal")
	}
	fmt.Fprintf(w, "%s: ", label)
	first, err := readPassword()
	fmt.Fprintln(w)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	if len(first) == 0 {
		return nil, nil
	}
	if confirm {
		fmt.Fprint(w, "Confirm password: ")
		second, err := readPassword()
		fmt.Fprintln(w)
		if err != nil {
			util.WipeBytes(first)
			return nil, fmt.Errorf("reading password: %w", err)
		}
		if subtle.ConstantTimeCompare(first, second) != 1 {
			util.WipeBytes(first, second)
			return nil, fmt.Errorf("passwords do not match")
		}
		util.WipeBytes(second)
	}
	return memguard.NewEnclave(first), nil
}

// resolveSecret is loadSecret, falling back to a terminal prompt when
// --prompt is set and neither the file nor the environment supplied one.
func resolveSecret(w io.Writer, path, env, label string, confirm bool) (*memguard.Enclave, error) {
	enc, err := loadSecret(path, env)
	if err != nil || enc != nil || !promptPasswords {
		return enc, err
	}
	return promptSecret(w, label, confirm)
}
