package pki

import "strings"

// Rule maps a failed command's output to a typed error.
type Rule struct {
	Name  string
	Match func(Outcome) bool
	Err   error
}

// Classifier is an ordered rule list; the first matching rule wins.
type Classifier []Rule

func stdoutContains(substrs ...string) func(Outcome) bool {
	return func(o Outcome) bool {
		for _, s := range substrs {
			if strings.Contains(o.Stdout, s) {
				return true
			}
		}
		return false
	}
}

// DefaultClassifier returns the rules matching Easy-RSA 3 diagnostics.
func DefaultClassifier() Classifier {
	return Classifier{
		{
			Name:  "ca_exists",
			Match: stdoutContains("already seem to have one set up"),
			Err:   ErrCAExists,
		},
		// Matches both "run init)" and "run init-pki)?" wordings.
		{
			Name:  "pki_not_found",
			Match: stdoutContains("PKI does not exist (perhaps you need to run init"),
			Err:   ErrPKINotFound,
		},
		{
			Name: "bad_ca_password",
			Match: func(o Outcome) bool {
				return strings.Contains(o.Stderr, "Could not read CA private key from") &&
					strings.Contains(o.Stderr, "wrong password")
			},
			Err: ErrBadCAPassword,
		},
		{
			Name:  "ca_not_found",
			Match: stdoutContains("Missing expected CA file"),
			Err:   ErrCANotFound,
		},
		{
			Name:  "cert_exists",
			Match: stdoutContains("Conflicting certificate exists at"),
			Err:   ErrCertExists,
		},
		{
			Name:  "cert_not_found",
			Match: stdoutContains("no certificate was found", "Missing certificate file"),
			Err:   ErrCertNotFound,
		},
	}
}

// Classify returns the error of the first matching rule, or
// ErrCommandFailed.
func (c Classifier) Classify(o Outcome) error {
	for _, r := range c {
		if r.Match(o) {
			return r.Err
		}
	}
	return ErrCommandFailed
}
