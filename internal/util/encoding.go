package util

import (
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the NFC form of s so that composed and decomposed
// spellings of a name map to the same file in the key-store.
func Normalize(s string) string {
	return norm.NFC.String(s)
}
