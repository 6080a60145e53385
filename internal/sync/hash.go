package sync

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Content hashing is a cross-boundary contract: the remote-file parser and the
// database layer must compute the same fingerprint for the same logical
// content. Inputs are NFC-normalized first so visually identical strings from
// different sources hash identically.

const (
	hashFieldSep = 0x1f // between a label and its value
	hashGroupSep = 0x1e // between plural forms
	hashPartSep  = 0x00 // between value block and comment block
)

// HashEntry returns the content fingerprint of a non-plural entry.
func HashEntry(value, comment string) string {
	h := sha256.New()
	h.Write([]byte(norm.NFC.String(value)))
	h.Write([]byte{hashPartSep})
	h.Write([]byte(norm.NFC.String(comment)))
	return hex.EncodeToString(h.Sum(nil))
}

// HashPluralGroup returns the fingerprint of a whole plural group. All forms
// plus the comment are combined into a single hash in canonical CLDR order, so
// a change to any one form changes the group hash. Partial-group comparisons
// are forbidden by contract.
func HashPluralGroup(forms map[PluralForm]string, comment string) string {
	h := sha256.New()
	for _, form := range pluralOrder {
		value, ok := forms[form]
		if !ok {
			continue
		}
		h.Write([]byte(form))
		h.Write([]byte{hashFieldSep})
		h.Write([]byte(norm.NFC.String(value)))
		h.Write([]byte{hashGroupSep})
	}
	h.Write([]byte{hashPartSep})
	h.Write([]byte(norm.NFC.String(comment)))
	return hex.EncodeToString(h.Sum(nil))
}
