// Package bankcode canonicalizes free-text bank identifiers.
//
// Balance exports name the same custodian in many ways ("Banco Metropolitano",
// "metro", "BANMET"). Every component that groups by bank compares codes
// produced by Normalize, never raw strings.
package bankcode

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// synonyms maps a compacted upper-case spelling to its canonical code.
// Keys are written readably and compacted in init.
var synonyms = map[string]string{}

func init() {
	table := map[string][]string{
		"BPA": {
			"BANCO POPULAR DE AHORRO",
			"BANCO POPULAR",
			"POPULAR DE AHORRO",
		},
		"BANDEC": {
			"BANCO DE CREDITO Y COMERCIO",
			"CREDITO Y COMERCIO",
			"BANCO CREDITO COMERCIO",
		},
		"METRO": {
			"BANCO METROPOLITANO",
			"METROPOLITANO",
			"BANMET",
		},
		"BOLSA": {
			"MONEDERO",
			"BOLSA TRANSFERMOVIL",
			"WALLET",
		},
	}
	for code, spellings := range table {
		for _, s := range spellings {
			synonyms[compact(s)] = code
		}
	}
}

// stripMarks builds a fresh chain per call; transform chains carry state and
// must not be shared between goroutines.
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// Normalize returns the canonical code for s, or "" when s carries no
// letters or digits.
func Normalize(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	plain, _, err := transform.String(stripMarks(), s)
	if err != nil {
		plain = s
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(plain) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	key := compact(strings.Join(strings.Fields(b.String()), " "))
	if code, ok := synonyms[key]; ok {
		return code
	}
	return key
}

// Fold lower-cases s and strips diacritics for free-text marker matching.
func Fold(s string) string {
	plain, _, err := transform.String(stripMarks(), s)
	if err != nil {
		plain = s
	}
	return strings.ToLower(plain)
}

// compact drops the spaces left after collapsing, so "Banco Internacional"
// and "BancoInternacional" share one key.
func compact(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

// Set is a membership set of canonical bank codes.
type Set map[string]struct{}

// NewSet normalizes every raw code; empty results are skipped.
func NewSet(raw ...string) Set {
	set := make(Set, len(raw))
	for _, r := range raw {
		if code := Normalize(r); code != "" {
			set[code] = struct{}{}
		}
	}
	return set
}

// Has reports whether the canonical code is in the set.
func (s Set) Has(code string) bool {
	_, ok := s[code]
	return ok
}
