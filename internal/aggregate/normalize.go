package aggregate

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/gigledger/internal/ledger"
)

// Normalizer maps a display key to the form used for matching.
type Normalizer func(string) string

// NormalizeAddress matches addresses and places regardless of case,
// accents, punctuation and spacing: "123 Main St." and "123  main st"
// are the same key.
func NormalizeAddress(s string) string {
	// Casers and transformers are stateful, so each call builds its own.
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(stripMarks, s)
	if err != nil {
		return ""
	}
	s = cases.Fold().String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeName matches names, regions, services and types regardless of
// case and spacing. Punctuation is significant ("O'Neil" is not "ONeil").
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// Policy is the matching rule of one aggregate collection: how its own key
// is normalized and how its cross-references are.
type Policy struct {
	Key Normalizer
	Ref Normalizer
}

// PolicyFor returns the matching policy of c.
//
//	addresses  key: address  refs: names
//	names      key: name     refs: addresses
//	places     key: address  refs: addresses
//	regions, services, types  key: name, no refs
func PolicyFor(c ledger.Collection) (Policy, error) {
	switch c {
	case ledger.Addresses:
		return Policy{Key: NormalizeAddress, Ref: NormalizeName}, nil
	case ledger.Names:
		return Policy{Key: NormalizeName, Ref: NormalizeAddress}, nil
	case ledger.Places:
		return Policy{Key: NormalizeAddress, Ref: NormalizeAddress}, nil
	case ledger.Regions, ledger.Services, ledger.Types:
		return Policy{Key: NormalizeName, Ref: NormalizeName}, nil
	default:
		return Policy{}, fmt.Errorf("%q is not an aggregate collection", c)
	}
}
