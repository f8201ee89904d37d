package values

import (
	"regexp"
	"strings"
)

var (
	rangeDelimiter = regexp.MustCompile(`\s*(?:-|–|—|\bto\b)\s*`)
	numericToken   = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// minConcatenatedDigits is the shortest digit run treated as two numbers glued together
const minConcatenatedDigits = 8

// ParseSizeText reads a size field such as "2,920 - 5,840 sq ft" into a min/max pair.
//
// The feed sometimes delivers a range with the delimiter lost ("29205840sqft"). When no
// delimiter is present and a single bare digit run of at least eight digits remains, it is
// split in half. This recovers the known quirk only; it is not a general number parser.
func ParseSizeText(s string) (*float64, *float64) {
	s = strings.TrimSpace(DecodeUnicodeEscapes(s))
	if s == "" {
		return nil, nil
	}

	if loc := rangeDelimiter.FindStringIndex(s); loc != nil && hasDigit(s[:loc[0]]) && hasDigit(s[loc[1]:]) {
		lo := ParseNumber(firstToken(s[:loc[0]]))
		hi := ParseNumber(firstToken(s[loc[1]:]))
		return order(lo, hi)
	}

	tokens := numericToken.FindAllString(s, -1)
	switch len(tokens) {
	case 0:
		return nil, nil
	case 1:
		tok := tokens[0]
		if !strings.ContainsAny(tok, ",.") && len(tok) >= minConcatenatedDigits {
			half := len(tok) / 2
			return order(ParseNumber(tok[:half]), ParseNumber(tok[half:]))
		}
		n := ParseNumber(tok)
		return n, n
	default:
		return order(ParseNumber(tokens[0]), ParseNumber(tokens[1]))
	}
}

func firstToken(s string) string {
	return numericToken.FindString(s)
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

func order(a, b *float64) (*float64, *float64) {
	switch {
	case a == nil && b == nil:
		return nil, nil
	case a == nil:
		return b, b
	case b == nil:
		return a, a
	case *a > *b:
		return b, a
	default:
		return a, b
	}
}
