package textanalysis

import "unicode"

// CharClass is the lexical category of a rune.
type CharClass int

const (
	Letter CharClass = iota
	Digit
	Whitespace
	// Dash covers the Unicode Pd category, hyphen-minus included.
	Dash
	// Punctuation is every rune that falls in none of the other classes.
	Punctuation
)

func (c CharClass) String() string {
	switch c {
	case Letter:
		return "letter"
	case Digit:
		return "digit"
	case Whitespace:
		return "whitespace"
	case Dash:
		return "dash"
	default:
		return "punctuation"
	}
}

// Classify returns the class of r.
func Classify(r rune) CharClass {
	switch {
	case unicode.IsLetter(r):
		return Letter
	case unicode.IsDigit(r):
		return Digit
	case unicode.IsSpace(r):
		return Whitespace
	case unicode.Is(unicode.Pd, r):
		return Dash
	default:
		return Punctuation
	}
}

// IsAlnum reports whether r is a letter or a digit.
func IsAlnum(r rune) bool {
	c := Classify(r)
	return c == Letter || c == Digit
}

func IsPunctuation(r rune) bool { return Classify(r) == Punctuation }

func IsDash(r rune) bool { return Classify(r) == Dash }

func IsWhitespace(r rune) bool { return Classify(r) == Whitespace }

// isJoiner reports whether r may sit between two word runs without splitting
// them, as in "z.b.", "d'arc", "km/h" or "b&b".
func isJoiner(r rune) bool {
	switch r {
	case '.', '\'', '/', '&', '’':
		return true
	}
	return false
}
