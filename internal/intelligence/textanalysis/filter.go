package textanalysis

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Token is a normalized token with half-open byte offsets into the scanned
// text.
type Token struct {
	Text  string
	Start int
	End   int

	// AfterPunctuation is set when punctuation was seen between the previous
	// accepted token and this one.
	AfterPunctuation bool

	// Keyword marks abbreviation-like tokens whose interior punctuation was
	// removed ("z.b." → "zb").  Keywords are never stemmed.
	Keyword bool
}

// Filter lowercases raw tokens, strips surrounding punctuation and dashes,
// removes interior punctuation and drops stop words.  It carries the
// after-punctuation state from one token to the next, so one Filter serves
// exactly one token stream.
type Filter struct {
	stopWords StopWords
	lower     cases.Caser
	pending   bool
}

// NewFilter returns a Filter dropping the given stop words.
func NewFilter(stopWords StopWords) *Filter {
	return &Filter{
		stopWords: stopWords,
		lower:     cases.Lower(language.German),
	}
}

// Reset clears the after-punctuation state.
func (f *Filter) Reset() {
	f.pending = false
}

// Apply normalizes raw.  It returns false when the token is rejected.
func (f *Filter) Apply(raw RawToken) (Token, bool) {
	text := raw.Text

	first, last := -1, -1 // byte offsets of the first and last alnum rune
	lastSize := 0
	for i, r := range text {
		if IsAlnum(r) {
			if first < 0 {
				first = i
			}
			last = i
			lastSize = utf8.RuneLen(r)
		}
	}
	if first < 0 {
		if strings.IndexFunc(text, IsPunctuation) >= 0 {
			f.pending = true
		}
		return Token{}, false
	}
	coreEnd := last + lastSize

	if strings.IndexFunc(text[:first], IsPunctuation) >= 0 {
		f.pending = true
	}
	trailingPunct := strings.IndexFunc(text[coreEnd:], IsPunctuation) >= 0

	core := text[first:coreEnd]
	keyword := false
	if strings.IndexFunc(core, IsPunctuation) >= 0 {
		core = strings.Map(func(r rune) rune {
			if IsPunctuation(r) {
				return -1
			}
			return r
		}, core)
		keyword = true
	}
	word := f.lower.String(norm.NFC.String(core))

	if f.stopWords.Contains(word) {
		if trailingPunct {
			f.pending = true
		}
		return Token{}, false
	}

	tok := Token{
		Text:             word,
		Start:            raw.Start + first,
		End:              raw.Start + coreEnd,
		AfterPunctuation: f.pending,
		Keyword:          keyword,
	}
	f.pending = trailingPunct
	return tok, true
}
