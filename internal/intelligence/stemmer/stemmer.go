// Package stemmer reduces German words to index keys.
//
// Two modes are offered: "light" runs German umlaut normalization followed by
// the light stemmer from bleve's analysis/lang/de; "full" runs the snowball
// German stemmer.  Both expect lower-cased input.
package stemmer

import (
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/kljensen/snowball"

	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Mode selects a stemming algorithm.
type Mode string

const (
	ModeLight Mode = "light"
	ModeFull  Mode = "full"
	// ModeNone leaves words unchanged.
	ModeNone Mode = "none"
)

// WordSeparator joins the parts of a multi-word label.
const WordSeparator = " "

// Stemmer maps a single word to its stem.  Implementations are safe for
// concurrent use.
type Stemmer interface {
	Stem(word string) string
}

// New returns the Stemmer for mode.  An empty mode means light.
func New(mode Mode) (Stemmer, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case ModeLight, "":
		return NewLight(), nil
	case ModeFull:
		return Full{}, nil
	case ModeNone:
		return None{}, nil
	default:
		return nil, errors.New(errors.ErrCodeStemmerUnsupported, "unsupported stemmer mode").
			WithDetail("mode=" + string(mode))
	}
}

// Light applies bleve's German normalize and light stem filters.
type Light struct {
	normalize *de.GermanNormalizeFilter
	stem      *de.GermanLightStemmerFilter
}

// NewLight returns a ready Light stemmer.
func NewLight() *Light {
	return &Light{
		normalize: de.NewGermanNormalizeFilter(),
		stem:      de.NewGermanLightStemmerFilter(),
	}
}

func (l *Light) Stem(word string) string {
	if word == "" {
		return word
	}
	ts := analysis.TokenStream{&analysis.Token{Term: []byte(word)}}
	ts = l.normalize.Filter(ts)
	ts = l.stem.Filter(ts)
	if len(ts) == 0 {
		return word
	}
	return string(ts[0].Term)
}

// Full is the snowball German stemmer.
type Full struct{}

func (Full) Stem(word string) string {
	if word == "" {
		return word
	}
	stemmed, err := snowball.Stem(word, "german", true)
	if err != nil {
		return word
	}
	return stemmed
}

// None returns every word unchanged.
type None struct{}

func (None) Stem(word string) string { return word }

// MultiWord stems each whitespace separated part of a phrase with Inner and
// joins the results with WordSeparator.
type MultiWord struct {
	Inner Stemmer
}

func (m MultiWord) Stem(phrase string) string {
	parts := strings.Fields(phrase)
	for i, p := range parts {
		parts[i] = m.Inner.Stem(p)
	}
	return strings.Join(parts, WordSeparator)
}
