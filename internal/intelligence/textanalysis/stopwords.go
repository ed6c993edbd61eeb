package textanalysis

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"

	"github.com/turtacn/KeyConcept/pkg/errors"
)

// StopWords is a set of lower-cased words removed from the token stream.
type StopWords struct {
	words analysis.TokenMap
}

// DefaultStopWords returns the German snowball stop word list bundled with
// bleve.
func DefaultStopWords() StopWords {
	tm := analysis.NewTokenMap()
	// LoadBytes only fails on reader errors, which a byte slice cannot produce.
	_ = tm.LoadBytes(de.GermanStopWords)
	return StopWords{words: tm}
}

// LoadStopWordsFile reads a stop word list in snowball format: one or more
// words per line, "|" and "#" start a comment.
func LoadStopWordsFile(path string) (StopWords, error) {
	tm := analysis.NewTokenMap()
	if err := tm.LoadFile(path); err != nil {
		return StopWords{}, errors.Wrap(err, errors.ErrCodeStopWordsInvalid, "load stop words").WithDetail("path=" + path)
	}
	return StopWords{words: tm}, nil
}

// NewStopWords builds a set from words.
func NewStopWords(words ...string) StopWords {
	tm := analysis.NewTokenMap()
	for _, w := range words {
		tm.AddToken(w)
	}
	return StopWords{words: tm}
}

// Contains reports whether word is a stop word.
func (s StopWords) Contains(word string) bool {
	return s.words[word]
}

// Len returns the number of stop words.
func (s StopWords) Len() int { return len(s.words) }
