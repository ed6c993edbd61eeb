// Package concept_matcher groups the tokens of a token stream into concept
// spans.  It extends a candidate phrase greedily while the concept index
// reports it as a prefix, confirms it on an exact match and otherwise gives
// back the tokens it looked ahead at.
package concept_matcher

import (
	"strings"

	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/intelligence/textanalysis"
)

// TokenSource is a resettable stream of analyzed tokens.
type TokenSource interface {
	Next() (textanalysis.Token, bool)
	Reset()
}

// Lookup answers the index queries of the matcher.  *conceptindex.Lookup and
// *conceptindex.Index implement it.
type Lookup interface {
	IsPrefix(tokens []string) bool
	HasExactMatch(tokens []string) bool
	ExactMatches(tokens []string) []ontology.ConceptID
}

type errorer interface {
	Err() error
}

// Match is one output span, in offsets of the analyzed text.  Concept spans
// carry their concepts and may cover several tokens; plain tokens carry none.
type Match struct {
	// Text is the stemmed form; for concept spans the index key.
	Text     string
	Start    int
	End      int
	Tokens   int
	Concepts []ontology.ConceptID
}

// IsConcept reports whether m is a concept span.
func (m Match) IsConcept() bool { return len(m.Concepts) > 0 }

// Matcher is single-use per document and not safe for concurrent use.
//
// Known limitation: with concepts "A" and "A B" the input "A, B" matches
// neither, because the failed lookahead is not retried as a single-token
// match.
type Matcher struct {
	stream    TokenSource
	lookup    Lookup
	logger    logging.Logger
	queue     []textanalysis.Token
	exhausted bool
}

// New returns a Matcher over stream.  stream and lookup must not be nil.
func New(stream TokenSource, lookup Lookup, logger logging.Logger) *Matcher {
	if stream == nil || lookup == nil {
		panic("concept_matcher: nil stream or lookup")
	}
	return &Matcher{
		stream: stream,
		lookup: lookup,
		logger: logging.OrNop(logger),
	}
}

func (m *Matcher) pull() (textanalysis.Token, bool) {
	if len(m.queue) > 0 {
		tok := m.queue[0]
		m.queue = m.queue[1:]
		return tok, true
	}
	if m.exhausted {
		return textanalysis.Token{}, false
	}
	tok, ok := m.stream.Next()
	if !ok {
		m.exhausted = true
		if e, isErrorer := m.stream.(errorer); isErrorer && e.Err() != nil {
			m.logger.Warn("token stream failed, matching stopped", logging.Err(e.Err()))
		}
		return textanalysis.Token{}, false
	}
	return tok, true
}

// Next returns the next span, or false at the end of the stream.
func (m *Matcher) Next() (Match, bool) {
	first, ok := m.pull()
	if !ok {
		return Match{}, false
	}

	terms := []string{first.Text}
	var lookahead []textanalysis.Token
	interrupt := false
	for !interrupt && m.lookup.IsPrefix(terms) {
		next, ok := m.pull()
		if !ok {
			break
		}
		lookahead = append(lookahead, next)
		terms = append(terms, next.Text)
		interrupt = next.AfterPunctuation
	}

	if !interrupt && m.lookup.HasExactMatch(terms) {
		end := first.End
		if n := len(lookahead); n > 0 {
			end = lookahead[n-1].End
		}
		return Match{
			Text:     strings.Join(terms, conceptindex.Separator),
			Start:    first.Start,
			End:      end,
			Tokens:   len(terms),
			Concepts: m.lookup.ExactMatches(terms),
		}, true
	}

	if len(lookahead) > 0 {
		m.queue = append(lookahead, m.queue...)
	}
	return Match{Text: first.Text, Start: first.Start, End: first.End, Tokens: 1}, true
}

// All drains the matcher.
func (m *Matcher) All() []Match {
	var out []Match
	for {
		match, ok := m.Next()
		if !ok {
			return out
		}
		out = append(out, match)
	}
}

// Reset drops queued lookahead, clears the exhausted state and resets the
// underlying stream.  It is idempotent.
func (m *Matcher) Reset() {
	m.queue = nil
	m.exhausted = false
	m.stream.Reset()
}
