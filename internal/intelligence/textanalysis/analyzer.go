// Package textanalysis turns German text into a stream of normalized,
// stemmed tokens carrying byte offsets into the analyzed text.
//
// The pipeline is Tokenizer → Filter → Stemmer.  An Analyzer holds the
// configuration and is safe for concurrent use; every call to Analyze
// returns a fresh single-use TokenStream.
package textanalysis

import (
	"io"
	"unicode"

	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/internal/intelligence/stemmer"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Analyzer creates token streams sharing one stemmer and stop word list.
type Analyzer struct {
	stemmer   stemmer.Stemmer
	stopWords StopWords
	logger    logging.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStopWords replaces the default German stop words.
func WithStopWords(sw StopWords) Option {
	return func(a *Analyzer) { a.stopWords = sw }
}

// WithLogger sets the logger used to report read failures.
func WithLogger(l logging.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// NewAnalyzer returns an Analyzer stemming with st.  st must not be nil.
func NewAnalyzer(st stemmer.Stemmer, opts ...Option) *Analyzer {
	if st == nil {
		panic("textanalysis: nil stemmer")
	}
	a := &Analyzer{stemmer: st}
	for _, opt := range opts {
		opt(a)
	}
	if a.stopWords.words == nil {
		a.stopWords = DefaultStopWords()
	}
	a.logger = logging.OrNop(a.logger)
	return a
}

// Stemmer returns the stemmer tokens are reduced with.
func (a *Analyzer) Stemmer() stemmer.Stemmer { return a.stemmer }

// Analyze returns a token stream over text.
func (a *Analyzer) Analyze(text string) *TokenStream {
	return &TokenStream{
		text:      text,
		tokenizer: NewTokenizer(text),
		filter:    NewFilter(a.stopWords),
		stemmer:   a.stemmer,
	}
}

// AnalyzeReader reads r to the end and analyzes its content.  A read failure
// yields a stream that is exhausted from the start and reports the failure
// through Err.
func (a *Analyzer) AnalyzeReader(r io.Reader) *TokenStream {
	data, err := io.ReadAll(r)
	if err != nil {
		a.logger.Warn("token stream read failed", logging.Err(err))
		s := a.Analyze("")
		s.err = errors.Wrap(err, errors.ErrCodeAnalysisFailed, "read text")
		return s
	}
	return a.Analyze(string(data))
}

// Tokens analyzes text and collects every token.
func (a *Analyzer) Tokens(text string) []Token {
	var out []Token
	s := a.Analyze(text)
	for {
		tok, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, tok)
	}
}

// TokenizeLabel analyzes an ontology label and returns its stemmed terms.
// It returns false when the label produces no terms.
func (a *Analyzer) TokenizeLabel(label string) ([]string, bool) {
	toks := a.Tokens(label)
	if len(toks) == 0 {
		return nil, false
	}
	terms := make([]string, len(toks))
	for i, t := range toks {
		terms[i] = t.Text
	}
	return terms, true
}

// TokenStream yields the tokens of one text.  It is not safe for concurrent
// use.
type TokenStream struct {
	text      string
	tokenizer *Tokenizer
	filter    *Filter
	stemmer   stemmer.Stemmer
	err       error
}

// Next returns the next token, or false once the text is exhausted.
func (s *TokenStream) Next() (Token, bool) {
	if s.err != nil {
		return Token{}, false
	}
	for {
		raw, ok := s.tokenizer.Next()
		if !ok {
			return Token{}, false
		}
		tok, ok := s.filter.Apply(raw)
		if !ok {
			continue
		}
		if !tok.Keyword && lettersOnly(tok.Text) {
			tok.Text = s.stemmer.Stem(tok.Text)
		}
		return tok, true
	}
}

// Reset rewinds the stream to the start of its text and clears the
// after-punctuation state.  A stream that failed stays exhausted.
func (s *TokenStream) Reset() {
	s.tokenizer.Reset(s.text)
	s.filter.Reset()
}

// Err returns the read failure that exhausted the stream, if any.
func (s *TokenStream) Err() error { return s.err }

// Text returns the analyzed text.
func (s *TokenStream) Text() string { return s.text }

func lettersOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
