package textanalysis

import "unicode/utf8"

// RawToken is an unfiltered run of text with half-open byte offsets.
type RawToken struct {
	Text  string
	Start int
	End   int
}

// Tokenizer splits text into whitespace delimited runs.  A run is split once
// more where a word is followed by punctuation containing a non-joining rune
// and another word follows, so "kerbel,ingwer" yields "kerbel" and ",ingwer"
// while "z.b." stays whole.  Dashes count as word runes.
type Tokenizer struct {
	text string
	pos  int
}

// NewTokenizer returns a Tokenizer positioned at the start of text.
func NewTokenizer(text string) *Tokenizer {
	return &Tokenizer{text: text}
}

// Reset restarts the tokenizer on text.
func (t *Tokenizer) Reset(text string) {
	t.text = text
	t.pos = 0
}

// Next returns the next raw token, or false at end of input.
func (t *Tokenizer) Next() (RawToken, bool) {
	text := t.text
	i := t.pos
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !IsWhitespace(r) {
			break
		}
		i += size
	}
	if i >= len(text) {
		t.pos = i
		return RawToken{}, false
	}

	start := i
	seenWord := false
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		class := Classify(r)
		if class == Whitespace {
			break
		}
		if class != Punctuation {
			seenWord = true
			i += size
			continue
		}
		if !seenWord {
			i += size
			continue
		}
		// punctuation after a word: look at the whole punctuation run
		runEnd, splitting := i, false
		for runEnd < len(text) {
			pr, psize := utf8.DecodeRuneInString(text[runEnd:])
			if Classify(pr) != Punctuation {
				break
			}
			if !isJoiner(pr) {
				splitting = true
			}
			runEnd += psize
		}
		if splitting && runEnd < len(text) {
			next, _ := utf8.DecodeRuneInString(text[runEnd:])
			if c := Classify(next); c != Whitespace && c != Punctuation {
				break
			}
		}
		i = runEnd
	}

	t.pos = i
	return RawToken{Text: text[start:i], Start: start, End: i}, true
}

// Tokenize returns every raw token of text.
func Tokenize(text string) []RawToken {
	var out []RawToken
	tk := NewTokenizer(text)
	for {
		tok, ok := tk.Next()
		if !ok {
			return out
		}
		out = append(out, tok)
	}
}
