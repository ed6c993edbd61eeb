// Package termstats describes term statistics reports: frequency figures for
// the words of a document corpus that the concept index does not know.
package termstats

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Variant is one surface spelling of a term with its occurrence count.
type Variant struct {
	Spelling string `json:"spelling"`
	Count    int    `json:"count"`
}

// Term holds the figures of one stemmed term.
type Term struct {
	Term string `json:"term"`

	// TF counts occurrences over the whole corpus, DF the documents
	// containing the term at least once.
	TF int `json:"tf"`
	DF int `json:"df"`

	TFIDF float64 `json:"tfidf"`

	// AverageTF is TF/DF.
	AverageTF float64 `json:"average_tf"`

	// Variants are ordered by descending count.
	Variants []Variant `json:"variants"`
}

// Spellings returns the variant spellings in rank order.
func (t Term) Spellings() []string {
	out := make([]string, len(t.Variants))
	for i, v := range t.Variants {
		out[i] = v.Spelling
	}
	return out
}

// Ranking selects the figure a term list is ordered by.
type Ranking string

const (
	RankTFIDF     Ranking = "tfidf"
	RankTF        Ranking = "tf"
	RankDF        Ranking = "df"
	RankAverageTF Ranking = "avg-tf"
)

// Rankings lists every supported ranking.
var Rankings = []Ranking{RankTFIDF, RankTF, RankDF, RankAverageTF}

// Value returns the figure of t that r ranks by.
func (r Ranking) Value(t Term) float64 {
	switch r {
	case RankTF:
		return float64(t.TF)
	case RankDF:
		return float64(t.DF)
	case RankAverageTF:
		return t.AverageTF
	default:
		return t.TFIDF
	}
}

// Valid reports whether r is a known ranking.
func (r Ranking) Valid() bool {
	for _, k := range Rankings {
		if r == k {
			return true
		}
	}
	return false
}

// Report is the result of one term statistics run.  Terms are kept ordered by
// descending tf-idf; ties are broken by the term itself.
type Report struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Documents int       `json:"documents"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`

	terms []Term
}

// NewReport returns a report over terms, sorted by tf-idf.
func NewReport(name string, documents, tokens int, terms []Term) *Report {
	r := &Report{
		ID:        uuid.New(),
		Name:      name,
		Documents: documents,
		Tokens:    tokens,
		CreatedAt: time.Now().UTC(),
		terms:     append([]Term(nil), terms...),
	}
	SortTerms(r.terms, RankTFIDF)
	return r
}

// Len returns the number of distinct terms.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.terms)
}

// Terms returns at most size terms starting at from, in tf-idf order.  The
// range is clamped to the list: an out-of-range from yields an empty page.
// The returned slice is a copy.
func (r *Report) Terms(from, size int) []Term {
	n := r.Len()
	if size < 0 {
		size = 0
	}
	to := from + size
	if to > n || to < from {
		to = n
	}
	if from > to || from < 0 {
		from = to
	}
	out := make([]Term, to-from)
	copy(out, r.terms[from:to])
	return out
}

// Ranked returns all terms ordered by rank.
func (r *Report) Ranked(rank Ranking) []Term {
	out := r.Terms(0, r.Len())
	SortTerms(out, rank)
	return out
}

// Lookup returns the entry of term.
func (r *Report) Lookup(term string) (Term, bool) {
	if r == nil {
		return Term{}, false
	}
	for _, t := range r.terms {
		if t.Term == term {
			return t, true
		}
	}
	return Term{}, false
}

// SortTerms orders terms by descending rank value, then by term.
func SortTerms(terms []Term, rank Ranking) {
	sort.SliceStable(terms, func(i, j int) bool {
		vi, vj := rank.Value(terms[i]), rank.Value(terms[j])
		if vi != vj {
			return vi > vj
		}
		return terms[i].Term < terms[j].Term
	})
}

// Summary is the list view of a stored report.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Documents int       `json:"documents"`
	Tokens    int       `json:"tokens"`
	Terms     int       `json:"terms"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists reports.
type Repository interface {
	Save(ctx context.Context, r *Report) error
	Get(ctx context.Context, id uuid.UUID) (*Report, error)
	Latest(ctx context.Context, name string) (*Report, error)
	List(ctx context.Context, limit, offset int) ([]Summary, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Restore rebuilds a stored report without re-sorting or assigning a new id.
func Restore(s Summary, terms []Term) *Report {
	r := &Report{
		ID:        s.ID,
		Name:      s.Name,
		Documents: s.Documents,
		Tokens:    s.Tokens,
		CreatedAt: s.CreatedAt,
		terms:     terms,
	}
	return r
}
