package termstats

import (
	"bufio"
	"fmt"
	"io"
)

// WriteText writes one line per term: the term, its spellings separated by
// " | ", two tabs and the rank value.
//
//	kerbel | Kerbel | kerbel		0.012345
func WriteText(w io.Writer, terms []Term, rank Ranking) error {
	bw := bufio.NewWriter(w)
	for _, t := range terms {
		bw.WriteString(t.Term)
		for _, v := range t.Variants {
			bw.WriteString(" | ")
			bw.WriteString(v.Spelling)
		}
		fmt.Fprintf(bw, "\t\t%f\n", rank.Value(t))
	}
	return bw.Flush()
}
