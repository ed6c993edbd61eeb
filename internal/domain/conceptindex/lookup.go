package conceptindex

import (
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
)

// Lookup is a caller-scoped, read-only view of one index snapshot.  Exact
// matches are filtered with ExclusionPolicy.Visible for the caller's
// privilege.
type Lookup struct {
	snap       *snapshot
	policy     ontology.ExclusionPolicy
	privileged bool
}

// Lookup pins the current snapshot and policy for one analysis.
func (x *Index) Lookup(privileged bool) *Lookup {
	return &Lookup{
		snap:       x.snap.Load(),
		policy:     x.Policy(),
		privileged: privileged,
	}
}

// Privileged reports the caller privilege the view was created with.
func (l *Lookup) Privileged() bool { return l.privileged }

func (l *Lookup) IsPrefix(tokens []string) bool { return l.snap.isPrefix(tokens) }

func (l *Lookup) HasExactMatch(tokens []string) bool { return len(l.ExactMatches(tokens)) > 0 }

// ExactMatches returns the visible concepts labelled by tokens.
func (l *Lookup) ExactMatches(tokens []string) []ontology.ConceptID {
	ids := l.snap.exact(tokens)
	out := ids[:0]
	for _, id := range ids {
		c, ok := l.snap.model.Get(id)
		if ok && l.policy.Visible(c, l.privileged) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
