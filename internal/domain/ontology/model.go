package ontology

import (
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Model is an immutable, validated set of concepts.  Children are derived
// from parents and synonym links are made symmetric.  All relation lists keep
// declaration order.
type Model struct {
	concepts map[ConceptID]*Concept
	order    []ConceptID
	children map[ConceptID][]ConceptID
	synonyms map[ConceptID][]ConceptID
}

// NewModel validates concepts and builds a Model.  Concept IDs must be unique
// and non-empty, the kind must be known, and every relation must point at a
// concept of the model.
func NewModel(concepts []*Concept) (*Model, error) {
	m := &Model{
		concepts: make(map[ConceptID]*Concept, len(concepts)),
		order:    make([]ConceptID, 0, len(concepts)),
		children: make(map[ConceptID][]ConceptID),
		synonyms: make(map[ConceptID][]ConceptID),
	}

	for _, c := range concepts {
		if c == nil {
			continue
		}
		if c.ID == "" {
			return nil, errors.New(errors.ErrCodeOntologyInvalid, "concept without id")
		}
		if _, dup := m.concepts[c.ID]; dup {
			return nil, errors.New(errors.ErrCodeOntologyInvalid, "duplicate concept").WithDetail("id=" + c.ID.String())
		}
		switch c.Kind {
		case KindClass, KindIndividual:
		case "":
			c.Kind = KindClass
		default:
			return nil, errors.New(errors.ErrCodeOntologyInvalid, "unknown concept kind").
				WithDetail("id=" + c.ID.String() + " kind=" + string(c.Kind))
		}
		if c.Namespace == "" && c.LocalName == "" {
			c.Namespace, c.LocalName = SplitURI(string(c.ID))
		}
		if isBlankNode(c.ID) {
			c.Anonymous = true
		}
		m.concepts[c.ID] = c
		m.order = append(m.order, c.ID)
	}

	for _, id := range m.order {
		c := m.concepts[id]
		if err := m.checkRefs(c, c.Parents, KindClass, "parent"); err != nil {
			return nil, err
		}
		if err := m.checkRefs(c, c.Synonyms, KindClass, "synonym"); err != nil {
			return nil, err
		}
		if err := m.checkRefs(c, c.Classes, KindClass, "class"); err != nil {
			return nil, err
		}
		if !c.IsClass() {
			continue
		}
		for _, p := range c.Parents {
			m.children[p] = appendUnique(m.children[p], id)
		}
		for _, s := range c.Synonyms {
			if s == id {
				continue
			}
			m.synonyms[id] = appendUnique(m.synonyms[id], s)
			m.synonyms[s] = appendUnique(m.synonyms[s], id)
		}
	}
	return m, nil
}

func (m *Model) checkRefs(c *Concept, refs []ConceptID, want Kind, relation string) error {
	for _, ref := range refs {
		target, ok := m.concepts[ref]
		if !ok {
			return errors.New(errors.ErrCodeOntologyInvalid, "dangling "+relation+" reference").
				WithDetail("id=" + c.ID.String() + " ref=" + ref.String())
		}
		if target.Kind != want {
			return errors.New(errors.ErrCodeOntologyInvalid, relation+" must be a "+string(want)).
				WithDetail("id=" + c.ID.String() + " ref=" + ref.String())
		}
	}
	return nil
}

func appendUnique(list []ConceptID, id ConceptID) []ConceptID {
	for _, x := range list {
		if x == id {
			return list
		}
	}
	return append(list, id)
}

// Len returns the number of concepts.  A nil Model is empty.
func (m *Model) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Get returns the concept with the given id.
func (m *Model) Get(id ConceptID) (*Concept, bool) {
	if m == nil {
		return nil, false
	}
	c, ok := m.concepts[id]
	return c, ok
}

// Concepts returns every concept in declaration order.
func (m *Model) Concepts() []*Concept {
	if m == nil {
		return nil
	}
	out := make([]*Concept, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.concepts[id])
	}
	return out
}

// Classes returns the classes in declaration order.
func (m *Model) Classes() []*Concept { return m.byKind(KindClass) }

// Individuals returns the individuals in declaration order.
func (m *Model) Individuals() []*Concept { return m.byKind(KindIndividual) }

func (m *Model) byKind(k Kind) []*Concept {
	var out []*Concept
	for _, c := range m.Concepts() {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// Parents returns the direct super classes of a class.
func (m *Model) Parents(id ConceptID) []ConceptID {
	c, ok := m.Get(id)
	if !ok || !c.IsClass() {
		return nil
	}
	return c.Parents
}

// Children returns the direct sub classes of a class.
func (m *Model) Children(id ConceptID) []ConceptID {
	if m == nil {
		return nil
	}
	return m.children[id]
}

// Synonyms returns the equivalent classes of a class, excluding itself.
func (m *Model) Synonyms(id ConceptID) []ConceptID {
	if m == nil {
		return nil
	}
	return m.synonyms[id]
}

// ClassesOf returns the direct classes of an individual.
func (m *Model) ClassesOf(id ConceptID) []ConceptID {
	c, ok := m.Get(id)
	if !ok || !c.IsIndividual() {
		return nil
	}
	return c.Classes
}

// AllClassesOf returns the classes of an individual together with all their
// ancestors, each once.
func (m *Model) AllClassesOf(id ConceptID) []ConceptID {
	seen := make(map[ConceptID]bool)
	var out []ConceptID
	queue := append([]ConceptID(nil), m.ClassesOf(id)...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		queue = append(queue, m.Parents(cur)...)
	}
	return out
}

// Labels returns the labels of a concept.
func (m *Model) Labels(id ConceptID) []string {
	c, ok := m.Get(id)
	if !ok {
		return nil
	}
	return c.Labels
}
