package conceptindex

import (
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
)

// SimilarMatches returns seed followed by the synonyms, children and parents
// of the seed concepts, each once and in discovery order, stopping as soon
// as limit concepts are collected.  A seed longer than limit is truncated
// without expansion.  Expansion skips excluded concepts.
func (x *Index) SimilarMatches(seed []ontology.ConceptID, limit int) []ontology.ConceptID {
	if limit <= 0 {
		return nil
	}
	if len(seed) > limit {
		return append([]ontology.ConceptID(nil), seed[:limit]...)
	}

	model := x.Model()
	policy := x.Policy()
	result := make([]ontology.ConceptID, 0, limit)
	seen := make(map[ontology.ConceptID]bool, limit)

	add := func(ids []ontology.ConceptID, filter bool) bool {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			if filter {
				c, ok := model.Get(id)
				if !ok || policy.Exclude(c) {
					continue
				}
			}
			seen[id] = true
			result = append(result, id)
			if len(result) >= limit {
				return false
			}
		}
		return true
	}

	if !add(seed, false) {
		return result
	}
	for _, related := range []func(ontology.ConceptID) []ontology.ConceptID{model.Synonyms, model.Children, model.Parents} {
		for _, id := range seed {
			if !add(related(id), true) {
				return result
			}
		}
	}
	return result
}

// SimilarMatchLabels returns the labels of SimilarMatches, each once.
func (x *Index) SimilarMatchLabels(seed []ontology.ConceptID, limit int) []string {
	model := x.Model()
	seen := make(map[string]bool)
	var labels []string
	for _, id := range x.SimilarMatches(seed, limit) {
		for _, l := range model.Labels(id) {
			if !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}
	return labels
}

// SimilarClasses returns the non-excluded classes of an individual followed
// by their synonyms.  It returns nil for classes and unknown ids.
func (x *Index) SimilarClasses(id ontology.ConceptID) []ontology.ConceptID {
	model := x.Model()
	policy := x.Policy()

	var classes []ontology.ConceptID
	for _, cid := range model.ClassesOf(id) {
		if c, ok := model.Get(cid); ok && !policy.Exclude(c) {
			classes = append(classes, cid)
		}
	}
	result := append([]ontology.ConceptID(nil), classes...)
	for _, cid := range classes {
		for _, s := range model.Synonyms(cid) {
			if c, ok := model.Get(s); ok && !policy.Exclude(c) {
				result = append(result, s)
			}
		}
	}
	return result
}
