// Package ontology holds the concept model that the concept index is built
// from: classes and individuals with their labels, taxonomy, synonyms and
// annotation properties.
package ontology

import (
	"strconv"
	"strings"
)

// ConceptID identifies a concept.  It is the concept's URI.
type ConceptID string

func (id ConceptID) String() string { return string(id) }

// Kind distinguishes classes from individuals.
type Kind string

const (
	KindClass      Kind = "class"
	KindIndividual Kind = "individual"
)

// Concept is a class or an individual of the ontology.
type Concept struct {
	ID        ConceptID `json:"id" yaml:"id"`
	Namespace string    `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	LocalName string    `json:"local_name,omitempty" yaml:"local_name,omitempty"`
	Kind      Kind      `json:"kind" yaml:"kind"`

	// Anonymous marks blank nodes.  They are never indexed.
	Anonymous bool `json:"anonymous,omitempty" yaml:"anonymous,omitempty"`

	Labels     []string          `json:"labels,omitempty" yaml:"labels,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`

	// Parents and Synonyms apply to classes, Classes to individuals.
	Parents  []ConceptID `json:"parents,omitempty" yaml:"parents,omitempty"`
	Synonyms []ConceptID `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
	Classes  []ConceptID `json:"classes,omitempty" yaml:"classes,omitempty"`
}

// IsClass reports whether c is a class.
func (c *Concept) IsClass() bool { return c.Kind == KindClass }

// IsIndividual reports whether c is an individual.
func (c *Concept) IsIndividual() bool { return c.Kind == KindIndividual }

// HasTrueProperty reports whether property is set to a true boolean literal.
func (c *Concept) HasTrueProperty(property string) bool {
	v, ok := c.Properties[property]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// SplitURI splits a URI after its last '#' or '/' into namespace and local
// name.  A URI without either separator has an empty namespace.
func SplitURI(uri string) (namespace, local string) {
	i := strings.LastIndexAny(uri, "#/")
	if i < 0 {
		return "", uri
	}
	return uri[:i+1], uri[i+1:]
}

func isBlankNode(id ConceptID) bool {
	return strings.HasPrefix(string(id), "_:")
}
