package ontology

import (
	"context"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Source loads a Model from some backing store.
type Source interface {
	Load(ctx context.Context) (*Model, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Model, error)

func (f SourceFunc) Load(ctx context.Context) (*Model, error) { return f(ctx) }

// Document is the YAML form of an ontology.
//
//	prefixes:
//	  csw: http://ontologie.datenlabor-berlin.de/CSC/
//	concepts:
//	  - id: csw:Kraut
//	    labels: [Kraut, Kräuter]
//	  - id: csw:Kerbel
//	    parents: [csw:Kraut]
//	    labels: [Kerbel]
//	  - id: csw:MeinKerbel
//	    kind: individual
//	    classes: [csw:Kerbel]
//
// IDs and references of the form "prefix:local" are expanded with the
// prefix table.  Kind defaults to class.
type Document struct {
	Prefixes map[string]string `yaml:"prefixes"`
	Concepts []*Concept        `yaml:"concepts"`
}

// Decode parses a YAML document and builds its Model.
func Decode(r io.Reader) (*Model, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return NewModel(nil)
		}
		return nil, errors.Wrap(err, errors.ErrCodeOntologyInvalid, "decode ontology document")
	}
	return doc.Model()
}

// Model expands prefixed names and builds the Model.
func (d *Document) Model() (*Model, error) {
	expand := func(id ConceptID) ConceptID {
		prefix, local, ok := strings.Cut(string(id), ":")
		if !ok {
			return id
		}
		if ns, known := d.Prefixes[prefix]; known {
			return ConceptID(ns + local)
		}
		return id
	}
	expandAll := func(ids []ConceptID) []ConceptID {
		for i := range ids {
			ids[i] = expand(ids[i])
		}
		return ids
	}
	for _, c := range d.Concepts {
		if c == nil {
			continue
		}
		c.ID = expand(c.ID)
		c.Parents = expandAll(c.Parents)
		c.Synonyms = expandAll(c.Synonyms)
		c.Classes = expandAll(c.Classes)
	}
	return NewModel(d.Concepts)
}

// FileSource reads a YAML ontology document from Path.
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Load(ctx context.Context) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOntologyUnreadable, "open ontology file").WithDetail("path=" + s.Path)
	}
	defer f.Close()
	return Decode(f)
}
