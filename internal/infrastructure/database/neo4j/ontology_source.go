package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// Graph layout:
//
//	(:Concept {uri, kind, anonymous, labels, property_keys, property_values})
//	(:Concept)-[:SUBCLASS_OF]->(:Concept)
//	(:Concept)-[:SYNONYM_OF]->(:Concept)
//	(:Concept)-[:INSTANCE_OF]->(:Concept)
//
// Property maps are stored as two parallel lists since Neo4j has no map
// property type.
const (
	loadConceptsCypher = `
MATCH (c:Concept)
OPTIONAL MATCH (c)-[:SUBCLASS_OF]->(p:Concept)
OPTIONAL MATCH (c)-[:SYNONYM_OF]-(s:Concept)
OPTIONAL MATCH (c)-[:INSTANCE_OF]->(k:Concept)
RETURN c.uri AS uri,
       coalesce(c.kind, 'class') AS kind,
       coalesce(c.anonymous, false) AS anonymous,
       coalesce(c.labels, []) AS labels,
       coalesce(c.property_keys, []) AS property_keys,
       coalesce(c.property_values, []) AS property_values,
       collect(DISTINCT p.uri) AS parents,
       collect(DISTINCT s.uri) AS synonyms,
       collect(DISTINCT k.uri) AS classes
ORDER BY uri`

	mergeConceptCypher = `
UNWIND $concepts AS row
MERGE (c:Concept {uri: row.uri})
SET c.kind = row.kind,
    c.anonymous = row.anonymous,
    c.labels = row.labels,
    c.property_keys = row.property_keys,
    c.property_values = row.property_values`

	mergeRelationCypher = `
UNWIND $edges AS e
MATCH (a:Concept {uri: e.from}), (b:Concept {uri: e.to})
CALL {
  WITH a, b, e
  WITH a, b, e WHERE e.type = 'SUBCLASS_OF'
  MERGE (a)-[:SUBCLASS_OF]->(b)
  UNION
  WITH a, b, e
  WITH a, b, e WHERE e.type = 'SYNONYM_OF'
  MERGE (a)-[:SYNONYM_OF]->(b)
  UNION
  WITH a, b, e
  WITH a, b, e WHERE e.type = 'INSTANCE_OF'
  MERGE (a)-[:INSTANCE_OF]->(b)
}`
)

// Executor is the part of Driver used by OntologySource.
type Executor interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
}

// OntologySource loads the concept model from the graph.  It implements
// ontology.Source.
type OntologySource struct {
	exec   Executor
	logger logging.Logger
}

func NewOntologySource(exec Executor, logger logging.Logger) *OntologySource {
	return &OntologySource{exec: exec, logger: logging.OrNop(logger).Named("neo4j")}
}

var _ ontology.Source = (*OntologySource)(nil)

func (s *OntologySource) Load(ctx context.Context) (*ontology.Model, error) {
	out, err := s.exec.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, loadConceptsCypher, nil)
		if err != nil {
			return nil, err
		}
		return CollectRecords(ctx, res, recordToConcept)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOntologyUnreadable, "load ontology from neo4j")
	}
	concepts, _ := out.([]*ontology.Concept)
	s.logger.Debug("ontology loaded from graph", logging.Int("concepts", len(concepts)))
	return ontology.NewModel(concepts)
}

// Store writes model into the graph.  Existing nodes are updated in place;
// nodes and edges absent from model are left untouched.
func (s *OntologySource) Store(ctx context.Context, model *ontology.Model) (int, error) {
	concepts := model.Concepts()
	rows := make([]map[string]any, 0, len(concepts))
	var edges []map[string]any
	edge := func(typ string, from, to ontology.ConceptID) {
		edges = append(edges, map[string]any{"type": typ, "from": string(from), "to": string(to)})
	}
	for _, c := range concepts {
		keys := make([]string, 0, len(c.Properties))
		vals := make([]string, 0, len(c.Properties))
		for k, v := range c.Properties {
			keys = append(keys, k)
			vals = append(vals, v)
		}
		rows = append(rows, map[string]any{
			"uri":             string(c.ID),
			"kind":            string(c.Kind),
			"anonymous":       c.Anonymous,
			"labels":          c.Labels,
			"property_keys":   keys,
			"property_values": vals,
		})
		for _, p := range c.Parents {
			edge("SUBCLASS_OF", c.ID, p)
		}
		for _, syn := range model.Synonyms(c.ID) {
			if c.ID < syn {
				edge("SYNONYM_OF", c.ID, syn)
			}
		}
		for _, k := range c.Classes {
			edge("INSTANCE_OF", c.ID, k)
		}
	}

	_, err := s.exec.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
		if _, err := tx.Run(ctx, mergeConceptCypher, map[string]any{"concepts": rows}); err != nil {
			return nil, err
		}
		if len(edges) == 0 {
			return nil, nil
		}
		_, err := tx.Run(ctx, mergeRelationCypher, map[string]any{"edges": edges})
		return nil, err
	})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "store ontology in neo4j")
	}
	s.logger.Info("ontology stored in graph", logging.Int("concepts", len(rows)), logging.Int("relations", len(edges)))
	return len(rows), nil
}

func recordToConcept(rec *neo4j.Record) (*ontology.Concept, error) {
	uri, err := recordString(rec, "uri")
	if err != nil {
		return nil, err
	}
	kind, err := recordString(rec, "kind")
	if err != nil {
		return nil, err
	}
	anon, _ := get(rec, "anonymous").(bool)

	c := &ontology.Concept{
		ID:        ontology.ConceptID(uri),
		Kind:      ontology.Kind(kind),
		Anonymous: anon,
		Labels:    toStrings(get(rec, "labels")),
		Parents:   toIDs(get(rec, "parents")),
		Synonyms:  toIDs(get(rec, "synonyms")),
		Classes:   toIDs(get(rec, "classes")),
	}
	keys := toStrings(get(rec, "property_keys"))
	vals := toStrings(get(rec, "property_values"))
	if len(keys) != len(vals) {
		return nil, errors.New(errors.ErrCodeOntologyInvalid, "property lists differ in length").WithDetail(uri)
	}
	if len(keys) > 0 {
		c.Properties = make(map[string]string, len(keys))
		for i, k := range keys {
			c.Properties[k] = vals[i]
		}
	}
	return c, nil
}

func get(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

func recordString(rec *neo4j.Record, key string) (string, error) {
	s, ok := get(rec, key).(string)
	if !ok || s == "" {
		return "", errors.New(errors.ErrCodeOntologyInvalid, fmt.Sprintf("concept record lacks %s", key))
	}
	return s, nil
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toIDs(v any) []ontology.ConceptID {
	strs := toStrings(v)
	if len(strs) == 0 {
		return nil
	}
	out := make([]ontology.ConceptID, len(strs))
	for i, s := range strs {
		out[i] = ontology.ConceptID(s)
	}
	return out
}
