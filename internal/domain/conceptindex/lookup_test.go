package conceptindex

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/KeyConcept/internal/domain/ontology"
)

func TestLookup_Visibility(t *testing.T) {
	t.Parallel()
	x := builtIndex(t)

	plain := x.Lookup(false)
	assert.False(t, plain.Privileged())
	assert.Equal(t, []ontology.ConceptID{id("Dill")}, plain.ExactMatches([]string{"dill"}))
	assert.True(t, plain.IsPrefix([]string{"echter"}))

	// Privileged callers see only excluded concepts; nothing indexed under
	// the current policy is excluded.
	priv := x.Lookup(true)
	assert.Nil(t, priv.ExactMatches([]string{"dill"}))
	assert.False(t, priv.HasExactMatch([]string{"dill"}))
	assert.True(t, priv.IsPrefix([]string{"echter"}))
}

func TestLookup_PolicySwapWithoutRebuild(t *testing.T) {
	t.Parallel()
	x := builtIndex(t)
	before := x.Lookup(false)

	x.SetPolicy(ontology.ExclusionPolicy{IncludeNamespaces: []string{"http://elsewhere.example.org/"}})

	assert.True(t, before.HasExactMatch([]string{"dill"}), "pinned lookup keeps its policy")
	assert.False(t, x.Lookup(false).HasExactMatch([]string{"dill"}))
	assert.True(t, x.Lookup(true).HasExactMatch([]string{"dill"}))
	assert.True(t, x.HasExactMatch([]string{"dill"}), "unscoped queries ignore the policy")
}
