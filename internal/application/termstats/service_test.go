package termstats

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	domainTerms "github.com/turtacn/KeyConcept/internal/domain/termstats"
	"github.com/turtacn/KeyConcept/internal/intelligence/stemmer"
	"github.com/turtacn/KeyConcept/internal/intelligence/textanalysis"
	"github.com/turtacn/KeyConcept/internal/testutil"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

const ns = "http://ontologie.example.org/CSC/"

type memRepo struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*domainTerms.Report
}

func newMemRepo() *memRepo { return &memRepo{reports: make(map[uuid.UUID]*domainTerms.Report)} }

func (r *memRepo) Save(_ context.Context, rep *domainTerms.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[rep.ID] = rep
	return nil
}

func (r *memRepo) Get(_ context.Context, id uuid.UUID) (*domainTerms.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeReportNotFound, "report not found")
	}
	return rep, nil
}

func (r *memRepo) Latest(_ context.Context, name string) (*domainTerms.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domainTerms.Report
	for _, rep := range r.reports {
		if rep.Name == name && (latest == nil || rep.CreatedAt.After(latest.CreatedAt)) {
			latest = rep
		}
	}
	if latest == nil {
		return nil, errors.New(errors.ErrCodeReportNotFound, "report not found")
	}
	return latest, nil
}

func (r *memRepo) List(_ context.Context, limit, offset int) ([]domainTerms.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domainTerms.Summary{}
	for _, rep := range r.reports {
		out = append(out, domainTerms.Summary{ID: rep.ID, Name: rep.Name, Terms: rep.Len()})
	}
	return out, nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reports, id)
	return nil
}

func newService(t *testing.T, opts ...Option) Service {
	t.Helper()
	analyzer := textanalysis.NewAnalyzer(stemmer.None{}, textanalysis.WithStopWords(textanalysis.NewStopWords("der", "und", "mit")))
	model, err := ontology.NewModel([]*ontology.Concept{
		{ID: ontology.ConceptID(ns + "Kraut"), Labels: []string{"Kraut"}},
		{ID: ontology.ConceptID(ns + "Kerbel"), Parents: []ontology.ConceptID{ontology.ConceptID(ns + "Kraut")}, Labels: []string{"Kerbel"}},
	})
	require.NoError(t, err)
	index := conceptindex.New(analyzer, ontology.ExclusionPolicy{})
	_, err = index.Build(context.Background(), model)
	require.NoError(t, err)

	svc, err := NewService(analyzer, index, append([]Option{WithLogger(testutil.NewMockLogger())}, opts...)...)
	require.NoError(t, err)
	return svc
}

var garden = map[string]string{
	"a": "Der Garten mit Kerbel und Garten",
	"b": "garten Beet",
}

func TestNewService_Validation(t *testing.T) {
	t.Parallel()
	analyzer := textanalysis.NewAnalyzer(stemmer.None{})
	_, err := NewService(nil, conceptindex.New(analyzer, ontology.ExclusionPolicy{}))
	assert.True(t, errors.IsValidation(err))

	_, err = NewService(analyzer, nil)
	assert.True(t, errors.IsValidation(err))
}

func TestCompute_Figures(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	rep, err := svc.Compute(context.Background(), &ComputeRequest{Name: "garden", Documents: garden})
	require.NoError(t, err)
	assert.Equal(t, "garden", rep.Name)
	assert.Equal(t, 2, rep.Documents)
	assert.Equal(t, 4, rep.Tokens)
	require.Equal(t, 2, rep.Len())

	terms := rep.Terms(0, 10)
	assert.Equal(t, "beet", terms[0].Term)
	assert.Equal(t, "garten", terms[1].Term)

	beet := terms[0]
	assert.Equal(t, 1, beet.TF)
	assert.Equal(t, 1, beet.DF)
	assert.InDelta(t, 1.0/5*math.Log(2), beet.TFIDF, 1e-9)
	assert.InDelta(t, 1.0, beet.AverageTF, 1e-9)
	assert.Equal(t, []domainTerms.Variant{{Spelling: "Beet", Count: 1}}, beet.Variants)

	gartenTerm := terms[1]
	assert.Equal(t, 3, gartenTerm.TF)
	assert.Equal(t, 2, gartenTerm.DF)
	assert.InDelta(t, 0.0, gartenTerm.TFIDF, 1e-9)
	assert.InDelta(t, 1.5, gartenTerm.AverageTF, 1e-9)
	assert.Equal(t, []domainTerms.Variant{{Spelling: "Garten", Count: 2}, {Spelling: "garten", Count: 1}}, gartenTerm.Variants)

	_, ok := rep.Lookup("kerbel")
	assert.False(t, ok, "concept tokens are not counted")
}

func TestCompute_PrivilegedCountsHiddenConcepts(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	rep, err := svc.Compute(context.Background(), &ComputeRequest{Name: "garden", Documents: garden, Privileged: true})
	require.NoError(t, err)
	kerbel, ok := rep.Lookup("kerbel")
	require.True(t, ok)
	assert.Equal(t, 1, kerbel.TF)
	assert.Equal(t, 5, rep.Tokens)
}

func TestCompute_Exclusions(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	rep, err := svc.Compute(context.Background(), &ComputeRequest{
		Name:       "markup",
		Documents:  map[string]string{"a": "<b>Beet</b>"},
		Exclusions: []string{`</?b>`},
	})
	require.NoError(t, err)
	require.Equal(t, 1, rep.Len())
	beet, ok := rep.Lookup("beet")
	require.True(t, ok)
	assert.Equal(t, "Beet", beet.Variants[0].Spelling)

	_, err = svc.Compute(context.Background(), &ComputeRequest{Name: "bad", Documents: garden, Exclusions: []string{"("}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeExclusionPatternInvalid))
}

func TestCompute_EmptyCorpus(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	rep, err := svc.Compute(context.Background(), &ComputeRequest{Name: "empty"})
	require.NoError(t, err)
	assert.Zero(t, rep.Len())
	assert.Zero(t, rep.Documents)
	assert.Empty(t, rep.Terms(0, 10))
}

func TestCompute_Errors(t *testing.T) {
	t.Parallel()
	svc := newService(t)

	tests := []struct {
		name string
		req  *ComputeRequest
		code errors.ErrorCode
	}{
		{"nil request", nil, errors.ErrCodeBadRequest},
		{"blank name", &ComputeRequest{Name: "  ", Documents: garden}, errors.ErrCodeBadRequest},
		{"save without store", &ComputeRequest{Name: "garden", Documents: garden, Save: true}, errors.ErrCodeServiceUnavailable},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Compute(context.Background(), tt.req)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestCompute_Cancelled(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Compute(ctx, &ComputeRequest{Name: "garden", Documents: garden})
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout), "got %v", err)
}

func TestRepositoryOperations(t *testing.T) {
	t.Parallel()
	repo := newMemRepo()
	svc := newService(t, WithRepository(repo), WithConcurrency(2))
	ctx := context.Background()

	rep, err := svc.Compute(ctx, &ComputeRequest{Name: "garden", Documents: garden, Save: true})
	require.NoError(t, err)

	got, err := svc.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.ID, got.ID)

	latest, err := svc.Latest(ctx, "garden")
	require.NoError(t, err)
	assert.Equal(t, rep.ID, latest.ID)

	list, err := svc.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Terms)

	require.NoError(t, svc.Delete(ctx, rep.ID))
	_, err = svc.Get(ctx, rep.ID)
	assert.True(t, errors.IsNotFound(err))

	_, err = svc.Latest(ctx, "")
	assert.True(t, errors.IsValidation(err))
	_, err = svc.List(ctx, -1, 0)
	assert.True(t, errors.IsValidation(err))
}

func TestRepositoryOperations_NoStore(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, uuid.New())
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
	_, err = svc.Latest(ctx, "garden")
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
	_, err = svc.List(ctx, 10, 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
	assert.True(t, errors.IsCode(svc.Delete(ctx, uuid.New()), errors.ErrCodeServiceUnavailable))
}

func TestReadCorpusDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Kraeuter.Kerbel"), []byte("Kerbel im Garten"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Kraeuter.Dill"), []byte("Dill"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	docs, err := ReadCorpusDir(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Kraeuter.Kerbel": "Kerbel im Garten",
		"Kraeuter.Dill":   "Dill",
	}, docs)

	_, err = ReadCorpusDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "binary"), []byte{0xff, 0xfe}, 0o644))
	_, err = ReadCorpusDir(dir)
	assert.True(t, errors.IsValidation(err))
}

func TestWriteRankFiles(t *testing.T) {
	t.Parallel()
	svc := newService(t)
	rep, err := svc.Compute(context.Background(), &ComputeRequest{Name: "garden", Documents: garden})
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteRankFiles(dir, rep)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"tfidf-garden.txt", "simple-tf-garden.txt", "simple-df-garden.txt", "avg-tf-garden.txt"}, names)

	tf, err := os.ReadFile(filepath.Join(dir, "simple-tf-garden.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(tf)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "garten | Garten | garten\t\t3.000000", lines[0])
	assert.Equal(t, "beet | Beet\t\t1.000000", lines[1])

	_, err = WriteRankFiles(dir, nil)
	assert.True(t, errors.IsValidation(err))
}
