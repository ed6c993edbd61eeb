package annotation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyConcept/internal/config"
	"github.com/turtacn/KeyConcept/internal/domain/conceptindex"
	"github.com/turtacn/KeyConcept/internal/domain/ontology"
	"github.com/turtacn/KeyConcept/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyConcept/internal/infrastructure/search/opensearch"
	"github.com/turtacn/KeyConcept/internal/intelligence/plaintext"
	"github.com/turtacn/KeyConcept/internal/intelligence/stemmer"
	"github.com/turtacn/KeyConcept/internal/intelligence/textanalysis"
	"github.com/turtacn/KeyConcept/internal/testutil"
	"github.com/turtacn/KeyConcept/pkg/errors"
)

// ============================================================================
// Fixtures
// ============================================================================

const ns = "http://ontologie.example.org/CSC/"

func id(local string) ontology.ConceptID { return ontology.ConceptID(ns + local) }

func herbModel(t *testing.T) *ontology.Model {
	t.Helper()
	m, err := ontology.NewModel([]*ontology.Concept{
		{ID: id("Kraut"), Labels: []string{"Kraut"}},
		{ID: id("Kerbel"), Parents: []ontology.ConceptID{id("Kraut")}, Labels: []string{"Kerbel"}},
		{ID: id("Gartenkerbel"), Parents: []ontology.ConceptID{id("Kraut")}, Synonyms: []ontology.ConceptID{id("Kerbel")}, Labels: []string{"Gartenkerbel"}},
		{ID: id("Dill"), Parents: []ontology.ConceptID{id("Kraut")}, Labels: []string{"Dill", "Echter Dill"}},
	})
	require.NoError(t, err)
	return m
}

type fixture struct {
	svc      Service
	index    *conceptindex.Index
	cache    *memCache
	searcher *fakeSearcher
	log      *testutil.MockLogger
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	analyzer := textanalysis.NewAnalyzer(stemmer.None{}, textanalysis.WithStopWords(textanalysis.NewStopWords("der", "und", "mit")))
	index := conceptindex.New(analyzer, ontology.ExclusionPolicy{})
	_, err := index.Build(context.Background(), herbModel(t))
	require.NoError(t, err)

	f := &fixture{index: index, cache: newMemCache(), searcher: &fakeSearcher{}, log: testutil.NewMockLogger()}
	cfg := Config{
		MaxSimilarConcepts: 5,
		SearchURL:          "/search",
		LinkClass:          "similarconcept",
		TitlePrefix:        "Ähnliche Begriffe:",
		CacheTTL:           time.Minute,
		Exclusions:         plaintext.DefaultExclusions(),
	}
	all := append([]Option{WithCache(f.cache), WithSearcher(f.searcher), WithLogger(f.log)}, opts...)
	f.svc, err = NewService(analyzer, index, cfg, all...)
	require.NoError(t, err)
	return f
}

type memCache struct {
	mu   sync.Mutex
	data map[string]EnhanceResult
	ttls map[string]time.Duration
	gets int
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: map[string]EnhanceResult{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.err != nil {
		return c.err
	}
	v, ok := c.data[key]
	if !ok {
		return redis.ErrCacheMiss
	}
	*dest.(*EnhanceResult) = v
	return nil
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = *value.(*EnhanceResult)
	c.ttls[key] = ttl
	return nil
}

type fakeSearcher struct {
	queries []opensearch.ConceptQuery
	result  *opensearch.SearchResult
	err     error
}

func (s *fakeSearcher) SearchConcepts(_ context.Context, q opensearch.ConceptQuery) (*opensearch.SearchResult, error) {
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &opensearch.SearchResult{}, nil
}

// ============================================================================
// Construction
// ============================================================================

func TestNewService_Validation(t *testing.T) {
	t.Parallel()
	analyzer := textanalysis.NewAnalyzer(stemmer.None{})
	index := conceptindex.New(analyzer, ontology.ExclusionPolicy{})

	_, err := NewService(nil, index, Config{})
	assert.True(t, errors.IsValidation(err))
	_, err = NewService(analyzer, nil, Config{})
	assert.True(t, errors.IsValidation(err))

	svc, err := NewService(analyzer, index, Config{})
	require.NoError(t, err)
	impl := svc.(*serviceImpl)
	assert.Equal(t, config.DefaultMaxSimilarConcepts, impl.cfg.MaxSimilarConcepts)
	assert.Equal(t, config.DefaultSearchURL, impl.cfg.SearchURL)
	assert.Equal(t, config.DefaultLinkClass, impl.cfg.LinkClass)
	assert.Equal(t, config.DefaultTitlePrefix, impl.cfg.TitlePrefix)
	assert.Equal(t, DefaultCacheTTL, impl.cfg.CacheTTL)
}

func TestConfigFrom(t *testing.T) {
	t.Parallel()

	cfg, err := ConfigFrom(config.AnnotationConfig{MaxSimilarConcepts: 3, SearchURL: "/s", CacheTTL: time.Second},
		config.AnalysisConfig{ExclusionProfile: plaintext.ProfileXWiki21})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxSimilarConcepts)
	assert.Equal(t, "/s", cfg.SearchURL)
	assert.Len(t, cfg.Exclusions, len(plaintext.DefaultExclusions()))

	cfg, err = ConfigFrom(config.AnnotationConfig{}, config.AnalysisConfig{ExclusionProfile: plaintext.ProfileNone})
	require.NoError(t, err)
	assert.Empty(t, cfg.Exclusions)

	_, err = ConfigFrom(config.AnnotationConfig{}, config.AnalysisConfig{ExclusionProfile: "mediawiki"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeExclusionProfileUnknown))
}

// ============================================================================
// Extract
// ============================================================================

func TestService_Extract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		surfaces []string
		keys     []string
	}{
		{"plain text", "Der Kerbel und echter Dill.", []string{"Kerbel", "echter Dill"}, []string{"kerbel", "echter dill"}},
		{
			"markup removed before analysis",
			`Der {{code}}x{{/code}}Kerbel und (% class="a" %)echter Dill.`,
			[]string{"Kerbel", "echter Dill"},
			[]string{"kerbel", "echter dill"},
		},
		{"no concepts", "Ein Satz ohne Kräuter.", nil, nil},
		{"empty", "", nil, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			res, err := f.svc.Extract(context.Background(), &ExtractRequest{Text: tt.text})
			require.NoError(t, err)
			require.Len(t, res.Annotations, len(tt.surfaces))
			for i, a := range res.Annotations {
				assert.Equal(t, tt.surfaces[i], a.Surface)
				assert.Equal(t, tt.surfaces[i], tt.text[a.Start:a.End])
				assert.Equal(t, strings.Index(tt.text, tt.surfaces[i]), a.Start)
				assert.Equal(t, tt.keys[i], a.Key)
			}
			assert.Equal(t, f.index.Generation(), res.Generation)
		})
	}
}

func TestService_Extract_ConceptsAndLabels(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.svc.Extract(context.Background(), &ExtractRequest{Text: "Echter Dill mit Kerbel"})
	require.NoError(t, err)
	require.Len(t, res.Annotations, 2)
	assert.Equal(t, []ontology.ConceptID{id("Dill")}, res.Annotations[0].Concepts)
	assert.Equal(t, []string{"Dill", "Echter Dill"}, res.Annotations[0].Labels)
	assert.Equal(t, []ontology.ConceptID{id("Kerbel")}, res.Annotations[1].Concepts)
	assert.Equal(t, 3, res.Tokens)
}

func TestService_Extract_CustomExclusions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	text := "Kerbel <b>Dill</b>"

	res, err := f.svc.Extract(context.Background(), &ExtractRequest{Text: text, Exclusions: []string{`</?b>`}})
	require.NoError(t, err)
	require.Len(t, res.Annotations, 2)
	assert.Equal(t, "Dill", res.Annotations[1].Surface)
	assert.Equal(t, strings.Index(text, "Dill"), res.Annotations[1].Start)

	_, err = f.svc.Extract(context.Background(), &ExtractRequest{Text: text, Exclusions: []string{`(`}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeExclusionPatternInvalid))
}

func TestService_Extract_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Extract(context.Background(), nil)
	assert.True(t, errors.IsValidation(err))

	_, err = f.svc.Extract(context.Background(), &ExtractRequest{Text: strings.Repeat("a", MaxTextSize+1)})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.svc.Extract(ctx, &ExtractRequest{Text: "Kerbel"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))
}

// ============================================================================
// Enhance
// ============================================================================

const (
	kerbelLink = `[[Kerbel>>/search?text=Kerbel+Gartenkerbel+Kraut||class="similarconcept" title="Ähnliche Begriffe: Gartenkerbel, Kraut"]]`
	dillLink   = `[[echter Dill>>/search?text=Dill+Echter+Dill+Kraut||class="similarconcept" title="Ähnliche Begriffe: Dill, Kraut"]]`
)

func TestService_Enhance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		want  string
		links int
	}{
		{"two concepts", "Der Kerbel und echter Dill.", "Der " + kerbelLink + " und " + dillLink + ".", 2},
		{
			"markup outside spans is kept",
			`Der {{code}}x{{/code}}Kerbel und (% class="a" %)echter Dill.`,
			`Der {{code}}x{{/code}}` + kerbelLink + ` und (% class="a" %)` + dillLink + ".",
			2,
		},
		{"existing links are not analyzed", "[[Kerbel>>Seite]] wächst", "[[Kerbel>>Seite]] wächst", 0},
		{"no concepts", "Nichts zu sehen.", "Nichts zu sehen.", 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			res, err := f.svc.Enhance(context.Background(), &EnhanceRequest{Text: tt.text})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Text)
			assert.Equal(t, tt.links, res.Links)
			assert.False(t, res.Cached)
		})
	}
}

func TestService_Enhance_NoSimilarLabelsKeepsSurface(t *testing.T) {
	t.Parallel()
	analyzer := textanalysis.NewAnalyzer(stemmer.None{})
	model, err := ontology.NewModel([]*ontology.Concept{{ID: id("Solo"), Labels: []string{"Solo"}}})
	require.NoError(t, err)
	index := conceptindex.New(analyzer, ontology.ExclusionPolicy{})
	_, err = index.Build(context.Background(), model)
	require.NoError(t, err)
	svc, err := NewService(analyzer, index, Config{})
	require.NoError(t, err)
	svc.(*serviceImpl).cfg.MaxSimilarConcepts = 0

	res, err := svc.Enhance(context.Background(), &EnhanceRequest{Text: "Solo hier"})
	require.NoError(t, err)
	assert.Equal(t, "Solo hier", res.Text)
	assert.Equal(t, 0, res.Links)
	require.Len(t, res.Annotations, 1)
}

func TestService_Enhance_SearchURLWithQuery(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.svc.(*serviceImpl).cfg.SearchURL = "/bin/view/Main/Search?space=Herbs"

	res, err := f.svc.Enhance(context.Background(), &EnhanceRequest{Text: "Kerbel"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "/bin/view/Main/Search?space=Herbs&text=Kerbel+Gartenkerbel+Kraut||")
}

func TestService_Enhance_TitleEscaping(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.svc.(*serviceImpl).cfg.TitlePrefix = `Siehe "auch":`

	res, err := f.svc.Enhance(context.Background(), &EnhanceRequest{Text: "Kerbel"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, `title="Siehe ~"auch~": Gartenkerbel, Kraut"`)
}

func TestService_Enhance_Cache(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	req := &EnhanceRequest{Text: "Der Kerbel"}

	first, err := f.svc.Enhance(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.Len(t, f.cache.data, 1)
	for _, ttl := range f.cache.ttls {
		assert.Equal(t, time.Minute, ttl)
	}

	second, err := f.svc.Enhance(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)

	// Privilege and index generation are part of the key.
	_, err = f.svc.Enhance(ctx, &EnhanceRequest{Text: "Der Kerbel", Privileged: true})
	require.NoError(t, err)
	assert.Len(t, f.cache.data, 2)

	_, err = f.index.Build(ctx, herbModel(t))
	require.NoError(t, err)
	third, err := f.svc.Enhance(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Len(t, f.cache.data, 3)
}

func TestService_Enhance_CacheFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.cache.err = errors.New(errors.ErrCodeCacheError, "connection refused")

	res, err := f.svc.Enhance(context.Background(), &EnhanceRequest{Text: "Kerbel"})
	require.NoError(t, err)
	assert.Equal(t, kerbelLink, res.Text)
	assert.True(t, f.log.HasMessage("warn", "enhance cache read failed"))
	assert.True(t, f.log.HasMessage("warn", "enhance cache store failed"))
}

func TestService_Enhance_RedisCache(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(config.RedisConfig{Addr: mr.Addr()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, WithCache(redis.NewRedisCache(client, nil, redis.WithPrefix("kc:"), redis.WithJitter(0))))
	ctx := context.Background()
	req := &EnhanceRequest{Text: "Kerbel und Dill"}

	first, err := f.svc.Enhance(ctx, req)
	require.NoError(t, err)
	key := "kc:" + cacheKey(req, f.index.Generation())
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	second, err := f.svc.Enhance(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Annotations, second.Annotations)
}

func TestCacheKey(t *testing.T) {
	t.Parallel()
	base := &EnhanceRequest{Text: "Kerbel"}
	k := cacheKey(base, 1)

	assert.True(t, strings.HasPrefix(k, cacheKeyPrefix))
	assert.Equal(t, k, cacheKey(&EnhanceRequest{Text: "Kerbel"}, 1))
	assert.NotEqual(t, k, cacheKey(base, 2))
	assert.NotEqual(t, k, cacheKey(&EnhanceRequest{Text: "Kerbel", Privileged: true}, 1))
	assert.NotEqual(t, k, cacheKey(&EnhanceRequest{Text: "Kerbel", Exclusions: []string{}}, 1))
}

// ============================================================================
// Search & Similar
// ============================================================================

func TestService_Search(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.searcher.result = &opensearch.SearchResult{
		Total: 1,
		Hits:  []opensearch.SearchHit{{ID: "abc", Score: 2, Document: opensearch.AnnotatedDocument{Object: "kraeuter.txt"}}},
	}

	res, err := f.svc.Search(context.Background(), &SearchRequest{Term: "Kerbel", Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, []ontology.ConceptID{id("Kerbel"), id("Gartenkerbel"), id("Kraut")}, res.Concepts)
	assert.Equal(t, []string{"Kerbel", "Gartenkerbel", "Kraut"}, res.Labels)
	assert.Equal(t, int64(1), res.Total)
	require.Len(t, res.Hits, 1)

	require.Len(t, f.searcher.queries, 1)
	q := f.searcher.queries[0]
	assert.Equal(t, []string{string(id("Kerbel")), string(id("Gartenkerbel")), string(id("Kraut"))}, q.ConceptIDs)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, 10, q.Offset)
	assert.False(t, q.Privileged)
}

func TestService_Search_NoConcepts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.svc.Search(context.Background(), &SearchRequest{Term: "Petersilie"})
	require.NoError(t, err)
	assert.Empty(t, res.Concepts)
	assert.NotNil(t, res.Hits)
	assert.Empty(t, f.searcher.queries)
}

func TestService_Search_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Search(context.Background(), &SearchRequest{Term: "  "})
	assert.True(t, errors.IsValidation(err))
	_, err = f.svc.Search(context.Background(), &SearchRequest{Term: "Kerbel", Limit: -1})
	assert.True(t, errors.IsValidation(err))

	f.searcher.err = errors.New(errors.ErrCodeSearchError, "index_not_found_exception")
	_, err = f.svc.Search(context.Background(), &SearchRequest{Term: "Kerbel"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSearchError))
	assert.True(t, f.log.HasMessage("error", "document search failed"))

	noSearch := newFixture(t, WithSearcher(nil))
	_, err = noSearch.svc.Search(context.Background(), &SearchRequest{Term: "Kerbel"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

func TestService_Similar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Similar(ctx, &SimilarRequest{Concepts: []ontology.ConceptID{id("Dill")}})
	require.NoError(t, err)
	assert.Equal(t, []ontology.ConceptID{id("Dill"), id("Kraut")}, res.Concepts)
	assert.Equal(t, []string{"Dill", "Echter Dill", "Kraut"}, res.Labels)

	res, err = f.svc.Similar(ctx, &SimilarRequest{Concepts: []ontology.ConceptID{id("Kerbel")}, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []ontology.ConceptID{id("Kerbel"), id("Gartenkerbel")}, res.Concepts)

	_, err = f.svc.Similar(ctx, &SimilarRequest{})
	assert.True(t, errors.IsValidation(err))
	_, err = f.svc.Similar(ctx, &SimilarRequest{Concepts: []ontology.ConceptID{id("Petersilie")}})
	assert.True(t, errors.IsCode(err, errors.ErrCodeConceptNotFound))
}

// ============================================================================
// Tokenize & PlainText
// ============================================================================

func TestService_Tokenize(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.svc.Tokenize(context.Background(), "Der Kerbel, Dill")
	require.NoError(t, err)
	require.Len(t, res.Tokens, 2)
	assert.Equal(t, TokenInfo{Text: "kerbel", Start: 4, End: 10}, res.Tokens[0])
	assert.Equal(t, "dill", res.Tokens[1].Text)
	assert.True(t, res.Tokens[1].AfterPunctuation)

	res, err = f.svc.Tokenize(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, res.Tokens)
	assert.Empty(t, res.Tokens)
}

func TestService_PlainText(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.svc.PlainText(context.Background(), "Text [[link>>target]] and [[rest]]", nil)
	require.NoError(t, err)
	assert.Equal(t, "Text  and ", res.Plain)
	assert.NotEmpty(t, res.Breakpoints)

	res, err = f.svc.PlainText(context.Background(), "Text [[link]]", []string{})
	require.NoError(t, err)
	assert.Equal(t, "Text [[link]]", res.Plain)
	assert.NotNil(t, res.Breakpoints)
	assert.Empty(t, res.Breakpoints)
}
