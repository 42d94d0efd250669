package linking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslink/backend/internal/storage/models"
	"github.com/crosslink/backend/pkg/utils"
)

type memStore struct {
	suggestions map[string]*Suggestion
	links       map[string]*models.Link
	rejections  map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		suggestions: make(map[string]*Suggestion),
		links:       make(map[string]*models.Link),
		rejections:  make(map[string]bool),
	}
}

func (m *memStore) SaveSuggestion(s *Suggestion) error {
	if existing, ok := m.suggestions[s.ID]; ok {
		cp := *s
		cp.Status = existing.Status
		cp.CreatedAt = existing.CreatedAt
		m.suggestions[s.ID] = &cp
		return nil
	}
	cp := *s
	m.suggestions[s.ID] = &cp
	return nil
}

func (m *memStore) GetSuggestion(id string) (*Suggestion, error) {
	s, ok := m.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSuggestionNotFound, id)
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) SetSuggestionStatus(id string, status Status) error {
	s, ok := m.suggestions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSuggestionNotFound, id)
	}
	s.Status = status
	return nil
}

func (m *memStore) UpsertLink(l *models.Link) error {
	key := l.SourceID + "|" + l.TargetID + "|" + l.AnchorText
	if _, ok := m.links[key]; !ok {
		cp := *l
		m.links[key] = &cp
	}
	return nil
}

func (m *memStore) CountLinks(sourceID string) (int, error) {
	count := 0
	for _, l := range m.links {
		if l.SourceID == sourceID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) LinkedTargets(sourceID string) (map[string]bool, error) {
	targets := make(map[string]bool)
	for _, l := range m.links {
		if l.SourceID == sourceID {
			targets[l.TargetID] = true
		}
	}
	return targets, nil
}

func (m *memStore) SaveRejection(sourceID, targetID string) error {
	m.rejections[sourceID+"|"+targetID] = true
	return nil
}

func (m *memStore) DeleteRejection(sourceID, targetID string) error {
	delete(m.rejections, sourceID+"|"+targetID)
	return nil
}

func (m *memStore) RejectedTargets(sourceID string) (map[string]bool, error) {
	targets := make(map[string]bool)
	for key := range m.rejections {
		prefix := sourceID + "|"
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			targets[key[len(prefix):]] = true
		}
	}
	return targets, nil
}

type fakeEmbeddings struct {
	vectors map[string][]float32
	errs    map[string]error
	calls   int
	onCall  func(calls int)
}

func (f *fakeEmbeddings) GetOrGenerate(ctx context.Context, articleID, content string) ([]float32, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	if err, ok := f.errs[articleID]; ok {
		return nil, err
	}
	v, ok := f.vectors[articleID]
	if !ok {
		return nil, errors.New("no embedding for " + articleID)
	}
	return v, nil
}

func testCorpus() (*models.Article, []*models.Article) {
	source := &models.Article{
		ID:           "s1",
		Slug:         "internal-linking-guide",
		Title:        "Internal Linking Guide",
		FocusKeyword: "internal linking",
		Topics:       []string{"seo", "ai"},
		Content: "Search rankings reward internal linking done well. " +
			"Our guide to keyword research covers the basics. " +
			"Content strategy decides what gets written next.",
		Embedding: []float32{1, 0, 0},
	}

	corpus := []*models.Article{
		source,
		{
			ID:           "a1",
			Slug:         "keyword-research",
			Title:        "Keyword Research Basics",
			FocusKeyword: "keyword research",
			Topics:       []string{"seo"},
			Content:      "Keyword research starts with understanding intent. Internal linking distributes authority.",
			Embedding:    []float32{1, 0, 0},
		},
		{
			ID:        "b1",
			Slug:      "unrelated-cooking",
			Title:     "Weeknight Cooking",
			Topics:    []string{"food"},
			Content:   "A good stock is the base of most soups.",
			Embedding: []float32{0, 1, 0},
		},
	}
	return source, corpus
}

func TestGenerateSurfacesRelevantCandidate(t *testing.T) {
	source, corpus := testCorpus()
	store := newMemStore()
	gen := NewGenerator(&fakeEmbeddings{}, store, DefaultWeights(), Options{})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)

	require.Len(t, analysis.Suggestions, 1)
	s := analysis.Suggestions[0]

	// sim 1.0 -> 60, one shared topic -> 6, keyword in source body -> 10
	assert.Equal(t, "a1", s.TargetArticle.ID)
	assert.Equal(t, 76, s.RelevanceScore)
	assert.InDelta(t, 1.0, s.SemanticSimilarity, 1e-9)
	assert.Equal(t, utils.SuggestionID("s1", "a1"), s.ID)
	assert.Equal(t, StatusSuggested, s.Status)
	assert.Equal(t, "/blog/keyword-research", s.TargetArticle.URL)
	assert.Equal(t, "keyword research", s.AnchorText)
	assert.True(t, s.Bidirectional)

	// The anchor lands in the sentence already mentioning the keyword.
	assert.Equal(t, 0, s.Placement.ParagraphIndex)
	assert.Equal(t, 1, s.Placement.SentenceIndex)
	assert.NotEmpty(t, s.Placement.Context)
}

func TestGenerateExcludesDissimilarCandidate(t *testing.T) {
	source, corpus := testCorpus()
	gen := NewGenerator(&fakeEmbeddings{}, nil, DefaultWeights(), Options{})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)

	for _, s := range analysis.Suggestions {
		assert.NotEqual(t, "b1", s.TargetArticle.ID)
	}
}

func TestGenerateFiltersBelowMinRelevance(t *testing.T) {
	source, corpus := testCorpus()
	// Similar enough to pass the similarity floor, but no shared topics or
	// keyword overlap: round(0.6*60) = 36 < 50.
	corpus = append(corpus, &models.Article{
		ID:        "c1",
		Slug:      "adjacent-topic",
		Title:     "Adjacent Topic",
		Topics:    []string{"marketing"},
		Content:   "Budgets shape campaigns.",
		Embedding: []float32{0.6, 0.8, 0},
	})

	gen := NewGenerator(&fakeEmbeddings{}, nil, DefaultWeights(), Options{})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)

	for _, s := range analysis.Suggestions {
		assert.NotEqual(t, "c1", s.TargetArticle.ID)
	}
}

func TestGenerateNegativeFloorsDisableFiltering(t *testing.T) {
	source, corpus := testCorpus()
	gen := NewGenerator(&fakeEmbeddings{}, nil, DefaultWeights(), Options{
		MinSimilarity:  -1,
		MinRelevance:   -1,
		TopK:           -1,
		MaxSuggestions: -1,
	})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)

	// With both floors off, even the orthogonal cooking article surfaces.
	targets := make(map[string]bool, len(analysis.Suggestions))
	for _, s := range analysis.Suggestions {
		targets[s.TargetArticle.ID] = true
	}
	assert.True(t, targets["a1"])
	assert.True(t, targets["b1"])
}

func TestGenerateSuppressesExistingLinkTargets(t *testing.T) {
	source, corpus := testCorpus()
	source.Content = `<p>Search rankings reward internal linking done well.</p>` +
		`<p>See the <a href="/blog/keyword-research">keyword research</a> guide first.</p>`

	gen := NewGenerator(&fakeEmbeddings{}, nil, DefaultWeights(), Options{})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)

	assert.Empty(t, analysis.Suggestions)
	require.Len(t, analysis.ExistingLinks, 1)
	assert.Equal(t, "a1", analysis.ExistingLinks[0].TargetID)
	assert.Equal(t, 1, analysis.Metrics.TotalInternalLinks)
	assert.False(t, analysis.Metrics.OrphanedContent)
}

func TestGenerateSuppressesRejectedTargets(t *testing.T) {
	source, corpus := testCorpus()
	store := newMemStore()
	require.NoError(t, store.SaveRejection("s1", "a1"))

	gen := NewGenerator(&fakeEmbeddings{}, store, DefaultWeights(), Options{})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)

	assert.Empty(t, analysis.Suggestions)
}

func TestGenerateSuppressesAcceptedTargets(t *testing.T) {
	source, corpus := testCorpus()
	store := newMemStore()
	require.NoError(t, store.UpsertLink(&models.Link{
		SourceID:   "s1",
		TargetID:   "a1",
		AnchorText: "keyword research",
		CreatedAt:  time.Now(),
	}))

	gen := NewGenerator(&fakeEmbeddings{}, store, DefaultWeights(), Options{})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)

	assert.Empty(t, analysis.Suggestions)
}

func TestGenerateIsDeterministic(t *testing.T) {
	source, corpus := testCorpus()

	run := func() *Analysis {
		gen := NewGenerator(&fakeEmbeddings{}, nil, DefaultWeights(), Options{})
		analysis, err := gen.Generate(context.Background(), source, corpus)
		require.NoError(t, err)
		for i := range analysis.Suggestions {
			analysis.Suggestions[i].CreatedAt = time.Time{}
			analysis.Suggestions[i].UpdatedAt = time.Time{}
		}
		return analysis
	}

	assert.Equal(t, run(), run())
}

func TestGeneratePersistsSuggestions(t *testing.T) {
	source, corpus := testCorpus()
	store := newMemStore()
	gen := NewGenerator(&fakeEmbeddings{}, store, DefaultWeights(), Options{})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)
	require.Len(t, analysis.Suggestions, 1)

	saved, err := store.GetSuggestion(analysis.Suggestions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "a1", saved.TargetArticle.ID)
	assert.Equal(t, StatusSuggested, saved.Status)
}

func TestGenerateSourceEmbeddingFailureIsFatal(t *testing.T) {
	source, corpus := testCorpus()
	source.Embedding = nil

	upstream := errors.New("embedding upstream down")
	emb := &fakeEmbeddings{errs: map[string]error{"s1": upstream}}
	gen := NewGenerator(emb, nil, DefaultWeights(), Options{})

	_, err := gen.Generate(context.Background(), source, corpus)
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)
}

func TestGenerateSkipsCandidateWithFailedEmbedding(t *testing.T) {
	source, corpus := testCorpus()
	corpus[1].Embedding = nil

	emb := &fakeEmbeddings{errs: map[string]error{"a1": errors.New("transient")}}
	gen := NewGenerator(emb, nil, DefaultWeights(), Options{})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)
	assert.Empty(t, analysis.Suggestions)
}

func TestGenerateCancellationKeepsPartialResults(t *testing.T) {
	source, corpus := testCorpus()
	// Strip pre-resolved embeddings so every candidate goes through the
	// embedding source.
	for _, art := range corpus[1:] {
		art.Embedding = nil
	}
	corpus = append(corpus, &models.Article{
		ID:      "d1",
		Slug:    "late-candidate",
		Title:   "Late Candidate",
		Topics:  []string{"seo"},
		Content: "This one is never reached.",
	})

	ctx, cancel := context.WithCancel(context.Background())
	emb := &fakeEmbeddings{
		vectors: map[string][]float32{
			"a1": {1, 0, 0},
			"b1": {0, 1, 0},
		},
		onCall: func(calls int) {
			if calls == 2 {
				cancel()
			}
		},
	}

	gen := NewGenerator(emb, nil, DefaultWeights(), Options{})

	analysis, err := gen.Generate(ctx, source, corpus)
	require.NoError(t, err)

	// a1 and b1 were resolved before the cancel; d1 never was.
	require.Len(t, analysis.Suggestions, 1)
	assert.Equal(t, "a1", analysis.Suggestions[0].TargetArticle.ID)
}

func TestGenerateCapsSuggestionCount(t *testing.T) {
	source, corpus := testCorpus()
	for i := 0; i < 8; i++ {
		corpus = append(corpus, &models.Article{
			ID:           fmt.Sprintf("t%d", i),
			Slug:         fmt.Sprintf("related-%d", i),
			Title:        fmt.Sprintf("Related Post %d", i),
			FocusKeyword: "internal linking",
			Topics:       []string{"seo", "ai"},
			Content:      "Internal linking is discussed here at length.",
			Embedding:    []float32{1, 0, 0},
		})
	}

	gen := NewGenerator(&fakeEmbeddings{}, nil, DefaultWeights(), Options{MaxSuggestions: 5})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(analysis.Suggestions), 5)

	seen := make(map[string]bool)
	for _, s := range analysis.Suggestions {
		assert.False(t, seen[s.TargetArticle.ID], "duplicate target %s", s.TargetArticle.ID)
		seen[s.TargetArticle.ID] = true
	}
}

func TestGenerateMetricsOnEmptyCorpus(t *testing.T) {
	source, _ := testCorpus()
	gen := NewGenerator(&fakeEmbeddings{}, nil, DefaultWeights(), Options{})

	analysis, err := gen.Generate(context.Background(), source, []*models.Article{source})
	require.NoError(t, err)

	assert.Empty(t, analysis.Suggestions)
	assert.Equal(t, 0, analysis.Metrics.TotalInternalLinks)
	assert.True(t, analysis.Metrics.OrphanedContent)
	assert.Equal(t, 0, analysis.Metrics.TopicClusterCoverage)
	assert.Equal(t, [2]int{3, 10}, analysis.Metrics.OptimalRange)
}

func TestGenerateTopicClusterCoverage(t *testing.T) {
	source, corpus := testCorpus()
	gen := NewGenerator(&fakeEmbeddings{}, nil, DefaultWeights(), Options{})

	analysis, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)

	// One topically related article (a1), covered by the suggestion.
	assert.Equal(t, 100, analysis.Metrics.TopicClusterCoverage)
}

func TestGenerateReportsProgress(t *testing.T) {
	source, corpus := testCorpus()

	var stages []string
	gen := NewGenerator(&fakeEmbeddings{}, nil, DefaultWeights(), Options{
		Progress: func(stage string, done, total int) {
			stages = append(stages, stage)
		},
	})

	_, err := gen.Generate(context.Background(), source, corpus)
	require.NoError(t, err)

	assert.Contains(t, stages, "scoring")
	assert.Contains(t, stages, "placement")
}
