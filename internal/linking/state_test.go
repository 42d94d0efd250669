package linking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslink/backend/internal/storage/models"
	"github.com/crosslink/backend/pkg/utils"
)

type fakeArticles struct {
	articles map[string]*models.Article
}

func (f *fakeArticles) GetArticle(id string) (*models.Article, error) {
	a, ok := f.articles[id]
	if !ok {
		return nil, fmt.Errorf("article not found: %s", id)
	}
	return a, nil
}

type fakeGraph struct {
	articleUpserts int
	linkUpserts    int
	lastSource     string
	lastTarget     string
}

func (f *fakeGraph) UpsertArticle(ctx context.Context, id, slug, title string) error {
	f.articleUpserts++
	return nil
}

func (f *fakeGraph) UpsertLink(ctx context.Context, sourceID, targetID, anchorText string) error {
	f.linkUpserts++
	f.lastSource = sourceID
	f.lastTarget = targetID
	return nil
}

func seedSuggestion(t *testing.T, store *memStore, bidirectional bool) *Suggestion {
	t.Helper()

	now := time.Now().UTC()
	s := &Suggestion{
		ID:              utils.SuggestionID("s1", "a1"),
		SourceArticleID: "s1",
		TargetArticle: TargetArticle{
			ID:           "a1",
			Slug:         "keyword-research",
			Title:        "Keyword Research Basics",
			FocusKeyword: "keyword research",
			URL:          "/blog/keyword-research",
		},
		AnchorText:         "keyword research",
		RelevanceScore:     76,
		SemanticSimilarity: 0.92,
		Placement:          Placement{ParagraphIndex: 0, SentenceIndex: 1, Position: 42},
		Bidirectional:      bidirectional,
		Status:             StatusSuggested,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, store.SaveSuggestion(s))
	return s
}

func stateArticles() *fakeArticles {
	return &fakeArticles{articles: map[string]*models.Article{
		"s1": {
			ID:           "s1",
			Slug:         "internal-linking-guide",
			Title:        "Internal Linking Guide",
			FocusKeyword: "internal linking",
			Content:      "Search rankings reward internal linking done well. Anchor placement matters.",
		},
		"a1": {
			ID:           "a1",
			Slug:         "keyword-research",
			Title:        "Keyword Research Basics",
			FocusKeyword: "keyword research",
			Content:      "Keyword research starts with intent. Internal linking distributes authority.",
		},
	}}
}

func TestAcceptPersistsLinkOnce(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, false)
	machine := NewMachine(store, stateArticles(), nil, "")

	require.NoError(t, machine.Accept(context.Background(), s.ID))
	require.NoError(t, machine.Accept(context.Background(), s.ID))

	got, err := store.GetSuggestion(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)

	count, err := store.CountLinks("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAcceptUnknownSuggestion(t *testing.T) {
	machine := NewMachine(newMemStore(), stateArticles(), nil, "")

	err := machine.Accept(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
}

func TestAcceptRejectedSuggestionFails(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, false)
	machine := NewMachine(store, stateArticles(), nil, "")

	require.NoError(t, machine.Reject(context.Background(), s.ID))

	err := machine.Accept(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	count, err := store.CountLinks("s1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRejectRecordsRejection(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, false)
	machine := NewMachine(store, stateArticles(), nil, "")

	require.NoError(t, machine.Reject(context.Background(), s.ID))
	require.NoError(t, machine.Reject(context.Background(), s.ID))

	got, err := store.GetSuggestion(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)

	rejected, err := store.RejectedTargets("s1")
	require.NoError(t, err)
	assert.True(t, rejected["a1"])
}

func TestRejectAcceptedSuggestionFails(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, false)
	machine := NewMachine(store, stateArticles(), nil, "")

	require.NoError(t, machine.Accept(context.Background(), s.ID))

	err := machine.Reject(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUnrejectRestoresSuggestion(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, false)
	machine := NewMachine(store, stateArticles(), nil, "")

	require.NoError(t, machine.Reject(context.Background(), s.ID))
	require.NoError(t, machine.Unreject(context.Background(), s.ID))

	got, err := store.GetSuggestion(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuggested, got.Status)

	rejected, err := store.RejectedTargets("s1")
	require.NoError(t, err)
	assert.False(t, rejected["a1"])

	// The target is eligible again on the next accept.
	require.NoError(t, machine.Accept(context.Background(), s.ID))
}

func TestUnrejectSuggestedIsNoop(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, false)
	machine := NewMachine(store, stateArticles(), nil, "")

	require.NoError(t, machine.Unreject(context.Background(), s.ID))

	got, err := store.GetSuggestion(s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuggested, got.Status)
}

func TestUnrejectAcceptedFails(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, false)
	machine := NewMachine(store, stateArticles(), nil, "")

	require.NoError(t, machine.Accept(context.Background(), s.ID))

	err := machine.Unreject(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAcceptMirrorsLinkIntoGraph(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, false)
	graph := &fakeGraph{}
	machine := NewMachine(store, stateArticles(), graph, "")

	require.NoError(t, machine.Accept(context.Background(), s.ID))

	assert.Equal(t, 1, graph.linkUpserts)
	assert.Equal(t, "s1", graph.lastSource)
	assert.Equal(t, "a1", graph.lastTarget)
}

func TestAcceptBidirectionalEnqueuesMirror(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, true)
	machine := NewMachine(store, stateArticles(), nil, "")

	require.NoError(t, machine.Accept(context.Background(), s.ID))

	mirror, err := store.GetSuggestion(utils.SuggestionID("a1", "s1"))
	require.NoError(t, err)

	assert.Equal(t, "a1", mirror.SourceArticleID)
	assert.Equal(t, "s1", mirror.TargetArticle.ID)
	assert.Equal(t, StatusSuggested, mirror.Status)
	assert.False(t, mirror.Bidirectional)
	assert.Equal(t, s.RelevanceScore, mirror.RelevanceScore)
	assert.InDelta(t, s.SemanticSimilarity, mirror.SemanticSimilarity, 1e-9)
	assert.Equal(t, "/blog/internal-linking-guide", mirror.TargetArticle.URL)
}

func TestAcceptBidirectionalKeepsExistingMirror(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, true)

	mirrorID := utils.SuggestionID("a1", "s1")
	existing := &Suggestion{
		ID:              mirrorID,
		SourceArticleID: "a1",
		TargetArticle:   TargetArticle{ID: "s1"},
		AnchorText:      "hand-picked anchor",
		Status:          StatusRejected,
	}
	require.NoError(t, store.SaveSuggestion(existing))

	machine := NewMachine(store, stateArticles(), nil, "")
	require.NoError(t, machine.Accept(context.Background(), s.ID))

	mirror, err := store.GetSuggestion(mirrorID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, mirror.Status)
	assert.Equal(t, "hand-picked anchor", mirror.AnchorText)
}

func TestAcceptBidirectionalWithoutArticleSource(t *testing.T) {
	store := newMemStore()
	s := seedSuggestion(t, store, true)
	machine := NewMachine(store, nil, nil, "")

	require.NoError(t, machine.Accept(context.Background(), s.ID))

	_, err := store.GetSuggestion(utils.SuggestionID("a1", "s1"))
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
}
