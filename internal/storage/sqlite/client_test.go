package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslink/backend/internal/linking"
	"github.com/crosslink/backend/internal/storage/models"
	"github.com/crosslink/backend/pkg/utils"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func seedArticle(t *testing.T, client *Client, id, slug string) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, client.UpsertArticle(&models.Article{
		ID:        id,
		Slug:      slug,
		Title:     slug,
		Content:   "<p>Body for " + slug + ".</p>",
		Topics:    []string{"seo"},
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func TestArticleRoundTrip(t *testing.T) {
	client := newTestClient(t)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, client.UpsertArticle(&models.Article{
		ID:           "a1",
		Slug:         "keyword-research",
		Title:        "Keyword Research Basics",
		Content:      "<p>Keyword research starts with intent.</p>",
		FocusKeyword: "keyword research",
		Topics:       []string{"seo", "content"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	got, err := client.GetArticle("a1")
	require.NoError(t, err)

	assert.Equal(t, "keyword-research", got.Slug)
	assert.Equal(t, "keyword research", got.FocusKeyword)
	assert.Equal(t, []string{"seo", "content"}, got.Topics)
	assert.Equal(t, now.Unix(), got.CreatedAt.Unix())
}

func TestOrphanCountUsesOutboundLinks(t *testing.T) {
	client := newTestClient(t)

	seedArticle(t, client, "s1", "internal-linking-guide")
	seedArticle(t, client, "a1", "keyword-research")
	seedArticle(t, client, "b1", "content-strategy")

	// s1 links out to a1, so only a1 and b1 lack outbound links. a1 having
	// an inbound link must not rescue it from the orphan count.
	require.NoError(t, client.UpsertLink(&models.Link{
		SourceID:   "s1",
		TargetID:   "a1",
		AnchorText: "keyword research",
		CreatedAt:  time.Now().UTC(),
	}))

	count, err := client.OrphanCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	outbound, err := client.CountLinks("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, outbound)

	inbound, err := client.InboundLinks("a1")
	require.NoError(t, err)
	assert.Equal(t, 1, inbound)
}

func TestSaveSuggestionPreservesStatusOnRegeneration(t *testing.T) {
	client := newTestClient(t)

	s := &linking.Suggestion{
		ID:              utils.SuggestionID("s1", "a1"),
		SourceArticleID: "s1",
		TargetArticle: linking.TargetArticle{
			ID:   "a1",
			Slug: "keyword-research",
			URL:  "/blog/keyword-research",
		},
		AnchorText:     "keyword research",
		RelevanceScore: 76,
		Status:         linking.StatusSuggested,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, client.SaveSuggestion(s))
	require.NoError(t, client.SetSuggestionStatus(s.ID, linking.StatusAccepted))

	// A later generation run re-saves the same pair with fresh scores.
	s.RelevanceScore = 81
	s.Status = linking.StatusSuggested
	require.NoError(t, client.SaveSuggestion(s))

	got, err := client.GetSuggestion(s.ID)
	require.NoError(t, err)
	assert.Equal(t, linking.StatusAccepted, got.Status)
	assert.Equal(t, 81, got.RelevanceScore)
}
