package linking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractExistingLinks(t *testing.T) {
	bySlug := map[string]string{
		"seo-guide":     "a1",
		"link-building": "a2",
	}

	body := `<p>See our <a href="/blog/seo-guide">SEO guide</a> and
		<a href="https://example.com/blog/link-building/">link building tips</a>.
		Also an <a href="https://other.site/unrelated-post">external post</a>
		and an <a href="#section">in-page anchor</a>.</p>`

	links := ExtractExistingLinks(body, bySlug)
	require.Len(t, links, 2)
	assert.Equal(t, "a1", links[0].TargetID)
	assert.Equal(t, "SEO guide", links[0].AnchorText)
	assert.Equal(t, "a2", links[1].TargetID)
	assert.Equal(t, "link building tips", links[1].AnchorText)
}

func TestExtractExistingLinks_DedupesByTarget(t *testing.T) {
	bySlug := map[string]string{"seo-guide": "a1"}
	body := `<p><a href="/seo-guide">first</a> and <a href="/blog/seo-guide">second</a></p>`

	links := ExtractExistingLinks(body, bySlug)
	require.Len(t, links, 1)
	assert.Equal(t, "first", links[0].AnchorText)
}

func TestExtractExistingLinks_QueryAndFragmentStripped(t *testing.T) {
	bySlug := map[string]string{"seo-guide": "a1"}
	body := `<a href="/blog/seo-guide?utm_source=x#intro">guide</a>`

	links := ExtractExistingLinks(body, bySlug)
	require.Len(t, links, 1)
	assert.Equal(t, "a1", links[0].TargetID)
}

func TestExtractExistingLinks_NoLinks(t *testing.T) {
	bySlug := map[string]string{"seo-guide": "a1"}

	assert.Empty(t, ExtractExistingLinks("<p>no anchors here</p>", bySlug))
	assert.Empty(t, ExtractExistingLinks("", bySlug))
	assert.Empty(t, ExtractExistingLinks(`<a href="/seo-guide">x</a>`, nil))
}
