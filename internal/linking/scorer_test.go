package linking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_WorkedExamples(t *testing.T) {
	s := NewScorer(DefaultWeights())

	tests := []struct {
		name         string
		similarity   float64
		sharedTopics int
		keywordMatch bool
		want         int
	}{
		{"perfect", 1.0, 5, true, 100},
		{"mixed", 0.8, 3, true, 76},
		{"topic cap", 0.0, 10, false, 30},
		{"nothing", 0.0, 0, false, 0},
		{"similarity only", 0.5, 0, false, 30},
		{"keyword only", 0.0, 0, true, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Score(tt.similarity, tt.sharedTopics, tt.keywordMatch))
		})
	}
}

func TestScore_MonotonicInEachInput(t *testing.T) {
	s := NewScorer(DefaultWeights())

	base := s.Score(0.4, 2, false)

	assert.GreaterOrEqual(t, s.Score(0.5, 2, false), base)
	assert.GreaterOrEqual(t, s.Score(0.4, 3, false), base)
	assert.GreaterOrEqual(t, s.Score(0.4, 2, true), base)
}

func TestScore_AlwaysWithinBounds(t *testing.T) {
	s := NewScorer(DefaultWeights())

	for _, sim := range []float64{0, 0.25, 0.5, 0.99, 1.0} {
		for _, topics := range []int{0, 1, 5, 50} {
			for _, kw := range []bool{false, true} {
				got := s.Score(sim, topics, kw)
				assert.GreaterOrEqual(t, got, 0)
				assert.LessOrEqual(t, got, 100)
			}
		}
	}
}

func TestScore_ZeroWeightsFallBackToDefaults(t *testing.T) {
	s := NewScorer(Weights{})
	assert.Equal(t, 100, s.Score(1.0, 5, true))
}

func TestSharedTopics(t *testing.T) {
	assert.Equal(t, 2, SharedTopics([]string{"seo", "ai"}, []string{"seo", "ai", "content"}))
	assert.Equal(t, 0, SharedTopics([]string{"seo"}, []string{"cooking"}))
	assert.Equal(t, 0, SharedTopics(nil, []string{"seo"}))
	assert.Equal(t, 1, SharedTopics([]string{"SEO "}, []string{"seo"}))
	assert.Equal(t, 1, SharedTopics([]string{"seo", "seo"}, []string{"seo"}))
}

func TestKeywordMatch(t *testing.T) {
	assert.True(t, KeywordMatch("the best SEO Tools around", "", "", "seo tools"))
	assert.True(t, KeywordMatch("", "link building", "a guide to Link Building", ""))
	assert.False(t, KeywordMatch("about cooking", "pasta", "about gardening", "tomatoes"))
	assert.False(t, KeywordMatch("anything", "", "anything", ""))
}
