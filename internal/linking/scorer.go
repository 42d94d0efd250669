package linking

import (
	"math"
	"strings"
)

// Weights are the relevance-score policy constants. Each signal has a known
// maximum contribution and the terms are capped independently before
// summing, so the score is order-independent and testable signal by signal.
type Weights struct {
	SemanticMax  int
	TopicPoints  int
	TopicMax     int
	KeywordBonus int
}

func DefaultWeights() Weights {
	return Weights{
		SemanticMax:  60,
		TopicPoints:  6,
		TopicMax:     30,
		KeywordBonus: 10,
	}
}

type Scorer struct {
	w Weights
}

func NewScorer(w Weights) *Scorer {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &Scorer{w: w}
}

// Score combines semantic similarity (0..1), shared-topic count, and a
// keyword-match flag into an integer 0..100 under the default weights.
func (s *Scorer) Score(similarity float64, sharedTopics int, keywordMatch bool) int {
	semantic := int(math.Round(similarity * float64(s.w.SemanticMax)))
	if semantic > s.w.SemanticMax {
		semantic = s.w.SemanticMax
	}
	if semantic < 0 {
		semantic = 0
	}

	topic := sharedTopics * s.w.TopicPoints
	if topic > s.w.TopicMax {
		topic = s.w.TopicMax
	}
	if topic < 0 {
		topic = 0
	}

	keyword := 0
	if keywordMatch {
		keyword = s.w.KeywordBonus
	}

	total := semantic + topic + keyword

	// The sum is bounded by construction; keep the sanity clamp anyway.
	max := s.w.SemanticMax + s.w.TopicMax + s.w.KeywordBonus
	if total > max {
		total = max
	}
	return total
}

// SharedTopics counts the case-insensitive intersection of two topic lists.
func SharedTopics(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[strings.ToLower(strings.TrimSpace(t))] = true
	}

	count := 0
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		key := strings.ToLower(strings.TrimSpace(t))
		if set[key] && !seen[key] {
			count++
			seen[key] = true
		}
	}
	return count
}

// KeywordMatch reports whether the target's focus keyword appears in the
// source content, or the source's in the target content, case-insensitively.
func KeywordMatch(sourceContent, sourceKeyword, targetContent, targetKeyword string) bool {
	src := strings.ToLower(sourceContent)
	tgt := strings.ToLower(targetContent)

	if kw := strings.ToLower(strings.TrimSpace(targetKeyword)); kw != "" && strings.Contains(src, kw) {
		return true
	}
	if kw := strings.ToLower(strings.TrimSpace(sourceKeyword)); kw != "" && strings.Contains(tgt, kw) {
		return true
	}
	return false
}
