package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch means two embeddings of different length were
// compared. That is always a caller bug, never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type Candidate struct {
	ID        string
	Embedding []float32
}

type Match struct {
	ID         string
	Similarity float64
}

// CosineSimilarity computes dot(a,b) / (|a|*|b|), clamped to [0, 1].
// Negative cosine is treated as zero relevance: downstream scoring assumes
// non-negative similarity and real text embeddings rarely produce
// meaningful negative correlation. Zero-magnitude vectors yield 0, not NaN.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0, nil
	}
	if sim > 1 {
		return 1, nil
	}
	return sim, nil
}

// FindNearest ranks candidates by cosine similarity to target, drops those
// below minSimilarity, and returns at most topK matches in descending order.
// Ties keep the original candidate order. An empty candidate set returns an
// empty result, not an error; a candidate with a mismatched embedding length
// fails the whole call. Candidates without an embedding are skipped.
func FindNearest(target []float32, candidates []Candidate, topK int, minSimilarity float64) ([]Match, error) {
	matches := make([]Match, 0, len(candidates))

	for _, c := range candidates {
		if c.Embedding == nil {
			continue
		}
		sim, err := CosineSimilarity(target, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
		if sim < minSimilarity {
			continue
		}
		matches = append(matches, Match{ID: c.ID, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}

	return matches, nil
}
