package linking

import (
	"context"
	"errors"
	"time"

	"github.com/crosslink/backend/internal/storage/models"
)

var (
	// ErrNoPlacement means one candidate has no valid insertion point. It is
	// handled per candidate, never surfaced as a batch failure.
	ErrNoPlacement = errors.New("no placement available")

	// ErrCorpusUnavailable means the article repository could not be listed.
	// Without a corpus there is nothing useful to return.
	ErrCorpusUnavailable = errors.New("corpus unavailable")

	ErrSuggestionNotFound = errors.New("suggestion not found")
	ErrInvalidTransition  = errors.New("invalid suggestion state transition")
)

type Status string

const (
	StatusSuggested Status = "suggested"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

type TargetArticle struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Title        string `json:"title"`
	FocusKeyword string `json:"focus_keyword"`
	URL          string `json:"url"`
}

// Placement is a stable address inside the source article body: paragraph,
// sentence, and the character offset within that sentence where the anchor
// should be injected. Context is a short plain-text snippet for human review.
type Placement struct {
	ParagraphIndex int    `json:"paragraph_index"`
	SentenceIndex  int    `json:"sentence_index"`
	Position       int    `json:"position"`
	Context        string `json:"context"`
}

type Suggestion struct {
	ID                 string        `json:"id"`
	SourceArticleID    string        `json:"source_article_id"`
	TargetArticle      TargetArticle `json:"target_article"`
	AnchorText         string        `json:"anchor_text"`
	RelevanceScore     int           `json:"relevance_score"`
	SemanticSimilarity float64       `json:"semantic_similarity"`
	Placement          Placement     `json:"placement"`
	Reasoning          string        `json:"reasoning"`
	Bidirectional      bool          `json:"bidirectional"`
	Status             Status        `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

type ExistingLink struct {
	TargetID   string `json:"target_id"`
	AnchorText string `json:"anchor_text"`
}

type Metrics struct {
	TotalInternalLinks   int    `json:"total_internal_links"`
	OptimalRange         [2]int `json:"optimal_range"`
	OrphanedContent      bool   `json:"orphaned_content"`
	TopicClusterCoverage int    `json:"topic_cluster_coverage"`
}

// Analysis is the full result of one suggestion-generation run.
type Analysis struct {
	CurrentArticleID string         `json:"current_article_id"`
	Suggestions      []Suggestion   `json:"suggestions"`
	ExistingLinks    []ExistingLink `json:"existing_links"`
	Metrics          Metrics        `json:"metrics"`
}

// Store is the persistence collaborator for suggestions, links, and
// rejection markers. All writes are single atomic upserts; the engine holds
// no mutable state between calls.
type Store interface {
	SaveSuggestion(s *Suggestion) error
	GetSuggestion(id string) (*Suggestion, error)
	SetSuggestionStatus(id string, status Status) error
	UpsertLink(l *models.Link) error
	CountLinks(sourceID string) (int, error)
	LinkedTargets(sourceID string) (map[string]bool, error)
	SaveRejection(sourceID, targetID string) error
	DeleteRejection(sourceID, targetID string) error
	RejectedTargets(sourceID string) (map[string]bool, error)
}

// EmbeddingSource hands out the embedding for an article, generating and
// caching it on first use. Failures propagate; the engine never substitutes
// a zero vector.
type EmbeddingSource interface {
	GetOrGenerate(ctx context.Context, articleID, content string) ([]float32, error)
}

// LinkGraph mirrors accepted links into the graph store. The graph is
// derived data: update failures are logged, not fatal.
type LinkGraph interface {
	UpsertArticle(ctx context.Context, id, slug, title string) error
	UpsertLink(ctx context.Context, sourceID, targetID, anchorText string) error
}
