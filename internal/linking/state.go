package linking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crosslink/backend/internal/metrics"
	"github.com/crosslink/backend/internal/storage/models"
	"github.com/crosslink/backend/pkg/logger"
	"github.com/crosslink/backend/pkg/utils"
)

// ArticleSource looks up corpus articles by id, used when materializing
// mirrored suggestions.
type ArticleSource interface {
	GetArticle(id string) (*models.Article, error)
}

// Machine applies suggestion lifecycle transitions:
//
//	suggested -> accepted   persists a link record (idempotent upsert)
//	suggested -> rejected   records a rejection marker
//	rejected  -> suggested  explicit un-reject
//
// Accepting an accepted suggestion and rejecting a rejected one are no-ops.
// Any other transition is invalid.
type Machine struct {
	store     Store
	articles  ArticleSource
	graph     LinkGraph
	locator   *Locator
	urlPrefix string
}

func NewMachine(store Store, articles ArticleSource, graph LinkGraph, urlPrefix string) *Machine {
	if urlPrefix == "" {
		urlPrefix = "/blog/"
	}
	return &Machine{
		store:     store,
		articles:  articles,
		graph:     graph,
		locator:   NewLocator(),
		urlPrefix: urlPrefix,
	}
}

func (m *Machine) Accept(ctx context.Context, id string) error {
	s, err := m.store.GetSuggestion(id)
	if err != nil {
		return err
	}

	switch s.Status {
	case StatusAccepted:
		return nil
	case StatusRejected:
		return fmt.Errorf("%w: suggestion %s is rejected, un-reject it first", ErrInvalidTransition, id)
	}

	link := &models.Link{
		SourceID:   s.SourceArticleID,
		TargetID:   s.TargetArticle.ID,
		AnchorText: s.AnchorText,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.UpsertLink(link); err != nil {
		return fmt.Errorf("failed to persist link record: %w", err)
	}

	if err := m.store.SetSuggestionStatus(id, StatusAccepted); err != nil {
		return fmt.Errorf("failed to mark suggestion accepted: %w", err)
	}

	metrics.SuggestionTransitions.WithLabelValues("accept").Inc()

	logger.Info("Suggestion accepted",
		zap.String("suggestion_id", id),
		zap.String("source_id", s.SourceArticleID),
		zap.String("target_id", s.TargetArticle.ID),
	)

	if s.Bidirectional {
		m.enqueueMirror(s)
	}

	// The link graph is derived data; keep the transition even if the
	// graph store is unreachable.
	if m.graph != nil {
		if err := m.graph.UpsertLink(ctx, s.SourceArticleID, s.TargetArticle.ID, s.AnchorText); err != nil {
			logger.Warn("Failed to mirror link into graph", zap.Error(err))
		}
	}

	return nil
}

func (m *Machine) Reject(ctx context.Context, id string) error {
	s, err := m.store.GetSuggestion(id)
	if err != nil {
		return err
	}

	switch s.Status {
	case StatusRejected:
		return nil
	case StatusAccepted:
		return fmt.Errorf("%w: suggestion %s is already accepted", ErrInvalidTransition, id)
	}

	if err := m.store.SetSuggestionStatus(id, StatusRejected); err != nil {
		return fmt.Errorf("failed to mark suggestion rejected: %w", err)
	}
	if err := m.store.SaveRejection(s.SourceArticleID, s.TargetArticle.ID); err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}

	metrics.SuggestionTransitions.WithLabelValues("reject").Inc()

	logger.Info("Suggestion rejected",
		zap.String("suggestion_id", id),
		zap.String("source_id", s.SourceArticleID),
		zap.String("target_id", s.TargetArticle.ID),
	)

	return nil
}

func (m *Machine) Unreject(ctx context.Context, id string) error {
	s, err := m.store.GetSuggestion(id)
	if err != nil {
		return err
	}

	switch s.Status {
	case StatusSuggested:
		return nil
	case StatusAccepted:
		return fmt.Errorf("%w: suggestion %s is accepted, not rejected", ErrInvalidTransition, id)
	}

	if err := m.store.SetSuggestionStatus(id, StatusSuggested); err != nil {
		return fmt.Errorf("failed to reset suggestion: %w", err)
	}
	if err := m.store.DeleteRejection(s.SourceArticleID, s.TargetArticle.ID); err != nil {
		return fmt.Errorf("failed to clear rejection: %w", err)
	}

	metrics.SuggestionTransitions.WithLabelValues("unreject").Inc()

	return nil
}

// enqueueMirror creates the reverse suggestion on the target article. It
// starts at suggested and is never auto-accepted. Best effort: a mirror
// that cannot be placed or persisted does not fail the accept.
func (m *Machine) enqueueMirror(s *Suggestion) {
	if m.articles == nil {
		return
	}

	mirrorID := utils.SuggestionID(s.TargetArticle.ID, s.SourceArticleID)
	if existing, err := m.store.GetSuggestion(mirrorID); err == nil && existing != nil {
		return
	}

	host, err := m.articles.GetArticle(s.TargetArticle.ID)
	if err != nil {
		logger.Warn("Skipping mirror suggestion, target article unavailable",
			zap.String("target_id", s.TargetArticle.ID),
			zap.Error(err),
		)
		return
	}
	back, err := m.articles.GetArticle(s.SourceArticleID)
	if err != nil {
		logger.Warn("Skipping mirror suggestion, source article unavailable",
			zap.String("source_id", s.SourceArticleID),
			zap.Error(err),
		)
		return
	}

	paragraphs := m.locator.Decompose(host.Content)
	used := make(map[siteKey]bool)
	placement, anchor, err := m.locator.Locate(paragraphs, back.Title, back.FocusKeyword, used)
	if err != nil {
		logger.Warn("Skipping mirror suggestion, no placement in target",
			zap.String("target_id", host.ID),
		)
		return
	}

	now := time.Now().UTC()
	mirror := &Suggestion{
		ID:              mirrorID,
		SourceArticleID: host.ID,
		TargetArticle: TargetArticle{
			ID:           back.ID,
			Slug:         back.Slug,
			Title:        back.Title,
			FocusKeyword: back.FocusKeyword,
			URL:          m.urlPrefix + back.Slug,
		},
		AnchorText: anchor,
		// Cosine similarity and the topic/keyword signals are symmetric,
		// so the accepted suggestion's scores carry over.
		RelevanceScore:     s.RelevanceScore,
		SemanticSimilarity: s.SemanticSimilarity,
		Placement:          *placement,
		Reasoning:          "reciprocal of an accepted link",
		Bidirectional:      false,
		Status:             StatusSuggested,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := m.store.SaveSuggestion(mirror); err != nil {
		logger.Warn("Failed to persist mirror suggestion", zap.Error(err))
		return
	}

	logger.Info("Mirror suggestion enqueued",
		zap.String("suggestion_id", mirrorID),
		zap.String("source_id", host.ID),
		zap.String("target_id", back.ID),
	)
}
