package handlers

import (
	"context"
	"errors"
	"math"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/crosslink/backend/internal/graph/neo4j"
	"github.com/crosslink/backend/internal/linking"
	"github.com/crosslink/backend/internal/metrics"
	"github.com/crosslink/backend/internal/storage/models"
	"github.com/crosslink/backend/internal/storage/sqlite"
	"github.com/crosslink/backend/pkg/logger"
)

// LinkGraphReader is the read side of the materialized link graph. It is
// optional: when absent the orphan report falls back to the SQLite links
// table.
type LinkGraphReader interface {
	OrphanedArticles(ctx context.Context) ([]neo4j.ArticleNode, error)
	InboundCounts(ctx context.Context) (map[string]int, error)
}

type SuggestionHandler struct {
	store        *sqlite.Client
	generator    *linking.Generator
	machine      *linking.Machine
	graph        LinkGraphReader
	optimalRange [2]int
}

func NewSuggestionHandler(store *sqlite.Client, generator *linking.Generator, machine *linking.Machine, graph LinkGraphReader, optimalRange [2]int) *SuggestionHandler {
	return &SuggestionHandler{
		store:        store,
		generator:    generator,
		machine:      machine,
		graph:        graph,
		optimalRange: optimalRange,
	}
}

func (h *SuggestionHandler) GenerateSuggestions(c *fiber.Ctx) error {
	var req struct {
		ArticleID string          `json:"article_id"`
		Article   *models.Article `json:"article"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	var source *models.Article
	switch {
	case req.ArticleID != "":
		var err error
		source, err = h.store.GetArticle(req.ArticleID)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Article not found",
			})
		}
	case req.Article != nil && req.Article.ID != "" && req.Article.Slug != "":
		// Inline draft: analyzed against the corpus without being saved.
		source = req.Article
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "article_id or an inline article with id and slug is required",
		})
	}

	corpus, err := h.store.ListArticles()
	if err != nil {
		logger.Error("Failed to load corpus", zap.Error(err))
		if errors.Is(err, linking.ErrCorpusUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Article corpus unavailable",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load corpus",
		})
	}

	analysis, err := h.generator.Generate(c.Context(), source, corpus)
	if err != nil {
		logger.Error("Failed to generate suggestions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate suggestions",
		})
	}

	return c.JSON(analysis)
}

func (h *SuggestionHandler) ListSuggestions(c *fiber.Ctx) error {
	articleID := c.Query("article_id")
	if articleID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "article_id is required",
		})
	}

	suggestions, err := h.store.ListSuggestions(articleID)
	if err != nil {
		logger.Error("Failed to list suggestions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list suggestions",
		})
	}

	return c.JSON(fiber.Map{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

func (h *SuggestionHandler) AcceptSuggestion(c *fiber.Ctx) error {
	return h.transition(c, "accepted", h.machine.Accept)
}

func (h *SuggestionHandler) RejectSuggestion(c *fiber.Ctx) error {
	return h.transition(c, "rejected", h.machine.Reject)
}

func (h *SuggestionHandler) UnrejectSuggestion(c *fiber.Ctx) error {
	return h.transition(c, "suggested", h.machine.Unreject)
}

func (h *SuggestionHandler) transition(c *fiber.Ctx, resulting string, apply func(ctx context.Context, id string) error) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "suggestion id is required",
		})
	}

	err := apply(c.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, linking.ErrSuggestionNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Suggestion not found",
			})
		case errors.Is(err, linking.ErrInvalidTransition):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		default:
			logger.Error("Failed to apply suggestion transition", zap.String("suggestion_id", id), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update suggestion",
			})
		}
	}

	return c.JSON(fiber.Map{
		"id":     id,
		"status": resulting,
	})
}

// GetLinkMetrics reports link-health numbers for one article without
// running a full generation pass.
func (h *SuggestionHandler) GetLinkMetrics(c *fiber.Ctx) error {
	articleID := c.Params("articleID")

	source, err := h.store.GetArticle(articleID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Article not found",
		})
	}

	outbound, err := h.store.CountLinks(articleID)
	if err != nil {
		logger.Error("Failed to count links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute metrics",
		})
	}

	inbound, err := h.store.InboundLinks(articleID)
	if err != nil {
		logger.Error("Failed to count inbound links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute metrics",
		})
	}

	linked, err := h.store.LinkedTargets(articleID)
	if err != nil {
		logger.Error("Failed to load linked targets", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute metrics",
		})
	}

	corpus, err := h.store.ListArticles()
	if err != nil {
		logger.Error("Failed to load corpus", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Article corpus unavailable",
		})
	}

	related, coveredRelated := 0, 0
	for _, art := range corpus {
		if art.ID == source.ID {
			continue
		}
		if linking.SharedTopics(source.Topics, art.Topics) == 0 {
			continue
		}
		related++
		if linked[art.ID] {
			coveredRelated++
		}
	}

	coverage := 0
	if related > 0 {
		coverage = int(math.Round(100 * float64(coveredRelated) / float64(related)))
	}

	if orphans, err := h.store.OrphanCount(); err == nil {
		metrics.OrphanedArticles.Set(float64(orphans))
	}

	return c.JSON(fiber.Map{
		"article_id":             articleID,
		"total_internal_links":   outbound,
		"inbound_links":          inbound,
		"optimal_range":          h.optimalRange,
		"orphaned_content":       outbound == 0,
		"topic_cluster_coverage": coverage,
	})
}

// GetOrphanReport lists articles with no outbound internal links across the
// whole corpus, with inbound counts for context. The link graph serves the
// report when available; otherwise it is derived from the links table.
func (h *SuggestionHandler) GetOrphanReport(c *fiber.Ctx) error {
	if h.graph != nil {
		orphans, err := h.graph.OrphanedArticles(c.Context())
		if err == nil {
			inbound, err := h.graph.InboundCounts(c.Context())
			if err != nil {
				logger.Warn("Failed to load inbound counts from graph", zap.Error(err))
				inbound = map[string]int{}
			}

			entries := make([]fiber.Map, 0, len(orphans))
			for _, o := range orphans {
				entries = append(entries, fiber.Map{
					"id":            o.ID,
					"slug":          o.Slug,
					"title":         o.Title,
					"inbound_links": inbound[o.ID],
				})
			}

			metrics.OrphanedArticles.Set(float64(len(entries)))
			return c.JSON(fiber.Map{
				"orphans": entries,
				"count":   len(entries),
			})
		}
		logger.Warn("Link graph unavailable, deriving orphan report from store", zap.Error(err))
	}

	corpus, err := h.store.ListArticles()
	if err != nil {
		logger.Error("Failed to load corpus", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Article corpus unavailable",
		})
	}

	entries := make([]fiber.Map, 0)
	for _, art := range corpus {
		outbound, err := h.store.CountLinks(art.ID)
		if err != nil {
			logger.Error("Failed to count links", zap.String("article_id", art.ID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to compute orphan report",
			})
		}
		if outbound > 0 {
			continue
		}

		inbound, err := h.store.InboundLinks(art.ID)
		if err != nil {
			logger.Error("Failed to count inbound links", zap.String("article_id", art.ID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to compute orphan report",
			})
		}

		entries = append(entries, fiber.Map{
			"id":            art.ID,
			"slug":          art.Slug,
			"title":         art.Title,
			"inbound_links": inbound,
		})
	}

	metrics.OrphanedArticles.Set(float64(len(entries)))
	return c.JSON(fiber.Map{
		"orphans": entries,
		"count":   len(entries),
	})
}
