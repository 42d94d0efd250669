package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crosslink/backend/internal/embedding"
	"github.com/crosslink/backend/internal/linking"
	"github.com/crosslink/backend/internal/metrics"
	"github.com/crosslink/backend/internal/storage/models"
	"github.com/crosslink/backend/internal/storage/sqlite"
	"github.com/crosslink/backend/pkg/logger"
)

type ArticleHandler struct {
	store      *sqlite.Client
	embeddings *embedding.Cache
	graph      linking.LinkGraph
}

func NewArticleHandler(store *sqlite.Client, embeddings *embedding.Cache, graph linking.LinkGraph) *ArticleHandler {
	return &ArticleHandler{
		store:      store,
		embeddings: embeddings,
		graph:      graph,
	}
}

func (h *ArticleHandler) UpsertArticle(c *fiber.Ctx) error {
	var req struct {
		ID              string   `json:"id"`
		Slug            string   `json:"slug"`
		Title           string   `json:"title"`
		MetaDescription string   `json:"meta_description"`
		FocusKeyword    string   `json:"focus_keyword"`
		Topics          []string `json:"topics"`
		Content         string   `json:"content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Slug == "" || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "slug and title are required",
		})
	}

	isNew := req.ID == ""
	if isNew {
		req.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	article := &models.Article{
		ID:              req.ID,
		Slug:            req.Slug,
		Title:           req.Title,
		MetaDescription: req.MetaDescription,
		FocusKeyword:    req.FocusKeyword,
		Topics:          req.Topics,
		Content:         req.Content,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if !isNew {
		if existing, err := h.store.GetArticle(req.ID); err == nil {
			article.CreatedAt = existing.CreatedAt
		}
	}

	if err := h.store.UpsertArticle(article); err != nil {
		logger.Error("Failed to upsert article", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save article",
		})
	}

	// Content changed, so any cached embedding is stale.
	if h.embeddings != nil {
		h.embeddings.Invalidate(c.Context(), article.ID)
	}

	if h.graph != nil {
		if err := h.graph.UpsertArticle(c.Context(), article.ID, article.Slug, article.Title); err != nil {
			logger.Warn("Failed to mirror article into graph", zap.Error(err))
		}
	}

	metrics.ArticlesIngested.Inc()

	status := fiber.StatusOK
	if isNew {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(fiber.Map{
		"id":         article.ID,
		"slug":       article.Slug,
		"title":      article.Title,
		"topics":     article.Topics,
		"created_at": article.CreatedAt.Unix(),
		"updated_at": article.UpdatedAt.Unix(),
	})
}

func (h *ArticleHandler) ListArticles(c *fiber.Ctx) error {
	articles, err := h.store.ListArticles()
	if err != nil {
		logger.Error("Failed to list articles", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list articles",
		})
	}

	summaries := make([]fiber.Map, 0, len(articles))
	for _, a := range articles {
		summaries = append(summaries, fiber.Map{
			"id":            a.ID,
			"slug":          a.Slug,
			"title":         a.Title,
			"focus_keyword": a.FocusKeyword,
			"topics":        a.Topics,
			"updated_at":    a.UpdatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"articles": summaries,
		"count":    len(summaries),
	})
}

func (h *ArticleHandler) GetArticle(c *fiber.Ctx) error {
	id := c.Params("id")

	article, err := h.store.GetArticle(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Article not found",
		})
	}

	return c.JSON(article)
}
