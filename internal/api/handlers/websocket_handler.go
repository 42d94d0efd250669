package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/crosslink/backend/internal/linking"
	"github.com/crosslink/backend/internal/storage/sqlite"
	"github.com/crosslink/backend/pkg/logger"
)

// GeneratorFactory builds a generator bound to a per-connection progress
// callback. Each websocket run gets its own generator so concurrent
// connections never share a progress sink.
type GeneratorFactory func(progress func(stage string, done, total int)) *linking.Generator

type WebSocketHandler struct {
	store        *sqlite.Client
	newGenerator GeneratorFactory
}

func NewWebSocketHandler(store *sqlite.Client, newGenerator GeneratorFactory) *WebSocketHandler {
	return &WebSocketHandler{
		store:        store,
		newGenerator: newGenerator,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			ArticleID string `json:"article_id"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "generate" {
			continue
		}

		if msg.ArticleID == "" {
			h.sendError(c, "article_id is required")
			continue
		}

		logger.Info("Processing WebSocket generation request", zap.String("article_id", msg.ArticleID))

		if err := h.streamGeneration(c, msg.ArticleID); err != nil {
			logger.Error("Failed to stream generation", zap.Error(err))
			h.sendError(c, "Failed to generate suggestions")
		}
	}
}

func (h *WebSocketHandler) streamGeneration(c *websocket.Conn, articleID string) error {
	ctx := context.Background()

	source, err := h.store.GetArticle(articleID)
	if err != nil {
		h.sendError(c, "Article not found")
		return nil
	}

	corpus, err := h.store.ListArticles()
	if err != nil {
		return err
	}

	generator := h.newGenerator(func(stage string, done, total int) {
		c.WriteJSON(map[string]interface{}{
			"type":  "progress",
			"stage": stage,
			"done":  done,
			"total": total,
		})
	})

	analysis, err := generator.Generate(ctx, source, corpus)
	if err != nil {
		return err
	}

	return c.WriteJSON(map[string]interface{}{
		"type":     "complete",
		"analysis": analysis,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
