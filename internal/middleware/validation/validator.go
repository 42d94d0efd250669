package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	sqlInjectionPattern = regexp.MustCompile(`(?i)(union\s+select|insert\s+into|drop\s+table|exec\s*\(|;--)`)
	slugPattern         = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

type Config struct {
	MaxContentSize      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxContentSize == 0 {
		cfg.MaxContentSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		path := c.Path()

		if c.Method() == "POST" && strings.HasSuffix(path, "/api/v1/links/suggestions") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			articleID, _ := req["article_id"].(string)
			_, hasInline := req["article"].(map[string]interface{})
			if strings.TrimSpace(articleID) == "" && !hasInline {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "article_id or an inline article is required",
				})
			}

			if containsSQLInjection(articleID) {
				cfg.Logger.Warn("Potential SQL injection attempt",
					zap.String("ip", c.IP()),
					zap.String("article_id", articleID),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid article_id",
				})
			}
		}

		if c.Method() == "POST" && strings.HasSuffix(path, "/api/v1/articles") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			slug, ok := req["slug"].(string)
			if !ok || slug == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "slug is required and must be a string",
				})
			}
			if !slugPattern.MatchString(slug) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "slug must be lowercase alphanumeric with hyphens",
				})
			}

			title, ok := req["title"].(string)
			if !ok || strings.TrimSpace(title) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "title is required and must be a string",
				})
			}

			content, ok := req["content"].(string)
			if ok && len(content) > cfg.MaxContentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Article content exceeds maximum size",
				})
			}
		}

		return c.Next()
	}
}

func containsSQLInjection(input string) bool {
	return sqlInjectionPattern.MatchString(input)
}
