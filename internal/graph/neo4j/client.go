package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/crosslink/backend/pkg/circuitbreaker"
	"github.com/crosslink/backend/pkg/logger"
	"github.com/crosslink/backend/pkg/retry"
)

// Client maintains a materialized link graph of articles. Updates are
// best-effort from the accept path; SQLite remains the source of truth.
type Client struct {
	driver      neo4j.DriverWithContext
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type ArticleNode struct {
	ID    string
	Slug  string
	Title string
}

func NewClient(uri, username, password string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

func (c *Client) UpsertArticle(ctx context.Context, id, slug, title string) error {
	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MERGE (a:Article {id: $id})
			SET a.slug = $slug,
			    a.title = $title,
			    a.updated_at = timestamp()
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"id":    id,
			"slug":  slug,
			"title": title,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert article node: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Debug("Article node upserted", zap.String("article_id", id))
	return nil
}

func (c *Client) UpsertLink(ctx context.Context, sourceID, targetID, anchorText string) error {
	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MERGE (s:Article {id: $source_id})
			MERGE (t:Article {id: $target_id})
			MERGE (s)-[r:LINKS_TO]->(t)
			SET r.anchor_text = $anchor_text,
			    r.created_at = timestamp()
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"source_id":   sourceID,
			"target_id":   targetID,
			"anchor_text": anchorText,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert link: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Debug("Link edge upserted",
		zap.String("source_id", sourceID),
		zap.String("target_id", targetID),
	)
	return nil
}

// OrphanedArticles returns articles with no outbound LINKS_TO edges,
// using the same orphan definition as the per-article metrics.
func (c *Client) OrphanedArticles(ctx context.Context) ([]ArticleNode, error) {
	var nodes []ArticleNode

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MATCH (a:Article)
			WHERE NOT (a)-[:LINKS_TO]->()
			RETURN a.id, a.slug, a.title
			ORDER BY a.slug
		`

		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("failed to query orphaned articles: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()
			id, _ := record.Get("a.id")
			slug, _ := record.Get("a.slug")
			title, _ := record.Get("a.title")

			nodes = append(nodes, ArticleNode{
				ID:    id.(string),
				Slug:  slug.(string),
				Title: title.(string),
			})
		}

		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return nodes, nil
}

// InboundCounts returns the inbound link count per article.
func (c *Client) InboundCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MATCH (a:Article)
			OPTIONAL MATCH (other:Article)-[r:LINKS_TO]->(a)
			RETURN a.id, count(r) AS inbound
		`

		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("failed to query inbound counts: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()
			id, _ := record.Get("a.id")
			inbound, _ := record.Get("inbound")

			counts[id.(string)] = int(inbound.(int64))
		}

		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return counts, nil
}
