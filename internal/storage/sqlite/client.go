package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/crosslink/backend/internal/linking"
	"github.com/crosslink/backend/internal/storage/models"
	"github.com/crosslink/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		slug TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		meta_description TEXT,
		focus_keyword TEXT,
		topics TEXT,
		content TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_articles_slug ON articles(slug);
	CREATE INDEX IF NOT EXISTS idx_articles_updated ON articles(updated_at);

	CREATE TABLE IF NOT EXISTS link_suggestions (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		target_slug TEXT,
		target_title TEXT,
		target_keyword TEXT,
		target_url TEXT,
		anchor_text TEXT NOT NULL,
		relevance_score INTEGER NOT NULL,
		semantic_similarity REAL NOT NULL,
		paragraph_index INTEGER NOT NULL,
		sentence_index INTEGER NOT NULL,
		char_offset INTEGER NOT NULL,
		context TEXT,
		reasoning TEXT,
		bidirectional INTEGER DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'suggested',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_suggestions_source ON link_suggestions(source_id);
	CREATE INDEX IF NOT EXISTS idx_suggestions_status ON link_suggestions(status);

	CREATE TABLE IF NOT EXISTS links (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		anchor_text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (source_id, target_id, anchor_text)
	);
	CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
	CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);

	CREATE TABLE IF NOT EXISTS rejections (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (source_id, target_id)
	);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) UpsertArticle(a *models.Article) error {
	topicsJSON, _ := json.Marshal(a.Topics)

	query := `
		INSERT INTO articles (id, slug, title, meta_description, focus_keyword, topics, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			title = excluded.title,
			meta_description = excluded.meta_description,
			focus_keyword = excluded.focus_keyword,
			topics = excluded.topics,
			content = excluded.content,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		a.ID,
		a.Slug,
		a.Title,
		a.MetaDescription,
		a.FocusKeyword,
		string(topicsJSON),
		a.Content,
		a.CreatedAt.Unix(),
		a.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert article: %w", err)
	}

	logger.Debug("Article upserted", zap.String("article_id", a.ID), zap.String("slug", a.Slug))
	return nil
}

func (c *Client) GetArticle(id string) (*models.Article, error) {
	query := `SELECT id, slug, title, meta_description, focus_keyword, topics, content, created_at, updated_at
		FROM articles WHERE id = ?`

	return c.scanArticle(c.db.QueryRow(query, id))
}

func (c *Client) ListArticles() ([]*models.Article, error) {
	query := `SELECT id, slug, title, meta_description, focus_keyword, topics, content, created_at, updated_at
		FROM articles ORDER BY created_at ASC, id ASC`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", linking.ErrCorpusUnavailable, err)
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		art, err := c.scanArticleRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", linking.ErrCorpusUnavailable, err)
		}
		articles = append(articles, art)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", linking.ErrCorpusUnavailable, err)
	}
	return articles, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (c *Client) scanArticle(row rowScanner) (*models.Article, error) {
	var a models.Article
	var topicsJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&a.ID,
		&a.Slug,
		&a.Title,
		&a.MetaDescription,
		&a.FocusKeyword,
		&topicsJSON,
		&a.Content,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}

	json.Unmarshal([]byte(topicsJSON), &a.Topics)
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	return &a, nil
}

func (c *Client) scanArticleRow(rows *sql.Rows) (*models.Article, error) {
	return c.scanArticle(rows)
}

// SaveSuggestion upserts a suggestion. On conflict every field is refreshed
// except status and created_at: accept/reject decisions survive
// regeneration of the same source/target pair.
func (c *Client) SaveSuggestion(s *linking.Suggestion) error {
	query := `
		INSERT INTO link_suggestions (
			id, source_id, target_id, target_slug, target_title, target_keyword, target_url,
			anchor_text, relevance_score, semantic_similarity,
			paragraph_index, sentence_index, char_offset, context, reasoning,
			bidirectional, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			target_slug = excluded.target_slug,
			target_title = excluded.target_title,
			target_keyword = excluded.target_keyword,
			target_url = excluded.target_url,
			anchor_text = excluded.anchor_text,
			relevance_score = excluded.relevance_score,
			semantic_similarity = excluded.semantic_similarity,
			paragraph_index = excluded.paragraph_index,
			sentence_index = excluded.sentence_index,
			char_offset = excluded.char_offset,
			context = excluded.context,
			reasoning = excluded.reasoning,
			bidirectional = excluded.bidirectional,
			updated_at = excluded.updated_at
	`

	bidirectional := 0
	if s.Bidirectional {
		bidirectional = 1
	}

	_, err := c.db.Exec(
		query,
		s.ID,
		s.SourceArticleID,
		s.TargetArticle.ID,
		s.TargetArticle.Slug,
		s.TargetArticle.Title,
		s.TargetArticle.FocusKeyword,
		s.TargetArticle.URL,
		s.AnchorText,
		s.RelevanceScore,
		s.SemanticSimilarity,
		s.Placement.ParagraphIndex,
		s.Placement.SentenceIndex,
		s.Placement.Position,
		s.Placement.Context,
		s.Reasoning,
		bidirectional,
		string(s.Status),
		s.CreatedAt.Unix(),
		s.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save suggestion: %w", err)
	}

	return nil
}

func (c *Client) GetSuggestion(id string) (*linking.Suggestion, error) {
	query := `
		SELECT id, source_id, target_id, target_slug, target_title, target_keyword, target_url,
			anchor_text, relevance_score, semantic_similarity,
			paragraph_index, sentence_index, char_offset, context, reasoning,
			bidirectional, status, created_at, updated_at
		FROM link_suggestions WHERE id = ?
	`

	var s linking.Suggestion
	var bidirectional int
	var status string
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&s.ID,
		&s.SourceArticleID,
		&s.TargetArticle.ID,
		&s.TargetArticle.Slug,
		&s.TargetArticle.Title,
		&s.TargetArticle.FocusKeyword,
		&s.TargetArticle.URL,
		&s.AnchorText,
		&s.RelevanceScore,
		&s.SemanticSimilarity,
		&s.Placement.ParagraphIndex,
		&s.Placement.SentenceIndex,
		&s.Placement.Position,
		&s.Placement.Context,
		&s.Reasoning,
		&bidirectional,
		&status,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", linking.ErrSuggestionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion: %w", err)
	}

	s.Bidirectional = bidirectional == 1
	s.Status = linking.Status(status)
	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)

	return &s, nil
}

func (c *Client) ListSuggestions(sourceID string) ([]*linking.Suggestion, error) {
	query := `SELECT id FROM link_suggestions WHERE source_id = ? ORDER BY relevance_score DESC, id ASC`

	rows, err := c.db.Query(query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	suggestions := make([]*linking.Suggestion, 0, len(ids))
	for _, id := range ids {
		s, err := c.GetSuggestion(id)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

func (c *Client) SetSuggestionStatus(id string, status linking.Status) error {
	result, err := c.db.Exec(
		`UPDATE link_suggestions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status),
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update suggestion status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", linking.ErrSuggestionNotFound, id)
	}

	return nil
}

// UpsertLink is the idempotent accept write: re-inserting the same
// (source, target, anchor) triple leaves exactly one record.
func (c *Client) UpsertLink(l *models.Link) error {
	query := `
		INSERT INTO links (source_id, target_id, anchor_text, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, anchor_text) DO NOTHING
	`

	_, err := c.db.Exec(query, l.SourceID, l.TargetID, l.AnchorText, l.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert link: %w", err)
	}

	return nil
}

func (c *Client) CountLinks(sourceID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM links WHERE source_id = ?`, sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return count, nil
}

// OrphanCount reports how many articles have no outbound internal links,
// matching the orphaned_content flag the generation path computes.
func (c *Client) OrphanCount() (int, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM articles a WHERE NOT EXISTS (SELECT 1 FROM links l WHERE l.source_id = a.id)`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count orphaned articles: %w", err)
	}
	return count, nil
}

func (c *Client) InboundLinks(targetID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM links WHERE target_id = ?`, targetID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count inbound links: %w", err)
	}
	return count, nil
}

func (c *Client) LinkedTargets(sourceID string) (map[string]bool, error) {
	rows, err := c.db.Query(`SELECT DISTINCT target_id FROM links WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked targets: %w", err)
	}
	defer rows.Close()

	targets := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		targets[id] = true
	}
	return targets, rows.Err()
}

func (c *Client) SaveRejection(sourceID, targetID string) error {
	query := `INSERT OR IGNORE INTO rejections (source_id, target_id, created_at) VALUES (?, ?, ?)`

	_, err := c.db.Exec(query, sourceID, targetID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save rejection: %w", err)
	}
	return nil
}

func (c *Client) DeleteRejection(sourceID, targetID string) error {
	_, err := c.db.Exec(`DELETE FROM rejections WHERE source_id = ? AND target_id = ?`, sourceID, targetID)
	if err != nil {
		return fmt.Errorf("failed to delete rejection: %w", err)
	}
	return nil
}

func (c *Client) RejectedTargets(sourceID string) (map[string]bool, error) {
	rows, err := c.db.Query(`SELECT target_id FROM rejections WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejections: %w", err)
	}
	defer rows.Close()

	targets := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		targets[id] = true
	}
	return targets, rows.Err()
}
