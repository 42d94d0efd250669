package models

import "time"

// Article is a unit of publishable content in the corpus. Content is treated
// as immutable by the linking engine; Embedding is populated lazily from the
// embedding cache and is never persisted in SQLite.
type Article struct {
	ID              string    `json:"id"`
	Slug            string    `json:"slug"`
	Title           string    `json:"title"`
	MetaDescription string    `json:"meta_description"`
	FocusKeyword    string    `json:"focus_keyword"`
	Topics          []string  `json:"topics"`
	Content         string    `json:"content"`
	Embedding       []float32 `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Link is a materialized internal link, created when a suggestion is
// accepted. The (source, target, anchor) triple is the upsert key, which is
// what makes accepting a suggestion idempotent.
type Link struct {
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	AnchorText string    `json:"anchor_text"`
	CreatedAt  time.Time `json:"created_at"`
}

