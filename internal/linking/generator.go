package linking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crosslink/backend/internal/metrics"
	"github.com/crosslink/backend/internal/storage/models"
	"github.com/crosslink/backend/internal/vector"
	"github.com/crosslink/backend/pkg/logger"
	"github.com/crosslink/backend/pkg/utils"
)

// Options tunes a generation run. A zero value selects the field's default;
// pass a negative MinSimilarity or MinRelevance to disable that floor
// entirely, and a negative TopK or MaxSuggestions to lift that cap.
type Options struct {
	TopK                   int
	MinSimilarity          float64
	MinRelevance           int
	MaxSuggestions         int
	BidirectionalThreshold float64
	OptimalRange           [2]int
	URLPrefix              string

	// Progress, when set, receives per-phase updates (embedding, scoring,
	// placement) during a run. Used by the websocket surface.
	Progress func(stage string, done, total int)
}

func (o *Options) applyDefaults() {
	if o.TopK == 0 {
		o.TopK = 15
	}
	if o.MinSimilarity == 0 {
		o.MinSimilarity = 0.5
	}
	if o.MinRelevance == 0 {
		o.MinRelevance = 50
	}
	if o.MaxSuggestions == 0 {
		o.MaxSuggestions = 5
	}
	if o.BidirectionalThreshold == 0 {
		o.BidirectionalThreshold = 0.8
	}
	if o.OptimalRange == ([2]int{}) {
		o.OptimalRange = [2]int{3, 10}
	}
	if o.URLPrefix == "" {
		o.URLPrefix = "/blog/"
	}
}

// Generator produces ranked, placeable link suggestions for one source
// article against a candidate corpus. A run is pure given its inputs:
// identical corpus, embeddings, and weights yield identical output, and
// suggestion ids are derived from the pair, not the ranking position.
type Generator struct {
	embeddings EmbeddingSource
	store      Store
	scorer     *Scorer
	locator    *Locator
	opts       Options
}

// NewGenerator wires the engine. store may be nil for pure, stateless runs
// (no rejection filtering, no persistence).
func NewGenerator(embeddings EmbeddingSource, store Store, weights Weights, opts Options) *Generator {
	opts.applyDefaults()
	return &Generator{
		embeddings: embeddings,
		store:      store,
		scorer:     NewScorer(weights),
		locator:    NewLocator(),
		opts:       opts,
	}
}

type scoredCandidate struct {
	article      *models.Article
	similarity   float64
	score        int
	sharedTopics int
	keywordMatch bool
	order        int
}

func (g *Generator) Generate(ctx context.Context, source *models.Article, corpus []*models.Article) (*Analysis, error) {
	start := time.Now()

	logger.Info("Generating link suggestions",
		zap.String("article_id", source.ID),
		zap.Int("corpus_size", len(corpus)),
	)

	bySlug := make(map[string]string, len(corpus))
	for _, art := range corpus {
		if art.Slug != "" {
			bySlug[art.Slug] = art.ID
		}
	}

	existing := ExtractExistingLinks(source.Content, bySlug)
	linked := make(map[string]bool, len(existing))
	for _, l := range existing {
		linked[l.TargetID] = true
	}

	rejected := g.rejectedTargets(source.ID)
	accepted := g.acceptedTargets(source.ID)

	srcEmbedding := source.Embedding
	if srcEmbedding == nil {
		var err error
		srcEmbedding, err = g.embeddings.GetOrGenerate(ctx, source.ID, embeddingText(source))
		if err != nil {
			metrics.GenerationTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to embed source article: %w", err)
		}
	}

	candidates, byID, partial := g.collectCandidates(ctx, source, corpus, linked, rejected, accepted)

	matches, err := vector.FindNearest(srcEmbedding, candidates, g.opts.TopK, g.opts.MinSimilarity)
	if err != nil {
		metrics.GenerationTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	g.progress("scoring", 0, len(matches))

	scored := make([]scoredCandidate, 0, len(matches))
	for i, m := range matches {
		cand := byID[m.ID]
		shared := SharedTopics(source.Topics, cand.article.Topics)
		keyword := KeywordMatch(source.Content, source.FocusKeyword, cand.article.Content, cand.article.FocusKeyword)
		score := g.scorer.Score(m.Similarity, shared, keyword)

		if score < g.opts.MinRelevance {
			continue
		}

		scored = append(scored, scoredCandidate{
			article:      cand.article,
			similarity:   m.Similarity,
			score:        score,
			sharedTopics: shared,
			keywordMatch: keyword,
			order:        cand.order,
		})
		g.progress("scoring", i+1, len(matches))
	}

	// Deterministic order: score, then raw similarity, then corpus position.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].similarity != scored[j].similarity {
			return scored[i].similarity > scored[j].similarity
		}
		return scored[i].order < scored[j].order
	})

	if g.opts.MaxSuggestions > 0 && len(scored) > g.opts.MaxSuggestions {
		scored = scored[:g.opts.MaxSuggestions]
	}

	suggestions := g.placeSuggestions(source, scored)
	g.persistSuggestions(suggestions)

	analysis := &Analysis{
		CurrentArticleID: source.ID,
		Suggestions:      suggestions,
		ExistingLinks:    existing,
		Metrics:          g.computeMetrics(source, corpus, existing, suggestions),
	}

	status := "success"
	if partial {
		status = "partial"
	}
	metrics.GenerationTotal.WithLabelValues(status).Inc()
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	metrics.SuggestionsPerRun.Observe(float64(len(suggestions)))

	logger.Info("Link suggestions generated",
		zap.String("article_id", source.ID),
		zap.Int("suggestions", len(suggestions)),
		zap.Int("existing_links", len(existing)),
		zap.Bool("partial", partial),
		zap.Duration("elapsed", time.Since(start)),
	)

	return analysis, nil
}

type candidateRef struct {
	article *models.Article
	order   int
}

// collectCandidates resolves embeddings for every eligible corpus article.
// Cancellation stops further embedding fetches but keeps what is already
// resolved: a partial run is valid and useful. A single failed candidate
// embedding drops that candidate only.
func (g *Generator) collectCandidates(
	ctx context.Context,
	source *models.Article,
	corpus []*models.Article,
	linked, rejected, accepted map[string]bool,
) ([]vector.Candidate, map[string]candidateRef, bool) {
	candidates := make([]vector.Candidate, 0, len(corpus))
	byID := make(map[string]candidateRef, len(corpus))
	partial := false

	for i, art := range corpus {
		if art.ID == source.ID || (art.Slug != "" && art.Slug == source.Slug) {
			continue
		}
		if linked[art.ID] || rejected[art.ID] || accepted[art.ID] {
			continue
		}

		emb := art.Embedding
		if emb == nil {
			if ctx.Err() != nil {
				logger.Warn("Generation cancelled, continuing with resolved candidates",
					zap.String("article_id", source.ID),
					zap.Int("resolved", len(candidates)),
				)
				partial = true
				break
			}

			var err error
			emb, err = g.embeddings.GetOrGenerate(ctx, art.ID, embeddingText(art))
			if err != nil {
				if ctx.Err() != nil {
					partial = true
					break
				}
				logger.Warn("Skipping candidate, embedding unavailable",
					zap.String("candidate_id", art.ID),
					zap.Error(err),
				)
				continue
			}
		}

		candidates = append(candidates, vector.Candidate{ID: art.ID, Embedding: emb})
		byID[art.ID] = candidateRef{article: art, order: i}
		g.progress("embedding", len(candidates), len(corpus))
	}

	return candidates, byID, partial
}

func (g *Generator) placeSuggestions(source *models.Article, scored []scoredCandidate) []Suggestion {
	paragraphs := g.locator.Decompose(source.Content)
	used := make(map[siteKey]bool)
	seenTargets := make(map[string]bool, len(scored))
	now := time.Now().UTC()

	suggestions := make([]Suggestion, 0, len(scored))
	for _, sc := range scored {
		if seenTargets[sc.article.ID] {
			continue
		}

		anchor := g.anchorFor(source, sc)
		placement, finalAnchor, err := g.locator.Locate(paragraphs, anchor, sc.article.FocusKeyword, used)
		if err != nil {
			logger.Warn("Dropping candidate, no placement available",
				zap.String("source_id", source.ID),
				zap.String("target_id", sc.article.ID),
			)
			metrics.PlacementFailures.Inc()
			continue
		}
		seenTargets[sc.article.ID] = true

		metrics.RelevanceScore.Observe(float64(sc.score))

		suggestions = append(suggestions, Suggestion{
			ID:              utils.SuggestionID(source.ID, sc.article.ID),
			SourceArticleID: source.ID,
			TargetArticle: TargetArticle{
				ID:           sc.article.ID,
				Slug:         sc.article.Slug,
				Title:        sc.article.Title,
				FocusKeyword: sc.article.FocusKeyword,
				URL:          g.opts.URLPrefix + sc.article.Slug,
			},
			AnchorText:         finalAnchor,
			RelevanceScore:     sc.score,
			SemanticSimilarity: sc.similarity,
			Placement:          *placement,
			Reasoning:          reasoningFor(sc),
			Bidirectional:      sc.similarity >= g.opts.BidirectionalThreshold,
			Status:             StatusSuggested,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		g.progress("placement", len(suggestions), len(scored))
	}

	return suggestions
}

func (g *Generator) computeMetrics(
	source *models.Article,
	corpus []*models.Article,
	existing []ExistingLink,
	suggestions []Suggestion,
) Metrics {
	covered := make(map[string]bool, len(existing)+len(suggestions))
	for _, l := range existing {
		covered[l.TargetID] = true
	}
	for _, s := range suggestions {
		covered[s.TargetArticle.ID] = true
	}

	related, coveredRelated := 0, 0
	for _, art := range corpus {
		if art.ID == source.ID {
			continue
		}
		if SharedTopics(source.Topics, art.Topics) == 0 {
			continue
		}
		related++
		if covered[art.ID] {
			coveredRelated++
		}
	}

	coverage := 0
	if related > 0 {
		coverage = int(math.Round(100 * float64(coveredRelated) / float64(related)))
	}

	return Metrics{
		TotalInternalLinks:   len(existing),
		OptimalRange:         g.opts.OptimalRange,
		OrphanedContent:      len(existing) == 0,
		TopicClusterCoverage: coverage,
	}
}

// persistSuggestions upserts the run's output so accept/reject by id works
// later. Persistence failures do not fail the batch; the analysis itself is
// still valid.
func (g *Generator) persistSuggestions(suggestions []Suggestion) {
	if g.store == nil {
		return
	}
	for i := range suggestions {
		if err := g.store.SaveSuggestion(&suggestions[i]); err != nil {
			logger.Error("Failed to persist suggestion",
				zap.String("suggestion_id", suggestions[i].ID),
				zap.Error(err),
			)
		}
	}
}

func (g *Generator) rejectedTargets(sourceID string) map[string]bool {
	if g.store == nil {
		return nil
	}
	rejected, err := g.store.RejectedTargets(sourceID)
	if err != nil {
		logger.Warn("Failed to load rejections, none suppressed", zap.Error(err))
		return nil
	}
	return rejected
}

func (g *Generator) acceptedTargets(sourceID string) map[string]bool {
	if g.store == nil {
		return nil
	}
	linked, err := g.store.LinkedTargets(sourceID)
	if err != nil {
		logger.Warn("Failed to load persisted links", zap.Error(err))
		return nil
	}
	return linked
}

// anchorFor prefers the target's focus keyword when the source body already
// mentions it; otherwise the target title becomes the anchor.
func (g *Generator) anchorFor(source *models.Article, sc scoredCandidate) string {
	kw := strings.TrimSpace(sc.article.FocusKeyword)
	if kw != "" && strings.Contains(strings.ToLower(source.Content), strings.ToLower(kw)) {
		return kw
	}
	return sc.article.Title
}

func reasoningFor(sc scoredCandidate) string {
	var parts []string
	if sc.sharedTopics > 0 {
		noun := "topics"
		if sc.sharedTopics == 1 {
			noun = "topic"
		}
		parts = append(parts, fmt.Sprintf("shares %d %s", sc.sharedTopics, noun))
	}
	if sc.keywordMatch {
		parts = append(parts, "focus keyword match")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("semantic similarity %.2f", sc.similarity)
	}
	return fmt.Sprintf("%s (similarity %.2f)", strings.Join(parts, ", "), sc.similarity)
}

func (g *Generator) progress(stage string, done, total int) {
	if g.opts.Progress != nil {
		g.opts.Progress(stage, done, total)
	}
}

func embeddingText(art *models.Article) string {
	var b strings.Builder
	b.WriteString(art.Title)
	if art.MetaDescription != "" {
		b.WriteString("\n\n")
		b.WriteString(art.MetaDescription)
	}
	b.WriteString("\n\n")
	b.WriteString(art.Content)
	return b.String()
}
