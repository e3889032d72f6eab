// internal/semantic/retriever.go
package semantic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/config"
	"github.com/xkilldash9x/locus/internal/scorer"
)

const (
	defaultBatchSize        = 20
	defaultBatchConcurrency = 3
	defaultCachedIndexes    = 3
	defaultMaxResults       = 10

	// sectionFilterThreshold gates the coarse section pre-filter; below
	// it the query is not clearly anchored to one section.
	sectionFilterThreshold = 0.5

	similarityWeight = 0.65
	keywordWeight    = 0.35
	offActionPenalty = 0.85

	// maxCachedTexts bounds the text-to-vector cache; beyond it the cache
	// is reset wholesale rather than tracked per entry.
	maxCachedTexts = 2048
)

// negativeKeywords mark summaries the retriever drops unless the query
// itself asks for them.
var negativeKeywords = []string{"advert", "advertisement", "sponsored", "promo"}

// Result is one retrieval hit: an element with its similarity score and
// the summary text that matched.
type Result struct {
	Element *schemas.Element
	Score   float64
	Summary string
}

// Retriever owns the embedding indexes for recently seen screens. Safe
// for concurrent use.
type Retriever struct {
	logger   *zap.Logger
	embedder schemas.Embedder
	cfg      config.SemanticConfig

	mu        sync.Mutex
	textCache map[string][]float32
	indexes   map[string]*index
	// order tracks index build order, oldest first, for eviction.
	order []string
}

// NewRetriever wires a retriever over the given embedder. Zero config
// values fall back to the package defaults.
func NewRetriever(embedder schemas.Embedder, cfg config.SemanticConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = defaultBatchConcurrency
	}
	if cfg.CachedFingerprints <= 0 {
		cfg.CachedFingerprints = defaultCachedIndexes
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	return &Retriever{
		logger:    logger.Named("semantic"),
		embedder:  embedder,
		cfg:       cfg,
		textCache: make(map[string][]float32),
		indexes:   make(map[string]*index),
	}
}

// Search embeds the query and returns the closest elements on the screen
// the graph describes, building the screen's index on first sight.
func (r *Retriever) Search(ctx context.Context, graph *schemas.PageGraph, intent schemas.QueryIntent) ([]Result, error) {
	idx, err := r.ensureIndex(ctx, graph)
	if err != nil {
		return nil, err
	}

	queryText := buildQueryText(intent)
	vectors, err := r.embedAll(ctx, []string{queryText})
	if err != nil {
		return nil, err
	}
	queryVec := vectors[queryText]

	candidates := idx.elements
	if section := r.bestSection(idx, queryVec); section != "" {
		if filtered := filterToSection(candidates, section); len(filtered) > 0 {
			candidates = filtered
		}
	}

	queryTokens := tokenizeQuery(queryText)
	results := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		if !passesFilters(cand.element, intent, queryText) {
			continue
		}
		score := similarityWeight*clamp01(cosineSimilarity(queryVec, cand.vector)) +
			keywordWeight*keywordBoost(queryTokens, cand.summary)
		score = rerankForAction(score, cand.element, intent.Action)
		if score <= 0 {
			continue
		}
		results = append(results, Result{Element: cand.element, Score: score, Summary: cand.summary})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Summary < results[j].Summary
	})
	if len(results) > r.cfg.MaxResults {
		results = results[:r.cfg.MaxResults]
	}
	return results, nil
}

// ensureIndex returns the cached index for the graph's fingerprint,
// building and embedding it on a miss.
func (r *Retriever) ensureIndex(ctx context.Context, graph *schemas.PageGraph) (*index, error) {
	key := graph.Fingerprint.Key()

	r.mu.Lock()
	if idx, ok := r.indexes[key]; ok {
		r.mu.Unlock()
		return idx, nil
	}
	r.mu.Unlock()

	idx := buildSkeleton(graph)
	vectors, err := r.embedAll(ctx, idx.texts())
	if err != nil {
		return nil, err
	}
	idx.applyVectors(vectors)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.indexes[key]; ok {
		return existing, nil
	}
	r.indexes[key] = idx
	r.order = append(r.order, key)
	for len(r.order) > r.cfg.CachedFingerprints {
		evicted := r.order[0]
		r.order = r.order[1:]
		delete(r.indexes, evicted)
		r.logger.Debug("Evicted screen index.", zap.String("fingerprint", evicted))
	}
	r.logger.Debug("Built screen index.",
		zap.String("fingerprint", key),
		zap.Int("sections", len(idx.sections)),
		zap.Int("elements", len(idx.elements)))
	return idx, nil
}

// embedAll resolves vectors for the given texts, deduplicating and reusing
// cached embeddings. Each batch fails independently: its texts keep nil
// vectors and the rest of the result stands. Only a total failure, every
// batch erroring with nothing cached, is returned as an error.
func (r *Retriever) embedAll(ctx context.Context, texts []string) (map[string][]float32, error) {
	vectors := make(map[string][]float32, len(texts))
	var missing []string
	seen := make(map[string]struct{}, len(texts))

	r.mu.Lock()
	for _, text := range texts {
		if text == "" {
			continue
		}
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		if vec, ok := r.textCache[text]; ok {
			vectors[text] = vec
		} else {
			missing = append(missing, text)
		}
	}
	r.mu.Unlock()

	if len(missing) == 0 {
		return vectors, nil
	}

	var batches [][]string
	for start := 0; start < len(missing); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batches = append(batches, missing[start:end])
	}

	var (
		resultMu sync.Mutex
		failed   int
		lastErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.BatchConcurrency)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			embedded, err := r.embedder.Embed(gctx, batch)
			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				failed++
				lastErr = err
				r.logger.Warn("Embedding batch failed, continuing without its vectors.",
					zap.Int("texts", len(batch)), zap.Error(err))
				return nil
			}
			for i, text := range batch {
				if i < len(embedded) {
					vectors[text] = embedded[i]
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failed == len(batches) && len(vectors) == 0 {
		return nil, fmt.Errorf("%w: all %d embedding batches failed: %v", schemas.ErrProvider, failed, lastErr)
	}

	r.mu.Lock()
	if len(r.textCache) > maxCachedTexts {
		r.textCache = make(map[string][]float32)
	}
	for text, vec := range vectors {
		r.textCache[text] = vec
	}
	r.mu.Unlock()
	return vectors, nil
}

// bestSection returns the section that anchors the query, or "" when no
// section is a confident match.
func (r *Retriever) bestSection(idx *index, queryVec []float32) string {
	if len(idx.sections) < 2 || len(queryVec) == 0 {
		return ""
	}
	var best string
	bestScore := sectionFilterThreshold
	for _, s := range idx.sections {
		if score := cosineSimilarity(queryVec, s.vector); score >= bestScore {
			best, bestScore = s.name, score
		}
	}
	return best
}

func filterToSection(elements []indexedElement, section string) []indexedElement {
	var out []indexedElement
	for _, e := range elements {
		if e.section == section {
			out = append(out, e)
		}
	}
	return out
}

func buildQueryText(intent schemas.QueryIntent) string {
	parts := []string{intent.Label}
	if intent.RoleHint != "" {
		parts = append(parts, intent.RoleHint)
	}
	if intent.Context != "" {
		parts = append(parts, intent.Context)
	}
	return strings.Join(parts, ", ")
}

func tokenizeQuery(query string) []string {
	var tokens []string
	for _, tok := range strings.Fields(scorer.NormalizeLabel(query)) {
		if len(tok) >= 2 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// keywordBoost rewards lexical overlap on top of the vector distance:
// exact token matches beat prefix matches beat bare substrings. Capped at
// 1.0.
func keywordBoost(queryTokens []string, summary string) float64 {
	normalized := scorer.NormalizeLabel(summary)
	summaryTokens := strings.Fields(normalized)
	var boost float64
	for _, qt := range queryTokens {
		matched := 0.0
		for _, st := range summaryTokens {
			switch {
			case st == qt:
				matched = 0.4
			case matched < 0.25 && strings.HasPrefix(st, qt):
				matched = 0.25
			}
			if matched == 0.4 {
				break
			}
		}
		if matched == 0 && strings.Contains(normalized, qt) {
			matched = 0.15
		}
		boost += matched
	}
	if boost > 1.0 {
		boost = 1.0
	}
	return boost
}

func passesFilters(e *schemas.Element, intent schemas.QueryIntent, queryText string) bool {
	if !e.Visible && e.Interaction != schemas.InteractionHiddenField {
		return false
	}
	if intent.RoleHint != "" && e.Role != "" && e.Role != intent.RoleHint {
		return false
	}
	lowerQuery := strings.ToLower(queryText)
	lowerSummary := strings.ToLower(elementFilterText(e))
	for _, neg := range negativeKeywords {
		if strings.Contains(lowerSummary, neg) && !strings.Contains(lowerQuery, neg) {
			return false
		}
	}
	return true
}

func elementFilterText(e *schemas.Element) string {
	return strings.Join([]string{e.AccessibleName, e.Text, e.ID, e.Classes}, " ")
}

// rerankForAction demotes elements whose interaction mode cannot satisfy
// the requested action without dropping them outright.
func rerankForAction(score float64, e *schemas.Element, action schemas.ActionType) float64 {
	switch action {
	case schemas.ActionClick:
		if !e.Clickable() {
			return score * offActionPenalty
		}
	case schemas.ActionInput:
		if !e.Editable() {
			return score * offActionPenalty
		}
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
