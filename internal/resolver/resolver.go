// internal/resolver/resolver.go

// Package resolver orchestrates one resolution request end to end: memory
// lookups, heuristic scoring with confidence routing, live validation, and
// provider escalation as the last resort.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/config"
	"github.com/xkilldash9x/locus/internal/llmutil"
	"github.com/xkilldash9x/locus/internal/memory"
	"github.com/xkilldash9x/locus/internal/scorer"
	"github.com/xkilldash9x/locus/internal/semantic"
	"github.com/xkilldash9x/locus/internal/session"
)

const (
	defaultMaxExtraAttempts  = 2
	defaultRetryDelay        = 500 * time.Millisecond
	defaultValidationTimeout = 5 * time.Second
)

// GraphBuilder produces a fresh element graph from a live page.
type GraphBuilder interface {
	Build(ctx context.Context, page schemas.Page) (*schemas.PageGraph, error)
}

// Resolver runs the resolution pipeline for one automation session. It is
// not safe for concurrent use; callers serialize requests per session.
type Resolver struct {
	logger  *zap.Logger
	cfg     config.ResolverConfig
	builder GraphBuilder
	scorer  *scorer.Scorer
	tracker *session.Tracker
	store   *memory.Store
	gateway schemas.Gateway
	// retriever is nil when semantic retrieval is disabled.
	retriever *semantic.Retriever
}

// New wires a resolver over its collaborators. The retriever may be nil.
func New(
	logger *zap.Logger,
	cfg config.ResolverConfig,
	builder GraphBuilder,
	sc *scorer.Scorer,
	tracker *session.Tracker,
	store *memory.Store,
	gateway schemas.Gateway,
	retriever *semantic.Retriever,
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxExtraAttempts < 0 {
		cfg.MaxExtraAttempts = defaultMaxExtraAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.ValidationTimeout <= 0 {
		cfg.ValidationTimeout = defaultValidationTimeout
	}
	return &Resolver{
		logger:    logger.Named("resolver"),
		cfg:       cfg,
		builder:   builder,
		scorer:    sc,
		tracker:   tracker,
		store:     store,
		gateway:   gateway,
		retriever: retriever,
	}
}

// Resolve turns a query intent into a verified locator for the given page.
// Only a graph build failure is returned as an error; every other failure
// mode ends in the Unresolved sentinel after attempts exhaust.
func (r *Resolver) Resolve(ctx context.Context, page schemas.Page, intent schemas.QueryIntent) (schemas.Resolution, error) {
	start := time.Now()
	attempts := 0

	g, err := r.builder.Build(ctx, page)
	if err != nil {
		return schemas.Unresolved(attempts), err
	}
	r.tracker.OnNavigate(g.URL, g)
	r.tracker.Cleanup()

	// Memory precedence: static, then learned, then the in-session cache.
	// A validating hit short-circuits scoring and escalation entirely.
	if res, ok := r.tryMemory(ctx, page, g, intent, start); ok {
		return res, nil
	}
	if sel, conf, ok := r.tracker.CachedSelector(intent.Action, intent.Label); ok {
		attempts++
		if r.validate(ctx, page, sel) {
			r.logger.Debug("Session cache hit validated.",
				zap.String("locator", sel), zap.Float64("confidence", conf))
			return r.accept(g, intent, nil, sel, nil, conf, schemas.SourceLearned, "session selector cache", attempts, start), nil
		}
		r.tracker.OnInteraction(intent, nil, sel, 0, false)
	}

	// Heuristic stage: score, enhance with session context, re-sort, route.
	matches, _ := r.scorer.Score(g, intent, r.tracker.Hints())
	r.tracker.EnhanceMatches(matches)
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Locator < matches[j].Locator
	})
	decision := r.scorer.Route(matches)

	switch decision.Route {
	case schemas.RouteDirect, schemas.RouteTryTopTwo:
		for _, cand := range decision.Candidates {
			attempts++
			if r.validate(ctx, page, cand.Locator) {
				return r.accept(g, intent, cand.Element, cand.Locator, fallbackLocators(cand.Element, cand.Locator),
					cand.Confidence, schemas.SourceHeuristic, reasoningSummary(cand), attempts, start), nil
			}
			r.tracker.OnInteraction(intent, cand.Element, cand.Locator, 0, false)
			r.logger.Debug("Candidate failed live validation.",
				zap.String("locator", cand.Locator), zap.Float64("confidence", cand.Confidence))
		}
		// Validation failure demotes to escalation with the same context
		// candidates the router would have carried.
	case schemas.RouteEscalate:
	}

	return r.escalate(ctx, page, g, intent, matches, attempts, start)
}

// tryMemory validates persisted selectors, static entries before learned.
func (r *Resolver) tryMemory(ctx context.Context, page schemas.Page, g *schemas.PageGraph, intent schemas.QueryIntent, start time.Time) (schemas.Resolution, bool) {
	entries := r.store.Lookup(intent.Label, elementTypeFor(intent.Action), g.URL)
	for _, entry := range entries {
		for _, sel := range append([]string{entry.Selector}, entry.Fallbacks...) {
			if !r.validate(ctx, page, sel) {
				r.tracker.OnInteraction(intent, nil, sel, 0, false)
				continue
			}
			source := schemas.SourceStatic
			if entry.Source == schemas.SourceLearnedEntry {
				source = schemas.SourceLearned
				// Reinforce the learned entry instead of re-learning it.
				if err := r.store.AddLearnedSelector(entry); err != nil {
					r.logger.Warn("Failed to reinforce learned selector.", zap.Error(err))
				}
			}
			confidence := entry.Confidence
			if confidence == 0 {
				confidence = 1.0
			}
			r.tracker.OnInteraction(intent, nil, sel, confidence, true)
			r.logger.Debug("Memory hit validated.",
				zap.String("locator", sel), zap.String("source", string(source)))
			return schemas.Resolution{
				Resolved:   true,
				Locator:    sel,
				Confidence: confidence,
				Fallbacks:  entry.Fallbacks,
				Source:     source,
				Attempts:   1,
				Elapsed:    time.Since(start),
			}, true
		}
	}
	return schemas.Resolution{}, false
}

// escalate runs the provider loop: prompt, parse, validate, retry. Each
// attempt carries the cumulative failed-locator list to steer the provider
// away from repeating mistakes.
func (r *Resolver) escalate(ctx context.Context, page schemas.Page, g *schemas.PageGraph, intent schemas.QueryIntent, matches []schemas.CandidateMatch, attempts int, start time.Time) (schemas.Resolution, error) {
	candidates := matches
	if len(candidates) > r.cfg.EscalationCandidates && r.cfg.EscalationCandidates > 0 {
		candidates = candidates[:r.cfg.EscalationCandidates]
	}

	var hits []semantic.Result
	if r.retriever != nil {
		var err error
		hits, err = r.retriever.Search(ctx, g, intent)
		if err != nil {
			r.logger.Warn("Semantic retrieval failed, escalating without it.", zap.Error(err))
		}
	}

	for extra := 0; extra <= r.cfg.MaxExtraAttempts; extra++ {
		if extra > 0 {
			select {
			case <-time.After(r.cfg.RetryDelay):
			case <-ctx.Done():
				return schemas.Unresolved(attempts), nil
			}
		}
		attempts++

		failed := mergeFailed(r.tracker.FailedLocators(), intent.FailedLocators)
		req := buildDisambiguationRequest(g, intent, r.tracker.LatestStep(), failed, candidates, hits)
		resp, err := r.gateway.Execute(ctx, schemas.TaskDisambiguate, req)
		if err != nil {
			r.logger.Warn("Disambiguation call failed.", zap.Int("attempt", attempts), zap.Error(err))
			continue
		}
		result, err := llmutil.ParseJSONResponse[schemas.DisambiguationResult](resp.Content)
		if err != nil {
			r.logger.Warn("Disambiguation response unusable.",
				zap.Int("attempt", attempts),
				zap.Error(fmt.Errorf("%w: %v", schemas.ErrParse, err)))
			continue
		}
		if result.Selector == "" {
			r.logger.Warn("Disambiguation returned no selector.", zap.Int("attempt", attempts))
			continue
		}

		failedSet := make(map[string]struct{}, len(failed))
		for _, f := range failed {
			failedSet[f] = struct{}{}
		}
		for _, sel := range append([]string{result.Selector}, result.Fallbacks...) {
			if sel == "" {
				continue
			}
			if _, seen := failedSet[sel]; seen {
				continue
			}
			if r.validate(ctx, page, sel) {
				element := elementForLocator(g, sel)
				return r.accept(g, intent, element, sel, result.Fallbacks, result.Confidence,
					schemas.SourceLLM, "disambiguation provider", attempts, start), nil
			}
			r.tracker.OnInteraction(intent, nil, sel, 0, false)
		}
	}

	r.logger.Info("Resolution exhausted all attempts.",
		zap.String("label", intent.Label), zap.Int("attempts", attempts))
	return schemas.Unresolved(attempts), nil
}

// accept finalizes a successful resolution: the tracker records the
// interaction and non-memory wins are persisted as learned selectors.
func (r *Resolver) accept(g *schemas.PageGraph, intent schemas.QueryIntent, element *schemas.Element, locator string, fallbacks []string, confidence float64, source schemas.ResolutionSource, reasoning string, attempts int, start time.Time) schemas.Resolution {
	r.tracker.OnInteraction(intent, element, locator, confidence, true)

	if source == schemas.SourceHeuristic || source == schemas.SourceLLM {
		entry := schemas.MemoryEntry{
			Label:       intent.Label,
			ElementType: elementTypeFor(intent.Action),
			Selector:    locator,
			Fallbacks:   fallbacks,
			URLPattern:  urlPattern(g.URL),
			Source:      schemas.SourceLearnedEntry,
			Confidence:  confidence,
			Reasoning:   reasoning,
		}
		if err := r.store.AddLearnedSelector(entry); err != nil {
			r.logger.Warn("Failed to persist learned selector.", zap.Error(err))
		}
	}

	return schemas.Resolution{
		Resolved:   true,
		Locator:    locator,
		Confidence: confidence,
		Fallbacks:  fallbacks,
		Source:     source,
		Attempts:   attempts,
		Elapsed:    time.Since(start),
	}
}

// validate checks that the locator resolves to at least one live element.
func (r *Resolver) validate(ctx context.Context, page schemas.Page, locator string) bool {
	if locator == "" {
		return false
	}
	vctx, cancel := context.WithTimeout(ctx, r.cfg.ValidationTimeout)
	defer cancel()
	count, err := page.LocatorCount(vctx, locator)
	if err != nil {
		r.logger.Debug("Locator validation errored.", zap.String("locator", locator), zap.Error(err))
		return false
	}
	return count > 0
}

// elementTypeFor maps an action to the store's element-type vocabulary,
// which shares the action names plus the "any" wildcard.
func elementTypeFor(action schemas.ActionType) string {
	if action == "" {
		return "any"
	}
	return string(action)
}

// urlPattern reduces a URL to its host+path so a learned selector matches
// the same screen regardless of query parameters.
func urlPattern(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host + u.Path
}

// fallbackLocators lists the element's remaining locators after the one
// already chosen, best first.
func fallbackLocators(e *schemas.Element, chosen string) []string {
	if e == nil {
		return nil
	}
	var out []string
	for _, loc := range e.Locators {
		if loc.Locator != chosen {
			out = append(out, loc.Locator)
		}
	}
	return out
}

func elementForLocator(g *schemas.PageGraph, locator string) *schemas.Element {
	for i := range g.Elements {
		for _, loc := range g.Elements[i].Locators {
			if loc.Locator == locator {
				return &g.Elements[i]
			}
		}
	}
	return nil
}

func reasoningSummary(cand schemas.CandidateMatch) string {
	if len(cand.Reasoning) == 0 {
		return "heuristic match"
	}
	return cand.Reasoning[0]
}

func mergeFailed(tracked, fromIntent []string) []string {
	seen := make(map[string]struct{}, len(tracked)+len(fromIntent))
	var out []string
	for _, lists := range [][]string{tracked, fromIntent} {
		for _, loc := range lists {
			if _, dup := seen[loc]; dup || loc == "" {
				continue
			}
			seen[loc] = struct{}{}
			out = append(out, loc)
		}
	}
	sort.Strings(out)
	return out
}
