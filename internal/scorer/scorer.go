// internal/scorer/scorer.go
package scorer

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/config"
	"github.com/xkilldash9x/locus/internal/graph"
)

// synonymGate is the fuzzy threshold above which a query label is
// considered a member of a synonym set.
const synonymGate = 0.85

// negativeClamp is the floor for the summed negative signals. The
// individual penalties are summed first and clamped after, so stacked
// penalties saturate instead of accumulating.
const negativeClamp = -0.3

// SessionHints carries the slice of session-tracker state the scorer
// consults directly. The tracker's post-hoc bonuses are applied by the
// caller after scoring.
type SessionHints struct {
	// FormGroup is the session's active form group, if any.
	FormGroup string
	// Modal is the modal the session last observed as open.
	Modal string
}

// Scorer ranks graph elements against a query intent. It holds no mutable
// state: for a fixed graph and intent the output is deterministic.
type Scorer struct {
	logger          *zap.Logger
	cfg             config.ScoringConfig
	escalationLimit int

	// buttonTexts and synonyms are pre-normalized at construction.
	buttonTexts []string
	synonyms    [][]string
}

// NewScorer builds a scorer from the scoring configuration and DOM
// pattern table. escalationLimit caps how many candidates travel with an
// escalation decision.
func NewScorer(logger *zap.Logger, cfg config.ScoringConfig, patterns config.PatternConfig, escalationLimit int) *Scorer {
	if escalationLimit <= 0 {
		escalationLimit = 8
	}
	s := &Scorer{
		logger:          logger.Named("scorer"),
		cfg:             cfg,
		escalationLimit: escalationLimit,
	}
	for _, t := range patterns.ButtonTexts {
		if n := normalizeLabel(t); n != "" {
			s.buttonTexts = append(s.buttonTexts, n)
		}
	}
	for key, members := range cfg.Synonyms {
		set := make([]string, 0, len(members)+1)
		if n := normalizeLabel(key); n != "" {
			set = append(set, n)
		}
		for _, m := range members {
			if n := normalizeLabel(m); n != "" {
				set = append(set, n)
			}
		}
		if len(set) > 0 {
			s.synonyms = append(s.synonyms, set)
		}
	}
	// Deterministic synonym resolution regardless of map iteration order.
	sort.Slice(s.synonyms, func(i, j int) bool { return s.synonyms[i][0] < s.synonyms[j][0] })
	return s
}

// query is the per-request precomputation shared by every element score.
type query struct {
	intent      schemas.QueryIntent
	label       string
	context     string
	synonymSet  []string
	hints       SessionHints
	activeModal string
	wantsNav    bool
	submitLike  bool
}

// Score ranks the graph's elements against the intent and derives the
// routing decision. Matches come back sorted descending by score with a
// deterministic locator tiebreak.
func (s *Scorer) Score(g *schemas.PageGraph, intent schemas.QueryIntent, hints SessionHints) ([]schemas.CandidateMatch, schemas.RoutingDecision) {
	q := s.prepare(g, intent, hints)

	var pool []*schemas.Element
	for i := range g.Elements {
		if eligible(&g.Elements[i], intent.Action) {
			pool = append(pool, &g.Elements[i])
		}
	}

	dups := duplicateCounts(pool)

	// Confidence is the raw weighted sum normalized by the attainable
	// positive weight, so a fully saturated match reads as 1.0 and the
	// routing thresholds keep their meaning under weight retuning.
	w := s.cfg.Weights
	positiveWeight := w.RoleMatch + w.LabelSimilarity + w.I18nNormalization + w.StableAttributes + w.ContextBoost
	if positiveWeight <= 0 {
		positiveWeight = 1
	}

	matches := make([]schemas.CandidateMatch, 0, len(pool))
	for _, elem := range pool {
		score, reasoning := s.scoreElement(elem, q, dups)
		conf := score / positiveWeight
		if conf > 1.0 {
			conf = 1.0
		}
		matches = append(matches, schemas.CandidateMatch{
			Element:    elem,
			Locator:    elem.BestLocator(),
			Score:      score,
			Confidence: conf,
			Reasoning:  reasoning,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Locator < matches[j].Locator
	})

	decision := s.Route(matches)
	s.logger.Debug("Scoring complete",
		zap.String("label", intent.Label),
		zap.String("action", string(intent.Action)),
		zap.Int("candidates", len(matches)),
		zap.String("route", string(decision.Route)),
	)
	return matches, decision
}

func (s *Scorer) prepare(g *schemas.PageGraph, intent schemas.QueryIntent, hints SessionHints) query {
	q := query{
		intent:      intent,
		label:       normalizeLabel(intent.Label),
		context:     normalizeLabel(intent.Context),
		hints:       hints,
		activeModal: hints.Modal,
	}
	if q.activeModal == "" {
		q.activeModal = g.ActiveModal
	}
	q.synonymSet = s.resolveSynonyms(q.label)
	q.wantsNav = mentionsNavigation(q.label) || mentionsNavigation(q.context)
	q.submitLike = s.isSubmitLike(q.label)
	return q
}

// resolveSynonyms returns the first synonym set the query label belongs
// to, judged against the fuzzy gate.
func (s *Scorer) resolveSynonyms(label string) []string {
	if label == "" {
		return nil
	}
	for _, set := range s.synonyms {
		for _, member := range set {
			if similarity(label, member) >= synonymGate {
				return set
			}
		}
	}
	return nil
}

func (s *Scorer) isSubmitLike(label string) bool {
	for _, t := range s.buttonTexts {
		if similarity(label, t) >= synonymGate {
			return true
		}
	}
	return false
}

var navigationWords = map[string]bool{
	"nav": true, "navigation": true, "menu": true, "sidebar": true,
	"header": true, "tab": true, "breadcrumb": true,
}

func mentionsNavigation(normalized string) bool {
	for _, tok := range tokenize(normalized) {
		if navigationWords[tok] {
			return true
		}
	}
	return false
}

// eligible applies the action-type filter. Visibility is the hard gate;
// enablement and tab activity act through the penalty term instead so a
// disabled-but-best match still surfaces for escalation context.
func eligible(e *schemas.Element, action schemas.ActionType) bool {
	if e.Interaction == schemas.InteractionHiddenField {
		return false
	}
	if !e.Visible {
		return false
	}
	switch action {
	case schemas.ActionInput:
		// Labels and legends count as label-association candidates: their
		// accessible name leads to the control they describe.
		return e.Editable() || e.Tag == "label" || e.Tag == "legend"
	case schemas.ActionClick:
		return e.Clickable()
	default:
		return true
	}
}

// duplicateCounts counts, per element, how many other pool members share
// its text and section. Keyed by normalized text + section heading.
func duplicateCounts(pool []*schemas.Element) map[*schemas.Element]int {
	groups := make(map[string][]*schemas.Element)
	for _, e := range pool {
		text := normalizeLabel(e.Text)
		if text == "" {
			text = normalizeLabel(e.AccessibleName)
		}
		if text == "" {
			continue
		}
		key := text + "\x00" + e.Context.SectionHeading
		groups[key] = append(groups[key], e)
	}
	counts := make(map[*schemas.Element]int)
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		for _, e := range members {
			counts[e] = len(members) - 1
		}
	}
	return counts
}

// scoreElement computes the additive weighted sum for one element. Each
// positive term is capped at 1.0 before weighting; the negative term is
// summed then clamped.
func (s *Scorer) scoreElement(e *schemas.Element, q query, dups map[*schemas.Element]int) (float64, []string) {
	var reasoning []string
	w := s.cfg.Weights

	role := roleScore(e, q)
	if role > 0 {
		reasoning = append(reasoning, fmt.Sprintf("role match %.2f", role))
	}

	label, field := labelScore(e, q.label)
	if label > 0 {
		reasoning = append(reasoning, fmt.Sprintf("label similarity %.2f via %s", label, field))
	}

	syn := synonymScore(e, q.synonymSet)
	if syn > 0 {
		reasoning = append(reasoning, fmt.Sprintf("synonym match %.2f", syn))
	}

	stable := stableAttributeScore(e)
	if stable > 0 {
		reasoning = append(reasoning, fmt.Sprintf("stable attributes %.2f", stable))
	}

	ctx := contextScore(e, q)
	if ctx > 0 {
		reasoning = append(reasoning, fmt.Sprintf("context boost %.2f", ctx))
	}

	neg := negativeScore(e, dups[e])
	if neg < 0 {
		reasoning = append(reasoning, fmt.Sprintf("penalties %.2f", neg))
	}

	total := w.RoleMatch*role +
		w.LabelSimilarity*label +
		w.I18nNormalization*syn +
		w.StableAttributes*stable +
		w.ContextBoost*ctx +
		w.NegativeSignals*neg
	if total < 0 {
		total = 0
	}
	return total, reasoning
}

func roleScore(e *schemas.Element, q query) float64 {
	if q.intent.RoleHint != "" {
		if e.Role == q.intent.RoleHint {
			return 1.0
		}
	}
	switch q.intent.Action {
	case schemas.ActionClick:
		switch e.Role {
		case "button", "link", "tab", "menuitem", "checkbox", "radio":
			return 0.9
		}
		if e.Clickable() {
			return 0.6
		}
	case schemas.ActionInput:
		switch e.Role {
		case "textbox", "combobox", "searchbox", "slider":
			return 0.9
		}
		if e.Editable() {
			return 0.7
		}
		if e.Tag == "label" || e.Tag == "legend" {
			return 0.6
		}
	default:
		if e.Clickable() || e.Editable() {
			return 0.6
		}
	}
	return 0
}

// labelScore takes the best similarity across every descriptive field and
// reports which field won, for the reasoning trace.
func labelScore(e *schemas.Element, label string) (float64, string) {
	if label == "" {
		return 0, ""
	}
	best, bestField := 0.0, ""
	consider := func(field, raw string) {
		if raw == "" {
			return
		}
		if sim := similarity(normalizeLabel(raw), label); sim > best {
			best, bestField = sim, field
		}
	}

	consider("accessible name", e.AccessibleName)
	consider("title", e.Title)
	consider("placeholder", e.Placeholder)
	consider("text", e.Text)
	consider("name", e.Name)
	consider("test id", e.TestID)
	consider("unique id", e.UniqueID)
	consider("id", e.ID)
	for _, seg := range hrefSegments(e.Href) {
		consider("href", seg)
	}
	return best, bestField
}

// hrefSegments splits an href into path segments worth matching against.
func hrefSegments(href string) []string {
	if href == "" {
		return nil
	}
	href = strings.SplitN(href, "?", 2)[0]
	href = strings.SplitN(href, "#", 2)[0]
	var out []string
	for _, seg := range strings.Split(href, "/") {
		if seg != "" && !strings.Contains(seg, ":") {
			out = append(out, seg)
		}
	}
	return out
}

// synonymScore scores the element's descriptive text against every member
// of the query's resolved synonym set.
func synonymScore(e *schemas.Element, set []string) float64 {
	if len(set) == 0 {
		return 0
	}
	fields := []string{e.AccessibleName, e.Text, e.Placeholder, e.Name, e.ID}
	best := 0.0
	for _, raw := range fields {
		if raw == "" {
			continue
		}
		normalized := normalizeLabel(raw)
		for _, member := range set {
			if sim := similarity(normalized, member); sim > best {
				best = sim
			}
		}
	}
	return best
}

// stableAttributeScore grants additive credit for trustworthy identifiers
// and the element's own locator tier, capped at 1.0.
func stableAttributeScore(e *schemas.Element) float64 {
	credit := 0.0
	if e.TestID != "" {
		credit += 0.45
	}
	if e.UniqueID != "" {
		credit += 0.4
	}
	if e.ID != "" && !graph.LooksGenerated(e.ID) {
		credit += 0.4
	}
	if e.Name != "" && isFormControlTag(e.Tag) {
		credit += 0.3
	}
	if e.Href != "" {
		credit += 0.15
	}
	if len(e.Locators) > 0 {
		switch e.Locators[0].Tier {
		case schemas.StabilityHigh:
			credit += 0.3
		case schemas.StabilityMedium:
			credit += 0.15
		case schemas.StabilityLow:
			credit += 0.05
		}
	}
	if credit > 1.0 {
		credit = 1.0
	}
	return credit
}

func isFormControlTag(tag string) bool {
	switch tag {
	case "input", "textarea", "select", "button":
		return true
	}
	return false
}

// contextScore rewards agreement with the session and query surroundings,
// capped at 1.0.
func contextScore(e *schemas.Element, q query) float64 {
	boost := 0.0
	if q.hints.FormGroup != "" && e.Context.FormGroup == q.hints.FormGroup {
		boost += 0.6
	}
	if q.activeModal != "" && e.Context.Modal == q.activeModal {
		boost += 0.4
	}
	if q.context != "" && e.Context.SectionHeading != "" &&
		strings.Contains(normalizeLabel(e.Context.SectionHeading), q.context) {
		boost += 0.3
	}
	if q.wantsNav && e.Context.InNavigation {
		boost += 0.6
	}
	if q.submitLike && isPrimaryButton(e) {
		boost += 0.5
	}
	if boost > 1.0 {
		boost = 1.0
	}
	return boost
}

// isPrimaryButton matches the markup shape of a form's main action.
func isPrimaryButton(e *schemas.Element) bool {
	if e.Tag == "button" && (e.InputType == "" || e.InputType == "submit") {
		return true
	}
	if e.Tag == "input" && e.InputType == "submit" {
		return true
	}
	return e.Role == "button" && e.Context.FormGroup != ""
}

// badClassWords flags decorative or throwaway containers.
var badClassWords = map[string]bool{
	"demo": true, "example": true, "footer": true, "ad": true, "ads": true,
	"advert": true, "advertisement": true, "promo": true, "banner": true,
}

// negativeScore sums every applicable penalty and clamps the total. The
// sum-then-clamp order is load-bearing: three or more duplicates saturate
// the clamp instead of stacking further.
func negativeScore(e *schemas.Element, duplicates int) float64 {
	penalty := 0.0
	if !e.InViewport {
		penalty -= 0.3
	}
	if !e.Enabled {
		penalty -= 0.5
	}
	if !e.InActiveTab {
		penalty -= 0.4
	}
	for _, class := range strings.Fields(strings.ToLower(e.Classes)) {
		if badClassWords[class] {
			penalty -= 0.2
			break
		}
	}
	penalty -= 0.15 * float64(duplicates)

	if penalty < negativeClamp {
		penalty = negativeClamp
	}
	return penalty
}

// Route applies the threshold policy to the sorted matches. Thresholds
// are judged against normalized confidence, not the raw weighted sum. A
// top confidence under the llm_fallback floor escalates unconditionally,
// even when it would otherwise clear the direct or try-multiple bands.
func (s *Scorer) Route(matches []schemas.CandidateMatch) schemas.RoutingDecision {
	if len(matches) == 0 {
		return schemas.RoutingDecision{Route: schemas.RouteEscalate}
	}
	top := matches[0].Confidence
	if top < s.cfg.Thresholds.LLMFallback {
		return s.escalateDecision(matches)
	}
	switch {
	case top >= s.cfg.Thresholds.Direct:
		return schemas.RoutingDecision{Route: schemas.RouteDirect, Candidates: matches[:1]}
	case top >= s.cfg.Thresholds.TryMultiple:
		n := 2
		if len(matches) < n {
			n = len(matches)
		}
		return schemas.RoutingDecision{Route: schemas.RouteTryTopTwo, Candidates: matches[:n]}
	default:
		return s.escalateDecision(matches)
	}
}

// escalateDecision carries the best-scored matches as provider context.
func (s *Scorer) escalateDecision(matches []schemas.CandidateMatch) schemas.RoutingDecision {
	n := s.escalationLimit
	if len(matches) < n {
		n = len(matches)
	}
	return schemas.RoutingDecision{Route: schemas.RouteEscalate, Candidates: matches[:n]}
}
