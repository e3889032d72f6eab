// api/schemas/resolution.go
package schemas

import "time"

// ActionType narrows which elements a query may resolve to.
type ActionType string

const (
	ActionClick ActionType = "click"
	ActionInput ActionType = "type"
	ActionAny   ActionType = "any"
)

// QueryIntent is the input to both the heuristic scorer and the
// disambiguation provider.
type QueryIntent struct {
	Action  ActionType `json:"action"`
	Label   string     `json:"label"`
	RoleHint string    `json:"role_hint,omitempty"`
	// Context is free text narrowing the search ("in the billing section").
	Context string `json:"context,omitempty"`
	// FailedLocators lists locators that already failed live validation for
	// this request; they must not be proposed again.
	FailedLocators []string `json:"failed_locators,omitempty"`
}

// CandidateMatch is one scored (element, locator) pair for a query.
// Ephemeral: recomputed per resolution request.
type CandidateMatch struct {
	Element    *Element `json:"element"`
	Locator    string   `json:"locator"`
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	// Reasoning is the human-readable trace of score contributions.
	Reasoning []string `json:"reasoning,omitempty"`
}

// Route is the scorer's confidence-based routing decision.
type Route string

const (
	// RouteDirect accepts the top match without further candidates.
	RouteDirect Route = "direct"
	// RouteTryTopTwo submits the top two matches for live validation.
	RouteTryTopTwo Route = "try_top_two"
	// RouteEscalate hands the request to semantic/LLM resolution.
	RouteEscalate Route = "escalate"
)

// RoutingDecision pairs a route with the candidates it carries: one for
// Direct, two for TryTopTwo, and up to eight context candidates for
// Escalate.
type RoutingDecision struct {
	Route      Route            `json:"route"`
	Candidates []CandidateMatch `json:"candidates"`
}

// ResolutionSource records which stage produced the accepted locator.
type ResolutionSource string

const (
	SourceStatic    ResolutionSource = "static"
	SourceLearned   ResolutionSource = "learned"
	SourceHeuristic ResolutionSource = "heuristic"
	SourceLLM       ResolutionSource = "llm"
)

// Resolution is the terminal outcome of one resolution request. The zero
// value is the Unresolved sentinel: empty locator, zero confidence, no
// fallbacks.
type Resolution struct {
	Resolved   bool             `json:"resolved"`
	Locator    string           `json:"locator"`
	Confidence float64          `json:"confidence"`
	Fallbacks  []string         `json:"fallbacks,omitempty"`
	Source     ResolutionSource `json:"source,omitempty"`
	Attempts   int              `json:"attempts"`
	Elapsed    time.Duration    `json:"elapsed"`
}

// Unresolved returns the explicit empty-result sentinel.
func Unresolved(attempts int) Resolution {
	return Resolution{Attempts: attempts}
}

// DisambiguationResult is the exact response shape expected from the
// disambiguation provider.
type DisambiguationResult struct {
	Selector   string   `json:"selector"`
	Confidence float64  `json:"confidence"`
	Fallbacks  []string `json:"fallbacks"`
}
