// internal/session/tracker.go

// Package session tracks cross-step interaction state for one automation
// session: the active form and modal, recent interactions with temporal
// decay, the detected user flow, a short-lived selector cache, and the
// failed-locator set. One Tracker belongs to exactly one session; callers
// serialize access per instance.
package session

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/scorer"
)

const (
	maxRecentElements = 10
	maxRecentSteps    = 20

	// selectorCacheTTL bounds how long a resolved selector is replayed
	// for the same step type and label.
	selectorCacheTTL = 5 * time.Minute
	// proximityWindow is the span over which the temporal bonus decays
	// linearly to zero.
	proximityWindow = 30 * time.Second
	// proximityRetention prunes proximity entries that can no longer
	// contribute.
	proximityRetention = time.Hour
	// failedRetention clears the failed-locator set once the oldest
	// tracked step is this stale.
	failedRetention = 10 * time.Minute

	maxTemporalBonus   = 0.1
	formGroupBonus     = 0.15
	expectedFieldGate  = 0.7
	expectedFieldBonus = 0.1
)

type cachedSelector struct {
	locator    string
	confidence float64
	storedAt   time.Time
}

type stepRecord struct {
	note string
	at   time.Time
}

type recentElement struct {
	signature string
	label     string
	at        time.Time
}

// Tracker is the per-session context store. The zero value is not usable;
// construct with NewTracker.
type Tracker struct {
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time

	currentURL      string
	activeFormGroup string
	activeModal     string

	flow           Flow
	flowConfidence float64
	expectedFields []string
	nextField      int

	recentElements []recentElement
	recentSteps    []stepRecord
	selectorCache  map[string]cachedSelector
	failedLocators map[string]time.Time
	proximity      map[string]time.Time
}

// NewTracker creates an empty tracker for one automation session.
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		logger:         logger.Named("session"),
		now:            time.Now,
		selectorCache:  make(map[string]cachedSelector),
		failedLocators: make(map[string]time.Time),
		proximity:      make(map[string]time.Time),
	}
}

// OnNavigate records a screen change: form-group context resets on a URL
// change, the active modal is re-read from the graph, and flow detection
// reclassifies the screen.
func (t *Tracker) OnNavigate(url string, graph *schemas.PageGraph) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if url != t.currentURL {
		t.activeFormGroup = ""
	}
	t.currentURL = url
	if graph != nil {
		t.activeModal = graph.ActiveModal
	}

	flow, confidence, fields, matched := detectFlow(url, graph)
	if matched {
		if flow != t.flow {
			t.nextField = 0
		}
		t.flow, t.flowConfidence, t.expectedFields = flow, confidence, fields
	} else if t.flow == "" {
		// No prior classification to keep; fall back to navigation at
		// low confidence. A previously detected flow persists until a
		// new rule matches.
		t.flow, t.flowConfidence, t.expectedFields = FlowNavigation, 0.3, nil
	}

	t.logger.Debug("Navigation tracked",
		zap.String("url", url),
		zap.String("flow", string(t.flow)),
		zap.Float64("flow_confidence", t.flowConfidence),
		zap.String("modal", t.activeModal),
	)
}

// OnStepStart appends to the bounded recent-steps list.
func (t *Tracker) OnStepStart(note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recentSteps = append(t.recentSteps, stepRecord{note: note, at: t.now()})
	if len(t.recentSteps) > maxRecentSteps {
		t.recentSteps = t.recentSteps[len(t.recentSteps)-maxRecentSteps:]
	}
}

// OnInteraction records the outcome of acting on an element: successful
// locators enter the selector cache together with the confidence they
// resolved at, failed ones enter the failed set, and the temporal-proximity
// clock for the element restarts either way.
func (t *Tracker) OnInteraction(intent schemas.QueryIntent, element *schemas.Element, locator string, confidence float64, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()

	if element != nil {
		t.recentElements = append(t.recentElements, recentElement{
			signature: element.Signature,
			label:     element.AccessibleName,
			at:        now,
		})
		if len(t.recentElements) > maxRecentElements {
			t.recentElements = t.recentElements[len(t.recentElements)-maxRecentElements:]
		}
		t.proximity[element.Signature] = now
		if element.Context.FormGroup != "" {
			t.activeFormGroup = element.Context.FormGroup
		}
	}

	if success {
		t.selectorCache[cacheKey(intent.Action, intent.Label)] = cachedSelector{locator: locator, confidence: confidence, storedAt: now}
		t.advanceExpectedField(element, intent.Label)
	} else if locator != "" {
		t.failedLocators[locator] = now
	}
}

// advanceExpectedField moves the flow sequence forward when the acted-on
// element matches the field the flow predicted next.
func (t *Tracker) advanceExpectedField(element *schemas.Element, label string) {
	if t.nextField >= len(t.expectedFields) {
		return
	}
	expected := t.expectedFields[t.nextField]
	if scorer.Similarity(label, expected) >= expectedFieldGate ||
		(element != nil && scorer.Similarity(element.AccessibleName, expected) >= expectedFieldGate) {
		t.nextField++
	}
}

// CachedSelector returns the selector cached for this step type and label
// plus the confidence it originally resolved at, if one exists and is
// still fresh.
func (t *Tracker) CachedSelector(action schemas.ActionType, label string) (string, float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := cacheKey(action, label)
	entry, ok := t.selectorCache[key]
	if !ok {
		return "", 0, false
	}
	if t.now().Sub(entry.storedAt) > selectorCacheTTL {
		delete(t.selectorCache, key)
		return "", 0, false
	}
	return entry.locator, entry.confidence, true
}

// Reset clears all session state: flow, caches, failed locators, and the
// recent-activity lists. Used when a caller explicitly starts over, e.g.
// after logging out or switching accounts mid-session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentURL = ""
	t.activeFormGroup = ""
	t.activeModal = ""
	t.flow = ""
	t.flowConfidence = 0
	t.expectedFields = nil
	t.nextField = 0
	t.recentElements = nil
	t.recentSteps = nil
	t.selectorCache = make(map[string]cachedSelector)
	t.failedLocators = make(map[string]time.Time)
	t.proximity = make(map[string]time.Time)
	t.logger.Debug("Session context reset.")
}

// LatestStep returns the most recent step note, or "" when no step has
// been recorded.
func (t *Tracker) LatestStep() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.recentSteps) == 0 {
		return ""
	}
	return t.recentSteps[len(t.recentSteps)-1].note
}

// FailedLocators returns the locators that failed live validation during
// this session, sorted for determinism.
func (t *Tracker) FailedLocators() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.failedLocators))
	for locator := range t.failedLocators {
		out = append(out, locator)
	}
	sort.Strings(out)
	return out
}

// Hints exposes the session state the scorer consumes directly.
func (t *Tracker) Hints() scorer.SessionHints {
	t.mu.Lock()
	defer t.mu.Unlock()
	return scorer.SessionHints{FormGroup: t.activeFormGroup, Modal: t.activeModal}
}

// CurrentFlow returns the flow classification and its confidence.
func (t *Tracker) CurrentFlow() (Flow, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flow, t.flowConfidence
}

// EnhanceMatches adds session bonuses to each match's score in place:
// temporal proximity (up to +0.1, decaying linearly over 30 s), active
// form group agreement (+0.15), and next-expected-field agreement (+0.1).
// The slice is not re-sorted; callers re-sort and re-route afterwards.
func (t *Tracker) EnhanceMatches(matches []schemas.CandidateMatch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()

	var expected string
	if t.nextField < len(t.expectedFields) {
		expected = t.expectedFields[t.nextField]
	}

	for i := range matches {
		e := matches[i].Element
		if e == nil {
			continue
		}
		bonus := 0.0

		if last, ok := t.proximity[e.Signature]; ok {
			if age := now.Sub(last); age >= 0 && age < proximityWindow {
				bonus += maxTemporalBonus * (1 - float64(age)/float64(proximityWindow))
			}
		}
		if t.activeFormGroup != "" && e.Context.FormGroup == t.activeFormGroup {
			bonus += formGroupBonus
		}
		if expected != "" && matchesExpectedField(e, expected) {
			bonus += expectedFieldBonus
		}

		if bonus > 0 {
			matches[i].Score += bonus
			matches[i].Confidence += bonus
			if matches[i].Confidence > 1.0 {
				matches[i].Confidence = 1.0
			}
		}
	}
}

// matchesExpectedField checks the element's identifying text against the
// flow's predicted next field.
func matchesExpectedField(e *schemas.Element, expected string) bool {
	for _, text := range []string{e.AccessibleName, e.Name, e.ID, e.Placeholder, e.Text} {
		if text == "" {
			continue
		}
		if scorer.Similarity(text, expected) >= expectedFieldGate {
			return true
		}
	}
	return false
}

// Cleanup purges stale state: selector-cache entries past their TTL,
// proximity entries past retention, and the failed-locator set once the
// oldest tracked step has gone stale.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()

	for key, entry := range t.selectorCache {
		if now.Sub(entry.storedAt) > selectorCacheTTL {
			delete(t.selectorCache, key)
		}
	}
	for signature, at := range t.proximity {
		if now.Sub(at) > proximityRetention {
			delete(t.proximity, signature)
		}
	}
	if len(t.recentSteps) > 0 && now.Sub(t.recentSteps[0].at) > failedRetention {
		t.failedLocators = make(map[string]time.Time)
	}
}

func cacheKey(action schemas.ActionType, label string) string {
	return string(action) + "|" + scorer.NormalizeLabel(label)
}
