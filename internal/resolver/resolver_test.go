// internal/resolver/resolver_test.go
package resolver

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/config"
	"github.com/xkilldash9x/locus/internal/memory"
	"github.com/xkilldash9x/locus/internal/scorer"
	"github.com/xkilldash9x/locus/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Fakes --

type fakePage struct {
	counts map[string]int
}

func (p *fakePage) GetContent(context.Context) (string, error) { return "", nil }
func (p *fakePage) GetTitle(context.Context) (string, error)   { return "", nil }
func (p *fakePage) GetURL(context.Context) (string, error)     { return "", nil }
func (p *fakePage) Evaluate(context.Context, string, any) error {
	return nil
}
func (p *fakePage) LocatorCount(_ context.Context, selector string) (int, error) {
	return p.counts[selector], nil
}
func (p *fakePage) IsVisible(context.Context, string) (bool, error) { return true, nil }
func (p *fakePage) IsEnabled(context.Context, string) (bool, error) { return true, nil }

type fakeBuilder struct {
	graph *schemas.PageGraph
	err   error
}

func (b *fakeBuilder) Build(context.Context, schemas.Page) (*schemas.PageGraph, error) {
	return b.graph, b.err
}

type fakeGateway struct {
	calls   []schemas.GatewayRequest
	content string
	err     error
}

func (g *fakeGateway) Execute(_ context.Context, _ schemas.TaskKind, req schemas.GatewayRequest) (*schemas.GatewayResponse, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &schemas.GatewayResponse{Content: g.content, Model: "test-model", Provider: "fake"}, nil
}

// -- Fixtures --

func billingGraph() *schemas.PageGraph {
	return &schemas.PageGraph{
		URL:   "https://shop.test/billing",
		Title: "Billing",
		Elements: []schemas.Element{
			{
				Tag:            "input",
				Role:           "textbox",
				AccessibleName: "Work Email",
				ID:             "email",
				Name:           "email",
				Visible:        true,
				InViewport:     true,
				Enabled:        true,
				InActiveTab:    true,
				Interaction:    schemas.InteractionEditable,
				Context:        schemas.RelationalContext{SectionHeading: "Billing"},
				Locators: []schemas.LocatorCandidate{
					{Locator: "#email", Tier: schemas.StabilityHigh},
					{Locator: "input[name='email']", Tier: schemas.StabilityMedium},
				},
				Signature: "input|email",
			},
			{
				Tag:            "button",
				Role:           "button",
				AccessibleName: "Save",
				Text:           "Save",
				Visible:        true,
				InViewport:     true,
				Enabled:        true,
				InActiveTab:    true,
				Interaction:    schemas.InteractionClickable,
				Locators: []schemas.LocatorCandidate{
					{Locator: "button[type='submit']", Tier: schemas.StabilityMedium},
				},
				Signature: "button|save",
			},
		},
		Headings:    []schemas.Heading{{Level: 2, Text: "Billing"}},
		Fingerprint: schemas.ScreenFingerprint{URL: "https://shop.test/billing", ContentHash: "b"},
	}
}

type harness struct {
	resolver *Resolver
	tracker  *session.Tracker
	store    *memory.Store
	gateway  *fakeGateway
}

func newHarness(t *testing.T, builder GraphBuilder, gw *fakeGateway) *harness {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Resolver.RetryDelay = time.Millisecond

	store, err := memory.NewStore(zap.NewNop(), config.StoreConfig{
		Path:       filepath.Join(t.TempDir(), "selectors.json"),
		MaxLearned: 500,
	})
	require.NoError(t, err)

	tracker := session.NewTracker(zap.NewNop())
	sc := scorer.NewScorer(zap.NewNop(), cfg.Scoring, cfg.Patterns, cfg.Resolver.EscalationCandidates)
	r := New(zap.NewNop(), cfg.Resolver, builder, sc, tracker, store, gw, nil)
	return &harness{resolver: r, tracker: tracker, store: store, gateway: gw}
}

// -- Tests --

func TestStaticMemoryShortCircuitsScoring(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, &fakeBuilder{graph: billingGraph()}, gw)
	page := &fakePage{counts: map[string]int{"input[name='email']": 1}}

	res, err := h.resolver.Resolve(context.Background(), page, schemas.QueryIntent{
		Action: schemas.ActionInput,
		Label:  "email",
	})
	require.NoError(t, err)
	require.True(t, res.Resolved)
	assert.Equal(t, schemas.SourceStatic, res.Source)
	// The seed's primary selector fails validation; the fallback wins.
	assert.Equal(t, "input[name='email']", res.Locator)
	assert.Empty(t, gw.calls, "memory hit must not reach the provider")
}

func TestHeuristicResolvesAndLearns(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, &fakeBuilder{graph: billingGraph()}, gw)
	page := &fakePage{counts: map[string]int{"#email": 1}}

	res, err := h.resolver.Resolve(context.Background(), page, schemas.QueryIntent{
		Action:  schemas.ActionInput,
		Label:   "Work Email",
		Context: "billing",
	})
	require.NoError(t, err)
	require.True(t, res.Resolved)
	assert.Equal(t, schemas.SourceHeuristic, res.Source)
	assert.Equal(t, "#email", res.Locator)
	assert.Contains(t, res.Fallbacks, "input[name='email']")
	assert.Empty(t, gw.calls)

	learned := h.store.LearnedEntries()
	require.Len(t, learned, 1)
	assert.Equal(t, "Work Email", learned[0].Label)
	assert.Equal(t, "#email", learned[0].Selector)
	assert.Equal(t, "shop.test/billing", learned[0].URLPattern)
}

func TestSessionCacheHitSkipsScoring(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, &fakeBuilder{graph: billingGraph()}, gw)
	page := &fakePage{counts: map[string]int{"#cached": 1}}

	intent := schemas.QueryIntent{Action: schemas.ActionInput, Label: "Coupon Code"}
	h.tracker.OnInteraction(intent, nil, "#cached", 0.74, true)

	res, err := h.resolver.Resolve(context.Background(), page, intent)
	require.NoError(t, err)
	require.True(t, res.Resolved)
	assert.Equal(t, "#cached", res.Locator)
	assert.Equal(t, schemas.SourceLearned, res.Source)
	assert.Equal(t, 0.74, res.Confidence, "a cache hit carries its original confidence")
	assert.Empty(t, gw.calls)
}

func TestValidationFailureDemotesToEscalation(t *testing.T) {
	gw := &fakeGateway{content: `{"selector":"#provider-pick","confidence":0.9,"fallbacks":[]}`}
	h := newHarness(t, &fakeBuilder{graph: billingGraph()}, gw)
	// Every heuristic locator is stale; only the provider's answer exists.
	page := &fakePage{counts: map[string]int{"#provider-pick": 1}}

	res, err := h.resolver.Resolve(context.Background(), page, schemas.QueryIntent{
		Action:  schemas.ActionInput,
		Label:   "Work Email",
		Context: "billing",
	})
	require.NoError(t, err)
	require.True(t, res.Resolved)
	assert.Equal(t, schemas.SourceLLM, res.Source)
	assert.Equal(t, "#provider-pick", res.Locator)
	assert.InDelta(t, 0.9, res.Confidence, 0.001)

	require.NotEmpty(t, gw.calls)
	prompt := gw.calls[0].Prompt
	assert.Contains(t, prompt, "Failed locators")
	assert.Contains(t, prompt, "#email")
	assert.Contains(t, prompt, `"Work Email"`)
}

func TestExhaustionReturnsUnresolved(t *testing.T) {
	gw := &fakeGateway{content: `{"selector":"#nope","confidence":0.8,"fallbacks":[]}`}
	h := newHarness(t, &fakeBuilder{graph: billingGraph()}, gw)
	page := &fakePage{counts: map[string]int{}}

	res, err := h.resolver.Resolve(context.Background(), page, schemas.QueryIntent{
		Action: schemas.ActionInput,
		Label:  "Billing Reference",
	})
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Empty(t, res.Locator)
	assert.Zero(t, res.Confidence)
	// First attempt plus the two configured retries.
	assert.Len(t, gw.calls, 3)

	// Every tried locator is in the failed set and steers later prompts.
	failed := h.tracker.FailedLocators()
	assert.Contains(t, failed, "#nope")
	lastPrompt := gw.calls[len(gw.calls)-1].Prompt
	assert.Contains(t, lastPrompt, "#nope")
}

func TestProviderErrorsAreRetriedThenExhausted(t *testing.T) {
	gw := &fakeGateway{err: assert.AnError}
	h := newHarness(t, &fakeBuilder{graph: billingGraph()}, gw)
	page := &fakePage{counts: map[string]int{}}

	res, err := h.resolver.Resolve(context.Background(), page, schemas.QueryIntent{
		Action: schemas.ActionClick,
		Label:  "Nonexistent Widget",
	})
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Len(t, gw.calls, 3)
}

func TestGraphBuildErrorSurfaces(t *testing.T) {
	gw := &fakeGateway{}
	h := newHarness(t, &fakeBuilder{err: fmt.Errorf("%w: page crashed", schemas.ErrGraphBuild)}, gw)

	res, err := h.resolver.Resolve(context.Background(), &fakePage{}, schemas.QueryIntent{
		Action: schemas.ActionClick,
		Label:  "Save",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrGraphBuild)
	assert.False(t, res.Resolved)
	assert.Empty(t, gw.calls)
}

func TestPromptDigestListsElements(t *testing.T) {
	req := buildDisambiguationRequest(billingGraph(), schemas.QueryIntent{
		Action: schemas.ActionClick,
		Label:  "Save",
	}, "submit the billing form", []string{"#stale"}, nil, nil)

	assert.True(t, strings.Contains(req.Prompt, "name=\"Work Email\""))
	assert.Contains(t, req.Prompt, "locator=#email")
	assert.Contains(t, req.Prompt, "Current step: submit the billing form")
	assert.Contains(t, req.Prompt, "- #stale")
	assert.Contains(t, req.SystemPrompt, "JSON")
}
