// internal/graph/builder_test.go
package graph

// Tests live inside the package to reach unexported helpers such as
// LooksGenerated and detectComposite.

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/config"
)

// fakePage implements schemas.Page over static markup and a canned
// runtime snapshot.
type fakePage struct {
	content  string
	url      string
	title    string
	snapshot runtimeSnapshot
	failOn   string
}

func (p *fakePage) GetContent(ctx context.Context) (string, error) {
	if p.failOn == "content" {
		return "", assert.AnError
	}
	return p.content, nil
}

func (p *fakePage) GetTitle(ctx context.Context) (string, error) { return p.title, nil }

func (p *fakePage) GetURL(ctx context.Context) (string, error) {
	if p.failOn == "url" {
		return "", assert.AnError
	}
	return p.url, nil
}

func (p *fakePage) Evaluate(ctx context.Context, expression string, out any) error {
	if p.failOn == "evaluate" {
		return assert.AnError
	}
	// Over-provision facts; the builder tolerates a surplus and pads any
	// shortfall itself.
	snapshot := p.snapshot
	for len(snapshot.Facts) < 64 {
		snapshot.Facts = append(snapshot.Facts, &runtimeFact{Visible: true, InViewport: true, Enabled: true})
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *fakePage) LocatorCount(ctx context.Context, selector string) (int, error) { return 1, nil }
func (p *fakePage) IsVisible(ctx context.Context, selector string) (bool, error)   { return true, nil }
func (p *fakePage) IsEnabled(ctx context.Context, selector string) (bool, error)   { return true, nil }

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	return NewBuilder(zap.NewNop(), config.NewDefaultConfig().Patterns)
}

const loginMarkup = `<html><head><title>Sign In</title></head><body>
<header><nav><a href="/home">Home</a><a href="/pricing?ref=nav">Pricing</a></nav></header>
<main>
  <h1>Sign In</h1>
  <form id="login-form">
    <label for="email">E-Mail</label>
    <input id="email" name="email" type="email" placeholder="you@example.com">
    <label>Password <input name="password" type="password"></label>
    <button type="submit" data-testid="login-submit">Log In</button>
  </form>
</main>
</body></html>`

func TestBuildLoginPage(t *testing.T) {
	page := &fakePage{
		content: loginMarkup,
		url:     "https://app.example.com/login",
		title:   "Sign In",
		snapshot: runtimeSnapshot{
			ActiveTab: true,
		},
	}

	graph, err := newTestBuilder(t).Build(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com/login", graph.URL)
	assert.Equal(t, "Sign In", graph.Title)
	assert.Equal(t, []string{"login-form"}, graph.Forms)
	assert.Empty(t, graph.ActiveModal)
	require.NotEmpty(t, graph.Headings)
	assert.Equal(t, "Sign In", graph.Headings[0].Text)
	assert.Equal(t, "Sign In", graph.Fingerprint.HeadingPath)
	assert.NotEmpty(t, graph.Fingerprint.ContentHash)

	byID := func(id string) *schemas.Element {
		for i := range graph.Elements {
			if graph.Elements[i].ID == id {
				return &graph.Elements[i]
			}
		}
		return nil
	}

	email := byID("email")
	require.NotNil(t, email, "email input should be in the graph")
	assert.Equal(t, "input", email.Tag)
	assert.Equal(t, "textbox", email.Role)
	assert.Equal(t, "E-Mail", email.AccessibleName, "label[for] should resolve the accessible name")
	assert.Equal(t, schemas.InteractionEditable, email.Interaction)
	assert.Equal(t, "login-form", email.Context.FormGroup)
	assert.Equal(t, "Sign In", email.Context.SectionHeading)
	require.NotEmpty(t, email.Locators)
	assert.Equal(t, "#email", email.Locators[0].Locator)
	assert.Equal(t, schemas.StabilityHigh, email.Locators[0].Tier)

	var submit *schemas.Element
	for i := range graph.Elements {
		if graph.Elements[i].TestID == "login-submit" {
			submit = &graph.Elements[i]
		}
	}
	require.NotNil(t, submit)
	assert.Equal(t, "Log In", submit.AccessibleName)
	assert.Equal(t, schemas.InteractionClickable, submit.Interaction)
	assert.Equal(t, "[data-testid='login-submit']", submit.Locators[0].Locator)
	assert.Equal(t, schemas.StabilityHigh, submit.Locators[0].Tier)

	var pricing *schemas.Element
	for i := range graph.Elements {
		if strings.HasPrefix(graph.Elements[i].Href, "/pricing") {
			pricing = &graph.Elements[i]
		}
	}
	require.NotNil(t, pricing)
	assert.True(t, pricing.Context.InNavigation)
	// Href prefix locator drops the volatile query string.
	locators := make([]string, 0, len(pricing.Locators))
	for _, l := range pricing.Locators {
		locators = append(locators, l.Locator)
	}
	assert.Contains(t, locators, "a[href^='/pricing']")
}

func TestBuildDetectsActiveModal(t *testing.T) {
	markup := `<html><body>
<div role="dialog" aria-label="Confirm delete">
  <h2>Confirm delete</h2>
  <button id="confirm-btn">Delete</button>
</div>
</body></html>`
	page := &fakePage{content: markup, url: "https://x.test/", title: "x", snapshot: runtimeSnapshot{ActiveTab: true}}

	graph, err := newTestBuilder(t).Build(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, "Confirm delete", graph.ActiveModal)
	for _, e := range graph.Elements {
		if e.ID == "confirm-btn" {
			assert.Equal(t, "Confirm delete", e.Context.Modal)
		}
	}
}

func TestBuildHonorsConfiguredModalSelectors(t *testing.T) {
	markup := `<html><body>
<div class="popup-pane" aria-label="Special offer">
  <button id="claim-btn">Claim</button>
</div>
<div role="dialog" aria-label="Aria dialog"><button id="aria-btn">Ok</button></div>
</body></html>`
	patterns := config.NewDefaultConfig().Patterns
	patterns.ModalSelectors = []string{".popup-pane"}
	builder := NewBuilder(zap.NewNop(), patterns)

	page := &fakePage{content: markup, url: "https://x.test/", title: "x", snapshot: runtimeSnapshot{ActiveTab: true}}
	graph, err := builder.Build(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, "Special offer", graph.ActiveModal,
		"configured selectors replace the built-in modal markers")
	for _, e := range graph.Elements {
		switch e.ID {
		case "claim-btn":
			assert.Equal(t, "Special offer", e.Context.Modal)
		case "aria-btn":
			assert.Empty(t, e.Context.Modal, "the ARIA dialog is no longer a configured modal")
		}
	}
}

func TestBuildHonorsConfiguredNavigationContainers(t *testing.T) {
	markup := `<html><body>
<menu><a id="in-menu" href="/a">A</a></menu>
<nav><a id="in-nav" href="/b">B</a></nav>
</body></html>`
	patterns := config.NewDefaultConfig().Patterns
	patterns.NavigationContainers = []string{"menu"}
	builder := NewBuilder(zap.NewNop(), patterns)

	page := &fakePage{content: markup, url: "https://x.test/", title: "x", snapshot: runtimeSnapshot{ActiveTab: true}}
	graph, err := builder.Build(context.Background(), page)
	require.NoError(t, err)

	for _, e := range graph.Elements {
		switch e.ID {
		case "in-menu":
			assert.True(t, e.Context.InNavigation)
		case "in-nav":
			assert.False(t, e.Context.InNavigation,
				"the built-in container tags give way to the configured list")
		}
	}
}

func TestFingerprintIgnoresScriptAndStyleText(t *testing.T) {
	base := `<html><head><style>.a{color:red}</style></head><body>
<h1>Checkout</h1><p>Order total</p>
<script>window.__bundle="%s";</script>
</body></html>`

	hashFor := func(markup string) string {
		doc, err := html.Parse(strings.NewReader(markup))
		require.NoError(t, err)
		return fingerprint("https://x.test/checkout", &nodeView{node: doc}, nil).ContentHash
	}

	first := hashFor(strings.Replace(base, "%s", "build-1111", 1))
	rehashed := hashFor(strings.Replace(base, "%s", "build-2222", 1))
	assert.Equal(t, first, rehashed, "a re-hashed inline bundle must not change the fingerprint")

	changed := hashFor(strings.Replace(strings.Replace(base, "%s", "build-1111", 1), "Order total", "Payment failed", 1))
	assert.NotEqual(t, first, changed, "rendered text changes still do")
}

func TestBuildCompositeDropdownPromotesContainer(t *testing.T) {
	markup := `<html><body>
<div id="country-select" class="dropdown">
  <input type="hidden" name="country" value="DE">
  <button aria-haspopup="listbox">Germany</button>
</div>
</body></html>`
	page := &fakePage{content: markup, url: "https://x.test/", title: "x", snapshot: runtimeSnapshot{ActiveTab: true}}

	graph, err := newTestBuilder(t).Build(context.Background(), page)
	require.NoError(t, err)

	var container *schemas.Element
	for i := range graph.Elements {
		if graph.Elements[i].ID == "country-select" {
			container = &graph.Elements[i]
		}
	}
	require.NotNil(t, container, "the container, not the trigger, becomes the Element")
	assert.Equal(t, "Germany", container.AccessibleName)
	assert.Equal(t, schemas.InteractionClickable, container.Interaction)

	// The bare trigger button must not appear as its own element.
	for _, e := range graph.Elements {
		assert.NotEqual(t, "button", e.Tag, "popup trigger leaked into the graph")
	}
}

func TestBuildFailsFatallyOnPageErrors(t *testing.T) {
	for _, failOn := range []string{"content", "url", "evaluate"} {
		t.Run(failOn, func(t *testing.T) {
			page := &fakePage{content: loginMarkup, url: "https://x.test/", title: "x", failOn: failOn}
			_, err := newTestBuilder(t).Build(context.Background(), page)
			require.Error(t, err)
			assert.ErrorIs(t, err, schemas.ErrGraphBuild)
		})
	}
}

func TestLooksGenerated(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"email", false},
		{"login-form", false},
		{"save-button", false},
		{"css-1q2w3e", true},
		{"ember123", true},
		{":r5:", true},
		{"c0ffee00aa11", true},
		{"item-48213", true},
		{"", true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, LooksGenerated(tc.in), "LooksGenerated(%q)", tc.in)
		})
	}
}

func TestSemanticClasses(t *testing.T) {
	classes := semanticClasses("btn btn-primary css-8xk2lq submit-button extra fourth")
	assert.Equal(t, []string{"btn", "btn-primary", "submit-button"}, classes,
		"generated names are dropped and at most three are kept")
	assert.Nil(t, semanticClasses("a b css-1a2b3c"), "short and generated names yield nothing")
}

func TestGenerateUniqueXPath(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(
		`<html><body><div id="wrap"><p></p><p><span>x</span></p></div></body></html>`))
	require.NoError(t, err)

	span := NewView(doc).Query("//span").(*nodeView)
	xpath := generateUniqueXPath(span.unwrap())
	assert.Equal(t, `//*[@id='wrap']/p[2]/span[1]`, xpath)
}

func TestAccessibleNameChain(t *testing.T) {
	markup := `<html><body>
<span id="cap">Amount</span>
<input id="a" aria-label="Direct label">
<input id="b" aria-labelledby="cap">
<label for="c">For label</label><input id="c">
<label>Wrapping <input id="d"></label>
<button id="e">Click me</button>
<input id="f" title="Tooltip name">
</body></html>`
	doc, err := html.Parse(strings.NewReader(markup))
	require.NoError(t, err)
	docView := NewView(doc)

	get := func(id string) string {
		v := docView.Query(`//*[@id='` + id + `']`)
		require.NotNil(t, v)
		return accessibleName(docView, v)
	}

	assert.Equal(t, "Direct label", get("a"))
	assert.Equal(t, "Amount", get("b"))
	assert.Equal(t, "For label", get("c"))
	assert.Equal(t, "Wrapping", get("d"))
	assert.Equal(t, "Click me", get("e"))
	assert.Equal(t, "Tooltip name", get("f"))
}
