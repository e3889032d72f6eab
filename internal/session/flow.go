// internal/session/flow.go
package session

import (
	"strings"

	"github.com/xkilldash9x/locus/api/schemas"
)

// Flow classifies the multi-step user journey a screen belongs to.
type Flow string

const (
	FlowLogin        Flow = "login"
	FlowRegistration Flow = "registration"
	FlowCheckout     Flow = "checkout"
	FlowForm         Flow = "form"
	FlowNavigation   Flow = "navigation"
)

// flowRule classifies a screen by keywords over the URL path, the page
// title, and landmark/heading text. Rules are checked in order; the first
// match wins.
type flowRule struct {
	flow       Flow
	confidence float64
	keywords   []string
	// expectedFields is the label sequence the flow predicts, used to
	// bias scoring toward the likely next field.
	expectedFields []string
}

// flowRules is ordered by priority. Registration outranks login because
// signup pages frequently mention "log in" as a secondary link.
var flowRules = []flowRule{
	{
		flow:           FlowRegistration,
		confidence:     0.9,
		keywords:       []string{"register", "signup", "sign-up", "sign up", "create account", "registrieren"},
		expectedFields: []string{"name", "email", "password", "register"},
	},
	{
		flow:           FlowLogin,
		confidence:     0.9,
		keywords:       []string{"login", "log-in", "log in", "signin", "sign-in", "sign in", "anmelden"},
		expectedFields: []string{"email", "password", "login"},
	},
	{
		flow:           FlowCheckout,
		confidence:     0.85,
		keywords:       []string{"checkout", "cart", "payment", "billing", "kasse", "bezahlen"},
		expectedFields: []string{"address", "city", "postal code", "card number", "checkout"},
	},
}

// detectFlow classifies the screen. The generic form rule fires on any
// page carrying a form when no keyword rule matched; matched=false means
// the caller decides between keeping the previous flow and the navigation
// fallback.
func detectFlow(url string, graph *schemas.PageGraph) (Flow, float64, []string, bool) {
	haystack := strings.ToLower(url)
	if graph != nil {
		var sb strings.Builder
		sb.WriteString(haystack)
		sb.WriteByte(' ')
		sb.WriteString(strings.ToLower(graph.Title))
		for _, l := range graph.Landmarks {
			sb.WriteByte(' ')
			sb.WriteString(strings.ToLower(l.Label))
		}
		for _, h := range graph.Headings {
			sb.WriteByte(' ')
			sb.WriteString(strings.ToLower(h.Text))
		}
		haystack = sb.String()
	}

	for _, rule := range flowRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.flow, rule.confidence, rule.expectedFields, true
			}
		}
	}

	if graph != nil && len(graph.Forms) > 0 {
		return FlowForm, 0.6, nil, true
	}
	return "", 0, nil, false
}
