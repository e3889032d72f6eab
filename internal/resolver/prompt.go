// internal/resolver/prompt.go
package resolver

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/semantic"
)

const disambiguationSystemPrompt = `You are a web automation selector expert. Given a page digest and a target element description, choose the single best CSS selector or XPath for the target.

Respond with ONLY a JSON object of this exact shape:
{"selector": "<best locator>", "confidence": <0.0-1.0>, "fallbacks": ["<alternative locator>", ...]}

Rules:
- Prefer stable attributes: test ids, unique ids, non-generated ids, names.
- Never propose a locator from the "Failed locators" list.
- If no element plausibly matches, return an empty selector with confidence 0.`

// maxPromptElements bounds the page digest so prompts stay within model
// context limits on dense pages.
const maxPromptElements = 40

// buildDisambiguationRequest renders the escalation prompt: the intent,
// a cleaned page digest, session context, prior failures, and the top
// heuristic and semantic candidates.
func buildDisambiguationRequest(g *schemas.PageGraph, intent schemas.QueryIntent, stepNote string, failed []string, candidates []schemas.CandidateMatch, hits []semantic.Result) schemas.GatewayRequest {
	var b strings.Builder

	fmt.Fprintf(&b, "Target: %q (action: %s)\n", intent.Label, intent.Action)
	if intent.RoleHint != "" {
		fmt.Fprintf(&b, "Role hint: %s\n", intent.RoleHint)
	}
	if intent.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", intent.Context)
	}
	if stepNote != "" {
		fmt.Fprintf(&b, "Current step: %s\n", stepNote)
	}

	fmt.Fprintf(&b, "\nPage: %s\nTitle: %s\n", g.URL, g.Title)
	if g.ActiveModal != "" {
		fmt.Fprintf(&b, "Open modal: %s\n", g.ActiveModal)
	}
	if len(g.Headings) > 0 {
		b.WriteString("Headings:")
		for _, h := range g.Headings {
			fmt.Fprintf(&b, " [h%d] %s", h.Level, h.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nInteractive elements:\n")
	for i := range g.Elements {
		if i >= maxPromptElements {
			fmt.Fprintf(&b, "... and %d more\n", len(g.Elements)-maxPromptElements)
			break
		}
		writeElementLine(&b, &g.Elements[i])
	}

	if len(candidates) > 0 {
		b.WriteString("\nTop heuristic candidates (descending score):\n")
		for _, cand := range candidates {
			fmt.Fprintf(&b, "- %s (score %.2f)", cand.Locator, cand.Score)
			if cand.Element != nil && cand.Element.AccessibleName != "" {
				fmt.Fprintf(&b, " %q", cand.Element.AccessibleName)
			}
			b.WriteString("\n")
		}
	}

	if len(hits) > 0 {
		b.WriteString("\nSemantically similar elements:\n")
		for _, hit := range hits {
			fmt.Fprintf(&b, "- %s (similarity %.2f): %s\n", hit.Element.BestLocator(), hit.Score, hit.Summary)
		}
	}

	if len(failed) > 0 {
		b.WriteString("\nFailed locators (do NOT propose these):\n")
		for _, loc := range failed {
			fmt.Fprintf(&b, "- %s\n", loc)
		}
	}

	return schemas.GatewayRequest{
		Prompt:       b.String(),
		SystemPrompt: disambiguationSystemPrompt,
	}
}

func writeElementLine(b *strings.Builder, e *schemas.Element) {
	fmt.Fprintf(b, "- <%s>", e.Tag)
	if e.Role != "" {
		fmt.Fprintf(b, " role=%s", e.Role)
	}
	if e.AccessibleName != "" {
		fmt.Fprintf(b, " name=%q", e.AccessibleName)
	} else if e.Text != "" {
		fmt.Fprintf(b, " text=%q", e.Text)
	}
	if e.Context.SectionHeading != "" {
		fmt.Fprintf(b, " section=%q", e.Context.SectionHeading)
	}
	if loc := e.BestLocator(); loc != "" {
		fmt.Fprintf(b, " locator=%s", loc)
	}
	if !e.Visible {
		b.WriteString(" hidden")
	}
	if !e.Enabled {
		b.WriteString(" disabled")
	}
	b.WriteString("\n")
}
