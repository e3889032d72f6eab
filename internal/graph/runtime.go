// internal/graph/runtime.go
package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xkilldash9x/locus/api/schemas"
)

// runtimeFact carries the live-page facts about one candidate that static
// markup cannot answer: computed style, geometry, and enablement.
type runtimeFact struct {
	Visible       bool `json:"visible"`
	InViewport    bool `json:"inViewport"`
	Enabled       bool `json:"enabled"`
	CursorPointer bool `json:"cursorPointer"`
	ZIndex        int  `json:"zIndex"`
}

// runtimeSnapshot is the result of the single Evaluate round-trip per
// graph build.
type runtimeSnapshot struct {
	// ActiveTab is document.visibilityState === "visible".
	ActiveTab bool `json:"activeTab"`
	// Facts aligns with the submitted XPath list; nil entries mean the
	// XPath resolved to nothing.
	Facts []*runtimeFact `json:"facts"`
}

// runtimeFactsScript resolves each XPath and reports style/geometry facts.
// The in-viewport test accepts partial visibility: any overlap with the
// viewport counts. Read-only by construction.
const runtimeFactsScript = `(() => {
	const xpaths = %s;
	const vh = window.innerHeight || document.documentElement.clientHeight;
	const vw = window.innerWidth || document.documentElement.clientWidth;
	const facts = xpaths.map((xp) => {
		try {
			const el = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
			if (!el || !el.getBoundingClientRect) return null;
			const style = window.getComputedStyle(el);
			const rect = el.getBoundingClientRect();
			const visible = style.display !== 'none' && style.visibility !== 'hidden' &&
				rect.width > 0 && rect.height > 0;
			const inViewport = rect.bottom > 0 && rect.right > 0 && rect.top < vh && rect.left < vw;
			const z = parseInt(style.zIndex, 10);
			return {
				visible: visible,
				inViewport: visible && inViewport,
				enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true',
				cursorPointer: style.cursor === 'pointer',
				zIndex: isNaN(z) ? 0 : z
			};
		} catch (e) {
			return null;
		}
	});
	return { activeTab: document.visibilityState === 'visible', facts: facts };
})()`

// collectRuntimeFacts issues the one Evaluate call of a graph build. Any
// failure is a page access error and aborts the build.
func collectRuntimeFacts(ctx context.Context, page schemas.Page, xpaths []string) (*runtimeSnapshot, error) {
	encoded, err := json.Marshal(xpaths)
	if err != nil {
		return nil, fmt.Errorf("failed to encode xpath list: %w", err)
	}

	var snapshot runtimeSnapshot
	if err := page.Evaluate(ctx, fmt.Sprintf(runtimeFactsScript, encoded), &snapshot); err != nil {
		return nil, fmt.Errorf("runtime facts evaluation failed: %w", err)
	}

	// A driver returning a short list is treated like missing elements.
	for len(snapshot.Facts) < len(xpaths) {
		snapshot.Facts = append(snapshot.Facts, nil)
	}
	return &snapshot, nil
}
