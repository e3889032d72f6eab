// internal/graph/name.go
package graph

import (
	"fmt"
	"strings"
)

// accessibleName resolves an element's human-facing name following the
// ARIA precedence chain: aria-label, aria-labelledby, an associated
// <label>, an enclosing label up to three ancestor levels, visible button
// text, and finally title/tooltip attributes.
func accessibleName(doc, v View) string {
	if label := strings.TrimSpace(v.Attr("aria-label")); label != "" {
		return label
	}

	if ids := strings.Fields(v.Attr("aria-labelledby")); len(ids) > 0 {
		var parts []string
		for _, id := range ids {
			if ref := doc.Query(fmt.Sprintf(`//*[@id='%s']`, id)); ref != nil {
				if text := ref.Text(); text != "" {
					parts = append(parts, text)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}

	if id := v.Attr("id"); id != "" {
		if label := doc.Query(fmt.Sprintf(`//label[@for='%s']`, id)); label != nil {
			if text := label.Text(); text != "" {
				return text
			}
		}
	}

	if label := findAncestor(v, ancestorSearchDepth, func(a View) bool { return a.Tag() == "label" }); label != nil {
		// Strip the control's own value text where possible: the label's
		// full inner text is usually close enough for matching.
		if text := label.Text(); text != "" {
			return text
		}
	}

	if isButtonLike(v) {
		if text := truncateText(v.Text(), 64); text != "" {
			return text
		}
		if val := v.Attr("value"); val != "" {
			return val
		}
	}

	if title := v.Attr("title"); title != "" {
		return title
	}
	if tooltip := v.Attr("data-tooltip"); tooltip != "" {
		return tooltip
	}
	return ""
}

// isButtonLike reports whether visible text is the element's natural name.
func isButtonLike(v View) bool {
	switch v.Tag() {
	case "button", "a", "summary", "option":
		return true
	case "input":
		switch strings.ToLower(v.Attr("type")) {
		case "submit", "button", "reset":
			return true
		}
	}
	switch v.Attr("role") {
	case "button", "link", "tab", "menuitem":
		return true
	}
	return false
}

// truncateText trims and caps a text fragment.
func truncateText(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
