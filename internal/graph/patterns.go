// internal/graph/patterns.go
package graph

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Fallbacks for a zero-value PatternConfig; the config layer defaults
// normally supply these.
var (
	fallbackNavigationContainers = []string{"nav", "aside", "header"}
	fallbackModalSelectors       = []string{
		"[role='dialog']", "[role='alertdialog']", "[aria-modal='true']", "dialog[open]", ".modal.show", ".modal.open",
	}
)

// attrTerm is one [attr] or [attr='value'] requirement.
type attrTerm struct {
	name     string
	value    string
	hasValue bool
}

// simpleSelector is the compiled form of one configured pattern selector.
// The grammar covers the shapes the pattern config uses: an optional tag,
// one #id, repeated .class terms, and repeated [attr] / [attr='value']
// terms. Combinators and pseudo-classes are not supported.
type simpleSelector struct {
	tag     string
	id      string
	classes []string
	attrs   []attrTerm
}

// compileSelectors parses the configured selectors, logging and skipping
// any that use unsupported syntax.
func compileSelectors(raw []string, logger *zap.Logger) []simpleSelector {
	out := make([]simpleSelector, 0, len(raw))
	for _, r := range raw {
		sel, err := parseSimpleSelector(r)
		if err != nil {
			logger.Warn("Skipping unsupported pattern selector", zap.String("selector", r), zap.Error(err))
			continue
		}
		out = append(out, sel)
	}
	return out
}

func parseSimpleSelector(raw string) (simpleSelector, error) {
	var sel simpleSelector
	s := strings.TrimSpace(raw)
	if s == "" {
		return sel, fmt.Errorf("empty selector")
	}

	i := 0
	for i < len(s) && isSelectorIdentByte(s[i]) {
		i++
	}
	sel.tag = strings.ToLower(s[:i])

	for i < len(s) {
		switch s[i] {
		case '#', '.':
			marker := s[i]
			j := i + 1
			for j < len(s) && isSelectorIdentByte(s[j]) {
				j++
			}
			if j == i+1 {
				return sel, fmt.Errorf("empty %q term in %q", string(marker), raw)
			}
			if marker == '#' {
				if sel.id != "" {
					return sel, fmt.Errorf("multiple #id terms in %q", raw)
				}
				sel.id = s[i+1 : j]
			} else {
				sel.classes = append(sel.classes, s[i+1:j])
			}
			i = j
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return sel, fmt.Errorf("unterminated attribute term in %q", raw)
			}
			body := s[i+1 : i+end]
			i += end + 1

			name, value, hasValue := strings.Cut(body, "=")
			term := attrTerm{name: strings.TrimSpace(name)}
			if term.name == "" {
				return sel, fmt.Errorf("empty attribute name in %q", raw)
			}
			if hasValue {
				term.value = strings.Trim(strings.TrimSpace(value), `'"`)
				term.hasValue = true
			}
			sel.attrs = append(sel.attrs, term)
		default:
			return sel, fmt.Errorf("unsupported syntax at %q in %q", string(s[i]), raw)
		}
	}

	if sel.tag == "" && sel.id == "" && len(sel.classes) == 0 && len(sel.attrs) == 0 {
		return sel, fmt.Errorf("selector %q matches nothing", raw)
	}
	return sel, nil
}

func isSelectorIdentByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-' || b == '_'
}

// matches reports whether the element satisfies every term of the selector.
func (s simpleSelector) matches(v View) bool {
	if v.Tag() == "" {
		return false
	}
	if s.tag != "" && v.Tag() != s.tag {
		return false
	}
	if s.id != "" && v.Attr("id") != s.id {
		return false
	}
	if len(s.classes) > 0 {
		have := strings.Fields(v.Attr("class"))
		for _, want := range s.classes {
			found := false
			for _, c := range have {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	for _, a := range s.attrs {
		if !v.HasAttr(a.name) {
			return false
		}
		if a.hasValue && v.Attr(a.name) != a.value {
			return false
		}
	}
	return true
}
