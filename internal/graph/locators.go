// internal/graph/locators.go
package graph

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/api/schemas"
)

var (
	// hexRunRegex matches long hexadecimal runs typical of build hashes.
	hexRunRegex = regexp.MustCompile(`[0-9a-fA-F]{8,}`)
	// digitRunRegex matches long digit runs (auto-increment ids).
	digitRunRegex = regexp.MustCompile(`\d{4,}`)
	// hashSuffixRegex matches a short trailing hash segment such as
	// "btn-x7f3k" or "css-1q2w3e" emitted by CSS-in-JS toolchains.
	hashSuffixRegex = regexp.MustCompile(`[-_][a-z0-9]*\d[a-z0-9]{2,}$`)
	// frameworkIDRegex matches framework-generated ids (ember123, :r5:,
	// radix-:, headlessui-).
	frameworkIDRegex = regexp.MustCompile(`^(ember\d+|:r[0-9a-z]+:|radix-|headlessui-|mui-\d|downshift-)`)
	// validCSSIdent is conservative: ids outside it are targeted through
	// an attribute selector instead of #id.
	validCSSIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
)

// LooksGenerated reports whether an identifier or class name appears
// machine-generated and therefore unstable across re-renders.
func LooksGenerated(s string) bool {
	if s == "" {
		return true
	}
	lower := strings.ToLower(s)
	if frameworkIDRegex.MatchString(lower) {
		return true
	}
	if hexRunRegex.MatchString(s) || digitRunRegex.MatchString(s) {
		return true
	}
	return hashSuffixRegex.MatchString(lower)
}

// semanticClasses filters a class attribute down to names safe to anchor a
// locator on: generated/hashed patterns and utility soup are dropped, and
// at most three names are kept.
func semanticClasses(classAttr string) []string {
	fields := strings.Fields(classAttr)
	var kept []string
	for _, c := range fields {
		if LooksGenerated(c) {
			continue
		}
		if len(c) < 3 {
			continue
		}
		kept = append(kept, c)
		if len(kept) == 3 {
			break
		}
	}
	return kept
}

// attrSelector renders an attribute-equality CSS selector with basic
// escaping of quotes.
func attrSelector(name, value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `'`, `\'`)
	return fmt.Sprintf("[%s='%s']", name, escaped)
}

// isFormControlTag reports whether the tag natively carries a name attr
// the driver can target.
func isFormControlTag(tag string) bool {
	switch tag {
	case "input", "textarea", "select", "button":
		return true
	}
	return false
}

// buildLocators produces the stability-ranked locator list for a view:
// test hooks first, then non-generated ids, form-control names,
// role+aria-label pairs, anchor hrefs, and filtered semantic classes last.
func buildLocators(v View) []schemas.LocatorCandidate {
	var out []schemas.LocatorCandidate
	tag := v.Tag()

	if name := testIDAttrName(v); name != "" {
		out = append(out, schemas.LocatorCandidate{
			Locator: attrSelector(name, v.Attr(name)),
			Tier:    schemas.StabilityHigh,
		})
	}
	if name := uniqueIDAttrName(v); name != "" {
		out = append(out, schemas.LocatorCandidate{
			Locator: attrSelector(name, v.Attr(name)),
			Tier:    schemas.StabilityHigh,
		})
	}

	if id := v.Attr("id"); id != "" && !LooksGenerated(id) {
		locator := "#" + id
		if !validCSSIdent.MatchString(id) {
			locator = attrSelector("id", id)
		}
		out = append(out, schemas.LocatorCandidate{Locator: locator, Tier: schemas.StabilityHigh})
	}

	if name := v.Attr("name"); name != "" && isFormControlTag(tag) {
		out = append(out, schemas.LocatorCandidate{
			Locator: tag + attrSelector("name", name),
			Tier:    schemas.StabilityMedium,
		})
	}

	if label := v.Attr("aria-label"); label != "" {
		role := v.Attr("role")
		if role != "" {
			out = append(out, schemas.LocatorCandidate{
				Locator: attrSelector("role", role) + attrSelector("aria-label", label),
				Tier:    schemas.StabilityMedium,
			})
		} else {
			out = append(out, schemas.LocatorCandidate{
				Locator: tag + attrSelector("aria-label", label),
				Tier:    schemas.StabilityMedium,
			})
		}
	}

	if href := v.Attr("href"); href != "" && tag == "a" {
		out = append(out, schemas.LocatorCandidate{
			Locator: "a" + attrSelector("href", href),
			Tier:    schemas.StabilityMedium,
		})
		if prefix := hrefPrefix(href); prefix != "" && prefix != href {
			out = append(out, schemas.LocatorCandidate{
				Locator: fmt.Sprintf("a[href^='%s']", strings.ReplaceAll(prefix, `'`, `\'`)),
				Tier:    schemas.StabilityLow,
			})
		}
	}

	if classes := semanticClasses(v.Attr("class")); len(classes) > 0 {
		out = append(out, schemas.LocatorCandidate{
			Locator: tag + "." + strings.Join(classes, "."),
			Tier:    schemas.StabilityLow,
		})
	}

	return out
}

// hrefPrefix strips query and fragment so navigation links with volatile
// parameters can still be matched by path.
func hrefPrefix(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// generateUniqueXPath generates a robust XPath for a node, anchoring on the
// nearest non-generated id to keep the expression short and re-render
// stable.
func generateUniqueXPath(node *html.Node) string {
	if node == nil {
		return ""
	}

	var path []string
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}

		tag := strings.ToLower(n.Data)
		if tag == "" {
			continue
		}

		// An id anchors the path and stops the climb.
		if id := htmlquery.SelectAttr(n, "id"); id != "" && !LooksGenerated(id) {
			path = append(path, fmt.Sprintf(`//*[@id='%s']`, id))
			break
		}

		// 1-based index among same-tag siblings.
		index := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.EqualFold(prev.Data, tag) {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, index))
	}

	if len(path) == 0 {
		return "/"
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	xpath := strings.Join(path, "/")
	if !strings.HasPrefix(xpath, "//*[@id=") {
		xpath = "/" + xpath
	}
	return xpath
}
