// internal/graph/view.go
package graph

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// View is a read-only DOM capability: just enough surface to express the
// bounded ancestor walks and descendant queries the builder needs, so the
// traversal logic stays testable without a real browser.
type View interface {
	// Tag returns the lowercase element tag, or "" for non-element nodes.
	Tag() string
	// Attr returns the value of an attribute, or "" when absent.
	Attr(name string) string
	// HasAttr reports whether the attribute is present, even if empty.
	HasAttr(name string) bool
	// Text returns the trimmed inner text of the subtree.
	Text() string
	// Parent returns the parent element view, or nil at the root.
	Parent() View
	// Query returns the first descendant matching the XPath, or nil.
	Query(xpath string) View
	// QueryAll returns every descendant matching the XPath.
	QueryAll(xpath string) []View
}

// nodeView adapts an *html.Node to the View capability.
type nodeView struct {
	node *html.Node
}

// NewView wraps a parsed HTML node. A nil node yields a nil View.
func NewView(node *html.Node) View {
	if node == nil {
		return nil
	}
	return &nodeView{node: node}
}

func (v *nodeView) Tag() string {
	if v.node.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(v.node.Data)
}

func (v *nodeView) Attr(name string) string {
	return htmlquery.SelectAttr(v.node, name)
}

func (v *nodeView) HasAttr(name string) bool {
	for _, a := range v.node.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func (v *nodeView) Text() string {
	return strings.TrimSpace(htmlquery.InnerText(v.node))
}

func (v *nodeView) Parent() View {
	for p := v.node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return &nodeView{node: p}
		}
	}
	return nil
}

func (v *nodeView) Query(xpath string) View {
	found := htmlquery.FindOne(v.node, xpath)
	if found == nil {
		return nil
	}
	return &nodeView{node: found}
}

func (v *nodeView) QueryAll(xpath string) []View {
	nodes := htmlquery.Find(v.node, xpath)
	views := make([]View, len(nodes))
	for i, n := range nodes {
		views[i] = &nodeView{node: n}
	}
	return views
}

// node exposes the underlying html.Node for builder-internal bookkeeping
// (identity maps, sibling walks). Only available on real parsed views.
func (v *nodeView) unwrap() *html.Node { return v.node }

// -- Pure traversal helpers --

// ancestorSearchDepth bounds every upward walk in the builder.
const ancestorSearchDepth = 3

// findAncestor walks up at most maxDepth element levels and returns the
// first ancestor satisfying pred, or nil.
func findAncestor(v View, maxDepth int, pred func(View) bool) View {
	cur := v
	for i := 0; i < maxDepth; i++ {
		cur = cur.Parent()
		if cur == nil {
			return nil
		}
		if pred(cur) {
			return cur
		}
	}
	return nil
}

// anyAncestor is findAncestor without a depth bound (stops at the root).
func anyAncestor(v View, pred func(View) bool) View {
	for cur := v.Parent(); cur != nil; cur = cur.Parent() {
		if pred(cur) {
			return cur
		}
	}
	return nil
}

// hasIdentifyingAttr reports whether a view carries any attribute stable
// enough to anchor a locator.
func hasIdentifyingAttr(v View) bool {
	if testIDAttr(v) != "" || uniqueIDAttr(v) != "" {
		return true
	}
	if id := v.Attr("id"); id != "" && !LooksGenerated(id) {
		return true
	}
	return v.Attr("name") != ""
}

// testIDAttrNames lists the test hook attributes checked in order.
var testIDAttrNames = []string{"data-testid", "data-test-id", "data-test", "data-cy", "data-qa"}

// testIDAttr returns the first populated test hook attribute value.
func testIDAttr(v View) string {
	for _, name := range testIDAttrNames {
		if val := v.Attr(name); val != "" {
			return val
		}
	}
	return ""
}

// testIDAttrName returns the name of the populated test hook attribute.
func testIDAttrName(v View) string {
	for _, name := range testIDAttrNames {
		if v.Attr(name) != "" {
			return name
		}
	}
	return ""
}

// uniqueIDAttrNames lists custom unique-id attributes checked in order.
var uniqueIDAttrNames = []string{"data-unique-id", "data-uid"}

// uniqueIDAttr returns the first populated custom unique-id value.
func uniqueIDAttr(v View) string {
	for _, name := range uniqueIDAttrNames {
		if val := v.Attr(name); val != "" {
			return val
		}
	}
	return ""
}

// uniqueIDAttrName returns the name of the populated unique-id attribute.
func uniqueIDAttrName(v View) string {
	for _, name := range uniqueIDAttrNames {
		if v.Attr(name) != "" {
			return name
		}
	}
	return ""
}
