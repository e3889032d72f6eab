// internal/graph/builder.go
package graph

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/config"
)

// Builder turns a live page into a structured element graph in one pass.
// It reads the page; it never mutates it.
type Builder struct {
	logger         *zap.Logger
	patterns       config.PatternConfig
	modalSelectors []simpleSelector
	navTags        map[string]bool
}

// NewBuilder creates a graph builder using the configured DOM query
// patterns.
func NewBuilder(logger *zap.Logger, patterns config.PatternConfig) *Builder {
	log := logger.Named("graph")

	modals := patterns.ModalSelectors
	if len(modals) == 0 {
		modals = fallbackModalSelectors
	}
	navContainers := patterns.NavigationContainers
	if len(navContainers) == 0 {
		navContainers = fallbackNavigationContainers
	}
	navTags := make(map[string]bool, len(navContainers))
	for _, tag := range navContainers {
		navTags[strings.ToLower(tag)] = true
	}

	return &Builder{
		logger:         log,
		patterns:       patterns,
		modalSelectors: compileSelectors(modals, log),
		navTags:        navTags,
	}
}

// candidate pairs a discovered node with its generated unique XPath and,
// when the node was promoted from a popup trigger, its composite widget.
type candidate struct {
	view      *nodeView
	xpath     string
	composite *compositeWidget
}

// Build produces a full snapshot of the current screen. A page access
// error aborts the whole build; partial graphs are never returned.
func (b *Builder) Build(ctx context.Context, page schemas.Page) (*schemas.PageGraph, error) {
	content, err := page.GetContent(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading page content: %v", schemas.ErrGraphBuild, err)
	}
	pageURL, err := page.GetURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading page url: %v", schemas.ErrGraphBuild, err)
	}
	title, err := page.GetTitle(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading page title: %v", schemas.ErrGraphBuild, err)
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing markup: %v", schemas.ErrGraphBuild, err)
	}
	docView := &nodeView{node: doc}

	candidates := b.discover(docView)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", schemas.ErrGraphBuild, ctx.Err())
	}

	xpaths := make([]string, len(candidates))
	for i, c := range candidates {
		xpaths[i] = c.xpath
	}
	snapshot, err := collectRuntimeFacts(ctx, page, xpaths)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schemas.ErrGraphBuild, err)
	}

	headings := collectHeadings(docView)
	headingByNode := precedingHeadings(doc)
	landmarks := b.collectLandmarks(docView)
	forms := collectForms(docView)
	activeModal := b.detectActiveModal(docView)

	graph := &schemas.PageGraph{
		URL:         pageURL,
		Title:       title,
		ActiveModal: activeModal,
		Forms:       forms,
		Landmarks:   landmarks,
		Headings:    headings,
		Fingerprint: fingerprint(pageURL, docView, headings),
	}

	for i, c := range candidates {
		elem := b.assemble(docView, c, snapshot.Facts[i], snapshot.ActiveTab, headingByNode)
		if elem == nil {
			continue
		}
		graph.Elements = append(graph.Elements, *elem)
	}

	b.logger.Debug("Graph build complete",
		zap.String("url", pageURL),
		zap.Int("elements", len(graph.Elements)),
		zap.Int("forms", len(forms)),
		zap.Bool("modal_active", activeModal != ""),
	)
	return graph, nil
}

// identifierQuery finds nodes worth keeping purely because they carry a
// stable identifier attribute.
const identifierQuery = `//*[@data-testid or @data-test-id or @data-test or @data-cy or @data-qa or @data-unique-id or @data-uid]`

// discover runs the candidate queries, promotes composite widgets to their
// containers, and deduplicates by node identity.
func (b *Builder) discover(doc *nodeView) []candidate {
	seen := make(map[*html.Node]bool)
	var out []candidate

	add := func(v View, comp *compositeWidget) {
		nv, ok := v.(*nodeView)
		if !ok || nv.node.Type != html.ElementNode {
			return
		}
		tag := nv.Tag()
		if tag == "html" || tag == "body" || tag == "script" || tag == "style" {
			return
		}
		if seen[nv.node] {
			return
		}
		seen[nv.node] = true
		out = append(out, candidate{view: nv, xpath: generateUniqueXPath(nv.node), composite: comp})
	}

	for _, query := range []string{b.patterns.InteractiveButtonQuery, b.patterns.InteractiveInputQuery, identifierQuery} {
		for _, v := range doc.QueryAll(query) {
			// A popup trigger is replaced by its composite container when
			// one exists; the inner node never becomes an Element.
			if isPopupTrigger(v) {
				if widget := detectComposite(v); widget != nil {
					add(widget.Container, widget)
					continue
				}
			}
			add(v, nil)
		}
	}
	return out
}

// assemble converts one candidate plus its runtime facts into an Element.
// Candidates whose XPath resolved to nothing live are carried with
// conservative flags rather than dropped: the graph is a full snapshot.
func (b *Builder) assemble(doc *nodeView, c candidate, fact *runtimeFact, activeTab bool, headingByNode map[*html.Node]string) *schemas.Element {
	v := c.view

	elem := &schemas.Element{
		Tag:         v.Tag(),
		Role:        elementRole(v),
		TestID:      testIDAttr(v),
		UniqueID:    uniqueIDAttr(v),
		ID:          v.Attr("id"),
		Name:        v.Attr("name"),
		Text:        truncateText(v.Text(), 64),
		Placeholder: v.Attr("placeholder"),
		Title:       v.Attr("title"),
		Href:        v.Attr("href"),
		InputType:   strings.ToLower(v.Attr("type")),
		Classes:     v.Attr("class"),
		InActiveTab: activeTab,
		Locators:    buildLocators(v),
	}

	elem.AccessibleName = accessibleName(doc, v)
	if c.composite != nil {
		if elem.AccessibleName == "" {
			elem.AccessibleName = c.composite.Label
		}
		if elem.Text == "" {
			elem.Text = truncateText(c.composite.Value, 64)
		}
	}

	if fact != nil {
		elem.Visible = fact.Visible
		elem.InViewport = fact.InViewport
		elem.Enabled = fact.Enabled && !v.HasAttr("disabled")
		elem.ZIndex = fact.ZIndex
	} else {
		// Statically present but not live-resolvable; assume enabled
		// unless the markup says otherwise.
		elem.Enabled = !v.HasAttr("disabled") && v.Attr("aria-disabled") != "true"
	}

	elem.Interaction = classifyInteraction(v, c.composite != nil, fact)
	elem.Context = b.relationalContext(v, headingByNode)
	elem.Signature = elementSignature(elem)

	if len(elem.Locators) == 0 {
		// Fall back to the structural XPath so every element stays
		// addressable, if only weakly.
		elem.Locators = []schemas.LocatorCandidate{{Locator: c.xpath, Tier: schemas.StabilityLow}}
	}
	return elem
}

// elementRole returns the explicit ARIA role or an implicit one derived
// from the tag.
func elementRole(v View) string {
	if role := v.Attr("role"); role != "" {
		return role
	}
	switch v.Tag() {
	case "button", "summary":
		return "button"
	case "a":
		if v.Attr("href") != "" {
			return "link"
		}
	case "select":
		return "combobox"
	case "textarea":
		return "textbox"
	case "input":
		switch strings.ToLower(v.Attr("type")) {
		case "submit", "button", "reset", "image":
			return "button"
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "range":
			return "slider"
		case "hidden":
			return ""
		default:
			return "textbox"
		}
	case "label", "legend":
		return ""
	}
	return ""
}

// classifyInteraction decides how the element can be acted upon.
func classifyInteraction(v View, composite bool, fact *runtimeFact) schemas.InteractionRole {
	tag := v.Tag()
	inputType := strings.ToLower(v.Attr("type"))

	if tag == "input" && inputType == "hidden" {
		return schemas.InteractionHiddenField
	}

	editable := false
	switch tag {
	case "textarea", "select":
		editable = true
	case "input":
		switch inputType {
		case "submit", "button", "reset", "image", "checkbox", "radio":
			// Click actions.
		default:
			editable = true
		}
	default:
		if val, ok := contentEditable(v); ok && val {
			editable = true
		}
	}

	clickable := composite || isButtonLike(v) || isPopupTrigger(v) || v.HasAttr("onclick")
	if !clickable && tag == "input" {
		switch inputType {
		case "submit", "button", "reset", "image", "checkbox", "radio":
			clickable = true
		}
	}
	if !clickable && fact != nil && fact.CursorPointer {
		clickable = true
	}

	switch {
	case clickable && editable:
		return schemas.InteractionBoth
	case editable:
		return schemas.InteractionEditable
	default:
		return schemas.InteractionClickable
	}
}

// contentEditable interprets the contenteditable attribute; an empty value
// means true.
func contentEditable(v View) (bool, bool) {
	if !v.HasAttr("contenteditable") {
		return false, false
	}
	val := strings.TrimSpace(strings.ToLower(v.Attr("contenteditable")))
	return val == "true" || val == "", true
}

// relationalContext resolves the element's enclosing structures.
func (b *Builder) relationalContext(v *nodeView, headingByNode map[*html.Node]string) schemas.RelationalContext {
	ctx := schemas.RelationalContext{}

	if form := anyAncestor(v, func(a View) bool { return a.Tag() == "form" || a.Tag() == "fieldset" }); form != nil {
		ctx.FormGroup = formIdentifier(form)
	}
	if modal := anyAncestor(v, b.isModal); modal != nil {
		ctx.Modal = modalIdentifier(modal)
	}
	ctx.SectionHeading = headingByNode[v.node]
	ctx.NearbyText = nearbyText(v.node)
	ctx.InNavigation = anyAncestor(v, func(a View) bool {
		if b.navTags[a.Tag()] {
			return true
		}
		return a.Attr("role") == "navigation"
	}) != nil

	return ctx
}

// formIdentifier derives a stable label for a form or fieldset.
func formIdentifier(v View) string {
	if id := v.Attr("id"); id != "" && !LooksGenerated(id) {
		return id
	}
	if name := v.Attr("name"); name != "" {
		return name
	}
	if label := v.Attr("aria-label"); label != "" {
		return label
	}
	if legend := v.Query(`.//legend`); legend != nil {
		if text := truncateText(legend.Text(), 48); text != "" {
			return text
		}
	}
	return v.Tag()
}

// isModal matches a view against the configured modal selectors.
func (b *Builder) isModal(v View) bool {
	for _, sel := range b.modalSelectors {
		if sel.matches(v) {
			return true
		}
	}
	return false
}

// modalIdentifier derives a label for a modal container.
func modalIdentifier(v View) string {
	if label := v.Attr("aria-label"); label != "" {
		return label
	}
	if id := v.Attr("id"); id != "" && !LooksGenerated(id) {
		return id
	}
	if h := v.Query(`.//h1 | .//h2 | .//h3`); h != nil {
		if text := truncateText(h.Text(), 48); text != "" {
			return text
		}
	}
	return "modal"
}

// nearbyText gathers up to three short fragments adjacent to the node.
func nearbyText(node *html.Node) []string {
	var out []string
	appendFragment := func(n *html.Node) {
		if n == nil || len(out) == 3 {
			return
		}
		var text string
		switch n.Type {
		case html.TextNode:
			text = n.Data
		case html.ElementNode:
			tag := strings.ToLower(n.Data)
			if tag == "script" || tag == "style" {
				return
			}
			text = htmlquery.InnerText(n)
		default:
			return
		}
		text = truncateText(text, 48)
		if text != "" {
			out = append(out, text)
		}
	}

	appendFragment(node.PrevSibling)
	if node.PrevSibling != nil {
		appendFragment(node.PrevSibling.PrevSibling)
	}
	appendFragment(node.NextSibling)
	return out
}

// collectHeadings returns the page's heading outline in document order.
func collectHeadings(doc View) []schemas.Heading {
	var out []schemas.Heading
	for _, h := range doc.QueryAll(`//h1 | //h2 | //h3 | //h4 | //h5 | //h6`) {
		text := truncateText(h.Text(), 80)
		if text == "" {
			continue
		}
		level := int(h.Tag()[1] - '0')
		out = append(out, schemas.Heading{Level: level, Text: text})
	}
	return out
}

// precedingHeadings walks the document once and records, for every element
// node, the text of the nearest preceding heading.
func precedingHeadings(doc *html.Node) map[*html.Node]string {
	result := make(map[*html.Node]string)
	current := ""

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
				current = truncateText(htmlquery.InnerText(n), 80)
			}
			result[n] = current
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return result
}

// collectLandmarks lists ARIA landmarks and sectioning elements.
func (b *Builder) collectLandmarks(doc View) []schemas.Landmark {
	var out []schemas.Landmark
	for _, l := range doc.QueryAll(b.patterns.LandmarkQuery) {
		role := l.Attr("role")
		if role == "" {
			switch l.Tag() {
			case "main":
				role = "main"
			case "nav":
				role = "navigation"
			case "aside":
				role = "complementary"
			case "header":
				role = "banner"
			case "footer":
				role = "contentinfo"
			case "form":
				role = "form"
			case "section":
				role = "region"
			default:
				continue
			}
		}
		label := l.Attr("aria-label")
		if label == "" {
			if h := l.Query(`.//h1 | .//h2 | .//h3`); h != nil {
				label = truncateText(h.Text(), 48)
			}
		}
		out = append(out, schemas.Landmark{Role: role, Label: label})
	}
	return out
}

// collectForms lists form group identifiers in document order.
func collectForms(doc View) []string {
	var out []string
	for _, f := range doc.QueryAll(`//form`) {
		out = append(out, formIdentifier(f))
	}
	return out
}

// detectActiveModal finds the currently open modal, if any, preferring the
// last one in document order (topmost in stacking practice).
func (b *Builder) detectActiveModal(doc View) string {
	var modals []View
	for _, m := range doc.QueryAll(`//*`) {
		if b.isModal(m) {
			modals = append(modals, m)
		}
	}
	for i := len(modals) - 1; i >= 0; i-- {
		m := modals[i]
		// Skip statically hidden dialog shells.
		if strings.Contains(m.Attr("style"), "display:none") || strings.Contains(m.Attr("style"), "display: none") {
			continue
		}
		if m.HasAttr("hidden") {
			continue
		}
		return modalIdentifier(m)
	}
	return ""
}

// fingerprint derives the screen identity: URL, a hash over rendered text,
// and the heading path. Script, style, template, and noscript subtrees are
// excluded so a re-hashed inline bundle does not change the fingerprint of
// an otherwise unchanged screen.
func fingerprint(pageURL string, doc *nodeView, headings []schemas.Heading) schemas.ScreenFingerprint {
	hasher := fnv.New64a()
	hasher.Write([]byte(truncateText(visibleText(doc.unwrap()), 4096)))

	var path []string
	for _, h := range headings {
		path = append(path, h.Text)
		if len(path) == 3 {
			break
		}
	}

	return schemas.ScreenFingerprint{
		URL:         pageURL,
		ContentHash: strconv.FormatUint(hasher.Sum64(), 16),
		HeadingPath: strings.Join(path, " > "),
	}
}

// visibleText collects the document's text content, skipping non-rendered
// subtrees. The collection stops early once enough text has accumulated to
// fill the fingerprint window.
func visibleText(root *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if sb.Len() > 8192 {
			return
		}
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "script", "style", "template", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return sb.String()
}

// elementSignature builds a stable identity for the element across graph
// builds: tag, trusted identifiers, and descriptive text.
func elementSignature(e *schemas.Element) string {
	var sb strings.Builder
	sb.WriteString(e.Tag)
	if e.TestID != "" {
		sb.WriteString("[testid=" + e.TestID + "]")
	}
	if e.UniqueID != "" {
		sb.WriteString("[uid=" + e.UniqueID + "]")
	}
	if e.ID != "" && !LooksGenerated(e.ID) {
		sb.WriteString("#" + e.ID)
	}
	if e.Name != "" {
		sb.WriteString("[name=" + e.Name + "]")
	}
	if e.AccessibleName != "" {
		sb.WriteString("[label=" + e.AccessibleName + "]")
	} else if e.Text != "" {
		sb.WriteString("[text=" + e.Text + "]")
	}

	hasher := fnv.New64a()
	hasher.Write([]byte(sb.String()))
	return strconv.FormatUint(hasher.Sum64(), 16)
}
