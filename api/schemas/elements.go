// api/schemas/elements.go
package schemas

// StabilityTier is a coarse rating of how likely a locator is to remain
// valid across page re-renders.
type StabilityTier string

const (
	StabilityHigh   StabilityTier = "high"
	StabilityMedium StabilityTier = "medium"
	StabilityLow    StabilityTier = "low"
)

// InteractionRole classifies how an element can be acted upon.
type InteractionRole string

const (
	InteractionClickable InteractionRole = "clickable"
	InteractionEditable  InteractionRole = "editable"
	InteractionBoth      InteractionRole = "both"
	// InteractionHiddenField covers hidden inputs that back composite
	// widgets. They are never targeted directly but carry the value.
	InteractionHiddenField InteractionRole = "hidden-field"
)

// LocatorCandidate is a single locator string ranked by stability.
type LocatorCandidate struct {
	Locator string        `json:"locator"`
	Tier    StabilityTier `json:"tier"`
}

// RelationalContext captures where an element sits relative to the
// structures around it. All fields may be empty.
type RelationalContext struct {
	// FormGroup identifies the enclosing form (id, name, or heading text).
	FormGroup string `json:"form_group,omitempty"`
	// Modal identifies the enclosing modal or drawer, if any.
	Modal string `json:"modal,omitempty"`
	// SectionHeading is the text of the nearest preceding section heading.
	SectionHeading string `json:"section_heading,omitempty"`
	// NearbyText holds up to a few short text fragments adjacent to the
	// element, used for label association.
	NearbyText []string `json:"nearby_text,omitempty"`
	// InNavigation is true when the element lives inside a nav/sidebar
	// container.
	InNavigation bool `json:"in_navigation,omitempty"`
}

// Element is one DOM node considered as an interaction candidate. Elements
// are created fresh on every graph build and never mutated afterwards.
type Element struct {
	Tag            string `json:"tag"`
	Role           string `json:"role,omitempty"`
	AccessibleName string `json:"accessible_name,omitempty"`

	// Identifiers, in descending order of trust.
	TestID   string `json:"test_id,omitempty"`
	UniqueID string `json:"unique_id,omitempty"`
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`

	Text        string `json:"text,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Title       string `json:"title,omitempty"`
	Href        string `json:"href,omitempty"`
	InputType   string `json:"input_type,omitempty"`
	Classes     string `json:"classes,omitempty"`

	Visible     bool `json:"visible"`
	InViewport  bool `json:"in_viewport"`
	Enabled     bool `json:"enabled"`
	InActiveTab bool `json:"in_active_tab"`
	ZIndex      int  `json:"z_index,omitempty"`

	// Locators is ranked best-first; the first entry is the one the
	// resolver tries before any fallback.
	Locators []LocatorCandidate `json:"locators"`

	Context     RelationalContext `json:"context"`
	Interaction InteractionRole   `json:"interaction"`

	// Signature is a stable identity for the element across graph builds,
	// derived from tag, identifiers, and text. Used by the session tracker
	// for temporal-proximity bookkeeping.
	Signature string `json:"signature"`
}

// BestLocator returns the highest-ranked locator, or "" when none exist.
func (e *Element) BestLocator() string {
	if len(e.Locators) == 0 {
		return ""
	}
	return e.Locators[0].Locator
}

// Clickable reports whether the element accepts click actions.
func (e *Element) Clickable() bool {
	return e.Interaction == InteractionClickable || e.Interaction == InteractionBoth
}

// Editable reports whether the element accepts type actions.
func (e *Element) Editable() bool {
	return e.Interaction == InteractionEditable || e.Interaction == InteractionBoth
}

// Heading is one entry of the page's heading outline.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Landmark is an ARIA landmark or sectioning element.
type Landmark struct {
	Role  string `json:"role"`
	Label string `json:"label,omitempty"`
}

// ScreenFingerprint identifies "the same logical screen state". Downstream
// caches (semantic index, selector cache) key on it for invalidation.
type ScreenFingerprint struct {
	URL         string `json:"url"`
	ContentHash string `json:"content_hash"`
	HeadingPath string `json:"heading_path"`
}

// Key returns the fingerprint collapsed to a single cache key.
func (f ScreenFingerprint) Key() string {
	return f.URL + "|" + f.ContentHash + "|" + f.HeadingPath
}

// PageGraph is a full snapshot of one screen: every candidate element plus
// page-level aggregates. Graphs are never diffed against previous builds.
type PageGraph struct {
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Elements []Element `json:"elements"`

	// ActiveModal is the identifying text or locator of the currently open
	// modal/drawer, empty when none is open.
	ActiveModal string     `json:"active_modal,omitempty"`
	Forms       []string   `json:"forms,omitempty"`
	Landmarks   []Landmark `json:"landmarks,omitempty"`
	Headings    []Heading  `json:"headings,omitempty"`

	Fingerprint ScreenFingerprint `json:"fingerprint"`
}
