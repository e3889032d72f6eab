// api/schemas/memory.go
package schemas

import "time"

// SelectorSource distinguishes curated seed entries from entries learned at
// runtime.
type SelectorSource string

const (
	SourceManual       SelectorSource = "manual"
	SourceLearnedEntry SelectorSource = "learned"
)

// MemoryEntry is one persisted selector, keyed by label + element type +
// URL pattern. Static (manual) entries are read-only seed data; learned
// entries are appended and merged.
type MemoryEntry struct {
	Label       string         `json:"label"`
	ElementType string         `json:"elementType"`
	Selector    string         `json:"selector"`
	Fallbacks   []string       `json:"fallbacks,omitempty"`
	// URLPattern is a substring match against the current URL. An absent
	// pattern matches every URL.
	URLPattern string         `json:"urlPattern,omitempty"`
	Source     SelectorSource `json:"source"`
	Confidence float64        `json:"confidence,omitempty"`
	UsedCount  int            `json:"usedCount"`
	LastUsedAt time.Time      `json:"lastUsedAt"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// SameIdentity reports whether two entries describe the same selector slot:
// identical label, type, selector, and URL pattern.
func (m MemoryEntry) SameIdentity(o MemoryEntry) bool {
	return m.Label == o.Label &&
		m.ElementType == o.ElementType &&
		m.Selector == o.Selector &&
		m.URLPattern == o.URLPattern
}
