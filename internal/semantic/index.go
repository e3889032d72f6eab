// internal/semantic/index.go

// Package semantic provides the optional embedding retrieval layer: a
// per-screen index over page sections and interactive elements, searched
// by nearest-neighbor similarity with keyword boosting.
package semantic

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xkilldash9x/locus/api/schemas"
)

const (
	// summaryMaxLen truncates element summaries before embedding.
	summaryMaxLen = 160
	// sectionSummaryMaxLen bounds the concatenated section text.
	sectionSummaryMaxLen = 320
)

// indexedElement pairs an element with its embedded summary.
type indexedElement struct {
	element *schemas.Element
	section string
	summary string
	vector  []float32
}

// indexedSection is one coarse retrieval unit derived from heading and
// landmark structure.
type indexedSection struct {
	name    string
	summary string
	vector  []float32
}

// index is the embedding index for one screen fingerprint.
type index struct {
	fingerprint string
	sections    []indexedSection
	elements    []indexedElement
}

// elementSummary renders the text that stands in for an element in vector
// space: its label, role, and section.
func elementSummary(e *schemas.Element) string {
	var parts []string
	if e.AccessibleName != "" {
		parts = append(parts, e.AccessibleName)
	} else if e.Text != "" {
		parts = append(parts, e.Text)
	}
	if e.Placeholder != "" {
		parts = append(parts, e.Placeholder)
	}
	if e.Name != "" {
		parts = append(parts, e.Name)
	}
	role := e.Role
	if role == "" {
		role = e.Tag
	}
	parts = append(parts, role)
	if e.Context.SectionHeading != "" {
		parts = append(parts, "in "+e.Context.SectionHeading)
	}
	return truncate(strings.Join(parts, ", "), summaryMaxLen)
}

// buildSkeleton lays out the index entries for a graph without vectors;
// the retriever embeds the texts afterwards.
func buildSkeleton(graph *schemas.PageGraph) *index {
	idx := &index{fingerprint: graph.Fingerprint.Key()}

	// Sections first: group element labels under their heading.
	labelsBySection := make(map[string][]string)
	var sectionOrder []string
	for i := range graph.Elements {
		e := &graph.Elements[i]
		section := e.Context.SectionHeading
		if section == "" {
			continue
		}
		if _, seen := labelsBySection[section]; !seen {
			sectionOrder = append(sectionOrder, section)
		}
		if label := primaryLabel(e); label != "" {
			labelsBySection[section] = append(labelsBySection[section], label)
		}
	}
	sort.Strings(sectionOrder)
	for _, section := range sectionOrder {
		summary := section
		if labels := labelsBySection[section]; len(labels) > 0 {
			summary = fmt.Sprintf("%s: %s", section, strings.Join(labels, ", "))
		}
		idx.sections = append(idx.sections, indexedSection{
			name:    section,
			summary: truncate(summary, sectionSummaryMaxLen),
		})
	}

	// Interactive and hidden elements both participate: hidden fields
	// carry composite-widget values a query may reference.
	for i := range graph.Elements {
		e := &graph.Elements[i]
		summary := elementSummary(e)
		if summary == "" {
			continue
		}
		idx.elements = append(idx.elements, indexedElement{
			element: e,
			section: e.Context.SectionHeading,
			summary: summary,
		})
	}
	return idx
}

func primaryLabel(e *schemas.Element) string {
	if e.AccessibleName != "" {
		return e.AccessibleName
	}
	return e.Text
}

// texts lists every string the index needs embedded, in a stable order.
func (idx *index) texts() []string {
	out := make([]string, 0, len(idx.sections)+len(idx.elements))
	for _, s := range idx.sections {
		out = append(out, s.summary)
	}
	for _, e := range idx.elements {
		out = append(out, e.summary)
	}
	return out
}

// applyVectors distributes embedded vectors back onto the index entries.
// A nil vector marks a text whose batch failed; the entry stays searchable
// by keywords only.
func (idx *index) applyVectors(vectors map[string][]float32) {
	for i := range idx.sections {
		idx.sections[i].vector = vectors[idx.sections[i].summary]
	}
	for i := range idx.elements {
		idx.elements[i].vector = vectors[idx.elements[i].summary]
	}
}

// cosineSimilarity is the similarity of two vectors in [-1, 1]. Mismatched
// or zero-magnitude vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
