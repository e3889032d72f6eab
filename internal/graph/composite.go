// internal/graph/composite.go
package graph

import "strings"

// compositeWidget describes a custom dropdown assembled from a container,
// a hidden input carrying the value, and a popup trigger.
type compositeWidget struct {
	// Container is the smallest ancestor carrying an identifying attribute
	// and an interactive descendant; it becomes the Element.
	Container View
	// Value is derived from the hidden input or descendant control.
	Value string
	// Label is the container's derived accessible text.
	Label string
}

// isPopupTrigger reports whether a node opens a popup widget.
func isPopupTrigger(v View) bool {
	if v.HasAttr("aria-haspopup") && !strings.EqualFold(v.Attr("aria-haspopup"), "false") {
		return true
	}
	return v.Attr("role") == "combobox"
}

// detectComposite walks up to three ancestor levels from a popup trigger
// to find the smallest container that both carries an identifying
// attribute and holds an interactive descendant. When found, the container
// (not the inner node) is the interaction candidate.
func detectComposite(trigger View) *compositeWidget {
	if !isPopupTrigger(trigger) {
		return nil
	}

	container := findAncestor(trigger, ancestorSearchDepth, func(a View) bool {
		return hasIdentifyingAttr(a) && hasInteractiveDescendant(a)
	})
	if container == nil {
		return nil
	}

	widget := &compositeWidget{Container: container}

	if hidden := container.Query(`.//input[@type='hidden']`); hidden != nil {
		widget.Value = hidden.Attr("value")
	}
	if widget.Value == "" {
		if control := container.Query(`.//input | .//select`); control != nil {
			widget.Value = control.Attr("value")
		}
	}

	widget.Label = truncateText(container.Text(), 64)
	return widget
}

// hasInteractiveDescendant reports whether the subtree contains a natively
// interactive node besides hidden inputs.
func hasInteractiveDescendant(v View) bool {
	return v.Query(`.//button | .//a[@href] | .//input[not(@type='hidden')] | .//select | .//*[@role='button' or @role='combobox' or @tabindex]`) != nil
}
