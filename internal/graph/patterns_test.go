// internal/graph/patterns_test.go
package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

func viewFor(t *testing.T, markup, xpath string) View {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(markup))
	require.NoError(t, err)
	v := NewView(doc).Query(xpath)
	require.NotNil(t, v, "fixture query %q matched nothing", xpath)
	return v
}

func TestParseSimpleSelector(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"dialog[open]", false},
		{"[role='dialog']", false},
		{`[aria-modal="true"]`, false},
		{".modal.show", false},
		{"#checkout-panel", false},
		{"div.popup-pane", false},
		{"", true},
		{"div > p", true},
		{"a:hover", true},
		{"[='x']", true},
		{"[unterminated", true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			_, err := parseSimpleSelector(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSimpleSelectorMatches(t *testing.T) {
	t.Run("tag with boolean attribute", func(t *testing.T) {
		sel, err := parseSimpleSelector("dialog[open]")
		require.NoError(t, err)
		assert.True(t, sel.matches(viewFor(t, `<html><body><dialog open></dialog></body></html>`, "//dialog")))
		assert.False(t, sel.matches(viewFor(t, `<html><body><dialog></dialog></body></html>`, "//dialog")))
	})

	t.Run("attribute value", func(t *testing.T) {
		sel, err := parseSimpleSelector("[role='dialog']")
		require.NoError(t, err)
		assert.True(t, sel.matches(viewFor(t, `<html><body><div role="dialog"></div></body></html>`, "//div")))
		assert.False(t, sel.matches(viewFor(t, `<html><body><div role="menu"></div></body></html>`, "//div")))
	})

	t.Run("every class term must be present", func(t *testing.T) {
		sel, err := parseSimpleSelector(".modal.show")
		require.NoError(t, err)
		assert.True(t, sel.matches(viewFor(t, `<html><body><div class="fade modal show"></div></body></html>`, "//div")))
		assert.False(t, sel.matches(viewFor(t, `<html><body><div class="modal"></div></body></html>`, "//div")))
	})
}

func TestCompileSelectorsSkipsUnsupported(t *testing.T) {
	out := compileSelectors([]string{".popup-pane", "div > p", "[role='dialog']"}, zap.NewNop())
	assert.Len(t, out, 2, "unsupported syntax is skipped, not fatal")
}
