// internal/browser/page.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/locus/api/schemas"
)

// Page implements schemas.Page over the session's active tab. All methods
// are read-only with respect to the DOM.
type Page struct {
	session *Session
}

var _ schemas.Page = (*Page)(nil)

// GetContent returns the full serialized markup of the current document.
func (p *Page) GetContent(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

func (p *Page) GetTitle(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

func (p *Page) GetURL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return location, nil
}

// Evaluate runs the expression in the page and unmarshals its JSON result
// into out.
func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	action := chromedp.Evaluate(expression, out, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	})
	if err := p.run(ctx, action); err != nil {
		return fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return nil
}

// LocatorCount returns how many live elements the selector resolves to.
// CSS selectors and XPath expressions are both accepted.
func (p *Page) LocatorCount(ctx context.Context, selector string) (int, error) {
	var count int
	if err := p.Evaluate(ctx, locatorCountScript(selector), &count); err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, fmt.Errorf("%w: selector %q did not evaluate", schemas.ErrValidation, selector)
	}
	return count, nil
}

// IsVisible reports whether the selector's first match has a rendered box.
func (p *Page) IsVisible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	if err := p.Evaluate(ctx, visibilityScript(selector), &visible); err != nil {
		return false, err
	}
	return visible, nil
}

// IsEnabled reports whether the selector's first match is not disabled.
func (p *Page) IsEnabled(ctx context.Context, selector string) (bool, error) {
	var enabled bool
	if err := p.Evaluate(ctx, enabledScript(selector), &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.session.ctx, p.session.cfg.EvaluateTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// -- Script builders --

// isXPathSelector guesses the selector language: locators beginning with a
// slash or a parenthesized step are XPath, everything else is CSS.
func isXPathSelector(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

// quoteJS renders a Go string as a JavaScript string literal.
func quoteJS(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func locatorCountScript(selector string) string {
	if isXPathSelector(selector) {
		return fmt.Sprintf(`(() => {
	try {
		return document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength;
	} catch (e) { return -1; }
})()`, quoteJS(selector))
	}
	return fmt.Sprintf(`(() => {
	try { return document.querySelectorAll(%s).length; } catch (e) { return -1; }
})()`, quoteJS(selector))
}

func visibilityScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return false;
	const style = window.getComputedStyle(el);
	if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})()`, firstMatchExpr(selector))
}

func enabledScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return false;
	return !el.disabled && el.getAttribute('aria-disabled') !== 'true';
})()`, firstMatchExpr(selector))
}

func firstMatchExpr(selector string) string {
	if isXPathSelector(selector) {
		return fmt.Sprintf(`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`, quoteJS(selector))
	}
	return fmt.Sprintf(`document.querySelector(%s)`, quoteJS(selector))
}
