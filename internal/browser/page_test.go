// internal/browser/page_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsXPathSelector(t *testing.T) {
	assert.True(t, isXPathSelector("//button[@id='save']"))
	assert.True(t, isXPathSelector("(//input)[2]"))
	assert.False(t, isXPathSelector("#save"))
	assert.False(t, isXPathSelector("input[name='email']"))
}

func TestLocatorCountScriptEscapesSelector(t *testing.T) {
	script := locatorCountScript(`a[title="it's here"]`)
	assert.Contains(t, script, `querySelectorAll("a[title=\"it's here\"]")`)

	xpath := locatorCountScript(`//a[@title="x"]`)
	assert.Contains(t, xpath, "document.evaluate")
	assert.Contains(t, xpath, `"//a[@title=\"x\"]"`)
}

func TestFirstMatchExprSwitchesLanguage(t *testing.T) {
	assert.Contains(t, firstMatchExpr("#email"), "querySelector")
	assert.Contains(t, firstMatchExpr("//input"), "FIRST_ORDERED_NODE_TYPE")
}
