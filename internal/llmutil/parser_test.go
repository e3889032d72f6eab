// internal/llmutil/parser_test.go
package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/locus/api/schemas"
)

func TestParseJSONResponse(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		res, err := ParseJSONResponse[schemas.DisambiguationResult](`{"selector":"#email","confidence":0.9,"fallbacks":[]}`)
		require.NoError(t, err)
		assert.Equal(t, "#email", res.Selector)
		assert.InDelta(t, 0.9, res.Confidence, 1e-9)
		assert.Empty(t, res.Fallbacks)
	})

	t.Run("fenced block with conversational preamble", func(t *testing.T) {
		response := "I think the selector is ```json\n{\"selector\":\"#x\",\"confidence\":0.9,\"fallbacks\":[]}\n```"
		res, err := ParseJSONResponse[schemas.DisambiguationResult](response)
		require.NoError(t, err)
		assert.Equal(t, "#x", res.Selector)
		assert.InDelta(t, 0.9, res.Confidence, 1e-9)
		assert.Empty(t, res.Fallbacks)
	})

	t.Run("raw object span inside prose", func(t *testing.T) {
		response := `The best match is {"selector":"input[name='q']","confidence":0.72,"fallbacks":["#search"]} based on the label.`
		res, err := ParseJSONResponse[schemas.DisambiguationResult](response)
		require.NoError(t, err)
		assert.Equal(t, "input[name='q']", res.Selector)
		assert.Equal(t, []string{"#search"}, res.Fallbacks)
	})

	t.Run("repairs single quotes and trailing commas", func(t *testing.T) {
		response := `{'selector': '#save', 'confidence': 0.8, 'fallbacks': [],}`
		res, err := ParseJSONResponse[schemas.DisambiguationResult](response)
		require.NoError(t, err)
		assert.Equal(t, "#save", res.Selector)
		assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	})

	t.Run("irrecoverable input returns an error", func(t *testing.T) {
		_, err := ParseJSONResponse[schemas.DisambiguationResult]("no structure here at all")
		require.Error(t, err)
	})

	t.Run("generic map target", func(t *testing.T) {
		res, err := ParseJSONResponse[map[string]any]("```\n{\"a\": 1}\n```")
		require.NoError(t, err)
		assert.Equal(t, float64(1), (*res)["a"])
	})
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already clean", `{"a":1}`, `{"a":1}`},
		{"fenced with tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced without tag", "```\n[1,2]\n```", `[1,2]`},
		{"prose around object", `sure: {"a":1} hope that helps`, `{"a":1}`},
		{"no structure", `nothing here`, `nothing here`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractJSON(tc.in))
		})
	}
}

func TestRepairQuoting(t *testing.T) {
	in := `{'selector': '#a', "nested": {'q': 'v',}, "list": [1, 2,],}`
	out := RepairQuoting(in)
	assert.NotContains(t, out, "'")
	assert.NotContains(t, out, ",}")
	assert.NotContains(t, out, ",]")
}
