// internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// Regex definitions use \x60 for backticks because Go raw strings
	// cannot contain backticks.

	// jsonObjectRegex extracts a JSON object wrapped in a fenced block.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array wrapped in a fenced block.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")

	// singleQuotedKeyRegex matches 'key': at an object position.
	singleQuotedKeyRegex = regexp.MustCompile(`([{,]\s*)'([^']*)'(\s*:)`)
	// singleQuotedValueRegex matches : 'value' at a value position.
	singleQuotedValueRegex = regexp.MustCompile(`(:\s*)'([^']*)'`)
	// trailingCommaRegex matches a comma directly before a closing brace
	// or bracket.
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
)

// ExtractJSON pulls the most plausible JSON document out of a provider
// response: a fenced code block first, then the widest raw object or array
// span inside conversational text. Returns the input unchanged when no
// structure is found.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	// Fenced block anywhere in the response, not only at the start;
	// providers often preface the block with prose.
	if strings.Contains(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return matches[1]
		}
	}

	if isObject {
		fb := strings.Index(response, "{")
		lb := strings.LastIndex(response, "}")
		if fb != -1 && lb > fb {
			return response[fb : lb+1]
		}
	}
	if isArray {
		fb := strings.Index(response, "[")
		lb := strings.LastIndex(response, "]")
		if fb != -1 && lb > fb {
			return response[fb : lb+1]
		}
	}
	return response
}

// RepairQuoting fixes the quoting defects providers commonly emit:
// single-quoted keys and string values, and trailing commas.
func RepairQuoting(s string) string {
	s = singleQuotedKeyRegex.ReplaceAllString(s, `$1"$2"$3`)
	s = singleQuotedValueRegex.ReplaceAllString(s, `$1"$2"`)
	s = trailingCommaRegex.ReplaceAllString(s, `$1`)
	return s
}

// ParseJSONResponse parses a provider response string into a target Go type.
// It extracts fenced blocks or raw object spans, and on a first unmarshal
// failure retries once after repairing common quoting defects.
func ParseJSONResponse[T any](response string) (*T, error) {
	extracted := ExtractJSON(response)

	var result T
	if err := json.Unmarshal([]byte(extracted), &result); err == nil {
		return &result, nil
	}

	repaired := RepairQuoting(extracted)
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal provider JSON response: %w. Extracted (truncated): %s",
			err, truncateString(extracted, 500))
	}
	return &result, nil
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Byte truncation is fine for error logging.
	return s[:maxLen] + "..."
}
