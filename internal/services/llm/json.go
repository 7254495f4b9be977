package llm

import (
	"fmt"
	"strings"
)

// ExtractJSONObject returns the first JSON object in a model response,
// tolerating markdown code fences and leading prose
func ExtractJSONObject(text string) (string, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return s[start : end+1], nil
}
