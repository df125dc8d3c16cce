package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON unmarshals a provider response into T, tolerating the usual
// quirks: markdown fences, prose before or after the object.
func ParseJSON[T any](response string) (T, error) {
	var zero T

	raw, err := ExtractJSON(response)
	if err != nil {
		return zero, err
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JSON: %w\nData: %s", err, raw)
	}
	return result, nil
}

// ExtractJSON trims a response down to the outermost JSON object.
func ExtractJSON(response string) (json.RawMessage, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || start > end {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	return json.RawMessage(response[start : end+1]), nil
}
