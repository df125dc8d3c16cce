package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONPlain(t *testing.T) {
	type out struct {
		Name string `json:"name"`
	}
	res, err := ParseJSON[out](`{"name": "anemia"}`)
	require.NoError(t, err)
	assert.Equal(t, "anemia", res.Name)
}

func TestParseJSONStripsFencesAndProse(t *testing.T) {
	type out struct {
		Value int `json:"value"`
	}
	res, err := ParseJSON[out]("Here you go:\n```json\n{\"value\": 42}\n```\nLet me know if you need more.")
	require.NoError(t, err)
	assert.Equal(t, 42, res.Value)
}

func TestParseJSONNoObject(t *testing.T) {
	_, err := ParseJSON[map[string]interface{}]("I cannot answer that.")
	assert.Error(t, err)
}

func TestExtractJSONKeepsNestedBraces(t *testing.T) {
	raw, err := ExtractJSON(`prefix {"a": {"b": 1}} suffix`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": {"b": 1}}`, string(raw))
}
