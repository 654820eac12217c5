// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_RawObject(t *testing.T) {
	out, err := extractJSON(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestExtractJSON_FencedJSONBlock(t *testing.T) {
	out, err := extractJSON("Here you go:\n```json\n{\"a\":1}\n```\nDone.")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestExtractJSON_BareFencedBlock(t *testing.T) {
	out, err := extractJSON("```\n{\"a\":1}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestExtractJSON_SubstringBetweenBraces(t *testing.T) {
	out, err := extractJSON(`The answer is {"a":1} -- hope that helps`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestExtractJSON_NoObjectFound(t *testing.T) {
	_, err := extractJSON("no json here")
	assert.Error(t, err)
}

type fixedClient struct {
	responses []string
	calls     int
}

func (c *fixedClient) Complete(ctx context.Context, prompt string) (string, error) {
	r := c.responses[c.calls]
	if c.calls < len(c.responses)-1 {
		c.calls++
	}
	return r, nil
}
func (c *fixedClient) ModelName() string { return "fixed" }
func (c *fixedClient) IsReady() bool     { return true }

func TestSchemaRefiner_Refine_AcceptsValidAdditiveResponse(t *testing.T) {
	original := map[string]any{
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
	}
	client := &fixedClient{responses: []string{`{"properties":{"name":{"type":"string","description":"full name"}}}`}}

	result, err := RefineSchema(context.Background(), client, original, RefinementConfig{MaxRetries: 2})
	require.NoError(t, err)
	assert.True(t, result.WasRefined)
	assert.Equal(t, 0, result.Retries)
	assert.Equal(t, "fixed", result.ModelUsed)
}

func TestSchemaRefiner_Refine_RetriesOnInvalidJSONThenSucceeds(t *testing.T) {
	original := map[string]any{
		"properties": map[string]any{"name": map[string]any{"type": "string"}},
	}
	client := &fixedClient{responses: []string{
		"not json at all",
		`{"properties":{"name":{"type":"string"}}}`,
	}}

	result, err := RefineSchema(context.Background(), client, original, RefinementConfig{MaxRetries: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retries)
}

func TestSchemaRefiner_Refine_ExhaustsRetriesOnPersistentFieldRemoval(t *testing.T) {
	original := map[string]any{
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"age":  map[string]any{"type": "integer"},
		},
	}
	client := &fixedClient{responses: []string{`{"properties":{"name":{"type":"string"}}}`}}

	_, err := RefineSchema(context.Background(), client, original, RefinementConfig{MaxRetries: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}
