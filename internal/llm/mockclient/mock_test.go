// SPDX-License-Identifier: AGPL-3.0-or-later

package mockclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odcspipeline/internal/llm"
)

func TestClient_Complete_ReturnsFixedResponse(t *testing.T) {
	c := &Client{Response: `{"a":1}`}
	out, err := c.Complete(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestClient_Complete_DefaultsToEmptyObject(t *testing.T) {
	c := &Client{}
	out, err := c.Complete(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
}

func TestClient_IsRegisteredUnderMockID(t *testing.T) {
	assert.True(t, llm.Has("mock"))
	c, err := llm.Get("mock", map[string]any{"response": `{"x":true}`})
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, `{"x":true}`, out)
}
