// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct{ name string }

func (s stubClient) Complete(ctx context.Context, prompt string) (string, error) { return "{}", nil }
func (s stubClient) ModelName() string                                           { return s.name }
func (s stubClient) IsReady() bool                                               { return true }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", func(cfg map[string]any) (Client, error) {
		return stubClient{name: "stub-model"}, nil
	})

	assert.True(t, r.Has("stub"))
	assert.Equal(t, []string{"stub"}, r.IDs())

	c, err := r.Get("stub", nil)
	require.NoError(t, err)
	assert.Equal(t, "stub-model", c.ModelName())
}

func TestRegistry_GetUnknownProviderErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope", nil)
	assert.Error(t, err)
}

func TestRegistry_RegisterPanicsOnEmptyID(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() {
		r.Register("", func(cfg map[string]any) (Client, error) { return nil, nil })
	})
}

func TestRegistry_RegisterPanicsOnDuplicateID(t *testing.T) {
	r := NewRegistry()
	r.Register("dup", func(cfg map[string]any) (Client, error) { return nil, nil })
	assert.Panics(t, func() {
		r.Register("dup", func(cfg map[string]any) (Client, error) { return nil, nil })
	})
}
