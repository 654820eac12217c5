// SPDX-License-Identifier: AGPL-3.0-or-later

package staging

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	id string
}

func (f fakeBackend) ID() string                                            { return f.id }
func (f fakeBackend) Open(ctx context.Context, dsn string) (*sql.DB, error) { return nil, nil }
func (f fakeBackend) DDL() []string                                         { return nil }
func (f fakeBackend) Placeholder(i int) string                              { return fmt.Sprintf("$%d", i) }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeBackend{id: "fake"})

	b, err := r.Get("fake")
	require.NoError(t, err)
	assert.Equal(t, "fake", b.ID())
	assert.True(t, r.Has("fake"))
	assert.False(t, r.Has("missing"))
}

func TestRegistry_GetUnknownListsAvailable(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeBackend{id: "alpha"})
	r.Register(fakeBackend{id: "beta"})

	_, err := r.Get("gamma")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alpha")
	assert.Contains(t, err.Error(), "beta")
}

func TestRegistry_IDsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeBackend{id: "zeta"})
	r.Register(fakeBackend{id: "alpha"})

	assert.Equal(t, []string{"alpha", "zeta"}, r.IDs())
}

func TestRegistry_PanicsOnDuplicate(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeBackend{id: "dup"})
	assert.Panics(t, func() { r.Register(fakeBackend{id: "dup"}) })
}

func TestRegistry_PanicsOnEmptyID(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.Register(fakeBackend{id: ""}) })
}
