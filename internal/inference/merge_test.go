// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odcspipeline/internal/types"
)

func allKinds() []types.InferredType {
	return []types.InferredType{
		{Kind: types.KindBoolean},
		{Kind: types.KindInteger},
		{Kind: types.KindNumber},
		{Kind: types.KindString},
		{Kind: types.KindString, Format: types.FormatUUID},
		{Kind: types.KindArray},
		{Kind: types.KindObject},
	}
}

func TestMerge_UnknownIsIdentity(t *testing.T) {
	unknown := types.InferredType{Kind: types.KindUnknown}
	for _, k := range allKinds() {
		assert.Equal(t, k.Kind, merge(k, unknown).Kind, "merge(%s, unknown)", k.Kind)
		assert.Equal(t, k.Kind, merge(unknown, k).Kind, "merge(unknown, %s)", k.Kind)
	}
}

func TestMerge_SelfIsIdempotent(t *testing.T) {
	for _, k := range allKinds() {
		assert.Equal(t, k, merge(k, k), "merge(%s, %s)", k.Kind, k.Kind)
	}
}

func TestMerge_IntegerWidensToNumber(t *testing.T) {
	i := types.InferredType{Kind: types.KindInteger}
	n := types.InferredType{Kind: types.KindNumber}
	assert.Equal(t, types.KindNumber, merge(i, n).Kind)
	assert.Equal(t, types.KindNumber, merge(n, i).Kind)
}

func TestMerge_NullContributesNoVariant(t *testing.T) {
	null := types.InferredType{Kind: types.KindNull}
	s := types.InferredType{Kind: types.KindString}
	assert.Equal(t, types.KindString, merge(s, null).Kind)
	assert.Equal(t, types.KindString, merge(null, s).Kind)
}

func TestMerge_ConflictingFormatsDropToPlainString(t *testing.T) {
	uuid := types.InferredType{Kind: types.KindString, Format: types.FormatUUID}
	email := types.InferredType{Kind: types.KindString, Format: types.FormatEmail}
	merged := merge(uuid, email)
	assert.Equal(t, types.KindString, merged.Kind)
	assert.Equal(t, types.FormatNone, merged.Format)
}

func TestMerge_DistinctKindsBecomeMixed(t *testing.T) {
	s := types.InferredType{Kind: types.KindString}
	b := types.InferredType{Kind: types.KindBoolean}
	merged := merge(s, b)
	require.Equal(t, types.KindMixed, merged.Kind)
	assert.Len(t, merged.Variants, 2)
}

func TestMerge_MixedAbsorbsWithoutDuplicates(t *testing.T) {
	s := types.InferredType{Kind: types.KindString}
	b := types.InferredType{Kind: types.KindBoolean}
	mixed := merge(s, b)

	again := merge(mixed, types.InferredType{Kind: types.KindString})
	require.Equal(t, types.KindMixed, again.Kind)
	assert.Len(t, again.Variants, 2, "re-merging a contained kind must not duplicate it")

	wider := merge(mixed, types.InferredType{Kind: types.KindArray})
	require.Equal(t, types.KindMixed, wider.Kind)
	assert.Len(t, wider.Variants, 3)
}

// Integer must widen to Number even after the types have been boxed into a
// Mixed union: every arrival order of {Integer, Number, String} collapses
// to the same two-variant set.
func TestMergeAll_IntegerNumberCoalesceInsideMixed(t *testing.T) {
	observations := []types.InferredType{
		{Kind: types.KindInteger},
		{Kind: types.KindNumber},
		{Kind: types.KindString},
	}
	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	for _, perm := range permutations {
		ordered := make([]types.InferredType, len(perm))
		for i, idx := range perm {
			ordered[i] = observations[idx]
		}
		merged := mergeAll(ordered)
		require.Equal(t, types.KindMixed, merged.Kind, "permutation %v", perm)
		require.Len(t, merged.Variants, 2, "permutation %v", perm)

		kinds := map[types.TypeKind]bool{}
		for _, v := range merged.Variants {
			kinds[v.Kind] = true
		}
		assert.True(t, kinds[types.KindNumber], "permutation %v", perm)
		assert.True(t, kinds[types.KindString], "permutation %v", perm)
		assert.False(t, kinds[types.KindInteger], "integer must widen to number, permutation %v", perm)
	}
}

// Insertion order must not change the finalised root type: any permutation
// of the same records produces the same kinds (and mixed-variant sets).
func TestInfer_MergeIsOrderIndependent(t *testing.T) {
	records := []string{
		`{"v":1,"w":"x"}`,
		`{"v":2.5,"w":true}`,
		`{"v":null,"w":"y"}`,
	}
	permutations := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}

	var baselineV, baselineW types.TypeKind
	for i, perm := range permutations {
		inf := New(DefaultConfig())
		for _, idx := range perm {
			require.NoError(t, inf.Add(records[idx]))
		}
		schema := inf.Build()
		v := schema.Root.Properties["v"]
		w := schema.Root.Properties["w"]
		require.NotNil(t, v)
		require.NotNil(t, w)

		if i == 0 {
			baselineV, baselineW = v.Type.Kind, w.Type.Kind
			assert.Equal(t, types.KindNumber, baselineV)
			assert.Equal(t, types.KindMixed, baselineW)
			continue
		}
		assert.Equal(t, baselineV, v.Type.Kind, "permutation %v", perm)
		assert.Equal(t, baselineW, w.Type.Kind, "permutation %v", perm)
		assert.True(t, v.Nullable)
	}
}
