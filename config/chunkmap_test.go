package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerOrdering(t *testing.T) {
	tests := []struct {
		name string
		a, b Marker
		want int
	}{
		{"start below value", Start(), Value("a"), -1},
		{"value below end", Value("zzz"), End(), -1},
		{"start below end", Start(), End(), -1},
		{"values by key", Value("a"), Value("b"), -1},
		{"equal values", Value("m"), Value("m"), 0},
		{"equal starts", Start(), Start(), 0},
		{"equal ends", End(), End(), 0},
		{"value above start", Value(""), Start(), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a))
		})
	}
}

func TestChunkMapInstall(t *testing.T) {
	owner := NodeDefinition{Hostname: "s1", Port: 6000}
	m := NewChunkMap()

	_, err := m.Install(owner)
	require.NoError(t, err)

	chunks := m.Snapshot()
	require.Len(t, chunks, 1)
	assert.Equal(t, Start(), chunks[0].Start)
	assert.Equal(t, End(), chunks[0].End)
	assert.Equal(t, owner, chunks[0].Owner)
	assert.True(t, m.Covers())

	_, err = m.Install(owner)
	assert.Error(t, err, "install must refuse a non-empty map")
}

func TestChunkMapSplitThenMerge(t *testing.T) {
	owner := NodeDefinition{Hostname: "s1", Port: 6000}
	m := NewChunkMap()
	_, err := m.Install(owner)
	require.NoError(t, err)
	before := m.Snapshot()

	_, found := m.ApplySplit(Start(), Value("m"), Value("m"), End(), owner)
	assert.True(t, found)

	chunks := m.Snapshot()
	require.Len(t, chunks, 2)
	assert.Equal(t, Start(), chunks[0].Start)
	assert.Equal(t, Value("m"), chunks[0].End)
	assert.Equal(t, Value("m"), chunks[1].Start)
	assert.Equal(t, End(), chunks[1].End)
	assert.True(t, m.Covers(), "split must not open gaps")

	_, found = m.ApplyMerge(Start(), End(), owner)
	assert.True(t, found)
	assert.Equal(t, before, m.Snapshot(), "merge of the split pair restores the pre-split map")
	assert.True(t, m.Covers())
}

func TestChunkMapSplitMissingTarget(t *testing.T) {
	owner := NodeDefinition{Hostname: "s1", Port: 6000}
	m := NewChunkMap()
	_, err := m.Install(owner)
	require.NoError(t, err)

	// A stale sender names a start no chunk has. The new chunks land
	// anyway; the broadcast is what reconverges the cluster.
	_, found := m.ApplySplit(Value("q"), Value("t"), Value("t"), Value("x"), owner)
	assert.False(t, found)
	assert.Len(t, m.Snapshot(), 3)
}

func TestChunkMapRemoveOwner(t *testing.T) {
	s1 := NodeDefinition{Hostname: "s1", Port: 6000}
	s2 := NodeDefinition{Hostname: "s2", Port: 6000}

	m := NewChunkMap()
	_, err := m.Install(s1)
	require.NoError(t, err)
	m.ApplySplit(Start(), Value("m"), Value("m"), End(), s1)

	// Hand the upper half to s2, then lose s2.
	m.ReplaceAll([]ChunkDefinition{
		{Start: Start(), End: Value("m"), Owner: s1},
		{Start: Value("m"), End: End(), Owner: s2},
	})

	_, removed := m.RemoveOwner(s2)
	assert.Equal(t, 1, removed)

	chunks := m.Snapshot()
	require.Len(t, chunks, 1)
	assert.Equal(t, s1, chunks[0].Owner)
	assert.False(t, m.Covers(), "owner loss leaves a coverage hole")

	_, removed = m.RemoveOwner(s2)
	assert.Zero(t, removed)
}

func TestChunkMapReplaceAllIdempotent(t *testing.T) {
	s1 := NodeDefinition{Hostname: "s1", Port: 6000}
	update := []ChunkDefinition{
		{Start: Start(), End: Value("m"), Owner: s1},
		{Start: Value("m"), End: End(), Owner: s1},
	}

	m := NewChunkMap()
	m.ReplaceAll(update)
	first := m.Snapshot()
	m.ReplaceAll(update)
	assert.Equal(t, first, m.Snapshot())
}

func TestChunkMapVersionAdvances(t *testing.T) {
	owner := NodeDefinition{Hostname: "s1", Port: 6000}
	m := NewChunkMap()

	v1, err := m.Install(owner)
	require.NoError(t, err)
	v2, _ := m.ApplySplit(Start(), Value("m"), Value("m"), End(), owner)
	v3, _ := m.ApplyMerge(Start(), End(), owner)
	assert.Less(t, v1, v2)
	assert.Less(t, v2, v3)
}
