package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/config"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(filepath.Join(t.TempDir(), "veladb"))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestIdentityPin(t *testing.T) {
	e := testEngine(t)

	id, err := e.LoadOrCreateIdentity("alpha", "alpha:5100,beta:5101")
	require.NoError(t, err)
	assert.NotEmpty(t, id.InstanceID)

	// Same directory, same cluster: the pin is stable.
	again, err := e.LoadOrCreateIdentity("alpha", "alpha:5100,beta:5101")
	require.NoError(t, err)
	assert.Equal(t, id.InstanceID, again.InstanceID)

	// A different connection string means the operator pointed this
	// data directory at another cluster. That must not start.
	_, err = e.LoadOrCreateIdentity("alpha", "alpha:5100,delta:5103")
	assert.ErrorIs(t, err, ErrClusterIdentityChanged)
}

func TestChunkSnapshotJournal(t *testing.T) {
	e := testEngine(t)

	version, chunks, err := e.LatestChunkSnapshot()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.Empty(t, chunks)

	owner := config.NodeDefinition{Hostname: "s1", Port: 6000}
	want := []config.ChunkDefinition{
		{Start: config.Start(), End: config.Value("m"), Owner: owner},
		{Start: config.Value("m"), End: config.End(), Owner: owner},
	}
	require.NoError(t, e.SaveChunkSnapshot(3, want))
	require.NoError(t, e.SaveChunkSnapshot(4, want[:1]))

	version, chunks, err = e.LatestChunkSnapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), version)
	assert.Equal(t, want[:1], chunks)
}

func TestChunkSnapshotChecksum(t *testing.T) {
	e := testEngine(t)

	owner := config.NodeDefinition{Hostname: "s1", Port: 6000}
	require.NoError(t, e.SaveChunkSnapshot(1, []config.ChunkDefinition{
		{Start: config.Start(), End: config.End(), Owner: owner},
	}))

	// Flip a byte in the stored record; the crc16 trailer must catch it.
	key := "chunkmap:snapshot:0000000000000001"
	data, err := e.get(key)
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, e.set(key, data))

	_, _, err = e.LatestChunkSnapshot()
	assert.Error(t, err)
}
