package engine

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"log"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"vela/config"
	"vela/utils"
)

const (
	identityKey       = "config:controller:identity"
	snapshotKeyPrefix = "chunkmap:snapshot:"
	snapshotLatestKey = "chunkmap:latest"
)

// ErrClusterIdentityChanged is returned when a data directory that was
// initialised for one cluster is restarted with a different connection
// string. The cluster identity of a directory never changes.
var ErrClusterIdentityChanged = errors.New("cluster identity changed")

// Identity pins a data directory to one node of one cluster.
type Identity struct {
	InstanceID       string
	NodeName         string
	ConnectionString string
}

// LoadOrCreateIdentity loads the identity pin, minting one on first boot.
// A pin recorded under a different connection string is a configuration
// error and fatal to startup.
func (e *Engine) LoadOrCreateIdentity(nodeName, connectionString string) (Identity, error) {
	data, err := e.get(identityKey)
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			return Identity{}, fmt.Errorf("couldn't read identity: %w", err)
		}

		id := Identity{
			InstanceID:       uuid.New().String(),
			NodeName:         nodeName,
			ConnectionString: connectionString,
		}
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(id); err != nil {
			return Identity{}, fmt.Errorf("couldn't encode identity: %w", err)
		}
		if err := e.set(identityKey, utils.AppendChecksum(buf.Bytes())); err != nil {
			return Identity{}, fmt.Errorf("couldn't persist identity: %w", err)
		}
		log.Printf("[INFO] Created controller identity. InstanceID: %s", id.InstanceID)
		return id, nil
	}

	body, err := utils.VerifyChecksum(data)
	if err != nil {
		return Identity{}, fmt.Errorf("identity record corrupt: %w", err)
	}
	var id Identity
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("couldn't decode identity: %w", err)
	}

	if id.ConnectionString != connectionString {
		return Identity{}, fmt.Errorf("%w: stored %q, configured %q",
			ErrClusterIdentityChanged, id.ConnectionString, connectionString)
	}
	log.Printf("[INFO] Loaded controller identity. InstanceID: %s", id.InstanceID)
	return id, nil
}

// SaveChunkSnapshot journals the chunk map under its version stamp and
// advances the latest pointer. The primary writes one per mutation.
func (e *Engine) SaveChunkSnapshot(version uint64, chunks []config.ChunkDefinition) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(chunks); err != nil {
		return fmt.Errorf("couldn't encode chunk snapshot: %w", err)
	}

	key := fmt.Sprintf("%s%016d", snapshotKeyPrefix, version)
	if err := e.set(key, utils.AppendChecksum(buf.Bytes())); err != nil {
		return fmt.Errorf("couldn't persist chunk snapshot: %w", err)
	}

	latest := make([]byte, 8)
	binary.LittleEndian.PutUint64(latest, version)
	return e.set(snapshotLatestKey, latest)
}

// LatestChunkSnapshot reads back the most recently journalled chunk map.
// Returns version 0 and no chunks when nothing was journalled yet.
func (e *Engine) LatestChunkSnapshot() (uint64, []config.ChunkDefinition, error) {
	latest, err := e.get(snapshotLatestKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil, nil
		}
		return 0, nil, fmt.Errorf("couldn't read latest snapshot pointer: %w", err)
	}
	if len(latest) != 8 {
		return 0, nil, errors.New("latest snapshot pointer corrupt")
	}
	version := binary.LittleEndian.Uint64(latest)

	data, err := e.get(fmt.Sprintf("%s%016d", snapshotKeyPrefix, version))
	if err != nil {
		return 0, nil, fmt.Errorf("couldn't read chunk snapshot %d: %w", version, err)
	}
	body, err := utils.VerifyChecksum(data)
	if err != nil {
		return 0, nil, fmt.Errorf("chunk snapshot %d corrupt: %w", version, err)
	}

	var chunks []config.ChunkDefinition
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&chunks); err != nil {
		return 0, nil, fmt.Errorf("couldn't decode chunk snapshot %d: %w", version, err)
	}
	return version, chunks, nil
}
