package bus

import (
	"log"

	"vela/config"
	"vela/engine"
)

// BroadcastChunkList republishes the chunk map to every connected
// controller and query peer. Only the primary broadcasts. Sends go out
// serially and each one is awaited; the map lock is held for the whole
// round so no mutation interleaves with the republish.
func BroadcastChunkList(b *Bus, s *config.Controller) {
	if !s.IsPrimary() {
		return
	}

	s.Chunks.Locked(func(chunks []config.ChunkDefinition, version uint64) {
		update := ChunkListUpdate{Chunks: chunks}
		targets := append(b.PeersOfType(config.TypeController), b.PeersOfType(config.TypeQuery)...)
		for _, p := range targets {
			call, err := b.SendMessage(p.Addr, update, true)
			if err != nil {
				log.Printf("[WARN] Chunk list to %s failed: %v", p.Addr, err)
				continue
			}
			if _, ok := call.BlockUntilDone(); !ok {
				log.Printf("[WARN] Chunk list to %s not acknowledged", p.Addr)
			}
		}
		log.Printf("[INFO] Broadcast chunk list v%d (%d chunks) to %d peers", version, len(chunks), len(targets))
	})
}

// BroadcastNodeList pushes the list of peers of listType to every
// established peer of toType.
func BroadcastNodeList(b *Bus, listType, toType config.NodeType) {
	nodes := nodeDefinitions(b, listType)
	list := NodeList{Type: listType, Nodes: nodes}
	for _, p := range b.PeersOfType(toType) {
		if _, err := b.SendMessage(p.Addr, list, false); err != nil {
			log.Printf("[WARN] Couldn't send %s node list to %s: %v", listType, p.Addr, err)
		}
	}
}

// persistChunkSnapshot journals the current chunk map on the primary.
func persistChunkSnapshot(s *config.Controller, db *engine.Engine, version uint64) {
	if db == nil {
		return
	}
	if err := db.SaveChunkSnapshot(version, s.Chunks.Snapshot()); err != nil {
		log.Printf("[WARN] Couldn't journal chunk snapshot %d: %v", version, err)
	}
}
