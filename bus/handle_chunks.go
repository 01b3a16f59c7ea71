package bus

import (
	"log"

	"vela/config"
	"vela/engine"
)

// HandleChunkSplit applies a split reported by a storage node. The
// request is acknowledged even when the target chunk is missing: a miss
// means the sender had a stale view, and the next chunk-list broadcast
// reconverges it.
func HandleChunkSplit(b *Bus, s *config.Controller, db *engine.Engine, m *Message) {
	split, ok := m.Payload.(*ChunkSplit)
	if !ok {
		return
	}

	if !s.IsPrimary() {
		log.Printf("[WARN] Chunk split from %s received on a non-primary, ignoring", m.From)
		b.SendReply(m, Acknowledgement{}, false)
		return
	}

	owner, err := config.ParseNode(m.From)
	if err != nil {
		log.Printf("[WARN] Chunk split from unparseable address %s", m.From)
		b.SendReply(m, Acknowledgement{}, false)
		return
	}

	version, found := s.Chunks.ApplySplit(split.Start1, split.End1, split.Start2, split.End2, owner)
	if !found {
		log.Printf("[WARN] Chunk split from %s targeted an absent chunk starting at %s", m.From, split.Start1)
	} else {
		log.Printf("[INFO] Chunk split by %s: [%s,%s) and [%s,%s)", m.From, split.Start1, split.End1, split.Start2, split.End2)
	}
	b.SendReply(m, Acknowledgement{}, false)

	persistChunkSnapshot(s, db, version)
	BroadcastChunkList(b, s)
}

// HandleChunkMerge applies a merge reported by a storage node. The two
// source chunks are located by start and by end independently.
func HandleChunkMerge(b *Bus, s *config.Controller, db *engine.Engine, m *Message) {
	merge, ok := m.Payload.(*ChunkMerge)
	if !ok {
		return
	}

	if !s.IsPrimary() {
		log.Printf("[WARN] Chunk merge from %s received on a non-primary, ignoring", m.From)
		b.SendReply(m, Acknowledgement{}, false)
		return
	}

	owner, err := config.ParseNode(m.From)
	if err != nil {
		log.Printf("[WARN] Chunk merge from unparseable address %s", m.From)
		b.SendReply(m, Acknowledgement{}, false)
		return
	}

	version, found := s.Chunks.ApplyMerge(merge.Start, merge.End, owner)
	if !found {
		log.Printf("[WARN] Chunk merge from %s targeted absent chunks at [%s,%s)", m.From, merge.Start, merge.End)
	} else {
		log.Printf("[INFO] Chunk merge by %s: [%s,%s)", m.From, merge.Start, merge.End)
	}
	b.SendReply(m, Acknowledgement{}, false)

	persistChunkSnapshot(s, db, version)
	BroadcastChunkList(b, s)
}

// HandleChunkListUpdate adopts the primary's chunk list wholesale on a
// non-primary replica.
func HandleChunkListUpdate(b *Bus, s *config.Controller, m *Message) {
	update, ok := m.Payload.(*ChunkListUpdate)
	if !ok {
		return
	}

	if s.IsPrimary() {
		log.Printf("[WARN] Chunk list update from %s ignored, this replica is primary", m.From)
	} else {
		s.Chunks.ReplaceAll(update.Chunks)
		log.Printf("[INFO] Adopted chunk list from %s (%d chunks)", m.From, len(update.Chunks))
	}

	if m.WaitingForResponse {
		b.SendReply(m, Acknowledgement{}, false)
	}
}
