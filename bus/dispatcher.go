package bus

import (
	"log"

	"vela/config"
	"vela/engine"
)

// Route dispatches one unsolicited inbound message. It runs on its own
// goroutine per message, so handlers may block on nested exchanges
// without starving the transport.
func Route(b *Bus, s *config.Controller, db *engine.Engine, m *Message) {
	// Track the high-water mark of ids seen from the current primary;
	// it decides election tie-breaks after the primary dies.
	if p, ok := s.Primary(); ok && m.From == p.ConnectionName() {
		s.ObservePrimaryMessageID(m.ID)
	}

	switch m.Payload.(type) {
	case *JoinAttempt:
		HandleJoin(b, s, db, m)
	case *VotingRequest:
		HandleVotingRequest(b, s, m)
	case *LastPrimaryMessageIDRequest:
		HandleLastPrimaryMessageIDRequest(b, s, m)
	case *PrimaryAnnouncement:
		HandlePrimaryAnnouncement(b, s, m)
	case *ChunkListUpdate:
		HandleChunkListUpdate(b, s, m)
	case *ChunkSplit:
		HandleChunkSplit(b, s, db, m)
	case *ChunkMerge:
		HandleChunkMerge(b, s, db, m)
	case *DataOperation:
		HandleDataOperation(b, s, m)
	case *StatsRequest:
		HandleStats(b, s, db, m)
	case *NodeList, *Acknowledgement:
		// Pushed state and stray acks need no handling here.
	default:
		log.Printf("[WARN] Unhandled %T from %s", m.Payload, m.From)
	}
}

// HandleConnectionLost reacts to a dropped link after its registry entry
// is gone: storage loss prunes the chunk map, controller loss re-checks
// the primary and the quorum.
func HandleConnectionLost(b *Bus, s *config.Controller, db *engine.Engine, addr string, ntype config.NodeType) {
	log.Printf("[INFO] Connection lost: %s (%s)", addr, ntype)

	if ntype == config.TypeStorage {
		owner, err := config.ParseNode(addr)
		if err != nil {
			return
		}
		version, removed := s.Chunks.RemoveOwner(owner)
		if removed > 0 {
			log.Printf("[WARN] Storage node %s lost, removed %d chunks. Coverage hole until the range is reported again", addr, removed)
			if s.IsPrimary() {
				persistChunkSnapshot(s, db, version)
				BroadcastChunkList(b, s)
			}
		}
		return
	}

	node, err := config.ParseNode(addr)
	if err != nil {
		return
	}
	configured := false
	for _, c := range s.Controllers {
		if c == node {
			configured = true
			break
		}
	}
	if !configured {
		return
	}

	if p, ok := s.Primary(); ok && p == node {
		log.Printf("[WARN] Primary controller %s disconnected", addr)
		s.ClearPrimary()
	}

	// Losing a controller can also cost the quorum; a primary cut off
	// from the majority may not keep acting as one, itself included.
	if !s.Quorum(activeControllers(b, s)) {
		if s.ClearPrimary() {
			log.Printf("[WARN] Controller quorum lost, clearing primary")
		}
	}
}

// activeControllers counts this replica plus every configured controller
// currently connected and established.
func activeControllers(b *Bus, s *config.Controller) int {
	active := 1
	for _, c := range s.Others() {
		if b.HasTyped(c.ConnectionName(), config.TypeController) {
			active++
		}
	}
	return active
}
