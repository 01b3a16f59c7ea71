package bus

import (
	"fmt"
	"log"
	"strconv"

	"vela/config"
	"vela/engine"
)

// HandleJoin runs the admission protocol for an inbound JoinAttempt.
// The connection arrives under an ephemeral source address; on success
// the registry entry is rebound to the canonical address the peer
// declared, the peer is classified, and the relevant cluster state is
// pushed to it.
func HandleJoin(b *Bus, s *config.Controller, db *engine.Engine, m *Message) {
	ja, ok := m.Payload.(*JoinAttempt)
	if !ok {
		return
	}

	canonical := config.NodeDefinition{Hostname: ja.Name, Port: ja.Port}
	log.Printf("[INFO] Join attempt from %s: type=%s canonical=%s primaryClaim=%v",
		m.From, ja.Type, canonical.ConnectionName(), ja.PrimaryClaim)

	if reason := checkCompatibility(s, ja); reason != "" {
		log.Printf("[WARN] Rejecting %s join from %s: %s", ja.Type, canonical.ConnectionName(), reason)
		b.SendReply(m, JoinFailure{Reason: reason}, false)
		return
	}

	if !admit(b, m, canonical, ja.Type) {
		return
	}

	switch ja.Type {
	case config.TypeController:
		joinController(b, s, m, canonical, ja.PrimaryClaim)
	case config.TypeQuery:
		joinQuery(b, s, m, canonical)
	case config.TypeStorage:
		joinStorage(b, s, db, m, canonical)
	case config.TypeApi:
		joinApi(b, s, m, canonical)
	case config.TypeConsole:
		b.SendReply(m, JoinSuccess{Primary: s.IsPrimary()}, false)
		log.Printf("[INFO] Console %s joined", canonical.ConnectionName())
	}
}

// checkCompatibility applies the per-type compatibility rules. An empty
// reason admits the peer.
func checkCompatibility(s *config.Controller, ja *JoinAttempt) string {
	switch ja.Type {
	case config.TypeController:
		peerSettings, err := config.ParseSettings([]byte(ja.Settings))
		if err != nil {
			return fmt.Sprintf("unreadable settings document: %v", err)
		}
		if peerSettings.ConnectionString != s.Settings.ConnectionString {
			return fmt.Sprintf("connection string mismatch: %q vs %q",
				peerSettings.ConnectionString, s.Settings.ConnectionString)
		}
		if peerSettings.MaxChunkItemCount != s.Settings.MaxChunkItemCount {
			return fmt.Sprintf("MaxChunkItemCount mismatch: %d vs %d",
				peerSettings.MaxChunkItemCount, s.Settings.MaxChunkItemCount)
		}
		if peerSettings.RedundantNodesPerLocation != s.Settings.RedundantNodesPerLocation {
			return fmt.Sprintf("RedundantNodesPerLocation mismatch: %d vs %d",
				peerSettings.RedundantNodesPerLocation, s.Settings.RedundantNodesPerLocation)
		}
	case config.TypeQuery, config.TypeStorage:
		peerSettings, err := config.ParseSettings([]byte(ja.Settings))
		if err != nil {
			return fmt.Sprintf("unreadable settings document: %v", err)
		}
		if peerSettings.ConnectionString != s.Settings.ConnectionString {
			return fmt.Sprintf("connection string mismatch: %q vs %q",
				peerSettings.ConnectionString, s.Settings.ConnectionString)
		}
	case config.TypeApi:
		// Api nodes send the raw connection string, not a document.
		if ja.Settings != s.Settings.ConnectionString {
			return fmt.Sprintf("connection string mismatch: %q vs %q",
				ja.Settings, s.Settings.ConnectionString)
		}
	case config.TypeConsole:
		// Consoles are always welcome.
	default:
		return fmt.Sprintf("unknown node type %d", ja.Type)
	}
	return ""
}

// admit rebinds the transport entry to the canonical address and
// classifies the peer. A duplicate canonical key keeps the established
// link; the newcomer was already dropped by the registry.
func admit(b *Bus, m *Message, canonical config.NodeDefinition, ntype config.NodeType) bool {
	if !b.Rename(m.From, canonical.ConnectionName()) {
		return false
	}
	m.From = canonical.ConnectionName()
	b.MarkEstablished(canonical.ConnectionName(), ntype)
	return true
}

// replyAndAwaitAck sends JoinSuccess and waits for the joiner's
// acknowledgement before any follow-up state push.
func replyAndAwaitAck(b *Bus, m *Message, js JoinSuccess) bool {
	call, err := b.SendReply(m, js, true)
	if err != nil {
		log.Printf("[WARN] Couldn't send JoinSuccess to %s: %v", m.From, err)
		return false
	}
	if _, ok := call.BlockUntilDone(); !ok {
		log.Printf("[WARN] No acknowledgement from %s after JoinSuccess", m.From)
		return false
	}
	return true
}

func joinController(b *Bus, s *config.Controller, m *Message, canonical config.NodeDefinition, primaryClaim bool) {
	if !replyAndAwaitAck(b, m, JoinSuccess{Primary: s.IsPrimary()}) {
		return
	}
	log.Printf("[INFO] Controller %s joined", canonical.ConnectionName())

	if primaryClaim {
		log.Printf("[INFO] Controller %s claims primacy, installing as primary", canonical.ConnectionName())
		s.SetPrimary(canonical)
	}

	BroadcastChunkList(b, s)
}

func joinQuery(b *Bus, s *config.Controller, m *Message, canonical config.NodeDefinition) {
	if !replyAndAwaitAck(b, m, JoinSuccess{Primary: s.IsPrimary()}) {
		return
	}
	log.Printf("[INFO] Query node %s joined", canonical.ConnectionName())

	sendNodeList(b, m.From, config.TypeStorage)
	if s.IsPrimary() {
		BroadcastNodeList(b, config.TypeQuery, config.TypeApi)
	}
	BroadcastChunkList(b, s)
}

func joinStorage(b *Bus, s *config.Controller, db *engine.Engine, m *Message, canonical config.NodeDefinition) {
	js := JoinSuccess{Primary: s.IsPrimary()}
	if s.IsPrimary() {
		// Only the primary hands out the split threshold.
		js.Doc = map[string]string{
			"maxChunkItemCount": strconv.Itoa(s.Settings.MaxChunkItemCount),
		}
	}
	if !replyAndAwaitAck(b, m, js) {
		return
	}
	log.Printf("[INFO] Storage node %s joined", canonical.ConnectionName())

	if s.IsPrimary() {
		BroadcastNodeList(b, config.TypeStorage, config.TypeQuery)
	}

	if s.IsPrimary() && s.Chunks.Len() == 0 {
		bootstrapChunkMap(b, s, db, canonical)
	}
}

func joinApi(b *Bus, s *config.Controller, m *Message, canonical config.NodeDefinition) {
	if !replyAndAwaitAck(b, m, JoinSuccess{Primary: s.IsPrimary()}) {
		return
	}
	log.Printf("[INFO] Api node %s joined", canonical.ConnectionName())

	sendNodeList(b, m.From, config.TypeQuery)
}

// bootstrapChunkMap gives the first storage node the whole key space.
// The chunk only sticks if some storage node accepts the database
// create; otherwise the speculative entry is rolled back and the next
// storage join retries.
func bootstrapChunkMap(b *Bus, s *config.Controller, db *engine.Engine, owner config.NodeDefinition) {
	version, err := s.Chunks.Install(owner)
	if err != nil {
		log.Printf("[WARN] Chunk map bootstrap skipped: %v", err)
		return
	}
	log.Printf("[INFO] Installed full-range chunk owned by %s", owner.ConnectionName())

	created := false
	for _, p := range b.PeersOfType(config.TypeStorage) {
		resp, ok := b.Request(p.Addr, DatabaseCreate{Name: s.Settings.NodeName})
		if !ok {
			log.Printf("[WARN] DatabaseCreate to %s timed out", p.Addr)
			continue
		}
		if r, isResult := resp.Payload.(*DataOperationResult); isResult && r.Failed {
			log.Printf("[WARN] DatabaseCreate rejected by %s: %s", p.Addr, r.Message)
			continue
		}
		created = true
		break
	}

	if !created {
		s.Chunks.Clear()
		log.Printf("[WARN] No storage node accepted DatabaseCreate, chunk map rolled back")
		return
	}

	persistChunkSnapshot(s, db, version)
	BroadcastChunkList(b, s)
}

// sendNodeList pushes the current list of peers of one type to a single
// peer.
func sendNodeList(b *Bus, to string, ntype config.NodeType) {
	nodes := nodeDefinitions(b, ntype)
	if _, err := b.SendMessage(to, NodeList{Type: ntype, Nodes: nodes}, false); err != nil {
		log.Printf("[WARN] Couldn't send %s node list to %s: %v", ntype, to, err)
	}
}

func nodeDefinitions(b *Bus, ntype config.NodeType) []config.NodeDefinition {
	peers := b.PeersOfType(ntype)
	nodes := make([]config.NodeDefinition, 0, len(peers))
	for _, p := range peers {
		node, err := config.ParseNode(p.Addr)
		if err != nil {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes
}
