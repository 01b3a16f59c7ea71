package bus

import (
	"log"

	"vela/config"
)

// HandleVotingRequest answers a candidacy. A replica that still has a
// primary votes no outright. Otherwise it polls every other controller
// for its last-primary-message id and votes yes iff the requester is the
// deterministic winner among the responders.
func HandleVotingRequest(b *Bus, s *config.Controller, m *Message) {
	if p, ok := s.Primary(); ok {
		log.Printf("[INFO] Voting request from %s denied, primary is %s", m.From, p.ConnectionName())
		b.SendReply(m, VotingResponse{Answer: false}, false)
		return
	}

	var candidates []candidate
	for _, c := range s.Others() {
		resp, ok := b.Request(c.ConnectionName(), LastPrimaryMessageIDRequest{})
		if !ok {
			continue
		}
		lr, isResp := resp.Payload.(*LastPrimaryMessageIDResponse)
		if !isResp {
			continue
		}
		candidates = append(candidates, candidate{node: c, id: lr.ID})
	}

	winner, ok := pickWinner(candidates)
	answer := ok && winner.ConnectionName() == m.From
	log.Printf("[INFO] Voting request from %s: %d candidates polled, answer=%v", m.From, len(candidates), answer)
	b.SendReply(m, VotingResponse{Answer: answer}, false)
}

// HandleLastPrimaryMessageIDRequest reports this replica's high-water
// mark of message ids seen from the late primary.
func HandleLastPrimaryMessageIDRequest(b *Bus, s *config.Controller, m *Message) {
	b.SendReply(m, LastPrimaryMessageIDResponse{ID: s.LastPrimaryMessageID()}, false)
}

// HandlePrimaryAnnouncement installs the announcing controller as
// primary.
func HandlePrimaryAnnouncement(b *Bus, s *config.Controller, m *Message) {
	node, err := config.ParseNode(m.From)
	if err != nil {
		log.Printf("[WARN] Primary announcement from unparseable address %s", m.From)
		return
	}
	log.Printf("[INFO] Primary announcement from %s", m.From)
	s.SetPrimary(node)
}
