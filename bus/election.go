package bus

import (
	"log"
	"slices"
	"strings"

	"vela/config"
)

// InitiateVoting runs one candidacy for this replica. The candidate
// needs a strict majority of the configured controller set connected, an
// all-true vote from every responder, and at least one response.
func InitiateVoting(b *Bus, s *config.Controller) {
	if _, ok := s.Primary(); ok {
		return
	}

	active := activeControllers(b, s)
	if !s.Quorum(active) {
		log.Printf("[WARN] Not enough controllers for voting: %d of %d active", active, len(s.Controllers))
		return
	}

	log.Printf("[INFO] Initiating voting (%d of %d controllers active)", active, len(s.Controllers))

	responses := 0
	allTrue := true
	for _, c := range s.Others() {
		resp, ok := b.Request(c.ConnectionName(), VotingRequest{})
		if !ok {
			log.Printf("[WARN] No voting response from %s", c.ConnectionName())
			continue
		}
		vr, isVote := resp.Payload.(*VotingResponse)
		if !isVote {
			continue
		}
		responses++
		if !vr.Answer {
			allTrue = false
		}
	}

	if responses == 0 || !allTrue {
		log.Printf("[INFO] Voting lost: %d responses, unanimous=%v", responses, allTrue)
		return
	}

	// A concurrent announcement wins over our own count.
	if p, ok := s.Primary(); ok && p != s.Self {
		log.Printf("[INFO] Primary %s discovered during voting, deferring", p.ConnectionName())
		return
	}

	s.SetPrimary(s.Self)
	log.Printf("[INFO] Voting won, this controller is now primary")

	for _, c := range s.Others() {
		if _, err := b.SendMessage(c.ConnectionName(), PrimaryAnnouncement{}, false); err != nil {
			log.Printf("[WARN] Couldn't announce primacy to %s: %v", c.ConnectionName(), err)
		}
	}
}

// candidate is one (controller, high-water mark) pair collected while
// answering a voting request.
type candidate struct {
	node config.NodeDefinition
	id   uint32
}

// pickWinner applies the deterministic vote rule: the candidate with the
// highest last-primary-message id wins, ties broken by ascending
// connection name. Every responder evaluating the same candidate set
// reaches the same winner.
func pickWinner(candidates []candidate) (config.NodeDefinition, bool) {
	if len(candidates) == 0 {
		return config.NodeDefinition{}, false
	}

	var maxID uint32
	for _, c := range candidates {
		if c.id > maxID {
			maxID = c.id
		}
	}

	best := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.id == maxID {
			best = append(best, c)
		}
	}
	slices.SortFunc(best, func(a, b candidate) int {
		return strings.Compare(a.node.ConnectionName(), b.node.ConnectionName())
	})
	return best[0].node, true
}
