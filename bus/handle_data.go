package bus

import (
	"log"

	"vela/config"
)

const noQueryNodeMessage = "Could not reach a query node."

// HandleDataOperation proxies a data operation from a non-query client
// to the first connected query node and relays the reply. The controller
// never executes data operations itself.
func HandleDataOperation(b *Bus, s *config.Controller, m *Message) {
	op, ok := m.Payload.(*DataOperation)
	if !ok {
		return
	}

	queries := b.PeersOfType(config.TypeQuery)
	if len(queries) == 0 {
		b.SendReply(m, DataOperationResult{Failed: true, Message: noQueryNodeMessage}, false)
		return
	}

	// First enumerated wins; there is no load balancing here.
	target := queries[0]
	resp, ok := b.Request(target.Addr, DataOperation{Body: op.Body})
	if !ok {
		log.Printf("[WARN] Data operation forward to %s failed", target.Addr)
		b.SendReply(m, DataOperationResult{Failed: true, Message: noQueryNodeMessage}, false)
		return
	}

	if result, isResult := resp.Payload.(*DataOperationResult); isResult {
		b.SendReply(m, *result, false)
		return
	}
	b.SendReply(m, DataOperationResult{Failed: true, Message: "Unexpected reply from query node."}, false)
}
