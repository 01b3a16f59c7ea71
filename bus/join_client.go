package bus

import (
	"errors"
	"fmt"
	"log"

	"vela/config"
)

// ErrJoinRejected means a configured controller refused this replica's
// join attempt. That is a configuration error, not a transient failure:
// the caller must terminate.
var ErrJoinRejected = errors.New("join rejected by peer controller")

// ConnectToController opens a link to a configured controller and runs
// the join handshake. Transient failures (dial, timeout) are returned
// for the reconciler to retry; ErrJoinRejected is fatal.
func ConnectToController(b *Bus, s *config.Controller, target config.NodeDefinition) error {
	addr := target.ConnectionName()
	if b.HasTyped(addr, config.TypeController) {
		return nil
	}

	if err := b.Dial(addr); err != nil {
		return err
	}

	attempt := JoinAttempt{
		Type:         config.TypeController,
		Name:         s.Self.Hostname,
		Port:         s.Self.Port,
		Settings:     s.Settings.Document(),
		PrimaryClaim: s.IsPrimary(),
	}
	call, err := b.SendMessage(addr, attempt, true)
	if err != nil {
		return err
	}
	resp, ok := call.BlockUntilDone()
	if !ok {
		b.ClosePeer(addr)
		return fmt.Errorf("join attempt to %s timed out", addr)
	}

	switch payload := resp.Payload.(type) {
	case *JoinFailure:
		b.ClosePeer(addr)
		return fmt.Errorf("%w: %s: %s", ErrJoinRejected, addr, payload.Reason)
	case *JoinSuccess:
		b.MarkEstablished(addr, config.TypeController)
		// The responder holds its join handling until this ack lands.
		resp.From = addr
		b.SendReply(resp, Acknowledgement{}, false)
		if payload.Primary {
			log.Printf("[INFO] Controller %s is primary", addr)
			s.SetPrimary(target)
		}
		log.Printf("[INFO] Joined controller %s", addr)
		return nil
	}
	b.ClosePeer(addr)
	return fmt.Errorf("unexpected join reply %T from %s", resp.Payload, addr)
}
