package bus

import (
	"errors"
	"log"
	"math/rand"
	"time"

	"vela/config"
)

// Reconcile interval bounds. The randomized delay keeps replicas from
// stampeding into synchronized elections after a shared network event.
var (
	reconcileMinDelay = 30 * time.Second
	reconcileMaxDelay = 120 * time.Second
)

func reconcileDelay() time.Duration {
	return reconcileMinDelay + time.Duration(rand.Int63n(int64(reconcileMaxDelay-reconcileMinDelay)))
}

// Reconcile is the periodic repair loop: redial configured controllers
// that fell out of the registry, then kick off voting when no primary is
// known. Runs until the controller stops. Returns ErrJoinRejected when a
// peer refuses our join, which means this replica is misconfigured.
func Reconcile(b *Bus, s *config.Controller) error {
	for s.Running() {
		time.Sleep(reconcileDelay())
		if !s.Running() {
			return nil
		}

		for _, c := range s.Others() {
			if b.HasTyped(c.ConnectionName(), config.TypeController) {
				continue
			}
			err := ConnectToController(b, s, c)
			if err == nil {
				continue
			}
			if errors.Is(err, ErrJoinRejected) {
				return err
			}
			log.Printf("[WARN] Reconnect to %s failed: %v", c.ConnectionName(), err)
		}

		if _, ok := s.Primary(); !ok {
			InitiateVoting(b, s)
		}
	}
	return nil
}
