package main

import (
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"vela/bus"
	"vela/config"
	"vela/engine"
)

func main() {
	configPath := flag.String("config", "controller.xml", "Path to the controller settings file")
	dataPath := flag.String("data", "veladb", "Path to the controller data directory")
	flag.Parse()

	settings, err := config.LoadSettings(*configPath)
	if err != nil {
		log.Fatalf("Couldn't load settings: %v", err)
	}

	ctrl, err := config.NewController(settings)
	if err != nil {
		log.Fatalf("Couldn't configure the controller: %v", err)
	}

	db, err := engine.NewEngine(*dataPath)
	if err != nil {
		log.Fatalf("Failed to init Pebble DB: %v", err)
	}
	defer db.Close()

	identity, err := db.LoadOrCreateIdentity(settings.NodeName, settings.ConnectionString)
	if err != nil {
		log.Fatalf("Identity check failed: %v", err)
	}

	b := bus.New(ctrl.Self)
	b.OnRequest = func(m *bus.Message) { bus.Route(b, ctrl, db, m) }
	b.OnConnectionLost = func(addr string, ntype config.NodeType) {
		bus.HandleConnectionLost(b, ctrl, db, addr, ntype)
	}

	if err := b.Listen(ctrl.Self.Port); err != nil {
		log.Fatalf("Couldn't start controller at port %d: %v", ctrl.Self.Port, err)
	}
	go b.Serve()

	log.Printf("[INFO] Controller started at %s", ctrl.Self.ConnectionName())
	log.Printf("[INFO] Instance ID: %s", identity.InstanceID)
	log.Printf("[INFO] Controller set: %q", settings.ConnectionString)

	if len(ctrl.Controllers) == 1 {
		// Sole controller, nothing to elect.
		ctrl.SetPrimary(ctrl.Self)
		log.Printf("[INFO] Sole configured controller, acting as primary")
	} else {
		for _, c := range ctrl.Others() {
			err := bus.ConnectToController(b, ctrl, c)
			if err == nil {
				continue
			}
			if errors.Is(err, bus.ErrJoinRejected) {
				log.Fatalf("Startup join failed: %v", err)
			}
			log.Printf("[WARN] Couldn't reach controller %s at startup: %v", c.ConnectionName(), err)
		}
	}

	go func() {
		if err := bus.Reconcile(b, ctrl); err != nil {
			log.Fatalf("Reconciler stopped: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("[INFO] Shutting down")
	ctrl.Stop()
	b.Close()
}
