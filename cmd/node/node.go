package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/meshpilot/internal/api"
	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/config"
	"github.com/banshee-data/meshpilot/internal/db"
	"github.com/banshee-data/meshpilot/internal/health"
	"github.com/banshee-data/meshpilot/internal/monitoring"
	"github.com/banshee-data/meshpilot/internal/navigation"
	"github.com/banshee-data/meshpilot/internal/pipeline"
	"github.com/banshee-data/meshpilot/internal/relay"
	"github.com/banshee-data/meshpilot/internal/timeutil"
	"github.com/banshee-data/meshpilot/internal/transport"
	"github.com/banshee-data/meshpilot/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Node config file (.json, .yaml); empty for built-in defaults")
	listen      = flag.String("listen", ":8090", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", ":8091", "gRPC health listen address (empty to disable)")
	udpAddress  = flag.String("udp-addr", ":5400", "UDP bind address for setpoint frames (empty to disable)")
	relayAddr   = flag.String("relay-addr", "", "UDP address to rebroadcast stamped frames to")
	serialPort  = flag.String("serial", "", "Serial radio device; frames are received and relayed over it")
	baudRate    = flag.Int("baud", 115200, "Serial radio baud rate")
	dbFile      = flag.String("db", "flight.db", "Path to the SQLite flight database")
	rcvBuf      = flag.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	logInterval = flag.Duration("log-interval", 2*time.Second, "Statistics logging interval")
)

func loadConfig() *config.NodeConfig {
	if *configPath == "" {
		return &config.NodeConfig{}
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func main() {
	flag.Parse()
	log.Printf("meshpilot node %s", version.String())

	cfg := loadConfig()
	clock := timeutil.RealClock{}

	cmd := commander.New(cfg.CommanderConfig(), clock)
	loc := navigation.NewLocator(cfg.LocatorConfig(), clock)
	stats := monitoring.NewLinkStats()

	flightDB, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open flight database: %v", err)
	}
	defer flightDB.Close()

	sess, err := flightDB.StartSession(cfg.GetNodeID(), version.Version, clock.Now())
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	defer func() {
		if err := flightDB.EndSession(sess.ID, clock.Now()); err != nil {
			log.Printf("failed to end session: %v", err)
		}
	}()
	log.Printf("node %d session %s", cfg.GetNodeID(), sess.ID)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var link *transport.SerialLink
	if *serialPort != "" {
		link, err = transport.OpenSerial(*serialPort, transport.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open serial radio: %v", err)
		}
		defer link.Close()
	}

	// relay target: the serial radio when present, otherwise a UDP peer
	var relayTx pipeline.Transmitter
	var stamper *relay.Stamper
	if cfg.GetRelayEnabled() {
		var hook relay.Hook
		if cfg.GetRelayFoldEstimate() {
			hook = relay.EstimateHook{Source: loc, Scale: cfg.GetPositionScale()}
		}
		stamper = relay.New(cfg.GetNodeID(), hook)

		switch {
		case link != nil:
			relayTx = link
		case *relayAddr != "":
			fwd, err := transport.NewForwarder(*relayAddr, stats, *logInterval)
			if err != nil {
				log.Fatalf("failed to create relay forwarder: %v", err)
			}
			defer fwd.Close()
			fwd.Start(ctx)
			relayTx = fwd
		}
	}

	receiver := pipeline.NewReceiver(pipeline.ReceiverConfig{
		Commander: cmd,
		Locator:   loc,
		Stamper:   stamper,
		Relay:     relayTx,
		Stats:     stats,
	})

	if *udpAddress != "" {
		listener := transport.NewListener(transport.ListenerConfig{
			Address: *udpAddress,
			RcvBuf:  *rcvBuf,
			Handler: receiver,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("UDP listener error: %v", err)
			}
			log.Print("UDP listener terminated")
		}()
	}

	if link != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := link.Run(ctx, receiver); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serial radio error: %v", err)
			}
			log.Print("serial radio terminated")
		}()
	}

	loop := pipeline.NewControlLoop(pipeline.LoopConfig{
		Period:     cfg.GetControlPeriod(),
		SolveEvery: cfg.GetSolveEvery(),
		Clock:      clock,
		Commander:  cmd,
		Locator:    loc,
		Store:      flightDB.ForSession(sess.ID),
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("control loop error: %v", err)
		}
		log.Print("control loop terminated")
	}()

	reporter := health.NewReporter(cmd, clock, health.DefaultPeriod)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = reporter.Run(ctx)
	}()
	if *grpcListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reporter.ListenAndServe(ctx, *grpcListen); err != nil {
				log.Printf("grpc health error: %v", err)
			}
		}()
	}

	// stats logging
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(*logInterval)
		defer ticker.Stop()
		var lastDropped uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats.LogStats()
				if d := loop.DroppedRecords(); d != lastDropped {
					log.Printf("flight recorder dropped %d writes", d-lastDropped)
					lastDropped = d
				}
			}
		}
	}()

	apiServer := api.NewServer(api.Config{
		Commander: cmd,
		Locator:   loc,
		Stats:     stats,
		Loop:      loop,
		DB:        flightDB,
		SessionID: sess.ID,
	})
	mux := apiServer.ServeMux()
	apiServer.AttachDebugRoutes(mux)
	if err := flightDB.AttachAdminRoutes(mux); err != nil {
		log.Fatalf("failed to attach admin routes: %v", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
