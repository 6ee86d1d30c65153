// Command frame-replay feeds the UDP payloads of a pcap capture through the
// receive pipeline and reports what the commander and locator made of them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/meshpilot/internal/config"
)

func main() {
	pcapFile := flag.String("pcap", "", "Capture file to replay (required)")
	port := flag.Int("port", 5400, "UDP port carrying setpoint frames (0 for any)")
	speed := flag.Float64("speed", 0, "Replay speed multiplier (0 replays as fast as possible)")
	configPath := flag.String("config", "", "Node config file; empty for built-in defaults")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("-pcap is required")
	}
	cfg := &config.NodeConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	f, err := os.Open(*pcapFile)
	if err != nil {
		log.Fatalf("failed to open capture: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		log.Fatalf("failed to stat capture: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("replaying %s (%s)", *pcapFile, humanize.Bytes(uint64(info.Size())))
	rep, err := replay(ctx, f, replayConfig{Port: *port, Speed: *speed, Node: cfg})
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			log.Fatalf("failed to encode report: %v", err)
		}
		return
	}
	rep.print(os.Stdout)
}
