package main

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	old := *configPath
	t.Cleanup(func() { *configPath = old })

	*configPath = ""
	if cfg := loadConfig(); cfg.GetNodeID() != 1 {
		t.Errorf("built-in node id = %d, want 1", cfg.GetNodeID())
	}

	*configPath = "../../config/node.defaults.yaml"
	cfg := loadConfig()
	if got := cfg.GetShutdownTimeout(); got != 2*time.Second {
		t.Errorf("shutdown timeout = %v, want 2s", got)
	}
	if !cfg.GetRelayEnabled() {
		t.Error("relay should be enabled by the defaults file")
	}
}
