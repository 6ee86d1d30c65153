package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/meshpilot/internal/commander"
	"github.com/banshee-data/meshpilot/internal/navigation"
)

// DefaultConfigPath is the node configuration read when no -config flag is
// given.
const DefaultConfigPath = "config/node.defaults.yaml"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// NodeConfig is the on-disk node configuration. Every field is optional;
// the Get* accessors supply defaults for anything left unset, so partial
// files are safe.
type NodeConfig struct {
	NodeID *int `json:"node_id,omitempty" yaml:"node_id,omitempty"`

	// Watchdog and control loop
	StabilizeTimeout *string `json:"stabilize_timeout,omitempty" yaml:"stabilize_timeout,omitempty"` // duration string like "500ms"
	ShutdownTimeout  *string `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
	ControlPeriod    *string `json:"control_period,omitempty" yaml:"control_period,omitempty"`
	MinThrust        *int    `json:"min_thrust,omitempty" yaml:"min_thrust,omitempty"`
	MaxThrust        *int    `json:"max_thrust,omitempty" yaml:"max_thrust,omitempty"`
	DefaultYawMode   *string `json:"default_yaw_mode,omitempty" yaml:"default_yaw_mode,omitempty"`

	// Positioning
	TrilaterationEpsilon *float64        `json:"trilateration_epsilon,omitempty" yaml:"trilateration_epsilon,omitempty"`
	PositionScale        *float64        `json:"position_scale,omitempty" yaml:"position_scale,omitempty"`
	AnchorMaxAge         *string         `json:"anchor_max_age,omitempty" yaml:"anchor_max_age,omitempty"`
	SolveEvery           *int            `json:"solve_every,omitempty" yaml:"solve_every,omitempty"`
	PathLoss             *PathLossConfig `json:"path_loss,omitempty" yaml:"path_loss,omitempty"`

	// Relay
	RelayEnabled      *bool `json:"relay_enabled,omitempty" yaml:"relay_enabled,omitempty"`
	RelayFoldEstimate *bool `json:"relay_fold_estimate,omitempty" yaml:"relay_fold_estimate,omitempty"`
}

// PathLossConfig overrides the link-quality range model.
type PathLossConfig struct {
	RefAttenuation *float64 `json:"ref_attenuation_db,omitempty" yaml:"ref_attenuation_db,omitempty"`
	RefDistance    *float64 `json:"ref_distance_m,omitempty" yaml:"ref_distance_m,omitempty"`
	Exponent       *float64 `json:"exponent,omitempty" yaml:"exponent,omitempty"`
}

// Load reads a node configuration from a .json, .yaml or .yml file and
// validates it.
func Load(path string) (*NodeConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &NodeConfig{}
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

// Validate checks the values that are set.
func (c *NodeConfig) Validate() error {
	if c.NodeID != nil && (*c.NodeID < 0 || *c.NodeID > 255) {
		return fmt.Errorf("node_id must be between 0 and 255, got %d", *c.NodeID)
	}

	for name, v := range map[string]*string{
		"stabilize_timeout": c.StabilizeTimeout,
		"shutdown_timeout":  c.ShutdownTimeout,
		"control_period":    c.ControlPeriod,
		"anchor_max_age":    c.AnchorMaxAge,
	} {
		if err := parseDuration(name, v); err != nil {
			return err
		}
	}
	if c.GetStabilizeTimeout() >= c.GetShutdownTimeout() {
		return fmt.Errorf("stabilize_timeout (%v) must be shorter than shutdown_timeout (%v)",
			c.GetStabilizeTimeout(), c.GetShutdownTimeout())
	}

	for name, v := range map[string]*int{"min_thrust": c.MinThrust, "max_thrust": c.MaxThrust} {
		if v != nil && (*v < 0 || *v > 65535) {
			return fmt.Errorf("%s must be between 0 and 65535, got %d", name, *v)
		}
	}
	if c.GetMinThrust() >= c.GetMaxThrust() {
		return fmt.Errorf("min_thrust (%d) must be below max_thrust (%d)", c.GetMinThrust(), c.GetMaxThrust())
	}

	if c.DefaultYawMode != nil {
		if _, err := commander.ParseYawMode(*c.DefaultYawMode); err != nil {
			return err
		}
	}
	if c.TrilaterationEpsilon != nil && *c.TrilaterationEpsilon <= 0 {
		return fmt.Errorf("trilateration_epsilon must be positive, got %g", *c.TrilaterationEpsilon)
	}
	if c.PositionScale != nil && *c.PositionScale <= 0 {
		return fmt.Errorf("position_scale must be positive, got %g", *c.PositionScale)
	}
	if c.SolveEvery != nil && *c.SolveEvery < 1 {
		return fmt.Errorf("solve_every must be at least 1, got %d", *c.SolveEvery)
	}
	if pl := c.PathLoss; pl != nil {
		if pl.Exponent != nil && *pl.Exponent <= 0 {
			return fmt.Errorf("path_loss.exponent must be positive, got %g", *pl.Exponent)
		}
		if pl.RefDistance != nil && *pl.RefDistance <= 0 {
			return fmt.Errorf("path_loss.ref_distance_m must be positive, got %g", *pl.RefDistance)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def // default on parse error
	}
	return d
}

// GetNodeID returns the node id or 1.
func (c *NodeConfig) GetNodeID() uint8 {
	if c.NodeID == nil {
		return 1
	}
	return uint8(*c.NodeID)
}

// GetStabilizeTimeout returns the attitude derate deadline.
func (c *NodeConfig) GetStabilizeTimeout() time.Duration {
	return durationOr(c.StabilizeTimeout, commander.DefaultStabilizeTimeout)
}

// GetShutdownTimeout returns the thrust cut deadline.
func (c *NodeConfig) GetShutdownTimeout() time.Duration {
	return durationOr(c.ShutdownTimeout, commander.DefaultShutdownTimeout)
}

// GetControlPeriod returns the control loop period. The default runs the
// loop at 100 Hz.
func (c *NodeConfig) GetControlPeriod() time.Duration {
	return durationOr(c.ControlPeriod, 10*time.Millisecond)
}

func (c *NodeConfig) GetMinThrust() int {
	if c.MinThrust == nil {
		return commander.DefaultMinThrust
	}
	return *c.MinThrust
}

func (c *NodeConfig) GetMaxThrust() int {
	if c.MaxThrust == nil {
		return commander.DefaultMaxThrust
	}
	return *c.MaxThrust
}

// GetDefaultYawMode returns the boot yaw mode, X unless configured.
func (c *NodeConfig) GetDefaultYawMode() commander.YawMode {
	if c.DefaultYawMode == nil {
		return commander.XMode
	}
	m, err := commander.ParseYawMode(*c.DefaultYawMode)
	if err != nil {
		return commander.XMode
	}
	return m
}

func (c *NodeConfig) GetTrilaterationEpsilon() float64 {
	if c.TrilaterationEpsilon == nil {
		return navigation.DefaultEpsilon
	}
	return *c.TrilaterationEpsilon
}

// GetPositionScale returns metres per unit of the frame position hints.
func (c *NodeConfig) GetPositionScale() float64 {
	if c.PositionScale == nil {
		return navigation.DefaultScale
	}
	return *c.PositionScale
}

func (c *NodeConfig) GetAnchorMaxAge() time.Duration {
	return durationOr(c.AnchorMaxAge, navigation.DefaultMaxAge)
}

// GetSolveEvery returns how many control cycles pass between position
// solves.
func (c *NodeConfig) GetSolveEvery() int {
	if c.SolveEvery == nil {
		return 10
	}
	return *c.SolveEvery
}

func (c *NodeConfig) GetRelayEnabled() bool {
	if c.RelayEnabled == nil {
		return true
	}
	return *c.RelayEnabled
}

func (c *NodeConfig) GetRelayFoldEstimate() bool {
	if c.RelayFoldEstimate == nil {
		return false
	}
	return *c.RelayFoldEstimate
}

// GetPathLoss returns the range model with any overrides applied.
func (c *NodeConfig) GetPathLoss() navigation.PathLossModel {
	m := navigation.DefaultPathLoss()
	if c.PathLoss == nil {
		return m
	}
	if c.PathLoss.RefAttenuation != nil {
		m.RefAttenuation = *c.PathLoss.RefAttenuation
	}
	if c.PathLoss.RefDistance != nil {
		m.RefDistance = *c.PathLoss.RefDistance
	}
	if c.PathLoss.Exponent != nil {
		m.Exponent = *c.PathLoss.Exponent
	}
	return m
}

// CommanderConfig builds the commander settings. Flight modes start from
// the stock defaults with the configured yaw mode.
func (c *NodeConfig) CommanderConfig() commander.Config {
	cc := commander.DefaultConfig()
	cc.StabilizeTimeout = c.GetStabilizeTimeout()
	cc.ShutdownTimeout = c.GetShutdownTimeout()
	cc.MinThrust = uint16(c.GetMinThrust())
	cc.MaxThrust = uint16(c.GetMaxThrust())
	cc.Modes.YawMode = c.GetDefaultYawMode()
	return cc
}

// LocatorConfig builds the navigation settings.
func (c *NodeConfig) LocatorConfig() navigation.Config {
	return navigation.Config{
		Scale:   c.GetPositionScale(),
		MaxAge:  c.GetAnchorMaxAge(),
		Epsilon: c.GetTrilaterationEpsilon(),
		Ranges:  c.GetPathLoss(),
	}
}
