// Package simconfig implements the simulator's configuration surface:
// defaults, validation, and live reconfiguration via the control surface's
// /config endpoint.
package simconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/malbeclabs/rplsim/internal/simerrors"
)

// TransmitMode selects the medium's default transmit mode.
type TransmitMode string

const (
	TransmitUnicast   TransmitMode = "unicast"
	TransmitBroadcast TransmitMode = "broadcast"
)

// Defaults, carried over from the reference simulator's system.h.
const (
	DefaultAutoWakeNodes       = true
	DefaultDeterministicRandom = true
	DefaultSimulationSecond    = 1000

	DefaultWidth               = 100
	DefaultHeight              = 100
	DefaultNoLinkDistThresh    = 30.0
	DefaultNoLinkQualityThresh = 0.2
	DefaultTransmissionTime    = 20

	DefaultMacPduTimeoutFactor = 2 // mac_pdu_timeout = factor * transmission_time
	DefaultIpPduTimeoutFactor  = 3 // ip_pdu_timeout = factor * transmission_time

	DefaultIpQueueSize       = 100
	DefaultIpNeighborTimeout = 2000
	DefaultMeasurePduTimeout = 1000
)

// Values is the JSON-able set of recognized options from spec.md §6, kept
// separate from Config's synchronization fields so updates can be decoded
// and validated as a plain value before ever touching the live Config.
type Values struct {
	AutoWakeNodes       bool         `json:"auto_wake_nodes"`
	DeterministicRandom bool         `json:"deterministic_random"`
	SimulationSecond    int64        `json:"simulation_second"`
	Width               float64      `json:"width"`
	Height              float64      `json:"height"`
	NoLinkDistThresh    float64      `json:"no_link_dist_thresh"`
	NoLinkQualityThresh float64      `json:"no_link_quality_thresh"`
	TransmissionTime    int64        `json:"transmission_time"`
	MacPduTimeout       int64        `json:"mac_pdu_timeout"`
	IpPduTimeout        int64        `json:"ip_pdu_timeout"`
	IpNeighborTimeout   int64        `json:"ip_neighbor_timeout"`
	MeasurePduTimeout   int64        `json:"measure_pdu_timeout"`
	IpQueueSize         int          `json:"ip_queue_size"`
	PhyTransmitMode     TransmitMode `json:"phy_transmit_mode"`
}

func defaultValues() Values {
	return Values{
		AutoWakeNodes:       DefaultAutoWakeNodes,
		DeterministicRandom: DefaultDeterministicRandom,
		SimulationSecond:    DefaultSimulationSecond,
		Width:               DefaultWidth,
		Height:              DefaultHeight,
		NoLinkDistThresh:    DefaultNoLinkDistThresh,
		NoLinkQualityThresh: DefaultNoLinkQualityThresh,
		TransmissionTime:    DefaultTransmissionTime,
		MacPduTimeout:       DefaultMacPduTimeoutFactor * DefaultTransmissionTime,
		IpPduTimeout:        DefaultIpPduTimeoutFactor * DefaultTransmissionTime,
		IpNeighborTimeout:   DefaultIpNeighborTimeout,
		MeasurePduTimeout:   DefaultMeasurePduTimeout,
		IpQueueSize:         DefaultIpQueueSize,
		PhyTransmitMode:     TransmitUnicast,
	}
}

func (v Values) validate() error {
	if v.SimulationSecond < 0 {
		return simerrors.New(simerrors.Configuration, "simconfig.validate", fmt.Errorf("simulation_second must be >= 0"))
	}
	if v.Width <= 0 || v.Height <= 0 {
		return simerrors.New(simerrors.Configuration, "simconfig.validate", fmt.Errorf("width/height must be > 0"))
	}
	if v.NoLinkDistThresh <= 0 {
		return simerrors.New(simerrors.Configuration, "simconfig.validate", fmt.Errorf("no_link_dist_thresh must be > 0"))
	}
	if v.NoLinkQualityThresh < 0 || v.NoLinkQualityThresh > 1 {
		return simerrors.New(simerrors.Configuration, "simconfig.validate", fmt.Errorf("no_link_quality_thresh must be in [0,1]"))
	}
	if v.TransmissionTime < 0 {
		return simerrors.New(simerrors.Configuration, "simconfig.validate", fmt.Errorf("transmission_time must be >= 0"))
	}
	if v.IpQueueSize <= 0 {
		return simerrors.New(simerrors.Configuration, "simconfig.validate", fmt.Errorf("ip_queue_size must be > 0"))
	}
	switch v.PhyTransmitMode {
	case TransmitUnicast, TransmitBroadcast, "":
	default:
		return simerrors.New(simerrors.Configuration, "simconfig.validate", fmt.Errorf("phy_transmit_mode must be unicast or broadcast"))
	}
	return nil
}

// Config guards a Values with a RWMutex and notifies watchers on update,
// mirroring client/doublezerod/internal/config.Config's shape.
type Config struct {
	path string

	mu        sync.RWMutex
	values    Values
	changedCh chan struct{}
}

// New returns a Config pre-filled with every default.
func New(path string) *Config {
	return &Config{
		path:      path,
		values:    defaultValues(),
		changedCh: make(chan struct{}, 1),
	}
}

// Load reads a JSON config file from path, applying it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerrors.New(simerrors.Configuration, "simconfig.Load", err)
	}
	cfg := New(path)
	if err := cfg.UpdateFromJSON(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UpdateFromJSON merges data over the current values, validates the
// result, and notifies Changed() watchers on success. On validation or
// decode failure the config is left unchanged.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidate := c.values
	if err := json.Unmarshal(data, &candidate); err != nil {
		return simerrors.New(simerrors.Configuration, "simconfig.UpdateFromJSON", fmt.Errorf("decode: %w", err))
	}
	if err := candidate.validate(); err != nil {
		return err
	}
	c.values = candidate
	c.notifyChanged()
	return nil
}

// Changed returns a channel that receives a value whenever the config is
// updated via UpdateFromJSON.
func (c *Config) Changed() <-chan struct{} { return c.changedCh }

func (c *Config) notifyChanged() {
	select {
	case c.changedCh <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current values, safe to read without
// holding a lock.
func (c *Config) Snapshot() Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values
}
