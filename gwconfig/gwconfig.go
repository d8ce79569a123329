// Package gwconfig reads the gateway's layered JSON configuration:
// debug_conf.json if present, overriding everything else, else
// global_conf.json plus an optional local_conf.json overlay. The shape
// follows spec.md §6 exactly: two top-level objects, SX1301_conf
// (hardware tuning, passed through opaquely to the concentrator HAL)
// and gateway_conf (everything the core forwarding engine reads).
package gwconfig

import (
	"encoding/json"
	"fmt"
	"os"
)

// Server is one entry in gateway_conf.servers.
type Server struct {
	Address     string `json:"server_address"`
	PortUp      int    `json:"serv_port_up"`
	PortDown    int    `json:"serv_port_down"`
	Enabled     bool   `json:"serv_enabled"`
}

// GatewayConf is the gateway_conf object.
type GatewayConf struct {
	GatewayID string `json:"gateway_ID"`

	Servers []Server `json:"servers"`

	// Fallback single-server triple, used when Servers is empty.
	ServerAddress string `json:"server_address"`
	ServPortUp    int    `json:"serv_port_up"`
	ServPortDown  int    `json:"serv_port_down"`

	KeepaliveIntervalSec int `json:"keepalive_interval"`
	StatIntervalSec      int `json:"stat_interval"`
	PushTimeoutMs        int `json:"push_timeout_ms"`

	ForwardCRCValid    *bool `json:"forward_crc_valid"`
	ForwardCRCError    *bool `json:"forward_crc_error"`
	ForwardCRCDisabled *bool `json:"forward_crc_disabled"`

	GPSTTYPath string `json:"gps_tty_path"`

	RefLatitude  float64 `json:"ref_latitude"`
	RefLongitude float64 `json:"ref_longitude"`
	RefAltitude  float64 `json:"ref_altitude"`

	GPS     bool `json:"gps"`
	FakeGPS bool `json:"fake_gps"`

	BeaconPeriod int `json:"beacon_period"`
	BeaconOffset int `json:"beacon_offset"`
	BeaconFreqHz int `json:"beacon_freq_hz"`

	Upstream     *bool `json:"upstream"`
	Downstream   *bool `json:"downstream"`
	Ghoststream  bool  `json:"ghoststream"`
	Radiostream  *bool `json:"radiostream"`
	Statusstream *bool `json:"statusstream"`
	Beacon       bool  `json:"beacon"`
	Monitor      bool  `json:"monitor"`

	AutoquitThreshold int `json:"autoquit_threshold"`

	Platform      string `json:"platform"`
	ContactEmail  string `json:"contact_email"`
	Description   string `json:"description"`

	MonitorAddress string   `json:"monitor_address"`
	GhostAddress   string   `json:"ghost_address"`
	SystemCalls    []string `json:"system_calls"`
}

// Config is the full decoded configuration.
type Config struct {
	SX1301Conf json.RawMessage `json:"SX1301_conf"`
	Gateway    GatewayConf     `json:"gateway_conf"`
}

// defaultBool resolves a pointer-to-bool JSON field against its
// documented default.
func defaultBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Enabled holds the resolved boolean switches computed by Resolve:
// radio/upstream/downstream/status and forward_crc_valid default true,
// forward_crc_error and forward_crc_disabled default false.
type Enabled struct {
	Upstream    bool
	Downstream  bool
	Radiostream bool
	Statusstream bool
	ForwardCRCValid    bool
	ForwardCRCError    bool
	ForwardCRCDisabled bool
}

func (c *GatewayConf) Resolve() Enabled {
	return Enabled{
		Upstream:     defaultBool(c.Upstream, true),
		Downstream:   defaultBool(c.Downstream, true),
		Radiostream:  defaultBool(c.Radiostream, true),
		Statusstream: defaultBool(c.Statusstream, true),
		ForwardCRCValid:    defaultBool(c.ForwardCRCValid, true),
		ForwardCRCError:    defaultBool(c.ForwardCRCError, false),
		ForwardCRCDisabled: defaultBool(c.ForwardCRCDisabled, false),
	}
}

// ResolvedServers returns the configured server list, falling back to
// the single-server triple when Servers is empty.
func (c *GatewayConf) ResolvedServers() []Server {
	if len(c.Servers) > 0 {
		return c.Servers
	}
	if c.ServerAddress == "" {
		return nil
	}
	return []Server{{
		Address:  c.ServerAddress,
		PortUp:   c.ServPortUp,
		PortDown: c.ServPortDown,
		Enabled:  true,
	}}
}

// Load reads the configuration from dir, following the debug-only-else-
// global+local rule: if dir/debug_conf.json exists, it is used alone
// and everything else is ignored; otherwise dir/global_conf.json is
// mandatory and dir/local_conf.json is an optional overlay.
func Load(dir string) (*Config, error) {
	debugPath := dir + "/debug_conf.json"
	if _, err := os.Stat(debugPath); err == nil {
		return loadFile(debugPath)
	}

	globalPath := dir + "/global_conf.json"
	cfg, err := loadFile(globalPath)
	if err != nil {
		return nil, fmt.Errorf("gwconfig: cannot load %s: %w", globalPath, err)
	}

	localPath := dir + "/local_conf.json"
	if _, err := os.Stat(localPath); err == nil {
		overlay, err := loadFile(localPath)
		if err != nil {
			return nil, fmt.Errorf("gwconfig: cannot load overlay %s: %w", localPath, err)
		}
		cfg.overlay(overlay)
	}

	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("gwconfig: cannot parse %s: %w", path, err)
	}
	return &cfg, nil
}

// overlay merges non-zero fields of o into c, giving the local file
// priority over the global one field by field, for the fields listed
// below only. The local file's gps, ref_altitude, beacon_offset, the
// feature switches (upstream, downstream, ghoststream, radiostream,
// statusstream, beacon, monitor), monitor_address, ghost_address and
// system_calls are not applied; the global values stay in effect.
func (c *Config) overlay(o *Config) {
	if len(o.SX1301Conf) > 0 {
		c.SX1301Conf = o.SX1301Conf
	}
	g := &c.Gateway
	og := &o.Gateway
	if og.GatewayID != "" {
		g.GatewayID = og.GatewayID
	}
	if len(og.Servers) > 0 {
		g.Servers = og.Servers
	}
	if og.ServerAddress != "" {
		g.ServerAddress = og.ServerAddress
		g.ServPortUp = og.ServPortUp
		g.ServPortDown = og.ServPortDown
	}
	if og.KeepaliveIntervalSec != 0 {
		g.KeepaliveIntervalSec = og.KeepaliveIntervalSec
	}
	if og.StatIntervalSec != 0 {
		g.StatIntervalSec = og.StatIntervalSec
	}
	if og.PushTimeoutMs != 0 {
		g.PushTimeoutMs = og.PushTimeoutMs
	}
	if og.ForwardCRCValid != nil {
		g.ForwardCRCValid = og.ForwardCRCValid
	}
	if og.ForwardCRCError != nil {
		g.ForwardCRCError = og.ForwardCRCError
	}
	if og.ForwardCRCDisabled != nil {
		g.ForwardCRCDisabled = og.ForwardCRCDisabled
	}
	if og.GPSTTYPath != "" {
		g.GPSTTYPath = og.GPSTTYPath
	}
	if og.RefLatitude != 0 {
		g.RefLatitude = og.RefLatitude
	}
	if og.RefLongitude != 0 {
		g.RefLongitude = og.RefLongitude
	}
	if og.FakeGPS {
		g.FakeGPS = og.FakeGPS
	}
	if og.BeaconPeriod != 0 {
		g.BeaconPeriod = og.BeaconPeriod
	}
	if og.BeaconFreqHz != 0 {
		g.BeaconFreqHz = og.BeaconFreqHz
	}
	if og.AutoquitThreshold != 0 {
		g.AutoquitThreshold = og.AutoquitThreshold
	}
	if og.Platform != "" {
		g.Platform = og.Platform
	}
	if og.ContactEmail != "" {
		g.ContactEmail = og.ContactEmail
	}
	if og.Description != "" {
		g.Description = og.Description
	}
}
