// Package config holds the CLI configuration: an optional YAML file and
// P2PCALL_* environment variables, later overridden by flags and prompts.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Role represents the user's chosen role in a call.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// defaultICEServers are used when none are configured. No TURN: the demo
// targets direct P2P connectivity.
var defaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config stores every tunable of the p2pcall and sigserver commands.
type Config struct {
	Role          Role          `yaml:"role" env:"P2PCALL_ROLE"`
	SignalingURL  string        `yaml:"signaling_url" env:"P2PCALL_SIGNALING_URL"`
	Room          string        `yaml:"room" env:"P2PCALL_ROOM" env-default:"lobby"`
	ICEServers    []string      `yaml:"ice_servers" env:"P2PCALL_ICE_SERVERS" env-separator:","`
	ListenAddr    string        `yaml:"listen_addr" env:"P2PCALL_LISTEN_ADDR" env-default:":8080"`
	Debug         bool          `yaml:"debug" env:"P2PCALL_DEBUG"`
	StatsInterval time.Duration `yaml:"stats_interval" env:"P2PCALL_STATS_INTERVAL" env-default:"30s"`
}

// Load reads the configuration from path (YAML) and the environment. An
// empty path reads the environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("cannot read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from environment: %w", err)
		}
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if len(c.ICEServers) == 0 {
		c.ICEServers = append([]string(nil), defaultICEServers...)
	}
	if c.Room == "" {
		c.Room = "lobby"
	}
}

// Validate checks the fields a p2pcall client needs.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleCaller, RoleCallee:
	default:
		return fmt.Errorf("invalid role %q: must be 'caller' or 'callee'", c.Role)
	}
	if _, err := c.RoomURL(); err != nil {
		return err
	}
	return nil
}

// RoomURL returns the WebSocket URL of the configured room on the signaling
// server, e.g. wss://example.com/ws/lobby.
func (c *Config) RoomURL() (string, error) {
	base, err := NormalizeSignalingURL(c.SignalingURL)
	if err != nil {
		return "", err
	}
	return base + "/" + url.PathEscape(c.Room), nil
}

// NormalizeSignalingURL validates a raw server address or URL and returns
// its WebSocket base (scheme://host/ws). Schemes other than ws/wss fall back
// to wss.
func NormalizeSignalingURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid signaling URL: %q", raw)
	}

	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}
