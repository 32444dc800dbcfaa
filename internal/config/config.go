// Package config loads the CLI configuration.
//
// Values are resolved with the following priority:
//  1. CLI flags (passed via Options) - highest priority
//  2. Environment variables (RTCNEG_*)
//  3. YAML config file (Options.File or RTCNEG_CONFIG)
//  4. Defaults - lowest priority
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/1ureka/rtcnegotiator/internal/transport"
)

// Role is the side of the negotiation this process plays.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// Defaults.
const (
	DefaultRelayURL   = "ws://127.0.0.1:8080/ws"
	DefaultListenAddr = ":8080"
)

var (
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidRelayURL = errors.New("invalid relay URL")
)

// Config holds every setting the CLI needs.
type Config struct {
	Role         Role     `yaml:"role"`
	SessionID    uint64   `yaml:"session_id"`
	RelayURL     string   `yaml:"relay_url"`
	ListenAddr   string   `yaml:"listen_addr"`
	PIN          string   `yaml:"pin"`
	ICEServers   []string `yaml:"ice_servers"`
	ChannelLabel string   `yaml:"channel_label"`
	Debug        bool     `yaml:"debug"`
}

// Options carries CLI flag values. Zero values mean "not set".
type Options struct {
	File         string
	Role         Role
	SessionID    *uint64
	RelayURL     string
	ListenAddr   string
	PIN          string
	ICEServers   []string
	ChannelLabel string
	Debug        bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Role:         RoleInitiator,
		RelayURL:     DefaultRelayURL,
		ListenAddr:   DefaultListenAddr,
		ICEServers:   slices.Clone(transport.DefaultSTUNServers),
		ChannelLabel: transport.DefaultChannelLabel,
	}
}

// Load resolves the configuration and validates it.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	path := opts.File
	if path == "" {
		path = os.Getenv("RTCNEG_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyOptions(opts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("RTCNEG_ROLE"); v != "" {
		c.Role = Role(v)
	}
	if v := os.Getenv("RTCNEG_SESSION_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("RTCNEG_SESSION_ID: %w", err)
		}
		c.SessionID = id
	}
	if v := os.Getenv("RTCNEG_RELAY_URL"); v != "" {
		c.RelayURL = v
	}
	if v := os.Getenv("RTCNEG_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("RTCNEG_PIN"); v != "" {
		c.PIN = v
	}
	if v, ok := os.LookupEnv("RTCNEG_ICE_SERVERS"); ok {
		c.ICEServers = splitList(v)
	}
	if v := os.Getenv("RTCNEG_CHANNEL_LABEL"); v != "" {
		c.ChannelLabel = v
	}
	if v := os.Getenv("RTCNEG_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RTCNEG_DEBUG: %w", err)
		}
		c.Debug = debug
	}
	return nil
}

func (c *Config) applyOptions(opts Options) {
	if opts.Role != "" {
		c.Role = opts.Role
	}
	if opts.SessionID != nil {
		c.SessionID = *opts.SessionID
	}
	if opts.RelayURL != "" {
		c.RelayURL = opts.RelayURL
	}
	if opts.ListenAddr != "" {
		c.ListenAddr = opts.ListenAddr
	}
	if opts.PIN != "" {
		c.PIN = opts.PIN
	}
	if opts.ICEServers != nil {
		c.ICEServers = opts.ICEServers
	}
	if opts.ChannelLabel != "" {
		c.ChannelLabel = opts.ChannelLabel
	}
	if opts.Debug {
		c.Debug = true
	}
}

// Validate checks the role and normalizes the relay URL.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleInitiator, RoleResponder:
	default:
		return fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidRole, c.Role, RoleInitiator, RoleResponder)
	}

	u, err := NormalizeRelayURL(c.RelayURL)
	if err != nil {
		return err
	}
	c.RelayURL = u

	if c.ChannelLabel == "" {
		c.ChannelLabel = transport.DefaultChannelLabel
	}
	return nil
}

// DialURL returns the relay URL with the PIN query parameter, if any.
func (c *Config) DialURL() string {
	if c.PIN == "" {
		return c.RelayURL
	}
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return c.RelayURL
	}
	q := u.Query()
	q.Set("pin", c.PIN)
	u.RawQuery = q.Encode()
	return u.String()
}

// NormalizeRelayURL accepts a bare host, an http(s) URL or a ws(s) URL and
// returns the relay's /ws endpoint. Bare hosts default to wss.
func NormalizeRelayURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRelayURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidRelayURL, raw)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRelayURL, u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
