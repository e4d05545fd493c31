package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/sensorrelay/internal/domain"
)

// Default listen addresses.
const (
	DefaultPeerListen = ":8765"
	DefaultPeerURL    = "ws://127.0.0.1:8765/peer"
	DefaultCandidates = "192.168.0.0/24,192.168.1.0/24"
	DefaultFilePrefix = "trial"
	DefaultLogLevel   = "info"
)

// Config holds CLI configuration for sensorrelay.
type Config struct {
	// device
	StorageRoot string
	PeerListen  string
	PaceDelay   time.Duration

	// bridge
	PeerURL            string
	SettingsPath       string
	Candidates         string
	DiscoveryInterval  time.Duration
	ProbeTimeout       time.Duration
	ProbeConcurrency   int
	ForwardConcurrency int
	WatchdogDelay      time.Duration
	DeleteAfterRelay   bool

	// host
	HostPort   int
	HostListen string
	HostDB     string

	FilePrefix  string
	HTTPTimeout time.Duration
	LogLevel    string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		PeerListen:         DefaultPeerListen,
		PaceDelay:          5 * time.Millisecond,
		PeerURL:            DefaultPeerURL,
		Candidates:         DefaultCandidates,
		DiscoveryInterval:  10 * time.Second,
		ProbeTimeout:       4 * time.Second,
		ProbeConcurrency:   64,
		ForwardConcurrency: 4,
		WatchdogDelay:      3 * time.Second,
		HostPort:           domain.DefaultHostPort,
		FilePrefix:         DefaultFilePrefix,
		HTTPTimeout:        15 * time.Second,
		LogLevel:           DefaultLogLevel,
		// StorageRoot, SettingsPath, HostListen and HostDB are derived during Validate
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.StorageRoot == "" || c.SettingsPath == "" || c.HostDB == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("%w: resolve home directory: %v", domain.ErrInvalidConfig, err)
		}
		base := filepath.Join(home, ".sensorrelay")
		if c.StorageRoot == "" {
			c.StorageRoot = filepath.Join(base, "trials")
		}
		if c.SettingsPath == "" {
			c.SettingsPath = filepath.Join(base, "settings.json")
		}
		if c.HostDB == "" {
			c.HostDB = filepath.Join(base, "host.sqlite")
		}
	}

	if c.HostPort <= 0 || c.HostPort > 65535 {
		return fmt.Errorf("%w: host port %d out of range", domain.ErrInvalidConfig, c.HostPort)
	}
	if c.HostListen == "" {
		c.HostListen = ":" + strconv.Itoa(c.HostPort)
	}

	if !strings.HasPrefix(c.PeerURL, "ws://") && !strings.HasPrefix(c.PeerURL, "wss://") {
		return fmt.Errorf("%w: peer url %q must use ws:// or wss://", domain.ErrInvalidConfig, c.PeerURL)
	}
	if strings.TrimSpace(c.Candidates) == "" {
		return fmt.Errorf("%w: candidates are required", domain.ErrInvalidConfig)
	}

	if c.DiscoveryInterval <= 0 {
		return fmt.Errorf("%w: discovery interval must be positive", domain.ErrInvalidConfig)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("%w: probe timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.WatchdogDelay <= 0 {
		return fmt.Errorf("%w: watchdog delay must be positive", domain.ErrInvalidConfig)
	}
	if c.PaceDelay < 0 {
		return fmt.Errorf("%w: pace delay must not be negative", domain.ErrInvalidConfig)
	}
	if c.ProbeConcurrency <= 0 || c.ForwardConcurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive", domain.ErrInvalidConfig)
	}

	if c.FilePrefix == "" {
		c.FilePrefix = DefaultFilePrefix
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return nil
}

// CandidateList splits Candidates into its comma-separated entries.
func (c *Config) CandidateList() []string {
	var out []string
	for _, s := range strings.Split(c.Candidates, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
