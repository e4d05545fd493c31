package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StorageRoot string `toml:"storage_root"`
	PeerListen  string `toml:"peer_listen"`
	PaceDelay   string `toml:"pace_delay"`

	PeerURL            string `toml:"peer_url"`
	SettingsPath       string `toml:"settings_path"`
	Candidates         string `toml:"candidates"`
	DiscoveryInterval  string `toml:"discovery_interval"`
	ProbeTimeout       string `toml:"probe_timeout"`
	ProbeConcurrency   int    `toml:"probe_concurrency"`
	ForwardConcurrency int    `toml:"forward_concurrency"`
	WatchdogDelay      string `toml:"watchdog_delay"`
	DeleteAfterRelay   *bool  `toml:"delete_after_relay"`

	HostPort   int    `toml:"host_port"`
	HostListen string `toml:"host_listen"`
	HostDB     string `toml:"host_db"`

	FilePrefix  string `toml:"file_prefix"`
	HTTPTimeout string `toml:"http_timeout"`
	LogLevel    string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.sensorrelay/config.toml, or "" if the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".sensorrelay", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("storage", fc.StorageRoot, &cfg.StorageRoot)
	s.setString("peer-listen", fc.PeerListen, &cfg.PeerListen)
	s.setString("peer-url", fc.PeerURL, &cfg.PeerURL)
	s.setString("settings", fc.SettingsPath, &cfg.SettingsPath)
	s.setString("candidates", fc.Candidates, &cfg.Candidates)
	s.setString("host-listen", fc.HostListen, &cfg.HostListen)
	s.setString("host-db", fc.HostDB, &cfg.HostDB)
	s.setString("file-prefix", fc.FilePrefix, &cfg.FilePrefix)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("pace", fc.PaceDelay, &cfg.PaceDelay); err != nil {
		return err
	}
	if err := s.setDuration("discovery-interval", fc.DiscoveryInterval, &cfg.DiscoveryInterval); err != nil {
		return err
	}
	if err := s.setDuration("probe-timeout", fc.ProbeTimeout, &cfg.ProbeTimeout); err != nil {
		return err
	}
	if err := s.setDuration("watchdog", fc.WatchdogDelay, &cfg.WatchdogDelay); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("probe-concurrency", fc.ProbeConcurrency, &cfg.ProbeConcurrency)
	s.setInt("forward-concurrency", fc.ForwardConcurrency, &cfg.ForwardConcurrency)
	s.setInt("host-port", fc.HostPort, &cfg.HostPort)

	s.setBool("delete-after-relay", fc.DeleteAfterRelay, &cfg.DeleteAfterRelay)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
