package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (SENSORRELAY_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("storage", os.Getenv("SENSORRELAY_STORAGE_ROOT"), &cfg.StorageRoot)
	s.setString("peer-listen", os.Getenv("SENSORRELAY_PEER_LISTEN"), &cfg.PeerListen)
	s.setString("peer-url", os.Getenv("SENSORRELAY_PEER_URL"), &cfg.PeerURL)
	s.setString("settings", os.Getenv("SENSORRELAY_SETTINGS_PATH"), &cfg.SettingsPath)
	s.setString("candidates", os.Getenv("SENSORRELAY_CANDIDATES"), &cfg.Candidates)
	s.setString("host-listen", os.Getenv("SENSORRELAY_HOST_LISTEN"), &cfg.HostListen)
	s.setString("host-db", os.Getenv("SENSORRELAY_HOST_DB"), &cfg.HostDB)
	s.setString("file-prefix", os.Getenv("SENSORRELAY_FILE_PREFIX"), &cfg.FilePrefix)
	s.setString("log-level", os.Getenv("SENSORRELAY_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("pace", os.Getenv("SENSORRELAY_PACE_DELAY"), &cfg.PaceDelay); err != nil {
		return err
	}
	if err := s.setDuration("discovery-interval", os.Getenv("SENSORRELAY_DISCOVERY_INTERVAL"), &cfg.DiscoveryInterval); err != nil {
		return err
	}
	if err := s.setDuration("probe-timeout", os.Getenv("SENSORRELAY_PROBE_TIMEOUT"), &cfg.ProbeTimeout); err != nil {
		return err
	}
	if err := s.setDuration("watchdog", os.Getenv("SENSORRELAY_WATCHDOG_DELAY"), &cfg.WatchdogDelay); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("SENSORRELAY_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("probe-concurrency", os.Getenv("SENSORRELAY_PROBE_CONCURRENCY"), &cfg.ProbeConcurrency); err != nil {
		return err
	}
	if err := s.setIntFromString("forward-concurrency", os.Getenv("SENSORRELAY_FORWARD_CONCURRENCY"), &cfg.ForwardConcurrency); err != nil {
		return err
	}
	if err := s.setIntFromString("host-port", os.Getenv("SENSORRELAY_HOST_PORT"), &cfg.HostPort); err != nil {
		return err
	}

	s.setBoolFromString("delete-after-relay", os.Getenv("SENSORRELAY_DELETE_AFTER_RELAY"), &cfg.DeleteAfterRelay)

	return nil
}
