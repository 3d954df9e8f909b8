// Package config provides TOML configuration file loading and parsing for both
// peer roles. The configuration file lives at ~/.sideassist/config.toml by
// default, but can be overridden with the --config flag. CLI flags always take
// precedence over file values.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sideassist/sideassist/internal/pairing"
)

// Config represents the configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags. Zero values mean "use the default".
type Config struct {
	// Addr is the interface the host listens on.
	// Default: 0.0.0.0 (LAN reachable, the companion is another device)
	Addr string `toml:"addr"`

	// Port is the TCP port the host listens on.
	// Default: 8080
	Port int `toml:"port"`

	// Store is the path to the SQLite database holding custom actions.
	// Default: ~/.sideassist/sideassist.db
	Store string `toml:"store"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// CredentialExpirySeconds is how long an issued password stays valid.
	// Default: 300
	CredentialExpirySeconds int `toml:"credential_expiry_seconds"`

	// MdnsEnabled enables mDNS/Bonjour service advertisement.
	// Discovery only reveals presence; the password is still required.
	// Default: false
	MdnsEnabled bool `toml:"mdns_enabled"`

	// IPCSocket is the unix socket path for local-only control.
	// Default: ~/.sideassist/control.sock
	IPCSocket string `toml:"ipc_socket"`

	// ClientTimeoutSeconds drops tracked companions silent for longer than this.
	// Default: 15
	ClientTimeoutSeconds int `toml:"client_timeout_seconds"`

	// ProbeTimeoutMs bounds each reachability probe issued by the companion.
	// Default: 2500
	ProbeTimeoutMs int `toml:"probe_timeout_ms"`

	// MonitorSettleMs is the delay between authentication and the first liveness poll.
	// Default: 10000
	MonitorSettleMs int `toml:"monitor_settle_ms"`

	// MonitorIntervalMs is the liveness poll interval.
	// Default: 10000
	MonitorIntervalMs int `toml:"monitor_interval_ms"`

	// RecordingPollMs is the recording status poll interval.
	// Default: 750
	RecordingPollMs int `toml:"recording_poll_ms"`

	// Scheme is the pairing payload URI scheme.
	// Default: sideassist
	Scheme string `toml:"scheme"`
}

// Validate checks that numeric fields are not negative and the port is in range.
// Zero values are valid and mean "use default".
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1, 65535], got %d", c.Port)
	}
	fields := []struct {
		name  string
		value int
	}{
		{"credential_expiry_seconds", c.CredentialExpirySeconds},
		{"client_timeout_seconds", c.ClientTimeoutSeconds},
		{"probe_timeout_ms", c.ProbeTimeoutMs},
		{"monitor_settle_ms", c.MonitorSettleMs},
		{"monitor_interval_ms", c.MonitorIntervalMs},
		{"recording_poll_ms", c.RecordingPollMs},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", f.name, f.value)
		}
	}
	return nil
}

// ListenAddr returns the host:port the host server binds.
func (c *Config) ListenAddr() string {
	addr := c.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// CredentialExpiry returns the configured credential lifetime.
func (c *Config) CredentialExpiry() time.Duration {
	return seconds(c.CredentialExpirySeconds, DefaultCredentialExpiry)
}

// ClientTimeout returns how long a companion may stay silent before it is dropped.
func (c *Config) ClientTimeout() time.Duration {
	return seconds(c.ClientTimeoutSeconds, DefaultClientTimeout)
}

// ProbeTimeout returns the companion's reachability probe deadline.
func (c *Config) ProbeTimeout() time.Duration {
	return millis(c.ProbeTimeoutMs, DefaultProbeTimeout)
}

// MonitorSettle returns the delay before liveness polling starts.
func (c *Config) MonitorSettle() time.Duration {
	return millis(c.MonitorSettleMs, DefaultMonitorSettle)
}

// MonitorInterval returns the liveness poll interval.
func (c *Config) MonitorInterval() time.Duration {
	return millis(c.MonitorIntervalMs, DefaultMonitorInterval)
}

// RecordingPoll returns the recording status poll interval.
func (c *Config) RecordingPoll() time.Duration {
	return millis(c.RecordingPollMs, DefaultRecordingPoll)
}

// PayloadScheme returns the pairing payload scheme.
func (c *Config) PayloadScheme() string {
	if c.Scheme == "" {
		return pairing.DefaultScheme
	}
	return c.Scheme
}

func seconds(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

func millis(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}

// DefaultDir returns ~/.sideassist.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".sideassist"), nil
}

// DefaultConfigPath returns the default config file location: ~/.sideassist/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultStorePath returns ~/.sideassist/sideassist.db.
func DefaultStorePath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sideassist.db"), nil
}

// DefaultSocketPath returns ~/.sideassist/control.sock.
func DefaultSocketPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "control.sock"), nil
}

// WriteDefault creates a config file with LAN-ready defaults at the given path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string) error {
	// Never overwrite
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# sideassist configuration
# Created by 'sideassist host start'

# Listen on all interfaces so the companion can reach the host
addr = %q
port = %d

# Seconds a generated password stays valid
credential_expiry_seconds = %d

# Advertise the host over mDNS
mdns_enabled = false
`, DefaultAddr, DefaultPort, int(DefaultCredentialExpiry/time.Second))

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.sideassist/config.toml).
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed or validated.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		// If the user names a config file, it should exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}
