package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Fallback defaults, applied only when the config file omits the field.
const (
	defaultPlainPort         = 8080
	defaultTLSPort           = 8443
	defaultMaxPayload        = 1 << 20 // 1 MiB
	defaultHeartbeatInterval = 15000   // milliseconds
	defaultHeartbeatTimeout  = 30000   // milliseconds
	defaultShutdownGrace     = 5000    // milliseconds
)

// Listener configures one protocol's primary bind address.
type Listener struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// TLSListener is a Listener plus certificate material paths.
type TLSListener struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	CertFile string `json:"certFile"`
	KeyFile  string `json:"keyFile"`
}

// Heartbeat holds the probe timing pair, both in milliseconds.
// Interval is the sweep period; Timeout is how long an unacknowledged
// probe may stand before the connection counts as a zombie.
type Heartbeat struct {
	Interval int `json:"interval"`
	Timeout  int `json:"timeout"`
}

// Limits throttles connection admission ahead of the websocket upgrade.
// Zero values disable the corresponding check.
type Limits struct {
	MaxConnections      int     `json:"maxConnections"`
	MaxConnectionsPerIP int     `json:"maxConnectionsPerIp"`
	ConnectionRate      float64 `json:"connectionRate"` // new connections per second per IP
	ConnectionBurst     int     `json:"connectionBurst"`
}

type Config struct {
	Plain         Listener    `json:"plain"`
	TLS           TLSListener `json:"tls"`
	MaxPayload    int64       `json:"maxPayload"`
	Heartbeat     Heartbeat   `json:"heartbeat"`
	Limits        Limits      `json:"limits"`
	ShutdownGrace int         `json:"shutdownGrace"` // milliseconds
	LogDir        string      `json:"logDir"`
	LogLevel      string      `json:"logLevel"`
	LogFormat     string      `json:"logFormat"`
}

// Load reads and validates the JSON config file at path. Fields the file
// omits keep the fallback defaults; the file is authoritative for anything
// it sets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Plain: Listener{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    defaultPlainPort,
		},
		TLS: TLSListener{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    defaultTLSPort,
		},
		MaxPayload: defaultMaxPayload,
		Heartbeat: Heartbeat{
			Interval: defaultHeartbeatInterval,
			Timeout:  defaultHeartbeatTimeout,
		},
		ShutdownGrace: defaultShutdownGrace,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

func (c *Config) validate() error {
	if !c.Plain.Enabled && !c.TLS.Enabled {
		return fmt.Errorf("at least one of plain or tls must be enabled")
	}
	if c.Plain.Enabled {
		if err := validatePort(c.Plain.Port); err != nil {
			return fmt.Errorf("plain listener: %w", err)
		}
	}
	if c.TLS.Enabled {
		if err := validatePort(c.TLS.Port); err != nil {
			return fmt.Errorf("tls listener: %w", err)
		}
		if c.TLS.CertFile == "" {
			return fmt.Errorf("tls listener: certFile is required")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("tls listener: keyFile is required")
		}
	}
	if c.MaxPayload <= 0 {
		return fmt.Errorf("maxPayload must be positive, got %d", c.MaxPayload)
	}
	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat.interval must be positive, got %d", c.Heartbeat.Interval)
	}
	if c.Heartbeat.Timeout <= 0 {
		return fmt.Errorf("heartbeat.timeout must be positive, got %d", c.Heartbeat.Timeout)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("shutdownGrace must be positive, got %d", c.ShutdownGrace)
	}
	if c.Limits.MaxConnections < 0 || c.Limits.MaxConnectionsPerIP < 0 ||
		c.Limits.ConnectionRate < 0 || c.Limits.ConnectionBurst < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// HeartbeatInterval returns the probe sweep period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Heartbeat.Interval) * time.Millisecond
}

// HeartbeatTimeout returns the zombie cutoff measured from the last probe.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Heartbeat.Timeout) * time.Millisecond
}

// ShutdownGracePeriod returns the hard deadline for the shutdown sequence.
func (c *Config) ShutdownGracePeriod() time.Duration {
	return time.Duration(c.ShutdownGrace) * time.Millisecond
}
