// Package config provides configuration management for the notification
// daemon (the notify UDP and TCP control servers).
package config

import (
	"errors"
	"fmt"
	"time"
)

// FileConfig is the top-level wrapper for the shared configuration file,
// allowing the notification daemon to share a single TOML file with the
// other campus mail daemons it is deployed alongside.
type FileConfig struct {
	Server  ServerConfig `toml:"server"`
	Notifyd Config       `toml:"notifyd"`
}

// ServerConfig holds settings shared across all campus mail daemons.
type ServerConfig struct {
	Hostname string `toml:"hostname"`
}

// Config holds the notification daemon's configuration.
type Config struct {
	LogLevel  string          `toml:"log_level"`
	AdminUID  int             `toml:"admin_uid"`
	TCP       TCPConfig       `toml:"tcp"`
	UDP       UDPConfig       `toml:"udp"`
	Sticky    StickyConfig    `toml:"sticky"`
	Directory DirectoryConfig `toml:"directory"`
	Timeouts  TimeoutsConfig  `toml:"timeouts"`
	Limits    LimitsConfig    `toml:"limits"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// DirectoryConfig configures the name-directory backend used to validate
// sign-ons. Path points at a local flat file; a future network-backed
// directory client would add its own address field alongside it.
type DirectoryConfig struct {
	Path string `toml:"path"`
}

// TCPConfig configures the notify-control TCP listener(s).
type TCPConfig struct {
	Listeners []ListenerConfig `toml:"listeners"`
}

// ListenerConfig defines settings for a single listener.
type ListenerConfig struct {
	Address string `toml:"address"`
}

// UDPConfig configures the reliable-datagram notification server.
type UDPConfig struct {
	Address         string `toml:"address"`
	RetransInterval string `toml:"retrans_interval"`
	MaxPacketAge    string `toml:"max_packet_age"`
	MaxClientAge    string `toml:"max_client_age"`
}

// RetransDuration returns the retransmission interval, defaulting to 20s.
func (u *UDPConfig) RetransDuration() time.Duration {
	return parseDurationOr(u.RetransInterval, 20*time.Second)
}

// MaxPacketAgeDuration returns the max packet age, defaulting to 300s.
func (u *UDPConfig) MaxPacketAgeDuration() time.Duration {
	return parseDurationOr(u.MaxPacketAge, 300*time.Second)
}

// MaxClientAgeDuration returns the max registered-client age before the
// reaper drops it, defaulting to 300s.
func (u *UDPConfig) MaxClientAgeDuration() time.Duration {
	return parseDurationOr(u.MaxClientAge, 300*time.Second)
}

// StickyConfig configures the sticky-notice persistent store.
type StickyConfig struct {
	Path string `toml:"path"`
}

// TimeoutsConfig defines timeout durations for the TCP control server.
type TimeoutsConfig struct {
	Connection string `toml:"connection"`
	Command    string `toml:"command"`
	Idle       string `toml:"idle"`
}

// ConnectionTimeout returns the connection timeout, defaulting to 10m.
func (t *TimeoutsConfig) ConnectionTimeout() time.Duration {
	return parseDurationOr(t.Connection, 10*time.Minute)
}

// CommandTimeout returns the command timeout, defaulting to 1m.
func (t *TimeoutsConfig) CommandTimeout() time.Duration {
	return parseDurationOr(t.Command, 1*time.Minute)
}

// IdleTimeout returns the idle timeout, defaulting to 30m.
func (t *TimeoutsConfig) IdleTimeout() time.Duration {
	return parseDurationOr(t.Idle, 30*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// LimitsConfig defines resource limits for the TCP control server.
type LimitsConfig struct {
	MaxConnections int `toml:"max_connections"`
}

// MetricsConfig holds configuration for the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		LogLevel: "info",
		TCP: TCPConfig{
			Listeners: []ListenerConfig{{Address: ":2028"}},
		},
		UDP: UDPConfig{
			Address:         ":2029",
			RetransInterval: "20s",
			MaxPacketAge:    "300s",
			MaxClientAge:    "300s",
		},
		Sticky:    StickyConfig{Path: "notices.db"},
		Directory: DirectoryConfig{Path: "notifyd.directory"},
		Timeouts: TimeoutsConfig{
			Connection: "10m",
			Command:    "1m",
			Idle:       "30m",
		},
		Limits: LimitsConfig{MaxConnections: 500},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9109",
			Path:    "/metrics",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if len(c.TCP.Listeners) == 0 {
		return errors.New("at least one tcp listener is required")
	}
	for i, l := range c.TCP.Listeners {
		if l.Address == "" {
			return fmt.Errorf("tcp listener %d: address is required", i)
		}
	}
	if c.UDP.Address == "" {
		return errors.New("udp address is required")
	}
	if c.Sticky.Path == "" {
		return errors.New("sticky store path is required")
	}
	if c.Limits.MaxConnections <= 0 {
		return errors.New("max_connections must be positive")
	}
	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}
	return nil
}
