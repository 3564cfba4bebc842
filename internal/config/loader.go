package config

import (
	"context"
	"flag"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/fsnotify/fsnotify"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath     string
	Hostname       string
	LogLevel       string
	Listen         string
	AdminUID       int
	MaxConnections int
	StickyPath     string
	DirectoryPath  string
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "./notifyd.toml", "Path to configuration file")
	flag.StringVar(&f.Hostname, "hostname", "", "Server hostname")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&f.Listen, "listen", "", "TCP control listen address (replaces all config listeners)")
	flag.IntVar(&f.AdminUID, "admin-uid", 0, "Admin user id for privileged TCP operations")
	flag.IntVar(&f.MaxConnections, "max-connections", 0, "Maximum concurrent TCP connections")
	flag.StringVar(&f.StickyPath, "sticky-db", "", "Path to the sticky-notice database file")
	flag.StringVar(&f.DirectoryPath, "directory-file", "", "Path to the local name-directory flat file")

	flag.Parse()
	return f
}

// Load parses a TOML configuration file and returns the Config. If the file
// does not exist, returns the default configuration. Only the
// daemon-specific [notifyd] block is merged over the defaults; a shared
// [server] block is parsed but none of its settings are applied.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fc FileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	cfg = mergeConfig(cfg, fc.Notifyd)
	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.Listen != "" {
		cfg.TCP.Listeners = []ListenerConfig{{Address: f.Listen}}
	}
	if f.AdminUID != 0 {
		cfg.AdminUID = f.AdminUID
	}
	if f.MaxConnections > 0 {
		cfg.Limits.MaxConnections = f.MaxConnections
	}
	if f.StickyPath != "" {
		cfg.Sticky.Path = f.StickyPath
	}
	if f.DirectoryPath != "" {
		cfg.Directory.Path = f.DirectoryPath
	}
	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags, then
// applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(cfg, f), nil
}

func mergeConfig(dst, src Config) Config {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.AdminUID != 0 {
		dst.AdminUID = src.AdminUID
	}
	if len(src.TCP.Listeners) > 0 {
		dst.TCP.Listeners = src.TCP.Listeners
	}
	if src.UDP.Address != "" {
		dst.UDP.Address = src.UDP.Address
	}
	if src.UDP.RetransInterval != "" {
		dst.UDP.RetransInterval = src.UDP.RetransInterval
	}
	if src.UDP.MaxPacketAge != "" {
		dst.UDP.MaxPacketAge = src.UDP.MaxPacketAge
	}
	if src.UDP.MaxClientAge != "" {
		dst.UDP.MaxClientAge = src.UDP.MaxClientAge
	}
	if src.Sticky.Path != "" {
		dst.Sticky.Path = src.Sticky.Path
	}
	if src.Directory.Path != "" {
		dst.Directory.Path = src.Directory.Path
	}
	if src.Timeouts.Connection != "" {
		dst.Timeouts.Connection = src.Timeouts.Connection
	}
	if src.Timeouts.Command != "" {
		dst.Timeouts.Command = src.Timeouts.Command
	}
	if src.Timeouts.Idle != "" {
		dst.Timeouts.Idle = src.Timeouts.Idle
	}
	if src.Limits.MaxConnections > 0 {
		dst.Limits.MaxConnections = src.Limits.MaxConnections
	}
	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}
	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}
	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}
	return dst
}

// Watch watches the configuration file for changes and invokes onChange
// with the freshly reloaded Config whenever it is written. It blocks until
// ctx is cancelled or the watcher fails to start.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting config watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		return fmt.Errorf("watching config file: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				continue
			}
			onChange(cfg)
		case _, ok := <-w.Errors:
			if !ok {
				return nil
			}
		}
	}
}
