// Package config loads cmd/lockd's runtime configuration from
// lockd.yaml (or LOCKD_*-prefixed environment overrides) via
// github.com/spf13/viper, keeping every tunable (listen addresses,
// peers, timeouts) in one typed struct rather than threading flags
// through by hand.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of knobs cmd/lockd needs to start a standalone
// or RSM-replicated lock server.
type Config struct {
	// ListenAddr is the address the lock RPC / Paxos / RSM server binds.
	ListenAddr string `mapstructure:"listen_addr"`

	// Replicated enables the RSM/Paxos path; false runs the
	// single-process lock server directly.
	Replicated bool `mapstructure:"replicated"`

	// Peers is the full RSM membership (this node's own ListenAddr
	// should also appear in it), in view order; Peers[0] is the
	// initial primary.
	Peers []string `mapstructure:"peers"`

	// PaxosLogPath is where internal/paxoslog durably logs acceptor
	// state. Ignored when Replicated is false.
	PaxosLogPath string `mapstructure:"paxos_log_path"`

	// CallTimeout bounds lock server -> client revoke/retry RPCs and
	// is the dial timeout of lockd's outbound connection cache.
	CallTimeout time.Duration `mapstructure:"call_timeout"`

	// MetricsAddr, if non-empty, serves Prometheus metrics over HTTP.
	MetricsAddr string `mapstructure:"metrics_addr"`

	LogLevel string `mapstructure:"log_level"`
}

// Default returns the configuration used when no file or flags override it.
func Default() Config {
	return Config{
		ListenAddr:   "127.0.0.1:7070",
		Replicated:   false,
		CallTimeout:  1 * time.Second,
		PaxosLogPath: "lockd.paxos.db",
		LogLevel:     "INFO",
	}
}

// Load reads lockd.yaml (if present) from the given path, overlays
// LOCKD_-prefixed environment variables, and returns the merged
// config starting from Default.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lockd")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("LOCKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("replicated", cfg.Replicated)
	v.SetDefault("call_timeout", cfg.CallTimeout)
	v.SetDefault("paxos_log_path", cfg.PaxosLogPath)
	v.SetDefault("log_level", cfg.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Replicated && len(cfg.Peers) == 0 {
		return cfg, fmt.Errorf("config: replicated mode requires at least one peer")
	}
	return cfg, nil
}
