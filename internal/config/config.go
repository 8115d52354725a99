// Package config loads a node's runtime tunables (ping interval, mine
// interval, difficulty, bind host, API port) through a layered viper
// configuration: defaults, an optional YAML file, environment
// variables, then CLI flag overrides, in that precedence order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved set of node tunables.
type Config struct {
	BindHost     string
	Port         int
	Bootstrap    string
	APIPort      int
	Difficulty   int
	PingInterval time.Duration
	MineInterval time.Duration
	Discover     bool
}

// Default tunables, used when no file, env var, or flag overrides them.
const (
	DefaultBindHost     = "127.0.0.1"
	DefaultDifficulty   = 5
	DefaultPingInterval = 10 * time.Second
	DefaultMineInterval = 10 * time.Second
	DefaultAPIPort      = 8080
)

// Load builds a viper instance seeded with defaults, an optional
// config file (configPath, ignored if empty or missing), and the
// MINCOIN_-prefixed environment. Values are read out afterward into a
// Config; CLI flags are expected to have already been bound into the
// same viper instance by the caller (the cmd/mincoind CLI layer) so
// they take final precedence.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	v.SetEnvPrefix("MINCOIN")
	v.AutomaticEnv()

	v.SetDefault("bind_host", DefaultBindHost)
	v.SetDefault("difficulty", DefaultDifficulty)
	v.SetDefault("ping_interval", DefaultPingInterval)
	v.SetDefault("mine_interval", DefaultMineInterval)
	v.SetDefault("api_port", DefaultAPIPort)
	v.SetDefault("discover", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	return &Config{
		BindHost:     v.GetString("bind_host"),
		Port:         v.GetInt("port"),
		Bootstrap:    v.GetString("bootstrap"),
		APIPort:      v.GetInt("api_port"),
		Difficulty:   v.GetInt("difficulty"),
		PingInterval: v.GetDuration("ping_interval"),
		MineInterval: v.GetDuration("mine_interval"),
		Discover:     v.GetBool("discover"),
	}, nil
}

// Addr formats the node's bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindHost, c.Port)
}

// APIAddr formats the introspection API's bind address.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.BindHost, c.APIPort)
}
