// Package config loads the daemon's TOML configuration file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/inkyu/botkeeper/internal/worker"
)

// Config is the top-level TOML structure.
type Config struct {
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Store     StoreConfig     `toml:"store" mapstructure:"store"`
	History   HistoryConfig   `toml:"history" mapstructure:"history"`
	Supervise SuperviseConfig `toml:"supervise" mapstructure:"supervise"`
	Log       LogConfig       `toml:"log" mapstructure:"log"`
	Workers   []WorkerEntry   `toml:"workers" mapstructure:"workers"`
}

type ServerConfig struct {
	Listen        string `toml:"listen" mapstructure:"listen"`
	BasePath      string `toml:"base_path" mapstructure:"base_path"`
	MetricsListen string `toml:"metrics_listen" mapstructure:"metrics_listen"`
}

type StoreConfig struct {
	// DSN selects the backend: "memory", a sqlite path/sqlite:// URL,
	// or a postgres:// DSN.
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type HistoryConfig struct {
	ClickHouse *ClickHouseConfig `toml:"clickhouse" mapstructure:"clickhouse"`
}

type ClickHouseConfig struct {
	Addr     string `toml:"addr" mapstructure:"addr"`
	Database string `toml:"database" mapstructure:"database"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	Table    string `toml:"table" mapstructure:"table"`
}

type SuperviseConfig struct {
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	StopWait     time.Duration `toml:"stop_wait" mapstructure:"stop_wait"`
}

type LogConfig struct {
	Level string `toml:"level" mapstructure:"level"`
	Color bool   `toml:"color" mapstructure:"color"`
}

// WorkerEntry pre-provisions one owner's worker in the config file.
// Autostart entries are started when the daemon boots.
type WorkerEntry struct {
	Owner     int64         `toml:"owner" mapstructure:"owner"`
	Autostart bool          `toml:"autostart" mapstructure:"autostart"`
	Config    worker.Config `toml:"config" mapstructure:"config"`
}

// Load reads and validates the TOML config at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("log.level", "info")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required")
	}
	seen := make(map[int64]bool, len(c.Workers))
	for i, w := range c.Workers {
		if w.Owner <= 0 {
			return fmt.Errorf("workers[%d]: owner must be a positive id", i)
		}
		if seen[w.Owner] {
			return fmt.Errorf("workers[%d]: duplicate owner %d", i, w.Owner)
		}
		seen[w.Owner] = true
		if w.Config.Command == "" {
			return fmt.Errorf("workers[%d]: config.command is required", i)
		}
	}
	return nil
}
