package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents runtime configuration for the relay and the client.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Redis       RedisConfig               `json:"redis"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Client      ClientConfig              `json:"client"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// Database selects an entry of Databases for the session directory.
	// Empty keeps the directory in memory.
	Database string `json:"database"`
	// SendQueueSize bounds each relay peer's outbound queue.
	SendQueueSize       int `json:"send_queue_size"`
	WriteTimeoutSeconds int `json:"write_timeout_seconds"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type ClientConfig struct {
	RelayURL                 string `json:"relay_url"`
	DirectoryURL             string `json:"directory_url"`
	HeartbeatIntervalSeconds int    `json:"heartbeat_interval_seconds"`
	ReconnectDelayMillis     int    `json:"reconnect_delay_millis"`
	TypingTimeoutMillis      int    `json:"typing_timeout_millis"`
}

func (c ClientConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

func (c ClientConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMillis) * time.Millisecond
}

func (c ClientConfig) TypingTimeout() time.Duration {
	return time.Duration(c.TypingTimeoutMillis) * time.Millisecond
}

func (b BasicConfig) WriteTimeout() time.Duration {
	return time.Duration(b.WriteTimeoutSeconds) * time.Second
}

// Default returns a configuration usable without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.BasicConfig.Database != "" {
		dbCfg, ok := cfg.Databases[cfg.BasicConfig.Database]
		if !ok {
			return nil, fmt.Errorf("database %q is not configured", cfg.BasicConfig.Database)
		}
		// relative sqlite files live next to the config file
		if isSQLite(cfg.BasicConfig.Database) && dbCfg.DSN != "" && dbCfg.DSN != ":memory:" && !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
			cfg.Databases[cfg.BasicConfig.Database] = dbCfg
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.SendQueueSize <= 0 {
		c.BasicConfig.SendQueueSize = 64
	}
	if c.BasicConfig.WriteTimeoutSeconds <= 0 {
		c.BasicConfig.WriteTimeoutSeconds = 5
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "127.0.0.1"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Client.RelayURL == "" {
		c.Client.RelayURL = "ws://127.0.0.1:8090/ws"
	}
	if c.Client.DirectoryURL == "" {
		c.Client.DirectoryURL = "http://127.0.0.1:8090"
	}
	if c.Client.HeartbeatIntervalSeconds <= 0 {
		c.Client.HeartbeatIntervalSeconds = 30
	}
	if c.Client.ReconnectDelayMillis <= 0 {
		c.Client.ReconnectDelayMillis = 3000
	}
	if c.Client.TypingTimeoutMillis <= 0 {
		c.Client.TypingTimeoutMillis = 3000
	}
}

func isSQLite(name string) bool {
	return name == "sqlite" || name == "sqlite3"
}
