// Package config loads the registry coordinator's YAML configuration and
// serves it from a double-buffered snapshot, grounded on the original
// Config class's two-slot/atomic-index design
// (original_source/RegisterCenter/Src/RegisterCenter/Config.h: `ConfigData
// m_data[2]` + `atomic<int> m_dataIdx`) rather than the teacher's own
// atomic.Value-based ReloadCoordinator, which additionally runs an
// HTTP-driven, Postgres-backed diff/versioning pipeline this system has no
// use for.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// RedisConn describes one named Redis connection, populated from
// redis_list in the config file.
type RedisConn struct {
	Name         string        `mapstructure:"name"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GroupBinding maps one group_tab to the name of the RedisConn it's
// served from, populated from group_list in the config file.
type GroupBinding struct {
	Group     string `mapstructure:"group_tab"`
	RedisName string `mapstructure:"redis_name"`
}

// ServerConfig is the RPC facade's HTTP bind configuration.
type ServerConfig struct {
	BindIP      string `mapstructure:"bind_ip"`
	BindPort    int    `mapstructure:"bind_port"`
	NiceName    string `mapstructure:"nice_name"`
	ProcessName string `mapstructure:"process_name"`
}

// LockConfig is decoded from the lock section of the config file, defaulting
// to 30 retries, 5ms interval and 50ms TTL. The lock manager does not read
// it: internal/lock always applies its own fixed constants.
type LockConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BindIP  string `mapstructure:"bind_ip"`
	Port    int    `mapstructure:"port"`
}

// Config is the full, validated configuration snapshot.
type Config struct {
	RedisList         []RedisConn    `mapstructure:"redis_list"`
	GroupList         []GroupBinding `mapstructure:"group_list"`
	LarkWebHook       string         `mapstructure:"lark_webhook"`
	RelyWarningSwitch bool           `mapstructure:"rely_warning_switch"`
	Server            ServerConfig   `mapstructure:"server"`
	Lock              LockConfig     `mapstructure:"lock"`
	Log               LogConfig      `mapstructure:"log"`
	Metrics           MetricsConfig  `mapstructure:"metrics"`
}

// GroupMap returns the group_tab -> redis connection name binding table
// the store manager needs.
func (c *Config) GroupMap() map[string]string {
	m := make(map[string]string, len(c.GroupList))
	for _, g := range c.GroupList {
		m[g.Group] = g.RedisName
	}
	return m
}

// Validate checks the minimum shape a usable config must have.
func (c *Config) Validate() error {
	if len(c.RedisList) == 0 {
		return fmt.Errorf("config: redis_list must not be empty")
	}
	seen := make(map[string]bool, len(c.RedisList))
	for _, r := range c.RedisList {
		if r.Name == "" {
			return fmt.Errorf("config: redis_list entry missing name")
		}
		if r.Addr == "" {
			return fmt.Errorf("config: redis connection %q missing addr", r.Name)
		}
		seen[r.Name] = true
	}
	for _, g := range c.GroupList {
		if g.Group == "" {
			return fmt.Errorf("config: group_list entry missing group_tab")
		}
		if !seen[g.RedisName] {
			return fmt.Errorf("config: group_tab %q bound to unknown redis connection %q", g.Group, g.RedisName)
		}
	}
	return nil
}

// Load reads and validates a YAML config file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_ip", "0.0.0.0")
	v.SetDefault("server.bind_port", 8900)
	v.SetDefault("lock.max_retries", 30)
	v.SetDefault("lock.retry_interval", "5ms")
	v.SetDefault("lock.ttl", "50ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.bind_ip", "0.0.0.0")
	v.SetDefault("metrics.port", 9090)
}
