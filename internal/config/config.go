// Package config loads the daemon configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pergus/netbox-zabbix/internal/reconcile"
	"github.com/spf13/viper"
)

// ZabbixConfig holds the remote API client configuration.
type ZabbixConfig struct {
	URL     string        `mapstructure:"url"`     // JSON-RPC endpoint (e.g. "https://zabbix.example.com/api_jsonrpc.php")
	Token   string        `mapstructure:"token"`   // API token
	Timeout time.Duration `mapstructure:"timeout"` // HTTP client timeout
	Rate    float64       `mapstructure:"rate"`    // max requests per second (0 = unlimited)
}

// SyncConfig holds the reconcile loop configuration.
type SyncConfig struct {
	Interval time.Duration      `mapstructure:"interval"` // time between reconcile cycles
	Engine   reconcile.Settings `mapstructure:",squash"`
}

// MetricsConfig holds the Prometheus listener configuration.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // listen address, empty disables the endpoint
}

// Config is the full daemon configuration.
type Config struct {
	Zabbix  ZabbixConfig  `mapstructure:"zabbix"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Load reads configuration from the given file (or the default search path
// when empty) plus NBZ_-prefixed environment variables.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()

	def := reconcile.DefaultSettings()

	// Defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./netbox-zabbix.db")
	// Empty defaults register the keys so environment-only values unmarshal.
	v.SetDefault("zabbix.url", "")
	v.SetDefault("zabbix.token", "")
	v.SetDefault("zabbix.timeout", "30s")
	v.SetDefault("zabbix.rate", 5.0)
	v.SetDefault("sync.interval", "5m")
	v.SetDefault("sync.default_tag", def.DefaultTag)
	v.SetDefault("sync.tag_prefix", def.TagPrefix)
	v.SetDefault("sync.tag_case", def.TagCase)
	v.SetDefault("sync.compare_mode", def.CompareMode)
	v.SetDefault("sync.graveyard_group", def.GraveyardGroup)
	v.SetDefault("sync.archive_suffix", def.ArchiveSuffix)
	v.SetDefault("sync.preflight_ping", false)
	v.SetDefault("sync.ping_timeout", "2s")
	v.SetDefault("sync.actor", def.Actor)
	v.SetDefault("metrics.addr", ":9105")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("netbox-zabbix")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/netbox-zabbix")
	}

	// Environment variable support: NBZ_ZABBIX_TOKEN=...
	v.SetEnvPrefix("NBZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}

// Parse unmarshals and validates the daemon configuration sections.
func Parse(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Zabbix.URL == "" {
		return nil, fmt.Errorf("zabbix.url is required")
	}
	if cfg.Zabbix.Token == "" {
		return nil, fmt.Errorf("zabbix.token is required")
	}
	if err := cfg.Sync.Engine.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
