package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Lock   LockConfig   `mapstructure:"lock"`
	Asset  AssetConfig  `mapstructure:"asset"`
	Page   PageConfig   `mapstructure:"page"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string    `mapstructure:"addr"`
	TLS  TLSConfig `mapstructure:"tls"`
}

// TLSConfig holds TLS-specific configuration.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// StoreConfig holds the on-disk layout of the wiki store.
type StoreConfig struct {
	DBFile   string `mapstructure:"db_file"`
	AssetDir string `mapstructure:"asset_dir"`
	FTSFile  string `mapstructure:"fts_file"`
}

// LockConfig holds page lock tuning.
type LockConfig struct {
	TTLSeconds  int `mapstructure:"ttl_seconds"`
	ReapSeconds int `mapstructure:"reap_seconds"`
}

// AssetConfig holds asset upload limits.
type AssetConfig struct {
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// PageConfig holds page policy settings.
type PageConfig struct {
	TemplatePrefix string `mapstructure:"template_prefix"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // e.g., "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // e.g., "json", "console"
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("store.db_file", "wikid.db")
	viper.SetDefault("store.asset_dir", "assets")
	viper.SetDefault("store.fts_file", "wikid-fts.db")
	viper.SetDefault("lock.ttl_seconds", 300)
	viper.SetDefault("lock.reap_seconds", 10)
	viper.SetDefault("asset.max_upload_bytes", 10*1024*1024)
	viper.SetDefault("page.template_prefix", "/templates")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	viper.SetConfigName("wikid")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.wikid")
	viper.AddConfigPath("/etc/wikid/")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		// Config file not found; proceed with defaults and env vars
	}

	viper.SetEnvPrefix("WIKID")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
