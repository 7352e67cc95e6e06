// Package config loads odsearch settings from odsearch.yaml, the environment
// and command-line flags, later sources overriding earlier ones.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configName = "odsearch"
	envPrefix  = "ODSEARCH"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Storage struct {
		DataDir      string `mapstructure:"data_dir"`
		MaxTableSize int64  `mapstructure:"max_table_size"` // bytes before a MemTable is flushed
	} `mapstructure:"storage"`

	Search struct {
		MaxLength  int `mapstructure:"max_length"`  // bytes, 0 = unlimited
		DefaultTop int `mapstructure:"default_top"` // $top when absent
	} `mapstructure:"search"`

	Auth struct {
		KeysFile string `mapstructure:"keys_file"` // empty disables auth
	} `mapstructure:"auth"`

	Logging struct {
		Level string `mapstructure:"level"` // "debug", "info", "warn", "error"
	} `mapstructure:"logging"`

	Seed struct {
		File string `mapstructure:"file"`
	} `mapstructure:"seed"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"addr":           "server.addr",
	"data-dir":       "storage.data_dir",
	"max-table-size": "storage.max_table_size",
	"max-length":     "search.max_length",
	"default-top":    "search.default_top",
	"keys-file":      "auth.keys_file",
	"log-level":      "logging.level",
	"seed":           "seed.file",
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8088")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.max_table_size", 64*1024*1024)
	v.SetDefault("search.max_length", 2048)
	v.SetDefault("search.default_top", 50)
	v.SetDefault("auth.keys_file", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("seed.file", "")
}

// RegisterFlags adds the flags understood by Load to a command's FlagSet.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config file (default: ./odsearch.yaml)")
	fs.String("addr", "", "HTTP listen address")
	fs.String("data-dir", "", "Directory for snapshots and WAL")
	fs.Int64("max-table-size", 0, "MemTable flush threshold in bytes")
	fs.Int("max-length", 0, "Maximum $search length in bytes")
	fs.Int("default-top", 0, "Default $top when absent")
	fs.String("keys-file", "", "API key file (empty disables auth)")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.String("seed", "", "YAML seed file loaded at startup")
}

// Load builds the configuration.
// Priority order: flags → environment → config file → defaults.
// fs may be nil; only flags that were set on the command line override.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := ""
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			explicit = f.Value.String()
		}
	}

	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	// Read the config file (if it exists)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && explicit == "" {
			slog.Debug("no odsearch.yaml found, using defaults")
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		slog.Debug("loaded configuration", "file", v.ConfigFileUsed())
	}

	// Allow environment variables to override config file
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// bindFlags binds the command line flags present in fs to their config keys.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}
