// Package config loads pricecast configuration.
//
// Sources, in order of precedence:
//  1. Command-line flags bound to the viper instance
//  2. Environment variables with the PRICECAST_ prefix (dashes become
//     underscores, so --max-p is PRICECAST_MAX_P)
//  3. An optional YAML config file
//  4. Default values
//
// Adapter settings are key=value pairs given with --adapter-config, a list
// under adapter-config in the file, or PRICECAST_ADAPTER_<KEY> variables
// (PRICECAST_ADAPTER_VALUE_COLUMN becomes valueColumn).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HatiCode/pricecast/pkg/models"
	"github.com/HatiCode/pricecast/pkg/storage"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "PRICECAST"

// DefaultCSVSource is where the ingest command writes the cleaned data.
const DefaultCSVSource = "data/power_data_clean.csv"

// Config holds all runtime configuration.
type Config struct {
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	Series        string        `mapstructure:"series"`
	Adapter       string        `mapstructure:"adapter"`
	AdapterConfig []string      `mapstructure:"adapter-config"`
	Window        time.Duration `mapstructure:"window"`

	Horizon int    `mapstructure:"horizon"`
	Level   string `mapstructure:"level"`
	MaxP    int    `mapstructure:"max-p"`
	MaxQ    int    `mapstructure:"max-q"`
	D       []int  `mapstructure:"d"`
	Order   string `mapstructure:"order"`
	Workers int    `mapstructure:"workers"`
	Output  string `mapstructure:"output"`

	Listen       string        `mapstructure:"listen"`
	GRPCListen   string        `mapstructure:"grpc-listen"`
	Interval     time.Duration `mapstructure:"interval"`
	CacheSize    int           `mapstructure:"cache-size"`
	CORSOrigins  []string      `mapstructure:"cors-origins"`
	RefreshRate  float64       `mapstructure:"refresh-rate"`
	RefreshBurst int           `mapstructure:"refresh-burst"`
	OTelEndpoint string        `mapstructure:"otel-endpoint"`

	Storage       string        `mapstructure:"storage"`
	RedisAddr     string        `mapstructure:"redis-addr"`
	RedisPassword string        `mapstructure:"redis-password"`
	RedisDB       int           `mapstructure:"redis-db"`
	RedisTTL      time.Duration `mapstructure:"redis-ttl"`
	SQLitePath    string        `mapstructure:"sqlite-path"`

	// Set by Validate.
	ConfidenceLevel float64           `mapstructure:"-"`
	FixedOrder      *models.Order     `mapstructure:"-"`
	AdapterSettings map[string]string `mapstructure:"-"`
}

// Load reads the config file at path (if non-empty), the environment and
// any flags already bound to v, then validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")

	v.SetDefault("series", "de-price")
	v.SetDefault("adapter", "csv")
	v.SetDefault("adapter-config", []string{})
	v.SetDefault("window", 60*24*time.Hour)

	v.SetDefault("horizon", 24)
	v.SetDefault("level", "0.95")
	v.SetDefault("max-p", 3)
	v.SetDefault("max-q", 3)
	v.SetDefault("d", []int{0, 1})
	v.SetDefault("order", "")
	v.SetDefault("workers", 0)
	v.SetDefault("output", "table")

	v.SetDefault("listen", ":8081")
	v.SetDefault("grpc-listen", ":8082")
	v.SetDefault("interval", time.Hour)
	v.SetDefault("cache-size", 16)
	v.SetDefault("cors-origins", []string{})
	v.SetDefault("refresh-rate", 0.1)
	v.SetDefault("refresh-burst", 1)
	v.SetDefault("otel-endpoint", "")

	v.SetDefault("storage", "memory")
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-password", "")
	v.SetDefault("redis-db", 0)
	v.SetDefault("redis-ttl", 2*time.Hour)
	v.SetDefault("sqlite-path", "pricecast.db")
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validOutputs    = map[string]bool{"table": true, "json": true, "csv": true, "yaml": true}
	validStorage    = map[string]bool{"memory": true, "redis": true, "sqlite": true, "none": true}
)

// Validate checks every value and fills the derived fields.
func (c *Config) Validate() error {
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log-level must be one of: debug, info, warn, error")
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("log-format must be one of: text, json")
	}

	if err := storage.ValidateSeriesName(c.Series); err != nil {
		return fmt.Errorf("series: %w", err)
	}
	if c.Adapter == "" {
		return fmt.Errorf("adapter is required")
	}
	if c.Window < 0 {
		return fmt.Errorf("window must be >= 0")
	}

	if c.Horizon < 1 {
		return fmt.Errorf("horizon must be at least 1")
	}
	level, err := models.ParseConfidenceLevel(c.Level)
	if err != nil {
		return fmt.Errorf("level: %w", err)
	}
	c.ConfidenceLevel = level

	if c.MaxP < 0 || c.MaxQ < 0 {
		return fmt.Errorf("max-p and max-q must be >= 0")
	}
	if len(c.D) == 0 {
		return fmt.Errorf("d must list at least one differencing order")
	}
	for _, d := range c.D {
		if d != 0 && d != 1 {
			return fmt.Errorf("d must contain only 0 or 1, got %d", d)
		}
	}
	c.FixedOrder = nil
	if c.Order != "" {
		o, err := ParseOrder(c.Order)
		if err != nil {
			return fmt.Errorf("order: %w", err)
		}
		c.FixedOrder = &o
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if !validOutputs[c.Output] {
		return fmt.Errorf("output must be one of: table, json, csv, yaml")
	}

	if c.Interval < 0 {
		return fmt.Errorf("interval must be >= 0")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache-size must be >= 0")
	}
	if c.RefreshRate < 0 {
		return fmt.Errorf("refresh-rate must be >= 0")
	}
	if c.RefreshRate > 0 && c.RefreshBurst < 1 {
		return fmt.Errorf("refresh-burst must be at least 1 when refresh-rate is set")
	}

	if !validStorage[c.Storage] {
		return fmt.Errorf("storage must be one of: memory, redis, sqlite, none")
	}
	switch c.Storage {
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis-addr is required when storage is redis")
		}
		if c.RedisDB < 0 {
			return fmt.Errorf("redis-db must be >= 0")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite-path is required when storage is sqlite")
		}
	}

	settings, err := parseAdapterConfig(c.AdapterConfig, os.Environ())
	if err != nil {
		return fmt.Errorf("adapter-config: %w", err)
	}
	if c.Adapter == "csv" && settings["source"] == "" {
		settings["source"] = DefaultCSVSource
	}
	c.AdapterSettings = settings

	return nil
}

// Grid is the candidate set selected by d, max-p, max-q and order.
func (c *Config) Grid() models.Grid {
	if c.FixedOrder != nil {
		return models.SingleOrder(*c.FixedOrder)
	}
	return models.Grid{D: append([]int(nil), c.D...), MaxP: c.MaxP, MaxQ: c.MaxQ}
}

// ParseOrder parses "p,d,q".
func ParseOrder(s string) (models.Order, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return models.Order{}, fmt.Errorf("invalid order %q: want p,d,q", s)
	}
	var n [3]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return models.Order{}, fmt.Errorf("invalid order %q: %w", s, err)
		}
		n[i] = v
	}
	o := models.Order{P: n[0], D: n[1], Q: n[2]}
	if err := o.Validate(); err != nil {
		return models.Order{}, err
	}
	return o, nil
}

const (
	adapterEnvPrefix = EnvPrefix + "_ADAPTER_"
	// adapterConfigEnv is the env binding of the adapter-config key itself.
	adapterConfigEnv = EnvPrefix + "_ADAPTER_CONFIG"
)

// parseAdapterConfig merges PRICECAST_ADAPTER_<KEY> variables with explicit
// key=value pairs. Explicit pairs win. PRICECAST_ADAPTER_CONFIG is not an
// adapter setting.
func parseAdapterConfig(pairs, environ []string) (map[string]string, error) {
	config := make(map[string]string)

	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, adapterEnvPrefix) || len(key) == len(adapterEnvPrefix) || key == adapterConfigEnv {
			continue
		}
		config[toLowerCamelCase(key[len(adapterEnvPrefix):])] = value
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid pair %q: want key=value", pair)
		}
		config[key] = value
	}
	return config, nil
}

// toLowerCamelCase turns VALUE_COLUMN into valueColumn.
func toLowerCamelCase(s string) string {
	var b strings.Builder
	upper := false
	for i, r := range strings.ToLower(s) {
		if r == '_' {
			upper = i > 0
			continue
		}
		if upper && r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		upper = false
		b.WriteRune(r)
	}
	return b.String()
}
