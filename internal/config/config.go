package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/gravitas-games/cellplan/internal/cluster"
	"github.com/gravitas-games/cellplan/internal/hexgrid"
	"github.com/gravitas-games/cellplan/pkg/models"
)

// Config holds all server configuration
type Config struct {
	Server   ServerConfig      `yaml:"server"`
	JWT      JWTConfig         `yaml:"jwt"`
	Redis    RedisConfig       `yaml:"redis"`
	Plane    PlaneConfig       `yaml:"plane"`
	Tiling   TilingConfig      `yaml:"tiling"`
	Log      LogConfig         `yaml:"log"`
	Defaults models.Parameters `yaml:"defaults"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// JWTConfig holds JWT authentication settings
type JWTConfig struct {
	Issuer              string `yaml:"issuer"`
	PublicKeyURL        string `yaml:"public_key_url"`
	PublicKeyRefreshHrs int    `yaml:"public_key_refresh_hours"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	BlacklistPrefix string `yaml:"blacklist_prefix"`
	TilingPrefix    string `yaml:"tiling_prefix"`
	TilingTTLMins   int    `yaml:"tiling_ttl_minutes"` // 0 disables the tiling cache
}

// TilingTTL returns how long cached tilings live.
func (r RedisConfig) TilingTTL() time.Duration {
	return time.Duration(r.TilingTTLMins) * time.Minute
}

// PlaneConfig holds the bounds of the hex plane and the cluster anchor
type PlaneConfig struct {
	Bounds  hexgrid.Rect `yaml:"bounds"`
	AnchorQ int          `yaml:"anchor_q"`
	AnchorR int          `yaml:"anchor_r"`
}

// TilingConfig selects the propagation behavior
type TilingConfig struct {
	Strategy string `yaml:"strategy"` // "frontier" or "rescan"
	Reach    string `yaml:"reach"`    // "forward" or "bidirectional"
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns the configuration used when no file sets a value
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		JWT:    JWTConfig{PublicKeyRefreshHrs: 24},
		Redis: RedisConfig{
			Address:         "127.0.0.1:6379",
			BlacklistPrefix: "blacklist:",
			TilingPrefix:    "cellplan:tiling:",
		},
		Plane: PlaneConfig{
			Bounds:  hexgrid.Square(cluster.DefaultRadius),
			AnchorQ: cluster.DefaultAnchor.Q,
			AnchorR: cluster.DefaultAnchor.R,
		},
		Tiling:   TilingConfig{Strategy: string(cluster.Frontier), Reach: string(cluster.Bidirectional)},
		Log:      LogConfig{Level: "info", Format: "text"},
		Defaults: models.DefaultParameters(),
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if not provided
	if cfg.JWT.PublicKeyRefreshHrs == 0 {
		cfg.JWT.PublicKeyRefreshHrs = 24
	}
	if cfg.Redis.BlacklistPrefix == "" {
		cfg.Redis.BlacklistPrefix = "blacklist:"
	}
	if cfg.Redis.TilingPrefix == "" {
		cfg.Redis.TilingPrefix = "cellplan:tiling:"
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv lets deployment secrets and log settings come from the environment
func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("JWT_PUBLIC_KEY_URL"); v != "" {
		c.JWT.PublicKeyURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Validate checks values that would otherwise fail later at startup
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if err := c.Plane.Bounds.Validate(); err != nil {
		return fmt.Errorf("plane.bounds: %w", err)
	}
	if _, err := cluster.ParseStrategy(c.Tiling.Strategy); err != nil {
		return err
	}
	if _, err := cluster.ParseReach(c.Tiling.Reach); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}
	if c.Redis.TilingTTLMins < 0 {
		return fmt.Errorf("redis.tiling_ttl_minutes must not be negative")
	}
	return nil
}

// TilerOptions converts the plane and tiling sections for the cluster package
func (c *Config) TilerOptions() cluster.Options {
	// Validate has already accepted both values.
	strategy, _ := cluster.ParseStrategy(c.Tiling.Strategy)
	reach, _ := cluster.ParseReach(c.Tiling.Reach)
	return cluster.Options{
		Bounds:   c.Plane.Bounds,
		Anchor:   hexgrid.Axial{Q: c.Plane.AnchorQ, R: c.Plane.AnchorR},
		Strategy: strategy,
		Reach:    reach,
	}
}

// NewLogger builds the process logger from the log section
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if strings.ToLower(c.Log.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
