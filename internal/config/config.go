package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/go-maap/pkg/cmr"
	"github.com/example/go-maap/pkg/mapview"
)

// EnvPrefix is prepended to environment overrides: MAAP_CATALOG_HOST → catalog.host.
const EnvPrefix = "MAAP"

// Config holds all application configuration.
type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Tiles    TilesConfig    `mapstructure:"tiles"`
	Server   ServerConfig   `mapstructure:"server"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Download DownloadConfig `mapstructure:"download"`
	Log      LogConfig      `mapstructure:"log"`
}

type CatalogConfig struct {
	Host     string        `mapstructure:"host"`
	Provider string        `mapstructure:"provider"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// Retries is the number of extra attempts on transient failures. Zero
	// disables retrying.
	Retries          int    `mapstructure:"retries"`
	S3CredentialsURL string `mapstructure:"s3_credentials_url"`
	S3Region         string `mapstructure:"s3_region"`
}

type TilesConfig struct {
	Host         string `mapstructure:"host"`
	Rescale      string `mapstructure:"rescale"`
	ColormapName string `mapstructure:"colormap_name"`
	ColorFormula string `mapstructure:"color_formula"`
}

// TileLayer converts the section to map view rendering parameters.
func (t TilesConfig) TileLayer() mapview.TileLayer {
	return mapview.TileLayer{
		Host:         t.Host,
		Rescale:      t.Rescale,
		ColormapName: t.ColormapName,
		ColorFormula: t.ColorFormula,
	}
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type CacheConfig struct {
	// Backend is "none", "memory" or "redis".
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type DownloadConfig struct {
	Dir         string `mapstructure:"dir"`
	Concurrency int    `mapstructure:"concurrency"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from defaults, an optional YAML file and MAAP_*
// environment variables, in increasing priority. An empty path looks for
// maap.yaml in the working directory and tolerates its absence; an explicit
// path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("catalog.host", cmr.DefaultBaseURL)
	v.SetDefault("catalog.provider", cmr.DefaultProvider)
	v.SetDefault("catalog.token", "")
	v.SetDefault("catalog.timeout", 30*time.Second)
	v.SetDefault("catalog.retries", 0)
	v.SetDefault("catalog.s3_credentials_url", "")
	v.SetDefault("catalog.s3_region", "us-west-2")
	v.SetDefault("tiles.host", mapview.DefaultTileHost)
	v.SetDefault("tiles.rescale", mapview.DefaultRescale)
	v.SetDefault("tiles.colormap_name", mapview.DefaultColormapName)
	v.SetDefault("tiles.color_formula", mapview.DefaultColorFormula)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("download.dir", ".")
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("maap")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Catalog.Host == "" {
		errs = append(errs, "catalog.host is required")
	}
	if c.Catalog.Provider == "" {
		errs = append(errs, "catalog.provider is required")
	}
	if c.Catalog.Timeout <= 0 {
		errs = append(errs, "catalog.timeout must be positive")
	}
	if c.Catalog.Retries < 0 {
		errs = append(errs, fmt.Sprintf("catalog.retries must not be negative, got %d", c.Catalog.Retries))
	}
	if c.Tiles.Host == "" {
		errs = append(errs, "tiles.host is required")
	}
	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	switch c.Cache.Backend {
	case "none", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be none, memory or redis, got %q", c.Cache.Backend))
	}
	if c.Cache.Backend != "none" && c.Cache.TTL <= 0 {
		errs = append(errs, "cache.ttl must be positive")
	}
	if c.Download.Concurrency <= 0 {
		errs = append(errs, fmt.Sprintf("download.concurrency must be positive, got %d", c.Download.Concurrency))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
