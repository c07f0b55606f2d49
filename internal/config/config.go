package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	StoreDriverRedis  = "redis"
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"

	DefaultQuality = "bestvideo+bestaudio/best"

	envPrefix = "MEDIAFETCH_"
)

type StoreConfig struct {
	Driver     string `yaml:"driver"`
	RedisURL   string `yaml:"redis_url"`
	SQLitePath string `yaml:"sqlite_path"`
}

type MetadataConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	Timeout       time.Duration `yaml:"timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type EngineConfig struct {
	Binary           string        `yaml:"binary"`
	DefaultQuality   string        `yaml:"default_quality"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type WSConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Config struct {
	Listen      string          `yaml:"listen"`
	LogLevel    string          `yaml:"log_level"`
	DownloadDir string          `yaml:"download_dir"`
	DumpFile    string          `yaml:"dump_file"`
	Store       StoreConfig     `yaml:"store"`
	Metadata    MetadataConfig  `yaml:"metadata"`
	Engine      EngineConfig    `yaml:"engine"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	WS          WSConfig        `yaml:"ws"`
}

func (c *Config) SetDefaults() {
	c.Listen = ":8000"
	c.LogLevel = LogLevelInfo
	c.DownloadDir = "downloads"
	c.DumpFile = "downloads/jobs.yml"
	c.Store = StoreConfig{
		Driver:     StoreDriverSQLite,
		RedisURL:   "redis://localhost:6379/0",
		SQLitePath: "downloads/downloads.db",
	}
	c.Metadata = MetadataConfig{
		CacheTTL:      300 * time.Second,
		Timeout:       30 * time.Second,
		SweepInterval: time.Minute,
	}
	c.Engine = EngineConfig{
		DefaultQuality:   DefaultQuality,
		ProgressInterval: 500 * time.Millisecond,
	}
	c.RateLimit = RateLimitConfig{
		RPS:   5,
		Burst: 10,
	}
	c.WS = WSConfig{
		WriteTimeout: 5 * time.Second,
	}
}

// Load reads the YAML file at path on top of the defaults. A missing file is not an error.
// Values from the environment (and an optional .env file) override the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot load .env: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("LISTEN", &c.Listen)
	str("LOG_LEVEL", &c.LogLevel)
	str("DOWNLOAD_DIR", &c.DownloadDir)
	str("DUMP_FILE", &c.DumpFile)
	str("STORE_DRIVER", &c.Store.Driver)
	str("REDIS_URL", &c.Store.RedisURL)
	str("SQLITE_PATH", &c.Store.SQLitePath)
	str("YTDLP_PATH", &c.Engine.Binary)
	str("DEFAULT_QUALITY", &c.Engine.DefaultQuality)
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	switch c.Store.Driver {
	case StoreDriverRedis, StoreDriverSQLite, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Metadata.CacheTTL <= 0 || c.Metadata.Timeout <= 0 {
		return fmt.Errorf("metadata cache_ttl and timeout must be positive")
	}

	if c.Metadata.SweepInterval <= 0 {
		return fmt.Errorf("metadata sweep_interval must be positive")
	}

	if c.Engine.ProgressInterval <= 0 {
		return fmt.Errorf("engine progress_interval must be positive")
	}

	if strings.TrimSpace(c.DownloadDir) == "" {
		return fmt.Errorf("download_dir is required")
	}

	return nil
}
