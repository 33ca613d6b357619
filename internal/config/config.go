// Package config loads the lendvar application configuration from YAML with
// environment variable overrides. Simulation parameters are carried as an
// explicit struct into the run constructor; nothing is read from ambient
// state after load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	CoinGecko  CoinGeckoConfig  `yaml:"coingecko"`
	Subgraph   SubgraphConfig   `yaml:"subgraph"`
	Simulation SimulationConfig `yaml:"simulation"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// DatabaseConfig configures the Postgres result store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// RedisConfig configures the optional price-history cache. Empty Addr
// disables caching.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// CoinGeckoConfig configures the historical price feed.
type CoinGeckoConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Timeout        time.Duration `yaml:"timeout"`
	WindowDays     int           `yaml:"window_days"`
}

// SubgraphConfig configures the portfolio snapshot feed.
type SubgraphConfig struct {
	URL       string        `yaml:"url"`
	BatchSize int           `yaml:"batch_size"`
	TopN      int           `yaml:"top_n"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SimulationConfig carries the run parameters: scenario count, seed,
// percentile list, historical window, and overlap threshold.
type SimulationConfig struct {
	Scenarios         int       `yaml:"scenarios"`
	Seed              int64     `yaml:"seed"`
	Confidences       []float64 `yaml:"confidences"`
	Workers           int       `yaml:"workers"`
	MinOverlapDays    int       `yaml:"min_overlap_days"`
	FallbackPolicy    string    `yaml:"fallback_policy"` // hold | reject
	StoreTrajectories bool      `yaml:"store_trajectories"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads configuration from path (optional), applies environment
// overrides, and fills defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             "postgres://postgres@localhost:5432/aave_positions?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Redis: RedisConfig{
			DefaultTTL: 6 * time.Hour,
		},
		CoinGecko: CoinGeckoConfig{
			BaseURL:        "https://api.coingecko.com/api/v3",
			RequestsPerSec: 0.8,
			Timeout:        15 * time.Second,
			WindowDays:     90,
		},
		Subgraph: SubgraphConfig{
			BatchSize: 100,
			TopN:      1000,
			Timeout:   30 * time.Second,
		},
		Simulation: SimulationConfig{
			Scenarios:      10000,
			Seed:           42,
			Confidences:    []float64{95, 99, 99.9},
			MinOverlapDays: 10,
			FallbackPolicy: "hold",
		},
		HTTP: HTTPConfig{
			Addr: ":8087",
		},
	}
}

// Validate rejects configurations the engine cannot honor.
func (c *Config) Validate() error {
	if c.Simulation.Scenarios <= 0 {
		return fmt.Errorf("simulation.scenarios must be positive, got %d", c.Simulation.Scenarios)
	}
	if c.Simulation.MinOverlapDays < 2 {
		return fmt.Errorf("simulation.min_overlap_days must be at least 2, got %d", c.Simulation.MinOverlapDays)
	}
	for _, p := range c.Simulation.Confidences {
		if p <= 0 || p >= 100 {
			return fmt.Errorf("confidence level %g out of range (0, 100)", p)
		}
	}
	switch c.Simulation.FallbackPolicy {
	case "hold", "reject":
	default:
		return fmt.Errorf("unknown fallback_policy %q (want hold or reject)", c.Simulation.FallbackPolicy)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("LENDVAR_PG_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := os.Getenv("LENDVAR_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("LENDVAR_REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if key := os.Getenv("COINGECKO_API_KEY"); key != "" {
		cfg.CoinGecko.APIKey = key
	}
	if url := os.Getenv("SUBGRAPH_URL"); url != "" {
		cfg.Subgraph.URL = url
	}
	if n := os.Getenv("LENDVAR_SCENARIOS"); n != "" {
		if val, err := strconv.Atoi(n); err == nil {
			cfg.Simulation.Scenarios = val
		}
	}
	if seed := os.Getenv("LENDVAR_SEED"); seed != "" {
		if val, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Simulation.Seed = val
		}
	}
	if addr := os.Getenv("LENDVAR_HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}
}
