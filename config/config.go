package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string
	Pool        PoolConfig
	Feed        FeedConfig
	Chase       ChaseConfig
	Reconcile   ReconcileConfig
}

type PoolConfig struct {
	MaxConns int32
}

// FeedConfig scopes the realtime subscription and the fallback cadences.
type FeedConfig struct {
	// Geography is the server-side scope the subscription is opened with.
	Geography         string        `yaml:"geography"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	DrainInterval     time.Duration `yaml:"drain_interval"`
	FreshnessInterval time.Duration `yaml:"freshness_interval"`
}

type ChaseConfig struct {
	Cron string `yaml:"cron"`
}

type ReconcileConfig struct {
	Cron string `yaml:"cron"`
}

type fileConfig struct {
	Feed      FeedConfig      `yaml:"feed"`
	Chase     ChaseConfig     `yaml:"chase"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Pool: PoolConfig{
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 8)),
		},
		Feed: FeedConfig{
			Geography:         getEnv("FEED_GEOGRAPHY", ""),
			PollInterval:      getEnvDuration("FEED_POLL_INTERVAL", 60*time.Second),
			DrainInterval:     getEnvDuration("MATCH_DRAIN_INTERVAL", 500*time.Millisecond),
			FreshnessInterval: getEnvDuration("FEED_FRESHNESS_INTERVAL", 30*time.Second),
		},
		Chase: ChaseConfig{
			Cron: getEnv("CHASE_CRON", "@every 1m"),
		},
		Reconcile: ReconcileConfig{
			Cron: getEnv("RECONCILE_CRON", "@every 10m"),
		},
	}

	if path := getEnv("CONFIG_FILE", "config.yaml"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadFile overlays values from an optional YAML file; a missing file is fine.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if fc.Feed.Geography != "" {
		c.Feed.Geography = fc.Feed.Geography
	}
	if fc.Feed.PollInterval > 0 {
		c.Feed.PollInterval = fc.Feed.PollInterval
	}
	if fc.Feed.DrainInterval > 0 {
		c.Feed.DrainInterval = fc.Feed.DrainInterval
	}
	if fc.Feed.FreshnessInterval > 0 {
		c.Feed.FreshnessInterval = fc.Feed.FreshnessInterval
	}
	if fc.Chase.Cron != "" {
		c.Chase.Cron = fc.Chase.Cron
	}
	if fc.Reconcile.Cron != "" {
		c.Reconcile.Cron = fc.Reconcile.Cron
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
