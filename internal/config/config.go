package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel            string
	DataDir             string
	PGDSN               string
	RemoteCheckInterval time.Duration
	RetryInterval       time.Duration
	Listen              string
	KafkaBrokers        []string
	KafkaTopic          string
	CoinGeckoURL        string
	LabelsRefresh       time.Duration
	MaxRetries          int
	RetryBackoff        time.Duration
	RateLimitBackoff    time.Duration
	Chains              []ChainConfig
}

// Load merges .env, config file, environment variables, and flags into Config.
// Chains come from the config file only.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("WHALESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("data-dir", "./data")
	v.SetDefault("remote-check-interval", 30*time.Second)
	v.SetDefault("retry-interval", 60*time.Second)
	v.SetDefault("listen", ":8080")
	v.SetDefault("kafka-topic", "whale-events")
	v.SetDefault("labels-refresh", 10*time.Minute)
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("rate-limit-backoff", 3*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		LogLevel:            v.GetString("log-level"),
		DataDir:             v.GetString("data-dir"),
		PGDSN:               v.GetString("pg-dsn"),
		RemoteCheckInterval: v.GetDuration("remote-check-interval"),
		RetryInterval:       v.GetDuration("retry-interval"),
		Listen:              v.GetString("listen"),
		KafkaBrokers:        getStringSlice(v, "kafka-brokers"),
		KafkaTopic:          v.GetString("kafka-topic"),
		CoinGeckoURL:        v.GetString("coingecko-url"),
		LabelsRefresh:       v.GetDuration("labels-refresh"),
		MaxRetries:          v.GetInt("max-retries"),
		RetryBackoff:        v.GetDuration("retry-backoff"),
		RateLimitBackoff:    v.GetDuration("rate-limit-backoff"),
	}

	if err := v.UnmarshalKey("chains", &cfg.Chains); err != nil {
		return Config{}, fmt.Errorf("decode chains: %w", err)
	}
	for i := range cfg.Chains {
		cfg.Chains[i].applyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks globals and every chain.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir is required")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max-retries must be at least 1")
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry-interval must be positive")
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("no chains configured")
	}
	seen := make(map[string]struct{}, len(c.Chains))
	for i := range c.Chains {
		ch := &c.Chains[i]
		if err := ch.validate(); err != nil {
			return fmt.Errorf("chain %q: %w", ch.ID, err)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("chain %q declared twice", ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	return nil
}

// Chain returns the chain with id.
func (c *Config) Chain(id string) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// ChainIDs lists the configured chain ids in declaration order.
func (c *Config) ChainIDs() []string {
	ids := make([]string, 0, len(c.Chains))
	for _, ch := range c.Chains {
		ids = append(ids, ch.ID)
	}
	return ids
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
