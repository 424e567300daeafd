// Package config loads the backtester's process configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	match "github.com/0x5487/market-backtester"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds everything the backtest command needs. Load fills it from a
// YAML file and then applies environment overrides.
type Config struct {
	Engine match.Config `yaml:"engine"`

	Data struct {
		Prices       string `yaml:"prices"`
		Trades       string `yaml:"trades"`
		Observations string `yaml:"observations"`
	} `yaml:"data"`

	Store struct {
		Path        string `yaml:"path"`
		Import      bool   `yaml:"import"`       // Load the data files into the store before the run
		SaveResults bool   `yaml:"save_results"` // Record fills, book logs and the result
	} `yaml:"store"`

	Strategy struct {
		Name          string                     `yaml:"name"`
		MinSpread     int64                      `yaml:"min_spread"`
		Window        int                        `yaml:"window"`
		FairValues    map[string]decimal.Decimal `yaml:"fair_values"`
		MeanReversion []string                   `yaml:"mean_reversion"`
	} `yaml:"strategy"`

	Snapshot struct {
		Dir string `yaml:"dir"`
	} `yaml:"snapshot"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// Default returns a Config with the engine defaults and info logging.
func Default() *Config {
	cfg := &Config{Engine: match.DefaultConfig()}
	cfg.Logging.Level = "info"
	return cfg
}

// Load reads the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}

	if c.Store.Path == "" || c.Store.Import {
		if c.Data.Prices == "" {
			return fmt.Errorf("%w: a price file is required", match.ErrInvalidParam)
		}
	}
	if (c.Store.Import || c.Store.SaveResults) && c.Store.Path == "" {
		return fmt.Errorf("%w: store path is required", match.ErrInvalidParam)
	}

	if c.Strategy.Name == "" {
		return fmt.Errorf("%w: strategy name is required", match.ErrInvalidParam)
	}
	if c.Strategy.MinSpread < 0 || c.Strategy.Window < 0 {
		return fmt.Errorf("%w: strategy parameters must not be negative", match.ErrInvalidParam)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", match.ErrInvalidParam, c.Logging.Level)
	}

	return nil
}

func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("BACKTEST_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BACKTEST_ITERATIONS: %w", err)
		}
		cfg.Engine.Iterations = n
	}
	if v := os.Getenv("BACKTEST_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BACKTEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BACKTEST_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	return nil
}
