package match

import (
	"fmt"
	"sort"
)

// Config holds the run parameters. It is copied at construction and never
// changes while the engine runs.
type Config struct {
	Iterations       int              `yaml:"iterations" json:"iterations"`
	TickSize         int64            `yaml:"tick_size" json:"tick_size"`
	StartTimestamp   int64            `yaml:"start_timestamp" json:"start_timestamp"`
	PositionLimits   map[string]int64 `yaml:"position_limits" json:"position_limits"`
	Denomination     string           `yaml:"denomination" json:"denomination"`
	QuoteLevels      int              `yaml:"quote_levels" json:"quote_levels"`
	VerifyInvariants bool             `yaml:"verify_invariants" json:"verify_invariants"`
}

// DefaultConfig returns a Config with the reference tick size and no instruments.
func DefaultConfig() Config {
	return Config{
		Iterations:       1,
		TickSize:         DefaultTickSize,
		PositionLimits:   make(map[string]int64),
		Denomination:     DefaultDenomination,
		QuoteLevels:      DefaultQuoteLevels,
		VerifyInvariants: true,
	}
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidParam, c.Iterations)
	}
	if c.TickSize <= 0 {
		return fmt.Errorf("%w: tick size must be positive, got %d", ErrInvalidParam, c.TickSize)
	}
	if c.QuoteLevels <= 0 {
		return fmt.Errorf("%w: quote levels must be positive, got %d", ErrInvalidParam, c.QuoteLevels)
	}
	if len(c.PositionLimits) == 0 {
		return fmt.Errorf("%w: no instruments configured", ErrInvalidParam)
	}
	for symbol, limit := range c.PositionLimits {
		if symbol == "" {
			return fmt.Errorf("%w: empty instrument name", ErrInvalidParam)
		}
		if limit <= 0 {
			return fmt.Errorf("%w: position limit for %s must be positive, got %d", ErrInvalidParam, symbol, limit)
		}
	}
	return nil
}

// Symbols returns the configured instruments, sorted.
func (c Config) Symbols() []string {
	symbols := make([]string, 0, len(c.PositionLimits))
	for s := range c.PositionLimits {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// LastTimestamp returns the logical time of the final iteration.
func (c Config) LastTimestamp() int64 {
	return c.StartTimestamp + int64(c.Iterations-1)*c.TickSize
}

func (c Config) clone() Config {
	cpy := c
	cpy.PositionLimits = make(map[string]int64, len(c.PositionLimits))
	for k, v := range c.PositionLimits {
		cpy.PositionLimits[k] = v
	}
	return cpy
}
