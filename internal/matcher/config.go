package matcher

import (
	"fmt"
	"time"

	"p2pswap/internal/config"
	"p2pswap/internal/types"
	"p2pswap/internal/venue"
)

const (
	StrategyPermissive = "permissive"
	StrategyPriceBound = "price_bound"
)

// Config contains configuration for the matching engine
type Config struct {
	// MatchingWindow is fixed at deployment; deadline = submission + window.
	MatchingWindow uint64 `mapstructure:"matching_window"`

	// Fallback routing
	FallbackFeeTier       uint32 `mapstructure:"fallback_fee_tier"`
	FallbackDeadlineGrace uint64 `mapstructure:"fallback_deadline_grace"`

	// Estimated gas a direct settlement saves over two venue swaps.
	GasSavedPerMatch uint64 `mapstructure:"gas_saved_per_match"`

	// Matching strategy
	MatchingStrategy string `mapstructure:"matching_strategy"`

	// Initial reward/fee configuration
	RewardBps uint16 `mapstructure:"reward_bps"`
	FeeBps    uint16 `mapstructure:"fee_bps"`

	// Keeper sweeps expired intents into the venue.
	KeeperInterval time.Duration `mapstructure:"keeper_interval"`
	KeeperAccount  types.Address `mapstructure:"-"`
}

// DefaultConfig returns default engine configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// NewConfig maps the file-level engine section onto the engine config.
func NewConfig(ec *config.EngineConfig) *Config {
	if ec == nil {
		return DefaultConfig()
	}
	cfg := &Config{
		MatchingWindow:        ec.MatchingWindow,
		FallbackFeeTier:       ec.FallbackFeeTier,
		FallbackDeadlineGrace: ec.FallbackDeadlineGrace,
		GasSavedPerMatch:      ec.GasSavedPerMatch,
		RewardBps:             ec.RewardBps,
		FeeBps:                ec.FeeBps,
		KeeperInterval:        ec.KeeperInterval,
	}
	if ec.PriceCheck {
		cfg.MatchingStrategy = StrategyPriceBound
	}
	if ec.KeeperAccount != "" {
		cfg.KeeperAccount = config.ParseAddress(ec.KeeperAccount)
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills unset fields. RewardBps/FeeBps are defaulted only when
// both are zero so an explicit zero fee survives.
func (c *Config) applyDefaults() {
	if c.MatchingWindow == 0 {
		c.MatchingWindow = types.DefaultMatchingWindow
	}
	if c.FallbackFeeTier == 0 {
		c.FallbackFeeTier = venue.FeeTierMedium
	}
	if c.FallbackDeadlineGrace == 0 {
		c.FallbackDeadlineGrace = 300
	}
	if c.GasSavedPerMatch == 0 {
		c.GasSavedPerMatch = 50_000
	}
	if c.MatchingStrategy == "" {
		c.MatchingStrategy = StrategyPermissive
	}
	if c.RewardBps == 0 && c.FeeBps == 0 {
		def := types.DefaultConfiguration()
		c.RewardBps, c.FeeBps = def.RewardBps, def.FeeBps
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MatchingWindow == 0 {
		return fmt.Errorf("matching_window must be positive")
	}
	if err := (types.Configuration{RewardBps: c.RewardBps, FeeBps: c.FeeBps}).Validate(); err != nil {
		return fmt.Errorf("initial configuration: %w", err)
	}
	if c.KeeperInterval < 0 {
		return fmt.Errorf("keeper_interval cannot be negative: %v", c.KeeperInterval)
	}
	if c.KeeperInterval > 0 && c.KeeperAccount == (types.Address{}) {
		return fmt.Errorf("keeper_account is required when keeper_interval is set")
	}
	if _, err := c.CreateStrategy(); err != nil {
		return err
	}
	return nil
}

// CreateStrategy creates a CompatibilityStrategy instance based on the configuration
func (c *Config) CreateStrategy() (CompatibilityStrategy, error) {
	switch c.MatchingStrategy {
	case StrategyPermissive, "":
		return PermissiveStrategy{}, nil
	case StrategyPriceBound:
		return PriceBoundStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown matching strategy: %s (supported: %s, %s)",
			c.MatchingStrategy, StrategyPermissive, StrategyPriceBound)
	}
}
