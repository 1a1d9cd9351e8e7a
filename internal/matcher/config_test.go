package matcher

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pswap/internal/config"
	"p2pswap/internal/types"
	"p2pswap/internal/venue"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, types.DefaultMatchingWindow, cfg.MatchingWindow)
	assert.Equal(t, venue.FeeTierMedium, cfg.FallbackFeeTier)
	assert.Equal(t, uint64(300), cfg.FallbackDeadlineGrace)
	assert.Equal(t, uint64(50_000), cfg.GasSavedPerMatch)
	assert.Equal(t, StrategyPermissive, cfg.MatchingStrategy)
	assert.Equal(t, uint16(10), cfg.RewardBps)
	assert.Equal(t, uint16(30), cfg.FeeBps)
}

func TestNewConfigFromFile(t *testing.T) {
	keeper := "0x00000000000000000000000000000000000000cc"
	cfg := NewConfig(&config.EngineConfig{
		MatchingWindow: 60,
		RewardBps:      0,
		FeeBps:         5,
		PriceCheck:     true,
		KeeperInterval: time.Minute,
		KeeperAccount:  keeper,
	})
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint64(60), cfg.MatchingWindow)
	assert.Equal(t, StrategyPriceBound, cfg.MatchingStrategy)
	// An explicit zero reward survives when fee is set.
	assert.Equal(t, uint16(0), cfg.RewardBps)
	assert.Equal(t, uint16(5), cfg.FeeBps)
	assert.Equal(t, common.HexToAddress(keeper), cfg.KeeperAccount)

	s, err := cfg.CreateStrategy()
	require.NoError(t, err)
	assert.Equal(t, StrategyPriceBound, s.Name())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RewardBps = types.MaxConfigBps + 1
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.KeeperInterval = time.Second
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MatchingStrategy = "best_price"
	require.Error(t, cfg.Validate())

	_, err := NewEngine(cfg, Options{Owner: common.HexToAddress("0x00000000000000000000000000000000000000f0")})
	require.Error(t, err)
}
