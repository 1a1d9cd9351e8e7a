package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "0x00000000000000000000000000000000000000f0"
const testHolding = "0x00000000000000000000000000000000000000aa"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfigurationLoading(t *testing.T) {
	configFile := writeFile(t, "config.yaml", `
log_level: debug

engine:
  matching_window: 600
  fallback_fee_tier: 500
  reward_bps: 20
  fee_bps: 0
  price_check: true
  owner: "`+testOwner+`"
  holding_account: "`+testHolding+`"
  keeper_interval: 15s
  keeper_account: "0x00000000000000000000000000000000000000cc"

storage:
  leveldb_path: /var/lib/swapd
  cache_size: 128

http:
  listen_addr: ":8181"
  auth:
    enabled: true
    bearer_tokens: ["t1", "t2"]

nats:
  url: nats://127.0.0.1:4222

raft:
  enable: true
  node_id: node-1
  bind: 127.0.0.1:7000
  data_dir: /var/lib/swapd/raft
  peers:
    - id: node-1
      address: 127.0.0.1:7000

timeouts:
  raft_apply_timeout: 2s
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(600), cfg.Engine.MatchingWindow)
	assert.Equal(t, uint32(500), cfg.Engine.FallbackFeeTier)
	assert.Equal(t, uint16(20), cfg.Engine.RewardBps)
	assert.Equal(t, uint16(0), cfg.Engine.FeeBps)
	assert.True(t, cfg.Engine.PriceCheck)
	assert.Equal(t, 15*time.Second, cfg.Engine.KeeperInterval)
	assert.Equal(t, common.HexToAddress(testOwner), cfg.OwnerAddress())
	assert.Equal(t, common.HexToAddress(testHolding), cfg.HoldingAddress())

	// Defaults fill what the file leaves out.
	assert.Equal(t, uint64(300), cfg.Engine.FallbackDeadlineGrace)
	assert.Equal(t, uint64(50_000), cfg.Engine.GasSavedPerMatch)
	assert.Equal(t, ":9090", cfg.GRPC.ListenAddr)
	assert.Equal(t, "p2pswap", cfg.NATS.SubjectPrefix)

	assert.Equal(t, "/var/lib/swapd", cfg.Storage.LevelDBPath)
	assert.Equal(t, 128, cfg.Storage.CacheSize)
	assert.Equal(t, ":8181", cfg.HTTP.ListenAddr)
	assert.Equal(t, []string{"t1", "t2"}, cfg.HTTP.Auth.BearerTokens)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)

	assert.True(t, cfg.Raft.Enable)
	assert.Equal(t, "node-1", cfg.Raft.NodeID)
	require.Len(t, cfg.Raft.Peers, 1)
	assert.Equal(t, "127.0.0.1:7000", cfg.Raft.Peers[0].Address)

	assert.Equal(t, 2*time.Second, cfg.Timeouts.RaftApplyTimeout)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.ShutdownTimeout)
}

func TestEnvironmentOverrides(t *testing.T) {
	configFile := writeFile(t, "config.yaml", `
engine:
  owner: "`+testOwner+`"
  holding_account: "`+testHolding+`"
`)
	t.Setenv("SWAPD_ENGINE_MATCHING_WINDOW", "120")
	t.Setenv("SWAPD_HTTP_LISTEN_ADDR", ":9999")

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), cfg.Engine.MatchingWindow)
	assert.Equal(t, ":9999", cfg.HTTP.ListenAddr)
}

func TestEngineValidationAlwaysFails(t *testing.T) {
	cases := map[string]string{
		"missing owner": `
engine:
  holding_account: "` + testHolding + `"
`,
		"bad fee tier": `
engine:
  owner: "` + testOwner + `"
  holding_account: "` + testHolding + `"
  fallback_fee_tier: 1234
`,
		"reward out of range": `
engine:
  owner: "` + testOwner + `"
  holding_account: "` + testHolding + `"
  reward_bps: 1001
`,
		"owner is holding": `
engine:
  owner: "` + testOwner + `"
  holding_account: "` + testOwner + `"
`,
		"keeper without account": `
engine:
  owner: "` + testOwner + `"
  holding_account: "` + testHolding + `"
  keeper_interval: 30s
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", content))
			require.Error(t, err)
		})
	}
}

func TestProductionReadiness(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Engine.Owner = testOwner
	cfg.Engine.HoldingAccount = testHolding
	require.NoError(t, NewConfigValidator().Validate(cfg))

	err := ValidateProductionReadiness(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP authentication is disabled")

	cfg.HTTP.Auth.Enabled = true
	cfg.HTTP.Auth.BearerTokens = []string{"secret"}
	require.NoError(t, ValidateProductionReadiness(cfg))

	cfg.Raft.Enable = true
	err = ValidateProductionReadiness(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "raft.node_id")
}

func TestDefaultTimeoutConfig(t *testing.T) {
	cfg := DefaultTimeoutConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.RaftApplyTimeout)
	assert.Equal(t, 2*time.Second, cfg.NATSReconnectWait)

	var empty TimeoutConfig
	empty.normalize()
	assert.Equal(t, *cfg, empty)
}

func TestParseAddress(t *testing.T) {
	assert.Equal(t, common.HexToAddress(testOwner), ParseAddress(" "+testOwner+" "))
	assert.Equal(t, common.Address{}, ParseAddress(""))
	assert.Equal(t, common.Address{}, ParseAddress("not-an-address"))
}

func TestLoadSeed(t *testing.T) {
	path := writeFile(t, "seed.yaml", `
balances:
  - account: "0x00000000000000000000000000000000000000a1"
    token: "0x000000000000000000000000000000000000a000"
    amount: "1000000000000000000"
    approve: true
  - account: "0x00000000000000000000000000000000000000cc"
    token: "0x000000000000000000000000000000000000b000"
    amount: "0x64"
pools:
  - token_a: "0x000000000000000000000000000000000000a000"
    token_b: "0x000000000000000000000000000000000000b000"
    fee: 3000
    amount_a: "100"
    amount_b: "100"
    provider: "0x00000000000000000000000000000000000000cc"
relayers:
  - "0x00000000000000000000000000000000000000b0"
`)
	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Balances, 2)
	require.Len(t, seed.Pools, 1)
	require.Len(t, seed.Relayers, 1)

	account, token, amount := seed.Balances[0].Amounts()
	assert.Equal(t, common.HexToAddress("0xa1"), account)
	assert.Equal(t, common.HexToAddress("0xa000"), token)
	assert.Equal(t, "1000000000000000000", amount.Dec())
	assert.True(t, seed.Balances[0].Approve)

	_, _, hexAmount := seed.Balances[1].Amounts()
	assert.Equal(t, uint64(100), hexAmount.Uint64())

	a, b, provider, amtA, amtB := seed.Pools[0].Amounts()
	assert.Equal(t, common.HexToAddress("0xa000"), a)
	assert.Equal(t, common.HexToAddress("0xb000"), b)
	assert.Equal(t, common.HexToAddress("0xcc"), provider)
	assert.Equal(t, uint64(100), amtA.Uint64())
	assert.Equal(t, uint64(100), amtB.Uint64())
	assert.Equal(t, uint32(3000), seed.Pools[0].Fee)
}

func TestLoadSeedRejectsBadInput(t *testing.T) {
	_, err := LoadSeed(writeFile(t, "seed.yaml", `
balances:
  - account: "nope"
    token: "0x000000000000000000000000000000000000a000"
    amount: "1"
`))
	require.Error(t, err)

	_, err = LoadSeed(writeFile(t, "seed.yaml", `
balances:
  - account: "0x00000000000000000000000000000000000000a1"
    token: "0x000000000000000000000000000000000000a000"
    amount: "-5"
`))
	require.Error(t, err)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
