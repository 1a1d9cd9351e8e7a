package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// EngineConfig is the engine section. Addresses stay strings here and are
// parsed where they are used.
type EngineConfig struct {
	MatchingWindow        uint64        `mapstructure:"matching_window"`
	FallbackFeeTier       uint32        `mapstructure:"fallback_fee_tier"`
	FallbackDeadlineGrace uint64        `mapstructure:"fallback_deadline_grace"`
	GasSavedPerMatch      uint64        `mapstructure:"gas_saved_per_match"`
	RewardBps             uint16        `mapstructure:"reward_bps"`
	FeeBps                uint16        `mapstructure:"fee_bps"`
	PriceCheck            bool          `mapstructure:"price_check"`
	Owner                 string        `mapstructure:"owner"`
	HoldingAccount        string        `mapstructure:"holding_account"`
	KeeperInterval        time.Duration `mapstructure:"keeper_interval"`
	KeeperAccount         string        `mapstructure:"keeper_account"`
}

type StorageConfig struct {
	LevelDBPath string `mapstructure:"leveldb_path"`
	CacheSize   int    `mapstructure:"cache_size"`
	SyncWrites  bool   `mapstructure:"sync_writes"`
}

type HTTPConfig struct {
	ListenAddr string         `mapstructure:"listen_addr"`
	Auth       HTTPAuthConfig `mapstructure:"auth"`
}

type HTTPAuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Static bearer tokens accepted on every route except health.
	BearerTokens []string `mapstructure:"bearer_tokens"`
	// Commands must carry an X-Signature by the X-Account key.
	RequireSignatures bool `mapstructure:"require_signatures"`
}

type GRPCConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Reflection bool   `mapstructure:"reflection"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"` // e.g., 0.0.0.0:9095
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
	// Events go to <subject_prefix>.<event_type>
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// RaftPeerConfig represents a single Raft peer
type RaftPeerConfig struct {
	ID      string `mapstructure:"id"`
	Address string `mapstructure:"address"`
}

// RaftConfig represents Raft replication configuration
type RaftConfig struct {
	Enable    bool             `mapstructure:"enable"`
	NodeID    string           `mapstructure:"node_id"`
	Bootstrap bool             `mapstructure:"bootstrap"`
	Bind      string           `mapstructure:"bind"`
	Advertise string           `mapstructure:"advertise"`
	DataDir   string           `mapstructure:"data_dir"`
	Peers     []RaftPeerConfig `mapstructure:"peers"`
}

type AppConfig struct {
	Engine   EngineConfig  `mapstructure:"engine"`
	Storage  StorageConfig `mapstructure:"storage"`
	HTTP     HTTPConfig    `mapstructure:"http"`
	GRPC     GRPCConfig    `mapstructure:"grpc"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	NATS     NATSConfig    `mapstructure:"nats"`
	Raft     RaftConfig    `mapstructure:"raft"`
	Timeouts TimeoutConfig `mapstructure:"timeouts"`
	SeedFile string        `mapstructure:"seed_file"`
	LogLevel string        `mapstructure:"log_level"`
}

// DefaultAppConfig returns a config that runs a single in-process node.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Engine: EngineConfig{
			MatchingWindow:        300,
			FallbackFeeTier:       3000,
			FallbackDeadlineGrace: 300,
			GasSavedPerMatch:      50_000,
			RewardBps:             10,
			FeeBps:                30,
		},
		Storage: StorageConfig{
			LevelDBPath: "./data/swapd",
			CacheSize:   4096,
		},
		HTTP:     HTTPConfig{ListenAddr: ":8080"},
		GRPC:     GRPCConfig{ListenAddr: ":9090"},
		Metrics:  MetricsConfig{ListenAddr: ":9095"},
		NATS:     NATSConfig{SubjectPrefix: "p2pswap"},
		Raft:     RaftConfig{DataDir: "./data/raft"},
		Timeouts: *DefaultTimeoutConfig(),
		LogLevel: "info",
	}
}

// setDefaults registers every default with viper so that env overrides work
// for keys absent from the file.
func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("engine.matching_window", d.Engine.MatchingWindow)
	v.SetDefault("engine.fallback_fee_tier", d.Engine.FallbackFeeTier)
	v.SetDefault("engine.fallback_deadline_grace", d.Engine.FallbackDeadlineGrace)
	v.SetDefault("engine.gas_saved_per_match", d.Engine.GasSavedPerMatch)
	v.SetDefault("engine.reward_bps", d.Engine.RewardBps)
	v.SetDefault("engine.fee_bps", d.Engine.FeeBps)
	v.SetDefault("engine.price_check", false)
	v.SetDefault("engine.owner", "")
	v.SetDefault("engine.holding_account", "")
	v.SetDefault("engine.keeper_interval", time.Duration(0))
	v.SetDefault("engine.keeper_account", "")
	v.SetDefault("storage.leveldb_path", d.Storage.LevelDBPath)
	v.SetDefault("storage.cache_size", d.Storage.CacheSize)
	v.SetDefault("storage.sync_writes", false)
	v.SetDefault("http.listen_addr", d.HTTP.ListenAddr)
	v.SetDefault("http.auth.enabled", false)
	v.SetDefault("http.auth.require_signatures", false)
	v.SetDefault("grpc.listen_addr", d.GRPC.ListenAddr)
	v.SetDefault("grpc.reflection", false)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", d.Metrics.ListenAddr)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", d.NATS.SubjectPrefix)
	v.SetDefault("raft.enable", false)
	v.SetDefault("raft.node_id", "")
	v.SetDefault("raft.bootstrap", false)
	v.SetDefault("raft.bind", "")
	v.SetDefault("raft.advertise", "")
	v.SetDefault("raft.data_dir", d.Raft.DataDir)
	v.SetDefault("timeouts.shutdown_timeout", d.Timeouts.ShutdownTimeout)
	v.SetDefault("timeouts.http_read_timeout", d.Timeouts.HTTPReadTimeout)
	v.SetDefault("timeouts.http_write_timeout", d.Timeouts.HTTPWriteTimeout)
	v.SetDefault("timeouts.nats_reconnect_wait", d.Timeouts.NATSReconnectWait)
	v.SetDefault("timeouts.raft_apply_timeout", d.Timeouts.RaftApplyTimeout)
	v.SetDefault("timeouts.raft_leader_wait", d.Timeouts.RaftLeaderWait)
	v.SetDefault("timeouts.health_check_interval", d.Timeouts.HealthCheckInterval)
	v.SetDefault("seed_file", "")
	v.SetDefault("log_level", d.LogLevel)
}

// Load reads a YAML config file. Every key can be overridden from the
// environment as SWAPD_<SECTION>_<KEY>, e.g. SWAPD_ENGINE_OWNER.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("swapd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Timeouts.normalize()

	// Validate configuration
	validator := NewConfigValidator()
	if err := validator.Validate(&cfg); err != nil {
		return nil, err
	}

	// Print configuration summary
	PrintConfigurationSummary(&cfg)

	return &cfg, nil
}

// ParseAddress converts a hex string to an address. Empty and malformed
// strings yield the zero address; the validator reports malformed ones.
func ParseAddress(s string) common.Address {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

// OwnerAddress returns the configured engine owner.
func (c *AppConfig) OwnerAddress() common.Address { return ParseAddress(c.Engine.Owner) }

// HoldingAddress returns the configured custody holding account.
func (c *AppConfig) HoldingAddress() common.Address { return ParseAddress(c.Engine.HoldingAccount) }
