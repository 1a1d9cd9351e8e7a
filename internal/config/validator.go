package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"p2pswap/internal/types"
	"p2pswap/internal/venue"
)

// ValidationMode determines the strictness of configuration validation
type ValidationMode string

const (
	ValidationModeProduction  ValidationMode = "production"
	ValidationModeDevelopment ValidationMode = "development"
	ValidationModeTest        ValidationMode = "test"
)

// ConfigValidator validates configuration for production readiness
type ConfigValidator struct {
	mode     ValidationMode
	errors   []string
	warnings []string
}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	mode := ValidationModeDevelopment // Default to development

	// Check environment variable
	if envMode := os.Getenv("SWAPD_MODE"); envMode != "" {
		switch strings.ToLower(envMode) {
		case "production", "prod":
			mode = ValidationModeProduction
		case "test", "testing":
			mode = ValidationModeTest
		case "development", "dev":
			mode = ValidationModeDevelopment
		}
	}

	return &ConfigValidator{
		mode:     mode,
		errors:   []string{},
		warnings: []string{},
	}
}

// Validate checks the configuration for issues. Engine errors fail in every
// mode; the remaining checks only fail in production mode.
func (v *ConfigValidator) Validate(cfg *AppConfig) error {
	v.errors = []string{}
	v.warnings = []string{}

	// Engine parameters are never optional
	v.validateEngine(cfg)
	if len(v.errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(v.errors, "\n"))
	}

	v.validateNetwork(cfg)
	v.validateTimeouts(cfg)
	v.validateStorage(cfg)
	v.validateRaft(cfg)
	v.validateSecurity(cfg)

	// Return errors if in production mode
	if v.mode == ValidationModeProduction && len(v.errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(v.errors, "\n"))
	}

	// Print warnings
	if len(v.warnings) > 0 && v.mode != ValidationModeTest {
		fmt.Printf("Configuration warnings:\n%s\n", strings.Join(v.warnings, "\n"))
	}

	return nil
}

// Errors returns the errors collected by the last Validate call.
func (v *ConfigValidator) Errors() []string { return v.errors }

// Warnings returns the warnings collected by the last Validate call.
func (v *ConfigValidator) Warnings() []string { return v.warnings }

func (v *ConfigValidator) validateEngine(cfg *AppConfig) {
	e := cfg.Engine
	if e.MatchingWindow == 0 {
		v.errors = append(v.errors, "engine.matching_window must be positive")
	}
	switch e.FallbackFeeTier {
	case venue.FeeTierLow, venue.FeeTierMedium, venue.FeeTierHigh:
	default:
		v.errors = append(v.errors, fmt.Sprintf("engine.fallback_fee_tier %d is not a pool fee tier (%d, %d, %d)",
			e.FallbackFeeTier, venue.FeeTierLow, venue.FeeTierMedium, venue.FeeTierHigh))
	}
	if e.RewardBps > types.MaxConfigBps {
		v.errors = append(v.errors, fmt.Sprintf("engine.reward_bps %d exceeds %d", e.RewardBps, types.MaxConfigBps))
	}
	if e.FeeBps > types.MaxConfigBps {
		v.errors = append(v.errors, fmt.Sprintf("engine.fee_bps %d exceeds %d", e.FeeBps, types.MaxConfigBps))
	}

	v.requireAddress("engine.owner", e.Owner)
	v.requireAddress("engine.holding_account", e.HoldingAccount)
	if e.Owner != "" && strings.EqualFold(e.Owner, e.HoldingAccount) {
		v.errors = append(v.errors, "engine.owner and engine.holding_account must differ")
	}

	if e.KeeperInterval < 0 {
		v.errors = append(v.errors, fmt.Sprintf("engine.keeper_interval cannot be negative: %v", e.KeeperInterval))
	}
	if e.KeeperInterval > 0 {
		v.requireAddress("engine.keeper_account", e.KeeperAccount)
		if e.KeeperInterval < time.Second {
			v.warnings = append(v.warnings, fmt.Sprintf("engine.keeper_interval very short: %v", e.KeeperInterval))
		}
	}
}

func (v *ConfigValidator) requireAddress(name, value string) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		v.errors = append(v.errors, fmt.Sprintf("%s is required", name))
	case !common.IsHexAddress(value):
		v.errors = append(v.errors, fmt.Sprintf("%s is not a valid address: %s", name, value))
	case common.HexToAddress(value) == (common.Address{}):
		v.errors = append(v.errors, fmt.Sprintf("%s cannot be the zero address", name))
	}
}

func (v *ConfigValidator) validateNetwork(cfg *AppConfig) {
	v.validatePort("http.listen_addr", cfg.HTTP.ListenAddr)
	v.validatePort("grpc.listen_addr", cfg.GRPC.ListenAddr)
	if cfg.Metrics.Enabled {
		v.validatePort("metrics.listen_addr", cfg.Metrics.ListenAddr)
	}
	if cfg.NATS.URL != "" && !strings.HasPrefix(cfg.NATS.URL, "nats://") && !strings.HasPrefix(cfg.NATS.URL, "tls://") {
		v.warnings = append(v.warnings, fmt.Sprintf("nats.url has unexpected scheme: %s", cfg.NATS.URL))
	}
}

func (v *ConfigValidator) validatePort(name string, port string) {
	if port == "" {
		return
	}
	// Port string like ":8080" or "0.0.0.0:8080"
	parts := strings.Split(port, ":")
	portStr := parts[len(parts)-1]
	if portNum, err := strconv.Atoi(portStr); err == nil {
		if portNum < 1024 && portNum != 0 {
			v.warnings = append(v.warnings, fmt.Sprintf("%s uses privileged port %d (< 1024)", name, portNum))
		}
		if portNum > 65535 {
			v.errors = append(v.errors, fmt.Sprintf("%s port out of range: %d", name, portNum))
		}
	}
}

func (v *ConfigValidator) validateTimeouts(cfg *AppConfig) {
	if cfg.Timeouts.RaftApplyTimeout > 0 && cfg.Timeouts.RaftApplyTimeout < 100*time.Millisecond {
		v.errors = append(v.errors, fmt.Sprintf("raft_apply_timeout too short: %v", cfg.Timeouts.RaftApplyTimeout))
	}
	if cfg.Timeouts.ShutdownTimeout > 5*time.Minute {
		v.warnings = append(v.warnings, fmt.Sprintf("shutdown_timeout very long: %v", cfg.Timeouts.ShutdownTimeout))
	}
}

func (v *ConfigValidator) validateStorage(cfg *AppConfig) {
	if strings.TrimSpace(cfg.Storage.LevelDBPath) == "" {
		v.warnings = append(v.warnings, "storage.leveldb_path is empty - engine state will not survive a restart")
	}
	if cfg.Storage.CacheSize < 0 {
		v.errors = append(v.errors, fmt.Sprintf("storage.cache_size cannot be negative: %d", cfg.Storage.CacheSize))
	}
	if v.mode == ValidationModeProduction && !cfg.Storage.SyncWrites {
		v.warnings = append(v.warnings, "storage.sync_writes is disabled - recent commits may be lost on crash")
	}
}

func (v *ConfigValidator) validateRaft(cfg *AppConfig) {
	if !cfg.Raft.Enable {
		return
	}
	if cfg.Raft.NodeID == "" {
		v.errors = append(v.errors, "raft.node_id is required when raft is enabled")
	}
	if cfg.Raft.Bind == "" {
		v.errors = append(v.errors, "raft.bind is required when raft is enabled")
	}
	if cfg.Raft.DataDir == "" {
		v.errors = append(v.errors, "raft.data_dir is required when raft is enabled")
	}
	seen := make(map[string]bool, len(cfg.Raft.Peers))
	for _, p := range cfg.Raft.Peers {
		if p.ID == "" || p.Address == "" {
			v.errors = append(v.errors, "raft.peers entries need both id and address")
			continue
		}
		if seen[p.ID] {
			v.errors = append(v.errors, fmt.Sprintf("duplicate raft peer id: %s", p.ID))
		}
		seen[p.ID] = true
	}
	if len(cfg.Raft.Peers) > 0 && len(cfg.Raft.Peers)%2 == 0 {
		v.warnings = append(v.warnings, fmt.Sprintf("raft cluster has an even number of peers (%d)", len(cfg.Raft.Peers)))
	}
}

func (v *ConfigValidator) validateSecurity(cfg *AppConfig) {
	// Check HTTP authentication
	if !cfg.HTTP.Auth.Enabled && v.mode == ValidationModeProduction {
		v.errors = append(v.errors, "HTTP authentication is disabled - enable bearer tokens for production")
	}

	// Check bearer tokens
	if cfg.HTTP.Auth.Enabled && len(cfg.HTTP.Auth.BearerTokens) == 0 {
		v.warnings = append(v.warnings, "HTTP authentication enabled but no bearer tokens configured")
	}

	if cfg.SeedFile != "" {
		msg := fmt.Sprintf("Seed file %s mints balances at startup - remove for production", cfg.SeedFile)
		if v.mode == ValidationModeProduction {
			v.errors = append(v.errors, msg)
		} else {
			v.warnings = append(v.warnings, msg)
		}
	}
}

// ValidateProductionReadiness performs strict validation for production deployments
func ValidateProductionReadiness(cfg *AppConfig) error {
	validator := &ConfigValidator{mode: ValidationModeProduction}
	return validator.Validate(cfg)
}

// PrintConfigurationSummary prints a summary of the configuration
func PrintConfigurationSummary(cfg *AppConfig) {
	fmt.Println("Configuration Summary:")
	fmt.Println("======================")

	fmt.Printf("Owner: %s\n", cfg.Engine.Owner)
	fmt.Printf("Holding Account: %s\n", cfg.Engine.HoldingAccount)
	fmt.Printf("Matching Window: %ds\n", cfg.Engine.MatchingWindow)
	fmt.Printf("Price Check: %v\n", cfg.Engine.PriceCheck)
	fmt.Printf("Fallback Fee Tier: %d\n", cfg.Engine.FallbackFeeTier)
	if cfg.Engine.KeeperInterval > 0 {
		fmt.Printf("Keeper: every %v as %s\n", cfg.Engine.KeeperInterval, cfg.Engine.KeeperAccount)
	} else {
		fmt.Println("Keeper: disabled")
	}

	fmt.Printf("HTTP: %s (auth=%v)\n", cfg.HTTP.ListenAddr, cfg.HTTP.Auth.Enabled)
	fmt.Printf("gRPC Health: %s\n", cfg.GRPC.ListenAddr)
	if cfg.NATS.URL != "" {
		fmt.Printf("Event Bus: %s (%s.*)\n", cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	} else {
		fmt.Println("Event Bus: disabled")
	}
	if cfg.Raft.Enable {
		fmt.Printf("Raft: node=%s bind=%s peers=%d\n", cfg.Raft.NodeID, cfg.Raft.Bind, len(cfg.Raft.Peers))
	} else {
		fmt.Println("Raft: disabled")
	}

	fmt.Println("======================")
}
