package config

import "time"

// TimeoutConfig contains all timeout configurations for the daemon
type TimeoutConfig struct {
	// Process lifecycle
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// HTTP server
	HTTPReadTimeout  time.Duration `mapstructure:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `mapstructure:"http_write_timeout"`

	// Network and retry
	NATSReconnectWait time.Duration `mapstructure:"nats_reconnect_wait"`

	// Replication
	RaftApplyTimeout time.Duration `mapstructure:"raft_apply_timeout"`
	RaftLeaderWait   time.Duration `mapstructure:"raft_leader_wait"`

	// Health and monitoring
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
}

// DefaultTimeoutConfig returns default timeout configurations
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		ShutdownTimeout: 10 * time.Second,

		HTTPReadTimeout:  10 * time.Second,
		HTTPWriteTimeout: 30 * time.Second,

		NATSReconnectWait: 2 * time.Second,

		RaftApplyTimeout: 5 * time.Second,
		RaftLeaderWait:   30 * time.Second,

		HealthCheckInterval: 10 * time.Second,
	}
}

// normalize replaces unset values with defaults.
func (t *TimeoutConfig) normalize() {
	d := DefaultTimeoutConfig()
	if t.ShutdownTimeout <= 0 {
		t.ShutdownTimeout = d.ShutdownTimeout
	}
	if t.HTTPReadTimeout <= 0 {
		t.HTTPReadTimeout = d.HTTPReadTimeout
	}
	if t.HTTPWriteTimeout <= 0 {
		t.HTTPWriteTimeout = d.HTTPWriteTimeout
	}
	if t.NATSReconnectWait <= 0 {
		t.NATSReconnectWait = d.NATSReconnectWait
	}
	if t.RaftApplyTimeout <= 0 {
		t.RaftApplyTimeout = d.RaftApplyTimeout
	}
	if t.RaftLeaderWait <= 0 {
		t.RaftLeaderWait = d.RaftLeaderWait
	}
	if t.HealthCheckInterval <= 0 {
		t.HealthCheckInterval = d.HealthCheckInterval
	}
}
