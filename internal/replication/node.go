package replication

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"p2pswap/internal/logging"
)

// Peer describes a known peer in the Raft cluster.
type Peer struct {
	ID      string
	Address string
}

// NodeConfig defines the parameters required to initialise the Raft node.
type NodeConfig struct {
	NodeID           string
	DataDir          string
	BindAddress      string
	Advertise        string
	Bootstrap        bool
	Peers            []Peer
	ApplyTimeout     time.Duration
	HeartbeatTimeout time.Duration
	ElectionTimeout  time.Duration
	CommitTimeout    time.Duration
	MaxPool          int
}

// Node wraps the hashicorp/raft state machine.
type Node struct {
	raft         *raft.Raft
	fsm          *FSM
	applyTimeout time.Duration
	closers      []func() error
	logger       logging.Logger
}

// NewNode initialises Raft with bolt-backed log storage and a TCP transport.
func NewNode(cfg NodeConfig, fsm *FSM, logger logging.Logger) (*Node, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("raft: data directory required")
	}
	if cfg.BindAddress == "" {
		return nil, fmt.Errorf("raft: bind address required")
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("raft: create data dir: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("raft: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		logStore.Close()
		return nil, fmt.Errorf("raft: create stable store: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 3, os.Stderr)
	if err != nil {
		logStore.Close()
		stableStore.Close()
		return nil, fmt.Errorf("raft: create snapshot store: %w", err)
	}

	maxPool := cfg.MaxPool
	if maxPool <= 0 {
		maxPool = 3
	}
	advertise := cfg.Advertise
	if advertise == "" {
		advertise = cfg.BindAddress
	}
	addr, err := net.ResolveTCPAddr("tcp", advertise)
	if err != nil {
		logStore.Close()
		stableStore.Close()
		return nil, fmt.Errorf("raft: resolve advertise address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddress, addr, maxPool, 10*time.Second, os.Stderr)
	if err != nil {
		logStore.Close()
		stableStore.Close()
		return nil, fmt.Errorf("raft: create transport: %w", err)
	}

	n, err := newNode(cfg, fsm, logStore, stableStore, snapshotStore, transport, logger)
	if err != nil {
		transport.Close()
		logStore.Close()
		stableStore.Close()
		return nil, err
	}
	n.closers = append(n.closers, transport.Close, logStore.Close, stableStore.Close)
	return n, nil
}

// newNode starts raft over the given stores. Tests pass in-memory ones.
func newNode(cfg NodeConfig, fsm *FSM, logs raft.LogStore, stable raft.StableStore,
	snaps raft.SnapshotStore, transport raft.Transport, logger logging.Logger) (*Node, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("raft: node id required")
	}
	if fsm == nil {
		return nil, fmt.Errorf("raft: fsm required")
	}

	rConfig := raft.DefaultConfig()
	rConfig.LocalID = raft.ServerID(cfg.NodeID)
	if cfg.HeartbeatTimeout > 0 {
		rConfig.HeartbeatTimeout = cfg.HeartbeatTimeout
		if rConfig.LeaderLeaseTimeout > cfg.HeartbeatTimeout {
			rConfig.LeaderLeaseTimeout = cfg.HeartbeatTimeout
		}
	}
	if cfg.ElectionTimeout > 0 {
		rConfig.ElectionTimeout = cfg.ElectionTimeout
	}
	if cfg.CommitTimeout > 0 {
		rConfig.CommitTimeout = cfg.CommitTimeout
	}

	rNode, err := raft.NewRaft(rConfig, fsm, logs, stable, snaps, transport)
	if err != nil {
		return nil, fmt.Errorf("raft: init raft node: %w", err)
	}

	if cfg.Bootstrap {
		servers := make([]raft.Server, 0, len(cfg.Peers)+1)
		for _, peer := range cfg.Peers {
			servers = append(servers, raft.Server{
				ID:      raft.ServerID(peer.ID),
				Address: raft.ServerAddress(peer.Address),
			})
		}
		if len(servers) == 0 {
			servers = append(servers, raft.Server{ID: rConfig.LocalID, Address: transport.LocalAddr()})
		}
		if err := rNode.BootstrapCluster(raft.Configuration{Servers: servers}).Error(); err != nil && err != raft.ErrCantBootstrap {
			rNode.Shutdown()
			return nil, fmt.Errorf("raft: bootstrap cluster: %w", err)
		}
	}

	applyTimeout := cfg.ApplyTimeout
	if applyTimeout <= 0 {
		applyTimeout = 10 * time.Second
	}
	logger.Infof("Raft node %s started (bootstrap=%v, peers=%d)", cfg.NodeID, cfg.Bootstrap, len(cfg.Peers))
	return &Node{raft: rNode, fsm: fsm, applyTimeout: applyTimeout, logger: logger}, nil
}

// IsLeader returns true if this node currently acts as leader.
func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// LeaderAddress returns the address of the current leader if known.
func (n *Node) LeaderAddress() string {
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// WaitForLeader blocks until the cluster has elected a leader.
func (n *Node) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if addr, _ := n.raft.LeaderWithID(); addr != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("raft: no leader elected: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Apply replicates cmd and returns the engine's result once it has been
// applied locally.
func (n *Node) Apply(ctx context.Context, cmd *Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !n.IsLeader() {
		return nil, fmt.Errorf("%w: leader is %q", ErrNotLeader, n.LeaderAddress())
	}
	payload, err := cmd.Marshal()
	if err != nil {
		return nil, err
	}
	timeout := n.applyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	future := n.raft.Apply(payload, timeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return nil, fmt.Errorf("%w: %v", ErrNotLeader, err)
		}
		return nil, fmt.Errorf("raft: apply %s: %w", cmd.Type, err)
	}
	res, ok := future.Response().(*Result)
	if !ok {
		return nil, fmt.Errorf("raft: unexpected fsm response %T", future.Response())
	}
	return res, nil
}

// Snapshot forces a snapshot of the current state.
func (n *Node) Snapshot() error {
	return n.raft.Snapshot().Error()
}

// Shutdown gracefully stops the Raft node.
func (n *Node) Shutdown() error {
	err := n.raft.Shutdown().Error()
	for _, c := range n.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
