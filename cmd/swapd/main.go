package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"

	"p2pswap/internal/api"
	"p2pswap/internal/config"
	"p2pswap/internal/custody"
	"p2pswap/internal/events"
	"p2pswap/internal/logging"
	"p2pswap/internal/matcher"
	"p2pswap/internal/messaging"
	"p2pswap/internal/metrics"
	"p2pswap/internal/replication"
	"p2pswap/internal/storage"
	"p2pswap/internal/venue"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to configuration file")
		httpAddr   = flag.String("http", "", "HTTP listen address (overrides config file)")
		grpcAddr   = flag.String("grpc", "", "gRPC health listen address (overrides config file)")
		seedFile   = flag.String("seed", "", "Seed file with balances, pools and relayers (overrides config file)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *httpAddr != "" {
		cfg.HTTP.ListenAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.GRPC.ListenAddr = *grpcAddr
	}
	if *seedFile != "" {
		cfg.SeedFile = *seedFile
	}

	logging.Init(cfg.LogLevel)
	logger := logging.NewDefaultLogger()
	logger.Info("Starting swapd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seed *config.Seed
	if cfg.SeedFile != "" {
		if seed, err = config.LoadSeed(cfg.SeedFile); err != nil {
			log.Fatalf("Failed to load seed file: %v", err)
		}
	}

	ledger := custody.NewLedger(cfg.HoldingAddress(), logging.WithFields(logger, logging.Fields{"component": "custody"}))
	amm := venue.NewAMM(ledger, logging.WithFields(logger, logging.Fields{"component": "venue"}))

	// Events
	var emitter events.Emitter = events.NoopEmitter{}
	if cfg.NATS.URL != "" {
		bus, err := messaging.NewNATSBus(cfg.NATS.URL, logger, nats.ReconnectWait(cfg.Timeouts.NATSReconnectWait))
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer bus.Close()
		emitter = events.NewBusEmitter(bus, cfg.NATS.SubjectPrefix, logger)
		logger.Infof("Publishing events to %s under %s.*", cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	}

	// Metrics
	var provider metrics.Provider = metrics.Noop{}
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		prom := metrics.NewProm()
		provider = prom
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			logger.Infof("Metrics listening on %s", cfg.Metrics.ListenAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	opts := matcher.Options{
		Owner:   cfg.OwnerAddress(),
		Custody: ledger,
		Venue:   amm,
		Emitter: emitter,
		Metrics: provider,
		Logger:  logging.WithFields(logger, logging.Fields{"component": "engine"}),
	}

	var (
		svc    matcher.Service
		wallet api.Wallet
		ready  func() bool
		node   *replication.Node
		store  storage.Store
	)

	if cfg.Raft.Enable {
		// The Raft log is the source of truth; the engine keeps no store of
		// its own and replays committed commands on restart.
		clock := replication.NewClock()
		amm.SetNowFunc(clock.Now)
		opts.Now = clock.Now
		opts.Height = clock.Height
		if seed != nil {
			if err := seedLedger(ctx, seed, ledger, amm, logger); err != nil {
				log.Fatalf("Failed to seed ledger: %v", err)
			}
		}
		engine, err := matcher.NewEngine(matcher.NewConfig(&cfg.Engine), opts)
		if err != nil {
			log.Fatalf("Failed to create engine: %v", err)
		}

		peers := make([]replication.Peer, 0, len(cfg.Raft.Peers))
		for _, p := range cfg.Raft.Peers {
			peers = append(peers, replication.Peer{ID: p.ID, Address: p.Address})
		}
		fsm := replication.NewFSM(engine, ledger, amm, clock, logging.WithFields(logger, logging.Fields{"component": "raft"}))
		node, err = replication.NewNode(replication.NodeConfig{
			NodeID:       cfg.Raft.NodeID,
			DataDir:      cfg.Raft.DataDir,
			BindAddress:  cfg.Raft.Bind,
			Advertise:    cfg.Raft.Advertise,
			Bootstrap:    cfg.Raft.Bootstrap,
			Peers:        peers,
			ApplyTimeout: cfg.Timeouts.RaftApplyTimeout,
		}, fsm, logger)
		if err != nil {
			log.Fatalf("Failed to start raft node: %v", err)
		}
		defer func() {
			if err := node.Shutdown(); err != nil {
				logger.Errorf("Raft shutdown: %v", err)
			}
		}()

		client := replication.NewClient(node, engine, ledger)
		svc, wallet = client, client
		ready = func() bool { return node.LeaderAddress() != "" }

		waitCtx, waitCancel := context.WithTimeout(ctx, cfg.Timeouts.RaftLeaderWait)
		if err := node.WaitForLeader(waitCtx); err != nil {
			logger.Warnf("Continuing without a leader: %v", err)
		}
		waitCancel()
		if seed != nil && node.IsLeader() {
			if err := seedAccess(ctx, seed, svc, wallet, logger); err != nil {
				logger.Warnf("Seeding access through raft failed: %v", err)
			}
		}
	} else {
		db, err := storage.NewLevelDB(cfg.Storage.LevelDBPath, storage.LevelDBOptions{
			CacheSize:  cfg.Storage.CacheSize,
			SyncWrites: cfg.Storage.SyncWrites,
			Logger:     logger,
		})
		if err != nil {
			log.Fatalf("Failed to open store: %v", err)
		}
		store = db
		defer db.Close()

		engine, err := openLocal(ctx, matcher.NewConfig(&cfg.Engine), opts, db, ledger, amm, seed, logger)
		if err != nil {
			log.Fatalf("Failed to start engine: %v", err)
		}
		serial := matcher.NewSerial(engine)
		svc = serial
		wallet = durableWallet{LedgerWallet: api.LedgerWallet{Ledger: ledger}, queue: serial, engine: engine}
		ready = func() bool { return true }

		if seed != nil {
			if err := seedAccess(ctx, seed, svc, wallet, logger); err != nil {
				log.Fatalf("Failed to seed access: %v", err)
			}
		}
	}

	var wg sync.WaitGroup

	// Keeper
	if cfg.Engine.KeeperInterval > 0 {
		keeper := matcher.NewKeeper(svc, config.ParseAddress(cfg.Engine.KeeperAccount), cfg.Engine.KeeperInterval,
			logging.WithFields(logger, logging.Fields{"component": "keeper"}))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = keeper.Run(ctx)
		}()
	}

	// gRPC health
	grpcServer, healthServer := api.NewHealthServer(cfg.GRPC.Reflection)
	listener, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.GRPC.ListenAddr, err)
	}
	go func() {
		logger.Infof("Starting gRPC health server on %s", cfg.GRPC.ListenAddr)
		if err := grpcServer.Serve(listener); err != nil {
			logger.Errorf("gRPC server error: %v", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		api.WatchHealth(ctx, healthServer, ready, cfg.Timeouts.HealthCheckInterval, logger)
	}()

	// HTTP API
	httpServer := &http.Server{
		Addr: cfg.HTTP.ListenAddr,
		Handler: api.NewServer(api.Options{
			Service: svc,
			Wallet:  wallet,
			Auth:    cfg.HTTP.Auth,
			Logger:  logging.WithFields(logger, logging.Fields{"component": "api"}),
		}).Handler(),
		ReadTimeout:  cfg.Timeouts.HTTPReadTimeout,
		WriteTimeout: cfg.Timeouts.HTTPWriteTimeout,
	}
	go func() {
		logger.Infof("Starting HTTP API on %s", cfg.HTTP.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("swapd is running. Press Ctrl+C to stop.")
	logger.Infof("Engine owner: %s", svc.Owner().Hex())
	logger.Infof("Holding account: %s", ledger.HoldingAccount().Hex())
	if node != nil {
		logger.Infof("Raft node %s, leader %q", cfg.Raft.NodeID, node.LeaderAddress())
	}

	<-sigCh

	logger.Info("Shutting down swapd...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error stopping HTTP server: %v", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	cancel()
	grpcServer.GracefulStop()
	wg.Wait()

	if store != nil {
		if err := saveCustody(store, ledger, amm); err != nil {
			logger.Errorf("Failed to save custody state: %v", err)
		}
	}

	logger.Info("swapd stopped")
}
