package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"p2pswap/internal/api"
	"p2pswap/internal/config"
	"p2pswap/internal/custody"
	"p2pswap/internal/logging"
	"p2pswap/internal/matcher"
	"p2pswap/internal/storage"
	"p2pswap/internal/types"
	"p2pswap/internal/venue"
)

// custodyKey holds the ledger and pool list of a single-node deployment. The
// engine rewrites it in the batch of every committed operation, so it never
// drifts from the intent records. Replicated deployments carry the same data
// in Raft snapshots instead.
var custodyKey = []byte("custody")

type custodySnapshot struct {
	Balances   []custody.Balance `json:"balances"`
	Allowances []custody.Balance `json:"allowances"`
	Pools      []venue.Pool      `json:"pools"`
}

func encodeCustody(ledger *custody.Ledger, amm *venue.AMM) ([]byte, error) {
	return json.Marshal(custodySnapshot{
		Balances:   ledger.Export(),
		Allowances: ledger.Allowances(),
		Pools:      amm.Pools(),
	})
}

// custodyCheckpoint feeds the custody snapshot into engine commits.
func custodyCheckpoint(ledger *custody.Ledger, amm *venue.AMM) func() (map[string][]byte, error) {
	return func() (map[string][]byte, error) {
		data, err := encodeCustody(ledger, amm)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{string(custodyKey): data}, nil
	}
}

func saveCustody(store storage.Store, ledger *custody.Ledger, amm *venue.AMM) error {
	data, err := encodeCustody(ledger, amm)
	if err != nil {
		return err
	}
	return store.Put(custodyKey, data)
}

// loadCustody restores a saved ledger. It reports false when nothing was
// saved yet.
func loadCustody(store storage.Store, ledger *custody.Ledger, amm *venue.AMM) (bool, error) {
	data, err := store.Get(custodyKey)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var snap custodySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("decode custody snapshot: %w", err)
	}
	for _, p := range snap.Pools {
		if _, err := amm.CreatePool(p.Token0, p.Token1, p.Fee); err != nil && !errors.Is(err, venue.ErrPoolExists) {
			return false, fmt.Errorf("restore pool %s: %w", p.Account.Hex(), err)
		}
	}
	ledger.Restore(snap.Balances)
	ledger.RestoreAllowances(snap.Allowances)
	return true, nil
}

// openLocal restores or seeds the custody ledger from store and starts an
// engine that persists to it. A seed is only applied to an empty store.
func openLocal(ctx context.Context, cfg *matcher.Config, opts matcher.Options, store storage.Store,
	ledger *custody.Ledger, amm *venue.AMM, seed *config.Seed, logger logging.Logger) (*matcher.Engine, error) {
	restored, err := loadCustody(store, ledger, amm)
	if err != nil {
		return nil, fmt.Errorf("load custody state: %w", err)
	}
	if !restored && seed != nil {
		if err := seedLedger(ctx, seed, ledger, amm, logger); err != nil {
			return nil, fmt.Errorf("seed ledger: %w", err)
		}
		if err := saveCustody(store, ledger, amm); err != nil {
			return nil, fmt.Errorf("save seeded custody state: %w", err)
		}
	}

	opts.Store = store
	opts.Checkpoint = custodyCheckpoint(ledger, amm)
	engine, err := matcher.NewEngine(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	recovered, err := engine.Recover()
	if err != nil {
		return nil, fmt.Errorf("recover engine state: %w", err)
	}
	if recovered {
		logger.Infof("Recovered engine state: %d active intents, %d matches",
			engine.ActiveIntentCount(), engine.MatchCount())
	}
	return engine, nil
}

// durableWallet records approvals in the store before reporting success.
// Approvals queue behind engine commands so the checkpoint they write is
// never older than one already committed.
type durableWallet struct {
	api.LedgerWallet
	queue  *matcher.Serial
	engine *matcher.Engine
}

func (w durableWallet) Approve(ctx context.Context, owner, token types.Address, amount *uint256.Int) error {
	return w.queue.Do(ctx, func() error {
		w.Ledger.Approve(owner, token, amount)
		return w.engine.Checkpoint(ctx)
	})
}

// seedLedger mints balances and funds pools. It runs identically on every
// replica, before any log entry is applied.
func seedLedger(ctx context.Context, seed *config.Seed, ledger *custody.Ledger, amm *venue.AMM, logger logging.Logger) error {
	for _, b := range seed.Balances {
		account, token, amount := b.Amounts()
		if err := ledger.Mint(account, token, amount); err != nil {
			return fmt.Errorf("seed balance %s/%s: %w", account.Hex(), token.Hex(), err)
		}
	}
	for _, p := range seed.Pools {
		tokenA, tokenB, provider, amountA, amountB := p.Amounts()
		if _, err := amm.CreatePool(tokenA, tokenB, p.Fee); err != nil && !errors.Is(err, venue.ErrPoolExists) {
			return fmt.Errorf("seed pool %s/%s: %w", tokenA.Hex(), tokenB.Hex(), err)
		}
		if err := amm.AddLiquidity(ctx, provider, tokenA, tokenB, p.Fee, amountA, amountB); err != nil {
			return fmt.Errorf("seed pool liquidity %s/%s: %w", tokenA.Hex(), tokenB.Hex(), err)
		}
	}
	logger.Infof("Seeded %d balances and %d pools", len(seed.Balances), len(seed.Pools))
	return nil
}

// seedAccess grants seed approvals and relayers through the service so a
// replicated deployment logs them. Entries already in place are skipped.
func seedAccess(ctx context.Context, seed *config.Seed, svc matcher.Service, wallet api.Wallet, logger logging.Logger) error {
	for _, b := range seed.Balances {
		if !b.Approve {
			continue
		}
		account, token, amount := b.Amounts()
		if !wallet.Allowance(account, token).IsZero() {
			continue
		}
		if err := wallet.Approve(ctx, account, token, amount); err != nil {
			return fmt.Errorf("seed approval %s/%s: %w", account.Hex(), token.Hex(), err)
		}
	}
	owner := svc.Owner()
	for _, raw := range seed.Relayers {
		relayer := config.ParseAddress(raw)
		if svc.IsRelayer(relayer) {
			continue
		}
		if err := svc.AuthorizeRelayer(ctx, owner, relayer, true); err != nil {
			return fmt.Errorf("seed relayer %s: %w", relayer.Hex(), err)
		}
	}
	logger.Infof("Seeded relayers: %d", len(seed.Relayers))
	return nil
}
