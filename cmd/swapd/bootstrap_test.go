package main

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pswap/internal/api"
	"p2pswap/internal/config"
	"p2pswap/internal/custody"
	"p2pswap/internal/logging"
	"p2pswap/internal/matcher"
	"p2pswap/internal/matcher/matchertest"
	"p2pswap/internal/storage"
	"p2pswap/internal/venue"
)

func testSeed() *config.Seed {
	return &config.Seed{
		Balances: []config.SeedBalance{
			{Account: matchertest.LP.Hex(), Token: matchertest.TokenA.Hex(), Amount: "5000"},
			{Account: matchertest.LP.Hex(), Token: matchertest.TokenB.Hex(), Amount: "5000"},
			{Account: "0x00000000000000000000000000000000000000a1", Token: matchertest.TokenA.Hex(), Amount: "300", Approve: true},
		},
		Pools: []config.SeedPool{{
			TokenA: matchertest.TokenA.Hex(), TokenB: matchertest.TokenB.Hex(), Fee: venue.FeeTierMedium,
			AmountA: "5000", AmountB: "5000", Provider: matchertest.LP.Hex(),
		}},
		Relayers: []string{"0x00000000000000000000000000000000000000b0"},
	}
}

func TestSeedLocalDeployment(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewNopLogger()
	ledger := custody.NewLedger(matchertest.Holding, logger)
	amm := venue.NewAMM(ledger, logger)
	seed := testSeed()
	require.NoError(t, seedLedger(ctx, seed, ledger, amm, logger))

	in, out, err := amm.Reserves(matchertest.TokenA, matchertest.TokenB, venue.FeeTierMedium)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), in.Uint64())
	assert.Equal(t, uint64(5000), out.Uint64())
	assert.True(t, ledger.BalanceOf(matchertest.LP, matchertest.TokenA).IsZero())

	engine, err := matcher.NewEngine(matcher.DefaultConfig(), matcher.Options{
		Owner: matchertest.Owner, Custody: ledger, Venue: amm, Logger: logger,
	})
	require.NoError(t, err)
	wallet := api.LedgerWallet{Ledger: ledger}
	require.NoError(t, seedAccess(ctx, seed, engine, wallet, logger))

	alice := config.ParseAddress(seed.Balances[2].Account)
	assert.Equal(t, uint64(300), ledger.Allowance(alice, matchertest.TokenA).Uint64())
	assert.True(t, engine.IsRelayer(config.ParseAddress(seed.Relayers[0])))

	// A second pass leaves a spent allowance alone.
	ledger.Approve(alice, matchertest.TokenA, uint256.NewInt(7))
	require.NoError(t, seedAccess(ctx, seed, engine, wallet, logger))
	assert.Equal(t, uint64(7), ledger.Allowance(alice, matchertest.TokenA).Uint64())
}

func TestCustodySnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewNopLogger()
	store := storage.NewInMemory()

	ledger := custody.NewLedger(matchertest.Holding, logger)
	amm := venue.NewAMM(ledger, logger)
	restored, err := loadCustody(store, ledger, amm)
	require.NoError(t, err)
	assert.False(t, restored)

	require.NoError(t, seedLedger(ctx, testSeed(), ledger, amm, logger))
	ledger.Approve(matchertest.LP, matchertest.TokenB, uint256.NewInt(11))
	require.NoError(t, saveCustody(store, ledger, amm))

	ledger2 := custody.NewLedger(matchertest.Holding, logger)
	amm2 := venue.NewAMM(ledger2, logger)
	restored, err = loadCustody(store, ledger2, amm2)
	require.NoError(t, err)
	assert.True(t, restored)
	assert.Equal(t, ledger.Export(), ledger2.Export())
	assert.Equal(t, ledger.Allowances(), ledger2.Allowances())
	assert.Equal(t, amm.Pools(), amm2.Pools())

	quote, err := amm2.Quote(matchertest.TokenA, matchertest.TokenB, venue.FeeTierMedium, uint256.NewInt(100))
	require.NoError(t, err)
	assert.NotZero(t, quote.Uint64())
}

type localNode struct {
	db     *storage.LevelDBStore
	ledger *custody.Ledger
	amm    *venue.AMM
	engine *matcher.Engine
	svc    *matcher.Serial
	wallet durableWallet
}

func startLocal(t *testing.T, dir string, seed *config.Seed) *localNode {
	t.Helper()
	logger := logging.NewNopLogger()
	db, err := storage.NewLevelDB(dir, storage.LevelDBOptions{Logger: logger})
	require.NoError(t, err)
	ledger := custody.NewLedger(matchertest.Holding, logger)
	amm := venue.NewAMM(ledger, logger)
	engine, err := openLocal(context.Background(), matcher.DefaultConfig(), matcher.Options{
		Owner: matchertest.Owner, Custody: ledger, Venue: amm, Logger: logger,
	}, db, ledger, amm, seed, logger)
	require.NoError(t, err)
	svc := matcher.NewSerial(engine)
	return &localNode{
		db: db, ledger: ledger, amm: amm, engine: engine, svc: svc,
		wallet: durableWallet{LedgerWallet: api.LedgerWallet{Ledger: ledger}, queue: svc, engine: engine},
	}
}

func TestLocalRestartAfterCrashKeepsCustodyInStep(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seed := testSeed()
	alice := config.ParseAddress(seed.Balances[2].Account)

	first := startLocal(t, dir, seed)
	require.NoError(t, seedAccess(ctx, seed, first.svc, first.wallet, logging.NewNopLogger()))
	require.NoError(t, first.wallet.Approve(ctx, matchertest.LP, matchertest.TokenB, uint256.NewInt(11)))
	id, err := first.svc.Submit(ctx, alice, matchertest.Request(matchertest.TokenA, matchertest.TokenB, 300, 1, 2))
	require.NoError(t, err)
	require.True(t, first.ledger.BalanceOf(alice, matchertest.TokenA).IsZero())
	// No graceful shutdown: the custody state is never saved explicitly.
	require.NoError(t, first.db.Close())

	second := startLocal(t, dir, seed)
	defer second.db.Close()
	in, err := second.engine.GetIntent(id)
	require.NoError(t, err)
	assert.True(t, in.Active)
	assert.True(t, second.ledger.BalanceOf(alice, matchertest.TokenA).IsZero())
	assert.Equal(t, uint64(300), second.ledger.BalanceOf(matchertest.Holding, matchertest.TokenA).Uint64())
	assert.Equal(t, uint64(11), second.ledger.Allowance(matchertest.LP, matchertest.TokenB).Uint64())
	assert.Equal(t, first.amm.Pools(), second.amm.Pools())

	// The seed was not applied a second time.
	in0, out0, err := second.amm.Reserves(matchertest.TokenA, matchertest.TokenB, venue.FeeTierMedium)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), in0.Uint64())
	assert.Equal(t, uint64(5000), out0.Uint64())

	require.NoError(t, second.svc.Cancel(ctx, alice, id))
	assert.Equal(t, uint64(300), second.ledger.BalanceOf(alice, matchertest.TokenA).Uint64())
	assert.True(t, second.ledger.BalanceOf(matchertest.Holding, matchertest.TokenA).IsZero())
}
