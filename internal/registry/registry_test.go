package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pswap/internal/types"
)

var (
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	tokenX = common.HexToAddress("0x0000000000000000000000000000000000001111")
	tokenY = common.HexToAddress("0x0000000000000000000000000000000000002222")
)

func newIntent(id byte, owner, in, out types.Address, amount uint64) *types.Intent {
	return &types.Intent{
		ID:                common.BytesToHash([]byte{id}),
		Owner:             owner,
		TokenIn:           in,
		TokenOut:          out,
		AmountIn:          uint256.NewInt(amount),
		SubmittedAmountIn: uint256.NewInt(amount),
		MinAmountOut:      uint256.NewInt(amount),
		Deadline:          1_300,
		Active:            true,
	}
}

func TestInsertIndexesInOrder(t *testing.T) {
	r := New()
	for i, owner := range []types.Address{alice, bob, alice} {
		require.NoError(t, r.Insert(newIntent(byte(i+1), owner, tokenX, tokenY, 100)))
	}
	require.ErrorIs(t, r.Insert(newIntent(1, alice, tokenX, tokenY, 1)), ErrDuplicateIntent)

	ids := r.Candidates(types.Pair{TokenIn: tokenX, TokenOut: tokenY})
	require.Len(t, ids, 3)
	for i, id := range ids {
		in, ok := r.Lookup(id)
		require.True(t, ok)
		assert.Equal(t, uint64(i), in.Ordinal)
	}
	assert.Empty(t, r.Candidates(types.Pair{TokenIn: tokenY, TokenOut: tokenX}))
	assert.Equal(t, 3, r.ActiveCount())
	assert.Len(t, r.ByOwner(alice), 2)
}

func TestCloseRemovesFromActiveSetOnly(t *testing.T) {
	r := New()
	for i := byte(1); i <= 4; i++ {
		require.NoError(t, r.Insert(newIntent(i, alice, tokenX, tokenY, 100)))
	}
	second := common.BytesToHash([]byte{2})
	require.NoError(t, r.Close(second))
	require.NoError(t, r.Close(second))

	assert.Equal(t, 3, r.ActiveCount())
	active := r.Active()
	require.Len(t, active, 3)
	assert.Equal(t, []uint64{0, 2, 3}, []uint64{active[0].Ordinal, active[1].Ordinal, active[2].Ordinal})

	// Retained for audit and still in the pair index.
	in, ok := r.Lookup(second)
	require.True(t, ok)
	assert.False(t, in.Active)
	assert.True(t, in.Processed)
	assert.Len(t, r.ByPair(types.Pair{TokenIn: tokenX, TokenOut: tokenY}), 4)

	require.ErrorIs(t, r.Close(common.BytesToHash([]byte{9})), ErrUnknownIntent)
}

func TestDiscardUndoesLatestInsert(t *testing.T) {
	r := New()
	first := newIntent(1, alice, tokenX, tokenY, 100)
	second := newIntent(2, alice, tokenX, tokenY, 50)
	require.NoError(t, r.Insert(first))
	require.NoError(t, r.Insert(second))

	require.Error(t, r.Discard(first.ID))
	require.NoError(t, r.Discard(second.ID))
	require.ErrorIs(t, r.Discard(second.ID), ErrUnknownIntent)

	_, ok := r.Get(second.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, r.ActiveCount())
	assert.Equal(t, []types.Hash{first.ID}, r.Candidates(types.Pair{TokenIn: tokenX, TokenOut: tokenY}))
	assert.Len(t, r.ByOwner(alice), 1)

	// The ordinal is handed out again.
	third := newIntent(3, bob, tokenX, tokenY, 10)
	require.NoError(t, r.Insert(third))
	assert.Equal(t, uint64(1), third.Ordinal)
}

func TestFillPartialAndFull(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(newIntent(1, alice, tokenX, tokenY, 150)))
	id := common.BytesToHash([]byte{1})

	closed, err := r.Fill(id, uint256.NewInt(100))
	require.NoError(t, err)
	assert.False(t, closed)
	in, _ := r.Lookup(id)
	assert.Equal(t, uint64(50), in.AmountIn.Uint64())
	assert.Equal(t, uint64(150), in.SubmittedAmountIn.Uint64())
	assert.True(t, in.Active)

	closed, err = r.Fill(id, uint256.NewInt(50))
	require.NoError(t, err)
	assert.True(t, closed)
	in, _ = r.Lookup(id)
	assert.True(t, in.AmountIn.IsZero())
	assert.False(t, in.Active)
	assert.True(t, in.Processed)
	assert.Zero(t, r.ActiveCount())
}

func TestLookupReturnsCopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Insert(newIntent(1, alice, tokenX, tokenY, 100)))
	in, _ := r.Lookup(common.BytesToHash([]byte{1}))
	in.AmountIn.SetUint64(1)
	in.Active = false

	again, _ := r.Lookup(common.BytesToHash([]byte{1}))
	assert.Equal(t, uint64(100), again.AmountIn.Uint64())
	assert.True(t, again.Active)
}

func TestRecordMatchAndStats(t *testing.T) {
	r := New()
	r.CountSubmission()
	r.CountSubmission()
	for i := 0; i < 3; i++ {
		mp := r.RecordMatch(&types.MatchedPair{MatchedAmount: uint256.NewInt(10)}, 50_000)
		assert.Equal(t, uint64(i), mp.Index)
	}
	st := r.Stats()
	assert.Equal(t, uint64(2), st.TotalIntents)
	assert.Equal(t, uint64(3), st.SuccessfulMatches)
	assert.Equal(t, uint64(30), st.TotalVolumeMatched.Uint64())
	assert.Equal(t, uint64(150_000), st.GasSaved)
	assert.Equal(t, 3, r.MatchCount())
	assert.Len(t, r.MatchedPairs(1, 0), 2)
	assert.Len(t, r.MatchedPairs(0, 1), 1)
	assert.Empty(t, r.MatchedPairs(5, 1))
}

func TestExpired(t *testing.T) {
	r := New()
	early := newIntent(1, alice, tokenX, tokenY, 1)
	early.Deadline = 100
	late := newIntent(2, alice, tokenX, tokenY, 1)
	late.Deadline = 200
	require.NoError(t, r.Insert(early))
	require.NoError(t, r.Insert(late))

	assert.Empty(t, r.Expired(100))
	exp := r.Expired(101)
	require.Len(t, exp, 1)
	assert.Equal(t, early.ID, exp[0].ID)
	assert.Len(t, r.Expired(201), 2)
}

func TestExportLoadPreservesScanOrder(t *testing.T) {
	r := New()
	for i := byte(1); i <= 5; i++ {
		require.NoError(t, r.Insert(newIntent(i, alice, tokenX, tokenY, 100)))
	}
	require.NoError(t, r.Close(common.BytesToHash([]byte{3})))
	r.RecordMatch(&types.MatchedPair{MatchedAmount: uint256.NewInt(7)}, 1)

	intents, pairs, stats := r.Export()
	// Shuffle to prove Load sorts by ordinal.
	intents[0], intents[4] = intents[4], intents[0]

	restored := New()
	require.NoError(t, restored.Load(intents, pairs, stats))
	assert.Equal(t, r.Candidates(types.Pair{TokenIn: tokenX, TokenOut: tokenY}),
		restored.Candidates(types.Pair{TokenIn: tokenX, TokenOut: tokenY}))
	assert.Equal(t, 4, restored.ActiveCount())
	assert.Equal(t, 1, restored.MatchCount())

	require.NoError(t, restored.Insert(newIntent(6, bob, tokenX, tokenY, 1)))
	in, _ := restored.Lookup(common.BytesToHash([]byte{6}))
	assert.Equal(t, uint64(5), in.Ordinal)
}

func TestIdentifiers(t *testing.T) {
	g := NewIdentifiers()
	assert.Equal(t, uint64(0), g.Peek(alice))
	assert.Equal(t, uint64(1), g.Advance(alice, 0))
	assert.Equal(t, uint64(1), g.Peek(alice))
	assert.Equal(t, uint64(0), g.Peek(bob))

	g2 := NewIdentifiers()
	g2.Load(g.Export())
	assert.Equal(t, uint64(1), g2.Peek(alice))

	base := IdentifierInput{
		Owner: alice, TokenIn: tokenX, TokenOut: tokenY,
		AmountIn: uint256.NewInt(100), MinAmountOut: uint256.NewInt(90),
		SourceChain: 1, DestChain: 2, Sequence: 0, Timestamp: 1_000, BlockHeight: 1,
	}
	id := DeriveID(base)
	assert.Equal(t, id, DeriveID(base))

	variants := []func(in *IdentifierInput){
		func(in *IdentifierInput) { in.Owner = bob },
		func(in *IdentifierInput) { in.TokenIn, in.TokenOut = in.TokenOut, in.TokenIn },
		func(in *IdentifierInput) { in.AmountIn = uint256.NewInt(101) },
		func(in *IdentifierInput) { in.MinAmountOut = uint256.NewInt(91) },
		func(in *IdentifierInput) { in.SourceChain, in.DestChain = in.DestChain, in.SourceChain },
		func(in *IdentifierInput) { in.Sequence = 1 },
		func(in *IdentifierInput) { in.Timestamp = 1_001 },
		func(in *IdentifierInput) { in.BlockHeight = 2 },
	}
	seen := map[types.Hash]bool{id: true}
	for i, mutate := range variants {
		in := base
		mutate(&in)
		got := DeriveID(in)
		assert.False(t, seen[got], "variant %d collided", i)
		seen[got] = true
	}
}
