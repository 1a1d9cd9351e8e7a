package registry

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"p2pswap/internal/types"
)

var intentDomain = []byte("p2pswap/intent/v1")

// IdentifierInput is everything an intent id commits to.
type IdentifierInput struct {
	Owner        types.Address
	TokenIn      types.Address
	TokenOut     types.Address
	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
	SourceChain  types.ChainID
	DestChain    types.ChainID
	Sequence     uint64
	Timestamp    uint64
	BlockHeight  uint64
}

// Identifiers derives intent ids and tracks per-owner sequence numbers.
type Identifiers struct {
	seqs map[types.Address]uint64
}

func NewIdentifiers() *Identifiers {
	return &Identifiers{seqs: make(map[types.Address]uint64)}
}

// Peek returns the sequence number the owner's next intent will use.
func (g *Identifiers) Peek(owner types.Address) uint64 { return g.seqs[owner] }

// Advance consumes seq for owner. It is called only once the submission has
// committed so a failed submission does not burn a number.
func (g *Identifiers) Advance(owner types.Address, seq uint64) uint64 {
	if seq+1 > g.seqs[owner] {
		g.seqs[owner] = seq + 1
	}
	return g.seqs[owner]
}

// Export copies the counter table.
func (g *Identifiers) Export() map[types.Address]uint64 {
	out := make(map[types.Address]uint64, len(g.seqs))
	for a, n := range g.seqs {
		out[a] = n
	}
	return out
}

func (g *Identifiers) Load(seqs map[types.Address]uint64) {
	g.seqs = make(map[types.Address]uint64, len(seqs))
	for a, n := range seqs {
		g.seqs[a] = n
	}
}

// DeriveID hashes a fixed-width encoding of in with Keccak-256.
func DeriveID(in IdentifierInput) types.Hash {
	buf := make([]byte, 0, 3*20+2*32+5*8)
	buf = append(buf, in.Owner.Bytes()...)
	buf = append(buf, in.TokenIn.Bytes()...)
	buf = append(buf, in.TokenOut.Bytes()...)
	buf = append(buf, amountBytes(in.AmountIn)...)
	buf = append(buf, amountBytes(in.MinAmountOut)...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(in.SourceChain))
	buf = binary.BigEndian.AppendUint64(buf, uint64(in.DestChain))
	buf = binary.BigEndian.AppendUint64(buf, in.Sequence)
	buf = binary.BigEndian.AppendUint64(buf, in.Timestamp)
	buf = binary.BigEndian.AppendUint64(buf, in.BlockHeight)
	return crypto.Keccak256Hash(intentDomain, buf)
}

func amountBytes(v *uint256.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	b := v.Bytes32()
	return b[:]
}
