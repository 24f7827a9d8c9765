package types

import (
	"math/big"

	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/ser/rlp"
	"github.com/relayix/chaincore/storage/statedb"
)

// EmptyUncleHash is keccak256(rlp([])), the uncles hash of a block with
// no uncles (spec.md §6, §8 boundary behaviour).
var EmptyUncleHash = common.Keccak256Hash(rlp.MustEncode([]interface{}{}))

// Header carries every field of spec.md §3's block header. StateRoot,
// ReceiptHash, Bloom, GasUsed and TxHash are populated only after
// execution, during block creation — callers must not read them as
// meaningful before StateProcessor.ApplyBlock has run (or before they've
// been decoded off an already-executed block).
type Header struct {
	ParentHash  common.Hash
	UncleHash   common.Hash
	Coinbase    common.Address
	StateRoot   common.Hash
	TxHash      common.Hash
	ReceiptHash common.Hash
	Bloom       common.Bloom
	Difficulty  *big.Int
	Number      *big.Int
	GasLimit    uint64
	GasUsed     uint64
	Time        uint64
	Extra       []byte
	MixDigest   common.Hash
	Nonce       uint64
}

func (h *Header) Hash() common.Hash {
	enc, err := rlp.EncodeToBytes(h)
	if err != nil {
		return common.Hash{}
	}
	return common.Keccak256Hash(enc)
}

func (h *Header) NumberU64() uint64 {
	if h.Number == nil {
		return 0
	}
	return h.Number.Uint64()
}

// Block is an immutable block once constructed: header, transaction list
// and uncle header list. Use NewBlock to build one; field mutation after
// construction is not supported, matching spec.md §3 "Immutable once
// hashed".
type Block struct {
	header       *Header
	transactions Transactions
	uncles       []*Header

	hash common.Hash
}

func NewBlock(header *Header, txs []*Transaction, uncles []*Header) *Block {
	b := &Block{
		header:       copyHeader(header),
		transactions: append(Transactions(nil), txs...),
		uncles:       append([]*Header(nil), uncles...),
	}
	if len(txs) == 0 {
		b.header.TxHash = statedb.EmptyRootHash
	}
	if len(uncles) == 0 {
		b.header.UncleHash = EmptyUncleHash
	} else {
		encUncles, _ := rlp.EncodeToBytes(uncles)
		b.header.UncleHash = common.Keccak256Hash(encUncles)
	}
	b.hash = b.header.Hash()
	return b
}

func copyHeader(h *Header) *Header {
	cp := *h
	if h.Difficulty != nil {
		cp.Difficulty = new(big.Int).Set(h.Difficulty)
	}
	if h.Number != nil {
		cp.Number = new(big.Int).Set(h.Number)
	}
	cp.Extra = append([]byte(nil), h.Extra...)
	return &cp
}

func (b *Block) Header() *Header             { return b.header }
func (b *Block) Transactions() Transactions  { return b.transactions }
func (b *Block) Uncles() []*Header           { return b.uncles }
func (b *Block) Hash() common.Hash           { return b.hash }
func (b *Block) ParentHash() common.Hash     { return b.header.ParentHash }
func (b *Block) Number() *big.Int            { return b.header.Number }
func (b *Block) NumberU64() uint64           { return b.header.NumberU64() }
func (b *Block) Difficulty() *big.Int        { return b.header.Difficulty }
func (b *Block) Coinbase() common.Address    { return b.header.Coinbase }
func (b *Block) StateRoot() common.Hash      { return b.header.StateRoot }
func (b *Block) TxTrieRoot() common.Hash     { return b.header.TxHash }
func (b *Block) ReceiptsRoot() common.Hash   { return b.header.ReceiptHash }
func (b *Block) LogsBloom() common.Bloom     { return b.header.Bloom }
func (b *Block) GasLimit() uint64            { return b.header.GasLimit }
func (b *Block) GasUsed() uint64             { return b.header.GasUsed }
func (b *Block) Time() uint64                { return b.header.Time }

// IsParentOf reports whether b is the direct parent of child, the check
// C5's "extends tip" path uses.
func (b *Block) IsParentOf(child *Block) bool {
	return b.hash == child.header.ParentHash
}

func (b *Block) IsGenesis() bool {
	return b.header.Number != nil && b.header.Number.Sign() == 0 && b.header.ParentHash.IsZero()
}

// Body is the part of a block peers exchange without re-sending the
// header: transactions and uncles, per spec.md §4.6's body iterator.
type Body struct {
	Transactions Transactions
	Uncles       []*Header
}

func (b *Block) Body() *Body {
	return &Body{Transactions: b.transactions, Uncles: b.uncles}
}
