package blockchain

import (
	"errors"

	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/common"
)

// ChainView is the small capability C6's iterators need: number/hash
// lookup against the persisted canonical chain, plus the current tip.
// *BlockChain satisfies it (GetChainBlockByNumber, GetBlockByHash,
// CurrentBest); it is expressed as its own interface so the iterators can
// be built and tested without a full BlockChain.
type ChainView interface {
	GetChainBlockByNumber(number uint64) *types.Block
	GetBlockByHash(hash common.Hash) *types.Block
	CurrentBest() *types.Block
}

// ErrConcurrentModification is returned by HeaderIterator.Next when the
// canonical chain changed underneath the iterator between a successful
// HasNext and the matching Next — e.g. a reorg replaced the block at the
// peeked position with a different one.
var ErrConcurrentModification = errors.New("blockchain: chain modified between hasNext and next")

// HeaderIdentifier names a HeaderIterator's starting block, by number or
// by hash. The zero value is HeaderAtNumber(0), the genesis block.
type HeaderIdentifier struct {
	number uint64
	hash   common.Hash
	byHash bool
}

// HeaderAtNumber identifies the start block by canonical chain number.
func HeaderAtNumber(number uint64) HeaderIdentifier {
	return HeaderIdentifier{number: number}
}

// HeaderAtHash identifies the start block by hash. If that hash is not on
// the canonical chain — the canonical block at its number differs, or the
// hash is unknown — the resulting iterator is empty.
func HeaderAtHash(hash common.Hash) HeaderIdentifier {
	return HeaderIdentifier{hash: hash, byHash: true}
}

func (id HeaderIdentifier) resolve(view ChainView) *types.Block {
	if !id.byHash {
		return view.GetChainBlockByNumber(id.number)
	}
	block := view.GetBlockByHash(id.hash)
	if block == nil {
		return nil
	}
	canon := view.GetChainBlockByNumber(block.NumberU64())
	if canon == nil || canon.Hash() != id.hash {
		return nil
	}
	return block
}

// HeaderIterator implements spec.md §4.6's
// getIteratorOfHeadersStartFrom(identifier, skip, limit, reverse): up to
// limit headers starting at identifier, stepping by skip+1 in the
// direction reverse selects, stopping at the first position outside
// [0, bestBlock.number] or the first gap in the stored chain.
//
// HasNext/Next are split deliberately: HasNext peeks the next header
// without moving the cursor, and Next re-checks that the peeked header is
// still canonical before handing it back, so a reorg landing between the
// two calls surfaces as ErrConcurrentModification instead of silently
// returning a stale or wrong header.
type HeaderIterator struct {
	view ChainView
	step int64

	exhausted    bool
	remaining    int
	cursorNumber uint64

	pending      *types.Block
	pendingValid bool
}

// NewHeaderIterator builds a HeaderIterator per spec.md §4.6. limit <= 0
// yields an iterator that is already exhausted.
func NewHeaderIterator(view ChainView, id HeaderIdentifier, skip uint64, limit int, reverse bool) *HeaderIterator {
	step := int64(skip) + 1
	if reverse {
		step = -step
	}
	it := &HeaderIterator{view: view, step: step, remaining: limit}
	if limit <= 0 {
		it.exhausted = true
		return it
	}

	start := id.resolve(view)
	if start == nil {
		it.exhausted = true
		return it
	}
	it.cursorNumber = start.NumberU64()
	it.pending = start
	it.pendingValid = true
	return it
}

// HasNext reports whether Next would return a header, without consuming
// it. Calling HasNext repeatedly without an intervening Next is a no-op.
func (it *HeaderIterator) HasNext() bool {
	if it.exhausted {
		return false
	}
	if it.pendingValid {
		return true
	}
	block := it.view.GetChainBlockByNumber(it.cursorNumber)
	if block == nil {
		it.exhausted = true
		return false
	}
	it.pending = block
	it.pendingValid = true
	return true
}

// Next consumes and returns the header HasNext peeked, advancing the
// cursor by skip+1 in the configured direction. Call only after a HasNext
// that returned true; it re-validates the peeked block is still canonical
// and returns ErrConcurrentModification if the chain moved underneath it.
func (it *HeaderIterator) Next() (*types.Header, error) {
	if !it.pendingValid && !it.HasNext() {
		return nil, nil
	}

	current := it.view.GetChainBlockByNumber(it.cursorNumber)
	if current == nil || current.Hash() != it.pending.Hash() {
		it.exhausted = true
		it.pendingValid = false
		return nil, ErrConcurrentModification
	}
	header := current.Header()

	it.pendingValid = false
	it.remaining--
	if it.remaining <= 0 {
		it.exhausted = true
		return header, nil
	}

	nextNumber := int64(it.cursorNumber) + it.step
	best := it.view.CurrentBest()
	if nextNumber < 0 || best == nil || nextNumber > int64(best.NumberU64()) {
		it.exhausted = true
		return header, nil
	}
	it.cursorNumber = uint64(nextNumber)
	return header, nil
}

// BodyIterator walks full block bodies (transactions + uncles), spec.md
// §4.6's getIteratorOfBodiesByHashes(hashes): yields bodies in the order
// given, stopping at the first hash the chain doesn't recognize.
type BodyIterator struct {
	blockForHash func(common.Hash) *types.Block
	hashes       []common.Hash
	idx          int
	current      *types.Block
}

// NewBodyIterator iterates over the blocks named by hashes, in order.
// blockForHash is typically BlockStore.GetBlockByHash.
func NewBodyIterator(blockForHash func(common.Hash) *types.Block, hashes []common.Hash) *BodyIterator {
	return &BodyIterator{blockForHash: blockForHash, hashes: hashes, idx: -1}
}

// Next advances to the next hash in the list and reports whether it
// resolved to a known block. It stops — for good — at the first
// unresolved hash, even if later hashes in the list would resolve.
func (it *BodyIterator) Next() bool {
	it.idx++
	if it.idx >= len(it.hashes) {
		it.current = nil
		return false
	}
	block := it.blockForHash(it.hashes[it.idx])
	if block == nil {
		it.current = nil
		return false
	}
	it.current = block
	return true
}

// Hash is the hash of the current entry. Call only after a Next that
// returned true.
func (it *BodyIterator) Hash() common.Hash {
	return it.hashes[it.idx]
}

// Body returns the current block's body. Call only after a Next that
// returned true.
func (it *BodyIterator) Body() *types.Body {
	if it.current == nil {
		return nil
	}
	return it.current.Body()
}
