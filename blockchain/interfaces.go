package blockchain

import (
	"math/big"

	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/params"
)

// Repository is the world-state trie collaborator. The underlying
// key-value store and trie implementation are out of scope for this core
// (spec.md §1); this core only ever calls through the interface.
type Repository interface {
	GetRoot() common.Hash
	SnapshotTo(root common.Hash) Repository
	StartTracking() Repository
	Commit() error
	Rollback()
	GetNonce(addr common.Address) uint64
	AddBalance(addr common.Address, delta *big.Int)
}

// BlockStore is the persistent block/header collaborator, spec.md §6.
type BlockStore interface {
	IsBlockExist(hash common.Hash) bool
	GetBlockByHash(hash common.Hash) *types.Block
	GetChainBlockByNumber(number uint64) *types.Block
	GetBlocksByNumber(number uint64) []*types.Block
	GetBestBlock() *types.Block
	GetMaxNumber() uint64
	GetTotalDifficultyForHash(hash common.Hash) *big.Int
	SaveBlock(block *types.Block, td *big.Int, onMainChain bool)
	ReBranch(block *types.Block)
	GetListHashesEndWith(hash common.Hash, qty int) []common.Hash
}

// TxLocation pinpoints where a transaction was included, the value
// TransactionStore keys receipts by.
type TxLocation struct {
	BlockHash common.Hash
	Index     int
}

// TransactionStore is the persistent transaction-index collaborator,
// spec.md §6.
type TransactionStore interface {
	Put(txHash common.Hash, locations []TxLocation)
	Get(txHash common.Hash) []TxLocation
}

// TransactionExecutor is the staged lifecycle the EVM interpreter
// collaborator exposes per transaction, spec.md §4.3 and §6. The EVM
// itself is out of scope; only this contract is consumed.
type TransactionExecutor interface {
	Init() error
	Execute() error
	Go() error
	Finalization() error
	GasUsed() uint64
	GetReceipt() *types.Receipt
	// Fee returns the transaction fee credited to the coinbase during
	// Execute/Go, used only to reconcile BlockSummary.Rewards' on-paper
	// miner total (spec.md §4.4/§9) — the repository mutation itself was
	// already performed by the executor.
	Fee() *big.Int
}

// ExecutorFactory builds a TransactionExecutor for a single transaction
// from the transaction, coinbase, the per-tx tracked repository, the
// block store, the containing block, the listener and the running total
// gas used so far. No invoke-factory hook and no vm-hook are passed.
type ExecutorFactory interface {
	NewExecutor(tx *types.Transaction, coinbase common.Address, txTrack Repository, store BlockStore, block *types.Block, listener EthereumListener, totalGasUsedSoFar uint64) TransactionExecutor
}

// Signer recovers a transaction's sender, the cryptographic collaborator
// spec.md treats as available but external (see blockchain/types'
// Transaction doc comment).
type Signer interface {
	Sender(tx *types.Transaction) (common.Address, error)
}

// ParentBlockHeaderValidator is the external per-consensus-engine header
// rule (spec.md §4.2 step 2): difficulty, gas limit bounds, timestamp,
// PoW/PoA seal, depending on which consensus engine is wired in.
type ParentBlockHeaderValidator interface {
	ValidateHeader(header, parent *types.Header) bool
}

// EthereumListener is the event-delivery collaborator, spec.md §6/§5.
type EthereumListener interface {
	OnBlock(summary *types.BlockSummary, isBest bool)
	Trace(msg string)
}

// PendingPool is the mempool collaborator scheduled after a new best
// block, spec.md §4.5's "pending-pool's processBest".
type PendingPool interface {
	ProcessBest(block *types.Block)
}

// FlushTask is the unit of work DbFlushManager runs in the background.
// BlockChain.storeBlock submits one per imported block: it persists the
// block and its receipt locations and notifies the PruneManager. The
// Repository commit is not part of the task; addImpl commits the
// repository before the task is submitted.
type FlushTask func() error

// DbFlushManager defers a FlushTask to a background flusher and can force
// a synchronous drain, spec.md §6.
type DbFlushManager interface {
	Commit(task FlushTask)
	FlushSync() error
}

// PruneManager is notified after a block is stored so it can reclaim
// superseded trie nodes, spec.md §4.5's storeBlock step.
type PruneManager interface {
	Notify(block *types.Block)
}

// ConfigForBlockSource is satisfied by *params.ChainConfig; expressed as
// an interface so tests can substitute a single fixed BlockchainConfig
// without building a full fork schedule.
type ConfigForBlockSource interface {
	ConfigForBlock(number *big.Int) *params.BlockchainConfig
}
