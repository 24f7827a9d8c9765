// Package blockchain is the block-import and chain-management core: it
// validates a candidate block, executes its transactions, decides
// whether it extends, forks or is rejected from the canonical chain, and
// persists the resulting state transition atomically. See SPEC_FULL.md
// for the full component breakdown (C1-C6).
package blockchain

import (
	"math/big"
	"sync"
	"time"

	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/log"
	"github.com/relayix/chaincore/metrics"
	"github.com/relayix/chaincore/params"
	"github.com/relayix/chaincore/storage/statedb"
)

var logger = log.NewModuleLogger(log.Blockchain)

var (
	importCounter   = metrics.NewRegisteredCounter("blockchain/import", nil)
	rebranchCounter = metrics.NewRegisteredCounter("blockchain/rebranch", nil)
	invalidCounter  = metrics.NewRegisteredCounter("blockchain/invalid", nil)
)

// BlockRecorder is the optional recordBlocks collaborator (spec.md §6
// "Persisted artefacts outside the DB"): an append-only hex dump of
// imported block encodings, one per line.
type BlockRecorder interface {
	Record(block *types.Block)
}

// Diagnostics toggles the non-correctness diagnostic behaviors spec.md §9
// calls out as Open Questions this implementation resolves explicitly
// rather than silently.
type Diagnostics struct {
	// RetryOnInvalid enables the retry-and-diagnose heuristic of spec.md
	// §4.5. Default false: production wiring treats a null add() result
	// as final.
	RetryOnInvalid bool
	// LenientRetry, only consulted when RetryOnInvalid is set, allows a
	// retry that unexpectedly succeeds to be accepted as IMPORTED_BEST /
	// IMPORTED_NOT_BEST instead of treated as a hard error.
	LenientRetry bool
	// ExitFn is called when a diagnostic escalation fires (a retry
	// succeeds while LenientRetry is off). When it is nil, Config.ExitFn
	// is called instead; os.Exit is never called directly.
	ExitFn func(reason string)
}

// BlockChain is the top-level core (C5), wrapping C1-C4 and C6. All
// tip-mutating operations serialize on mu, per spec.md §5 "Single-writer
// on the canonical tip".
type BlockChain struct {
	mu sync.Mutex

	repo            Repository
	bestBlock       *types.Block
	totalDifficulty *big.Int

	blockStore  BlockStore
	txStore     TransactionStore
	validator   *BlockValidator
	processor   *StateProcessor
	listener    EthereumListener
	pendingPool PendingPool
	flush       DbFlushManager
	prune       PruneManager
	recorder    BlockRecorder

	dispatch *eventDispatcher

	diagnostics Diagnostics

	// testMode makes storeBlock's final flush synchronous, spec.md
	// §4.5 "synchronously in test mode".
	testMode bool

	// exitOnBlock, when non-nil, forces a synchronous flush and process
	// termination once bestBlock reaches this number (spec.md §5
	// "Cancellation ... a shutdown signal").
	exitOnBlock *uint64
	exitFn      func()

	closed bool
}

// Config bundles BlockChain's non-collaborator settings.
type Config struct {
	TestMode    bool
	Diagnostics Diagnostics
	ExitOnBlock *uint64
	ExitFn      func()
	Recorder    BlockRecorder
}

// NewBlockChain wires every external collaborator spec.md §6 names. repo
// must already be positioned at the state root of the block blockStore
// reports as GetBestBlock().
func NewBlockChain(
	cfg Config,
	repo Repository,
	blockStore BlockStore,
	txStore TransactionStore,
	executors ExecutorFactory,
	chainConfig *params.ChainConfig,
	parentValidator ParentBlockHeaderValidator,
	signer Signer,
	listener EthereumListener,
	pendingPool PendingPool,
	flush DbFlushManager,
	prune PruneManager,
) *BlockChain {
	best := blockStore.GetBestBlock()
	td := blockStore.GetTotalDifficultyForHash(best.Hash())
	if td == nil {
		td = new(big.Int)
	}

	bc := &BlockChain{
		repo:            repo,
		bestBlock:       best,
		totalDifficulty: td,
		blockStore:      blockStore,
		txStore:         txStore,
		listener:        listener,
		pendingPool:     pendingPool,
		flush:           flush,
		prune:           prune,
		recorder:        cfg.Recorder,
		diagnostics:     cfg.Diagnostics,
		testMode:        cfg.TestMode,
		exitOnBlock:     cfg.ExitOnBlock,
		exitFn:          cfg.ExitFn,
	}
	bc.validator = NewBlockValidator(parentValidator, signer, bc)
	bc.processor = NewStateProcessor(executors, chainConfig, blockStore, listener)
	bc.dispatch = newEventDispatcher(listener, pendingPool)
	return bc
}

// GetChainBlockByNumber satisfies the small interface BlockValidator's
// uncle-ancestor walk and the header iterator need, without either
// holding a pointer back into BlockChain's full surface.
func (bc *BlockChain) GetChainBlockByNumber(number uint64) *types.Block {
	return bc.blockStore.GetChainBlockByNumber(number)
}

// GetBlockByHash and CurrentBest round out ChainView, the capability
// HeaderIterator/BodyIterator (C6) are parameterized over.
func (bc *BlockChain) GetBlockByHash(hash common.Hash) *types.Block {
	return bc.blockStore.GetBlockByHash(hash)
}

func (bc *BlockChain) CurrentBest() *types.Block {
	return bc.GetBestBlock()
}

// GetBestBlock and GetTotalDifficulty/SetBestBlock/Close/UpdateTotalDifficulty
// all execute under bc.mu, spec.md §5.
func (bc *BlockChain) GetBestBlock() *types.Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.bestBlock
}

func (bc *BlockChain) GetTotalDifficulty() *big.Int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return new(big.Int).Set(bc.totalDifficulty)
}

func (bc *BlockChain) Close() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.closed {
		return
	}
	bc.closed = true
	bc.dispatch.stop()
	if err := bc.flush.FlushSync(); err != nil {
		logger.Error("flush on close failed", "err", err)
	}
}

// TryToConnect is the top-level entry point, spec.md §4.5.
func (bc *BlockChain) TryToConnect(block *types.Block) types.ImportResult {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.blockStore.GetMaxNumber() >= block.NumberU64() && bc.blockStore.IsBlockExist(block.Hash()) {
		return types.ImportResultExist
	}

	if bc.bestBlock.IsParentOf(block) {
		return bc.importExtendingTip(block)
	}

	parent := bc.blockStore.GetBlockByHash(block.ParentHash())
	if parent != nil {
		return bc.tryConnectAndFork(block, parent)
	}

	logger.Warn("no parent for block", "number", block.NumberU64(), "hash", block.Hash().String())
	return types.ImportResultNoParent
}

func (bc *BlockChain) importExtendingTip(block *types.Block) types.ImportResult {
	if bc.recorder != nil {
		bc.recorder.Record(block)
	}

	summary := bc.add(bc.repo, block, bc.bestBlock)
	if summary == nil {
		invalidCounter.Inc(1)
		return types.ImportResultInvalidBlock
	}

	importCounter.Inc(1)
	bc.bestBlock = block
	bc.totalDifficulty = summary.TotalDifficulty

	bc.notify(summary, true)
	bc.maybeExit()
	return types.ImportResultImportedBest
}

// tryConnectAndFork implements C1+C5's speculative fork path, spec.md
// §4.5 step 3. The saved-state stack of spec.md §4.1 is realized here as
// a local value (importSnapshot) rather than a field of BlockChain, per
// SPEC_FULL.md §8's resolution of the design note in spec.md §9: the
// stack's depth is zero outside this call by construction.
func (bc *BlockChain) tryConnectAndFork(block *types.Block, parent *types.Block) types.ImportResult {
	oldTotalDifficulty := new(big.Int).Set(bc.totalDifficulty)

	if bc.recorder != nil {
		bc.recorder.Record(block)
	}
	bc.blockStore.SaveBlock(block, nil, false)

	saved := importSnapshot{
		root:            bc.repo.GetRoot(),
		bestBlock:       bc.bestBlock,
		totalDifficulty: new(big.Int).Set(bc.totalDifficulty),
	}

	forkRepo := bc.repo.SnapshotTo(parent.StateRoot())
	summary := bc.add(forkRepo, block, parent)

	if summary == nil {
		invalidCounter.Inc(1)
		return types.ImportResultInvalidBlock
	}

	if summary.BetterThan(saved.totalDifficulty) {
		bc.blockStore.ReBranch(block)
		rebranchCounter.Inc(1)
		bc.repo = forkRepo
		bc.bestBlock = block
		bc.totalDifficulty = summary.TotalDifficulty

		bc.notify(summary, true)
		bc.maybeExit()
		if summary.TotalDifficulty.Cmp(oldTotalDifficulty) > 0 {
			return types.ImportResultImportedBest
		}
		return types.ImportResultImportedNotBest
	}

	// the fork lost: restore the canonical view (pop), repository stays
	// untouched since forkRepo was always a separate handle.
	bc.bestBlock = saved.bestBlock
	bc.totalDifficulty = saved.totalDifficulty

	bc.notify(summary, false)
	return types.ImportResultImportedNotBest
}

// importSnapshot is the saved state record of spec.md §3: (state root,
// best block, total difficulty).
type importSnapshot struct {
	root            common.Hash
	bestBlock       *types.Block
	totalDifficulty *big.Int
}

// add is the real state transition, spec.md §4.5 "Inner add". repo must
// already be positioned at parent's state root (either the canonical
// repository extending the tip, or a speculative snapshot).
func (bc *BlockChain) add(repo Repository, block *types.Block, parent *types.Block) *types.BlockSummary {
	summary := bc.addImpl(repo, block, parent)
	if summary == nil && bc.diagnostics.RetryOnInvalid {
		return bc.retryAdd(block)
	}
	return summary
}

// retryAdd implements spec.md §4.5's "Retry-on-null heuristic": a
// diagnostic device, not a correctness requirement (spec.md §9). It
// sleeps 50ms and retries once against a fresh snapshot rooted at the
// current best block's state root.
func (bc *BlockChain) retryAdd(block *types.Block) *types.BlockSummary {
	time.Sleep(50 * time.Millisecond)

	retryRepo := bc.repo.SnapshotTo(bc.bestBlock.StateRoot())
	retried := bc.addImpl(retryRepo, block, bc.bestBlock)
	if retried == nil {
		return nil
	}

	logger.Crit("retry after invalid block unexpectedly succeeded - possible nondeterminism",
		"number", block.NumberU64(), "hash", block.Hash().String())

	if !bc.diagnostics.LenientRetry {
		if bc.diagnostics.ExitFn != nil {
			bc.diagnostics.ExitFn("retry after invalid block unexpectedly succeeded")
		} else if bc.exitFn != nil {
			bc.exitFn()
		}
		return nil
	}
	retried.Diagnostic = true
	return retried
}

// addImpl executes the block and runs the three post-checks spec.md
// §4.5 names: receipts root, logs bloom, state root. On any mismatch it
// rolls back and returns nil; on success it commits, bumps total
// difficulty, and schedules the flush.
//
// repo is sometimes bc.repo itself (the tip-extension path in
// importExtendingTip) rather than an isolated snapshot, so the
// executor/reward mutations below land directly on bc.repo's account
// set. repo.Rollback() alone does not undo that for the in-memory
// reference Repository (its Rollback is a documented no-op once
// StartTracking wasn't used), so every failure path additionally resets
// bc.repo to a fresh snapshot at origRoot when repo is bc.repo, per
// spec.md §4.5/§7's "revert core repository to origRoot" step.
func (bc *BlockChain) addImpl(repo Repository, block *types.Block, parent *types.Block) *types.BlockSummary {
	origRoot := repo.GetRoot()
	rollback := func() {
		repo.Rollback()
		if repo == bc.repo {
			bc.repo = bc.repo.SnapshotTo(origRoot)
		}
	}

	if !bc.validator.IsValid(repo, block, parent) {
		rollback()
		return nil
	}

	if err := bc.validator.ValidateUncles(block, bc.GetBlockByHash); err != nil {
		logger.Warn("block rejected by uncle validation", "number", block.NumberU64(), "err", err)
		rollback()
		return nil
	}

	summary := bc.processor.ApplyBlock(repo, block)
	if summary == nil {
		rollback()
		return nil
	}

	wantReceiptsRoot := block.ReceiptsRoot()
	gotReceiptsRoot := deriveReceiptsRoot(summary.Receipts)
	if gotReceiptsRoot != wantReceiptsRoot {
		logger.Warn("receipts root mismatch", "number", block.NumberU64(), "have", gotReceiptsRoot.String(), "want", wantReceiptsRoot.String())
		rollback()
		return nil
	}

	gotBloom := types.CreateBloom(summary.Receipts)
	if gotBloom != block.LogsBloom() {
		logger.Warn("logs bloom mismatch", "number", block.NumberU64())
		rollback()
		return nil
	}

	if repo.GetRoot() != block.StateRoot() {
		logger.Warn("state root mismatch", "number", block.NumberU64(), "have", repo.GetRoot().String(), "want", block.StateRoot().String())
		rollback()
		return nil
	}

	if err := repo.Commit(); err != nil {
		logger.Error("repository commit failed", "number", block.NumberU64(), "err", err)
		rollback()
		return nil
	}

	newTD := new(big.Int).Add(bc.totalDifficultyFor(parent), block.Difficulty())
	summary.TotalDifficulty = newTD

	bc.storeBlock(block, summary.Receipts, newTD, repo == bc.repo)

	return summary
}

func (bc *BlockChain) totalDifficultyFor(parent *types.Block) *big.Int {
	if parent == nil {
		return new(big.Int)
	}
	td := bc.blockStore.GetTotalDifficultyForHash(parent.Hash())
	if td == nil {
		return new(big.Int)
	}
	return td
}

// deriveReceiptsRoot recomputes the receipts trie root the same way
// validator.go recomputes the transaction trie root: RLP-encode each
// entry and feed the ordered list through statedb.DeriveShaOrig.
func deriveReceiptsRoot(receipts types.Receipts) common.Hash {
	values := make([][]byte, len(receipts))
	for i, r := range receipts {
		enc, err := r.EncodeRLP()
		if err != nil {
			logger.Error("receipt encode failed while deriving root", "index", i, "err", err)
			return common.Hash{}
		}
		values[i] = enc
	}
	return statedb.DeriveShaOrig{}.Derive(values)
}

// storeBlock persists block and its receipts and notifies the prune
// manager, spec.md §4.5 "storeBlock", through the flush manager (or
// synchronously in test mode). It does not move the canonical tip: the
// callers of add set bestBlock and repo themselves.
func (bc *BlockChain) storeBlock(block *types.Block, receipts types.Receipts, td *big.Int, mainChain bool) {
	task := func() error {
		bc.blockStore.SaveBlock(block, td, mainChain)
		for i, r := range receipts {
			bc.txStore.Put(r.TxHash, []TxLocation{{BlockHash: block.Hash(), Index: i}})
		}
		if bc.prune != nil {
			bc.prune.Notify(block)
		}
		return nil
	}

	if bc.testMode {
		if err := task(); err != nil {
			logger.Error("synchronous flush failed", "err", err)
		}
	} else {
		bc.flush.Commit(task)
	}
}

func (bc *BlockChain) notify(summary *types.BlockSummary, isBest bool) {
	bc.dispatch.enqueue(summary, isBest)
}

func (bc *BlockChain) maybeExit() {
	if bc.exitOnBlock == nil {
		return
	}
	if bc.bestBlock.NumberU64() >= *bc.exitOnBlock {
		if err := bc.flush.FlushSync(); err != nil {
			logger.Error("shutdown flush failed", "err", err)
		}
		if bc.exitFn != nil {
			bc.exitFn()
		}
	}
}
