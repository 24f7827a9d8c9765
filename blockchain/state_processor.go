package blockchain

import (
	"math/big"

	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/params"
)

// StateProcessor is component C3: the executor driver. Ported in idiom
// from blockchain/state_transition.go's staged Message/execute contract
// and aboreum-go-ethereum's ApplyTransactions nested-tracking loop,
// generalized to spec.md §4.3's exact step order.
type StateProcessor struct {
	executors ExecutorFactory
	config    ConfigForBlockSource
	store     BlockStore
	listener  EthereumListener

	// ChainOnly skips transaction execution entirely and returns an
	// empty summary, spec.md §4.3 "For the genesis block or when
	// chain-only mode is configured".
	ChainOnly bool
}

func NewStateProcessor(executors ExecutorFactory, config ConfigForBlockSource, store BlockStore, listener EthereumListener) *StateProcessor {
	return &StateProcessor{executors: executors, config: config, store: store, listener: listener}
}

// ApplyBlock runs spec.md §4.3 against track, a Repository the caller has
// already positioned (startTracking'd or snapshotted) at the parent's
// state root.
func (p *StateProcessor) ApplyBlock(track Repository, block *types.Block) *types.BlockSummary {
	if block.IsGenesis() || p.ChainOnly {
		return &types.BlockSummary{
			Block:   block,
			Rewards: make(map[common.Address]*big.Int),
		}
	}

	cfg := p.config.ConfigForBlock(block.Number())
	p.applyHardForkTransfers(cfg, block, track)

	var (
		totalGasUsed uint64
		totalFees    = new(big.Int)
		receipts     types.Receipts
		summaries    []*types.TransactionExecutionSummary
	)

	for _, tx := range block.Transactions() {
		txTrack := track.StartTracking()

		executor := p.executors.NewExecutor(tx, block.Coinbase(), txTrack, p.store, block, p.listener, totalGasUsed)

		if err := executor.Init(); err != nil {
			return nil
		}
		if err := executor.Execute(); err != nil {
			return nil
		}
		if err := executor.Go(); err != nil {
			return nil
		}
		if err := executor.Finalization(); err != nil {
			return nil
		}

		totalGasUsed += executor.GasUsed()
		if err := txTrack.Commit(); err != nil {
			return nil
		}

		receipt := executor.GetReceipt()
		if receipt != nil {
			if cfg != nil && cfg.EIP658 {
				receipt.SetStatus(receipt.IsSuccessful())
			} else {
				receipt.SetPostState(track.GetRoot())
			}
			receipt.CumulativeGasUsed = totalGasUsed
			receipt.TxHash = tx.Hash()
			receipts = append(receipts, receipt)
		}

		fee := executor.Fee()
		if fee != nil {
			totalFees.Add(totalFees, fee)
		}
		summaries = append(summaries, &types.TransactionExecutionSummary{
			TxHash:  tx.Hash(),
			GasUsed: executor.GasUsed(),
			Fee:     fee,
		})
	}

	rewards := DistributeRewards(track, block, cfg, totalFees)

	return &types.BlockSummary{
		Block:     block,
		Rewards:   rewards,
		Receipts:  receipts,
		Summaries: summaries,
	}
}

// applyHardForkTransfers applies cfg.HardForkTransfers scheduled exactly
// at block.Number(), spec.md §4.3 step 1.
func (p *StateProcessor) applyHardForkTransfers(cfg *params.BlockchainConfig, block *types.Block, track Repository) {
	if cfg == nil {
		return
	}
	for _, hf := range cfg.HardForkTransfers {
		if hf.BlockNumber.Cmp(block.Number()) != 0 {
			continue
		}
		from := common.BytesToAddress(hf.From)
		to := common.BytesToAddress(hf.To)
		track.AddBalance(from, new(big.Int).Neg(hf.Amount))
		track.AddBalance(to, hf.Amount)
	}
}
