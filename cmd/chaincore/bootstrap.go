package main

import (
	"math/big"

	"github.com/relayix/chaincore/blockchain"
	"github.com/relayix/chaincore/blockchain/state"
	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/common"
)

// genesisBlock builds the single-node dev-mode genesis: zero parent hash,
// zero number, an empty account-state root. Grounded on the teacher's
// cmd/istanbul/genesis idiom, trimmed to this core's scope (no extra
// accounts/alloc; a real deployment seeds the repository before calling
// this binary).
func genesisBlock() *types.Block {
	header := &types.Header{
		ParentHash: common.Hash{},
		Coinbase:   common.Address{},
		StateRoot:  state.NewGenesisRepository().GetRoot(),
		Difficulty: big.NewInt(1),
		Number:     big.NewInt(0),
		GasLimit:   8_000_000,
		Time:       0,
	}
	return types.NewBlock(header, nil, nil)
}

// noopExecutorFactory satisfies blockchain.ExecutorFactory for a chain
// that never applies a transaction-bearing block outside of tests; a real
// deployment wires in the EVM collaborator here instead.
type noopExecutorFactory struct{}

func (noopExecutorFactory) NewExecutor(
	tx *types.Transaction,
	coinbase common.Address,
	txTrack blockchain.Repository,
	store blockchain.BlockStore,
	block *types.Block,
	listener blockchain.EthereumListener,
	totalGasUsedSoFar uint64,
) blockchain.TransactionExecutor {
	return noopExecutor{}
}

type noopExecutor struct{}

func (noopExecutor) Init() error                 { return nil }
func (noopExecutor) Execute() error              { return nil }
func (noopExecutor) Go() error                   { return nil }
func (noopExecutor) Finalization() error         { return nil }
func (noopExecutor) GasUsed() uint64             { return 0 }
func (noopExecutor) GetReceipt() *types.Receipt  { return &types.Receipt{} }
func (noopExecutor) Fee() *big.Int               { return new(big.Int) }

// alwaysValidHeader satisfies blockchain.ParentBlockHeaderValidator for
// dev-mode running without a real consensus engine wired in.
type alwaysValidHeader struct{}

func (alwaysValidHeader) ValidateHeader(header, parent *types.Header) bool { return true }
