package blockchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayix/chaincore/blockchain/state"
	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/params"
)

// fakeExecutor credits a fixed fee to the coinbase via the per-tx tracked
// repository, reports a fixed gas usage and returns a receipt marked
// successful, standing in for the EVM collaborator spec.md treats as out
// of scope.
type fakeExecutor struct {
	coinbase common.Address
	track    Repository
	gasUsed  uint64
	fee      *big.Int
	fail     bool
}

func (e *fakeExecutor) Init() error { return nil }

func (e *fakeExecutor) Execute() error {
	if e.fail {
		return assert.AnError
	}
	e.track.AddBalance(e.coinbase, e.fee)
	return nil
}

func (e *fakeExecutor) Go() error           { return nil }
func (e *fakeExecutor) Finalization() error { return nil }
func (e *fakeExecutor) GasUsed() uint64     { return e.gasUsed }
func (e *fakeExecutor) GetReceipt() *types.Receipt {
	r := types.NewReceipt(nil, e.gasUsed)
	r.SetStatus(true)
	return r
}
func (e *fakeExecutor) Fee() *big.Int { return e.fee }

type fakeExecutorFactory struct {
	gasUsed uint64
	fee     *big.Int
	fail    bool
}

func (f fakeExecutorFactory) NewExecutor(tx *types.Transaction, coinbase common.Address, txTrack Repository, store BlockStore, block *types.Block, listener EthereumListener, totalGasUsedSoFar uint64) TransactionExecutor {
	return &fakeExecutor{coinbase: coinbase, track: txTrack, gasUsed: f.gasUsed, fee: f.fee, fail: f.fail}
}

func TestStateProcessor_ApplyBlock_GenesisShortCircuits(t *testing.T) {
	p := NewStateProcessor(noTxExecutorFactory{}, zeroRewardConfig(), newFakeBlockStore(), nil)
	repo := state.NewGenesisRepository()
	genesis := testGenesis(repo)

	summary := p.ApplyBlock(repo, genesis)

	require.NotNil(t, summary)
	assert.Empty(t, summary.Rewards)
	assert.Empty(t, summary.Receipts)
}

func TestStateProcessor_ApplyBlock_ChainOnlySkipsExecution(t *testing.T) {
	p := NewStateProcessor(noTxExecutorFactory{}, zeroRewardConfig(), newFakeBlockStore(), nil)
	p.ChainOnly = true
	repo := state.NewGenesisRepository()
	genesis := testGenesis(repo)
	block1 := buildEmptyBlock(repo, genesis, addrN(1), 10)

	summary := p.ApplyBlock(repo, block1)

	require.NotNil(t, summary)
	assert.Empty(t, summary.Rewards)
	assert.Empty(t, summary.Receipts)
}

func TestStateProcessor_ApplyBlock_ExecutesTransactionsAndDistributesRewards(t *testing.T) {
	cfg := &params.ChainConfig{Forks: []*params.BlockchainConfig{
		{StartBlock: big.NewInt(0), BlockReward: big.NewInt(1000), EIP658: true},
	}}
	factory := fakeExecutorFactory{gasUsed: 21000, fee: big.NewInt(5)}
	p := NewStateProcessor(factory, cfg, newFakeBlockStore(), nil)

	repo := state.NewGenesisRepository()
	genesis := testGenesis(repo)
	coinbase := addrN(1)
	tx := types.NewTransaction(0, nil, big.NewInt(0), 21000, big.NewInt(1), nil)

	header := &types.Header{
		ParentHash: genesis.Hash(),
		Coinbase:   coinbase,
		Number:     big.NewInt(1),
		Difficulty: big.NewInt(1),
	}
	block1 := types.NewBlock(header, []*types.Transaction{tx}, nil)

	track := repo.StartTracking()
	summary := p.ApplyBlock(track, block1)

	require.NotNil(t, summary)
	require.Len(t, summary.Receipts, 1)
	assert.Equal(t, uint64(21000), summary.Receipts[0].CumulativeGasUsed)
	assert.True(t, summary.Receipts[0].IsSuccessful())

	require.Len(t, summary.Summaries, 1)
	assert.Equal(t, big.NewInt(5), summary.Summaries[0].Fee)

	// minerReward (1000, no uncles) was credited by DistributeRewards
	// directly; the tx fee (5) was credited separately by the fake
	// executor against the per-tx tracked repository, which DistributeRewards
	// does not see — so track's final balance is minerReward+fee even
	// though the rewards report's on-paper total is also minerReward+fee
	// via totalFees folding, per rewards.go's documented split.
	concreteTrack := track.(*state.Repository)
	assert.Equal(t, big.NewInt(1005), concreteTrack.GetBalance(coinbase))
	assert.Equal(t, big.NewInt(1005), summary.Rewards[coinbase])
}

func TestStateProcessor_ApplyBlock_ExecutorFailureReturnsNil(t *testing.T) {
	cfg := zeroRewardConfig()
	factory := fakeExecutorFactory{gasUsed: 21000, fee: big.NewInt(0), fail: true}
	p := NewStateProcessor(factory, cfg, newFakeBlockStore(), nil)

	repo := state.NewGenesisRepository()
	genesis := testGenesis(repo)
	coinbase := addrN(1)
	tx := types.NewTransaction(0, nil, big.NewInt(0), 21000, big.NewInt(1), nil)
	header := &types.Header{
		ParentHash: genesis.Hash(),
		Coinbase:   coinbase,
		Number:     big.NewInt(1),
		Difficulty: big.NewInt(1),
	}
	block1 := types.NewBlock(header, []*types.Transaction{tx}, nil)

	summary := p.ApplyBlock(repo.StartTracking(), block1)

	assert.Nil(t, summary)
}

func TestStateProcessor_ApplyBlock_AppliesHardForkTransferAtExactBlock(t *testing.T) {
	from := addrN(5)
	to := addrN(6)
	cfg := &params.ChainConfig{Forks: []*params.BlockchainConfig{
		{StartBlock: big.NewInt(0), BlockReward: big.NewInt(0), EIP658: true},
		{
			StartBlock:  big.NewInt(2),
			BlockReward: big.NewInt(0),
			EIP658:      true,
			HardForkTransfers: []params.HardForkTransfer{
				{BlockNumber: big.NewInt(2), From: from.Bytes(), To: to.Bytes(), Amount: big.NewInt(50)},
			},
		},
	}}
	p := NewStateProcessor(noTxExecutorFactory{}, cfg, newFakeBlockStore(), nil)

	repo := state.NewGenesisRepository()
	repo.AddBalance(from, big.NewInt(50))
	genesis := testGenesis(repo)

	header := &types.Header{
		ParentHash: genesis.Hash(),
		Number:     big.NewInt(2),
		Difficulty: big.NewInt(1),
	}
	block2 := types.NewBlock(header, nil, nil)

	track := repo.StartTracking()
	summary := p.ApplyBlock(track, block2)

	require.NotNil(t, summary)
	concreteTrack := track.(*state.Repository)
	assert.Equal(t, big.NewInt(0), concreteTrack.GetBalance(from))
	assert.Equal(t, big.NewInt(50), concreteTrack.GetBalance(to))
}
