package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/storage/statedb"
)

func addrN(n byte) common.Address {
	var a common.Address
	a[len(a)-1] = n
	return a
}

func TestRepository_GetRoot_EmptyIsEmptyRootHash(t *testing.T) {
	repo := NewGenesisRepository()
	assert.Equal(t, statedb.EmptyRootHash, repo.GetRoot())
}

func TestRepository_GetRoot_OrderIndependent(t *testing.T) {
	a, b := addrN(1), addrN(2)

	r1 := NewGenesisRepository()
	r1.AddBalance(a, big.NewInt(10))
	r1.AddBalance(b, big.NewInt(20))

	r2 := NewGenesisRepository()
	r2.AddBalance(b, big.NewInt(20))
	r2.AddBalance(a, big.NewInt(10))

	assert.Equal(t, r1.GetRoot(), r2.GetRoot())
}

func TestRepository_GetRoot_ChangesWithBalance(t *testing.T) {
	addr := addrN(1)
	repo := NewGenesisRepository()
	before := repo.GetRoot()

	repo.AddBalance(addr, big.NewInt(1))

	assert.NotEqual(t, before, repo.GetRoot())
}

func TestRepository_AddBalance_ZeroDeltaStillTouchesAccount(t *testing.T) {
	addr := addrN(1)
	repo := NewGenesisRepository()
	before := repo.GetRoot()

	repo.AddBalance(addr, new(big.Int))

	// A zero-delta AddBalance still materializes the account entry (with
	// balance 0), which changes GetRoot's account set from empty to one
	// entry, the same "touch" behavior DistributeRewards and
	// buildEmptyBlock-style callers rely on for the coinbase in a
	// zero-reward chain config.
	assert.NotEqual(t, before, repo.GetRoot())
	assert.Equal(t, big.NewInt(0), repo.GetBalance(addr))
}

func TestRepository_GetNonce_UnknownAddressIsZero(t *testing.T) {
	repo := NewGenesisRepository()
	assert.Equal(t, uint64(0), repo.GetNonce(addrN(1)))
}

func TestRepository_SetNonce_ThenGetNonce(t *testing.T) {
	repo := NewGenesisRepository()
	addr := addrN(1)
	repo.SetNonce(addr, 5)
	assert.Equal(t, uint64(5), repo.GetNonce(addr))
}

func TestRepository_StartTracking_IsolatedUntilCommit(t *testing.T) {
	addr := addrN(1)
	repo := NewGenesisRepository()
	repo.AddBalance(addr, big.NewInt(100))

	child := repo.StartTracking().(*Repository)
	child.AddBalance(addr, big.NewInt(50))

	assert.Equal(t, big.NewInt(100), repo.GetBalance(addr))
	assert.Equal(t, big.NewInt(150), child.GetBalance(addr))

	require.NoError(t, child.Commit())

	assert.Equal(t, big.NewInt(150), repo.GetBalance(addr))
}

func TestRepository_StartTracking_ReadsFallThroughToParent(t *testing.T) {
	addr := addrN(1)
	repo := NewGenesisRepository()
	repo.SetNonce(addr, 7)

	child := repo.StartTracking().(*Repository)

	assert.Equal(t, uint64(7), child.GetNonce(addr))
}

func TestRepository_SnapshotTo_KnownRootReturnsMatchingState(t *testing.T) {
	addr := addrN(1)
	repo := NewGenesisRepository()
	repo.AddBalance(addr, big.NewInt(5))
	require.NoError(t, repo.Commit())
	committedRoot := repo.GetRoot()

	repo.AddBalance(addr, big.NewInt(95))
	assert.NotEqual(t, committedRoot, repo.GetRoot())

	snap := repo.SnapshotTo(committedRoot).(*Repository)

	assert.Equal(t, big.NewInt(5), snap.GetBalance(addr))
}

func TestRepository_SnapshotTo_UnknownRootReturnsEmpty(t *testing.T) {
	repo := NewGenesisRepository()
	repo.AddBalance(addrN(1), big.NewInt(5))

	snap := repo.SnapshotTo(common.Keccak256Hash([]byte("never-committed"))).(*Repository)

	assert.Equal(t, statedb.EmptyRootHash, snap.GetRoot())
}

func TestRepository_Rollback_IsNoop(t *testing.T) {
	addr := addrN(1)
	repo := NewGenesisRepository()
	child := repo.StartTracking().(*Repository)
	child.AddBalance(addr, big.NewInt(1))

	child.Rollback()

	// Rollback does not erase the child's own pending writes (nothing was
	// merged into repo to begin with); it only documents that no
	// further undo is needed since Commit is what performs the merge.
	assert.Equal(t, big.NewInt(1), child.GetBalance(addr))
	assert.Equal(t, big.NewInt(0), repo.GetBalance(addr))
}

func TestRepository_Commit_TopLevelRecordsIntoHistory(t *testing.T) {
	addr := addrN(1)
	repo := NewGenesisRepository()
	repo.AddBalance(addr, big.NewInt(1))
	root := repo.GetRoot()

	require.NoError(t, repo.Commit())

	snap := repo.SnapshotTo(root).(*Repository)
	assert.Equal(t, big.NewInt(1), snap.GetBalance(addr))
}
