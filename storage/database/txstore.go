package database

import (
	"github.com/relayix/chaincore/blockchain"
	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/ser/rlp"
)

var _ blockchain.TransactionStore = (*DBManager)(nil)

// locationRLP is the RLP shape blockchain.TxLocation takes on disk;
// TxLocation itself has no RLP tags and lives in the blockchain package,
// so the storage layer owns the wire encoding.
type locationRLP struct {
	BlockHash common.Hash
	Index     uint64
}

// Put indexes txHash against every location it was found at (ordinarily
// exactly one, but the interface allows re-indexing after a rebranch
// moves a transaction to a new block).
func (m *DBManager) Put(txHash common.Hash, locations []blockchain.TxLocation) {
	encoded := make([]locationRLP, len(locations))
	for i, l := range locations {
		encoded[i] = locationRLP{BlockHash: l.BlockHash, Index: uint64(l.Index)}
	}
	enc, err := rlp.EncodeToBytes(encoded)
	if err != nil {
		logger.Error("failed to encode tx locations", "tx", txHash.String(), "err", err)
		return
	}
	if err := m.db.Put(txLookupKey(txHash), enc); err != nil {
		logger.Error("failed to write tx lookup entry", "tx", txHash.String(), "err", err)
	}
}

func (m *DBManager) Get(txHash common.Hash) []blockchain.TxLocation {
	raw, err := m.db.Get(txLookupKey(txHash))
	if err != nil || raw == nil {
		return nil
	}
	var decoded []locationRLP
	if err := rlp.DecodeBytes(raw, &decoded); err != nil {
		logger.Error("failed to decode tx lookup entry", "tx", txHash.String(), "err", err)
		return nil
	}
	locations := make([]blockchain.TxLocation, len(decoded))
	for i, l := range decoded {
		locations[i] = blockchain.TxLocation{BlockHash: l.BlockHash, Index: int(l.Index)}
	}
	return locations
}
