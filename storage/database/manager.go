package database

import (
	"math/big"

	lru "github.com/hashicorp/golang-lru"
	"github.com/golang/snappy"

	"github.com/relayix/chaincore/blockchain"
	"github.com/relayix/chaincore/blockchain/types"
	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/ser/rlp"
)

const (
	headerCacheSize = 512
	bodyCacheSize   = 256
	tdCacheSize     = 1024
	numberCacheSize = 2048
)

// DBManager is the persistent store behind the two collaborators
// blockchain.BlockChain needs: BlockStore and TransactionStore. It wraps
// a single Database backend (badger or goleveldb) and fronts the hot
// paths (header/body/TD lookup) with hashicorp/golang-lru caches, ported
// in idiom from storage/database/db_manager.go's cache fields.
type DBManager struct {
	db Database

	headerCache *lru.Cache
	bodyCache   *lru.Cache
	tdCache     *lru.Cache
	numberCache *lru.Cache // block number -> canonical hash

	bestHash   common.Hash
	maxNumber  uint64
}

// NewDBManager opens backend at dir (badger by default; goleveldb when
// requested) and wraps it with the lookup caches.
func NewDBManager(backend Backend, dir string) (*DBManager, error) {
	var (
		db  Database
		err error
	)
	switch backend {
	case LevelDBBackend:
		db, err = NewLevelDB(dir, 128, OpenFileLimit)
	default:
		db, err = NewBadgerDB(dir)
	}
	if err != nil {
		return nil, err
	}

	headerCache, _ := lru.New(headerCacheSize)
	bodyCache, _ := lru.New(bodyCacheSize)
	tdCache, _ := lru.New(tdCacheSize)
	numberCache, _ := lru.New(numberCacheSize)

	return &DBManager{
		db:          db,
		headerCache: headerCache,
		bodyCache:   bodyCache,
		tdCache:     tdCache,
		numberCache: numberCache,
	}, nil
}

func (m *DBManager) Close() {
	m.db.Close()
}

// --- blockchain.BlockStore ---

var _ blockchain.BlockStore = (*DBManager)(nil)

func (m *DBManager) IsBlockExist(hash common.Hash) bool {
	ok, _ := m.db.Has(headerKeyByHash(hash))
	return ok
}

func (m *DBManager) GetBlockByHash(hash common.Hash) *types.Block {
	raw, err := m.db.Get(headerKeyByHash(hash))
	if err != nil || raw == nil {
		return nil
	}
	var idx blockIndex
	if rlp.DecodeBytes(raw, &idx) != nil {
		return nil
	}
	return m.readBlock(idx.Number, hash)
}

func (m *DBManager) GetChainBlockByNumber(number uint64) *types.Block {
	hash, ok := m.canonicalHash(number)
	if !ok {
		return nil
	}
	return m.readBlock(number, hash)
}

func (m *DBManager) GetBlocksByNumber(number uint64) []*types.Block {
	hash, ok := m.canonicalHash(number)
	if !ok {
		return nil
	}
	b := m.readBlock(number, hash)
	if b == nil {
		return nil
	}
	return []*types.Block{b}
}

func (m *DBManager) GetBestBlock() *types.Block {
	if m.bestHash.IsZero() {
		return nil
	}
	return m.GetBlockByHash(m.bestHash)
}

func (m *DBManager) GetMaxNumber() uint64 {
	return m.maxNumber
}

func (m *DBManager) GetTotalDifficultyForHash(hash common.Hash) *big.Int {
	if v, ok := m.tdCache.Get(hash); ok {
		return new(big.Int).Set(v.(*big.Int))
	}
	raw, err := m.db.Get(headerKeyByHash(hash))
	if err != nil || raw == nil {
		return nil
	}
	var idx blockIndex
	if rlp.DecodeBytes(raw, &idx) != nil {
		return nil
	}
	tdRaw, err := m.db.Get(tdKey(idx.Number, hash))
	if err != nil || tdRaw == nil {
		return nil
	}
	td := new(big.Int).SetBytes(tdRaw)
	m.tdCache.Add(hash, new(big.Int).Set(td))
	return td
}

// SaveBlock persists block (header+body keyed by hash, plus an
// index entry so GetBlockByHash doesn't need the number up front) and,
// when td is non-nil, the total difficulty at this hash. onMainChain
// additionally installs block as the canonical entry for its number and,
// when it extends the current max, updates bestHash/maxNumber.
func (m *DBManager) SaveBlock(block *types.Block, td *big.Int, onMainChain bool) {
	number := block.NumberU64()
	hash := block.Hash()

	env := blockEnvelope{Header: block.Header(), Body: block.Body()}
	enc, err := rlp.EncodeToBytes(env)
	if err != nil {
		logger.Error("failed to encode block for storage", "number", number, "err", err)
		return
	}
	if err := m.db.Put(bodyKey(number, hash), snappy.Encode(nil, enc)); err != nil {
		logger.Error("failed to write block", "number", number, "err", err)
		return
	}

	idxEnc, _ := rlp.EncodeToBytes(blockIndex{Number: number})
	if err := m.db.Put(headerKeyByHash(hash), idxEnc); err != nil {
		logger.Error("failed to write block index", "number", number, "err", err)
		return
	}

	if td != nil {
		if err := m.db.Put(tdKey(number, hash), td.Bytes()); err != nil {
			logger.Error("failed to write total difficulty", "number", number, "err", err)
			return
		}
		m.tdCache.Add(hash, new(big.Int).Set(td))
	}

	if onMainChain {
		m.markCanonical(number, hash)
		if number >= m.maxNumber {
			m.maxNumber = number
			m.bestHash = hash
		}
	}

	m.bodyCache.Add(hash, env.Body)
}

// ReBranch flips the canonical markers along block's ancestor chain so
// it (and everything it descends from) becomes the main chain, spec.md
// §4.5's rebranch step. It walks back from block until it meets a
// number whose canonical hash already matches the ancestor's hash.
func (m *DBManager) ReBranch(block *types.Block) {
	number := block.NumberU64()
	hash := block.Hash()

	for {
		existing, ok := m.canonicalHash(number)
		if ok && existing == hash {
			break
		}
		m.markCanonical(number, hash)
		if number == 0 {
			break
		}
		parent := m.GetBlockByHash(hash)
		if parent == nil {
			break
		}
		hash = parent.ParentHash()
		number--
	}

	m.maxNumber = block.NumberU64()
	m.bestHash = block.Hash()
}

func (m *DBManager) GetListHashesEndWith(hash common.Hash, qty int) []common.Hash {
	hashes := make([]common.Hash, 0, qty)
	cur := m.GetBlockByHash(hash)
	for i := 0; i < qty && cur != nil; i++ {
		hashes = append(hashes, cur.Hash())
		if cur.NumberU64() == 0 {
			break
		}
		cur = m.GetBlockByHash(cur.ParentHash())
	}
	return hashes
}

func (m *DBManager) markCanonical(number uint64, hash common.Hash) {
	m.db.Put(canonicalKey(number), hash.Bytes())
	m.numberCache.Add(number, hash)
}

func (m *DBManager) canonicalHash(number uint64) (common.Hash, bool) {
	if v, ok := m.numberCache.Get(number); ok {
		return v.(common.Hash), true
	}
	raw, err := m.db.Get(canonicalKey(number))
	if err != nil || raw == nil {
		return common.Hash{}, false
	}
	hash := common.BytesToHash(raw)
	m.numberCache.Add(number, hash)
	return hash, true
}

func (m *DBManager) readBlock(number uint64, hash common.Hash) *types.Block {
	if v, ok := m.bodyCache.Get(hash); ok {
		if h, ok := m.headerCache.Get(hash); ok {
			return rebuildBlock(h.(*types.Header), v.(*types.Body))
		}
	}

	raw, err := m.db.Get(bodyKey(number, hash))
	if err != nil || raw == nil {
		return nil
	}
	dec, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil
	}
	var env blockEnvelope
	if err := rlp.DecodeBytes(dec, &env); err != nil {
		logger.Error("failed to decode stored block", "number", number, "err", err)
		return nil
	}
	m.bodyCache.Add(hash, env.Body)
	m.headerCache.Add(hash, env.Header)
	return rebuildBlock(env.Header, env.Body)
}

func (m *DBManager) readHeader(number uint64, hash common.Hash) *types.Header {
	if v, ok := m.headerCache.Get(hash); ok {
		return v.(*types.Header)
	}
	b := m.readBlock(number, hash)
	if b == nil {
		return nil
	}
	return b.Header()
}

// rebuildBlock reconstructs an immutable *types.Block from a decoded
// header+body pair through NewBlock, which re-derives UncleHash from the
// body's uncles (and sets TxHash to the empty-trie hash when there are no
// transactions); for a block NewBlock built before it was stored, these
// equal the persisted values.
func rebuildBlock(header *types.Header, body *types.Body) *types.Block {
	b := types.NewBlock(header, body.Transactions, body.Uncles)
	return b
}

func headerKeyByHash(hash common.Hash) []byte {
	return append(append([]byte(nil), headerPrefix...), hash.Bytes()...)
}

type blockIndex struct {
	Number uint64
}
