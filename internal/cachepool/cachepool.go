// Package cachepool is a two-level (process-local LRU, then Redis)
// cache for account nonce lookups; balances are not cached. It follows
// the way klaytn's storage layer fronts trie reads with in-process caches
// (common/cache.go, blockchain/state/database.go's maxPastTries); no
// Repository in this module consults it. Redis is the out-of-process tier
// shared across multiple chaincore processes reading the same chain.
package cachepool

import (
	"encoding/binary"
	"math/big"
	"time"

	"github.com/go-redis/redis/v7"
	lru "github.com/hashicorp/golang-lru"

	"github.com/relayix/chaincore/common"
	"github.com/relayix/chaincore/log"
)

var logger = log.NewModuleLogger(log.CachePool)

const localCacheSize = 4096

// Pool is a nonce cache: GetNonce consults the local LRU, then Redis,
// PutNonce writes both tiers, and Invalidate drops an address from both
// tiers (for use after a repository rollback, so a speculative fork's
// reads never leak into the shared cache).
type Pool struct {
	local *lru.Cache
	redis *redis.Client
	ttl   time.Duration
}

// New builds a Pool backed by redisAddr; pass an empty redisAddr to run
// with only the local LRU tier (e.g. tests, single-process dev mode).
func New(redisAddr string, ttl time.Duration) (*Pool, error) {
	local, err := lru.New(localCacheSize)
	if err != nil {
		return nil, err
	}
	p := &Pool{local: local, ttl: ttl}
	if redisAddr != "" {
		p.redis = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	return p, nil
}

type accountEntry struct {
	Nonce   uint64
	Balance *big.Int
}

func nonceKey(addr common.Address) string {
	return "nonce:" + addr.String()
}

// GetNonce returns a cached nonce for addr and whether it was found.
func (p *Pool) GetNonce(addr common.Address) (uint64, bool) {
	if v, ok := p.local.Get(addr); ok {
		return v.(accountEntry).Nonce, true
	}
	if p.redis == nil {
		return 0, false
	}
	raw, err := p.redis.Get(nonceKey(addr)).Bytes()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		logger.Warn("redis get failed", "addr", addr.String(), "err", err)
		return 0, false
	}
	if len(raw) < 8 {
		return 0, false
	}
	nonce := binary.BigEndian.Uint64(raw)
	p.local.Add(addr, accountEntry{Nonce: nonce})
	return nonce, true
}

// PutNonce writes addr's nonce to both cache tiers.
func (p *Pool) PutNonce(addr common.Address, nonce uint64) {
	p.local.Add(addr, accountEntry{Nonce: nonce})
	if p.redis == nil {
		return
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, nonce)
	if err := p.redis.Set(nonceKey(addr), buf, p.ttl).Err(); err != nil {
		logger.Warn("redis set failed", "addr", addr.String(), "err", err)
	}
}

// Invalidate drops addr from both cache tiers, used when a speculative
// fork's state must not leak into the shared cache on rollback.
func (p *Pool) Invalidate(addr common.Address) {
	p.local.Remove(addr)
	if p.redis != nil {
		if err := p.redis.Del(nonceKey(addr)).Err(); err != nil {
			logger.Warn("redis del failed", "addr", addr.String(), "err", err)
		}
	}
}
