package cachepool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayix/chaincore/common"
)

func addrN(n byte) common.Address {
	var a common.Address
	a[len(a)-1] = n
	return a
}

func TestPool_GetNonce_LocalMissingIsNotFound(t *testing.T) {
	p, err := New("", time.Minute)
	require.NoError(t, err)

	_, ok := p.GetNonce(addrN(1))
	assert.False(t, ok)
}

func TestPool_PutNonce_ThenGetNonceHitsLocalTier(t *testing.T) {
	p, err := New("", time.Minute)
	require.NoError(t, err)

	addr := addrN(1)
	p.PutNonce(addr, 7)

	nonce, ok := p.GetNonce(addr)
	require.True(t, ok)
	assert.Equal(t, uint64(7), nonce)
}

func TestPool_Invalidate_RemovesFromLocalTier(t *testing.T) {
	p, err := New("", time.Minute)
	require.NoError(t, err)

	addr := addrN(1)
	p.PutNonce(addr, 7)
	p.Invalidate(addr)

	_, ok := p.GetNonce(addr)
	assert.False(t, ok)
}

func TestPool_New_WithoutRedisAddrSkipsRedisTier(t *testing.T) {
	p, err := New("", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, p.redis)
}
