package headerpool_test

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainindex"
	"github.com/lightninglabs/headerchain/headerpool"
)

func header(prev chainhash.Hash, nonce uint32, ts int64) *chain.Header {
	wh := wire.BlockHeader{
		Version:   1,
		PrevBlock: prev,
		Bits:      0x207fffff,
		Timestamp: time.Unix(ts, 0),
		Nonce:     nonce,
	}
	return chain.New(wh, false)
}

func newFixture() (*chain.Header, *chainindex.MemIndex, *headerpool.Pool) {
	genesis := header(chainhash.Hash{}, 0, 1_600_000_000)
	idx := chainindex.NewMemIndex(genesis)
	pool := headerpool.New(idx, headerpool.DefaultMaxEntries)
	return genesis, idx, pool
}

func TestGetBranchEmptyForIndexedHeader(t *testing.T) {
	genesis, _, pool := newFixture()

	branch := pool.GetBranch(genesis)
	require.True(t, branch.Empty())
}

func TestGetBranchEmptyForAlreadyPooledHeader(t *testing.T) {
	genesis, _, pool := newFixture()

	h1 := header(genesis.Hash(), 1, 1_600_000_010)
	pool.Add(h1, chain.UnknownHeight)

	branch := pool.GetBranch(h1)
	require.True(t, branch.Empty())
}

func TestGetBranchAnchorsToIndexedAncestor(t *testing.T) {
	genesis, _, pool := newFixture()

	h1 := header(genesis.Hash(), 1, 1_600_000_010)
	h2 := header(h1.Hash(), 2, 1_600_000_020)
	pool.Add(h1, chain.UnknownHeight)

	branch := pool.GetBranch(h2)
	require.False(t, branch.Empty())
	require.False(t, branch.Orphan())
	require.Equal(t, int32(0), branch.ForkPoint().Height)
	require.Equal(t, genesis.Hash(), branch.ForkPoint().Hash)
	require.Len(t, branch.Headers(), 2)
	require.Equal(t, h1.Hash(), branch.Headers()[0].Hash())
	require.Equal(t, h2.Hash(), branch.Headers()[1].Hash())
}

func TestGetBranchOrphanWhenParentUnknown(t *testing.T) {
	_, _, pool := newFixture()

	var unknown chainhash.Hash
	unknown[0] = 0x42
	orphan := header(unknown, 1, 1_600_000_010)

	branch := pool.GetBranch(orphan)
	require.True(t, branch.Orphan())
	require.Len(t, branch.Headers(), 1)
}

func TestPoolEvictsOldestAtCapacity(t *testing.T) {
	genesis := header(chainhash.Hash{}, 0, 1_600_000_000)
	idx := chainindex.NewMemIndex(genesis)
	pool := headerpool.New(idx, 2)

	h1 := header(genesis.Hash(), 1, 1_600_000_010)
	h2 := header(h1.Hash(), 2, 1_600_000_020)
	h3 := header(h2.Hash(), 3, 1_600_000_030)

	pool.Add(h1, chain.UnknownHeight)
	pool.Add(h2, chain.UnknownHeight)
	require.Equal(t, 2, pool.Len())

	pool.Add(h3, chain.UnknownHeight)
	require.Equal(t, 2, pool.Len())
	require.False(t, pool.Contains(h1.Hash()), "oldest entry must be evicted")
	require.True(t, pool.Contains(h2.Hash()))
	require.True(t, pool.Contains(h3.Hash()))
}

func TestPoolEvictStaleRemovesOldEntriesOnly(t *testing.T) {
	genesis, _, pool := newFixture()

	h1 := header(genesis.Hash(), 1, 1_600_000_010)
	pool.Add(h1, chain.UnknownHeight)

	time.Sleep(5 * time.Millisecond)

	h2 := header(h1.Hash(), 2, 1_600_000_020)
	pool.Add(h2, chain.UnknownHeight)

	evicted := pool.EvictStale(2 * time.Millisecond)
	require.Equal(t, 1, evicted)
	require.False(t, pool.Contains(h1.Hash()))
	require.True(t, pool.Contains(h2.Hash()))
}

func TestPoolRemoveAndChildren(t *testing.T) {
	genesis, _, pool := newFixture()

	h1 := header(genesis.Hash(), 1, 1_600_000_010)
	h2 := header(genesis.Hash(), 2, 1_600_000_011)
	pool.Add(h1, chain.UnknownHeight)
	pool.Add(h2, chain.UnknownHeight)

	kids := pool.Children(genesis.Hash())
	require.ElementsMatch(t, []chainhash.Hash{h1.Hash(), h2.Hash()}, kids)

	pool.Remove(h1.Hash())
	require.False(t, pool.Contains(h1.Hash()))
	require.ElementsMatch(t, []chainhash.Hash{h2.Hash()}, pool.Children(genesis.Hash()))
}
