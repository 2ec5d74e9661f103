package organize_test

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainerr"
	"github.com/lightninglabs/headerchain/chainindex"
	"github.com/lightninglabs/headerchain/headerpool"
	"github.com/lightninglabs/headerchain/organize"
	"github.com/lightninglabs/headerchain/populate"
	"github.com/lightninglabs/headerchain/validate"
)

// easyBits is a regtest-style proof-of-work limit: a target large enough
// that mining a valid header takes only a handful of nonce tries.
const easyBits = 0x207fffff

const baseTimestamp = 1_600_000_000

// mineHeader builds a header extending prev with the given height's
// timestamp and hunts for a nonce satisfying easyBits' target, exactly as a
// regtest miner would.
func mineHeader(t *testing.T, prevHash chainhash.Hash, timestampOffset int64) *chain.Header {
	t.Helper()

	target := chain.CompactToBig(easyBits)
	wh := wire.BlockHeader{
		Version:   1,
		PrevBlock: prevHash,
		Bits:      easyBits,
		Timestamp: time.Unix(baseTimestamp+timestampOffset, 0),
	}

	for nonce := uint32(0); nonce < 1_000_000; nonce++ {
		wh.Nonce = nonce
		h := chain.New(wh, false)
		powHash := h.PowHash()
		if chain.HashToBig(powHash[:]).Cmp(target) <= 0 {
			return h
		}
	}

	t.Fatal("could not mine a test header under easyBits")
	return nil
}

type fixture struct {
	genesis *chain.Header
	index   *chainindex.MemIndex
	pool    *headerpool.Pool
	org     *organize.Organizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	genesis := mineHeader(t, chainhash.Hash{}, 0)
	index := chainindex.NewMemIndex(genesis)
	pool := headerpool.New(index, headerpool.DefaultMaxEntries)

	populator := populate.New(index, populate.Config{
		RetargetInterval: 2016,
		MedianTimeBlocks: 3,
		VersionWindow:    10,
		PowLimitBits:     easyBits,
	})

	validator := validate.New(validate.Config{
		TimestampLimitSeconds: 2 * 60 * 60,
		PowLimitBits:          easyBits,
	}, populator)

	org := organize.New(organize.Config{
		Pool:        pool,
		Index:       index,
		Validator:   validator,
		Checkpoints: nil,
		Concurrency: 2,
	})
	require.NoError(t, org.Start())
	t.Cleanup(func() { org.Stop() })

	return &fixture{genesis: genesis, index: index, pool: pool, org: org}
}

// organizeSync is a small adapter over the asynchronous callback contract
// for tests that just want the outcome of a single call.
func organizeSync(f *fixture, header *chain.Header) (chainerr.OutcomeCode, error) {
	done := make(chan struct{})
	var code chainerr.OutcomeCode
	var err error
	f.org.Organize(header, func(c chainerr.OutcomeCode, e error) {
		code, err = c, e
		close(done)
	})
	<-done
	return code, err
}

func TestOrganizeExtendsGenesis(t *testing.T) {
	f := newFixture(t)

	h1 := mineHeader(t, f.genesis.Hash(), 10)
	code, err := organizeSync(f, h1)
	require.NoError(t, err)
	require.Equal(t, chainerr.Success, code)
	require.Equal(t, int32(1), f.index.TopHeight(true))
}

func TestOrganizeDuplicate(t *testing.T) {
	f := newFixture(t)

	h1 := mineHeader(t, f.genesis.Hash(), 10)
	code, err := organizeSync(f, h1)
	require.NoError(t, err)
	require.Equal(t, chainerr.Success, code)

	code, err = organizeSync(f, h1)
	require.NoError(t, err)
	require.Equal(t, chainerr.DuplicateBlock, code)
}

func TestOrganizeOrphan(t *testing.T) {
	f := newFixture(t)

	var unknownParent chainhash.Hash
	unknownParent[0] = 0xff

	orphan := mineHeader(t, unknownParent, 10)
	code, err := organizeSync(f, orphan)
	require.NoError(t, err)
	require.Equal(t, chainerr.OrphanBlock, code)
}

func TestOrganizeFutureTimestampRejected(t *testing.T) {
	f := newFixture(t)

	target := chain.CompactToBig(easyBits)
	wh := wire.BlockHeader{
		Version:   1,
		PrevBlock: f.genesis.Hash(),
		Bits:      easyBits,
		Timestamp: time.Now().Add(24 * time.Hour),
	}
	var h *chain.Header
	for nonce := uint32(0); nonce < 1_000_000; nonce++ {
		wh.Nonce = nonce
		candidate := chain.New(wh, false)
		powHash := candidate.PowHash()
		if chain.HashToBig(powHash[:]).Cmp(target) <= 0 {
			h = candidate
			break
		}
	}
	require.NotNil(t, h)

	code, err := organizeSync(f, h)
	require.Error(t, err)
	require.Equal(t, chainerr.InvalidTimestamp, code)

	// The context-free rejection must never touch the candidate chain.
	require.Equal(t, int32(0), f.index.TopHeight(true))
}

func TestOrganizeInsufficientWorkKeepsHeaderButNotChainTip(t *testing.T) {
	f := newFixture(t)

	// Build a three-header confirmed run directly against the index, then
	// mark it confirmed, so that a one-header rival branch from the same
	// fork point accumulates less work than is required above the
	// confirmed tip.
	c1 := mineHeader(t, f.genesis.Hash(), 10)
	c2 := mineHeader(t, c1.Hash(), 20)
	c3 := mineHeader(t, c2.Hash(), 30)

	fork := chain.ForkPoint{Hash: f.genesis.Hash(), Height: 0}
	require.NoError(t, f.index.Reorganize(fork, []*chain.Header{c1, c2, c3}))
	f.index.ConfirmUpTo(3)

	rival := mineHeader(t, f.genesis.Hash(), 15)
	code, err := organizeSync(f, rival)
	require.NoError(t, err)
	require.Equal(t, chainerr.InsufficientWork, code)

	// The candidate chain is untouched, but the header itself is still
	// trusted and retrievable from the pool for a future, stronger branch.
	require.Equal(t, int32(3), f.index.TopHeight(true))
	require.True(t, f.pool.Contains(rival.Hash()))
}

func TestOrganizeWinningBranchReorganizes(t *testing.T) {
	f := newFixture(t)

	original := mineHeader(t, f.genesis.Hash(), 10)
	code, err := organizeSync(f, original)
	require.NoError(t, err)
	require.Equal(t, chainerr.Success, code)

	// A two-header rival branch from genesis carries more work than the
	// single-header original, and the confirmed tip is still genesis, so
	// the comparison is against zero required work either way — the
	// reorganize always wins once it is presented as a longer branch.
	r1 := mineHeader(t, f.genesis.Hash(), 11)
	r2 := mineHeader(t, r1.Hash(), 21)

	code, err = organizeSync(f, r1)
	require.NoError(t, err)
	require.Equal(t, chainerr.Success, code)

	code, err = organizeSync(f, r2)
	require.NoError(t, err)
	require.Equal(t, chainerr.Success, code)

	require.Equal(t, int32(2), f.index.TopHeight(true))
	top, err := f.index.Header(2, true)
	require.NoError(t, err)
	require.Equal(t, r2.Hash(), top.Hash())

	height, ok := f.index.LookupHeight(original.Hash())
	require.False(t, ok, "stale branch header must be dropped from the index")
	_ = height
}

func TestOrganizeStopRejectsSubsequentCalls(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.org.Stop())

	h1 := mineHeader(t, f.genesis.Hash(), 10)
	code, err := organizeSync(f, h1)
	require.Error(t, err)
	require.Equal(t, chainerr.ServiceStopped, code)
}
