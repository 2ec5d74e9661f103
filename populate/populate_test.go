package populate

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainindex"
)

const easyBits = 0x207fffff

func header(prev chainhash.Hash, nonce uint32, bits uint32, version int32, ts int64) *chain.Header {
	wh := wire.BlockHeader{
		Version:   version,
		PrevBlock: prev,
		Bits:      bits,
		Timestamp: time.Unix(ts, 0),
		Nonce:     nonce,
	}
	return chain.New(wh, false)
}

func buildIndex(t *testing.T, n int) (*chainindex.MemIndex, *chain.Header) {
	t.Helper()

	genesis := header(chainhash.Hash{}, 0, easyBits, 1, 1_600_000_000)
	idx := chainindex.NewMemIndex(genesis)

	prev := genesis
	var headers []*chain.Header
	for i := 1; i <= n; i++ {
		h := header(prev.Hash(), uint32(i), easyBits, 1,
			1_600_000_000+int64(i)*600)
		headers = append(headers, h)
		prev = h
	}
	if len(headers) > 0 {
		require.NoError(t, idx.Reorganize(
			chain.ForkPoint{Hash: genesis.Hash(), Height: 0}, headers))
		idx.ConfirmUpTo(int32(n))
	}

	return idx, genesis
}

func TestMedianTimePastClampsToGenesisPrefix(t *testing.T) {
	idx, _ := buildIndex(t, 2)
	s := newIndexSampler(idx, true)

	// height 1: window of 5 clamps to [0,0], a single sample.
	mtp, err := medianTimePast(s, 1, 5)
	require.NoError(t, err)
	require.Equal(t, int64(1_600_000_000), mtp)
}

func TestMedianTimePastTakesMiddleSample(t *testing.T) {
	idx, _ := buildIndex(t, 4)
	s := newIndexSampler(idx, true)

	// height 4, window 3: samples at heights 1,2,3 -> timestamps
	// 1_600_000_600, 1_600_001_200, 1_600_001_800 -> median is the middle.
	mtp, err := medianTimePast(s, 4, 3)
	require.NoError(t, err)
	require.Equal(t, int64(1_600_001_200), mtp)
}

func TestVersionCountsTalliesWindow(t *testing.T) {
	genesis := header(chainhash.Hash{}, 0, easyBits, 1, 1_600_000_000)
	idx := chainindex.NewMemIndex(genesis)

	h1 := header(genesis.Hash(), 1, easyBits, 1, 1_600_000_600)
	h2 := header(h1.Hash(), 2, easyBits, 2, 1_600_001_200)
	h3 := header(h2.Hash(), 3, easyBits, 2, 1_600_001_800)
	require.NoError(t, idx.Reorganize(
		chain.ForkPoint{Hash: genesis.Hash(), Height: 0},
		[]*chain.Header{h1, h2, h3}))
	idx.ConfirmUpTo(3)

	s := newIndexSampler(idx, true)
	counts, err := versionCounts(s, 3, 10)
	require.NoError(t, err)
	require.Equal(t, map[int32]int{1: 2, 2: 1}, counts)
}

func TestDefaultRetargetUnchangedWithinPeriod(t *testing.T) {
	idx, _ := buildIndex(t, 3)
	s := newIndexSampler(idx, true)

	bits, err := DefaultRetarget(s, 2, 2016, easyBits)
	require.NoError(t, err)
	require.Equal(t, uint32(easyBits), bits)
}

func TestDefaultRetargetBeforeFirstInterval(t *testing.T) {
	idx, _ := buildIndex(t, 1)
	s := newIndexSampler(idx, true)

	bits, err := DefaultRetarget(s, 0, 2016, easyBits)
	require.NoError(t, err)
	require.Equal(t, uint32(easyBits), bits)
}

func TestPopulatorAtHeightGenesis(t *testing.T) {
	idx, genesis := buildIndex(t, 0)
	p := New(idx, Config{
		RetargetInterval: 2016,
		MedianTimeBlocks: 11,
		VersionWindow:    1000,
		PowLimitBits:     easyBits,
	})

	state, err := p.AtHeight(0, true)
	require.NoError(t, err)
	require.Equal(t, int32(0), state.Height)
	require.Equal(t, genesis.Hash(), state.Hash)
	require.Equal(t, genesis.Timestamp(), state.MedianTimePast)
	require.Equal(t, uint32(easyBits), state.WorkRequired)
}

func TestPopulatorAtHeightSamplesAncestorWindow(t *testing.T) {
	idx, _ := buildIndex(t, 5)
	p := New(idx, Config{
		RetargetInterval: 2016,
		MedianTimeBlocks: 3,
		VersionWindow:    3,
		PowLimitBits:     easyBits,
	})

	state, err := p.AtHeight(5, true)
	require.NoError(t, err)
	require.Equal(t, int32(5), state.Height)
	require.Equal(t, uint32(easyBits), state.Bits)
	require.Equal(t, uint32(easyBits), state.WorkRequired)
	require.Less(t, state.MedianTimePast, state.Timestamp)
}

// TestDeriveForksFoldsInActiveDeployment builds a chain long enough for a
// BIP9 deployment to reach the Active state (Defined -> Started -> LockedIn
// -> Active, one retarget period per transition) and asserts the resulting
// chain.State.Forks carries the Fork bits that deployment Activates, per
// spec §4.C's "Forks bitmask derivation" requirement.
func TestDeriveForksFoldsInActiveDeployment(t *testing.T) {
	const interval = int32(4)
	const signalingVersion = int32(0x20000001)

	genesis := header(chainhash.Hash{}, 0, easyBits, 1, 1_600_000_000)
	idx := chainindex.NewMemIndex(genesis)

	var headers []*chain.Header
	prev := genesis
	for h := int32(1); h <= 12; h++ {
		version := int32(1)
		// Signal on every header in period [4,7] so the count (4) clears
		// a threshold of 2.
		if h >= 4 && h <= 7 {
			version = signalingVersion
		}
		hdr := header(prev.Hash(), uint32(h), easyBits, version,
			1_600_000_000+int64(h)*600)
		headers = append(headers, hdr)
		prev = hdr
	}
	require.NoError(t, idx.Reorganize(
		chain.ForkPoint{Hash: genesis.Hash(), Height: 0}, headers))
	idx.ConfirmUpTo(12)

	p := New(idx, Config{
		RetargetInterval: interval,
		MedianTimeBlocks: 3,
		VersionWindow:    3,
		PowLimitBits:     easyBits,
		Deployments: []chain.DeploymentParams{
			{
				Bit:              0,
				StartHeight:      0,
				TimeoutHeight:    100,
				Threshold:        2,
				RetargetInterval: interval,
				Activates:        chain.Forks(chain.ForkSegWit),
			},
		},
	})

	state, err := p.AtHeight(12, true)
	require.NoError(t, err)
	require.Equal(t, chain.BIP9Active, state.BIP9[chain.DeploymentBit(0)].State)
	require.True(t, state.Forks.IsActive(chain.ForkSegWit))
}

func TestPopulatorForBranchUsesBranchAncestors(t *testing.T) {
	idx, genesis := buildIndex(t, 0)

	r1 := header(genesis.Hash(), 1, easyBits, 1, 1_600_000_500)
	r2 := header(r1.Hash(), 2, easyBits, 1, 1_600_001_000)
	branch := chain.NewBranch(
		chain.ForkPoint{Hash: genesis.Hash(), Height: 0},
		[]*chain.Header{r1, r2})

	p := New(idx, Config{
		RetargetInterval: 2016,
		MedianTimeBlocks: 3,
		VersionWindow:    3,
		PowLimitBits:     easyBits,
	})

	state, err := p.ForBranch(branch, true)
	require.NoError(t, err)
	require.Equal(t, int32(2), state.Height)
	require.Equal(t, r2.Hash(), state.Hash)
}
