package organize_test

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"pgregory.net/rapid"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainerr"
)

// mineHeaderVersion is mineHeader generalized over the version field, used
// by the determinism property to vary soft-fork signaling across runs.
func mineHeaderVersion(t *testing.T, prevHash chainhash.Hash, version int32,
	timestampOffset int64) *chain.Header {

	t.Helper()

	target := chain.CompactToBig(easyBits)
	wh := wire.BlockHeader{
		Version:   version,
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

// runSequence submits a linear run of headerCount headers, each extending
// the previous, against a fresh fixture, and returns the outcome code for
// each call in order.
func runSequence(t *testing.T, headerCount int, versions []int32) []chainerr.OutcomeCode {
	t.Helper()

	f := newFixture(t)

	outcomes := make([]chainerr.OutcomeCode, 0, headerCount)
	prev := f.genesis.Hash()
	for i := 0; i < headerCount; i++ {
		h := mineHeaderVersion(t, prev, versions[i], int64(10*(i+1)))
		code, _ := organizeSync(f, h)
		outcomes = append(outcomes, code)
		prev = h.Hash()
	}
	return outcomes
}

// TestOrganizeIsDeterministic exercises spec §8's determinism property: for
// a fixed, ordered sequence of headers submitted one at a time to a fresh
// fixture, the resulting sequence of outcomes is the same no matter how many
// times it is replayed.
func TestOrganizeIsDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "n")

		versions := make([]int32, n)
		for i := range versions {
			if rapid.Bool().Draw(rt, "v2") {
				versions[i] = 2
			} else {
				versions[i] = 1
			}
		}

		first := runSequence(t, n, versions)
		second := runSequence(t, n, versions)

		if len(first) != len(second) {
			rt.Fatalf("outcome sequence length changed: %v vs %v", first, second)
		}
		for i := range first {
			if first[i] != second[i] {
				rt.Fatalf("outcome at step %d diverged: %v vs %v",
					i, first[i], second[i])
			}
		}
	})
}
