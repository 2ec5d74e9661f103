package chain

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ForkPoint identifies the indexed ancestor a branch is anchored to.
type ForkPoint struct {
	Hash   chainhash.Hash
	Height int32
}

// Anchored reports whether the fork point refers to a real indexed header,
// as opposed to the UnknownHeight sentinel used for an orphaned branch.
func (fp ForkPoint) Anchored() bool {
	return fp.Height != UnknownHeight
}

// Branch is an ordered, non-empty sequence of pending headers anchored at an
// indexed fork point (spec §3). It is built on demand by the header pool and
// consumed, single-owner, by the validator and then the organizer; nothing
// retains a Branch past the end of one organize call.
type Branch struct {
	fork    ForkPoint
	headers []*Header
}

// NewBranch constructs a branch from a fork point and its headers in
// root-to-tip order, assigning each header's height as it goes so that
// self-consistent populator sampling (spec §4.C) can read heights directly
// off the branch's own headers.
func NewBranch(fork ForkPoint, headers []*Header) *Branch {
	b := &Branch{fork: fork, headers: headers}
	if fork.Anchored() {
		for i, h := range headers {
			h.SetHeight(fork.Height + 1 + int32(i))
		}
	}
	return b
}

// EmptyBranch returns the branch used to signal "duplicate": the offered
// header is already present in the pool or index.
func EmptyBranch() *Branch {
	return &Branch{}
}

// OrphanBranch returns the branch used to signal "cannot be anchored": the
// parent is missing from both pool and index. Its fork point height is
// UnknownHeight by construction.
func OrphanBranch(headers []*Header) *Branch {
	return &Branch{fork: ForkPoint{Height: UnknownHeight}, headers: headers}
}

// Empty reports whether this is the duplicate-signaling empty branch.
func (b *Branch) Empty() bool {
	return b != nil && len(b.headers) == 0
}

// Orphan reports whether this branch could not be anchored to an indexed
// ancestor.
func (b *Branch) Orphan() bool {
	return !b.Empty() && !b.fork.Anchored()
}

// ForkPoint returns the branch's anchor.
func (b *Branch) ForkPoint() ForkPoint { return b.fork }

// Headers returns the branch's headers in root-to-tip order. Callers must
// not retain the slice past the branch's lifetime in a way that assumes
// further mutation; branch headers are otherwise immutable.
func (b *Branch) Headers() []*Header { return b.headers }

// Top returns the tip (most recent) header of the branch.
func (b *Branch) Top() *Header {
	if b.Empty() {
		return nil
	}
	return b.headers[len(b.headers)-1]
}

// TopHeight returns the height the branch's tip would occupy once merged,
// or UnknownHeight if the branch is an orphan.
func (b *Branch) TopHeight() int32 {
	if b.Empty() || !b.fork.Anchored() {
		return UnknownHeight
	}
	return b.fork.Height + int32(len(b.headers))
}

// Work returns the cumulative proof-of-work across every header in the
// branch, summed as 2**256 / (target(bits)+1) per header (spec §3).
func (b *Branch) Work() *big.Int {
	total := new(big.Int)
	for _, h := range b.headers {
		total.Add(total, CalcWork(h.Bits()))
	}
	return total
}
