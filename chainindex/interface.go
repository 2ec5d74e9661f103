// Package chainindex defines the Fast-Chain Index contract (spec §4.A): the
// narrow interface the organizer core consumes to query indexed headers by
// height, read individual fields without materializing full headers, sum
// accumulated work, and atomically reorganize the candidate chain. This
// package also ships two implementations: an in-memory index for tests and
// light deployments, and a kvdb-backed store for production use, grounded on
// neutrino's headerfs.headerStore.
package chainindex

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/headerchain/chain"
)

// ErrHeightNotFound is returned when a query targets a height past the
// relevant chain's current tip.
var ErrHeightNotFound = errors.New("chainindex: height exceeds chain tip")

// ErrHashNotFound is returned when a hash has no known indexed height.
var ErrHashNotFound = errors.New("chainindex: hash not indexed")

// FastChainIndex is the external contract the organizer core is built
// against (spec §4.A). Implementations must allow any number of concurrent
// readers, serialized only against Reorganize.
type FastChainIndex interface {
	// Header returns the indexed header at height on the requested
	// chain (candidate or confirmed). It returns ErrHeightNotFound if
	// height exceeds that chain's tip.
	Header(height int32, candidate bool) (*chain.Header, error)

	// TopHeight returns the height of the requested chain's tip.
	TopHeight(candidate bool) int32

	// Bits, Version, Timestamp, HeaderHash are individual field
	// accessors used by the populator to avoid materializing full
	// headers while sampling wide windows (spec §4.A).
	Bits(height int32, candidate bool) (uint32, error)
	Version(height int32, candidate bool) (int32, error)
	Timestamp(height int32, candidate bool) (int64, error)
	HeaderHash(height int32, candidate bool) (chainhash.Hash, error)

	// LookupHeight returns the height of an indexed header by hash. It
	// is used to resolve a branch's fork point to a height once the
	// header pool has found the nearest indexed ancestor.
	LookupHeight(hash chainhash.Hash) (int32, bool)

	// Work starts at fromHeight on the confirmed chain and sums the
	// work of successive headers until the running total exceeds
	// accumulated or the chain top is reached, whichever comes first.
	// requiredOut receives that running total (spec §4.A, §4.E step 5).
	// aboveForkPoint mirrors spec's "above_pool_branch" parameter; the
	// implementations in this package (MemIndex and Store) ignore it and
	// always start at fromHeight. It returns false only on an index read
	// failure.
	Work(requiredOut *big.Int, accumulated *big.Int, fromHeight int32,
		aboveForkPoint bool) bool

	// Reorganize atomically truncates the candidate index above
	// fork.Height and appends branchHeaders. It must leave the index
	// unchanged on failure, or surface a fatal error if it cannot
	// guarantee that (spec §4.A, §6).
	Reorganize(fork chain.ForkPoint, branchHeaders []*chain.Header) error
}
