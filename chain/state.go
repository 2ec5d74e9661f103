package chain

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Fork identifies a single consensus rule activation that can gate header
// or block validation. Bits mirror the order consensus rules were
// historically activated in, matching spec §3's fork bitset.
type Fork uint32

const (
	ForkBIP16 Fork = 1 << iota
	ForkBIP30
	ForkBIP34
	ForkBIP65
	ForkBIP66
	ForkBIP68
	ForkBIP112
	ForkBIP113
	ForkSegWit
)

// Forks is a bitset of the forks active at a given height.
type Forks uint32

// IsActive reports whether the given fork is present in the set.
func (f Forks) IsActive(fork Fork) bool {
	return f&Forks(fork) != 0
}

// WithFork returns a copy of the set with fork added.
func (f Forks) WithFork(fork Fork) Forks {
	return f | Forks(fork)
}

// BIP9State is the version-bits deployment state machine value defined by
// BIP9: a deployment starts `defined`, becomes `started` once its signaling
// window opens, `locked_in` once the activation threshold is met within a
// retarget period, `active` one period later, or `failed` if it times out
// while not locked in.
type BIP9State int

const (
	BIP9Defined BIP9State = iota
	BIP9Started
	BIP9LockedIn
	BIP9Active
	BIP9Failed
)

func (s BIP9State) String() string {
	switch s {
	case BIP9Defined:
		return "defined"
	case BIP9Started:
		return "started"
	case BIP9LockedIn:
		return "locked_in"
	case BIP9Active:
		return "active"
	case BIP9Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// DeploymentBit identifies one of the two version-bits deployments this core
// tracks (spec §3 names bit 0 and bit 1 explicitly; additional bits can be
// added the same way without changing the snapshot shape).
type DeploymentBit uint8

// BIP9Status is the per-bit BIP9 snapshot: its current state and the height
// of the first block in the retarget period that state was computed over.
type BIP9Status struct {
	State            BIP9State
	SinceHeight      int32
	RetargetStartsAt int32
}

// State is the chain-state snapshot associated with exactly one header
// height, produced by the populator (chain §4.C) and consumed by the
// validator's accept-stage checks (§4.D).
type State struct {
	// Height, Hash, Bits, Version, Timestamp echo the header's own
	// fields, so a snapshot is self-describing without a back-reference
	// to the header that owns it.
	Height    int32
	Hash      chainhash.Hash
	Bits      uint32
	Version   int32
	Timestamp int64

	// Forks is the bitset of consensus rules active at Height.
	Forks Forks

	// MedianTimePast is the median of the up-to-11 preceding headers'
	// timestamps, per spec §3's invariant.
	MedianTimePast int64

	// WorkRequired is the expected compact target for this height, from
	// the retarget algorithm.
	WorkRequired uint32

	// VersionCounts is a rolling count of header Version values observed
	// over the trailing window (at most 1000 headers), keyed by the
	// version number, used to gate legacy soft-fork activations
	// (BIP34/65/66).
	VersionCounts map[int32]int

	// BIP9 holds the per-bit deployment state.
	BIP9 map[DeploymentBit]BIP9Status
}

// VersionCountAtLeast returns the number of sampled headers whose version is
// greater than or equal to minVersion, matching the legacy soft-fork
// activation rule (e.g. BIP34 requires >= 95% of the last 1000 headers to
// carry version >= 2).
func (s *State) VersionCountAtLeast(minVersion int32) int {
	var total int
	for version, count := range s.VersionCounts {
		if version >= minVersion {
			total += count
		}
	}
	return total
}

// GenesisState returns the fixed chain-state snapshot for height 0, per
// spec §4.C's rule that genesis uses network constants with no ancestor
// sampling.
func GenesisState(header *Header, baseForks Forks, powLimitBits uint32) *State {
	return &State{
		Height:         0,
		Hash:           header.Hash(),
		Bits:           header.Bits(),
		Version:        header.Version(),
		Timestamp:      header.Timestamp(),
		Forks:          baseForks,
		MedianTimePast: header.Timestamp(),
		WorkRequired:   powLimitBits,
		VersionCounts:  map[int32]int{header.Version(): 1},
		BIP9:           map[DeploymentBit]BIP9Status{},
	}
}
