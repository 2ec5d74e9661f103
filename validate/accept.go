package validate

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainerr"
)

// CheckpointSet maps a checkpointed height to its pinned hash (spec §4.C).
type CheckpointSet map[int32]chainhash.Hash

// Accept runs the context-dependent checks on branch (spec §4.D): populate
// the chain state for the branch's top header, short-circuit if it was
// already validated elsewhere, then check bits/timestamp/checkpoint/version
// against the populated snapshot. candidate selects whether the branch is
// being measured against the candidate or confirmed chain's ancestor
// fields; the organizer always passes true (branches are built and accepted
// against the candidate chain per spec §2's data flow).
func (v *Validator) Accept(branch *chain.Branch, checkpoints CheckpointSet,
	candidate bool) (*chain.State, error) {

	top := branch.Top()
	if top == nil {
		return nil, chainerr.New(chainerr.OperationFailed,
			"accept called with an empty branch")
	}

	if top.Validated() {
		v.dupCounter.record(true)
		return top.State(), nil
	}

	state, err := v.populator.ForBranch(branch, candidate)
	if err != nil {
		return nil, chainerr.Newf(chainerr.OperationFailed,
			"populate chain state: %v", err)
	}

	if err := v.checkContextual(top, state, checkpoints); err != nil {
		return nil, err
	}

	top.SetState(state)
	top.SetValidated()
	v.dupCounter.record(false)

	return state, nil
}

func (v *Validator) checkContextual(header *chain.Header, state *chain.State,
	checkpoints CheckpointSet) error {

	if header.Bits() != state.WorkRequired {
		return chainerr.Newf(chainerr.InvalidBits,
			"header bits %08x do not match required %08x",
			header.Bits(), state.WorkRequired)
	}

	if header.Timestamp() <= state.MedianTimePast {
		return chainerr.Newf(chainerr.InvalidTimestamp,
			"timestamp %d does not exceed median time past %d",
			header.Timestamp(), state.MedianTimePast)
	}

	if pinned, ok := checkpoints[state.Height]; ok {
		if header.Hash() != pinned {
			return chainerr.Newf(chainerr.CheckpointMismatch,
				"header at height %d does not match checkpoint",
				state.Height)
		}
	}

	if state.Forks.IsActive(chain.ForkBIP34) && header.Version() < 2 {
		return chainerr.Newf(chainerr.InvalidVersion,
			"version %d rejected: BIP34 requires >= 2", header.Version())
	}
	if state.Forks.IsActive(chain.ForkBIP65) && header.Version() < 4 {
		return chainerr.Newf(chainerr.InvalidVersion,
			"version %d rejected: BIP65 requires >= 4", header.Version())
	}
	if state.Forks.IsActive(chain.ForkBIP66) && header.Version() < 3 {
		return chainerr.Newf(chainerr.InvalidVersion,
			"version %d rejected: BIP66 requires >= 3", header.Version())
	}

	v.warnUnknownVersion(header, state)

	return nil
}

// warnUnknownVersion logs (without rejecting) a header that signals a
// version-bits deployment this core does not track, grounded on
// btcd/blockchain's warnUnknownVersions: an untracked signal is informative
// for operators watching for upcoming soft forks, never a validation
// failure.
func (v *Validator) warnUnknownVersion(header *chain.Header, state *chain.State) {
	const versionBitsTopMask = 0xe0000000
	const versionBitsTopBits = 0x20000000

	version := uint32(header.Version())
	if version&versionBitsTopMask != versionBitsTopBits {
		return
	}

	for bit := chain.DeploymentBit(0); bit < 29; bit++ {
		if version&(1<<uint(bit)) == 0 {
			continue
		}
		if _, tracked := state.BIP9[bit]; !tracked {
			log.Warnf("header %v signals unknown deployment bit "+
				"%d; a soft fork may be in progress that this "+
				"core does not recognize", header, bit)
		}
	}
}
