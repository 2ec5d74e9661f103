package chain

// The version-bits top three bits (0b001) mark a header as signaling BIP9
// deployments in its low bits, per the standard encoding; a version whose
// top bits don't match this mask carries no BIP9 signal at all and is
// ignored by the threshold calculation below. Grounded on the call pattern
// of btcd/blockchain's deploymentState/warnUnknownVersions (chain.go), whose
// actual threshold-state machine (versionbits.go) was not present in this
// snapshot and is reconstructed here from the BIP9 specification directly.
const (
	versionBitsTopMask = 0xe0000000
	versionBitsTopBits = 0x20000000
)

// SignalsBit reports whether version signals deploymentBit under the
// standard BIP9 encoding.
func SignalsBit(version int32, bit DeploymentBit) bool {
	v := uint32(version)
	if v&versionBitsTopMask != versionBitsTopBits {
		return false
	}
	return v&(1<<uint(bit)) != 0
}

// DeploymentParams configures one BIP9 deployment's activation window and
// threshold, expressed in heights rather than the wall-clock start/timeout
// pairs real BIP9 uses for pinned historical deployments: this core's
// populator only ever samples ancestor heights and counts (spec §4.C), so
// activation windows are bounded the same way.
type DeploymentParams struct {
	Bit DeploymentBit

	// StartHeight is the first retarget-period boundary at which
	// signaling is observed; before it the state is always Defined.
	StartHeight int32

	// TimeoutHeight is the retarget-period boundary after which, if the
	// deployment has not locked in, it becomes Failed.
	TimeoutHeight int32

	// Threshold is the minimum number of signaling headers required
	// within a single retarget period to lock in (e.g. 1916 of 2016 on
	// mainnet, 95%).
	Threshold int

	// RetargetInterval is the number of headers in one period (2016 for
	// Bitcoin-derived networks).
	RetargetInterval int32

	// Activates is the set of consensus-rule Forks this deployment turns
	// on once its state reaches BIP9Active (e.g. the CSV deployment
	// activates ForkBIP68|ForkBIP112|ForkBIP113 together; the segwit
	// deployment activates ForkSegWit alone).
	Activates Forks
}

// PeriodStart returns the height of the first header in the retarget period
// containing height.
func (d DeploymentParams) PeriodStart(height int32) int32 {
	interval := d.RetargetInterval
	if interval <= 0 {
		interval = 2016
	}
	return (height / interval) * interval
}

// NextState advances the BIP9 state machine for this deployment by one
// retarget period, given the previous period's state and the signal count
// observed within that just-concluded period (the number of the period's
// headers whose version satisfies SignalsBit, which the populator counts).
//
// periodStartHeight is the height of the period whose signal count is being
// evaluated (i.e. the period that just concluded); the returned state
// applies from periodStartHeight + RetargetInterval onward, matching BIP9's
// rule that a period's outcome takes effect starting the following period.
func (d DeploymentParams) NextState(prev BIP9State, periodStartHeight int32,
	signalCount int) BIP9State {

	switch prev {
	case BIP9Failed, BIP9Active:
		// Terminal states never change.
		return prev

	case BIP9LockedIn:
		return BIP9Active

	case BIP9Defined:
		if periodStartHeight < d.StartHeight {
			return BIP9Defined
		}
		if periodStartHeight >= d.TimeoutHeight {
			return BIP9Failed
		}
		return BIP9Started

	case BIP9Started:
		if periodStartHeight >= d.TimeoutHeight {
			return BIP9Failed
		}
		if signalCount >= d.Threshold {
			return BIP9LockedIn
		}
		return BIP9Started

	default:
		return prev
	}
}
