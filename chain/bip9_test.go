package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignalsBit(t *testing.T) {
	require.True(t, SignalsBit(0x20000001, 0))
	require.True(t, SignalsBit(0x20000003, 1))
	require.False(t, SignalsBit(0x20000001, 1))

	// A version that doesn't carry the top three signaling bits never
	// signals, regardless of which low bits happen to be set.
	require.False(t, SignalsBit(0x00000001, 0))
	require.False(t, SignalsBit(0x10000001, 0))
}

func TestDeploymentParamsNextState(t *testing.T) {
	dep := DeploymentParams{
		Bit:              0,
		StartHeight:      2016,
		TimeoutHeight:    2016 * 3,
		Threshold:        3,
		RetargetInterval: 2016,
	}

	// Before the start height, stays defined.
	require.Equal(t, BIP9Defined, dep.NextState(BIP9Defined, 0, 0))

	// Once the period start reaches the start height, becomes started.
	require.Equal(t, BIP9Started, dep.NextState(BIP9Defined, 2016, 0))

	// Started stays started until the threshold is met.
	require.Equal(t, BIP9Started, dep.NextState(BIP9Started, 2016, 2))

	// Threshold met locks in.
	require.Equal(t, BIP9LockedIn, dep.NextState(BIP9Started, 2016, 3))

	// Locked in always advances to active one period later.
	require.Equal(t, BIP9Active, dep.NextState(BIP9LockedIn, 4032, 0))

	// Active and failed are terminal.
	require.Equal(t, BIP9Active, dep.NextState(BIP9Active, 6048, 0))
	require.Equal(t, BIP9Failed, dep.NextState(BIP9Failed, 6048, 0))

	// Timing out while started (never locked in) fails.
	require.Equal(t, BIP9Failed,
		dep.NextState(BIP9Started, dep.TimeoutHeight, 0))
}

func TestDeploymentParamsPeriodStart(t *testing.T) {
	dep := DeploymentParams{RetargetInterval: 2016}

	require.Equal(t, int32(0), dep.PeriodStart(0))
	require.Equal(t, int32(0), dep.PeriodStart(2015))
	require.Equal(t, int32(2016), dep.PeriodStart(2016))
	require.Equal(t, int32(2016), dep.PeriodStart(4031))
}
