package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/headerchain/chain"
)

func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()

	require.Equal(t, uint32(defaultTimestampLimitSecs), cfg.TimestampLimitSeconds)
	require.Equal(t, uint32(defaultStaleSeconds), cfg.StaleSeconds)
	require.Equal(t, int32(defaultRetargetInterval), cfg.RetargetInterval)
	require.Equal(t, int32(defaultMedianTimeBlocks), cfg.MedianTimeBlocks)
	require.Equal(t, int32(defaultVersionWindow), cfg.VersionWindow)
	require.Equal(t, defaultMaxPoolEntries, cfg.MaxPoolEntries)
	require.False(t, cfg.Scrypt)
}

func TestPowLimitBits(t *testing.T) {
	cfg := DefaultSettings()

	bits, err := cfg.PowLimitBits()
	require.NoError(t, err)
	require.Equal(t, uint32(0x1d00ffff), bits)

	cfg.ProofOfWorkLimit = "not-hex"
	_, err = cfg.PowLimitBits()
	require.Error(t, err)
}

func TestParseCheckpoints(t *testing.T) {
	cfg := DefaultSettings()
	cfg.Checkpoints = []CheckpointConfig{
		{
			Height: 11111,
			Hash:   "000000000000000000000000000000000000000000000000000000000000000000",
		},
	}

	// A 33-byte hash is invalid regardless of content.
	_, err := cfg.ParseCheckpoints()
	require.Error(t, err)

	cfg.Checkpoints = []CheckpointConfig{
		{
			Height: 11111,
			Hash:   "42edbd9a92ede29ba36ce4e15e4f27a3fbfecadc3b3950d77dbbf5a3202bdc29",
		},
	}
	cps, err := cfg.ParseCheckpoints()
	require.NoError(t, err)
	require.Len(t, cps, 1)
	require.Equal(t, int32(11111), cps[0].Height)

	cfg.Checkpoints = []CheckpointConfig{
		{Height: 1, Hash: "zz"},
	}
	_, err = cfg.ParseCheckpoints()
	require.Error(t, err)
}

func TestParseDeployments(t *testing.T) {
	cfg := DefaultSettings()
	cfg.RetargetInterval = 2016
	cfg.Deployments = []DeploymentConfig{
		{
			Bit:           1,
			StartHeight:   10,
			TimeoutHeight: 20,
			Threshold:     1916,
			Activates:     uint32(chain.ForkSegWit),
		},
	}

	deployments := cfg.ParseDeployments()
	require.Len(t, deployments, 1)
	require.Equal(t, chain.DeploymentBit(1), deployments[0].Bit)
	require.Equal(t, int32(10), deployments[0].StartHeight)
	require.Equal(t, int32(20), deployments[0].TimeoutHeight)
	require.Equal(t, 1916, deployments[0].Threshold)
	require.Equal(t, cfg.RetargetInterval, deployments[0].RetargetInterval)
	require.Equal(t, chain.Forks(chain.ForkSegWit), deployments[0].Activates)
}
