// Package config defines the organizer's external Settings (spec §6) and a
// CLI/config-file loader for it, grounded on lnd's own top-level config.go:
// a default struct literal, a pre-parse to find the config file, an
// flags.IniParse overlay, then a final flags.Parse pass so flags win over
// the file.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	flags "github.com/jessevdk/go-flags"

	"github.com/lightninglabs/headerchain/chain"
)

const (
	defaultConfigFilename      = "headerchain.conf"
	defaultTimestampLimitSecs  = 2 * 60 * 60
	defaultStaleSeconds        = 24 * 60 * 60
	defaultRetargetInterval    = 2016
	defaultMedianTimeBlocks    = 11
	defaultVersionWindow       = 1000
	defaultMaxPoolEntries      = 4096
)

// CheckpointConfig is the flags-compatible (height, hash) pair named in
// spec §4.C.
type CheckpointConfig struct {
	Height int32  `long:"height" description:"height of the checkpointed header"`
	Hash   string `long:"hash" description:"hex-encoded hash of the checkpointed header"`
}

// DeploymentConfig is the flags-compatible form of chain.DeploymentParams.
type DeploymentConfig struct {
	Bit           uint8  `long:"bit" description:"version bit this deployment signals on"`
	StartHeight   int32  `long:"startheight" description:"first retarget period at which signaling is observed"`
	TimeoutHeight int32  `long:"timeoutheight" description:"retarget period after which the deployment fails if not locked in"`
	Threshold     int    `long:"threshold" description:"minimum signaling headers per period required to lock in"`
	Activates     uint32 `long:"activates" description:"bitmask of chain.Fork values this deployment activates once it reaches the active state"`
}

// Settings holds every external parameter named in spec §6: proof-of-work
// function selection and limit, timestamp policy, fork activation
// configuration, checkpoints, and retarget/BIP9 thresholds.
type Settings struct {
	DataDir string `long:"datadir" description:"directory to store the header index in"`
	LogDir  string `long:"logdir" description:"directory to write log files in"`
	DebugLevel string `long:"debuglevel" description:"logging level for all subsystems"`

	TimestampLimitSeconds uint32 `long:"timestamplimitseconds" description:"reject headers timestamped more than this far in the future"`
	StaleSeconds          uint32 `long:"staleseconds" description:"headers older than this at reception may skip policy (not consensus) checks"`

	ProofOfWorkLimit string `long:"powlimit" description:"hex-encoded compact target representing the minimum difficulty"`
	Scrypt           bool   `long:"scrypt" description:"use scrypt instead of double-SHA256 for proof-of-work hashing"`

	RetargetInterval int32 `long:"retargetinterval" description:"number of headers between difficulty retargets"`
	MedianTimeBlocks int32 `long:"mediantimeblocks" description:"number of trailing headers sampled for median-time-past"`
	VersionWindow    int32 `long:"versionwindow" description:"number of trailing headers sampled for legacy soft-fork version counting"`

	BaseForks uint32 `long:"baseforks" description:"bitmask of forks considered always-active from genesis"`

	BIP34Threshold int `long:"bip34threshold" description:"version-count threshold to activate BIP34 over the version window"`
	BIP65Threshold int `long:"bip65threshold" description:"version-count threshold to activate BIP65 over the version window"`
	BIP66Threshold int `long:"bip66threshold" description:"version-count threshold to activate BIP66 over the version window"`

	Checkpoints  []CheckpointConfig `long:"checkpoint" description:"a pinned (height, hash) pair; may be repeated"`
	Deployments  []DeploymentConfig `long:"deployment" description:"a BIP9 deployment definition; may be repeated"`

	MaxPoolEntries int `long:"maxpoolentries" description:"maximum number of pending headers held in the header pool"`

	MetricsAddr string `long:"metricsaddr" description:"address to serve Prometheus metrics on, empty to disable"`

	ShowVersion bool `short:"V" long:"version" description:"display version information and exit"`
	ConfigFile  string `long:"configfile" description:"path to configuration file"`
}

// DefaultSettings returns the baseline configuration, matching lnd's
// DefaultConfig pattern of a struct literal with every default inlined.
func DefaultSettings() *Settings {
	return &Settings{
		DataDir:               defaultDataDir(),
		LogDir:                defaultLogDir(),
		DebugLevel:            "info",
		TimestampLimitSeconds: defaultTimestampLimitSecs,
		StaleSeconds:          defaultStaleSeconds,
		ProofOfWorkLimit:      "1d00ffff",
		Scrypt:                false,
		RetargetInterval:      defaultRetargetInterval,
		MedianTimeBlocks:      defaultMedianTimeBlocks,
		VersionWindow:         defaultVersionWindow,
		BIP34Threshold:        750,
		BIP65Threshold:        951,
		BIP66Threshold:        951,
		MaxPoolEntries:        defaultMaxPoolEntries,
		ConfigFile:            defaultConfigFilePath(),
	}
}

func defaultAppDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, ".headerchain")
}

func defaultDataDir() string {
	return filepath.Join(defaultAppDir(), "data")
}

func defaultLogDir() string {
	return filepath.Join(defaultAppDir(), "logs")
}

func defaultConfigFilePath() string {
	return filepath.Join(defaultAppDir(), defaultConfigFilename)
}

// LoadConfig parses command-line flags and an optional config file into a
// Settings value, following lnd's own four-step sequence: defaults, a
// pre-parse for the config file location, an ini overlay, then a final
// flags pass so the command line always wins.
func LoadConfig() (*Settings, error) {
	preCfg := DefaultSettings()
	if _, err := flags.Parse(preCfg); err != nil {
		return nil, err
	}

	if preCfg.ShowVersion {
		fmt.Println("headerchaind version", Version)
		os.Exit(0)
	}

	cfg := *preCfg
	if err := flags.IniParse(preCfg.ConfigFile, &cfg); err != nil {
		if _, ok := err.(*flags.IniError); ok {
			return nil, err
		}
	}

	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ParseCheckpoints converts the flags-level checkpoint list into
// chaincfg.Checkpoint values, reusing that type verbatim as spec §4.C
// requires.
func (s *Settings) ParseCheckpoints() ([]chaincfg.Checkpoint, error) {
	out := make([]chaincfg.Checkpoint, 0, len(s.Checkpoints))
	for _, cp := range s.Checkpoints {
		raw, err := hex.DecodeString(cp.Hash)
		if err != nil {
			return nil, fmt.Errorf("invalid checkpoint hash at "+
				"height %d: %w", cp.Height, err)
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("checkpoint hash at height %d "+
				"must be 32 bytes, got %d", cp.Height, len(raw))
		}

		// Checkpoint hashes are conventionally given in the
		// human-readable (reversed) byte order; reverse before
		// handing the raw bytes to chainhash so the resulting Hash
		// matches the internal little-endian representation.
		for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
			raw[i], raw[j] = raw[j], raw[i]
		}

		hash, err := chainhash.NewHash(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid checkpoint hash at "+
				"height %d: %w", cp.Height, err)
		}

		out = append(out, chaincfg.Checkpoint{
			Height: cp.Height,
			Hash:   hash,
		})
	}
	return out, nil
}

// ParseDeployments converts the flags-level deployment list into
// chain.DeploymentParams values.
func (s *Settings) ParseDeployments() []chain.DeploymentParams {
	out := make([]chain.DeploymentParams, 0, len(s.Deployments))
	for _, d := range s.Deployments {
		out = append(out, chain.DeploymentParams{
			Bit:              chain.DeploymentBit(d.Bit),
			StartHeight:      d.StartHeight,
			TimeoutHeight:    d.TimeoutHeight,
			Threshold:        d.Threshold,
			RetargetInterval: s.RetargetInterval,
			Activates:        chain.Forks(d.Activates),
		})
	}
	return out
}

// PowLimitBits parses the configured proof-of-work limit into its compact
// target encoding.
func (s *Settings) PowLimitBits() (uint32, error) {
	var v uint32
	_, err := fmt.Sscanf(s.ProofOfWorkLimit, "%x", &v)
	return v, err
}
