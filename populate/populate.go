// Package populate implements the Chain-State Populator (spec §4.C): given
// a header's height, it samples a minimal set of ancestor fields over the
// retarget, median-time-past, version, and per-bit BIP9 windows and
// assembles a chain.State snapshot. It is grounded on
// libbitcoin's populate_chain_state.hpp for the per-field, self-consistent
// sampling discipline (carried into this package's sampler type) and on
// btcd/blockchain's windowed ancestor walks (chain.go's calcPastMedianTime,
// validate.go's checkBlockHeaderContext) for the window shapes themselves.
package populate

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainindex"
)

// Config holds every parameter the populator needs beyond the index itself,
// mirroring the Settings named in spec §6.
type Config struct {
	RetargetInterval int32
	MedianTimeBlocks int32
	VersionWindow    int32
	PowLimitBits     uint32
	BaseForks        chain.Forks

	BIP34Threshold int
	BIP65Threshold int
	BIP66Threshold int

	Deployments []chain.DeploymentParams

	Retarget RetargetFunc
}

// Populator produces chain-state snapshots on demand. It holds no mutable
// state of its own; every call reads through to the index (and, for
// branch-aware calls, the supplied branch), so multiple populator
// invocations may run concurrently per spec §4.C.
type Populator struct {
	index chainindex.FastChainIndex
	cfg   Config
}

// New constructs a Populator over index using cfg. If cfg.Retarget is nil,
// DefaultRetarget is used.
func New(index chainindex.FastChainIndex, cfg Config) *Populator {
	if cfg.Retarget == nil {
		cfg.Retarget = DefaultRetarget
	}
	return &Populator{index: index, cfg: cfg}
}

// AtTop populates the snapshot for the current tip of the requested chain.
func (p *Populator) AtTop(candidate bool) (*chain.State, error) {
	top := p.index.TopHeight(candidate)
	return p.AtHeight(top, candidate)
}

// AtHeight populates the snapshot for an already-indexed header at height.
func (p *Populator) AtHeight(height int32, candidate bool) (*chain.State, error) {
	s := newIndexSampler(p.index, candidate)
	return p.populate(s, height)
}

// ForBranch populates the snapshot for a branch's top header, reading
// ancestors above the fork point from the branch itself rather than the
// index (self-consistency, spec §4.C). The snapshot is populated for
// branch.TopHeight(), the height the branch's top header would occupy once
// merged.
func (p *Populator) ForBranch(branch *chain.Branch, candidate bool) (*chain.State, error) {
	s := newBranchSampler(p.index, candidate, branch)
	return p.populate(s, branch.TopHeight())
}

// populate is the shared engine behind AtTop/AtHeight/ForBranch: it builds
// the sample map for height and reads each field through s.
func (p *Populator) populate(s *sampler, height int32) (*chain.State, error) {
	if height < 0 {
		return nil, fmt.Errorf("populate: invalid height %d", height)
	}

	if height == 0 {
		hash, err := s.Hash(0)
		if err != nil {
			return nil, err
		}
		bits, err := s.Bits(0)
		if err != nil {
			return nil, err
		}
		version, err := s.Version(0)
		if err != nil {
			return nil, err
		}
		ts, err := s.Timestamp(0)
		if err != nil {
			return nil, err
		}
		return &chain.State{
			Height:         0,
			Hash:           hash,
			Bits:           bits,
			Version:        version,
			Timestamp:      ts,
			Forks:          p.cfg.BaseForks,
			MedianTimePast: ts,
			WorkRequired:   p.cfg.PowLimitBits,
			VersionCounts:  map[int32]int{version: 1},
			BIP9:           map[chain.DeploymentBit]chain.BIP9Status{},
		}, nil
	}

	if top := s.topHeight(); height > top {
		return nil, fmt.Errorf("populate: height %d exceeds sampler "+
			"top %d", height, top)
	}

	var (
		hash    chainhash.Hash
		bits    uint32
		version int32
		ts      int64

		mtp          int64
		workRequired uint32
		versionCnts  map[int32]int
		bip9         map[chain.DeploymentBit]chain.BIP9Status

		firstErr error
	)

	var g errgroup.Group

	g.Go(func() error {
		var err error
		hash, err = s.Hash(height)
		if err == nil {
			bits, err = s.Bits(height)
		}
		if err == nil {
			version, err = s.Version(height)
		}
		if err == nil {
			ts, err = s.Timestamp(height)
		}
		return err
	})

	g.Go(func() error {
		var err error
		mtp, err = medianTimePast(s, height, p.cfg.MedianTimeBlocks)
		return err
	})

	g.Go(func() error {
		var err error
		workRequired, err = p.cfg.Retarget(s, height, p.cfg.RetargetInterval,
			p.cfg.PowLimitBits)
		return err
	})

	g.Go(func() error {
		var err error
		versionCnts, err = versionCounts(s, height, p.cfg.VersionWindow)
		return err
	})

	g.Go(func() error {
		var err error
		bip9, err = p.bip9States(s, height)
		return err
	})

	if err := g.Wait(); err != nil {
		firstErr = err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	forks := p.deriveForks(versionCnts, bip9)

	return &chain.State{
		Height:         height,
		Hash:           hash,
		Bits:           bits,
		Version:        version,
		Timestamp:      ts,
		Forks:          forks,
		MedianTimePast: mtp,
		WorkRequired:   workRequired,
		VersionCounts:  versionCnts,
		BIP9:           bip9,
	}, nil
}

// deriveForks applies configured base forks, legacy soft-fork activation
// once the version-count threshold over the window is crossed, and the
// Forks any BIP9 deployment whose running state machine has reached
// BIP9Active activates (spec §4.C).
func (p *Populator) deriveForks(counts map[int32]int,
	bip9 map[chain.DeploymentBit]chain.BIP9Status) chain.Forks {

	forks := p.cfg.BaseForks

	total := 0
	for _, c := range counts {
		total += c
	}
	if total > 0 {
		atLeast := func(minVersion int32) int {
			n := 0
			for v, c := range counts {
				if v >= minVersion {
					n += c
				}
			}
			return n
		}

		if p.cfg.BIP34Threshold > 0 && atLeast(2) >= p.cfg.BIP34Threshold {
			forks = forks.WithFork(chain.ForkBIP34)
		}
		if p.cfg.BIP65Threshold > 0 && atLeast(4) >= p.cfg.BIP65Threshold {
			forks = forks.WithFork(chain.ForkBIP65)
		}
		if p.cfg.BIP66Threshold > 0 && atLeast(3) >= p.cfg.BIP66Threshold {
			forks = forks.WithFork(chain.ForkBIP66)
		}
	}

	for _, dep := range p.cfg.Deployments {
		if bip9[dep.Bit].State == chain.BIP9Active {
			forks |= dep.Activates
		}
	}

	return forks
}
