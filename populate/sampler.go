package populate

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainindex"
)

// sampler reads a single header field at a height, self-consistently
// preferring an in-memory branch header over the index when the branch
// covers that height. This carries forward the per-field sample functions
// of the populator being validated against an un-merged branch
// (get_bits/get_version/get_timestamp/get_block_hash), each resolved
// through its own index accessor rather than one generic "fetch a header"
// path. Whether a single-field read avoids decoding the full header depends
// on the index: both MemIndex and Store answer these accessors by reading
// the whole header.
type sampler struct {
	index     chainindex.FastChainIndex
	candidate bool

	// branch, if non-nil, supplies headers for heights strictly above
	// forkHeight; branch.Headers()[0] sits at forkHeight+1.
	branch     *chain.Branch
	forkHeight int32
}

// newIndexSampler builds a sampler with no branch overlay, reading every
// height directly from the index.
func newIndexSampler(index chainindex.FastChainIndex, candidate bool) *sampler {
	return &sampler{index: index, candidate: candidate, forkHeight: -2}
}

// newBranchSampler builds a sampler that overlays branch on top of the
// index, used while validating a branch that has not yet been merged.
func newBranchSampler(index chainindex.FastChainIndex, candidate bool,
	branch *chain.Branch) *sampler {

	return &sampler{
		index:      index,
		candidate:  candidate,
		branch:     branch,
		forkHeight: branch.ForkPoint().Height,
	}
}

func (s *sampler) branchHeader(height int32) *chain.Header {
	if s.branch == nil || height <= s.forkHeight {
		return nil
	}
	idx := height - s.forkHeight - 1
	headers := s.branch.Headers()
	if idx < 0 || int(idx) >= len(headers) {
		return nil
	}
	return headers[idx]
}

func (s *sampler) Bits(height int32) (uint32, error) {
	if h := s.branchHeader(height); h != nil {
		return h.Bits(), nil
	}
	v, err := s.index.Bits(height, s.candidate)
	if err != nil {
		return 0, fmt.Errorf("sample bits at height %d: %w", height, err)
	}
	return v, nil
}

func (s *sampler) Version(height int32) (int32, error) {
	if h := s.branchHeader(height); h != nil {
		return h.Version(), nil
	}
	v, err := s.index.Version(height, s.candidate)
	if err != nil {
		return 0, fmt.Errorf("sample version at height %d: %w", height, err)
	}
	return v, nil
}

func (s *sampler) Timestamp(height int32) (int64, error) {
	if h := s.branchHeader(height); h != nil {
		return h.Timestamp(), nil
	}
	v, err := s.index.Timestamp(height, s.candidate)
	if err != nil {
		return 0, fmt.Errorf("sample timestamp at height %d: %w", height, err)
	}
	return v, nil
}

func (s *sampler) Hash(height int32) (chainhash.Hash, error) {
	if h := s.branchHeader(height); h != nil {
		return h.Hash(), nil
	}
	v, err := s.index.HeaderHash(height, s.candidate)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("sample hash at height %d: %w", height, err)
	}
	return v, nil
}

// topHeight returns the highest height this sampler can resolve: the
// branch's tip if it has one, else the index's own top.
func (s *sampler) topHeight() int32 {
	if s.branch != nil {
		if top := s.branch.TopHeight(); top != chain.UnknownHeight {
			return top
		}
	}
	return s.index.TopHeight(s.candidate)
}
