package chainindex

import (
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/headerchain/chain"
)

// MemIndex is an in-memory FastChainIndex. It keeps the candidate chain as a
// height-indexed slice and tracks how much of it is "confirmed" (fully
// validated) as a prefix length. It is intended for tests and for light
// deployments that don't need header persistence across restarts; the
// production path is the kvdb-backed Store in store.go.
type MemIndex struct {
	mu sync.RWMutex

	// candidate[i] is the header at height i on the speculative best
	// chain. candidate[0] is always the genesis header.
	candidate []*chain.Header

	// confirmedHeight is the height of the tip of the fully validated
	// prefix of candidate. It is always <= len(candidate)-1.
	confirmedHeight int32

	byHash map[chainhash.Hash]int32
}

// NewMemIndex creates an index seeded with the given genesis header at
// height 0, already confirmed.
func NewMemIndex(genesis *chain.Header) *MemIndex {
	genesis.SetHeight(0)
	idx := &MemIndex{
		candidate:       []*chain.Header{genesis},
		confirmedHeight: 0,
		byHash:          map[chainhash.Hash]int32{genesis.Hash(): 0},
	}
	return idx
}

func (m *MemIndex) topHeight(candidate bool) int32 {
	if candidate {
		return int32(len(m.candidate)) - 1
	}
	return m.confirmedHeight
}

// TopHeight implements FastChainIndex.
func (m *MemIndex) TopHeight(candidate bool) int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.topHeight(candidate)
}

// Header implements FastChainIndex.
func (m *MemIndex) Header(height int32, candidate bool) (*chain.Header, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if height < 0 || height > m.topHeight(candidate) {
		return nil, ErrHeightNotFound
	}
	return m.candidate[height], nil
}

// Bits implements FastChainIndex.
func (m *MemIndex) Bits(height int32, candidate bool) (uint32, error) {
	h, err := m.Header(height, candidate)
	if err != nil {
		return 0, err
	}
	return h.Bits(), nil
}

// Version implements FastChainIndex.
func (m *MemIndex) Version(height int32, candidate bool) (int32, error) {
	h, err := m.Header(height, candidate)
	if err != nil {
		return 0, err
	}
	return h.Version(), nil
}

// Timestamp implements FastChainIndex.
func (m *MemIndex) Timestamp(height int32, candidate bool) (int64, error) {
	h, err := m.Header(height, candidate)
	if err != nil {
		return 0, err
	}
	return h.Timestamp(), nil
}

// HeaderHash implements FastChainIndex.
func (m *MemIndex) HeaderHash(height int32, candidate bool) (chainhash.Hash, error) {
	h, err := m.Header(height, candidate)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return h.Hash(), nil
}

// LookupHeight implements FastChainIndex.
func (m *MemIndex) LookupHeight(hash chainhash.Hash) (int32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	height, ok := m.byHash[hash]
	return height, ok
}

// Work implements FastChainIndex.
func (m *MemIndex) Work(requiredOut *big.Int, accumulated *big.Int,
	fromHeight int32, _ bool) bool {

	m.mu.RLock()
	defer m.mu.RUnlock()

	requiredOut.SetInt64(0)
	top := m.confirmedHeight
	for height := fromHeight; height <= top; height++ {
		if height < 0 || int(height) >= len(m.candidate) {
			return false
		}
		requiredOut.Add(requiredOut, chain.CalcWork(m.candidate[height].Bits()))
		if requiredOut.Cmp(accumulated) > 0 {
			return true
		}
	}
	return true
}

// Reorganize implements FastChainIndex. It is atomic with respect to
// readers: the swap of m.candidate happens while holding the write lock, so
// no reader observes a partially spliced chain.
func (m *MemIndex) Reorganize(fork chain.ForkPoint, branchHeaders []*chain.Header) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fork.Height < 0 || int(fork.Height) >= len(m.candidate) {
		return ErrHeightNotFound
	}
	if m.candidate[fork.Height].Hash() != fork.Hash {
		return ErrHashNotFound
	}

	// Drop anything above the fork point, then append the new branch.
	truncated := make([]*chain.Header, fork.Height+1, fork.Height+1+int32(len(branchHeaders)))
	copy(truncated, m.candidate[:fork.Height+1])

	for _, stale := range m.candidate[fork.Height+1:] {
		delete(m.byHash, stale.Hash())
	}

	for i, h := range branchHeaders {
		h.SetHeight(fork.Height + 1 + int32(i))
		truncated = append(truncated, h)
		m.byHash[h.Hash()] = h.Height()
	}

	m.candidate = truncated
	if m.confirmedHeight > fork.Height {
		m.confirmedHeight = fork.Height
	}

	return nil
}

// ConfirmUpTo advances the confirmed-chain tip, simulating the body
// validator confirming headers that the organizer has already candidated.
// Exposed for tests that exercise the candidate/confirmed distinction.
func (m *MemIndex) ConfirmUpTo(height int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if height > m.topHeight(true) {
		height = m.topHeight(true)
	}
	m.confirmedHeight = height
}
