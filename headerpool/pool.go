// Package headerpool implements the header pool (spec §4.B): a bounded map
// of pending headers keyed by hash, with a secondary parent-hash index, that
// can reconstruct a branch back to the first ancestor present in the chain
// index. It is grounded on btcd/blockchain's orphan pool (chain.go's
// orphans/prevOrphans maps and addOrphanBlock/removeOrphanBlock), generalized
// from "orphan blocks awaiting their parent" to "pending headers awaiting
// anchoring", and extended with branch reconstruction.
package headerpool

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainindex"
)

// DefaultMaxEntries bounds the pool the way btcd bounds its orphan pool,
// scaled up since a header-only pool is far cheaper per entry than a full
// orphan block.
const DefaultMaxEntries = 4096

type entry struct {
	header   *chain.Header
	addedAt  time.Time
}

// Pool holds pending headers that have not yet been anchored into the chain
// index, indexed by hash and by parent hash. The caller is responsible for
// serializing every method against the organizer's write lock (spec §5): the
// pool itself does no internal locking, since §5 requires Add and the branch
// filter step of GetBranch to be mutually exclusive with each other and with
// concurrent Adds, and that exclusion is the write lock's job, not the
// pool's.
type Pool struct {
	index FastIndex

	byHash   map[chainhash.Hash]*entry
	byParent map[chainhash.Hash][]chainhash.Hash

	// order records insertion order for oldest-first eviction, mirroring
	// btcd's oldestOrphan pointer generalized to a full ordering.
	order []chainhash.Hash

	maxEntries int
}

// FastIndex is the subset of chainindex.FastChainIndex the pool needs to
// resolve a branch's fork point.
type FastIndex interface {
	LookupHeight(hash chainhash.Hash) (int32, bool)
	HeaderHash(height int32, candidate bool) (chainhash.Hash, error)
}

var _ FastIndex = chainindex.FastChainIndex(nil)

// New creates an empty pool bounded at maxEntries (DefaultMaxEntries if 0).
func New(index FastIndex, maxEntries int) *Pool {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Pool{
		index:      index,
		byHash:     make(map[chainhash.Hash]*entry),
		byParent:   make(map[chainhash.Hash][]chainhash.Hash),
		maxEntries: maxEntries,
	}
}

// Len returns the number of headers currently pooled.
func (p *Pool) Len() int {
	return len(p.byHash)
}

// Contains reports whether hash is already pooled.
func (p *Pool) Contains(hash chainhash.Hash) bool {
	_, ok := p.byHash[hash]
	return ok
}

// Add inserts header into the pool, a no-op if it is already present. If
// adding it would exceed maxEntries, the oldest pooled header is evicted
// first, mirroring addOrphanBlock's "remove oldest to make room" policy.
// height is not stored; the pool does not depend on it for branch
// reconstruction since heights are assigned from the fork point outward
// when a branch is actually built.
func (p *Pool) Add(header *chain.Header, height int32) {
	hash := header.Hash()
	if _, exists := p.byHash[hash]; exists {
		return
	}

	if len(p.byHash) >= p.maxEntries {
		p.evictOldest()
	}

	e := &entry{header: header, addedAt: time.Now()}
	p.byHash[hash] = e
	p.order = append(p.order, hash)

	prev := header.PrevHash()
	p.byParent[prev] = append(p.byParent[prev], hash)

	log.Debugf("added %v to header pool (pool size %d)", header, p.Len())
}

// EvictStale removes every pooled header older than maxAge, returning the
// number evicted. It is intended to be driven by a low-priority background
// job (spec §5's "bulk background jobs"), not the accept-stage path, since a
// header that has merely been waiting for its parent should not be evicted
// while it is still plausibly useful.
func (p *Pool) EvictStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	var stale []chainhash.Hash
	for _, hash := range p.order {
		e, ok := p.byHash[hash]
		if !ok {
			continue
		}
		if e.addedAt.Before(cutoff) {
			stale = append(stale, hash)
		}
	}

	for _, hash := range stale {
		p.remove(hash)
	}

	if len(stale) > 0 {
		newOrder := p.order[:0]
		for _, hash := range p.order {
			if _, ok := p.byHash[hash]; ok {
				newOrder = append(newOrder, hash)
			}
		}
		p.order = newOrder

		log.Debugf("evicted %d stale headers from pool (pool size %d)",
			len(stale), p.Len())
	}

	return len(stale)
}

func (p *Pool) evictOldest() {
	for len(p.order) > 0 {
		oldest := p.order[0]
		p.order = p.order[1:]
		if _, ok := p.byHash[oldest]; ok {
			p.remove(oldest)
			return
		}
	}
}

// remove deletes hash from both indices. It does not touch p.order; callers
// that evict via evictOldest already popped the front of order themselves,
// and removal triggered by absorption into the chain index (via Remove)
// leaves a stale entry in order that is skipped lazily by evictOldest
// finding it already gone from byHash.
func (p *Pool) remove(hash chainhash.Hash) {
	e, ok := p.byHash[hash]
	if !ok {
		return
	}
	delete(p.byHash, hash)

	prev := e.header.PrevHash()
	children := p.byParent[prev]
	for i := 0; i < len(children); i++ {
		if children[i] == hash {
			copy(children[i:], children[i+1:])
			children = children[:len(children)-1]
			i--
		}
	}
	if len(children) == 0 {
		delete(p.byParent, prev)
	} else {
		p.byParent[prev] = children
	}
}

// Remove deletes hash from the pool, used once a header has been absorbed
// into the chain index by a successful reorganize.
func (p *Pool) Remove(hash chainhash.Hash) {
	p.remove(hash)
}

// GetBranch builds the longest chain from header backward through the pool
// to the first ancestor that exists in the candidate index (spec §4.B). The
// offered header itself is not required to already be pooled; GetBranch
// walks via PrevHash links starting from header.
//
// Three outcomes:
//   - header is already indexed or pooled as the exact hash offered:
//     returns chain.EmptyBranch(), signaling duplicate.
//   - the walk terminates at an indexed ancestor: returns a branch anchored
//     there, with heights assigned outward from the fork point.
//   - the walk exhausts the pool without reaching an indexed ancestor:
//     returns chain.OrphanBranch(headers) with headers in root-to-tip
//     order as best known, and the header itself is pooled by the caller
//     (the organizer, per spec §4.E step 6's "orphan" path).
func (p *Pool) GetBranch(header *chain.Header) *chain.Branch {
	hash := header.Hash()

	if _, indexed := p.index.LookupHeight(hash); indexed {
		return chain.EmptyBranch()
	}
	if p.Contains(hash) {
		return chain.EmptyBranch()
	}

	// Walk backward from header, prepending as we go, until we hit an
	// indexed ancestor or run out of pooled parents. Bounded by the pool
	// size so a cycle (impossible if invariants hold) cannot loop
	// forever.
	chainHeaders := []*chain.Header{header}
	cur := header

	for steps := 0; steps <= p.maxEntries+1; steps++ {
		parentHash := cur.PrevHash()

		if height, ok := p.index.LookupHeight(parentHash); ok {
			fork := chain.ForkPoint{Hash: parentHash, Height: height}
			return chain.NewBranch(fork, chainHeaders)
		}

		parentEntry, ok := p.byHash[parentHash]
		if !ok {
			// Parent is neither indexed nor pooled: orphan.
			return chain.OrphanBranch(chainHeaders)
		}

		chainHeaders = append([]*chain.Header{parentEntry.header}, chainHeaders...)
		cur = parentEntry.header
	}

	return chain.OrphanBranch(chainHeaders)
}

// Children returns the hashes of pooled headers whose previous-hash field is
// parent, used by callers that want to resolve orphans once their parent
// arrives.
func (p *Pool) Children(parent chainhash.Hash) []chainhash.Hash {
	kids := p.byParent[parent]
	out := make([]chainhash.Hash, len(kids))
	copy(out, kids)
	return out
}
