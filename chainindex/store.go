package chainindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/lightninglabs/headerchain/chain"
)

// Bucket layout, grounded on neutrino/headerfs's split between a flat header
// file and a database index, adapted to keep everything in kvdb since the
// organizer core only needs random height access, not the append-only flat
// file neutrino uses for filter headers:
//
//	candidateBucket[bigEndian(height)]   = 80-byte wire header
//	confirmedHeightKey                   = littleEndian(height) of the
//	                                        confirmed-chain tip
//	hashIndexBucket[hash]                = littleEndian(height)
//
// Big-endian height keys keep the candidate bucket's cursor order ascending
// by height, which store.go's truncation logic below relies on.
var (
	candidateBucket   = []byte("candidate-headers")
	hashIndexBucket   = []byte("hash-index")
	metaBucket        = []byte("meta")
	confirmedHeightKey = []byte("confirmed-height")
)

// Store is a kvdb-backed FastChainIndex, grounded on
// lightninglabs/neutrino/headerfs's headerStore: headers are indexed by
// height for random access, and a secondary hash index supports
// LookupHeight. Unlike headerfs, Reorganize is expressed as a single kvdb
// read-write transaction rather than a truncate-then-append against a flat
// file, so it is crash-atomic the way spec §4.A and §6 require.
type Store struct {
	db       kvdb.Backend
	scrypt   bool
}

// NewStore opens (creating if necessary) a kvdb-backed chain index, seeding
// it with the genesis header if the database is empty.
func NewStore(db kvdb.Backend, genesis *chain.Header, scryptPoW bool) (*Store, error) {
	s := &Store{db: db, scrypt: scryptPoW}

	err := kvdb.Update(db, func(tx kvdb.RwTx) error {
		meta, err := tx.CreateTopLevelBucket(metaBucket)
		if err != nil {
			return err
		}
		if meta.Get(confirmedHeightKey) != nil {
			return nil
		}

		if _, err := tx.CreateTopLevelBucket(candidateBucket); err != nil {
			return err
		}
		hashIdx, err := tx.CreateTopLevelBucket(hashIndexBucket)
		if err != nil {
			return err
		}

		if err := s.putHeaderTx(tx, 0, genesis); err != nil {
			return err
		}
		genesisHash := genesis.Hash()
		if err := hashIdx.Put(genesisHash[:], heightBytes(0)); err != nil {
			return err
		}
		return meta.Put(confirmedHeightKey, heightBytesLE(0))
	}, func() {})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func heightBytes(height int32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(height))
	return buf[:]
}

func heightBytesLE(height int32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(height))
	return buf[:]
}

func parseHeightLE(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

func (s *Store) putHeaderTx(tx kvdb.RwTx, height int32, h *chain.Header) error {
	bucket := tx.ReadWriteBucket(candidateBucket)

	var buf bytes.Buffer
	if err := h.Serialize(&buf); err != nil {
		return err
	}
	return bucket.Put(heightBytes(height), buf.Bytes())
}

func (s *Store) readHeaderTx(bucket kvdb.RBucket, height int32) (*chain.Header, error) {
	raw := bucket.Get(heightBytes(height))
	if raw == nil {
		return nil, ErrHeightNotFound
	}

	var wh wire.BlockHeader
	if err := wh.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return chain.New(wh, s.scrypt), nil
}

func (s *Store) candidateTop() (int32, error) {
	var top int32 = -1
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(candidateBucket)
		c := bucket.ReadCursor()
		k, _ := c.Last()
		if k == nil {
			return nil
		}
		top = int32(binary.BigEndian.Uint32(k))
		return nil
	}, func() {})
	return top, err
}

func (s *Store) confirmedTop() (int32, error) {
	var height int32
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		meta := tx.ReadBucket(metaBucket)
		raw := meta.Get(confirmedHeightKey)
		if raw == nil {
			return fmt.Errorf("chainindex: store not initialized")
		}
		height = parseHeightLE(raw)
		return nil
	}, func() {})
	return height, err
}

func (s *Store) topHeight(candidate bool) int32 {
	var (
		height int32
		err    error
	)
	if candidate {
		height, err = s.candidateTop()
	} else {
		height, err = s.confirmedTop()
	}
	if err != nil {
		return UnknownTop
	}
	return height
}

// UnknownTop is returned by TopHeight when the requested chain's tip cannot
// be determined (e.g. an uninitialized store).
const UnknownTop = -1

// TopHeight implements FastChainIndex.
func (s *Store) TopHeight(candidate bool) int32 {
	return s.topHeight(candidate)
}

// Header implements FastChainIndex.
func (s *Store) Header(height int32, candidate bool) (*chain.Header, error) {
	top := s.topHeight(candidate)
	if height < 0 || height > top {
		return nil, ErrHeightNotFound
	}

	var h *chain.Header
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(candidateBucket)
		hdr, err := s.readHeaderTx(bucket, height)
		if err != nil {
			return err
		}
		h = hdr
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}
	h.SetHeight(height)
	return h, nil
}

// Bits implements FastChainIndex.
func (s *Store) Bits(height int32, candidate bool) (uint32, error) {
	h, err := s.Header(height, candidate)
	if err != nil {
		return 0, err
	}
	return h.Bits(), nil
}

// Version implements FastChainIndex.
func (s *Store) Version(height int32, candidate bool) (int32, error) {
	h, err := s.Header(height, candidate)
	if err != nil {
		return 0, err
	}
	return h.Version(), nil
}

// Timestamp implements FastChainIndex.
func (s *Store) Timestamp(height int32, candidate bool) (int64, error) {
	h, err := s.Header(height, candidate)
	if err != nil {
		return 0, err
	}
	return h.Timestamp(), nil
}

// HeaderHash implements FastChainIndex.
func (s *Store) HeaderHash(height int32, candidate bool) (chainhash.Hash, error) {
	h, err := s.Header(height, candidate)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return h.Hash(), nil
}

// LookupHeight implements FastChainIndex.
func (s *Store) LookupHeight(hash chainhash.Hash) (int32, bool) {
	var (
		height int32
		found  bool
	)
	_ = kvdb.View(s.db, func(tx kvdb.RTx) error {
		idx := tx.ReadBucket(hashIndexBucket)
		raw := idx.Get(hash[:])
		if raw == nil {
			return nil
		}
		height = parseHeightLE(raw)
		found = true
		return nil
	}, func() {})
	return height, found
}

// Work implements FastChainIndex.
func (s *Store) Work(requiredOut *big.Int, accumulated *big.Int,
	fromHeight int32, _ bool) bool {

	requiredOut.SetInt64(0)

	ok := true
	_ = kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(candidateBucket)
		top := s.topHeight(false)

		for height := fromHeight; height <= top; height++ {
			h, err := s.readHeaderTx(bucket, height)
			if err != nil {
				ok = false
				return nil
			}
			requiredOut.Add(requiredOut, chain.CalcWork(h.Bits()))
			if requiredOut.Cmp(accumulated) > 0 {
				return nil
			}
		}
		return nil
	}, func() {})

	return ok
}

// Reorganize implements FastChainIndex as a single crash-atomic kvdb
// transaction: it validates the fork point still matches the indexed
// header at that height, deletes every hash-index entry above it, writes
// the replacement headers, and only then commits.
func (s *Store) Reorganize(fork chain.ForkPoint, branchHeaders []*chain.Header) error {
	return kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(candidateBucket)
		hashIdx := tx.ReadWriteBucket(hashIndexBucket)
		meta := tx.ReadWriteBucket(metaBucket)

		existing, err := s.readHeaderTx(bucket, fork.Height)
		if err != nil {
			return err
		}
		if existing.Hash() != fork.Hash {
			return ErrHashNotFound
		}

		// Truncate the candidate bucket above the fork point.
		top := s.topHeight(true)
		for height := fork.Height + 1; height <= top; height++ {
			stale, err := s.readHeaderTx(bucket, height)
			if err == nil {
				staleHash := stale.Hash()
				if err := hashIdx.Delete(staleHash[:]); err != nil {
					return err
				}
			}
			if err := bucket.Delete(heightBytes(height)); err != nil {
				return err
			}
		}

		for i, h := range branchHeaders {
			height := fork.Height + 1 + int32(i)
			h.SetHeight(height)
			if err := s.putHeaderTx(tx, height, h); err != nil {
				return err
			}
			hh := h.Hash()
			if err := hashIdx.Put(hh[:], heightBytesLE(height)); err != nil {
				return err
			}
		}

		confirmedRaw := meta.Get(confirmedHeightKey)
		confirmed := parseHeightLE(confirmedRaw)
		if confirmed > fork.Height {
			if err := meta.Put(confirmedHeightKey, heightBytesLE(fork.Height)); err != nil {
				return err
			}
		}

		return nil
	}, func() {})
}
