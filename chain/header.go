// Package chain defines the immutable header type, the chain-state snapshot
// it is validated against, and the branch structure used to anchor a run of
// pending headers back to an indexed ancestor.
package chain

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/scrypt"
)

// UnknownHeight is the sentinel height of a header that has not yet been
// anchored to an indexed ancestor.
const UnknownHeight = -1

// HashFunc computes the proof-of-work hash of a serialized 80-byte header.
// Bitcoin-derived networks use double-SHA256; scrypt-derived networks (e.g.
// Litecoin-style forks) use scrypt with the canonical N=1024, r=1, p=1
// parameters.
type HashFunc func(header *wire.BlockHeader) chainhash.Hash

// DoubleSHA256 is the standard Bitcoin header hash.
func DoubleSHA256(header *wire.BlockHeader) chainhash.Hash {
	return header.BlockHash()
}

// Scrypt is the Litecoin-style proof-of-work hash. It is deliberately
// distinct from the header's identity hash (which remains double-SHA256 for
// merkle/locator purposes on those networks); callers that need the PoW hash
// for target comparison should use this, not BlockHash.
func Scrypt(header *wire.BlockHeader) chainhash.Hash {
	var buf bytes.Buffer
	// Serialization errors are impossible for a fixed 80-byte header.
	_ = header.Serialize(&buf)

	digest, err := scrypt.Key(buf.Bytes(), buf.Bytes(), 1024, 1, 1, 32)
	if err != nil {
		// Only possible for invalid scrypt parameters, which are
		// constant here.
		panic(fmt.Sprintf("scrypt: %v", err))
	}

	var hash chainhash.Hash
	copy(hash[:], digest)
	return hash
}

// Header wraps the canonical 80-byte wire header with the write-once
// metadata the organizer publishes under its write lock: whether the header
// has been validated, the chain-state snapshot it was validated against, and
// the height it was anchored at. The wire header itself is never mutated
// after construction; every reader may hold a reference to a Header
// concurrently.
type Header struct {
	Wire wire.BlockHeader

	hash     chainhash.Hash
	powHash  chainhash.Hash
	useScryp bool

	// metaMu guards the one-time publication of validated/state/height,
	// which happens under the organizer's write lock, per the write-once
	// contract in spec §3.
	metaMu    sync.Mutex
	validated bool
	state     *State
	height    int32
}

// New constructs a Header from a wire header, computing both its identity
// hash and its proof-of-work hash up front since headers are immutable.
func New(wh wire.BlockHeader, scryptPoW bool) *Header {
	h := &Header{
		Wire:     wh,
		hash:     wh.BlockHash(),
		useScryp: scryptPoW,
		height:   UnknownHeight,
	}
	if scryptPoW {
		h.powHash = Scrypt(&wh)
	} else {
		h.powHash = h.hash
	}
	return h
}

// Hash returns the header's identity hash (double-SHA256 of the 80-byte
// serialization, regardless of the network's proof-of-work function).
func (h *Header) Hash() chainhash.Hash { return h.hash }

// PowHash returns the hash used for proof-of-work comparison, which differs
// from Hash on scrypt networks.
func (h *Header) PowHash() chainhash.Hash { return h.powHash }

// PrevHash returns the hash of the header's claimed parent.
func (h *Header) PrevHash() chainhash.Hash { return h.Wire.PrevBlock }

// Bits returns the compact-encoded target for this header.
func (h *Header) Bits() uint32 { return h.Wire.Bits }

// Version returns the header's version field.
func (h *Header) Version() int32 { return h.Wire.Version }

// Timestamp returns the header's timestamp as Unix seconds.
func (h *Header) Timestamp() int64 { return h.Wire.Timestamp.Unix() }

// Nonce returns the header's nonce.
func (h *Header) Nonce() uint32 { return h.Wire.Nonce }

// Height returns the branch-anchored height of this header, or UnknownHeight
// if it has not yet been anchored.
func (h *Header) Height() int32 {
	h.metaMu.Lock()
	defer h.metaMu.Unlock()
	return h.height
}

// SetHeight publishes the header's height exactly once. Subsequent calls
// with a different height are a programmer error and panic, matching the
// write-once invariant on metadata.
func (h *Header) SetHeight(height int32) {
	h.metaMu.Lock()
	defer h.metaMu.Unlock()
	if h.height != UnknownHeight && h.height != height {
		panic(fmt.Sprintf("chain: height already published as %d, "+
			"cannot republish as %d", h.height, height))
	}
	h.height = height
}

// State returns the chain-state snapshot published for this header, or nil
// if it has not yet been populated.
func (h *Header) State() *State {
	h.metaMu.Lock()
	defer h.metaMu.Unlock()
	return h.state
}

// SetState publishes the chain-state snapshot exactly once.
func (h *Header) SetState(state *State) {
	h.metaMu.Lock()
	defer h.metaMu.Unlock()
	if h.state != nil {
		return
	}
	h.state = state
}

// Validated reports whether this header has already been accepted, either by
// this organizer or by an upstream full-block validation pass that covered
// it (in which case accept-stage contextual checks are short-circuited).
func (h *Header) Validated() bool {
	h.metaMu.Lock()
	defer h.metaMu.Unlock()
	return h.validated
}

// SetValidated publishes the validated flag exactly once.
func (h *Header) SetValidated() {
	h.metaMu.Lock()
	defer h.metaMu.Unlock()
	h.validated = true
}

// Serialize writes the canonical little-endian 80-byte wire form.
func (h *Header) Serialize(w *bytes.Buffer) error {
	return h.Wire.Serialize(w)
}

// String renders a short diagnostic identifier for logging.
func (h *Header) String() string {
	return fmt.Sprintf("%s (height=%d)", h.hash, h.Height())
}
