// Package validate implements the Header Validator (spec §4.D): context-free
// structural/proof-of-work checks in check(), and context-dependent checks
// against a populated chain-state snapshot in accept(). Grounded on
// btcd/blockchain's checkProofOfWork/checkBlockHeaderSanity (validate.go) for
// the context-free checks, generalized from a flags.BehaviorFlags-gated
// single function into two named checks matching the taxonomy in
// chainerr.
package validate

import (
	"time"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainerr"
)

// Config holds the context-free validation parameters named in spec §6.
type Config struct {
	TimestampLimitSeconds uint32
	PowLimitBits          uint32
	Scrypt                bool
}

// Validator runs check() and accept() against a populator and config.
type Validator struct {
	cfg       Config
	populator Populator

	dupCounter dupRateCounter
}

// Populator is the subset of populate.Populator's surface the validator
// depends on, named here to avoid an import cycle and to keep the
// validator's tests independent of the populator's internals.
type Populator interface {
	ForBranch(branch *chain.Branch, candidate bool) (*chain.State, error)
}

// New constructs a Validator.
func New(cfg Config, populator Populator) *Validator {
	return &Validator{cfg: cfg, populator: populator}
}

// Check runs the context-free checks on header (spec §4.D): proof-of-work,
// future-timestamp limit, bits range, and structural sanity. It never
// touches the pool or the index, so it runs before any lock is acquired
// (spec §4.E step 1).
func (v *Validator) Check(header *chain.Header, now time.Time) error {
	if err := v.checkProofOfWork(header); err != nil {
		return err
	}
	if err := v.checkTimestamp(header, now); err != nil {
		return err
	}
	if err := v.checkStructural(header); err != nil {
		return err
	}
	return nil
}

func (v *Validator) checkProofOfWork(header *chain.Header) error {
	target := chain.CompactToBig(header.Bits())
	if target.Sign() <= 0 {
		return chainerr.Newf(chainerr.InvalidBits,
			"target difficulty %064x is too low", target)
	}

	powLimit := chain.CompactToBig(v.cfg.PowLimitBits)
	if target.Cmp(powLimit) > 0 {
		return chainerr.Newf(chainerr.InvalidBits,
			"target difficulty %064x exceeds pow limit %064x",
			target, powLimit)
	}

	powHash := header.PowHash()
	hashNum := chain.HashToBig(powHash[:])
	if hashNum.Cmp(target) > 0 {
		return chainerr.Newf(chainerr.InvalidProofOfWork,
			"hash %064x exceeds target %064x", hashNum, target)
	}

	return nil
}

func (v *Validator) checkTimestamp(header *chain.Header, now time.Time) error {
	limit := now.Add(time.Duration(v.cfg.TimestampLimitSeconds) * time.Second)
	ts := time.Unix(header.Timestamp(), 0)
	if ts.After(limit) {
		return chainerr.Newf(chainerr.InvalidTimestamp,
			"timestamp %v is too far in the future (limit %v)",
			ts, limit)
	}
	return nil
}

func (v *Validator) checkStructural(header *chain.Header) error {
	if header.Version() < 1 {
		return chainerr.Newf(chainerr.InvalidVersion,
			"version %d is not a positive integer", header.Version())
	}

	// A header with a null previous hash is only ever valid for genesis,
	// and genesis is seeded directly into the index by NewStore/NewMemIndex
	// rather than submitted through Organize, so Check never legitimately
	// observes one: reject unconditionally.
	zero := [32]byte{}
	if header.PrevHash() == zero {
		return chainerr.New(chainerr.InvalidBits,
			"non-genesis header has a null previous hash")
	}

	return nil
}

// dupRateCounter implements the Open Question resolution in spec §9: accept-
// stage duplicates are a recoverable result, but the rate is instrumented
// rather than silently absorbed.
type dupRateCounter struct {
	total   uint64
	dups    uint64
}

const dupRateWarnThreshold = 0.5

func (c *dupRateCounter) record(isDuplicate bool) {
	c.total++
	if isDuplicate {
		c.dups++
	}
	if c.total >= 100 {
		rate := float64(c.dups) / float64(c.total)
		if rate > dupRateWarnThreshold {
			log.Warnf("accept-stage duplicate rate is %.0f%% "+
				"over the last %d headers; this may indicate "+
				"a peer resending already-known headers "+
				"rather than a correctness bug", rate*100, c.total)
		}
		c.total, c.dups = 0, 0
	}
}
