// Package organize implements the Header Organizer (spec §4.E): the
// single-writer coordinator that drives the header pool and validator,
// computes accumulated work, and decides reorganization via the chain
// index. Grounded on spec §9's guidance to collapse the source's
// callback-chained control flow (check -> accept -> handle_accept ->
// handle_complete) into a synchronous sequence run on a worker task, with
// the callback surfacing only at the public boundary.
package organize

import (
	"math/big"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainerr"
	"github.com/lightninglabs/headerchain/chainindex"
	"github.com/lightninglabs/headerchain/dispatcher"
	"github.com/lightninglabs/headerchain/validate"
)

// Handler receives the outcome of one Organize call, invoked exactly once
// from a goroutine not holding the write lock (spec §4.E).
type Handler func(code chainerr.OutcomeCode, err error)

// Pool is the subset of headerpool.Pool the organizer depends on.
type Pool interface {
	Add(header *chain.Header, height int32)
	GetBranch(header *chain.Header) *chain.Branch
	Remove(hash chainhash.Hash)
	Len() int
	EvictStale(maxAge time.Duration) int
}

// Validator is the subset of validate.Validator the organizer depends on.
type Validator interface {
	Check(header *chain.Header, now time.Time) error
	Accept(branch *chain.Branch, checkpoints validate.CheckpointSet,
		candidate bool) (*chain.State, error)
}

// Config configures an Organizer.
type Config struct {
	Pool        Pool
	Index       chainindex.FastChainIndex
	Validator   Validator
	Checkpoints validate.CheckpointSet

	// Concurrency sizes the dispatcher's worker pool.
	Concurrency int

	// EvictionInterval and EvictionMaxAge drive the background
	// low-priority pool sweep (spec §5's "bulk background jobs").
	// EvictionInterval of zero disables the sweep.
	EvictionInterval time.Duration
	EvictionMaxAge   time.Duration
}

// Organizer is the header-chain organizer core.
type Organizer struct {
	cfg  Config
	lock *PrioRWLock
	disp *dispatcher.Dispatcher
	metr *metrics

	stopped int32

	sweep *sweeper
}

// New constructs an Organizer. Call Start before submitting headers.
func New(cfg Config) *Organizer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	o := &Organizer{
		cfg:  cfg,
		lock: NewPrioRWLock(),
		disp: dispatcher.New(cfg.Concurrency),
		metr: newMetrics(),
	}

	if cfg.EvictionInterval > 0 {
		o.sweep = newSweeper(o.lock, cfg.Pool, cfg.EvictionInterval,
			cfg.EvictionMaxAge)
	}

	return o
}

// RegisterMetrics registers the organizer's Prometheus collectors with the
// default registry.
func (o *Organizer) RegisterMetrics() {
	o.metr.register()
}

// Start begins the background low-priority eviction sweep, if configured.
func (o *Organizer) Start() error {
	if o.sweep != nil {
		o.sweep.start()
	}
	return nil
}

// Stop marks the organizer stopped: in-flight and subsequently submitted
// Organize calls complete promptly with a service_stopped outcome, and the
// background sweep (if any) is halted. Stop waits for dispatcher jobs that
// have already started running to return; those still complete normally
// unless they observe the stopped flag at one of their own checks.
func (o *Organizer) Stop() error {
	atomic.StoreInt32(&o.stopped, 1)
	if o.sweep != nil {
		o.sweep.stop()
	}
	o.disp.Stop()
	return nil
}

func (o *Organizer) isStopped() bool {
	return atomic.LoadInt32(&o.stopped) != 0
}

// Organize submits header for organization (spec §4.E). callback is invoked
// exactly once, asynchronously, with the outcome. Once the organizer is
// stopped, the check happens here, before the dispatcher is touched at
// all — posting to a stopped dispatcher's job queue races against its own
// closed quit channel and could otherwise drop the job silently.
func (o *Organizer) Organize(header *chain.Header, callback Handler) {
	if o.isStopped() {
		go o.complete(callback, chainerr.ServiceStopped,
			chainerr.New(chainerr.ServiceStopped, "organizer stopped"))
		return
	}

	o.disp.Post(func() {
		o.run(header, callback)
	})
}

func (o *Organizer) run(header *chain.Header, callback Handler) {
	if o.isStopped() {
		o.complete(callback, chainerr.ServiceStopped,
			chainerr.New(chainerr.ServiceStopped, "organizer stopped"))
		return
	}

	// Step 1: context-free check. Never acquire the lock on failure.
	if err := o.cfg.Validator.Check(header, time.Now()); err != nil {
		o.complete(callback, chainerr.CodeOf(err), err)
		return
	}

	code, err := o.organizeLocked(header)
	o.complete(callback, code, err)
}

func (o *Organizer) complete(callback Handler, code chainerr.OutcomeCode, err error) {
	o.metr.observeOutcome(code)
	if code.Fatal() {
		log.Criticalf("fatal organize outcome: %v: %v", code, err)
	}
	callback(code, err)
}

// organizeLocked runs steps 2-8 of spec §4.E under the high-priority write
// lock, which is released on every return path via defer — the lock
// discipline property in spec §8.
func (o *Organizer) organizeLocked(header *chain.Header) (chainerr.OutcomeCode, error) {
	o.lock.LockHigh()
	defer o.lock.Unlock()

	if o.isStopped() {
		return chainerr.ServiceStopped,
			chainerr.New(chainerr.ServiceStopped, "organizer stopped")
	}

	branch := o.cfg.Pool.GetBranch(header)

	if branch.Empty() {
		return chainerr.DuplicateBlock, nil
	}

	if branch.Orphan() {
		o.cfg.Pool.Add(header, chain.UnknownHeight)
		return chainerr.OrphanBlock, nil
	}

	if _, err := o.cfg.Validator.Accept(branch, o.cfg.Checkpoints, true); err != nil {
		return chainerr.CodeOf(err), err
	}

	branchWork := branch.Work()
	fork := branch.ForkPoint()

	required := new(big.Int)
	if ok := o.cfg.Index.Work(required, branchWork, fork.Height+1, true); !ok {
		return chainerr.OperationFailed, chainerr.New(
			chainerr.OperationFailed,
			"index read failure while accounting branch work")
	}

	if branchWork.Cmp(required) <= 0 {
		o.cfg.Pool.Add(branch.Top(), branch.TopHeight())
		o.metr.poolSize.Set(float64(o.cfg.Pool.Len()))
		return chainerr.InsufficientWork, nil
	}

	oldTop := o.cfg.Index.TopHeight(true)
	if err := o.cfg.Index.Reorganize(fork, branch.Headers()); err != nil {
		return chainerr.StoreCorrupted, err
	}

	for _, h := range branch.Headers() {
		o.cfg.Pool.Remove(h.Hash())
	}

	o.metr.candidateHeight.Set(float64(branch.TopHeight()))
	o.metr.lastReorgDepth.Set(float64(oldTop - fork.Height))
	o.metr.poolSize.Set(float64(o.cfg.Pool.Len()))

	return chainerr.Success, nil
}

// TopHeight returns the candidate chain's current tip height, a convenience
// reader wrapper matching populate_chain_state(at_top, ...) from spec §6.
func (o *Organizer) TopHeight() int32 {
	return o.cfg.Index.TopHeight(true)
}
