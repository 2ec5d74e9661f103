package populate

import (
	"sort"

	"github.com/lightninglabs/headerchain/chain"
)

// medianTimePast computes the median of the timestamps at heights
// [max(0, height-window), height-1], matching spec §3's invariant that the
// window uses exactly `window` samples once height >= window, and fewer
// only in the genesis prefix.
func medianTimePast(s *sampler, height int32, window int32) (int64, error) {
	start := height - window
	if start < 0 {
		start = 0
	}

	timestamps := make([]int64, 0, window)
	for h := start; h < height; h++ {
		ts, err := s.Timestamp(h)
		if err != nil {
			return 0, err
		}
		timestamps = append(timestamps, ts)
	}

	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i] < timestamps[j]
	})

	return timestamps[len(timestamps)/2], nil
}

// versionCounts tallies header versions over
// [max(0, height-window), height-1], used to gate legacy soft-fork
// activation (spec §3, §4.C).
func versionCounts(s *sampler, height int32, window int32) (map[int32]int, error) {
	start := height - window
	if start < 0 {
		start = 0
	}

	counts := make(map[int32]int)
	for h := start; h < height; h++ {
		v, err := s.Version(h)
		if err != nil {
			return nil, err
		}
		counts[v]++
	}

	return counts, nil
}

// bip9States computes the per-bit deployment state at height by walking
// the retarget-period boundaries from genesis forward, tallying signal
// counts per period along the way. This recomputes history on every call
// rather than maintaining an incremental cache (unlike btcd's
// thresholdStateCache), trading some redundant work for the populator's
// read-only, lock-free concurrency requirement (spec §4.C): a cache would
// need its own synchronization.
func (p *Populator) bip9States(s *sampler, height int32) (
	map[chain.DeploymentBit]chain.BIP9Status, error) {

	out := make(map[chain.DeploymentBit]chain.BIP9Status, len(p.cfg.Deployments))

	for _, dep := range p.cfg.Deployments {
		status, err := computeBIP9Status(s, dep, height)
		if err != nil {
			return nil, err
		}
		out[dep.Bit] = status
	}

	return out, nil
}

// computeBIP9Status walks every concluded retarget period up to height's
// own period, applying dep's state transition at each boundary.
func computeBIP9Status(s *sampler, dep chain.DeploymentParams, height int32) (
	chain.BIP9Status, error) {

	interval := dep.RetargetInterval
	if interval <= 0 {
		interval = 2016
	}

	periodStart := dep.PeriodStart(height)

	state := chain.BIP9Defined
	sinceHeight := int32(0)

	for p := int32(0); p < periodStart; p += interval {
		count, err := signalCountInPeriod(s, dep, p, interval)
		if err != nil {
			return chain.BIP9Status{}, err
		}

		next := dep.NextState(state, p, count)
		if next != state {
			sinceHeight = p + interval
		}
		state = next
	}

	return chain.BIP9Status{
		State:            state,
		SinceHeight:      sinceHeight,
		RetargetStartsAt: periodStart,
	}, nil
}

// signalCountInPeriod counts, over heights [periodStart, periodStart+interval-1]
// clamped to what the sampler can see, how many headers signal dep.Bit.
func signalCountInPeriod(s *sampler, dep chain.DeploymentParams,
	periodStart int32, interval int32) (int, error) {

	top := s.topHeight()
	end := periodStart + interval - 1
	if end > top {
		end = top
	}

	count := 0
	for h := periodStart; h <= end; h++ {
		if h < 0 {
			continue
		}
		v, err := s.Version(h)
		if err != nil {
			return 0, err
		}
		if chain.SignalsBit(v, dep.Bit) {
			count++
		}
	}

	return count, nil
}
