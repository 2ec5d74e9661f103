package populate

import (
	"math/big"

	"github.com/lightninglabs/headerchain/chain"
)

// RetargetFunc computes the required compact target for height, given a
// sampler that can read ancestor fields and the configured retarget
// interval and proof-of-work limit. Spec §4.C leaves the exact retarget
// rule as "a callable returning the needed heights [and computing the next
// target]"; this package ships the classic Bitcoin rule (adjust every
// retargetInterval headers by the elapsed-time ratio, clamped to a 4x
// factor and the pow limit) as the default, grounded on the well-known
// algorithm btcd's unvendored difficulty.go implements, built here from the
// CalcWork/CompactToBig primitives already reconstructed in the chain
// package.
type RetargetFunc func(s *sampler, height int32, retargetInterval int32,
	powLimitBits uint32) (uint32, error)

// DefaultRetarget implements the classic rule: every retargetInterval
// headers, compare the timespan between the first and last header of the
// just-completed period against the ideal timespan and scale the previous
// target accordingly, clamped to [idealTimespan/4, idealTimespan*4] and to
// powLimitBits.
func DefaultRetarget(s *sampler, height int32, retargetInterval int32,
	powLimitBits uint32) (uint32, error) {

	if height%retargetInterval != 0 {
		// Not a retarget height: required bits equal the previous
		// header's bits.
		return s.Bits(height - 1)
	}

	if height < retargetInterval {
		return powLimitBits, nil
	}

	lastBits, err := s.Bits(height - 1)
	if err != nil {
		return 0, err
	}

	firstHeight := height - retargetInterval
	firstTimestamp, err := s.Timestamp(firstHeight)
	if err != nil {
		return 0, err
	}
	lastTimestamp, err := s.Timestamp(height - 1)
	if err != nil {
		return 0, err
	}

	actualTimespan := lastTimestamp - firstTimestamp
	idealTimespan := int64(retargetInterval) * targetSpacingSeconds

	minTimespan := idealTimespan / 4
	maxTimespan := idealTimespan * 4
	if actualTimespan < minTimespan {
		actualTimespan = minTimespan
	}
	if actualTimespan > maxTimespan {
		actualTimespan = maxTimespan
	}

	oldTarget := chain.CompactToBig(lastBits)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(idealTimespan))

	powLimit := chain.CompactToBig(powLimitBits)
	if newTarget.Cmp(powLimit) > 0 {
		newTarget = powLimit
	}

	return chain.BigToCompact(newTarget), nil
}

// targetSpacingSeconds is the ideal seconds-per-header used by the default
// retarget rule (Bitcoin's 10-minute target).
const targetSpacingSeconds = 10 * 60
