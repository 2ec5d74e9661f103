package chain

import (
	"math/big"
)

// bigOne is reused in the compact-to-big conversion below.
var bigOne = big.NewInt(1)

// oneLsh256 is 1 shifted left 256 bits, used to compute the work a given
// target represents.
var oneLsh256 = new(big.Int).Lsh(bigOne, 256)

// CompactToBig converts the 32-bit compact representation of a whole number
// N to a big.Int. This is the exact inverse operation of BigToCompact
// and mirrors the "nBits" target encoding used throughout the header's
// `bits` field: the high byte is an exponent, and the three low bytes hold
// the mantissa, with a sign bit in the mantissa's high bit that this core
// never expects to see set on a valid target.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := compact >> 24

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, uint(8*(exponent-3)))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}

	return bn
}

// BigToCompact converts a whole number N to a compact representation using an
// unsigned 32-bit number, the inverse of CompactToBig.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))

	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	return uint32(exponent<<24) | mantissa
}

// HashToBig converts a chainhash.Hash into a big.Int treating the hash as a
// little-endian number, matching the direction headers are compared against
// a target in.
func HashToBig(hash []byte) *big.Int {
	buf := make([]byte, len(hash))
	copy(buf, hash)

	// Reverse the bytes so the big-endian big.Int interprets them
	// correctly, since hashes are stored little-endian.
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}

	return new(big.Int).SetBytes(buf)
}

// CalcWork returns the expected number of hashes required to produce a block
// with the passed bits value, i.e. 2**256 / (target+1).
func CalcWork(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}

	denominator := new(big.Int).Add(target, bigOne)
	return new(big.Int).Div(oneLsh256, denominator)
}
