package fees

import (
	"cpswap/pkg/mathutil"
)

const TransferFeeBasisPointsMax uint16 = 10_000

// TransferFeeConfig is the epoch-resolved transfer fee of a Token-2022 mint.
// The zero value charges nothing.
type TransferFeeConfig struct {
	BasisPoints uint16
	MaximumFee  uint64
}

// Fee is withheld from amount on transfer: min(ceil(amount * bps / 10^4), max).
func (c TransferFeeConfig) Fee(amount uint64) uint64 {
	if c.BasisPoints == 0 || amount == 0 {
		return 0
	}
	fee, err := MulDivCeil(mathutil.U128(amount), uint64(c.BasisPoints), uint64(TransferFeeBasisPointsMax))
	if err != nil {
		return c.MaximumFee
	}
	return mathutil.Min64(fee.Lo, c.MaximumFee)
}

// InverseFee is the fee to add on top of postFeeAmount so that the receiver
// nets exactly postFeeAmount.
func (c TransferFeeConfig) InverseFee(postFeeAmount uint64) uint64 {
	if c.BasisPoints == 0 || postFeeAmount == 0 {
		return 0
	}
	if c.BasisPoints >= TransferFeeBasisPointsMax {
		return c.MaximumFee
	}
	preFee, err := MulDivCeil(mathutil.U128(postFeeAmount), uint64(TransferFeeBasisPointsMax), uint64(TransferFeeBasisPointsMax-c.BasisPoints))
	if err != nil || preFee.Hi != 0 || preFee.Lo-postFeeAmount >= c.MaximumFee {
		return c.MaximumFee
	}
	return c.Fee(preFee.Lo)
}

// NetAmount is what the receiver gets when amount is sent.
func (c TransferFeeConfig) NetAmount(amount uint64) uint64 {
	return amount - c.Fee(amount)
}
