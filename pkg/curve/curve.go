// Package curve solves constant-product swaps. All functions are pure: they
// take reserves and rates by value and return either a complete SwapResult
// or an error, never a partial result.
package curve

import (
	errorsmod "cosmossdk.io/errors"
	"lukechampine.com/uint128"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/fees"
	"cpswap/pkg/mathutil"
)

// Params describes one side-oriented swap against a pool.
type Params struct {
	// Amount is amount_in for exact-input swaps and amount_out for
	// exact-output swaps, net of any token transfer fee.
	Amount            uint64
	InputReserve      uint64
	OutputReserve     uint64
	Rates             fees.Rates
	CreatorFeeOnInput bool
}

// SwapResult is the full outcome of a swap. InputAmount is what enters the
// input vault, OutputAmount what leaves the output vault. The new reserves
// exclude protocol, fund and creator fees, which accrue separately.
type SwapResult struct {
	InputAmount      uint64
	OutputAmount     uint64
	TradeFee         uint64
	ProtocolFee      uint64
	FundFee          uint64
	CreatorFee       uint64
	LPFee            uint64
	NewInputReserve  uint64
	NewOutputReserve uint64
}

// SwapBaseInput solves for the output of a fixed input amount.
func SwapBaseInput(p Params) (SwapResult, error) {
	if err := checkReserves(p); err != nil {
		return SwapResult{}, err
	}
	if p.Amount == 0 {
		return SwapResult{}, errorsmod.Wrap(ammerr.ErrZeroTradingTokens, "zero input amount")
	}
	amountIn := mathutil.U128(p.Amount)

	tradeFee, err := fees.TradingFee(amountIn, p.Rates.Trade)
	if err != nil {
		return SwapResult{}, err
	}
	creatorFee := uint128.Zero
	if p.CreatorFeeOnInput {
		if creatorFee, err = fees.CreatorFee(amountIn, p.Rates.Creator); err != nil {
			return SwapResult{}, err
		}
	}
	totalFee, err := mathutil.Add(tradeFee, creatorFee)
	if err != nil {
		return SwapResult{}, err
	}
	netIn, err := mathutil.Sub(amountIn, totalFee)
	if err != nil {
		return SwapResult{}, err
	}

	swapped, err := outputWithoutFees(netIn, p.InputReserve, p.OutputReserve)
	if err != nil {
		return SwapResult{}, err
	}
	amountOut := swapped
	if !p.CreatorFeeOnInput {
		if creatorFee, err = fees.CreatorFee(swapped, p.Rates.Creator); err != nil {
			return SwapResult{}, err
		}
		if amountOut, err = mathutil.Sub(swapped, creatorFee); err != nil {
			return SwapResult{}, err
		}
	}
	if amountOut.IsZero() {
		return SwapResult{}, errorsmod.Wrapf(ammerr.ErrZeroTradingTokens, "input %d yields no output", p.Amount)
	}

	return assemble(p, amountIn, amountOut, netIn, swapped, tradeFee, creatorFee)
}

// SwapBaseOutput solves for the input required to receive a fixed output.
func SwapBaseOutput(p Params) (SwapResult, error) {
	if err := checkReserves(p); err != nil {
		return SwapResult{}, err
	}
	if p.Amount == 0 {
		return SwapResult{}, errorsmod.Wrap(ammerr.ErrZeroTradingTokens, "zero output amount")
	}
	amountOut := mathutil.U128(p.Amount)

	var err error
	creatorFee := uint128.Zero
	swapped := amountOut
	if !p.CreatorFeeOnInput {
		if swapped, err = fees.PreFeeAmount(amountOut, p.Rates.Creator); err != nil {
			return SwapResult{}, err
		}
		creatorFee = swapped.Sub(amountOut)
	}

	netIn, err := inputWithoutFees(swapped, p.InputReserve, p.OutputReserve)
	if err != nil {
		return SwapResult{}, err
	}

	var amountIn, tradeFee uint128.Uint128
	if p.CreatorFeeOnInput {
		combined := p.Rates.Trade + p.Rates.Creator
		if amountIn, err = fees.PreFeeAmount(netIn, combined); err != nil {
			return SwapResult{}, err
		}
		totalFee := amountIn.Sub(netIn)
		if combined > 0 {
			if creatorFee, err = fees.MulDivFloor(totalFee, p.Rates.Creator, combined); err != nil {
				return SwapResult{}, err
			}
		}
		tradeFee = totalFee.Sub(creatorFee)
	} else {
		if amountIn, err = fees.PreFeeAmount(netIn, p.Rates.Trade); err != nil {
			return SwapResult{}, err
		}
		tradeFee = amountIn.Sub(netIn)
	}
	if amountIn.IsZero() {
		return SwapResult{}, errorsmod.Wrapf(ammerr.ErrZeroTradingTokens, "output %d requires no input", p.Amount)
	}

	return assemble(p, amountIn, amountOut, netIn, swapped, tradeFee, creatorFee)
}

func assemble(p Params, amountIn, amountOut, netIn, swapped, tradeFee, creatorFee uint128.Uint128) (SwapResult, error) {
	split, err := fees.SplitTradeFee(tradeFee, p.Rates.Protocol, p.Rates.Fund)
	if err != nil {
		return SwapResult{}, err
	}

	newIn, err := mathutil.Add(mathutil.U128(p.InputReserve), netIn)
	if err != nil {
		return SwapResult{}, err
	}
	if newIn, err = mathutil.Add(newIn, split.LP); err != nil {
		return SwapResult{}, err
	}
	newOut, err := mathutil.Sub(mathutil.U128(p.OutputReserve), swapped)
	if err != nil {
		return SwapResult{}, err
	}

	var r SwapResult
	for _, f := range []struct {
		dst *uint64
		v   uint128.Uint128
	}{
		{&r.InputAmount, amountIn},
		{&r.OutputAmount, amountOut},
		{&r.TradeFee, tradeFee},
		{&r.ProtocolFee, split.Protocol},
		{&r.FundFee, split.Fund},
		{&r.CreatorFee, creatorFee},
		{&r.LPFee, split.LP},
		{&r.NewInputReserve, newIn},
		{&r.NewOutputReserve, newOut},
	} {
		v, err := mathutil.ToUint64(f.v)
		if err != nil {
			return SwapResult{}, err
		}
		*f.dst = v
	}
	return r, nil
}

// outputWithoutFees is reserve_out - ceil(reserve_in * reserve_out / (reserve_in + net_in)),
// which is the floor of the exact output and never lowers the product.
func outputWithoutFees(netIn uint128.Uint128, reserveIn, reserveOut uint64) (uint128.Uint128, error) {
	k := ConstantProduct(reserveIn, reserveOut)
	denominator, err := mathutil.Add(mathutil.U128(reserveIn), netIn)
	if err != nil {
		return uint128.Zero, err
	}
	remaining, err := mathutil.CeilDiv(k, denominator)
	if err != nil {
		return uint128.Zero, err
	}
	return mathutil.Sub(mathutil.U128(reserveOut), remaining)
}

// inputWithoutFees is ceil(reserve_in * out / (reserve_out - out)).
func inputWithoutFees(out uint128.Uint128, reserveIn, reserveOut uint64) (uint128.Uint128, error) {
	if out.Cmp64(reserveOut) >= 0 {
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrZeroTradingTokens, "output %s drains reserve %d", out, reserveOut)
	}
	numerator, err := mathutil.Mul(mathutil.U128(reserveIn), out)
	if err != nil {
		return uint128.Zero, err
	}
	return mathutil.CeilDiv(numerator, mathutil.U128(reserveOut).Sub(out))
}

func checkReserves(p Params) error {
	if p.InputReserve == 0 || p.OutputReserve == 0 {
		return errorsmod.Wrapf(ammerr.ErrInvalidInput, "empty reserves %d/%d", p.InputReserve, p.OutputReserve)
	}
	return nil
}

// ConstantProduct is reserve_a * reserve_b. Two u64 factors always fit.
func ConstantProduct(reserveA, reserveB uint64) uint128.Uint128 {
	return uint128.From64(reserveA).Mul64(reserveB)
}

// CheckInvariant fails unless the product of the new reserves is at least
// the product of the old ones.
func CheckInvariant(oldIn, oldOut, newIn, newOut uint64) error {
	before := ConstantProduct(oldIn, oldOut)
	after := ConstantProduct(newIn, newOut)
	if after.Cmp(before) < 0 {
		return errorsmod.Wrapf(ammerr.ErrInvariantViolated, "k before %s, after %s", before, after)
	}
	return nil
}
