// Package fees implements fixed-point fee arithmetic. Trade, protocol, fund
// and creator rates are numerators over FeeRateDenominator; the discount
// rate for settlement-token payment is in basis points over
// DiscountRateDenominator.
package fees

import (
	errorsmod "cosmossdk.io/errors"
	"lukechampine.com/uint128"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/mathutil"
)

const (
	FeeRateDenominator      uint64 = 1_000_000
	DiscountRateDenominator uint64 = 10_000
)

// Rates is the fee schedule of one AMM config.
type Rates struct {
	Trade    uint64
	Protocol uint64
	Fund     uint64
	Creator  uint64
}

// ValidateRates enforces the invariants every config write must hold.
func ValidateRates(r Rates) error {
	if r.Trade+r.Creator >= FeeRateDenominator {
		return errorsmod.Wrapf(ammerr.ErrInvalidInput, "trade fee rate %d + creator fee rate %d must be below %d", r.Trade, r.Creator, FeeRateDenominator)
	}
	if r.Protocol > FeeRateDenominator || r.Fund > FeeRateDenominator {
		return errorsmod.Wrapf(ammerr.ErrInvalidInput, "protocol fee rate %d and fund fee rate %d must not exceed %d", r.Protocol, r.Fund, FeeRateDenominator)
	}
	if r.Protocol+r.Fund > FeeRateDenominator {
		return errorsmod.Wrapf(ammerr.ErrInvalidInput, "protocol fee rate %d + fund fee rate %d exceeds %d", r.Protocol, r.Fund, FeeRateDenominator)
	}
	return nil
}

// ValidateDiscountRate accepts 1..9999 basis points.
func ValidateDiscountRate(rate uint64) error {
	if rate == 0 || rate >= DiscountRateDenominator {
		return errorsmod.Wrapf(ammerr.ErrInvalidInput, "discount rate %d must be within (0, %d)", rate, DiscountRateDenominator)
	}
	return nil
}

// MulDivFloor returns floor(amount * numerator / denominator).
func MulDivFloor(amount uint128.Uint128, numerator, denominator uint64) (uint128.Uint128, error) {
	return mathutil.MulDiv(amount, mathutil.U128(numerator), mathutil.U128(denominator))
}

// MulDivCeil returns ceil(amount * numerator / denominator).
func MulDivCeil(amount uint128.Uint128, numerator, denominator uint64) (uint128.Uint128, error) {
	return mathutil.MulDivCeil(amount, mathutil.U128(numerator), mathutil.U128(denominator))
}

// TradingFee is floor(amount * tradeFeeRate / FeeRateDenominator), taken
// from the swap input.
func TradingFee(amount uint128.Uint128, tradeFeeRate uint64) (uint128.Uint128, error) {
	return MulDivFloor(amount, tradeFeeRate, FeeRateDenominator)
}

// CreatorFee is floor(amount * creatorFeeRate / FeeRateDenominator). amount
// is the input or the gross output depending on the pool's creator fee side.
func CreatorFee(amount uint128.Uint128, creatorFeeRate uint64) (uint128.Uint128, error) {
	return MulDivFloor(amount, creatorFeeRate, FeeRateDenominator)
}

// ProtocolFee is the protocol share of an already computed trade fee.
func ProtocolFee(tradeFee uint128.Uint128, protocolFeeRate uint64) (uint128.Uint128, error) {
	return MulDivFloor(tradeFee, protocolFeeRate, FeeRateDenominator)
}

// FundFee is the fund share of an already computed trade fee.
func FundFee(tradeFee uint128.Uint128, fundFeeRate uint64) (uint128.Uint128, error) {
	return MulDivFloor(tradeFee, fundFeeRate, FeeRateDenominator)
}

// Split is a trade fee broken into its recipients. Protocol+Fund+LP always
// equals the trade fee; rounding remainders stay with LP.
type Split struct {
	Protocol uint128.Uint128
	Fund     uint128.Uint128
	LP       uint128.Uint128
}

// SplitTradeFee divides tradeFee between protocol, fund and liquidity
// providers.
func SplitTradeFee(tradeFee uint128.Uint128, protocolFeeRate, fundFeeRate uint64) (Split, error) {
	protocol, err := ProtocolFee(tradeFee, protocolFeeRate)
	if err != nil {
		return Split{}, err
	}
	fund, err := FundFee(tradeFee, fundFeeRate)
	if err != nil {
		return Split{}, err
	}
	carved, err := mathutil.Add(protocol, fund)
	if err != nil {
		return Split{}, err
	}
	lp, err := mathutil.Sub(tradeFee, carved)
	if err != nil {
		return Split{}, errorsmod.Wrapf(ammerr.ErrMathOverflow, "protocol %s + fund %s exceed trade fee %s", protocol, fund, tradeFee)
	}
	return Split{Protocol: protocol, Fund: fund, LP: lp}, nil
}

// ReduceTradeFeeRate removes the protocol portion from the trade fee rate for
// swaps whose protocol cut is paid separately. portion is
// floor(trade * protocol / 10^6) and reduced is trade - portion, so liquidity
// providers keep their full nominal share.
func ReduceTradeFeeRate(tradeFeeRate, protocolFeeRate uint64) (reduced, portion uint64, err error) {
	p, err := MulDivFloor(mathutil.U128(tradeFeeRate), protocolFeeRate, FeeRateDenominator)
	if err != nil {
		return 0, 0, err
	}
	portion, err = mathutil.ToUint64(p)
	if err != nil {
		return 0, 0, err
	}
	if portion > tradeFeeRate {
		return 0, 0, errorsmod.Wrapf(ammerr.ErrMathOverflow, "protocol portion %d exceeds trade fee rate %d", portion, tradeFeeRate)
	}
	return tradeFeeRate - portion, portion, nil
}

// DiscountedFee applies a basis-point discount: floor(amount * (10^4 - rate) / 10^4).
func DiscountedFee(amount uint64, discountRate uint64) (uint64, error) {
	if discountRate > DiscountRateDenominator {
		return 0, errorsmod.Wrapf(ammerr.ErrMathOverflow, "discount rate %d", discountRate)
	}
	v, err := MulDivFloor(mathutil.U128(amount), DiscountRateDenominator-discountRate, DiscountRateDenominator)
	if err != nil {
		return 0, err
	}
	return mathutil.ToUint64(v)
}

// PreFeeAmount inverts a fee deduction: the smallest gross amount whose
// post-fee value covers postFeeAmount, ceil(post * 10^6 / (10^6 - rate)).
func PreFeeAmount(postFeeAmount uint128.Uint128, feeRate uint64) (uint128.Uint128, error) {
	if feeRate >= FeeRateDenominator {
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrMathOverflow, "fee rate %d", feeRate)
	}
	if feeRate == 0 {
		return postFeeAmount, nil
	}
	return MulDivCeil(postFeeAmount, FeeRateDenominator, FeeRateDenominator-feeRate)
}
