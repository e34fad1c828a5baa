package fees

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
	"pgregory.net/rapid"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/mathutil"
)

func TestValidateRates(t *testing.T) {
	tests := []struct {
		name  string
		rates Rates
		ok    bool
	}{
		{"typical", Rates{Trade: 2500, Protocol: 200_000, Fund: 40_000, Creator: 0}, true},
		{"trade plus creator at denominator", Rates{Trade: 600_000, Creator: 400_000}, false},
		{"trade plus creator just below", Rates{Trade: 600_000, Creator: 399_999}, true},
		{"protocol above denominator", Rates{Trade: 2500, Protocol: 1_000_001}, false},
		{"protocol plus fund above denominator", Rates{Trade: 2500, Protocol: 600_000, Fund: 400_001}, false},
		{"protocol plus fund at denominator", Rates{Trade: 2500, Protocol: 600_000, Fund: 400_000}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRates(tt.rates)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ammerr.ErrInvalidInput), "got %v", err)
			}
		})
	}
}

func TestValidateDiscountRateBounds(t *testing.T) {
	assert.NoError(t, ValidateDiscountRate(1))
	assert.NoError(t, ValidateDiscountRate(9999))
	assert.True(t, errors.Is(ValidateDiscountRate(0), ammerr.ErrInvalidInput))
	assert.True(t, errors.Is(ValidateDiscountRate(10000), ammerr.ErrInvalidInput))
}

func TestReduceTradeFeeRate(t *testing.T) {
	reduced, portion, err := ReduceTradeFeeRate(2500, 200_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), reduced)
	assert.Equal(t, uint64(500), portion)

	reduced, portion, err = ReduceTradeFeeRate(2500, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), reduced)
	assert.Equal(t, uint64(0), portion)

	reduced, portion, err = ReduceTradeFeeRate(2500, FeeRateDenominator)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), reduced)
	assert.Equal(t, uint64(2500), portion)
}

func TestDiscountScenario(t *testing.T) {
	_, portion, err := ReduceTradeFeeRate(2500, 200_000)
	require.NoError(t, err)

	protocolPortion, err := MulDivFloor(mathutil.U128(10_000), portion, FeeRateDenominator)
	require.NoError(t, err)
	assert.True(t, protocolPortion.Equals64(5))

	discounted, err := DiscountedFee(protocolPortion.Lo, 2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), discounted)
}

func TestSplitTradeFeeIsExact(t *testing.T) {
	for _, tradeFee := range []uint64{0, 1, 7, 25, 999, 123_457, 1 << 40} {
		for _, rates := range [][2]uint64{{200_000, 40_000}, {120_000, 0}, {333_333, 333_333}, {1_000_000, 0}, {0, 0}} {
			split, err := SplitTradeFee(mathutil.U128(tradeFee), rates[0], rates[1])
			require.NoError(t, err)

			total := split.Protocol.Add(split.Fund).Add(split.LP)
			assert.True(t, total.Equals64(tradeFee), "trade fee %d rates %v", tradeFee, rates)
		}
	}
}

func TestFeeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tradeFee := rapid.Uint64Range(0, 1<<62).Draw(t, "tradeFee")
		protocol := rapid.Uint64Range(0, FeeRateDenominator).Draw(t, "protocol")
		fund := rapid.Uint64Range(0, FeeRateDenominator-protocol).Draw(t, "fund")

		split, err := SplitTradeFee(mathutil.U128(tradeFee), protocol, fund)
		require.NoError(t, err)
		assert.True(t, split.Protocol.Add(split.Fund).Add(split.LP).Equals64(tradeFee))

		trade := rapid.Uint64Range(0, FeeRateDenominator-1).Draw(t, "trade")
		reduced, portion, err := ReduceTradeFeeRate(trade, protocol)
		require.NoError(t, err)
		assert.Equal(t, trade, reduced+portion)

		rate := rapid.Uint64Range(1, DiscountRateDenominator-1).Draw(t, "discountRate")
		discounted, err := DiscountedFee(tradeFee, rate)
		require.NoError(t, err)
		assert.LessOrEqual(t, discounted, tradeFee)
	})
}

func TestSplitTradeFeeRejectsOverAllocation(t *testing.T) {
	_, err := SplitTradeFee(mathutil.U128(100), 800_000, 800_000)
	assert.True(t, errors.Is(err, ammerr.ErrMathOverflow))
}

func TestTradingFeeFloors(t *testing.T) {
	fee, err := TradingFee(mathutil.U128(10_001), 2500)
	require.NoError(t, err)
	assert.True(t, fee.Equals64(25))
}

func TestFeeOverflow(t *testing.T) {
	_, err := TradingFee(uint128.Max, 2)
	assert.True(t, errors.Is(err, ammerr.ErrMathOverflow))
}

func TestPreFeeAmountCoversPostFee(t *testing.T) {
	for _, post := range []uint64{1, 99, 9975, 1_000_000, 123_456_789} {
		pre, err := PreFeeAmount(mathutil.U128(post), 2500)
		require.NoError(t, err)

		fee, err := TradingFee(pre, 2500)
		require.NoError(t, err)
		net := pre.Sub(fee)
		assert.GreaterOrEqual(t, net.Cmp64(post), 0, "post %d pre %s", post, pre)
	}

	_, err := PreFeeAmount(mathutil.U128(1), FeeRateDenominator)
	assert.True(t, errors.Is(err, ammerr.ErrMathOverflow))
}

func TestTransferFee(t *testing.T) {
	cfg := TransferFeeConfig{BasisPoints: 100, MaximumFee: 50}

	assert.Equal(t, uint64(1), cfg.Fee(1))
	assert.Equal(t, uint64(10), cfg.Fee(1000))
	assert.Equal(t, uint64(11), cfg.Fee(1001))
	assert.Equal(t, uint64(50), cfg.Fee(1_000_000))
	assert.Equal(t, uint64(990), cfg.NetAmount(1000))

	assert.Equal(t, uint64(0), TransferFeeConfig{}.Fee(1000))
	assert.Equal(t, uint64(0), TransferFeeConfig{}.InverseFee(1000))
}

func TestTransferInverseFee(t *testing.T) {
	cfg := TransferFeeConfig{BasisPoints: 100, MaximumFee: 1_000_000}

	for _, post := range []uint64{1, 990, 1000, 123_456} {
		fee := cfg.InverseFee(post)
		assert.Equal(t, post, cfg.NetAmount(post+fee), "post %d", post)
	}
	for post := uint64(1); post < 5000; post += 37 {
		fee := cfg.InverseFee(post)
		assert.GreaterOrEqual(t, cfg.NetAmount(post+fee), post, "post %d", post)
	}

	capped := TransferFeeConfig{BasisPoints: 100, MaximumFee: 5}
	assert.Equal(t, uint64(5), capped.InverseFee(1_000_000))
}
