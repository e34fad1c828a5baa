package curve

import (
	"lukechampine.com/uint128"
)

// PriceX64 returns the price of token0 in token1 as a Q64.64 fixed-point
// value. Empty reserves price at zero.
func PriceX64(reserve0, reserve1 uint64) uint128.Uint128 {
	if reserve0 == 0 {
		return uint128.Zero
	}
	return uint128.New(0, reserve1).Div64(reserve0)
}

// PricesX64 returns both directions for an observation update.
func PricesX64(reserve0, reserve1 uint64) (token0Price, token1Price uint128.Uint128) {
	return PriceX64(reserve0, reserve1), PriceX64(reserve1, reserve0)
}
