// Package pricing values a fee in USD and converts it into settlement-token
// units. Everything it reads is taken from a Snapshot assembled before the
// swap is computed, so resolution is a pure function of its inputs.
package pricing

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/mathutil"
	"cpswap/pkg/oracle"
)

// PriceScale is the fixed-point scale of every price: 10^9 == 1.0.
const PriceScale uint64 = 1_000_000_000

const priceDecimals = 9

// NativeMint is the wrapped native asset used as the bridge currency.
var NativeMint = solana.SolMint

// Role names the purpose of a reference pool in a snapshot.
type Role uint8

const (
	RoleSettlement Role = iota
	RoleSettlementNative
	RoleNativeQuote
	RoleIntermediate
)

func (r Role) String() string {
	switch r {
	case RoleSettlement:
		return "settlement"
	case RoleSettlementNative:
		return "settlement_native"
	case RoleNativeQuote:
		return "native_quote"
	case RoleIntermediate:
		return "intermediate"
	default:
		return "unknown"
	}
}

type TokenBalance struct {
	Mint     solana.PublicKey
	Amount   uint64
	Decimals uint8
}

// PoolSnapshot is the read-only view of a reference pool: its address and
// the net balances of its two vaults.
type PoolSnapshot struct {
	Address solana.PublicKey
	Vault0  TokenBalance
	Vault1  TokenBalance
}

func (p PoolSnapshot) Has(mint solana.PublicKey) bool {
	return p.Vault0.Mint.Equals(mint) || p.Vault1.Mint.Equals(mint)
}

// PriceOf returns the price of one whole base token in whole quote tokens,
// scaled by PriceScale. Both vault mints must match the requested pair.
func (p PoolSnapshot) PriceOf(base, quote solana.PublicKey) (uint128.Uint128, error) {
	switch {
	case p.Vault0.Mint.Equals(base) && p.Vault1.Mint.Equals(quote):
		return PriceInQuote(p.Vault0.Amount, p.Vault1.Amount, p.Vault0.Decimals, p.Vault1.Decimals)
	case p.Vault1.Mint.Equals(base) && p.Vault0.Mint.Equals(quote):
		return PriceInQuote(p.Vault1.Amount, p.Vault0.Amount, p.Vault1.Decimals, p.Vault0.Decimals)
	default:
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrInvalidInput, "pool %s holds %s/%s, not %s/%s",
			p.Address, p.Vault0.Mint, p.Vault1.Mint, base, quote)
	}
}

// PriceInQuote is quote * 10^9 * 10^baseDecimals / (base * 10^quoteDecimals).
func PriceInQuote(baseReserve, quoteReserve uint64, baseDecimals, quoteDecimals uint8) (uint128.Uint128, error) {
	if baseReserve == 0 || quoteReserve == 0 {
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrInvalidInput, "empty reserves %d/%d", baseReserve, quoteReserve)
	}
	baseScale, err := mathutil.Pow10(baseDecimals)
	if err != nil {
		return uint128.Zero, err
	}
	quoteScale, err := mathutil.Pow10(quoteDecimals)
	if err != nil {
		return uint128.Zero, err
	}
	numerator, err := mathutil.Mul(mathutil.U128(quoteReserve).Mul64(PriceScale), baseScale)
	if err != nil {
		return uint128.Zero, err
	}
	denominator, err := mathutil.Mul(mathutil.U128(baseReserve), quoteScale)
	if err != nil {
		return uint128.Zero, err
	}
	return mathutil.Div(numerator, denominator)
}

// Snapshot is everything the resolver may read for one request.
type Snapshot struct {
	InputMint      solana.PublicKey
	InputDecimals  uint8
	OutputMint     solana.PublicKey
	OutputDecimals uint8
	// Net reserves of the executing pool, oriented to the trade.
	CurrentInputReserve  uint64
	CurrentOutputReserve uint64

	SettlementDecimals uint8
	Pools              map[Role]PoolSnapshot
	// Feed is the settlement feed reading, when the oracle source is used.
	Feed *oracle.Price
	Now  time.Time
}

// pool returns the snapshot of role, which must sit at expected.
func (s Snapshot) pool(role Role, expected solana.PublicKey) (PoolSnapshot, error) {
	if expected.IsZero() {
		return PoolSnapshot{}, errorsmod.Wrapf(ammerr.ErrInvalidInput, "no %s pool configured", role)
	}
	p, ok := s.Pools[role]
	if !ok {
		return PoolSnapshot{}, errorsmod.Wrapf(ammerr.ErrInvalidInput, "%s pool %s not supplied", role, expected)
	}
	if !p.Address.Equals(expected) {
		return PoolSnapshot{}, errorsmod.Wrapf(ammerr.ErrInvalidInput, "%s pool %s does not match configured %s", role, p.Address, expected)
	}
	return p, nil
}
