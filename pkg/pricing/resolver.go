package pricing

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	"lukechampine.com/uint128"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/mathutil"
	"cpswap/pkg/state"
)

// Strategy records how a fee was valued.
type Strategy uint8

const (
	StrategyDirect Strategy = iota
	StrategyNativeCurrentPool
	StrategyNative
	StrategyBridgeQuote
	StrategyBridgeNative
)

func (s Strategy) String() string {
	return [...]string{"direct", "native_current_pool", "native", "bridge_quote", "bridge_native"}[s]
}

// Quote is a settlement-token price in USD, scaled by PriceScale.
type Quote struct {
	Price  uint128.Uint128
	Source state.PriceSource
	// ValidUntil is set for oracle prices only.
	ValidUntil time.Time
}

// Result is the outcome of converting one fee.
type Result struct {
	Strategy    Strategy
	FeeValueUSD uint128.Uint128
	Quote       Quote
	Amount      uint64
}

type Resolver struct {
	cfg  state.DiscountConfig
	snap Snapshot
}

func NewResolver(cfg state.DiscountConfig, snap Snapshot) *Resolver {
	return &Resolver{cfg: cfg, snap: snap}
}

// Resolve converts fee, in input-token units, into settlement-token units.
func (r *Resolver) Resolve(fee uint64) (Result, error) {
	value, strategy, err := r.ResolveFeeValue(fee)
	if err != nil {
		return Result{}, err
	}
	quote, err := r.ResolveSettlementPrice()
	if err != nil {
		return Result{}, err
	}
	amount, err := SettlementAmount(value, quote.Price, r.snap.SettlementDecimals)
	if err != nil {
		return Result{}, err
	}
	return Result{Strategy: strategy, FeeValueUSD: value, Quote: quote, Amount: amount}, nil
}

// ResolveFeeValue values fee in USD scaled by PriceScale.
func (r *Resolver) ResolveFeeValue(fee uint64) (uint128.Uint128, Strategy, error) {
	s := r.snap
	switch {
	case s.InputMint.Equals(r.cfg.QuoteMint):
		v, err := applyPrice(fee, uint128.From64(PriceScale), s.InputDecimals)
		return v, StrategyDirect, err

	case s.InputMint.Equals(NativeMint):
		if s.OutputMint.Equals(r.cfg.QuoteMint) {
			price, err := PriceInQuote(s.CurrentInputReserve, s.CurrentOutputReserve, s.InputDecimals, s.OutputDecimals)
			if err != nil {
				return uint128.Zero, 0, err
			}
			v, err := applyPrice(fee, price, s.InputDecimals)
			return v, StrategyNativeCurrentPool, err
		}
		price, err := r.nativePrice()
		if err != nil {
			return uint128.Zero, 0, err
		}
		v, err := applyPrice(fee, price, s.InputDecimals)
		return v, StrategyNative, err
	}

	bridge, ok := s.Pools[RoleIntermediate]
	if !ok {
		return uint128.Zero, 0, errorsmod.Wrapf(ammerr.ErrInvalidInput, "no price path for %s", s.InputMint)
	}
	if !r.cfg.IsBridgePool(bridge.Address) {
		return uint128.Zero, 0, errorsmod.Wrapf(ammerr.ErrInvalidInput, "pool %s is not an allowed bridge", bridge.Address)
	}
	if !bridge.Has(s.InputMint) {
		return uint128.Zero, 0, errorsmod.Wrapf(ammerr.ErrInvalidInput, "bridge pool %s does not hold %s", bridge.Address, s.InputMint)
	}

	switch {
	case bridge.Has(r.cfg.QuoteMint):
		price, err := bridge.PriceOf(s.InputMint, r.cfg.QuoteMint)
		if err != nil {
			return uint128.Zero, 0, err
		}
		v, err := applyPrice(fee, price, s.InputDecimals)
		return v, StrategyBridgeQuote, err

	case bridge.Has(NativeMint):
		inNative, err := bridge.PriceOf(s.InputMint, NativeMint)
		if err != nil {
			return uint128.Zero, 0, err
		}
		nativeUSD, err := r.nativePrice()
		if err != nil {
			return uint128.Zero, 0, err
		}
		price, err := mathutil.MulDiv(inNative, nativeUSD, uint128.From64(PriceScale))
		if err != nil {
			return uint128.Zero, 0, err
		}
		v, err := applyPrice(fee, price, s.InputDecimals)
		return v, StrategyBridgeNative, err

	default:
		return uint128.Zero, 0, errorsmod.Wrapf(ammerr.ErrInvalidInput, "bridge pool %s connects to neither quote nor native", bridge.Address)
	}
}

// ResolveSettlementPrice prices the settlement token from the configured
// source. Sources never substitute for one another.
func (r *Resolver) ResolveSettlementPrice() (Quote, error) {
	switch r.cfg.Source {
	case state.PriceSourcePool:
		return r.priceFromPool()
	case state.PriceSourceOracle:
		return r.priceFromOracle()
	case state.PriceSourceManual:
		return r.priceFromManual()
	default:
		return Quote{}, errorsmod.Wrapf(ammerr.ErrInvalidInput, "price source %d", r.cfg.Source)
	}
}

func (r *Resolver) priceFromPool() (Quote, error) {
	if !r.cfg.SettlementPool.IsZero() {
		p, err := r.snap.pool(RoleSettlement, r.cfg.SettlementPool)
		if err != nil {
			return Quote{}, err
		}
		price, err := p.PriceOf(r.cfg.SettlementMint, r.cfg.QuoteMint)
		if err != nil {
			return Quote{}, err
		}
		return Quote{Price: price, Source: state.PriceSourcePool}, nil
	}

	p, err := r.snap.pool(RoleSettlementNative, r.cfg.SettlementNativePool)
	if err != nil {
		return Quote{}, err
	}
	inNative, err := p.PriceOf(r.cfg.SettlementMint, NativeMint)
	if err != nil {
		return Quote{}, err
	}
	nativeUSD, err := r.nativePrice()
	if err != nil {
		return Quote{}, err
	}
	price, err := mathutil.MulDiv(inNative, nativeUSD, uint128.From64(PriceScale))
	if err != nil {
		return Quote{}, err
	}
	return Quote{Price: price, Source: state.PriceSourcePool}, nil
}

func (r *Resolver) priceFromOracle() (Quote, error) {
	feed := r.snap.Feed
	if feed == nil {
		return Quote{}, errorsmod.Wrapf(ammerr.ErrOracleUnavailable, "no reading for feed %s", r.cfg.SettlementFeed)
	}
	if !feed.Feed.Equals(r.cfg.SettlementFeed) {
		return Quote{}, errorsmod.Wrapf(ammerr.ErrInvalidInput, "feed %s does not match configured %s", feed.Feed, r.cfg.SettlementFeed)
	}
	maxAge := r.cfg.FeedMaxAge()
	if err := feed.CheckFresh(r.snap.Now, maxAge); err != nil {
		return Quote{}, err
	}
	price, err := feed.Scaled(priceDecimals)
	if err != nil {
		return Quote{}, err
	}
	if price.IsZero() {
		return Quote{}, errorsmod.Wrapf(ammerr.ErrOracleUnavailable, "feed %s price rounds to zero", feed.Feed)
	}
	return Quote{Price: price, Source: state.PriceSourceOracle, ValidUntil: feed.PublishedAt.Add(maxAge)}, nil
}

func (r *Resolver) priceFromManual() (Quote, error) {
	if r.cfg.ManualPrice == 0 {
		return Quote{}, errorsmod.Wrap(ammerr.ErrInvalidInput, "manual price is zero")
	}
	return Quote{Price: uint128.From64(r.cfg.ManualPrice), Source: state.PriceSourceManual}, nil
}

// nativePrice is the USD price of the native asset from the configured
// native/quote reference pool.
func (r *Resolver) nativePrice() (uint128.Uint128, error) {
	p, err := r.snap.pool(RoleNativeQuote, r.cfg.NativeQuotePool)
	if err != nil {
		return uint128.Zero, err
	}
	return p.PriceOf(NativeMint, r.cfg.QuoteMint)
}

// applyPrice is amount * price / 10^decimals.
func applyPrice(amount uint64, price uint128.Uint128, decimals uint8) (uint128.Uint128, error) {
	scale, err := mathutil.Pow10(decimals)
	if err != nil {
		return uint128.Zero, err
	}
	return mathutil.MulDiv(mathutil.U128(amount), price, scale)
}

// SettlementAmount is floor(feeValueUSD * 10^decimals / price). A fee too
// small to express in settlement units is rejected.
func SettlementAmount(feeValueUSD, price uint128.Uint128, settlementDecimals uint8) (uint64, error) {
	if price.IsZero() {
		return 0, errorsmod.Wrap(ammerr.ErrInvalidInput, "zero settlement price")
	}
	amount, err := applyPriceInverse(feeValueUSD, price, settlementDecimals)
	if err != nil {
		return 0, err
	}
	out, err := mathutil.ToUint64(amount)
	if err != nil {
		return 0, err
	}
	if out == 0 {
		return 0, errorsmod.Wrapf(ammerr.ErrInvalidInput, "fee value %s is below one settlement unit at price %s", feeValueUSD, price)
	}
	return out, nil
}

func applyPriceInverse(value, price uint128.Uint128, decimals uint8) (uint128.Uint128, error) {
	scale, err := mathutil.Pow10(decimals)
	if err != nil {
		return uint128.Zero, err
	}
	return mathutil.MulDiv(value, scale, price)
}
