package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/oracle"
	"cpswap/pkg/state"
)

var (
	usdc    = solana.NewWallet().PublicKey()
	kedolog = solana.NewWallet().PublicKey()
	bonk    = solana.NewWallet().PublicKey()
	other   = solana.NewWallet().PublicKey()

	settlementPoolID = solana.NewWallet().PublicKey()
	nativePoolID     = solana.NewWallet().PublicKey()
	bridgePoolID     = solana.NewWallet().PublicKey()
	feedID           = solana.NewWallet().PublicKey()

	now = time.Unix(1_700_000_000, 0)
)

// KEDOLOG at $0.0017, SOL at $200.
func baseConfig() state.DiscountConfig {
	cfg := state.DiscountConfig{
		DiscountRate:    2000,
		SettlementMint:  kedolog,
		QuoteMint:       usdc,
		Source:          state.PriceSourcePool,
		SettlementPool:  settlementPoolID,
		NativeQuotePool: nativePoolID,
		SettlementFeed:  feedID,
		Enabled:         true,
	}
	cfg.BridgePools[0] = bridgePoolID
	return cfg
}

func kedologPool() PoolSnapshot {
	return PoolSnapshot{
		Address: settlementPoolID,
		Vault0:  TokenBalance{Mint: kedolog, Amount: 1_000_000_000_000_000, Decimals: 9},
		Vault1:  TokenBalance{Mint: usdc, Amount: 1_700_000_000, Decimals: 6},
	}
}

func solPool() PoolSnapshot {
	return PoolSnapshot{
		Address: nativePoolID,
		Vault0:  TokenBalance{Mint: usdc, Amount: 200_000_000_000, Decimals: 6},
		Vault1:  TokenBalance{Mint: NativeMint, Amount: 1_000_000_000_000, Decimals: 9},
	}
}

func baseSnapshot(input solana.PublicKey, inputDecimals uint8, output solana.PublicKey) Snapshot {
	return Snapshot{
		InputMint:          input,
		InputDecimals:      inputDecimals,
		OutputMint:         output,
		OutputDecimals:     6,
		SettlementDecimals: 9,
		Pools: map[Role]PoolSnapshot{
			RoleSettlement:  kedologPool(),
			RoleNativeQuote: solPool(),
		},
		Now: now,
	}
}

func TestPriceInQuote(t *testing.T) {
	p, err := PriceInQuote(1_000_000_000_000_000, 1_700_000_000, 9, 6)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(1_700_000), p)

	p, err = PriceInQuote(5_882_000_000_000, 1_000_000_000, 9, 6)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(170_010_200), p)

	_, err = PriceInQuote(0, 1, 9, 6)
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
	_, err = PriceInQuote(1, 0, 9, 6)
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
}

func TestResolveNativeFeeThroughReferencePool(t *testing.T) {
	r := NewResolver(baseConfig(), baseSnapshot(NativeMint, 9, other))

	res, err := r.Resolve(50_000_000)
	require.NoError(t, err)
	assert.Equal(t, StrategyNative, res.Strategy)
	assert.Equal(t, uint128.From64(10_000_000_000), res.FeeValueUSD)
	assert.Equal(t, uint128.From64(1_700_000), res.Quote.Price)
	assert.Equal(t, state.PriceSourcePool, res.Quote.Source)
	assert.Equal(t, uint64(5_882_352_941_176), res.Amount)

	again, err := r.Resolve(50_000_000)
	require.NoError(t, err)
	assert.Equal(t, res, again)
}

func TestResolveNativeFeeFromCurrentPool(t *testing.T) {
	snap := baseSnapshot(NativeMint, 9, usdc)
	snap.CurrentInputReserve = 1_000_000_000_000
	snap.CurrentOutputReserve = 200_000_000_000
	delete(snap.Pools, RoleNativeQuote)

	res, err := NewResolver(baseConfig(), snap).Resolve(50_000_000)
	require.NoError(t, err)
	assert.Equal(t, StrategyNativeCurrentPool, res.Strategy)
	assert.Equal(t, uint64(5_882_352_941_176), res.Amount)
}

func TestResolveDirectQuoteFee(t *testing.T) {
	res, err := NewResolver(baseConfig(), baseSnapshot(usdc, 6, other)).Resolve(10_000_000)
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, res.Strategy)
	assert.Equal(t, uint128.From64(10_000_000_000), res.FeeValueUSD)
	assert.Equal(t, uint64(5_882_352_941_176), res.Amount)
}

func TestResolveBridgePaths(t *testing.T) {
	t.Run("bridge to quote", func(t *testing.T) {
		snap := baseSnapshot(bonk, 6, other)
		snap.Pools[RoleIntermediate] = PoolSnapshot{
			Address: bridgePoolID,
			Vault0:  TokenBalance{Mint: usdc, Amount: 2_000_000_000, Decimals: 6},
			Vault1:  TokenBalance{Mint: bonk, Amount: 4_000_000_000_000, Decimals: 6},
		}
		res, err := NewResolver(baseConfig(), snap).Resolve(1_000_000_000)
		require.NoError(t, err)
		assert.Equal(t, StrategyBridgeQuote, res.Strategy)
		assert.Equal(t, uint128.From64(500_000_000), res.FeeValueUSD)
		assert.Equal(t, uint64(294_117_647_058), res.Amount)
	})

	t.Run("bridge to native", func(t *testing.T) {
		snap := baseSnapshot(bonk, 6, other)
		snap.Pools[RoleIntermediate] = PoolSnapshot{
			Address: bridgePoolID,
			Vault0:  TokenBalance{Mint: bonk, Amount: 1_000_000_000_000, Decimals: 6},
			Vault1:  TokenBalance{Mint: NativeMint, Amount: 10_000_000_000, Decimals: 9},
		}
		res, err := NewResolver(baseConfig(), snap).Resolve(1_000_000_000)
		require.NoError(t, err)
		assert.Equal(t, StrategyBridgeNative, res.Strategy)
		assert.Equal(t, uint128.From64(2_000_000_000), res.FeeValueUSD)
		assert.Equal(t, uint64(1_176_470_588_235), res.Amount)
	})

	t.Run("bridge not allowed", func(t *testing.T) {
		snap := baseSnapshot(bonk, 6, other)
		snap.Pools[RoleIntermediate] = PoolSnapshot{
			Address: solana.NewWallet().PublicKey(),
			Vault0:  TokenBalance{Mint: bonk, Amount: 1, Decimals: 6},
			Vault1:  TokenBalance{Mint: usdc, Amount: 1, Decimals: 6},
		}
		_, err := NewResolver(baseConfig(), snap).Resolve(1_000)
		assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
	})

	t.Run("bridge unrelated to input", func(t *testing.T) {
		snap := baseSnapshot(bonk, 6, other)
		snap.Pools[RoleIntermediate] = PoolSnapshot{
			Address: bridgePoolID,
			Vault0:  TokenBalance{Mint: other, Amount: 1_000, Decimals: 6},
			Vault1:  TokenBalance{Mint: usdc, Amount: 1_000, Decimals: 6},
		}
		_, err := NewResolver(baseConfig(), snap).Resolve(1_000)
		assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
	})

	t.Run("no path", func(t *testing.T) {
		_, err := NewResolver(baseConfig(), baseSnapshot(bonk, 6, other)).Resolve(1_000)
		assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
	})
}

func TestReferencePoolIdentityMismatch(t *testing.T) {
	t.Run("settlement pool address", func(t *testing.T) {
		snap := baseSnapshot(usdc, 6, other)
		forged := kedologPool()
		forged.Address = solana.NewWallet().PublicKey()
		snap.Pools[RoleSettlement] = forged
		_, err := NewResolver(baseConfig(), snap).Resolve(10_000_000)
		assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
	})

	t.Run("native pool address", func(t *testing.T) {
		snap := baseSnapshot(NativeMint, 9, other)
		forged := solPool()
		forged.Address = solana.NewWallet().PublicKey()
		snap.Pools[RoleNativeQuote] = forged
		_, err := NewResolver(baseConfig(), snap).Resolve(50_000_000)
		assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
	})

	t.Run("vault mints", func(t *testing.T) {
		snap := baseSnapshot(usdc, 6, other)
		forged := kedologPool()
		forged.Vault0.Mint = bonk
		snap.Pools[RoleSettlement] = forged
		_, err := NewResolver(baseConfig(), snap).Resolve(10_000_000)
		assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
	})

	t.Run("empty reserves", func(t *testing.T) {
		snap := baseSnapshot(usdc, 6, other)
		empty := kedologPool()
		empty.Vault1.Amount = 0
		snap.Pools[RoleSettlement] = empty
		_, err := NewResolver(baseConfig(), snap).Resolve(10_000_000)
		assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
	})
}

func TestSettlementThroughNativePool(t *testing.T) {
	cfg := baseConfig()
	cfg.SettlementPool = solana.PublicKey{}
	cfg.SettlementNativePool = solana.NewWallet().PublicKey()

	snap := baseSnapshot(usdc, 6, other)
	delete(snap.Pools, RoleSettlement)
	snap.Pools[RoleSettlementNative] = PoolSnapshot{
		Address: cfg.SettlementNativePool,
		Vault0:  TokenBalance{Mint: NativeMint, Amount: 8_500_000_000, Decimals: 9},
		Vault1:  TokenBalance{Mint: kedolog, Amount: 1_000_000_000_000_000, Decimals: 9},
	}

	res, err := NewResolver(cfg, snap).Resolve(10_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint128.From64(1_700_000), res.Quote.Price)
	assert.Equal(t, uint64(5_882_352_941_176), res.Amount)
}

func TestSettlementFromOracle(t *testing.T) {
	cfg := baseConfig()
	cfg.Source = state.PriceSourceOracle

	snap := baseSnapshot(usdc, 6, other)
	delete(snap.Pools, RoleSettlement)

	_, err := NewResolver(cfg, snap).Resolve(10_000_000)
	assert.True(t, errors.Is(err, ammerr.ErrOracleUnavailable), "no reading")

	snap.Feed = &oracle.Price{Feed: feedID, Value: 170_000, Expo: -8, PublishedAt: now.Add(-20 * time.Second)}
	res, err := NewResolver(cfg, snap).Resolve(10_000_000)
	require.NoError(t, err)
	assert.Equal(t, state.PriceSourceOracle, res.Quote.Source)
	assert.Equal(t, uint128.From64(1_700_000), res.Quote.Price)
	assert.True(t, res.Quote.ValidUntil.Equal(now.Add(40*time.Second)))
	assert.Equal(t, uint64(5_882_352_941_176), res.Amount)

	stale := *snap.Feed
	stale.PublishedAt = now.Add(-2 * time.Minute)
	snap.Feed = &stale
	_, err = NewResolver(cfg, snap).Resolve(10_000_000)
	assert.True(t, errors.Is(err, ammerr.ErrStalePrice))

	wrongFeed := oracle.Price{Feed: solana.NewWallet().PublicKey(), Value: 170_000, Expo: -8, PublishedAt: now}
	snap.Feed = &wrongFeed
	_, err = NewResolver(cfg, snap).Resolve(10_000_000)
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))

	negative := oracle.Price{Feed: feedID, Value: -1, Expo: -8, PublishedAt: now}
	snap.Feed = &negative
	_, err = NewResolver(cfg, snap).Resolve(10_000_000)
	assert.True(t, errors.Is(err, ammerr.ErrOracleUnavailable))
}

func TestSettlementFromManualPrice(t *testing.T) {
	cfg := baseConfig()
	cfg.Source = state.PriceSourceManual
	snap := baseSnapshot(usdc, 6, other)

	_, err := NewResolver(cfg, snap).Resolve(10_000_000)
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))

	cfg.ManualPrice = 1_700_000
	res, err := NewResolver(cfg, snap).Resolve(10_000_000)
	require.NoError(t, err)
	assert.Equal(t, state.PriceSourceManual, res.Quote.Source)
	assert.Equal(t, uint64(5_882_352_941_176), res.Amount)
}

func TestSettlementAmountBounds(t *testing.T) {
	_, err := SettlementAmount(uint128.From64(1), uint128.From64(1_700_000), 0)
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))

	_, err = SettlementAmount(uint128.From64(1), uint128.Zero, 9)
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))

	_, err = SettlementAmount(uint128.From64(^uint64(0)), uint128.From64(1), 9)
	assert.True(t, errors.Is(err, ammerr.ErrMathOverflow))

	amount, err := SettlementAmount(uint128.From64(10_000_000_000), uint128.From64(1_700_000), 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_882_352_941_176), amount)
}
