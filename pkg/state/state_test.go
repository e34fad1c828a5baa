package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/sol"
)

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func testAmmConfig(owner solana.PublicKey) *AmmConfig {
	return &AmmConfig{
		Index:           1,
		TradeFeeRate:    2500,
		ProtocolFeeRate: 200_000,
		FundFeeRate:     40_000,
		ProtocolOwner:   owner,
		FundOwner:       owner,
	}
}

func testDiscountConfig(authority solana.PublicKey) *DiscountConfig {
	return &DiscountConfig{
		Authority:      authority,
		DiscountRate:   2000,
		SettlementMint: newKey(),
		Treasury:       newKey(),
		QuoteMint:      newKey(),
		Source:         PriceSourcePool,
		SettlementPool: newKey(),
		Enabled:        true,
	}
}

func TestAccountCodecRoundTrip(t *testing.T) {
	pool := &PoolState{
		AmmConfig:             newKey(),
		Token0Vault:           newKey(),
		Token1Vault:           newKey(),
		Token0Mint:            newKey(),
		Token1Mint:            newKey(),
		Mint0Decimals:         9,
		Mint1Decimals:         6,
		Status:                PoolStatusDeposit,
		OpenTime:              1_700_000_000,
		ProtocolFeesToken0:    11,
		CreatorFeeOn:          CreatorFeeOnOnlyToken1,
		EnableCreatorFee:      true,
		CollectedDiscountFees: 5_882,
	}
	data, err := pool.Encode()
	require.NoError(t, err)
	assert.Equal(t, Discriminator("PoolState"), data[:8])

	decoded, err := DecodePoolState(data)
	require.NoError(t, err)
	assert.Equal(t, pool, decoded)

	_, err = DecodeAmmConfig(data)
	assert.True(t, errors.Is(err, ammerr.ErrInvalidAccountData))

	cfg := testDiscountConfig(newKey())
	cfg.BridgePools[2] = newKey()
	cfgData, err := cfg.Encode()
	require.NoError(t, err)
	decodedCfg, err := DecodeDiscountConfig(cfgData)
	require.NoError(t, err)
	assert.Equal(t, cfg, decodedCfg)

	obs := NewObservationState(newKey())
	obs.Update(100, uint128.From64(1).Lsh(64), uint128.From64(1).Lsh(64))
	obs.Update(110, uint128.From64(2).Lsh(64), uint128.From64(1).Lsh(63))
	obsData, err := obs.Encode()
	require.NoError(t, err)
	decodedObs, err := DecodeObservationState(obsData)
	require.NoError(t, err)
	assert.Equal(t, obs, decodedObs)
}

func TestVaultReserves(t *testing.T) {
	p := &PoolState{ProtocolFeesToken0: 10, FundFeesToken0: 5, CreatorFeesToken1: 7}
	r0, r1, err := p.VaultReserves(1_000, 2_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(985), r0)
	assert.Equal(t, uint64(1_993), r1)

	_, _, err = p.VaultReserves(14, 2_000)
	assert.True(t, errors.Is(err, ammerr.ErrMathOverflow))
}

func TestDirectionAndSides(t *testing.T) {
	p := &PoolState{Token0Mint: newKey(), Token1Mint: newKey(), Token0Vault: newKey(), Token1Vault: newKey(), Mint0Decimals: 9, Mint1Decimals: 6,
		Token0Program: solana.TokenProgramID, Token1Program: solana.Token2022ProgramID}

	d, err := p.Direction(p.Token1Mint, p.Token0Mint)
	require.NoError(t, err)
	assert.Equal(t, OneForZero, d)
	in, out := p.Sides(d)
	assert.Equal(t, Side{Vault: p.Token1Vault, Mint: p.Token1Mint, Program: solana.Token2022ProgramID, Decimals: 6}, in)
	assert.Equal(t, Side{Vault: p.Token0Vault, Mint: p.Token0Mint, Program: solana.TokenProgramID, Decimals: 9}, out)

	_, err = p.Direction(p.Token0Mint, p.Token0Mint)
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
}

func TestCreatorFeeSide(t *testing.T) {
	p := &PoolState{CreatorFeeOn: CreatorFeeOnBothToken}
	assert.True(t, p.CreatorFeeOnInput(ZeroForOne))
	assert.True(t, p.CreatorFeeOnInput(OneForZero))

	p.CreatorFeeOn = CreatorFeeOnOnlyToken0
	assert.True(t, p.CreatorFeeOnInput(ZeroForOne))
	assert.False(t, p.CreatorFeeOnInput(OneForZero))

	p.CreatorFeeOn = CreatorFeeOnOnlyToken1
	assert.False(t, p.CreatorFeeOnInput(ZeroForOne))
	assert.True(t, p.CreatorFeeOnInput(OneForZero))

	cfg := &AmmConfig{CreatorFeeRate: 1000}
	assert.Equal(t, uint64(0), p.CreatorFeeRate(cfg))
	p.EnableCreatorFee = true
	assert.Equal(t, uint64(1000), p.CreatorFeeRate(cfg))
}

func TestUpdateFees(t *testing.T) {
	p := &PoolState{}
	require.NoError(t, p.UpdateFees(ZeroForOne, 5, 1, 19, false))
	require.NoError(t, p.UpdateFees(OneForZero, 3, 2, 4, true))

	assert.Equal(t, uint64(5), p.ProtocolFeesToken0)
	assert.Equal(t, uint64(1), p.FundFeesToken0)
	assert.Equal(t, uint64(3), p.ProtocolFeesToken1)
	assert.Equal(t, uint64(2), p.FundFeesToken1)
	assert.Equal(t, uint64(23), p.CreatorFeesToken1)
	assert.Equal(t, uint64(0), p.CreatorFeesToken0)

	p.FundFeesToken0 = ^uint64(0)
	err := p.UpdateFees(ZeroForOne, 1, 1, 0, true)
	assert.True(t, errors.Is(err, ammerr.ErrMathOverflow))
	assert.Equal(t, uint64(5), p.ProtocolFeesToken0, "failed update must not partially apply")
}

func TestObservationRing(t *testing.T) {
	o := NewObservationState(newKey())
	one := uint128.From64(1).Lsh(64)

	o.Update(1_000, one, one)
	assert.True(t, o.Initialized)
	assert.Equal(t, uint64(1_000), o.Latest().BlockTimestamp)

	o.Update(1_000, one, one)
	assert.Equal(t, uint16(0), o.ObservationIndex)

	o.Update(1_010, one.Mul64(3), one)
	assert.Equal(t, uint16(1), o.ObservationIndex)
	assert.Equal(t, uint128.From64(3<<32*10), o.Latest().CumulativeToken0PriceX32)
	assert.Equal(t, uint128.From64(1<<32*10), o.Latest().CumulativeToken1PriceX32)

	for ts := uint64(1_011); ts < 1_010+ObservationNum; ts++ {
		o.Update(ts, one, one)
	}
	assert.Equal(t, uint16(0), o.ObservationIndex)
	assert.Equal(t, uint64(1_010+ObservationNum-1), o.Latest().BlockTimestamp)
}

func TestDiscountConfigValidate(t *testing.T) {
	for _, rate := range []uint64{0, 10_000} {
		cfg := testDiscountConfig(newKey())
		cfg.DiscountRate = rate
		assert.True(t, errors.Is(cfg.Validate(), ammerr.ErrInvalidInput), "rate %d", rate)
	}
	for _, rate := range []uint64{1, 9_999} {
		cfg := testDiscountConfig(newKey())
		cfg.DiscountRate = rate
		assert.NoError(t, cfg.Validate(), "rate %d", rate)
	}

	cfg := testDiscountConfig(newKey())
	cfg.Source = PriceSourceOracle
	assert.True(t, errors.Is(cfg.Validate(), ammerr.ErrInvalidInput))
	cfg.SettlementFeed = newKey()
	assert.NoError(t, cfg.Validate())

	cfg.Source = PriceSourceManual
	assert.True(t, errors.Is(cfg.Validate(), ammerr.ErrInvalidInput))
	cfg.ManualPrice = 1_700_000
	assert.NoError(t, cfg.Validate())

	assert.Equal(t, int64(60), int64(cfg.FeedMaxAge().Seconds()))
	cfg.FeedMaxAgeSeconds = 5
	assert.Equal(t, int64(5), int64(cfg.FeedMaxAge().Seconds()))

	src, err := ParsePriceSource("oracle")
	require.NoError(t, err)
	assert.Equal(t, PriceSourceOracle, src)
	_, err = ParsePriceSource("twap")
	assert.Error(t, err)
}

func TestDiscountConfigBoundsFeedAge(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	authority, id := newKey(), newKey()

	cfg := testDiscountConfig(authority)
	cfg.Source = PriceSourceOracle
	cfg.SettlementFeed = newKey()
	cfg.FeedMaxAgeSeconds = 1 << 62
	assert.True(t, errors.Is(s.CreateDiscountConfig(ctx, id, cfg), ammerr.ErrInvalidInput))

	cfg.FeedMaxAgeSeconds = MaxFeedMaxAgeSeconds
	require.NoError(t, s.CreateDiscountConfig(ctx, id, cfg))

	huge := uint64(1<<64 - 1)
	err := s.UpdateDiscountConfig(ctx, id, authority, DiscountUpdate{FeedMaxAgeSeconds: &huge})
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
	got, err := s.LoadDiscountConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(MaxFeedMaxAgeSeconds), got.FeedMaxAgeSeconds)

	// Configs read straight from chain never pass through Validate.
	got.FeedMaxAgeSeconds = huge
	assert.Equal(t, MaxFeedMaxAgeSeconds*time.Second, got.FeedMaxAge())
	assert.Positive(t, got.FeedMaxAge())
}

func TestDiscountConfigSettlementTokenProgram(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	authority, id := newKey(), newKey()

	cfg := testDiscountConfig(authority)
	cfg.SettlementTokenProgram = newKey()
	assert.True(t, errors.Is(s.CreateDiscountConfig(ctx, id, cfg), ammerr.ErrInvalidInput))
	cfg.SettlementTokenProgram = solana.PublicKey{}
	require.NoError(t, s.CreateDiscountConfig(ctx, id, cfg))

	program := solana.Token2022ProgramID
	require.NoError(t, s.UpdateDiscountConfig(ctx, id, authority, DiscountUpdate{SettlementTokenProgram: &program}))
	got, err := s.LoadDiscountConfig(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, solana.Token2022ProgramID, got.SettlementTokenProgram)

	program = solana.SystemProgramID
	err = s.UpdateDiscountConfig(ctx, id, authority, DiscountUpdate{SettlementTokenProgram: &program})
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
}

func TestMemStoreAdminPaths(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	owner, authority, stranger := newKey(), newKey(), newKey()
	cfgID, discountID, poolID := newKey(), newKey(), newKey()

	bad := testAmmConfig(owner)
	bad.TradeFeeRate = 1_000_000
	assert.True(t, errors.Is(s.CreateAmmConfig(ctx, cfgID, bad), ammerr.ErrInvalidInput))
	require.NoError(t, s.CreateAmmConfig(ctx, cfgID, testAmmConfig(owner)))

	discount := testDiscountConfig(authority)
	discount.DiscountRate = 10_000
	assert.True(t, errors.Is(s.CreateDiscountConfig(ctx, discountID, discount), ammerr.ErrInvalidInput))
	discount.DiscountRate = 9_999
	require.NoError(t, s.CreateDiscountConfig(ctx, discountID, discount))

	rate := uint64(2500)
	err := s.UpdateDiscountConfig(ctx, discountID, stranger, DiscountUpdate{DiscountRate: &rate})
	assert.True(t, errors.Is(err, ammerr.ErrInvalidOwner))

	zero := uint64(0)
	err = s.UpdateDiscountConfig(ctx, discountID, authority, DiscountUpdate{DiscountRate: &zero})
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))

	disabled := false
	require.NoError(t, s.UpdateDiscountConfig(ctx, discountID, authority, DiscountUpdate{
		DiscountRate: &rate,
		Enabled:      &disabled,
		NewAuthority: &stranger,
	}))
	got, err := s.LoadDiscountConfig(ctx, discountID)
	require.NoError(t, err)
	assert.Equal(t, rate, got.DiscountRate)
	assert.False(t, got.Enabled)
	assert.Equal(t, stranger, got.Authority)

	err = s.UpdateAmmConfig(ctx, cfgID, stranger, AmmConfigUpdate{Param: ParamTradeFeeRate, Value: 3000})
	assert.True(t, errors.Is(err, ammerr.ErrInvalidOwner))
	err = s.UpdateAmmConfig(ctx, cfgID, owner, AmmConfigUpdate{Param: ParamFundFeeRate, Value: 900_000})
	assert.True(t, errors.Is(err, ammerr.ErrInvalidInput))
	require.NoError(t, s.UpdateAmmConfig(ctx, cfgID, owner, AmmConfigUpdate{Param: ParamTradeFeeRate, Value: 3000}))
	amm, err := s.LoadAmmConfig(ctx, cfgID)
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), amm.TradeFeeRate)
	assert.Equal(t, uint64(40_000), amm.FundFeeRate)

	pool := &PoolState{AmmConfig: cfgID, Token0Mint: newKey(), Token1Mint: newKey(), ObservationKey: newKey()}
	require.NoError(t, s.CreatePool(ctx, poolID, pool))
	obs, err := s.LoadObservation(ctx, pool.ObservationKey)
	require.NoError(t, err)
	assert.Equal(t, poolID, obs.PoolID)

	err = s.UpdatePoolStatus(ctx, poolID, stranger, PoolStatusSwap)
	assert.True(t, errors.Is(err, ammerr.ErrInvalidOwner))
	require.NoError(t, s.UpdatePoolStatus(ctx, poolID, owner, PoolStatusSwap))
	loaded, err := s.LoadPool(ctx, poolID)
	require.NoError(t, err)
	assert.False(t, loaded.SwapEnabled())

	_, err = s.LoadPool(ctx, newKey())
	assert.True(t, errors.Is(err, ammerr.ErrAccountNotFound))
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	owner, cfgID := newKey(), newKey()

	s, err := OpenStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.CreateAmmConfig(ctx, cfgID, testAmmConfig(owner)))
	require.NoError(t, s.Close())

	s, err = OpenStore(dir)
	require.NoError(t, err)
	defer s.Close()
	cfg, err := s.LoadAmmConfig(ctx, cfgID)
	require.NoError(t, err)
	assert.Equal(t, owner, cfg.ProtocolOwner)

	raw, err := s.AccountData(ctx, []solana.PublicKey{cfgID, newKey()})
	require.NoError(t, err)
	assert.NotNil(t, raw[0])
	assert.Nil(t, raw[1])

	vault := newKey()
	require.NoError(t, s.Import(ctx, vault, []byte{1, 2, 3}))
	raw, err = s.AccountData(ctx, []solana.PublicKey{vault})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw[0])
	assert.Error(t, s.Import(ctx, vault, nil))
}

func TestChainStoreOverlaysSaves(t *testing.T) {
	ctx := context.Background()
	chain := sol.NewAccountMap()
	id := newKey()
	pool := &PoolState{Token0Mint: newKey(), Token1Mint: newKey(), LpSupply: 100}
	data, err := pool.Encode()
	require.NoError(t, err)
	chain.Set(id, data)

	s := NewChainStore(chain)
	loaded, err := s.LoadPool(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), loaded.LpSupply)

	loaded.LpSupply = 250
	require.NoError(t, s.SavePool(ctx, id, loaded))
	again, err := s.LoadPool(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), again.LpSupply)

	// the source is untouched
	raw, err := chain.AccountData(ctx, []solana.PublicKey{id})
	require.NoError(t, err)
	assert.Equal(t, data, raw[0])

	_, err = s.LoadAmmConfig(ctx, newKey())
	assert.True(t, errors.Is(err, ammerr.ErrAccountNotFound))
}
