package cpswap

import (
	"context"
	"testing"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpswap/pkg/sol"
	"cpswap/pkg/state"
	"cpswap/pkg/swap"
)

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

type fixture struct {
	accounts *sol.AccountMap
	pool     *Pool
	usdc     solana.PublicKey
	token    solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	authority, _, err := swap.PoolAuthority(DefaultProgramID)
	require.NoError(t, err)

	f := &fixture{accounts: sol.NewAccountMap(), usdc: newKey(), token: newKey()}
	ammID := newKey()
	cfg := &state.AmmConfig{TradeFeeRate: 2500, ProtocolFeeRate: 200_000, FundFeeRate: 40_000}
	data, err := cfg.Encode()
	require.NoError(t, err)
	f.accounts.Set(ammID, data)

	for _, m := range []sol.MintInfo{{Address: f.usdc, Decimals: 6}, {Address: f.token, Decimals: 9}} {
		m.ProgramID = solana.TokenProgramID
		data, err := sol.EncodeMint(m)
		require.NoError(t, err)
		f.accounts.Set(m.Address, data)
	}

	st := &state.PoolState{
		AmmConfig:     ammID,
		Token0Vault:   newKey(),
		Token1Vault:   newKey(),
		Token0Mint:    f.usdc,
		Token1Mint:    f.token,
		Mint0Decimals: 6,
		Mint1Decimals: 9,
	}
	f.setVault(t, st.Token0Vault, f.usdc, authority, 1_000_000)
	f.setVault(t, st.Token1Vault, f.token, authority, 2_000_000)

	id := newKey()
	data, err = st.Encode()
	require.NoError(t, err)
	f.pool = NewPool(id, solana.PublicKey{})
	require.NoError(t, f.pool.Decode(data))
	return f
}

func (f *fixture) setVault(t *testing.T, address, mint, owner solana.PublicKey, amount uint64) {
	data, err := sol.EncodeTokenAccount(sol.TokenAccount{Address: address, Mint: mint, Owner: owner, Amount: amount})
	require.NoError(t, err)
	f.accounts.Set(address, data)
}

func TestPoolIdentity(t *testing.T) {
	f := newFixture(t)
	base, quote := f.pool.GetTokens()
	assert.Equal(t, f.usdc.String(), base)
	assert.Equal(t, f.token.String(), quote)
	assert.Equal(t, DefaultProgramID, f.pool.GetProgramID())
	assert.Equal(t, "cp_swap", string(f.pool.ProtocolName()))
}

func TestQuoteExactIn(t *testing.T) {
	f := newFixture(t)
	s, err := f.pool.QuoteExactIn(context.Background(), f.accounts, f.usdc, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(19_752), s.AmountReceived)
	assert.Equal(t, uint64(25), s.Result.TradeFee)

	_, err = f.pool.QuoteExactIn(context.Background(), f.accounts, newKey(), 10_000)
	assert.Error(t, err)
}

func TestQuoteRejectsOutOfRangeAmounts(t *testing.T) {
	f := newFixture(t)
	_, err := f.pool.Quote(context.Background(), nil, f.usdc.String(), cosmath.ZeroInt())
	assert.Error(t, err)
	huge, ok := cosmath.NewIntFromString("100000000000000000000")
	require.True(t, ok)
	_, err = f.pool.Quote(context.Background(), nil, f.usdc.String(), huge)
	assert.Error(t, err)
}

func TestUpdateFromAccountData(t *testing.T) {
	f := newFixture(t)
	st := f.pool.State()

	data, err := sol.EncodeTokenAccount(sol.TokenAccount{Address: st.Token0Vault, Mint: f.usdc, Amount: 5_000})
	require.NoError(t, err)
	require.NoError(t, f.pool.UpdateFromAccountData(st.Token0Vault.String(), data))
	data, err = sol.EncodeTokenAccount(sol.TokenAccount{Address: st.Token1Vault, Mint: f.token, Amount: 9_000})
	require.NoError(t, err)
	require.NoError(t, f.pool.UpdateFromAccountData(st.Token1Vault.String(), data))

	r0, r1, err := f.pool.Reserves()
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), r0)
	assert.Equal(t, uint64(9_000), r1)

	st.LpSupply = 77
	data, err = st.Encode()
	require.NoError(t, err)
	require.NoError(t, f.pool.UpdateFromAccountData(f.pool.GetID(), data))
	assert.Equal(t, uint64(77), f.pool.State().LpSupply)

	assert.Error(t, f.pool.UpdateFromAccountData(newKey().String(), data))
}
