package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/sol"
)

type fixture struct {
	ledger           *Memory
	mint, feeMint    solana.PublicKey
	alice, bob       solana.PublicKey
	aliceA, bobA     solana.PublicKey
	aliceFee, bobFee solana.PublicKey
}

func newFixture(t *testing.T) fixture {
	f := fixture{
		ledger:   NewMemory(),
		mint:     solana.NewWallet().PublicKey(),
		feeMint:  solana.NewWallet().PublicKey(),
		alice:    solana.NewWallet().PublicKey(),
		bob:      solana.NewWallet().PublicKey(),
		aliceA:   solana.NewWallet().PublicKey(),
		bobA:     solana.NewWallet().PublicKey(),
		aliceFee: solana.NewWallet().PublicKey(),
		bobFee:   solana.NewWallet().PublicKey(),
	}
	f.ledger.AddMint(sol.MintInfo{Address: f.mint, Decimals: 6})
	f.ledger.AddMint(sol.MintInfo{
		Address:          f.feeMint,
		Decimals:         9,
		ProgramID:        solana.Token2022ProgramID,
		NewerTransferFee: &sol.EpochFee{Epoch: 0, BasisPoints: 100, MaximumFee: 1_000},
	})
	require.NoError(t, f.ledger.OpenAccount(f.aliceA, f.mint, f.alice, 1_000))
	require.NoError(t, f.ledger.OpenAccount(f.bobA, f.mint, f.bob, 0))
	require.NoError(t, f.ledger.OpenAccount(f.aliceFee, f.feeMint, f.alice, 100_000))
	require.NoError(t, f.ledger.OpenAccount(f.bobFee, f.feeMint, f.bob, 0))
	return f
}

func balance(t *testing.T, l *Memory, account solana.PublicKey) uint64 {
	b, err := l.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return b
}

func TestExecuteMovesBalances(t *testing.T) {
	f := newFixture(t)
	err := f.ledger.Execute(context.Background(), []Transfer{
		{From: f.aliceA, To: f.bobA, Authority: f.alice, Mint: f.mint, Decimals: 6, Amount: 400},
		{From: f.bobA, To: f.aliceA, Authority: f.bob, Mint: f.mint, Decimals: 6, Amount: 100},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(700), balance(t, f.ledger, f.aliceA))
	assert.Equal(t, uint64(300), balance(t, f.ledger, f.bobA))
}

func TestExecuteWithholdsTransferFee(t *testing.T) {
	f := newFixture(t)
	err := f.ledger.Execute(context.Background(), []Transfer{
		{From: f.aliceFee, To: f.bobFee, Authority: f.alice, Mint: f.feeMint, Decimals: 9, ProgramID: solana.Token2022ProgramID, Amount: 50_000},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(50_000), balance(t, f.ledger, f.aliceFee))
	assert.Equal(t, uint64(49_500), balance(t, f.ledger, f.bobFee))
	assert.Equal(t, uint64(500), f.ledger.Withheld(f.feeMint))
}

func TestExecuteIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name string
		bad  func(f fixture) Transfer
		want error
	}{
		{"insufficient balance", func(f fixture) Transfer {
			return Transfer{From: f.bobA, To: f.aliceA, Authority: f.bob, Mint: f.mint, Decimals: 6, Amount: 10_000}
		}, ammerr.ErrInsufficientBalance},
		{"wrong authority", func(f fixture) Transfer {
			return Transfer{From: f.aliceA, To: f.bobA, Authority: f.bob, Mint: f.mint, Decimals: 6, Amount: 1}
		}, ammerr.ErrTransferFailed},
		{"wrong mint", func(f fixture) Transfer {
			return Transfer{From: f.aliceA, To: f.bobFee, Authority: f.alice, Mint: f.mint, Decimals: 6, Amount: 1}
		}, ammerr.ErrTransferFailed},
		{"wrong decimals", func(f fixture) Transfer {
			return Transfer{From: f.aliceA, To: f.bobA, Authority: f.alice, Mint: f.mint, Decimals: 9, Amount: 1}
		}, ammerr.ErrTransferFailed},
		{"unknown destination", func(f fixture) Transfer {
			return Transfer{From: f.aliceA, To: solana.NewWallet().PublicKey(), Authority: f.alice, Mint: f.mint, Decimals: 6, Amount: 1}
		}, ammerr.ErrTransferFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.ledger.Execute(context.Background(), []Transfer{
				{From: f.aliceA, To: f.bobA, Authority: f.alice, Mint: f.mint, Decimals: 6, Amount: 400},
				tt.bad(f),
			})
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, uint64(1_000), balance(t, f.ledger, f.aliceA))
			assert.Equal(t, uint64(0), balance(t, f.ledger, f.bobA))
		})
	}
}

func TestMemoryServesEncodedAccounts(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetEpoch(7)

	data, err := f.ledger.AccountData(context.Background(), []solana.PublicKey{f.aliceA, f.feeMint, solana.NewWallet().PublicKey()})
	require.NoError(t, err)
	require.Len(t, data, 3)

	acct, err := sol.DecodeTokenAccount(f.aliceA, data[0])
	require.NoError(t, err)
	assert.Equal(t, f.alice, acct.Owner)
	assert.Equal(t, uint64(1_000), acct.Amount)

	mint, err := sol.DecodeMint(f.feeMint, data[1])
	require.NoError(t, err)
	assert.True(t, mint.IsToken2022())
	assert.Equal(t, uint16(100), mint.TransferFeeAt(7).BasisPoints)

	assert.Nil(t, data[2])

	epoch, err := f.ledger.CurrentEpoch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), epoch)
}
