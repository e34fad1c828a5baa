package protocol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"cpswap/pkg"
	"cpswap/pkg/pool/cpswap"
	"cpswap/pkg/sol"
	"cpswap/pkg/state"
)

// Offsets of the mint fields in an encoded pool account.
const (
	token0MintOffset = 168
	token1MintOffset = 200
)

type CpSwapProtocol struct {
	SolClient *sol.Client
	ProgramID solana.PublicKey
}

func NewCpSwap(solClient *sol.Client, programID solana.PublicKey) *CpSwapProtocol {
	if programID.IsZero() {
		programID = cpswap.DefaultProgramID
	}
	return &CpSwapProtocol{
		SolClient: solClient,
		ProgramID: programID,
	}
}

func (p *CpSwapProtocol) ProtocolName() pkg.ProtocolName {
	return pkg.ProtocolNameCpSwap
}

func pairFilters(mint0, mint1 solana.PublicKey) []rpc.RPCFilter {
	return []rpc.RPCFilter{
		{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: 0,
				Bytes:  state.Discriminator("PoolState"),
			},
		},
		{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: token0MintOffset,
				Bytes:  mint0.Bytes(),
			},
		},
		{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: token1MintOffset,
				Bytes:  mint1.Bytes(),
			},
		},
	}
}

func (p *CpSwapProtocol) FetchPoolsByPair(ctx context.Context, baseMint string, quoteMint string) ([]pkg.Pool, error) {
	baseMintPubkey, err := solana.PublicKeyFromBase58(baseMint)
	if err != nil {
		return nil, fmt.Errorf("invalid base mint address: %w", err)
	}
	quoteMintPubkey, err := solana.PublicKeyFromBase58(quoteMint)
	if err != nil {
		return nil, fmt.Errorf("invalid quote mint address: %w", err)
	}

	programAccounts, err := p.SolClient.GetProgramAccountsWithOpts(ctx, p.ProgramID, &rpc.GetProgramAccountsOpts{
		Filters: pairFilters(baseMintPubkey, quoteMintPubkey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cp-swap pools: %w", err)
	}

	// pools store their mints sorted, so also try the reverse pair
	reverseAccounts, err := p.SolClient.GetProgramAccountsWithOpts(ctx, p.ProgramID, &rpc.GetProgramAccountsOpts{
		Filters: pairFilters(quoteMintPubkey, baseMintPubkey),
	})
	if err == nil {
		programAccounts = append(programAccounts, reverseAccounts...)
	}

	res := make([]pkg.Pool, 0, len(programAccounts))
	for _, v := range programAccounts {
		pool := cpswap.NewPool(v.Pubkey, p.ProgramID)
		if err := pool.Decode(v.Account.Data.GetBinary()); err != nil {
			continue
		}
		res = append(res, pool)
	}
	return res, nil
}

func (p *CpSwapProtocol) FetchPoolByID(ctx context.Context, poolId string) (pkg.Pool, error) {
	poolPubkey, err := solana.PublicKeyFromBase58(poolId)
	if err != nil {
		return nil, fmt.Errorf("invalid pool ID: %w", err)
	}

	account, err := p.SolClient.GetAccountInfoWithOpts(ctx, poolPubkey)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool account %s: %w", poolId, err)
	}

	pool := cpswap.NewPool(poolPubkey, p.ProgramID)
	if err := pool.Decode(account.Value.Data.GetBinary()); err != nil {
		return nil, fmt.Errorf("failed to parse pool data for pool %s: %w", poolId, err)
	}
	return pool, nil
}
