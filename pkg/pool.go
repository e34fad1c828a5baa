package pkg

import (
	"context"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/sol"
)

type ProtocolName string

const ProtocolNameCpSwap ProtocolName = "cp_swap"

// Pool is a single on-chain liquidity pool that can be decoded from its
// account data and quoted against live vault balances.
type Pool interface {
	ProtocolName() ProtocolName
	GetProgramID() solana.PublicKey
	GetID() string
	GetTokens() (baseMint, quoteMint string)
	Decode(data []byte) error
	Quote(ctx context.Context, solClient *sol.Client, inputMint string, amount math.Int) (math.Int, error)
}

// Protocol discovers pools of one program.
type Protocol interface {
	ProtocolName() ProtocolName
	FetchPoolsByPair(ctx context.Context, baseMint string, quoteMint string) ([]Pool, error)
	FetchPoolByID(ctx context.Context, poolID string) (Pool, error)
}
