// Package ledger defines the token-transfer boundary of the swap core and
// an in-memory implementation of it.
package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Transfer moves Amount of Mint from one token account to another. Amount
// is what leaves From; a transfer fee configured on the mint is withheld
// from what reaches To.
type Transfer struct {
	From      solana.PublicKey
	To        solana.PublicKey
	Authority solana.PublicKey
	Mint      solana.PublicKey
	Decimals  uint8
	ProgramID solana.PublicKey
	Amount    uint64
}

// Ledger executes batches of transfers. Execute either applies every
// transfer of the batch or none of them.
type Ledger interface {
	Execute(ctx context.Context, transfers []Transfer) error
	BalanceOf(ctx context.Context, account solana.PublicKey) (uint64, error)
}
