package swap

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/ledger"
)

const (
	// ProgramID is the default id of the swap program.
	ProgramID = "5jUxRUF75oPnBCWHNtBmDSfojJ3PkMwsu2b1QvDnTWsB"
	// AuthSeed derives the authority that owns every pool vault.
	AuthSeed = "vault_and_lp_mint_auth_seed"

	instructionTransferChecked uint8 = 12
)

// PoolAuthority derives the vault authority of programID.
func PoolAuthority(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(AuthSeed)}, programID)
}

// Instructions renders the settlement transfers as SPL TransferChecked
// instructions, addressed to the token program that owns each mint.
func (s *Settlement) Instructions() ([]solana.Instruction, error) {
	out := make([]solana.Instruction, 0, len(s.Transfers))
	for _, t := range s.Transfers {
		ix, err := transferChecked(t)
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, nil
}

func transferChecked(t ledger.Transfer) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint8(instructionTransferChecked); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(t.Amount, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(t.Decimals); err != nil {
		return nil, err
	}

	programID := t.ProgramID
	if programID.IsZero() {
		programID = solana.TokenProgramID
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(t.From, true, false),
		solana.NewAccountMeta(t.Mint, false, false),
		solana.NewAccountMeta(t.To, true, false),
		solana.NewAccountMeta(t.Authority, false, true),
	}
	return solana.NewInstruction(programID, accounts, buf.Bytes()), nil
}
