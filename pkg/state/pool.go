package state

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/mathutil"
)

// Pool status bits. A set bit disables the operation.
const (
	PoolStatusDeposit uint8 = 1 << iota
	PoolStatusWithdraw
	PoolStatusSwap
)

// CreatorFeeOn selects the token the creator fee is charged in.
type CreatorFeeOn uint8

const (
	CreatorFeeOnBothToken CreatorFeeOn = iota
	CreatorFeeOnOnlyToken0
	CreatorFeeOnOnlyToken1
)

type TradeDirection uint8

const (
	ZeroForOne TradeDirection = iota
	OneForZero
)

// String names the direction as zero_for_one or one_for_zero.
func (d TradeDirection) String() string {
	if d == ZeroForOne {
		return "zero_for_one"
	}
	return "one_for_zero"
}

// PoolState is the persisted state of a two-token pool.
type PoolState struct {
	AmmConfig      solana.PublicKey
	PoolCreator    solana.PublicKey
	Token0Vault    solana.PublicKey
	Token1Vault    solana.PublicKey
	LpMint         solana.PublicKey
	Token0Mint     solana.PublicKey
	Token1Mint     solana.PublicKey
	Token0Program  solana.PublicKey
	Token1Program  solana.PublicKey
	ObservationKey solana.PublicKey

	AuthBump       uint8
	Status         uint8
	LpMintDecimals uint8
	Mint0Decimals  uint8
	Mint1Decimals  uint8

	LpSupply           uint64
	ProtocolFeesToken0 uint64
	ProtocolFeesToken1 uint64
	FundFeesToken0     uint64
	FundFeesToken1     uint64
	OpenTime           uint64
	RecentEpoch        uint64

	CreatorFeeOn     CreatorFeeOn
	EnableCreatorFee bool
	Padding1         [6]uint8

	CreatorFeesToken0 uint64
	CreatorFeesToken1 uint64
	// CollectedDiscountFees counts settlement-token fees paid into the
	// treasury by swaps on this pool.
	CollectedDiscountFees uint64
	Padding               [27]uint64
}

// DecodePoolState decodes a pool account, discriminator included.
func DecodePoolState(data []byte) (*PoolState, error) {
	p := new(PoolState)
	if err := decodeAccount(accountPoolState, data, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode is the inverse of DecodePoolState.
func (p *PoolState) Encode() ([]byte, error) {
	return encodeAccount(accountPoolState, p)
}

// SetStatusBit sets bit in Status when disabled is true and clears it
// otherwise. A set bit disables the operation it names.
func (p *PoolState) SetStatusBit(bit uint8, disabled bool) {
	if disabled {
		p.Status |= bit
	} else {
		p.Status &^= bit
	}
}

// SwapEnabled reports whether the PoolStatusSwap bit is clear.
func (p *PoolState) SwapEnabled() bool {
	return p.Status&PoolStatusSwap == 0
}

// Direction orients a trade against the pool's token order.
func (p *PoolState) Direction(inputMint, outputMint solana.PublicKey) (TradeDirection, error) {
	switch {
	case inputMint.Equals(p.Token0Mint) && outputMint.Equals(p.Token1Mint):
		return ZeroForOne, nil
	case inputMint.Equals(p.Token1Mint) && outputMint.Equals(p.Token0Mint):
		return OneForZero, nil
	default:
		return 0, errorsmod.Wrapf(ammerr.ErrInvalidInput, "mints %s/%s do not match pool %s/%s", inputMint, outputMint, p.Token0Mint, p.Token1Mint)
	}
}

// Side is one leg of a trade as recorded on the pool.
type Side struct {
	Vault    solana.PublicKey
	Mint     solana.PublicKey
	Program  solana.PublicKey
	Decimals uint8
}

// Sides returns the input and output legs of a d trade.
func (p *PoolState) Sides(d TradeDirection) (in, out Side) {
	zero := Side{Vault: p.Token0Vault, Mint: p.Token0Mint, Program: p.Token0Program, Decimals: p.Mint0Decimals}
	one := Side{Vault: p.Token1Vault, Mint: p.Token1Mint, Program: p.Token1Program, Decimals: p.Mint1Decimals}
	if d == ZeroForOne {
		return zero, one
	}
	return one, zero
}

// VaultReserves nets accrued, uncollected fees out of the vault balances.
func (p *PoolState) VaultReserves(vault0, vault1 uint64) (reserve0, reserve1 uint64, err error) {
	fees0 := mathutil.U128(p.ProtocolFeesToken0).Add64(p.FundFeesToken0).Add64(p.CreatorFeesToken0)
	fees1 := mathutil.U128(p.ProtocolFeesToken1).Add64(p.FundFeesToken1).Add64(p.CreatorFeesToken1)
	if fees0.Cmp64(vault0) > 0 || fees1.Cmp64(vault1) > 0 {
		return 0, 0, errorsmod.Wrapf(ammerr.ErrMathOverflow, "accrued fees %s/%s exceed vaults %d/%d", fees0, fees1, vault0, vault1)
	}
	return vault0 - fees0.Lo, vault1 - fees1.Lo, nil
}

// CreatorFeeRate is the creator rate that applies to this pool.
func (p *PoolState) CreatorFeeRate(cfg *AmmConfig) uint64 {
	if !p.EnableCreatorFee {
		return 0
	}
	return cfg.CreatorFeeRate
}

// CreatorFeeOnInput reports whether the creator fee of a d trade is taken
// from the input token.
func (p *PoolState) CreatorFeeOnInput(d TradeDirection) bool {
	switch p.CreatorFeeOn {
	case CreatorFeeOnOnlyToken0:
		return d == ZeroForOne
	case CreatorFeeOnOnlyToken1:
		return d == OneForZero
	default:
		return true
	}
}

// UpdateFees accrues the protocol and fund fees of a trade on its input side
// and the creator fee on whichever side it was charged.
func (p *PoolState) UpdateFees(d TradeDirection, protocolFee, fundFee, creatorFee uint64, creatorOnInput bool) error {
	inProtocol, inFund, inCreator, outCreator := &p.ProtocolFeesToken0, &p.FundFeesToken0, &p.CreatorFeesToken0, &p.CreatorFeesToken1
	if d == OneForZero {
		inProtocol, inFund, inCreator, outCreator = &p.ProtocolFeesToken1, &p.FundFeesToken1, &p.CreatorFeesToken1, &p.CreatorFeesToken0
	}
	creator := outCreator
	if creatorOnInput {
		creator = inCreator
	}

	next := []struct {
		dst *uint64
		add uint64
	}{{inProtocol, protocolFee}, {inFund, fundFee}, {creator, creatorFee}}
	sums := make([]uint64, len(next))
	for i, n := range next {
		sum, err := mathutil.Add(mathutil.U128(*n.dst), mathutil.U128(n.add))
		if err != nil {
			return err
		}
		if sums[i], err = mathutil.ToUint64(sum); err != nil {
			return err
		}
	}
	for i, n := range next {
		*n.dst = sums[i]
	}
	return nil
}

// AddDiscountFee records a settlement-token fee paid by a swap.
func (p *PoolState) AddDiscountFee(amount uint64) error {
	sum, err := mathutil.ToUint64(mathutil.U128(p.CollectedDiscountFees).Add64(amount))
	if err != nil {
		return err
	}
	p.CollectedDiscountFees = sum
	return nil
}
