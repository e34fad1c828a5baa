package swap

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/curve"
	"cpswap/pkg/ledger"
	"cpswap/pkg/pricing"
	"cpswap/pkg/state"
)

type Mode uint8

const (
	ExactInput Mode = iota
	ExactOutput
)

func (m Mode) String() string {
	if m == ExactInput {
		return "exact_input"
	}
	return "exact_output"
}

// Request is one swap against one pool.
type Request struct {
	Pool       solana.PublicKey
	InputMint  solana.PublicKey
	OutputMint solana.PublicKey
	Mode       Mode
	// Amount is amount_in for ExactInput and amount_out for ExactOutput.
	Amount uint64
	// Threshold is minimum_amount_out for ExactInput and max_amount_in for
	// ExactOutput.
	Threshold            uint64
	PayWithDiscountToken bool
	// BridgePool values the protocol fee of inputs that are neither the
	// quote asset nor the native asset. It must be an allowed bridge.
	BridgePool solana.PublicKey
	// Now is the request time; zero means the engine clock.
	Now time.Time

	Payer           solana.PublicKey
	InputAccount    solana.PublicKey
	OutputAccount   solana.PublicKey
	DiscountAccount solana.PublicKey
}

// Stage is the furthest point a swap reached.
type Stage uint8

const (
	StageGated Stage = iota
	StageFeeComputed
	StageDiscountComputed
	StageInvariantChecked
	StageSettled
)

func (s Stage) String() string {
	switch s {
	case StageGated:
		return "gated"
	case StageFeeComputed:
		return "fee_computed"
	case StageDiscountComputed:
		return "discount_computed"
	case StageInvariantChecked:
		return "invariant_checked"
	case StageSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Discount describes the settlement-token leg of a discounted swap.
type Discount struct {
	// ProtocolFee is the protocol cut in input-token units before the
	// discount; DiscountedFee is what remains after it.
	ProtocolFee   uint64
	DiscountedFee uint64
	Pricing       pricing.Result
	Treasury      solana.PublicKey
}

// Settlement is the full outcome of a swap or quote.
type Settlement struct {
	Pool      solana.PublicKey
	Direction state.TradeDirection
	Mode      Mode
	Stage     Stage
	Result    curve.SwapResult

	// InputTransferAmount is what the user sends, OutputTransferAmount what
	// leaves the vault. The fees are the token transfer fees on each leg.
	InputTransferAmount  uint64
	InputTransferFee     uint64
	OutputTransferAmount uint64
	OutputTransferFee    uint64
	// AmountReceived is the output net of its transfer fee.
	AmountReceived uint64

	// Reserves before the swap, net of accrued fees.
	InputReserve  uint64
	OutputReserve uint64

	Discount  *Discount
	Transfers []ledger.Transfer
	Epoch     uint64
}
