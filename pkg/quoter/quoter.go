// Package quoter turns swap settlements into the JSON quotes served by the
// command line tool and the quote service.
package quoter

import (
	"context"
	"fmt"
	stdmath "math"

	errorsmod "cosmossdk.io/errors"
	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/swap"
)

const bpsDenominator = 10_000

// Params is a quote request in its textual form.
type Params struct {
	Pool        string `json:"pool" form:"pool"`
	InputMint   string `json:"inputMint" form:"inputMint"`
	OutputMint  string `json:"outputMint" form:"outputMint"`
	Amount      string `json:"amount" form:"amount"`
	ExactOut    bool   `json:"exactOut" form:"exactOut"`
	Discount    bool   `json:"payWithDiscountToken" form:"payWithDiscountToken"`
	BridgePool  string `json:"bridgePool,omitempty" form:"bridgePool"`
	SlippageBps int    `json:"slippageBps,omitempty" form:"slippageBps"`
}

type DiscountQuote struct {
	ProtocolFee      string `json:"protocolFee"`
	DiscountedFee    string `json:"discountedFee"`
	FeeValueUSD      string `json:"feeValueUsd"`
	SettlementPrice  string `json:"settlementPrice"`
	PriceSource      string `json:"priceSource"`
	Strategy         string `json:"strategy"`
	SettlementAmount string `json:"settlementAmount"`
	Treasury         string `json:"treasury"`
}

type Response struct {
	Pool                 string         `json:"pool"`
	InputMint            string         `json:"inputMint"`
	OutputMint           string         `json:"outputMint"`
	Mode                 string         `json:"mode"`
	InAmount             string         `json:"inAmount"`
	OutAmount            string         `json:"outAmount"`
	OtherAmountThreshold string         `json:"otherAmountThreshold"`
	SlippageBps          int            `json:"slippageBps"`
	PriceImpact          string         `json:"priceImpact"`
	TradeFee             string         `json:"tradeFee"`
	ProtocolFee          string         `json:"protocolFee"`
	FundFee              string         `json:"fundFee"`
	CreatorFee           string         `json:"creatorFee"`
	LPFee                string         `json:"lpFee"`
	InputTransferFee     string         `json:"inputTransferFee"`
	OutputTransferFee    string         `json:"outputTransferFee"`
	Epoch                uint64         `json:"epoch"`
	Discount             *DiscountQuote `json:"discount,omitempty"`
}

type Quoter struct {
	engine *swap.Engine
	logger *zap.Logger
}

func New(engine *swap.Engine, logger *zap.Logger) *Quoter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Quoter{engine: engine, logger: logger}
}

// Request parses p into an engine request.
func (p Params) Request() (swap.Request, error) {
	var req swap.Request
	var err error
	if req.Pool, err = parseKey("pool", p.Pool); err != nil {
		return req, err
	}
	if req.InputMint, err = parseKey("input mint", p.InputMint); err != nil {
		return req, err
	}
	if req.OutputMint, err = parseKey("output mint", p.OutputMint); err != nil {
		return req, err
	}
	if p.BridgePool != "" {
		if req.BridgePool, err = parseKey("bridge pool", p.BridgePool); err != nil {
			return req, err
		}
	}
	amount, ok := cosmath.NewIntFromString(p.Amount)
	if !ok || !amount.IsPositive() || !amount.IsUint64() {
		return req, errorsmod.Wrapf(ammerr.ErrInvalidInput, "invalid amount %q", p.Amount)
	}
	if p.SlippageBps < 0 || p.SlippageBps > bpsDenominator {
		return req, errorsmod.Wrapf(ammerr.ErrInvalidInput, "slippage %d bps out of range", p.SlippageBps)
	}
	req.Amount = amount.Uint64()
	req.Mode = swap.ExactInput
	if p.ExactOut {
		// a quote reports the input; it does not bound it
		req.Mode = swap.ExactOutput
		req.Threshold = stdmath.MaxUint64
	}
	req.PayWithDiscountToken = p.Discount
	return req, nil
}

func parseKey(name, s string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, errorsmod.Wrapf(ammerr.ErrInvalidInput, "invalid %s %q", name, s)
	}
	return key, nil
}

func (q *Quoter) Quote(ctx context.Context, p Params) (*Response, error) {
	req, err := p.Request()
	if err != nil {
		return nil, err
	}
	s, err := q.engine.Quote(ctx, req)
	if err != nil {
		q.logger.Debug("quote failed", zap.String("pool", p.Pool), zap.Error(err))
		return nil, err
	}
	return NewResponse(s, req, p.SlippageBps)
}

// NewResponse renders s. The threshold is the least output an exact-input
// swap should accept, or the most input an exact-output swap should pay,
// given slippageBps.
func NewResponse(s *swap.Settlement, req swap.Request, slippageBps int) (*Response, error) {
	in := cosmath.NewIntFromUint64(s.InputTransferAmount)
	out := cosmath.NewIntFromUint64(s.AmountReceived)
	denom := cosmath.NewInt(bpsDenominator)

	var threshold cosmath.Int
	if s.Mode == swap.ExactInput {
		threshold = out.Mul(cosmath.NewInt(int64(bpsDenominator - slippageBps))).Quo(denom)
	} else {
		// round up so the bound never undercuts the quoted input
		threshold = in.Mul(cosmath.NewInt(int64(bpsDenominator + slippageBps))).Add(denom.SubRaw(1)).Quo(denom)
	}

	r := &Response{
		Pool:                 s.Pool.String(),
		InputMint:            req.InputMint.String(),
		OutputMint:           req.OutputMint.String(),
		Mode:                 s.Mode.String(),
		InAmount:             in.String(),
		OutAmount:            out.String(),
		OtherAmountThreshold: threshold.String(),
		SlippageBps:          slippageBps,
		PriceImpact:          PriceImpact(s).String(),
		TradeFee:             fmt.Sprint(s.Result.TradeFee),
		ProtocolFee:          fmt.Sprint(s.Result.ProtocolFee),
		FundFee:              fmt.Sprint(s.Result.FundFee),
		CreatorFee:           fmt.Sprint(s.Result.CreatorFee),
		LPFee:                fmt.Sprint(s.Result.LPFee),
		InputTransferFee:     fmt.Sprint(s.InputTransferFee),
		OutputTransferFee:    fmt.Sprint(s.OutputTransferFee),
		Epoch:                s.Epoch,
	}
	if d := s.Discount; d != nil {
		r.Discount = &DiscountQuote{
			ProtocolFee:      fmt.Sprint(d.ProtocolFee),
			DiscountedFee:    fmt.Sprint(d.DiscountedFee),
			FeeValueUSD:      d.Pricing.FeeValueUSD.String(),
			SettlementPrice:  d.Pricing.Quote.Price.String(),
			PriceSource:      d.Pricing.Quote.Source.String(),
			Strategy:         d.Pricing.Strategy.String(),
			SettlementAmount: fmt.Sprint(d.Pricing.Amount),
			Treasury:         d.Treasury.String(),
		}
	}
	return r, nil
}

// PriceImpact is the relative gap between the spot price of the pool and
// the execution price of s, both in raw units.
func PriceImpact(s *swap.Settlement) cosmath.LegacyDec {
	if s.InputReserve == 0 || s.InputTransferAmount == 0 {
		return cosmath.LegacyZeroDec()
	}
	spot := cosmath.LegacyNewDecFromInt(cosmath.NewIntFromUint64(s.OutputReserve)).
		Quo(cosmath.LegacyNewDecFromInt(cosmath.NewIntFromUint64(s.InputReserve)))
	if spot.IsZero() {
		return cosmath.LegacyZeroDec()
	}
	exec := cosmath.LegacyNewDecFromInt(cosmath.NewIntFromUint64(s.AmountReceived)).
		Quo(cosmath.LegacyNewDecFromInt(cosmath.NewIntFromUint64(s.InputTransferAmount)))
	impact := cosmath.LegacyOneDec().Sub(exec.Quo(spot))
	if impact.IsNegative() {
		return cosmath.LegacyZeroDec()
	}
	return impact
}
