// Package swap orchestrates a constant-product swap: gating, fee and
// curve computation, the optional settlement-token discount, the invariant
// check and finally the ledger transfers and pool accounting.
package swap

import (
	"context"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/curve"
	"cpswap/pkg/fees"
	"cpswap/pkg/ledger"
	"cpswap/pkg/oracle"
	"cpswap/pkg/sol"
	"cpswap/pkg/state"
)

type Engine struct {
	store    state.Store
	accounts sol.AccountSource
	epochs   sol.EpochSource
	ledger   ledger.Ledger
	oracle   oracle.Oracle
	logger   *zap.Logger
	now      func() time.Time

	discountConfig solana.PublicKey
	programID      solana.PublicKey
	authority      solana.PublicKey

	locksMu sync.Mutex
	locks   map[solana.PublicKey]*sync.Mutex
}

type Option func(*Engine)

func WithLedger(l ledger.Ledger) Option { return func(e *Engine) { e.ledger = l } }

func WithOracle(o oracle.Oracle) Option { return func(e *Engine) { e.oracle = o } }

func WithEpochSource(s sol.EpochSource) Option { return func(e *Engine) { e.epochs = s } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithDiscountConfig sets the discount config account used by discounted
// swaps.
func WithDiscountConfig(id solana.PublicKey) Option {
	return func(e *Engine) { e.discountConfig = id }
}

func WithProgramID(id solana.PublicKey) Option { return func(e *Engine) { e.programID = id } }

// NewEngine builds an engine reading pool accounts from store and token
// accounts and mints from accounts. If accounts also reports the epoch it
// is used as the epoch source.
func NewEngine(store state.Store, accounts sol.AccountSource, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:     store,
		accounts:  accounts,
		logger:    zap.NewNop(),
		now:       time.Now,
		programID: solana.MustPublicKeyFromBase58(ProgramID),
		locks:     make(map[solana.PublicKey]*sync.Mutex),
	}
	if es, ok := accounts.(sol.EpochSource); ok {
		e.epochs = es
	}
	for _, opt := range opts {
		opt(e)
	}
	authority, _, err := PoolAuthority(e.programID)
	if err != nil {
		return nil, errorsmod.Wrapf(ammerr.ErrInvalidInput, "derive pool authority: %v", err)
	}
	e.authority = authority
	return e, nil
}

// Authority is the owner of every pool vault.
func (e *Engine) Authority() solana.PublicKey {
	return e.authority
}

func (e *Engine) lockPool(pool solana.PublicKey) func() {
	e.locksMu.Lock()
	mu, ok := e.locks[pool]
	if !ok {
		mu = new(sync.Mutex)
		e.locks[pool] = mu
	}
	e.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// Quote runs every check of a swap and returns its settlement without
// executing transfers or touching pool state.
func (e *Engine) Quote(ctx context.Context, req Request) (*Settlement, error) {
	unlock := e.lockPool(req.Pool)
	defer unlock()

	p, err := e.plan(ctx, req, false)
	if err != nil {
		return nil, err
	}
	return p.settlement, nil
}

// Swap executes req. Either every effect is applied (the transfers, the
// fee accounting and the observation update) or none.
func (e *Engine) Swap(ctx context.Context, req Request) (*Settlement, error) {
	if e.ledger == nil {
		return nil, errorsmod.Wrap(ammerr.ErrInvalidInput, "engine has no ledger")
	}
	unlock := e.lockPool(req.Pool)
	defer unlock()

	p, err := e.plan(ctx, req, true)
	if err != nil {
		return nil, err
	}
	if err := e.settle(ctx, p); err != nil {
		return nil, err
	}
	return p.settlement, nil
}

// plan holds a computed swap and the state it will write.
type plan struct {
	settlement  *Settlement
	pool        *state.PoolState
	observation *state.ObservationState

	prevPool        *state.PoolState
	prevObservation *state.ObservationState
}

func (e *Engine) plan(ctx context.Context, req Request, execute bool) (*plan, error) {
	log := e.logger.With(zap.Stringer("pool", req.Pool), zap.Stringer("mode", req.Mode))
	now := req.Now
	if now.IsZero() {
		now = e.now()
	}

	if err := validateRequest(req, execute); err != nil {
		return nil, err
	}
	pool, err := e.store.LoadPool(ctx, req.Pool)
	if err != nil {
		return nil, err
	}
	amm, err := e.store.LoadAmmConfig(ctx, pool.AmmConfig)
	if err != nil {
		return nil, err
	}

	if !pool.SwapEnabled() {
		return nil, errorsmod.Wrapf(ammerr.ErrNotApproved, "swaps disabled on pool %s", req.Pool)
	}
	if uint64(now.Unix()) < pool.OpenTime {
		return nil, errorsmod.Wrapf(ammerr.ErrNotApproved, "pool %s opens at %d", req.Pool, pool.OpenTime)
	}
	direction, err := pool.Direction(req.InputMint, req.OutputMint)
	if err != nil {
		return nil, err
	}
	in, out := pool.Sides(direction)

	mkt, err := e.readMarket(ctx, pool, in, out)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut := mkt.reserve0, mkt.reserve1
	if direction == state.OneForZero {
		reserveIn, reserveOut = reserveOut, reserveIn
	}
	s := &Settlement{
		Pool:          req.Pool,
		Direction:     direction,
		Mode:          req.Mode,
		Stage:         StageGated,
		InputReserve:  reserveIn,
		OutputReserve: reserveOut,
		Epoch:         mkt.epoch,
	}
	log.Debug("swap stage", zap.Stringer("stage", s.Stage), zap.Stringer("direction", direction))

	rates := amm.Rates()
	rates.Creator = pool.CreatorFeeRate(amm)
	var (
		discountCfg *state.DiscountConfig
		portionRate uint64
	)
	if req.PayWithDiscountToken {
		if discountCfg, err = e.loadDiscountConfig(ctx); err != nil {
			return nil, err
		}
		if rates.Trade, portionRate, err = fees.ReduceTradeFeeRate(rates.Trade, rates.Protocol); err != nil {
			return nil, err
		}
		rates.Protocol = 0
	}

	inFee := mkt.inputMint.TransferFeeAt(mkt.epoch)
	outFee := mkt.outputMint.TransferFeeAt(mkt.epoch)
	params := curve.Params{
		InputReserve:      reserveIn,
		OutputReserve:     reserveOut,
		Rates:             rates,
		CreatorFeeOnInput: pool.CreatorFeeOnInput(direction),
	}
	switch req.Mode {
	case ExactInput:
		s.InputTransferAmount = req.Amount
		s.InputTransferFee = inFee.Fee(req.Amount)
		params.Amount = req.Amount - s.InputTransferFee
		if s.Result, err = curve.SwapBaseInput(params); err != nil {
			return nil, err
		}
		s.OutputTransferAmount = s.Result.OutputAmount
		s.OutputTransferFee = outFee.Fee(s.OutputTransferAmount)
		s.AmountReceived = s.OutputTransferAmount - s.OutputTransferFee
		if s.AmountReceived == 0 {
			return nil, errorsmod.Wrap(ammerr.ErrZeroTradingTokens, "output is consumed by its transfer fee")
		}
		if s.AmountReceived < req.Threshold {
			return nil, errorsmod.Wrapf(ammerr.ErrExceededSlippage, "receives %d, minimum %d", s.AmountReceived, req.Threshold)
		}

	case ExactOutput:
		s.OutputTransferFee = outFee.InverseFee(req.Amount)
		if req.Amount+s.OutputTransferFee < req.Amount {
			return nil, errorsmod.Wrapf(ammerr.ErrMathOverflow, "output %d plus transfer fee", req.Amount)
		}
		params.Amount = req.Amount + s.OutputTransferFee
		if s.Result, err = curve.SwapBaseOutput(params); err != nil {
			return nil, err
		}
		s.OutputTransferAmount = s.Result.OutputAmount
		s.AmountReceived = s.OutputTransferAmount - outFee.Fee(s.OutputTransferAmount)
		s.InputTransferFee = inFee.InverseFee(s.Result.InputAmount)
		s.InputTransferAmount = s.Result.InputAmount + s.InputTransferFee
		if s.InputTransferAmount < s.Result.InputAmount {
			return nil, errorsmod.Wrapf(ammerr.ErrMathOverflow, "input %d plus transfer fee", s.Result.InputAmount)
		}
		if s.InputTransferAmount > req.Threshold {
			return nil, errorsmod.Wrapf(ammerr.ErrExceededSlippage, "needs %d, maximum %d", s.InputTransferAmount, req.Threshold)
		}

	default:
		return nil, errorsmod.Wrapf(ammerr.ErrInvalidInput, "swap mode %d", req.Mode)
	}
	s.Stage = StageFeeComputed
	log.Debug("swap stage", zap.Stringer("stage", s.Stage),
		zap.Uint64("amount_in", s.Result.InputAmount),
		zap.Uint64("amount_out", s.Result.OutputAmount),
		zap.Uint64("trade_fee", s.Result.TradeFee))

	if discountCfg != nil {
		if s.Discount, err = e.computeDiscount(ctx, req, amm, discountCfg, mkt, portionRate, s, now); err != nil {
			return nil, err
		}
		s.Stage = StageDiscountComputed
		log.Debug("swap stage", zap.Stringer("stage", s.Stage),
			zap.Uint64("discounted_fee", s.Discount.DiscountedFee),
			zap.Uint64("settlement_amount", s.Discount.Pricing.Amount),
			zap.Stringer("strategy", s.Discount.Pricing.Strategy))
	}

	if err := curve.CheckInvariant(reserveIn, reserveOut, s.Result.NewInputReserve, s.Result.NewOutputReserve); err != nil {
		return nil, err
	}
	s.Stage = StageInvariantChecked

	s.Transfers = []ledger.Transfer{
		{
			From:      req.InputAccount,
			To:        in.Vault,
			Authority: req.Payer,
			Mint:      in.Mint,
			Decimals:  mkt.inputMint.Decimals,
			ProgramID: mkt.inputMint.ProgramID,
			Amount:    s.InputTransferAmount,
		},
		{
			From:      out.Vault,
			To:        req.OutputAccount,
			Authority: e.authority,
			Mint:      out.Mint,
			Decimals:  mkt.outputMint.Decimals,
			ProgramID: mkt.outputMint.ProgramID,
			Amount:    s.OutputTransferAmount,
		},
	}
	if s.Discount != nil {
		s.Transfers = append(s.Transfers, ledger.Transfer{
			From:      req.DiscountAccount,
			To:        s.Discount.Treasury,
			Authority: req.Payer,
			Mint:      discountCfg.SettlementMint,
			Decimals:  mkt.settlementMint.Decimals,
			ProgramID: mkt.settlementMint.ProgramID,
			Amount:    s.Discount.Pricing.Amount,
		})
	}

	p := &plan{settlement: s, prevPool: pool}
	if !execute {
		return p, nil
	}

	// Pool accounting is computed up front; settle only writes it.
	next := *pool
	if err := next.UpdateFees(direction, s.Result.ProtocolFee, s.Result.FundFee, s.Result.CreatorFee, params.CreatorFeeOnInput); err != nil {
		return nil, err
	}
	if s.Discount != nil {
		if err := next.AddDiscountFee(s.Discount.Pricing.Amount); err != nil {
			return nil, err
		}
	}
	next.RecentEpoch = mkt.epoch
	p.pool = &next

	if !pool.ObservationKey.IsZero() {
		obs, err := e.store.LoadObservation(ctx, pool.ObservationKey)
		if err != nil {
			return nil, err
		}
		prev := *obs
		p.prevObservation = &prev
		price0, price1 := curve.PricesX64(mkt.reserve0, mkt.reserve1)
		obs.Update(uint64(now.Unix()), price0, price1)
		p.observation = obs
	}
	return p, nil
}

func (e *Engine) settle(ctx context.Context, p *plan) error {
	s := p.settlement
	// Pool state goes first and is put back if the transfers fail, so
	// transfers only run once their accounting is stored.
	if err := e.save(ctx, s.Pool, p.pool, p.observation); err != nil {
		e.restore(ctx, p)
		return err
	}
	if err := e.ledger.Execute(ctx, s.Transfers); err != nil {
		e.restore(ctx, p)
		return err
	}
	s.Stage = StageSettled

	fields := []zap.Field{
		zap.Stringer("pool", s.Pool),
		zap.Stringer("direction", s.Direction),
		zap.Uint64("amount_in", s.InputTransferAmount),
		zap.Uint64("amount_out", s.AmountReceived),
		zap.Uint64("trade_fee", s.Result.TradeFee),
		zap.Uint64("protocol_fee", s.Result.ProtocolFee),
		zap.Uint64("fund_fee", s.Result.FundFee),
		zap.Uint64("creator_fee", s.Result.CreatorFee),
	}
	if s.Discount != nil {
		fields = append(fields,
			zap.Uint64("discounted_fee", s.Discount.DiscountedFee),
			zap.Uint64("settlement_amount", s.Discount.Pricing.Amount),
			zap.Stringer("price_source", s.Discount.Pricing.Quote.Source))
	}
	e.logger.Info("swap settled", fields...)
	return nil
}

func (e *Engine) save(ctx context.Context, id solana.PublicKey, pool *state.PoolState, obs *state.ObservationState) error {
	if err := e.store.SavePool(ctx, id, pool); err != nil {
		return err
	}
	if obs == nil {
		return nil
	}
	return e.store.SaveObservation(ctx, pool.ObservationKey, obs)
}

// restore writes back the state a failed swap loaded. A failure here
// leaves the swap's accounting in place and is only logged.
func (e *Engine) restore(ctx context.Context, p *plan) {
	s := p.settlement
	if err := e.save(context.WithoutCancel(ctx), s.Pool, p.prevPool, p.prevObservation); err != nil {
		e.logger.Error("restore pool state", zap.Stringer("pool", s.Pool), zap.Error(err))
	}
}

func (e *Engine) loadDiscountConfig(ctx context.Context) (*state.DiscountConfig, error) {
	if e.discountConfig.IsZero() {
		return nil, errorsmod.Wrap(ammerr.ErrDiscountDisabled, "no discount config")
	}
	cfg, err := e.store.LoadDiscountConfig(ctx, e.discountConfig)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, errorsmod.Wrapf(ammerr.ErrDiscountDisabled, "discount config %s", e.discountConfig)
	}
	return cfg, nil
}

func validateRequest(req Request, execute bool) error {
	if req.Amount == 0 {
		return errorsmod.Wrap(ammerr.ErrInvalidInput, "zero amount")
	}
	if req.InputMint.Equals(req.OutputMint) {
		return errorsmod.Wrap(ammerr.ErrInvalidInput, "input and output mints are the same")
	}
	if !execute {
		return nil
	}
	if req.Payer.IsZero() || req.InputAccount.IsZero() || req.OutputAccount.IsZero() {
		return errorsmod.Wrap(ammerr.ErrInvalidInput, "payer, input account and output account are required")
	}
	if req.PayWithDiscountToken && req.DiscountAccount.IsZero() {
		return errorsmod.Wrap(ammerr.ErrInvalidInput, "discount account is required")
	}
	return nil
}
