package swap

import (
	"context"
	"fmt"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/fees"
	"cpswap/pkg/mathutil"
	"cpswap/pkg/oracle"
	"cpswap/pkg/pricing"
	"cpswap/pkg/sol"
	"cpswap/pkg/state"
)

// market is the chain state a swap reads once, up front.
type market struct {
	reserve0, reserve1 uint64
	inputMint          sol.MintInfo
	outputMint         sol.MintInfo
	settlementMint     sol.MintInfo
	epoch              uint64
}

func (e *Engine) fetch(ctx context.Context, keys ...solana.PublicKey) ([][]byte, error) {
	data, err := e.accounts.AccountData(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}
	for i, d := range data {
		if d == nil {
			return nil, errorsmod.Wrapf(ammerr.ErrAccountNotFound, "%s", keys[i])
		}
	}
	return data, nil
}

func (e *Engine) readMarket(ctx context.Context, pool *state.PoolState, in, out state.Side) (*market, error) {
	data, err := e.fetch(ctx, pool.Token0Vault, pool.Token1Vault, in.Mint, out.Mint)
	if err != nil {
		return nil, err
	}
	vault0, err := decodeVault(pool.Token0Vault, data[0], pool.Token0Mint, e.authority)
	if err != nil {
		return nil, err
	}
	vault1, err := decodeVault(pool.Token1Vault, data[1], pool.Token1Mint, e.authority)
	if err != nil {
		return nil, err
	}
	m := &market{}
	if m.reserve0, m.reserve1, err = pool.VaultReserves(vault0.Amount, vault1.Amount); err != nil {
		return nil, err
	}
	if m.inputMint, err = decodeMintOf(in.Mint, in.Program, data[2]); err != nil {
		return nil, err
	}
	if m.outputMint, err = decodeMintOf(out.Mint, out.Program, data[3]); err != nil {
		return nil, err
	}
	if e.epochs != nil {
		if m.epoch, err = e.epochs.CurrentEpoch(ctx); err != nil {
			return nil, fmt.Errorf("current epoch: %w", err)
		}
	}
	return m, nil
}

// computeDiscount prices the discounted protocol fee in settlement tokens
// and checks the accounts of the settlement leg.
func (e *Engine) computeDiscount(ctx context.Context, req Request, amm *state.AmmConfig, cfg *state.DiscountConfig, m *market,
	portionRate uint64, s *Settlement, now time.Time) (*Discount, error) {
	portion, err := fees.MulDivFloor(mathutil.U128(s.Result.InputAmount), portionRate, fees.FeeRateDenominator)
	if err != nil {
		return nil, err
	}
	protocolFee, err := mathutil.ToUint64(portion)
	if err != nil {
		return nil, err
	}
	discounted, err := fees.DiscountedFee(protocolFee, cfg.DiscountRate)
	if err != nil {
		return nil, err
	}
	if discounted == 0 {
		return nil, errorsmod.Wrapf(ammerr.ErrInvalidInput, "protocol fee %d is too small to pay in the settlement token", protocolFee)
	}

	keys := []solana.PublicKey{cfg.SettlementMint, cfg.Treasury}
	if !req.DiscountAccount.IsZero() {
		keys = append(keys, req.DiscountAccount)
	}
	data, err := e.fetch(ctx, keys...)
	if err != nil {
		return nil, err
	}
	if m.settlementMint, err = decodeMintOf(cfg.SettlementMint, cfg.SettlementTokenProgram, data[0]); err != nil {
		return nil, err
	}
	treasury, err := decodeToken(cfg.Treasury, data[1])
	if err != nil {
		return nil, err
	}
	if !treasury.Mint.Equals(cfg.SettlementMint) {
		return nil, errorsmod.Wrapf(ammerr.ErrInvalidInput, "treasury %s holds %s, not %s", cfg.Treasury, treasury.Mint, cfg.SettlementMint)
	}
	if !treasury.Owner.Equals(amm.FeeReceiver) {
		return nil, errorsmod.Wrapf(ammerr.ErrInvalidOwner, "treasury %s is owned by %s, not the fee receiver %s", cfg.Treasury, treasury.Owner, amm.FeeReceiver)
	}

	snap := pricing.Snapshot{
		InputMint:            req.InputMint,
		InputDecimals:        m.inputMint.Decimals,
		OutputMint:           req.OutputMint,
		OutputDecimals:       m.outputMint.Decimals,
		CurrentInputReserve:  s.InputReserve,
		CurrentOutputReserve: s.OutputReserve,
		SettlementDecimals:   m.settlementMint.Decimals,
		Now:                  now,
	}
	if snap.Pools, err = e.referencePools(ctx, cfg, req); err != nil {
		return nil, err
	}
	if cfg.Source == state.PriceSourceOracle {
		if snap.Feed, err = e.readFeed(ctx, cfg); err != nil {
			return nil, err
		}
	}
	res, err := pricing.NewResolver(*cfg, snap).Resolve(discounted)
	if err != nil {
		return nil, err
	}

	if !req.DiscountAccount.IsZero() {
		acct, err := decodeToken(req.DiscountAccount, data[2])
		if err != nil {
			return nil, err
		}
		if !acct.Mint.Equals(cfg.SettlementMint) {
			return nil, errorsmod.Wrapf(ammerr.ErrInvalidInput, "discount account %s holds %s, not %s", req.DiscountAccount, acct.Mint, cfg.SettlementMint)
		}
		if !req.Payer.IsZero() && !acct.Owner.Equals(req.Payer) {
			return nil, errorsmod.Wrapf(ammerr.ErrInvalidOwner, "discount account %s is owned by %s", req.DiscountAccount, acct.Owner)
		}
		if acct.Amount < res.Amount {
			return nil, errorsmod.Wrapf(ammerr.ErrInsufficientBalance, "discount account holds %d, needs %d", acct.Amount, res.Amount)
		}
	}

	return &Discount{
		ProtocolFee:   protocolFee,
		DiscountedFee: discounted,
		Pricing:       res,
		Treasury:      cfg.Treasury,
	}, nil
}

// referencePools loads the pools the resolver may need for this request.
func (e *Engine) referencePools(ctx context.Context, cfg *state.DiscountConfig, req Request) (map[pricing.Role]pricing.PoolSnapshot, error) {
	wanted := make(map[pricing.Role]solana.PublicKey)
	viaNative := false
	if cfg.Source == state.PriceSourcePool {
		if !cfg.SettlementPool.IsZero() {
			wanted[pricing.RoleSettlement] = cfg.SettlementPool
		} else {
			wanted[pricing.RoleSettlementNative] = cfg.SettlementNativePool
			viaNative = true
		}
	}
	if !req.BridgePool.IsZero() {
		wanted[pricing.RoleIntermediate] = req.BridgePool
		viaNative = true
	}
	if req.InputMint.Equals(pricing.NativeMint) && !req.OutputMint.Equals(cfg.QuoteMint) {
		viaNative = true
	}
	if viaNative && !cfg.NativeQuotePool.IsZero() {
		wanted[pricing.RoleNativeQuote] = cfg.NativeQuotePool
	}

	pools := make(map[pricing.Role]pricing.PoolSnapshot, len(wanted))
	for role, id := range wanted {
		if id.IsZero() {
			continue
		}
		snap, err := e.poolSnapshot(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s pool: %w", role, err)
		}
		pools[role] = snap
	}
	return pools, nil
}

func (e *Engine) poolSnapshot(ctx context.Context, id solana.PublicKey) (pricing.PoolSnapshot, error) {
	pool, err := e.store.LoadPool(ctx, id)
	if err != nil {
		return pricing.PoolSnapshot{}, err
	}
	data, err := e.fetch(ctx, pool.Token0Vault, pool.Token1Vault)
	if err != nil {
		return pricing.PoolSnapshot{}, err
	}
	vault0, err := decodeVault(pool.Token0Vault, data[0], pool.Token0Mint, e.authority)
	if err != nil {
		return pricing.PoolSnapshot{}, err
	}
	vault1, err := decodeVault(pool.Token1Vault, data[1], pool.Token1Mint, e.authority)
	if err != nil {
		return pricing.PoolSnapshot{}, err
	}
	reserve0, reserve1, err := pool.VaultReserves(vault0.Amount, vault1.Amount)
	if err != nil {
		return pricing.PoolSnapshot{}, err
	}
	return pricing.PoolSnapshot{
		Address: id,
		Vault0:  pricing.TokenBalance{Mint: vault0.Mint, Amount: reserve0, Decimals: pool.Mint0Decimals},
		Vault1:  pricing.TokenBalance{Mint: vault1.Mint, Amount: reserve1, Decimals: pool.Mint1Decimals},
	}, nil
}

func (e *Engine) readFeed(ctx context.Context, cfg *state.DiscountConfig) (*oracle.Price, error) {
	if e.oracle == nil {
		return nil, errorsmod.Wrapf(ammerr.ErrOracleUnavailable, "no oracle for feed %s", cfg.SettlementFeed)
	}
	p, err := e.oracle.ReadPrice(ctx, cfg.SettlementFeed, cfg.FeedMaxAge())
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeToken(address solana.PublicKey, data []byte) (sol.TokenAccount, error) {
	acct, err := sol.DecodeTokenAccount(address, data)
	if err != nil {
		return sol.TokenAccount{}, errorsmod.Wrap(ammerr.ErrInvalidAccountData, err.Error())
	}
	return acct, nil
}

// decodeVault decodes a pool vault and checks it before its balance is
// trusted.
func decodeVault(address solana.PublicKey, data []byte, mint, authority solana.PublicKey) (sol.TokenAccount, error) {
	acct, err := decodeToken(address, data)
	if err != nil {
		return sol.TokenAccount{}, err
	}
	if !acct.Mint.Equals(mint) {
		return sol.TokenAccount{}, errorsmod.Wrapf(ammerr.ErrInvalidInput, "vault %s holds %s, expected %s", address, acct.Mint, mint)
	}
	if !acct.Owner.Equals(authority) {
		return sol.TokenAccount{}, errorsmod.Wrapf(ammerr.ErrInvalidInput, "vault %s is owned by %s, not the pool authority", address, acct.Owner)
	}
	return acct, nil
}

func decodeMint(address solana.PublicKey, data []byte) (sol.MintInfo, error) {
	info, err := sol.DecodeMint(address, data)
	if err != nil {
		return sol.MintInfo{}, errorsmod.Wrap(ammerr.ErrInvalidAccountData, err.Error())
	}
	return info, nil
}

// decodeMintOf decodes a mint whose owning program was recorded alongside
// its address. A zero program keeps the one inferred from the data.
func decodeMintOf(address, program solana.PublicKey, data []byte) (sol.MintInfo, error) {
	info, err := decodeMint(address, data)
	if err != nil || program.IsZero() {
		return info, err
	}
	if info.IsToken2022() && !program.Equals(solana.Token2022ProgramID) {
		return sol.MintInfo{}, errorsmod.Wrapf(ammerr.ErrInvalidAccountData, "mint %s carries Token-2022 extensions but is recorded under %s", address, program)
	}
	info.ProgramID = program
	return info, nil
}
