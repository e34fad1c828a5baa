package cpswap

import (
	"context"
	"fmt"
	"sync"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"cpswap/pkg"
	"cpswap/pkg/sol"
	"cpswap/pkg/state"
	"cpswap/pkg/swap"
)

var DefaultProgramID = solana.MustPublicKeyFromBase58(swap.ProgramID)

// Pool is a constant-product pool as seen by discovery and quoting.
type Pool struct {
	PoolId    solana.PublicKey
	ProgramID solana.PublicKey

	mu    sync.RWMutex
	state state.PoolState
	// vault balances pushed by account subscriptions
	vault0, vault1 uint64
}

func NewPool(id, programID solana.PublicKey) *Pool {
	return &Pool{PoolId: id, ProgramID: programID}
}

// NewPoolFromState wraps an already decoded pool account.
func NewPoolFromState(id, programID solana.PublicKey, st state.PoolState) *Pool {
	return &Pool{PoolId: id, ProgramID: programID, state: st}
}

func (p *Pool) ProtocolName() pkg.ProtocolName {
	return pkg.ProtocolNameCpSwap
}

func (p *Pool) GetProgramID() solana.PublicKey {
	if p.ProgramID.IsZero() {
		return DefaultProgramID
	}
	return p.ProgramID
}

func (p *Pool) GetID() string {
	return p.PoolId.String()
}

func (p *Pool) GetTokens() (string, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Token0Mint.String(), p.state.Token1Mint.String()
}

func (p *Pool) GetBaseVault() solana.PublicKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Token0Vault
}

func (p *Pool) GetQuoteVault() solana.PublicKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Token1Vault
}

// State returns a copy of the decoded pool account.
func (p *Pool) State() state.PoolState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pool) Decode(data []byte) error {
	st, err := state.DecodePoolState(data)
	if err != nil {
		return fmt.Errorf("failed to decode cp-swap pool: %w", err)
	}
	p.mu.Lock()
	p.state = *st
	p.mu.Unlock()
	return nil
}

// UpdateFromAccountData applies a pushed update of the pool account or one
// of its vaults.
func (p *Pool) UpdateFromAccountData(accountID string, data []byte) error {
	key, err := solana.PublicKeyFromBase58(accountID)
	if err != nil {
		return fmt.Errorf("invalid account id %q: %w", accountID, err)
	}
	if key.Equals(p.PoolId) {
		return p.Decode(data)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case key.Equals(p.state.Token0Vault):
		acct, err := sol.DecodeTokenAccount(key, data)
		if err != nil {
			return err
		}
		p.vault0 = acct.Amount
	case key.Equals(p.state.Token1Vault):
		acct, err := sol.DecodeTokenAccount(key, data)
		if err != nil {
			return err
		}
		p.vault1 = acct.Amount
	default:
		return fmt.Errorf("account %s does not belong to pool %s", accountID, p.PoolId)
	}
	return nil
}

// Reserves returns the last pushed vault balances net of accrued fees.
func (p *Pool) Reserves() (uint64, uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.VaultReserves(p.vault0, p.vault1)
}

func (p *Pool) Quote(ctx context.Context, solClient *sol.Client, inputMint string, amount cosmath.Int) (cosmath.Int, error) {
	mint, err := solana.PublicKeyFromBase58(inputMint)
	if err != nil {
		return cosmath.ZeroInt(), fmt.Errorf("invalid input mint: %w", err)
	}
	if !amount.IsPositive() || !amount.IsUint64() {
		return cosmath.ZeroInt(), fmt.Errorf("amount %s out of range", amount)
	}
	s, err := p.QuoteExactIn(ctx, solClient, mint, amount.Uint64())
	if err != nil {
		return cosmath.ZeroInt(), err
	}
	return cosmath.NewIntFromUint64(s.AmountReceived), nil
}

// QuoteExactIn runs an exact-input quote against accounts read from src.
// The decoded pool account is used as is; only its config, vaults and
// mints are fetched.
func (p *Pool) QuoteExactIn(ctx context.Context, src sol.AccountSource, inputMint solana.PublicKey, amountIn uint64) (*swap.Settlement, error) {
	st := p.State()
	var outputMint solana.PublicKey
	switch {
	case inputMint.Equals(st.Token0Mint):
		outputMint = st.Token1Mint
	case inputMint.Equals(st.Token1Mint):
		outputMint = st.Token0Mint
	default:
		return nil, fmt.Errorf("mint %s is not traded by pool %s", inputMint, p.PoolId)
	}

	store := state.NewChainStore(src)
	if err := store.SavePool(ctx, p.PoolId, &st); err != nil {
		return nil, err
	}
	opts := []swap.Option{swap.WithProgramID(p.GetProgramID())}
	if es, ok := src.(sol.EpochSource); ok {
		opts = append(opts, swap.WithEpochSource(es))
	}
	engine, err := swap.NewEngine(store, store, opts...)
	if err != nil {
		return nil, err
	}
	return engine.Quote(ctx, swap.Request{
		Pool:       p.PoolId,
		InputMint:  inputMint,
		OutputMint: outputMint,
		Mode:       swap.ExactInput,
		Amount:     amountIn,
	})
}
