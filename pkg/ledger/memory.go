package ledger

import (
	"context"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/sol"
)

// Memory is an in-memory token ledger with TransferChecked semantics. It
// also serves its accounts and mints in their on-chain encoding, so the
// swap engine can read vault balances from it.
type Memory struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]sol.TokenAccount
	mints    map[solana.PublicKey]sol.MintInfo
	withheld map[solana.PublicKey]uint64
	epoch    uint64
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[solana.PublicKey]sol.TokenAccount),
		mints:    make(map[solana.PublicKey]sol.MintInfo),
		withheld: make(map[solana.PublicKey]uint64),
	}
}

func (m *Memory) AddMint(info sol.MintInfo) {
	if info.ProgramID.IsZero() {
		info.ProgramID = solana.TokenProgramID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mints[info.Address] = info
}

// OpenAccount creates a token account of a known mint.
func (m *Memory) OpenAccount(address, mint, owner solana.PublicKey, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mints[mint]; !ok {
		return errorsmod.Wrapf(ammerr.ErrAccountNotFound, "mint %s", mint)
	}
	if _, ok := m.accounts[address]; ok {
		return errorsmod.Wrapf(ammerr.ErrInvalidInput, "account %s already exists", address)
	}
	m.accounts[address] = sol.TokenAccount{Address: address, Mint: mint, Owner: owner, Amount: amount}
	return nil
}

func (m *Memory) SetEpoch(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch = epoch
}

// Withheld is the total transfer fee withheld for mint.
func (m *Memory) Withheld(mint solana.PublicKey) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.withheld[mint]
}

func (m *Memory) BalanceOf(ctx context.Context, account solana.PublicKey) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[account]
	if !ok {
		return 0, errorsmod.Wrapf(ammerr.ErrAccountNotFound, "token account %s", account)
	}
	return acct.Amount, nil
}

// Execute applies transfers in order against a working copy and commits
// only when every one of them succeeds.
func (m *Memory) Execute(ctx context.Context, transfers []Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := make(map[solana.PublicKey]sol.TokenAccount)
	withheld := make(map[solana.PublicKey]uint64)
	load := func(key solana.PublicKey) (sol.TokenAccount, bool) {
		if acct, ok := touched[key]; ok {
			return acct, true
		}
		acct, ok := m.accounts[key]
		return acct, ok
	}

	for i, t := range transfers {
		from, ok := load(t.From)
		if !ok {
			return errorsmod.Wrapf(ammerr.ErrTransferFailed, "transfer %d: source %s not found", i, t.From)
		}
		to, ok := load(t.To)
		if !ok {
			return errorsmod.Wrapf(ammerr.ErrTransferFailed, "transfer %d: destination %s not found", i, t.To)
		}
		mint, ok := m.mints[t.Mint]
		if !ok {
			return errorsmod.Wrapf(ammerr.ErrTransferFailed, "transfer %d: mint %s not found", i, t.Mint)
		}
		if !from.Mint.Equals(t.Mint) || !to.Mint.Equals(t.Mint) {
			return errorsmod.Wrapf(ammerr.ErrTransferFailed, "transfer %d: accounts hold %s/%s, not %s", i, from.Mint, to.Mint, t.Mint)
		}
		if t.Decimals != mint.Decimals {
			return errorsmod.Wrapf(ammerr.ErrTransferFailed, "transfer %d: decimals %d, mint has %d", i, t.Decimals, mint.Decimals)
		}
		if !t.ProgramID.IsZero() && !t.ProgramID.Equals(mint.ProgramID) {
			return errorsmod.Wrapf(ammerr.ErrTransferFailed, "transfer %d: program %s does not own mint %s", i, t.ProgramID, t.Mint)
		}
		if !from.Owner.Equals(t.Authority) {
			return errorsmod.Wrapf(ammerr.ErrTransferFailed, "transfer %d: %s does not own %s", i, t.Authority, t.From)
		}
		if from.Amount < t.Amount {
			return errorsmod.Wrapf(ammerr.ErrInsufficientBalance, "transfer %d: %s holds %d, needs %d", i, t.From, from.Amount, t.Amount)
		}

		fee := mint.TransferFeeAt(m.epoch).Fee(t.Amount)
		from.Amount -= t.Amount
		touched[t.From] = from
		if t.To.Equals(t.From) {
			to = from
		}
		net := t.Amount - fee
		if to.Amount+net < to.Amount {
			return errorsmod.Wrapf(ammerr.ErrMathOverflow, "transfer %d: credit to %s", i, t.To)
		}
		to.Amount += net
		touched[t.To] = to
		withheld[t.Mint] += fee
	}

	for key, acct := range touched {
		m.accounts[key] = acct
	}
	for mint, fee := range withheld {
		m.withheld[mint] += fee
	}
	return nil
}

// AccountData renders token accounts and mints in their SPL layout.
func (m *Memory) AccountData(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if acct, ok := m.accounts[key]; ok {
			data, err := sol.EncodeTokenAccount(acct)
			if err != nil {
				return nil, err
			}
			out[i] = data
			continue
		}
		if mint, ok := m.mints[key]; ok {
			data, err := sol.EncodeMint(mint)
			if err != nil {
				return nil, err
			}
			out[i] = data
		}
	}
	return out, nil
}

func (m *Memory) CurrentEpoch(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch, nil
}
