package sol

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// AccountSource returns raw account data for a batch of keys, with a nil
// entry for every account that does not exist.
type AccountSource interface {
	AccountData(ctx context.Context, keys []solana.PublicKey) ([][]byte, error)
}

type EpochSource interface {
	CurrentEpoch(ctx context.Context) (uint64, error)
}

// AccountMap is an in-memory AccountSource. It backs tests and the CLI's
// account overrides.
type AccountMap struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey][]byte
	epoch    uint64
}

func NewAccountMap() *AccountMap {
	return &AccountMap{accounts: make(map[solana.PublicKey][]byte)}
}

func (m *AccountMap) Set(key solana.PublicKey, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[key] = append([]byte(nil), data...)
}

// SetBase58 stores data given in base58 form, as printed by explorers.
func (m *AccountMap) SetBase58(key solana.PublicKey, encoded string) error {
	data, err := base58.Decode(encoded)
	if err != nil {
		return err
	}
	m.Set(key, data)
	return nil
}

func (m *AccountMap) SetEpoch(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch = epoch
}

func (m *AccountMap) AccountData(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if data, ok := m.accounts[k]; ok {
			out[i] = append([]byte(nil), data...)
		}
	}
	return out, nil
}

func (m *AccountMap) CurrentEpoch(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch, nil
}

// Overlay serves keys from the first source that has them.
type Overlay struct {
	Sources []AccountSource
}

func (o Overlay) AccountData(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	out := make([][]byte, len(keys))
	missing := make([]int, len(keys))
	for i := range keys {
		missing[i] = i
	}
	for _, src := range o.Sources {
		if len(missing) == 0 {
			break
		}
		batch := make([]solana.PublicKey, len(missing))
		for j, idx := range missing {
			batch[j] = keys[idx]
		}
		data, err := src.AccountData(ctx, batch)
		if err != nil {
			return nil, err
		}
		next := missing[:0]
		for j, idx := range missing {
			if data[j] != nil {
				out[idx] = data[j]
			} else {
				next = append(next, idx)
			}
		}
		missing = next
	}
	return out, nil
}
