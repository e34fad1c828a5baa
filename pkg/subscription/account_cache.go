package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/sol"
)

// PoolStateUpdater is implemented by pools that apply pushed account data
// to their decoded state.
type PoolStateUpdater interface {
	UpdateFromAccountData(accountID string, data []byte) error
}

type AccountEntry struct {
	Data       []byte
	Slot       uint64
	LastUpdate time.Time
}

// AccountCache is an account source fed by subscriptions. Keys it has not
// seen are read through the fallback source once and kept.
type AccountCache struct {
	fallback sol.AccountSource

	mu      sync.RWMutex
	entries map[solana.PublicKey]*AccountEntry
}

func NewAccountCache(fallback sol.AccountSource) *AccountCache {
	return &AccountCache{
		fallback: fallback,
		entries:  make(map[solana.PublicKey]*AccountEntry),
	}
}

// Put stores data for key unless a newer slot is already cached.
func (c *AccountCache) Put(key solana.PublicKey, data []byte, slot uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && slot != 0 && e.Slot > slot {
		return false
	}
	c.entries[key] = &AccountEntry{
		Data:       append([]byte(nil), data...),
		Slot:       slot,
		LastUpdate: time.Now(),
	}
	return true
}

func (c *AccountCache) Get(key solana.PublicKey) (AccountEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return AccountEntry{}, false
	}
	return *e, true
}

func (c *AccountCache) Remove(keys ...solana.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
}

func (c *AccountCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stale returns the keys not updated within maxAge.
func (c *AccountCache) Stale(maxAge time.Duration) []solana.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	var stale []solana.PublicKey
	for k, e := range c.entries {
		if now.Sub(e.LastUpdate) > maxAge {
			stale = append(stale, k)
		}
	}
	return stale
}

func (c *AccountCache) AccountData(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	out := make([][]byte, len(keys))
	var missing []int

	c.mu.RLock()
	for i, k := range keys {
		if e, ok := c.entries[k]; ok {
			out[i] = append([]byte(nil), e.Data...)
		} else {
			missing = append(missing, i)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 || c.fallback == nil {
		return out, nil
	}
	batch := make([]solana.PublicKey, len(missing))
	for j, idx := range missing {
		batch[j] = keys[idx]
	}
	fetched, err := c.fallback.AccountData(ctx, batch)
	if err != nil {
		return nil, err
	}
	for j, idx := range missing {
		if fetched[j] == nil {
			continue
		}
		out[idx] = fetched[j]
		// slot 0 never shadows a pushed update
		c.mu.Lock()
		if _, ok := c.entries[keys[idx]]; !ok {
			c.entries[keys[idx]] = &AccountEntry{Data: append([]byte(nil), fetched[j]...), LastUpdate: time.Now()}
		}
		c.mu.Unlock()
	}
	return out, nil
}

// CurrentEpoch delegates to the fallback when it reports epochs.
func (c *AccountCache) CurrentEpoch(ctx context.Context) (uint64, error) {
	if es, ok := c.fallback.(sol.EpochSource); ok {
		return es.CurrentEpoch(ctx)
	}
	return 0, nil
}
