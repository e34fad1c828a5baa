package subscription

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"cpswap/pkg"
)

// PoolUpdateHandler is called after a pool account or vault update has
// been applied.
type PoolUpdateHandler func(poolID string, account solana.PublicKey, slot uint64)

type poolEntry struct {
	pool       pkg.Pool
	subs       []uint64
	lastSlot   uint64
	lastUpdate time.Time
}

// Manager keeps pools and loose accounts subscribed and feeds every update
// into an AccountCache.
type Manager struct {
	ws     *WebSocketClient
	cache  *AccountCache
	logger *zap.Logger

	mu       sync.RWMutex
	pools    map[string]*poolEntry
	watched  map[solana.PublicKey]uint64
	handlers map[string]PoolUpdateHandler
}

func NewManager(ctx context.Context, wsURL string, cache *AccountCache, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ws, err := NewWebSocketClient(ctx, wsURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebSocket client: %w", err)
	}
	return &Manager{
		ws:       ws,
		cache:    cache,
		logger:   logger.Named("subscription"),
		pools:    make(map[string]*poolEntry),
		watched:  make(map[solana.PublicKey]uint64),
		handlers: make(map[string]PoolUpdateHandler),
	}, nil
}

func (m *Manager) Cache() *AccountCache {
	return m.cache
}

// Watch subscribes accounts that are not tied to a pool, such as mints,
// the amm config or the discount config.
func (m *Manager) Watch(keys ...solana.PublicKey) error {
	for _, key := range keys {
		m.mu.RLock()
		_, ok := m.watched[key]
		m.mu.RUnlock()
		if ok {
			continue
		}
		id, err := m.ws.SubscribeAccount(key, func(account solana.PublicKey, data []byte, slot uint64) {
			m.cache.Put(account, data, slot)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", key, err)
		}
		m.mu.Lock()
		m.watched[key] = id
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) SubscribePool(pool pkg.Pool) error {
	poolID := pool.GetID()

	m.mu.Lock()
	if _, exists := m.pools[poolID]; exists {
		m.mu.Unlock()
		return nil
	}
	entry := &poolEntry{pool: pool, lastUpdate: time.Now()}
	m.pools[poolID] = entry
	m.mu.Unlock()

	accounts := poolAccounts(pool)
	m.logger.Info("subscribing pool", zap.String("pool", poolID), zap.Int("accounts", len(accounts)))

	for _, account := range accounts {
		id, err := m.ws.SubscribeAccount(account, func(key solana.PublicKey, data []byte, slot uint64) {
			m.handleAccountUpdate(poolID, key, data, slot)
		})
		if err != nil {
			m.logger.Warn("subscribe failed", zap.String("pool", poolID), zap.Stringer("account", account), zap.Error(err))
			continue
		}
		m.mu.Lock()
		entry.subs = append(entry.subs, id)
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) UnsubscribePool(poolID string) error {
	m.mu.Lock()
	entry, ok := m.pools[poolID]
	delete(m.pools, poolID)
	delete(m.handlers, poolID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("pool %s is not subscribed", poolID)
	}

	for _, id := range entry.subs {
		if err := m.ws.Unsubscribe(id); err != nil {
			m.logger.Warn("unsubscribe failed", zap.String("pool", poolID), zap.Uint64("id", id), zap.Error(err))
		}
	}
	m.cache.Remove(poolAccounts(entry.pool)...)
	return nil
}

func (m *Manager) handleAccountUpdate(poolID string, account solana.PublicKey, data []byte, slot uint64) {
	if !m.cache.Put(account, data, slot) {
		return
	}

	m.mu.Lock()
	entry, ok := m.pools[poolID]
	if ok {
		entry.lastSlot = slot
		entry.lastUpdate = time.Now()
	}
	handler := m.handlers[poolID]
	m.mu.Unlock()
	if !ok {
		return
	}

	if updater, ok := entry.pool.(PoolStateUpdater); ok {
		if err := updater.UpdateFromAccountData(account.String(), data); err != nil {
			m.logger.Warn("pool update failed", zap.String("pool", poolID), zap.Stringer("account", account), zap.Error(err))
			return
		}
	}
	m.logger.Debug("pool updated", zap.String("pool", poolID), zap.Stringer("account", account), zap.Uint64("slot", slot))
	if handler != nil {
		handler(poolID, account, slot)
	}
}

func (m *Manager) RegisterHandler(poolID string, handler PoolUpdateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[poolID] = handler
}

func (m *Manager) GetPool(poolID string) (pkg.Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.pools[poolID]
	if !ok {
		return nil, false
	}
	return entry.pool, true
}

func (m *Manager) GetAllPools() []pkg.Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pools := make([]pkg.Pool, 0, len(m.pools))
	for _, entry := range m.pools {
		pools = append(pools, entry.pool)
	}
	return pools
}

func (m *Manager) IsConnected() bool {
	return m.ws.IsConnected()
}

func (m *Manager) Close() error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.pools))
	for id := range m.pools {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.UnsubscribePool(id)
	}
	return m.ws.Close()
}

// poolAccounts lists the accounts of pool worth watching.
func poolAccounts(pool pkg.Pool) []solana.PublicKey {
	id, err := solana.PublicKeyFromBase58(pool.GetID())
	if err != nil {
		return nil
	}
	accounts := []solana.PublicKey{id}

	type vaultPool interface {
		GetBaseVault() solana.PublicKey
		GetQuoteVault() solana.PublicKey
	}
	if vp, ok := pool.(vaultPool); ok {
		for _, v := range []solana.PublicKey{vp.GetBaseVault(), vp.GetQuoteVault()} {
			if !v.IsZero() {
				accounts = append(accounts, v)
			}
		}
	}
	return accounts
}

type Stats struct {
	Pools           int    `json:"pools"`
	WatchedAccounts int    `json:"watchedAccounts"`
	CachedAccounts  int    `json:"cachedAccounts"`
	Connected       bool   `json:"connected"`
	Timestamp       string `json:"timestamp"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Pools:           len(m.pools),
		WatchedAccounts: len(m.watched),
		CachedAccounts:  m.cache.Size(),
		Connected:       m.ws.IsConnected(),
		Timestamp:       time.Now().Format(time.RFC3339),
	}
}
