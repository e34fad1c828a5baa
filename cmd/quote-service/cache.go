package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"cpswap/pkg/pool/cpswap"
	"cpswap/pkg/quoter"
	"cpswap/pkg/state"
	"cpswap/pkg/subscription"
)

// QuoteCache keeps quotes for the configured pairs fresh. With a
// subscription manager, pool updates trigger recomputation and the
// periodic refresh is only a fallback.
type QuoteCache struct {
	quoter          *quoter.Quoter
	store           state.Store
	manager         *subscription.Manager
	programID       solana.PublicKey
	refreshInterval time.Duration
	slippageBps     int
	logger          *zap.Logger

	mu           sync.RWMutex
	cache        map[string]*CachedQuote
	poolToQuotes map[string][]QuotePair
	ctx          context.Context
}

func NewQuoteCache(ctx context.Context, q *quoter.Quoter, store state.Store, manager *subscription.Manager,
	programID solana.PublicKey, refreshInterval time.Duration, slippageBps int, logger *zap.Logger) *QuoteCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteCache{
		quoter:          q,
		store:           store,
		manager:         manager,
		programID:       programID,
		refreshInterval: refreshInterval,
		slippageBps:     slippageBps,
		logger:          logger.Named("cache"),
		cache:           make(map[string]*CachedQuote),
		poolToQuotes:    make(map[string][]QuotePair),
		ctx:             ctx,
	}
}

// httpToWsURL converts an HTTP(S) RPC URL to its pubsub URL.
func httpToWsURL(httpURL string) string {
	wsURL := strings.Replace(httpURL, "https://", "wss://", 1)
	return strings.Replace(wsURL, "http://", "ws://", 1)
}

func cacheKey(p quoter.Params) string {
	return fmt.Sprintf("%s-%s-%s-%s-%t-%t-%s-%d",
		p.Pool, p.InputMint, p.OutputMint, p.Amount, p.ExactOut, p.Discount, p.BridgePool, p.SlippageBps)
}

func (qc *QuoteCache) GetQuote(p quoter.Params) (*CachedQuote, bool) {
	qc.mu.RLock()
	defer qc.mu.RUnlock()
	q, ok := qc.cache[cacheKey(p)]
	return q, ok
}

// GetOrCalculateQuote serves a cached quote or computes one on demand.
// On-demand quotes are not cached; only the warm pairs are.
func (qc *QuoteCache) GetOrCalculateQuote(ctx context.Context, p quoter.Params) (*CachedQuote, error) {
	if q, ok := qc.GetQuote(p); ok {
		return q, nil
	}
	return qc.calculate(ctx, p)
}

func (qc *QuoteCache) calculate(ctx context.Context, p quoter.Params) (*CachedQuote, error) {
	start := time.Now()
	res, err := qc.quoter.Quote(ctx, p)
	if err != nil {
		return nil, err
	}
	return &CachedQuote{
		Response:   res,
		ProgramID:  qc.programID.String(),
		LastUpdate: time.Now(),
		TimeTaken:  time.Since(start).String(),
	}, nil
}

// UpdateQuote recomputes pair, stores it and makes sure its pool is
// subscribed.
func (qc *QuoteCache) UpdateQuote(ctx context.Context, pair QuotePair) error {
	if pair.SlippageBps == 0 {
		pair.SlippageBps = qc.slippageBps
	}
	q, err := qc.calculate(ctx, pair.Params)
	if err != nil {
		return fmt.Errorf("quote %s: %w", pair.Label, err)
	}
	key := cacheKey(pair.Params)

	qc.mu.Lock()
	old := qc.cache[key]
	qc.cache[key] = q
	cachedQuotesGauge.Set(float64(len(qc.cache)))
	tracked := false
	for _, existing := range qc.poolToQuotes[pair.Pool] {
		if cacheKey(existing.Params) == key {
			tracked = true
			break
		}
	}
	if !tracked {
		qc.poolToQuotes[pair.Pool] = append(qc.poolToQuotes[pair.Pool], pair)
	}
	qc.mu.Unlock()

	qc.logChange(pair, old, q)
	if !tracked {
		qc.subscribe(ctx, pair.Pool)
	}
	return nil
}

func (qc *QuoteCache) subscribe(ctx context.Context, poolID string) {
	if qc.manager == nil {
		return
	}
	id, err := solana.PublicKeyFromBase58(poolID)
	if err != nil {
		return
	}
	if _, ok := qc.manager.GetPool(poolID); ok {
		return
	}
	st, err := qc.store.LoadPool(ctx, id)
	if err != nil {
		qc.logger.Warn("load pool for subscription", zap.String("pool", poolID), zap.Error(err))
		return
	}
	pool := cpswap.NewPoolFromState(id, qc.programID, *st)
	qc.manager.RegisterHandler(poolID, qc.handlePoolUpdate)
	if err := qc.manager.SubscribePool(pool); err != nil {
		qc.logger.Warn("subscribe pool", zap.String("pool", poolID), zap.Error(err))
		return
	}
	// config and mints change rarely but do change
	if err := qc.manager.Watch(st.AmmConfig, st.Token0Mint, st.Token1Mint); err != nil {
		qc.logger.Warn("watch pool accounts", zap.String("pool", poolID), zap.Error(err))
	}
}

// handlePoolUpdate recomputes every pair quoted against poolID.
func (qc *QuoteCache) handlePoolUpdate(poolID string, account solana.PublicKey, slot uint64) {
	qc.mu.RLock()
	pairs := append([]QuotePair(nil), qc.poolToQuotes[poolID]...)
	qc.mu.RUnlock()
	if len(pairs) == 0 {
		return
	}

	qc.logger.Debug("pool updated", zap.String("pool", poolID), zap.Stringer("account", account),
		zap.Uint64("slot", slot), zap.Int("quotes", len(pairs)))
	for _, pair := range pairs {
		err := qc.UpdateQuote(qc.ctx, pair)
		recordRecalculation("push", err)
		if err != nil {
			qc.logger.Warn("recalculate quote", zap.String("label", pair.Label), zap.Error(err))
		}
	}
}

func (qc *QuoteCache) logChange(pair QuotePair, old, q *CachedQuote) {
	if old == nil {
		qc.logger.Info("first quote", zap.String("label", pair.Label),
			zap.String("in", q.InAmount), zap.String("out", q.OutAmount), zap.String("took", q.TimeTaken))
		return
	}
	oldOut, ok1 := cosmath.NewIntFromString(old.OutAmount)
	newOut, ok2 := cosmath.NewIntFromString(q.OutAmount)
	if !ok1 || !ok2 || oldOut.IsZero() {
		return
	}
	diff := newOut.Sub(oldOut)
	if diff.IsZero() {
		return
	}
	// basis points of the previous output
	change := diff.MulRaw(10_000).Quo(oldOut)
	qc.logger.Info("quote changed", zap.String("label", pair.Label),
		zap.String("old", old.OutAmount), zap.String("new", q.OutAmount),
		zap.String("diff", diff.String()), zap.String("change_bps", change.String()))
}

func (qc *QuoteCache) RefreshAll(ctx context.Context, pairs []QuotePair) {
	for _, pair := range pairs {
		err := qc.UpdateQuote(ctx, pair)
		recordRecalculation("refresh", err)
		if err != nil {
			qc.logger.Warn("refresh quote", zap.String("label", pair.Label), zap.Error(err))
		}
	}
}

func (qc *QuoteCache) StartPeriodicRefresh(ctx context.Context, pairs []QuotePair) {
	qc.RefreshAll(ctx, pairs)

	interval := qc.refreshInterval
	if qc.manager != nil {
		// pushes keep quotes fresh; the ticker only catches missed updates
		interval *= 10
	}
	qc.logger.Info("periodic refresh", zap.Duration("interval", interval), zap.Bool("websocket", qc.manager != nil))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			qc.RefreshAll(ctx, pairs)
		}
	}
}

func (qc *QuoteCache) GetAllCached() map[string]*CachedQuote {
	qc.mu.RLock()
	defer qc.mu.RUnlock()
	out := make(map[string]*CachedQuote, len(qc.cache))
	for k, v := range qc.cache {
		out[k] = v
	}
	return out
}
