package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cosmossdk.io/math"
	"go.uber.org/zap"

	"cpswap/pkg"
	"cpswap/pkg/sol"
)

// Router finds the pools of a pair across protocols and picks the one
// paying the most output.
type Router struct {
	Protocols []pkg.Protocol
	Pools     []pkg.Pool
	logger    *zap.Logger
}

func NewRouter(logger *zap.Logger, protocols ...pkg.Protocol) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		Protocols: protocols,
		Pools:     []pkg.Pool{},
		logger:    logger.Named("router"),
	}
}

// QueryAllPools replaces the known pools with those of the pair. A
// protocol that fails is logged and skipped.
func (r *Router) QueryAllPools(ctx context.Context, baseMint, quoteMint string) error {
	var allPools []pkg.Pool
	for _, proto := range r.Protocols {
		pools, err := proto.FetchPoolsByPair(ctx, baseMint, quoteMint)
		if err != nil {
			r.logger.Warn("fetch pools", zap.String("protocol", string(proto.ProtocolName())), zap.Error(err))
			continue
		}
		r.logger.Debug("pools fetched", zap.String("protocol", string(proto.ProtocolName())), zap.Int("count", len(pools)))
		allPools = append(allPools, pools...)
	}
	r.Pools = allPools
	return nil
}

// Result is the quote of one pool. Err is set when the pool could not be
// quoted.
type Result struct {
	Pool      pkg.Pool
	OutAmount math.Int
	Err       error
}

// QuoteAll quotes every known pool concurrently, skipping the excluded
// pool ids. Results come back best first; failed quotes go last.
func (r *Router) QuoteAll(ctx context.Context, solClient *sol.Client, tokenIn string, amountIn math.Int, exclude ...string) []Result {
	pools := r.filterPools(exclude)
	results := make([]Result, len(pools))

	var wg sync.WaitGroup
	for i, pool := range pools {
		wg.Add(1)
		go func(i int, p pkg.Pool) {
			defer wg.Done()
			out, err := p.Quote(ctx, solClient, tokenIn, amountIn)
			results[i] = Result{Pool: p, OutAmount: out, Err: err}
		}(i, pool)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return false
		}
		return a.OutAmount.GT(b.OutAmount)
	})
	return results
}

func (r *Router) GetBestPool(ctx context.Context, solClient *sol.Client, tokenIn string, amountIn math.Int, exclude ...string) (pkg.Pool, math.Int, error) {
	results := r.QuoteAll(ctx, solClient, tokenIn, amountIn, exclude...)
	if len(results) == 0 {
		return nil, math.ZeroInt(), fmt.Errorf("no pools found after filtering")
	}
	for _, res := range results {
		if res.Err != nil {
			r.logger.Debug("quote failed", zap.String("pool", res.Pool.GetID()), zap.Error(res.Err))
		}
	}
	best := results[0]
	if best.Err != nil || !best.OutAmount.IsPositive() {
		return nil, math.ZeroInt(), fmt.Errorf("no route found")
	}
	return best.Pool, best.OutAmount, nil
}

func (r *Router) filterPools(exclude []string) []pkg.Pool {
	if len(exclude) == 0 {
		return r.Pools
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	var filtered []pkg.Pool
	for _, pool := range r.Pools {
		if _, ok := skip[pool.GetID()]; ok {
			continue
		}
		filtered = append(filtered, pool)
	}
	return filtered
}
