package quoter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cpswap/pkg/config"
	"cpswap/pkg/oracle"
	"cpswap/pkg/sol"
	"cpswap/pkg/state"
	"cpswap/pkg/swap"
)

// Backend is the account plumbing behind an engine: a leveldb snapshot
// when a store path is configured, the RPC endpoints otherwise.
type Backend struct {
	Store    state.Store
	Accounts sol.AccountSource
	Epochs   sol.EpochSource
	// RPC is nil for snapshot backends.
	RPC *sol.RPCPool

	closers []func() error
}

// OpenBackend builds the backend for s. Accounts in overrides shadow the
// backend's own; layer, if set, wraps the RPC source (for caching).
func OpenBackend(ctx context.Context, s config.Settings, overrides *sol.AccountMap, layer func(sol.AccountSource) sol.AccountSource) (*Backend, error) {
	if overrides == nil {
		overrides = sol.NewAccountMap()
	}

	if s.StorePath != "" {
		db, err := state.OpenStore(s.StorePath)
		if err != nil {
			return nil, err
		}
		accounts := sol.Overlay{Sources: []sol.AccountSource{overrides, db}}
		return &Backend{
			Store:    db,
			Accounts: accounts,
			Epochs:   overrides,
			closers:  []func() error{db.Close},
		}, nil
	}

	rpcPool, err := sol.NewRPCPool(ctx, s.RPCEndpoints, s.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC pool: %w", err)
	}
	var source sol.AccountSource = rpcPool
	if layer != nil {
		source = layer(source)
	}
	chain := state.NewChainStore(sol.Overlay{Sources: []sol.AccountSource{overrides, source}})
	return &Backend{
		Store:    chain,
		Accounts: chain,
		Epochs:   rpcPool,
		RPC:      rpcPool,
	}, nil
}

// Engine builds a quoting engine over the backend with the program,
// discount config and oracle from s.
func (b *Backend) Engine(s config.Settings, logger *zap.Logger) (*swap.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	programID, err := s.ProgramKey()
	if err != nil {
		return nil, err
	}
	discount, err := s.DiscountConfigKey()
	if err != nil {
		return nil, err
	}
	return swap.NewEngine(b.Store, b.Accounts,
		swap.WithProgramID(programID),
		swap.WithDiscountConfig(discount),
		swap.WithEpochSource(b.Epochs),
		swap.WithOracle(oracle.NewRPCReader(b.Accounts, time.Now)),
		swap.WithLogger(logger),
	)
}

func (b *Backend) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
