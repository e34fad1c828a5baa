package quoter

import (
	"context"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/sol"
	"cpswap/pkg/state"
)

// Importer stores raw account data; state.MemStore is one.
type Importer interface {
	Import(ctx context.Context, id solana.PublicKey, data []byte) error
}

type keySet struct {
	keys []solana.PublicKey
	seen map[solana.PublicKey]bool
}

func (k *keySet) add(keys ...solana.PublicKey) {
	for _, key := range keys {
		if key.IsZero() || k.seen[key] {
			continue
		}
		k.seen[key] = true
		k.keys = append(k.keys, key)
	}
}

// Capture copies the accounts needed to quote pools offline from src into
// dst: each pool with its config, vaults, mints and observation, and, when
// discountConfig is set, the discount config with every account it
// references. It returns the number of accounts copied.
func Capture(ctx context.Context, src sol.AccountSource, dst Importer, pools []solana.PublicKey, discountConfig solana.PublicKey) (int, error) {
	set := &keySet{seen: make(map[solana.PublicKey]bool)}
	set.add(pools...)
	requested := len(set.keys)

	if !discountConfig.IsZero() {
		data, err := fetchOne(ctx, src, discountConfig)
		if err != nil {
			return 0, err
		}
		cfg, err := state.DecodeDiscountConfig(data)
		if err != nil {
			return 0, err
		}
		set.add(discountConfig, cfg.SettlementMint, cfg.Treasury, cfg.SettlementFeed,
			cfg.SettlementPool, cfg.NativeQuotePool, cfg.SettlementNativePool)
		for _, bridge := range cfg.BridgePools {
			set.add(bridge)
		}
	}

	// every key so far that decodes as a pool pulls in its dependencies
	candidates := append([]solana.PublicKey(nil), set.keys...)
	data, err := src.AccountData(ctx, candidates)
	if err != nil {
		return 0, fmt.Errorf("fetch pools: %w", err)
	}
	for i, d := range data {
		if d == nil && i < requested {
			return 0, errorsmod.Wrapf(ammerr.ErrAccountNotFound, "pool %s", candidates[i])
		}
		pool, err := state.DecodePoolState(d)
		if err != nil {
			continue
		}
		set.add(pool.AmmConfig, pool.Token0Vault, pool.Token1Vault,
			pool.Token0Mint, pool.Token1Mint, pool.ObservationKey)
	}

	all, err := src.AccountData(ctx, set.keys)
	if err != nil {
		return 0, fmt.Errorf("fetch accounts: %w", err)
	}
	copied := 0
	for i, d := range all {
		if d == nil {
			continue
		}
		if err := dst.Import(ctx, set.keys[i], d); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

func fetchOne(ctx context.Context, src sol.AccountSource, key solana.PublicKey) ([]byte, error) {
	data, err := src.AccountData(ctx, []solana.PublicKey{key})
	if err != nil {
		return nil, err
	}
	if data[0] == nil {
		return nil, errorsmod.Wrapf(ammerr.ErrAccountNotFound, "%s", key)
	}
	return data[0], nil
}
