package state

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/sol"
)

// ChainStore reads program accounts through an account source, usually
// an RPC client. Saved accounts go to a local overlay that shadows the
// source; nothing is written back to the chain.
type ChainStore struct {
	source sol.AccountSource
	local  *sol.AccountMap
}

func NewChainStore(source sol.AccountSource) *ChainStore {
	return &ChainStore{source: source, local: sol.NewAccountMap()}
}

func (s *ChainStore) read(ctx context.Context, id solana.PublicKey) ([]byte, error) {
	data, err := s.AccountData(ctx, []solana.PublicKey{id})
	if err != nil {
		return nil, err
	}
	if data[0] == nil {
		return nil, errorsmod.Wrapf(ammerr.ErrAccountNotFound, "%s", id)
	}
	return data[0], nil
}

func (s *ChainStore) write(id solana.PublicKey, v encoder) error {
	data, err := v.Encode()
	if err != nil {
		return err
	}
	s.local.Set(id, data)
	return nil
}

func (s *ChainStore) LoadAmmConfig(ctx context.Context, id solana.PublicKey) (*AmmConfig, error) {
	data, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecodeAmmConfig(data)
}

func (s *ChainStore) LoadDiscountConfig(ctx context.Context, id solana.PublicKey) (*DiscountConfig, error) {
	data, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecodeDiscountConfig(data)
}

func (s *ChainStore) LoadPool(ctx context.Context, id solana.PublicKey) (*PoolState, error) {
	data, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecodePoolState(data)
}

func (s *ChainStore) LoadObservation(ctx context.Context, id solana.PublicKey) (*ObservationState, error) {
	data, err := s.read(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecodeObservationState(data)
}

func (s *ChainStore) SavePool(ctx context.Context, id solana.PublicKey, pool *PoolState) error {
	return s.write(id, pool)
}

func (s *ChainStore) SaveObservation(ctx context.Context, id solana.PublicKey, obs *ObservationState) error {
	return s.write(id, obs)
}

// AccountData serves saved accounts first and the source for the rest.
func (s *ChainStore) AccountData(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	return sol.Overlay{Sources: []sol.AccountSource{s.local, s.source}}.AccountData(ctx, keys)
}
