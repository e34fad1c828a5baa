package state

import (
	"context"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"cpswap/pkg/ammerr"
)

// Store loads and persists program accounts. Loads return private copies.
type Store interface {
	LoadAmmConfig(ctx context.Context, id solana.PublicKey) (*AmmConfig, error)
	LoadDiscountConfig(ctx context.Context, id solana.PublicKey) (*DiscountConfig, error)
	LoadPool(ctx context.Context, id solana.PublicKey) (*PoolState, error)
	LoadObservation(ctx context.Context, id solana.PublicKey) (*ObservationState, error)
	SavePool(ctx context.Context, id solana.PublicKey, pool *PoolState) error
	SaveObservation(ctx context.Context, id solana.PublicKey, obs *ObservationState) error
}

// MemStore keeps accounts in their encoded on-chain form, so it can also
// serve as an account source for readers that decode raw data. The accounts
// live in a leveldb database, in memory or on disk.
type MemStore struct {
	mu sync.RWMutex
	db *leveldb.DB
}

func NewMemStore() *MemStore {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		// memory storage cannot fail to open
		panic(err)
	}
	return &MemStore{db: db}
}

// OpenStore opens or creates an on-disk store at path.
func OpenStore(path string) (*MemStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errorsmod.Wrapf(ammerr.ErrInvalidInput, "open store %s: %v", path, err)
	}
	return &MemStore{db: db}, nil
}

func (s *MemStore) Close() error {
	return s.db.Close()
}

type encoder interface {
	Encode() ([]byte, error)
}

func (s *MemStore) put(id solana.PublicKey, v encoder) error {
	data, err := v.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(id[:], data, nil)
}

func (s *MemStore) get(id solana.PublicKey) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(id)
}

// lookup reads id; callers hold mu.
func (s *MemStore) lookup(id solana.PublicKey) ([]byte, error) {
	data, err := s.db.Get(id[:], nil)
	if err == leveldb.ErrNotFound {
		return nil, errorsmod.Wrapf(ammerr.ErrAccountNotFound, "%s", id)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *MemStore) LoadAmmConfig(ctx context.Context, id solana.PublicKey) (*AmmConfig, error) {
	data, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return DecodeAmmConfig(data)
}

func (s *MemStore) LoadDiscountConfig(ctx context.Context, id solana.PublicKey) (*DiscountConfig, error) {
	data, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return DecodeDiscountConfig(data)
}

func (s *MemStore) LoadPool(ctx context.Context, id solana.PublicKey) (*PoolState, error) {
	data, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return DecodePoolState(data)
}

func (s *MemStore) LoadObservation(ctx context.Context, id solana.PublicKey) (*ObservationState, error) {
	data, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return DecodeObservationState(data)
}

func (s *MemStore) SavePool(ctx context.Context, id solana.PublicKey, pool *PoolState) error {
	return s.put(id, pool)
}

func (s *MemStore) SaveObservation(ctx context.Context, id solana.PublicKey, obs *ObservationState) error {
	return s.put(id, obs)
}

// AccountData serves the encoded accounts by key.
func (s *MemStore) AccountData(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		data, err := s.db.Get(k[:], nil)
		switch {
		case err == leveldb.ErrNotFound:
		case err != nil:
			return nil, err
		default:
			out[i] = data
		}
	}
	return out, nil
}

// Import stores raw account data as read from the chain, such as vaults
// and mints captured for offline quoting.
func (s *MemStore) Import(ctx context.Context, id solana.PublicKey, data []byte) error {
	if len(data) == 0 {
		return errorsmod.Wrapf(ammerr.ErrInvalidAccountData, "%s: empty account", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(id[:], data, nil)
}

func (s *MemStore) CreateAmmConfig(ctx context.Context, id solana.PublicKey, cfg *AmmConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.put(id, cfg)
}

func (s *MemStore) CreateDiscountConfig(ctx context.Context, id solana.PublicKey, cfg *DiscountConfig) error {
	if cfg.Authority.IsZero() {
		return errorsmod.Wrap(ammerr.ErrInvalidInput, "discount config needs an authority")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.put(id, cfg)
}

// CreatePool stores a new pool and its empty observation ring.
func (s *MemStore) CreatePool(ctx context.Context, id solana.PublicKey, pool *PoolState) error {
	if _, err := s.LoadAmmConfig(ctx, pool.AmmConfig); err != nil {
		return err
	}
	if pool.Token0Mint.Equals(pool.Token1Mint) {
		return errorsmod.Wrap(ammerr.ErrInvalidInput, "pool mints must differ")
	}
	for _, program := range []solana.PublicKey{pool.Token0Program, pool.Token1Program} {
		if err := ValidateTokenProgram(program); err != nil {
			return err
		}
	}
	if !pool.ObservationKey.IsZero() {
		if err := s.put(pool.ObservationKey, NewObservationState(id)); err != nil {
			return err
		}
	}
	return s.put(id, pool)
}

// DiscountUpdate carries the optional fields of a discount config update.
type DiscountUpdate struct {
	DiscountRate           *uint64
	Source                 *PriceSource
	SettlementPool         *solana.PublicKey
	NativeQuotePool        *solana.PublicKey
	SettlementNativePool   *solana.PublicKey
	BridgePools            *[MaxBridgePools]solana.PublicKey
	SettlementFeed         *solana.PublicKey
	FeedMaxAgeSeconds      *uint64
	ManualPrice            *uint64
	Treasury               *solana.PublicKey
	SettlementTokenProgram *solana.PublicKey
	Enabled                *bool
	NewAuthority           *solana.PublicKey
}

func (s *MemStore) UpdateDiscountConfig(ctx context.Context, id, signer solana.PublicKey, u DiscountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.lookup(id)
	if err != nil {
		return err
	}
	cfg, err := DecodeDiscountConfig(data)
	if err != nil {
		return err
	}
	if !signer.Equals(cfg.Authority) {
		return errorsmod.Wrapf(ammerr.ErrInvalidOwner, "%s is not the discount authority", signer)
	}

	if u.DiscountRate != nil {
		cfg.DiscountRate = *u.DiscountRate
	}
	if u.Source != nil {
		cfg.Source = *u.Source
	}
	if u.SettlementPool != nil {
		cfg.SettlementPool = *u.SettlementPool
	}
	if u.NativeQuotePool != nil {
		cfg.NativeQuotePool = *u.NativeQuotePool
	}
	if u.SettlementNativePool != nil {
		cfg.SettlementNativePool = *u.SettlementNativePool
	}
	if u.BridgePools != nil {
		cfg.BridgePools = *u.BridgePools
	}
	if u.SettlementFeed != nil {
		cfg.SettlementFeed = *u.SettlementFeed
	}
	if u.FeedMaxAgeSeconds != nil {
		cfg.FeedMaxAgeSeconds = *u.FeedMaxAgeSeconds
	}
	if u.ManualPrice != nil {
		cfg.ManualPrice = *u.ManualPrice
	}
	if u.Treasury != nil {
		cfg.Treasury = *u.Treasury
	}
	if u.SettlementTokenProgram != nil {
		cfg.SettlementTokenProgram = *u.SettlementTokenProgram
	}
	if u.Enabled != nil {
		cfg.Enabled = *u.Enabled
	}
	if u.NewAuthority != nil {
		if u.NewAuthority.IsZero() {
			return errorsmod.Wrap(ammerr.ErrInvalidInput, "new authority is empty")
		}
		cfg.Authority = *u.NewAuthority
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	encoded, err := cfg.Encode()
	if err != nil {
		return err
	}
	return s.db.Put(id[:], encoded, nil)
}

// AmmConfigParam selects the field changed by UpdateAmmConfig.
type AmmConfigParam uint8

const (
	ParamTradeFeeRate AmmConfigParam = iota
	ParamProtocolFeeRate
	ParamFundFeeRate
	ParamProtocolOwner
	ParamFundOwner
	ParamCreatePoolFee
	ParamDisableCreatePool
	ParamCreatorFeeRate
)

type AmmConfigUpdate struct {
	Param AmmConfigParam
	Value uint64
	// Owner is the new owner for ParamProtocolOwner and ParamFundOwner.
	Owner solana.PublicKey
}

func (s *MemStore) UpdateAmmConfig(ctx context.Context, id, signer solana.PublicKey, u AmmConfigUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.lookup(id)
	if err != nil {
		return err
	}
	cfg, err := DecodeAmmConfig(data)
	if err != nil {
		return err
	}
	if !signer.Equals(cfg.ProtocolOwner) {
		return errorsmod.Wrapf(ammerr.ErrInvalidOwner, "%s is not the protocol owner", signer)
	}

	switch u.Param {
	case ParamTradeFeeRate:
		cfg.TradeFeeRate = u.Value
	case ParamProtocolFeeRate:
		cfg.ProtocolFeeRate = u.Value
	case ParamFundFeeRate:
		cfg.FundFeeRate = u.Value
	case ParamProtocolOwner, ParamFundOwner:
		if u.Owner.IsZero() {
			return errorsmod.Wrap(ammerr.ErrInvalidInput, "new owner is empty")
		}
		if u.Param == ParamProtocolOwner {
			cfg.ProtocolOwner = u.Owner
		} else {
			cfg.FundOwner = u.Owner
		}
	case ParamCreatePoolFee:
		cfg.CreatePoolFee = u.Value
	case ParamDisableCreatePool:
		cfg.DisableCreatePool = u.Value != 0
	case ParamCreatorFeeRate:
		cfg.CreatorFeeRate = u.Value
	default:
		return errorsmod.Wrapf(ammerr.ErrInvalidInput, "unknown amm config param %d", u.Param)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	encoded, err := cfg.Encode()
	if err != nil {
		return err
	}
	return s.db.Put(id[:], encoded, nil)
}

// UpdatePoolStatus replaces the status bits of a pool. Only the protocol
// owner of the pool's config may do so.
func (s *MemStore) UpdatePoolStatus(ctx context.Context, id, signer solana.PublicKey, status uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.lookup(id)
	if err != nil {
		return err
	}
	pool, err := DecodePoolState(data)
	if err != nil {
		return err
	}
	cfgData, err := s.lookup(pool.AmmConfig)
	if err != nil {
		return err
	}
	cfg, err := DecodeAmmConfig(cfgData)
	if err != nil {
		return err
	}
	if !signer.Equals(cfg.ProtocolOwner) {
		return errorsmod.Wrapf(ammerr.ErrInvalidOwner, "%s is not the protocol owner", signer)
	}
	if status > PoolStatusDeposit|PoolStatusWithdraw|PoolStatusSwap {
		return errorsmod.Wrapf(ammerr.ErrInvalidInput, "status %d", status)
	}

	pool.Status = status
	encoded, err := pool.Encode()
	if err != nil {
		return err
	}
	return s.db.Put(id[:], encoded, nil)
}
