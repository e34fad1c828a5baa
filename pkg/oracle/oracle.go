// Package oracle reads push-style price feeds. Prices are returned raw
// (value, exponent, confidence, publish time); callers decide how stale a
// reading they accept.
package oracle

import (
	"context"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/mathutil"
)

// DefaultMaxAge is the freshness window applied when a config leaves it unset.
const DefaultMaxAge = 60 * time.Second

// Price is one oracle reading: Value * 10^Expo USD.
type Price struct {
	Feed        solana.PublicKey
	Value       int64
	Expo        int32
	Conf        uint64
	PublishedAt time.Time
}

type Oracle interface {
	ReadPrice(ctx context.Context, feed solana.PublicKey, maxAge time.Duration) (Price, error)
}

// CheckFresh rejects readings older than maxAge at now.
func (p Price) CheckFresh(now time.Time, maxAge time.Duration) error {
	if p.PublishedAt.IsZero() {
		return errorsmod.Wrapf(ammerr.ErrOracleUnavailable, "feed %s has no publish time", p.Feed)
	}
	if age := now.Sub(p.PublishedAt); age > maxAge {
		return errorsmod.Wrapf(ammerr.ErrStalePrice, "feed %s is %s old, max %s", p.Feed, age, maxAge)
	}
	return nil
}

// Scaled converts the reading into a USD price with the given number of
// decimals, truncating any precision beyond it.
func (p Price) Scaled(decimals uint8) (uint128.Uint128, error) {
	if p.Value <= 0 {
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrOracleUnavailable, "feed %s reports non-positive price %d", p.Feed, p.Value)
	}
	value := mathutil.U128(uint64(p.Value))
	shift := int64(decimals) + int64(p.Expo)
	switch {
	case shift >= 0:
		factor, err := mathutil.Pow10(uint8(min(shift, 39)))
		if err != nil {
			return uint128.Zero, err
		}
		return mathutil.Mul(value, factor)
	case shift < -38:
		return uint128.Zero, nil
	default:
		factor, err := mathutil.Pow10(uint8(-shift))
		if err != nil {
			return uint128.Zero, err
		}
		return mathutil.Div(value, factor)
	}
}

// Static serves fixed readings. It is used to bootstrap environments without
// a live feed and in tests.
type Static struct {
	mu     sync.RWMutex
	prices map[solana.PublicKey]Price
	now    func() time.Time
}

func NewStatic(now func() time.Time) *Static {
	if now == nil {
		now = time.Now
	}
	return &Static{
		prices: make(map[solana.PublicKey]Price),
		now:    now,
	}
}

func (s *Static) Set(p Price) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[p.Feed] = p
}

func (s *Static) ReadPrice(ctx context.Context, feed solana.PublicKey, maxAge time.Duration) (Price, error) {
	s.mu.RLock()
	p, ok := s.prices[feed]
	s.mu.RUnlock()
	if !ok {
		return Price{}, errorsmod.Wrapf(ammerr.ErrOracleUnavailable, "no price for feed %s", feed)
	}
	if err := p.CheckFresh(s.now(), maxAge); err != nil {
		return Price{}, err
	}
	return p, nil
}
