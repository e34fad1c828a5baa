package state

import (
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

const ObservationNum = 100

// Observation is one cumulative price sample. Prices are Q32.32 and
// accumulate per elapsed second, wrapping on overflow.
type Observation struct {
	BlockTimestamp           uint64
	CumulativeToken0PriceX32 uint128.Uint128
	CumulativeToken1PriceX32 uint128.Uint128
}

// ObservationState is the ring buffer of price samples of one pool.
type ObservationState struct {
	Initialized      bool
	ObservationIndex uint16
	PoolID           solana.PublicKey
	Observations     [ObservationNum]Observation
	Padding          [4]uint64
}

func NewObservationState(pool solana.PublicKey) *ObservationState {
	return &ObservationState{PoolID: pool}
}

// Update appends a sample at blockTimestamp using the prices that held
// since the previous sample. Repeated timestamps are ignored.
func (o *ObservationState) Update(blockTimestamp uint64, token0PriceX64, token1PriceX64 uint128.Uint128) {
	idx := o.ObservationIndex
	if !o.Initialized {
		o.Initialized = true
		o.Observations[idx] = Observation{BlockTimestamp: blockTimestamp}
		return
	}

	last := o.Observations[idx]
	if blockTimestamp <= last.BlockTimestamp {
		return
	}
	delta := blockTimestamp - last.BlockTimestamp

	next := (idx + 1) % ObservationNum
	o.Observations[next] = Observation{
		BlockTimestamp:           blockTimestamp,
		CumulativeToken0PriceX32: last.CumulativeToken0PriceX32.AddWrap(token0PriceX64.Rsh(32).MulWrap64(delta)),
		CumulativeToken1PriceX32: last.CumulativeToken1PriceX32.AddWrap(token1PriceX64.Rsh(32).MulWrap64(delta)),
	}
	o.ObservationIndex = next
}

// Latest returns the most recent sample.
func (o *ObservationState) Latest() Observation {
	return o.Observations[o.ObservationIndex]
}

func DecodeObservationState(data []byte) (*ObservationState, error) {
	o := new(ObservationState)
	if err := decodeAccount(accountObservationState, data, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *ObservationState) Encode() ([]byte, error) {
	return encodeAccount(accountObservationState, o)
}
