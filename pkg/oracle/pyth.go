package oracle

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/sol"
)

const (
	pythMagic          uint32 = 0xa1b2c3d4
	pythVersion2       uint32 = 2
	pythAccountPrice   uint32 = 3
	pythStatusTrading  uint32 = 1
	pythPriceHeaderLen        = 240
)

type pythRational struct {
	Val   int64
	Numer int64
	Denom int64
}

type pythAggregate struct {
	Price   int64
	Conf    uint64
	Status  uint32
	CorpAct uint32
	PubSlot uint64
}

// pythPriceAccount is the fixed header of a Pyth v2 price account. The
// component price array that follows it is not read.
type pythPriceAccount struct {
	Magic         uint32
	Version       uint32
	AccountType   uint32
	Size          uint32
	PriceType     uint32
	Expo          int32
	NumComponents uint32
	NumQuoters    uint32
	LastSlot      uint64
	ValidSlot     uint64
	EmaPrice      pythRational
	EmaConf       pythRational
	Timestamp     int64
	MinPublishers uint8
	Drv2          uint8
	Drv3          uint16
	Drv4          uint32
	Product       solana.PublicKey
	Next          solana.PublicKey
	PrevSlot      uint64
	PrevPrice     int64
	PrevConf      uint64
	PrevTimestamp int64
	Agg           pythAggregate
}

// DecodePythPrice reads the aggregate price of a Pyth v2 price account.
// Accounts whose aggregate is not trading are reported as unavailable.
func DecodePythPrice(feed solana.PublicKey, data []byte) (Price, error) {
	if len(data) < pythPriceHeaderLen {
		return Price{}, errorsmod.Wrapf(ammerr.ErrInvalidAccountData, "pyth account %s: got %d bytes", feed, len(data))
	}
	var acct pythPriceAccount
	if err := bin.NewBinDecoder(data).Decode(&acct); err != nil {
		return Price{}, errorsmod.Wrapf(ammerr.ErrInvalidAccountData, "pyth account %s: %v", feed, err)
	}
	if acct.Magic != pythMagic || acct.Version != pythVersion2 || acct.AccountType != pythAccountPrice {
		return Price{}, errorsmod.Wrapf(ammerr.ErrInvalidAccountData, "account %s is not a pyth price account", feed)
	}
	if acct.Agg.Status != pythStatusTrading {
		return Price{}, errorsmod.Wrapf(ammerr.ErrOracleUnavailable, "feed %s status %d", feed, acct.Agg.Status)
	}
	return Price{
		Feed:        feed,
		Value:       acct.Agg.Price,
		Expo:        acct.Expo,
		Conf:        acct.Agg.Conf,
		PublishedAt: time.Unix(acct.Timestamp, 0),
	}, nil
}

// RPCReader reads Pyth price accounts through any account source.
type RPCReader struct {
	source sol.AccountSource
	now    func() time.Time
}

func NewRPCReader(source sol.AccountSource, now func() time.Time) *RPCReader {
	if now == nil {
		now = time.Now
	}
	return &RPCReader{source: source, now: now}
}

func (r *RPCReader) ReadPrice(ctx context.Context, feed solana.PublicKey, maxAge time.Duration) (Price, error) {
	data, err := r.source.AccountData(ctx, []solana.PublicKey{feed})
	if err != nil {
		return Price{}, errorsmod.Wrapf(ammerr.ErrOracleUnavailable, "fetch feed %s: %v", feed, err)
	}
	if len(data) != 1 || data[0] == nil {
		return Price{}, errorsmod.Wrapf(ammerr.ErrOracleUnavailable, "feed %s not found", feed)
	}
	p, err := DecodePythPrice(feed, data[0])
	if err != nil {
		return Price{}, err
	}
	if err := p.CheckFresh(r.now(), maxAge); err != nil {
		return Price{}, err
	}
	return p, nil
}
