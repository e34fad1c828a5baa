package state

import (
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gagliardetto/solana-go"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/fees"
	"cpswap/pkg/oracle"
)

// AmmConfig holds the fee schedule shared by every pool created under it.
type AmmConfig struct {
	Bump              uint8
	DisableCreatePool bool
	Index             uint16
	TradeFeeRate      uint64
	ProtocolFeeRate   uint64
	FundFeeRate       uint64
	CreatePoolFee     uint64
	ProtocolOwner     solana.PublicKey
	FundOwner         solana.PublicKey
	CreatorFeeRate    uint64
	FeeReceiver       solana.PublicKey
	Padding           [11]uint64
}

func (c *AmmConfig) Rates() fees.Rates {
	return fees.Rates{
		Trade:    c.TradeFeeRate,
		Protocol: c.ProtocolFeeRate,
		Fund:     c.FundFeeRate,
		Creator:  c.CreatorFeeRate,
	}
}

func (c *AmmConfig) Validate() error {
	return fees.ValidateRates(c.Rates())
}

func DecodeAmmConfig(data []byte) (*AmmConfig, error) {
	cfg := new(AmmConfig)
	if err := decodeAccount(accountAmmConfig, data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AmmConfig) Encode() ([]byte, error) {
	return encodeAccount(accountAmmConfig, c)
}

// PriceSource selects how the settlement token is priced in USD.
type PriceSource uint8

const (
	PriceSourcePool PriceSource = iota
	PriceSourceOracle
	PriceSourceManual
)

func (s PriceSource) String() string {
	switch s {
	case PriceSourcePool:
		return "pool"
	case PriceSourceOracle:
		return "oracle"
	case PriceSourceManual:
		return "manual"
	default:
		return "unknown"
	}
}

func ParsePriceSource(s string) (PriceSource, error) {
	for _, src := range []PriceSource{PriceSourcePool, PriceSourceOracle, PriceSourceManual} {
		if src.String() == s {
			return src, nil
		}
	}
	return 0, errorsmod.Wrapf(ammerr.ErrInvalidInput, "unknown price source %q", s)
}

// MaxFeedMaxAgeSeconds bounds how stale a configured oracle feed may be.
const MaxFeedMaxAgeSeconds = 3_600

// MaxBridgePools bounds the intermediate pools a caller may route fee
// valuation through.
const MaxBridgePools = 4

// DiscountConfig governs paying the protocol fee in the settlement token.
type DiscountConfig struct {
	Authority      solana.PublicKey
	DiscountRate   uint64
	SettlementMint solana.PublicKey
	// SettlementTokenProgram owns SettlementMint. Zero means the program is
	// inferred from the mint account.
	SettlementTokenProgram solana.PublicKey
	Treasury               solana.PublicKey
	// QuoteMint is the USD-pegged asset all fee values are expressed in.
	QuoteMint            solana.PublicKey
	Source               PriceSource
	SettlementPool       solana.PublicKey
	NativeQuotePool      solana.PublicKey
	SettlementNativePool solana.PublicKey
	BridgePools          [MaxBridgePools]solana.PublicKey
	SettlementFeed       solana.PublicKey
	FeedMaxAgeSeconds    uint64
	// ManualPrice is USD per whole settlement token, scaled by 10^9.
	ManualPrice uint64
	Enabled     bool
	Bump        uint8
	Padding     [4]uint64
}

// Validate checks the rate bounds and that the selected price source has
// what it needs.
func (c *DiscountConfig) Validate() error {
	if err := fees.ValidateDiscountRate(c.DiscountRate); err != nil {
		return err
	}
	if c.SettlementMint.IsZero() || c.Treasury.IsZero() || c.QuoteMint.IsZero() {
		return errorsmod.Wrap(ammerr.ErrInvalidInput, "settlement mint, treasury and quote mint are required")
	}
	if err := ValidateTokenProgram(c.SettlementTokenProgram); err != nil {
		return err
	}
	if c.FeedMaxAgeSeconds > MaxFeedMaxAgeSeconds {
		return errorsmod.Wrapf(ammerr.ErrInvalidInput, "feed max age %ds exceeds %ds", c.FeedMaxAgeSeconds, MaxFeedMaxAgeSeconds)
	}
	switch c.Source {
	case PriceSourcePool:
		viaNative := !c.SettlementNativePool.IsZero() && !c.NativeQuotePool.IsZero()
		if c.SettlementPool.IsZero() && !viaNative {
			return errorsmod.Wrap(ammerr.ErrInvalidInput, "pool source needs a settlement pool or a settlement/native and native/quote pair")
		}
	case PriceSourceOracle:
		if c.SettlementFeed.IsZero() {
			return errorsmod.Wrap(ammerr.ErrInvalidInput, "oracle source needs a settlement feed")
		}
	case PriceSourceManual:
		if c.ManualPrice == 0 {
			return errorsmod.Wrap(ammerr.ErrInvalidInput, "manual source needs a non-zero price")
		}
	default:
		return errorsmod.Wrapf(ammerr.ErrInvalidInput, "price source %d", c.Source)
	}
	return nil
}

// FeedMaxAge is the staleness limit for the settlement feed, clamped to
// MaxFeedMaxAgeSeconds for configs that skipped Validate.
func (c *DiscountConfig) FeedMaxAge() time.Duration {
	switch {
	case c.FeedMaxAgeSeconds == 0:
		return oracle.DefaultMaxAge
	case c.FeedMaxAgeSeconds > MaxFeedMaxAgeSeconds:
		return MaxFeedMaxAgeSeconds * time.Second
	}
	return time.Duration(c.FeedMaxAgeSeconds) * time.Second
}

// ValidateTokenProgram accepts the zero key or one of the two token programs.
func ValidateTokenProgram(program solana.PublicKey) error {
	if program.IsZero() || program.Equals(solana.TokenProgramID) || program.Equals(solana.Token2022ProgramID) {
		return nil
	}
	return errorsmod.Wrapf(ammerr.ErrInvalidInput, "%s is not a token program", program)
}

func (c *DiscountConfig) IsBridgePool(pool solana.PublicKey) bool {
	if pool.IsZero() {
		return false
	}
	for _, p := range c.BridgePools {
		if p.Equals(pool) {
			return true
		}
	}
	return false
}

func DecodeDiscountConfig(data []byte) (*DiscountConfig, error) {
	cfg := new(DiscountConfig)
	if err := decodeAccount(accountDiscountConfig, data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *DiscountConfig) Encode() ([]byte, error) {
	return encodeAccount(accountDiscountConfig, c)
}
