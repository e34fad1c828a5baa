package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"cpswap/pkg/swap"
)

// Settings holds the values shared by the command line tools, merged from
// flags, CPSWAP_* environment variables and an optional config file.
type Settings struct {
	RPCEndpoints    []string
	WSURL           string
	RateLimit       int
	ProgramID       string
	DiscountConfig  string
	Pools           []string
	StorePath       string
	ListenAddr      string
	RefreshInterval time.Duration
	SlippageBps     int
	LogLevel        string
	// Pairs are quotes the service keeps warm.
	Pairs []Pair
}

// Pair is one warm quote, read from the config file's pairs list.
type Pair struct {
	Label      string `mapstructure:"label"`
	Pool       string `mapstructure:"pool"`
	InputMint  string `mapstructure:"input"`
	OutputMint string `mapstructure:"output"`
	Amount     string `mapstructure:"amount"`
	ExactOut   bool   `mapstructure:"exact-out"`
	Discount   bool   `mapstructure:"discount"`
}

func Load(cfgFile string, flags *pflag.FlagSet) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("CPSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rate-limit", 20)
	v.SetDefault("program-id", swap.ProgramID)
	v.SetDefault("listen", ":8080")
	v.SetDefault("refresh", 30*time.Second)
	v.SetDefault("slippage", 50)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Settings{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("cpswap")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Settings{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	s := Settings{
		RPCEndpoints:    getStringSlice(v, "rpc"),
		WSURL:           v.GetString("ws"),
		RateLimit:       v.GetInt("rate-limit"),
		ProgramID:       v.GetString("program-id"),
		DiscountConfig:  v.GetString("discount-config"),
		Pools:           getStringSlice(v, "pools"),
		StorePath:       v.GetString("store"),
		ListenAddr:      v.GetString("listen"),
		RefreshInterval: v.GetDuration("refresh"),
		SlippageBps:     v.GetInt("slippage"),
		LogLevel:        v.GetString("log-level"),
	}
	if err := v.UnmarshalKey("pairs", &s.Pairs); err != nil {
		return Settings{}, fmt.Errorf("read pairs: %w", err)
	}
	if len(s.RPCEndpoints) == 0 {
		s.RPCEndpoints = GetRPCEndpoints()
	}
	if s.SlippageBps < 0 || s.SlippageBps > 10_000 {
		return Settings{}, fmt.Errorf("slippage %d bps out of range", s.SlippageBps)
	}
	return s, nil
}

func (s Settings) ProgramKey() (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(s.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid program id: %w", err)
	}
	return key, nil
}

// DiscountConfigKey is the zero key when no discount config is set.
func (s Settings) DiscountConfigKey() (solana.PublicKey, error) {
	if s.DiscountConfig == "" {
		return solana.PublicKey{}, nil
	}
	key, err := solana.PublicKeyFromBase58(s.DiscountConfig)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid discount config: %w", err)
	}
	return key, nil
}

func (s Settings) PoolKeys() ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, 0, len(s.Pools))
	for _, p := range s.Pools {
		key, err := solana.PublicKeyFromBase58(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pool %q: %w", p, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
