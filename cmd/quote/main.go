package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpswap/pkg"
	"cpswap/pkg/config"
	"cpswap/pkg/logging"
	"cpswap/pkg/protocol"
	"cpswap/pkg/quoter"
	"cpswap/pkg/router"
	"cpswap/pkg/sol"
	"cpswap/pkg/state"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "quote",
		Short:        "Quote constant-product swaps",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.StringSlice("rpc", nil, "Solana RPC endpoints (comma-separated, default RPC_ENDPOINTS)")
	pf.Int("rate-limit", 20, "RPC requests per second per endpoint")
	pf.String("program-id", "", "swap program id")
	pf.String("discount-config", "", "discount config account")
	pf.String("store", "", "leveldb snapshot to quote from instead of RPC")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Quote one swap against one pool",
		RunE:  runSwap,
	}
	f := swapCmd.Flags()
	f.String("pool", "", "pool account (required)")
	f.String("input", "", "input mint (required)")
	f.String("output", "", "output mint (required)")
	f.String("amount", "", "amount in smallest units; the input, or the output with --exact-out (required)")
	f.Bool("exact-out", false, "treat --amount as the desired output")
	f.Bool("discount", false, "pay the protocol fee in the settlement token")
	f.String("bridge-pool", "", "bridge pool pricing the fee of a non-quote input")
	f.Int("slippage", 50, "slippage tolerance in basis points")
	f.StringArray("account-data", nil, "override an account as <pubkey>=<base58 data>")
	f.Bool("json", true, "print JSON")
	for _, name := range []string{"pool", "input", "output", "amount"} {
		_ = swapCmd.MarkFlagRequired(name)
	}
	root.AddCommand(swapCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "Find the pools of a pair and quote each",
		RunE:  runPools,
	}
	poolsCmd.Flags().String("input", "", "input mint (required)")
	poolsCmd.Flags().String("output", "", "output mint (required)")
	poolsCmd.Flags().String("amount", "", "input amount to quote, in smallest units")
	_ = poolsCmd.MarkFlagRequired("input")
	_ = poolsCmd.MarkFlagRequired("output")
	root.AddCommand(poolsCmd)

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Copy pools and the discount config into a leveldb store for offline quotes",
		RunE:  runSnapshot,
	}
	snapshotCmd.Flags().StringSlice("pools", nil, "pools to capture (required)")
	snapshotCmd.Flags().String("out", "", "leveldb directory to write (required)")
	_ = snapshotCmd.MarkFlagRequired("pools")
	_ = snapshotCmd.MarkFlagRequired("out")
	root.AddCommand(snapshotCmd)

	return root
}

func setup(cmd *cobra.Command) (config.Settings, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	s, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return s, nil, err
	}
	logger, err := logging.New(s.LogLevel)
	if err != nil {
		return s, nil, err
	}
	return s, logger, nil
}

func parseOverrides(entries []string) (*sol.AccountMap, error) {
	overrides := sol.NewAccountMap()
	for _, entry := range entries {
		key, data, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("account override %q is not <pubkey>=<data>", entry)
		}
		pubkey, err := solana.PublicKeyFromBase58(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("account override %q: %w", entry, err)
		}
		if err := overrides.SetBase58(pubkey, strings.TrimSpace(data)); err != nil {
			return nil, fmt.Errorf("account override %s: %w", pubkey, err)
		}
	}
	return overrides, nil
}

func runSwap(cmd *cobra.Command, _ []string) error {
	s, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	f := cmd.Flags()
	entries, _ := f.GetStringArray("account-data")
	overrides, err := parseOverrides(entries)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := quoter.OpenBackend(ctx, s, overrides, nil)
	if err != nil {
		return err
	}
	defer backend.Close()
	engine, err := backend.Engine(s, logger)
	if err != nil {
		return err
	}

	var p quoter.Params
	p.Pool, _ = f.GetString("pool")
	p.InputMint, _ = f.GetString("input")
	p.OutputMint, _ = f.GetString("output")
	p.Amount, _ = f.GetString("amount")
	p.ExactOut, _ = f.GetBool("exact-out")
	p.Discount, _ = f.GetBool("discount")
	p.BridgePool, _ = f.GetString("bridge-pool")
	p.SlippageBps = s.SlippageBps

	res, err := quoter.New(engine, logger).Quote(ctx, p)
	if err != nil {
		return err
	}

	if asJSON, _ := f.GetBool("json"); asJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal quote: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Pool:         %s (%s)\n", res.Pool, res.Mode)
	fmt.Fprintf(w, "Input:        %s %s\n", res.InAmount, res.InputMint)
	fmt.Fprintf(w, "Output:       %s %s\n", res.OutAmount, res.OutputMint)
	fmt.Fprintf(w, "Threshold:    %s (%d bps)\n", res.OtherAmountThreshold, res.SlippageBps)
	fmt.Fprintf(w, "Trade fee:    %s (protocol %s, fund %s, creator %s)\n", res.TradeFee, res.ProtocolFee, res.FundFee, res.CreatorFee)
	fmt.Fprintf(w, "Price impact: %s\n", res.PriceImpact)
	if d := res.Discount; d != nil {
		fmt.Fprintf(w, "Discount:     %s settlement tokens to %s (%s via %s)\n", d.SettlementAmount, d.Treasury, d.PriceSource, d.Strategy)
	}
	return nil
}

func runPools(cmd *cobra.Command, _ []string) error {
	s, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	programID, err := s.ProgramKey()
	if err != nil {
		return err
	}
	rpcPool, err := sol.NewRPCPool(ctx, s.RPCEndpoints, s.RateLimit)
	if err != nil {
		return err
	}
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	amountFlag, _ := cmd.Flags().GetString("amount")

	r := router.NewRouter(logger, protocol.NewCpSwap(rpcPool.GetClient(), programID))
	if err := r.QueryAllPools(ctx, input, output); err != nil {
		return err
	}
	logger.Info("pools found", zap.Int("count", len(r.Pools)))

	type row struct {
		Pool      string `json:"pool"`
		Protocol  string `json:"protocol"`
		Token0    string `json:"token0"`
		Token1    string `json:"token1"`
		OutAmount string `json:"outAmount,omitempty"`
		Error     string `json:"error,omitempty"`
	}
	describe := func(p pkg.Pool) row {
		t0, t1 := p.GetTokens()
		return row{Pool: p.GetID(), Protocol: string(p.ProtocolName()), Token0: t0, Token1: t1}
	}

	rows := make([]row, 0, len(r.Pools))
	if amountFlag == "" {
		for _, p := range r.Pools {
			rows = append(rows, describe(p))
		}
	} else {
		amount, ok := cosmath.NewIntFromString(amountFlag)
		if !ok {
			return fmt.Errorf("invalid amount %q", amountFlag)
		}
		for _, res := range r.QuoteAll(ctx, rpcPool.GetClient(), input, amount) {
			line := describe(res.Pool)
			if res.Err != nil {
				line.Error = res.Err.Error()
			} else {
				line.OutAmount = res.OutAmount.String()
			}
			rows = append(rows, line)
		}
		if len(rows) > 0 && rows[0].Error == "" {
			logger.Info("best pool", zap.String("pool", rows[0].Pool), zap.String("out", rows[0].OutAmount))
		}
	}

	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	s, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outDir, _ := cmd.Flags().GetString("out")
	pools, err := s.PoolKeys()
	if err != nil {
		return err
	}
	discount, err := s.DiscountConfigKey()
	if err != nil {
		return err
	}
	rpcPool, err := sol.NewRPCPool(ctx, s.RPCEndpoints, s.RateLimit)
	if err != nil {
		return err
	}
	db, err := state.OpenStore(outDir)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := quoter.Capture(ctx, rpcPool, db, pools, discount)
	if err != nil {
		return err
	}
	logger.Info("snapshot written", zap.String("out", outDir), zap.Int("accounts", n))
	fmt.Fprintf(cmd.OutOrStdout(), "captured %d accounts into %s\n", n, outDir)
	return nil
}
