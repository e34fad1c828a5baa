package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cpswap/pkg/config"
	"cpswap/pkg/logging"
	"cpswap/pkg/quoter"
	"cpswap/pkg/sol"
	"cpswap/pkg/subscription"
)

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	root := &cobra.Command{
		Use:          "quote-service",
		Short:        "Serve cached cp-swap quotes over HTTP",
		SilenceUsage: true,
		RunE:         run,
	}
	f := root.Flags()
	f.String("config", "", "config file path")
	f.StringSlice("rpc", nil, "Solana RPC endpoints (comma-separated, default RPC_ENDPOINTS)")
	f.String("ws", "", "pubsub endpoint (default derived from the first RPC endpoint)")
	f.Int("rate-limit", 20, "RPC requests per second per endpoint")
	f.String("program-id", "", "swap program id")
	f.String("discount-config", "", "discount config account")
	f.String("listen", ":8080", "HTTP listen address")
	f.Duration("refresh", 30*time.Second, "quote refresh interval")
	f.Int("slippage", 50, "default slippage tolerance in basis points")
	f.StringSlice("pools", nil, "pools to keep subscribed for on-demand quotes")
	f.Bool("no-ws", false, "poll only, without account subscriptions")
	f.String("log-level", "info", "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	s, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(s.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(s.RPCEndpoints) == 0 {
		return fmt.Errorf("no RPC endpoints configured; set RPC_ENDPOINTS or --rpc")
	}
	programID, err := s.ProgramKey()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// every engine read goes through the subscription-fed cache
	var cache *subscription.AccountCache
	backend, err := quoter.OpenBackend(ctx, s, nil, func(src sol.AccountSource) sol.AccountSource {
		cache = subscription.NewAccountCache(src)
		return cache
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	var manager *subscription.Manager
	if noWS, _ := cmd.Flags().GetBool("no-ws"); !noWS && cache != nil {
		wsURL := s.WSURL
		if wsURL == "" {
			wsURL = httpToWsURL(s.RPCEndpoints[0])
		}
		manager, err = subscription.NewManager(ctx, wsURL, cache, logger)
		if err != nil {
			logger.Warn("websocket unavailable, polling only", zap.String("url", wsURL), zap.Error(err))
			manager = nil
		} else {
			defer manager.Close()
		}
	}

	engine, err := backend.Engine(s, logger)
	if err != nil {
		return err
	}
	qc := NewQuoteCache(ctx, quoter.New(engine, logger), backend.Store, manager, programID,
		s.RefreshInterval, s.SlippageBps, logger)

	pairs := make([]QuotePair, 0, len(s.Pairs))
	for _, p := range s.Pairs {
		pairs = append(pairs, QuotePair{
			Label: p.Label,
			Params: quoter.Params{
				Pool:        p.Pool,
				InputMint:   p.InputMint,
				OutputMint:  p.OutputMint,
				Amount:      p.Amount,
				ExactOut:    p.ExactOut,
				Discount:    p.Discount,
				SlippageBps: s.SlippageBps,
			},
		})
	}
	go qc.StartPeriodicRefresh(ctx, pairs)

	pools, err := s.PoolKeys()
	if err != nil {
		return err
	}
	for _, id := range pools {
		qc.subscribe(ctx, id.String())
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    s.ListenAddr,
		Handler: newRouter(&server{cache: qc, slippageBps: s.SlippageBps, started: time.Now()}),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("quote service listening",
		zap.String("addr", s.ListenAddr),
		zap.Int("rpc_endpoints", len(s.RPCEndpoints)),
		zap.Int("pairs", len(pairs)),
		zap.Bool("websocket", manager != nil))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("quote service stopped")
	return nil
}
