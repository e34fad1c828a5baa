package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cpswap/pkg/ammerr"
	"cpswap/pkg/quoter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type server struct {
	cache       *QuoteCache
	slippageBps int
	started     time.Time
}

func newRouter(s *server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(corsMiddleware)
	r.Use(metricsMiddleware)

	r.GET("/", s.APIRoot)
	r.GET("/quote", s.APIQuote)
	r.GET("/health", s.APIHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func corsMiddleware(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

// respond encodes with jsoniter rather than gin's default encoder.
func respond(c *gin.Context, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(buildGinErrorRespond(err))
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

func buildGinErrorRespond(err error) *APIRespond {
	errStr := err.Error()
	return &APIRespond{Result: nil, Error: &errStr}
}

// statusOf maps swap errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ammerr.ErrInvalidInput),
		errors.Is(err, ammerr.ErrExceededSlippage),
		errors.Is(err, ammerr.ErrZeroTradingTokens),
		errors.Is(err, ammerr.ErrDiscountDisabled):
		return http.StatusBadRequest
	case errors.Is(err, ammerr.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ammerr.ErrNotApproved):
		return http.StatusForbidden
	case errors.Is(err, ammerr.ErrOracleUnavailable),
		errors.Is(err, ammerr.ErrStalePrice):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) APIRoot(c *gin.Context) {
	quotes := s.cache.GetAllCached()
	respond(c, http.StatusOK, APIRespond{Result: gin.H{
		"service":      "cp-swap quote service",
		"cachedQuotes": len(quotes),
		"quotes":       quotes,
		"endpoints": gin.H{
			"quote":   "/quote?pool=<pool>&inputMint=<mint>&outputMint=<mint>&amount=<amount>[&exactOut=true][&payWithDiscountToken=true][&bridgePool=<pool>][&slippageBps=<bps>]",
			"health":  "/health",
			"metrics": "/metrics",
		},
	}})
}

func (s *server) APIQuote(c *gin.Context) {
	var p quoter.Params
	if err := c.ShouldBindQuery(&p); err != nil {
		respond(c, http.StatusBadRequest, buildGinErrorRespond(err))
		return
	}
	if p.Pool == "" || p.InputMint == "" || p.OutputMint == "" || p.Amount == "" {
		respond(c, http.StatusBadRequest, buildGinErrorRespond(errors.New("pool, inputMint, outputMint and amount are required")))
		return
	}
	if _, ok := c.GetQuery("slippageBps"); !ok {
		p.SlippageBps = s.slippageBps
	}

	q, err := s.cache.GetOrCalculateQuote(c.Request.Context(), p)
	if err != nil {
		respond(c, statusOf(err), buildGinErrorRespond(err))
		return
	}
	respond(c, http.StatusOK, APIRespond{Result: q})
}

func (s *server) APIHealth(c *gin.Context) {
	quotes := s.cache.GetAllCached()
	var last time.Time
	for _, q := range quotes {
		if q.LastUpdate.After(last) {
			last = q.LastUpdate
		}
	}
	health := HealthResponse{
		Status:       "healthy",
		LastUpdate:   last,
		CachedQuotes: len(quotes),
		Uptime:       time.Since(s.started).Round(time.Second).String(),
	}
	if s.cache.manager != nil {
		stats := s.cache.manager.Stats()
		health.Subscription = &stats
		if !stats.Connected {
			health.Status = "degraded"
		}
	}
	respond(c, http.StatusOK, health)
}
