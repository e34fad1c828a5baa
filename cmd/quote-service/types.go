package main

import (
	"time"

	"cpswap/pkg/quoter"
	"cpswap/pkg/subscription"
)

type CachedQuote struct {
	*quoter.Response
	ProgramID  string    `json:"programId"`
	LastUpdate time.Time `json:"lastUpdate"`
	TimeTaken  string    `json:"timeTaken"`
}

type QuotePair struct {
	quoter.Params
	Label string
}

type APIRespond struct {
	Result interface{} `json:"result"`
	Error  *string     `json:"error"`
}

type HealthResponse struct {
	Status       string              `json:"status"`
	LastUpdate   time.Time           `json:"lastUpdate"`
	CachedQuotes int                 `json:"cachedQuotes"`
	Uptime       string              `json:"uptime"`
	Subscription *subscription.Stats `json:"subscription,omitempty"`
}
