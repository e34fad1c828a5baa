package sol

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
)

// RPCPool spreads reads over several endpoints.
type RPCPool struct {
	clients []*Client
	index   uint64
}

func NewRPCPool(ctx context.Context, endpoints []string, reqLimitPerSecond int) (*RPCPool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no rpc endpoints configured")
	}

	pool := &RPCPool{clients: make([]*Client, 0, len(endpoints))}
	for _, endpoint := range endpoints {
		client, err := NewClient(ctx, endpoint, reqLimitPerSecond)
		if err != nil {
			return nil, err
		}
		pool.clients = append(pool.clients, client)
	}
	return pool, nil
}

// GetClient returns the next client in round-robin order.
func (p *RPCPool) GetClient() *Client {
	if len(p.clients) == 1 {
		return p.clients[0]
	}
	idx := atomic.AddUint64(&p.index, 1) % uint64(len(p.clients))
	return p.clients[idx]
}

func (p *RPCPool) Size() int {
	return len(p.clients)
}

// AccountData tries each endpoint once, starting from the next in rotation.
func (p *RPCPool) AccountData(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	var lastErr error
	for i := 0; i < len(p.clients); i++ {
		data, err := p.GetClient().AccountData(ctx, keys)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *RPCPool) CurrentEpoch(ctx context.Context) (uint64, error) {
	return p.GetClient().CurrentEpoch(ctx)
}
