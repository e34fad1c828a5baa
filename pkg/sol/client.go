package sol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// maxAccountsPerRequest is the getMultipleAccounts limit enforced by RPC nodes.
const maxAccountsPerRequest = 100

// Client wraps an RPC client with a request limiter shared by all calls.
type Client struct {
	RpcClient *rpc.Client
	limiter   *rate.Limiter
	endpoint  string
}

func NewClient(ctx context.Context, endpoint string, reqLimitPerSecond int) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("empty rpc endpoint")
	}
	limit := rate.Inf
	if reqLimitPerSecond > 0 {
		limit = rate.Limit(reqLimitPerSecond)
	}
	return &Client{
		RpcClient: rpc.New(endpoint),
		limiter:   rate.NewLimiter(limit, max(reqLimitPerSecond, 1)),
		endpoint:  endpoint,
	}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (c *Client) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.RpcClient.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
}

func (c *Client) GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.RpcClient.GetMultipleAccountsWithOpts(ctx, accounts, &rpc.GetMultipleAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
}

func (c *Client) GetProgramAccountsWithOpts(ctx context.Context, programID solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	return c.RpcClient.GetProgramAccountsWithOpts(ctx, programID, opts)
}

// CurrentEpoch is used to select the active transfer fee of Token-2022 mints.
func (c *Client) CurrentEpoch(ctx context.Context) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	info, err := c.RpcClient.GetEpochInfo(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get epoch info: %w", err)
	}
	return info.Epoch, nil
}

// AccountData fetches raw data for keys in request-sized batches. Missing
// accounts yield a nil entry at their index.
func (c *Client) AccountData(ctx context.Context, keys []solana.PublicKey) ([][]byte, error) {
	out := make([][]byte, 0, len(keys))
	for start := 0; start < len(keys); start += maxAccountsPerRequest {
		end := min(start+maxAccountsPerRequest, len(keys))
		res, err := c.GetMultipleAccountsWithOpts(ctx, keys[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %d accounts: %w", end-start, err)
		}
		if len(res.Value) != end-start {
			return nil, fmt.Errorf("rpc returned %d accounts, want %d", len(res.Value), end-start)
		}
		for _, acc := range res.Value {
			if acc == nil || acc.Data == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, acc.Data.GetBinary())
		}
	}
	return out, nil
}
