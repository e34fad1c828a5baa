package subscription

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WebSocketClient keeps account subscriptions alive over a Solana pubsub
// connection, resubscribing after reconnects.
type WebSocketClient struct {
	url    string
	logger *zap.Logger

	mu             sync.RWMutex
	conn           *websocket.Conn
	subscriptions  map[uint64]*Subscription
	nextID         uint64
	reconnectDelay time.Duration
	connected      bool

	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// Subscription is one account subscription. ID is the local request id,
// SubID the id assigned by the node once it confirms.
type Subscription struct {
	ID      uint64
	Account solana.PublicKey
	SubID   uint64
	handler AccountUpdateHandler
}

// AccountUpdateHandler receives the decoded account data of an update.
type AccountUpdateHandler func(account solana.PublicKey, data []byte, slot uint64)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     uint64              `json:"id"`
	Result jsoniter.RawMessage `json:"result,omitempty"`
	Error  *rpcError           `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type notification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				// [data, encoding]
				Data []string `json:"data"`
			} `json:"value"`
		} `json:"result"`
		Subscription uint64 `json:"subscription"`
	} `json:"params"`
}

func NewWebSocketClient(ctx context.Context, wsURL string, logger *zap.Logger) (*WebSocketClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCtx, cancel := context.WithCancel(ctx)

	client := &WebSocketClient{
		url:            wsURL,
		logger:         logger.Named("ws"),
		subscriptions:  make(map[uint64]*Subscription),
		reconnectDelay: 5 * time.Second,
		ctx:            clientCtx,
		cancel:         cancel,
		nextID:         1,
	}

	if err := client.connect(); err != nil {
		cancel()
		return nil, err
	}

	go client.readMessages()
	go client.handleReconnection()

	return client, nil
}

func (c *WebSocketClient) connect() error {
	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("websocket connected", zap.String("url", c.url))
	return nil
}

func subscribeRequest(id uint64, account solana.PublicKey) rpcRequest {
	return rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "accountSubscribe",
		Params: []interface{}{
			account.String(),
			map[string]interface{}{
				"encoding":   "base64",
				"commitment": "confirmed",
			},
		},
	}
}

// SubscribeAccount subscribes to updates of account and returns the local
// subscription id.
func (c *WebSocketClient) SubscribeAccount(account solana.PublicKey, handler AccountUpdateHandler) (uint64, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subscriptions[id] = &Subscription{ID: id, Account: account, handler: handler}
	c.mu.Unlock()

	if err := c.sendRequest(subscribeRequest(id, account)); err != nil {
		c.mu.Lock()
		delete(c.subscriptions, id)
		c.mu.Unlock()
		return 0, err
	}
	return id, nil
}

func (c *WebSocketClient) Unsubscribe(id uint64) error {
	c.mu.Lock()
	sub, exists := c.subscriptions[id]
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("subscription not found: %d", id)
	}
	delete(c.subscriptions, id)
	nodeID := sub.SubID
	c.mu.Unlock()

	// not confirmed yet; a late confirmation is ignored
	if nodeID == 0 {
		return nil
	}
	return c.sendRequest(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "accountUnsubscribe",
		Params:  []interface{}{nodeID},
	})
}

func (c *WebSocketClient) sendRequest(req rpcRequest) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WebSocketClient) readMessages() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				c.connected = false
			}
			c.mu.Unlock()
			conn.Close()
			continue
		}

		c.handleMessage(message)
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	var n notification
	if err := json.Unmarshal(data, &n); err == nil && n.Method == "accountNotification" {
		c.handleAccountNotification(n)
		return
	}

	var response rpcResponse
	if err := json.Unmarshal(data, &response); err != nil {
		c.logger.Warn("unparseable websocket message", zap.Error(err))
		return
	}
	c.handleResponse(response)
}

func (c *WebSocketClient) handleResponse(response rpcResponse) {
	if response.Error != nil {
		c.logger.Warn("rpc error",
			zap.Uint64("id", response.ID),
			zap.Int("code", response.Error.Code),
			zap.String("message", response.Error.Message))
		return
	}

	var nodeID uint64
	if err := json.Unmarshal(response.Result, &nodeID); err != nil {
		// unsubscribe acks carry a bool
		return
	}

	c.mu.Lock()
	if sub, exists := c.subscriptions[response.ID]; exists {
		sub.SubID = nodeID
	}
	c.mu.Unlock()
}

func (c *WebSocketClient) handleAccountNotification(n notification) {
	c.mu.RLock()
	var sub *Subscription
	for _, s := range c.subscriptions {
		if s.SubID != 0 && s.SubID == n.Params.Subscription {
			sub = s
			break
		}
	}
	c.mu.RUnlock()

	if sub == nil || sub.handler == nil {
		return
	}
	value := n.Params.Result.Value.Data
	if len(value) < 1 {
		return
	}
	if len(value) > 1 && value[1] != "base64" {
		c.logger.Warn("unexpected account encoding", zap.String("encoding", value[1]))
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(value[0])
	if err != nil {
		c.logger.Warn("bad account data", zap.Stringer("account", sub.Account), zap.Error(err))
		return
	}
	sub.handler(sub.Account, decoded, n.Params.Result.Context.Slot)
}

func (c *WebSocketClient) handleReconnection() {
	ticker := time.NewTicker(c.reconnectDelay)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.IsConnected() {
				continue
			}
			c.logger.Info("reconnecting websocket")
			if err := c.reconnect(); err != nil {
				c.logger.Warn("websocket reconnect failed", zap.Error(err))
			}
		}
	}
}

// reconnect dials again and replays every subscription.
func (c *WebSocketClient) reconnect() error {
	if err := c.connect(); err != nil {
		return err
	}

	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		sub.SubID = 0
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		if err := c.sendRequest(subscribeRequest(sub.ID, sub.Account)); err != nil {
			c.logger.Warn("resubscribe failed", zap.Stringer("account", sub.Account), zap.Error(err))
		}
	}
	return nil
}

func (c *WebSocketClient) Close() error {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *WebSocketClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Confirmed reports whether the node has acknowledged subscription id.
func (c *WebSocketClient) Confirmed(id uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.subscriptions[id]
	return ok && sub.SubID != 0
}
