package subscription

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
)

// fakeNode answers accountSubscribe and pushes the configured account data
// right after confirming.
type fakeNode struct {
	srv *httptest.Server

	mu       sync.Mutex
	accounts map[string][]byte
	nextSub  uint64
	methods  []string
}

func newFakeNode(t *testing.T) *fakeNode {
	n := &fakeNode{accounts: make(map[string][]byte), nextSub: 100}
	upgrader := websocket.Upgrader{}
	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req rpcRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				return
			}
			n.mu.Lock()
			n.methods = append(n.methods, req.Method)
			n.mu.Unlock()
			if req.Method != "accountSubscribe" {
				_ = conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": true})
				continue
			}
			account, _ := req.Params[0].(string)
			n.mu.Lock()
			n.nextSub++
			sub := n.nextSub
			data := n.accounts[account]
			n.mu.Unlock()
			_ = conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": sub})
			if data == nil {
				continue
			}
			_ = conn.WriteJSON(map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  "accountNotification",
				"params": map[string]interface{}{
					"subscription": sub,
					"result": map[string]interface{}{
						"context": map[string]interface{}{"slot": 42},
						"value": map[string]interface{}{
							"data":     []string{base64.StdEncoding.EncodeToString(data), "base64"},
							"lamports": 1,
							"owner":    solana.TokenProgramID.String(),
						},
					},
				},
			})
		}
	}))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNode) set(key solana.PublicKey, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accounts[key.String()] = data
}

func (n *fakeNode) calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.methods {
		if m == method {
			c++
		}
	}
	return c
}

func (n *fakeNode) url() string {
	return "ws" + strings.TrimPrefix(n.srv.URL, "http")
}
