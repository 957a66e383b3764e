// Package electrum adapts an Electrum JSON-RPC connection into the
// chainoracle.Oracle contract, per §6. The wire client itself (request
// framing, response correlation by id, TLS dialing) is carried over
// directly from the teacher plugin's Electrum client; what changes is
// the surface it implements and the addition of context-based
// cancellation and a multi-server failover pool.
package electrum

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/covault-labs/custody/chainoracle"
	"github.com/covault-labs/custody/vaulterr"
)

// Client is a single Electrum server connection speaking per-scripthash
// RPCs; it does not itself implement chainoracle.Oracle (Oracle in
// oracle.go adapts it to that interface).
// Descriptor-to-scripthash resolution is the caller's responsibility
// (the policy/psbtx layers own address derivation); Client here only
// speaks the wire protocol.
type Client struct {
	conn     net.Conn
	mu       sync.Mutex
	id       atomic.Uint64
	host     string
	port     string
	useTLS   bool
	respChan map[uint64]chan *rpcResponse
	respMu   sync.Mutex
	closed   bool
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Dial connects to a single Electrum server URL (ssl://host:port or
// tcp://host:port) and negotiates the protocol version.
func Dial(url string) (*Client, error) {
	c := &Client{respChan: make(map[uint64]chan *rpcResponse)}
	if err := c.parseURL(url); err != nil {
		return nil, err
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	go c.readResponses()
	if err := c.negotiateVersion(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// DialPool tries each url in order, returning the first successful
// connection. Used to fail over across a configured server pool.
func DialPool(urls []string) (*Client, error) {
	var lastErr error
	for _, u := range urls {
		c, err := Dial(u)
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	return nil, vaulterr.ChainError("no electrum server in pool reachable", lastErr)
}

func (c *Client) parseURL(url string) error {
	if strings.HasPrefix(url, "ssl://") {
		c.useTLS = true
		url = strings.TrimPrefix(url, "ssl://")
	} else if strings.HasPrefix(url, "tcp://") {
		c.useTLS = false
		url = strings.TrimPrefix(url, "tcp://")
	} else {
		c.useTLS = true
	}
	parts := strings.Split(url, ":")
	if len(parts) != 2 {
		return vaulterr.InputInvalid("invalid electrum url, expected host:port", nil)
	}
	c.host, c.port = parts[0], parts[1]
	return nil
}

func (c *Client) connect() error {
	addr := net.JoinHostPort(c.host, c.port)
	var conn net.Conn
	var err error
	if c.useTLS {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: 30 * time.Second}, "tcp", addr, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: c.host,
		})
	} else {
		conn, err = net.DialTimeout("tcp", addr, 30*time.Second)
	}
	if err != nil {
		return vaulterr.ChainError("connecting to electrum server", err)
	}
	c.conn = conn
	return nil
}

func (c *Client) readResponses() {
	decoder := json.NewDecoder(c.conn)
	for {
		var resp rpcResponse
		if err := decoder.Decode(&resp); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.respMu.Lock()
				for _, ch := range c.respChan {
					close(ch)
				}
				c.respChan = make(map[uint64]chan *rpcResponse)
				c.respMu.Unlock()
			}
			return
		}
		c.respMu.Lock()
		if ch, ok := c.respChan[resp.ID]; ok {
			ch <- &resp
			delete(c.respChan, resp.ID)
		}
		c.respMu.Unlock()
	}
}

// call sends a JSON-RPC request and waits for its matching response or
// ctx cancellation, per §5's chain-oracle timeout propagation.
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, vaulterr.ChainError("electrum client is closed", nil)
	}
	c.mu.Unlock()

	id := c.id.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	respCh := make(chan *rpcResponse, 1)
	c.respMu.Lock()
	c.respChan[id] = respCh
	c.respMu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, vaulterr.InputInvalid("encoding electrum request", err)
	}
	data = append(data, '\n')

	c.mu.Lock()
	_, err = c.conn.Write(data)
	c.mu.Unlock()
	if err != nil {
		c.respMu.Lock()
		delete(c.respChan, id)
		c.respMu.Unlock()
		return nil, vaulterr.ChainError("writing electrum request", err)
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, vaulterr.ChainError("electrum connection closed", nil)
		}
		if resp.Error != nil {
			return nil, vaulterr.ChainError(fmt.Sprintf("electrum error %d: %s", resp.Error.Code, resp.Error.Message), nil)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.respMu.Lock()
		delete(c.respChan, id)
		c.respMu.Unlock()
		return nil, vaulterr.ChainError("electrum request timed out", ctx.Err())
	}
}

func (c *Client) negotiateVersion() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := c.call(ctx, "server.version", "covault", "1.4")
	if err != nil {
		return vaulterr.ChainError("electrum version negotiation failed", err)
	}
	var version []string
	if err := json.Unmarshal(result, &version); err != nil {
		return vaulterr.ChainError("parsing electrum version response", err)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// scriptHashBalance and scriptHashUnspent are the raw per-scripthash RPC
// results before they're mapped into chainoracle's descriptor-level
// shape.
type scriptHashBalance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

type scriptHashUnspent struct {
	TxHash string `json:"tx_hash"`
	TxPos  int    `json:"tx_pos"`
	Height int64  `json:"height"`
	Value  int64  `json:"value"`
}

// GetBalanceForScript returns the confirmed/unconfirmed split for a
// single scripthash. The descriptor-level GetBalance of Oracle (oracle.go)
// aggregates this across every script the watched descriptor derives.
func (c *Client) GetBalanceForScript(ctx context.Context, scripthash string) (chainoracle.Balance, error) {
	result, err := c.call(ctx, "blockchain.scripthash.get_balance", scripthash)
	if err != nil {
		return chainoracle.Balance{}, err
	}
	var b scriptHashBalance
	if err := json.Unmarshal(result, &b); err != nil {
		return chainoracle.Balance{}, vaulterr.ChainError("parsing balance response", err)
	}
	return chainoracle.Balance{Confirmed: b.Confirmed, UntrustedPending: b.Unconfirmed}, nil
}

// ListUnspentForScript returns unspent outputs for a single scripthash.
func (c *Client) ListUnspentForScript(ctx context.Context, scripthash string) ([]chainoracle.UTXO, error) {
	result, err := c.call(ctx, "blockchain.scripthash.listunspent", scripthash)
	if err != nil {
		return nil, err
	}
	var raw []scriptHashUnspent
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, vaulterr.ChainError("parsing listunspent response", err)
	}
	out := make([]chainoracle.UTXO, len(raw))
	for i, u := range raw {
		out[i] = chainoracle.UTXO{
			TxID:      u.TxHash,
			Vout:      uint32(u.TxPos),
			Amount:    u.Value,
			Confirmed: u.Height > 0,
		}
	}
	return out, nil
}

// Broadcast implements the chain oracle contract's broadcast operation.
func (c *Client) Broadcast(ctx context.Context, txBytes []byte) (string, error) {
	result, err := c.call(ctx, "blockchain.transaction.broadcast", hex.EncodeToString(txBytes))
	if err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(result, &txid); err != nil {
		return "", vaulterr.ChainError("parsing broadcast response", err)
	}
	return txid, nil
}

// EstimateFee implements the chain oracle contract's estimate_fee
// operation, converting Electrum's BTC/kB response to sat/vB.
func (c *Client) EstimateFee(ctx context.Context, targetBlocks int) (float64, error) {
	result, err := c.call(ctx, "blockchain.estimatefee", targetBlocks)
	if err != nil {
		return 0, err
	}
	var btcPerKB float64
	if err := json.Unmarshal(result, &btcPerKB); err != nil {
		return 0, vaulterr.ChainError("parsing fee estimate", err)
	}
	if btcPerKB <= 0 {
		return 1, nil // server has no data yet; caller's fee floor applies
	}
	return btcPerKB * 1e8 / 1000, nil
}

// TipHeight implements the chain oracle contract's tip_height operation.
func (c *Client) TipHeight(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "blockchain.headers.subscribe")
	if err != nil {
		return 0, err
	}
	var header struct {
		Height int64 `json:"height"`
	}
	if err := json.Unmarshal(result, &header); err != nil {
		return 0, vaulterr.ChainError("parsing tip height response", err)
	}
	return header.Height, nil
}

// Ping keeps the connection alive across idle sync intervals.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "server.ping")
	return err
}

// Subscribe subscribes to a scripthash, returning its status hash (nil
// if the address has no history yet) so the sync loop can detect new
// activity without polling listunspent continuously.
func (c *Client) Subscribe(ctx context.Context, scripthash string) (*string, error) {
	result, err := c.call(ctx, "blockchain.scripthash.subscribe", scripthash)
	if err != nil {
		return nil, err
	}
	if string(result) == "null" {
		return nil, nil
	}
	var status string
	if err := json.Unmarshal(result, &status); err != nil {
		return nil, vaulterr.ChainError("parsing subscribe response", err)
	}
	return &status, nil
}

// ScriptHash converts a scriptPubKey into the reversed-sha256 hex
// Electrum indexes addresses by.
func ScriptHash(scriptPubKey []byte) string {
	hash := sha256.Sum256(scriptPubKey)
	for i, j := 0, len(hash)-1; i < j; i, j = i+1, j-1 {
		hash[i], hash[j] = hash[j], hash[i]
	}
	return hex.EncodeToString(hash[:])
}
