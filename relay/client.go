// Package relay implements a reference client for the relay transport
// §6 assumes: subscribe to filters, publish signed events, receive
// matches. The connection/read-loop/response-correlation architecture
// mirrors the teacher's Electrum client (chainoracle/electrum), adapted
// from a single request/response RPC shape to a long-lived
// publish/subscribe one over gorilla/websocket.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/vaulterr"
)

// Match is a single event delivered to a subscription.
type Match struct {
	SubscriptionID string
	Event          *envelope.Event
}

// Client is a connection to one relay. A sync-layer caller typically
// holds one Client per configured relay URL (§6's multi-relay fanout).
type Client struct {
	conn *websocket.Conn
	url  string

	mu     sync.Mutex
	closed bool

	subMu sync.Mutex
	subs  map[string]chan Match

	pubMu sync.Mutex
	pubCh map[string]chan error

	Matches chan Match
}

// Dial connects to a relay over websocket and starts its read loop.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, vaulterr.RelayError("dialing relay", err)
	}
	c := &Client{
		conn:    conn,
		url:     url,
		subs:    make(map[string]chan Match),
		pubCh:   make(map[string]chan error),
		Matches: make(chan Match, 64),
	}
	go c.readLoop()
	return c, nil
}

// frame is the generic relay wire shape: a JSON array whose first
// element names the message type.
type frame []json.RawMessage

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.failAllPending(vaulterr.RelayError("relay connection closed", err))
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) failAllPending(err error) {
	c.pubMu.Lock()
	for _, ch := range c.pubCh {
		ch <- err
		close(ch)
	}
	c.pubCh = make(map[string]chan error)
	c.pubMu.Unlock()

	c.subMu.Lock()
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = make(map[string]chan Match)
	c.subMu.Unlock()
}

func (c *Client) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || len(f) == 0 {
		return
	}
	var kind string
	if err := json.Unmarshal(f[0], &kind); err != nil {
		return
	}
	switch kind {
	case "EVENT":
		if len(f) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(f[1], &subID); err != nil {
			return
		}
		e, err := unmarshalEnvelope(f[2])
		if err != nil || !e.Verify() {
			return // malformed or unverifiable events are silently discarded, §4.4
		}
		match := Match{SubscriptionID: subID, Event: e}
		c.subMu.Lock()
		ch, ok := c.subs[subID]
		c.subMu.Unlock()
		if ok {
			ch <- match
		}
		select {
		case c.Matches <- match:
		default:
		}
	case "OK":
		if len(f) < 3 {
			return
		}
		var eventID string
		var ok bool
		_ = json.Unmarshal(f[1], &eventID)
		_ = json.Unmarshal(f[2], &ok)
		c.pubMu.Lock()
		ch, found := c.pubCh[eventID]
		c.pubMu.Unlock()
		if found {
			if ok {
				ch <- nil
			} else {
				var reason string
				if len(f) > 3 {
					_ = json.Unmarshal(f[3], &reason)
				}
				ch <- vaulterr.RelayError("relay rejected event: "+reason, nil)
			}
			close(ch)
		}
	case "EOSE", "NOTICE":
		// End-of-stored-events and informational notices require no
		// client action in this reference implementation.
	}
}

// Subscribe opens a subscription for filter and returns its id plus a
// channel of matches. The subscription stays open until Unsubscribe is
// called or the client is closed.
func (c *Client) Subscribe(ctx context.Context, filter Filter) (string, <-chan Match, error) {
	subID := uuid.NewString()
	ch := make(chan Match, 64)
	c.subMu.Lock()
	c.subs[subID] = ch
	c.subMu.Unlock()

	req := []interface{}{"REQ", subID, filter}
	if err := c.writeJSON(req); err != nil {
		c.subMu.Lock()
		delete(c.subs, subID)
		c.subMu.Unlock()
		return "", nil, err
	}
	return subID, ch, nil
}

// Unsubscribe closes subID's subscription.
func (c *Client) Unsubscribe(subID string) error {
	c.subMu.Lock()
	ch, ok := c.subs[subID]
	delete(c.subs, subID)
	c.subMu.Unlock()
	if ok {
		close(ch)
	}
	return c.writeJSON([]interface{}{"CLOSE", subID})
}

// Publish sends a signed event and waits (bounded by ctx, the relay
// timeout default of §5 is 60s) for the relay's OK acknowledgement.
func (c *Client) Publish(ctx context.Context, e *envelope.Event) error {
	wire, err := marshalEnvelope(e)
	if err != nil {
		return err
	}
	var rawWire json.RawMessage = wire

	eventIDHex := fmt.Sprintf("%x", e.ID)
	waitCh := make(chan error, 1)
	c.pubMu.Lock()
	c.pubCh[eventIDHex] = waitCh
	c.pubMu.Unlock()

	if err := c.writeJSON([]interface{}{"EVENT", rawWire}); err != nil {
		c.pubMu.Lock()
		delete(c.pubCh, eventIDHex)
		c.pubMu.Unlock()
		return err
	}

	select {
	case err := <-waitCh:
		return err
	case <-ctx.Done():
		c.pubMu.Lock()
		delete(c.pubCh, eventIDHex)
		c.pubMu.Unlock()
		return vaulterr.RelayError("publish timed out waiting for relay ack", ctx.Err())
	}
}

func (c *Client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return vaulterr.RelayError("relay client is closed", nil)
	}
	if err := c.conn.WriteJSON(v); err != nil {
		return vaulterr.RelayError("writing to relay", err)
	}
	return nil
}

// Close closes the underlying websocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
