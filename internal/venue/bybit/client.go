package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"quantflow/config"
	"quantflow/logger"
)

// ConnState is the client connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAuthenticating
	StateActive
	StateReconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateActive:
		return "ACTIVE"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// MessageHandler receives every decoded inbound frame.
type MessageHandler func(Message)

type request struct {
	ReqId string   `json:"req_id,omitempty"`
	Op    string   `json:"op"`
	Args  []string `json:"args,omitempty"`
}

// Client maintains one Bybit v5 websocket stream: dial, optional auth,
// heartbeat, subscription bookkeeping and reconnect with backoff.
type Client struct {
	cfg     config.VenueConfig
	handler MessageHandler
	log     *logger.Entry

	mu    sync.Mutex
	conn  *websocket.Conn
	state atomic.Int32

	subs     *subscriptionBook
	outbound chan request
	limiter  *rate.Limiter

	stopped atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewClient builds a client; Connect must be called before use.
func NewClient(cfg config.VenueConfig, handler MessageHandler) *Client {
	if cfg.HeartbeatSecs <= 0 {
		cfg.HeartbeatSecs = 20
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		log: logger.WithComponent("bybit_client").WithFields(logger.Fields{
			"venue": cfg.Name,
			"url":   cfg.WSURL,
		}),
		subs: newSubscriptionBook(),
		// Bybit allows 10 requests per second per connection.
		limiter:  rate.NewLimiter(rate.Limit(10), 10),
		outbound: make(chan request, 256),
		done:     make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Client) setState(s ConnState) {
	old := ConnState(c.state.Swap(int32(s)))
	if old != s {
		c.log.WithFields(logger.Fields{"from": old.String(), "to": s.String()}).Info("Connection state changed")
	}
}

// Connect dials the stream, authenticates when credentials are configured and
// starts the read, write and heartbeat loops. It retries with backoff until
// the context is done.
func (c *Client) Connect(ctx context.Context) error {
	if c.stopped.Load() {
		return fmt.Errorf("client is closed")
	}
	c.setState(StateConnecting)

	b := c.newBackoff()
	for {
		err := c.dialAndStart(ctx)
		if err == nil {
			return nil
		}
		c.log.WithError(err).Warn("Connect attempt failed")
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(c.nextDelay(b)):
		}
	}
}

func (c *Client) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    c.cfg.Reconnect.ReconnectInitial(),
		Max:    c.cfg.Reconnect.ReconnectMax(),
		Factor: c.cfg.Reconnect.ReconnectFactor(),
	}
}

// nextDelay adds the configured jitter on top of the backoff step.
func (c *Client) nextDelay(b *backoff.Backoff) time.Duration {
	d := b.Duration()
	if c.cfg.Reconnect.JitterMs > 0 {
		d += time.Duration(rand.Intn(c.cfg.Reconnect.JitterMs+1)) * time.Millisecond
	}
	return d
}

func (c *Client) dialAndStart(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Reconnect.ReconnectTimeout())
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.Reconnect.ReconnectTimeout(),
	}
	conn, _, err := dialer.DialContext(dialCtx, c.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.WSURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if c.cfg.APIKey != "" && c.cfg.APISecret != "" {
		c.setState(StateAuthenticating)
		if err := c.authenticate(ctx, conn); err != nil {
			conn.Close()
			return err
		}
	}

	c.setState(StateActive)
	c.wg.Add(3)
	go c.readLoop(conn)
	go c.writeLoop(conn)
	go c.pingLoop(conn)
	return nil
}

// authenticate sends the signed auth frame and waits for the ack. The
// signature is HMAC-SHA256 over "GET/realtime{expires}" keyed by the secret.
func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn) error {
	expires := time.Now().Add(30 * time.Second).UnixMilli()
	signature := BuildAuthSignature(c.cfg.APISecret, expires)

	frame := request{
		Op:   "auth",
		Args: []string{c.cfg.APIKey, fmt.Sprintf("%d", expires), signature},
	}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	// Read frames directly until the auth ack; the read loop is not running
	// yet on a fresh connection.
	deadline := time.Now().Add(c.cfg.AuthTimeout)
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await auth ack: %w", err)
		}
		msg, err := Decode(raw)
		if err != nil {
			c.log.WithError(err).Warn("Undecodable frame during auth")
			continue
		}
		switch m := msg.(type) {
		case AuthResponse:
			if !m.Success {
				return fmt.Errorf("auth rejected: %s", m.RetMsg)
			}
			c.log.Info("Authenticated")
			return nil
		default:
			// Welcome and early data frames are forwarded as usual.
			c.dispatch(msg)
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.stopped.Load() {
				return
			}
			c.log.WithError(err).Warn("Read failed, reconnecting")
			c.reconnect(conn)
			return
		}
		msg, err := Decode(raw)
		if err != nil {
			c.log.WithError(err).Warn("Dropping undecodable frame")
			continue
		}
		c.handleInbound(msg)
	}
}

func (c *Client) handleInbound(msg Message) {
	switch m := msg.(type) {
	case SubscriptionResponse:
		switch m.Op {
		case "subscribe":
			if m.Success {
				c.subs.confirmPending()
			} else {
				c.subs.failPending()
				c.log.WithField("ret_msg", m.RetMsg).Warn("Subscribe rejected")
			}
		case "unsubscribe":
			if m.Success {
				c.subs.confirmUnsubscribe()
			} else {
				c.subs.failUnsubscribe()
				c.log.WithField("ret_msg", m.RetMsg).Warn("Unsubscribe rejected")
			}
		}
	case PongMessage:
		// Heartbeat answered; nothing to do.
		return
	case PingMessage:
		// Server-initiated ping; echo its payload back.
		c.enqueue(request{ReqId: m.ReqId, Op: "pong", Args: m.Args})
		return
	case ErrorMessage:
		c.log.WithFields(logger.Fields{"code": m.Code, "ret_msg": m.RetMsg}).Warn("Venue error frame")
	}
	c.dispatch(msg)
}

func (c *Client) dispatch(msg Message) {
	if c.handler != nil {
		c.handler(msg)
	}
}

func (c *Client) writeLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case req := <-c.outbound:
			if err := c.limiter.Wait(context.Background()); err != nil {
				return
			}
			if err := conn.WriteJSON(req); err != nil {
				if !c.stopped.Load() {
					c.log.WithError(err).Warn("Write failed")
				}
				return
			}
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	interval := time.Duration(c.cfg.HeartbeatSecs) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.enqueue(request{ReqId: uuid.NewString(), Op: "ping"})
		}
	}
}

// reconnect tears down the failed connection and re-establishes the stream,
// re-authenticating and replaying every confirmed or failed subscription.
func (c *Client) reconnect(old *websocket.Conn) {
	c.mu.Lock()
	if c.conn != old || c.stopped.Load() {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()
	old.Close()
	c.setState(StateReconnecting)

	topics := c.subs.resubscribeSet()
	b := c.newBackoff()
	for !c.stopped.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Reconnect.ReconnectTimeout())
		err := c.dialAndStart(ctx)
		cancel()
		if err == nil {
			if len(topics) > 0 {
				c.sendSubscribe(topics)
			}
			return
		}
		c.log.WithError(err).Warn("Reconnect attempt failed")
		select {
		case <-c.done:
			return
		case <-time.After(c.nextDelay(b)):
		}
	}
}

// Subscribe requests the given topics. Already confirmed or pending topics
// are skipped; index price topics carry symbols with a leading dot which the
// venue only serves on the ticker channel, so those are normalized there.
func (c *Client) Subscribe(topics []string) {
	if c.stopped.Load() {
		return
	}
	fresh := c.subs.markPending(topics)
	if len(fresh) == 0 {
		return
	}
	c.sendSubscribe(fresh)
}

func (c *Client) sendSubscribe(topics []string) {
	for _, chunk := range chunkArgs(topics, c.cfg.MaxArgsPerRequest) {
		c.enqueue(request{ReqId: uuid.NewString(), Op: "subscribe", Args: chunk})
	}
}

// Unsubscribe stops the given topics. Unknown topics are ignored.
func (c *Client) Unsubscribe(topics []string) {
	if c.stopped.Load() {
		return
	}
	confirmed := c.subs.markUnsubscribing(topics)
	if len(confirmed) == 0 {
		return
	}
	for _, chunk := range chunkArgs(confirmed, c.cfg.MaxArgsPerRequest) {
		c.enqueue(request{ReqId: uuid.NewString(), Op: "unsubscribe", Args: chunk})
	}
}

// enqueue blocks while the outbound buffer is full, applying backpressure to
// the caller. Requests issued after shutdown are dropped.
func (c *Client) enqueue(req request) {
	select {
	case c.outbound <- req:
	case <-c.done:
	}
}

// IsSubscribed reports whether a topic has been confirmed by the venue.
func (c *Client) IsSubscribed(topic string) bool {
	return c.subs.isConfirmed(topic)
}

// SubscriptionCount returns the number of confirmed topics.
func (c *Client) SubscriptionCount() int {
	return c.subs.confirmedCount()
}

// WaitUntilActive blocks until the connection is active or the timeout lapses.
func (c *Client) WaitUntilActive(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == StateActive {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("connection not active after %s", timeout)
}

// Close shuts the client down. Requests issued after Close are dropped.
func (c *Client) Close() error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	c.wg.Wait()
	c.setState(StateClosed)
	c.log.Info("Client closed")
	return nil
}

// BuildAuthSignature is the HMAC used by the auth frame, exposed for tests
// and for REST callers sharing the same credentials.
func BuildAuthSignature(secret string, expiresMs int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "GET/realtime%d", expiresMs)
	return hex.EncodeToString(mac.Sum(nil))
}

// marshalRequest renders an outbound frame; split out for tests.
func marshalRequest(req request) ([]byte, error) {
	return json.Marshal(req)
}
